// Package scraper fetches posting pages and runs scrapes for a source and
// criteria pair, reporting which postings are new since the last look.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/cache"
	"jobmate/job-ingest/internal/importer"
	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/telemetry"
)

// ErrNoFeeds is returned when a source has no default feeds and none were
// supplied.
var ErrNoFeeds = errors.New("no feeds configured for source")

// DefaultFeeds lists the feeds scraped for a source when a job names none.
var DefaultFeeds = map[model.Source][]string{
	model.SourceGitHub: {
		"https://github.com/SimplifyJobs/Summer2026-Internships",
		"https://github.com/SimplifyJobs/New-Grad-Positions",
	},
}

// HasFeeds reports whether a job for src with the given feeds has anything to
// scrape.
func HasFeeds(src model.Source, feeds []string) bool {
	return len(feeds) > 0 || len(DefaultFeeds[src]) > 0
}

// Importer is the subset of importer.JobImporter the scraper drives.
type Importer interface {
	ImportURL(ctx context.Context, url string) importer.Result
	ImportRepository(ctx context.Context, repoURL string, filters model.RepoFilters, maxCount int) importer.RepoResult
}

// ScrapeResult holds one scrape's output. New is the subset of All whose
// fingerprints had not been seen by this scraper before.
type ScrapeResult struct {
	Source    model.Source    `json:"source"`
	All       []model.Posting `json:"all"`
	New       []model.Posting `json:"new"`
	Errors    []string        `json:"errors,omitempty"`
	FromCache bool            `json:"fromCache"`
}

// Scraper runs the full scrape cycle for a source and criteria pair:
// import every feed, apply criteria, cache the list and split out the
// postings not seen before.
type Scraper struct {
	importer Importer
	cache    *cache.ResultCache
	log      *zap.Logger
}

// New constructs a Scraper.
func New(imp Importer, c *cache.ResultCache, log *zap.Logger) *Scraper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scraper{importer: imp, cache: c, log: log}
}

// Scrape returns the postings for src matching criteria. feeds overrides the
// source's default feeds. An error is returned only when no feed produced
// anything; partial failures are listed in ScrapeResult.Errors.
func (s *Scraper) Scrape(ctx context.Context, src model.Source, criteria model.ScrapeCriteria, feeds []string) (*ScrapeResult, error) {
	ctx, span := telemetry.GetTracer("scraper").Start(ctx, "scraper.Scrape")
	defer span.End()
	span.SetAttributes(telemetry.String("source", string(src)))

	res := &ScrapeResult{Source: src}

	if len(feeds) == 0 {
		feeds = DefaultFeeds[src]
	}
	if len(feeds) == 0 {
		span.SetStatus(codes.Error, ErrNoFeeds.Error())
		return nil, fmt.Errorf("%w: %s", ErrNoFeeds, src)
	}

	if cached, ok := s.cache.Get(src, criteria, feeds); ok {
		res.All = cached
		res.FromCache = true
	} else {
		all, errs := s.collect(ctx, feeds, criteria)
		res.Errors = errs
		if len(errs) == len(feeds) {
			err := fmt.Errorf("all %d feeds failed: %s", len(feeds), strings.Join(errs, "; "))
			span.RecordError(err)
			span.SetStatus(codes.Error, "all feeds failed")
			return nil, err
		}
		res.All = Filter(all, criteria)
		s.cache.Set(src, criteria, feeds, res.All)
	}

	for _, p := range res.All {
		if s.cache.MarkSeenIfNew(p) {
			res.New = append(res.New, p)
		}
	}

	span.SetAttributes(
		telemetry.Int("postings", len(res.All)),
		telemetry.Int("new_postings", len(res.New)),
		telemetry.Bool("from_cache", res.FromCache),
	)
	s.log.Info("scrape finished",
		zap.String("source", string(src)),
		zap.Int("postings", len(res.All)),
		zap.Int("new", len(res.New)),
		zap.Int("feed_errors", len(res.Errors)),
		zap.Bool("from_cache", res.FromCache),
	)
	return res, nil
}

// collect imports every feed, continuing past failures. It returns one error
// message per failed feed.
func (s *Scraper) collect(ctx context.Context, feeds []string, criteria model.ScrapeCriteria) ([]model.Posting, []string) {
	var (
		all  []model.Posting
		errs []string
	)
	for _, feed := range feeds {
		if importer.IsRepositoryURL(feed) {
			repo := s.importer.ImportRepository(ctx, feed, RepoFilters(criteria), 0)
			if !repo.Success {
				s.log.Warn("feed failed", zap.String("feed", feed), zap.Error(repo.Error))
				errs = append(errs, fmt.Sprintf("%s: %s", feed, repo.Error.Message))
				continue
			}
			all = append(all, repo.Postings...)
			continue
		}

		one := s.importer.ImportURL(ctx, feed)
		if !one.Success {
			s.log.Warn("feed failed", zap.String("feed", feed), zap.Error(one.Error))
			errs = append(errs, fmt.Sprintf("%s: %s", feed, one.Error.Message))
			continue
		}
		all = append(all, *one.Posting)
	}
	return all, errs
}
