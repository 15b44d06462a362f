// Package importer turns job URLs and aggregator repositories into postings.
// Every entry point returns a structured result; classified failures never
// surface as bare errors.
package importer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	ingesterrors "jobmate/job-ingest/internal/errors"
	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/source"
	"jobmate/job-ingest/internal/telemetry"
)

const (
	DefaultRepoMax       = 100
	DefaultRepoMaxLimit  = 500
	DefaultRawContentURL = "https://raw.githubusercontent.com"
)

// Branches tried, in order, when locating a repository README.
var readmeBranches = []string{"main", "master", "dev"}

var repoURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?(?:[/?#].*)?$`)

// Fetcher downloads a URL's body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Extractor builds a posting from fetched content.
type Extractor interface {
	Extract(content string, src model.Source, pageURL string) (*model.Posting, error)
}

// Limiter blocks until the source's request budget admits one more request.
type Limiter interface {
	Wait(ctx context.Context, src model.Source) error
}

// TableParser reads postings out of a markdown table.
type TableParser interface {
	Parse(markdown string, filters model.RepoFilters, maxCount int) []model.Posting
}

// Config holds importer limits.
type Config struct {
	RepoDefaultMax  int
	RepoMaxResults  int
	BulkConcurrency int
	BulkMaxURLs     int
	// RawContentURL is the base for README downloads.
	RawContentURL string
}

// Result is the outcome of importing or previewing one URL.
type Result struct {
	URL       string                    `json:"url"`
	Success   bool                      `json:"success"`
	Source    model.Source              `json:"source"`
	Posting   *model.Posting            `json:"posting,omitempty"`
	PostingID string                    `json:"postingId,omitempty"`
	Error     *ingesterrors.ImportError `json:"error,omitempty"`
	Warnings  []string                  `json:"warnings,omitempty"`
}

// RepoResult is the outcome of importing a repository README.
type RepoResult struct {
	RepositoryURL string                    `json:"repositoryUrl"`
	Success       bool                      `json:"success"`
	Branch        string                    `json:"branch,omitempty"`
	Postings      []model.Posting           `json:"postings"`
	Total         int                       `json:"total"`
	Error         *ingesterrors.ImportError `json:"error,omitempty"`
}

// JobImporter composes detection, throttling, fetching and extraction.
type JobImporter struct {
	fetcher   Fetcher
	extractor Extractor
	limiter   Limiter
	tables    TableParser
	cfg       Config
	log       *zap.Logger
}

// New builds a JobImporter. Zero config fields select the defaults.
func New(fetcher Fetcher, extractor Extractor, limiter Limiter, tables TableParser, cfg Config, log *zap.Logger) *JobImporter {
	if cfg.RepoDefaultMax <= 0 {
		cfg.RepoDefaultMax = DefaultRepoMax
	}
	if cfg.RepoMaxResults <= 0 {
		cfg.RepoMaxResults = DefaultRepoMaxLimit
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = DefaultBulkConcurrency
	}
	if cfg.BulkMaxURLs <= 0 {
		cfg.BulkMaxURLs = DefaultBulkMaxURLs
	}
	if cfg.RawContentURL == "" {
		cfg.RawContentURL = DefaultRawContentURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JobImporter{
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		tables:    tables,
		cfg:       cfg,
		log:       log,
	}
}

// ImportURL fetches and extracts a single posting.
func (i *JobImporter) ImportURL(ctx context.Context, url string) Result {
	ctx, span := telemetry.GetTracer("importer").Start(ctx, "importer.ImportURL")
	defer span.End()

	res := i.importOne(ctx, url)
	span.SetAttributes(
		telemetry.String("url", url),
		telemetry.String("source", string(res.Source)),
		telemetry.Bool("success", res.Success),
	)
	if res.Error != nil {
		span.SetStatus(codes.Error, string(res.Error.Code))
	}
	return res
}

// Preview runs the import path for display only. Callers must not persist
// the result.
func (i *JobImporter) Preview(ctx context.Context, url string) Result {
	ctx, span := telemetry.GetTracer("importer").Start(ctx, "importer.Preview")
	defer span.End()
	return i.importOne(ctx, url)
}

func (i *JobImporter) importOne(ctx context.Context, url string) Result {
	url = strings.TrimSpace(url)
	src := source.Detect(url)
	res := Result{URL: url, Source: src}

	fail := func(err error) Result {
		res.Error = ingesterrors.AsImportError(err)
		i.log.Info("import failed",
			zap.String("url", url),
			zap.String("source", string(src)),
			zap.String("code", string(res.Error.Code)),
			zap.String("message", res.Error.Message),
		)
		return res
	}

	if err := i.limiter.Wait(ctx, src); err != nil {
		return fail(ingesterrors.RateLimited(fmt.Sprintf("gave up waiting for %s rate limit", src), err))
	}

	content, err := i.fetcher.Fetch(ctx, url)
	if err != nil {
		return fail(err)
	}

	posting, err := i.extractor.Extract(content, src, url)
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(posting.Title) == "" {
		return fail(ingesterrors.Parse("could not extract a job title", nil))
	}

	res.Success = true
	res.Posting = posting
	return res
}

// ImportRepository downloads a GitHub repository's README and parses its job
// tables. maxCount <= 0 selects the default cap; larger values are clamped to
// the configured maximum.
func (i *JobImporter) ImportRepository(
	ctx context.Context,
	repoURL string,
	filters model.RepoFilters,
	maxCount int,
) RepoResult {
	ctx, span := telemetry.GetTracer("importer").Start(ctx, "importer.ImportRepository")
	defer span.End()
	span.SetAttributes(telemetry.String("repository", repoURL))

	res := RepoResult{RepositoryURL: repoURL, Postings: []model.Posting{}}

	owner, repo, ok := ParseRepositoryURL(repoURL)
	if !ok {
		res.Error = ingesterrors.InvalidRepositoryURL(fmt.Sprintf("%q is not a github.com/<owner>/<repo> URL", repoURL), nil)
		span.SetStatus(codes.Error, string(res.Error.Code))
		return res
	}

	switch {
	case maxCount <= 0:
		maxCount = i.cfg.RepoDefaultMax
	case maxCount > i.cfg.RepoMaxResults:
		maxCount = i.cfg.RepoMaxResults
	}

	readme, branch, err := i.fetchReadme(ctx, owner, repo)
	if err != nil {
		res.Error = ingesterrors.AsImportError(err)
		span.SetStatus(codes.Error, string(res.Error.Code))
		return res
	}

	res.Postings = i.tables.Parse(readme, filters, maxCount)
	res.Branch = branch
	res.Total = len(res.Postings)
	res.Success = true

	span.SetAttributes(telemetry.String("branch", branch), telemetry.Int("postings", res.Total))
	i.log.Info("repository imported",
		zap.String("repository", owner+"/"+repo),
		zap.String("branch", branch),
		zap.Int("postings", res.Total),
	)
	return res
}

func (i *JobImporter) fetchReadme(ctx context.Context, owner, repo string) (string, string, error) {
	var lastErr error
	for _, branch := range readmeBranches {
		if err := i.limiter.Wait(ctx, model.SourceGitHub); err != nil {
			return "", "", ingesterrors.RateLimited("gave up waiting for github rate limit", err)
		}
		url := fmt.Sprintf("%s/%s/%s/%s/README.md", strings.TrimSuffix(i.cfg.RawContentURL, "/"), owner, repo, branch)
		body, err := i.fetcher.Fetch(ctx, url)
		if err == nil {
			return body, branch, nil
		}
		lastErr = err
		i.log.Debug("readme not served from branch",
			zap.String("repository", owner+"/"+repo),
			zap.String("branch", branch),
			zap.Error(err),
		)
	}
	return "", "", ingesterrors.ReadmeNotFound(
		fmt.Sprintf("no README found for %s/%s on branches %s", owner, repo, strings.Join(readmeBranches, ", ")),
		lastErr,
	)
}

// ParseRepositoryURL extracts owner and repository names from a GitHub URL.
func ParseRepositoryURL(raw string) (owner, repo string, ok bool) {
	m := repoURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// IsRepositoryURL reports whether raw points at a repository root rather than
// a single posting.
func IsRepositoryURL(raw string) bool {
	_, _, ok := ParseRepositoryURL(raw)
	return ok
}
