package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	ingesterrors "jobmate/job-ingest/internal/errors"
	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/telemetry"
)

const (
	DefaultBulkConcurrency = 5
	DefaultBulkMaxURLs     = 50
)

// ErrTooManyURLs is returned by ValidateBulk when a request exceeds the cap.
var ErrTooManyURLs = errors.New("too many urls in bulk import")

// PersistFunc stores a posting and returns its identifier.
type PersistFunc func(ctx context.Context, p model.Posting) (string, error)

// BulkResult aggregates a bulk import. SuccessCount + ErrorCount always
// equals TotalRequested.
type BulkResult struct {
	SuccessCount   int      `json:"successCount"`
	ErrorCount     int      `json:"errorCount"`
	TotalRequested int      `json:"totalRequested"`
	Results        []Result `json:"results"`
}

// ValidateBulk rejects empty or oversized URL lists.
func (i *JobImporter) ValidateBulk(urls []string) error {
	if len(urls) == 0 {
		return errors.New("no urls to import")
	}
	if len(urls) > i.cfg.BulkMaxURLs {
		return fmt.Errorf("%w: %d > %d", ErrTooManyURLs, len(urls), i.cfg.BulkMaxURLs)
	}
	return nil
}

// BulkImport imports urls with at most Config.BulkConcurrency imports in
// flight. Results keep input order. persist may be nil; its failures become
// warnings on an otherwise successful result.
func (i *JobImporter) BulkImport(ctx context.Context, urls []string, persist PersistFunc) BulkResult {
	ctx, span := telemetry.GetTracer("importer").Start(ctx, "importer.BulkImport")
	defer span.End()
	span.SetAttributes(telemetry.Int("urls", len(urls)))

	results := make([]Result, len(urls))
	sem := semaphore.NewWeighted(int64(i.cfg.BulkConcurrency))
	var wg sync.WaitGroup

	for idx, url := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[idx] = Result{
				URL:   url,
				Error: ingesterrors.Timeout("bulk import cancelled before this url started", err),
			}
			continue
		}

		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			defer sem.Release(1)
			results[idx] = i.importAndPersist(ctx, url, persist)
		}(idx, url)
	}
	wg.Wait()

	out := BulkResult{TotalRequested: len(urls), Results: results}
	for _, r := range results {
		if r.Success {
			out.SuccessCount++
		} else {
			out.ErrorCount++
		}
	}

	span.SetAttributes(telemetry.Int("succeeded", out.SuccessCount), telemetry.Int("failed", out.ErrorCount))
	i.log.Info("bulk import finished",
		zap.Int("total", out.TotalRequested),
		zap.Int("succeeded", out.SuccessCount),
		zap.Int("failed", out.ErrorCount),
	)
	return out
}

func (i *JobImporter) importAndPersist(ctx context.Context, url string, persist PersistFunc) Result {
	res := i.ImportURL(ctx, url)
	if !res.Success || persist == nil {
		return res
	}

	id, err := persist(ctx, *res.Posting)
	if err != nil {
		i.log.Warn("persisting imported posting failed", zap.String("url", url), zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("imported but not saved: %v", err))
		return res
	}
	res.PostingID = id
	return res
}
