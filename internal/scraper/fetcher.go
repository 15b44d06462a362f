package scraper

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	ingesterrors "jobmate/job-ingest/internal/errors"
	"jobmate/job-ingest/internal/telemetry"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxRetries   = 3
	defaultRetryDelay   = time.Second
	maxBodyBytes        = 10 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var browserHeaders = map[string]string{
	"User-Agent":                browserUserAgent,
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "identity",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// FetcherConfig tunes the HTTP behaviour of a ContentFetcher.
type FetcherConfig struct {
	Timeout    time.Duration
	MaxRetries int // total attempts, including the first
	RetryDelay time.Duration
}

// ContentFetcher downloads posting pages with browser-like headers and
// retries recoverable failures with linear backoff.
type ContentFetcher struct {
	client *http.Client
	cfg    FetcherConfig
	log    *zap.Logger
}

// NewContentFetcher constructs a fetcher with a shared HTTP client.
// Zero config fields select the defaults.
func NewContentFetcher(cfg FetcherConfig, log *zap.Logger) *ContentFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ContentFetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    log,
	}
}

// Fetch returns the body of url. Failures are *errors.ImportError values.
func (f *ContentFetcher) Fetch(ctx context.Context, url string) (string, error) {
	ctx, span := telemetry.GetTracer("scraper").Start(ctx, "fetcher.Fetch")
	defer span.End()
	span.SetAttributes(telemetry.String("url", url))

	var lastErr *ingesterrors.ImportError
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			span.SetAttributes(telemetry.Int("attempts", attempt), telemetry.Int("bytes", len(body)))
			return body, nil
		}
		lastErr = err

		if !err.Recoverable || attempt == f.cfg.MaxRetries {
			break
		}

		delay := time.Duration(attempt) * f.cfg.RetryDelay
		f.log.Warn("fetch failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			lastErr = ingesterrors.Timeout("fetch cancelled while waiting to retry", err)
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, string(lastErr.Code))
	return "", lastErr
}

func (f *ContentFetcher) fetchOnce(ctx context.Context, url string) (string, *ingesterrors.ImportError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", ingesterrors.Network(fmt.Sprintf("build request for %s", url), err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classifyTransportError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return "", classifyStatus(url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", classifyTransportError(url, err)
	}
	return string(body), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func classifyStatus(url string, status int) *ingesterrors.ImportError {
	switch status {
	case http.StatusTooManyRequests:
		return ingesterrors.RateLimited(fmt.Sprintf("%s rate limited the request", url), nil)
	case http.StatusForbidden:
		return ingesterrors.AccessDenied(fmt.Sprintf("access denied to %s", url), nil)
	case http.StatusNotFound:
		return ingesterrors.NotFound(fmt.Sprintf("%s not found", url), nil)
	default:
		return ingesterrors.HTTP(status, fmt.Sprintf("%s returned HTTP %d", url, status))
	}
}

func classifyTransportError(url string, err error) *ingesterrors.ImportError {
	var netErr net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return ingesterrors.Timeout(fmt.Sprintf("timed out fetching %s", url), err)
	}
	return ingesterrors.Network(fmt.Sprintf("request to %s failed", url), err)
}
