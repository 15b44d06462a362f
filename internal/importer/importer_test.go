package importer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ingesterrors "jobmate/job-ingest/internal/errors"
	"jobmate/job-ingest/internal/extract"
	"jobmate/job-ingest/internal/importer"
	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/table"
)

// fakeFetcher serves canned pages and records concurrency.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	errs    map[string]error
	calls   []string
	delay   time.Duration
	current atomic.Int32
	peak    atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	if body, ok := f.pages[url]; ok {
		return body, nil
	}
	return "", ingesterrors.NotFound(url+" not found", nil)
}

type fakeLimiter struct {
	waits atomic.Int32
	err   error
}

func (l *fakeLimiter) Wait(ctx context.Context, src model.Source) error {
	l.waits.Add(1)
	return l.err
}

func posting(title string) string {
	return fmt.Sprintf(`<html><head><title>%s</title><meta name="author" content="Acme"></head><body></body></html>`, title)
}

func newImporter(f *fakeFetcher, l *fakeLimiter, cfg importer.Config) *importer.JobImporter {
	return importer.New(f, extract.NewRegistry(), l, table.NewImporter(), cfg, zap.NewNop())
}

func TestImportURL_Success(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://acme.example/jobs/1": posting("Staff Engineer"),
	}}
	l := &fakeLimiter{}

	res := newImporter(f, l, importer.Config{}).ImportURL(context.Background(), "https://acme.example/jobs/1")

	require.True(t, res.Success)
	require.NotNil(t, res.Posting)
	assert.Nil(t, res.Error)
	assert.Equal(t, "Staff Engineer", res.Posting.Title)
	assert.Equal(t, model.SourceCompanySite, res.Source)
	assert.Equal(t, int32(1), l.waits.Load())
}

func TestImportURL_MissingTitleIsParseError(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://acme.example/jobs/2": "<html><body>nothing</body></html>",
	}}

	res := newImporter(f, &fakeLimiter{}, importer.Config{}).ImportURL(context.Background(), "https://acme.example/jobs/2")

	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, ingesterrors.CodeParse, res.Error.Code)
	assert.False(t, res.Error.Recoverable)
}

func TestImportURL_FetchErrorIsReported(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{
		"https://www.linkedin.com/jobs/view/1": ingesterrors.AccessDenied("blocked", nil),
	}}

	res := newImporter(f, &fakeLimiter{}, importer.Config{}).ImportURL(context.Background(), "https://www.linkedin.com/jobs/view/1")

	assert.False(t, res.Success)
	assert.Equal(t, model.SourceLinkedIn, res.Source)
	assert.Equal(t, ingesterrors.CodeAccessDenied, res.Error.Code)
}

func TestImportURL_LimiterCancelled(t *testing.T) {
	f := &fakeFetcher{}
	l := &fakeLimiter{err: context.DeadlineExceeded}

	res := newImporter(f, l, importer.Config{}).Preview(context.Background(), "https://jobs.lever.co/acme/1")

	assert.False(t, res.Success)
	assert.Equal(t, ingesterrors.CodeRateLimited, res.Error.Code)
	assert.Empty(t, f.calls, "nothing is fetched without a rate-limit slot")
}

const repoReadme = `| Company | Role | Location | Application/Link | Date Posted |
| --- | --- | --- | --- | --- |
| Acme Corp | Backend Intern | Remote | [Apply](https://acme.com/apply) | Jan 05 |
| Widget Co | SWE Intern | NYC | [Apply](https://widget.com/apply) | Jan 04 |
| Globex | Data Intern | Austin | [Apply](https://globex.com/apply) | Jan 03 |
`

func TestImportRepository_FallsBackThroughBranches(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://raw.test/acme/jobs/master/README.md": repoReadme,
	}}

	imp := newImporter(f, &fakeLimiter{}, importer.Config{RawContentURL: "https://raw.test"})
	res := imp.ImportRepository(context.Background(), "https://github.com/acme/jobs", model.RepoFilters{}, 0)

	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, "master", res.Branch)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Postings, 3)
	assert.Equal(t, []string{
		"https://raw.test/acme/jobs/main/README.md",
		"https://raw.test/acme/jobs/master/README.md",
	}, f.calls)
}

func TestImportRepository_MaxCountIsClamped(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://raw.test/acme/jobs/main/README.md": repoReadme,
	}}
	imp := newImporter(f, &fakeLimiter{}, importer.Config{
		RawContentURL:  "https://raw.test",
		RepoDefaultMax: 1,
		RepoMaxResults: 2,
	})

	res := imp.ImportRepository(context.Background(), "github.com/acme/jobs", model.RepoFilters{}, 0)
	assert.Equal(t, 1, res.Total, "default cap applies when no max is given")

	res = imp.ImportRepository(context.Background(), "github.com/acme/jobs", model.RepoFilters{}, 50)
	assert.Equal(t, 2, res.Total, "requested max is clamped to the configured limit")
}

func TestImportRepository_ReadmeNotFound(t *testing.T) {
	f := &fakeFetcher{}
	imp := newImporter(f, &fakeLimiter{}, importer.Config{RawContentURL: "https://raw.test"})

	res := imp.ImportRepository(context.Background(), "https://github.com/acme/empty", model.RepoFilters{}, 10)

	assert.False(t, res.Success)
	assert.Equal(t, ingesterrors.CodeReadmeNotFound, res.Error.Code)
	assert.Len(t, f.calls, 3)
	assert.Empty(t, res.Postings)
}

func TestImportRepository_InvalidURL(t *testing.T) {
	f := &fakeFetcher{}
	imp := newImporter(f, &fakeLimiter{}, importer.Config{})

	for _, u := range []string{"https://gitlab.com/acme/jobs", "github.com/acme", "not a url"} {
		res := imp.ImportRepository(context.Background(), u, model.RepoFilters{}, 10)
		assert.False(t, res.Success, u)
		assert.Equal(t, ingesterrors.CodeInvalidRepositoryURL, res.Error.Code, u)
	}
	assert.Empty(t, f.calls)
}

func TestParseRepositoryURL(t *testing.T) {
	owner, repo, ok := importer.ParseRepositoryURL("https://github.com/SimplifyJobs/Summer2025-Internships.git")
	require.True(t, ok)
	assert.Equal(t, "SimplifyJobs", owner)
	assert.Equal(t, "Summer2025-Internships", repo)

	owner, repo, ok = importer.ParseRepositoryURL("https://www.github.com/acme/jobs/blob/main/README.md")
	require.True(t, ok)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "jobs", repo)
}

func TestBulkImport_CountsAndConcurrencyCap(t *testing.T) {
	const total = 23
	f := &fakeFetcher{
		pages: map[string]string{},
		errs:  map[string]error{},
		delay: 10 * time.Millisecond,
	}
	var urls []string
	failing := 0
	for n := 0; n < total; n++ {
		u := fmt.Sprintf("https://acme.example/jobs/%d", n)
		urls = append(urls, u)
		switch n % 4 {
		case 0:
			f.errs[u] = ingesterrors.HTTP(503, "unavailable")
			failing++
		case 1:
			f.pages[u] = "<html></html>" // no title
			failing++
		default:
			f.pages[u] = posting(fmt.Sprintf("Role %d", n))
		}
	}

	imp := newImporter(f, &fakeLimiter{}, importer.Config{BulkConcurrency: 3})
	res := imp.BulkImport(context.Background(), urls, nil)

	assert.Equal(t, total, res.TotalRequested)
	assert.Equal(t, total, res.SuccessCount+res.ErrorCount)
	assert.Equal(t, failing, res.ErrorCount)
	assert.Len(t, res.Results, total)
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
	assert.Greater(t, f.peak.Load(), int32(1), "imports should overlap")

	for idx, r := range res.Results {
		assert.Equal(t, urls[idx], r.URL, "results keep input order")
	}
}

func TestBulkImport_PersistFailureIsAWarning(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://acme.example/jobs/a": posting("A"),
		"https://acme.example/jobs/b": posting("B"),
	}}
	persist := func(ctx context.Context, p model.Posting) (string, error) {
		if p.Title == "B" {
			return "", errors.New("db down")
		}
		return "id-" + p.Title, nil
	}

	res := newImporter(f, &fakeLimiter{}, importer.Config{}).BulkImport(context.Background(),
		[]string{"https://acme.example/jobs/a", "https://acme.example/jobs/b"}, persist)

	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 0, res.ErrorCount)
	assert.Equal(t, "id-A", res.Results[0].PostingID)
	assert.Empty(t, res.Results[0].Warnings)
	assert.Empty(t, res.Results[1].PostingID)
	require.Len(t, res.Results[1].Warnings, 1)
	assert.Contains(t, res.Results[1].Warnings[0], "db down")
}

func TestBulkImport_CancelledContextStillAccountsForEveryURL(t *testing.T) {
	f := &fakeFetcher{delay: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	urls := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	res := newImporter(f, &fakeLimiter{}, importer.Config{BulkConcurrency: 1}).BulkImport(ctx, urls, nil)

	assert.Equal(t, 3, res.TotalRequested)
	assert.Equal(t, 3, res.SuccessCount+res.ErrorCount)
}

func TestValidateBulk(t *testing.T) {
	imp := newImporter(&fakeFetcher{}, &fakeLimiter{}, importer.Config{BulkMaxURLs: 2})

	assert.NoError(t, imp.ValidateBulk([]string{"a", "b"}))
	assert.ErrorIs(t, imp.ValidateBulk([]string{"a", "b", "c"}), importer.ErrTooManyURLs)
	assert.Error(t, imp.ValidateBulk(nil))
}
