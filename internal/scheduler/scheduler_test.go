package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/scheduler"
	"jobmate/job-ingest/internal/scraper"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
	res   *scraper.ScrapeResult
	block chan struct{}
}

func (r *fakeRunner) Scrape(ctx context.Context, src model.Source, criteria model.ScrapeCriteria, feeds []string) (*scraper.ScrapeResult, error) {
	r.mu.Lock()
	r.calls++
	block, err, res := r.block, r.err, r.res
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &scraper.ScrapeResult{Source: src}
	}
	return res, nil
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRunner) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func newScheduler(t *testing.T, runner scheduler.Runner, opts ...scheduler.Option) (*scheduler.Scheduler, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]scheduler.Option{scheduler.WithClock(clock.Now)}, opts...)
	s := scheduler.New(runner, zap.NewNop(), opts...)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, clock
}

func githubJob(interval int) scheduler.JobConfig {
	return scheduler.JobConfig{
		Name:            "internships",
		Source:          model.SourceGitHub,
		IntervalMinutes: interval,
		Criteria:        model.ScrapeCriteria{Keywords: []string{"intern"}},
	}
}

func TestAdd_SchedulesNextRun(t *testing.T) {
	s, clock := newScheduler(t, &fakeRunner{})

	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "u1", job.OwnerID)
	assert.True(t, job.Enabled)
	assert.Equal(t, scheduler.StatusActive, job.Status)
	require.NotNil(t, job.NextRun)
	assert.Equal(t, clock.Now().Add(60*time.Minute), *job.NextRun)
	assert.Nil(t, job.LastRun)
}

func TestAdd_Validation(t *testing.T) {
	s, _ := newScheduler(t, &fakeRunner{})

	_, err := s.Add("u1", githubJob(4))
	assert.ErrorIs(t, err, scheduler.ErrInvalidInterval)

	_, err = s.Add("u1", githubJob(1441))
	assert.ErrorIs(t, err, scheduler.ErrInvalidInterval)

	cfg := githubJob(30)
	cfg.Source = "myspace"
	_, err = s.Add("u1", cfg)
	assert.ErrorIs(t, err, scheduler.ErrInvalidSource)

	cfg = githubJob(30)
	cfg.Source = model.SourceLinkedIn
	_, err = s.Add("u1", cfg)
	assert.ErrorIs(t, err, scraper.ErrNoFeeds, "no feeds and no defaults for the source")

	cfg.Feeds = []string{"https://www.linkedin.com/jobs/view/1"}
	_, err = s.Add("u1", cfg)
	assert.NoError(t, err)

	_, err = s.Add("u1", githubJob(5))
	assert.NoError(t, err)
	_, err = s.Add("u1", githubJob(1440))
	assert.NoError(t, err)
}

func TestAdd_Disabled(t *testing.T) {
	s, _ := newScheduler(t, &fakeRunner{})

	disabled := false
	cfg := githubJob(30)
	cfg.Enabled = &disabled
	job, err := s.Add("u1", cfg)
	require.NoError(t, err)

	assert.False(t, job.Enabled)
	assert.Equal(t, scheduler.StatusPaused, job.Status)
	assert.Nil(t, job.NextRun)
}

func TestRemove_OwnerScoped(t *testing.T) {
	s, _ := newScheduler(t, &fakeRunner{})
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	assert.False(t, s.Remove(job.ID, "u2"))
	_, ok := s.Get(job.ID, "u1")
	assert.True(t, ok)

	assert.True(t, s.Remove(job.ID, "u1"))
	_, ok = s.Get(job.ID, "u1")
	assert.False(t, ok)
	assert.False(t, s.Remove(job.ID, "u1"))
}

func TestGetAndList_OwnerScoped(t *testing.T) {
	s, clock := newScheduler(t, &fakeRunner{})
	a, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)
	clock.Advance(time.Second)
	b, err := s.Add("u1", githubJob(30))
	require.NoError(t, err)
	_, err = s.Add("u2", githubJob(30))
	require.NoError(t, err)

	_, ok := s.Get(a.ID, "u2")
	assert.False(t, ok)

	jobs := s.List("u1")
	require.Len(t, jobs, 2)
	assert.Equal(t, a.ID, jobs[0].ID)
	assert.Equal(t, b.ID, jobs[1].ID)
	assert.Empty(t, s.List("nobody"))
}

func TestTrigger_RunsSynchronouslyAndKeepsNextRun(t *testing.T) {
	runner := &fakeRunner{res: &scraper.ScrapeResult{
		All: []model.Posting{{Title: "A"}, {Title: "B"}, {Title: "C"}},
		New: []model.Posting{{Title: "A"}},
	}}
	s, clock := newScheduler(t, runner)
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	res, err := s.Trigger(context.Background(), job.ID, "u1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.JobsFound)
	assert.Equal(t, 1, res.NewJobs)
	assert.Equal(t, 1, runner.Calls())

	got, ok := s.Get(job.ID, "u1")
	require.True(t, ok)
	assert.Equal(t, *job.NextRun, *got.NextRun, "manual runs leave the schedule alone")
	require.NotNil(t, got.LastRun)
	assert.Equal(t, clock.Now(), *got.LastRun)
	assert.Equal(t, 3, got.JobsFoundLastRun)
	assert.Equal(t, 1, got.TotalJobsFound)
	assert.Contains(t, got.LastResult, "3 postings")
}

func TestTrigger_NotFound(t *testing.T) {
	s, _ := newScheduler(t, &fakeRunner{})
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	_, err = s.Trigger(context.Background(), job.ID, "u2")
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
	_, err = s.Trigger(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
}

func TestTrigger_AlreadyRunning(t *testing.T) {
	block := make(chan struct{})
	runner := &fakeRunner{block: block}
	s, _ := newScheduler(t, runner)
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	done := make(chan scheduler.TriggerResult)
	go func() {
		res, _ := s.Trigger(context.Background(), job.ID, "u1")
		done <- res
	}()
	require.Eventually(t, func() bool { return runner.Calls() == 1 }, time.Second, 5*time.Millisecond)

	res, err := s.Trigger(context.Background(), job.ID, "u1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, scheduler.ErrJobRunning.Error(), res.Error)

	close(block)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, 1, runner.Calls())
}

func TestTrigger_FailuresThenRecovery(t *testing.T) {
	runner := &fakeRunner{err: errors.New("upstream down")}
	s, _ := newScheduler(t, runner)
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := s.Trigger(context.Background(), job.ID, "u1")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "upstream down", res.Error)
	}

	got, _ := s.Get(job.ID, "u1")
	assert.Equal(t, 3, got.ErrorCount)
	assert.Equal(t, scheduler.StatusFailed, got.Status)
	assert.Contains(t, got.LastResult, "upstream down")
	assert.True(t, got.Enabled, "failures never disable a job")

	runner.SetErr(nil)
	res, err := s.Trigger(context.Background(), job.ID, "u1")
	require.NoError(t, err)
	assert.True(t, res.Success)

	got, _ = s.Get(job.ID, "u1")
	assert.Equal(t, 0, got.ErrorCount)
	assert.Equal(t, scheduler.StatusActive, got.Status)
}

func TestTrigger_PausedJobStaysPaused(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newScheduler(t, runner)
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	_, err = s.PauseJob(job.ID, "u1")
	require.NoError(t, err)

	res, err := s.Trigger(context.Background(), job.ID, "u1")
	require.NoError(t, err)
	assert.True(t, res.Success)

	got, _ := s.Get(job.ID, "u1")
	assert.Equal(t, scheduler.StatusPaused, got.Status)
	assert.Nil(t, got.NextRun)
	assert.NotNil(t, got.LastRun)
}

func TestUpdate_ReschedulesOnIntervalChange(t *testing.T) {
	s, clock := newScheduler(t, &fakeRunner{})
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	interval := 15
	name := "  renamed  "
	got, err := s.Update(job.ID, "u1", scheduler.JobUpdate{IntervalMinutes: &interval, Name: &name})
	require.NoError(t, err)

	assert.Equal(t, 15, got.IntervalMinutes)
	assert.Equal(t, "renamed", got.Name)
	require.NotNil(t, got.NextRun)
	assert.Equal(t, clock.Now().Add(15*time.Minute), *got.NextRun)
}

func TestUpdate_KeepsScheduleWhenIntervalUnchanged(t *testing.T) {
	s, clock := newScheduler(t, &fakeRunner{})
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	feeds := []string{"https://github.com/acme/jobs"}
	got, err := s.Update(job.ID, "u1", scheduler.JobUpdate{Feeds: &feeds})
	require.NoError(t, err)

	assert.Equal(t, feeds, got.Feeds)
	assert.Equal(t, *job.NextRun, *got.NextRun)
}

func TestUpdate_Errors(t *testing.T) {
	s, _ := newScheduler(t, &fakeRunner{})
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	bad := 2
	_, err = s.Update(job.ID, "u1", scheduler.JobUpdate{IntervalMinutes: &bad})
	assert.ErrorIs(t, err, scheduler.ErrInvalidInterval)

	_, err = s.Update(job.ID, "u2", scheduler.JobUpdate{})
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound)

	none := []string{}
	_, err = s.Update(job.ID, "u1", scheduler.JobUpdate{Feeds: &none})
	assert.NoError(t, err, "github falls back to its default feeds")

	cfg := githubJob(60)
	cfg.Source = model.SourceLever
	cfg.Feeds = []string{"https://jobs.lever.co/acme/1"}
	lever, err := s.Add("u1", cfg)
	require.NoError(t, err)

	_, err = s.Update(lever.ID, "u1", scheduler.JobUpdate{Feeds: &none})
	assert.ErrorIs(t, err, scraper.ErrNoFeeds)
	got, _ := s.Get(lever.ID, "u1")
	assert.Equal(t, cfg.Feeds, got.Feeds)
}

func TestPauseAndResumeJob(t *testing.T) {
	s, clock := newScheduler(t, &fakeRunner{})
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	paused, err := s.PauseJob(job.ID, "u1")
	require.NoError(t, err)
	assert.False(t, paused.Enabled)
	assert.Equal(t, scheduler.StatusPaused, paused.Status)
	assert.Nil(t, paused.NextRun)

	clock.Advance(5 * time.Minute)
	resumed, err := s.ResumeJob(job.ID, "u1")
	require.NoError(t, err)
	assert.True(t, resumed.Enabled)
	assert.Equal(t, scheduler.StatusActive, resumed.Status)
	require.NotNil(t, resumed.NextRun)
	assert.Equal(t, clock.Now().Add(60*time.Minute), *resumed.NextRun)
}

func TestResultSink(t *testing.T) {
	var (
		mu     sync.Mutex
		sunk   []string
		sunkN  int
		runner = &fakeRunner{res: &scraper.ScrapeResult{
			All: []model.Posting{{Title: "A"}, {Title: "B"}},
			New: []model.Posting{{Title: "A"}, {Title: "B"}},
		}}
	)
	sink := func(ctx context.Context, job scheduler.Job, res *scraper.ScrapeResult) {
		mu.Lock()
		defer mu.Unlock()
		sunk = append(sunk, job.ID)
		sunkN += len(res.New)
	}
	s, _ := newScheduler(t, runner, scheduler.WithResultSink(sink))
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	_, err = s.Trigger(context.Background(), job.ID, "u1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{job.ID}, sunk)
	assert.Equal(t, 2, sunkN)
}

func TestResultSink_SkippedWithoutNewPostings(t *testing.T) {
	called := false
	runner := &fakeRunner{res: &scraper.ScrapeResult{All: []model.Posting{{Title: "A"}}}}
	s, _ := newScheduler(t, runner, scheduler.WithResultSink(func(context.Context, scheduler.Job, *scraper.ScrapeResult) {
		called = true
	}))
	job, err := s.Add("u1", githubJob(60))
	require.NoError(t, err)

	_, err = s.Trigger(context.Background(), job.ID, "u1")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestLoad(t *testing.T) {
	s, _ := newScheduler(t, &fakeRunner{})

	n := s.Load([]model.SearchConfig{
		{ID: "cfg-1", UserID: "u1", Name: "grad roles", Source: model.SourceGitHub, IntervalMinutes: 120, Enabled: true},
		{ID: "cfg-2", UserID: "u1", Name: "paused", Source: model.SourceLever, IntervalMinutes: 60, Feeds: []string{"https://jobs.lever.co/acme/1"}},
		{ID: "cfg-3", UserID: "u2", Name: "bad interval", Source: model.SourceGitHub, IntervalMinutes: 1},
	})
	assert.Equal(t, 2, n)

	one, ok := s.Get("cfg-1", "u1")
	require.True(t, ok)
	assert.True(t, one.Enabled)
	assert.NotNil(t, one.NextRun)

	two, ok := s.Get("cfg-2", "u1")
	require.True(t, ok)
	assert.False(t, two.Enabled)
	assert.Equal(t, scheduler.StatusPaused, two.Status)

	_, ok = s.Get("cfg-3", "u2")
	assert.False(t, ok)
}

func TestEnginePauseResume(t *testing.T) {
	s, _ := newScheduler(t, &fakeRunner{})
	assert.True(t, s.Running())

	s.Pause()
	assert.False(t, s.Running())

	s.Resume()
	assert.True(t, s.Running())
}
