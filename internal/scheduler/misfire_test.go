package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/scraper"
)

type countingRunner struct{ calls atomic.Int32 }

func (r *countingRunner) Scrape(ctx context.Context, src model.Source, criteria model.ScrapeCriteria, feeds []string) (*scraper.ScrapeResult, error) {
	r.calls.Add(1)
	return &scraper.ScrapeResult{Source: src}, nil
}

type testClock struct{ now atomic.Int64 }

func (c *testClock) Now() time.Time          { return time.Unix(0, c.now.Load()).UTC() }
func (c *testClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func newTestScheduler(t *testing.T) (*Scheduler, *countingRunner, *testClock) {
	t.Helper()
	clock := &testClock{}
	clock.now.Store(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixNano())
	runner := &countingRunner{}
	s := New(runner, zap.NewNop(), WithClock(clock.Now))
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, runner, clock
}

func TestFire_WithinGraceRuns(t *testing.T) {
	s, runner, clock := newTestScheduler(t)
	job, err := s.Add("u1", JobConfig{Source: model.SourceGitHub, IntervalMinutes: 30})
	require.NoError(t, err)

	clock.Advance(30*time.Minute + 2*time.Minute)
	s.fire(job.ID)

	assert.EqualValues(t, 1, runner.calls.Load())
	got, _ := s.Get(job.ID, "u1")
	assert.Equal(t, clock.Now().Add(30*time.Minute), *got.NextRun)
}

func TestFire_PastGraceDropped(t *testing.T) {
	s, runner, clock := newTestScheduler(t)
	job, err := s.Add("u1", JobConfig{Source: model.SourceGitHub, IntervalMinutes: 30})
	require.NoError(t, err)

	clock.Advance(30*time.Minute + DefaultMisfireGrace + time.Second)
	s.fire(job.ID)

	assert.EqualValues(t, 0, runner.calls.Load())
	got, _ := s.Get(job.ID, "u1")
	assert.Equal(t, clock.Now().Add(30*time.Minute), *got.NextRun)
	assert.Nil(t, got.LastRun)
}

func TestFire_SkippedWhilePaused(t *testing.T) {
	s, runner, clock := newTestScheduler(t)
	job, err := s.Add("u1", JobConfig{Source: model.SourceGitHub, IntervalMinutes: 30})
	require.NoError(t, err)

	s.Pause()
	clock.Advance(30 * time.Minute)
	s.fire(job.ID)

	assert.EqualValues(t, 0, runner.calls.Load())
}

func TestFire_SuppressedWhileRunning(t *testing.T) {
	s, runner, clock := newTestScheduler(t)
	job, err := s.Add("u1", JobConfig{Source: model.SourceGitHub, IntervalMinutes: 30})
	require.NoError(t, err)

	s.jobs[job.ID].running.Store(true)
	clock.Advance(30 * time.Minute)
	s.fire(job.ID)

	assert.EqualValues(t, 0, runner.calls.Load())
	got, _ := s.Get(job.ID, "u1")
	assert.Equal(t, clock.Now().Add(30*time.Minute), *got.NextRun)
}

func TestResume_CatchUpWithinGrace(t *testing.T) {
	s, runner, clock := newTestScheduler(t)
	recent, err := s.Add("u1", JobConfig{Source: model.SourceGitHub, IntervalMinutes: 30})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	stale, err := s.Add("u1", JobConfig{Source: model.SourceGitHub, IntervalMinutes: 60})
	require.NoError(t, err)

	s.Pause()
	// recent missed its fire an hour ago, stale missed it two minutes ago.
	clock.Advance(62 * time.Minute)
	s.Resume()

	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	for _, id := range []string{recent.ID, stale.ID} {
		got, _ := s.Get(id, "u1")
		assert.Equal(t, clock.Now().Add(got.interval()), *got.NextRun)
	}
	assert.Eventually(t, func() bool {
		got, _ := s.Get(stale.ID, "u1")
		return got.LastRun != nil
	}, time.Second, 5*time.Millisecond)
	got, _ := s.Get(recent.ID, "u1")
	assert.Nil(t, got.LastRun)
}
