// Package scheduler runs recurring per-user scrape jobs on robfig/cron
// interval triggers, records their history and exposes owner-scoped
// management operations.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/scraper"
	"jobmate/job-ingest/internal/source"
	"jobmate/job-ingest/internal/telemetry"
)

// DefaultMisfireGrace bounds how late a fire may run before it is dropped.
const DefaultMisfireGrace = 5 * time.Minute

// Runner executes one scrape.
type Runner interface {
	Scrape(ctx context.Context, src model.Source, criteria model.ScrapeCriteria, feeds []string) (*scraper.ScrapeResult, error)
}

// ResultSink receives successful executions that found new postings.
type ResultSink func(ctx context.Context, job Job, res *scraper.ScrapeResult)

type entry struct {
	job     Job
	cronID  cron.EntryID
	running atomic.Bool
}

// Scheduler wraps robfig/cron and owns the job registry.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]*entry
	runner  Runner
	sink    ResultSink
	clock   func() time.Time
	grace   time.Duration
	log     *zap.Logger
	ctx     context.Context
	started bool
	paused  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for run bookkeeping.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithMisfireGrace sets how late a fire may run before it is dropped.
func WithMisfireGrace(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithResultSink sets the sink called after successful executions with new
// postings.
func WithResultSink(sink ResultSink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// New creates a Scheduler. It does not fire anything until Start.
func New(runner Runner, log *zap.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		jobs:   make(map[string]*entry),
		runner: runner,
		clock:  time.Now,
		grace:  DefaultMisfireGrace,
		log:    log,
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{log.Sugar()})))
	return s
}

// Start starts the trigger engine. Fires run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx = ctx
	s.started = true
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop stops the trigger engine and waits for running executions until ctx
// is done. Executions in flight are not interrupted.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for running jobs")
	}
	s.log.Info("scheduler stopped")
}

// Pause suppresses every fire until Resume. Per-job enabled flags are not
// changed.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.log.Info("scheduler paused")
}

// Resume lifts a Pause. Each enabled job whose fire was missed while paused
// runs once if the miss is within the misfire grace; older misses are
// dropped. Every enabled job is rescheduled one interval from now.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	now := s.clock()
	ctx := s.ctx

	var catchUp []*entry
	for _, e := range s.jobs {
		if !e.job.Enabled {
			continue
		}
		if e.job.NextRun != nil && now.After(*e.job.NextRun) {
			if now.Sub(*e.job.NextRun) <= s.grace {
				catchUp = append(catchUp, e)
			} else {
				s.log.Info("missed fire dropped", zap.String("job_id", e.job.ID), zap.Time("next_run", *e.job.NextRun))
			}
		}
		s.schedule(e)
	}
	s.mu.Unlock()

	s.log.Info("scheduler resumed", zap.Int("catch_up_runs", len(catchUp)))
	for _, e := range catchUp {
		go s.execute(ctx, e, false)
	}
}

// Running reports whether the engine is started and not paused.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.paused
}

// Add registers a new job for ownerID.
func (s *Scheduler) Add(ownerID string, cfg JobConfig) (Job, error) {
	if !validInterval(cfg.IntervalMinutes) {
		return Job{}, ErrInvalidInterval
	}
	if !source.IsKnown(cfg.Source) {
		return Job{}, fmt.Errorf("%w: %q", ErrInvalidSource, cfg.Source)
	}
	if !scraper.HasFeeds(cfg.Source, cfg.Feeds) {
		return Job{}, fmt.Errorf("%w: %s", scraper.ErrNoFeeds, cfg.Source)
	}

	now := s.clock()
	enabled := cfg.Enabled == nil || *cfg.Enabled
	job := Job{
		ID:              cfg.ID,
		OwnerID:         ownerID,
		Name:            strings.TrimSpace(cfg.Name),
		Source:          cfg.Source,
		IntervalMinutes: cfg.IntervalMinutes,
		Criteria:        cfg.Criteria,
		Feeds:           cfg.Feeds,
		Enabled:         enabled,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Name == "" {
		job.Name = fmt.Sprintf("%s scrape", cfg.Source)
	}
	if !enabled {
		job.Status = StatusPaused
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	e := &entry{job: job}
	if enabled {
		s.schedule(e)
	}
	s.jobs[job.ID] = e

	s.log.Info("scheduled job added",
		zap.String("job_id", job.ID),
		zap.String("owner_id", ownerID),
		zap.String("source", string(job.Source)),
		zap.Int("interval_minutes", job.IntervalMinutes),
	)
	return e.job.clone(), nil
}

// Load registers jobs from stored search configs, keeping their IDs. Invalid
// configs are skipped. It returns how many were loaded.
func (s *Scheduler) Load(configs []model.SearchConfig) int {
	loaded := 0
	for _, c := range configs {
		enabled := c.Enabled
		_, err := s.Add(c.UserID, JobConfig{
			ID:              c.ID,
			Name:            c.Name,
			Source:          c.Source,
			IntervalMinutes: c.IntervalMinutes,
			Criteria:        c.Criteria,
			Feeds:           c.Feeds,
			Enabled:         &enabled,
		})
		if err != nil {
			s.log.Warn("skipping search config", zap.String("config_id", c.ID), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded
}

// Remove cancels and deletes a job. It returns false when the job does not
// exist or belongs to someone else. A run already in progress completes.
func (s *Scheduler) Remove(jobID, ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID]
	if !ok || e.job.OwnerID != ownerID {
		return false
	}
	s.unschedule(e)
	delete(s.jobs, jobID)
	s.log.Info("scheduled job removed", zap.String("job_id", jobID))
	return true
}

// Get returns the job when it exists and belongs to ownerID.
func (s *Scheduler) Get(jobID, ownerID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID]
	if !ok || e.job.OwnerID != ownerID {
		return Job{}, false
	}
	return e.job.clone(), true
}

// List returns ownerID's jobs, oldest first.
func (s *Scheduler) List(ownerID string) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0)
	for _, e := range s.jobs {
		if e.job.OwnerID == ownerID {
			out = append(out, e.job.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update applies the non-nil fields of u. Changing the interval reschedules
// the trigger; changing Enabled adds or removes it.
func (s *Scheduler) Update(jobID, ownerID string, u JobUpdate) (Job, error) {
	if u.IntervalMinutes != nil && !validInterval(*u.IntervalMinutes) {
		return Job{}, ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[jobID]
	if !ok || e.job.OwnerID != ownerID {
		return Job{}, ErrJobNotFound
	}

	job := &e.job
	if u.Feeds != nil && !scraper.HasFeeds(job.Source, *u.Feeds) {
		return Job{}, fmt.Errorf("%w: %s", scraper.ErrNoFeeds, job.Source)
	}
	if u.Enabled != nil && *u.Enabled != job.Enabled {
		target := StatusPaused
		if *u.Enabled {
			target = StatusActive
		}
		if !IsTransitionAllowed(job.Status, target) {
			return Job{}, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, job.Status, target)
		}
	}

	if u.Name != nil {
		job.Name = strings.TrimSpace(*u.Name)
	}
	if u.Criteria != nil {
		job.Criteria = *u.Criteria
	}
	if u.Feeds != nil {
		job.Feeds = slices.Clone(*u.Feeds)
	}

	reschedule := false
	if u.IntervalMinutes != nil && *u.IntervalMinutes != job.IntervalMinutes {
		job.IntervalMinutes = *u.IntervalMinutes
		reschedule = job.Enabled
	}

	if u.Enabled != nil && *u.Enabled != job.Enabled {
		job.Enabled = *u.Enabled
		if job.Enabled {
			// A failed job stays failed until it next succeeds.
			if job.Status == StatusPaused {
				job.Status = StatusActive
			}
			reschedule = true
		} else {
			job.Status = StatusPaused
			s.unschedule(e)
			reschedule = false
		}
	}

	if reschedule {
		s.schedule(e)
	}
	job.UpdatedAt = s.clock()

	s.log.Info("scheduled job updated", zap.String("job_id", jobID))
	return job.clone(), nil
}

// PauseJob disables a single job.
func (s *Scheduler) PauseJob(jobID, ownerID string) (Job, error) {
	disabled := false
	return s.Update(jobID, ownerID, JobUpdate{Enabled: &disabled})
}

// ResumeJob re-enables a single job.
func (s *Scheduler) ResumeJob(jobID, ownerID string) (Job, error) {
	enabled := true
	return s.Update(jobID, ownerID, JobUpdate{Enabled: &enabled})
}

// Trigger runs the job now and returns when the execution finishes. The
// recurring schedule and NextRun are left untouched. A job already running
// yields a failed result carrying ErrJobRunning.
func (s *Scheduler) Trigger(ctx context.Context, jobID, ownerID string) (TriggerResult, error) {
	s.mu.Lock()
	e, ok := s.jobs[jobID]
	if !ok || e.job.OwnerID != ownerID {
		s.mu.Unlock()
		return TriggerResult{}, ErrJobNotFound
	}
	s.mu.Unlock()

	return s.execute(ctx, e, true), nil
}

// schedule (re)registers the cron trigger and sets NextRun one interval
// from now. Callers hold s.mu.
func (s *Scheduler) schedule(e *entry) {
	s.unschedule(e)
	id := e.job.ID
	e.cronID = s.cron.Schedule(cron.Every(e.job.interval()), cron.FuncJob(func() { s.fire(id) }))
	next := s.clock().Add(e.job.interval())
	e.job.NextRun = &next
}

// unschedule removes the cron trigger. Callers hold s.mu.
func (s *Scheduler) unschedule(e *entry) {
	if e.cronID != 0 {
		s.cron.Remove(e.cronID)
		e.cronID = 0
	}
	e.job.NextRun = nil
}

// fire is the cron callback for one job.
func (s *Scheduler) fire(jobID string) {
	s.mu.Lock()
	e, ok := s.jobs[jobID]
	if !ok || s.paused || !e.job.Enabled {
		s.mu.Unlock()
		return
	}
	now := s.clock()
	if e.job.NextRun != nil && now.Sub(*e.job.NextRun) > s.grace {
		s.log.Warn("missed fire dropped",
			zap.String("job_id", jobID),
			zap.Time("next_run", *e.job.NextRun),
			zap.Duration("late_by", now.Sub(*e.job.NextRun)),
		)
		next := now.Add(e.job.interval())
		e.job.NextRun = &next
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.execute(ctx, e, false)
}

// execute runs one scrape for the job and records the outcome. Scheduled
// runs advance NextRun; manual ones do not.
func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) TriggerResult {
	started := s.clock()

	if !e.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		jobID := e.job.ID
		if !manual && e.job.Enabled {
			next := started.Add(e.job.interval())
			e.job.NextRun = &next
		}
		s.mu.Unlock()
		s.log.Info("execution suppressed, job still running", zap.String("job_id", jobID), zap.Bool("manual", manual))
		return TriggerResult{
			JobID:       jobID,
			Error:       ErrJobRunning.Error(),
			StartedAt:   started,
			CompletedAt: started,
		}
	}
	defer e.running.Store(false)

	s.mu.Lock()
	job := e.job.clone()
	s.mu.Unlock()

	ctx, span := telemetry.GetTracer("scheduler").Start(ctx, "scheduler.execute")
	defer span.End()
	span.SetAttributes(
		telemetry.String("job_id", job.ID),
		telemetry.String("source", string(job.Source)),
		telemetry.Bool("manual", manual),
	)

	res, err := s.runner.Scrape(ctx, job.Source, job.Criteria, job.Feeds)
	now := s.clock()

	result := TriggerResult{JobID: job.ID, StartedAt: started, CompletedAt: now}

	s.mu.Lock()
	j := &e.job
	j.LastRun = &now
	j.UpdatedAt = now
	if !manual && j.Enabled {
		next := now.Add(j.interval())
		j.NextRun = &next
	}

	if err != nil {
		j.ErrorCount++
		j.LastResult = "error: " + err.Error()
		s.transition(j, StatusFailed)
		result.Error = err.Error()
	} else {
		j.ErrorCount = 0
		j.JobsFoundLastRun = len(res.All)
		j.TotalJobsFound += len(res.New)
		j.LastResult = fmt.Sprintf("found %d postings, %d new", len(res.All), len(res.New))
		s.transition(j, StatusActive)
		result.Success = true
		result.JobsFound = len(res.All)
		result.NewJobs = len(res.New)
		result.FeedErrors = res.Errors
	}
	snapshot := j.clone()
	s.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		s.log.Error("scheduled scrape failed",
			zap.String("job_id", job.ID),
			zap.Bool("manual", manual),
			zap.Int("error_count", snapshot.ErrorCount),
			zap.Error(err),
		)
		return result
	}

	s.log.Info("scheduled scrape finished",
		zap.String("job_id", job.ID),
		zap.Bool("manual", manual),
		zap.Int("postings", result.JobsFound),
		zap.Int("new", result.NewJobs),
	)
	if s.sink != nil && len(res.New) > 0 {
		s.sink(ctx, snapshot, res)
	}
	return result
}

// transition moves j to target when the state machine allows it. A disabled
// job keeps its status when run manually. Callers hold s.mu.
func (s *Scheduler) transition(j *Job, target Status) {
	if !j.Enabled {
		return
	}
	if IsTransitionAllowed(j.Status, target) {
		j.Status = target
	}
}

// cronLogger routes robfig/cron logs through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
