package scheduler

import (
	"errors"
	"slices"
	"time"

	"jobmate/job-ingest/internal/model"
)

const (
	MinIntervalMinutes = 5
	MaxIntervalMinutes = 1440
)

var (
	ErrJobNotFound       = errors.New("scheduled job not found")
	ErrJobRunning        = errors.New("scheduled job is already running")
	ErrJobExists         = errors.New("scheduled job already exists")
	ErrInvalidInterval   = errors.New("interval_minutes must be between 5 and 1440")
	ErrInvalidSource     = errors.New("unknown source")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// Job is a recurring scrape owned by one user.
type Job struct {
	ID              string               `json:"id"`
	OwnerID         string               `json:"ownerId"`
	Name            string               `json:"name"`
	Source          model.Source         `json:"source"`
	IntervalMinutes int                  `json:"intervalMinutes"`
	Criteria        model.ScrapeCriteria `json:"criteria"`
	Feeds           []string             `json:"feeds,omitempty"`
	Enabled         bool                 `json:"enabled"`
	Status          Status               `json:"status"`

	LastRun          *time.Time `json:"lastRun,omitempty"`
	NextRun          *time.Time `json:"nextRun,omitempty"`
	LastResult       string     `json:"lastResult,omitempty"`
	JobsFoundLastRun int        `json:"jobsFoundLastRun"`
	TotalJobsFound   int        `json:"totalJobsFound"`
	ErrorCount       int        `json:"errorCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (j Job) interval() time.Duration {
	return time.Duration(j.IntervalMinutes) * time.Minute
}

func (j Job) clone() Job {
	j.Feeds = slices.Clone(j.Feeds)
	return j
}

// JobConfig describes a job to create. A nil Enabled means enabled.
type JobConfig struct {
	ID              string               `json:"-"`
	Name            string               `json:"name"`
	Source          model.Source         `json:"source"`
	IntervalMinutes int                  `json:"intervalMinutes"`
	Criteria        model.ScrapeCriteria `json:"criteria"`
	Feeds           []string             `json:"feeds,omitempty"`
	Enabled         *bool                `json:"enabled,omitempty"`
}

// JobUpdate carries the mutable fields; nil fields are left unchanged.
type JobUpdate struct {
	Name            *string               `json:"name,omitempty"`
	IntervalMinutes *int                  `json:"intervalMinutes,omitempty"`
	Criteria        *model.ScrapeCriteria `json:"criteria,omitempty"`
	Feeds           *[]string             `json:"feeds,omitempty"`
	Enabled         *bool                 `json:"enabled,omitempty"`
}

// TriggerResult summarises one execution.
type TriggerResult struct {
	JobID       string    `json:"jobId"`
	Success     bool      `json:"success"`
	JobsFound   int       `json:"jobsFound"`
	NewJobs     int       `json:"newJobs"`
	FeedErrors  []string  `json:"feedErrors,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

func validInterval(minutes int) bool {
	return minutes >= MinIntervalMinutes && minutes <= MaxIntervalMinutes
}
