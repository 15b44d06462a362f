// Package ratelimit enforces a sliding one-minute request budget per source.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/source"
)

const (
	window              = time.Minute
	defaultPollInterval = 500 * time.Millisecond
)

// Limiter tracks request timestamps per source over the trailing minute.
// It is safe for concurrent use.
type Limiter struct {
	mu           sync.Mutex
	limits       map[model.Source]int
	fallback     int
	requests     map[model.Source][]time.Time
	clock        func() time.Time
	pollInterval time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) { l.clock = clock }
}

// WithLimits overrides the per-minute caps of the given sources.
func WithLimits(limits map[model.Source]int) Option {
	return func(l *Limiter) {
		for src, n := range limits {
			l.limits[src] = n
		}
	}
}

// WithPollInterval sets how often Wait re-checks the budget.
func WithPollInterval(d time.Duration) Option {
	return func(l *Limiter) { l.pollInterval = d }
}

// New builds a Limiter seeded with the default per-source caps.
func New(opts ...Option) *Limiter {
	defaults := source.DefaultLimits()
	l := &Limiter{
		limits:       defaults,
		fallback:     defaults[model.SourceCompanySite],
		requests:     make(map[model.Source][]time.Time),
		clock:        time.Now,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether another request to src fits in the current window.
// It does not consume budget; callers must Record admitted requests.
func (l *Limiter) Allow(src model.Source) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(src)) < l.limitFor(src)
}

// Record counts one request against src.
func (l *Limiter) Record(src model.Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests[src] = append(l.prune(src), l.clock())
}

// Acquire checks and records in one step, so concurrent callers cannot
// overshoot the cap between Allow and Record.
func (l *Limiter) Acquire(src model.Source) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	stamps := l.prune(src)
	if len(stamps) >= l.limitFor(src) {
		return false
	}
	l.requests[src] = append(stamps, l.clock())
	return true
}

// Wait blocks until a request to src is admitted or ctx ends.
func (l *Limiter) Wait(ctx context.Context, src model.Source) error {
	for {
		if l.Acquire(src) {
			return nil
		}
		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining returns how many requests src may still make in this window.
func (l *Limiter) Remaining(src model.Source) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.limitFor(src) - len(l.prune(src))
	if n < 0 {
		return 0
	}
	return n
}

// Limit returns the per-minute cap of src.
func (l *Limiter) Limit(src model.Source) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitFor(src)
}

func (l *Limiter) limitFor(src model.Source) int {
	if n, ok := l.limits[src]; ok {
		return n
	}
	return l.fallback
}

// prune drops timestamps that left the window. Callers hold l.mu.
func (l *Limiter) prune(src model.Source) []time.Time {
	stamps := l.requests[src]
	cutoff := l.clock().Add(-window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		stamps = append(stamps[:0], stamps[i:]...)
		l.requests[src] = stamps
	}
	return stamps
}
