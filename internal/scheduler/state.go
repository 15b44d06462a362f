package scheduler

import "fmt"

// Status of a scheduled scrape job.
//
// Valid status graph:
//
//	ACTIVE ◄──► PAUSED
//	  │  ▲        ▲
//	  ▼  │        │
//	 FAILED ──────┘
//
// ACTIVE → FAILED on an execution error, FAILED → ACTIVE on the next
// success. COMPLETED is accepted for parity with stored jobs but the
// scheduler never enters it.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusActive: {StatusPaused, StatusFailed},
	StatusPaused: {StatusActive},
	StatusFailed: {StatusActive, StatusPaused, StatusFailed},
	// COMPLETED is terminal
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusActive, StatusPaused, StatusFailed, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine. Staying in the same state is always allowed.
func IsTransitionAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
