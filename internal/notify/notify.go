// Package notify publishes new-posting events for downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobmate/job-ingest/internal/model"
)

const (
	// EventNewPostings is the Type of every new-postings event, whichever
	// backend carries it.
	EventNewPostings = "new_postings"
	// RedisChannel is the pub/sub channel new-posting events go to.
	RedisChannel = "EVENT_NEW_POSTINGS"
	// NATSSubject is the subject new-posting events go to.
	NATSSubject = "jobs.new"
)

// Event announces postings a scheduled job had not seen before.
type Event struct {
	Type     string          `json:"type"`
	JobID    string          `json:"jobId"`
	UserID   string          `json:"userId"`
	Source   model.Source    `json:"source"`
	Count    int             `json:"count"`
	Postings []model.Posting `json:"postings"`
	At       time.Time       `json:"at"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(jobID, userID string, src model.Source, postings []model.Posting) Event {
	return Event{
		Type:     EventNewPostings,
		JobID:    jobID,
		UserID:   userID,
		Source:   src,
		Count:    len(postings),
		Postings: postings,
		At:       time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

func marshal(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

type nopPublisher struct {
	log *zap.Logger
}

// Nop returns a Publisher that only logs.
func Nop(log *zap.Logger) Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return nopPublisher{log: log}
}

func (p nopPublisher) Publish(_ context.Context, event Event) error {
	p.log.Debug("notification dropped, no backend configured",
		zap.String("job_id", event.JobID),
		zap.Int("postings", event.Count),
	)
	return nil
}

func (nopPublisher) Close() error { return nil }
