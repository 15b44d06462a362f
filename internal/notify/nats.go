package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/telemetry"
)

// NATSPublisher publishes events on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

// NewNATSPublisher connects to url and returns a publisher on NATSSubject.
func NewNATSPublisher(url string, timeout time.Duration, log *zap.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("job-ingest"),
		nats.Timeout(timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, subject: NATSSubject, log: log}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	_, span := telemetry.GetTracer("notify").Start(ctx, "notify.NATSPublish")
	defer span.End()

	data, err := marshal(event)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		telemetry.String("nats.subject", p.subject),
		telemetry.Int("message.size", len(data)),
	)

	if err := p.conn.Publish(p.subject, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		p.log.Error("publish failed",
			zap.String("subject", p.subject),
			zap.String("job_id", event.JobID),
			zap.Error(err),
		)
		return fmt.Errorf("nats publish %s: %w", p.subject, err)
	}

	p.log.Debug("published new postings",
		zap.String("subject", p.subject),
		zap.String("job_id", event.JobID),
		zap.Int("postings", event.Count),
	)
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		return p.conn.Drain()
	}
	return nil
}
