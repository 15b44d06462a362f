package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/telemetry"
)

// RedisPublisher publishes events on a redis pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

// NewRedisPublisher returns a publisher on RedisChannel. The client is owned
// by the caller unless Close is called.
func NewRedisPublisher(rdb *redis.Client, log *zap.Logger) *RedisPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, channel: RedisChannel, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	ctx, span := telemetry.GetTracer("notify").Start(ctx, "notify.RedisPublish")
	defer span.End()

	data, err := marshal(event)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		telemetry.String("redis.channel", p.channel),
		telemetry.Int("message.size", len(data)),
	)

	receivers, err := p.rdb.Publish(ctx, p.channel, data).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		p.log.Error("publish failed",
			zap.String("channel", p.channel),
			zap.String("job_id", event.JobID),
			zap.Error(err),
		)
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}

	p.log.Debug("published new postings",
		zap.String("channel", p.channel),
		zap.String("job_id", event.JobID),
		zap.Int("postings", event.Count),
		zap.Int64("receivers", receivers),
	)
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
