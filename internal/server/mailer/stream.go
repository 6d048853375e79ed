package mailer

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StreamProducer appends messages to a Redis stream with XADD.
type StreamProducer struct {
	redis  redis.UniversalClient
	stream string
}

func NewStreamProducer(client redis.UniversalClient, stream string) *StreamProducer {
	return &StreamProducer{redis: client, stream: stream}
}

func (p *StreamProducer) Publish(ctx context.Context, msg Message) error {
	err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
			"content": msg.Content,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
