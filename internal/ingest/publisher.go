package ingest

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher is the producing side of the feed stream. The worker consumes
// what this enqueues.
type Publisher struct {
	client *redis.Client
	stream string
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// Enqueue appends one event to the feed stream and returns its stream id.
func (p *Publisher) Enqueue(ctx context.Context, kind string, payload []byte, traceID string) (string, error) {
	values := map[string]any{
		"kind":    kind,
		"payload": string(payload),
		"attempt": 1,
	}
	if traceID != "" {
		values["trace_id"] = traceID
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd (stream=%s): %w", p.stream, err)
	}
	return id, nil
}
