package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const TaskPurgeRefreshTokens = "purge_refresh_tokens"

// Task is the payload carried by one stream entry.
type Task struct {
	Type        string    `json:"type"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (t Task) values() map[string]any {
	return map[string]any{
		"type":        t.Type,
		"requestedAt": t.RequestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Producer appends tasks to the housekeeping stream.
type Producer struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream, maxLen: 1000}
}

func (p *Producer) Enqueue(ctx context.Context, task Task) (string, error) {
	if task.RequestedAt.IsZero() {
		task.RequestedAt = time.Now()
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: task.values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}
