package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"todolist/internal/worker/queue"
)

// RefreshTokenPurger is satisfied by repository.SessionRepository.
type RefreshTokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Processor struct {
	purger RefreshTokenPurger
	logger zerolog.Logger
}

func NewProcessor(purger RefreshTokenPurger, logger zerolog.Logger) *Processor {
	return &Processor{
		purger: purger,
		logger: logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var task queue.Task
	if err := decodePayload(msg.Values, &task); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch task.Type {
	case queue.TaskPurgeRefreshTokens:
		return p.purgeRefreshTokens(ctx, msg.ID)
	default:
		p.logger.Warn().Str("type", task.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *queue.Task) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

func (p *Processor) purgeRefreshTokens(ctx context.Context, messageID string) error {
	removed, err := p.purger.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge refresh tokens: %w", err)
	}
	p.logger.Info().
		Int64("removed", removed).
		Str("message_id", messageID).
		Msg("expired refresh tokens purged")
	return nil
}
