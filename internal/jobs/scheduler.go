package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"todolist/internal/worker/queue"
)

// Enqueuer is satisfied by queue.Producer.
type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

type Scheduler struct {
	cron     *cron.Cron
	queue    Enqueuer
	schedule string
	log      zerolog.Logger
}

// NewScheduler takes a six-field cron expression (seconds first) for the refresh-token purge.
func NewScheduler(q Enqueuer, schedule string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		queue:    q,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.enqueuePurge); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("refresh token purge scheduled")
	return nil
}

// Stop waits for a running job to finish or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) enqueuePurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := s.queue.Enqueue(ctx, queue.Task{Type: queue.TaskPurgeRefreshTokens})
	if err != nil {
		s.log.Error().Err(err).Msg("enqueue refresh token purge failed")
		return
	}
	s.log.Debug().Str("message_id", id).Msg("refresh token purge enqueued")
}
