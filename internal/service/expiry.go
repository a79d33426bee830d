package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
)

const expiryBatchSize = 500

// ExpirySweeper marks tasks past expiresAt as EXPIRED.
type ExpirySweeper struct {
	tasks  repository.TaskStore
	events notify.Publisher
	now    func() time.Time
}

func NewExpirySweeper(tasks repository.TaskStore, events notify.Publisher) *ExpirySweeper {
	return &ExpirySweeper{tasks: tasks, events: events, now: time.Now}
}

// Sweep returns the number of tasks it expired.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.tasks.ListExpirable(ctx, now, expiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expirable tasks: %w", err)
	}

	expired := 0
	for _, id := range ids {
		task, err := s.tasks.MarkExpired(ctx, id, now)
		if err != nil {
			slog.Error("mark task expired", "task_id", id, "error", err)
			continue
		}
		if task.Status != domain.TaskStatusExpired {
			continue
		}
		expired++
		publish(ctx, s.events, taskEvent(notify.EventTaskStatusChange, task, now))
	}

	if expired > 0 {
		slog.Info("tasks expired", "count", expired)
	}
	return expired, nil
}

func (s *ExpirySweeper) Run(ctx context.Context, interval time.Duration) {
	RunEvery(ctx, "expiry", interval, func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	})
}
