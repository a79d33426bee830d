package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
)

// Alerter receives operator-facing events. telegram.OpsLogger implements it.
type Alerter interface {
	LogError(err error, context string)
	LogTaskCreated(t domain.Task)
	LogClaimSettled(p domain.Participation)
	LogSettlementHeld(p domain.Participation, reason string)
	LogVerificationExhausted(p domain.Participation, reason string)
}

func publish(ctx context.Context, pub notify.Publisher, ev notify.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("publish event", "type", ev.Type, "task_id", ev.TaskID, "error", err)
	}
}

func participationEvent(t notify.EventType, p domain.Participation, at time.Time) notify.Event {
	view := domain.NewParticipationView(p)
	return notify.Event{
		Type:          t,
		ParticipantID: p.ParticipantID,
		TaskID:        p.TaskID,
		Participation: &view,
		At:            at,
	}
}

func taskEvent(t notify.EventType, task domain.Task, at time.Time) notify.Event {
	view := domain.NewTaskView(task, at)
	return notify.Event{
		Type:   t,
		TaskID: task.ID,
		Task:   &view,
		At:     at,
	}
}

// RunEvery calls fn on every tick until ctx is done. Errors are logged and
// the loop keeps going.
func RunEvery(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				slog.Error("sweep failed", "sweep", name, "error", err)
			}
		}
	}
}
