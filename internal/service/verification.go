package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
	"github.com/BernardOnuh/faucet-claim/internal/socialgraph"
)

type VerificationPolicy struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	Grace        time.Duration
	CheckTimeout time.Duration
	Concurrency  int
	BatchSize    int
}

// Backoff returns the delay before the next check after attempts failed checks.
func (p VerificationPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.BackoffBase
	for i := 1; i < attempts && (p.BackoffMax <= 0 || d < p.BackoffMax); i++ {
		d *= 2
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// VerificationCoordinator moves PENDING participations to VERIFIED or FAILED
// by asking the social graph whether the required actions happened.
type VerificationCoordinator struct {
	tasks   repository.TaskStore
	ledger  repository.ParticipationLedger
	checker socialgraph.Checker
	events  notify.Publisher
	alerts  Alerter
	policy  VerificationPolicy
	now     func() time.Time
}

func NewVerificationCoordinator(tasks repository.TaskStore, ledger repository.ParticipationLedger, checker socialgraph.Checker, events notify.Publisher, alerts Alerter, policy VerificationPolicy) *VerificationCoordinator {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Concurrency < 1 {
		policy.Concurrency = 1
	}
	return &VerificationCoordinator{
		tasks:   tasks,
		ledger:  ledger,
		checker: checker,
		events:  events,
		alerts:  alerts,
		policy:  policy,
		now:     time.Now,
	}
}

type SweepStats struct {
	Checked  int64
	Verified int64
	Failed   int64
	Deferred int64
}

// Sweep checks every due PENDING participation once. A failure on one
// participation is logged and does not stop the others.
func (c *VerificationCoordinator) Sweep(ctx context.Context) (SweepStats, error) {
	due, err := c.ledger.ListDue(ctx, domain.StatusPending, c.now(), c.policy.BatchSize)
	if err != nil {
		return SweepStats{}, fmt.Errorf("list due participations: %w", err)
	}

	var checked, verified, failed, deferred atomic.Int64
	tasks := newTaskCache(c.tasks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.policy.Concurrency)
	for _, p := range due {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			checked.Add(1)
			status, err := c.verify(gctx, tasks, p)
			if err != nil {
				if errors.Is(err, domain.ErrConflict) {
					slog.Debug("participation moved during verification", "participation_id", p.ID)
					return nil
				}
				slog.Error("verify participation", "participation_id", p.ID, "task_id", p.TaskID, "error", err)
				return nil
			}
			switch status {
			case domain.StatusVerified:
				verified.Add(1)
			case domain.StatusFailed:
				failed.Add(1)
			default:
				deferred.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := SweepStats{Checked: checked.Load(), Verified: verified.Load(), Failed: failed.Load(), Deferred: deferred.Load()}
	if stats.Checked > 0 {
		slog.Info("verification sweep", "checked", stats.Checked, "verified", stats.Verified, "failed", stats.Failed, "deferred", stats.Deferred)
	}
	return stats, ctx.Err()
}

// verify runs one verification pass for p and returns its resulting status.
func (c *VerificationCoordinator) verify(ctx context.Context, tasks *taskCache, p domain.Participation) (domain.ParticipationStatus, error) {
	task, err := tasks.get(ctx, p.TaskID)
	if errors.Is(err, domain.ErrTaskNotFound) {
		return c.fail(ctx, p, "task no longer exists")
	}
	if err != nil {
		return p.Status, err
	}
	if task.Status == domain.TaskStatusCancelled {
		return c.fail(ctx, p, "task cancelled")
	}

	deadline := task.ExpiresAt.Add(c.policy.Grace)
	if !c.now().Before(deadline) {
		return c.fail(ctx, p, "task expired before verification completed")
	}

	var negative, unknown bool
	for _, kind := range p.MissingActions() {
		outcome, err := c.check(ctx, p.ParticipantID, kind, task.Target)
		if err != nil {
			slog.Warn("social graph check", "participation_id", p.ID, "kind", kind, "outcome", outcome, "error", err)
		}
		switch outcome {
		case socialgraph.Satisfied:
			p, err = c.ledger.RecordAction(ctx, p.ID, kind, c.now())
			if err != nil {
				return p.Status, fmt.Errorf("record action %s: %w", kind, err)
			}
			if p.Status != domain.StatusPending {
				if p.Status == domain.StatusVerified {
					publish(ctx, c.events, participationEvent(notify.EventVerified, p, c.now()))
				}
				return p.Status, nil
			}
		case socialgraph.NotSatisfied:
			negative = true
		default:
			unknown = true
		}
	}

	attempts := p.VerifyAttempts + 1
	if attempts >= c.policy.MaxAttempts {
		reason := fmt.Sprintf("actions not confirmed after %d attempts", attempts)
		if unknown && !negative {
			reason = fmt.Sprintf("%s after %d attempts", domain.ErrVerificationUnknown, attempts)
		}
		p.VerifyAttempts = attempts
		return c.fail(ctx, p, reason)
	}

	next := c.now().Add(c.policy.Backoff(attempts))
	if next.After(deadline) {
		next = deadline
	}
	p, err = c.ledger.RecordVerifyAttempt(ctx, p.ID, next, c.now())
	if err != nil {
		return p.Status, fmt.Errorf("record attempt: %w", err)
	}
	slog.Debug("verification deferred", "participation_id", p.ID, "attempts", p.VerifyAttempts, "next_verify_at", next, "missing", p.MissingActions())
	return p.Status, nil
}

func (c *VerificationCoordinator) check(ctx context.Context, participantID string, kind domain.ActionKind, target domain.TargetData) (socialgraph.Outcome, error) {
	if c.policy.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.CheckTimeout)
		defer cancel()
	}
	return c.checker.CheckAction(ctx, participantID, kind, target)
}

func (c *VerificationCoordinator) fail(ctx context.Context, p domain.Participation, reason string) (domain.ParticipationStatus, error) {
	attempts := p.VerifyAttempts
	p, err := c.ledger.AdvanceStatus(ctx, p.ID, domain.StatusPending, domain.StatusFailed, reason, c.now())
	if err != nil {
		return p.Status, err
	}
	if attempts > p.VerifyAttempts {
		p.VerifyAttempts = attempts
	}
	c.alerts.LogVerificationExhausted(p, reason)
	ev := participationEvent(notify.EventFailed, p, c.now())
	ev.Message = reason
	publish(ctx, c.events, ev)
	return p.Status, nil
}

// taskCache memoizes task reads for the duration of one sweep.
type taskCache struct {
	store repository.TaskStore
	mu    sync.Mutex
	tasks map[string]domain.Task
}

func newTaskCache(store repository.TaskStore) *taskCache {
	return &taskCache{store: store, tasks: make(map[string]domain.Task)}
}

func (c *taskCache) get(ctx context.Context, id string) (domain.Task, error) {
	c.mu.Lock()
	t, ok := c.tasks[id]
	c.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err := c.store.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}

	c.mu.Lock()
	c.tasks[id] = t
	c.mu.Unlock()
	return t, nil
}

// Run sweeps every interval until ctx is done.
func (c *VerificationCoordinator) Run(ctx context.Context, interval time.Duration) {
	RunEvery(ctx, "verification", interval, func(ctx context.Context) error {
		_, err := c.Sweep(ctx)
		return err
	})
}
