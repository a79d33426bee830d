package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/BernardOnuh/faucet-claim/internal/config"
	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
)

// TaskEngine is the entry point used by the HTTP API. It owns no state of its
// own; every write goes through the task store or the participation ledger.
type TaskEngine struct {
	tasks      repository.TaskStore
	ledger     repository.ParticipationLedger
	settlement *ClaimSettlement
	events     notify.Publisher
	hub        *notify.Hub
	alerts     Alerter
	now        func() time.Time

	// joins collapses concurrent joins of one participant to one task.
	joins singleflight.Group
}

type EngineDeps struct {
	Tasks      repository.TaskStore
	Ledger     repository.ParticipationLedger
	Settlement *ClaimSettlement
	Events     notify.Publisher
	Hub        *notify.Hub
	Alerts     Alerter
}

func NewTaskEngine(deps EngineDeps) *TaskEngine {
	return &TaskEngine{
		tasks:      deps.Tasks,
		ledger:     deps.Ledger,
		settlement: deps.Settlement,
		events:     deps.Events,
		hub:        deps.Hub,
		alerts:     deps.Alerts,
		now:        time.Now,
	}
}

// CreateTask validates the definition and registers an ACTIVE task whose
// escrow is one reward per slot.
func (e *TaskEngine) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	now := e.now()
	if err := in.Normalize(now, config.MaxParticipantsLimit); err != nil {
		return domain.Task{}, err
	}
	if in.ExpiresAt.Sub(now) < config.MinTaskDuration {
		return domain.Task{}, fmt.Errorf("%w: task must run for at least %s", domain.ErrInvalidTask, config.MinTaskDuration)
	}

	task, err := e.tasks.CreateTask(ctx, domain.Task{
		ID:                   uuid.NewString(),
		Title:                in.Title,
		Description:          strings.TrimSpace(in.Description),
		Kinds:                in.Kinds,
		Target:               in.Target,
		RewardPerParticipant: in.RewardPerParticipant,
		EscrowAmount:         in.Escrow(),
		MaxParticipants:      in.MaxParticipants,
		RequiredActions:      in.RequiredActions,
		ExpiresAt:            in.ExpiresAt,
		CreatedBy:            in.CreatedBy,
		CreatedAt:            now,
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}

	e.alerts.LogTaskCreated(task)
	publish(ctx, e.events, taskEvent(notify.EventTaskCreated, task, now))
	return task, nil
}

// CancelTask stops admission. Participations already admitted keep going
// through verification, which fails them because the task is cancelled.
func (e *TaskEngine) CancelTask(ctx context.Context, taskID string) (domain.Task, error) {
	task, err := e.tasks.CancelTask(ctx, taskID, e.now())
	if err != nil {
		return domain.Task{}, err
	}
	slog.Info("task cancelled", "task_id", task.ID, "participants", task.CurrentParticipants)
	publish(ctx, e.events, taskEvent(notify.EventTaskStatusChange, task, e.now()))
	return task, nil
}

// Join admits participantID to a task. A repeated join returns the existing
// participation with created == false and takes no slot.
func (e *TaskEngine) Join(ctx context.Context, taskID, participantID, payoutAddress string) (domain.Participation, bool, error) {
	participantID, err := domain.NormalizeParticipantID(participantID)
	if err != nil {
		return domain.Participation{}, false, err
	}
	if err := domain.ValidatePayoutAddress(payoutAddress); err != nil {
		return domain.Participation{}, false, err
	}

	// Only the caller whose flight ran the admission reports created.
	var ran bool
	v, err, _ := e.joins.Do(taskID+"/"+participantID, func() (any, error) {
		ran = true
		p, created, err := e.admit(ctx, taskID, participantID, payoutAddress)
		return joinResult{p: p, created: created}, err
	})
	if err != nil {
		return domain.Participation{}, false, err
	}
	r := v.(joinResult)
	return r.p, r.created && ran, nil
}

type joinResult struct {
	p       domain.Participation
	created bool
}

func (e *TaskEngine) admit(ctx context.Context, taskID, participantID, payoutAddress string) (domain.Participation, bool, error) {
	existing, err := e.ledger.FindParticipation(ctx, taskID, participantID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrParticipationNotFound) {
		return domain.Participation{}, false, fmt.Errorf("find participation: %w", err)
	}

	now := e.now()
	res, err := e.tasks.ReserveSlot(ctx, taskID, now)
	if err != nil {
		// A concurrent duplicate may have taken the last slot.
		if existing, ferr := e.ledger.FindParticipation(ctx, taskID, participantID); ferr == nil {
			return existing, false, nil
		}
		return domain.Participation{}, false, err
	}

	// The slot is taken; finish admission or compensation regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	p, err := e.ledger.CreateParticipation(ctx, domain.NewParticipation{
		TaskID:        taskID,
		ParticipantID: participantID,
		PayoutAddress: payoutAddress,
		RequiredKinds: res.Task.Kinds,
		JoinedAt:      now,
	})
	if err != nil {
		if rerr := e.tasks.ReleaseSlot(ctx, taskID, e.now()); rerr != nil {
			e.alerts.LogError(rerr, fmt.Sprintf("release slot on task %s", taskID))
		}
		if errors.Is(err, domain.ErrAlreadyJoined) {
			return p, false, nil
		}
		return domain.Participation{}, false, fmt.Errorf("create participation: %w", err)
	}

	slog.Info("participant joined", "task_id", taskID, "participation_id", p.ID, "participant_id", participantID, "slot", res.Slot)
	publish(ctx, e.events, participationEvent(notify.EventJoined, p, now))
	if res.Task.Status == domain.TaskStatusFilled {
		publish(ctx, e.events, taskEvent(notify.EventTaskStatusChange, res.Task, now))
	}
	return p, true, nil
}

// Claim pays the reward of a VERIFIED participation. participantID, when
// set, must own the participation.
func (e *TaskEngine) Claim(ctx context.Context, participationID, participantID string) (domain.ParticipationView, error) {
	p, err := e.ledger.GetParticipation(ctx, participationID)
	if err != nil {
		return domain.ParticipationView{}, err
	}
	if participantID != "" {
		id, err := domain.NormalizeParticipantID(participantID)
		if err != nil {
			return domain.ParticipationView{}, err
		}
		if id != p.ParticipantID {
			return domain.ParticipationView{}, domain.ErrParticipationNotFound
		}
	}
	if err := claimableErr(p); err != nil {
		return domain.NewParticipationView(p), err
	}

	p, err = e.settlement.Claim(ctx, participationID)
	if p.ID == "" {
		return domain.ParticipationView{}, err
	}
	return domain.NewParticipationView(p), err
}

func (e *TaskEngine) GetTaskView(ctx context.Context, taskID string) (domain.TaskView, error) {
	task, err := e.tasks.GetTask(ctx, taskID)
	if err != nil {
		return domain.TaskView{}, err
	}
	return domain.NewTaskView(task, e.now()), nil
}

func (e *TaskEngine) ListTaskViews(ctx context.Context, filter repository.TaskFilter) ([]domain.TaskView, error) {
	tasks, err := e.tasks.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	now := e.now()
	views := make([]domain.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, domain.NewTaskView(t, now))
	}
	return views, nil
}

func (e *TaskEngine) GetParticipationView(ctx context.Context, participationID string) (domain.ParticipationView, error) {
	p, err := e.ledger.GetParticipation(ctx, participationID)
	if err != nil {
		return domain.ParticipationView{}, err
	}
	return domain.NewParticipationView(p), nil
}

// GetUserTasks returns every task the participant joined, newest first.
func (e *TaskEngine) GetUserTasks(ctx context.Context, participantID string) ([]domain.UserTask, error) {
	participantID, err := domain.NormalizeParticipantID(participantID)
	if err != nil {
		return nil, err
	}
	ps, err := e.ledger.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}

	now := e.now()
	out := make([]domain.UserTask, 0, len(ps))
	for _, p := range ps {
		task, err := e.tasks.GetTask(ctx, p.TaskID)
		if err != nil {
			slog.Warn("user task without task record", "participation_id", p.ID, "task_id", p.TaskID, "error", err)
			continue
		}
		out = append(out, domain.UserTask{
			Task:          domain.NewTaskView(task, now),
			Participation: domain.NewParticipationView(p),
		})
	}
	return out, nil
}

// GetUserStats counts joined and completed tasks and sums settled rewards.
func (e *TaskEngine) GetUserStats(ctx context.Context, participantID string) (domain.UserStats, error) {
	participantID, err := domain.NormalizeParticipantID(participantID)
	if err != nil {
		return domain.UserStats{}, err
	}
	ps, err := e.ledger.ListByParticipant(ctx, participantID)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("list participations: %w", err)
	}

	stats := domain.UserStats{TasksJoined: len(ps), TotalEarned: decimal.Zero}
	for _, p := range ps {
		switch p.Status {
		case domain.StatusVerified, domain.StatusClaiming, domain.StatusClaimed:
			stats.TasksCompleted++
		}
		if p.Receipt != nil {
			stats.TotalEarned = stats.TotalEarned.Add(p.Receipt.Amount)
		}
	}
	return stats, nil
}

// Subscribe streams events for one participant. An empty id receives all events.
func (e *TaskEngine) Subscribe(participantID string) (*notify.Subscription, error) {
	if participantID == "" {
		return e.hub.Subscribe(""), nil
	}
	id, err := domain.NormalizeParticipantID(participantID)
	if err != nil {
		return nil, err
	}
	return e.hub.Subscribe(id), nil
}
