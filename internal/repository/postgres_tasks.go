package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/repository/sqlc"
)

type PostgresTaskStore struct {
	queries *sqlc.Queries
}

var _ TaskStore = (*PostgresTaskStore)(nil)

func NewPostgresTaskStore(queries *sqlc.Queries) *PostgresTaskStore {
	return &PostgresTaskStore{queries: queries}
}

func (s *PostgresTaskStore) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	row, err := s.queries.CreateTask(ctx, sqlc.CreateTaskParams{
		ID:                   task.ID,
		Title:                task.Title,
		Description:          task.Description,
		Kinds:                kindsToStrings(task.Kinds),
		UserToFollow:         task.Target.UserToFollow,
		ChannelToJoin:        task.Target.ChannelToJoin,
		CastHashToLike:       task.Target.CastHashToLike,
		CastHashToRecast:     task.Target.CastHashToRecast,
		RewardPerParticipant: task.RewardPerParticipant,
		EscrowAmount:         task.EscrowAmount,
		MaxParticipants:      int32(task.MaxParticipants),
		RequiredActions:      int32(task.RequiredActions),
		ExpiresAt:            timeToPgTimestamptz(task.ExpiresAt),
		CreatedBy:            task.CreatedBy,
		CreatedAt:            timeToPgTimestamptz(task.CreatedAt),
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return rowToTask(row), nil
}

func (s *PostgresTaskStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row, err := s.queries.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return rowToTask(row), nil
}

func (s *PostgresTaskStore) ListTasks(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, st := range filter.Statuses {
		statuses[i] = string(st)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.queries.ListTasks(ctx, sqlc.ListTasksParams{
		Statuses: statuses,
		Limit:    int32(limit),
		Offset:   int32(filter.Offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]domain.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToTask(row))
	}
	return out, nil
}

func (s *PostgresTaskStore) ReserveSlot(ctx context.Context, taskID string, now time.Time) (domain.Reservation, error) {
	row, err := s.queries.ReserveTaskSlot(ctx, sqlc.ReserveTaskSlotParams{
		ID:  taskID,
		Now: timeToPgTimestamptz(now),
	})
	if err == nil {
		task := rowToTask(row)
		return domain.Reservation{TaskID: taskID, Slot: task.CurrentParticipants, Task: task}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, fmt.Errorf("reserve slot: %w", err)
	}

	// The conditional update matched nothing; read the task to say why.
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if err := task.Admits(now); err != nil {
		return domain.Reservation{}, err
	}
	return domain.Reservation{}, fmt.Errorf("reserve slot %s: %w", taskID, domain.ErrConflict)
}

func (s *PostgresTaskStore) ReleaseSlot(ctx context.Context, taskID string, now time.Time) error {
	_, err := s.queries.ReleaseTaskSlot(ctx, sqlc.ReleaseTaskSlotParams{
		ID:  taskID,
		Now: timeToPgTimestamptz(now),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetTask(ctx, taskID); getErr != nil {
				return getErr
			}
			return fmt.Errorf("release slot %s: no slots taken", taskID)
		}
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (s *PostgresTaskStore) MarkExpired(ctx context.Context, taskID string, now time.Time) (domain.Task, error) {
	row, err := s.queries.MarkTaskExpired(ctx, sqlc.MarkTaskExpiredParams{
		ID:  taskID,
		Now: timeToPgTimestamptz(now),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.GetTask(ctx, taskID)
		}
		return domain.Task{}, fmt.Errorf("mark expired: %w", err)
	}
	return rowToTask(row), nil
}

func (s *PostgresTaskStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := s.queries.ListExpirableTaskIDs(ctx, sqlc.ListExpirableTaskIDsParams{
		Now:   timeToPgTimestamptz(now),
		Limit: int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list expirable tasks: %w", err)
	}
	return ids, nil
}

func (s *PostgresTaskStore) CancelTask(ctx context.Context, taskID string, now time.Time) (domain.Task, error) {
	row, err := s.queries.CancelTask(ctx, sqlc.CancelTaskParams{
		ID:  taskID,
		Now: timeToPgTimestamptz(now),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			task, getErr := s.GetTask(ctx, taskID)
			if getErr != nil {
				return domain.Task{}, getErr
			}
			return domain.Task{}, fmt.Errorf("cancel task %s in status %s: %w", taskID, task.Status, domain.ErrTaskNotActive)
		}
		return domain.Task{}, fmt.Errorf("cancel task: %w", err)
	}
	return rowToTask(row), nil
}
