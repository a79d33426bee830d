package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

// MemoryTaskStore is a TaskStore guarded by a single mutex. It is used in
// memory mode and in tests.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
}

var _ TaskStore = (*MemoryTaskStore)(nil)

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]domain.Task)}
}

func cloneTask(t domain.Task) domain.Task {
	t.Kinds = append([]domain.ActionKind(nil), t.Kinds...)
	return t
}

func (s *MemoryTaskStore) CreateTask(_ context.Context, task domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return domain.Task{}, fmt.Errorf("create task: id %s already exists", task.ID)
	}
	task.Status = domain.TaskStatusActive
	task.CurrentParticipants = 0
	task.UpdatedAt = task.CreatedAt
	s.tasks[task.ID] = cloneTask(task)
	return cloneTask(task), nil
}

func (s *MemoryTaskStore) GetTask(_ context.Context, id string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (s *MemoryTaskStore) ListTasks(_ context.Context, filter TaskFilter) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[domain.TaskStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		want[st] = true
	}

	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if len(want) > 0 && !want[t.Status] {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Task{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryTaskStore) ReserveSlot(_ context.Context, taskID string, now time.Time) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return domain.Reservation{}, domain.ErrTaskNotFound
	}
	if err := t.Admits(now); err != nil {
		return domain.Reservation{}, err
	}

	t.CurrentParticipants++
	if t.CurrentParticipants >= t.MaxParticipants {
		t.Status = domain.TaskStatusFilled
	}
	t.UpdatedAt = now
	s.tasks[taskID] = t

	return domain.Reservation{TaskID: taskID, Slot: t.CurrentParticipants, Task: cloneTask(t)}, nil
}

func (s *MemoryTaskStore) ReleaseSlot(_ context.Context, taskID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if t.CurrentParticipants == 0 {
		return fmt.Errorf("release slot %s: no slots taken", taskID)
	}

	t.CurrentParticipants--
	if t.Status == domain.TaskStatusFilled {
		if t.IsExpired(now) {
			t.Status = domain.TaskStatusExpired
		} else {
			t.Status = domain.TaskStatusActive
		}
	}
	t.UpdatedAt = now
	s.tasks[taskID] = t
	return nil
}

func (s *MemoryTaskStore) MarkExpired(_ context.Context, taskID string, now time.Time) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if (t.Status == domain.TaskStatusActive || t.Status == domain.TaskStatusFilled) && t.IsExpired(now) {
		t.Status = domain.TaskStatusExpired
		t.UpdatedAt = now
		s.tasks[taskID] = t
	}
	return cloneTask(t), nil
}

func (s *MemoryTaskStore) ListExpirable(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, t := range s.tasks {
		if (t.Status == domain.TaskStatusActive || t.Status == domain.TaskStatusFilled) && t.IsExpired(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemoryTaskStore) CancelTask(_ context.Context, taskID string, now time.Time) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if t.Status != domain.TaskStatusActive && t.Status != domain.TaskStatusFilled {
		return domain.Task{}, fmt.Errorf("cancel task %s in status %s: %w", taskID, t.Status, domain.ErrTaskNotActive)
	}
	t.Status = domain.TaskStatusCancelled
	t.UpdatedAt = now
	s.tasks[taskID] = t
	return cloneTask(t), nil
}
