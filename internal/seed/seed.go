// Package seed loads task definitions from a YAML file so a fresh memory-mode
// instance has something to show.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

type File struct {
	Tasks []Task `yaml:"tasks"`
}

type Task struct {
	Title           string              `yaml:"title"`
	Description     string              `yaml:"description"`
	TaskTypes       []domain.ActionKind `yaml:"task_types"`
	TargetData      domain.TargetData   `yaml:"target_data"`
	Reward          string              `yaml:"reward"`
	MaxParticipants int                 `yaml:"max_participants"`
	ExpiresIn       time.Duration       `yaml:"expires_in"`
	CreatedBy       string              `yaml:"created_by"`
}

// Creator is satisfied by service.TaskEngine.
type Creator interface {
	CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error)
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// NewTasks converts the file into creation requests relative to now.
func (f *File) NewTasks(now time.Time) ([]domain.NewTask, error) {
	out := make([]domain.NewTask, 0, len(f.Tasks))
	for i, t := range f.Tasks {
		reward, err := decimal.NewFromString(t.Reward)
		if err != nil {
			return nil, fmt.Errorf("task %d (%s): reward %q: %w", i, t.Title, t.Reward, err)
		}
		if t.ExpiresIn <= 0 {
			return nil, fmt.Errorf("task %d (%s): expires_in must be positive", i, t.Title)
		}
		createdBy := t.CreatedBy
		if createdBy == "" {
			createdBy = "seed"
		}
		out = append(out, domain.NewTask{
			Title:                t.Title,
			Description:          t.Description,
			Kinds:                t.TaskTypes,
			Target:               t.TargetData,
			RewardPerParticipant: reward,
			MaxParticipants:      t.MaxParticipants,
			ExpiresAt:            now.Add(t.ExpiresIn),
			CreatedBy:            createdBy,
		})
	}
	return out, nil
}

// Apply creates every task in the file and returns how many were created.
func Apply(ctx context.Context, c Creator, f *File, now time.Time) (int, error) {
	tasks, err := f.NewTasks(now)
	if err != nil {
		return 0, err
	}
	for i, in := range tasks {
		task, err := c.CreateTask(ctx, in)
		if err != nil {
			return i, fmt.Errorf("seed task %q: %w", in.Title, err)
		}
		slog.Debug("seeded task", "task_id", task.ID, "title", task.Title)
	}
	return len(tasks), nil
}
