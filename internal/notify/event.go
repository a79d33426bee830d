package notify

import (
	"context"
	"time"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

type EventType string

const (
	EventJoined           EventType = "participation.joined"
	EventVerified         EventType = "participation.verified"
	EventFailed           EventType = "participation.failed"
	EventClaimProcessing  EventType = "claim.processing"
	EventClaimed          EventType = "claim.settled"
	EventClaimRetryable   EventType = "claim.retryable"
	EventTaskCreated      EventType = "task.created"
	EventTaskStatusChange EventType = "task.status"
)

// Event is what the presentation layer receives. It carries views only, so
// internal states never leak.
type Event struct {
	Type          EventType                 `json:"type"`
	ParticipantID string                    `json:"participantId,omitempty"`
	TaskID        string                    `json:"taskId"`
	Participation *domain.ParticipationView `json:"participation,omitempty"`
	Task          *domain.TaskView          `json:"task,omitempty"`
	Message       string                    `json:"message,omitempty"`
	At            time.Time                 `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
