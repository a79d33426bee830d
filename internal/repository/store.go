package repository

import (
	"context"
	"time"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

// TaskStore owns Task records and their capacity/expiration state.
type TaskStore interface {
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]domain.Task, error)

	// ReserveSlot atomically checks status, expiry and capacity and takes one
	// slot. The task becomes FILLED when the last slot is taken.
	ReserveSlot(ctx context.Context, taskID string, now time.Time) (domain.Reservation, error)

	// ReleaseSlot gives back a slot taken by ReserveSlot whose participation
	// could not be created.
	ReleaseSlot(ctx context.Context, taskID string, now time.Time) error

	// MarkExpired is idempotent: tasks already expired, cancelled, or not yet
	// past expiresAt are returned unchanged.
	MarkExpired(ctx context.Context, taskID string, now time.Time) (domain.Task, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]string, error)

	CancelTask(ctx context.Context, taskID string, now time.Time) (domain.Task, error)
}

type TaskFilter struct {
	Statuses []domain.TaskStatus
	Limit    int
	Offset   int
}

// ParticipationLedger owns Participation records. It is the only writer of
// participation status.
type ParticipationLedger interface {
	// CreateParticipation returns the existing record together with
	// domain.ErrAlreadyJoined when the participant already joined the task.
	CreateParticipation(ctx context.Context, p domain.NewParticipation) (domain.Participation, error)
	GetParticipation(ctx context.Context, id string) (domain.Participation, error)
	FindParticipation(ctx context.Context, taskID, participantID string) (domain.Participation, error)
	ListByParticipant(ctx context.Context, participantID string) ([]domain.Participation, error)

	// ListDue returns participations in status whose next verification time is not after now.
	ListDue(ctx context.Context, status domain.ParticipationStatus, now time.Time, limit int) ([]domain.Participation, error)
	ListClaiming(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Participation, error)

	// AdvanceStatus is a compare-and-swap. It fails with domain.ErrConflict
	// when the current status is not from.
	AdvanceStatus(ctx context.Context, id string, from, to domain.ParticipationStatus, reason string, now time.Time) (domain.Participation, error)

	// RecordAction adds kind to the completed actions of a PENDING
	// participation and moves it to VERIFIED once every required kind is present.
	RecordAction(ctx context.Context, id string, kind domain.ActionKind, now time.Time) (domain.Participation, error)
	RecordVerifyAttempt(ctx context.Context, id string, next time.Time, now time.Time) (domain.Participation, error)

	// CompleteClaim moves CLAIMING to CLAIMED and stores the receipt.
	CompleteClaim(ctx context.Context, id string, receipt domain.Receipt) (domain.Participation, error)
	FlagReconciliation(ctx context.Context, id string, reason string, now time.Time) (domain.Participation, error)

	Transitions(ctx context.Context, id string) ([]Transition, error)
}

// Transition is one audited status change.
type Transition struct {
	From   domain.ParticipationStatus
	To     domain.ParticipationStatus
	Reason string
	At     time.Time
}
