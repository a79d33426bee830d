package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ParticipationStatus string

const (
	StatusPending  ParticipationStatus = "PENDING"
	StatusVerified ParticipationStatus = "VERIFIED"
	StatusFailed   ParticipationStatus = "FAILED"
	// StatusClaiming is held while a payout is in flight. It is never shown to
	// the presentation layer.
	StatusClaiming ParticipationStatus = "CLAIMING"
	StatusClaimed  ParticipationStatus = "CLAIMED"
)

// transitions is the only place allowed status changes are defined.
var transitions = map[ParticipationStatus][]ParticipationStatus{
	StatusPending:  {StatusVerified, StatusFailed},
	StatusVerified: {StatusClaiming},
	StatusClaiming: {StatusClaimed, StatusVerified},
}

// CanTransition reports whether a participation may move from one status to another.
func CanTransition(from, to ParticipationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s ParticipationStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusClaimed
}

type Receipt struct {
	Reference string
	TxHash    string
	Amount    decimal.Decimal
	ToAddress string
	SettledAt time.Time
}

type Participation struct {
	ID                  string
	TaskID              string
	ParticipantID       string
	PayoutAddress       string
	JoinedAt            time.Time
	Status              ParticipationStatus
	RequiredKinds       []ActionKind
	CompletedActions    []ActionKind
	VerifyAttempts      int
	NextVerifyAt        time.Time
	FailureReason       string
	ClaimStartedAt      *time.Time
	NeedsReconciliation bool
	Receipt             *Receipt
	UpdatedAt           time.Time
}

func (p *Participation) HasAction(kind ActionKind) bool {
	for _, k := range p.CompletedActions {
		if k == kind {
			return true
		}
	}
	return false
}

// Requires reports whether kind is one of the task's required kinds.
func (p *Participation) Requires(kind ActionKind) bool {
	for _, k := range p.RequiredKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Ready reports whether every required kind has been confirmed.
func (p *Participation) Ready() bool {
	for _, k := range p.RequiredKinds {
		if !p.HasAction(k) {
			return false
		}
	}
	return true
}

// MissingActions returns the required kinds not yet confirmed, in task order.
func (p *Participation) MissingActions() []ActionKind {
	var out []ActionKind
	for _, k := range p.RequiredKinds {
		if !p.HasAction(k) {
			out = append(out, k)
		}
	}
	return out
}

// NewParticipation is the input for creating a participation from a reservation.
type NewParticipation struct {
	TaskID        string
	ParticipantID string
	PayoutAddress string
	RequiredKinds []ActionKind
	JoinedAt      time.Time
}
