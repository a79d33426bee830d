package socialgraph

import (
	"context"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

type Outcome int

const (
	// Unknown means the provider could not answer; the check should be retried.
	Unknown Outcome = iota
	Satisfied
	NotSatisfied
)

func (o Outcome) String() string {
	switch o {
	case Satisfied:
		return "satisfied"
	case NotSatisfied:
		return "not_satisfied"
	default:
		return "unknown"
	}
}

// Checker answers whether a participant performed one action against a target.
type Checker interface {
	CheckAction(ctx context.Context, participantID string, kind domain.ActionKind, target domain.TargetData) (Outcome, error)
}
