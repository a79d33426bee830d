package domain

import (
	"context"
	"errors"
)

var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrParticipationNotFound = errors.New("participation not found")
	ErrConflict              = errors.New("status changed concurrently")
	ErrInvalidTransition     = errors.New("status transition not allowed")
	ErrCapacityExceeded      = errors.New("task is full")
	ErrTaskExpired           = errors.New("task expired")
	ErrTaskNotActive         = errors.New("task is not active")
	ErrAlreadyJoined         = errors.New("already joined this task")
	ErrVerificationUnknown   = errors.New("verification result unknown")
	ErrNotVerified           = errors.New("participation is not verified")
	ErrAlreadyClaimed        = errors.New("reward already claimed")
	ErrSettlementFailed      = errors.New("settlement failed")
	ErrSettlementPending     = errors.New("settlement pending")
	ErrSettlementAmbiguous   = errors.New("settlement outcome unknown")
	ErrInvalidTask           = errors.New("invalid task")
	ErrInvalidAddress        = errors.New("invalid payout address")
	ErrInvalidParticipant    = errors.New("invalid participant")
)

// IsRetryable reports whether the operation that produced err may succeed if
// attempted again without the caller changing anything.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrVerificationUnknown),
		errors.Is(err, ErrSettlementFailed),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}
