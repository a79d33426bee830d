package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ActionKind string

const (
	ActionFollowUser  ActionKind = "FOLLOW_USER"
	ActionLikeCast    ActionKind = "LIKE_CAST"
	ActionRecastCast  ActionKind = "RECAST_CAST"
	ActionJoinChannel ActionKind = "JOIN_CHANNEL"
)

func (k ActionKind) Valid() bool {
	switch k {
	case ActionFollowUser, ActionLikeCast, ActionRecastCast, ActionJoinChannel:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "ACTIVE"
	TaskStatusExpired   TaskStatus = "EXPIRED"
	TaskStatusFilled    TaskStatus = "FILLED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// TargetData holds the kind-specific parameters of a task.
type TargetData struct {
	UserToFollow     string `json:"userToFollow,omitempty" yaml:"userToFollow"`
	ChannelToJoin    string `json:"channelToJoin,omitempty" yaml:"channelToJoin"`
	CastHashToLike   string `json:"castHashToLike,omitempty" yaml:"castHashToLike"`
	CastHashToRecast string `json:"castHashToRecast,omitempty" yaml:"castHashToRecast"`
}

// For returns the target the given action must be performed against.
func (t TargetData) For(kind ActionKind) string {
	switch kind {
	case ActionFollowUser:
		return t.UserToFollow
	case ActionLikeCast:
		return t.CastHashToLike
	case ActionRecastCast:
		return t.CastHashToRecast
	case ActionJoinChannel:
		return t.ChannelToJoin
	}
	return ""
}

type Task struct {
	ID                   string
	Title                string
	Description          string
	Kinds                []ActionKind
	Target               TargetData
	RewardPerParticipant decimal.Decimal
	EscrowAmount         decimal.Decimal
	MaxParticipants      int
	CurrentParticipants  int
	RequiredActions      int
	ExpiresAt            time.Time
	Status               TaskStatus
	CreatedBy            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Admits reports whether a new participant may be admitted at now.
func (t *Task) Admits(now time.Time) error {
	switch {
	case t.Status == TaskStatusFilled:
		return ErrCapacityExceeded
	case t.Status == TaskStatusExpired:
		return ErrTaskExpired
	case t.Status != TaskStatusActive:
		return ErrTaskNotActive
	case !now.Before(t.ExpiresAt):
		return ErrTaskExpired
	case t.CurrentParticipants >= t.MaxParticipants:
		return ErrCapacityExceeded
	}
	return nil
}

func (t *Task) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// NewTask is the admin input for task creation.
type NewTask struct {
	Title                string
	Description          string
	Kinds                []ActionKind
	Target               TargetData
	RewardPerParticipant decimal.Decimal
	MaxParticipants      int
	ExpiresAt            time.Time
	RequiredActions      int
	CreatedBy            string
}

// Normalize deduplicates kinds, fills RequiredActions and validates the
// definition against now.
func (n *NewTask) Normalize(now time.Time, maxCap int) error {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if len(n.Kinds) == 0 {
		return fmt.Errorf("%w: at least one action kind is required", ErrInvalidTask)
	}

	seen := make(map[ActionKind]bool, len(n.Kinds))
	kinds := make([]ActionKind, 0, len(n.Kinds))
	for _, k := range n.Kinds {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown action kind %q", ErrInvalidTask, k)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		if strings.TrimSpace(n.Target.For(k)) == "" {
			return fmt.Errorf("%w: target for %s is required", ErrInvalidTask, k)
		}
		kinds = append(kinds, k)
	}
	n.Kinds = kinds

	if n.RequiredActions == 0 {
		n.RequiredActions = len(kinds)
	}
	if n.RequiredActions != len(kinds) {
		return fmt.Errorf("%w: requiredActions must equal the number of distinct kinds (%d)", ErrInvalidTask, len(kinds))
	}
	if !n.RewardPerParticipant.IsPositive() {
		return fmt.Errorf("%w: reward must be positive", ErrInvalidTask)
	}
	if n.MaxParticipants < 1 || n.MaxParticipants > maxCap {
		return fmt.Errorf("%w: maxParticipants must be between 1 and %d", ErrInvalidTask, maxCap)
	}
	if !n.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expiresAt must be in the future", ErrInvalidTask)
	}
	return nil
}

// Escrow is the amount funded at creation: one reward per slot.
func (n *NewTask) Escrow() decimal.Decimal {
	return n.RewardPerParticipant.Mul(decimal.NewFromInt(int64(n.MaxParticipants)))
}

// Reservation is the token returned by a successful slot reservation. It must
// be consumed by creating exactly one participation or returned with
// ReleaseSlot.
type Reservation struct {
	TaskID string
	Slot   int
	Task   Task
}
