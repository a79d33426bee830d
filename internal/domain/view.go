package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ViewStatus is what the presentation layer sees for a participation.
type ViewStatus string

const (
	ViewPending    ViewStatus = "PENDING"
	ViewVerified   ViewStatus = "VERIFIED"
	ViewFailed     ViewStatus = "FAILED"
	ViewProcessing ViewStatus = "PROCESSING"
	ViewClaimed    ViewStatus = "CLAIMED"
)

type Progress struct {
	Current int     `json:"current"`
	Max     int     `json:"max"`
	Percent float64 `json:"percent"`
}

type TaskView struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Kinds         []ActionKind    `json:"taskTypes"`
	Target        TargetData      `json:"targetData"`
	Progress      Progress        `json:"progress"`
	TimeRemaining time.Duration   `json:"timeRemaining"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	RewardAmount  decimal.Decimal `json:"rewardAmount"`
	Status        TaskStatus      `json:"status"`
}

type ReceiptView struct {
	Reference string          `json:"reference"`
	TxHash    string          `json:"txHash,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	SettledAt time.Time       `json:"settledAt"`
}

type ParticipationView struct {
	ID               string       `json:"id"`
	TaskID           string       `json:"taskId"`
	Status           ViewStatus   `json:"status"`
	CanClaim         bool         `json:"canClaim"`
	JoinedAt         time.Time    `json:"joinedAt"`
	CompletedActions []ActionKind `json:"completedActions"`
	Receipt          *ReceiptView `json:"receipt,omitempty"`
}

// UserTask pairs a participation with its task for the "my tasks" listing.
type UserTask struct {
	Task          TaskView          `json:"task"`
	Participation ParticipationView `json:"participation"`
}

type UserStats struct {
	TasksJoined    int             `json:"tasksJoined"`
	TasksCompleted int             `json:"tasksCompleted"`
	TotalEarned    decimal.Decimal `json:"totalEarned"`
}

func NewTaskView(t Task, now time.Time) TaskView {
	remaining := t.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	status := t.Status
	if (status == TaskStatusActive || status == TaskStatusFilled) && t.IsExpired(now) {
		status = TaskStatusExpired
	}
	var pct float64
	if t.MaxParticipants > 0 {
		pct = float64(t.CurrentParticipants) / float64(t.MaxParticipants) * 100
	}
	kinds := t.Kinds
	if kinds == nil {
		kinds = []ActionKind{}
	}
	return TaskView{
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Kinds:         kinds,
		Target:        t.Target,
		Progress:      Progress{Current: t.CurrentParticipants, Max: t.MaxParticipants, Percent: pct},
		TimeRemaining: remaining,
		ExpiresAt:     t.ExpiresAt,
		RewardAmount:  t.RewardPerParticipant,
		Status:        status,
	}
}

func NewParticipationView(p Participation) ParticipationView {
	v := ParticipationView{
		ID:               p.ID,
		TaskID:           p.TaskID,
		JoinedAt:         p.JoinedAt,
		CompletedActions: p.CompletedActions,
	}
	if v.CompletedActions == nil {
		v.CompletedActions = []ActionKind{}
	}
	switch p.Status {
	case StatusPending:
		v.Status = ViewPending
	case StatusVerified:
		v.Status = ViewVerified
		v.CanClaim = true
	case StatusFailed:
		v.Status = ViewFailed
	case StatusClaiming:
		v.Status = ViewProcessing
	case StatusClaimed:
		v.Status = ViewClaimed
	}
	if p.Receipt != nil {
		v.Receipt = &ReceiptView{
			Reference: p.Receipt.Reference,
			TxHash:    p.Receipt.TxHash,
			Amount:    p.Receipt.Amount,
			SettledAt: p.Receipt.SettledAt,
		}
	}
	return v
}
