package sqlc

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Task struct {
	ID                   string
	Title                string
	Description          string
	Kinds                []string
	UserToFollow         string
	ChannelToJoin        string
	CastHashToLike       string
	CastHashToRecast     string
	RewardPerParticipant decimal.Decimal
	EscrowAmount         decimal.Decimal
	MaxParticipants      int32
	CurrentParticipants  int32
	RequiredActions      int32
	ExpiresAt            pgtype.Timestamptz
	Status               string
	CreatedBy            string
	CreatedAt            pgtype.Timestamptz
	UpdatedAt            pgtype.Timestamptz
}

type Participation struct {
	ID                  string
	TaskID              string
	ParticipantID       string
	PayoutAddress       string
	JoinedAt            pgtype.Timestamptz
	Status              string
	RequiredKinds       []string
	CompletedActions    []string
	VerifyAttempts      int32
	NextVerifyAt        pgtype.Timestamptz
	FailureReason       string
	ClaimStartedAt      pgtype.Timestamptz
	NeedsReconciliation bool
	ReceiptReference    *string
	ReceiptTxHash       *string
	ReceiptAmount       decimal.NullDecimal
	ReceiptToAddress    *string
	SettledAt           pgtype.Timestamptz
	UpdatedAt           pgtype.Timestamptz
}

type ParticipationTransition struct {
	ID              int64
	ParticipationID string
	FromStatus      string
	ToStatus        string
	Reason          string
	CreatedAt       pgtype.Timestamptz
}
