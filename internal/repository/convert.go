package repository

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/repository/sqlc"
)

// pgTimestamptzToTime converts pgtype.Timestamptz to time.Time.
func pgTimestamptzToTime(ts pgtype.Timestamptz) time.Time {
	if ts.Valid {
		return ts.Time
	}
	return time.Time{}
}

// pgTimestamptzToTimePtr converts pgtype.Timestamptz to *time.Time.
func pgTimestamptzToTimePtr(ts pgtype.Timestamptz) *time.Time {
	if ts.Valid {
		t := ts.Time
		return &t
	}
	return nil
}

// timeToPgTimestamptz converts time.Time to pgtype.Timestamptz.
func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func kindsToStrings(kinds []domain.ActionKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func stringsToKinds(ss []string) []domain.ActionKind {
	out := make([]domain.ActionKind, len(ss))
	for i, s := range ss {
		out[i] = domain.ActionKind(s)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// rowToTask converts a sqlc row to a domain.Task.
func rowToTask(row sqlc.Task) domain.Task {
	return domain.Task{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Kinds:       stringsToKinds(row.Kinds),
		Target: domain.TargetData{
			UserToFollow:     row.UserToFollow,
			ChannelToJoin:    row.ChannelToJoin,
			CastHashToLike:   row.CastHashToLike,
			CastHashToRecast: row.CastHashToRecast,
		},
		RewardPerParticipant: row.RewardPerParticipant,
		EscrowAmount:         row.EscrowAmount,
		MaxParticipants:      int(row.MaxParticipants),
		CurrentParticipants:  int(row.CurrentParticipants),
		RequiredActions:      int(row.RequiredActions),
		ExpiresAt:            pgTimestamptzToTime(row.ExpiresAt),
		Status:               domain.TaskStatus(row.Status),
		CreatedBy:            row.CreatedBy,
		CreatedAt:            pgTimestamptzToTime(row.CreatedAt),
		UpdatedAt:            pgTimestamptzToTime(row.UpdatedAt),
	}
}

// rowToParticipation converts a sqlc row to a domain.Participation.
func rowToParticipation(row sqlc.Participation) domain.Participation {
	p := domain.Participation{
		ID:                  row.ID,
		TaskID:              row.TaskID,
		ParticipantID:       row.ParticipantID,
		PayoutAddress:       row.PayoutAddress,
		JoinedAt:            pgTimestamptzToTime(row.JoinedAt),
		Status:              domain.ParticipationStatus(row.Status),
		RequiredKinds:       stringsToKinds(row.RequiredKinds),
		CompletedActions:    stringsToKinds(row.CompletedActions),
		VerifyAttempts:      int(row.VerifyAttempts),
		NextVerifyAt:        pgTimestamptzToTime(row.NextVerifyAt),
		FailureReason:       row.FailureReason,
		ClaimStartedAt:      pgTimestamptzToTimePtr(row.ClaimStartedAt),
		NeedsReconciliation: row.NeedsReconciliation,
		UpdatedAt:           pgTimestamptzToTime(row.UpdatedAt),
	}
	if row.ReceiptReference != nil {
		p.Receipt = &domain.Receipt{
			Reference: *row.ReceiptReference,
			TxHash:    deref(row.ReceiptTxHash),
			Amount:    row.ReceiptAmount.Decimal,
			ToAddress: deref(row.ReceiptToAddress),
			SettledAt: pgTimestamptzToTime(row.SettledAt),
		}
	}
	return p
}
