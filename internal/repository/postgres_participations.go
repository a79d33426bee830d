package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/repository/sqlc"
)

// PostgresLedger is a ParticipationLedger on top of the sqlc queries. Every
// status change and its audit row are written in one transaction.
type PostgresLedger struct {
	db      *pgxpool.Pool
	queries *sqlc.Queries
}

var _ ParticipationLedger = (*PostgresLedger)(nil)

func NewPostgresLedger(db *pgxpool.Pool, queries *sqlc.Queries) *PostgresLedger {
	return &PostgresLedger{db: db, queries: queries}
}

func (l *PostgresLedger) CreateParticipation(ctx context.Context, np domain.NewParticipation) (domain.Participation, error) {
	var created sqlc.Participation
	err := inTx(ctx, l.db, l.queries, func(q *sqlc.Queries) error {
		row, err := q.CreateParticipation(ctx, sqlc.CreateParticipationParams{
			ID:            uuid.NewString(),
			TaskID:        np.TaskID,
			ParticipantID: np.ParticipantID,
			PayoutAddress: np.PayoutAddress,
			JoinedAt:      timeToPgTimestamptz(np.JoinedAt),
			RequiredKinds: kindsToStrings(np.RequiredKinds),
		})
		if err != nil {
			return err
		}
		created = row
		return q.InsertTransition(ctx, sqlc.InsertTransitionParams{
			ParticipationID: row.ID,
			ToStatus:        string(domain.StatusPending),
			Reason:          "joined",
			CreatedAt:       timeToPgTimestamptz(np.JoinedAt),
		})
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, findErr := l.FindParticipation(ctx, np.TaskID, np.ParticipantID)
			if findErr != nil {
				return domain.Participation{}, findErr
			}
			return existing, domain.ErrAlreadyJoined
		}
		return domain.Participation{}, fmt.Errorf("create participation: %w", err)
	}
	return rowToParticipation(created), nil
}

func (l *PostgresLedger) GetParticipation(ctx context.Context, id string) (domain.Participation, error) {
	row, err := l.queries.GetParticipation(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participation{}, domain.ErrParticipationNotFound
		}
		return domain.Participation{}, fmt.Errorf("get participation: %w", err)
	}
	return rowToParticipation(row), nil
}

func (l *PostgresLedger) FindParticipation(ctx context.Context, taskID, participantID string) (domain.Participation, error) {
	row, err := l.queries.GetParticipationByTaskAndParticipant(ctx, sqlc.GetParticipationByTaskAndParticipantParams{
		TaskID:        taskID,
		ParticipantID: participantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participation{}, domain.ErrParticipationNotFound
		}
		return domain.Participation{}, fmt.Errorf("find participation: %w", err)
	}
	return rowToParticipation(row), nil
}

func (l *PostgresLedger) ListByParticipant(ctx context.Context, participantID string) ([]domain.Participation, error) {
	rows, err := l.queries.ListParticipationsByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	return rowsToParticipations(rows), nil
}

func (l *PostgresLedger) ListDue(ctx context.Context, status domain.ParticipationStatus, now time.Time, limit int) ([]domain.Participation, error) {
	rows, err := l.queries.ListDueParticipations(ctx, sqlc.ListDueParticipationsParams{
		Status: string(status),
		Now:    timeToPgTimestamptz(now),
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list due participations: %w", err)
	}
	return rowsToParticipations(rows), nil
}

func (l *PostgresLedger) ListClaiming(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Participation, error) {
	rows, err := l.queries.ListClaimingParticipations(ctx, sqlc.ListClaimingParticipationsParams{
		StartedBefore: timeToPgTimestamptz(startedBefore),
		Limit:         int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list claiming participations: %w", err)
	}
	return rowsToParticipations(rows), nil
}

func (l *PostgresLedger) AdvanceStatus(ctx context.Context, id string, from, to domain.ParticipationStatus, reason string, now time.Time) (domain.Participation, error) {
	if !domain.CanTransition(from, to) {
		return domain.Participation{}, fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	var updated sqlc.Participation
	err := inTx(ctx, l.db, l.queries, func(q *sqlc.Queries) error {
		row, err := advance(ctx, q, id, from, to, reason, now)
		updated = row
		return err
	})
	if err != nil {
		return l.classify(ctx, id, fmt.Sprintf("advance %s from %s", id, from), err)
	}
	return rowToParticipation(updated), nil
}

func advance(ctx context.Context, q *sqlc.Queries, id string, from, to domain.ParticipationStatus, reason string, now time.Time) (sqlc.Participation, error) {
	row, err := q.AdvanceParticipationStatus(ctx, sqlc.AdvanceParticipationStatusParams{
		ID:     id,
		From:   string(from),
		To:     string(to),
		Reason: reason,
		Now:    timeToPgTimestamptz(now),
	})
	if err != nil {
		return sqlc.Participation{}, err
	}
	err = q.InsertTransition(ctx, sqlc.InsertTransitionParams{
		ParticipationID: id,
		FromStatus:      string(from),
		ToStatus:        string(to),
		Reason:          reason,
		CreatedAt:       timeToPgTimestamptz(now),
	})
	return row, err
}

// classify turns pgx.ErrNoRows from a conditional update into NotFound or Conflict.
func (l *PostgresLedger) classify(ctx context.Context, id, op string, err error) (domain.Participation, error) {
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Participation{}, fmt.Errorf("%s: %w", op, err)
	}
	current, getErr := l.GetParticipation(ctx, id)
	if getErr != nil {
		return domain.Participation{}, getErr
	}
	return current, fmt.Errorf("%s (is %s): %w", op, current.Status, domain.ErrConflict)
}

func (l *PostgresLedger) RecordAction(ctx context.Context, id string, kind domain.ActionKind, now time.Time) (domain.Participation, error) {
	var result sqlc.Participation
	err := inTx(ctx, l.db, l.queries, func(q *sqlc.Queries) error {
		row, err := q.AppendCompletedAction(ctx, sqlc.AppendCompletedActionParams{
			ID:   id,
			Kind: string(kind),
			Now:  timeToPgTimestamptz(now),
		})
		if err != nil {
			return err
		}
		result = row
		if cur := rowToParticipation(row); !cur.Ready() {
			return nil
		}
		result, err = advance(ctx, q, id, domain.StatusPending, domain.StatusVerified, "", now)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either not PENDING any more or kind is not required.
			p, getErr := l.GetParticipation(ctx, id)
			if getErr != nil {
				return domain.Participation{}, getErr
			}
			if !p.Requires(kind) {
				return p, fmt.Errorf("record %s on %s: not required: %w", kind, id, domain.ErrInvalidTransition)
			}
			return p, nil
		}
		return domain.Participation{}, fmt.Errorf("record action: %w", err)
	}
	return rowToParticipation(result), nil
}

func (l *PostgresLedger) RecordVerifyAttempt(ctx context.Context, id string, next time.Time, now time.Time) (domain.Participation, error) {
	row, err := l.queries.RecordVerifyAttempt(ctx, sqlc.RecordVerifyAttemptParams{
		ID:           id,
		NextVerifyAt: timeToPgTimestamptz(next),
		Now:          timeToPgTimestamptz(now),
	})
	if err != nil {
		return l.classify(ctx, id, "record attempt on "+id, err)
	}
	return rowToParticipation(row), nil
}

func (l *PostgresLedger) CompleteClaim(ctx context.Context, id string, receipt domain.Receipt) (domain.Participation, error) {
	var updated sqlc.Participation
	err := inTx(ctx, l.db, l.queries, func(q *sqlc.Queries) error {
		row, err := q.CompleteClaim(ctx, sqlc.CompleteClaimParams{
			ID:               id,
			ReceiptReference: receipt.Reference,
			ReceiptTxHash:    receipt.TxHash,
			ReceiptAmount:    receipt.Amount,
			ReceiptToAddress: receipt.ToAddress,
			SettledAt:        timeToPgTimestamptz(receipt.SettledAt),
		})
		if err != nil {
			return err
		}
		updated = row
		return q.InsertTransition(ctx, sqlc.InsertTransitionParams{
			ParticipationID: id,
			FromStatus:      string(domain.StatusClaiming),
			ToStatus:        string(domain.StatusClaimed),
			Reason:          "settled " + receipt.Reference,
			CreatedAt:       timeToPgTimestamptz(receipt.SettledAt),
		})
	})
	if err != nil {
		return l.classify(ctx, id, "complete claim "+id, err)
	}
	return rowToParticipation(updated), nil
}

func (l *PostgresLedger) FlagReconciliation(ctx context.Context, id string, reason string, now time.Time) (domain.Participation, error) {
	row, err := l.queries.FlagReconciliation(ctx, sqlc.FlagReconciliationParams{
		ID:     id,
		Reason: reason,
		Now:    timeToPgTimestamptz(now),
	})
	if err != nil {
		return l.classify(ctx, id, "flag "+id, err)
	}
	return rowToParticipation(row), nil
}

func (l *PostgresLedger) Transitions(ctx context.Context, id string) ([]Transition, error) {
	if _, err := l.GetParticipation(ctx, id); err != nil {
		return nil, err
	}
	rows, err := l.queries.ListTransitions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	out := make([]Transition, 0, len(rows))
	for _, row := range rows {
		out = append(out, Transition{
			From:   domain.ParticipationStatus(row.FromStatus),
			To:     domain.ParticipationStatus(row.ToStatus),
			Reason: row.Reason,
			At:     pgTimestamptzToTime(row.CreatedAt),
		})
	}
	return out, nil
}

func rowsToParticipations(rows []sqlc.Participation) []domain.Participation {
	out := make([]domain.Participation, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToParticipation(row))
	}
	return out
}
