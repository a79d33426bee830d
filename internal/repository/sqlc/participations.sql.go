package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const participationColumns = `id, task_id, participant_id, payout_address, joined_at, status, required_kinds,
    completed_actions, verify_attempts, next_verify_at, failure_reason, claim_started_at,
    needs_reconciliation, receipt_reference, receipt_tx_hash, receipt_amount, receipt_to_address,
    settled_at, updated_at`

func scanParticipation(row pgx.Row) (Participation, error) {
	var i Participation
	err := row.Scan(
		&i.ID,
		&i.TaskID,
		&i.ParticipantID,
		&i.PayoutAddress,
		&i.JoinedAt,
		&i.Status,
		&i.RequiredKinds,
		&i.CompletedActions,
		&i.VerifyAttempts,
		&i.NextVerifyAt,
		&i.FailureReason,
		&i.ClaimStartedAt,
		&i.NeedsReconciliation,
		&i.ReceiptReference,
		&i.ReceiptTxHash,
		&i.ReceiptAmount,
		&i.ReceiptToAddress,
		&i.SettledAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectParticipations(rows pgx.Rows, err error) ([]Participation, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Participation
	for rows.Next() {
		i, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createParticipation = `-- name: CreateParticipation :one
INSERT INTO participations (
    id, task_id, participant_id, payout_address, joined_at, status, required_kinds,
    next_verify_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, 'PENDING', $6, $5, $5
)
ON CONFLICT (task_id, participant_id) DO NOTHING
RETURNING ` + participationColumns

type CreateParticipationParams struct {
	ID            string
	TaskID        string
	ParticipantID string
	PayoutAddress string
	JoinedAt      pgtype.Timestamptz
	RequiredKinds []string
}

// CreateParticipation returns pgx.ErrNoRows when the (task, participant) pair already exists.
func (q *Queries) CreateParticipation(ctx context.Context, arg CreateParticipationParams) (Participation, error) {
	row := q.db.QueryRow(ctx, createParticipation,
		arg.ID,
		arg.TaskID,
		arg.ParticipantID,
		arg.PayoutAddress,
		arg.JoinedAt,
		arg.RequiredKinds,
	)
	return scanParticipation(row)
}

const getParticipation = `-- name: GetParticipation :one
SELECT ` + participationColumns + ` FROM participations WHERE id = $1`

func (q *Queries) GetParticipation(ctx context.Context, id string) (Participation, error) {
	return scanParticipation(q.db.QueryRow(ctx, getParticipation, id))
}

const getParticipationByTaskAndParticipant = `-- name: GetParticipationByTaskAndParticipant :one
SELECT ` + participationColumns + ` FROM participations WHERE task_id = $1 AND participant_id = $2`

type GetParticipationByTaskAndParticipantParams struct {
	TaskID        string
	ParticipantID string
}

func (q *Queries) GetParticipationByTaskAndParticipant(ctx context.Context, arg GetParticipationByTaskAndParticipantParams) (Participation, error) {
	return scanParticipation(q.db.QueryRow(ctx, getParticipationByTaskAndParticipant, arg.TaskID, arg.ParticipantID))
}

const listParticipationsByParticipant = `-- name: ListParticipationsByParticipant :many
SELECT ` + participationColumns + ` FROM participations
WHERE participant_id = $1
ORDER BY joined_at DESC`

func (q *Queries) ListParticipationsByParticipant(ctx context.Context, participantID string) ([]Participation, error) {
	return collectParticipations(q.db.Query(ctx, listParticipationsByParticipant, participantID))
}

const listDueParticipations = `-- name: ListDueParticipations :many
SELECT ` + participationColumns + ` FROM participations
WHERE status = $1 AND next_verify_at <= $2
ORDER BY next_verify_at
LIMIT $3`

type ListDueParticipationsParams struct {
	Status string
	Now    pgtype.Timestamptz
	Limit  int32
}

func (q *Queries) ListDueParticipations(ctx context.Context, arg ListDueParticipationsParams) ([]Participation, error) {
	return collectParticipations(q.db.Query(ctx, listDueParticipations, arg.Status, arg.Now, arg.Limit))
}

const listClaimingParticipations = `-- name: ListClaimingParticipations :many
SELECT ` + participationColumns + ` FROM participations
WHERE status = 'CLAIMING' AND claim_started_at <= $1
ORDER BY claim_started_at
LIMIT $2`

type ListClaimingParticipationsParams struct {
	StartedBefore pgtype.Timestamptz
	Limit         int32
}

func (q *Queries) ListClaimingParticipations(ctx context.Context, arg ListClaimingParticipationsParams) ([]Participation, error) {
	return collectParticipations(q.db.Query(ctx, listClaimingParticipations, arg.StartedBefore, arg.Limit))
}

// Compare-and-swap on status. Returns pgx.ErrNoRows when the current status is not From.
const advanceParticipationStatus = `-- name: AdvanceParticipationStatus :one
UPDATE participations
SET status = $3,
    failure_reason = CASE WHEN $3 IN ('FAILED', 'VERIFIED') THEN $4 ELSE failure_reason END,
    claim_started_at = CASE WHEN $3 = 'CLAIMING' THEN $5
                            WHEN $3 = 'VERIFIED' THEN NULL
                            ELSE claim_started_at END,
    needs_reconciliation = CASE WHEN $3 = 'CLAIMING' THEN needs_reconciliation ELSE false END,
    updated_at = $5
WHERE id = $1 AND status = $2
RETURNING ` + participationColumns

type AdvanceParticipationStatusParams struct {
	ID     string
	From   string
	To     string
	Reason string
	Now    pgtype.Timestamptz
}

func (q *Queries) AdvanceParticipationStatus(ctx context.Context, arg AdvanceParticipationStatusParams) (Participation, error) {
	row := q.db.QueryRow(ctx, advanceParticipationStatus, arg.ID, arg.From, arg.To, arg.Reason, arg.Now)
	return scanParticipation(row)
}

const appendCompletedAction = `-- name: AppendCompletedAction :one
UPDATE participations
SET completed_actions = CASE WHEN $2 = ANY(completed_actions) THEN completed_actions
                             ELSE array_append(completed_actions, $2) END,
    updated_at = $3
WHERE id = $1 AND status = 'PENDING' AND $2 = ANY(required_kinds)
RETURNING ` + participationColumns

type AppendCompletedActionParams struct {
	ID   string
	Kind string
	Now  pgtype.Timestamptz
}

func (q *Queries) AppendCompletedAction(ctx context.Context, arg AppendCompletedActionParams) (Participation, error) {
	return scanParticipation(q.db.QueryRow(ctx, appendCompletedAction, arg.ID, arg.Kind, arg.Now))
}

const recordVerifyAttempt = `-- name: RecordVerifyAttempt :one
UPDATE participations
SET verify_attempts = verify_attempts + 1,
    next_verify_at = $2,
    updated_at = $3
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + participationColumns

type RecordVerifyAttemptParams struct {
	ID           string
	NextVerifyAt pgtype.Timestamptz
	Now          pgtype.Timestamptz
}

func (q *Queries) RecordVerifyAttempt(ctx context.Context, arg RecordVerifyAttemptParams) (Participation, error) {
	return scanParticipation(q.db.QueryRow(ctx, recordVerifyAttempt, arg.ID, arg.NextVerifyAt, arg.Now))
}

const completeClaim = `-- name: CompleteClaim :one
UPDATE participations
SET status = 'CLAIMED',
    receipt_reference = $2,
    receipt_tx_hash = $3,
    receipt_amount = $4,
    receipt_to_address = $5,
    settled_at = $6,
    needs_reconciliation = false,
    failure_reason = '',
    updated_at = $6
WHERE id = $1 AND status = 'CLAIMING'
RETURNING ` + participationColumns

type CompleteClaimParams struct {
	ID               string
	ReceiptReference string
	ReceiptTxHash    string
	ReceiptAmount    decimal.Decimal
	ReceiptToAddress string
	SettledAt        pgtype.Timestamptz
}

func (q *Queries) CompleteClaim(ctx context.Context, arg CompleteClaimParams) (Participation, error) {
	row := q.db.QueryRow(ctx, completeClaim,
		arg.ID,
		arg.ReceiptReference,
		arg.ReceiptTxHash,
		arg.ReceiptAmount,
		arg.ReceiptToAddress,
		arg.SettledAt,
	)
	return scanParticipation(row)
}

const flagReconciliation = `-- name: FlagReconciliation :one
UPDATE participations
SET needs_reconciliation = true, failure_reason = $2, updated_at = $3
WHERE id = $1 AND status = 'CLAIMING'
RETURNING ` + participationColumns

type FlagReconciliationParams struct {
	ID     string
	Reason string
	Now    pgtype.Timestamptz
}

func (q *Queries) FlagReconciliation(ctx context.Context, arg FlagReconciliationParams) (Participation, error) {
	return scanParticipation(q.db.QueryRow(ctx, flagReconciliation, arg.ID, arg.Reason, arg.Now))
}

const insertTransition = `-- name: InsertTransition :exec
INSERT INTO participation_transitions (participation_id, from_status, to_status, reason, created_at)
VALUES ($1, $2, $3, $4, $5)`

type InsertTransitionParams struct {
	ParticipationID string
	FromStatus      string
	ToStatus        string
	Reason          string
	CreatedAt       pgtype.Timestamptz
}

func (q *Queries) InsertTransition(ctx context.Context, arg InsertTransitionParams) error {
	_, err := q.db.Exec(ctx, insertTransition,
		arg.ParticipationID,
		arg.FromStatus,
		arg.ToStatus,
		arg.Reason,
		arg.CreatedAt,
	)
	return err
}

const listTransitions = `-- name: ListTransitions :many
SELECT id, participation_id, from_status, to_status, reason, created_at
FROM participation_transitions
WHERE participation_id = $1
ORDER BY id`

func (q *Queries) ListTransitions(ctx context.Context, participationID string) ([]ParticipationTransition, error) {
	rows, err := q.db.Query(ctx, listTransitions, participationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ParticipationTransition
	for rows.Next() {
		var i ParticipationTransition
		if err := rows.Scan(
			&i.ID,
			&i.ParticipationID,
			&i.FromStatus,
			&i.ToStatus,
			&i.Reason,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
