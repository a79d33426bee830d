package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const taskColumns = `id, title, description, kinds, user_to_follow, channel_to_join, cast_hash_to_like,
    cast_hash_to_recast, reward_per_participant, escrow_amount, max_participants, current_participants,
    required_actions, expires_at, status, created_by, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var i Task
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.Kinds,
		&i.UserToFollow,
		&i.ChannelToJoin,
		&i.CastHashToLike,
		&i.CastHashToRecast,
		&i.RewardPerParticipant,
		&i.EscrowAmount,
		&i.MaxParticipants,
		&i.CurrentParticipants,
		&i.RequiredActions,
		&i.ExpiresAt,
		&i.Status,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createTask = `-- name: CreateTask :one
INSERT INTO tasks (
    id, title, description, kinds, user_to_follow, channel_to_join, cast_hash_to_like,
    cast_hash_to_recast, reward_per_participant, escrow_amount, max_participants,
    required_actions, expires_at, status, created_by, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'ACTIVE', $14, $15, $15
)
RETURNING ` + taskColumns

type CreateTaskParams struct {
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
	RequiredActions      int32
	ExpiresAt            pgtype.Timestamptz
	CreatedBy            string
	CreatedAt            pgtype.Timestamptz
}

func (q *Queries) CreateTask(ctx context.Context, arg CreateTaskParams) (Task, error) {
	row := q.db.QueryRow(ctx, createTask,
		arg.ID,
		arg.Title,
		arg.Description,
		arg.Kinds,
		arg.UserToFollow,
		arg.ChannelToJoin,
		arg.CastHashToLike,
		arg.CastHashToRecast,
		arg.RewardPerParticipant,
		arg.EscrowAmount,
		arg.MaxParticipants,
		arg.RequiredActions,
		arg.ExpiresAt,
		arg.CreatedBy,
		arg.CreatedAt,
	)
	return scanTask(row)
}

const getTask = `-- name: GetTask :one
SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

func (q *Queries) GetTask(ctx context.Context, id string) (Task, error) {
	return scanTask(q.db.QueryRow(ctx, getTask, id))
}

const listTasks = `-- name: ListTasks :many
SELECT ` + taskColumns + ` FROM tasks
WHERE cardinality($1::text[]) = 0 OR status = ANY($1::text[])
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

type ListTasksParams struct {
	Statuses []string
	Limit    int32
	Offset   int32
}

func (q *Queries) ListTasks(ctx context.Context, arg ListTasksParams) ([]Task, error) {
	rows, err := q.db.Query(ctx, listTasks, arg.Statuses, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Task
	for rows.Next() {
		i, err := scanTask(rows)
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

// The whole admission check runs inside this single conditional UPDATE.
const reserveTaskSlot = `-- name: ReserveTaskSlot :one
UPDATE tasks
SET current_participants = current_participants + 1,
    status = CASE WHEN current_participants + 1 >= max_participants THEN 'FILLED' ELSE status END,
    updated_at = $2
WHERE id = $1
  AND status = 'ACTIVE'
  AND expires_at > $2
  AND current_participants < max_participants
RETURNING ` + taskColumns

type ReserveTaskSlotParams struct {
	ID  string
	Now pgtype.Timestamptz
}

func (q *Queries) ReserveTaskSlot(ctx context.Context, arg ReserveTaskSlotParams) (Task, error) {
	return scanTask(q.db.QueryRow(ctx, reserveTaskSlot, arg.ID, arg.Now))
}

const releaseTaskSlot = `-- name: ReleaseTaskSlot :one
UPDATE tasks
SET current_participants = current_participants - 1,
    status = CASE WHEN status = 'FILLED' AND expires_at > $2 THEN 'ACTIVE'
                  WHEN status = 'FILLED' THEN 'EXPIRED'
                  ELSE status END,
    updated_at = $2
WHERE id = $1 AND current_participants > 0
RETURNING ` + taskColumns

type ReleaseTaskSlotParams struct {
	ID  string
	Now pgtype.Timestamptz
}

func (q *Queries) ReleaseTaskSlot(ctx context.Context, arg ReleaseTaskSlotParams) (Task, error) {
	return scanTask(q.db.QueryRow(ctx, releaseTaskSlot, arg.ID, arg.Now))
}

const markTaskExpired = `-- name: MarkTaskExpired :one
UPDATE tasks
SET status = 'EXPIRED', updated_at = $2
WHERE id = $1 AND status IN ('ACTIVE', 'FILLED') AND expires_at <= $2
RETURNING ` + taskColumns

type MarkTaskExpiredParams struct {
	ID  string
	Now pgtype.Timestamptz
}

func (q *Queries) MarkTaskExpired(ctx context.Context, arg MarkTaskExpiredParams) (Task, error) {
	return scanTask(q.db.QueryRow(ctx, markTaskExpired, arg.ID, arg.Now))
}

const listExpirableTaskIDs = `-- name: ListExpirableTaskIDs :many
SELECT id FROM tasks
WHERE status IN ('ACTIVE', 'FILLED') AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`

type ListExpirableTaskIDsParams struct {
	Now   pgtype.Timestamptz
	Limit int32
}

func (q *Queries) ListExpirableTaskIDs(ctx context.Context, arg ListExpirableTaskIDsParams) ([]string, error) {
	rows, err := q.db.Query(ctx, listExpirableTaskIDs, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const cancelTask = `-- name: CancelTask :one
UPDATE tasks
SET status = 'CANCELLED', updated_at = $2
WHERE id = $1 AND status IN ('ACTIVE', 'FILLED')
RETURNING ` + taskColumns

type CancelTaskParams struct {
	ID  string
	Now pgtype.Timestamptz
}

func (q *Queries) CancelTask(ctx context.Context, arg CancelTaskParams) (Task, error) {
	return scanTask(q.db.QueryRow(ctx, cancelTask, arg.ID, arg.Now))
}
