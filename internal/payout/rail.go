package payout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type State int

const (
	// NotFound means the rail has no record of the idempotency key, so the
	// transfer never took effect.
	NotFound State = iota
	Pending
	Confirmed
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "not_found"
	}
}

type Transfer struct {
	ToAddress      string
	Amount         decimal.Decimal
	IdempotencyKey string
}

type Result struct {
	State     State
	Reference string
	TxHash    string
	Amount    decimal.Decimal
	Reason    string
	SettledAt time.Time
}

// Rail submits reward transfers. A returned error means the outcome is not
// known: the transfer may or may not have taken effect.
type Rail interface {
	SubmitTransfer(ctx context.Context, t Transfer) (Result, error)
	TransferStatus(ctx context.Context, idempotencyKey string) (Result, error)
}
