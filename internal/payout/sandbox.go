package payout

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sandbox is an in-process rail that confirms every transfer once per
// idempotency key. It is used when no payout credentials are configured.
type Sandbox struct {
	mu        sync.Mutex
	transfers map[string]Result
	now       func() time.Time
}

var _ Rail = (*Sandbox)(nil)

func NewSandbox(now func() time.Time) *Sandbox {
	if now == nil {
		now = time.Now
	}
	return &Sandbox{transfers: make(map[string]Result), now: now}
}

func (s *Sandbox) SubmitTransfer(_ context.Context, t Transfer) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.transfers[t.IdempotencyKey]; ok {
		return res, nil
	}
	res := Result{
		State:     Confirmed,
		Reference: "sandbox-" + t.IdempotencyKey,
		TxHash:    fmt.Sprintf("0xsandbox%x", len(s.transfers)+1),
		Amount:    t.Amount,
		SettledAt: s.now(),
	}
	s.transfers[t.IdempotencyKey] = res
	return res, nil
}

func (s *Sandbox) TransferStatus(_ context.Context, key string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.transfers[key]; ok {
		return res, nil
	}
	return Result{State: NotFound}, nil
}

// Count returns how many distinct transfers were made.
func (s *Sandbox) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transfers)
}
