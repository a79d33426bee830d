package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/payout"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
)

func statusPath(t *testing.T, ledger *repository.MemoryLedger, id string) []domain.ParticipationStatus {
	t.Helper()
	trs, err := ledger.Transitions(context.Background(), id)
	require.NoError(t, err)
	out := make([]domain.ParticipationStatus, 0, len(trs))
	for _, tr := range trs {
		out = append(out, tr.To)
	}
	return out
}

func TestClaimSettlesOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.createTask(t, 5)
	p := h.verified(t, task.ID, "8")

	view, err := h.engine.Claim(ctx, p.ID, "8")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewClaimed, view.Status)
	require.NotNil(t, view.Receipt)
	assert.True(t, decimal.RequireFromString("0.001").Equal(view.Receipt.Amount))

	_, err = h.engine.Claim(ctx, p.ID, "8")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	assert.Equal(t, []domain.ParticipationStatus{
		domain.StatusPending, domain.StatusVerified, domain.StatusClaiming, domain.StatusClaimed,
	}, statusPath(t, h.ledger, p.ID))
	assert.Equal(t, 1, h.alerts.settled)
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	sandbox := payout.NewSandbox(func() time.Time { return t0 })
	h := newHarness(t, sandbox)
	task := h.createTask(t, 5)
	p := h.verified(t, task.ID, "8")

	const n = 16
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.Claim(context.Background(), p.ID, "")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrAlreadyClaimed) || errors.Is(err, domain.ErrNotVerified), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, sandbox.Count())
}

func TestClaimPendingThenConfirmedByReconcile(t *testing.T) {
	var (
		mu        sync.Mutex
		confirmed bool
	)
	rail := &scriptedRail{
		submit: func(tr payout.Transfer) (payout.Result, error) {
			return payout.Result{State: payout.Pending, Reference: "po-" + tr.IdempotencyKey}, nil
		},
		status: func(key string) (payout.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			if !confirmed {
				return payout.Result{State: payout.Pending}, nil
			}
			return payout.Result{State: payout.Confirmed, Reference: "po-" + key, TxHash: "0xfeed", Amount: decimal.RequireFromString("0.001")}, nil
		},
	}
	h := newHarness(t, rail)
	ctx := context.Background()
	task := h.createTask(t, 5)
	p := h.verified(t, task.ID, "8")

	view, err := h.engine.Claim(ctx, p.ID, "")
	assert.ErrorIs(t, err, domain.ErrSettlementPending)
	assert.Equal(t, domain.ViewProcessing, view.Status)
	assert.False(t, view.CanClaim)

	_, err = h.engine.Claim(ctx, p.ID, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, int64(1), rail.submits.Load(), "no second transfer while pending")

	// Too recent for reconciliation.
	stats, err := h.settle.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Checked)

	h.clock.Advance(6 * time.Minute)
	stats, err = h.settle.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Held)

	mu.Lock()
	confirmed = true
	mu.Unlock()
	stats, err = h.settle.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Settled)

	got, err := h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClaimed, got.Status)
	require.NotNil(t, got.Receipt)
	assert.Equal(t, "0xfeed", got.Receipt.TxHash)
	assert.Equal(t, addrA, got.Receipt.ToAddress)

	stats, err = h.settle.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Checked)
	assert.Equal(t, int64(1), rail.submits.Load())
}

func TestClaimRejectedRevertsForRetry(t *testing.T) {
	var calls int
	rail := &scriptedRail{
		submit: func(tr payout.Transfer) (payout.Result, error) {
			calls++
			if calls == 1 {
				return payout.Result{State: payout.Rejected, Reason: "insufficient merchant balance"}, nil
			}
			return payout.Result{State: payout.Confirmed, Reference: "po-1", Amount: tr.Amount}, nil
		},
	}
	h := newHarness(t, rail)
	ctx := context.Background()
	task := h.createTask(t, 5)
	p := h.verified(t, task.ID, "8")

	view, err := h.engine.Claim(ctx, p.ID, "")
	assert.ErrorIs(t, err, domain.ErrSettlementFailed)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, domain.ViewVerified, view.Status)
	assert.True(t, view.CanClaim)

	view, err = h.engine.Claim(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewClaimed, view.Status)

	assert.Equal(t, []domain.ParticipationStatus{
		domain.StatusPending, domain.StatusVerified,
		domain.StatusClaiming, domain.StatusVerified,
		domain.StatusClaiming, domain.StatusClaimed,
	}, statusPath(t, h.ledger, p.ID))
}

func TestClaimAmbiguousIsHeldNotReverted(t *testing.T) {
	var mu sync.Mutex
	statusAnswer := payout.Result{State: payout.Pending}
	rail := &scriptedRail{
		submit: func(payout.Transfer) (payout.Result, error) {
			return payout.Result{}, context.DeadlineExceeded
		},
		status: func(string) (payout.Result, error) {
			mu.Lock()
			defer mu.Unlock()
			return statusAnswer, nil
		},
	}
	h := newHarness(t, rail)
	ctx := context.Background()
	task := h.createTask(t, 5)
	p := h.verified(t, task.ID, "8")

	view, err := h.engine.Claim(ctx, p.ID, "")
	assert.ErrorIs(t, err, domain.ErrSettlementAmbiguous)
	assert.Equal(t, domain.ViewProcessing, view.Status)

	got, err := h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClaiming, got.Status)
	assert.True(t, got.NeedsReconciliation)
	assert.Equal(t, []string{p.ID}, h.alerts.held)

	_, err = h.engine.Claim(ctx, p.ID, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, int64(1), rail.submits.Load())

	// The rail never saw the transfer: it is safe to let the user retry.
	mu.Lock()
	statusAnswer = payout.Result{State: payout.NotFound}
	mu.Unlock()
	h.clock.Advance(10 * time.Minute)
	stats, err := h.settle.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reverted)

	got, err = h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, got.Status)
	assert.False(t, got.NeedsReconciliation)
}

func TestClaimIgnoresCallerCancellationAfterCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rail := &scriptedRail{
		submit: func(tr payout.Transfer) (payout.Result, error) {
			cancel()
			return payout.Result{State: payout.Confirmed, Reference: "po-1", Amount: tr.Amount}, nil
		},
	}
	h := newHarness(t, rail)
	task := h.createTask(t, 5)
	p := h.verified(t, task.ID, "8")

	view, err := h.engine.Claim(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ViewClaimed, view.Status)
}
