package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
	"github.com/BernardOnuh/faucet-claim/internal/socialgraph"
)

func TestBackoffDoublesUpToMax(t *testing.T) {
	p := VerificationPolicy{BackoffBase: time.Minute, BackoffMax: 10 * time.Minute}

	assert.Equal(t, time.Minute, p.Backoff(0))
	assert.Equal(t, time.Minute, p.Backoff(1))
	assert.Equal(t, 2*time.Minute, p.Backoff(2))
	assert.Equal(t, 8*time.Minute, p.Backoff(4))
	assert.Equal(t, 10*time.Minute, p.Backoff(5))
	assert.Equal(t, 10*time.Minute, p.Backoff(40))
}

func TestSweepVerifiesCompositeTaskWhenAllActionsSeen(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.createTask(t, 5, domain.ActionFollowUser, domain.ActionRecastCast)

	p, _, err := h.engine.Join(ctx, task.ID, "5", addrA)
	require.NoError(t, err)

	sub, err := h.engine.Subscribe("5")
	require.NoError(t, err)
	defer sub.Close()

	h.graph.set("fid:5", domain.ActionFollowUser, socialgraph.Satisfied)
	h.graph.set("fid:5", domain.ActionRecastCast, socialgraph.NotSatisfied)

	stats, err := h.verifier.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Deferred)

	got, err := h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, []domain.ActionKind{domain.ActionFollowUser}, got.CompletedActions)
	assert.Equal(t, 1, got.VerifyAttempts)
	assert.Equal(t, t0.Add(time.Minute), got.NextVerifyAt)

	// Not due yet: nothing is checked.
	stats, err = h.verifier.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Checked)

	h.graph.set("fid:5", domain.ActionRecastCast, socialgraph.Satisfied)
	h.clock.Advance(time.Minute)
	stats, err = h.verifier.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Verified)

	got, err = h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, got.Status)
	assert.True(t, domain.NewParticipationView(got).CanClaim)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, notify.EventVerified, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no verified event")
	}
}

func TestSweepFailsAfterRetryBudget(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.createTask(t, 5)

	p, _, err := h.engine.Join(ctx, task.ID, "5", addrA)
	require.NoError(t, err)
	// No answer configured: every check is Unknown.

	for i := 0; i < 2; i++ {
		_, err := h.verifier.Sweep(ctx)
		require.NoError(t, err)
		got, err := h.ledger.GetParticipation(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusPending, got.Status, "attempt %d", i+1)
		h.clock.Advance(10 * time.Minute)
	}

	stats, err := h.verifier.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)

	got, err := h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, domain.ErrVerificationUnknown.Error())
	assert.Equal(t, []string{p.ID}, h.alerts.exhausted)
}

func TestSweepFailsPendingPastGrace(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.createTask(t, 5)

	p, _, err := h.engine.Join(ctx, task.ID, "5", addrA)
	require.NoError(t, err)

	h.clock.Advance(time.Hour + testPolicy().Grace)
	_, err = h.verifier.Sweep(ctx)
	require.NoError(t, err)

	got, err := h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Zero(t, h.graph.calls, "no external call once the grace period is over")

	_, err = h.engine.Claim(ctx, p.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotVerified)
}

func TestSweepNeverSchedulesPastGrace(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.createTask(t, 5)

	p, _, err := h.engine.Join(ctx, task.ID, "5", addrA)
	require.NoError(t, err)

	h.clock.Advance(time.Hour + 14*time.Minute)
	_, err = h.verifier.Sweep(ctx)
	require.NoError(t, err)

	got, err := h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ExpiresAt.Add(testPolicy().Grace), got.NextVerifyAt)
}

func TestSweepFailsParticipationsOfCancelledTasks(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.createTask(t, 5)

	p, _, err := h.engine.Join(ctx, task.ID, "5", addrA)
	require.NoError(t, err)
	_, err = h.engine.CancelTask(ctx, task.ID)
	require.NoError(t, err)

	_, err = h.verifier.Sweep(ctx)
	require.NoError(t, err)

	got, err := h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "task cancelled", got.FailureReason)
}

func TestSweepLeavesVerifiedAlone(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.createTask(t, 5)
	p := h.verified(t, task.ID, "5")

	h.clock.Advance(2 * time.Hour)
	stats, err := h.verifier.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Checked)

	got, err := h.ledger.GetParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, got.Status)
}
