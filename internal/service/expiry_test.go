package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
)

func TestExpirySweepIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	task := h.createTask(t, 2)
	cancelled := h.createTask(t, 2)
	_, err := h.engine.CancelTask(ctx, cancelled.ID)
	require.NoError(t, err)

	sub, err := h.engine.Subscribe("")
	require.NoError(t, err)
	defer sub.Close()

	n, err := h.expiry.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(time.Hour)
	n, err = h.expiry.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.expiry.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := h.tasks.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusExpired, got.Status)

	got, err = h.tasks.GetTask(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, got.Status)

	ev := <-sub.Events()
	assert.Equal(t, notify.EventTaskStatusChange, ev.Type)
	require.NotNil(t, ev.Task)
	assert.Equal(t, domain.TaskStatusExpired, ev.Task.Status)
}

func TestRunEveryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunEvery(ctx, "test", 5*time.Millisecond, func(context.Context) error {
			select {
			case calls <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	<-calls
	<-calls
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunEvery did not return after cancel")
	}
}
