package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
)

func TestCreateTaskEscrowsEverySlot(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 100, domain.ActionFollowUser, domain.ActionLikeCast)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.TaskStatusActive, task.Status)
	assert.Equal(t, 2, task.RequiredActions)
	assert.True(t, decimal.RequireFromString("0.1").Equal(task.EscrowAmount))
	assert.Equal(t, 1, h.alerts.created)
}

func TestCreateTaskRejectsInvalidDefinitions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	valid := domain.NewTask{
		Title:                "Follow",
		Kinds:                []domain.ActionKind{domain.ActionFollowUser},
		Target:               domain.TargetData{UserToFollow: "dwr"},
		RewardPerParticipant: decimal.RequireFromString("0.001"),
		MaxParticipants:      10,
		ExpiresAt:            t0.Add(time.Hour),
	}

	tests := []struct {
		name   string
		mutate func(n *domain.NewTask)
	}{
		{"too short", func(n *domain.NewTask) { n.ExpiresAt = t0.Add(30 * time.Second) }},
		{"over cap", func(n *domain.NewTask) { n.MaxParticipants = 1001 }},
		{"zero reward", func(n *domain.NewTask) { n.RewardPerParticipant = decimal.Zero }},
		{"missing target", func(n *domain.NewTask) { n.Kinds = []domain.ActionKind{domain.ActionJoinChannel} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := h.engine.CreateTask(ctx, in)
			assert.ErrorIs(t, err, domain.ErrInvalidTask)
		})
	}
}

func TestJoinThreeConcurrentOnTwoSlots(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 2)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		joined  int
		refused []error
	)
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := h.engine.Join(context.Background(), task.ID, fmt.Sprintf("%d", i), addrA)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				refused = append(refused, err)
				return
			}
			if created {
				joined++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, joined)
	require.Len(t, refused, 1)
	assert.ErrorIs(t, refused[0], domain.ErrCapacityExceeded)

	view, err := h.engine.GetTaskView(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Progress.Current)
	assert.Equal(t, domain.TaskStatusFilled, view.Status)
}

func TestJoinManyConcurrentNeverOverAdmits(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 7)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = h.engine.Join(context.Background(), task.ID, fmt.Sprintf("fid:%d", i), addrA)
		}()
	}
	wg.Wait()

	got, err := h.tasks.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.CurrentParticipants)

	total := 0
	for i := 1; i <= 50; i++ {
		ps, err := h.ledger.ListByParticipant(context.Background(), fmt.Sprintf("fid:%d", i))
		require.NoError(t, err)
		total += len(ps)
	}
	assert.Equal(t, 7, total)
}

func TestJoinConcurrentDuplicatesShareOneParticipation(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 50)

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := h.engine.Join(context.Background(), task.ID, "42", addrA)
			if assert.NoError(t, err) {
				ids[i] = p.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	got, err := h.tasks.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentParticipants, "duplicate joins must give their slot back")
}

func TestJoinRepeatedReturnsExistingUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 5)
	ctx := context.Background()

	first, created, err := h.engine.Join(ctx, task.ID, "fid:9", addrA)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := h.engine.Join(ctx, task.ID, "9", addrB)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, addrA, second.PayoutAddress)
}

func TestJoinRejectsBadInputAndClosedTasks(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 5)
	ctx := context.Background()

	_, _, err := h.engine.Join(ctx, task.ID, "alice", addrA)
	assert.ErrorIs(t, err, domain.ErrInvalidParticipant)

	_, _, err = h.engine.Join(ctx, task.ID, "1", "0x123")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, _, err = h.engine.Join(ctx, "missing", "1", addrA)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	_, err = h.engine.CancelTask(ctx, task.ID)
	require.NoError(t, err)
	_, _, err = h.engine.Join(ctx, task.ID, "1", addrA)
	assert.ErrorIs(t, err, domain.ErrTaskNotActive)

	other := h.createTask(t, 5)
	h.clock.Advance(time.Hour)
	_, _, err = h.engine.Join(ctx, other.ID, "1", addrA)
	assert.ErrorIs(t, err, domain.ErrTaskExpired)
}

// failingLedger refuses every create so the compensating release runs.
type failingLedger struct {
	repository.ParticipationLedger
}

func (failingLedger) CreateParticipation(context.Context, domain.NewParticipation) (domain.Participation, error) {
	return domain.Participation{}, errors.New("disk full")
}

func TestJoinReleasesSlotWhenLedgerFails(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 1)
	h.engine.ledger = failingLedger{ParticipationLedger: h.ledger}

	_, _, err := h.engine.Join(context.Background(), task.ID, "1", addrA)
	require.Error(t, err)

	got, err := h.tasks.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentParticipants)
	assert.Equal(t, domain.TaskStatusActive, got.Status)
}

// gatedLedger holds the first create until release is closed.
type gatedLedger struct {
	repository.ParticipationLedger
	creates atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newGatedLedger(inner repository.ParticipationLedger) *gatedLedger {
	return &gatedLedger{ParticipationLedger: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedLedger) CreateParticipation(ctx context.Context, in domain.NewParticipation) (domain.Participation, error) {
	if g.creates.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.ParticipationLedger.CreateParticipation(ctx, in)
}

type joinOutcome struct {
	p       domain.Participation
	created bool
	err     error
}

// startGatedJoin begins a join of participant "1" that stalls inside the
// ledger, then starts a duplicate of it.
func startGatedJoin(t *testing.T, h *harness, g *gatedLedger, taskID string) (first, dup chan joinOutcome) {
	t.Helper()
	first = make(chan joinOutcome, 1)
	dup = make(chan joinOutcome, 1)
	join := func(out chan joinOutcome) {
		p, created, err := h.engine.Join(context.Background(), taskID, "1", addrA)
		out <- joinOutcome{p: p, created: created, err: err}
	}
	go join(first)
	select {
	case <-g.entered:
	case <-time.After(time.Second):
		t.Fatal("first join never reached the ledger")
	}
	go join(dup)
	time.Sleep(50 * time.Millisecond)
	return first, dup
}

func TestDuplicateConcurrentJoinOnLastSlotSharesParticipation(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 1)
	g := newGatedLedger(h.ledger)
	h.engine.ledger = g

	first, dup := startGatedJoin(t, h, g, task.ID)
	close(g.release)

	a, b := <-first, <-dup
	require.NoError(t, a.err)
	require.NoError(t, b.err, "the duplicate must not be turned away")
	assert.Equal(t, a.p.ID, b.p.ID)
	assert.True(t, a.created != b.created, "exactly one caller reports the creation")

	got, err := h.tasks.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentParticipants)
	assert.Equal(t, domain.TaskStatusFilled, got.Status)
}

func TestDuplicateConcurrentJoinTakesOneSlot(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 2)
	g := newGatedLedger(h.ledger)
	h.engine.ledger = g

	first, dup := startGatedJoin(t, h, g, task.ID)

	// The duplicate holds no slot, so another participant still fits.
	other, created, err := h.engine.Join(context.Background(), task.ID, "fid:2", addrB)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "fid:2", other.ParticipantID)

	close(g.release)
	a, b := <-first, <-dup
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Equal(t, a.p.ID, b.p.ID)

	got, err := h.tasks.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentParticipants)
	assert.Equal(t, domain.TaskStatusFilled, got.Status)

	list, err := h.ledger.ListByParticipant(context.Background(), "fid:1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestJoinPublishesToParticipantSubscribers(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 5)

	sub, err := h.engine.Subscribe("7")
	require.NoError(t, err)
	defer sub.Close()

	_, _, err = h.engine.Join(context.Background(), task.ID, "7", addrA)
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, notify.EventJoined, ev.Type)
		require.NotNil(t, ev.Participation)
		assert.Equal(t, domain.ViewPending, ev.Participation.Status)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestClaimChecksOwnershipAndStatus(t *testing.T) {
	h := newHarness(t, nil)
	task := h.createTask(t, 5)
	ctx := context.Background()

	p, _, err := h.engine.Join(ctx, task.ID, "1", addrA)
	require.NoError(t, err)

	_, err = h.engine.Claim(ctx, p.ID, "1")
	assert.ErrorIs(t, err, domain.ErrNotVerified)

	_, err = h.engine.Claim(ctx, p.ID, "2")
	assert.ErrorIs(t, err, domain.ErrParticipationNotFound)

	_, err = h.engine.Claim(ctx, "nope", "")
	assert.ErrorIs(t, err, domain.ErrParticipationNotFound)
}

func TestUserTasksAndStats(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	a := h.createTask(t, 5)
	b := h.createTask(t, 5, domain.ActionJoinChannel)
	h.createTask(t, 5)

	p := h.verified(t, a.ID, "3")
	_, err := h.engine.Claim(ctx, p.ID, "fid:3")
	require.NoError(t, err)

	_, _, err = h.engine.Join(ctx, b.ID, "3", addrA)
	require.NoError(t, err)

	tasks, err := h.engine.GetUserTasks(ctx, "3")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	byTask := map[string]domain.ParticipationView{}
	for _, ut := range tasks {
		byTask[ut.Task.ID] = ut.Participation
	}
	assert.Equal(t, domain.ViewClaimed, byTask[a.ID].Status)
	require.NotNil(t, byTask[a.ID].Receipt)
	assert.Equal(t, domain.ViewPending, byTask[b.ID].Status)
	assert.False(t, byTask[b.ID].CanClaim)

	stats, err := h.engine.GetUserStats(ctx, "fid:3")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TasksJoined)
	assert.Equal(t, 1, stats.TasksCompleted)
	assert.True(t, decimal.RequireFromString("0.001").Equal(stats.TotalEarned))
}

func TestListTaskViewsFiltersByStatus(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	open := h.createTask(t, 5)
	closed := h.createTask(t, 5)
	_, err := h.engine.CancelTask(ctx, closed.ID)
	require.NoError(t, err)

	views, err := h.engine.ListTaskViews(ctx, repository.TaskFilter{Statuses: []domain.TaskStatus{domain.TaskStatusActive}})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, open.ID, views[0].ID)
	assert.Equal(t, time.Hour, views[0].TimeRemaining)
}
