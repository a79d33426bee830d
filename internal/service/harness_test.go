package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
	"github.com/BernardOnuh/faucet-claim/internal/payout"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
	"github.com/BernardOnuh/faucet-claim/internal/socialgraph"
)

var t0 = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingAlerts struct {
	mu        sync.Mutex
	errors    []error
	created   int
	settled   int
	held      []string
	exhausted []string
}

func (a *recordingAlerts) LogError(err error, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, err)
}

func (a *recordingAlerts) LogTaskCreated(domain.Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created++
}

func (a *recordingAlerts) LogClaimSettled(domain.Participation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled++
}

func (a *recordingAlerts) LogSettlementHeld(p domain.Participation, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.held = append(a.held, p.ID)
}

func (a *recordingAlerts) LogVerificationExhausted(p domain.Participation, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exhausted = append(a.exhausted, p.ID)
}

// graph answers checks from a table keyed by participant and kind. Missing
// entries are Unknown.
type graph struct {
	mu      sync.Mutex
	answers map[string]socialgraph.Outcome
	calls   int
}

func newGraph() *graph {
	return &graph{answers: make(map[string]socialgraph.Outcome)}
}

func (g *graph) set(participantID string, kind domain.ActionKind, o socialgraph.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers[participantID+"/"+string(kind)] = o
}

func (g *graph) CheckAction(_ context.Context, participantID string, kind domain.ActionKind, _ domain.TargetData) (socialgraph.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.answers[participantID+"/"+string(kind)], nil
}

// scriptedRail lets a test decide every rail answer.
type scriptedRail struct {
	submits atomic.Int64
	submit  func(t payout.Transfer) (payout.Result, error)
	status  func(key string) (payout.Result, error)
}

func (r *scriptedRail) SubmitTransfer(_ context.Context, t payout.Transfer) (payout.Result, error) {
	r.submits.Add(1)
	return r.submit(t)
}

func (r *scriptedRail) TransferStatus(_ context.Context, key string) (payout.Result, error) {
	return r.status(key)
}

type harness struct {
	clock    *clock
	tasks    *repository.MemoryTaskStore
	ledger   *repository.MemoryLedger
	hub      *notify.Hub
	alerts   *recordingAlerts
	graph    *graph
	engine   *TaskEngine
	verifier *VerificationCoordinator
	settle   *ClaimSettlement
	expiry   *ExpirySweeper
}

func testPolicy() VerificationPolicy {
	return VerificationPolicy{
		MaxAttempts:  3,
		BackoffBase:  time.Minute,
		BackoffMax:   10 * time.Minute,
		Grace:        15 * time.Minute,
		CheckTimeout: time.Second,
		Concurrency:  4,
		BatchSize:    100,
	}
}

func newHarness(t *testing.T, rail payout.Rail) *harness {
	t.Helper()

	h := &harness{
		clock:  &clock{t: t0},
		tasks:  repository.NewMemoryTaskStore(),
		ledger: repository.NewMemoryLedger(),
		hub:    notify.NewHub(256),
		alerts: &recordingAlerts{},
		graph:  newGraph(),
	}
	if rail == nil {
		rail = payout.NewSandbox(h.clock.Now)
	}

	h.settle = NewClaimSettlement(h.tasks, h.ledger, rail, h.hub, h.alerts, time.Second, 5*time.Minute)
	h.settle.now = h.clock.Now

	h.verifier = NewVerificationCoordinator(h.tasks, h.ledger, h.graph, h.hub, h.alerts, testPolicy())
	h.verifier.now = h.clock.Now

	h.engine = NewTaskEngine(EngineDeps{
		Tasks:      h.tasks,
		Ledger:     h.ledger,
		Settlement: h.settle,
		Events:     h.hub,
		Hub:        h.hub,
		Alerts:     h.alerts,
	})
	h.engine.now = h.clock.Now

	h.expiry = NewExpirySweeper(h.tasks, h.hub)
	h.expiry.now = h.clock.Now
	return h
}

func (h *harness) createTask(t *testing.T, max int, kinds ...domain.ActionKind) domain.Task {
	t.Helper()
	if len(kinds) == 0 {
		kinds = []domain.ActionKind{domain.ActionFollowUser}
	}
	task, err := h.engine.CreateTask(context.Background(), domain.NewTask{
		Title: "Grow the channel",
		Kinds: kinds,
		Target: domain.TargetData{
			UserToFollow:     "dwr",
			ChannelToJoin:    "base",
			CastHashToLike:   "0xcast",
			CastHashToRecast: "0xcast",
		},
		RewardPerParticipant: decimal.RequireFromString("0.001"),
		MaxParticipants:      max,
		ExpiresAt:            h.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return task
}

// verified joins participantID and drives the participation to VERIFIED.
func (h *harness) verified(t *testing.T, taskID, participantID string) domain.Participation {
	t.Helper()
	ctx := context.Background()
	p, created, err := h.engine.Join(ctx, taskID, participantID, addrA)
	require.NoError(t, err)
	require.True(t, created)
	for _, k := range p.RequiredKinds {
		p, err = h.ledger.RecordAction(ctx, p.ID, k, h.clock.Now())
		require.NoError(t, err)
	}
	require.Equal(t, domain.StatusVerified, p.Status)
	return p
}
