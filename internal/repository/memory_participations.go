package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

// MemoryLedger is a ParticipationLedger guarded by a single mutex. Every
// compare-and-swap happens inside one critical section.
type MemoryLedger struct {
	mu          sync.Mutex
	byID        map[string]*domain.Participation
	byPair      map[string]string
	transitions map[string][]Transition
}

var _ ParticipationLedger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:        make(map[string]*domain.Participation),
		byPair:      make(map[string]string),
		transitions: make(map[string][]Transition),
	}
}

func pairKey(taskID, participantID string) string {
	return taskID + "\x00" + participantID
}

func cloneParticipation(p *domain.Participation) domain.Participation {
	out := *p
	out.RequiredKinds = append([]domain.ActionKind(nil), p.RequiredKinds...)
	out.CompletedActions = append([]domain.ActionKind(nil), p.CompletedActions...)
	if p.ClaimStartedAt != nil {
		t := *p.ClaimStartedAt
		out.ClaimStartedAt = &t
	}
	if p.Receipt != nil {
		r := *p.Receipt
		out.Receipt = &r
	}
	return out
}

func (l *MemoryLedger) CreateParticipation(_ context.Context, np domain.NewParticipation) (domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := pairKey(np.TaskID, np.ParticipantID)
	if id, exists := l.byPair[key]; exists {
		return cloneParticipation(l.byID[id]), domain.ErrAlreadyJoined
	}

	p := &domain.Participation{
		ID:            uuid.NewString(),
		TaskID:        np.TaskID,
		ParticipantID: np.ParticipantID,
		PayoutAddress: np.PayoutAddress,
		JoinedAt:      np.JoinedAt,
		Status:        domain.StatusPending,
		RequiredKinds: append([]domain.ActionKind(nil), np.RequiredKinds...),
		NextVerifyAt:  np.JoinedAt,
		UpdatedAt:     np.JoinedAt,
	}
	l.byID[p.ID] = p
	l.byPair[key] = p.ID
	l.record(p.ID, "", domain.StatusPending, "joined", np.JoinedAt)
	return cloneParticipation(p), nil
}

func (l *MemoryLedger) GetParticipation(_ context.Context, id string) (domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[id]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	return cloneParticipation(p), nil
}

func (l *MemoryLedger) FindParticipation(_ context.Context, taskID, participantID string) (domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byPair[pairKey(taskID, participantID)]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	return cloneParticipation(l.byID[id]), nil
}

func (l *MemoryLedger) ListByParticipant(_ context.Context, participantID string) ([]domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Participation
	for _, p := range l.byID {
		if p.ParticipantID == participantID {
			out = append(out, cloneParticipation(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	return out, nil
}

func (l *MemoryLedger) ListDue(_ context.Context, status domain.ParticipationStatus, now time.Time, limit int) ([]domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Participation
	for _, p := range l.byID {
		if p.Status == status && !p.NextVerifyAt.After(now) {
			out = append(out, cloneParticipation(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextVerifyAt.Before(out[j].NextVerifyAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) ListClaiming(_ context.Context, startedBefore time.Time, limit int) ([]domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Participation
	for _, p := range l.byID {
		if p.Status == domain.StatusClaiming && p.ClaimStartedAt != nil && !p.ClaimStartedAt.After(startedBefore) {
			out = append(out, cloneParticipation(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimStartedAt.Before(*out[j].ClaimStartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) AdvanceStatus(_ context.Context, id string, from, to domain.ParticipationStatus, reason string, now time.Time) (domain.Participation, error) {
	if !domain.CanTransition(from, to) {
		return domain.Participation{}, fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[id]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	if p.Status != from {
		return cloneParticipation(p), fmt.Errorf("advance %s from %s (is %s): %w", id, from, p.Status, domain.ErrConflict)
	}
	l.apply(p, to, reason, now)
	return cloneParticipation(p), nil
}

// apply performs an already validated transition. Caller holds l.mu.
func (l *MemoryLedger) apply(p *domain.Participation, to domain.ParticipationStatus, reason string, now time.Time) {
	from := p.Status
	p.Status = to
	switch to {
	case domain.StatusFailed:
		p.FailureReason = reason
		p.NeedsReconciliation = false
	case domain.StatusVerified:
		p.FailureReason = reason
		p.ClaimStartedAt = nil
		p.NeedsReconciliation = false
	case domain.StatusClaiming:
		started := now
		p.ClaimStartedAt = &started
	case domain.StatusClaimed:
		p.NeedsReconciliation = false
	}
	p.UpdatedAt = now
	l.record(p.ID, from, to, reason, now)
}

func (l *MemoryLedger) record(id string, from, to domain.ParticipationStatus, reason string, at time.Time) {
	l.transitions[id] = append(l.transitions[id], Transition{From: from, To: to, Reason: reason, At: at})
}

func (l *MemoryLedger) RecordAction(_ context.Context, id string, kind domain.ActionKind, now time.Time) (domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[id]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	if !p.Requires(kind) {
		return cloneParticipation(p), fmt.Errorf("record %s on %s: not required: %w", kind, id, domain.ErrInvalidTransition)
	}
	if p.Status != domain.StatusPending {
		return cloneParticipation(p), nil
	}
	if !p.HasAction(kind) {
		p.CompletedActions = append(p.CompletedActions, kind)
		p.UpdatedAt = now
	}
	if p.Ready() {
		l.apply(p, domain.StatusVerified, "", now)
	}
	return cloneParticipation(p), nil
}

func (l *MemoryLedger) RecordVerifyAttempt(_ context.Context, id string, next time.Time, now time.Time) (domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[id]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	if p.Status != domain.StatusPending {
		return cloneParticipation(p), fmt.Errorf("record attempt on %s (is %s): %w", id, p.Status, domain.ErrConflict)
	}
	p.VerifyAttempts++
	p.NextVerifyAt = next
	p.UpdatedAt = now
	return cloneParticipation(p), nil
}

func (l *MemoryLedger) CompleteClaim(_ context.Context, id string, receipt domain.Receipt) (domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[id]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	if p.Status != domain.StatusClaiming {
		return cloneParticipation(p), fmt.Errorf("complete claim %s (is %s): %w", id, p.Status, domain.ErrConflict)
	}
	r := receipt
	p.Receipt = &r
	p.FailureReason = ""
	l.apply(p, domain.StatusClaimed, "settled "+receipt.Reference, receipt.SettledAt)
	return cloneParticipation(p), nil
}

func (l *MemoryLedger) FlagReconciliation(_ context.Context, id string, reason string, now time.Time) (domain.Participation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[id]
	if !ok {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	if p.Status != domain.StatusClaiming {
		return cloneParticipation(p), fmt.Errorf("flag %s (is %s): %w", id, p.Status, domain.ErrConflict)
	}
	p.NeedsReconciliation = true
	p.FailureReason = reason
	p.UpdatedAt = now
	return cloneParticipation(p), nil
}

func (l *MemoryLedger) Transitions(_ context.Context, id string) ([]Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byID[id]; !ok {
		return nil, domain.ErrParticipationNotFound
	}
	return append([]Transition(nil), l.transitions[id]...), nil
}
