package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BernardOnuh/faucet-claim/internal/config"
	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
	"github.com/BernardOnuh/faucet-claim/internal/payout"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
)

// ClaimSettlement pays out verified participations at most once. The
// VERIFIED -> CLAIMING compare-and-swap is the only way into a payout, and the
// participation id is the idempotency key sent to the rail.
type ClaimSettlement struct {
	tasks          repository.TaskStore
	ledger         repository.ParticipationLedger
	rail           payout.Rail
	events         notify.Publisher
	alerts         Alerter
	payoutTimeout  time.Duration
	reconcileAfter time.Duration
	now            func() time.Time
}

func NewClaimSettlement(tasks repository.TaskStore, ledger repository.ParticipationLedger, rail payout.Rail, events notify.Publisher, alerts Alerter, payoutTimeout, reconcileAfter time.Duration) *ClaimSettlement {
	return &ClaimSettlement{
		tasks:          tasks,
		ledger:         ledger,
		rail:           rail,
		events:         events,
		alerts:         alerts,
		payoutTimeout:  payoutTimeout,
		reconcileAfter: reconcileAfter,
		now:            time.Now,
	}
}

// claimableErr maps a participation that cannot enter CLAIMING to the error
// the caller sees.
func claimableErr(p domain.Participation) error {
	switch p.Status {
	case domain.StatusVerified:
		return nil
	case domain.StatusClaimed:
		return domain.ErrAlreadyClaimed
	case domain.StatusClaiming:
		return fmt.Errorf("%w: %w", domain.ErrAlreadyClaimed, domain.ErrSettlementPending)
	default:
		return domain.ErrNotVerified
	}
}

// Claim settles the reward for one participation.
//
// Once the participation is CLAIMING the call no longer follows ctx
// cancellation: it runs until the rail answers or the payout timeout fires.
// Outcomes other than success leave the participation in a defined state:
// VERIFIED again when the rail rejected the transfer, CLAIMING when the
// transfer is pending or its outcome is unknown.
func (s *ClaimSettlement) Claim(ctx context.Context, participationID string) (domain.Participation, error) {
	p, err := s.ledger.GetParticipation(ctx, participationID)
	if err != nil {
		return domain.Participation{}, fmt.Errorf("get participation: %w", err)
	}
	if err := claimableErr(p); err != nil {
		return p, err
	}

	task, err := s.tasks.GetTask(ctx, p.TaskID)
	if err != nil {
		return p, fmt.Errorf("get task: %w", err)
	}

	p, err = s.ledger.AdvanceStatus(ctx, p.ID, domain.StatusVerified, domain.StatusClaiming, "claim requested", s.now())
	if errors.Is(err, domain.ErrConflict) {
		if cerr := claimableErr(p); cerr != nil {
			return p, cerr
		}
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("start claim: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	publish(ctx, s.events, participationEvent(notify.EventClaimProcessing, p, s.now()))

	payCtx, cancel := context.WithTimeout(ctx, s.payoutTimeout)
	defer cancel()

	res, err := s.rail.SubmitTransfer(payCtx, payout.Transfer{
		ToAddress:      p.PayoutAddress,
		Amount:         task.RewardPerParticipant,
		IdempotencyKey: p.ID,
	})
	if err != nil {
		return s.hold(ctx, p, fmt.Sprintf("payout submission outcome unknown: %v", err))
	}
	return s.apply(ctx, p, res, task.RewardPerParticipant)
}

// apply moves a CLAIMING participation according to what the rail reported.
func (s *ClaimSettlement) apply(ctx context.Context, p domain.Participation, res payout.Result, amount decimal.Decimal) (domain.Participation, error) {
	switch res.State {
	case payout.Confirmed:
		return s.complete(ctx, p, res, amount)

	case payout.Pending:
		slog.Info("payout pending", "participation_id", p.ID, "reference", res.Reference)
		return p, domain.ErrSettlementPending

	case payout.Rejected:
		reason := "payout rejected"
		if res.Reason != "" {
			reason += ": " + res.Reason
		}
		reverted, err := s.ledger.AdvanceStatus(ctx, p.ID, domain.StatusClaiming, domain.StatusVerified, reason, s.now())
		if err != nil {
			return reverted, fmt.Errorf("revert claim: %w", err)
		}
		slog.Warn("payout rejected", "participation_id", p.ID, "reason", res.Reason)
		ev := participationEvent(notify.EventClaimRetryable, reverted, s.now())
		ev.Message = reason
		publish(ctx, s.events, ev)
		return reverted, fmt.Errorf("%w: %s", domain.ErrSettlementFailed, reason)

	default:
		return s.hold(ctx, p, "rail returned no record for a submitted transfer")
	}
}

func (s *ClaimSettlement) complete(ctx context.Context, p domain.Participation, res payout.Result, amount decimal.Decimal) (domain.Participation, error) {
	if res.Amount.IsPositive() {
		amount = res.Amount
	}
	settledAt := res.SettledAt
	if settledAt.IsZero() {
		settledAt = s.now()
	}
	reference := res.Reference
	if reference == "" {
		reference = p.ID
	}

	claimed, err := s.ledger.CompleteClaim(ctx, p.ID, domain.Receipt{
		Reference: reference,
		TxHash:    res.TxHash,
		Amount:    amount,
		ToAddress: p.PayoutAddress,
		SettledAt: settledAt,
	})
	if err != nil {
		// The transfer went through; the participation must not be retried.
		s.alerts.LogError(err, fmt.Sprintf("record confirmed payout for participation %s", p.ID))
		return claimed, fmt.Errorf("complete claim: %w", err)
	}

	s.alerts.LogClaimSettled(claimed)
	publish(ctx, s.events, participationEvent(notify.EventClaimed, claimed, s.now()))
	return claimed, nil
}

// hold leaves p in CLAIMING and flags it for reconciliation.
func (s *ClaimSettlement) hold(ctx context.Context, p domain.Participation, reason string) (domain.Participation, error) {
	flagged, err := s.ledger.FlagReconciliation(ctx, p.ID, reason, s.now())
	if err != nil {
		s.alerts.LogError(err, fmt.Sprintf("flag participation %s for reconciliation", p.ID))
		return p, fmt.Errorf("%w: %s", domain.ErrSettlementAmbiguous, reason)
	}
	s.alerts.LogSettlementHeld(flagged, reason)
	return flagged, fmt.Errorf("%w: %s", domain.ErrSettlementAmbiguous, reason)
}

type ReconcileStats struct {
	Checked  int
	Settled  int
	Reverted int
	Held     int
}

// Reconcile asks the rail about every participation that has been CLAIMING
// for longer than the reconcile delay and settles, reverts or keeps holding it.
func (s *ClaimSettlement) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	stuck, err := s.ledger.ListClaiming(ctx, s.now().Add(-s.reconcileAfter), config.ReconcileBatchSize)
	if err != nil {
		return stats, fmt.Errorf("list claiming: %w", err)
	}

	for _, p := range stuck {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		task, err := s.tasks.GetTask(ctx, p.TaskID)
		if err != nil {
			slog.Error("reconcile: get task", "participation_id", p.ID, "task_id", p.TaskID, "error", err)
			continue
		}

		statusCtx, cancel := context.WithTimeout(ctx, s.payoutTimeout)
		res, err := s.rail.TransferStatus(statusCtx, p.ID)
		cancel()
		if err != nil {
			stats.Held++
			if !p.NeedsReconciliation {
				_, _ = s.hold(ctx, p, fmt.Sprintf("payout status unavailable: %v", err))
			}
			continue
		}

		switch res.State {
		case payout.Confirmed:
			if _, err := s.complete(ctx, p, res, task.RewardPerParticipant); err != nil {
				slog.Error("reconcile: complete claim", "participation_id", p.ID, "error", err)
				continue
			}
			stats.Settled++

		case payout.Rejected, payout.NotFound:
			reason := "payout never took effect (" + res.State.String() + ")"
			if res.Reason != "" {
				reason += ": " + res.Reason
			}
			reverted, err := s.ledger.AdvanceStatus(ctx, p.ID, domain.StatusClaiming, domain.StatusVerified, reason, s.now())
			if err != nil {
				slog.Error("reconcile: revert claim", "participation_id", p.ID, "error", err)
				continue
			}
			stats.Reverted++
			slog.Info("claim reverted after reconciliation", "participation_id", p.ID, "reason", reason)
			ev := participationEvent(notify.EventClaimRetryable, reverted, s.now())
			ev.Message = reason
			publish(ctx, s.events, ev)

		default:
			stats.Held++
			slog.Debug("payout still pending", "participation_id", p.ID, "reference", res.Reference)
		}
	}

	if stats.Checked > 0 {
		slog.Info("reconciliation sweep", "checked", stats.Checked, "settled", stats.Settled, "reverted", stats.Reverted, "held", stats.Held)
	}
	return stats, nil
}

// RunReconcile reconciles held claims every interval until ctx is done.
func (s *ClaimSettlement) RunReconcile(ctx context.Context, interval time.Duration) {
	RunEvery(ctx, "reconcile", interval, func(ctx context.Context) error {
		_, err := s.Reconcile(ctx)
		return err
	})
}
