package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BernardOnuh/faucet-claim/internal/config"
	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

const MaxMessageLen = 4096

// OpsLogger posts operator alerts to a Telegram forum chat, one topic per
// alert type. Every alert is also written to slog, so a nil bot only logs.
type OpsLogger struct {
	bot    *bot.Bot
	chatID int64
	topics map[AlertType]int
	now    func() time.Time
}

type AlertType string

const (
	AlertError                 AlertType = "error"
	AlertTaskCreated           AlertType = "taskCreated"
	AlertClaimSettled          AlertType = "claimSettled"
	AlertSettlementHeld        AlertType = "settlementHeld"
	AlertVerificationExhausted AlertType = "verificationExhausted"
)

// NewOpsBot creates a send-only bot client. It does not poll for updates.
func NewOpsBot(token string, opts ...bot.Option) (*bot.Bot, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create ops bot: %w", err)
	}
	return b, nil
}

func NewOpsLogger(b *bot.Bot, cfg *config.Config) *OpsLogger {
	return &OpsLogger{
		bot:    b,
		chatID: cfg.OpsChatID,
		topics: map[AlertType]int{
			AlertError:                 cfg.OpsTopicError,
			AlertTaskCreated:           cfg.OpsTopicTaskCreated,
			AlertClaimSettled:          cfg.OpsTopicClaimSettled,
			AlertSettlementHeld:        cfg.OpsTopicSettlementHeld,
			AlertVerificationExhausted: cfg.OpsTopicVerifyExhausted,
		},
		now: time.Now,
	}
}

func (l *OpsLogger) Log(alert AlertType, message string) {
	if l.bot == nil || l.chatID == 0 {
		return
	}

	topicID, ok := l.topics[alert]
	if !ok || topicID == 0 {
		return
	}

	message = truncateMessage(message, MaxMessageLen)

	ctx, cancel := context.WithTimeout(context.Background(), config.OpsAlertTimeout)
	defer cancel()

	params := &bot.SendMessageParams{
		ChatID:          l.chatID,
		Text:            message,
		ParseMode:       models.ParseModeMarkdownV1,
		MessageThreadID: topicID,
	}
	if _, err := l.bot.SendMessage(ctx, params); err != nil {
		// Retry once without formatting.
		params.ParseMode = ""
		if _, err := l.bot.SendMessage(ctx, params); err != nil {
			slog.Error("failed to send ops alert", "type", alert, "error", err)
		}
	}
}

func (l *OpsLogger) LogError(err error, context string) {
	slog.Error(context, "error", err)
	msg := fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* %s\n*Time:* %s",
		escapeMarkdown(context), codeSpan(err.Error()), l.stamp())
	l.Log(AlertError, msg)
}

func (l *OpsLogger) LogTaskCreated(t domain.Task) {
	slog.Info("task created", "task_id", t.ID, "kinds", t.Kinds, "max_participants", t.MaxParticipants, "escrow", t.EscrowAmount.String())
	msg := fmt.Sprintf("📋 *New Task*\n\n*ID:* %s\n*Title:* %s\n*Actions:* %s\n*Reward:* %s × %d\n*Escrow:* %s\n*Expires:* %s",
		codeSpan(t.ID), escapeMarkdown(t.Title), escapeMarkdown(joinKinds(t.Kinds)), t.RewardPerParticipant.String(), t.MaxParticipants,
		t.EscrowAmount.String(), t.ExpiresAt.UTC().Format("2006-01-02 15:04:05"))
	l.Log(AlertTaskCreated, msg)
}

func (l *OpsLogger) LogClaimSettled(p domain.Participation) {
	if p.Receipt == nil {
		return
	}
	slog.Info("claim settled", "participation_id", p.ID, "task_id", p.TaskID, "reference", p.Receipt.Reference, "amount", p.Receipt.Amount.String())
	msg := fmt.Sprintf("💸 *Reward Paid*\n\n*Participation:* %s\n*Participant:* %s\n*Amount:* %s\n*To:* %s\n*Tx:* %s",
		codeSpan(p.ID), codeSpan(p.ParticipantID), p.Receipt.Amount.String(), codeSpan(p.Receipt.ToAddress), codeSpan(p.Receipt.TxHash))
	l.Log(AlertClaimSettled, msg)
}

// LogSettlementHeld reports a claim left in CLAIMING because the payout
// outcome is unknown. These need an operator.
func (l *OpsLogger) LogSettlementHeld(p domain.Participation, reason string) {
	slog.Warn("settlement held for reconciliation", "participation_id", p.ID, "task_id", p.TaskID, "reason", reason)
	msg := fmt.Sprintf("⚠️ *Settlement Held*\n\n*Participation:* %s\n*Task:* %s\n*Participant:* %s\n*To:* %s\n*Reason:* %s\n*Time:* %s",
		codeSpan(p.ID), codeSpan(p.TaskID), codeSpan(p.ParticipantID), codeSpan(p.PayoutAddress), escapeMarkdown(reason), l.stamp())
	l.Log(AlertSettlementHeld, msg)
}

func (l *OpsLogger) LogVerificationExhausted(p domain.Participation, reason string) {
	slog.Info("verification failed", "participation_id", p.ID, "task_id", p.TaskID, "attempts", p.VerifyAttempts, "reason", reason)
	msg := fmt.Sprintf("🔍 *Verification Failed*\n\n*Participation:* %s\n*Task:* %s\n*Participant:* %s\n*Missing:* %s\n*Reason:* %s",
		codeSpan(p.ID), codeSpan(p.TaskID), codeSpan(p.ParticipantID), escapeMarkdown(joinKinds(p.MissingActions())), escapeMarkdown(reason))
	l.Log(AlertVerificationExhausted, msg)
}

func (l *OpsLogger) stamp() string {
	return l.now().UTC().Format("2006-01-02 15:04:05")
}

func joinKinds(kinds []domain.ActionKind) string {
	if len(kinds) == 0 {
		return "-"
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
