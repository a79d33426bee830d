package payout

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CryptomusRail pays rewards through the Cryptomus payout API. The
// participation id is sent as order_id, which Cryptomus keeps unique per
// merchant.
type CryptomusRail struct {
	baseURL    string
	merchantID string
	apiKey     string
	currency   string
	network    string
	httpClient *http.Client
	now        func() time.Time
}

var _ Rail = (*CryptomusRail)(nil)

type CryptomusConfig struct {
	BaseURL    string
	MerchantID string
	APIKey     string
	Currency   string
	Network    string
	Timeout    time.Duration
}

func NewCryptomusRail(cfg CryptomusConfig) *CryptomusRail {
	return &CryptomusRail{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		merchantID: cfg.MerchantID,
		apiKey:     cfg.APIKey,
		currency:   cfg.Currency,
		network:    cfg.Network,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

type payoutResult struct {
	UUID    string `json:"uuid"`
	Amount  string `json:"amount"`
	Address string `json:"address"`
	TxID    string `json:"txid"`
	Status  string `json:"status"`
	IsFinal bool   `json:"is_final"`
}

type envelope struct {
	State   int             `json:"state"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Errors  json.RawMessage `json:"errors"`
}

func (r *CryptomusRail) SubmitTransfer(ctx context.Context, t Transfer) (Result, error) {
	payload := map[string]interface{}{
		"amount":      t.Amount.String(),
		"currency":    r.currency,
		"network":     r.network,
		"order_id":    t.IdempotencyKey,
		"address":     t.ToAddress,
		"is_subtract": "1",
	}

	status, env, err := r.post(ctx, "/payout", payload)
	if err != nil {
		return Result{}, err
	}

	if status == http.StatusOK && env.State == 0 {
		var res payoutResult
		if err := json.Unmarshal(env.Result, &res); err != nil {
			return Result{}, fmt.Errorf("parse payout: %w", err)
		}
		return r.toResult(res), nil
	}

	if status >= 500 || status == http.StatusTooManyRequests {
		return Result{}, fmt.Errorf("payout: status %d", status)
	}

	// A validation error can also mean the order_id was already used, so ask
	// the rail before reporting the transfer as rejected.
	existing, err := r.TransferStatus(ctx, t.IdempotencyKey)
	if err != nil {
		return Result{}, err
	}
	if existing.State != NotFound {
		return existing, nil
	}
	return Result{State: Rejected, Reason: rejectReason(env)}, nil
}

func (r *CryptomusRail) TransferStatus(ctx context.Context, idempotencyKey string) (Result, error) {
	status, env, err := r.post(ctx, "/payout/info", map[string]interface{}{"order_id": idempotencyKey})
	if err != nil {
		return Result{}, err
	}

	switch {
	case status == http.StatusNotFound:
		return Result{State: NotFound}, nil
	case status != http.StatusOK:
		return Result{}, fmt.Errorf("payout info: status %d: %s", status, env.Message)
	case env.State != 0:
		if strings.Contains(strings.ToLower(env.Message), "not found") {
			return Result{State: NotFound}, nil
		}
		return Result{}, fmt.Errorf("payout info: %s", env.Message)
	}

	var res payoutResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return Result{}, fmt.Errorf("parse payout info: %w", err)
	}
	return r.toResult(res), nil
}

func (r *CryptomusRail) post(ctx context.Context, path string, payload map[string]interface{}) (int, envelope, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, envelope{}, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+path, bytes.NewReader(payloadJSON))
	if err != nil {
		return 0, envelope{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", r.merchantID)
	req.Header.Set("sign", createCryptomusSign(payloadJSON, r.apiKey))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, envelope{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, envelope{}, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &env); err != nil && resp.StatusCode == http.StatusOK {
			return 0, envelope{}, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp.StatusCode, env, nil
}

func (r *CryptomusRail) toResult(res payoutResult) Result {
	out := Result{Reference: res.UUID, TxHash: res.TxID}
	if amt, err := decimal.NewFromString(res.Amount); err == nil {
		out.Amount = amt
	}
	switch res.Status {
	case "paid":
		out.State = Confirmed
		out.SettledAt = r.now()
	case "fail", "cancel":
		out.State = Rejected
		out.Reason = "payout " + res.Status
	default:
		// process, check, and system_fail: the transfer may still land.
		out.State = Pending
	}
	return out
}

func rejectReason(env envelope) string {
	if len(env.Errors) > 0 && string(env.Errors) != "null" {
		return fmt.Sprintf("%s: %s", env.Message, env.Errors)
	}
	if env.Message != "" {
		return env.Message
	}
	return "rejected by payout rail"
}

func createCryptomusSign(payload []byte, apiKey string) string {
	encoded := base64.StdEncoding.EncodeToString(payload)
	hash := md5.Sum([]byte(encoded + apiKey))
	return hex.EncodeToString(hash[:])
}
