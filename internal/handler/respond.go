package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BernardOnuh/faucet-claim/internal/config"
	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, errorBody{Error: msg, Code: errCode})
}

// statusFor maps a domain error to an HTTP status and a stable error code.
// AlreadyClaimed is matched before SettlementPending because a repeated claim
// on a CLAIMING participation wraps both.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound, "task_not_found"
	case errors.Is(err, domain.ErrParticipationNotFound):
		return http.StatusNotFound, "participation_not_found"
	case errors.Is(err, domain.ErrInvalidTask):
		return http.StatusUnprocessableEntity, "invalid_task"
	case errors.Is(err, domain.ErrInvalidAddress):
		return http.StatusUnprocessableEntity, "invalid_address"
	case errors.Is(err, domain.ErrInvalidParticipant):
		return http.StatusUnprocessableEntity, "invalid_participant"
	case errors.Is(err, domain.ErrAlreadyClaimed):
		return http.StatusConflict, "already_claimed"
	case errors.Is(err, domain.ErrNotVerified):
		return http.StatusConflict, "not_verified"
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusGone, "capacity_exceeded"
	case errors.Is(err, domain.ErrTaskExpired):
		return http.StatusGone, "task_expired"
	case errors.Is(err, domain.ErrTaskNotActive):
		return http.StatusGone, "task_not_active"
	case errors.Is(err, domain.ErrSettlementPending):
		return http.StatusAccepted, "settlement_pending"
	case errors.Is(err, domain.ErrSettlementAmbiguous):
		return http.StatusAccepted, "settlement_processing"
	case errors.Is(err, domain.ErrSettlementFailed):
		return http.StatusBadGateway, "settlement_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeDomainErr(w http.ResponseWriter, r *http.Request, err error) {
	code, errCode := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: msg, Code: errCode, Retryable: domain.IsRetryable(err)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
