package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/middleware"
)

type joinRequest struct {
	ParticipantID string `json:"participantId"`
	PayoutAddress string `json:"payoutAddress"`
}

// JoinTask admits the caller. The participant comes from the identity header
// and falls back to the body for hosts that cannot set headers.
func (h *Handler) JoinTask(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeErr(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	participantID := middleware.ParticipantID(r.Context())
	if participantID == "" {
		participantID = req.ParticipantID
	}

	p, created, err := h.engine.Join(r.Context(), r.PathValue("id"), participantID, req.PayoutAddress)
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, domain.NewParticipationView(p))
}

func (h *Handler) GetParticipation(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.GetParticipationView(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClaimReward settles the reward. A settlement that is still processing is
// answered with 202 and the PROCESSING view.
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.Claim(r.Context(), r.PathValue("id"), middleware.ParticipantID(r.Context()))
	if err != nil {
		if code, _ := statusFor(err); code == http.StatusAccepted && view.ID != "" {
			writeJSON(w, http.StatusAccepted, view)
			return
		}
		writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) UserTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.engine.GetUserTasks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.GetUserStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
