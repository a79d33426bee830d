package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BernardOnuh/faucet-claim/internal/config"
	"github.com/BernardOnuh/faucet-claim/internal/domain"
	"github.com/BernardOnuh/faucet-claim/internal/middleware"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
)

// createTaskRequest accepts both the composite taskTypes list and the single
// taskType field the mini app create form sends.
type createTaskRequest struct {
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	TaskTypes            []domain.ActionKind `json:"taskTypes"`
	TaskType             domain.ActionKind   `json:"taskType"`
	TargetData           domain.TargetData   `json:"targetData"`
	RequiredActions      int                 `json:"requiredActions"`
	RewardPerParticipant *decimal.Decimal    `json:"rewardPerParticipant"`
	MaxParticipants      int                 `json:"maxParticipants"`
	ExpiresAt            *time.Time          `json:"expiresAt"`
	ExpiresIn            string              `json:"expiresIn"`
}

func (req createTaskRequest) toNewTask(now time.Time, createdBy string) (domain.NewTask, error) {
	kinds := req.TaskTypes
	if len(kinds) == 0 && req.TaskType != "" {
		kinds = []domain.ActionKind{req.TaskType}
	}

	reward := decimal.RequireFromString(config.DefaultReward)
	if req.RewardPerParticipant != nil {
		reward = *req.RewardPerParticipant
	}

	expiresAt := now.Add(config.DefaultTaskDuration)
	switch {
	case req.ExpiresAt != nil:
		expiresAt = *req.ExpiresAt
	case req.ExpiresIn != "":
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			return domain.NewTask{}, domain.ErrInvalidTask
		}
		expiresAt = now.Add(d)
	}

	return domain.NewTask{
		Title:                req.Title,
		Description:          req.Description,
		Kinds:                kinds,
		Target:               req.TargetData,
		RewardPerParticipant: reward,
		MaxParticipants:      req.MaxParticipants,
		ExpiresAt:            expiresAt,
		RequiredActions:      req.RequiredActions,
		CreatedBy:            createdBy,
	}, nil
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.TaskFilter{Limit: config.DefaultTaskPageSize}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
			switch status {
			case domain.TaskStatusActive, domain.TaskStatusFilled, domain.TaskStatusExpired, domain.TaskStatusCancelled:
				filter.Statuses = append(filter.Statuses, status)
			default:
				writeErr(w, http.StatusBadRequest, "bad_request", "unknown status "+s)
				return
			}
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErr(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, config.MaxTaskPageSize)
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErr(w, http.StatusBadRequest, "bad_request", "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	views, err := h.engine.ListTaskViews(r.Context(), filter)
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.GetTaskView(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	createdBy := middleware.ParticipantID(r.Context())
	if createdBy == "" {
		createdBy = "admin"
	}
	in, err := req.toNewTask(time.Now(), createdBy)
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}

	task, err := h.engine.CreateTask(r.Context(), in)
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	view, err := h.engine.GetTaskView(r.Context(), task.ID)
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.CancelTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTaskView(task, time.Now()))
}
