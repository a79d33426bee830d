package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/BernardOnuh/faucet-claim/internal/config"
	"github.com/BernardOnuh/faucet-claim/internal/middleware"
	"github.com/BernardOnuh/faucet-claim/internal/service"
)

// Handler holds all dependencies needed by the HTTP API.
type Handler struct {
	cfg     *config.Config
	engine  *service.TaskEngine
	limiter *middleware.RateLimiter
	routes  []RouteDoc

	heartbeatEvery time.Duration
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Cfg     *config.Config
	Engine  *service.TaskEngine
	Limiter *middleware.RateLimiter
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(config.RateLimitPerMinute, config.RateLimitBurst)
	}
	return &Handler{
		cfg:     deps.Cfg,
		engine:  deps.Engine,
		limiter: limiter,
	}
}

type RouteDoc struct {
	Method  string `json:"method"`
	Pattern string `json:"pattern"`
	Summary string `json:"summary,omitempty"`
}

func (h *Handler) handle(mux *http.ServeMux, methodAndPattern, summary string, fn http.HandlerFunc) {
	method, pattern, _ := strings.Cut(methodAndPattern, " ")
	h.routes = append(h.routes, RouteDoc{Method: method, Pattern: pattern, Summary: summary})
	mux.HandleFunc(methodAndPattern, fn)
}

// Routes registers every endpoint and returns the wrapped root handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	h.handle(mux, "GET /healthz", "Liveness probe", h.Health)
	h.handle(mux, "GET /v1/routes", "List API routes", h.ListRoutes)

	// Tasks
	h.handle(mux, "GET /v1/tasks", "List tasks, optionally by ?status=", h.ListTasks)
	h.handle(mux, "GET /v1/tasks/{id}", "Get one task view", h.GetTask)
	h.handle(mux, "POST /v1/tasks", "Create a task (admin)", middleware.RequireAdmin(h.CreateTask))
	h.handle(mux, "POST /v1/tasks/{id}/cancel", "Cancel a task (admin)", middleware.RequireAdmin(h.CancelTask))
	h.handle(mux, "POST /v1/tasks/{id}/join", "Join a task", h.JoinTask)

	// Participations
	h.handle(mux, "GET /v1/participations/{id}", "Get one participation view", h.GetParticipation)
	h.handle(mux, "POST /v1/participations/{id}/claim", "Claim the reward of a verified participation", h.ClaimReward)

	// Participants
	h.handle(mux, "GET /v1/participants/{id}/tasks", "Tasks joined by a participant", h.UserTasks)
	h.handle(mux, "GET /v1/participants/{id}/stats", "Participant totals", h.UserStats)
	h.handle(mux, "GET /v1/participants/{id}/events", "Server-sent participant events", h.Events)

	return middleware.Chain(mux,
		middleware.Recover(),
		middleware.ParticipantLoader(h.cfg),
		middleware.Logging(),
		middleware.RateLimit(h.limiter),
	)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.routes)
}
