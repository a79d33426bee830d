package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/BernardOnuh/faucet-claim/internal/domain"
)

type ctxKey string

const (
	ParticipantKey ctxKey = "participant"
	AdminKey       ctxKey = "admin"

	ParticipantHeader = "X-Farcaster-Fid"
)

// ParticipantID extracts the caller's canonical participant id from context.
func ParticipantID(ctx context.Context) string {
	id, _ := ctx.Value(ParticipantKey).(string)
	return id
}

// IsAdmin reports whether the request carried a valid admin token.
func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(AdminKey).(bool)
	return ok
}

// ParticipantLoader returns middleware that puts the caller identity into
// context. The mini app host sends the viewer's fid in ParticipantHeader;
// admin requests carry a bearer token.
func ParticipantLoader(cfg interface{ IsAdmin(token string) bool }) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if raw := strings.TrimSpace(r.Header.Get(ParticipantHeader)); raw != "" {
				if id, err := domain.NormalizeParticipantID(raw); err == nil {
					ctx = context.WithValue(ctx, ParticipantKey, id)
				}
			}

			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && cfg.IsAdmin(token) {
				ctx = context.WithValue(ctx, AdminKey, true)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests without a valid admin token.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			http.Error(w, `{"error":"admin token required"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
