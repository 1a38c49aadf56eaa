package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/go-chi/chi/v5/middleware"
)

// Headers set by the authenticating gateway in front of the service.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type ctxKey int

const actorKey ctxKey = iota

// ActorFromContext returns the actor stored by RequireActor.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

// RequireActor reads the already-authenticated actor from the gateway headers.
// Requests without a known actor get 401.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := models.Actor{
			ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
			Role: models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole)))),
		}
		switch actor.Role {
		case models.RoleAdmin, models.RoleDeputy, models.RoleManager, models.RoleSystem:
		default:
			actor.Role = ""
		}
		if actor.ID == "" || actor.Role == "" {
			writeMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// RequireRole lets through only actors with one of the allowed roles; others get 403.
func RequireRole(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(allowed, actor.Role) {
				writeMessage(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs every request with its chi request id.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.With("request_id", middleware.GetReqID(r.Context())).InfoContext(r.Context(), "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
