package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/storage"
)

type ctxKey int

const (
	ctxKeyGame ctxKey = iota
	ctxKeyAdmin
)

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// sessionMiddleware resolves {id} to its live controller. An unknown but
// well-formed id resumes as a demo session.
func sessionMiddleware(games *game.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := games.Get(r.Context(), chi.URLParam(r, "id"))
			if errors.Is(err, game.ErrInvalidSessionID) {
				writeError(w, http.StatusBadRequest, "invalid session id")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyGame, c)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func adminAuthMiddleware(logger *slog.Logger, auth AdminStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(adminCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			sess, err := auth.AdminFromSession(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					logger.Warn("admin session lookup failed", "error", err)
				}
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyAdmin, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func controllerFrom(r *http.Request) *game.Controller {
	return r.Context().Value(ctxKeyGame).(*game.Controller)
}

func adminFrom(r *http.Request) storage.AdminSession {
	return r.Context().Value(ctxKeyAdmin).(storage.AdminSession)
}
