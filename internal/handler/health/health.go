package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Dependency is one named check. When an optional dependency fails the
// service reports itself degraded but stays available; games keep running on
// the local fallback.
type Dependency struct {
	Checker  Checker
	Optional bool
}

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

type Handler struct {
	deps   map[string]Dependency
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger, deps map[string]Dependency) *Handler {
	return &Handler{deps: deps, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.check)
	return r
}

type result struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
}

type Response struct {
	Status string            `json:"status"`
	Checks map[string]result `json:"checks"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := Response{Status: StatusOK, Checks: make(map[string]result, len(h.deps))}
	code := http.StatusOK

	for name, d := range h.deps {
		start := time.Now()
		err := d.Checker.Check(ctx)
		res := result{Status: StatusOK, LatencyMS: time.Since(start).Milliseconds()}
		switch {
		case err == nil:
		case d.Optional:
			h.logger.Warn("health check degraded", "name", name, "error", err)
			res.Status = StatusDegraded
			if resp.Status == StatusOK {
				resp.Status = StatusDegraded
			}
		default:
			h.logger.Error("health check failed", "name", name, "error", err)
			res.Status = StatusError
			resp.Status = StatusError
			code = http.StatusServiceUnavailable
		}
		resp.Checks[name] = res
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
