// Package monitoring provides the liveness and readiness HTTP handlers.
package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lewisedginton/afk_responder/pkg/logger"
)

// Check is one named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Handler serves the health endpoints.
type Handler struct {
	log    logger.Logger
	checks []Check
}

// NewHandler creates a health Handler with the given readiness checks.
func NewHandler(log logger.Logger, checks ...Check) *Handler {
	return &Handler{log: log, checks: checks}
}

// Liveness always reports ok while the process is serving.
func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness runs every check and reports 503 with the failing names when any
// check fails.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := map[string]string{}
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			h.log.Warn("Readiness check failed",
				logger.StringField("check", check.Name),
				logger.ErrorField(err))
			failures[check.Name] = err.Error()
		}
	}

	if len(failures) > 0 {
		writeStatus(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "unavailable",
			"failures": failures,
		})
		return
	}
	writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
