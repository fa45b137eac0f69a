package handler

import (
	"log/slog"
	"net/http"

	"github.com/quarterhedge/updownbot/internal/domain"
	"github.com/quarterhedge/updownbot/internal/engine"
)

// StatusProvider defines the engine surface the status handler requires.
type StatusProvider interface {
	Status() engine.Status
	RecentTransitions() []domain.TransitionRecord
}

// StatusHandler serves the live engine status endpoints.
type StatusHandler struct {
	engine StatusProvider
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler backed by the given engine.
func NewStatusHandler(e StatusProvider, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{engine: e, logger: logger}
}

// GetStatus returns the full engine status: ledger state, per-market
// positions and signals, and the recent transition ring.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// ListTransitions returns the in-memory ring of recent transitions, newest
// first.
// GET /api/status/transitions
func (h *StatusHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	recs := h.engine.RecentTransitions()
	if recs == nil {
		recs = []domain.TransitionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": recs})
}
