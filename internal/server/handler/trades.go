package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// FillReader defines the store methods the trade handler requires.
type FillReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Fill, error)
}

// TransitionReader defines the store methods the trade handler requires for
// the persistent transition log.
type TransitionReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.TransitionRecord, error)
}

// TradeHandler serves the trade log endpoints: confirmed fills and the
// persistent transition history.
type TradeHandler struct {
	fills       FillReader
	transitions TransitionReader
	logger      *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given stores and logger.
func NewTradeHandler(fills FillReader, transitions TransitionReader, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		fills:       fills,
		transitions: transitions,
		logger:      logger,
	}
}

// ListFills returns the most recent confirmed fills, newest first.
// GET /api/fills?limit=50
func (h *TradeHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	fills, err := h.fills.ListRecent(r.Context(), parseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fills failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}

	if fills == nil {
		fills = []domain.Fill{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"fills": fills})
}

// ListTransitions returns the most recent persisted transitions, newest
// first.
// GET /api/transitions?limit=50
func (h *TradeHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.transitions.ListRecent(r.Context(), parseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list transitions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list transitions")
		return
	}

	if recs == nil {
		recs = []domain.TransitionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"transitions": recs})
}
