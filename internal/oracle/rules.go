// Package oracle provides approval oracle implementations: a deterministic
// rules oracle and an LLM-backed Ollama oracle. Both fail closed.
package oracle

import (
	"context"
	"log/slog"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// RulesConfig holds the rules oracle thresholds.
type RulesConfig struct {
	// MinMispricing is the minimum edge (dollars) required to approve an
	// entry or hedge.
	MinMispricing float64
}

// Rules is a deterministic approval oracle. It approves an intent when the
// estimated mispricing clears the configured minimum; identical inputs always
// produce identical verdicts.
type Rules struct {
	cfg    RulesConfig
	logger *slog.Logger
}

// NewRules creates the rules oracle.
func NewRules(cfg RulesConfig, logger *slog.Logger) *Rules {
	return &Rules{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "oracle_rules")),
	}
}

var _ domain.Approver = (*Rules)(nil)

// Approve applies the mispricing threshold. Hedges are held to the same edge
// requirement as entries: a hedge that does not lock in the minimum edge is
// better handled by the state machine's exit path.
func (r *Rules) Approve(ctx context.Context, kind domain.IntentKind, actx domain.ApprovalContext) (domain.ApprovalVerdict, error) {
	if actx.Mispricing >= r.cfg.MinMispricing {
		return domain.VerdictApproved, nil
	}
	r.logger.Debug("insufficient edge",
		slog.String("market_id", actx.Intent.MarketID),
		slog.String("kind", string(kind)),
		slog.Float64("mispricing", actx.Mispricing),
		slog.Float64("min", r.cfg.MinMispricing),
	)
	return domain.VerdictRejected, nil
}
