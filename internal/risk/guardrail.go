// Package risk implements the pre-trade guardrail: daily loss cap, per-market
// notional cap, and the account-wide notional ceiling.
package risk

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// DenyReason is the machine-readable reason attached to a guardrail denial.
type DenyReason string

const (
	ReasonDailyLossCap DenyReason = "daily_loss_cap"
	ReasonMarketCap    DenyReason = "per_market_cap"
	ReasonTotalCap     DenyReason = "total_notional_cap"
)

// Decision is the guardrail's answer for one intent. A denial is final for
// that intent; a later tick may produce a smaller intent that re-authorizes.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the affirmative decision.
var Allow = Decision{Allowed: true}

// Deny builds a denial with the given reason.
func Deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Config holds the guardrail limits, all in dollars.
type Config struct {
	DailyLossCap     float64 // deny everything once today's realized loss reaches this
	PerMarketCap     float64 // max committed notional per market
	TotalNotionalCap float64 // max committed notional across all markets
}

// Guardrail gates every risk-adding order intent against the risk ledger.
// Once the daily loss cap is breached the guardrail latches and denies every
// subsequent intent for the remainder of the trading day — a hard stop, not
// a throttle. Risk-reducing flatten orders are dispatched by the engine
// without authorization, so the hard stop never traps an unhedged leg.
type Guardrail struct {
	cfg      Config
	hardStop bool
	logger   *slog.Logger
}

// NewGuardrail creates a Guardrail with the given limits.
func NewGuardrail(cfg Config, logger *slog.Logger) *Guardrail {
	return &Guardrail{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "guardrail")),
	}
}

// Authorize decides whether the intent may be dispatched given the current
// ledger state. It must be consulted immediately before dispatch; the
// decision is final for this intent.
func (g *Guardrail) Authorize(intent domain.OrderIntent, ledger *domain.RiskLedger) Decision {
	lossCap := decimal.NewFromFloat(g.cfg.DailyLossCap)
	if g.hardStop || ledger.RealizedLoss().GreaterThanOrEqual(lossCap) {
		if !g.hardStop {
			g.hardStop = true
			g.logger.Warn("daily loss cap breached, trading halted for the day",
				slog.String("realized", ledger.Realized.String()),
				slog.Float64("cap", g.cfg.DailyLossCap),
			)
		}
		return Deny(ReasonDailyLossCap)
	}

	notional := decimal.NewFromFloat(intent.Notional())

	if g.cfg.PerMarketCap > 0 {
		committed := ledger.CommittedFor(intent.MarketID)
		if committed.Add(notional).GreaterThan(decimal.NewFromFloat(g.cfg.PerMarketCap)) {
			return Deny(ReasonMarketCap)
		}
	}

	if g.cfg.TotalNotionalCap > 0 {
		total := ledger.TotalCommitted()
		if total.Add(notional).GreaterThan(decimal.NewFromFloat(g.cfg.TotalNotionalCap)) {
			return Deny(ReasonTotalCap)
		}
	}

	return Allow
}

// HardStopped reports whether the daily hard stop has latched.
func (g *Guardrail) HardStopped() bool {
	return g.hardStop
}

// SetHardStop restores a latched hard stop, e.g. from persisted state after
// a restart mid-day.
func (g *Guardrail) SetHardStop(v bool) {
	g.hardStop = v
}

// ResetDay clears the hard stop latch at the trading-day boundary.
func (g *Guardrail) ResetDay() {
	g.hardStop = false
}
