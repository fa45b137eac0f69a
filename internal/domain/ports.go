package domain

import (
	"context"
	"time"
)

// MarketDataClient is the market-data collaborator consumed by the engine.
// ListMarkets returns the raw discovered universe; the engine applies its
// MarketFilter on top. GetSnapshot returns ErrUnavailable (possibly wrapped)
// when no usable book exists for the market this tick.
type MarketDataClient interface {
	ListMarkets(ctx context.Context) ([]Market, error)
	GetSnapshot(ctx context.Context, market Market) (BookSnapshot, error)
}

// ApprovalVerdict is the oracle's answer for a specific intent.
type ApprovalVerdict string

const (
	VerdictApproved ApprovalVerdict = "approved"
	VerdictRejected ApprovalVerdict = "rejected"
	VerdictTimeout  ApprovalVerdict = "timeout"
)

// ApprovalContext carries everything an oracle may want to look at. Oracles
// are free to ignore fields; the engine never branches on oracle internals.
type ApprovalContext struct {
	Market     Market
	Intent     OrderIntent
	Signal     MicroSignal
	Mispricing float64 // 1 - combined ask price - slippage penalty, floored at 0
}

// Approver is the external approval oracle gating entries and hedges. Any
// implementation — LLM-backed, rule-based, or a test double — satisfies it.
// A VerdictTimeout (or an error) is treated as not approved: fail closed.
type Approver interface {
	Approve(ctx context.Context, kind IntentKind, actx ApprovalContext) (ApprovalVerdict, error)
}

// OrderSubmitter is the execution collaborator. Submit returns the fill
// outcome for the intent; a rejected fill carries the venue reason.
type OrderSubmitter interface {
	Submit(ctx context.Context, intent OrderIntent) (Fill, error)
}

// Clock abstracts wall-clock time so engine behavior is replayable in
// backtests. IsNewTradingDay reports whether now falls on a later UTC day
// than the ledger's current day.
type Clock interface {
	Now() time.Time
	IsNewTradingDay(ledgerDay time.Time) bool
}

// UTCClock is the production Clock: real time, UTC day boundaries.
type UTCClock struct{}

// Now returns the current UTC time.
func (UTCClock) Now() time.Time { return time.Now().UTC() }

// IsNewTradingDay reports whether the current UTC date is after ledgerDay.
func (UTCClock) IsNewTradingDay(ledgerDay time.Time) bool {
	return time.Now().UTC().Truncate(24 * time.Hour).After(ledgerDay.UTC().Truncate(24 * time.Hour))
}
