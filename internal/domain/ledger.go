package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLedger is the single process-wide record of cumulative realized P&L for
// the current trading day and the notional currently committed per market.
// It is owned by the decision engine, mutated only on the tick goroutine, and
// passed explicitly to the guardrail — never reached through ambient state.
//
// Money is held as decimal so repeated small fills cannot drift the cap
// comparisons.
type RiskLedger struct {
	Day       time.Time // UTC trading day (truncated to midnight)
	Realized  decimal.Decimal
	Committed map[string]decimal.Decimal // market ID -> committed notional
}

// NewRiskLedger returns an empty ledger for the given trading day.
func NewRiskLedger(day time.Time) *RiskLedger {
	return &RiskLedger{
		Day:       day.UTC().Truncate(24 * time.Hour),
		Committed: make(map[string]decimal.Decimal),
	}
}

// Reset clears the ledger for a new trading day.
func (l *RiskLedger) Reset(day time.Time) {
	l.Day = day.UTC().Truncate(24 * time.Hour)
	l.Realized = decimal.Zero
	l.Committed = make(map[string]decimal.Decimal)
}

// Commit adds notional to the market's committed total.
func (l *RiskLedger) Commit(marketID string, notional float64) {
	l.Committed[marketID] = l.Committed[marketID].Add(decimal.NewFromFloat(notional))
}

// Release removes a market's committed notional entirely (position archived
// or flattened).
func (l *RiskLedger) Release(marketID string) {
	delete(l.Committed, marketID)
}

// AddRealized records realized P&L (positive or negative) for the day.
func (l *RiskLedger) AddRealized(delta float64) {
	l.Realized = l.Realized.Add(decimal.NewFromFloat(delta))
}

// CommittedFor returns the notional currently committed to a market.
func (l *RiskLedger) CommittedFor(marketID string) decimal.Decimal {
	return l.Committed[marketID]
}

// TotalCommitted returns the sum of committed notional across all markets.
func (l *RiskLedger) TotalCommitted() decimal.Decimal {
	total := decimal.Zero
	for _, v := range l.Committed {
		total = total.Add(v)
	}
	return total
}

// RealizedLoss returns today's realized loss as a non-negative number, zero
// when the day is flat or profitable.
func (l *RiskLedger) RealizedLoss() decimal.Decimal {
	if l.Realized.IsNegative() {
		return l.Realized.Neg()
	}
	return decimal.Zero
}
