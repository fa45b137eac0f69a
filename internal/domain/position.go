package domain

import "time"

// PositionState is the explicit lifecycle state of a per-market position.
//
//	Idle ──entry fill──▶ Entered ──hedge fill──▶ Hedged      (terminal)
//	                        └──────exit fill────▶ ExitedFlat (terminal)
//
// Terminal positions are archived and the market returns to Idle.
type PositionState string

const (
	StateIdle       PositionState = "idle"
	StateEntered    PositionState = "entered"
	StateHedged     PositionState = "hedged"
	StateExitedFlat PositionState = "exited_flat"
)

// Terminal reports whether the state ends the position's active lifecycle.
func (s PositionState) Terminal() bool {
	return s == StateHedged || s == StateExitedFlat
}

// Leg is a filled order on one outcome contributing to a position.
type Leg struct {
	Outcome  string
	Slot     OutcomeSlot
	Price    float64
	Size     float64
	FilledAt time.Time
}

// Position is the per-market position owned by the state machine. Created on
// the first entry fill, mutated on every transition, archived once terminal.
type Position struct {
	ID            string
	MarketID      string
	State         PositionState
	Entry         *Leg
	Hedge         *Leg
	RealizedPnL   float64
	UnrealizedPnL float64
	OpenedAt      time.Time
	ClosedAt      *time.Time
	ExitPrice     *float64
	ExitReason    string
}

// CombinedAvgCost returns the sum of the per-outcome size-weighted average
// prices of the entry and hedge legs. Each side holds at most one fill, so
// this is the sum of the leg prices. A hedged pair is profitable at
// resolution only while this stays below $1.00.
func (p Position) CombinedAvgCost() float64 {
	var combined float64
	if p.Entry != nil && p.Entry.Size > 0 {
		combined += p.Entry.Price
	}
	if p.Hedge != nil && p.Hedge.Size > 0 {
		combined += p.Hedge.Price
	}
	return combined
}

// ProjectedCombinedCost returns the combined average cost the position would
// carry if a hedge leg were added at the candidate price, before the fill is
// actually confirmed.
func ProjectedCombinedCost(entry Leg, hedgePrice, hedgeSize float64) float64 {
	if entry.Size <= 0 || hedgeSize <= 0 {
		return 0
	}
	return entry.Price + hedgePrice
}

// TransitionRecord documents one state machine transition for the status
// surface and the persistent transition log.
type TransitionRecord struct {
	MarketID string
	From     PositionState
	To       PositionState
	Reason   string
	At       time.Time
}
