package engine

import (
	"sort"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// MarketStatus is one market's view in the status snapshot.
type MarketStatus struct {
	MarketID      string               `json:"market_id"`
	Question      string               `json:"question"`
	State         domain.PositionState `json:"state"`
	UnrealizedPnL float64              `json:"unrealized_pnl"`
	CombinedCost  float64              `json:"combined_cost,omitempty"`
	Signal        *domain.MicroSignal  `json:"signal,omitempty"`
}

// Status is a point-in-time view of the engine for the HTTP surface.
type Status struct {
	Day            string                    `json:"day"`
	Realized       string                    `json:"realized"`
	TotalCommitted string                    `json:"total_committed"`
	HardStopped    bool                      `json:"hard_stopped"`
	TickCount      uint64                    `json:"tick_count"`
	LastTick       time.Time                 `json:"last_tick"`
	Markets        []MarketStatus            `json:"markets"`
	Transitions    []domain.TransitionRecord `json:"recent_transitions"`
}

// Status builds a consistent snapshot of the engine's state. Markets come out
// in the same ascending ID order the tick loop walks them in.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.machines))
	for id := range e.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	markets := make([]MarketStatus, 0, len(ids))
	for _, id := range ids {
		mach := e.machines[id]
		ms := MarketStatus{
			MarketID: id,
			Question: mach.Market().Question,
			State:    mach.State(),
		}
		if pos, ok := mach.Position(); ok {
			ms.UnrealizedPnL = pos.UnrealizedPnL
			ms.CombinedCost = pos.CombinedAvgCost()
		}
		if sig, ok := e.signals[id]; ok {
			s := sig
			ms.Signal = &s
		}
		markets = append(markets, ms)
	}

	transitions := make([]domain.TransitionRecord, len(e.transitions))
	copy(transitions, e.transitions)

	return Status{
		Day:            e.ledger.Day.Format("2006-01-02"),
		Realized:       e.ledger.Realized.String(),
		TotalCommitted: e.ledger.TotalCommitted().String(),
		HardStopped:    e.deps.Guardrail.HardStopped(),
		TickCount:      e.tickCount,
		LastTick:       e.lastTick,
		Markets:        markets,
		Transitions:    transitions,
	}
}

// RecentTransitions returns a copy of the in-memory transition ring.
func (e *Engine) RecentTransitions() []domain.TransitionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.TransitionRecord, len(e.transitions))
	copy(out, e.transitions)
	return out
}
