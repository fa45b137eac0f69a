// Package position implements the per-market position state machine:
//
//	Idle → Entered → Hedged      (success path)
//	Idle → Entered → ExitedFlat  (failure/timeout path)
//
// Every transition is an explicit, named function. The machine only proposes
// intents and advances on confirmed fills; authorization, approval, and
// submission are the engine's job.
package position

import (
	"time"

	"github.com/google/uuid"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// Exit reasons recorded on the flatten transition.
const (
	ExitReasonHedgeTimeout    = "hedge_timeout"
	ExitReasonVolatilitySpike = "volatility_spike"
	ExitReasonDepthEvaporated = "depth_evaporated"
	ExitReasonSpreadWidened   = "spread_widened"
)

// Config holds the state machine thresholds.
type Config struct {
	// BaseSize is the target shares per leg.
	BaseSize float64
	// SafetyMargin keeps the projected combined cost strictly below
	// $1.00 minus this margin before a hedge fires. Dollars.
	SafetyMargin float64
	// DepthAccelFloor is the refreshed-depth requirement for hedging,
	// in shares/sec.
	DepthAccelFloor float64
	// HedgeTimeout flattens an unhedged entry leg after this long without
	// a qualifying hedge condition.
	HedgeTimeout time.Duration
	// VolCeiling is the entry-time volatility threshold; an unhedged leg
	// is flattened when realized volatility spikes above it.
	VolCeiling float64
	// SpreadLimit flattens an unhedged leg when the held side's spread
	// widens beyond it. Dollars.
	SpreadLimit float64
	// MaxEntryPrice, when positive, rejects entries whose ask exceeds it
	// (the fixed-threshold profile's $0.35 ceiling).
	MaxEntryPrice float64
}

type pendingEntry struct {
	slot     domain.OutcomeSlot
	size     float64
	entryRef float64 // opposite outcome's best ask when the entry was proposed
}

// Machine drives one market's position lifecycle. It is not safe for
// concurrent use; the engine mutates it only on the tick goroutine.
type Machine struct {
	market domain.Market
	cfg    Config

	state     domain.PositionState
	pos       *domain.Position
	pending   pendingEntry
	enteredAt time.Time
}

// NewMachine creates an Idle machine for the given market.
func NewMachine(market domain.Market, cfg Config) *Machine {
	return &Machine{
		market: market,
		cfg:    cfg,
		state:  domain.StateIdle,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() domain.PositionState {
	return m.state
}

// Market returns the machine's market descriptor.
func (m *Machine) Market() domain.Market {
	return m.market
}

// Position returns a copy of the current position, if one exists.
func (m *Machine) Position() (domain.Position, bool) {
	if m.pos == nil {
		return domain.Position{}, false
	}
	return *m.pos, true
}

// ProposeEntry builds a buy intent for the cheaper outcome. It fires only
// from Idle and only when the cheaper outcome has a displayed ask; the
// caller gates it with the timing classifier, the guardrail, and the
// approval oracle before dispatch.
func (m *Machine) ProposeEntry(snap domain.BookSnapshot, now time.Time) (domain.OrderIntent, bool) {
	if m.state != domain.StateIdle {
		return domain.OrderIntent{}, false
	}

	slot, ok := snap.CheaperSlot()
	if !ok {
		return domain.OrderIntent{}, false
	}
	ask := snap.Quotes[slot].BestAsk
	if ask <= 0 || ask >= 1 {
		return domain.OrderIntent{}, false
	}
	if m.cfg.MaxEntryPrice > 0 && ask > m.cfg.MaxEntryPrice {
		return domain.OrderIntent{}, false
	}

	// Depth-weighted sizing: never ask for more than a third of the
	// displayed near-top depth.
	size := m.cfg.BaseSize
	if depth := snap.TopDepth(); depth > 0 && depth/3 < size {
		size = depth / 3
	}
	if size <= 0 {
		return domain.OrderIntent{}, false
	}

	opp := slot.Opposite()
	m.pending = pendingEntry{
		slot:     slot,
		size:     size,
		entryRef: snap.Quotes[opp].BestAsk,
	}

	return domain.OrderIntent{
		ID:         uuid.New().String(),
		Kind:       domain.IntentEntry,
		MarketID:   m.market.ID,
		TokenID:    m.market.TokenIDs[slot],
		Outcome:    m.market.Outcome(slot),
		Slot:       slot,
		Side:       domain.OrderSideBuy,
		PriceTicks: toTicks(ask),
		SizeUnits:  toTicks(size),
		Reason:     "cheaper outcome entry, awaiting opposite leg",
		CreatedAt:  now,
	}, true
}

// OnEntryFill advances Idle → Entered on a confirmed entry fill, recording
// the entry leg.
func (m *Machine) OnEntryFill(fill domain.Fill) domain.TransitionRecord {
	m.state = domain.StateEntered
	m.enteredAt = fill.At
	if fill.Size > 0 {
		m.pending.size = fill.Size
	}
	m.pos = &domain.Position{
		ID:       uuid.New().String(),
		MarketID: m.market.ID,
		State:    domain.StateEntered,
		Entry: &domain.Leg{
			Outcome:  fill.Outcome,
			Slot:     fill.Slot,
			Price:    fill.Price,
			Size:     fill.Size,
			FilledAt: fill.At,
		},
		OpenedAt: fill.At,
	}
	return domain.TransitionRecord{
		MarketID: m.market.ID,
		From:     domain.StateIdle,
		To:       domain.StateEntered,
		Reason:   "entry filled",
		At:       fill.At,
	}
}

// ProposeHedge builds a buy intent for the opposite outcome. It fires only
// from Entered and only when the opposite ask has fallen below the entry
// reference price, the projected combined cost clears the parity margin, and
// the book shows refreshed depth. The caller still gates it with the
// guardrail and the approval oracle.
func (m *Machine) ProposeHedge(snap domain.BookSnapshot, sig domain.MicroSignal, now time.Time) (domain.OrderIntent, bool) {
	if m.state != domain.StateEntered || m.pos == nil || m.pos.Entry == nil {
		return domain.OrderIntent{}, false
	}

	opp := m.pos.Entry.Slot.Opposite()
	ask := snap.Quotes[opp].BestAsk
	if ask <= 0 {
		return domain.OrderIntent{}, false
	}
	if m.pending.entryRef <= 0 || ask >= m.pending.entryRef {
		return domain.OrderIntent{}, false
	}

	size := m.pending.size
	projected := domain.ProjectedCombinedCost(*m.pos.Entry, ask, size)
	if projected <= 0 || projected >= 1-m.cfg.SafetyMargin {
		return domain.OrderIntent{}, false
	}
	if sig.DepthAccel < m.cfg.DepthAccelFloor {
		return domain.OrderIntent{}, false
	}

	return domain.OrderIntent{
		ID:         uuid.New().String(),
		Kind:       domain.IntentHedge,
		MarketID:   m.market.ID,
		TokenID:    m.market.TokenIDs[opp],
		Outcome:    m.market.Outcome(opp),
		Slot:       opp,
		Side:       domain.OrderSideBuy,
		PriceTicks: toTicks(ask),
		SizeUnits:  toTicks(size),
		Reason:     "opposite outcome cheapened, pairing hedge keeps combined cost under parity",
		CreatedAt:  now,
	}, true
}

// OnHedgeFill advances Entered → Hedged on a confirmed hedge fill, recording
// the hedge leg. Hedged is terminal for the active lifecycle; settlement is
// the execution collaborator's business.
func (m *Machine) OnHedgeFill(fill domain.Fill) domain.TransitionRecord {
	m.state = domain.StateHedged
	m.pos.State = domain.StateHedged
	m.pos.Hedge = &domain.Leg{
		Outcome:  fill.Outcome,
		Slot:     fill.Slot,
		Price:    fill.Price,
		Size:     fill.Size,
		FilledAt: fill.At,
	}
	return domain.TransitionRecord{
		MarketID: m.market.ID,
		From:     domain.StateEntered,
		To:       domain.StateHedged,
		Reason:   "hedge filled",
		At:       fill.At,
	}
}

// ProposeExit builds a flatten (sell) intent for the held entry leg when an
// unhedged position must be cut: hedge timeout, volatility spike, depth
// evaporation, or spread widening. Hedge conditions take precedence — the
// engine asks ProposeHedge first on every tick, so a position that can hedge
// never reaches this check on the same tick. sigOK is false when the tracker
// has no signal this tick; the timeout check still applies then.
func (m *Machine) ProposeExit(snap domain.BookSnapshot, sig domain.MicroSignal, sigOK bool, now time.Time) (domain.OrderIntent, string, bool) {
	if m.state != domain.StateEntered || m.pos == nil || m.pos.Entry == nil {
		return domain.OrderIntent{}, "", false
	}

	var reason string
	switch {
	case now.Sub(m.enteredAt) > m.cfg.HedgeTimeout:
		reason = ExitReasonHedgeTimeout
	case sigOK && sig.RealizedVol > m.cfg.VolCeiling:
		reason = ExitReasonVolatilitySpike
	case sigOK && sig.DepthAccel < 0:
		reason = ExitReasonDepthEvaporated
	case snap.Quotes[m.pos.Entry.Slot].Spread() > m.cfg.SpreadLimit:
		reason = ExitReasonSpreadWidened
	default:
		return domain.OrderIntent{}, "", false
	}

	held := m.pos.Entry.Slot
	bid := snap.Quotes[held].BestBid

	return domain.OrderIntent{
		ID:         uuid.New().String(),
		Kind:       domain.IntentExit,
		MarketID:   m.market.ID,
		TokenID:    m.market.TokenIDs[held],
		Outcome:    m.market.Outcome(held),
		Slot:       held,
		Side:       domain.OrderSideSell,
		PriceTicks: toTicks(bid),
		SizeUnits:  toTicks(m.pos.Entry.Size),
		Reason:     reason,
		CreatedAt:  now,
	}, reason, true
}

// OnExitFill advances Entered → ExitedFlat on a confirmed flatten fill and
// realizes the leg's P&L.
func (m *Machine) OnExitFill(fill domain.Fill, reason string) domain.TransitionRecord {
	m.state = domain.StateExitedFlat
	m.pos.State = domain.StateExitedFlat
	m.pos.RealizedPnL = (fill.Price - m.pos.Entry.Price) * fill.Size
	m.pos.UnrealizedPnL = 0
	closedAt := fill.At
	exitPrice := fill.Price
	m.pos.ClosedAt = &closedAt
	m.pos.ExitPrice = &exitPrice
	m.pos.ExitReason = reason
	return domain.TransitionRecord{
		MarketID: m.market.ID,
		From:     domain.StateEntered,
		To:       domain.StateExitedFlat,
		Reason:   reason,
		At:       fill.At,
	}
}

// MarkUnrealized refreshes the position's unrealized P&L from the latest
// book, valuing each held leg at its side's best bid.
func (m *Machine) MarkUnrealized(snap domain.BookSnapshot) {
	if m.pos == nil || m.state.Terminal() {
		return
	}
	var unrealized float64
	if leg := m.pos.Entry; leg != nil {
		unrealized += (snap.Quotes[leg.Slot].BestBid - leg.Price) * leg.Size
	}
	if leg := m.pos.Hedge; leg != nil {
		unrealized += (snap.Quotes[leg.Slot].BestBid - leg.Price) * leg.Size
	}
	m.pos.UnrealizedPnL = unrealized
}

// ArchiveReset hands back the terminal position and returns the machine to
// Idle so the market can be entered again. A hedged pair realizes
// (1 − combined average cost) × size: with equal sizes on both outcomes the
// winning leg pays out $1 per share regardless of which side resolves.
func (m *Machine) ArchiveReset(now time.Time) (domain.Position, bool) {
	if m.pos == nil || !m.state.Terminal() {
		return domain.Position{}, false
	}
	archived := *m.pos
	if m.state == domain.StateHedged {
		size := archived.Entry.Size
		archived.RealizedPnL = (1 - archived.CombinedAvgCost()) * size
		archived.UnrealizedPnL = 0
		if archived.ClosedAt == nil {
			closedAt := now
			archived.ClosedAt = &closedAt
		}
	}
	m.pos = nil
	m.pending = pendingEntry{}
	m.state = domain.StateIdle
	return archived, true
}

// toTicks converts a float price or size to fixed-point 1e6 units.
func toTicks(v float64) int64 {
	return int64(v*1e6 + 0.5)
}
