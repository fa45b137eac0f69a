package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// IntentKind classifies an order intent by its role in the position
// lifecycle. The approval oracle and the guardrail both branch on it.
type IntentKind string

const (
	IntentEntry IntentKind = "entry"
	IntentHedge IntentKind = "hedge"
	IntentExit  IntentKind = "exit"
)

// OrderIntent is a request to trade one outcome of a market, produced by the
// position state machine and dispatched by the engine after the guardrail
// and (for entries and hedges) the approval oracle have passed it.
type OrderIntent struct {
	ID         string // UUID
	Kind       IntentKind
	MarketID   string
	TokenID    string
	Outcome    string
	Slot       OutcomeSlot
	Side       OrderSide
	PriceTicks int64 // fixed-point: price * 1e6
	SizeUnits  int64 // fixed-point: size  * 1e6
	Reason     string
	CreatedAt  time.Time
}

// Price returns the float64 display price from fixed-point ticks.
func (i OrderIntent) Price() float64 {
	return float64(i.PriceTicks) / 1e6
}

// Size returns the float64 display size from fixed-point units.
func (i OrderIntent) Size() float64 {
	return float64(i.SizeUnits) / 1e6
}

// Notional returns price*size in dollars.
func (i OrderIntent) Notional() float64 {
	return i.Price() * i.Size()
}

// FillStatus is the outcome of submitting an order intent.
type FillStatus string

const (
	FillStatusFilled   FillStatus = "filled"
	FillStatusPartial  FillStatus = "partially_filled"
	FillStatusRejected FillStatus = "rejected"
)

// Fill is the execution collaborator's response to an order intent.
type Fill struct {
	IntentID string
	MarketID string
	TokenID  string
	Outcome  string
	Slot     OutcomeSlot
	Side     OrderSide
	Status   FillStatus
	Price    float64 // executed price (fill), or 0 when rejected
	Size     float64 // executed size
	Reason   string  // rejection reason when Status is rejected
	At       time.Time
}
