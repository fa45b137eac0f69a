package domain

import "time"

// Quote is the top of book for a single outcome token.
type Quote struct {
	BestBid float64
	BidSize float64
	BestAsk float64
	AskSize float64
}

// Spread returns best-ask minus best-bid, floored at zero.
func (q Quote) Spread() float64 {
	s := q.BestAsk - q.BestBid
	if s < 0 {
		return 0
	}
	return s
}

// TopSize returns the displayed size at the best bid plus the best ask.
func (q Quote) TopSize() float64 {
	return q.BidSize + q.AskSize
}

// BookSnapshot is one observation of a market's order books at a point in
// time: both outcome tokens' top of book plus the observation timestamp.
// Immutable once produced.
type BookSnapshot struct {
	MarketID string
	Quotes   [2]Quote // indexed by OutcomeSlot
	Observed time.Time
}

// Mid returns the mid-price of the primary outcome's book. For a binary pair
// the secondary outcome's mid is its complement, so one series is enough for
// volatility tracking.
func (s BookSnapshot) Mid() float64 {
	q := s.Quotes[SlotPrimary]
	switch {
	case q.BestBid > 0 && q.BestAsk > 0:
		return (q.BestBid + q.BestAsk) / 2
	case q.BestAsk > 0:
		return q.BestAsk
	default:
		return q.BestBid
	}
}

// TopDepth returns the total displayed size at the best bid and ask across
// both outcome books.
func (s BookSnapshot) TopDepth() float64 {
	return s.Quotes[SlotPrimary].TopSize() + s.Quotes[SlotSecondary].TopSize()
}

// Spread returns the primary outcome's bid-ask spread.
func (s BookSnapshot) Spread() float64 {
	return s.Quotes[SlotPrimary].Spread()
}

// CheaperSlot returns the outcome slot with the lower best ask. Slots without
// a displayed ask are treated as unavailable; ok is false when neither side
// has an ask.
func (s BookSnapshot) CheaperSlot() (slot OutcomeSlot, ok bool) {
	pa := s.Quotes[SlotPrimary].BestAsk
	sa := s.Quotes[SlotSecondary].BestAsk
	switch {
	case pa > 0 && (sa <= 0 || pa <= sa):
		return SlotPrimary, true
	case sa > 0:
		return SlotSecondary, true
	default:
		return SlotPrimary, false
	}
}
