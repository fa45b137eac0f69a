package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market describes a 15-minute binary up/down prediction market.
type Market struct {
	ID        string
	Question  string
	Slug      string
	Outcomes  [2]string // e.g. ["Up","Down"]
	TokenIDs  [2]string // CLOB token IDs, one per outcome
	EndsAt    time.Time
	Liquidity float64
	Volume    float64
	Status    MarketStatus
	UpdatedAt time.Time
}

// OutcomeSlot identifies one of the two outcomes of a binary market by index.
type OutcomeSlot int

const (
	SlotPrimary   OutcomeSlot = 0 // e.g. "Up"
	SlotSecondary OutcomeSlot = 1 // e.g. "Down"
)

// Opposite returns the other outcome slot.
func (s OutcomeSlot) Opposite() OutcomeSlot {
	if s == SlotPrimary {
		return SlotSecondary
	}
	return SlotPrimary
}

// Outcome returns the outcome label for the given slot.
func (m Market) Outcome(slot OutcomeSlot) string {
	return m.Outcomes[slot]
}

// MarketFilter decides whether a market is eligible for trading. The engine
// applies it to every discovered market; swapping the predicate changes the
// traded universe without touching engine code.
type MarketFilter func(Market) bool

// ExactTitleFilter returns a MarketFilter that admits a market only when its
// question matches one of the given templates exactly. No fuzzy matching:
// a renamed series is a configuration change, not a silent scope change.
func ExactTitleFilter(templates []string) MarketFilter {
	allowed := make(map[string]bool, len(templates))
	for _, t := range templates {
		allowed[t] = true
	}
	return func(m Market) bool {
		return allowed[m.Question]
	}
}
