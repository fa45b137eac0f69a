package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestRiskLedgerCommitAndRelease(t *testing.T) {
	l := NewRiskLedger(time.Date(2026, 8, 30, 14, 3, 0, 0, time.UTC))

	if !l.Day.Equal(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day = %v, want truncated to midnight UTC", l.Day)
	}

	l.Commit("mkt-1", 25)
	l.Commit("mkt-1", 10)
	l.Commit("mkt-2", 40)

	if got := l.CommittedFor("mkt-1"); !got.Equal(dec(35)) {
		t.Errorf("CommittedFor(mkt-1) = %s, want 35", got)
	}
	if got := l.TotalCommitted(); !got.Equal(dec(75)) {
		t.Errorf("TotalCommitted = %s, want 75", got)
	}

	l.Release("mkt-1")
	if got := l.CommittedFor("mkt-1"); !got.IsZero() {
		t.Errorf("CommittedFor after release = %s, want 0", got)
	}
	if got := l.TotalCommitted(); !got.Equal(dec(40)) {
		t.Errorf("TotalCommitted after release = %s, want 40", got)
	}
}

func TestRiskLedgerRealizedLoss(t *testing.T) {
	l := NewRiskLedger(time.Now())

	l.AddRealized(12.50)
	if !l.RealizedLoss().IsZero() {
		t.Errorf("profitable day reported loss %s", l.RealizedLoss())
	}

	l.AddRealized(-30)
	if got := l.RealizedLoss(); !got.Equal(dec(17.5)) {
		t.Errorf("RealizedLoss = %s, want 17.5", got)
	}

	l.Reset(time.Now())
	if !l.Realized.IsZero() || !l.TotalCommitted().IsZero() {
		t.Error("Reset did not clear the ledger")
	}
}

func TestBookSnapshotMid(t *testing.T) {
	tests := []struct {
		name  string
		quote Quote
		want  float64
	}{
		{"two sided", Quote{BestBid: 0.24, BestAsk: 0.26}, 0.25},
		{"ask only", Quote{BestAsk: 0.30}, 0.30},
		{"bid only", Quote{BestBid: 0.20}, 0.20},
		{"empty", Quote{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BookSnapshot{Quotes: [2]Quote{tt.quote, {}}}
			if got := s.Mid(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Mid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBookSnapshotCheaperSlot(t *testing.T) {
	tests := []struct {
		name      string
		primary   float64
		secondary float64
		wantSlot  OutcomeSlot
		wantOK    bool
	}{
		{"primary cheaper", 0.24, 0.80, SlotPrimary, true},
		{"secondary cheaper", 0.80, 0.24, SlotSecondary, true},
		{"tie goes to primary", 0.50, 0.50, SlotPrimary, true},
		{"primary side empty", 0, 0.40, SlotSecondary, true},
		{"secondary side empty", 0.40, 0, SlotPrimary, true},
		{"both empty", 0, 0, SlotPrimary, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BookSnapshot{Quotes: [2]Quote{
				{BestAsk: tt.primary},
				{BestAsk: tt.secondary},
			}}
			slot, ok := s.CheaperSlot()
			if slot != tt.wantSlot || ok != tt.wantOK {
				t.Errorf("CheaperSlot = %v/%v, want %v/%v", slot, ok, tt.wantSlot, tt.wantOK)
			}
		})
	}
}

func TestBookSnapshotTopDepth(t *testing.T) {
	s := BookSnapshot{Quotes: [2]Quote{
		{BidSize: 10, AskSize: 20},
		{BidSize: 5, AskSize: 15},
	}}
	if got := s.TopDepth(); math.Abs(got-50) > 1e-9 {
		t.Errorf("TopDepth = %v, want 50", got)
	}
}

func TestQuoteSpreadFloorsAtZero(t *testing.T) {
	crossed := Quote{BestBid: 0.30, BestAsk: 0.28}
	if got := crossed.Spread(); got != 0 {
		t.Errorf("crossed book spread = %v, want 0", got)
	}
	normal := Quote{BestBid: 0.24, BestAsk: 0.26}
	if got := normal.Spread(); math.Abs(got-0.02) > 1e-9 {
		t.Errorf("spread = %v, want 0.02", got)
	}
}

func TestCombinedAvgCost(t *testing.T) {
	entry := &Leg{Outcome: "Up", Slot: SlotPrimary, Price: 0.25, Size: 100}
	hedge := &Leg{Outcome: "Down", Slot: SlotSecondary, Price: 0.65, Size: 100}

	tests := []struct {
		name string
		pos  Position
		want float64
	}{
		{"entry only", Position{Entry: entry}, 0.25},
		{"entry and hedge", Position{Entry: entry, Hedge: hedge}, 0.90},
		{"no legs", Position{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.CombinedAvgCost(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CombinedAvgCost = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectedCombinedCost(t *testing.T) {
	entry := Leg{Price: 0.25, Size: 100}
	if got := ProjectedCombinedCost(entry, 0.65, 100); math.Abs(got-0.90) > 1e-9 {
		t.Errorf("ProjectedCombinedCost = %v, want 0.90", got)
	}
	if got := ProjectedCombinedCost(entry, 0.65, 0); got != 0 {
		t.Errorf("zero hedge size should project 0, got %v", got)
	}
}

func TestPositionStateTerminal(t *testing.T) {
	terminal := map[PositionState]bool{
		StateIdle:       false,
		StateEntered:    false,
		StateHedged:     true,
		StateExitedFlat: true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestExactTitleFilter(t *testing.T) {
	filter := ExactTitleFilter([]string{
		"Bitcoin Up or Down - 15 minute",
		"Ethereum Up or Down - 15 minute",
	})

	if !filter(Market{Question: "Bitcoin Up or Down - 15 minute"}) {
		t.Error("exact match rejected")
	}
	if filter(Market{Question: "bitcoin up or down - 15 minute"}) {
		t.Error("case-variant question admitted")
	}
	if filter(Market{Question: "Bitcoin Up or Down"}) {
		t.Error("prefix question admitted")
	}
}

func TestOutcomeSlotOpposite(t *testing.T) {
	if SlotPrimary.Opposite() != SlotSecondary || SlotSecondary.Opposite() != SlotPrimary {
		t.Error("Opposite is not an involution over the two slots")
	}
}
