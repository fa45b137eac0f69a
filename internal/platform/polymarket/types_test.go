package polymarket

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

func TestFlexBoolAcceptsBoolAndString(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"TRUE"`, true},
		{`"false"`, false},
		{`"1"`, true},
		{`"0"`, false},
	}

	for _, tt := range tests {
		var f flexBool
		if err := json.Unmarshal([]byte(tt.raw), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if bool(f) != tt.want {
			t.Errorf("flexBool(%s) = %v, want %v", tt.raw, bool(f), tt.want)
		}
	}
}

func TestToDomainMarket(t *testing.T) {
	m := APIMarket{
		ID:            "mkt-1",
		Question:      "Bitcoin Up or Down - 15 minute",
		Slug:          "bitcoin-up-or-down",
		ActiveFromAPI: true,
		Outcomes:      `["Up","Down"]`,
		ClobTokenIDs:  `["tok-up","tok-down"]`,
		EndDate:       "2026-08-30T12:15:00Z",
		Liquidity:     1200.5,
		Volume:        8000,
	}

	got, err := m.ToDomainMarket()
	if err != nil {
		t.Fatalf("ToDomainMarket: %v", err)
	}

	if got.Outcomes != [2]string{"Up", "Down"} {
		t.Errorf("Outcomes = %v", got.Outcomes)
	}
	if got.TokenIDs != [2]string{"tok-up", "tok-down"} {
		t.Errorf("TokenIDs = %v", got.TokenIDs)
	}
	if got.Status != domain.MarketStatusActive {
		t.Errorf("Status = %s, want active", got.Status)
	}
	want := time.Date(2026, 8, 30, 12, 15, 0, 0, time.UTC)
	if !got.EndsAt.Equal(want) {
		t.Errorf("EndsAt = %v, want %v", got.EndsAt, want)
	}
}

func TestToDomainMarketRejectsNonBinary(t *testing.T) {
	tests := []struct {
		name     string
		outcomes string
		tokens   string
	}{
		{"three outcomes", `["A","B","C"]`, `["1","2","3"]`},
		{"one token", `["Up","Down"]`, `["1"]`},
		{"malformed outcomes", `not-json`, `["1","2"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := APIMarket{ID: "x", Outcomes: tt.outcomes, ClobTokenIDs: tt.tokens}
			if _, err := m.ToDomainMarket(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestToDomainMarketClosedBeatsActive(t *testing.T) {
	m := APIMarket{
		ID:            "mkt-1",
		ActiveFromAPI: true,
		Closed:        true,
		Outcomes:      `["Up","Down"]`,
		ClobTokenIDs:  `["a","b"]`,
	}
	got, err := m.ToDomainMarket()
	if err != nil {
		t.Fatalf("ToDomainMarket: %v", err)
	}
	if got.Status != domain.MarketStatusClosed {
		t.Errorf("Status = %s, want closed", got.Status)
	}
}

func TestBookBestLevels(t *testing.T) {
	book := APIBook{
		Bids: []APIBookLevel{
			{Price: "0.20", Size: "50"},
			{Price: "0.24", Size: "30"},
		},
		Asks: []APIBookLevel{
			{Price: "0.30", Size: "40"},
			{Price: "0.26", Size: "20"},
			{Price: "junk", Size: "999"},
		},
	}

	bid, bidSize := book.BestBid()
	if math.Abs(bid-0.24) > 1e-9 || math.Abs(bidSize-30) > 1e-9 {
		t.Errorf("BestBid = %v/%v, want 0.24/30", bid, bidSize)
	}

	ask, askSize := book.BestAsk()
	if math.Abs(ask-0.26) > 1e-9 || math.Abs(askSize-20) > 1e-9 {
		t.Errorf("BestAsk = %v/%v, want 0.26/20", ask, askSize)
	}
}

func TestBookObservedAt(t *testing.T) {
	book := APIBook{Timestamp: "1700000000000"}
	want := time.UnixMilli(1700000000000).UTC()
	if got := book.ObservedAt(); !got.Equal(want) {
		t.Errorf("ObservedAt = %v, want %v", got, want)
	}

	before := time.Now().UTC()
	fallback := (&APIBook{Timestamp: "garbage"}).ObservedAt()
	if fallback.Before(before) {
		t.Errorf("fallback ObservedAt = %v precedes call time", fallback)
	}
}
