package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	ActiveFromAPI flexBool `json:"active"` // API may send bool or "true"/"false" string
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`     // JSON-encoded: e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs  string   `json:"clobTokenIds"` // JSON-encoded: two CLOB token IDs
	EndDate       string   `json:"endDate"`
	Liquidity     float64  `json:"liquidityNum"`
	Volume        float64  `json:"volumeNum"`
	UpdatedAt     string   `json:"updatedAt"`
}

// ToDomainMarket converts an APIMarket to a domain.Market. It fails when the
// market is not a clean binary pair (two outcomes, two token IDs).
func (m *APIMarket) ToDomainMarket() (domain.Market, error) {
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("parse outcomes: %w", err)
	}
	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.Market{}, fmt.Errorf("parse token ids: %w", err)
	}
	if len(outcomes) != 2 || len(tokenIDs) != 2 {
		return domain.Market{}, fmt.Errorf("not a binary market: %d outcomes, %d tokens", len(outcomes), len(tokenIDs))
	}

	out := domain.Market{
		ID:        m.ID,
		Question:  m.Question,
		Slug:      m.Slug,
		Outcomes:  [2]string{outcomes[0], outcomes[1]},
		TokenIDs:  [2]string{tokenIDs[0], tokenIDs[1]},
		Liquidity: m.Liquidity,
		Volume:    m.Volume,
	}
	switch {
	case m.Closed:
		out.Status = domain.MarketStatusClosed
	case bool(m.ActiveFromAPI):
		out.Status = domain.MarketStatusActive
	default:
		out.Status = domain.MarketStatusSettled
	}
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		out.EndsAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		out.UpdatedAt = t
	}
	return out, nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBookLevel is one price level of a CLOB order book.
type APIBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the CLOB order book response for one token.
type APIBook struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Timestamp string         `json:"timestamp"` // milliseconds since epoch
	Bids      []APIBookLevel `json:"bids"`
	Asks      []APIBookLevel `json:"asks"`
}

// BestBid returns the highest bid level, or zeros when the bid side is empty.
func (b *APIBook) BestBid() (price, size float64) {
	return bestLevel(b.Bids, func(a, best float64) bool { return a > best })
}

// BestAsk returns the lowest ask level, or zeros when the ask side is empty.
func (b *APIBook) BestAsk() (price, size float64) {
	return bestLevel(b.Asks, func(a, best float64) bool { return a < best })
}

func bestLevel(levels []APIBookLevel, better func(a, best float64) bool) (price, size float64) {
	for i := range levels {
		p, err := strconv.ParseFloat(levels[i].Price, 64)
		if err != nil {
			continue
		}
		if price == 0 || better(p, price) {
			s, _ := strconv.ParseFloat(levels[i].Size, 64)
			price, size = p, s
		}
	}
	return price, size
}

// ObservedAt parses the book's millisecond timestamp, falling back to now.
func (b *APIBook) ObservedAt() time.Time {
	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Now().UTC()
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success       bool     `json:"success"`
	ErrorMsg      string   `json:"errorMsg,omitempty"`
	OrderID       string   `json:"orderID,omitempty"`
	Status        string   `json:"status,omitempty"`
	TakingAmount  string   `json:"takingAmount,omitempty"`
	MakingAmount  string   `json:"makingAmount,omitempty"`
	TransactIDs   []string `json:"transactionsHashes,omitempty"`
	ShouldRetry   bool     `json:"shouldRetry,omitempty"`
}
