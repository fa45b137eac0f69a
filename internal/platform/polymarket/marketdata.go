package polymarket

import (
	"context"
	"fmt"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// MarketData combines the Gamma and CLOB clients into the engine's market
// data view: Gamma for discovery, CLOB for both outcome books.
type MarketData struct {
	gamma *GammaClient
	clob  *ClobClient
}

// NewMarketData creates the combined market data client.
func NewMarketData(gamma *GammaClient, clob *ClobClient) *MarketData {
	return &MarketData{gamma: gamma, clob: clob}
}

var _ domain.MarketDataClient = (*MarketData)(nil)

// ListMarkets returns the active market universe from Gamma.
func (d *MarketData) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return d.gamma.ListActiveMarkets(ctx)
}

// GetSnapshot fetches both outcome books for the market and folds them into
// one snapshot. A market with an empty book on either side is unavailable
// this tick.
func (d *MarketData) GetSnapshot(ctx context.Context, market domain.Market) (domain.BookSnapshot, error) {
	snap := domain.BookSnapshot{MarketID: market.ID}

	for slot := domain.SlotPrimary; slot <= domain.SlotSecondary; slot++ {
		book, err := d.clob.GetBook(ctx, market.TokenIDs[slot])
		if err != nil {
			return domain.BookSnapshot{}, fmt.Errorf("%w: market %s %s: %v",
				domain.ErrUnavailable, market.ID, market.Outcome(slot), err)
		}
		bid, bidSize := book.BestBid()
		ask, askSize := book.BestAsk()
		if bid <= 0 && ask <= 0 {
			return domain.BookSnapshot{}, fmt.Errorf("%w: market %s %s: empty book",
				domain.ErrUnavailable, market.ID, market.Outcome(slot))
		}
		snap.Quotes[slot] = domain.Quote{
			BestBid: bid, BidSize: bidSize,
			BestAsk: ask, AskSize: askSize,
		}
		if at := book.ObservedAt(); at.After(snap.Observed) {
			snap.Observed = at
		}
	}
	return snap, nil
}
