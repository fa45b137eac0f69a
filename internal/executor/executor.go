// Package executor turns order intents into fills: live against the
// Polymarket CLOB, or on paper for dry runs.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
	"github.com/quarterhedge/updownbot/internal/platform/polymarket"
)

// Live submits fill-and-kill orders to the CLOB. A fill-and-kill order either
// executes immediately against resting liquidity or dies, so the engine never
// has to manage resting order state between ticks.
type Live struct {
	clob   *polymarket.ClobClient
	logger *slog.Logger
}

// NewLive creates the live executor.
func NewLive(clob *polymarket.ClobClient, logger *slog.Logger) *Live {
	return &Live{
		clob:   clob,
		logger: logger.With(slog.String("component", "executor")),
	}
}

var _ domain.OrderSubmitter = (*Live)(nil)

// Submit posts the intent as a fill-and-kill order and maps the venue result
// to a fill. Venue rejections come back as a rejected fill, not an error, so
// the engine can distinguish "the venue said no" from "the request failed".
func (e *Live) Submit(ctx context.Context, intent domain.OrderIntent) (domain.Fill, error) {
	result, err := e.clob.PostOrder(ctx, intent)
	if err != nil {
		return domain.Fill{}, err
	}

	fill := fillSkeleton(intent)
	if !result.Success {
		fill.Status = domain.FillStatusRejected
		fill.Reason = result.ErrorMsg
		return fill, nil
	}

	e.logger.Info("order executed",
		slog.String("market_id", intent.MarketID),
		slog.String("kind", string(intent.Kind)),
		slog.String("order_id", result.OrderID),
		slog.Float64("price", intent.Price()),
		slog.Float64("size", intent.Size()),
	)

	fill.Status = domain.FillStatusFilled
	fill.Price = intent.Price()
	fill.Size = intent.Size()
	return fill, nil
}

// Paper fills every intent at its limit price without touching the venue.
type Paper struct {
	logger *slog.Logger
}

// NewPaper creates the dry-run executor.
func NewPaper(logger *slog.Logger) *Paper {
	return &Paper{logger: logger.With(slog.String("component", "executor_paper"))}
}

var _ domain.OrderSubmitter = (*Paper)(nil)

// Submit records a simulated fill at the intent's limit price.
func (e *Paper) Submit(ctx context.Context, intent domain.OrderIntent) (domain.Fill, error) {
	e.logger.Info("paper fill",
		slog.String("market_id", intent.MarketID),
		slog.String("kind", string(intent.Kind)),
		slog.String("side", string(intent.Side)),
		slog.Float64("price", intent.Price()),
		slog.Float64("size", intent.Size()),
	)

	fill := fillSkeleton(intent)
	fill.Status = domain.FillStatusFilled
	fill.Price = intent.Price()
	fill.Size = intent.Size()
	return fill, nil
}

func fillSkeleton(intent domain.OrderIntent) domain.Fill {
	at := intent.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return domain.Fill{
		IntentID: intent.ID,
		MarketID: intent.MarketID,
		TokenID:  intent.TokenID,
		Outcome:  intent.Outcome,
		Slot:     intent.Slot,
		Side:     intent.Side,
		At:       at,
	}
}
