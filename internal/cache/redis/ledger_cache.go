package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// ledgerTTL keeps per-day ledger keys around long enough to survive restarts
// and post-mortems without accumulating forever.
const ledgerTTL = 72 * time.Hour

// LedgerCache implements domain.LedgerCache using one hash per UTC trading
// day under the key "ledger:{YYYY-MM-DD}" with fields "realized" and
// "hard_stop".
type LedgerCache struct {
	rdb *redis.Client
}

// NewLedgerCache creates a LedgerCache backed by the given Client.
func NewLedgerCache(c *Client) *LedgerCache {
	return &LedgerCache{rdb: c.rdb}
}

func ledgerKey(day time.Time) string {
	return "ledger:" + day.UTC().Format("2006-01-02")
}

// SaveDay persists the realized P&L and hard-stop latch for a trading day.
func (lc *LedgerCache) SaveDay(ctx context.Context, day time.Time, realized float64, hardStop bool) error {
	key := ledgerKey(day)
	pipe := lc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"realized", strconv.FormatFloat(realized, 'f', -1, 64),
		"hard_stop", strconv.FormatBool(hardStop),
	)
	pipe.Expire(ctx, key, ledgerTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save ledger %s: %w", key, err)
	}
	return nil
}

// LoadDay restores the realized P&L and hard-stop latch for a trading day.
// It returns domain.ErrNotFound when no ledger was saved for that day.
func (lc *LedgerCache) LoadDay(ctx context.Context, day time.Time) (float64, bool, error) {
	key := ledgerKey(day)
	vals, err := lc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis: load ledger %s: %w", key, err)
	}
	if len(vals) == 0 {
		return 0, false, domain.ErrNotFound
	}

	var realized float64
	if s, ok := vals["realized"]; ok {
		realized, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("redis: load ledger %s: parse realized %q: %w", key, s, err)
		}
	}
	hardStop := vals["hard_stop"] == "true"

	return realized, hardStop, nil
}

// Compile-time interface check.
var _ domain.LedgerCache = (*LedgerCache)(nil)
