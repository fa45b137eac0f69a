package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// defaultSnapshotTTL bounds how long a cached book snapshot stays readable.
// Snapshots for 15-minute markets are useless well before this expires; the
// TTL only keeps dead markets from accumulating keys.
const defaultSnapshotTTL = 30 * time.Minute

// SnapshotCache implements domain.SnapshotCache using one JSON value per
// market under the key "book:{marketID}".
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
// A ttl of zero selects the default.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotCache{rdb: c.rdb, ttl: ttl}
}

func snapshotKey(marketID string) string { return "book:" + marketID }

// Set stores the latest snapshot for a market, replacing any previous one.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.MarketID, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.MarketID), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.MarketID, err)
	}
	return nil
}

// Get retrieves the latest snapshot for a market. It returns
// domain.ErrNotFound when no snapshot exists or the TTL has expired.
func (sc *SnapshotCache) Get(ctx context.Context, marketID string) (domain.BookSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(marketID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.BookSnapshot{}, domain.ErrNotFound
		}
		return domain.BookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", marketID, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", marketID, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
