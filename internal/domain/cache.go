package domain

import (
	"context"
	"time"
)

// SnapshotCache stores the latest book snapshot per market so the websocket
// feed and the REST poller can share one view of the book.
type SnapshotCache interface {
	Set(ctx context.Context, snap BookSnapshot) error
	Get(ctx context.Context, marketID string) (BookSnapshot, error)
}

// LedgerCache persists the daily risk ledger state (realized P&L, hard-stop
// latch) across process restarts so a restart cannot un-breach the daily cap.
type LedgerCache interface {
	SaveDay(ctx context.Context, day time.Time, realized float64, hardStop bool) error
	LoadDay(ctx context.Context, day time.Time) (realized float64, hardStop bool, err error)
}

// SignalBus publishes engine events (transitions, denials, fills) for the
// dashboard and other observers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter writes archive objects to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte) error
}
