package domain

import (
	"context"
	"time"
)

// ListOpts carries standard pagination and time-range options.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists archived positions for analytics.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	List(ctx context.Context, opts ListOpts) ([]Position, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]Position, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TransitionStore persists the state machine transition log.
type TransitionStore interface {
	Append(ctx context.Context, rec TransitionRecord) error
	ListRecent(ctx context.Context, limit int) ([]TransitionRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]TransitionRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FillStore persists confirmed fills (the trade log).
type FillStore interface {
	Create(ctx context.Context, f Fill) error
	ListRecent(ctx context.Context, limit int) ([]Fill, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]Fill, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
