package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// TransitionStore implements domain.TransitionStore using PostgreSQL.
type TransitionStore struct {
	pool *pgxpool.Pool
}

// NewTransitionStore creates a new TransitionStore backed by the given pool.
func NewTransitionStore(pool *pgxpool.Pool) *TransitionStore {
	return &TransitionStore{pool: pool}
}

var _ domain.TransitionStore = (*TransitionStore)(nil)

// Append records one state machine transition.
func (s *TransitionStore) Append(ctx context.Context, rec domain.TransitionRecord) error {
	const query = `
		INSERT INTO transitions (market_id, from_state, to_state, reason, at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		rec.MarketID, string(rec.From), string(rec.To), rec.Reason, rec.At)
	if err != nil {
		return fmt.Errorf("postgres: append transition for %s: %w", rec.MarketID, err)
	}
	return nil
}

// ListRecent returns the most recent transitions, newest first.
func (s *TransitionStore) ListRecent(ctx context.Context, limit int) ([]domain.TransitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, from_state, to_state, reason, at
		 FROM transitions ORDER BY at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent transitions: %w", err)
	}
	defer rows.Close()

	return scanTransitionRows(rows)
}

// ListBefore returns transitions recorded before the cutoff, oldest first.
func (s *TransitionStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.TransitionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, from_state, to_state, reason, at
		 FROM transitions WHERE at < $1 ORDER BY at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transitions before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return scanTransitionRows(rows)
}

// DeleteBefore removes transitions recorded before the cutoff.
func (s *TransitionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transitions WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete transitions before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func scanTransitionRows(rows pgx.Rows) ([]domain.TransitionRecord, error) {
	var recs []domain.TransitionRecord
	for rows.Next() {
		var rec domain.TransitionRecord
		var from, to string
		if err := rows.Scan(&rec.MarketID, &from, &to, &rec.Reason, &rec.At); err != nil {
			return nil, fmt.Errorf("postgres: scan transition: %w", err)
		}
		rec.From = domain.PositionState(from)
		rec.To = domain.PositionState(to)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
