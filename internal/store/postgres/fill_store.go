package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

var _ domain.FillStore = (*FillStore)(nil)

// Create records a confirmed fill.
func (s *FillStore) Create(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO fills (intent_id, market_id, token_id, outcome, slot, side, status, price, size, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (intent_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		f.IntentID, f.MarketID, f.TokenID, f.Outcome, int16(f.Slot),
		string(f.Side), string(f.Status), f.Price, f.Size, f.Reason, f.At)
	if err != nil {
		return fmt.Errorf("postgres: create fill %s: %w", f.IntentID, err)
	}
	return nil
}

// ListRecent returns the most recent fills, newest first.
func (s *FillStore) ListRecent(ctx context.Context, limit int) ([]domain.Fill, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills ORDER BY at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent fills: %w", err)
	}
	defer rows.Close()

	return scanFillRows(rows)
}

// ListBefore returns fills recorded before the cutoff, oldest first.
func (s *FillStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills WHERE at < $1 ORDER BY at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return scanFillRows(rows)
}

// DeleteBefore removes fills recorded before the cutoff.
func (s *FillStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fills before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

const fillSelectCols = `intent_id, market_id, token_id, outcome, slot, side, status, price, size, reason, at`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var slot int16
		var side, status string
		if err := rows.Scan(&f.IntentID, &f.MarketID, &f.TokenID, &f.Outcome, &slot,
			&side, &status, &f.Price, &f.Size, &f.Reason, &f.At); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Slot = domain.OutcomeSlot(slot)
		f.Side = domain.OrderSide(side)
		f.Status = domain.FillStatus(status)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
