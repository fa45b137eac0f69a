package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ domain.PositionStore = (*PositionStore)(nil)

const positionSelectCols = `id, market_id, state,
	entry_outcome, entry_slot, entry_price, entry_size, entry_filled_at,
	hedge_outcome, hedge_slot, hedge_price, hedge_size, hedge_filled_at,
	realized_pnl, opened_at, closed_at, exit_price, exit_reason`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var state string
	var entry domain.Leg
	var entrySlot int16
	var hedgeOutcome *string
	var hedgeSlot *int16
	var hedgePrice, hedgeSize *float64
	var hedgeFilledAt *time.Time

	err := row.Scan(
		&p.ID, &p.MarketID, &state,
		&entry.Outcome, &entrySlot, &entry.Price, &entry.Size, &entry.FilledAt,
		&hedgeOutcome, &hedgeSlot, &hedgePrice, &hedgeSize, &hedgeFilledAt,
		&p.RealizedPnL, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &p.ExitReason,
	)
	if err != nil {
		return domain.Position{}, err
	}

	p.State = domain.PositionState(state)
	entry.Slot = domain.OutcomeSlot(entrySlot)
	p.Entry = &entry
	if hedgeOutcome != nil && hedgeSlot != nil && hedgePrice != nil && hedgeSize != nil && hedgeFilledAt != nil {
		p.Hedge = &domain.Leg{
			Outcome:  *hedgeOutcome,
			Slot:     domain.OutcomeSlot(*hedgeSlot),
			Price:    *hedgePrice,
			Size:     *hedgeSize,
			FilledAt: *hedgeFilledAt,
		}
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts an archived position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	if p.Entry == nil {
		return fmt.Errorf("postgres: create position %s: %w: missing entry leg", p.ID, domain.ErrInvalidIntent)
	}

	const query = `
		INSERT INTO positions (
			id, market_id, state,
			entry_outcome, entry_slot, entry_price, entry_size, entry_filled_at,
			hedge_outcome, hedge_slot, hedge_price, hedge_size, hedge_filled_at,
			realized_pnl, opened_at, closed_at, exit_price, exit_reason
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18
		)`

	var hedgeOutcome *string
	var hedgeSlot *int16
	var hedgePrice, hedgeSize *float64
	var hedgeFilledAt *time.Time
	if h := p.Hedge; h != nil {
		slot := int16(h.Slot)
		hedgeOutcome, hedgeSlot = &h.Outcome, &slot
		hedgePrice, hedgeSize = &h.Price, &h.Size
		hedgeFilledAt = &h.FilledAt
	}

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, string(p.State),
		p.Entry.Outcome, int16(p.Entry.Slot), p.Entry.Price, p.Entry.Size, p.Entry.FilledAt,
		hedgeOutcome, hedgeSlot, hedgePrice, hedgeSize, hedgeFilledAt,
		p.RealizedPnL, p.OpenedAt, p.ClosedAt, p.ExitPrice, p.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// List returns archived positions with pagination and optional time
// filtering, newest first.
func (s *PositionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE TRUE`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// ListBefore returns positions opened before the cutoff, oldest first.
func (s *PositionStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE opened_at < $1 ORDER BY opened_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions before %s: %w", cutoff, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// DeleteBefore removes positions opened before the cutoff and reports how
// many rows were deleted.
func (s *PositionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE opened_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete positions before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
