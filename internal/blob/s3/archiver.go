package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly; the archiver only needs time-ranged reads and
// the matching prune.

// PositionArchiveStore provides archival access to closed positions.
type PositionArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Position, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// FillArchiveStore provides archival access to the trade log.
type FillArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Fill, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TransitionArchiveStore provides archival access to the transition log.
type TransitionArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time) ([]domain.TransitionRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver moves aged records out of PostgreSQL into object storage as
// newline-delimited JSON. Records are deleted from the primary store only
// after the upload succeeded, so a failed upload leaves them in place for
// the next run.
type Archiver struct {
	writer      domain.BlobWriter
	positions   PositionArchiveStore
	fills       FillArchiveStore
	transitions TransitionArchiveStore
	retention   time.Duration
	interval    time.Duration
	log         *slog.Logger
}

// NewArchiver creates an Archiver. retentionDays bounds how long records stay
// in PostgreSQL before being shipped to the blob store.
func NewArchiver(
	writer domain.BlobWriter,
	positions PositionArchiveStore,
	fills FillArchiveStore,
	transitions TransitionArchiveStore,
	retentionDays int,
	logger *slog.Logger,
) *Archiver {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Archiver{
		writer:      writer,
		positions:   positions,
		fills:       fills,
		transitions: transitions,
		retention:   time.Duration(retentionDays) * 24 * time.Hour,
		interval:    24 * time.Hour,
		log:         logger.With(slog.String("component", "archiver")),
	}
}

// Run performs one archive sweep immediately and then once per day until the
// context is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

// sweep archives each record kind independently so a failure in one does not
// block the others.
func (a *Archiver) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-a.retention)

	if n, err := a.ArchivePositions(ctx, cutoff); err != nil {
		a.log.Error("archive positions failed", slog.Any("error", err))
	} else if n > 0 {
		a.log.Info("archived positions", slog.Int64("count", n))
	}

	if n, err := a.ArchiveFills(ctx, cutoff); err != nil {
		a.log.Error("archive fills failed", slog.Any("error", err))
	} else if n > 0 {
		a.log.Info("archived fills", slog.Int64("count", n))
	}

	if n, err := a.ArchiveTransitions(ctx, cutoff); err != nil {
		a.log.Error("archive transitions failed", slog.Any("error", err))
	} else if n > 0 {
		a.log.Info("archived transitions", slog.Int64("count", n))
	}
}

// ArchivePositions ships positions opened before the cutoff to the blob
// store and prunes them from PostgreSQL. It returns the number of records
// archived.
func (a *Archiver) ArchivePositions(ctx context.Context, cutoff time.Time) (int64, error) {
	records, err := a.positions.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	if err := a.writer.Write(ctx, archiveKey("positions", cutoff), buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	if _, err := a.positions.DeleteBefore(ctx, cutoff); err != nil {
		return int64(len(records)), fmt.Errorf("s3blob: archive positions prune: %w", err)
	}
	return int64(len(records)), nil
}

// ArchiveFills ships fills recorded before the cutoff to the blob store and
// prunes them from PostgreSQL.
func (a *Archiver) ArchiveFills(ctx context.Context, cutoff time.Time) (int64, error) {
	records, err := a.fills.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills marshal: %w", err)
	}

	if err := a.writer.Write(ctx, archiveKey("fills", cutoff), buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive fills upload: %w", err)
	}

	if _, err := a.fills.DeleteBefore(ctx, cutoff); err != nil {
		return int64(len(records)), fmt.Errorf("s3blob: archive fills prune: %w", err)
	}
	return int64(len(records)), nil
}

// ArchiveTransitions ships transition records before the cutoff to the blob
// store and prunes them from PostgreSQL.
func (a *Archiver) ArchiveTransitions(ctx context.Context, cutoff time.Time) (int64, error) {
	records, err := a.transitions.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transitions query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transitions marshal: %w", err)
	}

	if err := a.writer.Write(ctx, archiveKey("transitions", cutoff), buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive transitions upload: %w", err)
	}

	if _, err := a.transitions.DeleteBefore(ctx, cutoff); err != nil {
		return int64(len(records)), fmt.Errorf("s3blob: archive transitions prune: %w", err)
	}
	return int64(len(records)), nil
}

// archiveKey builds the object key for an archive file, partitioned by the
// cutoff date.
//
//	archive/positions/2026-08-23.jsonl
//	archive/fills/2026-08-23.jsonl
//	archive/transitions/2026-08-23.jsonl
func archiveKey(kind string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, cutoff.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
