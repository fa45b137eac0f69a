package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePositionReader struct {
	byID     map[string]domain.Position
	listed   []domain.Position
	lastOpts domain.ListOpts
	listErr  error
}

func (f *fakePositionReader) GetByID(_ context.Context, id string) (domain.Position, error) {
	p, ok := f.byID[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePositionReader) List(_ context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	f.lastOpts = opts
	return f.listed, f.listErr
}

func TestListPositionsParsesQuery(t *testing.T) {
	reader := &fakePositionReader{listed: []domain.Position{{ID: "pos-1"}}}
	h := NewPositionHandler(reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions?limit=600&offset=10&since=2026-08-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.ListPositions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if reader.lastOpts.Limit != 500 {
		t.Errorf("limit = %d, want clamped to 500", reader.lastOpts.Limit)
	}
	if reader.lastOpts.Offset != 10 {
		t.Errorf("offset = %d, want 10", reader.lastOpts.Offset)
	}
	wantSince := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if reader.lastOpts.Since == nil || !reader.lastOpts.Since.Equal(wantSince) {
		t.Errorf("since = %v, want %v", reader.lastOpts.Since, wantSince)
	}

	var body map[string][]domain.Position
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body["positions"]) != 1 || body["positions"][0].ID != "pos-1" {
		t.Errorf("body = %v", body)
	}
}

func TestListPositionsEmptyIsArrayNotNull(t *testing.T) {
	h := NewPositionHandler(&fakePositionReader{}, discardLogger())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if string(body["positions"]) != "[]" {
		t.Errorf("positions = %s, want []", body["positions"])
	}
}

func TestListPositionsStoreError(t *testing.T) {
	reader := &fakePositionReader{listErr: errors.New("pg down")}
	h := NewPositionHandler(reader, discardLogger())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetPosition(t *testing.T) {
	reader := &fakePositionReader{byID: map[string]domain.Position{
		"pos-1": {ID: "pos-1", MarketID: "mkt-1", State: domain.StateExitedFlat},
	}}
	h := NewPositionHandler(reader, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions/pos-1", nil)
	req.SetPathValue("id", "pos-1")
	rec := httptest.NewRecorder()
	h.GetPosition(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got domain.Position
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.ID != "pos-1" || got.MarketID != "mkt-1" {
		t.Errorf("position = %+v", got)
	}
}

func TestGetPositionNotFound(t *testing.T) {
	h := NewPositionHandler(&fakePositionReader{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetPosition(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

type fakeFillReader struct {
	fills     []domain.Fill
	lastLimit int
}

func (f *fakeFillReader) ListRecent(_ context.Context, limit int) ([]domain.Fill, error) {
	f.lastLimit = limit
	return f.fills, nil
}

type fakeTransitionReader struct {
	recs []domain.TransitionRecord
}

func (f *fakeTransitionReader) ListRecent(_ context.Context, limit int) ([]domain.TransitionRecord, error) {
	return f.recs, nil
}

func TestListFillsDefaultLimit(t *testing.T) {
	fills := &fakeFillReader{fills: []domain.Fill{{IntentID: "i-1"}}}
	h := NewTradeHandler(fills, &fakeTransitionReader{}, discardLogger())

	rec := httptest.NewRecorder()
	h.ListFills(rec, httptest.NewRequest(http.MethodGet, "/api/fills", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if fills.lastLimit != 50 {
		t.Errorf("limit = %d, want default 50", fills.lastLimit)
	}
}

func TestListTransitionsEmptyIsArrayNotNull(t *testing.T) {
	h := NewTradeHandler(&fakeFillReader{}, &fakeTransitionReader{}, discardLogger())

	rec := httptest.NewRecorder()
	h.ListTransitions(rec, httptest.NewRequest(http.MethodGet, "/api/transitions", nil))

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if string(body["transitions"]) != "[]" {
		t.Errorf("transitions = %s, want []", body["transitions"])
	}
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(discardLogger())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
	if body["service"] != "updownbot" {
		t.Errorf("service field = %q, want updownbot", body["service"])
	}
	if body["uptime"] == "" {
		t.Error("uptime field missing")
	}
}
