package engine_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
	"github.com/quarterhedge/updownbot/internal/engine"
	"github.com/quarterhedge/updownbot/internal/micro"
	"github.com/quarterhedge/updownbot/internal/position"
	"github.com/quarterhedge/updownbot/internal/risk"
	"github.com/quarterhedge/updownbot/internal/timing"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) IsNewTradingDay(ledgerDay time.Time) bool {
	return c.now.UTC().Truncate(24 * time.Hour).After(ledgerDay.UTC().Truncate(24 * time.Hour))
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type mockData struct {
	markets   []domain.Market
	snaps     map[string]domain.BookSnapshot
	fail      map[string]bool
	listCalls int
	snapCalls int
}

func (m *mockData) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	m.listCalls++
	out := make([]domain.Market, len(m.markets))
	copy(out, m.markets)
	return out, nil
}

func (m *mockData) GetSnapshot(ctx context.Context, mkt domain.Market) (domain.BookSnapshot, error) {
	m.snapCalls++
	if m.fail[mkt.ID] {
		return domain.BookSnapshot{}, domain.ErrUnavailable
	}
	return m.snaps[mkt.ID], nil
}

type mockApprover struct {
	verdict domain.ApprovalVerdict
	calls   int
	kinds   []domain.IntentKind
}

func (m *mockApprover) Approve(ctx context.Context, kind domain.IntentKind, actx domain.ApprovalContext) (domain.ApprovalVerdict, error) {
	m.calls++
	m.kinds = append(m.kinds, kind)
	return m.verdict, nil
}

type mockSubmitter struct {
	fills []domain.Fill
}

func (m *mockSubmitter) Submit(ctx context.Context, intent domain.OrderIntent) (domain.Fill, error) {
	fill := domain.Fill{
		IntentID: intent.ID,
		MarketID: intent.MarketID,
		TokenID:  intent.TokenID,
		Outcome:  intent.Outcome,
		Slot:     intent.Slot,
		Side:     intent.Side,
		Status:   domain.FillStatusFilled,
		Price:    intent.Price(),
		Size:     intent.Size(),
		At:       intent.CreatedAt,
	}
	m.fills = append(m.fills, fill)
	return fill, nil
}

type memLedgerCache struct {
	realized float64
	hardStop bool
	saved    int
}

func (m *memLedgerCache) SaveDay(ctx context.Context, day time.Time, realized float64, hardStop bool) error {
	m.realized = realized
	m.hardStop = hardStop
	m.saved++
	return nil
}

func (m *memLedgerCache) LoadDay(ctx context.Context, day time.Time) (float64, bool, error) {
	return m.realized, m.hardStop, nil
}

type memSnapshotCache struct {
	snaps map[string]domain.BookSnapshot
	sets  int
}

func newMemSnapshotCache() *memSnapshotCache {
	return &memSnapshotCache{snaps: make(map[string]domain.BookSnapshot)}
}

func (m *memSnapshotCache) Set(ctx context.Context, snap domain.BookSnapshot) error {
	m.snaps[snap.MarketID] = snap
	m.sets++
	return nil
}

func (m *memSnapshotCache) Get(ctx context.Context, marketID string) (domain.BookSnapshot, error) {
	snap, ok := m.snaps[marketID]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

type fixture struct {
	clock     *fakeClock
	data      *mockData
	approver  *mockApprover
	submitter *mockSubmitter
	guardrail *risk.Guardrail
	eng       *engine.Engine
}

func newFixture(t *testing.T, start time.Time, markets ...domain.Market) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		clock:     &fakeClock{now: start},
		data:      &mockData{markets: markets, snaps: make(map[string]domain.BookSnapshot), fail: make(map[string]bool)},
		approver:  &mockApprover{verdict: domain.VerdictApproved},
		submitter: &mockSubmitter{},
	}
	f.guardrail = risk.NewGuardrail(risk.Config{DailyLossCap: 500, PerMarketCap: 250, TotalNotionalCap: 1000}, logger)
	f.eng = engine.New(engine.Config{
		PollInterval: 15 * time.Second,
		Machine: position.Config{
			BaseSize:        100,
			SafetyMargin:    0.01,
			DepthAccelFloor: 0.05,
			HedgeTimeout:    45 * time.Second,
			VolCeiling:      0.18,
			SpreadLimit:     0.02,
		},
	}, engine.Deps{
		Logger:     logger,
		Data:       f.data,
		Tracker:    micro.NewTracker(),
		Classifier: timing.NewClassifier(timing.Config{VolCeiling: 0.18, DepthAccelFloor: 0.05, SpreadDriftBand: 0.02}),
		Guardrail:  f.guardrail,
		Approver:   f.approver,
		Submitter:  f.submitter,
		Clock:      f.clock,
	})
	return f
}

func assertRealized(t *testing.T, got string, want float64) {
	t.Helper()
	v, err := strconv.ParseFloat(got, 64)
	if err != nil {
		t.Fatalf("realized %q is not numeric: %v", got, err)
	}
	if math.Abs(v-want) > 1e-6 {
		t.Fatalf("realized = %s, want %v", got, want)
	}
}

func market(id string) domain.Market {
	return domain.Market{
		ID:       id,
		Question: "Bitcoin Up or Down - 15 minute",
		Outcomes: [2]string{"Up", "Down"},
		TokenIDs: [2]string{id + "-up", id + "-down"},
		EndsAt:   time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC),
		Status:   domain.MarketStatusActive,
	}
}

// setBook installs a snapshot observed at the clock's current time. Top sizes
// grow with each tick so depth acceleration stays above the entry floor.
func (f *fixture) setBook(id string, upBid, upAsk, downBid, downAsk, topSize float64) {
	f.data.snaps[id] = domain.BookSnapshot{
		MarketID: id,
		Quotes: [2]domain.Quote{
			{BestBid: upBid, BidSize: topSize, BestAsk: upAsk, AskSize: topSize},
			{BestBid: downBid, BidSize: topSize, BestAsk: downAsk, AskSize: topSize},
		},
		Observed: f.clock.now,
	}
}

// warmup ticks until the tracker window spans the volatility sub-window: five
// observations 15 seconds apart. The book stays calm with growing depth, so
// the final warmup tick may already produce an entry.
func (f *fixture) warmup(ctx context.Context, id string) {
	for i := 0; i < 5; i++ {
		f.setBook(id, 0.24, 0.25, 0.78, 0.80, 100+float64(i)*10)
		f.eng.Tick(ctx)
		f.clock.advance(15 * time.Second)
	}
}

func TestTickEntryThenHedge(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, start, market("m1"))

	f.warmup(ctx, "m1")

	if len(f.submitter.fills) != 1 {
		t.Fatalf("fills after warmup = %d, want 1 entry", len(f.submitter.fills))
	}
	entry := f.submitter.fills[0]
	if entry.Slot != domain.SlotPrimary || entry.Side != domain.OrderSideBuy || entry.Price != 0.25 {
		t.Fatalf("unexpected entry fill: %+v", entry)
	}

	// Down cheapens below the entry reference: hedge fires on the next tick.
	f.setBook("m1", 0.24, 0.25, 0.43, 0.45, 160)
	f.eng.Tick(ctx)

	if len(f.submitter.fills) != 2 {
		t.Fatalf("fills = %d, want entry + hedge", len(f.submitter.fills))
	}
	hedge := f.submitter.fills[1]
	if hedge.Slot != domain.SlotSecondary || hedge.Price != 0.45 {
		t.Fatalf("unexpected hedge fill: %+v", hedge)
	}
	if got := f.approver.kinds; !reflect.DeepEqual(got, []domain.IntentKind{domain.IntentEntry, domain.IntentHedge}) {
		t.Fatalf("oracle consulted for %v", got)
	}

	st := f.eng.Status()
	if len(st.Markets) != 1 || st.Markets[0].State != domain.StateHedged {
		t.Fatalf("status markets = %+v", st.Markets)
	}
	if math.Abs(st.Markets[0].CombinedCost-0.70) > 1e-9 {
		t.Fatalf("combined cost = %v, want 0.70", st.Markets[0].CombinedCost)
	}

	// Market rolls off the universe: the hedged pair settles at $1/share.
	f.data.markets = nil
	f.clock.advance(15 * time.Second)
	f.eng.Tick(ctx)

	st = f.eng.Status()
	assertRealized(t, st.Realized, 30)
	if st.TotalCommitted != "0" {
		t.Fatalf("committed = %s, want 0 after archive", st.TotalCommitted)
	}
}

func TestTickExitOnHedgeTimeout(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, start, market("m1"))

	f.warmup(ctx, "m1")
	if len(f.submitter.fills) != 1 {
		t.Fatalf("fills after warmup = %d, want 1 entry", len(f.submitter.fills))
	}

	// The opposite side never cheapens. 46 seconds after entry the leg is cut.
	for i := 0; i < 4; i++ {
		f.setBook("m1", 0.24, 0.25, 0.78, 0.80, 160+float64(i)*10)
		f.eng.Tick(ctx)
		f.clock.advance(15 * time.Second)
	}

	if len(f.submitter.fills) != 2 {
		t.Fatalf("fills = %d, want entry + exit", len(f.submitter.fills))
	}
	exit := f.submitter.fills[1]
	if exit.Side != domain.OrderSideSell || exit.Price != 0.24 {
		t.Fatalf("unexpected exit fill: %+v", exit)
	}
	// Flattens bypass the oracle: only the entry was submitted for approval.
	if f.approver.calls != 1 {
		t.Fatalf("oracle calls = %d, want 1", f.approver.calls)
	}

	st := f.eng.Status()
	// Sold 100 at 0.24 against a 0.25 cost basis.
	assertRealized(t, st.Realized, -1)
}

func TestTickIsolatesUnavailableMarket(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, start, market("m1"), market("m2"))
	f.data.fail["m1"] = true

	for i := 0; i < 5; i++ {
		f.setBook("m2", 0.24, 0.25, 0.78, 0.80, 100+float64(i)*10)
		f.eng.Tick(ctx)
		f.clock.advance(15 * time.Second)
	}

	if len(f.submitter.fills) != 1 || f.submitter.fills[0].MarketID != "m2" {
		t.Fatalf("fills = %+v, want exactly one m2 entry", f.submitter.fills)
	}
	st := f.eng.Status()
	if len(st.Markets) != 2 {
		t.Fatalf("status markets = %d, want both tracked", len(st.Markets))
	}
	for _, ms := range st.Markets {
		if ms.MarketID == "m1" && ms.State != domain.StateIdle {
			t.Fatalf("dark market state = %s, want idle", ms.State)
		}
	}
}

func TestTickUsesCachedSnapshotWhenFetchFails(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, start, market("m1"))
	f.data.fail["m1"] = true
	cache := newMemSnapshotCache()

	// Rebuild the engine with the snapshot cache wired in.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.eng = engine.New(engine.Config{PollInterval: 15 * time.Second, Machine: position.Config{
		BaseSize: 100, SafetyMargin: 0.01, DepthAccelFloor: 0.05,
		HedgeTimeout: 45 * time.Second, VolCeiling: 0.18, SpreadLimit: 0.02,
	}}, engine.Deps{
		Logger:     logger,
		Data:       f.data,
		Tracker:    micro.NewTracker(),
		Classifier: timing.NewClassifier(timing.Config{VolCeiling: 0.18, DepthAccelFloor: 0.05, SpreadDriftBand: 0.02}),
		Guardrail:  f.guardrail,
		Approver:   f.approver,
		Submitter:  f.submitter,
		Clock:      f.clock,
		Snapshots:  cache,
	})

	// The websocket feed keeps the cache warm while every REST fetch fails.
	for i := 0; i < 5; i++ {
		size := 100 + float64(i)*10
		cache.snaps["m1"] = domain.BookSnapshot{
			MarketID: "m1",
			Quotes: [2]domain.Quote{
				{BestBid: 0.24, BidSize: size, BestAsk: 0.25, AskSize: size},
				{BestBid: 0.78, BidSize: size, BestAsk: 0.80, AskSize: size},
			},
			Observed: f.clock.now,
		}
		f.eng.Tick(ctx)
		f.clock.advance(15 * time.Second)
	}

	if len(f.submitter.fills) != 1 {
		t.Fatalf("fills = %d, want one entry off the cached books", len(f.submitter.fills))
	}
	if cache.sets != 0 {
		t.Fatalf("cache writes = %d, want no write-back of cached books", cache.sets)
	}

	// A cached book past the freshness bound is not decided on, even one
	// showing a hedge opportunity.
	f.clock.advance(45 * time.Second)
	cache.snaps["m1"] = domain.BookSnapshot{
		MarketID: "m1",
		Quotes: [2]domain.Quote{
			{BestBid: 0.24, BidSize: 160, BestAsk: 0.25, AskSize: 160},
			{BestBid: 0.43, BidSize: 160, BestAsk: 0.45, AskSize: 160},
		},
		Observed: f.clock.now.Add(-60 * time.Second),
	}
	f.eng.Tick(ctx)
	if len(f.submitter.fills) != 1 {
		t.Fatalf("fills = %d, want no action on a stale cached book", len(f.submitter.fills))
	}
}

func TestRolloverCarriesOpenExposure(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 23, 58, 30, 0, time.UTC)
	mkt := market("m1")
	mkt.EndsAt = time.Date(2026, 8, 31, 0, 10, 0, 0, time.UTC)
	f := newFixture(t, start, mkt)

	f.warmup(ctx, "m1")
	if len(f.submitter.fills) != 1 {
		t.Fatalf("fills after warmup = %d, want 1 entry", len(f.submitter.fills))
	}
	st := f.eng.Status()
	if st.TotalCommitted != "25" {
		t.Fatalf("committed before rollover = %s, want 25", st.TotalCommitted)
	}

	// Midnight passes 35 seconds after the entry fill: the day resets while
	// the unhedged leg is still open and inside its hedge window.
	f.clock.now = time.Date(2026, 8, 31, 0, 0, 5, 0, time.UTC)
	f.setBook("m1", 0.24, 0.25, 0.78, 0.80, 150)
	f.eng.Tick(ctx)

	st = f.eng.Status()
	assertRealized(t, st.Realized, 0)
	if st.TotalCommitted != "25" {
		t.Fatalf("committed after rollover = %s, want open leg carried", st.TotalCommitted)
	}
}

func TestTickDeterministicReplay(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	run := func() ([]domain.TransitionRecord, engine.Status) {
		f := newFixture(t, start, market("m1"), market("m2"))
		f.warmup(ctx, "m1")
		for i := 0; i < 5; i++ {
			f.setBook("m2", 0.30, 0.32, 0.66, 0.68, 100+float64(i)*10)
			f.setBook("m1", 0.24, 0.25, 0.43, 0.45, 200)
			f.eng.Tick(ctx)
			f.clock.advance(15 * time.Second)
		}
		return f.eng.RecentTransitions(), f.eng.Status()
	}

	trans1, st1 := run()
	trans2, st2 := run()

	if !reflect.DeepEqual(trans1, trans2) {
		t.Fatalf("replay diverged:\n%v\n%v", trans1, trans2)
	}
	if st1.Realized != st2.Realized || st1.TotalCommitted != st2.TotalCommitted {
		t.Fatalf("ledger diverged: %s/%s vs %s/%s",
			st1.Realized, st1.TotalCommitted, st2.Realized, st2.TotalCommitted)
	}
}

func TestRestoredHardStopBlocksEntries(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, start, market("m1"))
	cache := &memLedgerCache{realized: -600, hardStop: true}

	// Rebuild the engine with the persisted cache wired in.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.eng = engine.New(engine.Config{PollInterval: 15 * time.Second, Machine: position.Config{
		BaseSize: 100, SafetyMargin: 0.01, DepthAccelFloor: 0.05,
		HedgeTimeout: 45 * time.Second, VolCeiling: 0.18, SpreadLimit: 0.02,
	}}, engine.Deps{
		Logger:      logger,
		Data:        f.data,
		Tracker:     micro.NewTracker(),
		Classifier:  timing.NewClassifier(timing.Config{VolCeiling: 0.18, DepthAccelFloor: 0.05, SpreadDriftBand: 0.02}),
		Guardrail:   f.guardrail,
		Approver:    f.approver,
		Submitter:   f.submitter,
		Clock:       f.clock,
		LedgerCache: cache,
	})

	done := make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer close(done)
		f.eng.Run(runCtx)
	}()
	// Run restores the latch before the first tick; give it one tick cycle.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if !f.guardrail.HardStopped() {
		t.Fatal("hard stop must survive a restart")
	}
	f.warmup(ctx, "m1")
	if len(f.submitter.fills) != 0 {
		t.Fatalf("fills = %d, want none under a latched hard stop", len(f.submitter.fills))
	}
}
