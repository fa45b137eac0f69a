// Package engine implements the decision loop: observe every eligible market,
// derive microstructure signals, and drive each market's position state
// machine through entry, hedge, and exit under the risk guardrail and the
// approval oracle.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarterhedge/updownbot/internal/domain"
	"github.com/quarterhedge/updownbot/internal/micro"
	"github.com/quarterhedge/updownbot/internal/notify"
	"github.com/quarterhedge/updownbot/internal/position"
	"github.com/quarterhedge/updownbot/internal/risk"
	"github.com/quarterhedge/updownbot/internal/timing"
)

const (
	defaultFetchConcurrency = 8
	transitionRingCap       = 128

	// maxCachedSnapshotAge bounds how stale a cached book may be before the
	// engine refuses to decide on it.
	maxCachedSnapshotAge = 30 * time.Second

	channelTransitions = "updown.transitions"
	channelDenials     = "updown.denials"
	streamTransitions  = "updown:transitions"
)

// Config holds the engine's tunables.
type Config struct {
	// PollInterval is the tick cadence.
	PollInterval time.Duration
	// FetchConcurrency bounds concurrent snapshot fetches per tick.
	FetchConcurrency int
	// SlippagePenalty is subtracted from the raw mispricing handed to the
	// approval oracle. Dollars.
	SlippagePenalty float64
	// Machine configures each market's position state machine.
	Machine position.Config
}

// Deps are the engine's collaborators. Data, Tracker, Classifier, Guardrail,
// Approver, Submitter, Clock, and Filter are required; the stores, caches,
// bus, and notifier are optional and skipped when nil.
type Deps struct {
	Logger     *slog.Logger
	Data       domain.MarketDataClient
	Tracker    *micro.Tracker
	Classifier timing.Classifier
	Guardrail  *risk.Guardrail
	Approver   domain.Approver
	Submitter  domain.OrderSubmitter
	Clock      domain.Clock
	Filter     domain.MarketFilter

	Positions   domain.PositionStore
	Transitions domain.TransitionStore
	Fills       domain.FillStore
	Snapshots   domain.SnapshotCache
	LedgerCache domain.LedgerCache
	Bus         domain.SignalBus
	Notifier    notify.Notifier

	// Universe, when set, receives the eligible market set after every
	// discovery pass, so the websocket feed can keep its subscriptions in
	// step with the traded universe.
	Universe func([]domain.Market)
}

// Engine owns the tick loop and all mutable trading state. All mutation
// happens serially on the tick goroutine under mu; Status reads take the
// same lock.
type Engine struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu          sync.Mutex
	machines    map[string]*position.Machine
	signals     map[string]domain.MicroSignal
	ledger      *domain.RiskLedger
	transitions []domain.TransitionRecord
	tickCount   uint64
	lastTick    time.Time
}

// New creates an Engine. The ledger starts empty for the clock's current day;
// Run restores any persisted state before the first tick.
func New(cfg Config, deps Deps) *Engine {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = defaultFetchConcurrency
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Engine{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.With(slog.String("component", "engine")),
		machines: make(map[string]*position.Machine),
		signals:  make(map[string]domain.MicroSignal),
		ledger:   domain.NewRiskLedger(deps.Clock.Now()),
	}
}

// Run restores persisted ledger state and ticks until the context is
// cancelled. The first tick fires immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.restoreLedger(ctx)

	e.log.Info("engine started",
		slog.Duration("poll_interval", e.cfg.PollInterval),
		slog.String("ledger_day", e.ledger.Day.Format("2006-01-02")),
	)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one full scan-and-decide pass. Exported so backtests and the
// monitor mode can drive the engine without the ticker.
func (e *Engine) Tick(ctx context.Context) {
	now := e.deps.Clock.Now()

	markets, err := e.eligibleMarkets(ctx, now)
	if err != nil {
		e.log.Error("market discovery failed, skipping tick", slog.String("error", err.Error()))
		return
	}
	if e.deps.Universe != nil {
		e.deps.Universe(markets)
	}
	snaps, errs := e.fetchSnapshots(ctx, markets)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverIfNewDay(ctx, now)

	listed := make(map[string]bool, len(markets))
	for i, mkt := range markets {
		listed[mkt.ID] = true
		mach := e.ensureMachine(mkt)

		snap := snaps[i]
		cached := false
		if errs[i] != nil {
			// The websocket feed keeps the snapshot cache warm; a fresh
			// cached book covers a REST hiccup. With neither, one dark
			// market never blocks the rest of the scan and an open leg
			// here is re-evaluated on the next tick with data.
			var ok bool
			if snap, ok = e.cachedSnapshot(ctx, mkt.ID, now); !ok {
				e.log.Warn("snapshot unavailable, market skipped this tick",
					slog.String("market_id", mkt.ID),
					slog.String("error", errs[i].Error()),
				)
				continue
			}
			cached = true
		}

		if err := e.deps.Tracker.Observe(snap); err != nil && !errors.Is(err, domain.ErrStaleSnapshot) {
			e.log.Warn("observation dropped", slog.String("market_id", mkt.ID), slog.String("error", err.Error()))
		}
		if e.deps.Snapshots != nil && !cached {
			if err := e.deps.Snapshots.Set(ctx, snap); err != nil {
				e.log.Warn("snapshot cache write failed", slog.String("error", err.Error()))
			}
		}

		sig, sigErr := e.deps.Tracker.Signal(mkt.ID)
		sigOK := sigErr == nil
		if sigOK {
			e.signals[mkt.ID] = sig
		}

		mach.MarkUnrealized(snap)

		switch mach.State() {
		case domain.StateIdle:
			e.tryEnter(ctx, mach, mkt, snap, sig, sigOK, now)
		case domain.StateEntered:
			if !e.tryHedge(ctx, mach, mkt, snap, sig, now) {
				e.tryExit(ctx, mach, snap, sig, sigOK, now)
			}
		}
	}

	e.sweep(ctx, listed, now)

	e.tickCount++
	e.lastTick = now
}

// eligibleMarkets discovers the tradable universe: active markets passing the
// title filter that have not ended, in stable ascending ID order so every
// tick walks markets deterministically.
func (e *Engine) eligibleMarkets(ctx context.Context, now time.Time) ([]domain.Market, error) {
	all, err := e.deps.Data.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list markets: %w", err)
	}
	var out []domain.Market
	for _, m := range all {
		if m.Status != domain.MarketStatusActive {
			continue
		}
		if !m.EndsAt.IsZero() && !m.EndsAt.After(now) {
			continue
		}
		if e.deps.Filter != nil && !e.deps.Filter(m) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fetchSnapshots pulls every market's book concurrently. Results and errors
// are positional; a failed fetch poisons only its own slot.
func (e *Engine) fetchSnapshots(ctx context.Context, markets []domain.Market) ([]domain.BookSnapshot, []error) {
	snaps := make([]domain.BookSnapshot, len(markets))
	errs := make([]error, len(markets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FetchConcurrency)
	for i, mkt := range markets {
		i, mkt := i, mkt
		g.Go(func() error {
			snaps[i], errs[i] = e.deps.Data.GetSnapshot(gctx, mkt)
			return nil
		})
	}
	g.Wait()
	return snaps, errs
}

// cachedSnapshot reads a market's book from the snapshot cache, accepting it
// only while it is fresh enough to decide on.
func (e *Engine) cachedSnapshot(ctx context.Context, marketID string, now time.Time) (domain.BookSnapshot, bool) {
	if e.deps.Snapshots == nil {
		return domain.BookSnapshot{}, false
	}
	snap, err := e.deps.Snapshots.Get(ctx, marketID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.log.Warn("snapshot cache read failed", slog.String("market_id", marketID), slog.String("error", err.Error()))
		}
		return domain.BookSnapshot{}, false
	}
	if now.Sub(snap.Observed) > maxCachedSnapshotAge {
		return domain.BookSnapshot{}, false
	}
	return snap, true
}

func (e *Engine) ensureMachine(mkt domain.Market) *position.Machine {
	mach, ok := e.machines[mkt.ID]
	if !ok {
		mach = position.NewMachine(mkt, e.cfg.Machine)
		e.machines[mkt.ID] = mach
	}
	return mach
}

// rolloverIfNewDay resets the ledger and the guardrail latch at the UTC day
// boundary.
func (e *Engine) rolloverIfNewDay(ctx context.Context, now time.Time) {
	if !e.deps.Clock.IsNewTradingDay(e.ledger.Day) {
		return
	}
	e.log.Info("trading day rollover",
		slog.String("closed_day", e.ledger.Day.Format("2006-01-02")),
		slog.String("realized", e.ledger.Realized.String()),
	)
	e.ledger.Reset(now)
	// Positions still open at the boundary keep counting against the new
	// day's notional caps until they settle.
	for id, mach := range e.machines {
		pos, ok := mach.Position()
		if !ok || (pos.State != domain.StateEntered && pos.State != domain.StateHedged) {
			continue
		}
		var notional float64
		if pos.Entry != nil {
			notional += pos.Entry.Price * pos.Entry.Size
		}
		if pos.Hedge != nil {
			notional += pos.Hedge.Price * pos.Hedge.Size
		}
		if notional > 0 {
			e.ledger.Commit(id, notional)
		}
	}
	e.deps.Guardrail.ResetDay()
	e.saveLedger(ctx)
}

// tryEnter runs the full entry gate chain: hard stop, signal availability,
// timing classifier, state machine proposal, guardrail, approval oracle, and
// finally dispatch.
func (e *Engine) tryEnter(ctx context.Context, mach *position.Machine, mkt domain.Market, snap domain.BookSnapshot, sig domain.MicroSignal, sigOK bool, now time.Time) {
	if e.deps.Guardrail.HardStopped() {
		return
	}
	if !sigOK || !e.deps.Classifier.MayEnter(sig, now) {
		return
	}
	intent, ok := mach.ProposeEntry(snap, now)
	if !ok {
		return
	}
	if !e.authorize(ctx, intent) {
		return
	}
	actx := domain.ApprovalContext{
		Market:     mkt,
		Intent:     intent,
		Signal:     sig,
		Mispricing: e.mispricing(snap.Quotes[0].BestAsk + snap.Quotes[1].BestAsk),
	}
	if !e.approved(ctx, domain.IntentEntry, actx) {
		return
	}
	fill, ok := e.dispatch(ctx, intent)
	if !ok {
		return
	}
	rec := mach.OnEntryFill(fill)
	e.ledger.Commit(mkt.ID, fill.Price*fill.Size)
	e.afterFill(ctx, fill, rec)
}

// tryHedge attempts to pair the entry leg. It returns true when a hedge was
// proposed this tick regardless of the dispatch outcome, so the exit check
// never races a live hedge opportunity.
func (e *Engine) tryHedge(ctx context.Context, mach *position.Machine, mkt domain.Market, snap domain.BookSnapshot, sig domain.MicroSignal, now time.Time) bool {
	intent, ok := mach.ProposeHedge(snap, sig, now)
	if !ok {
		return false
	}
	if !e.authorize(ctx, intent) {
		return true
	}
	entry, _ := mach.Position()
	projected := intent.Price()
	if entry.Entry != nil {
		projected += entry.Entry.Price
	}
	actx := domain.ApprovalContext{
		Market:     mkt,
		Intent:     intent,
		Signal:     sig,
		Mispricing: e.mispricing(projected),
	}
	if !e.approved(ctx, domain.IntentHedge, actx) {
		return true
	}
	fill, ok := e.dispatch(ctx, intent)
	if !ok {
		return true
	}
	rec := mach.OnHedgeFill(fill)
	e.ledger.Commit(mkt.ID, fill.Price*fill.Size)
	e.afterFill(ctx, fill, rec)
	return true
}

// tryExit flattens a stuck entry leg. Flattens are risk-reducing, so they
// bypass both the guardrail and the approval oracle; a latched hard stop must
// never trap an open leg.
func (e *Engine) tryExit(ctx context.Context, mach *position.Machine, snap domain.BookSnapshot, sig domain.MicroSignal, sigOK bool, now time.Time) {
	intent, reason, ok := mach.ProposeExit(snap, sig, sigOK, now)
	if !ok {
		return
	}
	e.log.Info("flattening unhedged leg",
		slog.String("market_id", intent.MarketID),
		slog.String("reason", reason),
	)
	fill, ok := e.dispatch(ctx, intent)
	if !ok {
		return
	}
	rec := mach.OnExitFill(fill, reason)
	e.afterFill(ctx, fill, rec)
}

// authorize consults the guardrail and records a denial if it refuses.
func (e *Engine) authorize(ctx context.Context, intent domain.OrderIntent) bool {
	decision := e.deps.Guardrail.Authorize(intent, e.ledger)
	if decision.Allowed {
		return true
	}
	e.log.Info("intent denied by guardrail",
		slog.String("market_id", intent.MarketID),
		slog.String("kind", string(intent.Kind)),
		slog.String("reason", string(decision.Reason)),
	)
	e.publish(ctx, channelDenials, map[string]any{
		"market_id": intent.MarketID,
		"kind":      intent.Kind,
		"reason":    decision.Reason,
	})
	e.saveLedger(ctx)
	return false
}

// approved consults the approval oracle, failing closed on timeout or error.
func (e *Engine) approved(ctx context.Context, kind domain.IntentKind, actx domain.ApprovalContext) bool {
	verdict, err := e.deps.Approver.Approve(ctx, kind, actx)
	if err != nil {
		e.log.Warn("approval oracle error, treating as not approved",
			slog.String("market_id", actx.Intent.MarketID),
			slog.String("error", err.Error()),
		)
		return false
	}
	if verdict != domain.VerdictApproved {
		e.log.Info("intent not approved",
			slog.String("market_id", actx.Intent.MarketID),
			slog.String("kind", string(kind)),
			slog.String("verdict", string(verdict)),
		)
		return false
	}
	return true
}

// dispatch submits the intent and reports whether it produced a usable fill.
func (e *Engine) dispatch(ctx context.Context, intent domain.OrderIntent) (domain.Fill, bool) {
	fill, err := e.deps.Submitter.Submit(ctx, intent)
	if err != nil {
		e.log.Error("order submission failed",
			slog.String("market_id", intent.MarketID),
			slog.String("kind", string(intent.Kind)),
			slog.String("error", err.Error()),
		)
		return domain.Fill{}, false
	}
	if fill.Status == domain.FillStatusRejected {
		e.log.Warn("order rejected",
			slog.String("market_id", intent.MarketID),
			slog.String("kind", string(intent.Kind)),
			slog.String("reason", fill.Reason),
		)
		return domain.Fill{}, false
	}
	if fill.Size <= 0 {
		return domain.Fill{}, false
	}
	return fill, true
}

// afterFill records a confirmed fill and its transition: ring buffer, stores,
// bus, and notifier, all best effort.
func (e *Engine) afterFill(ctx context.Context, fill domain.Fill, rec domain.TransitionRecord) {
	e.appendTransition(rec)

	e.log.Info("position transition",
		slog.String("market_id", rec.MarketID),
		slog.String("from", string(rec.From)),
		slog.String("to", string(rec.To)),
		slog.String("reason", rec.Reason),
		slog.Float64("price", fill.Price),
		slog.Float64("size", fill.Size),
	)

	if e.deps.Fills != nil {
		if err := e.deps.Fills.Create(ctx, fill); err != nil {
			e.log.Warn("fill persist failed", slog.String("error", err.Error()))
		}
	}
	if e.deps.Transitions != nil {
		if err := e.deps.Transitions.Append(ctx, rec); err != nil {
			e.log.Warn("transition persist failed", slog.String("error", err.Error()))
		}
	}
	e.publish(ctx, channelTransitions, rec)
	e.stream(ctx, streamTransitions, rec)
	e.saveLedger(ctx)

	subject := fmt.Sprintf("%s -> %s (%s)", rec.From, rec.To, rec.MarketID)
	body := fmt.Sprintf("%s %s %.4f x %.2f: %s", fill.Side, fill.Outcome, fill.Price, fill.Size, rec.Reason)
	if err := e.deps.Notifier.Notify(ctx, subject, body); err != nil {
		e.log.Warn("notification failed", slog.String("error", err.Error()))
	}
}

// sweep archives terminal positions and drops machines for markets that have
// rolled off. A hedged pair stays on the books until its market ends or
// disappears from the eligible universe, then settles at $1 per paired share.
func (e *Engine) sweep(ctx context.Context, listed map[string]bool, now time.Time) {
	ids := make([]string, 0, len(e.machines))
	for id := range e.machines {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		mach := e.machines[id]
		switch mach.State() {
		case domain.StateExitedFlat:
			e.archive(ctx, mach, now)
		case domain.StateHedged:
			mkt := mach.Market()
			ended := !mkt.EndsAt.IsZero() && !mkt.EndsAt.After(now)
			if ended || !listed[id] {
				e.archive(ctx, mach, now)
			}
		case domain.StateIdle:
			if !listed[id] {
				delete(e.machines, id)
				delete(e.signals, id)
			}
		}
	}
}

// archive realizes a terminal position into the ledger and persists it.
func (e *Engine) archive(ctx context.Context, mach *position.Machine, now time.Time) {
	pos, ok := mach.ArchiveReset(now)
	if !ok {
		return
	}
	e.ledger.Release(pos.MarketID)
	e.ledger.AddRealized(pos.RealizedPnL)
	e.saveLedger(ctx)

	e.log.Info("position archived",
		slog.String("market_id", pos.MarketID),
		slog.String("state", string(pos.State)),
		slog.Float64("realized", pos.RealizedPnL),
		slog.String("day_realized", e.ledger.Realized.String()),
	)

	if e.deps.Positions != nil {
		if err := e.deps.Positions.Create(ctx, pos); err != nil {
			e.log.Warn("position persist failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) appendTransition(rec domain.TransitionRecord) {
	e.transitions = append(e.transitions, rec)
	if len(e.transitions) > transitionRingCap {
		e.transitions = e.transitions[len(e.transitions)-transitionRingCap:]
	}
}

// mispricing converts a combined cost into the oracle's edge estimate.
func (e *Engine) mispricing(combined float64) float64 {
	m := 1 - combined - e.cfg.SlippagePenalty
	if m < 0 {
		return 0
	}
	return m
}

func (e *Engine) publish(ctx context.Context, channel string, payload any) {
	if e.deps.Bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.deps.Bus.Publish(ctx, channel, data); err != nil {
		e.log.Warn("bus publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

func (e *Engine) stream(ctx context.Context, stream string, payload any) {
	if e.deps.Bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.deps.Bus.StreamAppend(ctx, stream, data); err != nil {
		e.log.Warn("bus stream append failed", slog.String("stream", stream), slog.String("error", err.Error()))
	}
}

// restoreLedger loads persisted realized P&L and the hard-stop latch for the
// current day so a restart cannot un-breach the daily cap.
func (e *Engine) restoreLedger(ctx context.Context) {
	if e.deps.LedgerCache == nil {
		return
	}
	realized, hardStop, err := e.deps.LedgerCache.LoadDay(ctx, e.ledger.Day)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.log.Warn("ledger restore failed, starting fresh", slog.String("error", err.Error()))
		}
		return
	}
	e.ledger.AddRealized(realized)
	e.deps.Guardrail.SetHardStop(hardStop)
	e.log.Info("ledger restored",
		slog.Float64("realized", realized),
		slog.Bool("hard_stop", hardStop),
	)
}

func (e *Engine) saveLedger(ctx context.Context) {
	if e.deps.LedgerCache == nil {
		return
	}
	realized, _ := e.ledger.Realized.Float64()
	if err := e.deps.LedgerCache.SaveDay(ctx, e.ledger.Day, realized, e.deps.Guardrail.HardStopped()); err != nil {
		e.log.Warn("ledger persist failed", slog.String("error", err.Error()))
	}
}
