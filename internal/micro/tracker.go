// Package micro maintains per-market rolling windows of book snapshots and
// derives the microstructure signal (realized volatility, depth acceleration,
// spread drift) the timing classifier gates on.
package micro

import (
	"math"
	"sync"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// Default window geometry. Horizon is the eviction age for the rolling
// window; the two sub-windows are the lookbacks for volatility and for the
// depth/spread deltas. The horizon must exceed the volatility sub-window by
// a comfortable multiple: a window trimmed at the sub-window edge can only
// span it when the poll cadence divides it evenly.
const (
	DefaultHorizon     = 5 * time.Minute
	DefaultVolWindow   = time.Minute
	DefaultDeltaWindow = 30 * time.Second
)

type observation struct {
	at     time.Time
	mid    float64
	depth  float64
	spread float64
}

// Tracker owns one rolling window per market. Windows hold strictly
// time-ordered observations and evict by age on every Observe call; a window
// is never empty once its market has been observed.
type Tracker struct {
	horizon     time.Duration
	volWindow   time.Duration
	deltaWindow time.Duration

	mu      sync.RWMutex
	windows map[string][]observation
}

// NewTracker creates a Tracker with the default window geometry.
func NewTracker() *Tracker {
	return &Tracker{
		horizon:     DefaultHorizon,
		volWindow:   DefaultVolWindow,
		deltaWindow: DefaultDeltaWindow,
		windows:     make(map[string][]observation),
	}
}

// Observe appends a snapshot to the market's window and evicts entries older
// than the horizon. Snapshots not strictly newer than the window head are
// dropped with ErrStaleSnapshot so timestamps stay strictly increasing.
func (t *Tracker) Observe(snap domain.BookSnapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	win := t.windows[snap.MarketID]
	if n := len(win); n > 0 && !snap.Observed.After(win[n-1].at) {
		return domain.ErrStaleSnapshot
	}

	win = append(win, observation{
		at:     snap.Observed,
		mid:    snap.Mid(),
		depth:  snap.TopDepth(),
		spread: snap.Spread(),
	})

	cutoff := snap.Observed.Add(-t.horizon)
	i := 0
	for i < len(win) && win[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		win = append([]observation(nil), win[i:]...)
	}
	t.windows[snap.MarketID] = win
	return nil
}

// Signal derives the current microstructure signal for a market. It returns
// ErrNotEnoughData until the window holds at least two snapshots spanning the
// full volatility sub-window — callers must treat that as "no signal yet",
// not as zero volatility.
func (t *Tracker) Signal(marketID string) (domain.MicroSignal, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	win := t.windows[marketID]
	if len(win) < 2 {
		return domain.MicroSignal{}, domain.ErrNotEnoughData
	}
	newest := win[len(win)-1]
	if newest.at.Sub(win[0].at) < t.volWindow {
		return domain.MicroSignal{}, domain.ErrNotEnoughData
	}

	return domain.MicroSignal{
		MarketID:    marketID,
		RealizedVol: realizedVol(win, newest.at.Add(-t.volWindow)),
		DepthAccel:  depthAccel(win, newest, newest.at.Add(-t.deltaWindow)),
		SpreadDrift: spreadDrift(win, newest, newest.at.Add(-t.deltaWindow)),
		At:          newest.at,
	}, nil
}

// WindowLen returns the number of observations currently held for a market.
func (t *Tracker) WindowLen(marketID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.windows[marketID])
}

// realizedVol computes the population standard deviation of log mid-price
// returns over observations at or after cutoff.
func realizedVol(win []observation, cutoff time.Time) float64 {
	var rets []float64
	var prev float64
	for _, o := range win {
		if o.at.Before(cutoff) {
			continue
		}
		if prev > 0 && o.mid > 0 {
			rets = append(rets, math.Log(o.mid/prev))
		}
		prev = o.mid
	}
	if len(rets) < 2 {
		if len(rets) == 1 {
			return math.Abs(rets[0])
		}
		return 0
	}

	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))

	var variance float64
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rets))
	return math.Sqrt(variance)
}

// depthAccel returns the change in total top-of-book size per second between
// the reference observation (newest at or before cutoff, falling back to the
// window head) and the newest observation. Negative when depth is thinning.
func depthAccel(win []observation, newest observation, cutoff time.Time) float64 {
	ref := referenceAt(win, cutoff)
	dt := newest.at.Sub(ref.at).Seconds()
	if dt <= 0 {
		return 0
	}
	return (newest.depth - ref.depth) / dt
}

// spreadDrift returns the absolute change in the best-ask minus best-bid
// spread between the reference observation and the newest one, in dollars.
func spreadDrift(win []observation, newest observation, cutoff time.Time) float64 {
	ref := referenceAt(win, cutoff)
	return newest.spread - ref.spread
}

// referenceAt picks the newest observation at or before cutoff; if every
// observation is newer it returns the window head.
func referenceAt(win []observation, cutoff time.Time) observation {
	ref := win[0]
	for _, o := range win {
		if o.at.After(cutoff) {
			break
		}
		ref = o
	}
	return ref
}
