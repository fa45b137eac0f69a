// Package timing holds the entry-timing classifier: a pure predicate over the
// microstructure signal deciding whether new entries are currently permitted.
package timing

import (
	"math"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

// Config holds the classifier thresholds.
type Config struct {
	// VolCeiling is the maximum tolerated 1-minute realized volatility.
	VolCeiling float64
	// DepthAccelFloor is the minimum tolerated depth acceleration in
	// shares/sec; thinning books (negative acceleration) never pass.
	DepthAccelFloor float64
	// SpreadDriftBand is the maximum tolerated absolute spread drift in
	// dollars.
	SpreadDriftBand float64
}

// Classifier gates entries on microstructure conditions. It deliberately does
// not restrict by time of day: these markets roll every 15 minutes around the
// clock, and the gate is re-evaluated every tick anyway, so a market that
// turns volatile loses eligibility on the next scan.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a Classifier with the given thresholds.
func NewClassifier(cfg Config) Classifier {
	return Classifier{cfg: cfg}
}

// MayEnter reports whether entries are permitted given the signal at the
// given time. It is a pure function of its arguments — identical inputs
// always yield identical output — so recorded signals replay exactly in
// backtests.
func (c Classifier) MayEnter(sig domain.MicroSignal, now time.Time) bool {
	if sig.RealizedVol >= c.cfg.VolCeiling {
		return false
	}
	if sig.DepthAccel < c.cfg.DepthAccelFloor {
		return false
	}
	if math.Abs(sig.SpreadDrift) > c.cfg.SpreadDriftBand {
		return false
	}
	return true
}
