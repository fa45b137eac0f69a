package domain

import "time"

// MicroSignal is the per-market microstructure reading derived from the
// rolling snapshot window. It is recomputed every tick and never persisted;
// the engine publishes the latest value through the status surface only.
type MicroSignal struct {
	MarketID string

	// RealizedVol is the standard deviation of log mid-price returns over
	// the trailing one-minute sub-window. Unitless.
	RealizedVol float64

	// DepthAccel is the change in total top-of-book displayed size over the
	// trailing 30-second sub-window, per second. Negative when depth is
	// thinning. Unit: shares/sec.
	DepthAccel float64

	// SpreadDrift is the change in the best-ask minus best-bid spread over
	// the trailing 30-second sub-window. Unit: dollars.
	SpreadDrift float64

	At time.Time
}
