package timing

import (
	"testing"
	"time"

	"github.com/quarterhedge/updownbot/internal/domain"
)

func TestMayEnter(t *testing.T) {
	c := NewClassifier(Config{
		VolCeiling:      0.18,
		DepthAccelFloor: 0.05,
		SpreadDriftBand: 0.02,
	})
	now := time.Date(2026, 8, 30, 3, 12, 0, 0, time.UTC)

	tests := []struct {
		name string
		sig  domain.MicroSignal
		want bool
	}{
		{
			name: "calm market passes",
			sig:  domain.MicroSignal{RealizedVol: 0.05, DepthAccel: 0.10, SpreadDrift: 0.001},
			want: true,
		},
		{
			name: "volatility at the ceiling blocks",
			sig:  domain.MicroSignal{RealizedVol: 0.18, DepthAccel: 0.10, SpreadDrift: 0.001},
			want: false,
		},
		{
			name: "volatility above the ceiling blocks",
			sig:  domain.MicroSignal{RealizedVol: 0.30, DepthAccel: 0.10, SpreadDrift: 0.001},
			want: false,
		},
		{
			name: "depth acceleration at the floor passes",
			sig:  domain.MicroSignal{RealizedVol: 0.05, DepthAccel: 0.05, SpreadDrift: 0.001},
			want: true,
		},
		{
			name: "thinning book blocks",
			sig:  domain.MicroSignal{RealizedVol: 0.05, DepthAccel: -0.01, SpreadDrift: 0.001},
			want: false,
		},
		{
			name: "widening spread blocks",
			sig:  domain.MicroSignal{RealizedVol: 0.05, DepthAccel: 0.10, SpreadDrift: 0.03},
			want: false,
		},
		{
			name: "tightening spread beyond the band blocks too",
			sig:  domain.MicroSignal{RealizedVol: 0.05, DepthAccel: 0.10, SpreadDrift: -0.03},
			want: false,
		},
		{
			name: "spread drift at the band edge passes",
			sig:  domain.MicroSignal{RealizedVol: 0.05, DepthAccel: 0.10, SpreadDrift: 0.02},
			want: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.MayEnter(tc.sig, now); got != tc.want {
				t.Fatalf("MayEnter = %v, want %v", got, tc.want)
			}
			// Pure: the same inputs always classify the same way.
			if again := c.MayEnter(tc.sig, now); again != tc.want {
				t.Fatalf("MayEnter not stable: %v then %v", tc.want, again)
			}
		})
	}
}

func TestMayEnterIgnoresTimeOfDay(t *testing.T) {
	c := NewClassifier(Config{VolCeiling: 0.18, DepthAccelFloor: 0.05, SpreadDriftBand: 0.02})
	sig := domain.MicroSignal{RealizedVol: 0.05, DepthAccel: 0.10}

	for hour := 0; hour < 24; hour++ {
		at := time.Date(2026, 8, 30, hour, 0, 0, 0, time.UTC)
		if !c.MayEnter(sig, at) {
			t.Fatalf("calm signal rejected at hour %d", hour)
		}
	}
}
