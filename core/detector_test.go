package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detectorSettings() *Settings {
	s := DefaultSettings()
	s.SetCheckRatePeriod(30 * time.Second)
	s.SetExplosionThreshold(decimal.NewFromFloat(0.08))
	return s
}

// ingestAll pushes a tick series through a fresh aggregator and returns the
// final snapshot.
func ingestAll(t *testing.T, settings *Settings, ticks [][2]float64) WindowSnapshot {
	t.Helper()
	agg := NewAggregator(settings)

	var snap WindowSnapshot
	var ok bool
	for _, tk := range ticks {
		snap, ok = agg.Ingest(tick("BTC-ABC", tk[0], int64(tk[1])))
	}
	require.True(t, ok, "expected a valid snapshot")
	return snap
}

func TestDetectorFiresOnSustainedRise(t *testing.T) {
	settings := detectorSettings()
	detector := NewDetector(settings)

	// 12% growth over 20s with a front-loaded shape.
	snap := ingestAll(t, settings, [][2]float64{
		{1.00, 1000}, {1.09, 1010}, {1.12, 1020},
	})

	assert.True(t, snap.Growth().GreaterThan(decimal.NewFromFloat(0.08)))
	assert.True(t, detector.Detect(snap))
}

func TestDetectorRejectsBelowThreshold(t *testing.T) {
	settings := detectorSettings()
	detector := NewDetector(settings)

	snap := ingestAll(t, settings, [][2]float64{
		{1.00, 1000}, {1.04, 1010}, {1.05, 1020},
	})
	assert.False(t, detector.Detect(snap), "5% growth is under the 8% threshold")
}

func TestDetectorRejectsReversedMove(t *testing.T) {
	settings := detectorSettings()
	detector := NewDetector(settings)

	// High happened before the low: the move is already retracing.
	snap := ingestAll(t, settings, [][2]float64{
		{1.12, 1000}, {1.00, 1010}, {1.02, 1020},
	})
	assert.False(t, detector.Detect(snap))
}

func TestDetectorRejectsNetNegativeWindow(t *testing.T) {
	settings := detectorSettings()
	detector := NewDetector(settings)

	snap := ingestAll(t, settings, [][2]float64{
		{1.05, 1000}, {1.00, 1010}, {1.14, 1020}, {1.04, 1030},
	})
	assert.False(t, detector.Detect(snap), "last below first means no net rise")
}

func TestDetectorRejectsSingleSpike(t *testing.T) {
	settings := detectorSettings()
	detector := NewDetector(settings)

	// One outlier tick drags the mean below the range midpoint.
	snap := ingestAll(t, settings, [][2]float64{
		{1.00, 1000}, {1.01, 1010}, {1.00, 1020}, {1.01, 1030}, {1.20, 1040},
	})
	assert.True(t, snap.Growth().GreaterThan(decimal.NewFromFloat(0.08)))
	assert.False(t, detector.Detect(snap), "spike-shaped window must not fire")
}

func TestDetectorThresholdIsLive(t *testing.T) {
	settings := detectorSettings()
	detector := NewDetector(settings)

	snap := ingestAll(t, settings, [][2]float64{
		{1.00, 1000}, {1.09, 1010}, {1.12, 1020},
	})
	assert.True(t, detector.Detect(snap))

	// Raising the threshold takes effect on the next evaluation.
	settings.SetExplosionThreshold(decimal.NewFromFloat(0.5))
	assert.False(t, detector.Detect(snap))
}
