package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func risingSettings(count int) *Settings {
	s := DefaultSettings()
	s.SetCheckRatePeriod(30 * time.Second)
	s.SetRisingCountThreshold(count)
	return s
}

func TestRisingFirstObservationAdvances(t *testing.T) {
	tracker := NewRisingTracker(risingSettings(2))

	confirmed := tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.10, 1000))
	assert.False(t, confirmed)

	states := tracker.States()
	assert.Equal(t, 1, states["BTC-ABC"].Count)
	assert.Equal(t, int64(1000), states["BTC-ABC"].LastTime)
}

func TestRisingSpacedObservationsConfirm(t *testing.T) {
	tracker := NewRisingTracker(risingSettings(2))

	assert.False(t, tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.10, 1000)))
	// 40s later, past the 30s check period.
	assert.True(t, tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.20, 1040)))
	assert.True(t, tracker.Confirmed("BTC-ABC"))
}

func TestRisingTooSoonDoesNotAdvance(t *testing.T) {
	tracker := NewRisingTracker(risingSettings(3))

	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.10, 1000))
	// 10s later, inside the same check period: noise, not a confirmation.
	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.15, 1010))

	assert.Equal(t, 1, tracker.States()["BTC-ABC"].Count)
}

func TestRisingDuplicateTickIsIdempotent(t *testing.T) {
	tracker := NewRisingTracker(risingSettings(3))

	same := tick("BTC-ABC", 1.10, 1000)
	tracker.Observe("BTC-ABC", same)
	tracker.Observe("BTC-ABC", same)

	assert.Equal(t, 1, tracker.States()["BTC-ABC"].Count)
}

func TestRisingCountCapsAtThreshold(t *testing.T) {
	tracker := NewRisingTracker(risingSettings(2))

	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.10, 1000))
	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.20, 1040))
	// Confirmed but not consumed: further spaced observations keep the count
	// at the threshold so a retried open never re-accumulates.
	assert.True(t, tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.30, 1080)))
	assert.Equal(t, 2, tracker.States()["BTC-ABC"].Count)
}

func TestRisingResetConsumesConfirmation(t *testing.T) {
	tracker := NewRisingTracker(risingSettings(2))

	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.10, 1000))
	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.20, 1040))
	tracker.Reset("BTC-ABC")

	assert.False(t, tracker.Confirmed("BTC-ABC"))
	// The next observation counts as a fresh first one.
	assert.False(t, tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.25, 1045)))
	assert.Equal(t, 1, tracker.States()["BTC-ABC"].Count)
}

func TestRisingRebaseSeedsLosingRate(t *testing.T) {
	tracker := NewRisingTracker(risingSettings(2))
	losing := tick("BTC-ABC", 0.90, 2000)

	tracker.Rebase("BTC-ABC", losing)
	st := tracker.States()["BTC-ABC"]
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, int64(2000), st.LastTime)
	assert.True(t, st.LastValue.Equal(decimal.NewFromFloat(0.90)))

	// An observation inside the check period of the rebased time is ignored.
	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.00, 2010))
	assert.Equal(t, 0, tracker.States()["BTC-ABC"].Count)

	// One past the period counts.
	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.00, 2040))
	assert.Equal(t, 1, tracker.States()["BTC-ABC"].Count)
}

func TestRisingMarketsAreIndependent(t *testing.T) {
	tracker := NewRisingTracker(risingSettings(2))

	tracker.Observe("BTC-ABC", tick("BTC-ABC", 1.10, 1000))
	tracker.Observe("BTC-XYZ", tick("BTC-XYZ", 2.10, 1000))

	assert.Equal(t, 1, tracker.States()["BTC-ABC"].Count)
	assert.Equal(t, 1, tracker.States()["BTC-XYZ"].Count)
}
