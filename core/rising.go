package core

import (
	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISING CONFIRMATION - Debounces single-tick spikes
// ═══════════════════════════════════════════════════════════════════════════════
//
// A real opportunity must be re-observed risingCount times, each observation
// spaced at least one check period apart, before an order is attempted.
//
// ═══════════════════════════════════════════════════════════════════════════════

// RisingState tracks confirmation progress for one market.
type RisingState struct {
	Count     int             `json:"count"`
	LastTime  int64           `json:"lastTime"`
	LastValue decimal.Decimal `json:"lastValue"`
}

// RisingTracker holds per-market confirmation state.
type RisingTracker struct {
	settings *Settings
	states   map[string]*RisingState
}

// NewRisingTracker creates an empty tracker.
func NewRisingTracker(settings *Settings) *RisingTracker {
	return &RisingTracker{
		settings: settings,
		states:   make(map[string]*RisingState),
	}
}

// Observe records a detected explosion for the market and reports whether the
// move is now confirmed. The count only advances on the first observation ever
// seen for the market, or when the gap since the last recorded observation
// exceeds the check period; anything sooner is noise inside the same window.
// Replaying the exact same tick never advances the count.
func (r *RisingTracker) Observe(market string, tick types.RateTick) bool {
	st := r.states[market]
	if st == nil {
		st = &RisingState{}
		r.states[market] = st
	}

	threshold := r.settings.RisingCountThreshold()
	if st.Count < threshold {
		gap := tick.Time - st.LastTime
		if st.LastTime == 0 || gap > int64(r.settings.CheckRatePeriod().Seconds()) {
			st.Count++
			st.LastTime = tick.Time
			st.LastValue = tick.Value
		}
	}

	return st.Count >= threshold
}

// Confirmed reports whether the market already accumulated enough
// confirmations. Used to retry a rejected open on later ticks without
// re-accumulating the count.
func (r *RisingTracker) Confirmed(market string) bool {
	st := r.states[market]
	return st != nil && st.Count >= r.settings.RisingCountThreshold()
}

// Reset clears the market back to idle. Called when the confirmation is
// consumed by a successful open.
func (r *RisingTracker) Reset(market string) {
	delete(r.states, market)
}

// Rebase seeds a fresh baseline at the given rate, typically the losing close
// rate, so the next confirmation run measures from there.
func (r *RisingTracker) Rebase(market string, rate types.RateTick) {
	r.states[market] = &RisingState{
		Count:     0,
		LastTime:  rate.Time,
		LastValue: rate.Value,
	}
}

// States returns a copy of all per-market confirmation states.
func (r *RisingTracker) States() map[string]RisingState {
	out := make(map[string]RisingState, len(r.states))
	for market, st := range r.states {
		out[market] = *st
	}
	return out
}
