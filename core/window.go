package core

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RATE WINDOW AGGREGATOR - Trailing per-market tick windows
// ═══════════════════════════════════════════════════════════════════════════════

// WindowSnapshot summarizes the trailing check-period sub-window of a market.
type WindowSnapshot struct {
	First types.RateTick
	Last  types.RateTick
	Max   types.RateTick // earliest occurrence on ties
	Min   types.RateTick // earliest occurrence on ties
	Mean  decimal.Decimal
}

// Growth is the relative rise over the window, max/min - 1.
func (s WindowSnapshot) Growth() decimal.Decimal {
	if s.Min.Value.IsZero() {
		return decimal.Zero
	}
	return s.Max.Value.Div(s.Min.Value).Sub(decimal.New(1, 0))
}

// Aggregator keeps a time-bounded ordered tick sequence per market and
// recomputes window statistics on every ingest.
type Aggregator struct {
	settings *Settings
	windows  map[string][]types.RateTick
}

// NewAggregator creates an empty aggregator.
func NewAggregator(settings *Settings) *Aggregator {
	return &Aggregator{
		settings: settings,
		windows:  make(map[string][]types.RateTick),
	}
}

// Ingest appends a tick to the market window, prunes entries that fell out of
// the retention period and returns the trailing check-period snapshot. The
// second return is false while the sub-window holds fewer than two ticks or
// spans no time. Out-of-order and duplicate timestamps are tolerated.
func (a *Aggregator) Ingest(tick types.RateTick) (WindowSnapshot, bool) {
	window := a.windows[tick.Market]

	// Insert keeping the window sorted by time. Ticks sharing a timestamp
	// keep arrival order so "earliest occurrence" stays well defined.
	i := sort.Search(len(window), func(i int) bool { return window[i].Time > tick.Time })
	window = append(window, types.RateTick{})
	copy(window[i+1:], window[i:])
	window[i] = tick

	// The newest timestamp in the window is "now" for pruning purposes, so a
	// late straggler cannot move time backwards.
	now := window[len(window)-1].Time

	retention := int64(a.settings.Retention().Seconds())
	cut := 0
	for cut < len(window) && now-window[cut].Time > retention {
		cut++
	}
	window = window[cut:]
	a.windows[tick.Market] = window

	period := int64(a.settings.CheckRatePeriod().Seconds())
	start := 0
	for start < len(window) && now-window[start].Time > period {
		start++
	}
	sub := window[start:]

	if len(sub) < 2 || sub[len(sub)-1].Time <= sub[0].Time {
		return WindowSnapshot{}, false
	}

	snap := WindowSnapshot{
		First: sub[0],
		Last:  sub[len(sub)-1],
		Max:   sub[0],
		Min:   sub[0],
	}
	sum := decimal.Zero
	for _, t := range sub {
		sum = sum.Add(t.Value)
		if t.Value.GreaterThan(snap.Max.Value) {
			snap.Max = t
		}
		if t.Value.LessThan(snap.Min.Value) {
			snap.Min = t
		}
	}
	snap.Mean = sum.Div(decimal.NewFromInt(int64(len(sub))))

	return snap, true
}

// Len reports how many ticks are retained for a market.
func (a *Aggregator) Len(market string) int {
	return len(a.windows[market])
}

// Drop forgets all retained ticks for a market.
func (a *Aggregator) Drop(market string) {
	delete(a.windows, market)
}
