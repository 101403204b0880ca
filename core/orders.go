package core

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXIT LADDER - Ordered take-profit / stop-loss rules
// ═══════════════════════════════════════════════════════════════════════════════

// Close reasons, also used as notification and history labels.
const (
	ReasonTakeProfit      = "TAKE_PROFIT"
	ReasonTakeProfitTimed = "TAKE_PROFIT_TIMED"
	ReasonTakeProfitLate  = "TAKE_PROFIT_LATE"
	ReasonStopLoss        = "STOP_LOSS"
)

// Open rejection reasons.
const (
	RejectPaused      = "paused"
	RejectOpenOrder   = "order already open"
	RejectPendingOpen = "open in flight"
	RejectDenylisted  = "denylisted"
	RejectBanned      = "banned"
	RejectBalance     = "existing balance"
)

// Change computes the relative growth of a tick over the open rate.
func Change(order *types.Order, tick types.RateTick) decimal.Decimal {
	return tick.Value.Div(order.OpenRate.Value).Sub(decimal.New(1, 0))
}

// orderAge is measured against the open tick's timestamp, not wall clock, so
// replayed streams close at the same points a live run would.
func orderAge(order *types.Order, tick types.RateTick) time.Duration {
	return time.Duration(tick.Time-order.OpenRate.Time) * time.Second
}

// CheckExit walks the exit ladder for an open order against the current tick
// and returns the close reason of the first rule that fires. Rules are
// evaluated in a fixed order each tick; at most one fires. order.Change must
// already be recomputed for this tick.
func CheckExit(settings *Settings, order *types.Order, tick types.RateTick) (string, bool) {
	change := order.Change
	age := orderAge(order, tick)

	// 1. Immediate take-profit, no time gate.
	if change.GreaterThanOrEqual(settings.SellGrowth1()) {
		return ReasonTakeProfit, true
	}

	// 2. Smaller profit once the position aged past the first gate.
	if g2, after2 := settings.SellGrowth2(); change.GreaterThanOrEqual(g2) && age > after2 {
		return ReasonTakeProfitTimed, true
	}

	// 3. Marginal profit after a long hold.
	if g3, after3 := settings.SellGrowth3(); change.GreaterThanOrEqual(g3) && age > after3 {
		return ReasonTakeProfitLate, true
	}

	// 4. Stop-loss, no time gate.
	if change.LessThanOrEqual(settings.SellFall()) {
		return ReasonStopLoss, true
	}

	return "", false
}
