package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Setting names accepted by Settings.Set. The control surface may only touch
// fields on this whitelist.
const (
	SettingCheckRatePeriodSeconds = "check_rate_period_seconds"
	SettingExplosionThreshold     = "explosion_threshold"
	SettingRisingCountThreshold   = "rising_count_threshold"
	SettingSellGrowth1            = "sell_growth_threshold_1"
	SettingSellGrowth2            = "sell_growth_threshold_2"
	SettingSellGrowth2Minutes     = "sell_growth_threshold_2_minutes"
	SettingSellGrowth3            = "sell_growth_threshold_3"
	SettingSellGrowth3Minutes     = "sell_growth_threshold_3_minutes"
	SettingSellFall               = "sell_fall_threshold"
	SettingOrderBudget            = "order_budget"
)

// Settings holds the live-tunable engine knobs. A change takes effect on the
// next tick evaluation, never retroactively.
type Settings struct {
	mu sync.RWMutex

	checkRatePeriod time.Duration
	retentionFactor int64 // retention = factor * check period

	explosionThreshold decimal.Decimal
	risingCount        int

	sellGrowth1       decimal.Decimal
	sellGrowth2       decimal.Decimal
	sellGrowth2After  time.Duration
	sellGrowth3       decimal.Decimal
	sellGrowth3After  time.Duration
	sellFall          decimal.Decimal

	orderBudget decimal.Decimal // quote notional per open, e.g. 0.005 BTC
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() *Settings {
	return &Settings{
		checkRatePeriod:    3 * time.Minute,
		retentionFactor:    3,
		explosionThreshold: decimal.NewFromFloat(0.03),
		risingCount:        3,
		sellGrowth1:        decimal.NewFromFloat(0.05),
		sellGrowth2:        decimal.NewFromFloat(0.03),
		sellGrowth2After:   20 * time.Minute,
		sellGrowth3:        decimal.NewFromFloat(0.01),
		sellGrowth3After:   60 * time.Minute,
		sellFall:           decimal.NewFromFloat(-0.04),
		orderBudget:        decimal.NewFromFloat(0.005),
	}
}

func (s *Settings) CheckRatePeriod() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkRatePeriod
}

// Retention is the window depth kept per market. Longer than the check period
// so multi-interval statistics stay possible.
func (s *Settings) Retention() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.retentionFactor) * s.checkRatePeriod
}

func (s *Settings) ExplosionThreshold() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.explosionThreshold
}

func (s *Settings) RisingCountThreshold() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.risingCount
}

func (s *Settings) SellGrowth1() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sellGrowth1
}

func (s *Settings) SellGrowth2() (decimal.Decimal, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sellGrowth2, s.sellGrowth2After
}

func (s *Settings) SellGrowth3() (decimal.Decimal, time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sellGrowth3, s.sellGrowth3After
}

func (s *Settings) SellFall() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sellFall
}

func (s *Settings) OrderBudget() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderBudget
}

// SetCheckRatePeriod overrides the trailing window length.
func (s *Settings) SetCheckRatePeriod(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.checkRatePeriod = d
	}
}

// SetRisingCountThreshold overrides the number of confirmations required.
func (s *Settings) SetRisingCountThreshold(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.risingCount = n
	}
}

// SetExplosionThreshold overrides the detector growth threshold.
func (s *Settings) SetExplosionThreshold(v decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.explosionThreshold = v
}

// SetSellLadder overrides the exit ladder thresholds in one call.
func (s *Settings) SetSellLadder(g1, g2, g3, fall decimal.Decimal, after2, after3 time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellGrowth1 = g1
	s.sellGrowth2 = g2
	s.sellGrowth3 = g3
	s.sellFall = fall
	s.sellGrowth2After = after2
	s.sellGrowth3After = after3
}

// SetOrderBudget overrides the per-order quote notional.
func (s *Settings) SetOrderBudget(v decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.IsPositive() {
		s.orderBudget = v
	}
}

// Set assigns a single whitelisted setting by name. Unknown names are
// rejected so the control surface cannot mutate arbitrary state.
func (s *Settings) Set(name string, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case SettingCheckRatePeriodSeconds:
		secs := value.IntPart()
		if secs <= 0 {
			return fmt.Errorf("setting %s must be positive", name)
		}
		s.checkRatePeriod = time.Duration(secs) * time.Second
	case SettingExplosionThreshold:
		s.explosionThreshold = value
	case SettingRisingCountThreshold:
		n := int(value.IntPart())
		if n <= 0 {
			return fmt.Errorf("setting %s must be positive", name)
		}
		s.risingCount = n
	case SettingSellGrowth1:
		s.sellGrowth1 = value
	case SettingSellGrowth2:
		s.sellGrowth2 = value
	case SettingSellGrowth2Minutes:
		s.sellGrowth2After = time.Duration(value.IntPart()) * time.Minute
	case SettingSellGrowth3:
		s.sellGrowth3 = value
	case SettingSellGrowth3Minutes:
		s.sellGrowth3After = time.Duration(value.IntPart()) * time.Minute
	case SettingSellFall:
		s.sellFall = value
	case SettingOrderBudget:
		if !value.IsPositive() {
			return fmt.Errorf("setting %s must be positive", name)
		}
		s.orderBudget = value
	default:
		return fmt.Errorf("unknown setting %q", name)
	}
	return nil
}

// View returns the settings as a name -> value map for inspection.
func (s *Settings) View() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]decimal.Decimal{
		SettingCheckRatePeriodSeconds: decimal.NewFromInt(int64(s.checkRatePeriod / time.Second)),
		SettingExplosionThreshold:     s.explosionThreshold,
		SettingRisingCountThreshold:   decimal.NewFromInt(int64(s.risingCount)),
		SettingSellGrowth1:            s.sellGrowth1,
		SettingSellGrowth2:            s.sellGrowth2,
		SettingSellGrowth2Minutes:     decimal.NewFromInt(int64(s.sellGrowth2After / time.Minute)),
		SettingSellGrowth3:            s.sellGrowth3,
		SettingSellGrowth3Minutes:     decimal.NewFromInt(int64(s.sellGrowth3After / time.Minute)),
		SettingSellFall:               s.sellFall,
		SettingOrderBudget:            s.orderBudget,
	}
}

// SettingNames lists the whitelisted setting names, sorted.
func SettingNames() []string {
	names := []string{
		SettingCheckRatePeriodSeconds,
		SettingExplosionThreshold,
		SettingRisingCountThreshold,
		SettingSellGrowth1,
		SettingSellGrowth2,
		SettingSellGrowth2Minutes,
		SettingSellGrowth3,
		SettingSellGrowth3Minutes,
		SettingSellFall,
		SettingOrderBudget,
	}
	sort.Strings(names)
	return names
}
