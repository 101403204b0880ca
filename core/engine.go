package core

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Tick → Window Aggregator → Explosion Detector → Rising Confirmation
//        → Order Engine → (Executor, Results, Ban Manager, Notifier)
//
// All ticks for all markets run through one serialized loop. Exchange calls
// are dispatched on their own goroutines and fold their results back into the
// same loop, so no state is mutated from a callback goroutine.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Executor places and cancels exchange orders and reports balances.
type Executor interface {
	Buy(market string, rate, amount decimal.Decimal) (string, error)
	Sell(market string, rate, amount decimal.Decimal) (string, error)
	Cancel(market, orderID string) error
	Balances() (map[string]decimal.Decimal, error)
}

// Notifier receives fire-and-forget engine events. Delivery failures are the
// notifier's problem, never the engine's.
type Notifier interface {
	NotifyExplosion(market string, rate, growth decimal.Decimal)
	NotifyOpened(market string, rate, amount decimal.Decimal)
	NotifyClosed(market string, rate, change decimal.Decimal, reason string)
	NotifyRunState(state string)
}

// Store persists closed trades and ban entries. A nil Store disables
// persistence.
type Store interface {
	SaveTrade(rec types.HistoryRecord, reason string) error
	SaveBan(market string, entry types.BanEntry) error
	DeleteBan(market string) error
	ClearBans() error
}

// Run states.
const (
	RunStateActive = "active"
	RunStatePaused = "paused"
)

// Stats carries engine counters for display.
type Stats struct {
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

// State is a read-only snapshot of the full engine state tree.
type State struct {
	RunState string                     `json:"runState"`
	Muted    bool                       `json:"muted"`
	Orders   map[string]types.Order     `json:"orders"`
	History  []types.HistoryRecord      `json:"history"`
	Banned   map[string]types.BanEntry  `json:"banned"`
	Rising   map[string]RisingState     `json:"rising"`
	Results  types.ResultTotals         `json:"results"`
	Settings map[string]decimal.Decimal `json:"settings"`
	Stats    Stats                      `json:"stats"`
}

// Engine owns all trading state exclusively and drives it from ticks.
type Engine struct {
	mu sync.RWMutex

	settings *Settings
	agg      *Aggregator
	detector *Detector
	rising   *RisingTracker
	bans     *BanManager

	executor Executor
	notifier Notifier
	store    Store
	live     bool // real execution: balance preconditions apply

	orders      map[string]*types.Order
	pendingOpen map[string]bool
	pendingSell map[string]bool
	history     []types.HistoryRecord
	totals      types.ResultTotals
	balances    map[string]decimal.Decimal
	stats       Stats

	active bool
	muted  bool

	applyCh chan func()
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewEngine wires the engine. notifier and store may be nil.
func NewEngine(settings *Settings, executor Executor, notifier Notifier, store Store, live bool) *Engine {
	return &Engine{
		settings:    settings,
		agg:         NewAggregator(settings),
		detector:    NewDetector(settings),
		rising:      NewRisingTracker(settings),
		bans:        NewBanManager(DefaultDenylist),
		executor:    executor,
		notifier:    notifier,
		store:       store,
		live:        live,
		orders:      make(map[string]*types.Order),
		pendingOpen: make(map[string]bool),
		pendingSell: make(map[string]bool),
		balances:    make(map[string]decimal.Decimal),
		active:      true,
		applyCh:     make(chan func(), 256),
		stopCh:      make(chan struct{}),
	}
}

// SetNotifier installs the notification collaborator. The notifier usually
// needs the engine for its control commands, so it is wired after construction.
func (e *Engine) SetNotifier(notifier Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = notifier
}

// RestoreBans seeds persisted ban entries, typically right after startup.
func (e *Engine) RestoreBans(entries map[string]types.BanEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for market, entry := range entries {
		e.bans.Set(market, entry)
	}
}

// Start begins consuming ticks and fold-backs until Stop.
func (e *Engine) Start(tickCh <-chan types.RateTick, balanceRefresh time.Duration) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.mainLoop(tickCh)

	if balanceRefresh > 0 {
		e.wg.Add(1)
		go e.balanceLoop(balanceRefresh)
	}

	log.Info().Msg("⚡ Engine started")
}

// Stop halts the loops. In-flight exchange calls are not cancelled; their
// results are dropped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	log.Info().Msg("Engine stopped")
}

func (e *Engine) mainLoop(tickCh <-chan types.RateTick) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case tick, ok := <-tickCh:
			if !ok {
				return
			}
			e.ProcessTick(tick)
		case fn := <-e.applyCh:
			fn()
		}
	}
}

func (e *Engine) balanceLoop(interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.refreshBalances()
		}
	}
}

// dispatch runs an exchange call on its own goroutine and funnels the
// resulting state change back into the serialized loop.
func (e *Engine) dispatch(call func() func()) {
	go func() {
		fold := call()
		if fold == nil {
			return
		}
		select {
		case e.applyCh <- fold:
		case <-e.stopCh:
		}
	}()
}

// ProcessTick runs one tick through the full pipeline.
func (e *Engine) ProcessTick(tick types.RateTick) {
	if !tick.Value.IsPositive() {
		log.Error().Str("market", tick.Market).Str("value", tick.Value.String()).
			Msg("Dropping tick with non-positive rate")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, ok := e.agg.Ingest(tick)

	if order, open := e.orders[tick.Market]; open {
		order.Change = Change(order, tick)
		if !e.pendingSell[tick.Market] {
			if reason, fire := CheckExit(e.settings, order, tick); fire {
				e.closeOrder(order, tick, reason)
			}
		}
	} else if ok && e.detector.Detect(snap) {
		growth := snap.Growth()
		log.Info().Str("market", tick.Market).
			Str("rate", tick.Value.String()).
			Str("growth", growth.String()).
			Msg("🚀 Explosion detected")
		e.notify(func(n Notifier) { n.NotifyExplosion(tick.Market, tick.Value, growth) })

		if e.rising.Observe(tick.Market, tick) {
			e.tryOpen(tick)
		}
	} else if e.rising.Confirmed(tick.Market) {
		// A confirmed market that failed to open earlier retries on every
		// tick without re-accumulating its count.
		e.tryOpen(tick)
	}

	e.totals.Active = SumActive(e.orders)
}

// tryOpen attempts to open a position, checking preconditions in fixed order.
// The first failing reason wins; rejections are observable, never fatal.
func (e *Engine) tryOpen(tick types.RateTick) {
	market := tick.Market

	if reason, ok := e.openRejection(market); !ok {
		log.Debug().Str("market", market).Str("reason", reason).Msg("Open rejected")
		return
	}

	amount := e.settings.OrderBudget().Div(tick.Value)
	e.pendingOpen[market] = true

	e.dispatch(func() func() {
		orderID, err := e.executor.Buy(market, tick.Value, amount)
		return func() {
			e.mu.Lock()
			defer e.mu.Unlock()

			delete(e.pendingOpen, market)
			if err != nil {
				log.Error().Err(err).Str("market", market).Msg("Buy failed")
				return
			}
			if _, open := e.orders[market]; open {
				// Should be unreachable while the loop is serialized.
				log.Error().Str("market", market).Msg("Duplicate open detected, dropping fill")
				return
			}

			e.orders[market] = &types.Order{
				Market:     market,
				OpenRate:   tick,
				Change:     decimal.Zero,
				Amount:     amount,
				ExternalID: orderID,
			}
			e.rising.Reset(market)
			e.stats.Trades++

			log.Info().Str("market", market).
				Str("rate", tick.Value.String()).
				Str("amount", amount.String()).
				Str("order_id", orderID).
				Msg("✅ Position opened")
			e.notify(func(n Notifier) { n.NotifyOpened(market, tick.Value, amount) })

			e.refreshBalancesLocked()
		}
	})
}

// openRejection checks the open preconditions in order and returns the first
// failing reason.
func (e *Engine) openRejection(market string) (string, bool) {
	switch {
	case !e.active:
		return RejectPaused, false
	case e.orders[market] != nil:
		return RejectOpenOrder, false
	case e.pendingOpen[market]:
		return RejectPendingOpen, false
	case e.bans.Denylisted(market):
		return RejectDenylisted, false
	case e.bans.Banned(market):
		return RejectBanned, false
	case e.live && e.balances[types.MarketCurrency(market)].IsPositive():
		// Guard against doubling a position bought outside the engine.
		return RejectBalance, false
	}
	return "", true
}

// closeOrder issues the sell and, once the exchange confirms it, retires the
// order into history and updates results, bans and notifications.
func (e *Engine) closeOrder(order *types.Order, tick types.RateTick, reason string) {
	market := order.Market
	change := order.Change
	e.pendingSell[market] = true

	e.dispatch(func() func() {
		orderID, err := e.executor.Sell(market, tick.Value, order.Amount)
		return func() {
			e.mu.Lock()
			defer e.mu.Unlock()

			delete(e.pendingSell, market)

			if errors.Is(err, types.ErrNoPosition) {
				// Nothing to sell on the exchange side. Cancel whatever was
				// placed and drop the order without recording a result.
				log.Warn().Str("market", market).Msg("Position unsellable, dropping order")
				if orderID != "" {
					e.cancelAsync(market, orderID)
				}
				delete(e.orders, market)
				return
			}
			if err != nil {
				log.Error().Err(err).Str("market", market).Msg("Sell failed, order stays open")
				return
			}

			delete(e.orders, market)
			rec := types.HistoryRecord{
				Market:     market,
				Open:       order.OpenRate,
				Close:      tick,
				Change:     change,
				ExternalID: orderID,
			}
			e.history = append(e.history, rec)
			e.totals.Finished = SumFinished(e.history)

			entry := e.bans.RecordClose(market, change, tick)
			if change.IsNegative() {
				e.rising.Rebase(market, tick)
				e.stats.Losses++
			} else {
				e.stats.Wins++
			}

			log.Info().Str("market", market).
				Str("open", order.OpenRate.Value.String()).
				Str("close", tick.Value.String()).
				Str("change", change.String()).
				Str("reason", reason).
				Msg("📊 Position closed")
			e.notify(func(n Notifier) { n.NotifyClosed(market, tick.Value, change, reason) })

			if e.store != nil {
				if err := e.store.SaveTrade(rec, reason); err != nil {
					log.Error().Err(err).Msg("Failed to persist trade")
				}
				if err := e.store.SaveBan(market, entry); err != nil {
					log.Error().Err(err).Msg("Failed to persist ban entry")
				}
			}
		}
	})
}

func (e *Engine) cancelAsync(market, orderID string) {
	e.dispatch(func() func() {
		if err := e.executor.Cancel(market, orderID); err != nil {
			log.Error().Err(err).Str("market", market).Str("order_id", orderID).Msg("Cancel failed")
		}
		return nil
	})
}

// refreshBalances fetches account balances and folds them back into state.
func (e *Engine) refreshBalances() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshBalancesLocked()
}

func (e *Engine) refreshBalancesLocked() {
	e.dispatch(func() func() {
		balances, err := e.executor.Balances()
		if err != nil {
			log.Warn().Err(err).Msg("Balance refresh failed")
			return nil
		}
		return func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.balances = balances
		}
	})
}

// notify delivers an event unless muted. The notifier runs outside the lock
// path on its own goroutine; failures are swallowed by the notifier.
func (e *Engine) notify(fn func(Notifier)) {
	if e.notifier == nil || e.muted {
		return
	}
	n := e.notifier
	go fn(n)
}

// ─── Control surface ───────────────────────────────────────────────────────────

// SetActive switches the run state. Paused suppresses new opens only; exits
// for open positions keep evaluating.
func (e *Engine) SetActive(active bool) {
	e.mu.Lock()
	changed := e.active != active
	e.active = active
	state := e.runStateLocked()
	if changed {
		e.notify(func(n Notifier) { n.NotifyRunState(state) })
	}
	e.mu.Unlock()

	if changed {
		log.Info().Str("state", state).Msg("Run state changed")
	}
}

// SetMuted toggles notification delivery.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = muted
}

// SetSetting assigns one whitelisted named setting.
func (e *Engine) SetSetting(name string, value decimal.Decimal) error {
	return e.settings.Set(name, value)
}

// ClearBans wipes all ban entries (the static denylist stays).
func (e *Engine) ClearBans() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bans.ClearAll()
	if e.store != nil {
		if err := e.store.ClearBans(); err != nil {
			log.Error().Err(err).Msg("Failed to clear persisted bans")
		}
	}
}

// ClearBan removes a single market's ban entry.
func (e *Engine) ClearBan(market string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bans.Clear(market)
	if e.store != nil {
		if err := e.store.DeleteBan(market); err != nil {
			log.Error().Err(err).Msg("Failed to delete persisted ban")
		}
	}
}

// SetBan forces a market's ban entry.
func (e *Engine) SetBan(market string, entry types.BanEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bans.Set(market, entry)
	if e.store != nil {
		if err := e.store.SaveBan(market, entry); err != nil {
			log.Error().Err(err).Msg("Failed to persist ban entry")
		}
	}
}

// RunState reports "active" or "paused".
func (e *Engine) RunState() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runStateLocked()
}

func (e *Engine) runStateLocked() string {
	if e.active {
		return RunStateActive
	}
	return RunStatePaused
}

// Muted reports whether notifications are suppressed.
func (e *Engine) Muted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.muted
}

// Stats returns the engine counters and totals.
func (e *Engine) Stats() (Stats, types.ResultTotals) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats, e.totals
}

// State snapshots the full engine state tree for inspection.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	orders := make(map[string]types.Order, len(e.orders))
	for market, order := range e.orders {
		orders[market] = *order
	}
	history := make([]types.HistoryRecord, len(e.history))
	copy(history, e.history)

	return State{
		RunState: e.runStateLocked(),
		Muted:    e.muted,
		Orders:   orders,
		History:  history,
		Banned:   e.bans.Entries(),
		Rising:   e.rising.States(),
		Results:  e.totals,
		Settings: e.settings.View(),
		Stats:    e.stats,
	}
}
