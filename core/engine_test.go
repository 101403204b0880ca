package core

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nv4re/pumpbot/types"
)

// fakeExecutor records calls and answers instantly.
type fakeExecutor struct {
	mu       sync.Mutex
	buys     []string
	sells    []string
	cancels  []string
	buyErr   error
	sellErr  error
	balances map[string]decimal.Decimal
}

func (f *fakeExecutor) Buy(market string, rate, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buyErr != nil {
		return "", f.buyErr
	}
	f.buys = append(f.buys, market)
	return "BUY-1", nil
}

func (f *fakeExecutor) Sell(market string, rate, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sellErr != nil {
		return "SELL-FAILED", f.sellErr
	}
	f.sells = append(f.sells, market)
	return "SELL-1", nil
}

func (f *fakeExecutor) Cancel(market, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, orderID)
	return nil
}

func (f *fakeExecutor) Balances() (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExecutor) buyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buys)
}

func (f *fakeExecutor) sellCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sells)
}

func engineSettings() *Settings {
	s := DefaultSettings()
	s.SetCheckRatePeriod(30 * time.Second)
	s.SetExplosionThreshold(decimal.NewFromFloat(0.08))
	s.SetRisingCountThreshold(2)
	s.SetSellLadder(
		decimal.NewFromFloat(0.05),
		decimal.NewFromFloat(0.03),
		decimal.NewFromFloat(0.01),
		decimal.NewFromFloat(-0.05),
		20*time.Minute,
		60*time.Minute,
	)
	return s
}

func newTestEngine(fake *fakeExecutor, live bool) *Engine {
	return NewEngine(engineSettings(), fake, nil, nil, live)
}

// settle folds back every pending exchange result, waiting briefly for
// dispatch goroutines to finish.
func settle(e *Engine) {
	for {
		select {
		case fn := <-e.applyCh:
			fn()
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

// feedExplosion drives enough ticks through the engine for one detector hit
// on the market, ending at the given base value and time.
func feedExplosion(e *Engine, market string, base float64, at int64) {
	e.ProcessTick(tick(market, base, at))
	e.ProcessTick(tick(market, base*1.09, at+10))
	e.ProcessTick(tick(market, base*1.12, at+20))
}

func TestEngineOpensAfterConfirmedExplosions(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)

	// First explosion: confirmation 1 of 2, no open yet.
	feedExplosion(e, "BTC-ABC", 1.00, 1000)
	settle(e)
	assert.Equal(t, 0, fake.buyCount())
	assert.Equal(t, 1, e.rising.States()["BTC-ABC"].Count)

	// Second explosion 70s later confirms and opens.
	feedExplosion(e, "BTC-ABC", 1.12, 1090)
	settle(e)
	require.Equal(t, 1, fake.buyCount())

	state := e.State()
	require.Contains(t, state.Orders, "BTC-ABC")
	order := state.Orders["BTC-ABC"]
	assert.Equal(t, "BUY-1", order.ExternalID)
	assert.True(t, order.Change.IsZero())
	// Amount is the fixed budget divided by the open rate.
	expected := e.settings.OrderBudget().Div(order.OpenRate.Value)
	assert.True(t, order.Amount.Equal(expected))

	// Confirmation was consumed.
	assert.NotContains(t, e.rising.States(), "BTC-ABC")
}

func TestEngineSingleOpenOrderPerMarket(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)

	feedExplosion(e, "BTC-ABC", 1.00, 1000)
	feedExplosion(e, "BTC-ABC", 1.12, 1090)
	settle(e)
	require.Equal(t, 1, fake.buyCount())

	// Further rising ticks route to the exit ladder, never a second buy.
	e.ProcessTick(tick("BTC-ABC", 1.30, 1095))
	e.ProcessTick(tick("BTC-ABC", 1.30, 1100))
	settle(e)
	assert.Equal(t, 1, fake.buyCount())
	assert.Len(t, e.State().Orders, 1)
}

func TestEnginePausedRejectsOpens(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)
	e.SetActive(false)

	feedExplosion(e, "BTC-ABC", 1.00, 1000)
	feedExplosion(e, "BTC-ABC", 1.12, 1090)
	settle(e)
	assert.Equal(t, 0, fake.buyCount())
	assert.Equal(t, RunStatePaused, e.RunState())

	// The confirmation stays armed: resuming lets the next tick open.
	e.SetActive(true)
	e.ProcessTick(tick("BTC-ABC", 1.26, 1095))
	settle(e)
	assert.Equal(t, 1, fake.buyCount())
}

func TestEngineBannedMarketRejectsOpens(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)
	e.SetBan("BTC-ABC", types.BanEntry{Count: 3})

	feedExplosion(e, "BTC-ABC", 1.00, 1000)
	feedExplosion(e, "BTC-ABC", 1.12, 1090)
	settle(e)
	assert.Equal(t, 0, fake.buyCount())
}

func TestEngineDenylistedMarketRejectsOpens(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)

	feedExplosion(e, "BTC-DOGE", 1.00, 1000)
	feedExplosion(e, "BTC-DOGE", 1.12, 1090)
	settle(e)
	assert.Equal(t, 0, fake.buyCount())
}

func TestEngineLiveBalanceGuard(t *testing.T) {
	fake := &fakeExecutor{balances: map[string]decimal.Decimal{
		"ABC": decimal.NewFromFloat(5),
	}}
	e := newTestEngine(fake, true)
	e.refreshBalances()
	settle(e)

	// The account already holds ABC: opening would double the position.
	feedExplosion(e, "BTC-ABC", 1.00, 1000)
	feedExplosion(e, "BTC-ABC", 1.12, 1090)
	settle(e)
	assert.Equal(t, 0, fake.buyCount())
}

func TestEngineStopLossClosesAndBans(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)
	e.orders["BTC-ABC"] = openOrder(100, 1000)

	e.ProcessTick(tick("BTC-ABC", 94, 1010))
	settle(e)
	require.Equal(t, 1, fake.sellCount())

	state := e.State()
	assert.NotContains(t, state.Orders, "BTC-ABC")
	require.Len(t, state.History, 1)
	rec := state.History[0]
	assert.True(t, rec.Change.Equal(decimal.NewFromFloat(-0.06)))
	assert.Equal(t, "SELL-1", rec.ExternalID)

	assert.Equal(t, 1, state.Banned["BTC-ABC"].Count)
	assert.True(t, state.Results.Finished.Equal(decimal.NewFromFloat(-0.06)))

	// The losing rate re-seeds the rising baseline.
	assert.Equal(t, int64(1010), e.rising.States()["BTC-ABC"].LastTime)

	stats, _ := e.Stats()
	assert.Equal(t, 1, stats.Losses)
}

func TestEngineBanRecoveryAfterWin(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)
	e.SetBan("BTC-ABC", types.BanEntry{Count: 3})

	// A winning close on the banned market resets the counter.
	e.orders["BTC-ABC"] = openOrder(100, 1000)
	e.ProcessTick(tick("BTC-ABC", 106, 1010))
	settle(e)

	assert.Equal(t, 0, e.State().Banned["BTC-ABC"].Count)

	// Opens are accepted again.
	feedExplosion(e, "BTC-ABC", 1.06, 2000)
	feedExplosion(e, "BTC-ABC", 1.19, 2090)
	settle(e)
	assert.Equal(t, 1, fake.buyCount())
}

func TestEngineSellFailureKeepsOrderOpen(t *testing.T) {
	fake := &fakeExecutor{sellErr: assert.AnError}
	e := newTestEngine(fake, false)
	e.orders["BTC-ABC"] = openOrder(100, 1000)

	e.ProcessTick(tick("BTC-ABC", 94, 1010))
	settle(e)

	state := e.State()
	assert.Contains(t, state.Orders, "BTC-ABC", "transient sell failure leaves the order")
	assert.Empty(t, state.History)

	// Next tick retries the close.
	fake.mu.Lock()
	fake.sellErr = nil
	fake.mu.Unlock()
	e.ProcessTick(tick("BTC-ABC", 94, 1020))
	settle(e)
	assert.NotContains(t, e.State().Orders, "BTC-ABC")
	assert.Len(t, e.State().History, 1)
}

func TestEngineUnsellablePositionIsDropped(t *testing.T) {
	fake := &fakeExecutor{sellErr: types.ErrNoPosition}
	e := newTestEngine(fake, false)
	e.orders["BTC-ABC"] = openOrder(100, 1000)

	e.ProcessTick(tick("BTC-ABC", 94, 1010))
	settle(e)

	state := e.State()
	assert.NotContains(t, state.Orders, "BTC-ABC", "unsellable order is dropped")
	assert.Empty(t, state.History, "recovery path records no result")
	assert.Equal(t, 0, state.Banned["BTC-ABC"].Count)

	assert.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.cancels) == 1
	}, 2*time.Second, 10*time.Millisecond, "outstanding sell request is cancelled")
}

func TestEngineDropsNonPositiveRates(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)

	e.ProcessTick(tick("BTC-ABC", 0, 1000))
	e.ProcessTick(tick("BTC-ABC", -1, 1010))
	assert.Equal(t, 0, e.agg.Len("BTC-ABC"))
}

func TestEngineActiveTotalsFollowOpenOrders(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)
	e.orders["BTC-ABC"] = openOrder(100, 1000)

	e.ProcessTick(tick("BTC-ABC", 102, 1010))
	_, totals := e.Stats()
	assert.True(t, totals.Active.Equal(decimal.NewFromFloat(0.02)))

	e.ProcessTick(tick("BTC-ABC", 101, 1020))
	_, totals = e.Stats()
	assert.True(t, totals.Active.Equal(decimal.NewFromFloat(0.01)))
}

func TestEngineFinishedTotalResums(t *testing.T) {
	history := []types.HistoryRecord{
		{Change: decimal.NewFromFloat(0.05)},
		{Change: decimal.NewFromFloat(-0.02)},
		{Change: decimal.NewFromFloat(0.01)},
	}
	assert.True(t, SumFinished(history).Equal(decimal.NewFromFloat(0.04)))
	// Resumming twice yields the same figure.
	assert.True(t, SumFinished(history).Equal(SumFinished(history)))
}

func TestEngineStateSnapshot(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)
	e.orders["BTC-ABC"] = openOrder(100, 1000)
	e.SetMuted(true)

	state := e.State()
	assert.Equal(t, RunStateActive, state.RunState)
	assert.True(t, state.Muted)
	assert.Contains(t, state.Orders, "BTC-ABC")
	assert.Contains(t, state.Banned, "BTC-DOGE")
	assert.Contains(t, state.Settings, SettingExplosionThreshold)

	// Mutating the snapshot must not leak into the engine.
	delete(state.Orders, "BTC-ABC")
	assert.Contains(t, e.State().Orders, "BTC-ABC")
}

func TestEngineStartStop(t *testing.T) {
	fake := &fakeExecutor{}
	e := newTestEngine(fake, false)

	tickCh := make(chan types.RateTick, 8)
	e.Start(tickCh, 0)

	tickCh <- tick("BTC-ABC", 1.00, 1000)
	tickCh <- tick("BTC-ABC", 1.09, 1010)
	tickCh <- tick("BTC-ABC", 1.12, 1020)

	require.Eventually(t, func() bool {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.agg.Len("BTC-ABC") == 3
	}, 2*time.Second, 10*time.Millisecond)

	e.Stop()
}
