package feeds

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nv4re/pumpbot/exec"
	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SUMMARY POLLER - Default tick source
// ═══════════════════════════════════════════════════════════════════════════════
//
// Polls the exchange summaries endpoint and pushes one RateTick per tracked
// market. The market universe is refreshed on a slow timer and fixed between
// refreshes.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SummarySource provides the market universe and the latest rates.
type SummarySource interface {
	GetMarkets() ([]exec.MarketInfo, error)
	GetMarketSummaries() ([]exec.MarketSummary, error)
}

// Poller turns the polled summaries into a pushed tick stream.
type Poller struct {
	mu sync.RWMutex

	source          SummarySource
	quote           string // only quote-currency markets are tracked, e.g. "BTC"
	interval        time.Duration
	refreshInterval time.Duration

	markets     map[string]bool
	subscribers []chan types.RateTick

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPoller creates a poller over the given source.
func NewPoller(source SummarySource, quote string, interval, refreshInterval time.Duration) *Poller {
	return &Poller{
		source:          source,
		quote:           quote,
		interval:        interval,
		refreshInterval: refreshInterval,
		markets:         make(map[string]bool),
		stopCh:          make(chan struct{}),
	}
}

// Subscribe returns a channel of ticks.
func (p *Poller) Subscribe() <-chan types.RateTick {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan types.RateTick, 1024)
	p.subscribers = append(p.subscribers, ch)
	return ch
}

// Start begins polling.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.refreshMarkets()

	p.wg.Add(2)
	go p.pollLoop()
	go p.refreshLoop()

	log.Info().Dur("interval", p.interval).Str("quote", p.quote).Msg("📈 Summary poller started")
}

// Stop halts the poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	log.Info().Msg("Summary poller stopped")
}

// Markets returns the currently tracked market names.
func (p *Poller) Markets() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.markets))
	for market := range p.markets {
		out = append(out, market)
	}
	return out
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) refreshLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.refreshMarkets()
		}
	}
}

// refreshMarkets refetches the market universe. Failures keep the previous
// set; a tick source gap is never fatal.
func (p *Poller) refreshMarkets() {
	infos, err := p.source.GetMarkets()
	if err != nil {
		log.Warn().Err(err).Msg("Market refresh failed")
		return
	}

	markets := make(map[string]bool)
	for _, info := range infos {
		if !info.IsActive || info.BaseCurrency != p.quote {
			continue
		}
		if !strings.HasPrefix(info.MarketName, p.quote+"-") {
			continue
		}
		markets[info.MarketName] = true
	}

	p.mu.Lock()
	p.markets = markets
	p.mu.Unlock()

	log.Info().Int("markets", len(markets)).Msg("Market universe refreshed")
}

func (p *Poller) poll() {
	summaries, err := p.source.GetMarketSummaries()
	if err != nil {
		log.Warn().Err(err).Msg("Summary poll failed")
		return
	}

	p.mu.RLock()
	markets := p.markets
	subscribers := p.subscribers
	p.mu.RUnlock()

	now := time.Now().Unix()
	for _, summary := range summaries {
		if !markets[summary.MarketName] {
			continue
		}
		if !summary.Last.IsPositive() {
			continue
		}

		ts := now
		if parsed, err := summary.Time(); err == nil {
			ts = parsed.Unix()
		}

		tick := types.RateTick{
			Market: summary.MarketName,
			Value:  summary.Last,
			Time:   ts,
		}
		for _, ch := range subscribers {
			select {
			case ch <- tick:
			default:
				// Slow consumer; drop rather than stall the poll loop.
			}
		}
	}
}
