package core

import (
	"math"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BAN / COOLDOWN MANAGER - Suppresses markets after losses
// ═══════════════════════════════════════════════════════════════════════════════

// banLimit is the losing-close count above which a market is excluded from new
// opens. Recovery is outcome based only: a later winning close resets the
// counter, there is no time expiry.
const banLimit = 2

// permanentBanCount marks statically denylisted markets.
const permanentBanCount = math.MaxInt32

// DefaultDenylist names markets that are never eligible for opens.
var DefaultDenylist = []string{"BTC-DOGE", "BTC-XVG"}

// BanManager tracks losing-close counts per market.
type BanManager struct {
	entries  map[string]*types.BanEntry
	denylist map[string]bool
}

// NewBanManager creates a manager seeded with the static denylist.
func NewBanManager(denylist []string) *BanManager {
	m := &BanManager{
		entries:  make(map[string]*types.BanEntry),
		denylist: make(map[string]bool, len(denylist)),
	}
	for _, market := range denylist {
		m.denylist[market] = true
	}
	m.seedDenylist()
	return m
}

func (m *BanManager) seedDenylist() {
	for market := range m.denylist {
		m.entries[market] = &types.BanEntry{Count: permanentBanCount}
	}
}

// Banned reports whether the market accumulated too many losing closes.
func (m *BanManager) Banned(market string) bool {
	entry := m.entries[market]
	return entry != nil && entry.Count > banLimit
}

// Denylisted reports whether the market is statically excluded.
func (m *BanManager) Denylisted(market string) bool {
	return m.denylist[market]
}

// RecordClose folds a closed order's outcome into the ban state and returns
// the updated entry. Losing closes increment the counter and remember the
// losing rate; winning closes reset the counter to zero.
func (m *BanManager) RecordClose(market string, change decimal.Decimal, rate types.RateTick) types.BanEntry {
	entry := m.entries[market]
	if entry == nil {
		entry = &types.BanEntry{}
		m.entries[market] = entry
	}

	if change.IsNegative() {
		entry.Count++
		entry.LastLosingRate = rate
		if entry.Count > banLimit {
			log.Warn().Str("market", market).Int("count", entry.Count).Msg("🚫 Market banned after repeated losses")
		}
	} else {
		entry.Count = 0
	}
	return *entry
}

// Clear removes the ban entry for a single market. Denylisted markets stay
// excluded regardless.
func (m *BanManager) Clear(market string) {
	delete(m.entries, market)
	m.seedDenylist()
}

// ClearAll wipes every ban entry, re-seeding the static denylist.
func (m *BanManager) ClearAll() {
	m.entries = make(map[string]*types.BanEntry)
	m.seedDenylist()
}

// Set forces a market's ban entry, used by the control surface and when
// restoring persisted state on startup.
func (m *BanManager) Set(market string, entry types.BanEntry) {
	e := entry
	m.entries[market] = &e
}

// Entries returns a copy of all ban entries.
func (m *BanManager) Entries() map[string]types.BanEntry {
	out := make(map[string]types.BanEntry, len(m.entries))
	for market, entry := range m.entries {
		out[market] = *entry
	}
	return out
}
