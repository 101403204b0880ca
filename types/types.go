package types

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// ErrNoPosition is reported by the execution client when a sell cannot be
// filled because the account holds none of the market currency.
var ErrNoPosition = errors.New("no position to sell")

// RateTick is one price observation for a market.
type RateTick struct {
	Market string          `json:"market"`
	Value  decimal.Decimal `json:"value"`
	Time   int64           `json:"time"` // unix seconds
}

// Timestamp returns the tick time as time.Time.
func (t RateTick) Timestamp() time.Time {
	return time.Unix(t.Time, 0)
}

// MarketCurrency extracts the traded coin from a "BTC-XXX" market name.
func MarketCurrency(market string) string {
	if i := strings.Index(market, "-"); i >= 0 {
		return market[i+1:]
	}
	return market
}

// BaseCurrency extracts the quote coin from a "BTC-XXX" market name.
func BaseCurrency(market string) string {
	if i := strings.Index(market, "-"); i >= 0 {
		return market[:i]
	}
	return market
}

// Order represents an open position.
type Order struct {
	Market     string          `json:"market"`
	OpenRate   RateTick        `json:"openRate"`
	Change     decimal.Decimal `json:"change"` // recomputed on every tick
	Amount     decimal.Decimal `json:"amount"`
	ExternalID string          `json:"externalId"`
}

// HistoryRecord is an immutable record of a closed position.
type HistoryRecord struct {
	Market     string          `json:"market"`
	Open       RateTick        `json:"open"`
	Close      RateTick        `json:"close"`
	Change     decimal.Decimal `json:"change"`
	ExternalID string          `json:"externalId"`
}

// BanEntry tracks consecutive losing closes for a market. A count above the
// ban limit excludes the market from new opens until a winning close resets it.
type BanEntry struct {
	Count          int      `json:"count"`
	LastLosingRate RateTick `json:"lastLosingRate"`
}

// ResultTotals carries running performance numbers.
type ResultTotals struct {
	Active   decimal.Decimal `json:"active"`   // sum of change over open orders
	Finished decimal.Decimal `json:"finished"` // sum of change over history
}
