package core

import (
	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/types"
)

// SumActive recomputes the unrealized total as the sum of change across all
// open orders. Called once per tick cycle.
func SumActive(orders map[string]*types.Order) decimal.Decimal {
	total := decimal.Zero
	for _, order := range orders {
		total = total.Add(order.Change)
	}
	return total
}

// SumFinished resums the realized total over the full history. Resumming on
// every close keeps the figure independent of accumulation order.
func SumFinished(history []types.HistoryRecord) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range history {
		total = total.Add(rec.Change)
	}
	return total
}
