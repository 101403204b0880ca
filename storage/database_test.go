package storage

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nv4re/pumpbot/types"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "pumpbot.db"))
	require.NoError(t, err)
	return db
}

func TestSaveAndListTrades(t *testing.T) {
	db := newTestDatabase(t)

	records := []types.HistoryRecord{
		{
			Market:     "BTC-ABC",
			Open:       types.RateTick{Market: "BTC-ABC", Value: decimal.NewFromFloat(1.00), Time: 1000},
			Close:      types.RateTick{Market: "BTC-ABC", Value: decimal.NewFromFloat(1.06), Time: 1600},
			Change:     decimal.NewFromFloat(0.06),
			ExternalID: "order-1",
		},
		{
			Market:     "BTC-XYZ",
			Open:       types.RateTick{Market: "BTC-XYZ", Value: decimal.NewFromFloat(2.00), Time: 2000},
			Close:      types.RateTick{Market: "BTC-XYZ", Value: decimal.NewFromFloat(1.88), Time: 2600},
			Change:     decimal.NewFromFloat(-0.06),
			ExternalID: "order-2",
		},
	}
	require.NoError(t, db.SaveTrade(records[0], "TAKE_PROFIT"))
	require.NoError(t, db.SaveTrade(records[1], "STOP_LOSS"))

	rows, err := db.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Newest close first.
	assert.Equal(t, "BTC-XYZ", rows[0].Market)
	assert.Equal(t, "STOP_LOSS", rows[0].Reason)
	assert.True(t, rows[0].Change.Equal(decimal.NewFromFloat(-0.06)))
	assert.Equal(t, "BTC-ABC", rows[1].Market)
	assert.Equal(t, "order-1", rows[1].ExternalID)
}

func TestRecentTradesHonorsLimit(t *testing.T) {
	db := newTestDatabase(t)

	for i := int64(0); i < 5; i++ {
		rec := types.HistoryRecord{
			Market: "BTC-ABC",
			Open:   types.RateTick{Market: "BTC-ABC", Value: decimal.NewFromFloat(1.00), Time: 1000 + i},
			Close:  types.RateTick{Market: "BTC-ABC", Value: decimal.NewFromFloat(1.06), Time: 1600 + i},
			Change: decimal.NewFromFloat(0.06),
		}
		require.NoError(t, db.SaveTrade(rec, "TAKE_PROFIT"))
	}

	rows, err := db.RecentTrades(3)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestBanRoundTrip(t *testing.T) {
	db := newTestDatabase(t)

	entry := types.BanEntry{
		Count: 2,
		LastLosingRate: types.RateTick{
			Market: "BTC-ABC",
			Value:  decimal.NewFromFloat(0.90),
			Time:   3000,
		},
	}
	require.NoError(t, db.SaveBan("BTC-ABC", entry))

	loaded, err := db.LoadBans()
	require.NoError(t, err)
	require.Contains(t, loaded, "BTC-ABC")
	assert.Equal(t, 2, loaded["BTC-ABC"].Count)
	assert.True(t, loaded["BTC-ABC"].LastLosingRate.Value.Equal(decimal.NewFromFloat(0.90)))
	assert.Equal(t, int64(3000), loaded["BTC-ABC"].LastLosingRate.Time)
}

func TestSaveBanUpserts(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.SaveBan("BTC-ABC", types.BanEntry{Count: 1}))
	require.NoError(t, db.SaveBan("BTC-ABC", types.BanEntry{Count: 3}))

	loaded, err := db.LoadBans()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 3, loaded["BTC-ABC"].Count)
}

func TestDeleteAndClearBans(t *testing.T) {
	db := newTestDatabase(t)

	require.NoError(t, db.SaveBan("BTC-ABC", types.BanEntry{Count: 3}))
	require.NoError(t, db.SaveBan("BTC-XYZ", types.BanEntry{Count: 3}))

	require.NoError(t, db.DeleteBan("BTC-ABC"))
	loaded, err := db.LoadBans()
	require.NoError(t, err)
	assert.NotContains(t, loaded, "BTC-ABC")
	assert.Contains(t, loaded, "BTC-XYZ")

	require.NoError(t, db.ClearBans())
	loaded, err = db.LoadBans()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
