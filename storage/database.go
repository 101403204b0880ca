package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - Trade history and ban persistence
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// TradeRow is one closed position.
type TradeRow struct {
	ID         uint            `gorm:"primaryKey;autoIncrement"`
	Market     string          `gorm:"index"`
	OpenRate   decimal.Decimal `gorm:"type:decimal(18,8)"`
	CloseRate  decimal.Decimal `gorm:"type:decimal(18,8)"`
	Change     decimal.Decimal `gorm:"type:decimal(18,8)"`
	Reason     string
	ExternalID string
	OpenedAt   time.Time
	ClosedAt   time.Time
	CreatedAt  time.Time
}

// BanRow mirrors one in-memory ban entry.
type BanRow struct {
	Market    string          `gorm:"primaryKey"`
	Count     int
	LastRate  decimal.Decimal `gorm:"type:decimal(18,8)"`
	LastTime  int64
	UpdatedAt time.Time
}

// New opens the database. A postgres:// DSN selects PostgreSQL, anything else
// is treated as a SQLite file path.
func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&TradeRow{}, &BanRow{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// SaveTrade appends a closed position to the history table.
func (d *Database) SaveTrade(rec types.HistoryRecord, reason string) error {
	row := TradeRow{
		Market:     rec.Market,
		OpenRate:   rec.Open.Value,
		CloseRate:  rec.Close.Value,
		Change:     rec.Change,
		Reason:     reason,
		ExternalID: rec.ExternalID,
		OpenedAt:   rec.Open.Timestamp(),
		ClosedAt:   rec.Close.Timestamp(),
	}
	return d.db.Create(&row).Error
}

// RecentTrades returns the last closed positions, newest first.
func (d *Database) RecentTrades(limit int) ([]TradeRow, error) {
	var rows []TradeRow
	err := d.db.Order("closed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// SaveBan upserts a market's ban entry.
func (d *Database) SaveBan(market string, entry types.BanEntry) error {
	row := BanRow{
		Market:   market,
		Count:    entry.Count,
		LastRate: entry.LastLosingRate.Value,
		LastTime: entry.LastLosingRate.Time,
	}
	return d.db.Save(&row).Error
}

// DeleteBan removes a market's ban entry.
func (d *Database) DeleteBan(market string) error {
	return d.db.Delete(&BanRow{}, "market = ?", market).Error
}

// ClearBans removes all ban entries.
func (d *Database) ClearBans() error {
	return d.db.Where("1 = 1").Delete(&BanRow{}).Error
}

// LoadBans returns all persisted ban entries keyed by market.
func (d *Database) LoadBans() (map[string]types.BanEntry, error) {
	var rows []BanRow
	if err := d.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]types.BanEntry, len(rows))
	for _, row := range rows {
		out[row.Market] = types.BanEntry{
			Count: row.Count,
			LastLosingRate: types.RateTick{
				Market: row.Market,
				Value:  row.LastRate,
				Time:   row.LastTime,
			},
		}
	}
	return out, nil
}
