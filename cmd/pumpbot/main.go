// Pumpbot - Explosion-detection trading bot
//
// Watches a stream of market rate ticks, flags short-term upward explosions,
// confirms them across repeated observations, opens a position per confirmed
// market and walks each open position down a time-gated exit ladder. Markets
// that keep losing get banned until they win again.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nv4re/pumpbot/bot"
	"github.com/nv4re/pumpbot/config"
	"github.com/nv4re/pumpbot/core"
	"github.com/nv4re/pumpbot/exec"
	"github.com/nv4re/pumpbot/feeds"
	"github.com/nv4re/pumpbot/server"
	"github.com/nv4re/pumpbot/storage"
	"github.com/nv4re/pumpbot/types"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Bool("live", cfg.Live).
		Str("quote", cfg.QuoteCurrency).
		Msg("⚡ Pumpbot starting...")

	// Settings seeded from config, live-tunable afterwards.
	settings := core.DefaultSettings()
	settings.SetCheckRatePeriod(cfg.CheckRatePeriod)
	settings.SetExplosionThreshold(cfg.ExplosionThreshold)
	settings.SetRisingCountThreshold(cfg.RisingCountThreshold)
	settings.SetSellLadder(cfg.SellGrowth1, cfg.SellGrowth2, cfg.SellGrowth3,
		cfg.SellFall, cfg.SellGrowth2After, cfg.SellGrowth3After)
	settings.SetOrderBudget(cfg.OrderBudget)

	// Persistence (optional)
	var db *storage.Database
	var store core.Store
	if cfg.DatabaseDSN != "" {
		db, err = storage.New(cfg.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		store = db
	}

	// Execution client
	executor := exec.NewClient("", cfg.APIKey, cfg.APISecret)
	if cfg.Live && !executor.Live() {
		log.Fatal().Msg("LIVE=true but execution client has no credentials")
	}

	// Engine
	engine := core.NewEngine(settings, executor, nil, store, cfg.Live)
	if db != nil {
		if bans, err := db.LoadBans(); err != nil {
			log.Warn().Err(err).Msg("Failed to load persisted bans")
		} else if len(bans) > 0 {
			engine.RestoreBans(bans)
			log.Info().Int("count", len(bans)).Msg("Restored persisted bans")
		}
	}

	// Telegram (optional)
	var tg *bot.TelegramBot
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, engine, db)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled")
		} else {
			engine.SetNotifier(tg)
			tg.Start()
		}
	} else {
		log.Warn().Msg("Telegram not configured, notifications disabled")
	}

	// Tick source: pushed stream when configured, otherwise the summary poller.
	var tickCh <-chan types.RateTick
	var stopFeed func()
	if cfg.TickStreamURL != "" {
		stream := feeds.NewStream(cfg.TickStreamURL)
		tickCh = stream.Subscribe()
		stream.Start()
		stopFeed = stream.Stop
	} else {
		poller := feeds.NewPoller(executor, cfg.QuoteCurrency, cfg.PollInterval, cfg.MarketRefresh)
		tickCh = poller.Subscribe()
		poller.Start()
		stopFeed = poller.Stop
	}

	engine.Start(tickCh, cfg.BalanceRefresh)

	// HTTP control surface
	srv := server.New(cfg.HTTPAddr, engine)
	srv.Start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}
	if tg != nil {
		tg.Stop()
	}
	stopFeed()
	engine.Stop()
}
