package bot

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nv4re/pumpbot/core"
	"github.com/nv4re/pumpbot/storage"
	"github.com/nv4re/pumpbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Implements core.Notifier. Delivery failures are swallowed: a dead Telegram
// connection must never touch the tick pipeline.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Controller is the engine surface the bot drives.
type Controller interface {
	State() core.State
	Stats() (core.Stats, types.ResultTotals)
	SetActive(active bool)
	SetMuted(muted bool)
	ClearBans()
	RunState() string
	Muted() bool
}

// TelegramBot manages the Telegram interface.
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	engine Controller
	db     *storage.Database // optional, for /trades
}

// NewTelegramBot creates the bot. db may be nil.
func NewTelegramBot(token string, chatID int64, engine Controller, db *storage.Database) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:    api,
		chatID: chatID,
		stopCh: make(chan struct{}),
		engine: engine,
		db:     db,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")
	return bot, nil
}

// Start begins listening for commands.
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot.
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS (core.Notifier)
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) NotifyExplosion(market string, rate, growth decimal.Decimal) {
	msg := fmt.Sprintf(`🚀 *EXPLOSION DETECTED*

📊 %s
💵 Rate: *%s*
📈 Growth: *%s%%*`,
		market, rate.String(), pct(growth))
	b.sendMarkdown(msg)
}

func (b *TelegramBot) NotifyOpened(market string, rate, amount decimal.Decimal) {
	msg := fmt.Sprintf(`✅ *POSITION OPENED*

📊 %s
💵 Rate: *%s*
📦 Amount: *%s*`,
		market, rate.String(), amount.String())
	b.sendMarkdown(msg)
}

func (b *TelegramBot) NotifyClosed(market string, rate, change decimal.Decimal, reason string) {
	emoji := "💰"
	if change.IsNegative() {
		emoji = "🛑"
	}
	msg := fmt.Sprintf(`%s *POSITION CLOSED*

📊 %s — %s
💵 Rate: *%s*
📈 Change: *%s%%*`,
		emoji, market, reason, rate.String(), pct(change))
	b.sendMarkdown(msg)
}

func (b *TelegramBot) NotifyRunState(state string) {
	emoji := "▶️"
	if state == core.RunStatePaused {
		emoji = "⏸️"
	}
	b.sendMarkdown(fmt.Sprintf("%s Run state: *%s*", emoji, state))
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != b.chatID {
				continue
			}
			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	switch strings.ToLower(msg.Command()) {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "positions":
		b.cmdPositions()
	case "trades":
		b.cmdTrades()
	case "bans":
		b.cmdBans()
	case "clearbans":
		b.engine.ClearBans()
		b.send("🧹 Bans cleared")
	case "pause":
		b.engine.SetActive(false)
		b.send("⏸️ Trading paused")
	case "resume":
		b.engine.SetActive(true)
		b.send("▶️ Trading resumed")
	case "mute":
		b.engine.SetMuted(true)
		b.send("🔕 Notifications muted")
	case "unmute":
		b.engine.SetMuted(false)
		b.send("🔔 Notifications unmuted")
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *PUMPBOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Engine status
💼 /positions — Open positions
📜 /trades — Last 10 closed trades
🚫 /bans — Banned markets
🧹 /clearbans — Clear all bans
⏸️ /pause — Pause opens
▶️ /resume — Resume opens
🔕 /mute — Mute notifications
🔔 /unmute — Unmute notifications
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	stats, totals := b.engine.Stats()

	winRate := float64(0)
	if stats.Wins+stats.Losses > 0 {
		winRate = float64(stats.Wins) / float64(stats.Wins+stats.Losses) * 100
	}

	state := "🟢 ACTIVE"
	if b.engine.RunState() == core.RunStatePaused {
		state = "⏸️ PAUSED"
	}
	muted := ""
	if b.engine.Muted() {
		muted = " 🔕"
	}

	msg := fmt.Sprintf(`📊 *ENGINE STATUS*
━━━━━━━━━━━━━━━━━━━━

%s%s
📊 Trades: *%d*
✅ Wins: *%d*  ❌ Losses: *%d*
📈 Win Rate: *%.1f%%*

━━━━━━━━━━━━━━━━━━━━
💵 Active: *%s%%*
💰 Finished: *%s%%*`,
		state, muted,
		stats.Trades, stats.Wins, stats.Losses, winRate,
		pct(totals.Active), pct(totals.Finished))

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPositions() {
	state := b.engine.State()
	if len(state.Orders) == 0 {
		b.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, order := range state.Orders {
		emoji := "📈"
		if order.Change.IsNegative() {
			emoji = "📉"
		}
		msg += fmt.Sprintf("%s *%s*\n💵 Open: %s | Change: %s%%\n\n",
			emoji, order.Market, order.OpenRate.Value.String(), pct(order.Change))
	}
	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdTrades() {
	if b.db == nil {
		b.send("❌ History not available")
		return
	}

	rows, err := b.db.RecentTrades(10)
	if err != nil {
		b.send("❌ Failed to fetch trades")
		return
	}
	if len(rows) == 0 {
		b.send("📭 No closed trades yet")
		return
	}

	msg := "📜 *RECENT TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, row := range rows {
		emoji := "💰"
		if row.Change.IsNegative() {
			emoji = "🛑"
		}
		msg += fmt.Sprintf("%s *%s* — %s\n%s → %s (%s%%)\n\n",
			emoji, row.Market, row.Reason,
			row.OpenRate.String(), row.CloseRate.String(), pct(row.Change))
	}
	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdBans() {
	state := b.engine.State()
	if len(state.Banned) == 0 {
		b.send("📭 No banned markets")
		return
	}

	msg := "🚫 *BANNED MARKETS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for market, entry := range state.Banned {
		msg += fmt.Sprintf("*%s* — count %d\n", market, entry.Count)
	}
	b.sendMarkdown(msg)
}

// ─── Send helpers ──────────────────────────────────────────────────────────────

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Debug().Err(err).Msg("Telegram send failed")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		log.Debug().Err(err).Msg("Telegram send failed")
	}
}

func pct(v decimal.Decimal) string {
	return v.Mul(decimal.NewFromInt(100)).StringFixed(2)
}
