package telegram

import (
	"fmt"
	"log"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"perp_trading/internal/engine"
	"perp_trading/internal/models"
)

type Bot struct {
	bot          *tele.Bot
	engine       *engine.TradingEngine
	authorizedID int64
	startTime    time.Time
}

func NewBot(token string, authorizedID int64, engine *engine.TradingEngine) (*Bot, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		bot:          b,
		engine:       engine,
		authorizedID: authorizedID,
		startTime:    time.Now(),
	}

	bot.setupHandlers()
	return bot, nil
}

func (b *Bot) Start() {
	log.Println("📱 Telegram bot started")
	b.bot.Start()
}

func (b *Bot) setupHandlers() {
	// Middleware for authorization
	b.bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender().ID != b.authorizedID {
				return c.Send("⛔ Unauthorized")
			}
			return next(c)
		}
	})

	// Commands
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/status", b.handleStatus)
	b.bot.Handle("/trades", b.handleTrades)
	b.bot.Handle("/stats", b.handleStats)

	// Buttons
	b.bot.Handle(&btnStartTrading, b.handleStartTrading)
	b.bot.Handle(&btnStopTrading, b.handleStopTrading)
	b.bot.Handle(&btnStatus, b.handleStatus)
	b.bot.Handle(&btnTrades, b.handleTrades)
	b.bot.Handle(&btnStats, b.handleStats)
	b.bot.Handle(&btnRefresh, b.handleStatus)
	b.bot.Handle(&btnLong, b.handleOpenLong)
	b.bot.Handle(&btnShort, b.handleOpenShort)
	b.bot.Handle(&btnClose, b.handleClose)
	b.bot.Handle(&btnReset, b.handleReset)
	b.bot.Handle(&btnBack, b.handleStart)
}

var (
	btnStartTrading = tele.Btn{Text: "▶️ Старт торговли", Unique: "start_trading"}
	btnStopTrading  = tele.Btn{Text: "⏸️ Остановить", Unique: "stop_trading"}
	btnStatus       = tele.Btn{Text: "📊 Статус", Unique: "status"}
	btnTrades       = tele.Btn{Text: "📋 Сделки", Unique: "trades"}
	btnStats        = tele.Btn{Text: "📈 Статистика", Unique: "stats"}
	btnRefresh      = tele.Btn{Text: "🔄 Обновить", Unique: "refresh"}
	btnLong         = tele.Btn{Text: "🟢 Лонг", Unique: "open_long"}
	btnShort        = tele.Btn{Text: "🔴 Шорт", Unique: "open_short"}
	btnClose        = tele.Btn{Text: "❌ Закрыть позицию", Unique: "close_position"}
	btnReset        = tele.Btn{Text: "♻️ Сброс", Unique: "reset"}
	btnBack         = tele.Btn{Text: "🔙 Назад", Unique: "back"}
)

func (b *Bot) handleStart(c tele.Context) error {
	menu := &tele.ReplyMarkup{}

	var startBtn tele.Btn
	if b.engine.IsRunning() {
		startBtn = btnStopTrading
	} else {
		startBtn = btnStartTrading
	}

	menu.Inline(
		menu.Row(startBtn),
		menu.Row(btnStatus, btnTrades),
		menu.Row(btnLong, btnShort),
		menu.Row(btnClose),
		menu.Row(btnStats, btnReset),
	)

	status := "⏸️ Остановлен"
	if b.engine.IsRunning() {
		status = "▶️ Активен"
	}

	msg := fmt.Sprintf(`🤖 *Перп-симулятор SOL/USDC*

🔄 Статус: %s

Выберите действие:`, status)

	return c.Send(msg, menu, tele.ModeMarkdown)
}

func (b *Bot) handleStartTrading(c tele.Context) error {
	b.engine.Start()
	return b.handleStart(c)
}

func (b *Bot) handleStopTrading(c tele.Context) error {
	b.engine.Stop()
	return b.handleStart(c)
}

func (b *Bot) handleStatus(c tele.Context) error {
	st := b.engine.Status()

	status := "⏸️ Остановлен"
	if st.Running {
		status = "▶️ Активен"
	}

	signal := "➖ NEUTRAL"
	switch st.Signal {
	case models.SignalBullish:
		signal = fmt.Sprintf("📈 BULLISH (%+.2f%%)", st.SignalStrength*100)
	case models.SignalBearish:
		signal = fmt.Sprintf("📉 BEARISH (%+.2f%%)", st.SignalStrength*100)
	}

	price := "нет данных"
	if st.LastPrice > 0 {
		price = fmt.Sprintf("%.4f USDC", st.LastPrice)
	}

	position := "📭 Нет открытой позиции"
	if st.Position.IsOpen() {
		sideEmoji := "📈"
		if st.Position.Side == models.SideShort {
			sideEmoji = "📉"
		}
		position = fmt.Sprintf(`%s *%s %dx* | %.2f USDC
   📊 Вход: %.4f
   💎 P&L: %+.2f USDC
   💥 Ликвидация: %.4f`,
			sideEmoji,
			st.Position.Side,
			st.Position.Leverage,
			st.Position.Size,
			st.Position.EntryPrice,
			st.UnrealizedPL,
			st.LiquidationPrice,
		)
	}

	msg := fmt.Sprintf(`📊 *Статус*

🔄 Статус: %s
💹 Цена: %s
🎯 Сигнал: %s
💰 Баланс: %.2f USDC
💎 Equity: %.2f USDC

%s

🕐 Обновлено: %s`,
		status,
		price,
		signal,
		st.Balance,
		st.Equity,
		position,
		time.Now().Format("15:04:05"),
	)

	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnRefresh, btnTrades),
		menu.Row(btnBack),
	)

	return c.Send(msg, menu, tele.ModeMarkdown)
}

func (b *Bot) handleTrades(c tele.Context) error {
	trades := b.engine.GetTrades()

	if len(trades) == 0 {
		menu := &tele.ReplyMarkup{}
		menu.Inline(menu.Row(btnBack))
		return c.Send("📋 Нет закрытых сделок", menu)
	}

	// Newest first, at most ten per message.
	shown := len(trades)
	if shown > 10 {
		shown = 10
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 *Сделки (последние %d из %d)*\n\n", shown, len(trades)))

	for i := len(trades) - 1; i >= len(trades)-shown; i-- {
		t := trades[i]
		emoji := "🟢"
		if t.RealizedPL < 0 {
			emoji = "🔴"
		}

		sb.WriteString(fmt.Sprintf(`%s *%s %dx* | %.2f USDC (%s)
   📊 %.4f → %.4f
   💰 P&L: %+.2f USDC | ⏱️ %s

`, emoji, t.Side, t.Leverage, t.Size, closeReasonLabel(t.CloseReason), t.EntryPrice, t.ExitPrice, t.RealizedPL, formatDuration(t.Duration)))
	}

	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnStats),
		menu.Row(btnBack),
	)

	return c.Send(sb.String(), menu, tele.ModeMarkdown)
}

func (b *Bot) handleStats(c tele.Context) error {
	stats := b.engine.GetStats()

	status := "⏸️ Остановлен"
	if b.engine.IsRunning() {
		status = "▶️ Активен"
	}

	plEmoji := "🟢"
	if stats.RealizedPL < 0 {
		plEmoji = "🔴"
	} else if stats.RealizedPL == 0 {
		plEmoji = "🟡"
	}

	uptime := time.Since(b.startTime)

	msg := fmt.Sprintf(`📈 *Торговая статистика*

🔄 Статус: %s
💰 Баланс: %.2f USDC
💎 Equity: %.2f USDC
📅 Сделок всего: %d
🏆 Прибыльных: %d
📉 Убыточных: %d
📊 Винрейт: %.1f%%
💰 Реализованный P&L: %s %+.2f USDC
💸 Комиссии: %.2f USDC
⚖️ Профит-фактор: %.2f

🕐 Время работы: %s
🕐 Обновлено: %s`,
		status,
		stats.Balance,
		stats.Equity,
		stats.TotalTrades,
		stats.ProfitableTrades,
		stats.LosingTrades,
		stats.WinRate,
		plEmoji,
		stats.RealizedPL,
		stats.TotalFees,
		stats.ProfitFactor,
		formatUptime(uptime),
		time.Now().Format("15:04:05"),
	)

	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnRefresh, btnTrades),
		menu.Row(btnBack),
	)

	return c.Send(msg, menu, tele.ModeMarkdown)
}

func (b *Bot) handleOpenLong(c tele.Context) error {
	if _, err := b.engine.ManualOpen(models.SideLong); err != nil {
		return c.Send("⚠️ Не удалось открыть лонг: " + err.Error())
	}
	return b.handleStatus(c)
}

func (b *Bot) handleOpenShort(c tele.Context) error {
	if _, err := b.engine.ManualOpen(models.SideShort); err != nil {
		return c.Send("⚠️ Не удалось открыть шорт: " + err.Error())
	}
	return b.handleStatus(c)
}

func (b *Bot) handleClose(c tele.Context) error {
	if _, err := b.engine.ManualClose(); err != nil {
		return c.Send("⚠️ Не удалось закрыть позицию: " + err.Error())
	}
	return c.Send("✅ Позиция закрыта")
}

func (b *Bot) handleReset(c tele.Context) error {
	b.engine.Reset()
	return c.Send("♻️ Сессия сброшена: баланс восстановлен, история очищена")
}

func (b *Bot) SendTradeOpen(position models.Position) {
	sideEmoji := "📈"
	if position.Side == models.SideShort {
		sideEmoji = "📉"
	}

	msg := fmt.Sprintf(`✅ *ПОЗИЦИЯ ОТКРЫТА*

%s *%s %dx*
💰 Размер: %.2f USDC
📊 Вход: %.4f

⏰ %s`,
		sideEmoji,
		position.Side,
		position.Leverage,
		position.Size,
		position.EntryPrice,
		time.Now().Format("15:04:05"),
	)

	b.bot.Send(&tele.User{ID: b.authorizedID}, msg, tele.ModeMarkdown)
}

func (b *Bot) SendTradeClose(trade models.Trade) {
	emoji := "✅"
	plEmoji := "💚"
	if trade.RealizedPL < 0 {
		emoji = "⚠️"
		plEmoji = "❤️"
	}
	if trade.CloseReason == models.CloseLiquidation {
		emoji = "💥"
	}

	sideEmoji := "📈"
	if trade.Side == models.SideShort {
		sideEmoji = "📉"
	}

	plPercent := 0.0
	if trade.Size > 0 {
		plPercent = trade.RealizedPL / trade.Size * 100
	}

	msg := fmt.Sprintf(`%s *ПОЗИЦИЯ ЗАКРЫТА*

%s *%s %dx* закрыт (%s)
%s P&L: %+.2f USDC (%+.2f%%)
⏱️ Длительность: %s
📊 %.4f → %.4f
💼 Новый баланс: %.2f USDC

⏰ %s`,
		emoji,
		sideEmoji,
		trade.Side,
		trade.Leverage,
		closeReasonLabel(trade.CloseReason),
		plEmoji,
		trade.RealizedPL,
		plPercent,
		formatDuration(trade.Duration),
		trade.EntryPrice,
		trade.ExitPrice,
		b.engine.Status().Balance,
		time.Now().Format("15:04:05"),
	)

	b.bot.Send(&tele.User{ID: b.authorizedID}, msg, tele.ModeMarkdown)
}

func (b *Bot) SendNotice(message string) {
	b.bot.Send(&tele.User{ID: b.authorizedID}, message)
}

func closeReasonLabel(reason string) string {
	switch reason {
	case models.CloseLiquidation:
		return "ликвидация"
	case models.CloseStrategy:
		return "стратегия"
	default:
		return "вручную"
	}
}

func formatUptime(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dч %dмин", hours, minutes)
	}
	return fmt.Sprintf("%dмин", minutes)
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if minutes > 0 {
		return fmt.Sprintf("%dмин %dс", minutes, seconds)
	}
	return fmt.Sprintf("%dс", seconds)
}
