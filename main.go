package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"perp_trading/config"
	"perp_trading/internal/engine"
	"perp_trading/internal/feed"
	"perp_trading/internal/ledger"
	"perp_trading/internal/telegram"
	"perp_trading/internal/web"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("🚀 Starting perp paper trading...")

	cfg := config.Load()

	var priceFeed feed.PriceFeed
	switch cfg.FeedProvider {
	case config.FeedBinance:
		priceFeed = feed.NewBinanceFeed(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.FeedSymbol)
	default:
		priceFeed = feed.NewJupiterFeed()
	}
	priceFeed = feed.NewRetryFeed(priceFeed, cfg.FeedRetries)
	log.Printf("💹 Price feed: %s, poll every %s", priceFeed.Name(), cfg.PollInterval)

	led := ledger.New(cfg.InitialBalance, cfg.Strategy.FeeRate)
	tradingEngine := engine.NewTradingEngine(priceFeed, led, cfg)

	// Telegram is optional: without a token the simulator runs web-only.
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, cfg.AuthorizedUserID, tradingEngine)
		if err != nil {
			log.Fatalf("Failed to create Telegram bot: %v", err)
		}
		tradingEngine.SetCallbacks(bot.SendTradeOpen, bot.SendTradeClose, bot.SendNotice)
		go bot.Start()
		log.Println("📱 Telegram bot is ready")
	} else {
		log.Println("📱 Telegram disabled, no token configured")
	}

	webServer := web.NewServer(tradingEngine, cfg.Port)
	webServer.Start()

	if cfg.AutoStart {
		tradingEngine.Start()
	}

	log.Println("✅ All systems initialized")
	log.Printf("🌐 Web dashboard: http://localhost:%s", cfg.Port)
	if !cfg.AutoStart {
		log.Println("⏸️ Automation is stopped. Start it from the dashboard or Telegram.")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down...")
	tradingEngine.Stop()
	log.Println("👋 Goodbye!")
}
