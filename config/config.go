package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"perp_trading/internal/models"

	"github.com/joho/godotenv"
)

type FeedProvider string

const (
	FeedJupiter FeedProvider = "JUPITER"
	FeedBinance FeedProvider = "BINANCE"
)

type Config struct {
	TelegramToken    string
	AuthorizedUserID int64
	Port             string
	FeedProvider     FeedProvider
	FeedSymbol       string // Binance feed only
	BinanceAPIKey    string
	BinanceSecretKey string
	PollInterval     time.Duration
	FeedRetries      int
	MaxFeedErrors    int
	HistoryLimit     int
	InitialBalance   float64
	AutoStart        bool
	Strategy         models.StrategyConfig
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	providerStr := os.Getenv("FEED_PROVIDER")
	provider := FeedJupiter // Default to Jupiter, works without API keys
	if providerStr == "BINANCE" {
		provider = FeedBinance
	}

	symbol := os.Getenv("FEED_SYMBOL")
	if symbol == "" {
		symbol = "SOLUSDT"
	}

	// Telegram is optional; the ID is only required together with a token.
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	var userID int64
	if token != "" {
		id, err := strconv.ParseInt(os.Getenv("AUTHORIZED_USER_ID"), 10, 64)
		if err != nil {
			log.Fatal("Invalid AUTHORIZED_USER_ID")
		}
		userID = id
	}

	pollSec := 30 // seconds between price polls
	if v := os.Getenv("POLL_INTERVAL_SEC"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			pollSec = val
		}
	}

	feedRetries := 3
	if v := os.Getenv("FEED_RETRIES"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			feedRetries = val
		}
	}

	maxFeedErrors := 10 // consecutive failures before automation stops
	if v := os.Getenv("MAX_FEED_ERRORS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			maxFeedErrors = val
		}
	}

	historyLimit := 1000
	if v := os.Getenv("HISTORY_LIMIT"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			historyLimit = val
		}
	}

	initialBalance := 1000.0 // USDC
	if v := os.Getenv("INITIAL_BALANCE"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil && val > 0 {
			initialBalance = val
		}
	}

	lookback := 5
	if v := os.Getenv("LOOKBACK_PERIODS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			lookback = val
		}
	}

	threshold := 0.0005 // 0.05% move over the window
	if v := os.Getenv("TREND_THRESHOLD"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = val
		}
	}

	positionSize := 100.0 // USDC margin per position
	if v := os.Getenv("POSITION_SIZE"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			positionSize = val
		}
	}

	leverage := 5
	if v := os.Getenv("LEVERAGE"); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			leverage = val
		}
	}

	feeRate := 0.001 // 0.1% per open and per close
	if v := os.Getenv("FEE_RATE"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			feeRate = val
		}
	}

	autoStart := false
	if v := os.Getenv("AUTO_START"); v != "" {
		if val, err := strconv.ParseBool(v); err == nil {
			autoStart = val
		}
	}

	cfg := &Config{
		TelegramToken:    token,
		AuthorizedUserID: userID,
		Port:             port,
		FeedProvider:     provider,
		FeedSymbol:       symbol,
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		PollInterval:     time.Duration(pollSec) * time.Second,
		FeedRetries:      feedRetries,
		MaxFeedErrors:    maxFeedErrors,
		HistoryLimit:     historyLimit,
		InitialBalance:   initialBalance,
		AutoStart:        autoStart,
		Strategy: models.StrategyConfig{
			LookbackPeriods: lookback,
			TrendThreshold:  threshold,
			PositionSize:    positionSize,
			Leverage:        leverage,
			FeeRate:         feeRate,
		},
	}

	if err := cfg.Strategy.Validate(); err != nil {
		log.Fatalf("Invalid strategy config: %v", err)
	}

	return cfg
}
