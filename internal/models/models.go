package models

import (
	"errors"
	"fmt"
	"time"
)

// Position sides. SideNone is the flat state, not an absent position.
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
	SideNone  = "NONE"
)

// Close reasons recorded in the trade log.
const (
	CloseManual      = "MANUAL"
	CloseLiquidation = "LIQUIDATION"
	CloseStrategy    = "STRATEGY"
)

// Trend signals produced by the analysis package.
const (
	SignalBullish = "BULLISH"
	SignalBearish = "BEARISH"
	SignalNeutral = "NEUTRAL"
)

// Error taxonomy shared across packages.
var (
	// ErrInvalidState marks an operation that is illegal in the current
	// position or automation state (open while open, close while flat).
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidParameter marks a rejected input value; nothing is mutated
	// when it is returned.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// PriceTick is one observation from the price feed
type PriceTick struct {
	Timestamp time.Time
	Price     float64
}

// Position represents the single position slot
type Position struct {
	Side       string // "LONG", "SHORT" or "NONE"
	EntryPrice float64
	Size       float64 // margin in USDC
	Leverage   int
	OpenedAt   time.Time
}

// IsOpen reports whether the slot holds a live position.
func (p Position) IsOpen() bool {
	return p.Side == SideLong || p.Side == SideShort
}

// Trade represents a closed trade
type Trade struct {
	ID          string
	Side        string
	EntryPrice  float64
	ExitPrice   float64
	Size        float64
	Leverage    int
	FeePaid     float64 // entry fee + exit fee
	RealizedPL  float64 // net of FeePaid
	OpenedAt    time.Time
	ClosedAt    time.Time
	Duration    time.Duration
	CloseReason string // "MANUAL", "LIQUIDATION" or "STRATEGY"
}

// StrategyConfig holds the tunable trading parameters
type StrategyConfig struct {
	LookbackPeriods int
	TrendThreshold  float64
	PositionSize    float64
	Leverage        int
	FeeRate         float64
}

// Validate rejects malformed configs before they reach the engine.
func (c StrategyConfig) Validate() error {
	if c.LookbackPeriods < 2 {
		return fmt.Errorf("%w: lookback_periods must be at least 2, got %d", ErrInvalidParameter, c.LookbackPeriods)
	}
	if c.TrendThreshold < 0 {
		return fmt.Errorf("%w: trend_threshold must be >= 0, got %f", ErrInvalidParameter, c.TrendThreshold)
	}
	if c.PositionSize <= 0 {
		return fmt.Errorf("%w: position_size must be positive, got %f", ErrInvalidParameter, c.PositionSize)
	}
	if c.Leverage < 1 || c.Leverage > 20 {
		return fmt.Errorf("%w: leverage must be within [1, 20], got %d", ErrInvalidParameter, c.Leverage)
	}
	if c.FeeRate < 0 {
		return fmt.Errorf("%w: fee_rate must be >= 0, got %f", ErrInvalidParameter, c.FeeRate)
	}
	return nil
}

// Stats represents trading statistics
type Stats struct {
	TotalTrades      int
	ProfitableTrades int
	LosingTrades     int
	RealizedPL       float64
	TotalFees        float64
	WinRate          float64
	AvgTrade         float64
	AvgWin           float64
	AvgLoss          float64
	ProfitFactor     float64
	Balance          float64
	Equity           float64
}

// Status is a point-in-time snapshot for the dashboard and telegram bot
type Status struct {
	Running          bool
	LastPrice        float64
	LastTickAt       time.Time
	Position         Position
	UnrealizedPL     float64 // 0 when flat
	LiquidationPrice float64 // 0 when flat
	Signal           string
	SignalStrength   float64
	Balance          float64
	Equity           float64
	FeedErrors       int
	Config           StrategyConfig
}
