package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"perp_trading/config"
	"perp_trading/internal/analysis"
	"perp_trading/internal/feed"
	"perp_trading/internal/ledger"
	"perp_trading/internal/models"
)

// TradingEngine drives the simulation: poll the feed, evaluate the trend,
// mutate the ledger. OnPriceTick is the only place position state changes,
// and every command from the web or telegram side serializes on the same
// mutex, so dashboard reads always see a consistent snapshot.
type TradingEngine struct {
	feed   feed.PriceFeed
	ledger *ledger.Ledger

	mu        sync.RWMutex
	cfg       models.StrategyConfig
	isRunning bool
	stopChan  chan struct{}

	history    []models.PriceTick
	lastTick   models.PriceTick
	feedErrors int

	pollInterval   time.Duration
	historyLimit   int
	maxFeedErrors  int
	initialBalance float64

	onOpen   func(models.Position)
	onClose  func(models.Trade)
	onNotice func(string)
}

func NewTradingEngine(pf feed.PriceFeed, led *ledger.Ledger, cfg *config.Config) *TradingEngine {
	historyLimit := cfg.HistoryLimit
	if historyLimit < 2*cfg.Strategy.LookbackPeriods {
		historyLimit = 2 * cfg.Strategy.LookbackPeriods
	}

	return &TradingEngine{
		feed:           pf,
		ledger:         led,
		cfg:            cfg.Strategy,
		stopChan:       make(chan struct{}),
		pollInterval:   cfg.PollInterval,
		historyLimit:   historyLimit,
		maxFeedErrors:  cfg.MaxFeedErrors,
		initialBalance: cfg.InitialBalance,
	}
}

func (e *TradingEngine) SetCallbacks(
	onOpen func(models.Position),
	onClose func(models.Trade),
	onNotice func(string),
) {
	e.onOpen = onOpen
	e.onClose = onClose
	e.onNotice = onNotice
}

// Start switches automation to RUNNING and launches the polling loop.
// No-op when already running.
func (e *TradingEngine) Start() {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = true
	e.stopChan = make(chan struct{})
	stop := e.stopChan
	e.mu.Unlock()

	log.Println("🚀 Trading Engine started")

	go e.runLoop(stop)
}

// Stop switches automation to STOPPED before the next tick is processed.
// The open position, history and trade log stay untouched. No-op when
// already stopped.
func (e *TradingEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isRunning {
		return
	}

	e.isRunning = false
	close(e.stopChan)
	log.Println("⏸️ Trading Engine stopped")
}

func (e *TradingEngine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

func (e *TradingEngine) runLoop(stop chan struct{}) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	// First cycle right away, the ticker covers the rest.
	e.cycle()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.cycle()
		}
	}
}

// PollNow triggers one poll cycle outside the regular cadence.
func (e *TradingEngine) PollNow() {
	log.Println("⚡ Manual poll triggered")
	go e.cycle()
}

// cycle fetches one price and feeds it into OnPriceTick. Feed failures skip
// the cycle and leave all trading state unchanged; too many in a row stop
// the automation so a dead feed cannot spin forever.
func (e *TradingEngine) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), e.pollInterval)
	defer cancel()

	tick, err := e.feed.GetPrice(ctx)
	if err != nil {
		e.mu.Lock()
		e.feedErrors++
		streak := e.feedErrors
		e.mu.Unlock()

		log.Printf("⚠️ Feed error (%d/%d): %v", streak, e.maxFeedErrors, err)
		if streak >= e.maxFeedErrors && e.IsRunning() {
			log.Printf("❌ %d consecutive feed errors, stopping automation", streak)
			e.Stop()
			e.notify(fmt.Sprintf("⚠️ Automation stopped after %d consecutive feed errors", streak))
		}
		return
	}

	if err := e.OnPriceTick(tick); err != nil {
		log.Printf("⚠️ Tick processing error: %v", err)
	}
}

// OnPriceTick appends the tick to the rolling history and, when automation
// is running, applies at most one ledger mutation: liquidation first, then
// strategy close, then strategy open. A reversal only closes; re-entry
// waits for a later cycle so a single tick never pays a double fee.
func (e *TradingEngine) OnPriceTick(tick models.PriceTick) error {
	if tick.Price <= 0 {
		return fmt.Errorf("%w: tick price must be positive, got %f", models.ErrInvalidParameter, tick.Price)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.appendHistory(tick)
	e.lastTick = tick
	e.feedErrors = 0

	if !e.isRunning {
		return nil
	}

	if e.ledger.CheckLiquidation(tick.Price) {
		trade, err := e.ledger.Close(tick.Price, models.CloseLiquidation, tick.Timestamp)
		if err != nil {
			return err
		}
		log.Printf("💥 Liquidated %s | %.4f → %.4f | Loss: %.2f USDC",
			trade.Side, trade.EntryPrice, trade.ExitPrice, trade.RealizedPL)
		e.dispatchClose(trade)
		return nil
	}

	snap := analysis.Evaluate(e.prices(), e.cfg.LookbackPeriods, e.cfg.TrendThreshold)
	pos := e.ledger.Position()

	if !pos.IsOpen() {
		switch snap.Signal {
		case models.SignalBullish:
			return e.openFromSignal(models.SideLong, snap, tick)
		case models.SignalBearish:
			return e.openFromSignal(models.SideShort, snap, tick)
		}
		return nil
	}

	reversal := (pos.Side == models.SideLong && snap.Signal == models.SignalBearish) ||
		(pos.Side == models.SideShort && snap.Signal == models.SignalBullish)
	if reversal {
		trade, err := e.ledger.Close(tick.Price, models.CloseStrategy, tick.Timestamp)
		if err != nil {
			return err
		}
		log.Printf("🔄 Trend reversal against %s (strength %+.4f)", trade.Side, snap.Strength)
		e.dispatchClose(trade)
	}
	return nil
}

func (e *TradingEngine) openFromSignal(side string, snap analysis.Snapshot, tick models.PriceTick) error {
	pos, err := e.ledger.Open(side, tick.Price, e.cfg.PositionSize, e.cfg.Leverage, tick.Timestamp)
	if err != nil {
		return err
	}
	log.Printf("📈 %s signal (strength %+.4f) → opened %s at %.4f", snap.Signal, snap.Strength, side, tick.Price)
	e.dispatchOpen(pos)
	return nil
}

// ManualOpen opens a position at the last seen price, in any automation
// state. Ledger errors pass through untouched.
func (e *TradingEngine) ManualOpen(side string) (models.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastTick.Price <= 0 {
		return models.Position{}, fmt.Errorf("%w: no price received yet", feed.ErrUnavailable)
	}

	pos, err := e.ledger.Open(side, e.lastTick.Price, e.cfg.PositionSize, e.cfg.Leverage, time.Now())
	if err != nil {
		return models.Position{}, err
	}
	e.dispatchOpen(pos)
	return pos, nil
}

// ManualClose closes the open position at the last seen price.
func (e *TradingEngine) ManualClose() (models.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastTick.Price <= 0 {
		return models.Trade{}, fmt.Errorf("%w: no price received yet", feed.ErrUnavailable)
	}

	trade, err := e.ledger.Close(e.lastTick.Price, models.CloseManual, time.Now())
	if err != nil {
		return models.Trade{}, err
	}
	e.dispatchClose(trade)
	return trade, nil
}

// UpdateConfig swaps the strategy parameters atomically. The next cycle
// already trades with the new values.
func (e *TradingEngine) UpdateConfig(cfg models.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cfg = cfg
	e.ledger.SetFeeRate(cfg.FeeRate)
	if e.historyLimit < 2*cfg.LookbackPeriods {
		e.historyLimit = 2 * cfg.LookbackPeriods
	}

	log.Printf("🔧 Strategy updated: lookback=%d threshold=%.4f size=%.2f leverage=%dx fee=%.4f",
		cfg.LookbackPeriods, cfg.TrendThreshold, cfg.PositionSize, cfg.Leverage, cfg.FeeRate)
	return nil
}

// Reset wipes the ledger and price history back to a fresh session.
func (e *TradingEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ledger.Reset(e.initialBalance)
	e.history = nil
	e.lastTick = models.PriceTick{}
	e.feedErrors = 0
}

// Status assembles a consistent point-in-time snapshot for dashboards.
func (e *TradingEngine) Status() models.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := analysis.Evaluate(e.prices(), e.cfg.LookbackPeriods, e.cfg.TrendThreshold)
	pos := e.ledger.Position()

	st := models.Status{
		Running:        e.isRunning,
		LastPrice:      e.lastTick.Price,
		LastTickAt:     e.lastTick.Timestamp,
		Position:       pos,
		Signal:         snap.Signal,
		SignalStrength: snap.Strength,
		Balance:        e.ledger.Balance(),
		Equity:         e.ledger.Equity(e.lastTick.Price),
		FeedErrors:     e.feedErrors,
		Config:         e.cfg,
	}
	if pos.IsOpen() && e.lastTick.Price > 0 {
		if pnl, err := e.ledger.UnrealizedPnL(e.lastTick.Price); err == nil {
			st.UnrealizedPL = pnl
		}
		st.LiquidationPrice = e.ledger.LiquidationPrice()
	}
	return st
}

// SignalState evaluates the trend on the current history.
func (e *TradingEngine) SignalState() analysis.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return analysis.Evaluate(e.prices(), e.cfg.LookbackPeriods, e.cfg.TrendThreshold)
}

// UnrealizedPnL marks the open position to the last seen price.
func (e *TradingEngine) UnrealizedPnL() (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.lastTick.Price <= 0 {
		return 0, fmt.Errorf("%w: no price received yet", feed.ErrUnavailable)
	}
	return e.ledger.UnrealizedPnL(e.lastTick.Price)
}

func (e *TradingEngine) GetTrades() []models.Trade {
	return e.ledger.Trades()
}

func (e *TradingEngine) GetStats() models.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Stats(e.lastTick.Price)
}

func (e *TradingEngine) GetConfig() models.StrategyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// History returns a copy of the rolling price history for charting.
func (e *TradingEngine) History() []models.PriceTick {
	e.mu.RLock()
	defer e.mu.RUnlock()

	history := make([]models.PriceTick, len(e.history))
	copy(history, e.history)
	return history
}

// appendHistory grows the rolling buffer and trims it to half the limit
// once the limit is exceeded, keeping at least one full lookback window.
// Callers must hold the lock.
func (e *TradingEngine) appendHistory(tick models.PriceTick) {
	e.history = append(e.history, tick)
	if len(e.history) > e.historyLimit {
		keep := e.historyLimit / 2
		if keep < e.cfg.LookbackPeriods {
			keep = e.cfg.LookbackPeriods
		}
		trimmed := make([]models.PriceTick, keep)
		copy(trimmed, e.history[len(e.history)-keep:])
		e.history = trimmed
	}
}

// prices flattens the history for the signal generator. Callers must hold
// the lock.
func (e *TradingEngine) prices() []float64 {
	prices := make([]float64, len(e.history))
	for i, t := range e.history {
		prices[i] = t.Price
	}
	return prices
}

// Callbacks run on their own goroutines so a slow telegram send can never
// stall a trading cycle.
func (e *TradingEngine) dispatchOpen(pos models.Position) {
	if e.onOpen != nil {
		go e.onOpen(pos)
	}
}

func (e *TradingEngine) dispatchClose(trade models.Trade) {
	if e.onClose != nil {
		go e.onClose(trade)
	}
}

func (e *TradingEngine) notify(msg string) {
	if e.onNotice != nil {
		go e.onNotice(msg)
	}
}
