package ledger

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"perp_trading/internal/models"

	"github.com/google/uuid"
)

// Ledger owns the single position slot, the trade log and the paper balance.
// All mutations are all-or-nothing: a rejected open/close leaves every field
// untouched.
type Ledger struct {
	mu        sync.RWMutex
	balance   float64
	feeRate   float64
	totalFees float64
	entryFee  float64 // fee charged for the currently open position
	position  models.Position
	trades    []models.Trade
}

// New creates a ledger with a flat position and the given paper balance.
func New(initialBalance, feeRate float64) *Ledger {
	return &Ledger{
		balance:  initialBalance,
		feeRate:  feeRate,
		position: models.Position{Side: models.SideNone},
	}
}

// Open enters a position. Fails before any mutation when a position is
// already open or a parameter is out of range.
func (l *Ledger) Open(side string, price, size float64, leverage int, at time.Time) (models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.position.IsOpen() {
		return models.Position{}, fmt.Errorf("%w: %s position already open", models.ErrInvalidState, l.position.Side)
	}
	if side != models.SideLong && side != models.SideShort {
		return models.Position{}, fmt.Errorf("%w: side must be LONG or SHORT, got %q", models.ErrInvalidParameter, side)
	}
	if price <= 0 {
		return models.Position{}, fmt.Errorf("%w: price must be positive, got %f", models.ErrInvalidParameter, price)
	}
	if size <= 0 {
		return models.Position{}, fmt.Errorf("%w: size must be positive, got %f", models.ErrInvalidParameter, size)
	}
	if leverage < 1 || leverage > 20 {
		return models.Position{}, fmt.Errorf("%w: leverage must be within [1, 20], got %d", models.ErrInvalidParameter, leverage)
	}

	fee := l.feeRate * size
	l.balance -= fee
	l.totalFees += fee
	l.entryFee = fee
	l.position = models.Position{
		Side:       side,
		EntryPrice: price,
		Size:       size,
		Leverage:   leverage,
		OpenedAt:   at,
	}

	log.Printf("✅ Ledger: Opened %s at %.4f | Size: %.2f USDC | Leverage: %dx | Fee: %.4f",
		side, price, size, leverage, fee)

	return l.position, nil
}

// Close exits the open position at the given price and appends a trade
// record. The recorded RealizedPL is net of both the entry and exit fee.
func (l *Ledger) Close(price float64, reason string, at time.Time) (models.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.position.IsOpen() {
		return models.Trade{}, fmt.Errorf("%w: no open position to close", models.ErrInvalidState)
	}
	if price <= 0 {
		return models.Trade{}, fmt.Errorf("%w: price must be positive, got %f", models.ErrInvalidParameter, price)
	}

	pnl := l.pnlAt(price)
	exitFee := l.feeRate * l.position.Size
	feePaid := l.entryFee + exitFee

	trade := models.Trade{
		ID:          uuid.NewString(),
		Side:        l.position.Side,
		EntryPrice:  l.position.EntryPrice,
		ExitPrice:   price,
		Size:        l.position.Size,
		Leverage:    l.position.Leverage,
		FeePaid:     feePaid,
		RealizedPL:  pnl - feePaid,
		OpenedAt:    l.position.OpenedAt,
		ClosedAt:    at,
		Duration:    at.Sub(l.position.OpenedAt),
		CloseReason: reason,
	}

	l.balance += pnl - exitFee
	l.totalFees += exitFee
	l.entryFee = 0
	l.trades = append(l.trades, trade)
	l.position = models.Position{Side: models.SideNone}

	log.Printf("🎯 Ledger: Closed %s | %.4f → %.4f | P&L: %.2f USDC | Reason: %s",
		trade.Side, trade.EntryPrice, trade.ExitPrice, trade.RealizedPL, reason)

	return trade, nil
}

// UnrealizedPnL marks the open position to the given price, fees excluded.
func (l *Ledger) UnrealizedPnL(price float64) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.position.IsOpen() {
		return 0, fmt.Errorf("%w: no open position", models.ErrInvalidState)
	}
	return l.pnlAt(price), nil
}

// CheckLiquidation reports whether the unrealized loss has consumed the
// posted margin. It never closes the position itself.
func (l *Ledger) CheckLiquidation(price float64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.position.IsOpen() {
		return false
	}
	return l.pnlAt(price) <= -l.position.Size
}

// LiquidationPrice returns the price at which the open position gets
// liquidated, 0 when flat.
func (l *Ledger) LiquidationPrice() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.position.IsOpen() {
		return 0
	}
	move := l.position.EntryPrice / float64(l.position.Leverage)
	if l.position.Side == models.SideLong {
		return l.position.EntryPrice - move
	}
	return l.position.EntryPrice + move
}

// Position returns a copy of the current position slot.
func (l *Ledger) Position() models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.position
}

// Trades returns a copy of the trade log, ordered by close time.
func (l *Ledger) Trades() []models.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trades := make([]models.Trade, len(l.trades))
	copy(trades, l.trades)
	return trades
}

// Balance returns the paper balance (fees deducted, realized PnL applied).
func (l *Ledger) Balance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// TotalFees returns the sum of every fee charged so far.
func (l *Ledger) TotalFees() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalFees
}

// Equity returns balance plus the unrealized PnL at the given price.
func (l *Ledger) Equity(price float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.position.IsOpen() || price <= 0 {
		return l.balance
	}
	return l.balance + l.pnlAt(price)
}

// SetFeeRate applies a new fee rate to future opens and closes.
func (l *Ledger) SetFeeRate(rate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeRate = rate
}

// Stats aggregates the trade log into trading statistics.
func (l *Ledger) Stats(price float64) models.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := models.Stats{
		TotalTrades: len(l.trades),
		TotalFees:   l.totalFees,
		Balance:     l.balance,
		Equity:      l.balance,
	}
	if l.position.IsOpen() && price > 0 {
		stats.Equity += l.pnlAt(price)
	}

	var grossWin, grossLoss float64
	for _, t := range l.trades {
		stats.RealizedPL += t.RealizedPL
		if t.RealizedPL > 0 {
			stats.ProfitableTrades++
			grossWin += t.RealizedPL
		} else {
			stats.LosingTrades++
			grossLoss += math.Abs(t.RealizedPL)
		}
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.ProfitableTrades) / float64(stats.TotalTrades) * 100
		stats.AvgTrade = stats.RealizedPL / float64(stats.TotalTrades)
	}
	if stats.ProfitableTrades > 0 {
		stats.AvgWin = grossWin / float64(stats.ProfitableTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AvgLoss = -grossLoss / float64(stats.LosingTrades)
	}
	if grossLoss > 0 {
		stats.ProfitFactor = grossWin / grossLoss
	}

	return stats
}

// Reset wipes the position, trade log and fees, restoring the balance.
func (l *Ledger) Reset(balance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = balance
	l.totalFees = 0
	l.entryFee = 0
	l.position = models.Position{Side: models.SideNone}
	l.trades = nil

	log.Printf("♻️ Ledger: Reset | Balance: %.2f USDC", balance)
}

// pnlAt computes the leveraged PnL of the open position at the given price.
// Callers must hold the lock.
func (l *Ledger) pnlAt(price float64) float64 {
	notional := l.position.Size * float64(l.position.Leverage)
	if l.position.Side == models.SideLong {
		return notional * (price - l.position.EntryPrice) / l.position.EntryPrice
	}
	return notional * (l.position.EntryPrice - price) / l.position.EntryPrice
}
