package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"perp_trading/internal/models"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPnLFormula(t *testing.T) {
	l := New(1000, 0.001)
	if _, err := l.Open(models.SideLong, 100, 50, 10, testTime); err != nil {
		t.Fatalf("open long: %v", err)
	}

	// 50 USDC margin at 10x is 500 notional, +10% move => +500
	pnl, err := l.UnrealizedPnL(110)
	if err != nil {
		t.Fatalf("unrealized pnl: %v", err)
	}
	if !almostEqual(pnl, 500) {
		t.Fatalf("long pnl = %f, want 500", pnl)
	}

	if _, err := l.Close(110, models.CloseManual, testTime.Add(time.Minute)); err != nil {
		t.Fatalf("close long: %v", err)
	}

	if _, err := l.Open(models.SideShort, 100, 50, 10, testTime); err != nil {
		t.Fatalf("open short: %v", err)
	}
	pnl, err = l.UnrealizedPnL(90)
	if err != nil {
		t.Fatalf("unrealized pnl: %v", err)
	}
	if !almostEqual(pnl, 500) {
		t.Fatalf("short pnl = %f, want 500", pnl)
	}
}

func TestUnrealizedPnLWhenFlat(t *testing.T) {
	l := New(1000, 0.001)
	if _, err := l.UnrealizedPnL(100); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestFeeRoundTrip(t *testing.T) {
	l := New(1000, 0.001)
	if _, err := l.Open(models.SideLong, 100, 1000, 1, testTime); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Zero net price movement: the only PnL is the two fee charges.
	trade, err := l.Close(100, models.CloseManual, testTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if !almostEqual(trade.FeePaid, 2) {
		t.Fatalf("fee paid = %f, want 2", trade.FeePaid)
	}
	if !almostEqual(trade.RealizedPL, -2) {
		t.Fatalf("realized pnl = %f, want -2", trade.RealizedPL)
	}
	if !almostEqual(l.Balance(), 998) {
		t.Fatalf("balance = %f, want 998", l.Balance())
	}
	if !almostEqual(l.TotalFees(), 2) {
		t.Fatalf("total fees = %f, want 2", l.TotalFees())
	}
}

func TestLiquidationBoundary(t *testing.T) {
	l := New(1000, 0.001)
	if _, err := l.Open(models.SideLong, 100, 100, 10, testTime); err != nil {
		t.Fatalf("open: %v", err)
	}

	if lp := l.LiquidationPrice(); !almostEqual(lp, 90) {
		t.Fatalf("liquidation price = %f, want 90", lp)
	}
	if !l.CheckLiquidation(89.99) {
		t.Fatal("expected liquidatable at 89.99")
	}
	if l.CheckLiquidation(90.01) {
		t.Fatal("not liquidatable at 90.01")
	}

	if _, err := l.Close(95, models.CloseManual, testTime.Add(time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := l.Open(models.SideShort, 100, 100, 10, testTime); err != nil {
		t.Fatalf("open short: %v", err)
	}
	if lp := l.LiquidationPrice(); !almostEqual(lp, 110) {
		t.Fatalf("short liquidation price = %f, want 110", lp)
	}
	if !l.CheckLiquidation(110.01) {
		t.Fatal("expected short liquidatable at 110.01")
	}
	if l.CheckLiquidation(109.99) {
		t.Fatal("short not liquidatable at 109.99")
	}
}

func TestCheckLiquidationWhenFlat(t *testing.T) {
	l := New(1000, 0.001)
	if l.CheckLiquidation(0.01) {
		t.Fatal("flat ledger must never be liquidatable")
	}
	if lp := l.LiquidationPrice(); lp != 0 {
		t.Fatalf("liquidation price when flat = %f, want 0", lp)
	}
}

func TestLiquidationGapLoss(t *testing.T) {
	l := New(1000, 0.001)
	if _, err := l.Open(models.SideLong, 100, 100, 10, testTime); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Liquidation level is 90 but the tick gapped straight to 85. The
	// close settles at the observed price, so the loss exceeds the margin.
	if !l.CheckLiquidation(85) {
		t.Fatal("expected liquidatable at 85")
	}
	trade, err := l.Close(85, models.CloseLiquidation, testTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if trade.CloseReason != models.CloseLiquidation {
		t.Fatalf("close reason = %s, want LIQUIDATION", trade.CloseReason)
	}
	if !almostEqual(trade.RealizedPL, -150.2) {
		t.Fatalf("realized pnl = %f, want -150.2", trade.RealizedPL)
	}
	if !almostEqual(l.Balance(), 849.8) {
		t.Fatalf("balance = %f, want 849.8", l.Balance())
	}
}

func TestOpenValidation(t *testing.T) {
	cases := []struct {
		name     string
		side     string
		price    float64
		size     float64
		leverage int
	}{
		{"zero size", models.SideLong, 100, 0, 5},
		{"negative size", models.SideLong, 100, -10, 5},
		{"zero leverage", models.SideLong, 100, 100, 0},
		{"leverage too high", models.SideLong, 100, 100, 21},
		{"bad side", "UP", 100, 100, 5},
		{"flat side", models.SideNone, 100, 100, 5},
		{"zero price", models.SideLong, 0, 100, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New(1000, 0.001)
			_, err := l.Open(tc.side, tc.price, tc.size, tc.leverage, testTime)
			if !errors.Is(err, models.ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			// Rejected opens must not charge fees or leave state behind.
			if l.Position().IsOpen() {
				t.Fatal("position opened despite invalid parameters")
			}
			if !almostEqual(l.Balance(), 1000) {
				t.Fatalf("balance mutated on rejected open: %f", l.Balance())
			}
		})
	}
}

func TestOpenWhileOpen(t *testing.T) {
	l := New(1000, 0.001)
	if _, err := l.Open(models.SideLong, 100, 100, 5, testTime); err != nil {
		t.Fatalf("first open: %v", err)
	}

	_, err := l.Open(models.SideShort, 105, 100, 5, testTime)
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	pos := l.Position()
	if pos.Side != models.SideLong || !almostEqual(pos.EntryPrice, 100) {
		t.Fatalf("position mutated by rejected open: %+v", pos)
	}
}

func TestCloseWhileFlat(t *testing.T) {
	l := New(1000, 0.001)
	_, err := l.Close(100, models.CloseManual, testTime)
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if len(l.Trades()) != 0 {
		t.Fatal("trade log mutated by rejected close")
	}
}

func TestBalanceConservation(t *testing.T) {
	l := New(1000, 0.001)

	moves := []struct {
		side  string
		entry float64
		exit  float64
	}{
		{models.SideLong, 100, 104},
		{models.SideShort, 104, 101},
		{models.SideLong, 101, 99},
		{models.SideShort, 99, 103},
	}
	for _, m := range moves {
		if _, err := l.Open(m.side, m.entry, 50, 5, testTime); err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, err := l.Close(m.exit, models.CloseStrategy, testTime.Add(time.Minute)); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	var sum float64
	for _, tr := range l.Trades() {
		sum += tr.RealizedPL
	}
	if !almostEqual(l.Balance()-1000, sum) {
		t.Fatalf("balance drift: delta %f vs realized sum %f", l.Balance()-1000, sum)
	}
}

func TestStats(t *testing.T) {
	l := New(1000, 0.001)

	// Two winners, one loser.
	trips := []struct {
		side  string
		entry float64
		exit  float64
	}{
		{models.SideLong, 100, 110},
		{models.SideLong, 110, 120},
		{models.SideShort, 120, 125},
	}
	for _, tr := range trips {
		if _, err := l.Open(tr.side, tr.entry, 100, 2, testTime); err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, err := l.Close(tr.exit, models.CloseStrategy, testTime.Add(time.Minute)); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	stats := l.Stats(0)
	if stats.TotalTrades != 3 {
		t.Fatalf("total trades = %d, want 3", stats.TotalTrades)
	}
	if stats.ProfitableTrades != 2 || stats.LosingTrades != 1 {
		t.Fatalf("wins/losses = %d/%d, want 2/1", stats.ProfitableTrades, stats.LosingTrades)
	}
	if !almostEqual(stats.WinRate, 200.0/3.0) {
		t.Fatalf("win rate = %f", stats.WinRate)
	}
	if stats.AvgWin <= 0 || stats.AvgLoss >= 0 {
		t.Fatalf("avg win %f must be positive, avg loss %f negative", stats.AvgWin, stats.AvgLoss)
	}
	if stats.ProfitFactor <= 1 {
		t.Fatalf("profit factor = %f, expected > 1 for a winning log", stats.ProfitFactor)
	}
	if !almostEqual(stats.Balance, 1000+stats.RealizedPL) {
		t.Fatalf("balance %f inconsistent with realized %f", stats.Balance, stats.RealizedPL)
	}
	t.Logf("stats: %+v", stats)
}

func TestStatsEquityWithOpenPosition(t *testing.T) {
	l := New(1000, 0.001)
	if _, err := l.Open(models.SideLong, 100, 50, 10, testTime); err != nil {
		t.Fatalf("open: %v", err)
	}

	stats := l.Stats(110)
	// Entry fee 0.05 off the balance, +500 unrealized on top.
	if !almostEqual(stats.Equity, 1000-0.05+500) {
		t.Fatalf("equity = %f, want %f", stats.Equity, 1000-0.05+500)
	}
}

func TestTradeLogOrderAndIsolation(t *testing.T) {
	l := New(1000, 0.001)
	for i := 0; i < 3; i++ {
		at := testTime.Add(time.Duration(i) * time.Hour)
		if _, err := l.Open(models.SideLong, 100, 10, 1, at); err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, err := l.Close(101, models.CloseManual, at.Add(30*time.Minute)); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	trades := l.Trades()
	if len(trades) != 3 {
		t.Fatalf("trade count = %d, want 3", len(trades))
	}
	for i := 1; i < len(trades); i++ {
		if trades[i].ClosedAt.Before(trades[i-1].ClosedAt) {
			t.Fatal("trade log not ordered by close time")
		}
	}
	if trades[0].ID == trades[1].ID {
		t.Fatal("trade IDs must be unique")
	}

	// Mutating the snapshot must not touch the ledger.
	trades[0].RealizedPL = 12345
	if almostEqual(l.Trades()[0].RealizedPL, 12345) {
		t.Fatal("trade log snapshot shares memory with the ledger")
	}
}

func TestReset(t *testing.T) {
	l := New(1000, 0.001)
	if _, err := l.Open(models.SideLong, 100, 100, 5, testTime); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.Close(90, models.CloseManual, testTime.Add(time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}

	l.Reset(1000)
	if l.Position().IsOpen() {
		t.Fatal("position survived reset")
	}
	if len(l.Trades()) != 0 {
		t.Fatal("trade log survived reset")
	}
	if !almostEqual(l.Balance(), 1000) {
		t.Fatalf("balance after reset = %f, want 1000", l.Balance())
	}
	if !almostEqual(l.TotalFees(), 0) {
		t.Fatalf("fees after reset = %f, want 0", l.TotalFees())
	}
}
