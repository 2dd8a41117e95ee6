package analysis

import (
	"math"
	"testing"

	"perp_trading/internal/models"
)

func TestEvaluateInsufficientData(t *testing.T) {
	prices := []float64{100, 101, 102}
	snap := Evaluate(prices, 5, 0.001)
	if snap.Signal != models.SignalNeutral {
		t.Fatalf("signal = %s, want NEUTRAL on insufficient data", snap.Signal)
	}
	if snap.Strength != 0 {
		t.Fatalf("strength = %f, want 0 on insufficient data", snap.Strength)
	}
	if snap.Samples != 3 {
		t.Fatalf("samples = %d, want 3", snap.Samples)
	}
}

func TestEvaluateBullish(t *testing.T) {
	// Steady climb of 1% over the window.
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100.0 + float64(i)*0.125
	}

	snap := Evaluate(prices, 10, 0.005)
	if snap.Signal != models.SignalBullish {
		t.Fatalf("signal = %s, want BULLISH", snap.Signal)
	}
	if snap.Strength <= 0 {
		t.Fatalf("strength = %f, want positive", snap.Strength)
	}
}

func TestEvaluateBearish(t *testing.T) {
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100.0 - float64(i)*0.125
	}

	snap := Evaluate(prices, 10, 0.005)
	if snap.Signal != models.SignalBearish {
		t.Fatalf("signal = %s, want BEARISH", snap.Signal)
	}
	if snap.Strength >= 0 {
		t.Fatalf("strength = %f, want negative", snap.Strength)
	}
}

func TestEvaluateNeutralInsideBand(t *testing.T) {
	prices := []float64{100, 100.01, 100.02, 100.01, 100.03}
	snap := Evaluate(prices, 5, 0.005)
	if snap.Signal != models.SignalNeutral {
		t.Fatalf("signal = %s, want NEUTRAL for a flat window", snap.Signal)
	}
}

func TestEvaluateThresholdBoundary(t *testing.T) {
	// Exactly +0.5% and -0.5% moves sit on the threshold and must classify.
	up := Evaluate([]float64{100, 100.2, 100.5}, 3, 0.005)
	if up.Signal != models.SignalBullish {
		t.Fatalf("signal at +threshold = %s, want BULLISH", up.Signal)
	}
	down := Evaluate([]float64{100, 99.8, 99.5}, 3, 0.005)
	if down.Signal != models.SignalBearish {
		t.Fatalf("signal at -threshold = %s, want BEARISH", down.Signal)
	}
}

func TestEvaluateUsesOnlyTheWindow(t *testing.T) {
	// The spike before the lookback window must not leak into the result.
	prices := []float64{200, 100, 100.01, 100.02, 100.01}
	snap := Evaluate(prices, 4, 0.005)
	if snap.Signal != models.SignalNeutral {
		t.Fatalf("signal = %s, old prices leaked into the window", snap.Signal)
	}
	if math.Abs(snap.Strength) > 0.005 {
		t.Fatalf("strength = %f, computed over more than the window", snap.Strength)
	}
}

func TestEvaluatePurity(t *testing.T) {
	prices := []float64{100, 101, 102, 103, 104}

	first := Evaluate(prices, 5, 0.001)
	// Unrelated evaluations in between must not disturb the next result.
	Evaluate([]float64{50, 40, 30}, 3, 0.001)
	second := Evaluate(prices, 5, 0.001)

	if first != second {
		t.Fatalf("identical windows classified differently: %+v vs %+v", first, second)
	}
}
