package analysis

import "perp_trading/internal/models"

// Snapshot is the result of one trend evaluation
type Snapshot struct {
	Signal   string  // "BULLISH", "BEARISH" or "NEUTRAL"
	Strength float64 // relative change over the window, signed
	Samples  int     // prices available when evaluated
}

// Evaluate classifies momentum over the last lookback prices. Strength is
// the relative change between the oldest and newest price of the window.
// Fewer than lookback samples is NEUTRAL. Pure function, safe to call
// repeatedly on the same window.
func Evaluate(prices []float64, lookback int, threshold float64) Snapshot {
	snap := Snapshot{Signal: models.SignalNeutral, Samples: len(prices)}
	if lookback < 2 || len(prices) < lookback {
		return snap
	}

	window := prices[len(prices)-lookback:]
	oldest := window[0]
	newest := window[len(window)-1]
	if oldest <= 0 {
		return snap
	}

	snap.Strength = (newest - oldest) / oldest
	switch {
	case snap.Strength >= threshold:
		snap.Signal = models.SignalBullish
	case snap.Strength <= -threshold:
		snap.Signal = models.SignalBearish
	}
	return snap
}
