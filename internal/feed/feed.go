package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"perp_trading/internal/models"

	"github.com/jpillora/backoff"
)

// Feed failures the engine can branch on with errors.Is.
var (
	ErrUnavailable = errors.New("price feed unavailable")
	ErrRateLimited = errors.New("price feed rate limited")
	ErrTimeout     = errors.New("price feed timeout")
)

// PriceFeed supplies the latest price of the traded pair.
type PriceFeed interface {
	Name() string
	GetPrice(ctx context.Context) (models.PriceTick, error)
}

// RetryFeed retries a flaky feed with capped exponential backoff before
// surfacing ErrUnavailable. It never loops forever, so a dead upstream
// cannot stall the trading cycle.
type RetryFeed struct {
	inner    PriceFeed
	attempts int
	min      time.Duration
	max      time.Duration
}

// NewRetryFeed wraps a feed with up to attempts tries per call.
func NewRetryFeed(inner PriceFeed, attempts int) *RetryFeed {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryFeed{
		inner:    inner,
		attempts: attempts,
		min:      500 * time.Millisecond,
		max:      10 * time.Second,
	}
}

func (r *RetryFeed) Name() string { return r.inner.Name() }

func (r *RetryFeed) GetPrice(ctx context.Context) (models.PriceTick, error) {
	b := &backoff.Backoff{Min: r.min, Max: r.max, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return models.PriceTick{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(b.Duration()):
			}
		}

		tick, err := r.inner.GetPrice(ctx)
		if err == nil {
			return tick, nil
		}
		lastErr = err
	}
	return models.PriceTick{}, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, r.attempts, lastErr)
}
