package feed

import (
	"context"
	"fmt"
	"time"

	"perp_trading/internal/models"

	"github.com/adshao/go-binance/v2/futures"
)

// BinanceFeed reads the latest futures price for one symbol.
type BinanceFeed struct {
	client *futures.Client
	symbol string
}

// NewBinanceFeed builds a feed for the given symbol, e.g. "SOLUSDT".
// Price endpoints work with empty credentials.
func NewBinanceFeed(apiKey, secretKey, symbol string) *BinanceFeed {
	return &BinanceFeed{
		client: futures.NewClient(apiKey, secretKey),
		symbol: symbol,
	}
}

func (b *BinanceFeed) Name() string { return "binance" }

func (b *BinanceFeed) GetPrice(ctx context.Context) (models.PriceTick, error) {
	prices, err := b.client.NewListPricesService().Symbol(b.symbol).Do(ctx)
	if err != nil {
		if isTimeout(err) {
			return models.PriceTick{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return models.PriceTick{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(prices) == 0 {
		return models.PriceTick{}, fmt.Errorf("%w: no price data for %s", ErrUnavailable, b.symbol)
	}

	price := parseFloat(prices[0].Price)
	if price <= 0 {
		return models.PriceTick{}, fmt.Errorf("%w: bad price %q for %s", ErrUnavailable, prices[0].Price, b.symbol)
	}
	return models.PriceTick{Timestamp: time.Now(), Price: price}, nil
}

// Helper function
func parseFloat(s string) float64 {
	var f float64
	fmt.Sscanf(s, "%f", &f)
	return f
}
