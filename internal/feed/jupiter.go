package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"perp_trading/internal/models"

	"github.com/bitly/go-simplejson"
	"github.com/shopspring/decimal"
)

const (
	jupiterQuoteURL = "https://quote-api.jup.ag/v6/quote"
	solMint         = "So11111111111111111111111111111111111111112"
	usdcMint        = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	quoteLamports   = 1000000 // 0.001 SOL probe amount
	slippageBps     = "50"
)

var lamportsPerSol = decimal.NewFromInt(1_000_000_000)
var microPerUsdc = decimal.NewFromInt(1_000_000)

// JupiterFeed quotes the SOL/USDC pair through the Jupiter aggregator.
type JupiterFeed struct {
	baseURL string
	client  *http.Client
}

func NewJupiterFeed() *JupiterFeed {
	return &JupiterFeed{
		baseURL: jupiterQuoteURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (j *JupiterFeed) Name() string { return "jupiter" }

// GetPrice asks for a quote of a small SOL amount and derives the pair
// price from the in/out amounts, rounded to 4 decimals.
func (j *JupiterFeed) GetPrice(ctx context.Context) (models.PriceTick, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL, nil)
	if err != nil {
		return models.PriceTick{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	q := req.URL.Query()
	q.Set("inputMint", solMint)
	q.Set("outputMint", usdcMint)
	q.Set("amount", strconv.Itoa(quoteLamports))
	q.Set("slippageBps", slippageBps)
	req.URL.RawQuery = q.Encode()

	resp, err := j.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return models.PriceTick{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return models.PriceTick{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.PriceTick{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.PriceTick{}, fmt.Errorf("%w: HTTP 429 from quote API", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return models.PriceTick{}, fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	js, err := simplejson.NewJson(body)
	if err != nil {
		return models.PriceTick{}, fmt.Errorf("%w: bad quote payload: %v", ErrUnavailable, err)
	}

	inAmount, errIn := strconv.ParseInt(js.Get("inAmount").MustString(), 10, 64)
	outAmount, errOut := strconv.ParseInt(js.Get("outAmount").MustString(), 10, 64)
	if errIn != nil || errOut != nil || inAmount <= 0 || outAmount <= 0 {
		return models.PriceTick{}, fmt.Errorf("%w: quote without amounts: %s", ErrUnavailable, body)
	}

	// price = (outAmount / 1e6 USDC) / (inAmount / 1e9 SOL)
	sol := decimal.NewFromInt(inAmount).Div(lamportsPerSol)
	usdc := decimal.NewFromInt(outAmount).Div(microPerUsdc)
	price, _ := usdc.Div(sol).Round(4).Float64()
	if price <= 0 {
		return models.PriceTick{}, fmt.Errorf("%w: non-positive price in quote", ErrUnavailable)
	}

	return models.PriceTick{Timestamp: time.Now(), Price: price}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
