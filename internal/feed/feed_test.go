package feed

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"perp_trading/internal/models"
)

// scriptedFeed fails a fixed number of times before serving a price.
type scriptedFeed struct {
	failures int
	calls    int
	err      error
}

func (s *scriptedFeed) Name() string { return "scripted" }

func (s *scriptedFeed) GetPrice(ctx context.Context) (models.PriceTick, error) {
	s.calls++
	if s.calls <= s.failures {
		return models.PriceTick{}, s.err
	}
	return models.PriceTick{Timestamp: time.Now(), Price: 142.5}, nil
}

func fastRetry(inner PriceFeed, attempts int) *RetryFeed {
	r := NewRetryFeed(inner, attempts)
	r.min = time.Millisecond
	r.max = 5 * time.Millisecond
	return r
}

func TestRetryFeedRecovers(t *testing.T) {
	inner := &scriptedFeed{failures: 2, err: ErrTimeout}
	r := fastRetry(inner, 3)

	tick, err := r.GetPrice(context.Background())
	if err != nil {
		t.Fatalf("expected recovery on third attempt: %v", err)
	}
	if tick.Price != 142.5 {
		t.Fatalf("price = %f, want 142.5", tick.Price)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryFeedExhaustsToUnavailable(t *testing.T) {
	inner := &scriptedFeed{failures: 100, err: ErrRateLimited}
	r := fastRetry(inner, 3)

	_, err := r.GetPrice(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after exhausting retries, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want exactly 3", inner.calls)
	}
}

func TestRetryFeedHonorsContext(t *testing.T) {
	inner := &scriptedFeed{failures: 100, err: ErrTimeout}
	r := NewRetryFeed(inner, 5) // default backoff, long enough to cancel into

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := r.GetPrice(ctx)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on cancelled context, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("cancelled context did not abort the backoff wait")
	}
}

func jupiterAgainst(url string) *JupiterFeed {
	j := NewJupiterFeed()
	j.baseURL = url
	return j
}

func TestJupiterPriceMath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("inputMint"); got != solMint {
			t.Errorf("inputMint = %s", got)
		}
		if got := r.URL.Query().Get("amount"); got != "1000000" {
			t.Errorf("amount = %s", got)
		}
		// 0.001 SOL -> 0.142731 USDC, so the pair trades at 142.731
		w.Write([]byte(`{"inAmount":"1000000","outAmount":"142731","slippageBps":50}`))
	}))
	defer srv.Close()

	tick, err := jupiterAgainst(srv.URL).GetPrice(context.Background())
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if math.Abs(tick.Price-142.731) > 1e-9 {
		t.Fatalf("price = %f, want 142.731", tick.Price)
	}
	if tick.Timestamp.IsZero() {
		t.Fatal("tick missing timestamp")
	}
}

func TestJupiterRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := jupiterAgainst(srv.URL).GetPrice(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestJupiterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := jupiterAgainst(srv.URL).GetPrice(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestJupiterMalformedQuote(t *testing.T) {
	cases := []string{
		`not json at all`,
		`{"inAmount":"0","outAmount":"142731"}`,
		`{"routePlan":[]}`,
	}
	for _, payload := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(payload))
		}))
		_, err := jupiterAgainst(srv.URL).GetPrice(context.Background())
		srv.Close()
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("payload %q: expected ErrUnavailable, got %v", payload, err)
		}
	}
}

func TestJupiterTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	j := jupiterAgainst(srv.URL)
	j.client.Timeout = 10 * time.Millisecond

	_, err := j.GetPrice(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
