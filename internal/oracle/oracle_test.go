package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	name string
	mu   sync.Mutex
	fail bool
	px   map[string]int64
	hits int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchSpotPrices(ctx context.Context, symbols []string) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if f.fail {
		return nil, errors.New("unreachable")
	}
	out := map[string]int64{}
	for _, s := range symbols {
		if v, ok := f.px[s]; ok {
			out[s] = v
		}
	}
	return out, nil
}

func (f *fakeProvider) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

type memLastKnown struct {
	prices map[string]Price
}

func (m *memLastKnown) Load(ctx context.Context, symbol string) (Price, bool, error) {
	p, ok := m.prices[symbol]
	return p, ok, nil
}

func (m *memLastKnown) Store(ctx context.Context, p Price) error {
	m.prices[p.Symbol] = p
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time       { return c.t }
func (c *clock) add(d time.Duration) { c.t = c.t.Add(d) }

func newTestOracle(t *testing.T, c *clock, lk LastKnown, providers ...Provider) *Oracle {
	t.Helper()
	o, err := New(Options{
		Providers: providers,
		CacheTTL:  10 * time.Second,
		Fallback:  map[string]int64{"BTC": 9500000, "eth": 350000},
		LastKnown: lk,
		Now:       c.now,
	})
	if err != nil {
		t.Fatalf("new oracle: %v", err)
	}
	return o
}

func TestGetPriceUsesFirstHealthyProvider(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	down := &fakeProvider{name: "a", fail: true}
	up := &fakeProvider{name: "b", px: map[string]int64{"BTC": 6400050}}
	o := newTestOracle(t, c, nil, down, up)

	p, err := o.GetPrice(context.Background(), "btc")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if p.Price != 6400050 || p.Source != "b" || p.Stale {
		t.Fatalf("unexpected price: %+v", p)
	}
	if !p.ObservedAt.Equal(c.t) {
		t.Fatalf("observed_at=%v want %v", p.ObservedAt, c.t)
	}

	health := o.Health()
	if len(health) != 2 || health[0].Status != "down" || health[0].Failures != 1 || health[1].Status != "healthy" {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestGetPriceServesFreshCacheWithoutFetching(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	up := &fakeProvider{name: "a", px: map[string]int64{"BTC": 100}}
	o := newTestOracle(t, c, nil, up)

	if _, err := o.GetPrice(context.Background(), "BTC"); err != nil {
		t.Fatalf("get price: %v", err)
	}
	c.add(5 * time.Second)
	p, _ := o.GetPrice(context.Background(), "BTC")
	if p.Source != SourceCache || p.Price != 100 {
		t.Fatalf("expected cache hit, got %+v", p)
	}
	if up.hits != 1 {
		t.Fatalf("expected 1 upstream hit, got %d", up.hits)
	}

	c.add(6 * time.Second)
	p, _ = o.GetPrice(context.Background(), "BTC")
	if p.Source != "a" || up.hits != 2 {
		t.Fatalf("expected refetch after ttl, got %+v hits=%d", p, up.hits)
	}
}

func TestGetPriceZeroPriceIsFailure(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	zero := &fakeProvider{name: "zero", px: map[string]int64{"BTC": 0}}
	good := &fakeProvider{name: "good", px: map[string]int64{"BTC": 777}}
	o := newTestOracle(t, c, nil, zero, good)

	p, _ := o.GetPrice(context.Background(), "BTC")
	if p.Price != 777 || p.Source != "good" {
		t.Fatalf("expected next provider, got %+v", p)
	}
}

func TestGetPriceNeverFailsWithStaleCache(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	up := &fakeProvider{name: "a", px: map[string]int64{"BTC": 6400000}}
	o := newTestOracle(t, c, nil, up)

	if _, err := o.GetPrice(context.Background(), "BTC"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	up.setFail(true)
	c.add(time.Hour)

	p, err := o.GetPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if p.Price != 6400000 || p.Source != SourceStaleCache || !p.Stale {
		t.Fatalf("expected stale cache, got %+v", p)
	}
}

func TestGetPriceFallbackWhenNoCache(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	o := newTestOracle(t, c, nil, &fakeProvider{name: "a", fail: true}, &fakeProvider{name: "b", fail: true})

	p, err := o.GetPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if p.Price != 9500000 || p.Source != SourceFallback || !p.Stale {
		t.Fatalf("expected fallback, got %+v", p)
	}

	p, _ = o.GetPrice(context.Background(), "ETH")
	if p.Price != 350000 {
		t.Fatalf("expected normalized fallback key, got %+v", p)
	}
}

func TestGetPriceLastKnownBeforeFallback(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	lk := &memLastKnown{prices: map[string]Price{
		"BTC": {Symbol: "BTC", Price: 6000000, ObservedAt: c.t.Add(-time.Hour), Source: "a"},
	}}
	o := newTestOracle(t, c, lk, &fakeProvider{name: "a", fail: true})

	p, _ := o.GetPrice(context.Background(), "BTC")
	if p.Price != 6000000 || p.Source != SourceLastKnown || !p.Stale {
		t.Fatalf("expected last known, got %+v", p)
	}
}

func TestGetPriceStoresLastKnown(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	lk := &memLastKnown{prices: map[string]Price{}}
	o := newTestOracle(t, c, lk, &fakeProvider{name: "a", px: map[string]int64{"BTC": 123}})

	if _, err := o.GetPrice(context.Background(), "BTC"); err != nil {
		t.Fatalf("get price: %v", err)
	}
	if lk.prices["BTC"].Price != 123 {
		t.Fatalf("expected last known write, got %+v", lk.prices)
	}
}

func TestGetPriceUnsupportedSymbol(t *testing.T) {
	c := &clock{t: time.Now()}
	o := newTestOracle(t, c, nil)
	if _, err := o.GetPrice(context.Background(), "DOGE"); !errors.Is(err, ErrUnsupportedSymbol) {
		t.Fatalf("expected ErrUnsupportedSymbol, got %v", err)
	}
}

func TestNewRequiresFallbacks(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without fallbacks")
	}
	if _, err := New(Options{Fallback: map[string]int64{"BTC": 0}}); err == nil {
		t.Fatalf("expected error for zero fallback")
	}
}

func TestResolveSymbol(t *testing.T) {
	cases := map[string]string{
		"btc":      "BTC",
		"BTC-USD":  "BTC",
		"eth/usdt": "ETH",
		"SOL_USD":  "SOL",
		"BTCUSDT":  "BTC",
		"ETHUSD":   "ETH",
		"  ":       "",
		"USD":      "USD",
	}
	for in, want := range cases {
		if got := ResolveSymbol(in); got != want {
			t.Fatalf("ResolveSymbol(%q)=%q want %q", in, got, want)
		}
	}
}

func TestGetPriceCancelledContextSkipsDegradedTiers(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := &fakeProvider{name: "a", px: map[string]int64{"BTC": 6400000}}
	lk := &memLastKnown{prices: map[string]Price{"BTC": {Symbol: "BTC", Price: 6100000}}}
	o := newTestOracle(t, c, lk, p)

	if _, err := o.GetPrice(context.Background(), "BTC"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	c.add(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := o.GetPrice(ctx, "BTC")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got price=%+v err=%v", got, err)
	}
	if p.hits != 1 {
		t.Fatalf("cancelled call should not reach providers, hits=%d", p.hits)
	}
	if h := o.Health(); h[0].Status != "healthy" || h[0].Failures != 0 {
		t.Fatalf("cancellation counted as provider failure: %+v", h)
	}

	fresh := newTestOracle(t, c, nil, &fakeProvider{name: "down", fail: true})
	if _, err := fresh.GetPrice(ctx, "BTC"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected no fallback on cancelled context, got %v", err)
	}
}
