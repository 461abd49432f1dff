// Package oracle serves spot prices for a small fixed set of symbols.
//
// GetPrice never fails for a supported symbol. It degrades through four tiers:
// a fresh in-process cache entry, the configured providers in priority order,
// the last known value (in-process first, then the optional shared LastKnown
// store), and finally the configured fallback constant.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source values for prices not fetched during the current call.
const (
	SourceCache      = "cache"
	SourceStaleCache = "stale-cache"
	SourceLastKnown  = "last-known"
	SourceFallback   = "fallback"
)

var ErrUnsupportedSymbol = errors.New("oracle: unsupported symbol")

// Price is a spot observation in 2-decimal fixed point (cents).
type Price struct {
	Symbol     string    `json:"symbol"`
	Price      int64     `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
	Stale      bool      `json:"stale"`
}

// Provider is one upstream price API. Implementations must return an error for any
// non-2xx response, timeout or malformed payload, and never a zero price.
type Provider interface {
	Name() string
	FetchSpotPrices(ctx context.Context, symbols []string) (map[string]int64, error)
}

// LastKnown persists the most recent good price beyond the process lifetime.
type LastKnown interface {
	Load(ctx context.Context, symbol string) (Price, bool, error)
	Store(ctx context.Context, p Price) error
}

type ProviderHealth struct {
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	Failures      int        `json:"consecutive_failures"`
}

type Options struct {
	Providers       []Provider
	CacheTTL        time.Duration
	ProviderTimeout time.Duration
	// Fallback defines the supported symbol set; every symbol needs a constant.
	Fallback  map[string]int64
	LastKnown LastKnown
	Logger    *zap.Logger
	Now       func() time.Time
}

type Oracle struct {
	providers []Provider
	ttl       time.Duration
	timeout   time.Duration
	fallback  map[string]int64
	lastKnown LastKnown
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.RWMutex
	cache  map[string]Price
	health map[string]*ProviderHealth
}

func New(opts Options) (*Oracle, error) {
	if len(opts.Fallback) == 0 {
		return nil, errors.New("oracle: at least one symbol with a fallback price is required")
	}
	fallback := make(map[string]int64, len(opts.Fallback))
	for sym, v := range opts.Fallback {
		if v <= 0 {
			return nil, fmt.Errorf("oracle: fallback for %s must be > 0", sym)
		}
		fallback[NormalizeSymbol(sym)] = v
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	o := &Oracle{
		providers: opts.Providers,
		ttl:       ttl,
		timeout:   timeout,
		fallback:  fallback,
		lastKnown: opts.LastKnown,
		logger:    opts.Logger,
		now:       now,
		cache:     map[string]Price{},
		health:    map[string]*ProviderHealth{},
	}
	for _, p := range opts.Providers {
		o.health[p.Name()] = &ProviderHealth{Name: p.Name(), Status: "unknown"}
	}
	return o, nil
}

// Symbols returns the supported symbol set, sorted.
func (o *Oracle) Symbols() []string {
	out := make([]string, 0, len(o.fallback))
	for sym := range o.fallback {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (o *Oracle) Supports(symbol string) bool {
	_, ok := o.fallback[NormalizeSymbol(symbol)]
	return ok
}

// GetPrice returns the best available price. It fails only with ErrUnsupportedSymbol,
// or with ctx.Err() when the caller is cancelled before a provider answers.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (Price, error) {
	sym := NormalizeSymbol(symbol)
	fallback, ok := o.fallback[sym]
	if !ok {
		return Price{}, fmt.Errorf("%w: %q", ErrUnsupportedSymbol, symbol)
	}

	cached, hasCached := o.cached(sym)
	if hasCached && o.now().Sub(cached.ObservedAt) < o.ttl {
		cached.Source = SourceCache
		return cached, nil
	}

	if p, ok := o.fetch(ctx, sym); ok {
		return p, nil
	}
	// A cancelled caller gets its error, never a degraded price.
	if err := ctx.Err(); err != nil {
		return Price{}, err
	}

	if hasCached {
		cached.Source = SourceStaleCache
		cached.Stale = true
		o.logWarn("all providers failed, serving stale cache", zap.String("symbol", sym), zap.Time("observed_at", cached.ObservedAt))
		return cached, nil
	}

	if o.lastKnown != nil {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		p, found, err := o.lastKnown.Load(lctx, sym)
		cancel()
		if err != nil {
			o.logWarn("last known price load failed", zap.String("symbol", sym), zap.Error(err))
		}
		if found && p.Price > 0 {
			p.Symbol = sym
			p.Source = SourceLastKnown
			p.Stale = true
			o.logWarn("all providers failed, serving last known price", zap.String("symbol", sym))
			return p, nil
		}
	}

	o.logWarn("all providers failed and no cache, serving fallback constant", zap.String("symbol", sym))
	return Price{
		Symbol:     sym,
		Price:      fallback,
		ObservedAt: o.now(),
		Source:     SourceFallback,
		Stale:      true,
	}, nil
}

// Health reports per-provider state in priority order.
func (o *Oracle) Health() []ProviderHealth {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ProviderHealth, 0, len(o.providers))
	for _, p := range o.providers {
		if h, ok := o.health[p.Name()]; ok {
			out = append(out, *h)
		}
	}
	return out
}

func (o *Oracle) fetch(ctx context.Context, sym string) (Price, bool) {
	for _, p := range o.providers {
		if ctx.Err() != nil {
			return Price{}, false
		}
		pctx, cancel := context.WithTimeout(ctx, o.timeout)
		prices, err := p.FetchSpotPrices(pctx, []string{sym})
		cancel()
		if err == nil {
			if v := prices[sym]; v <= 0 {
				err = fmt.Errorf("%s: invalid price %d for %s", p.Name(), v, sym)
			}
		}
		if err != nil && ctx.Err() != nil {
			return Price{}, false
		}
		if err != nil {
			o.markFailure(p.Name(), err)
			o.logWarn("price provider failed", zap.String("provider", p.Name()), zap.String("symbol", sym), zap.Error(err))
			continue
		}
		o.markSuccess(p.Name())

		price := Price{
			Symbol:     sym,
			Price:      prices[sym],
			ObservedAt: o.now(),
			Source:     p.Name(),
		}
		o.store(ctx, price)
		return price, true
	}
	return Price{}, false
}

func (o *Oracle) cached(sym string) (Price, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.cache[sym]
	return p, ok
}

func (o *Oracle) store(ctx context.Context, p Price) {
	o.mu.Lock()
	o.cache[p.Symbol] = p
	o.mu.Unlock()

	if o.lastKnown == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := o.lastKnown.Store(sctx, p); err != nil {
		o.logWarn("last known price store failed", zap.String("symbol", p.Symbol), zap.Error(err))
	}
}

func (o *Oracle) markSuccess(name string) {
	now := o.now()
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.healthFor(name)
	h.Status = "healthy"
	h.LastSuccessAt = &now
	h.Failures = 0
}

func (o *Oracle) markFailure(name string, err error) {
	now := o.now()
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.healthFor(name)
	h.Status = "down"
	h.LastFailureAt = &now
	h.LastError = err.Error()
	h.Failures++
}

func (o *Oracle) healthFor(name string) *ProviderHealth {
	h, ok := o.health[name]
	if !ok {
		h = &ProviderHealth{Name: name}
		o.health[name] = h
	}
	return h
}

func (o *Oracle) logWarn(msg string, fields ...zap.Field) {
	if o != nil && o.logger != nil {
		o.logger.Warn(msg, fields...)
	}
}
