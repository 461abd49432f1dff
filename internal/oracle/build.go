package oracle

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"agenthub/internal/config"
)

// NewProvider builds one upstream from config. Kind defaults to Name.
func NewProvider(cfg config.ProviderConfig, defaultTimeout time.Duration) (Provider, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		kind = strings.ToLower(strings.TrimSpace(cfg.Name))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var p Provider
	switch kind {
	case "binance":
		p = &BinanceProvider{HTTP: client, BaseURL: cfg.BaseURL, Label: cfg.Name}
	case "coinbase":
		p = &CoinbaseProvider{HTTP: client, BaseURL: cfg.BaseURL, Label: cfg.Name}
	case "coingecko":
		p = &CoinGeckoProvider{HTTP: client, BaseURL: cfg.BaseURL, Label: cfg.Name}
	default:
		return nil, fmt.Errorf("oracle: unknown provider kind %q", kind)
	}

	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p = Limited(p, rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst))
	}
	return p, nil
}

// FromConfig wires providers, fallbacks and the optional last-known store.
func FromConfig(cfg config.OracleConfig, lastKnown LastKnown, logger *zap.Logger) (*Oracle, error) {
	fallback, err := cfg.FallbackCents()
	if err != nil {
		return nil, err
	}
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if pc.Disabled {
			continue
		}
		p, err := NewProvider(pc, cfg.ProviderTimeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 && logger != nil {
		logger.Warn("oracle has no enabled providers, prices will come from fallbacks")
	}
	return New(Options{
		Providers:       providers,
		CacheTTL:        cfg.CacheTTL,
		ProviderTimeout: cfg.ProviderTimeout,
		Fallback:        fallback,
		LastKnown:       lastKnown,
		Logger:          logger,
	})
}
