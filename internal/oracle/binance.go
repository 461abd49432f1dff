package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// BinanceProvider reads /api/v3/ticker/price against a stablecoin quote.
type BinanceProvider struct {
	HTTP    *http.Client
	BaseURL string
	// Quote defaults to USDT.
	Quote string
	Label string
}

func (p *BinanceProvider) Name() string {
	if p != nil && strings.TrimSpace(p.Label) != "" {
		return p.Label
	}
	return "binance"
}

func (p *BinanceProvider) FetchSpotPrices(ctx context.Context, symbols []string) (map[string]int64, error) {
	if len(symbols) == 0 {
		return map[string]int64{}, nil
	}
	quote := strings.ToUpper(strings.TrimSpace(p.Quote))
	if quote == "" {
		quote = "USDT"
	}
	pairs := make([]string, 0, len(symbols))
	byPair := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		sym = NormalizeSymbol(sym)
		pair := sym + quote
		pairs = append(pairs, pair)
		byPair[pair] = sym
	}
	raw, _ := json.Marshal(pairs)
	endpoint := trimBaseURL(p.BaseURL, "https://api.binance.com") + "/api/v3/ticker/price?symbols=" + url.QueryEscape(string(raw))

	var parsed []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := getJSON(ctx, defaultHTTPClient(p.HTTP), endpoint, &parsed); err != nil {
		return nil, fmt.Errorf("binance: %w", err)
	}

	out := make(map[string]int64, len(symbols))
	for _, item := range parsed {
		sym, ok := byPair[strings.ToUpper(item.Symbol)]
		if !ok {
			continue
		}
		cents, err := parseCents(item.Price)
		if err != nil {
			return nil, fmt.Errorf("binance %s: %w", item.Symbol, err)
		}
		out[sym] = cents
	}
	for _, sym := range byPair {
		if _, ok := out[sym]; !ok {
			return nil, fmt.Errorf("binance: missing price for %s", sym)
		}
	}
	return out, nil
}
