package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var defaultCoinGeckoIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
}

// CoinGeckoProvider reads /api/v3/simple/price. IDs maps symbols to coin ids.
type CoinGeckoProvider struct {
	HTTP    *http.Client
	BaseURL string
	IDs     map[string]string
	Label   string
}

func (p *CoinGeckoProvider) Name() string {
	if p != nil && strings.TrimSpace(p.Label) != "" {
		return p.Label
	}
	return "coingecko"
}

func (p *CoinGeckoProvider) FetchSpotPrices(ctx context.Context, symbols []string) (map[string]int64, error) {
	if len(symbols) == 0 {
		return map[string]int64{}, nil
	}
	ids := p.IDs
	if len(ids) == 0 {
		ids = defaultCoinGeckoIDs
	}
	bySymbol := make(map[string]string, len(symbols))
	list := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = NormalizeSymbol(sym)
		id, ok := ids[sym]
		if !ok {
			return nil, fmt.Errorf("coingecko: no coin id for %s", sym)
		}
		bySymbol[sym] = id
		list = append(list, id)
	}
	q := url.Values{}
	q.Set("ids", strings.Join(list, ","))
	q.Set("vs_currencies", "usd")
	endpoint := trimBaseURL(p.BaseURL, "https://api.coingecko.com") + "/api/v3/simple/price?" + q.Encode()

	var parsed map[string]map[string]json.Number
	if err := getJSON(ctx, defaultHTTPClient(p.HTTP), endpoint, &parsed); err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}

	out := make(map[string]int64, len(symbols))
	for sym, id := range bySymbol {
		raw, ok := parsed[id]["usd"]
		if !ok {
			return nil, fmt.Errorf("coingecko: missing price for %s", sym)
		}
		cents, err := parseCents(raw.String())
		if err != nil {
			return nil, fmt.Errorf("coingecko %s: %w", sym, err)
		}
		out[sym] = cents
	}
	return out, nil
}
