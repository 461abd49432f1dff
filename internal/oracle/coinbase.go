package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CoinbaseProvider reads /v2/prices/{SYM}-{CUR}/spot, one request per symbol.
type CoinbaseProvider struct {
	HTTP     *http.Client
	BaseURL  string
	Currency string
	Label    string
}

func (p *CoinbaseProvider) Name() string {
	if p != nil && strings.TrimSpace(p.Label) != "" {
		return p.Label
	}
	return "coinbase"
}

func (p *CoinbaseProvider) FetchSpotPrices(ctx context.Context, symbols []string) (map[string]int64, error) {
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = "USD"
	}
	base := trimBaseURL(p.BaseURL, "https://api.coinbase.com")
	client := defaultHTTPClient(p.HTTP)

	out := make(map[string]int64, len(symbols))
	for _, sym := range symbols {
		sym = NormalizeSymbol(sym)
		endpoint := fmt.Sprintf("%s/v2/prices/%s/spot", base, url.PathEscape(sym+"-"+currency))
		var parsed struct {
			Data struct {
				Amount   string `json:"amount"`
				Base     string `json:"base"`
				Currency string `json:"currency"`
			} `json:"data"`
		}
		if err := getJSON(ctx, client, endpoint, &parsed); err != nil {
			return nil, fmt.Errorf("coinbase %s: %w", sym, err)
		}
		if parsed.Data.Base != "" && !strings.EqualFold(parsed.Data.Base, sym) {
			return nil, fmt.Errorf("coinbase %s: unexpected base %q", sym, parsed.Data.Base)
		}
		cents, err := parseCents(parsed.Data.Amount)
		if err != nil {
			return nil, fmt.Errorf("coinbase %s: %w", sym, err)
		}
		out[sym] = cents
	}
	return out, nil
}
