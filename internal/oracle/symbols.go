package oracle

import "strings"

var quoteSuffixes = []string{"USDT", "USDC", "USD"}

// NormalizeSymbol upper-cases and trims a bare asset symbol.
func NormalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ResolveSymbol derives the base asset from a market descriptor:
// "BTC", "btc-usd", "BTC/USDT", "ETH_USD" and "BTCUSDT" all yield the base asset.
// It returns "" when nothing usable remains.
func ResolveSymbol(market string) string {
	m := NormalizeSymbol(market)
	if m == "" {
		return ""
	}
	if i := strings.IndexAny(m, "-/_: "); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	for _, q := range quoteSuffixes {
		if len(m) > len(q) && strings.HasSuffix(m, q) {
			return m[:len(m)-len(q)]
		}
	}
	return m
}
