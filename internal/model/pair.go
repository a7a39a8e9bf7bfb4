package model

import "strings"

var quoteSuffixes = []string{"usdt", "usd"}

// NormalizePair maps a display pair name to the key used by the price feed:
// lower case, separators removed, and a trailing USD/USDT quote stripped.
// "EUR/USD" and "eurusd" both become "eur"; "EUR/GBP" becomes "eurgbp".
func NormalizePair(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(key)
	for _, suffix := range quoteSuffixes {
		if len(key) > len(suffix) && strings.HasSuffix(key, suffix) {
			return strings.TrimSuffix(key, suffix)
		}
	}
	return key
}
