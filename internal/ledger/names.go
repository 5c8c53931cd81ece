package ledger

import "strings"

// coinNames maps well-known tickers to display names. The mapping is
// cosmetic metadata only and never participates in settlement arithmetic.
var coinNames = map[string]string{
	"BTC":  "Bitcoin",
	"ETH":  "Ethereum",
	"LTC":  "Litecoin",
	"DOGE": "Dogecoin",
	"DASH": "DASH",
	"SHIB": "Shiba Inu Coin",
	"SOL":  "Solana",
	"USDT": "Tether Coin",
	"XRP":  "Ripple",
	"TCRV": "TradeCurve",
	"BNB":  "Binance Coin",
}

// DisplayName resolves a ticker symbol to a human-readable coin name.
// Unknown tickers pass through uppercased, so the function is total.
func DisplayName(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if name, ok := coinNames[s]; ok {
		return name
	}
	return s
}
