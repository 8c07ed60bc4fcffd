// Package marketdata is the boundary to the external market data source.
//
// The core never performs network I/O. A Provider hands over already
// fetched price history; FileProvider serves CoinGecko market_chart payloads
// saved on disk.
package marketdata

import (
	"context"
	"errors"
	"strings"

	"github.com/sartorproj/coincast/timeseries"
)

// ErrNotFound is returned when a provider has no data for a coin/currency pair.
var ErrNotFound = errors.New("market data not found")

// Provider supplies historical prices for one coin in one quote currency.
// days limits the history to the trailing number of days; 0 means all.
type Provider interface {
	MarketChart(ctx context.Context, coinID, currency string, days int) ([]timeseries.TimePoint, error)
}

// CoinID maps common ticker symbols to CoinGecko coin IDs. Unknown symbols
// are lower-cased and returned as is.
func CoinID(symbol string) string {
	switch strings.ToUpper(symbol) {
	case "BTC", "BITCOIN":
		return "bitcoin"
	case "ETH", "ETHEREUM":
		return "ethereum"
	case "ADA", "CARDANO":
		return "cardano"
	case "DOT", "POLKADOT":
		return "polkadot"
	case "LINK", "CHAINLINK":
		return "chainlink"
	case "LTC", "LITECOIN":
		return "litecoin"
	case "XRP", "RIPPLE":
		return "ripple"
	case "SOL", "SOLANA":
		return "solana"
	case "AVAX", "AVALANCHE":
		return "avalanche-2"
	case "MATIC", "POLYGON":
		return "matic-network"
	case "DOGE", "DOGECOIN":
		return "dogecoin"
	}
	return strings.ToLower(symbol)
}
