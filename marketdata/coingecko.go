package marketdata

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sartorproj/coincast/timeseries"
)

// Quote is one [timestamp, value] pair of a market chart.
type Quote struct {
	Time  time.Time       `json:"time" yaml:"time"`
	Value decimal.Decimal `json:"value" yaml:"value"`
}

// MarketChart is a decoded /coins/{id}/market_chart response.
type MarketChart struct {
	Prices       []Quote
	MarketCaps   []Quote
	TotalVolumes []Quote
	// Skipped counts entries dropped because their value was null.
	Skipped int
}

// Points converts the price quotes for timeseries.Build.
func (c *MarketChart) Points() []timeseries.TimePoint {
	points := make([]timeseries.TimePoint, len(c.Prices))
	for i, q := range c.Prices {
		points[i] = timeseries.TimePoint{Time: q.Time, Price: q.Value.InexactFloat64()}
	}
	return points
}

type marketChartPayload struct {
	Prices       [][]decimal.NullDecimal `json:"prices"`
	MarketCaps   [][]decimal.NullDecimal `json:"market_caps"`
	TotalVolumes [][]decimal.NullDecimal `json:"total_volumes"`
}

// DecodeMarketChart parses a CoinGecko market_chart payload of the form
// {"prices": [[unix_ms, price], ...], ...}. Values are kept as decimals until
// the caller converts them; entries with a null value are skipped.
func DecodeMarketChart(r io.Reader) (*MarketChart, error) {
	var payload marketChartPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding market chart: %v", timeseries.ErrValidation, err)
	}
	if payload.Prices == nil {
		return nil, fmt.Errorf("%w: market chart has no prices", timeseries.ErrValidation)
	}

	chart := &MarketChart{}
	var err error
	if chart.Prices, err = decodeQuotes("prices", payload.Prices, &chart.Skipped); err != nil {
		return nil, err
	}
	if chart.MarketCaps, err = decodeQuotes("market_caps", payload.MarketCaps, nil); err != nil {
		return nil, err
	}
	if chart.TotalVolumes, err = decodeQuotes("total_volumes", payload.TotalVolumes, nil); err != nil {
		return nil, err
	}
	return chart, nil
}

func decodeQuotes(field string, rows [][]decimal.NullDecimal, skipped *int) ([]Quote, error) {
	quotes := make([]Quote, 0, len(rows))
	for i, row := range rows {
		if len(row) != 2 {
			return nil, fmt.Errorf("%w: %s[%d] has %d elements, want 2", timeseries.ErrValidation, field, i, len(row))
		}
		if !row[0].Valid {
			return nil, fmt.Errorf("%w: %s[%d] has no timestamp", timeseries.ErrValidation, field, i)
		}
		if !row[1].Valid {
			if skipped != nil {
				*skipped++
			}
			continue
		}
		quotes = append(quotes, Quote{
			Time:  time.UnixMilli(row[0].Decimal.IntPart()).UTC(),
			Value: row[1].Decimal,
		})
	}
	return quotes, nil
}
