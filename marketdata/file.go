package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sartorproj/coincast/timeseries"
)

// FileProvider reads market_chart payloads named <coin>_<currency>.json
// from Dir.
type FileProvider struct {
	Dir string
}

// NewFileProvider returns a provider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

// Path returns the file consulted for a coin/currency pair.
func (p *FileProvider) Path(coinID, currency string) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_%s.json", coinID, currency))
}

// MarketChart implements Provider.
func (p *FileProvider) MarketChart(ctx context.Context, coinID, currency string, days int) ([]timeseries.TimePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative, got %d", timeseries.ErrInvalidParameter, days)
	}

	path := p.Path(coinID, currency)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s (%s)", ErrNotFound, coinID, currency, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	chart, err := DecodeMarketChart(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return trailingDays(chart.Points(), days), nil
}

// trailingDays keeps points within days of the latest timestamp.
func trailingDays(points []timeseries.TimePoint, days int) []timeseries.TimePoint {
	if days == 0 || len(points) == 0 {
		return points
	}

	latest := points[0].Time
	for _, p := range points[1:] {
		if p.Time.After(latest) {
			latest = p.Time
		}
	}
	cutoff := latest.Add(-time.Duration(days) * 24 * time.Hour)

	out := make([]timeseries.TimePoint, 0, len(points))
	for _, p := range points {
		if !p.Time.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}
