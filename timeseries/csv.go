package timeseries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CSVOptions holds options for CSV loading.
type CSVOptions struct {
	TimeColumn  string // Column name for timestamps (default: "timestamp")
	PriceColumn string // Column name for prices (default: "price")
	IDColumn    string // Column name for series ID (optional, for filtering)
	IDFilter    string // Value to filter by ID column
	TimeFormat  string // Layout tried before the built-in ones (optional)
	HasHeader   bool   // Whether CSV has header row (default: true)
	Delimiter   rune   // Field delimiter (default: ',')
	SkipRows    int    // Number of rows to skip at start
	SkipMissing bool   // Drop rows with an empty or NA price instead of failing
}

// DefaultCSVOptions returns default options for CSV loading.
func DefaultCSVOptions() *CSVOptions {
	return &CSVOptions{
		TimeColumn:  "timestamp",
		PriceColumn: "price",
		HasHeader:   true,
		Delimiter:   ',',
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// LoadCSV reads raw points from a CSV file. The result still has to go through Build.
func LoadCSV(filename string, opts *CSVOptions) ([]TimePoint, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadCSVFromReader(file, opts)
}

// LoadCSVFromReader reads raw points from an io.Reader.
func LoadCSVFromReader(r io.Reader, opts *CSVOptions) ([]TimePoint, error) {
	if opts == nil {
		opts = DefaultCSVOptions()
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	for i := 0; i < opts.SkipRows; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, err
		}
	}

	// Without a header the first column is the timestamp and the second the price.
	timeIdx, priceIdx, idIdx := 0, 1, -1
	if opts.HasHeader {
		header, err := reader.Read()
		if err != nil {
			return nil, err
		}
		timeIdx, priceIdx = -1, -1
		for i, h := range header {
			h = strings.TrimSpace(strings.Trim(h, "\""))
			switch {
			case strings.EqualFold(h, opts.TimeColumn):
				timeIdx = i
			case strings.EqualFold(h, opts.PriceColumn):
				priceIdx = i
			case opts.IDColumn != "" && h == opts.IDColumn:
				idIdx = i
			}
		}
		if timeIdx == -1 {
			return nil, fmt.Errorf("%w: time column %q not found", ErrValidation, opts.TimeColumn)
		}
		if priceIdx == -1 {
			return nil, fmt.Errorf("%w: price column %q not found", ErrValidation, opts.PriceColumn)
		}
	}

	var points []TimePoint
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row++

		if opts.IDFilter != "" && idIdx >= 0 && idIdx < len(record) {
			if strings.TrimSpace(record[idIdx]) != opts.IDFilter {
				continue
			}
		}
		if timeIdx >= len(record) || priceIdx >= len(record) {
			return nil, fmt.Errorf("%w: row %d has %d fields", ErrValidation, row, len(record))
		}

		priceStr := strings.TrimSpace(strings.Trim(record[priceIdx], "\""))
		if isMissingToken(priceStr) {
			if opts.SkipMissing {
				continue
			}
			return nil, fmt.Errorf("%w: row %d has no price", ErrValidation, row)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d price %q: %v", ErrValidation, row, priceStr, err)
		}

		ts, err := ParseTime(strings.TrimSpace(strings.Trim(record[timeIdx], "\"")), opts.TimeFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrValidation, row, err)
		}

		points = append(points, TimePoint{Time: ts, Price: price.InexactFloat64()})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no rows found in CSV", ErrValidation)
	}
	return points, nil
}

// ParseTime accepts unix milliseconds, RFC3339 and a few date layouts.
// An optional layout is tried first.
func ParseTime(value, layout string) (time.Time, error) {
	if layout != "" {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, l := range timeLayouts {
		if ts, err := time.Parse(l, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func isMissingToken(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none":
		return true
	}
	return false
}
