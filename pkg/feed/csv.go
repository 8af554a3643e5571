package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// vwapSuffix marks a file holding the VWAP-granularity series, e.g. ABCD.vwap.csv
const vwapSuffix = ".vwap.csv"

var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// ParseCSV reads bars from CSV with a header row.
// Required columns: timestamp (RFC3339 with zone offset), open, high, low, close, volume.
// An optional symbol column overrides defaultSymbol per row.
// Rows are returned in file order; ordering is checked by the consumer, never fixed here.
func ParseCSV(r io.Reader, defaultSymbol string) ([]Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	symbolCol, hasSymbol := index["symbol"]

	var bars []Bar
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		symbol := defaultSymbol
		if hasSymbol && strings.TrimSpace(record[symbolCol]) != "" {
			symbol = strings.TrimSpace(record[symbolCol])
		}

		bar, err := parseRecord(record, index, symbol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

func parseRecord(record []string, index map[string]int, symbol string) (Bar, error) {
	ts := strings.TrimSpace(record[index["timestamp"]])
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return Bar{}, fmt.Errorf("%w: timestamp %q must be RFC3339 with a zone offset", ErrInvalidBar, ts)
	}

	values := make(map[string]float64, 5)
	for _, col := range requiredColumns[1:] {
		raw := strings.TrimSpace(record[index[col]])
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Bar{}, fmt.Errorf("%w: %s %q is not a decimal", ErrInvalidBar, col, raw)
		}
		values[col] = d.InexactFloat64()
	}

	bar := Bar{
		Symbol: symbol,
		Time:   t,
		Open:   values["open"],
		High:   values["high"],
		Low:    values["low"],
		Close:  values["close"],
		Volume: values["volume"],
	}
	if err := bar.Validate(); err != nil {
		return Bar{}, err
	}
	return bar, nil
}

// LoadCSVFile parses a single CSV file of bars
func LoadCSVFile(path, symbol string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	bars, err := ParseCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// LoadCSVDir loads every <SYMBOL>.csv (fast bars) and <SYMBOL>.vwap.csv (VWAP bars) in dir
func LoadCSVDir(dir string) (map[string]History, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	histories := make(map[string]History)
	for _, name := range names {
		lower := strings.ToLower(name)
		isVWAP := strings.HasSuffix(lower, vwapSuffix)

		symbol := name[:len(name)-len(".csv")]
		if isVWAP {
			symbol = name[:len(name)-len(vwapSuffix)]
		}
		symbol = strings.ToUpper(symbol)

		bars, err := LoadCSVFile(filepath.Join(dir, name), symbol)
		if err != nil {
			return nil, err
		}

		h := histories[symbol]
		if isVWAP {
			h.VWAP = bars
		} else {
			h.Fast = bars
		}
		histories[symbol] = h
	}

	return histories, nil
}
