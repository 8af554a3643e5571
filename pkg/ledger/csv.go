// Package ledger records closed trades as CSV files or database rows.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pullback-bot/pkg/strategy"
)

// Header is the CSV column layout, one row per closed trade
var Header = []string{
	"symbol",
	"entry_price",
	"exit_price",
	"size",
	"commission",
	"pnl",
	"opened_at",
	"closed_at",
	"exit_reason",
}

// ErrMalformedLedger is returned when a ledger file does not match Header
var ErrMalformedLedger = errors.New("malformed trade ledger")

func money(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func record(t strategy.Trade) []string {
	return []string{
		t.Symbol,
		money(t.EntryPrice),
		money(t.ExitPrice),
		money(t.Size),
		money(t.Commission),
		money(t.PnL),
		t.OpenedAt.Format(time.RFC3339Nano),
		t.ClosedAt.Format(time.RFC3339Nano),
		string(t.ExitReason),
	}
}

// WriteCSV writes the header and all trades in order
func WriteCSV(w io.Writer, trades []strategy.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, t := range trades {
		if err := cw.Write(record(t)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes trades to path, replacing any existing file
func WriteCSVFile(path string, trades []strategy.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	if err := WriteCSV(f, trades); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV parses a ledger written by WriteCSV or CSVLedger
func ReadCSV(r io.Reader) ([]strategy.Trade, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLedger, err)
	}
	for i, col := range Header {
		if head[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrMalformedLedger, i, head[i], col)
		}
	}

	var trades []strategy.Trade
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedLedger, err)
		}
		t, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedLedger, line, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// ReadCSVFile reads a ledger file
func ReadCSVFile(path string) ([]strategy.Trade, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseRecord(row []string) (strategy.Trade, error) {
	nums := make([]float64, 5)
	for i := range nums {
		d, err := decimal.NewFromString(row[i+1])
		if err != nil {
			return strategy.Trade{}, fmt.Errorf("%s: %w", Header[i+1], err)
		}
		nums[i] = d.InexactFloat64()
	}
	opened, err := time.Parse(time.RFC3339Nano, row[6])
	if err != nil {
		return strategy.Trade{}, fmt.Errorf("opened_at: %w", err)
	}
	closed, err := time.Parse(time.RFC3339Nano, row[7])
	if err != nil {
		return strategy.Trade{}, fmt.Errorf("closed_at: %w", err)
	}

	return strategy.Trade{
		Symbol:     row[0],
		EntryPrice: nums[0],
		ExitPrice:  nums[1],
		Size:       nums[2],
		Commission: nums[3],
		PnL:        nums[4],
		OpenedAt:   opened,
		ClosedAt:   closed,
		ExitReason: strategy.ExitReason(row[8]),
	}, nil
}

// CSVLedger appends trades to a file as they close. Safe for concurrent use.
type CSVLedger struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// OpenCSV opens path for appending, writing the header if the file is new or empty
func OpenCSV(path string) (*CSVLedger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	l := &CSVLedger{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := l.write(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Append writes one trade and flushes it to disk
func (l *CSVLedger) Append(t strategy.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(record(t))
}

func (l *CSVLedger) write(row []string) error {
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Close closes the underlying file
func (l *CSVLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
