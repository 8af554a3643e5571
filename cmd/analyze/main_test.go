package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pullback-bot/pkg/ledger"
	"github.com/pullback-bot/pkg/strategy"
)

func closedAt(hour int) time.Time {
	return time.Date(2025, 3, 3, hour, 0, 0, 0, time.UTC)
}

func TestLoadTrades(t *testing.T) {
	dir := t.TempDir()
	late := strategy.Trade{Symbol: "WXYZ", EntryPrice: 5, ExitPrice: 5.5, Size: 10, PnL: 5, OpenedAt: closedAt(14), ClosedAt: closedAt(15), ExitReason: strategy.ExitReasonTarget}
	early := strategy.Trade{Symbol: "ABCD", EntryPrice: 10, ExitPrice: 9.5, Size: 10, PnL: -5, OpenedAt: closedAt(10), ClosedAt: closedAt(11), ExitReason: strategy.ExitReasonStop}

	require.NoError(t, ledger.WriteCSVFile(filepath.Join(dir, "a.csv"), []strategy.Trade{late}))
	require.NoError(t, ledger.WriteCSVFile(filepath.Join(dir, "b.csv"), []strategy.Trade{early}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.csv"), []byte("not,a,ledger\n"), 0o644))

	trades, err := loadTrades(dir, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "ABCD", trades[0].Symbol)
	assert.Equal(t, "WXYZ", trades[1].Symbol)

	single, err := loadTrades(filepath.Join(dir, "a.csv"), zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = loadTrades(t.TempDir(), zap.NewNop())
	assert.ErrorContains(t, err, "no CSV files")
}

func TestServe_StopsOnCancel(t *testing.T) {
	db, err := ledger.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	store := ledger.NewStore(db)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, "127.0.0.1:0", store, zap.NewNop()) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
