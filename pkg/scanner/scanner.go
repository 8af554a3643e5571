package scanner

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pullback-bot/pkg/config"
	"github.com/pullback-bot/pkg/feed"
	"github.com/pullback-bot/pkg/strategy"
)

// Scanner narrows the configured tickers to the ones worth trading
type Scanner struct {
	tickers      []string
	blacklist    map[string]bool
	minPrice     float64
	maxPrice     float64
	minAvgVolume float64
	logger       *zap.Logger
}

// NewScanner creates a new scanner
func NewScanner(cfg *config.Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}

	blacklistMap := make(map[string]bool)
	for _, ticker := range cfg.Blacklist {
		blacklistMap[strings.ToUpper(ticker)] = true
	}

	return &Scanner{
		tickers:      cfg.BacktestTickers,
		blacklist:    blacklistMap,
		minPrice:     cfg.MinPrice,
		maxPrice:     cfg.MaxPrice,
		minAvgVolume: cfg.MinAvgVolume,
		logger:       logger,
	}
}

// Watchlist returns the configured tickers minus the blacklist, deduplicated, in config order
func (s *Scanner) Watchlist() []string {
	seen := make(map[string]bool, len(s.tickers))
	out := make([]string, 0, len(s.tickers))
	for _, ticker := range s.tickers {
		ticker = strings.ToUpper(ticker)
		if seen[ticker] || s.IsBlacklisted(ticker) {
			continue
		}
		seen[ticker] = true
		out = append(out, ticker)
	}
	return out
}

// IsBlacklisted checks if a ticker is blacklisted
func (s *Scanner) IsBlacklisted(ticker string) bool {
	return s.blacklist[strings.ToUpper(ticker)]
}

// FilterTicker checks if a ticker meets the price band and liquidity floor
func (s *Scanner) FilterTicker(ticker string, price, avgVolume float64) bool {
	if s.IsBlacklisted(ticker) {
		return false
	}

	if price < s.minPrice || price > s.maxPrice {
		return false
	}

	return avgVolume >= s.minAvgVolume
}

// Select returns the symbols whose history passes FilterTicker, judged on the
// last fast close and the mean fast-bar volume. The result is sorted.
func (s *Scanner) Select(histories map[string]feed.History) []string {
	selected := make([]string, 0, len(histories))
	for symbol, h := range histories {
		if len(h.Fast) == 0 {
			continue
		}

		var volume float64
		for _, bar := range h.Fast {
			volume += bar.Volume
		}
		avgVolume := volume / float64(len(h.Fast))
		last := h.Fast[len(h.Fast)-1].Close

		if !s.FilterTicker(symbol, last, avgVolume) {
			s.logger.Info("symbol filtered out",
				zap.String("symbol", symbol),
				zap.Float64("last_close", last),
				zap.Float64("avg_volume", avgVolume),
			)
			continue
		}
		selected = append(selected, symbol)
	}

	sort.Strings(selected)
	return selected
}

// InTradingHours reports whether t falls between the premarket start and the EOD cutoff
func InTradingHours(t time.Time, cfg strategy.Config) bool {
	local := t.In(cfg.Location)
	start := cfg.PremarketStart.On(local, cfg.Location)
	eod := cfg.EODCutoff.On(local, cfg.Location)

	return !local.Before(start) && local.Before(eod)
}
