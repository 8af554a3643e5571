package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// CacheMetadata stores metadata about cached data
type CacheMetadata struct {
	Ticker    string    `json:"ticker"`
	PullDate  time.Time `json:"pull_date"`
	Days      int       `json:"days"`
	DateCount int       `json:"date_count"`
}

// CacheManager caches downloaded bars as JSON, one file per ticker.
// A cache is only served on the day it was pulled.
type CacheManager struct {
	cacheDir string
	now      func() time.Time
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string) *CacheManager {
	if cacheDir == "" {
		cacheDir = "data/cache"
	}
	return &CacheManager{
		cacheDir: cacheDir,
		now:      time.Now,
	}
}

// GetCachePath returns the cache file path for a ticker
func (cm *CacheManager) GetCachePath(ticker string) string {
	return filepath.Join(cm.cacheDir, fmt.Sprintf("%s.json", ticker))
}

// GetMetadataPath returns the metadata file path for a ticker
func (cm *CacheManager) GetMetadataPath(ticker string) string {
	return filepath.Join(cm.cacheDir, fmt.Sprintf("%s_metadata.json", ticker))
}

// CachedBar is a serializable version of Bar
type CachedBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// LoadCachedData returns cached bars for a ticker grouped by date in location.
// A nil map with a nil error means there is no usable cache.
func (cm *CacheManager) LoadCachedData(ticker string, days int, location *time.Location) (map[time.Time][]Bar, *CacheMetadata, error) {
	metadataBytes, err := os.ReadFile(cm.GetMetadataPath(ticker))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cache metadata: %w", err)
	}

	var metadata CacheMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, nil, nil // corrupt metadata is treated as a miss
	}

	if !sameDay(metadata.PullDate.In(location), cm.now().In(location)) || metadata.Days < days {
		return nil, nil, nil
	}

	dataBytes, err := os.ReadFile(cm.GetCachePath(ticker))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var cachedData map[string][]CachedBar
	if err := json.Unmarshal(dataBytes, &cachedData); err != nil {
		return nil, nil, nil
	}

	barsByDate := make(map[time.Time][]Bar, len(cachedData))
	for dateStr, cached := range cachedData {
		date, err := time.ParseInLocation("2006-01-02", dateStr, location)
		if err != nil {
			continue
		}

		bars := make([]Bar, len(cached))
		for i, cb := range cached {
			bars[i] = Bar{
				Symbol: ticker,
				Time:   cb.Time,
				Open:   cb.Open,
				High:   cb.High,
				Low:    cb.Low,
				Close:  cb.Close,
				Volume: cb.Volume,
			}
		}
		barsByDate[date] = bars
	}

	return barsByDate, &metadata, nil
}

// SaveCachedData saves data to cache
func (cm *CacheManager) SaveCachedData(ticker string, days int, barsByDate map[time.Time][]Bar) error {
	if err := os.MkdirAll(cm.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	cachedData := make(map[string][]CachedBar, len(barsByDate))
	for date, bars := range barsByDate {
		cachedBars := make([]CachedBar, len(bars))
		for i, bar := range bars {
			cachedBars[i] = CachedBar{
				Time:   bar.Time,
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: bar.Volume,
			}
		}
		cachedData[date.Format("2006-01-02")] = cachedBars
	}

	dataBytes, err := json.MarshalIndent(cachedData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := os.WriteFile(cm.GetCachePath(ticker), dataBytes, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	metadata := CacheMetadata{
		Ticker:    ticker,
		PullDate:  cm.now(),
		Days:      days,
		DateCount: len(barsByDate),
	}
	metadataBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(cm.GetMetadataPath(ticker), metadataBytes, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
