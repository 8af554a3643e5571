package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PolygonFeed implements the Feed interface using Polygon.io aggregates
type PolygonFeed struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewPolygonFeed creates a new Polygon.io feed
func NewPolygonFeed(apiKey string) *PolygonFeed {
	return &PolygonFeed{
		apiKey:  apiKey,
		baseURL: "https://api.polygon.io",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var timespanDurations = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
}

// GetHistoricalBars fetches aggregate bars from Polygon.io.
// Polygon stamps aggregates with their start time; bars are re-stamped with their completion time.
func (pf *PolygonFeed) GetHistoricalBars(ctx context.Context, ticker string, startDate, endDate time.Time, timespan string) ([]Bar, error) {
	span, ok := timespanDurations[timespan]
	if !ok {
		return nil, fmt.Errorf("unsupported timespan %q", timespan)
	}

	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/%s/%s/%s",
		pf.baseURL,
		ticker,
		timespan,
		formatDate(startDate),
		formatDate(endDate),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("apiKey", pf.apiKey)
	q.Add("adjusted", "true")
	q.Add("sort", "asc")
	q.Add("limit", "50000")
	req.URL.RawQuery = q.Encode()

	resp, err := pf.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Results []struct {
			T int64   `json:"t"` // start of the aggregate window, unix ms
			O float64 `json:"o"`
			H float64 `json:"h"`
			L float64 `json:"l"`
			C float64 `json:"c"`
			V float64 `json:"v"`
		} `json:"results"`
		Status    string `json:"status"`
		RequestID string `json:"request_id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// DELAYED is returned on plans without real-time access
	if result.Status != "OK" && result.Status != "DELAYED" {
		return nil, fmt.Errorf("API returned non-OK status: %s", result.Status)
	}

	bars := make([]Bar, 0, len(result.Results))
	for _, r := range result.Results {
		bar := Bar{
			Symbol: ticker,
			Time:   time.UnixMilli(r.T).Add(span),
			Open:   r.O,
			High:   r.H,
			Low:    r.L,
			Close:  r.C,
			Volume: r.V,
		}
		if err := bar.Validate(); err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// formatDate formats a date for Polygon.io API (YYYY-MM-DD)
func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// GetDaysOfBars fetches the last `days` calendar days of minute bars grouped by trading date in location
func (pf *PolygonFeed) GetDaysOfBars(ctx context.Context, ticker string, days int, location *time.Location) (map[time.Time][]Bar, error) {
	endDate := time.Now().In(location)
	startDate := endDate.AddDate(0, 0, -days)

	allBars, err := pf.GetHistoricalBars(ctx, ticker, startDate, endDate, "minute")
	if err != nil {
		return nil, err
	}

	return GroupByDate(allBars, location), nil
}

// GroupByDate buckets bars by their local trading date (midnight in location)
func GroupByDate(bars []Bar, location *time.Location) map[time.Time][]Bar {
	barsByDate := make(map[time.Time][]Bar)
	for _, bar := range bars {
		local := bar.Time.In(location)
		date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)
		barsByDate[date] = append(barsByDate[date], bar)
	}
	return barsByDate
}

// FlattenDates joins grouped bars back into one time-ordered slice
func FlattenDates(barsByDate map[time.Time][]Bar) []Bar {
	dates := make([]time.Time, 0, len(barsByDate))
	for date := range barsByDate {
		dates = append(dates, date)
	}
	sortTimes(dates)

	var bars []Bar
	for _, date := range dates {
		bars = append(bars, barsByDate[date]...)
	}
	return bars
}
