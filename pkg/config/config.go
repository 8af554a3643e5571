package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pullback-bot/pkg/strategy"
)

// Config holds all configuration values
type Config struct {
	// API Keys
	PolygonAPIKey         string
	SignalStackWebhookURL string

	// Account Configuration
	AccountSize       float64
	MaxDailyLossPct   float64
	MaxDailyLossLimit float64 // capped at 1% of account
	AccountCloseLimit float64 // AccountSize - 3*(AccountSize*0.01)

	// Watchlist
	BacktestTickers []string
	Blacklist       []string
	MinPrice        float64
	MaxPrice        float64
	MinAvgVolume    float64

	// Strategy and simulated costs
	Strategy   strategy.Config
	Slippage   strategy.SlippageModel
	Commission strategy.CommissionModel

	// Market data
	PollInterval time.Duration
	CacheDir     string

	// Trade ledger
	LedgerPath string
	DBDriver   string // "", "sqlite" or "postgres"
	DBDSN      string

	LogLevel  string
	LogFormat string
	APIAddr   string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.PolygonAPIKey = getEnv("POLYGON_API_KEY", "")
	cfg.SignalStackWebhookURL = getEnv("SIGNALSTACK_WEBHOOK_URL", "")

	accountSize, err := strconv.ParseFloat(getEnv("ACCOUNT_SIZE", "25000"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCOUNT_SIZE: %w", err)
	}
	if accountSize <= 0 {
		return nil, fmt.Errorf("ACCOUNT_SIZE must be > 0")
	}
	cfg.AccountSize = accountSize

	// MAX_DAILY_LOSS_PCT wins over an absolute MAX_DAILY_LOSS
	if pctStr := getEnv("MAX_DAILY_LOSS_PCT", ""); pctStr != "" {
		pct, err := strconv.ParseFloat(pctStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_DAILY_LOSS_PCT: %w", err)
		}
		cfg.MaxDailyLossPct = pct
	} else if lossStr := getEnv("MAX_DAILY_LOSS", ""); lossStr != "" {
		loss, err := strconv.ParseFloat(lossStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_DAILY_LOSS: %w", err)
		}
		cfg.MaxDailyLossPct = loss / accountSize
	} else {
		cfg.MaxDailyLossPct = 0.01
	}
	cfg.MaxDailyLossPct = min(cfg.MaxDailyLossPct, 0.01)
	cfg.MaxDailyLossLimit = accountSize * cfg.MaxDailyLossPct
	cfg.AccountCloseLimit = accountSize - (3 * (accountSize * 0.01))

	cfg.BacktestTickers = parseCommaList(getEnv("BACKTEST_TICKERS", ""))
	cfg.Blacklist = parseCommaList(getEnv("BLACKLIST", ""))

	location, err := GetLocation()
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	p := &parser{}
	cfg.MinPrice = p.getFloat("MIN_PRICE", 1)
	cfg.MaxPrice = p.getFloat("MAX_PRICE", 20)
	cfg.MinAvgVolume = p.getFloat("MIN_AVG_VOLUME", 0)

	def := strategy.DefaultConfig()
	cfg.Strategy = strategy.Config{
		Location:       location,
		SessionOpen:    p.getTimeOfDay("SESSION_OPEN", def.SessionOpen),
		PremarketStart: p.getTimeOfDay("PREMARKET_START", def.PremarketStart),
		EODCutoff:      p.getTimeOfDay("EOD_CUTOFF", def.EODCutoff),

		MACDFast:         p.getInt("MACD_FAST", def.MACDFast),
		MACDSlow:         p.getInt("MACD_SLOW", def.MACDSlow),
		MACDSignal:       p.getInt("MACD_SIGNAL", def.MACDSignal),
		RelVolLookback:   p.getInt("RELVOL_LOOKBACK", def.RelVolLookback),
		SeparateVWAPBars: p.getBool("SEPARATE_VWAP_BARS", def.SeparateVWAPBars),

		MinPatternBars:       p.getInt("MIN_PATTERN_BARS", def.MinPatternBars),
		SurgeLookback:        p.getInt("SURGE_LOOKBACK", def.SurgeLookback),
		MinSurgePct:          p.getFloat("MIN_SURGE_PCT", def.MinSurgePct),
		MinPullbackPct:       p.getFloat("MIN_PULLBACK_PCT", def.MinPullbackPct),
		MaxPullbackPct:       p.getFloat("MAX_PULLBACK_PCT", def.MaxPullbackPct),
		RedCandleWindow:      p.getInt("RED_CANDLE_WINDOW", def.RedCandleWindow),
		MaxRedCandles:        p.getInt("MAX_RED_CANDLES", def.MaxRedCandles),
		VolumeToppingRatio:   p.getFloat("VOLUME_TOPPING_RATIO", def.VolumeToppingRatio),
		MaxDistanceFromHigh:  p.getFloat("MAX_DISTANCE_FROM_HIGH", def.MaxDistanceFromHigh),
		RequireGreenBreakout: p.getBool("REQUIRE_GREEN_BREAKOUT", def.RequireGreenBreakout),

		MinRelativeVolume: p.getFloat("MIN_RELATIVE_VOLUME", def.MinRelativeVolume),
		ProfitTarget:      p.getFloat("PROFIT_TARGET", def.ProfitTarget),

		StopBuffer:             p.getFloat("STOP_BUFFER", def.StopBuffer),
		StrongBreakout:         p.getFloat("STRONG_BREAKOUT", def.StrongBreakout),
		MinStopDistance:        p.getFloat("MIN_STOP_DISTANCE", def.MinStopDistance),
		TradeSizeDollars:       p.getFloat("TRADE_SIZE_DOLLARS", def.TradeSizeDollars),
		FractionalShares:       p.getBool("FRACTIONAL_SHARES", def.FractionalShares),
		MaxConcurrentPositions: p.getInt("MAX_CONCURRENT_POSITIONS", def.MaxConcurrentPositions),

		MaxBarsRetained: p.getInt("MAX_BARS_RETAINED", def.MaxBarsRetained),
	}

	cfg.Slippage = strategy.SlippageModel{
		Mode:   strategy.SlippageMode(strings.ToLower(getEnv("SLIPPAGE_MODE", string(strategy.SlippageBPS)))),
		BPS:    p.getFloat("SLIPPAGE_BPS", 20),
		Offset: p.getFloat("SLIPPAGE_OFFSET", 0),
	}
	commission := strategy.DefaultCommissionModel()
	cfg.Commission = strategy.CommissionModel{
		PerShare:   p.getFloat("COMMISSION_PER_SHARE", commission.PerShare),
		Minimum:    p.getFloat("COMMISSION_MIN", commission.Minimum),
		SECFeeRate: p.getFloat("SEC_FEE_RATE", commission.SECFeeRate),
	}

	cfg.PollInterval = p.getDuration("POLL_INTERVAL", 15*time.Second)
	cfg.CacheDir = getEnv("CACHE_DIR", "data/cache")

	cfg.LedgerPath = getEnv("LEDGER_PATH", "trades.csv")
	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", ""))
	cfg.DBDSN = getEnv("DB_DSN", "")

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")
	cfg.APIAddr = getEnv("API_ADDR", ":8080")

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent
func (c *Config) Validate(liveTrading bool) error {
	if liveTrading && c.PolygonAPIKey == "" {
		return fmt.Errorf("POLYGON_API_KEY is required for live trading")
	}

	if liveTrading && c.SignalStackWebhookURL == "" {
		return fmt.Errorf("SIGNALSTACK_WEBHOOK_URL is required for live trading")
	}

	if c.AccountSize <= 0 {
		return fmt.Errorf("ACCOUNT_SIZE must be > 0")
	}

	if c.MinPrice <= 0 || c.MinPrice >= c.MaxPrice {
		return fmt.Errorf("MIN_PRICE %.2f must be > 0 and below MAX_PRICE %.2f", c.MinPrice, c.MaxPrice)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}

	switch c.DBDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DBDriver != "" && c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required when DB_DRIVER is set")
	}

	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if err := c.Slippage.Validate(); err != nil {
		return fmt.Errorf("invalid slippage: %w", err)
	}
	if err := c.Commission.Validate(); err != nil {
		return fmt.Errorf("invalid commission: %w", err)
	}

	return nil
}

// parser reads typed env values and keeps the first parse error
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) getFloat(key string, def float64) float64 {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) getInt(key string, def int) int {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) getBool(key string, def bool) bool {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) getTimeOfDay(key string, def strategy.TimeOfDay) strategy.TimeOfDay {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := strategy.ParseTimeOfDay(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseCommaList parses a comma-separated list and trims whitespace
func parseCommaList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToUpper(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// IsInBlacklist checks if a ticker is in the blacklist
func (c *Config) IsInBlacklist(ticker string) bool {
	for _, blacklisted := range c.Blacklist {
		if strings.EqualFold(blacklisted, ticker) {
			return true
		}
	}
	return false
}

// GetLocation returns the market timezone, TIMEZONE or America/New_York
func GetLocation() (*time.Location, error) {
	return time.LoadLocation(getEnv("TIMEZONE", "America/New_York"))
}
