// Package api serves stored runs, their trades and their metrics over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pullback-bot/pkg/ledger"
	"github.com/pullback-bot/pkg/performance"
	"github.com/pullback-bot/pkg/strategy"
)

// RunSource is the read side of the trade ledger
type RunSource interface {
	ListRuns(ctx context.Context) ([]ledger.Run, error)
	GetRun(ctx context.Context, id string) (ledger.Run, error)
	Trades(ctx context.Context, runID string) ([]strategy.Trade, error)
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// TradeResponse is one trade as JSON
type TradeResponse struct {
	Symbol     string  `json:"symbol"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Size       float64 `json:"size"`
	Commission float64 `json:"commission"`
	PnL        float64 `json:"pnl"`
	OpenedAt   string  `json:"opened_at"`
	ClosedAt   string  `json:"closed_at"`
	ExitReason string  `json:"exit_reason"`
}

func toTradeResponse(t strategy.Trade) TradeResponse {
	return TradeResponse{
		Symbol:     t.Symbol,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		Size:       t.Size,
		Commission: t.Commission,
		PnL:        t.PnL,
		OpenedAt:   t.OpenedAt.UTC().Format(time.RFC3339),
		ClosedAt:   t.ClosedAt.UTC().Format(time.RFC3339),
		ExitReason: string(t.ExitReason),
	}
}

// Handler answers the run endpoints
type Handler struct {
	src    RunSource
	logger *zap.Logger
}

// NewHandler creates a handler over src
func NewHandler(src RunSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{src: src, logger: logger}
}

// NewRouter wires every route
//
//	GET /healthz
//	GET /runs
//	GET /runs/:id
//	GET /runs/:id/trades
//	GET /runs/:id/metrics
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	runs := r.Group("/runs")
	runs.GET("", h.ListRuns)
	runs.GET("/:id", h.GetRun)
	runs.GET("/:id/trades", h.GetTrades)
	runs.GET("/:id/metrics", h.GetMetrics)
	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, ledger.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	h.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

// ListRuns handles GET /runs
func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.src.ListRuns(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	c.JSON(http.StatusOK, runs)
}

// GetRun handles GET /runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.src.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetTrades handles GET /runs/:id/trades, optionally filtered by ?symbol=
func (h *Handler) GetTrades(c *gin.Context) {
	trades, err := h.src.Trades(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	symbol := c.Query("symbol")
	out := make([]TradeResponse, 0, len(trades))
	for _, t := range trades {
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		out = append(out, toTradeResponse(t))
	}
	c.JSON(http.StatusOK, out)
}

// GetMetrics handles GET /runs/:id/metrics
func (h *Handler) GetMetrics(c *gin.Context) {
	trades, err := h.src.Trades(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, performance.Analyze(trades))
}
