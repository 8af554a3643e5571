package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pullback-bot/pkg/strategy"
)

// SignalStackClient sends orders to a SignalStack webhook. SignalStack does not report
// execution prices back, so an accepted order is filled at the intent's reference price.
type SignalStackClient struct {
	webhookURL string
	client     *http.Client
	commission strategy.CommissionModel
	logger     *zap.Logger
	now        func() time.Time
	reports    chan Report
}

// NewSignalStackClient creates a client for webhookURL
func NewSignalStackClient(webhookURL string, commission strategy.CommissionModel, logger *zap.Logger) *SignalStackClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalStackClient{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		commission: commission,
		logger:     logger,
		now:        time.Now,
		reports:    make(chan Report, 64),
	}
}

// Order is the webhook payload
type Order struct {
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Quantity  float64   `json:"quantity"`
	OrderID   string    `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderResponse is the webhook reply
type OrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Reports returns the fill/rejection stream
func (ss *SignalStackClient) Reports() <-chan Report {
	return ss.reports
}

// Submit places a market order for intent and queues its report
func (ss *SignalStackClient) Submit(ctx context.Context, intent strategy.OrderIntent) error {
	order := Order{
		Symbol:    intent.Symbol,
		Action:    strings.ToLower(string(intent.Side)),
		Quantity:  intent.Size,
		OrderID:   intent.ID,
		Timestamp: ss.now(),
	}

	if _, err := ss.placeOrder(ctx, order); err != nil {
		ss.logger.Warn("order failed",
			zap.String("symbol", intent.Symbol),
			zap.String("intent", intent.ID),
			zap.Error(err),
		)
		return deliver(ctx, ss.reports, Report{Intent: intent, Reason: err.Error()})
	}

	fill := &strategy.Fill{
		IntentID:   intent.ID,
		Price:      intent.ReferencePrice,
		FilledAt:   order.Timestamp,
		Commission: ss.commission.Commission(intent.Side, intent.Size, intent.ReferencePrice),
	}
	ss.logger.Info("order placed",
		zap.String("symbol", intent.Symbol),
		zap.String("side", string(intent.Side)),
		zap.Float64("size", intent.Size),
		zap.Float64("price", fill.Price),
	)
	return deliver(ctx, ss.reports, Report{Intent: intent, Fill: fill})
}

func (ss *SignalStackClient) placeOrder(ctx context.Context, order Order) (*OrderResponse, error) {
	jsonData, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ss.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ss.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		// plain-text reply; the status code decides
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("order failed: status %d, body: %s", resp.StatusCode, string(body))
		}
		orderResp.Success = true
		orderResp.Message = string(body)
	}

	if resp.StatusCode != http.StatusOK {
		return &orderResp, fmt.Errorf("order failed: status %d: %s", resp.StatusCode, orderResp.Error)
	}
	if !orderResp.Success {
		return &orderResp, fmt.Errorf("order failed: %s", orderResp.Error)
	}
	return &orderResp, nil
}
