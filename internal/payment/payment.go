// Package payment abstracts the external payment processor. The core only
// needs two operations: charge a frozen amount and refund it.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrDeclined is returned when the processor rejects a charge.
var ErrDeclined = errors.New("charge declined")

// Handle identifies a created charge at the processor.
type Handle struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
}

// Processor is the narrow contract the checkout flow needs. The amount is
// always the frozen order total, never a live recompute. Refund carries a
// caller-chosen idempotency key: a retried cancellation re-issues the same
// key, so the processor deduplicates instead of paying out twice.
type Processor interface {
	CreateCharge(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (Handle, error)
	Refund(ctx context.Context, chargeID string, amount decimal.Decimal, idempotencyKey string) error
}

// Client is an HTTP Processor implementation against a generic
// charges/refunds API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a Client for the given endpoint.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type chargeRequest struct {
	Amount   string            `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCharge creates a charge for the exact given amount.
func (c *Client) CreateCharge(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (Handle, error) {
	body, err := json.Marshal(chargeRequest{
		Amount:   amount.StringFixed(2),
		Currency: currency,
		Metadata: metadata,
	})
	if err != nil {
		return Handle{}, errors.Wrap(err, "marshal charge request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return Handle{}, errors.Wrap(err, "build charge request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Handle{}, errors.Wrap(err, "create charge")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		return Handle{}, ErrDeclined
	case resp.StatusCode >= 300:
		return Handle{}, errors.Errorf("create charge: unexpected status %d", resp.StatusCode)
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Handle{}, errors.Wrap(err, "decode charge response")
	}

	return Handle{ID: out.ID, Amount: amount, Currency: currency}, nil
}

type refundRequest struct {
	ChargeID string `json:"charge_id"`
	Amount   string `json:"amount,omitempty"`
}

// Refund refunds the given amount of a charge. The idempotency key is sent
// as the Idempotency-Key header so repeated calls collapse at the processor.
func (c *Client) Refund(ctx context.Context, chargeID string, amount decimal.Decimal, idempotencyKey string) error {
	body, err := json.Marshal(refundRequest{ChargeID: chargeID, Amount: amount.StringFixed(2)})
	if err != nil {
		return errors.Wrap(err, "marshal refund request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/refunds", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build refund request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "refund charge")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return errors.Errorf("refund charge %s: unexpected status %d", chargeID, resp.StatusCode)
	}
	return nil
}

var _ Processor = (*Client)(nil)

// LogProcessor approves every charge and logs it. Used in local development
// when no processor endpoint is configured.
type LogProcessor struct {
	lg *zap.Logger
}

// NewLogProcessor constructs a LogProcessor.
func NewLogProcessor(lg *zap.Logger) *LogProcessor {
	return &LogProcessor{lg: lg}
}

func (p *LogProcessor) CreateCharge(_ context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (Handle, error) {
	id := "chg_" + uuid.NewString()
	p.lg.Info("Charge approved (log-only processor)",
		zap.String("charge_id", id),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("currency", currency),
		zap.Any("metadata", metadata),
	)
	return Handle{ID: id, Amount: amount, Currency: currency}, nil
}

func (p *LogProcessor) Refund(_ context.Context, chargeID string, amount decimal.Decimal, idempotencyKey string) error {
	p.lg.Info("Refund recorded (log-only processor)",
		zap.String("charge_id", chargeID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("idempotency_key", idempotencyKey),
	)
	return nil
}

var _ Processor = (*LogProcessor)(nil)
