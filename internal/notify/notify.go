// Package notify is the fire-and-forget email/notification boundary.
// Delivery failures are logged and never block order or cart flows.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Template identifiers used by the checkout flow.
const (
	TemplateOrderConfirmed = "order_confirmed"
	TemplateOrderCancelled = "order_cancelled"
)

// Notifier sends a templated message to a recipient.
type Notifier interface {
	Send(ctx context.Context, templateID, recipient string, data map[string]string) error
}

// LogNotifier logs instead of sending. Used when no delivery endpoint is
// configured (local development, tests).
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg}
}

func (n *LogNotifier) Send(_ context.Context, templateID, recipient string, data map[string]string) error {
	n.lg.Info("notification (not delivered: no endpoint configured)",
		zap.String("template", templateID),
		zap.String("recipient", recipient),
		zap.Any("data", data),
	)
	return nil
}

// HTTPNotifier posts messages to a delivery service.
type HTTPNotifier struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPNotifier constructs an HTTPNotifier for the given endpoint.
func NewHTTPNotifier(baseURL, apiKey string) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data,omitempty"`
}

func (n *HTTPNotifier) Send(ctx context.Context, templateID, recipient string, data map[string]string) error {
	body, err := json.Marshal(sendRequest{Template: templateID, Recipient: recipient, Data: data})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build notification request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send notification")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return errors.Errorf("send notification: unexpected status %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*HTTPNotifier)(nil)
)
