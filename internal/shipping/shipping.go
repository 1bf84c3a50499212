// Package shipping wraps the external carrier-rate API. Quote failures never
// block checkout: the caller falls back to a configured default rate.
package shipping

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// QuoteRequest describes a shipment to price.
type QuoteRequest struct {
	OriginZip string
	DestZip   string
	WeightOz  int
}

// Quote is a carrier rate for a shipment.
type Quote struct {
	Cost        decimal.Decimal `json:"cost"`
	ServiceName string          `json:"service_name"`
}

// RateClient obtains a shipping rate for a shipment.
type RateClient interface {
	GetQuote(ctx context.Context, req QuoteRequest) (Quote, error)
}

// Client queries a carrier-rate HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the given endpoint.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// GetQuote fetches a rate for the shipment.
func (c *Client) GetQuote(ctx context.Context, q QuoteRequest) (Quote, error) {
	u, err := url.Parse(c.baseURL + "/rates")
	if err != nil {
		return Quote{}, errors.Wrap(err, "parse rate URL")
	}
	vals := u.Query()
	vals.Set("origin", q.OriginZip)
	vals.Set("dest", q.DestZip)
	vals.Set("weight_oz", strconv.Itoa(q.WeightOz))
	u.RawQuery = vals.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Quote{}, errors.Wrap(err, "build rate request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, errors.Wrap(err, "fetch rate")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, errors.Errorf("fetch rate: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, errors.Wrap(err, "read rate response")
	}

	quote, err := decodeQuote(body)
	if err != nil {
		return Quote{}, errors.Wrap(err, "decode rate response")
	}
	return quote, nil
}

// decodeQuote parses {"cost": <number>, "serviceName": <string>} from the
// carrier response.
func decodeQuote(body []byte) (Quote, error) {
	var quote Quote
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "cost":
			raw, err := d.Num()
			if err != nil {
				return errors.Wrap(err, "cost")
			}
			cost, err := decimal.NewFromString(raw.String())
			if err != nil {
				return errors.Wrap(err, "parse cost")
			}
			quote.Cost = cost
			return nil
		case "serviceName":
			name, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "serviceName")
			}
			quote.ServiceName = name
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return Quote{}, err
	}
	return quote, nil
}

var _ RateClient = (*Client)(nil)
