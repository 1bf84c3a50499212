package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedClient caches carrier quotes in Redis. Rates change rarely, so a
// short TTL trims a slow external round trip off most checkouts. Cache
// failures degrade to the wrapped client and are logged at Debug.
type CachedClient struct {
	inner   RateClient
	rdb     *redis.Client
	baseTTL time.Duration
	lg      *zap.Logger
}

// NewCachedClient wraps inner with a Redis quote cache.
func NewCachedClient(inner RateClient, rdb *redis.Client, lg *zap.Logger) *CachedClient {
	return &CachedClient{
		inner:   inner,
		rdb:     rdb,
		baseTTL: 15 * time.Minute,
		lg:      lg,
	}
}

func quoteKey(q QuoteRequest) string {
	return fmt.Sprintf("shipquote:%s:%s:%d", q.OriginZip, q.DestZip, q.WeightOz)
}

// GetQuote returns a cached quote when present, otherwise queries the
// carrier and stores the result with a jittered TTL to avoid synchronized
// expiry.
func (c *CachedClient) GetQuote(ctx context.Context, req QuoteRequest) (Quote, error) {
	key := quoteKey(req)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var q Quote
		if err := json.Unmarshal(raw, &q); err == nil {
			return q, nil
		}
		// Unparseable entry: drop it and fall through to the carrier.
		c.rdb.Del(ctx, key)
	} else if err != redis.Nil {
		c.lg.Debug("shipping quote cache read failed", zap.Error(err))
	}

	q, err := c.inner.GetQuote(ctx, req)
	if err != nil {
		return Quote{}, err
	}

	if data, err := json.Marshal(q); err == nil {
		ttl := c.baseTTL + time.Duration(rand.Intn(60))*time.Second
		if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			c.lg.Debug("shipping quote cache write failed", zap.Error(err))
		}
	}
	return q, nil
}

var _ RateClient = (*CachedClient)(nil)
