package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis connection URL for the shipping quote cache (optional)" flag:"redis-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (STOREFRONT_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	Payment      PaymentConfig
	Shipping     ShippingConfig
	Identity     IdentityConfig
	Notify       NotifyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig controls order totals: currency, tax, and the shipping
// fallback used when no rate service responds.
type PricingConfig struct {
	Currency        string `default:"USD" usage:"ISO 4217 currency code for all amounts"`
	TaxRate         string `default:"0.08" usage:"Flat tax rate applied to the discounted subtotal" flag:"tax-rate"`
	DefaultShipping string `default:"5.00" usage:"Flat shipping cost when no rate service responds" flag:"default-shipping"`
	OriginZip       string `default:"" usage:"Warehouse origin ZIP for shipping rate quotes" flag:"origin-zip"`
}

// PaymentConfig points at the card payment processor.
type PaymentConfig struct {
	URL    string `usage:"Payment processor base URL (empty for log-only processing)" flag:"payment-url"`
	APIKey string `usage:"Payment processor API key" flag:"payment-api-key"`
}

// ShippingConfig points at the shipping rate service.
type ShippingConfig struct {
	RateURL string `usage:"Shipping rate service base URL (empty to always use the flat default)" flag:"shipping-rate-url"`
}

// IdentityConfig points at the identity provider used to resolve bearer
// tokens into customer accounts.
type IdentityConfig struct {
	URL string `usage:"Identity provider base URL" flag:"identity-url"`
}

// NotifyConfig points at the customer notification service.
type NotifyConfig struct {
	URL    string `usage:"Notification service base URL (empty to log notifications)" flag:"notify-url"`
	APIKey string `usage:"Notification service API key" flag:"notify-api-key"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if _, err := decimal.NewFromString(cfg.Pricing.TaxRate); err != nil {
		return nil, errors.Wrap(err, "parse tax rate")
	}
	if _, err := decimal.NewFromString(cfg.Pricing.DefaultShipping); err != nil {
		return nil, errors.Wrap(err, "parse default shipping")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
