package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingConfig(t *testing.T) {
	cfg, err := pricingConfig(PricingConfig{
		Currency:        "USD",
		TaxRate:         "0.08",
		DefaultShipping: "5.00",
		OriginZip:       "94103",
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "0.08", cfg.TaxRate.String())
	assert.Equal(t, "5", cfg.DefaultShipping.String())
	assert.Equal(t, "94103", cfg.OriginZip)
}

func TestPricingConfigRejectsBadValues(t *testing.T) {
	_, err := pricingConfig(PricingConfig{TaxRate: "eight percent", DefaultShipping: "5.00"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tax rate")

	_, err = pricingConfig(PricingConfig{TaxRate: "0.08", DefaultShipping: "free"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default shipping")
}
