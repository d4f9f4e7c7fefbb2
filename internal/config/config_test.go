package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/natiweb")
	t.Setenv("LITELLM_BASE_URL", "https://gateway.example.com/")
	t.Setenv("LITELLM_MASTER_KEY", "sk-master")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-role")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "https://gateway.example.com", cfg.Metering.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Metering.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Sweep.Interval)
	assert.True(t, cfg.Sweep.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LITELLM_TIMEOUT", "3s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://nati.dev, https://www.nati.dev,")
	t.Setenv("STRIPE_PRICE_MONTHLY", "price_month")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.Metering.Timeout)
	assert.Equal(t, []string{"https://nati.dev", "https://www.nati.dev"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "price_month", cfg.Stripe.MonthlyPriceID)
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LITELLM_BASE_URL", "")
	t.Setenv("LITELLM_MASTER_KEY", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "LITELLM_MASTER_KEY")
}

func TestProductionRequiresStripe(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", EnvProduction)
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")
}
