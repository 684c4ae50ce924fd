package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("POSTGRES_USER", "settle")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "settlement")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("PAYSTACK_SECRET_KEY", "sk_test")
	t.Setenv("AWS_USE_SECRETS", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, "none", cfg.EventBus)
	assert.Equal(t, "none", cfg.LedgerFeePolicy)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Contains(t, cfg.PostgresDSN(), "host=db user=settle")
}

func TestLoadConfigOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PROVIDER_TIMEOUT", "3")
	t.Setenv("RETRY_BASE_DELAY", "1m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("EVENT_BUS", "KAFKA")
	t.Setenv("LEDGER_FEE_POLICY", "merchant")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, time.Minute, cfg.RetryBaseDelay)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "kafka", cfg.EventBus)
	assert.Equal(t, "merchant", cfg.LedgerFeePolicy)
}

func TestLoadConfigValidation(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PAYSTACK_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	setBaseEnv(t)
	t.Setenv("EVENT_BUS", "rabbit")
	_, err = LoadConfig()
	assert.Error(t, err)

	setBaseEnv(t)
	t.Setenv("EVENT_BUS", "none")
	t.Setenv("POSTGRES_PASSWORD", "")
	_, err = LoadConfig()
	assert.Error(t, err)
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecret(_ context.Context, name string) (string, error) {
	if v, ok := f[name]; ok {
		return v, nil
	}
	return "", errors.New("secret not found")
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{PostgresUser: "env-user", PaystackSecretKey: "env-key"}
	applySecrets(context.Background(), cfg, fakeSecrets{
		"settlement/DB_CREDENTIALS":        `{"POSTGRES_USER":"sm-user","POSTGRES_PASSWORD":"sm-pass"}`,
		"settlement/STRIPE_WEBHOOK_SECRET": "whsec_sm",
	})

	assert.Equal(t, "sm-user", cfg.PostgresUser)
	assert.Equal(t, "sm-pass", cfg.PostgresPassword)
	assert.Equal(t, "env-key", cfg.PaystackSecretKey)
	assert.Equal(t, "whsec_sm", cfg.StripeWebhookSecret)
}
