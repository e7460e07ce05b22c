package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test")
	t.Setenv("RAZORPAY_KEY_SECRET", "rzp_secret")
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.PaymentIntentTimeout)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 0, cfg.SendGridMaxRetries)
}

func TestLoad_Overrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("PAYMENT_INTENT_TIMEOUT", "3s")
	t.Setenv("NOTIFIER_WORKERS", "not-a-number")
	t.Setenv("PAYMENT_CURRENCY", "usd")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.PaymentIntentTimeout)
	assert.Equal(t, 4, cfg.NotifierWorkers)
	assert.Equal(t, "USD", cfg.Currency)
}

func TestLoad_MissingPaymentKeys(t *testing.T) {
	setSecrets(t)
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("RAZORPAY_KEY_SECRET", " ")

	_, err := Load()

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSecret))
	assert.Contains(t, err.Error(), "RAZORPAY_KEY_SECRET, STRIPE_SECRET_KEY")
}
