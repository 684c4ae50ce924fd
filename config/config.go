package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	aws_pkg "github.com/yashrajoria/settlement-service/pkg/aws"
)

// Config holds all configuration for the settlement service.
type Config struct {
	Port   string
	AppEnv string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	PaystackSecretKey   string
	PaystackBaseURL     string
	StripeAPIKey        string
	StripeWebhookSecret string
	ProviderTimeout     time.Duration

	RetryQueueURL    string
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	EventBus            string // sns | kafka | none
	PaymentSNSTopicARN  string
	KafkaBrokers        []string
	KafkaTopic          string
	RedisURL            string
	StatusCacheTTL      time.Duration
	AuditBucket         string
	LedgerFeePolicy     string
	JWTSecret           string
	CloudWatchEnabled   bool
	VerifyRatePerSecond float64
	VerifyRateBurst     int
}

// LoadConfig reads configuration from the environment (optionally seeded from
// a .env file) with Secrets Manager overrides when AWS_USE_SECRETS=true.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:   getEnv("PORT", "8095"),
		AppEnv: getEnv("APP_ENV", "development"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		PaystackSecretKey:   os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:     getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		ProviderTimeout:     getDuration("PROVIDER_TIMEOUT", 10*time.Second),

		RetryQueueURL:    os.Getenv("RETRY_QUEUE_URL"),
		RetryMaxAttempts: getInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   getDuration("RETRY_BASE_DELAY", 30*time.Second),

		EventBus:            strings.ToLower(getEnv("EVENT_BUS", "none")),
		PaymentSNSTopicARN:  os.Getenv("PAYMENT_SNS_TOPIC_ARN"),
		KafkaBrokers:        splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "payment-events"),
		RedisURL:            os.Getenv("REDIS_URL"),
		StatusCacheTTL:      getDuration("STATUS_CACHE_TTL", 30*time.Second),
		AuditBucket:         os.Getenv("AUDIT_BUCKET"),
		LedgerFeePolicy:     strings.ToLower(getEnv("LEDGER_FEE_POLICY", "none")),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CloudWatchEnabled:   os.Getenv("CLOUDWATCH_ENABLED") == "true",
		VerifyRatePerSecond: cast.ToFloat64(getEnv("VERIFY_RATE_PER_SECOND", "5")),
		VerifyRateBurst:     getInt("VERIFY_RATE_BURST", 10),
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			applySecrets(context.Background(), cfg, aws_pkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SecretGetter is satisfied by pkg/aws.SecretsClient.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

func applySecrets(ctx context.Context, cfg *Config, sm SecretGetter) {
	if dbjson, err := sm.GetSecret(ctx, "settlement/DB_CREDENTIALS"); err == nil && dbjson != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(dbjson), &m); err == nil {
			override(&cfg.PostgresUser, m["POSTGRES_USER"])
			override(&cfg.PostgresPassword, m["POSTGRES_PASSWORD"])
			override(&cfg.PostgresDB, m["POSTGRES_DB"])
			override(&cfg.PostgresHost, m["POSTGRES_HOST"])
			override(&cfg.PostgresPort, m["POSTGRES_PORT"])
		}
	}
	if v, err := sm.GetSecret(ctx, "settlement/PAYSTACK_SECRET_KEY"); err == nil {
		override(&cfg.PaystackSecretKey, v)
	}
	if v, err := sm.GetSecret(ctx, "settlement/STRIPE_API_KEY"); err == nil {
		override(&cfg.StripeAPIKey, v)
	}
	if v, err := sm.GetSecret(ctx, "settlement/STRIPE_WEBHOOK_SECRET"); err == nil {
		override(&cfg.StripeWebhookSecret, v)
	}
	if v, err := sm.GetSecret(ctx, "settlement/JWT_SECRET"); err == nil {
		override(&cfg.JWTSecret, v)
	}
}

func (c *Config) Validate() error {
	if c.PostgresUser == "" || c.PostgresPassword == "" || c.PostgresDB == "" || c.PostgresHost == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.PaystackSecretKey == "" && c.StripeWebhookSecret == "" {
		return fmt.Errorf("no payment provider configured: set PAYSTACK_SECRET_KEY or STRIPE_WEBHOOK_SECRET")
	}
	switch c.EventBus {
	case "sns", "kafka", "none":
	default:
		return fmt.Errorf("EVENT_BUS must be sns, kafka or none, got %q", c.EventBus)
	}
	switch c.LedgerFeePolicy {
	case "none", "merchant":
	default:
		return fmt.Errorf("LEDGER_FEE_POLICY must be none or merchant, got %q", c.LedgerFeePolicy)
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// PostgresDSN builds the lib/pq style connection string used by gorm's postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB,
		c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := cast.ToIntE(os.Getenv(key))
	if err != nil || v == 0 {
		return fallback
	}
	return v
}

// getDuration accepts Go durations ("45s") or plain seconds ("45").
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if secs, err := cast.ToIntE(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := cast.ToDurationE(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
