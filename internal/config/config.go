package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxDispatchAttempts caps delivery tries for one verification email.
const maxDispatchAttempts = 3

// Config holds all runtime configuration loaded from environment variables.
// It is built once at startup and passed explicitly to constructors.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	StoreDriver  string // "dynamo" | "memory"
	DynamoTables DynamoTables

	VerificationSecret   string `json:"-"`
	VerificationTokenTTL time.Duration
	VerifyURL            string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string `json:"-"`

	Dispatch Dispatch

	RateLimitRPS      float64
	RateLimitBurst    int
	TrustProxyHeaders bool     // take the client IP from X-Forwarded-For / X-Real-IP
	AllowedOrigins    []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	EmailVerifications string
}

// Dispatch configures the outbound email queue and its dead-letter sinks.
type Dispatch struct {
	Backend        string // "memory" | "nats"
	Workers        int
	Buffer         int
	MaxAttempts    int
	Backoff        time.Duration
	AttemptTimeout time.Duration

	NATSURL     string
	NATSStream  string
	NATSSubject string
	NATSDurable string

	DeadLetterBucket   string
	DeadLetterTopicARN string
	SNSRegion          string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StoreDriver:    getEnv("STORE_DRIVER", "dynamo"),
		DynamoTables: DynamoTables{
			EmailVerifications: getEnv("DYNAMO_TABLE_EMAIL_VERIFICATIONS", "email_verifications"),
		},
		VerificationSecret:   getEnv("VERIFICATION_SECRET", ""),
		VerificationTokenTTL: getEnvDuration("VERIFICATION_TOKEN_TTL", 30*time.Minute),
		VerifyURL:            getEnv("VERIFY_URL", "http://localhost:5173/verify"),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             getEnv("SMTP_PORT", "1025"),
		SMTPFrom:             getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		Dispatch: Dispatch{
			Backend:            getEnv("DISPATCH_BACKEND", "memory"),
			Workers:            getEnvInt("DISPATCH_WORKERS", 4),
			Buffer:             getEnvInt("DISPATCH_BUFFER", 256),
			MaxAttempts:        getEnvInt("DISPATCH_MAX_ATTEMPTS", 3),
			Backoff:            getEnvDuration("DISPATCH_BACKOFF", 2*time.Second),
			AttemptTimeout:     getEnvDuration("DISPATCH_ATTEMPT_TIMEOUT", 30*time.Second),
			NATSURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			NATSStream:         getEnv("NATS_STREAM", "VERIFICATION"),
			NATSSubject:        getEnv("NATS_SUBJECT", "verification.email"),
			NATSDurable:        getEnv("NATS_DURABLE", "verification-mailer"),
			DeadLetterBucket:   getEnv("DEADLETTER_BUCKET", ""),
			DeadLetterTopicARN: getEnv("DEADLETTER_TOPIC_ARN", ""),
			SNSRegion:          getEnv("SNS_REGION", "us-east-1"),
		},
		RateLimitRPS:      getEnvFloat("RATE_LIMIT_RPS", 0.2),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 5),
		TrustProxyHeaders: getEnv("TRUST_PROXY_HEADERS", "false") == "true",
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// Validate rejects configurations the verification flow cannot run with.
func (c *Config) Validate() error {
	if c.VerificationSecret == "" {
		return errors.New("VERIFICATION_SECRET is required")
	}
	if c.VerificationTokenTTL <= 0 {
		return errors.New("VERIFICATION_TOKEN_TTL must be positive")
	}
	if c.Dispatch.MaxAttempts < 1 || c.Dispatch.MaxAttempts > maxDispatchAttempts {
		return errors.New("DISPATCH_MAX_ATTEMPTS must be between 1 and 3")
	}
	if c.Dispatch.AttemptTimeout < 0 {
		return errors.New("DISPATCH_ATTEMPT_TIMEOUT must not be negative")
	}
	switch c.StoreDriver {
	case "dynamo", "memory":
	default:
		return errors.New("STORE_DRIVER must be dynamo or memory")
	}
	switch c.Dispatch.Backend {
	case "memory", "nats":
	default:
		return errors.New("DISPATCH_BACKEND must be memory or nats")
	}
	return nil
}

// MailConfigured reports whether an outbound mail transport is set up.
func (c *Config) MailConfigured() bool {
	return c.SMTPHost != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
