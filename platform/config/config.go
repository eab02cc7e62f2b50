// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis and asynq settings.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SMTPConfig provides settings for the email dispatch channel.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromEmail() string
	GetSMTPFromName() string
	IsSMTPEnabled() bool
}

// SMSConfig provides settings for the SMS gateway dispatch channel.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayKey() string
	GetSMSSender() string
	IsSMSEnabled() bool
}

// RecommendationConfig provides settings for the message recommendation adapter.
type RecommendationConfig interface {
	GetMoonshotAPIKey() string
	GetMoonshotModel() string
	GetRecommendationTimeout() time.Duration
	GetRecommendationRatePerMinute() int
	IsRecommendationEnabled() bool
}

// FollowUpConfig provides settings for the follow-up engine.
type FollowUpConfig interface {
	GetSweepInterval() time.Duration
	GetEvaluationConcurrency() int
	GetPairLockTTL() time.Duration
	GetTimezone() *time.Location
	GetAgingBucketsFile() string
}

// MinIOConfig provides settings for the analytics snapshot archive.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketAnalytics() string
	IsMinIOEnabled() bool
}

// TelemetryConfig provides OpenTelemetry exporter settings.
type TelemetryConfig interface {
	GetOTELEndpoint() string
	GetOTELInsecure() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                         string
	HTTPAddr                    string
	DatabaseURL                 string
	JWTAccessSecret             string
	CORSAllowAll                bool
	CORSOrigins                 []string
	CORSAllowCreds              bool
	RedisURL                    string
	RedisTLSInsecure            bool
	AsynqQueueName              string
	AsynqConcurrency            int
	SMTPHost                    string
	SMTPPort                    int
	SMTPUsername                string
	SMTPPassword                string
	SMTPFromEmail               string
	SMTPFromName                string
	SMSGatewayURL               string
	SMSGatewayKey               string
	SMSSender                   string
	MoonshotAPIKey              string
	MoonshotModel               string
	RecommendationTimeout       time.Duration
	RecommendationRatePerMinute int
	SweepInterval               time.Duration
	EvaluationConcurrency       int
	PairLockTTL                 time.Duration
	Timezone                    *time.Location
	AgingBucketsFile            string
	MinIOEndpoint               string
	MinIOAccessKey              string
	MinIOSecretKey              string
	MinIOUseSSL                 bool
	MinioBucketAnalytics        string
	OTELEndpoint                string
	OTELInsecure                bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string      { return c.SMTPHost }
func (c *Config) GetSMTPPort() int         { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string  { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string  { return c.SMTPPassword }
func (c *Config) GetSMTPFromEmail() string { return c.SMTPFromEmail }
func (c *Config) GetSMTPFromName() string  { return c.SMTPFromName }
func (c *Config) IsSMTPEnabled() bool      { return c.SMTPHost != "" && c.SMTPFromEmail != "" }

// SMSConfig implementation
func (c *Config) GetSMSGatewayURL() string { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayKey() string { return c.SMSGatewayKey }
func (c *Config) GetSMSSender() string     { return c.SMSSender }
func (c *Config) IsSMSEnabled() bool       { return c.SMSGatewayURL != "" }

// RecommendationConfig implementation
func (c *Config) GetMoonshotAPIKey() string                { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotModel() string                 { return c.MoonshotModel }
func (c *Config) GetRecommendationTimeout() time.Duration  { return c.RecommendationTimeout }
func (c *Config) GetRecommendationRatePerMinute() int      { return c.RecommendationRatePerMinute }
func (c *Config) IsRecommendationEnabled() bool            { return c.MoonshotAPIKey != "" }

// FollowUpConfig implementation
func (c *Config) GetSweepInterval() time.Duration  { return c.SweepInterval }
func (c *Config) GetEvaluationConcurrency() int    { return c.EvaluationConcurrency }
func (c *Config) GetPairLockTTL() time.Duration    { return c.PairLockTTL }
func (c *Config) GetAgingBucketsFile() string      { return c.AgingBucketsFile }
func (c *Config) GetTimezone() *time.Location {
	if c.Timezone == nil {
		return time.UTC
	}
	return c.Timezone
}

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketAnalytics() string { return c.MinioBucketAnalytics }
func (c *Config) IsMinIOEnabled() bool            { return c.MinIOEndpoint != "" }

// TelemetryConfig implementation
func (c *Config) GetOTELEndpoint() string { return c.OTELEndpoint }
func (c *Config) GetOTELInsecure() bool   { return c.OTELInsecure }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	tzName := getEnv("FOLLOWUP_TIMEZONE", "UTC")
	location, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid FOLLOWUP_TIMEZONE %q: %w", tzName, err)
	}

	cfg := &Config{
		Env:                         getEnv("APP_ENV", "development"),
		HTTPAddr:                    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		JWTAccessSecret:             getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                corsAllowAll,
		CORSOrigins:                 corsOrigins,
		CORSAllowCreds:              strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                    getEnv("REDIS_URL", ""),
		RedisTLSInsecure:            strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:              getEnv("ASYNQ_QUEUE", "followups"),
		AsynqConcurrency:            mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		SMTPHost:                    getEnv("SMTP_HOST", ""),
		SMTPPort:                    mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail:               getEnv("SMTP_FROM_EMAIL", ""),
		SMTPFromName:                getEnv("SMTP_FROM_NAME", "Lead Follow-ups"),
		SMSGatewayURL:               getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayKey:               getEnv("SMS_GATEWAY_KEY", ""),
		SMSSender:                   getEnv("SMS_SENDER", ""),
		MoonshotAPIKey:              getEnv("MOONSHOT_API_KEY", ""),
		MoonshotModel:               getEnv("MOONSHOT_MODEL", ""),
		RecommendationTimeout:       mustDuration(getEnv("RECOMMENDATION_TIMEOUT", "8s")),
		RecommendationRatePerMinute: mustInt(getEnv("RECOMMENDATION_RATE_PER_MINUTE", "60")),
		SweepInterval:               mustDuration(getEnv("FOLLOWUP_SWEEP_INTERVAL", "5m")),
		EvaluationConcurrency:       mustInt(getEnv("FOLLOWUP_EVAL_CONCURRENCY", "8")),
		PairLockTTL:                 mustDuration(getEnv("FOLLOWUP_LOCK_TTL", "30s")),
		Timezone:                    location,
		AgingBucketsFile:            getEnv("AGING_BUCKETS_FILE", ""),
		MinIOEndpoint:               getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:              getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:              getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                 strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketAnalytics:        getEnv("MINIO_BUCKET_ANALYTICS", "followup-analytics"),
		OTELEndpoint:                getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:                strings.EqualFold(getEnv("OTEL_INSECURE", "false"), "true"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.SweepInterval < time.Minute || cfg.SweepInterval > time.Hour {
		return nil, fmt.Errorf("FOLLOWUP_SWEEP_INTERVAL must be between 1m and 1h")
	}
	if cfg.SMTPHost != "" && cfg.SMTPFromEmail == "" {
		return nil, fmt.Errorf("SMTP_FROM_EMAIL is required when SMTP_HOST is set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
