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
	GetDatabaseMaxConns() int32
	GetDatabaseAppName() string
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

// SchedulerConfig provides Redis and asynq settings shared by the API and the scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// ZohoConfig provides credentials and limits for the external CRM.
type ZohoConfig interface {
	GetZohoClientID() string
	GetZohoClientSecret() string
	GetZohoRefreshToken() string
	GetZohoAccountsURL() string
	GetZohoAPIBaseURL() string
	GetZohoTokenSafetyMargin() time.Duration
	GetZohoRequestsPerSecond() float64
	IsZohoEnabled() bool
}

// SyncConfig provides settings for the reconciliation job.
type SyncConfig interface {
	GetSyncDailyHour() int
	GetSyncDailyMinute() int
	GetSyncPartnerDelay() time.Duration
	GetSyncPartnerTimeout() time.Duration
	GetSyncLockTTL() time.Duration
}

// WebhookConfig provides settings for inbound CRM webhooks.
type WebhookConfig interface {
	GetWebhookSecret() string
	GetWebhookTimeout() time.Duration
}

// EmailConfig provides settings for SMTP delivery.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketSyncReports() string
	IsMinIOEnabled() bool
}

// Config holds every setting loaded from the environment.
type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	DatabaseMaxConns int32
	DatabaseAppName  string
	MigrationsOnBoot bool
	JWTAccessSecret  string
	CORSAllowAll     bool
	CORSOrigins      []string
	CORSAllowCreds   bool
	AppBaseURL       string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	ZohoClientID          string
	ZohoClientSecret      string
	ZohoRefreshToken      string
	ZohoAccountsURL       string
	ZohoAPIBaseURL        string
	ZohoTokenSafetyMargin time.Duration
	ZohoRequestsPerSecond float64

	SyncDailyHour      int
	SyncDailyMinute    int
	SyncPartnerDelay   time.Duration
	SyncPartnerTimeout time.Duration
	SyncLockTTL        time.Duration

	WebhookSecret  string
	WebhookTimeout time.Duration

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOUseSSL            bool
	MinioBucketSyncReports string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int32 { return c.DatabaseMaxConns }
func (c *Config) GetDatabaseAppName() string { return c.DatabaseAppName }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// ZohoConfig implementation
func (c *Config) GetZohoClientID() string                 { return c.ZohoClientID }
func (c *Config) GetZohoClientSecret() string             { return c.ZohoClientSecret }
func (c *Config) GetZohoRefreshToken() string             { return c.ZohoRefreshToken }
func (c *Config) GetZohoAccountsURL() string              { return c.ZohoAccountsURL }
func (c *Config) GetZohoAPIBaseURL() string               { return c.ZohoAPIBaseURL }
func (c *Config) GetZohoTokenSafetyMargin() time.Duration { return c.ZohoTokenSafetyMargin }
func (c *Config) GetZohoRequestsPerSecond() float64       { return c.ZohoRequestsPerSecond }
func (c *Config) IsZohoEnabled() bool {
	return c.ZohoClientID != "" && c.ZohoClientSecret != "" && c.ZohoRefreshToken != ""
}

// SyncConfig implementation
func (c *Config) GetSyncDailyHour() int                { return c.SyncDailyHour }
func (c *Config) GetSyncDailyMinute() int              { return c.SyncDailyMinute }
func (c *Config) GetSyncPartnerDelay() time.Duration   { return c.SyncPartnerDelay }
func (c *Config) GetSyncPartnerTimeout() time.Duration { return c.SyncPartnerTimeout }
func (c *Config) GetSyncLockTTL() time.Duration        { return c.SyncLockTTL }

// WebhookConfig implementation
func (c *Config) GetWebhookSecret() string         { return c.WebhookSecret }
func (c *Config) GetWebhookTimeout() time.Duration { return c.WebhookTimeout }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string          { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string         { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string         { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool              { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketSyncReports() string { return c.MinioBucketSyncReports }
func (c *Config) IsMinIOEnabled() bool              { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	dailyHour, dailyMinute, err := parseDailyTime(getEnv("SYNC_DAILY_AT", "02:00"))
	if err != nil {
		return nil, err
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: int32(mustInt64(getEnv("DB_MAX_CONNS", "10"))),
		DatabaseAppName:  getEnv("DB_APP_NAME", "portal-usap"),
		MigrationsOnBoot: strings.EqualFold(getEnv("MIGRATIONS_ON_BOOT", "true"), "true"),
		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		CORSAllowCreds:   strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:3000"),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "5"))),

		ZohoClientID:          getEnv("ZOHO_CLIENT_ID", ""),
		ZohoClientSecret:      getEnv("ZOHO_CLIENT_SECRET", ""),
		ZohoRefreshToken:      getEnv("ZOHO_REFRESH_TOKEN", ""),
		ZohoAccountsURL:       getEnv("ZOHO_ACCOUNTS_URL", "https://accounts.zoho.com"),
		ZohoAPIBaseURL:        getEnv("ZOHO_API_BASE_URL", "https://www.zohoapis.com/crm/v2"),
		ZohoTokenSafetyMargin: mustDuration(getEnv("ZOHO_TOKEN_SAFETY_MARGIN", "5m")),
		ZohoRequestsPerSecond: mustFloat(getEnv("ZOHO_REQUESTS_PER_SECOND", "5")),

		SyncDailyHour:      dailyHour,
		SyncDailyMinute:    dailyMinute,
		SyncPartnerDelay:   mustDuration(getEnv("SYNC_PARTNER_DELAY", "1s")),
		SyncPartnerTimeout: mustDuration(getEnv("SYNC_PARTNER_TIMEOUT", "2m")),
		SyncLockTTL:        mustDuration(getEnv("SYNC_LOCK_TTL", "2h")),

		WebhookSecret:  getEnv("ZOHO_WEBHOOK_SECRET", ""),
		WebhookTimeout: mustDuration(getEnv("WEBHOOK_TIMEOUT", "15s")),

		EmailEnabled:     emailEnabled && smtpHost != "",
		SMTPHost:         smtpHost,
		SMTPPort:         int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Partner Portal"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		MinIOEndpoint:          getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:         getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:         getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:            strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketSyncReports: getEnv("MINIO_BUCKET_SYNC_REPORTS", "crm-sync-reports"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.WebhookSecret == "" && strings.EqualFold(cfg.Env, "production") {
		return nil, fmt.Errorf("ZOHO_WEBHOOK_SECRET is required in production")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.SyncPartnerTimeout <= 0 {
		return nil, fmt.Errorf("SYNC_PARTNER_TIMEOUT must be a positive duration")
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

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

// parseDailyTime parses "HH:MM" (UTC).
func parseDailyTime(value string) (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("SYNC_DAILY_AT must be HH:MM: %w", err)
	}
	return parsed.Hour(), parsed.Minute(), nil
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
