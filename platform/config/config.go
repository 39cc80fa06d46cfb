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

// Notification delivery modes.
const (
	DeliveryModeInline = "inline"
	DeliveryModeOutbox = "outbox"
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

// NotificationConfig provides settings for notification wording and links.
type NotificationConfig interface {
	GetAppBaseURL() string
	GetDeliveryMode() string
}

// SchedulerConfig provides redis/asynq settings for background jobs.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// OwnershipConfig provides lease settings for the reclamation sweeper.
type OwnershipConfig interface {
	GetLeaseSweepInterval() time.Duration
	GetLeaseStaleThreshold() time.Duration
	GetLeaseSweepBatchSize() int
	GetReclaimToGlobalPool() bool
}

// DispatchConfig provides fanout worker settings.
type DispatchConfig interface {
	GetDispatchWorkers() int
	GetDispatchSendTimeout() time.Duration
}

// EmailConfig provides SMTP settings for the email channel.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromEmail() string
	GetSMTPFromName() string
	IsEmailEnabled() bool
}

// SMSConfig provides settings for the SMS gateway channel.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayKey() string
	GetSMSRatePerSecond() float64
	IsSMSEnabled() bool
}

// RealtimeConfig provides settings for relaying lead state changes.
type RealtimeConfig interface {
	GetAMQPURL() string
	GetAMQPExchange() string
	IsAMQPEnabled() bool
}

// EventBusConfig provides settings for the in-process event bus.
type EventBusConfig interface {
	GetEventBusWorkers() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	JWTAccessSecret     string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	AppBaseURL          string
	DeliveryMode        string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	LeaseSweepInterval  time.Duration
	LeaseStaleThreshold time.Duration
	LeaseSweepBatchSize int
	ReclaimToGlobalPool bool
	DispatchWorkers     int
	DispatchSendTimeout time.Duration
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	SMTPFromEmail       string
	SMTPFromName        string
	SMSGatewayURL       string
	SMSGatewayKey       string
	SMSRatePerSecond    float64
	AMQPURL             string
	AMQPExchange        string
	EventBusWorkers     int
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

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string   { return c.AppBaseURL }
func (c *Config) GetDeliveryMode() string { return c.DeliveryMode }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// OwnershipConfig implementation
func (c *Config) GetLeaseSweepInterval() time.Duration  { return c.LeaseSweepInterval }
func (c *Config) GetLeaseStaleThreshold() time.Duration { return c.LeaseStaleThreshold }
func (c *Config) GetLeaseSweepBatchSize() int           { return c.LeaseSweepBatchSize }
func (c *Config) GetReclaimToGlobalPool() bool          { return c.ReclaimToGlobalPool }

// DispatchConfig implementation
func (c *Config) GetDispatchWorkers() int               { return c.DispatchWorkers }
func (c *Config) GetDispatchSendTimeout() time.Duration { return c.DispatchSendTimeout }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string      { return c.SMTPHost }
func (c *Config) GetSMTPPort() int         { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string  { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string  { return c.SMTPPassword }
func (c *Config) GetSMTPFromEmail() string { return c.SMTPFromEmail }
func (c *Config) GetSMTPFromName() string  { return c.SMTPFromName }
func (c *Config) IsEmailEnabled() bool     { return c.SMTPHost != "" && c.SMTPFromEmail != "" }

// SMSConfig implementation
func (c *Config) GetSMSGatewayURL() string     { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayKey() string     { return c.SMSGatewayKey }
func (c *Config) GetSMSRatePerSecond() float64 { return c.SMSRatePerSecond }
func (c *Config) IsSMSEnabled() bool           { return c.SMSGatewayURL != "" }

// RealtimeConfig implementation
func (c *Config) GetAMQPURL() string      { return c.AMQPURL }
func (c *Config) GetAMQPExchange() string { return c.AMQPExchange }
func (c *Config) IsAMQPEnabled() bool     { return c.AMQPURL != "" }

// EventBusConfig implementation
func (c *Config) GetEventBusWorkers() int { return c.EventBusWorkers }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTAccessSecret:     getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:          strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:4200"), "/"),
		DeliveryMode:        strings.ToLower(getEnv("NOTIFICATION_DELIVERY_MODE", DeliveryModeInline)),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:    positiveInt(getEnv("ASYNQ_CONCURRENCY", "10"), 10),
		LeaseSweepInterval:  positiveDuration(getEnv("LEASE_SWEEP_INTERVAL", "1h"), time.Hour),
		LeaseStaleThreshold: positiveDuration(getEnv("LEASE_STALE_THRESHOLD", "72h"), 72*time.Hour),
		LeaseSweepBatchSize: positiveInt(getEnv("LEASE_SWEEP_BATCH_SIZE", "500"), 500),
		ReclaimToGlobalPool: !strings.EqualFold(getEnv("RECLAIM_TO_GLOBAL_POOL", "true"), "false"),
		DispatchWorkers:     positiveInt(getEnv("DISPATCH_WORKERS", "8"), 8),
		DispatchSendTimeout: positiveDuration(getEnv("DISPATCH_SEND_TIMEOUT", "10s"), 10*time.Second),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            positiveInt(getEnv("SMTP_PORT", "587"), 587),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail:       getEnv("SMTP_FROM_EMAIL", ""),
		SMTPFromName:        getEnv("SMTP_FROM_NAME", "DealerDesk"),
		SMSGatewayURL:       strings.TrimRight(getEnv("SMS_GATEWAY_URL", ""), "/"),
		SMSGatewayKey:       getEnv("SMS_GATEWAY_KEY", ""),
		SMSRatePerSecond:    positiveFloat(getEnv("SMS_RATE_PER_SECOND", "5"), 5),
		AMQPURL:             getEnv("AMQP_URL", ""),
		AMQPExchange:        getEnv("AMQP_EXCHANGE", "lead.state"),
		EventBusWorkers:     positiveInt(getEnv("EVENT_BUS_WORKERS", "16"), 16),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.DeliveryMode {
	case DeliveryModeInline:
	case DeliveryModeOutbox:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when NOTIFICATION_DELIVERY_MODE is outbox")
		}
	default:
		return fmt.Errorf("NOTIFICATION_DELIVERY_MODE must be %q or %q", DeliveryModeInline, DeliveryModeOutbox)
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func positiveDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func positiveInt(value string, fallback int) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || result <= 0 {
		return fallback
	}
	return result
}

func positiveFloat(value string, fallback float64) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || result <= 0 {
		return fallback
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
