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

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// EmailConfig provides settings for the email channel.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetEmailReplyToAddress() string
}

// SMSConfig provides settings for the Twilio SMS channel.
type SMSConfig interface {
	GetTwilioAccountSID() string
	GetTwilioAuthToken() string
	GetTwilioFromNumber() string
	IsSMSEnabled() bool
}

// VoiceConfig provides settings for the outbound voice-call provider.
type VoiceConfig interface {
	GetVoiceAPIKey() string
	GetVoiceAssistantID() string
	GetVoiceFromNumber() string
	IsVoiceEnabled() bool
}

// BookingConfig provides settings for the Calendly booking oracle.
type BookingConfig interface {
	GetCalendlyAPIKey() string
	GetBookingLink() string
	IsBookingEnabled() bool
}

// AnalyzerConfig provides settings for the LLM message analyzer.
type AnalyzerConfig interface {
	GetMoonshotAPIKey() string
	IsAnalyzerEnabled() bool
}

// NotifierConfig provides settings for operator notifications.
type NotifierConfig interface {
	GetSlackBotToken() string
	GetSlackChannel() string
	IsNotifierEnabled() bool
}

// CRMConfig provides settings for the external lead record store.
type CRMConfig interface {
	GetCRMAPIKey() string
	GetCRMBaseURL() string
	IsCRMEnabled() bool
}

// SchedulerConfig provides settings for the task queue and sweep cadence.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSweepInterval() time.Duration
}

// StorageConfig provides settings for MinIO S3-compatible storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketReports() string
	IsMinIOEnabled() bool
}

// CadenceConfig provides the optional cadence override file location.
type CadenceConfig interface {
	GetCadenceFile() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	EmailEnabled        bool
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
	EmailReplyToAddress string
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	VoiceAPIKey         string
	VoiceAssistantID    string
	VoiceFromNumber     string
	CalendlyAPIKey      string
	BookingLink         string
	MoonshotAPIKey      string
	SlackBotToken       string
	SlackChannel        string
	CRMAPIKey           string
	CRMBaseURL          string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueueName      string
	AsynqConcurrency    int
	SweepInterval       time.Duration
	MinIOEndpoint       string
	MinIOAccessKey      string
	MinIOSecretKey      string
	MinIOUseSSL         bool
	MinioBucketReports  string
	CadenceFile         string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool          { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string            { return c.SMTPHost }
func (c *Config) GetSMTPPort() int               { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string        { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string        { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string       { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string    { return c.EmailFromAddress }
func (c *Config) GetEmailReplyToAddress() string { return c.EmailReplyToAddress }

// SMSConfig implementation
func (c *Config) GetTwilioAccountSID() string { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string  { return c.TwilioAuthToken }
func (c *Config) GetTwilioFromNumber() string { return c.TwilioFromNumber }
func (c *Config) IsSMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// VoiceConfig implementation
func (c *Config) GetVoiceAPIKey() string      { return c.VoiceAPIKey }
func (c *Config) GetVoiceAssistantID() string { return c.VoiceAssistantID }
func (c *Config) GetVoiceFromNumber() string  { return c.VoiceFromNumber }
func (c *Config) IsVoiceEnabled() bool        { return c.VoiceAPIKey != "" }

// BookingConfig implementation
func (c *Config) GetCalendlyAPIKey() string { return c.CalendlyAPIKey }
func (c *Config) GetBookingLink() string    { return c.BookingLink }
func (c *Config) IsBookingEnabled() bool    { return c.CalendlyAPIKey != "" }

// AnalyzerConfig implementation
func (c *Config) GetMoonshotAPIKey() string { return c.MoonshotAPIKey }
func (c *Config) IsAnalyzerEnabled() bool   { return c.MoonshotAPIKey != "" }

// NotifierConfig implementation
func (c *Config) GetSlackBotToken() string { return c.SlackBotToken }
func (c *Config) GetSlackChannel() string  { return c.SlackChannel }
func (c *Config) IsNotifierEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// CRMConfig implementation
func (c *Config) GetCRMAPIKey() string  { return c.CRMAPIKey }
func (c *Config) GetCRMBaseURL() string { return c.CRMBaseURL }
func (c *Config) IsCRMEnabled() bool    { return c.CRMAPIKey != "" }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string      { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string     { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string     { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool          { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketReports() string { return c.MinioBucketReports }
func (c *Config) IsMinIOEnabled() bool          { return c.MinIOEndpoint != "" }

// CadenceConfig implementation
func (c *Config) GetCadenceFile() string { return c.CadenceFile }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		EmailEnabled:        emailEnabled && smtpHost != "",
		SMTPHost:            smtpHost,
		SMTPPort:            int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Funnel"),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailReplyToAddress: getEnv("EMAIL_REPLY_TO_ADDRESS", ""),
		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		VoiceAPIKey:         getEnv("VOICE_API_KEY", ""),
		VoiceAssistantID:    getEnv("VOICE_ASSISTANT_ID", ""),
		VoiceFromNumber:     getEnv("VOICE_FROM_NUMBER", ""),
		CalendlyAPIKey:      getEnv("CALENDLY_API_KEY", ""),
		BookingLink:         getEnv("BOOKING_LINK", ""),
		MoonshotAPIKey:      getEnv("MOONSHOT_API_KEY", ""),
		SlackBotToken:       getEnv("SLACK_BOT_TOKEN", ""),
		SlackChannel:        getEnv("SLACK_CHANNEL", "#sales-leads"),
		CRMAPIKey:           getEnv("CRM_API_KEY", ""),
		CRMBaseURL:          getEnv("CRM_BASE_URL", "https://api.close.com/api/v1"),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:      getEnv("ASYNQ_QUEUE_NAME", "funnel"),
		AsynqConcurrency:    int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		SweepInterval:       mustDuration(getEnv("SWEEP_INTERVAL", "12h")),
		MinIOEndpoint:       getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:      getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:      getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:         strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketReports:  getEnv("MINIO_BUCKET_REPORTS", "lead-reports"),
		CadenceFile:         getEnv("CADENCE_FILE", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if emailEnabled && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED is true")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be a positive duration")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
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
