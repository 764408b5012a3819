package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port string

	// Replicas
	CacheDBPath  string
	DatabaseFile string
	ExportDir    string

	// AMQP; an empty URL disables change notifications
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror; an empty spreadsheet id keeps the mirror in memory
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// WhatsApp Cloud API
	WhatsAppBaseURL       string
	WhatsAppAPIVersion    string
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppCountryCode   string

	// Backup reminder
	BackupReminderDays     int
	BackupReminderSchedule string

	// Logging
	LogLevel  string
	LogFormat string

	// Worker
	SyncInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		CacheDBPath:  getEnv("CACHE_DB_PATH", "./data/harvester.db"),
		DatabaseFile: getEnv("DATABASE_FILE", ""),
		ExportDir:    getEnv("EXPORT_DIR", "."),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "harvester"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "records_changed"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Farmers"),

		WhatsAppBaseURL:       getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppCountryCode:   getEnv("WHATSAPP_COUNTRY_CODE", "91"),

		BackupReminderDays:     getEnvInt("BACKUP_REMINDER_DAYS", 7),
		BackupReminderSchedule: getEnv("BACKUP_REMINDER_SCHEDULE", "0 9 * * *"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		SyncInterval: getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
	}
}

// WhatsAppEnabled reports whether direct bill delivery is configured.
func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneNumberID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.CacheDBPath == "" {
		errors = append(errors, "cache database path cannot be empty")
	} else if dir := filepath.Dir(c.CacheDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create cache database directory '%s': %v", dir, err))
			}
		}
	}

	if c.DatabaseFile != "" && filepath.Ext(c.DatabaseFile) != ".json" {
		errors = append(errors, fmt.Sprintf("invalid database file '%s': must end in .json", c.DatabaseFile))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet id is set")
	}

	// Token and phone number id only make sense together.
	if (c.WhatsAppToken == "") != (c.WhatsAppPhoneNumberID == "") {
		errors = append(errors, "WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID must be set together")
	}
	if c.WhatsAppEnabled() {
		if u, err := url.Parse(c.WhatsAppBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid WhatsApp base URL '%s'", c.WhatsAppBaseURL))
		}
	}

	if c.BackupReminderDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid backup reminder days %d: must be at least 1", c.BackupReminderDays))
	}
	if _, err := cron.ParseStandard(c.BackupReminderSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid backup reminder schedule '%s': %v", c.BackupReminderSchedule, err))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "tint":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of text, json, tint", c.LogFormat))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
