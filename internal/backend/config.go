package backend

import (
	"fmt"

	"harvester/internal/config"
	"harvester/internal/share"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	return Config{
		CacheDBPath:  appConfig.CacheDBPath,
		DatabaseFile: appConfig.DatabaseFile,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleSheetName:     appConfig.GoogleSheetName,

		WhatsApp: share.WhatsAppConfig{
			BaseURL:       appConfig.WhatsAppBaseURL,
			APIVersion:    appConfig.WhatsAppAPIVersion,
			AccessToken:   appConfig.WhatsAppToken,
			PhoneNumberID: appConfig.WhatsAppPhoneNumberID,
			CountryCode:   appConfig.WhatsAppCountryCode,
		},
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.CacheDBPath == "" {
		return fmt.Errorf("cache database path is required")
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP exchange and queue are required when AMQP URL is set")
	}
	return nil
}
