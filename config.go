package main

import (
	"context"
	"encoding/json"
	"os"

	"shipping-gateway/models"
	aws_pkg "shipping-gateway/pkg/aws"
)

// Config holds all configuration for the shipping gateway.
type Config struct {
	Port string

	// Provider API keys; an empty key excludes the provider from fan-out.
	ShippoAPIKey       string
	ShippoTestMode     bool
	EasyPostAPIKey     string
	EasyPostTestMode   bool
	ShipEngineAPIKey   string
	EasyshipAPIKey     string
	DefaultLabelFormat string

	// Durable label storage + events
	LabelBucket      string
	LabelSNSTopicARN string

	// Default sender address for rate requests that omit from_address.
	OriginAddress *models.Address
}

// LoadConfig reads configuration from environment variables with optional
// Secrets Manager override for the provider keys.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		ShippoAPIKey:       os.Getenv("SHIPPO_API_KEY"),
		ShippoTestMode:     os.Getenv("SHIPPO_TEST_MODE") == "true",
		EasyPostAPIKey:     os.Getenv("EASYPOST_API_KEY"),
		EasyPostTestMode:   os.Getenv("EASYPOST_TEST_MODE") == "true",
		ShipEngineAPIKey:   os.Getenv("SHIPENGINE_API_KEY"),
		EasyshipAPIKey:     os.Getenv("EASYSHIP_API_KEY"),
		DefaultLabelFormat: getEnv("LABEL_FORMAT", "PDF"),
		LabelBucket:        os.Getenv("LABEL_S3_BUCKET"),
		LabelSNSTopicARN:   os.Getenv("LABEL_SNS_TOPIC_ARN"),
	}

	if street := os.Getenv("ORIGIN_STREET1"); street != "" {
		cfg.OriginAddress = &models.Address{
			Name:    getEnv("ORIGIN_NAME", "Shipping Department"),
			Street1: street,
			Street2: os.Getenv("ORIGIN_STREET2"),
			City:    os.Getenv("ORIGIN_CITY"),
			State:   os.Getenv("ORIGIN_STATE"),
			Zip:     os.Getenv("ORIGIN_ZIP"),
			Country: getEnv("ORIGIN_COUNTRY", "US"),
			Phone:   os.Getenv("ORIGIN_PHONE"),
			Email:   os.Getenv("ORIGIN_EMAIL"),
		}
	}

	// Override provider keys from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			sm := aws_pkg.NewSecretsClient(awsCfg)
			if keysJSON, err := sm.GetSecret(context.Background(), "shipping-gateway/PROVIDER_KEYS"); err == nil && keysJSON != "" {
				var m map[string]string
				if err := json.Unmarshal([]byte(keysJSON), &m); err == nil {
					if v, ok := m["SHIPPO_API_KEY"]; ok && v != "" {
						cfg.ShippoAPIKey = v
					}
					if v, ok := m["EASYPOST_API_KEY"]; ok && v != "" {
						cfg.EasyPostAPIKey = v
					}
					if v, ok := m["SHIPENGINE_API_KEY"]; ok && v != "" {
						cfg.ShipEngineAPIKey = v
					}
					if v, ok := m["EASYSHIP_API_KEY"]; ok && v != "" {
						cfg.EasyshipAPIKey = v
					}
				}
			}
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
