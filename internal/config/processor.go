package config

import (
	"os"
	"strconv"
	"time"
)

// ProcessorConfig holds the connection settings for the external PIX
// payment processor.
type ProcessorConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Timeout      time.Duration
}

func LoadProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		BaseURL:      getEnv("PROCESSOR_BASE_URL", "https://api.misticpay.com"),
		ClientID:     getEnv("PROCESSOR_CLIENT_ID", ""),
		ClientSecret: getEnv("PROCESSOR_CLIENT_SECRET", ""),
		CallbackURL:  getEnv("PROCESSOR_CALLBACK_URL", "http://localhost:8080/webhook/pix"),
		Timeout:      getEnvAsDuration("PROCESSOR_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
