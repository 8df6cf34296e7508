package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	LedgerGatewayURL      string
	LedgerAPIKey          string
	LedgerConfirmTimeout  time.Duration
	LedgerPollInterval    time.Duration
	IncidentDateTolerance time.Duration
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	gatewayURL := os.Getenv("LEDGER_GATEWAY_URL")
	if gatewayURL == "" {
		return nil, fmt.Errorf("LEDGER_GATEWAY_URL environment variable is required")
	}

	apiKey := os.Getenv("LEDGER_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("LEDGER_API_KEY environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	confirmTimeout, err := durationEnv("LEDGER_CONFIRM_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := durationEnv("LEDGER_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	dateTolerance, err := durationEnv("INCIDENT_DATE_TOLERANCE", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBSource:              dbSource,
		Port:                  port,
		Env:                   env,
		LedgerGatewayURL:      gatewayURL,
		LedgerAPIKey:          apiKey,
		LedgerConfirmTimeout:  confirmTimeout,
		LedgerPollInterval:    pollInterval,
		IncidentDateTolerance: dateTolerance,
	}, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
