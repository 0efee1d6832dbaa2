// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"fmt"
	"net/url"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables.
// It attempts to load from .env file first (for local development),
// then parses environment variables into the Config struct.
func Load() (*Config, error) {
	// In production (Docker/K8s), environment variables are injected directly
	if err := godotenv.Load(); err != nil {
		logrus.Warnf("no .env file found or error loading it: %v (this is normal in production)", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}
	return cfg, nil
}

// Validate performs custom validation on the configuration.
func (c *Config) Validate() error {
	ports := []struct {
		name string
		port int
	}{
		{"HTTP_PORT", c.HTTPPort},
		{"GRPC_PORT", c.GRPCPort},
		{"METRICS_PORT", c.MetricsPort},
	}
	for _, p := range ports {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("invalid %s: %d (must be 1-65535)", p.name, p.port)
		}
	}
	if c.HTTPPort == c.GRPCPort || c.HTTPPort == c.MetricsPort || c.GRPCPort == c.MetricsPort {
		return fmt.Errorf("HTTP_PORT, GRPC_PORT and METRICS_PORT must differ")
	}

	if c.PayoutInterval <= 0 {
		return fmt.Errorf("invalid PAYOUT_INTERVAL: %v (must be positive)", c.PayoutInterval)
	}
	if c.EntryFee <= 0 {
		return fmt.Errorf("invalid ENTRY_FEE: %v (must be positive)", c.EntryFee)
	}
	if c.LedgerUnitDecimals < 0 || c.LedgerUnitDecimals > 18 {
		return fmt.Errorf("invalid LEDGER_UNIT_DECIMALS: %d (must be 0-18)", c.LedgerUnitDecimals)
	}
	if c.SessionMaxAge <= 0 || c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE and SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.PaymentVerifierTimeout <= 0 || c.LedgerTimeout <= 0 {
		return fmt.Errorf("PAYMENT_VERIFIER_TIMEOUT and LEDGER_TIMEOUT must be positive")
	}
	if c.TreasuryID == "" {
		return fmt.Errorf("TREASURY_ID is required")
	}
	if c.AuditDBPath == "" {
		return fmt.Errorf("AUDIT_DB_PATH is required")
	}

	urls := []struct {
		name     string
		value    string
		required bool
	}{
		{"PAYMENT_VERIFIER_URL", c.PaymentVerifierURL, true},
		{"LEDGER_URL", c.LedgerURL, true},
		{"LEDGER_EXPLORER_URL", c.LedgerExplorerURL, false},
		{"OTEL_ZIPKIN_ENDPOINT", c.OtelZipkinEndpoint, false},
	}
	for _, u := range urls {
		if u.value == "" {
			if u.required {
				return fmt.Errorf("%s is required", u.name)
			}
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid %s: %q (must be an absolute URL)", u.name, u.value)
		}
	}

	if c.AdminToken == "" {
		logrus.Warnf("ADMIN_TOKEN is empty, operator routes are disabled")
	}
	return nil
}
