// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import "time"

// Config holds all application configuration loaded from environment variables.
// This struct uses github.com/caarlos0/env for automatic environment variable parsing.
type Config struct {
	// Server configuration
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8000"`
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"6565"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"PayPlayRewards"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisMaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`

	// Payout audit journal
	AuditDBPath string `env:"AUDIT_DB_PATH" envDefault:"data/payouts.db"`

	// Game sessions
	EntryFee             float64       `env:"ENTRY_FEE" envDefault:"1"`
	SessionMaxAge        time.Duration `env:"SESSION_MAX_AGE" envDefault:"1h"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"5m"`

	// Payout cycle
	PayoutInterval time.Duration `env:"PAYOUT_INTERVAL" envDefault:"24h"`
	TreasuryID     string        `env:"TREASURY_ID" envDefault:"treasury"`

	// Payment verifier
	PaymentVerifierURL     string        `env:"PAYMENT_VERIFIER_URL,required"`
	PaymentVerifierTimeout time.Duration `env:"PAYMENT_VERIFIER_TIMEOUT" envDefault:"10s"`

	// Settlement ledger
	LedgerURL            string        `env:"LEDGER_URL,required"`
	LedgerTimeout        time.Duration `env:"LEDGER_TIMEOUT" envDefault:"30s"`
	LedgerUnitDecimals   int           `env:"LEDGER_UNIT_DECIMALS" envDefault:"6"`
	LedgerExplorerURL    string        `env:"LEDGER_EXPLORER_URL"`
	SettlementMaxRetries uint64        `env:"SETTLEMENT_MAX_RETRIES" envDefault:"0"`

	// Operator routes are disabled while empty
	AdminToken string `env:"ADMIN_TOKEN"`

	// Telemetry configuration
	OtelEnabled        bool   `env:"OTEL_ENABLED" envDefault:"true"`
	OtelZipkinEndpoint string `env:"OTEL_ZIPKIN_ENDPOINT"`
}
