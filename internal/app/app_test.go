package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/internal/config"
	"github.com/alicebob/miniredis/v2"
)

func testConfig(t *testing.T, mr *miniredis.Miniredis) *config.Config {
	t.Helper()
	return &config.Config{
		HTTPPort:               18000,
		GRPCPort:               16565,
		MetricsPort:            18080,
		ServiceName:            "payplay-test",
		Environment:            "test",
		RedisHost:              mr.Host(),
		RedisPort:              mr.Port(),
		RedisMaxRetries:        1,
		RedisRetryDelayMs:      10,
		AuditDBPath:            filepath.Join(t.TempDir(), "payouts.db"),
		EntryFee:               1,
		SessionMaxAge:          time.Millisecond,
		SessionSweepInterval:   10 * time.Millisecond,
		PayoutInterval:         time.Hour,
		TreasuryID:             "treasury",
		PaymentVerifierURL:     "http://127.0.0.1:1/verify",
		PaymentVerifierTimeout: time.Second,
		LedgerURL:              "http://127.0.0.1:1/batches",
		LedgerTimeout:          time.Second,
		LedgerUnitDecimals:     6,
	}
}

func TestNewAndShutdown(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(context.Background(), testConfig(t, mr))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.stores.Journal.Check(context.Background()); err != nil {
		t.Errorf("audit journal not usable: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr)
	mr.Close()

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("New() should fail when Redis is unreachable")
	}
}

func TestSweeper(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(context.Background(), testConfig(t, mr))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	a.registry.Create()
	a.startSweeper()

	deadline := time.Now().Add(2 * time.Second)
	for a.registry.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("abandoned session was not swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	a.stopSweeper()
	a.stopSweeper()
}
