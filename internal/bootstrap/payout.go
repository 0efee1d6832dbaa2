// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/broadcast"
	"github.com/AccelByte/extend-payplay-rewards/pkg/payout"
	"github.com/AccelByte/extend-payplay-rewards/pkg/scheduler"
	"github.com/AccelByte/extend-payplay-rewards/pkg/settlement"
	"github.com/sirupsen/logrus"
)

// PayoutConfig holds the cycle and settlement settings.
type PayoutConfig struct {
	Interval      time.Duration
	TreasuryID    string
	UnitDecimals  int
	LedgerURL     string
	LedgerTimeout time.Duration
	MaxRetries    uint64
	ExplorerURL   string
}

// PayoutStack is the wired payout pipeline: settlement feeds the engine,
// the engine feeds the scheduler.
type PayoutStack struct {
	Settlement *settlement.Client
	Engine     *payout.Engine
	Scheduler  *scheduler.Scheduler
}

// NewSettlementClient creates the ledger client used by scheduled cycles
// and the replay tool alike.
func NewSettlementClient(stores *Stores, events settlement.Publisher, cfg PayoutConfig) *settlement.Client {
	ledger := settlement.NewHTTPLedger(cfg.LedgerURL, cfg.LedgerTimeout)
	return settlement.NewClient(ledger, stores.Journal, events, settlement.Config{
		Timeout:     cfg.LedgerTimeout,
		MaxRetries:  cfg.MaxRetries,
		ExplorerURL: cfg.ExplorerURL,
	})
}

// InitPayoutStack wires settlement, engine and scheduler. clock may be nil
// for the wall clock.
func InitPayoutStack(stores *Stores, events *broadcast.Broadcaster, clock scheduler.Clock, cfg PayoutConfig) *PayoutStack {
	client := NewSettlementClient(stores, events, cfg)
	engine := payout.NewEngine(stores.Stats, stores.Journal, client, payout.EngineConfig{
		UnitDecimals: cfg.UnitDecimals,
		TreasuryID:   cfg.TreasuryID,
	})
	sched := scheduler.New(engine, stores.Status, clock, cfg.Interval)

	logrus.Infof("initialized payout stack (interval %v, %d decimals, %d settlement retries)",
		cfg.Interval, cfg.UnitDecimals, cfg.MaxRetries)

	return &PayoutStack{
		Settlement: client,
		Engine:     engine,
		Scheduler:  sched,
	}
}
