// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/audit"
	"github.com/AccelByte/extend-payplay-rewards/pkg/common"
	"github.com/AccelByte/extend-payplay-rewards/pkg/metrics"
	"github.com/AccelByte/extend-payplay-rewards/pkg/settlement"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
)

// StatsSource is the part of the stats store a cycle reads and rotates.
type StatsSource interface {
	FeesBetween(ctx context.Context, from, to time.Time) (float64, error)
	CloseDaily(ctx context.Context) ([]stats.PlayerStats, error)
	DiscardClosedDaily(ctx context.Context) error
}

// Journal appends computed cycles to the audit log and reads back the
// latest one when a cycle has to be resumed.
type Journal interface {
	RecordCycle(ctx context.Context, c *audit.Cycle) (int64, error)
	LatestCycle(ctx context.Context) (*audit.Cycle, error)
	Attempts(ctx context.Context, cycleID int64) ([]audit.Attempt, error)
}

// Settler submits a cycle's batch to the ledger.
type Settler interface {
	Settle(ctx context.Context, b settlement.Batch, source string) (*settlement.Result, error)
}

// EngineConfig holds the cycle parameters.
type EngineConfig struct {
	UnitDecimals int
	TreasuryID   string
}

// CycleResult reports one completed cycle.
type CycleResult struct {
	CycleID     int64              `json:"cycleId"`
	CycleAt     time.Time          `json:"cycleAt"`
	WindowStart time.Time          `json:"windowStart"`
	Allocation  *Allocation        `json:"allocation"`
	Settlement  *settlement.Result `json:"settlement,omitempty"`
	ClosedRows  int                `json:"closedRows"`
	Resumed     bool               `json:"resumed,omitempty"`
}

// Engine runs payout cycles.
type Engine struct {
	stats   StatsSource
	journal Journal
	settler Settler
	cfg     EngineConfig
}

// NewEngine creates a payout engine.
func NewEngine(src StatsSource, journal Journal, settler Settler, cfg EngineConfig) *Engine {
	if cfg.TreasuryID == "" {
		cfg.TreasuryID = "treasury"
	}
	return &Engine{
		stats:   src,
		journal: journal,
		settler: settler,
		cfg:     cfg,
	}
}

// RunCycle computes and journals the payout for fees in [windowStart, at)
// and submits it for settlement. lastCycleID is the last cycle the caller
// has recorded as complete.
//
// The daily rows are snapshotted and zeroed in one step before the
// allocation is computed, so a score submitted during settlement counts
// towards the next cycle. A journaled cycle newer than lastCycleID is
// resumed instead of computing a new one: its journaled batch is settled
// only if it was never submitted.
//
// An error means the cycle's bookkeeping did not complete and the caller
// must not advance its clock. A settlement failure is not an error: it is
// journaled and reported in the result.
func (e *Engine) RunCycle(ctx context.Context, windowStart, at time.Time, lastCycleID int64) (res *CycleResult, err error) {
	scope := common.StartScope(ctx, "payout.cycle")
	defer scope.Finish()

	started := time.Now()
	defer func() {
		metrics.PayoutCycleDuration.Observe(time.Since(started).Seconds())
		outcome := "completed"
		switch {
		case err != nil:
			outcome = "error"
			scope.TraceError(err)
		case res.Settlement != nil && res.Settlement.Status == audit.StatusFailed:
			outcome = "settlement_failed"
		}
		metrics.PayoutCycles.WithLabelValues(outcome).Inc()
	}()

	latest, err := e.journal.LatestCycle(scope.Ctx)
	if err != nil {
		return nil, fmt.Errorf("read latest payout cycle: %w", err)
	}
	if latest != nil && latest.ID > lastCycleID {
		return e.resume(scope, latest)
	}

	pool, err := e.stats.FeesBetween(scope.Ctx, windowStart, at)
	if err != nil {
		return nil, fmt.Errorf("read fee pool: %w", err)
	}
	daily, err := e.stats.CloseDaily(scope.Ctx)
	if err != nil {
		return nil, fmt.Errorf("close daily stats: %w", err)
	}

	alloc := Compute(pool, daily, e.cfg.UnitDecimals)
	scope.Tag("payout.pool", pool)
	scope.Tag("payout.awards", len(alloc.Awards))

	cycleID, err := e.journal.RecordCycle(scope.Ctx, e.auditCycle(alloc, windowStart, at))
	if err != nil {
		return nil, fmt.Errorf("journal payout cycle: %w", err)
	}
	scope.Tag("cycleID", cycleID)
	scope.TraceEvent("journaled")
	scope.Log.Infof("payout cycle %d journaled: pool=%v awards=%d treasury=%v",
		cycleID, pool, len(alloc.Awards), alloc.Treasury)

	if err := e.stats.DiscardClosedDaily(scope.Ctx); err != nil {
		return nil, fmt.Errorf("release daily snapshot of cycle %d: %w", cycleID, err)
	}

	res = &CycleResult{
		CycleID:     cycleID,
		CycleAt:     at,
		WindowStart: windowStart,
		Allocation:  alloc,
		ClosedRows:  len(daily),
	}
	recipients, units := alloc.Payable()
	res.Settlement = e.settle(scope, settlement.Batch{CycleID: cycleID, Recipients: recipients, Amounts: units})
	return res, nil
}

// resume finishes a journaled cycle whose completion was never recorded.
func (e *Engine) resume(scope *common.Scope, c *audit.Cycle) (*CycleResult, error) {
	scope.Tag("cycleID", c.ID)
	scope.Log.Warnf("payout cycle %d was journaled but never completed, resuming it", c.ID)

	if err := e.stats.DiscardClosedDaily(scope.Ctx); err != nil {
		return nil, fmt.Errorf("release daily snapshot of cycle %d: %w", c.ID, err)
	}
	attempts, err := e.journal.Attempts(scope.Ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("read settlement attempts of cycle %d: %w", c.ID, err)
	}

	res := &CycleResult{
		CycleID:     c.ID,
		CycleAt:     c.CycleAt,
		WindowStart: c.WindowStart,
		Allocation:  allocationFromCycle(c),
		Resumed:     true,
	}
	if len(attempts) == 0 {
		res.Settlement = e.settle(scope, settlement.BatchFromEntries(c.ID, c.Entries))
		return res, nil
	}

	// already submitted; a failed submission is left to the replay tool
	last := attempts[len(attempts)-1]
	for _, a := range attempts {
		if a.Status == audit.StatusSettled {
			last = a
		}
	}
	res.Settlement = &settlement.Result{
		CycleID:   c.ID,
		Status:    last.Status,
		TxRef:     last.TxRef,
		AuditLink: last.AuditLink,
		Error:     last.Error,
		At:        last.AttemptedAt,
	}
	scope.Log.Infof("payout cycle %d already submitted (%s), not settling again", c.ID, last.Status)
	return res, nil
}

func (e *Engine) settle(scope *common.Scope, b settlement.Batch) *settlement.Result {
	if len(b.Recipients) == 0 {
		scope.Log.Infof("payout cycle %d has nothing to settle", b.CycleID)
		return nil
	}
	sr, err := e.settler.Settle(scope.Ctx, b, audit.SourceScheduled)
	if err != nil {
		scope.Log.Errorf("payout cycle %d not settled, journal kept for replay: %v", b.CycleID, err)
	}
	return sr
}

func allocationFromCycle(c *audit.Cycle) *Allocation {
	alloc := &Allocation{
		Pool:       c.Pool,
		VolumePool: c.VolumePool,
		PeakPool:   c.PeakPool,
		Treasury:   c.Treasury,
	}
	for _, en := range c.Entries {
		switch en.Kind {
		case audit.KindTreasury:
			alloc.TreasuryUnits = en.Units
		case audit.KindPlayer:
			alloc.Awards = append(alloc.Awards, Award{
				Player:     en.Recipient,
				DailyTotal: en.DailyTotal,
				DailyHigh:  en.DailyHigh,
				Volume:     en.VolumeShare,
				Peak:       en.PeakShare,
				Total:      en.Reward,
				Units:      en.Units,
			})
		}
	}
	return alloc
}

func (e *Engine) auditCycle(alloc *Allocation, windowStart, at time.Time) *audit.Cycle {
	c := &audit.Cycle{
		CycleAt:      at,
		WindowStart:  windowStart,
		Pool:         alloc.Pool,
		VolumePool:   alloc.VolumePool,
		PeakPool:     alloc.PeakPool,
		Treasury:     alloc.Treasury,
		UnitDecimals: e.cfg.UnitDecimals,
	}
	for _, a := range alloc.Awards {
		c.Entries = append(c.Entries, audit.Entry{
			Kind:        audit.KindPlayer,
			Recipient:   a.Player,
			DailyTotal:  a.DailyTotal,
			DailyHigh:   a.DailyHigh,
			VolumeShare: a.Volume,
			PeakShare:   a.Peak,
			Reward:      a.Total,
			Units:       a.Units,
		})
	}
	if alloc.Treasury > 0 {
		c.Entries = append(c.Entries, audit.Entry{
			Kind:      audit.KindTreasury,
			Recipient: e.cfg.TreasuryID,
			Reward:    alloc.Treasury,
			Units:     alloc.TreasuryUnits,
		})
	}
	return c
}
