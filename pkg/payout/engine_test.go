package payout

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/audit"
	"github.com/AccelByte/extend-payplay-rewards/pkg/settlement"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// mockSettler implements Settler for testing
type mockSettler struct {
	batches  []settlement.Batch
	settleFn func(ctx context.Context, b settlement.Batch) (*settlement.Result, error)
}

func (m *mockSettler) Settle(ctx context.Context, b settlement.Batch, source string) (*settlement.Result, error) {
	m.batches = append(m.batches, b)
	if m.settleFn != nil {
		return m.settleFn(ctx, b)
	}
	return &settlement.Result{CycleID: b.CycleID, Status: audit.StatusSettled, TxRef: "tx-ok", Attempts: 1}, nil
}

// failingJournal implements Journal for testing
type failingJournal struct{}

func (failingJournal) RecordCycle(ctx context.Context, c *audit.Cycle) (int64, error) {
	return 0, apperr.Unavailable("insert payout cycle", errors.New("disk full"))
}

func (failingJournal) LatestCycle(ctx context.Context) (*audit.Cycle, error) { return nil, nil }

func (failingJournal) Attempts(ctx context.Context, cycleID int64) ([]audit.Attempt, error) {
	return nil, nil
}

// flakyStats fails DiscardClosedDaily a set number of times
type flakyStats struct {
	*stats.RedisStatsStore
	discardFailures int
}

func (f *flakyStats) DiscardClosedDaily(ctx context.Context) error {
	if f.discardFailures > 0 {
		f.discardFailures--
		return apperr.Unavailable("discard closed daily stats", errors.New("connection reset"))
	}
	return f.RedisStatsStore.DiscardClosedDaily(ctx)
}

type engineFixture struct {
	store   *stats.RedisStatsStore
	journal *audit.Journal
	settler *mockSettler
	engine  *Engine
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	journal, err := audit.Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })

	f := &engineFixture{
		store:   stats.NewRedisStatsStore(client, stats.RedisStatsStoreConfig{}),
		journal: journal,
		settler: &mockSettler{},
	}
	f.engine = NewEngine(f.store, f.journal, f.settler, EngineConfig{UnitDecimals: 6, TreasuryID: "house"})
	return f
}

func (f *engineFixture) play(t *testing.T, player string, scores ...int64) {
	t.Helper()
	for _, s := range scores {
		if _, err := f.store.UpdatePlayerStats(context.Background(), player, s); err != nil {
			t.Fatalf("UpdatePlayerStats() error = %v", err)
		}
	}
}

func (f *engineFixture) fee(t *testing.T, amount float64, at time.Time) {
	t.Helper()
	if _, err := f.store.RecordFee(context.Background(), amount, at, ""); err != nil {
		t.Fatalf("RecordFee() error = %v", err)
	}
}

func (f *engineFixture) journalAttempt(t *testing.T, cycleID int64, status, txRef string) {
	t.Helper()
	err := f.journal.RecordAttempt(context.Background(), &audit.Attempt{
		CycleID: cycleID, Source: audit.SourceScheduled, Status: status, TxRef: txRef,
	})
	if err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}
}

func TestRunCycle_FullScenario(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	at := windowStart.Add(24 * time.Hour)

	f.fee(t, 1, windowStart.Add(-time.Minute)) // previous cycle
	for i := 0; i < 3; i++ {
		f.fee(t, 1, windowStart.Add(time.Duration(i+1)*time.Hour))
	}
	f.play(t, "A", 10)
	f.play(t, "B", 20)

	res, err := f.engine.RunCycle(ctx, windowStart, at, 0)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if !approx(res.Allocation.Pool, 3) {
		t.Errorf("pool = %v, expected 3", res.Allocation.Pool)
	}
	if len(f.settler.batches) != 1 {
		t.Fatalf("settled %d batches, expected 1", len(f.settler.batches))
	}
	batch := f.settler.batches[0]
	if batch.CycleID != res.CycleID || len(batch.Recipients) != 2 {
		t.Fatalf("batch = %+v", batch)
	}
	if batch.Recipients[0] != "A" || batch.Amounts[0] != 925000 || batch.Recipients[1] != "B" || batch.Amounts[1] != 1925000 {
		t.Errorf("batch = %+v, expected A:925000 B:1925000", batch)
	}

	cycle, err := f.journal.Cycle(ctx, res.CycleID)
	if err != nil {
		t.Fatalf("journal Cycle() error = %v", err)
	}
	if len(cycle.Entries) != 3 {
		t.Fatalf("journal entries = %+v, expected A, B and treasury", cycle.Entries)
	}
	treasury := cycle.Entries[2]
	if treasury.Kind != audit.KindTreasury || treasury.Recipient != "house" || treasury.Units != 150000 {
		t.Errorf("treasury entry = %+v", treasury)
	}
	if cycle.Entries[0].DailyTotal != 10 || cycle.Entries[0].DailyHigh != 10 {
		t.Errorf("entry A = %+v, expected daily total and high of 10", cycle.Entries[0])
	}

	for _, p := range []string{"A", "B"} {
		daily, _ := f.store.GetDaily(ctx, p)
		if daily.TotalScore != 0 || daily.GamesPlayed != 0 {
			t.Errorf("daily %s not reset: %+v", p, daily)
		}
		lifetime, _ := f.store.GetLifetime(ctx, p)
		if lifetime.GamesPlayed != 1 {
			t.Errorf("lifetime %s changed by cycle: %+v", p, lifetime)
		}
	}
	if res.ClosedRows != 2 {
		t.Errorf("ClosedRows = %d, expected 2", res.ClosedRows)
	}
}

func TestRunCycle_SettlementFailureKeepsJournalAndResets(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	f.settler.settleFn = func(ctx context.Context, b settlement.Batch) (*settlement.Result, error) {
		return &settlement.Result{CycleID: b.CycleID, Status: audit.StatusFailed, Error: "reverted"},
			apperr.New(apperr.CodeSettlementFailed, "reverted")
	}
	f.fee(t, 2, windowStart.Add(time.Hour))
	f.play(t, "A", 4)

	res, err := f.engine.RunCycle(ctx, windowStart, windowStart.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("RunCycle() error = %v, settlement failure must not fail the cycle", err)
	}
	if res.Settlement == nil || res.Settlement.Status != audit.StatusFailed {
		t.Errorf("settlement = %+v, expected failed", res.Settlement)
	}

	cycle, err := f.journal.Cycle(ctx, res.CycleID)
	if err != nil {
		t.Fatalf("journal Cycle() error = %v", err)
	}
	if len(cycle.Entries) == 0 {
		t.Error("journal entries missing after failed settlement")
	}
	daily, _ := f.store.GetDaily(ctx, "A")
	if daily.TotalScore != 0 {
		t.Errorf("daily not reset after failed settlement: %+v", daily)
	}
}

func TestRunCycle_ZeroPool(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.play(t, "A", 7)

	res, err := f.engine.RunCycle(ctx, windowStart, windowStart.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(res.Allocation.Awards) != 0 {
		t.Errorf("awards = %+v, expected none", res.Allocation.Awards)
	}
	if len(f.settler.batches) != 0 {
		t.Errorf("settled %d batches, expected none", len(f.settler.batches))
	}
	if res.Settlement != nil {
		t.Errorf("settlement = %+v, expected nil", res.Settlement)
	}
	if _, err := f.journal.Cycle(ctx, res.CycleID); err != nil {
		t.Errorf("zero-pool cycle not journaled: %v", err)
	}
	daily, _ := f.store.GetDaily(ctx, "A")
	if daily.TotalScore != 0 {
		t.Errorf("daily not reset after zero-pool cycle: %+v", daily)
	}
}

func TestRunCycle_JournalFailureStopsBeforeSettlement(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.fee(t, 5, windowStart.Add(time.Hour))
	f.play(t, "A", 9)

	engine := NewEngine(f.store, failingJournal{}, f.settler, EngineConfig{UnitDecimals: 6})
	if _, err := engine.RunCycle(ctx, windowStart, windowStart.Add(24*time.Hour), 0); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("RunCycle() error = %v, expected STORE_UNAVAILABLE", err)
	}
	if len(f.settler.batches) != 0 {
		t.Error("settlement attempted without a journal entry")
	}

	// the closed rows wait for the retry
	f.play(t, "B", 3)
	res, err := f.engine.RunCycle(ctx, windowStart, windowStart.Add(25*time.Hour), 0)
	if err != nil {
		t.Fatalf("retry RunCycle() error = %v", err)
	}
	award, ok := res.Allocation.Award("A")
	if !ok || award.DailyTotal != 9 {
		t.Errorf("award A = %+v, expected the daily total of 9 closed before the failure", award)
	}
	if _, ok := res.Allocation.Award("B"); ok {
		t.Error("score submitted after the close was paid in the retried cycle")
	}
	daily, _ := f.store.GetDaily(ctx, "B")
	if daily.TotalScore != 3 {
		t.Errorf("daily B = %+v, expected 3 kept for the next cycle", daily)
	}
}

func TestRunCycle_ScoreDuringSettlementCountsNextCycle(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.fee(t, 3, windowStart.Add(time.Hour))
	f.play(t, "A", 10)

	f.settler.settleFn = func(ctx context.Context, b settlement.Batch) (*settlement.Result, error) {
		if _, err := f.store.UpdatePlayerStats(ctx, "B", 50); err != nil {
			t.Errorf("UpdatePlayerStats() during settlement error = %v", err)
		}
		return &settlement.Result{CycleID: b.CycleID, Status: audit.StatusSettled, TxRef: "tx-ok", Attempts: 1}, nil
	}
	first, err := f.engine.RunCycle(ctx, windowStart, windowStart.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	daily, _ := f.store.GetDaily(ctx, "B")
	if daily.TotalScore != 50 || daily.GamesPlayed != 1 {
		t.Fatalf("daily B = %+v, expected the mid-settlement score to survive", daily)
	}

	f.settler.settleFn = nil
	f.fee(t, 1, windowStart.Add(25*time.Hour))
	second, err := f.engine.RunCycle(ctx, windowStart.Add(24*time.Hour), windowStart.Add(48*time.Hour), first.CycleID)
	if err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}
	if award, ok := second.Allocation.Award("B"); !ok || award.DailyTotal != 50 {
		t.Errorf("award B = %+v, expected the score submitted during settlement", award)
	}
}

func TestRunCycle_RetryResumesJournaledCycle(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	windowStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f.fee(t, 3, windowStart.Add(time.Hour))
	f.play(t, "A", 10)

	flaky := &flakyStats{RedisStatsStore: f.store, discardFailures: 1}
	engine := NewEngine(flaky, f.journal, f.settler, EngineConfig{UnitDecimals: 6})

	if _, err := engine.RunCycle(ctx, windowStart, windowStart.Add(24*time.Hour), 0); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("RunCycle() error = %v, expected STORE_UNAVAILABLE", err)
	}
	res, err := engine.RunCycle(ctx, windowStart, windowStart.Add(24*time.Hour+time.Minute), 0)
	if err != nil {
		t.Fatalf("retry RunCycle() error = %v", err)
	}
	if !res.Resumed || res.CycleID != 1 || !res.CycleAt.Equal(windowStart.Add(24*time.Hour)) {
		t.Errorf("result = %+v, expected cycle 1 resumed with its journaled time", res)
	}
	if len(f.settler.batches) != 1 || f.settler.batches[0].IdempotencyKey() != "payout-cycle-1" {
		t.Fatalf("batches = %+v, expected cycle 1 settled once", f.settler.batches)
	}

	// settled but never acknowledged: resuming again must not pay twice
	f.journalAttempt(t, 1, audit.StatusSettled, "tx-1")
	again, err := engine.RunCycle(ctx, windowStart, windowStart.Add(24*time.Hour+2*time.Minute), 0)
	if err != nil {
		t.Fatalf("second retry RunCycle() error = %v", err)
	}
	if len(f.settler.batches) != 1 {
		t.Errorf("settled %d batches, expected still 1", len(f.settler.batches))
	}
	if again.Settlement == nil || again.Settlement.TxRef != "tx-1" {
		t.Errorf("settlement = %+v, expected the journaled attempt", again.Settlement)
	}
	if latest, _ := f.journal.LatestCycle(ctx); latest.ID != 1 {
		t.Errorf("latest cycle = %d, expected no new cycle journaled", latest.ID)
	}

	// once acknowledged, the next call starts a new cycle
	next, err := engine.RunCycle(ctx, windowStart.Add(24*time.Hour), windowStart.Add(48*time.Hour), 1)
	if err != nil {
		t.Fatalf("next RunCycle() error = %v", err)
	}
	if next.Resumed || next.CycleID != 2 {
		t.Errorf("next = %+v, expected fresh cycle 2", next)
	}
}
