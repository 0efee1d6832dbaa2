package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/audit"
	"github.com/AccelByte/extend-payplay-rewards/pkg/payout"
	"github.com/AccelByte/extend-payplay-rewards/pkg/settlement"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

// fakeClock implements Clock with manually advanced time
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
	added   chan struct{}
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, added: make(chan struct{}, 64)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
	} else {
		c.waiters = append(c.waiters, fakeWaiter{at: c.now.Add(d), ch: ch})
	}
	select {
	case c.added <- struct{}{}:
	default:
	}
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
}

func (c *fakeClock) waitForTimer(t *testing.T) {
	t.Helper()
	select {
	case <-c.added:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never armed a timer")
	}
}

type cycleCall struct {
	windowStart, at time.Time
	lastCycleID     int64
}

// mockRunner implements CycleRunner for testing
type mockRunner struct {
	mu     sync.Mutex
	nextID int64
	calls  chan cycleCall
	runFn  func(ctx context.Context, windowStart, at time.Time) (*payout.CycleResult, error)
}

func newMockRunner() *mockRunner {
	return &mockRunner{calls: make(chan cycleCall, 16)}
}

func (m *mockRunner) RunCycle(ctx context.Context, windowStart, at time.Time, lastCycleID int64) (*payout.CycleResult, error) {
	m.calls <- cycleCall{windowStart: windowStart, at: at, lastCycleID: lastCycleID}
	if m.runFn != nil {
		return m.runFn(ctx, windowStart, at)
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()
	return &payout.CycleResult{CycleID: id, CycleAt: at, WindowStart: windowStart, Allocation: &payout.Allocation{}}, nil
}

func setupStatusStore(t *testing.T) *stats.RedisPayoutStatusStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return stats.NewRedisPayoutStatusStore(client, stats.RedisStatsStoreConfig{})
}

func TestTriggerNow_RejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	runner := newMockRunner()
	runner.runFn = func(ctx context.Context, windowStart, at time.Time) (*payout.CycleResult, error) {
		<-release
		return &payout.CycleResult{CycleID: 1, Allocation: &payout.Allocation{}}, nil
	}
	s := New(runner, setupStatusStore(t), newFakeClock(t0), 24*time.Hour)

	errc := make(chan error, 1)
	go func() {
		_, err := s.TriggerNow(context.Background())
		errc <- err
	}()
	<-runner.calls

	if !s.Running() {
		t.Error("Running() = false during a cycle")
	}
	if _, err := s.TriggerNow(context.Background()); !errors.Is(err, apperr.ErrCycleAlreadyRunning) {
		t.Errorf("overlapping TriggerNow() error = %v, expected CYCLE_ALREADY_RUNNING", err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first TriggerNow() error = %v", err)
	}
	if s.Running() {
		t.Error("Running() = true after the cycle finished")
	}
	if _, err := s.TriggerNow(context.Background()); err != nil {
		t.Errorf("TriggerNow() after release error = %v", err)
	}
}

func TestTriggerNow_AdvancesClockAndWindow(t *testing.T) {
	clock := newFakeClock(t0)
	store := setupStatusStore(t)
	runner := newMockRunner()
	s := New(runner, store, clock, 24*time.Hour)
	ctx := context.Background()

	// zero-pool cycles still advance the clock
	if _, err := s.TriggerNow(ctx); err != nil {
		t.Fatalf("TriggerNow() error = %v", err)
	}
	first := <-runner.calls
	if !first.windowStart.Equal(t0.Add(-24*time.Hour)) || !first.at.Equal(t0) {
		t.Errorf("first window = [%v, %v), expected [%v, %v)", first.windowStart, first.at, t0.Add(-24*time.Hour), t0)
	}

	st, _ := store.GetStatus(ctx)
	if !st.LastCycleAt.Equal(t0) || !st.NextCycleAt.Equal(t0.Add(24*time.Hour)) || st.LastCycleID != 1 {
		t.Errorf("status = %+v", st)
	}

	clock.Advance(3 * time.Hour)
	if _, err := s.TriggerNow(ctx); err != nil {
		t.Fatalf("second TriggerNow() error = %v", err)
	}
	second := <-runner.calls
	if !second.windowStart.Equal(t0) {
		t.Errorf("second window starts at %v, expected previous cycle time %v", second.windowStart, t0)
	}
}

func TestTriggerNow_FailedBookkeepingKeepsClock(t *testing.T) {
	store := setupStatusStore(t)
	runner := newMockRunner()
	runner.runFn = func(ctx context.Context, windowStart, at time.Time) (*payout.CycleResult, error) {
		return nil, apperr.Unavailable("reset daily stats", errors.New("connection refused"))
	}
	s := New(runner, store, newFakeClock(t0), 24*time.Hour)
	ctx := context.Background()

	if _, err := s.TriggerNow(ctx); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("TriggerNow() error = %v, expected STORE_UNAVAILABLE", err)
	}
	st, _ := store.GetStatus(ctx)
	if !st.LastCycleAt.IsZero() || !st.NextCycleAt.IsZero() {
		t.Errorf("status advanced after failed bookkeeping: %+v", st)
	}
}

func TestTriggerNow_SettlementOutcomeDoesNotAffectClock(t *testing.T) {
	store := setupStatusStore(t)
	ctx := context.Background()
	_ = store.SaveStatus(ctx, &stats.PayoutStatus{LastSettlementRef: "tx-old", LastAuditLink: "link-old"})

	runner := newMockRunner()
	runner.runFn = func(ctx context.Context, windowStart, at time.Time) (*payout.CycleResult, error) {
		return &payout.CycleResult{
			CycleID:    4,
			Allocation: &payout.Allocation{},
			Settlement: &settlement.Result{CycleID: 4, Status: audit.StatusFailed, Error: "reverted"},
		}, nil
	}
	s := New(runner, store, newFakeClock(t0), time.Hour)

	if _, err := s.TriggerNow(ctx); err != nil {
		t.Fatalf("TriggerNow() error = %v", err)
	}
	st, _ := store.GetStatus(ctx)
	if !st.NextCycleAt.Equal(t0.Add(time.Hour)) || st.LastCycleID != 4 {
		t.Errorf("status = %+v, expected clock advanced to cycle 4", st)
	}
	if st.LastSettlementRef != "tx-old" {
		t.Errorf("LastSettlementRef = %q, expected the last successful ref", st.LastSettlementRef)
	}
}

func TestStart_FiresOnInterval(t *testing.T) {
	clock := newFakeClock(t0)
	store := setupStatusStore(t)
	runner := newMockRunner()
	s := New(runner, store, clock, 24*time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	clock.waitForTimer(t)
	clock.Advance(24 * time.Hour)

	select {
	case call := <-runner.calls:
		if !call.windowStart.Equal(t0) || !call.at.Equal(t0.Add(24*time.Hour)) {
			t.Errorf("window = [%v, %v), expected [%v, %v)", call.windowStart, call.at, t0, t0.Add(24*time.Hour))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not fire")
	}

	// the loop re-arms for the next interval
	clock.waitForTimer(t)
	select {
	case <-runner.calls:
		t.Fatal("second cycle fired before the interval elapsed")
	default:
	}
}

func TestStart_ResumesPersistedSchedule(t *testing.T) {
	clock := newFakeClock(t0)
	store := setupStatusStore(t)
	ctx := context.Background()
	next := t0.Add(2 * time.Hour)
	_ = store.SaveStatus(ctx, &stats.PayoutStatus{LastCycleAt: t0.Add(-22 * time.Hour), NextCycleAt: next})

	runner := newMockRunner()
	s := New(runner, store, clock, 24*time.Hour)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	clock.waitForTimer(t)
	clock.Advance(2 * time.Hour)

	select {
	case call := <-runner.calls:
		if !call.windowStart.Equal(t0.Add(-22 * time.Hour)) {
			t.Errorf("windowStart = %v, expected persisted last cycle time", call.windowStart)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resumed cycle did not fire")
	}
}

func TestStartStop(t *testing.T) {
	s := New(newMockRunner(), setupStatusStore(t), newFakeClock(t0), time.Hour)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() expected error")
	}
	s.Stop()
	s.Stop()

	bad := New(newMockRunner(), setupStatusStore(t), newFakeClock(t0), 0)
	if err := bad.Start(context.Background()); err == nil {
		t.Error("Start() with zero interval expected error")
	}
}

func TestTriggerNow_ResumedCycleKeepsItsWindowEnd(t *testing.T) {
	store := setupStatusStore(t)
	ctx := context.Background()
	_ = store.SaveStatus(ctx, &stats.PayoutStatus{LastCycleAt: t0.Add(-24 * time.Hour), LastCycleID: 3})

	journaledAt := t0.Add(-5 * time.Minute)
	runner := newMockRunner()
	runner.runFn = func(ctx context.Context, windowStart, at time.Time) (*payout.CycleResult, error) {
		return &payout.CycleResult{CycleID: 4, CycleAt: journaledAt, Resumed: true, Allocation: &payout.Allocation{}}, nil
	}
	s := New(runner, store, newFakeClock(t0), 24*time.Hour)

	if _, err := s.TriggerNow(ctx); err != nil {
		t.Fatalf("TriggerNow() error = %v", err)
	}
	if call := <-runner.calls; call.lastCycleID != 3 {
		t.Errorf("lastCycleID = %d, expected the persisted cycle 3", call.lastCycleID)
	}
	st, _ := store.GetStatus(ctx)
	if !st.LastCycleAt.Equal(journaledAt) || !st.NextCycleAt.Equal(journaledAt.Add(24*time.Hour)) || st.LastCycleID != 4 {
		t.Errorf("status = %+v, expected the clock to close at the journaled cycle time", st)
	}
}

// flakyStatus fails SaveStatus a set number of times
type flakyStatus struct {
	*stats.RedisPayoutStatusStore
	saveFailures int
}

func (f *flakyStatus) SaveStatus(ctx context.Context, st *stats.PayoutStatus) error {
	if f.saveFailures > 0 {
		f.saveFailures--
		return apperr.Unavailable("save payout status", errors.New("connection reset"))
	}
	return f.RedisPayoutStatusStore.SaveStatus(ctx, st)
}

// recordingLedger implements settlement.Ledger for testing
type recordingLedger struct {
	mu      sync.Mutex
	batches []settlement.Batch
}

func (l *recordingLedger) Submit(ctx context.Context, b settlement.Batch) (*settlement.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, b)
	return &settlement.Receipt{TxRef: fmt.Sprintf("tx-%d", len(l.batches))}, nil
}

func TestTriggerNow_RetryAfterLostStatusPaysOnce(t *testing.T) {
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

	ctx := context.Background()
	statsStore := stats.NewRedisStatsStore(client, stats.RedisStatsStoreConfig{})
	if _, err := statsStore.RecordFee(ctx, 3, t0.Add(-time.Hour), "a"); err != nil {
		t.Fatalf("RecordFee() error = %v", err)
	}
	if _, err := statsStore.UpdatePlayerStats(ctx, "a", 10); err != nil {
		t.Fatalf("UpdatePlayerStats() error = %v", err)
	}

	ledger := &recordingLedger{}
	settler := settlement.NewClient(ledger, journal, nil, settlement.Config{Timeout: time.Second})
	engine := payout.NewEngine(statsStore, journal, settler, payout.EngineConfig{UnitDecimals: 6})
	status := &flakyStatus{RedisPayoutStatusStore: stats.NewRedisPayoutStatusStore(client, stats.RedisStatsStoreConfig{}), saveFailures: 1}
	clock := newFakeClock(t0)
	s := New(engine, status, clock, 24*time.Hour)

	if _, err := s.TriggerNow(ctx); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("first TriggerNow() error = %v, expected STORE_UNAVAILABLE", err)
	}
	clock.Advance(time.Minute)
	res, err := s.TriggerNow(ctx)
	if err != nil {
		t.Fatalf("retry TriggerNow() error = %v", err)
	}

	if len(ledger.batches) != 1 {
		t.Fatalf("ledger saw %d batches, expected 1: %+v", len(ledger.batches), ledger.batches)
	}
	if !res.Resumed || res.CycleID != 1 || res.Settlement == nil || res.Settlement.TxRef != "tx-1" {
		t.Errorf("retry result = %+v, expected cycle 1 resumed with its settlement", res)
	}
	st, _ := status.GetStatus(ctx)
	if st.LastCycleID != 1 || !st.LastCycleAt.Equal(t0) || st.LastSettlementRef != "tx-1" {
		t.Errorf("status = %+v, expected cycle 1 closed at %v", st, t0)
	}
	if latest, _ := journal.LatestCycle(ctx); latest.ID != 1 {
		t.Errorf("latest journaled cycle = %d, expected 1", latest.ID)
	}
}
