// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/audit"
	"github.com/AccelByte/extend-payplay-rewards/pkg/metrics"
	"github.com/AccelByte/extend-payplay-rewards/pkg/payout"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/sirupsen/logrus"
)

// Clock is the scheduler's source of time.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// CycleRunner runs one payout cycle over a fee window. lastCycleID is the
// last cycle the scheduler recorded as complete.
type CycleRunner interface {
	RunCycle(ctx context.Context, windowStart, at time.Time, lastCycleID int64) (*payout.CycleResult, error)
}

// StatusStore persists the schedule clock.
type StatusStore interface {
	GetStatus(ctx context.Context) (*stats.PayoutStatus, error)
	SaveStatus(ctx context.Context, st *stats.PayoutStatus) error
}

// Scheduler fires payout cycles every interval. At most one cycle runs at a
// time; a trigger that arrives during a cycle is rejected, never queued.
type Scheduler struct {
	runner   CycleRunner
	status   StatusStore
	clock    Clock
	interval time.Duration

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. A nil clock means the wall clock.
func New(runner CycleRunner, status StatusStore, clock Clock, interval time.Duration) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	return &Scheduler{
		runner:   runner,
		status:   status,
		clock:    clock,
		interval: interval,
	}
}

// Start schedules the first cycle (resuming a persisted cadence if there is
// one) and runs the timer loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("payout interval must be positive, got %v", s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	st, err := s.status.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("load payout status: %w", err)
	}
	if st.NextCycleAt.IsZero() {
		st.NextCycleAt = s.clock.Now().Add(s.interval)
		if err := s.status.SaveStatus(ctx, st); err != nil {
			return fmt.Errorf("save payout status: %w", err)
		}
	}
	logrus.Infof("payout scheduler started, interval %v, next cycle at %s",
		s.interval, st.NextCycleAt.UTC().Format(time.RFC3339))

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, st.NextCycleAt, s.done)
	return nil
}

// Stop ends the timer loop and waits for it, including any running cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logrus.Info("payout scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, next time.Time, done chan struct{}) {
	defer close(done)

	for {
		wait := next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}

		// a manual trigger may have moved the schedule while we slept
		st, err := s.status.GetStatus(ctx)
		if err != nil {
			logrus.Errorf("payout scheduler: failed to read status: %v", err)
			next = s.clock.Now().Add(s.retryDelay())
			continue
		}
		if s.clock.Now().Before(st.NextCycleAt) {
			next = st.NextCycleAt
			continue
		}

		if _, err := s.TriggerNow(ctx); err != nil {
			if errors.Is(err, apperr.ErrCycleAlreadyRunning) {
				logrus.Warn("payout scheduler: cycle already running, tick skipped")
			} else {
				logrus.Errorf("payout scheduler: cycle failed, will retry: %v", err)
			}
			next = s.clock.Now().Add(s.retryDelay())
			continue
		}

		st, err = s.status.GetStatus(ctx)
		if err != nil {
			next = s.clock.Now().Add(s.interval)
			continue
		}
		next = st.NextCycleAt
	}
}

func (s *Scheduler) retryDelay() time.Duration {
	if d := s.interval / 24; d < time.Minute {
		return d
	}
	return time.Minute
}

// TriggerNow runs a cycle immediately. It fails with CYCLE_ALREADY_RUNNING
// while another cycle is in progress. The schedule clock advances only when
// the cycle's bookkeeping succeeds, whatever the settlement outcome.
func (s *Scheduler) TriggerNow(ctx context.Context) (*payout.CycleResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.PayoutCycles.WithLabelValues("rejected").Inc()
		return nil, apperr.ErrCycleAlreadyRunning
	}
	defer s.running.Store(false)

	st, err := s.status.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("load payout status: %w", err)
	}

	now := s.clock.Now()
	windowStart := st.LastCycleAt
	if windowStart.IsZero() {
		windowStart = now.Add(-s.interval)
	}

	res, err := s.runner.RunCycle(ctx, windowStart, now, st.LastCycleID)
	if err != nil {
		return nil, err
	}

	// a resumed cycle closed its fee window at its journaled time
	closedAt := res.CycleAt
	if closedAt.IsZero() {
		closedAt = now
	}
	st.LastCycleAt = closedAt
	st.NextCycleAt = closedAt.Add(s.interval)
	st.LastCycleID = res.CycleID
	if res.Settlement != nil && res.Settlement.Status == audit.StatusSettled {
		st.LastSettlementRef = res.Settlement.TxRef
		st.LastAuditLink = res.Settlement.AuditLink
	}
	if err := s.status.SaveStatus(ctx, st); err != nil {
		return nil, fmt.Errorf("save payout status: %w", err)
	}

	logrus.Infof("payout cycle %d complete, next at %s", res.CycleID, st.NextCycleAt.UTC().Format(time.RFC3339))
	return res, nil
}

// Status returns the persisted schedule clock.
func (s *Scheduler) Status(ctx context.Context) (*stats.PayoutStatus, error) {
	return s.status.GetStatus(ctx)
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}
