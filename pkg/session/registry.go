// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/metrics"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ScoreRecorder receives the score of a consumed session.
type ScoreRecorder interface {
	UpdatePlayerStats(ctx context.Context, player string, score int64) (*stats.PlayerStats, error)
}

// Registry is the table of live game sessions. Every session follows
// Created -> Paid -> Expired, and Expired sessions are removed from the table.
//
// All state transitions happen under a single mutex. The table itself is
// never handed out; Get returns copies.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*GameSession
	recorder ScoreRecorder
	now      func() time.Time
	newID    func() string
}

// NewRegistry creates an empty registry that credits scores to recorder.
func NewRegistry(recorder ScoreRecorder) *Registry {
	return &Registry{
		sessions: make(map[string]*GameSession),
		recorder: recorder,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create allocates a new session in state Created.
func (r *Registry) Create() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.sessions[id]; taken; _, taken = r.sessions[id] {
		id = r.newID()
	}

	r.sessions[id] = &GameSession{
		ID:        id,
		State:     StateCreated,
		CreatedAt: r.now(),
	}
	metrics.SessionsCreated.Inc()
	metrics.ActiveSessions.Set(float64(len(r.sessions)))

	logrus.Debugf("session %s created", id)
	return id
}

// MarkPaid moves a session from Created to Paid and binds the payer.
// Marking an already paid session is a no-op and keeps the original payer.
func (r *Registry) MarkPaid(id, payer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return apperr.Wrap(apperr.CodeSessionNotFound, fmt.Sprintf("session %s not found", id), nil)
	}
	if s.State == StatePaid {
		return nil
	}

	paidAt := r.now()
	s.State = StatePaid
	s.PaidAt = &paidAt
	s.Payer = payer

	logrus.Infof("session %s paid by %s", id, payer)
	return nil
}

// Consume credits score to the session's payer and expires the session.
//
// The session is claimed (removed from the table) before the score is
// recorded, so concurrent calls for the same id see SESSION_NOT_FOUND and at
// most one of them can ever reach the recorder. If recording fails the
// session is put back in state Paid so the caller may retry.
func (r *Registry) Consume(ctx context.Context, id, payer string, score int64) (*stats.PlayerStats, error) {
	s, err := r.claim(id, payer)
	if err != nil {
		return nil, err
	}

	lifetime, err := r.recorder.UpdatePlayerStats(ctx, payer, score)
	if err != nil {
		r.restore(s)
		logrus.Errorf("session %s: failed to record score for %s: %v", id, payer, err)
		return nil, err
	}

	metrics.SessionsConsumed.Inc()
	logrus.Infof("session %s consumed by %s with score %d", id, payer, score)
	return lifetime, nil
}

func (r *Registry) claim(id, payer string) (*GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, apperr.Wrap(apperr.CodeSessionNotFound, fmt.Sprintf("session %s not found", id), nil)
	}
	if s.State != StatePaid {
		return nil, apperr.Wrap(apperr.CodeSessionNotPaid, fmt.Sprintf("session %s not paid", id), nil)
	}
	if s.Payer != payer {
		return nil, apperr.Wrap(apperr.CodeSessionPayerMismatch, fmt.Sprintf("session %s belongs to another wallet", id), nil)
	}

	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return s, nil
}

func (r *Registry) restore(s *GameSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; !exists {
		r.sessions[s.ID] = s
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
}

// Get returns a copy of the session with the given id.
func (r *Registry) Get(id string) (GameSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return GameSession{}, false
	}
	return s.clone(), true
}

// Expire destroys a session without crediting any score.
// Returns false if the session did not exist.
func (r *Registry) Expire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return true
}

// Sweep expires every session created more than maxAge ago and returns the
// number removed.
func (r *Registry) Sweep(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for id, s := range r.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
		logrus.Infof("swept %d abandoned sessions", removed)
	}
	return removed
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
