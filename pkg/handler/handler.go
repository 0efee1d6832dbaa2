// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/broadcast"
	"github.com/AccelByte/extend-payplay-rewards/pkg/payment"
	"github.com/AccelByte/extend-payplay-rewards/pkg/payout"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/gorilla/mux"
)

const (
	// Leaderboard page size
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100

	// Request body cap
	maxBodyBytes = 64 << 10

	// SSE keepalive period
	DefaultHeartbeat = 15 * time.Second
)

// Admitter turns a payment proof into a paid session.
type Admitter interface {
	Admit(ctx context.Context, p payment.Proof) (*payment.Admission, error)
}

// SessionConsumer credits a score and expires the session.
type SessionConsumer interface {
	Consume(ctx context.Context, id, payer string, score int64) (*stats.PlayerStats, error)
}

// StatsReader serves the read side of the stats store.
type StatsReader interface {
	Leaderboard(ctx context.Context, kind stats.Kind, scope stats.Scope, limit int) ([]stats.LeaderboardEntry, error)
	GetLifetime(ctx context.Context, player string) (*stats.PlayerStats, error)
	GetDaily(ctx context.Context, player string) (*stats.PlayerStats, error)
}

// PayoutControl exposes the scheduler to operators.
type PayoutControl interface {
	TriggerNow(ctx context.Context) (*payout.CycleResult, error)
	Status(ctx context.Context) (*stats.PayoutStatus, error)
	Running() bool
}

// EventSource hands out payout event subscriptions.
type EventSource interface {
	Subscribe() *broadcast.Subscription
	Unsubscribe(s *broadcast.Subscription)
}

// Config carries the handler settings.
type Config struct {
	AdminToken string
	Heartbeat  time.Duration
}

// API serves the public HTTP surface of the game backend.
type API struct {
	gate     Admitter
	sessions SessionConsumer
	stats    StatsReader
	payouts  PayoutControl
	events   EventSource
	cfg      Config
}

// NewAPI creates the HTTP API.
func NewAPI(gate Admitter, sessions SessionConsumer, statsReader StatsReader, payouts PayoutControl, events EventSource, cfg Config) *API {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	return &API{
		gate:     gate,
		sessions: sessions,
		stats:    statsReader,
		payouts:  payouts,
		events:   events,
		cfg:      cfg,
	}
}

// Router builds the mux router with every route and middleware attached.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)

	// Game
	r.HandleFunc("/join", a.Join).Methods(http.MethodPost)
	r.HandleFunc("/submit-score", a.SubmitScore).Methods(http.MethodPost)

	// Stats
	r.HandleFunc("/leaderboard/daily/{kind}", a.DailyLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard/{kind}", a.LifetimeLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/player/daily/{id}", a.DailyPlayer).Methods(http.MethodGet)
	r.HandleFunc("/player/{id}", a.LifetimePlayer).Methods(http.MethodGet)

	// Payouts
	r.HandleFunc("/payouts/status", a.PayoutStatus).Methods(http.MethodGet)
	r.HandleFunc("/events/payouts", a.PayoutEvents).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(a.requireAdmin)
	admin.HandleFunc("/run-payout", a.RunPayout).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}
