package handler

import (
	"net/http"
	"strconv"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/payment"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/gorilla/mux"
)

type leaderboardResponse struct {
	Kind    stats.Kind               `json:"kind"`
	Scope   stats.Scope              `json:"scope"`
	Entries []stats.LeaderboardEntry `json:"entries"`
}

// LifetimeLeaderboard serves GET /leaderboard/{kind}.
func (a *API) LifetimeLeaderboard(w http.ResponseWriter, r *http.Request) {
	a.leaderboard(w, r, stats.ScopeLifetime)
}

// DailyLeaderboard serves GET /leaderboard/daily/{kind}.
func (a *API) DailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	a.leaderboard(w, r, stats.ScopeDaily)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request, scope stats.Scope) {
	kind, err := stats.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, r, apperr.Invalid("%v", err))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	entries, err := a.stats.Leaderboard(r.Context(), kind, scope, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []stats.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Kind: kind, Scope: scope, Entries: entries})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultLeaderboardLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, apperr.Invalid("limit must be a positive integer, got %q", raw)
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	return limit, nil
}

// LifetimePlayer serves GET /player/{id}.
func (a *API) LifetimePlayer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := payment.ValidateWallet(id); err != nil {
		writeError(w, r, err)
		return
	}
	row, err := a.stats.GetLifetime(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// DailyPlayer serves GET /player/daily/{id}. Players without a daily row get
// a zeroed placeholder.
func (a *API) DailyPlayer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := payment.ValidateWallet(id); err != nil {
		writeError(w, r, err)
		return
	}
	row, err := a.stats.GetDaily(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
