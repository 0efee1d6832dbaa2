// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package stats

import (
	"fmt"
	"time"
)

// PlayerStats is one aggregate row. The same shape is used for lifetime
// stats and for the daily stats of the current payout cycle.
type PlayerStats struct {
	Player      string    `json:"player"`
	TotalScore  int64     `json:"totalScore"`
	HighScore   int64     `json:"highScore"`
	GamesPlayed int64     `json:"gamesPlayed"`
	LastPlayed  time.Time `json:"lastPlayed"`
}

// Kind selects the score column a leaderboard is ordered by.
type Kind string

const (
	KindTotal Kind = "total"
	KindHigh  Kind = "high"
)

// Scope selects lifetime or current-cycle aggregates.
type Scope string

const (
	ScopeLifetime Scope = "lifetime"
	ScopeDaily    Scope = "daily"
)

// ParseKind validates a leaderboard kind coming from a request path.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTotal, KindHigh:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown leaderboard kind %q", s)
	}
}

// LeaderboardEntry is one ranked row. Ranks start at 1.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	Player string `json:"player"`
	Score  int64  `json:"score"`
}

// FeeRecord is one append-only fee journal entry.
type FeeRecord struct {
	Seq       int64     `json:"seq"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	Player    string    `json:"player,omitempty"`
}

// PayoutStatus is the persisted schedule clock of the payout cycle.
type PayoutStatus struct {
	LastCycleAt       time.Time `json:"lastCycleAt"`
	NextCycleAt       time.Time `json:"nextCycleAt"`
	LastCycleID       int64     `json:"lastCycleId,omitempty"`
	LastSettlementRef string    `json:"lastSettlementRef,omitempty"`
	LastAuditLink     string    `json:"lastAuditLink,omitempty"`
}
