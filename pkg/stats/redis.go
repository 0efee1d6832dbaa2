// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/metrics"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// defaultKeyPrefix is the prefix for all stats keys
	defaultKeyPrefix = "payplay:"
)

// RedisStatsStore implements the stats tables and the fee journal on Redis.
//
// Layout (relative to the key prefix):
//
//	lifetime:<player>           hash  total, high, games, last_played
//	daily:<player>              hash  same fields, current cycle only
//	lb:<scope>:<kind>           zset  leaderboard index
//	players                     set   every player that ever scored
//	fees:seq                    counter
//	fee:<seq>                   hash  amount, ts, player
//	fees:by_time                zset  seq scored by ts (unix ms)
//	closing:daily               hash  player -> "total:high:games", the daily
//	                                  rows of a cycle that is not journaled yet
type RedisStatsStore struct {
	client *redis.Client
	cfg    RedisStatsStoreConfig
	now    func() time.Time
}

type RedisStatsStoreConfig struct {
	KeyPrefix string
}

// NewRedisStatsStore creates a new Redis-backed stats store.
func NewRedisStatsStore(client *redis.Client, cfg RedisStatsStoreConfig) *RedisStatsStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &RedisStatsStore{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (r *RedisStatsStore) key(parts ...string) string {
	k := r.cfg.KeyPrefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (r *RedisStatsStore) rowKey(scope Scope, player string) string {
	return r.key(string(scope), player)
}

func (r *RedisStatsStore) leaderboardKey(scope Scope, kind Kind) string {
	return r.key("lb", string(scope), string(kind))
}

// RecordFee appends a fee record to the journal.
func (r *RedisStatsStore) RecordFee(ctx context.Context, amount float64, ts time.Time, player string) (*FeeRecord, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, apperr.Invalid("fee amount must be a non-negative number, got %v", amount)
	}

	seq, err := recordFeeScript.Run(ctx, r.client,
		[]string{r.key("fees", "seq"), r.key("fees", "by_time")},
		strconv.FormatFloat(amount, 'f', -1, 64),
		ts.UnixMilli(),
		player,
		r.key("fee")+":",
	).Int64()
	if err != nil {
		logrus.Errorf("failed to record fee %v for %q: %v", amount, player, err)
		return nil, apperr.Unavailable("record fee", err)
	}

	metrics.FeesRecorded.Inc()
	logrus.Infof("recorded fee #%d of %v (player %q)", seq, amount, player)
	return &FeeRecord{Seq: seq, Amount: amount, Timestamp: time.UnixMilli(ts.UnixMilli()), Player: player}, nil
}

// Fees returns the journal entries with from <= timestamp < to, in sequence
// order. A zero to means no upper bound.
func (r *RedisStatsStore) Fees(ctx context.Context, from, to time.Time) ([]FeeRecord, error) {
	lo, hi := "-inf", "+inf"
	if !from.IsZero() {
		lo = strconv.FormatInt(from.UnixMilli(), 10)
	}
	if !to.IsZero() {
		hi = "(" + strconv.FormatInt(to.UnixMilli(), 10)
	}

	seqs, err := r.client.ZRangeByScore(ctx, r.key("fees", "by_time"), &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return nil, apperr.Unavailable("read fee index", err)
	}
	if len(seqs) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(seqs))
	for i, seq := range seqs {
		cmds[i] = pipe.HGetAll(ctx, r.key("fee", seq))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, apperr.Unavailable("read fee records", err)
	}

	records := make([]FeeRecord, 0, len(seqs))
	for i, cmd := range cmds {
		fields := cmd.Val()
		seq, _ := strconv.ParseInt(seqs[i], 10, 64)
		amount, err := strconv.ParseFloat(fields["amount"], 64)
		if err != nil {
			logrus.Warnf("skipping malformed fee record #%s: %v", seqs[i], err)
			continue
		}
		ts, _ := strconv.ParseInt(fields["ts"], 10, 64)
		records = append(records, FeeRecord{
			Seq:       seq,
			Amount:    amount,
			Timestamp: time.UnixMilli(ts),
			Player:    fields["player"],
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}

// FeesBetween sums the fee amounts with from <= timestamp < to.
func (r *RedisStatsStore) FeesBetween(ctx context.Context, from, to time.Time) (float64, error) {
	records, err := r.Fees(ctx, from, to)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, rec := range records {
		sum += rec.Amount
	}
	return sum, nil
}

// FeesSince sums the fee amounts with timestamp >= cutoff.
func (r *RedisStatsStore) FeesSince(ctx context.Context, cutoff time.Time) (float64, error) {
	return r.FeesBetween(ctx, cutoff, time.Time{})
}

// UpdatePlayerStats applies one game score to both the lifetime and daily
// rows of player and returns the updated lifetime row. The update runs as a
// single Redis script, so concurrent submissions for one player never lose
// writes and a failure never leaves one row updated without the other.
func (r *RedisStatsStore) UpdatePlayerStats(ctx context.Context, player string, score int64) (*PlayerStats, error) {
	if player == "" {
		return nil, apperr.Invalid("player is required")
	}
	if score < 0 {
		return nil, apperr.Invalid("score must be non-negative, got %d", score)
	}

	now := r.now()
	keys := []string{
		r.rowKey(ScopeLifetime, player),
		r.rowKey(ScopeDaily, player),
		r.leaderboardKey(ScopeLifetime, KindTotal),
		r.leaderboardKey(ScopeLifetime, KindHigh),
		r.leaderboardKey(ScopeDaily, KindTotal),
		r.leaderboardKey(ScopeDaily, KindHigh),
		r.key("players"),
	}

	res, err := updatePlayerStatsScript.Run(ctx, r.client, keys, player, score, now.UnixMilli()).Int64Slice()
	if err != nil {
		logrus.Errorf("failed to update stats for player %s: %v", player, err)
		return nil, apperr.Unavailable("update player stats", err)
	}
	if len(res) != 3 {
		return nil, apperr.Unavailable("update player stats", fmt.Errorf("unexpected script reply %v", res))
	}

	logrus.Infof("updated stats for player %s: total=%d high=%d games=%d", player, res[0], res[1], res[2])
	return &PlayerStats{
		Player:      player,
		TotalScore:  res[0],
		HighScore:   res[1],
		GamesPlayed: res[2],
		LastPlayed:  time.UnixMilli(now.UnixMilli()),
	}, nil
}

// GetLifetime returns the lifetime row of player, or PLAYER_NOT_FOUND.
func (r *RedisStatsStore) GetLifetime(ctx context.Context, player string) (*PlayerStats, error) {
	fields, err := r.client.HGetAll(ctx, r.rowKey(ScopeLifetime, player)).Result()
	if err != nil {
		return nil, apperr.Unavailable("read lifetime stats", err)
	}
	if len(fields) == 0 {
		return nil, apperr.Wrap(apperr.CodePlayerNotFound, fmt.Sprintf("player %s not found", player), nil)
	}
	return parsePlayerStats(player, fields), nil
}

// GetDaily returns the daily row of player. A player without a row gets a
// zeroed placeholder.
func (r *RedisStatsStore) GetDaily(ctx context.Context, player string) (*PlayerStats, error) {
	fields, err := r.client.HGetAll(ctx, r.rowKey(ScopeDaily, player)).Result()
	if err != nil {
		return nil, apperr.Unavailable("read daily stats", err)
	}
	return parsePlayerStats(player, fields), nil
}

// Leaderboard returns up to limit entries ordered by the requested column,
// highest first. Equal scores are returned in reverse lexicographic order of
// the player identity, the order Redis keeps for equal zset scores.
// Daily leaderboards only list players with a non-zero score this cycle.
func (r *RedisStatsStore) Leaderboard(ctx context.Context, kind Kind, scope Scope, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, apperr.Invalid("limit must be positive, got %d", limit)
	}

	key := r.leaderboardKey(scope, kind)
	var (
		rows []redis.Z
		err  error
	)
	switch scope {
	case ScopeDaily:
		rows, err = r.client.ZRevRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min:   "(0",
			Max:   "+inf",
			Count: int64(limit),
		}).Result()
	case ScopeLifetime:
		rows, err = r.client.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	default:
		return nil, apperr.Invalid("unknown leaderboard scope %q", scope)
	}
	if err != nil {
		return nil, apperr.Unavailable("read leaderboard", err)
	}

	entries := make([]LeaderboardEntry, len(rows))
	for i, z := range rows {
		entries[i] = LeaderboardEntry{
			Rank:   i + 1,
			Player: fmt.Sprint(z.Member),
			Score:  int64(z.Score),
		}
	}
	return entries, nil
}

// ResetDaily zeroes every daily row and daily leaderboard score. It runs as
// a single script so no reader sees a partially reset table. Lifetime rows
// are not touched.
func (r *RedisStatsStore) ResetDaily(ctx context.Context) (int, error) {
	n, err := resetDailyScript.Run(ctx, r.client,
		[]string{
			r.key("players"),
			r.leaderboardKey(ScopeDaily, KindTotal),
			r.leaderboardKey(ScopeDaily, KindHigh),
		},
		r.key(string(ScopeDaily))+":",
	).Int()
	if err != nil {
		logrus.Errorf("failed to reset daily stats: %v", err)
		return 0, apperr.Unavailable("reset daily stats", err)
	}

	logrus.Infof("reset daily stats for %d players", n)
	return n, nil
}

// CloseDaily snapshots the daily rows of every player who played this cycle
// and zeroes them in one atomic step. The snapshot stays pending until
// DiscardClosedDaily, and calling CloseDaily again before that returns the
// same rows without touching the daily table. Rows are ordered by player.
func (r *RedisStatsStore) CloseDaily(ctx context.Context) ([]PlayerStats, error) {
	flat, err := closeDailyScript.Run(ctx, r.client,
		[]string{
			r.key("players"),
			r.leaderboardKey(ScopeDaily, KindTotal),
			r.leaderboardKey(ScopeDaily, KindHigh),
			r.closingKey(),
		},
		r.key(string(ScopeDaily))+":",
	).StringSlice()
	if err != nil {
		return nil, apperr.Unavailable("close daily stats", err)
	}

	rows := make([]PlayerStats, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		if flat[i] == "" {
			continue
		}
		row, err := parseClosedRow(flat[i], flat[i+1])
		if err != nil {
			return nil, apperr.Unavailable("read closed daily stats", err)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Player < rows[j].Player })
	return rows, nil
}

// DiscardClosedDaily drops the pending snapshot once its cycle is journaled.
func (r *RedisStatsStore) DiscardClosedDaily(ctx context.Context) error {
	if err := r.client.Del(ctx, r.closingKey()).Err(); err != nil {
		return apperr.Unavailable("discard closed daily stats", err)
	}
	return nil
}

func (r *RedisStatsStore) closingKey() string {
	return r.key("closing", string(ScopeDaily))
}

func parseClosedRow(player, v string) (PlayerStats, error) {
	ps := PlayerStats{Player: player}
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return ps, fmt.Errorf("malformed closed row %q for %s", v, player)
	}
	var err error
	if ps.TotalScore, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return ps, err
	}
	if ps.HighScore, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return ps, err
	}
	ps.GamesPlayed, err = strconv.ParseInt(parts[2], 10, 64)
	return ps, err
}

func parsePlayerStats(player string, fields map[string]string) *PlayerStats {
	ps := &PlayerStats{Player: player}
	ps.TotalScore, _ = strconv.ParseInt(fields["total"], 10, 64)
	ps.HighScore, _ = strconv.ParseInt(fields["high"], 10, 64)
	ps.GamesPlayed, _ = strconv.ParseInt(fields["games"], 10, 64)
	if ms, err := strconv.ParseInt(fields["last_played"], 10, 64); err == nil {
		ps.LastPlayed = time.UnixMilli(ms)
	}
	return ps
}
