// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

//go:build integration
// +build integration

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/caarlos0/env/v10"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// This is a manual integration test for the stats store against a real Redis.
// Run this with: go run -tags integration test_redis_integration.go
// Requires: Redis running on REDIS_HOST:REDIS_PORT (default localhost:6379)

type redisTarget struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
}

func main() {
	logrus.SetLevel(logrus.DebugLevel)
	logrus.Infof("Starting Redis integration test...")

	ctx := context.Background()

	var target redisTarget
	if err := env.Parse(&target); err != nil {
		logrus.Fatalf("Invalid Redis settings: %v", err)
	}
	addr := fmt.Sprintf("%s:%d", target.Host, target.Port)
	client := redis.NewClient(&redis.Options{Addr: addr, Password: target.Password})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.Fatalf("Failed to reach Redis at %s: %v", addr, err)
	}

	// isolate this run from real data
	prefix := fmt.Sprintf("payplay-it-%d:", time.Now().UnixNano())
	store := stats.NewRedisStatsStore(client, stats.RedisStatsStoreConfig{KeyPrefix: prefix})
	defer func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	}()

	// Test 1: Missing player
	logrus.Infof("\n=== Test 1: Lifetime lookup for new player ===")
	if _, err := store.GetLifetime(ctx, "wallet-a"); err == nil {
		logrus.Fatalf("expected PLAYER_NOT_FOUND for a new player")
	}
	logrus.Infof("✓ New player not found")

	// Test 2: Score updates
	logrus.Infof("\n=== Test 2: Record scores ===")
	for _, s := range []int64{40, 5, 57} {
		if _, err := store.UpdatePlayerStats(ctx, "wallet-a", s); err != nil {
			logrus.Fatalf("UpdatePlayerStats failed: %v", err)
		}
	}
	lifetime, err := store.GetLifetime(ctx, "wallet-a")
	if err != nil {
		logrus.Fatalf("GetLifetime failed: %v", err)
	}
	if lifetime.TotalScore != 102 || lifetime.HighScore != 57 || lifetime.GamesPlayed != 3 {
		logrus.Fatalf("unexpected lifetime row: %+v", lifetime)
	}
	logrus.Infof("✓ Lifetime row: %+v", lifetime)

	// Test 3: Fee journal
	logrus.Infof("\n=== Test 3: Fee journal ===")
	since := time.Now().Add(-time.Second)
	for i := 0; i < 3; i++ {
		if _, err := store.RecordFee(ctx, 1, time.Now(), "wallet-a"); err != nil {
			logrus.Fatalf("RecordFee failed: %v", err)
		}
	}
	pool, err := store.FeesSince(ctx, since)
	if err != nil {
		logrus.Fatalf("FeesSince failed: %v", err)
	}
	if pool != 3 {
		logrus.Fatalf("expected pool 3, got %v", pool)
	}
	logrus.Infof("✓ Fee pool: %v", pool)

	// Test 4: Leaderboard
	logrus.Infof("\n=== Test 4: Leaderboard ===")
	if _, err := store.UpdatePlayerStats(ctx, "wallet-b", 80); err != nil {
		logrus.Fatalf("UpdatePlayerStats failed: %v", err)
	}
	board, err := store.Leaderboard(ctx, stats.KindHigh, stats.ScopeDaily, 10)
	if err != nil {
		logrus.Fatalf("Leaderboard failed: %v", err)
	}
	if len(board) != 2 || board[0].Player != "wallet-b" {
		logrus.Fatalf("unexpected leaderboard: %+v", board)
	}
	logrus.Infof("✓ Daily high leaderboard: %+v", board)

	// Test 5: Daily reset
	logrus.Infof("\n=== Test 5: Reset daily ===")
	n, err := store.ResetDaily(ctx)
	if err != nil {
		logrus.Fatalf("ResetDaily failed: %v", err)
	}
	daily, _ := store.GetDaily(ctx, "wallet-a")
	after, _ := store.GetLifetime(ctx, "wallet-a")
	if daily.TotalScore != 0 || after.TotalScore != 102 {
		logrus.Fatalf("reset touched the wrong table: daily=%+v lifetime=%+v", daily, after)
	}
	logrus.Infof("✓ Reset %d daily rows, lifetime intact", n)

	logrus.Infof("\n=== All tests passed! ===")
}
