// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/audit"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const healthTimeout = 2 * time.Second

// Stores groups the persistence layer shared by every component.
type Stores struct {
	Stats   *stats.RedisStatsStore
	Status  *stats.RedisPayoutStatusStore
	Journal *audit.Journal
	Redis   *stats.HealthChecker
}

// InitStores builds the Redis-backed stores on client and opens the audit
// journal at auditPath, applying pending migrations.
func InitStores(ctx context.Context, client *redis.Client, auditPath string) (*Stores, error) {
	storeCfg := stats.RedisStatsStoreConfig{}

	journal, err := audit.Open(ctx, auditPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit journal %s: %w", auditPath, err)
	}
	logrus.Infof("opened payout audit journal at %s", auditPath)

	return &Stores{
		Stats:   stats.NewRedisStatsStore(client, storeCfg),
		Status:  stats.NewRedisPayoutStatusStore(client, storeCfg),
		Journal: journal,
		Redis:   stats.NewHealthChecker(client, healthTimeout),
	}, nil
}
