package stats

import (
	"context"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/go-redis/redis/v8"
)

const defaultHealthTimeout = 2 * time.Second

// HealthChecker probes the Redis instance behind the stats store.
type HealthChecker struct {
	client  *redis.Client
	timeout time.Duration
}

// NewHealthChecker creates a checker; a zero timeout uses two seconds.
func NewHealthChecker(client *redis.Client, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	return &HealthChecker{client: client, timeout: timeout}
}

// Name identifies the dependency in health logs.
func (h *HealthChecker) Name() string { return "redis" }

// Check pings Redis within the checker timeout.
func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.client.Ping(ctx).Err(); err != nil {
		return apperr.Unavailable("redis ping", err)
	}
	return nil
}
