package stats

import (
	"context"
	"strconv"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/go-redis/redis/v8"
)

// RedisPayoutStatusStore persists the payout schedule clock so a restart
// resumes the existing cadence.
type RedisPayoutStatusStore struct {
	client *redis.Client
	key    string
}

// NewRedisPayoutStatusStore creates a status store under the stats key prefix.
func NewRedisPayoutStatusStore(client *redis.Client, cfg RedisStatsStoreConfig) *RedisPayoutStatusStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisPayoutStatusStore{client: client, key: prefix + "payout:status"}
}

// GetStatus returns the persisted status. A never-run service gets a zero
// status.
func (s *RedisPayoutStatusStore) GetStatus(ctx context.Context) (*PayoutStatus, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, apperr.Unavailable("read payout status", err)
	}

	st := &PayoutStatus{
		LastSettlementRef: fields["last_settlement_ref"],
		LastAuditLink:     fields["last_audit_link"],
	}
	if ms, err := strconv.ParseInt(fields["last_cycle_at"], 10, 64); err == nil {
		st.LastCycleAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(fields["next_cycle_at"], 10, 64); err == nil {
		st.NextCycleAt = time.UnixMilli(ms)
	}
	st.LastCycleID, _ = strconv.ParseInt(fields["last_cycle_id"], 10, 64)
	return st, nil
}

// SaveStatus overwrites the persisted status.
func (s *RedisPayoutStatusStore) SaveStatus(ctx context.Context, st *PayoutStatus) error {
	err := s.client.HSet(ctx, s.key,
		"last_cycle_at", st.LastCycleAt.UnixMilli(),
		"next_cycle_at", st.NextCycleAt.UnixMilli(),
		"last_cycle_id", st.LastCycleID,
		"last_settlement_ref", st.LastSettlementRef,
		"last_audit_link", st.LastAuditLink,
	).Err()
	if err != nil {
		return apperr.Unavailable("save payout status", err)
	}
	return nil
}
