package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/go-redis/redis/v8"
)

// RedisProofClaimer remembers spent proof signatures so each opens at most
// one session.
type RedisProofClaimer struct {
	client *redis.Client
	cfg    RedisProofClaimerConfig
}

type RedisProofClaimerConfig struct {
	KeyPrefix string
	// TTL bounds how long a spent signature is remembered. Zero keeps it
	// forever.
	TTL time.Duration
}

// NewRedisProofClaimer creates a claimer.
func NewRedisProofClaimer(client *redis.Client, cfg RedisProofClaimerConfig) *RedisProofClaimer {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "payplay:proof:"
	}
	return &RedisProofClaimer{client: client, cfg: cfg}
}

// key hashes the signature as Validate sees it, so padded copies of one
// proof share a claim.
func (c *RedisProofClaimer) key(signature string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(signature)))
	return c.cfg.KeyPrefix + hex.EncodeToString(sum[:])
}

// Claim marks signature as spent by wallet. It fails with
// PAYMENT_PROOF_REUSED if the signature was already claimed.
func (c *RedisProofClaimer) Claim(ctx context.Context, signature, wallet string) error {
	ok, err := c.client.SetNX(ctx, c.key(signature), wallet, c.cfg.TTL).Result()
	if err != nil {
		return apperr.Unavailable("claim payment proof", err)
	}
	if !ok {
		return apperr.ErrPaymentProofReused
	}
	return nil
}

// Release forgets a claim so the proof can be retried after a failure that
// happened before any session was opened.
func (c *RedisProofClaimer) Release(ctx context.Context, signature string) error {
	if err := c.client.Del(ctx, c.key(signature)).Err(); err != nil {
		return apperr.Unavailable("release payment proof", err)
	}
	return nil
}
