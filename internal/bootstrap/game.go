package bootstrap

import (
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/payment"
	"github.com/AccelByte/extend-payplay-rewards/pkg/session"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// GameConfig holds the admission settings.
type GameConfig struct {
	EntryFee        float64
	VerifierURL     string
	VerifierTimeout time.Duration
	// ProofTTL bounds how long spent proofs are remembered. Zero keeps them
	// forever.
	ProofTTL time.Duration
}

// InitGame creates the session registry and the payment gate in front of
// it. Scores recorded through the registry land in stores.Stats.
func InitGame(client *redis.Client, stores *Stores, cfg GameConfig) (*session.Registry, *payment.Gate) {
	registry := session.NewRegistry(stores.Stats)

	verifier := payment.NewHTTPVerifier(cfg.VerifierURL, cfg.VerifierTimeout)
	claimer := payment.NewRedisProofClaimer(client, payment.RedisProofClaimerConfig{TTL: cfg.ProofTTL})
	gate := payment.NewGate(verifier, claimer, stores.Stats, registry, cfg.EntryFee)

	logrus.Infof("initialized payment gate (entry fee %v, verifier %s)", cfg.EntryFee, cfg.VerifierURL)
	return registry, gate
}
