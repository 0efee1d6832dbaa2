// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/stats"
	"github.com/sirupsen/logrus"
)

// ProofClaimer enforces one session per proof.
type ProofClaimer interface {
	Claim(ctx context.Context, signature, wallet string) error
	Release(ctx context.Context, signature string) error
}

// FeeRecorder appends verified fees to the fee journal.
type FeeRecorder interface {
	RecordFee(ctx context.Context, amount float64, ts time.Time, player string) (*stats.FeeRecord, error)
}

// SessionOpener creates and pays sessions.
type SessionOpener interface {
	Create() string
	MarkPaid(id, payer string) error
}

// Admission is the result of a successful join.
type Admission struct {
	SessionID string  `json:"sessionId"`
	Payer     string  `json:"payer"`
	Fee       float64 `json:"fee"`
}

// Gate turns a payment proof into a paid session.
type Gate struct {
	verifier Verifier
	claimer  ProofClaimer
	fees     FeeRecorder
	sessions SessionOpener
	entryFee float64
	now      func() time.Time
}

// NewGate creates a gate charging at least entryFee per session.
func NewGate(verifier Verifier, claimer ProofClaimer, fees FeeRecorder, sessions SessionOpener, entryFee float64) *Gate {
	return &Gate{
		verifier: verifier,
		claimer:  claimer,
		fees:     fees,
		sessions: sessions,
		entryFee: entryFee,
		now:      time.Now,
	}
}

// Admit verifies p, spends it and opens a paid session for its wallet.
func (g *Gate) Admit(ctx context.Context, p Proof) (*Admission, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	v, err := g.verifier.Verify(ctx, p)
	if err != nil {
		return nil, err
	}
	if v.Payer != p.Wallet {
		return nil, apperr.New(apperr.CodePaymentUnverified,
			fmt.Sprintf("proof was paid by %s, not %s", v.Payer, p.Wallet))
	}
	if v.Amount < g.entryFee {
		return nil, apperr.New(apperr.CodePaymentUnverified,
			fmt.Sprintf("paid %v, entry fee is %v", v.Amount, g.entryFee))
	}

	if err := g.claimer.Claim(ctx, p.Signature, p.Wallet); err != nil {
		return nil, err
	}

	if _, err := g.fees.RecordFee(ctx, v.Amount, g.now(), p.Wallet); err != nil {
		if rerr := g.claimer.Release(ctx, p.Signature); rerr != nil {
			logrus.Errorf("failed to release proof claim for %s: %v", p.Wallet, rerr)
		}
		return nil, err
	}

	id := g.sessions.Create()
	if err := g.sessions.MarkPaid(id, p.Wallet); err != nil {
		// the session was created a moment ago; only a concurrent sweep can
		// have removed it
		return nil, err
	}

	logrus.Infof("wallet %s admitted to session %s (fee %v)", p.Wallet, id, v.Amount)
	return &Admission{SessionID: id, Payer: p.Wallet, Fee: v.Amount}, nil
}
