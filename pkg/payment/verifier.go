// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/sirupsen/logrus"
)

// Verifier checks a payment proof with the external verification service.
type Verifier interface {
	Verify(ctx context.Context, p Proof) (*Verification, error)
}

type verifyRequest struct {
	Signature string `json:"signature"`
	Wallet    string `json:"wallet"`
}

type verifyResponse struct {
	Verified bool     `json:"verified"`
	Amount   *float64 `json:"amount"`
	Payer    string   `json:"payer"`
	Reason   string   `json:"reason"`
}

// HTTPVerifier asks a JSON/HTTP verification service about proofs.
type HTTPVerifier struct {
	url    string
	client *http.Client
}

// NewHTTPVerifier creates a verifier posting to url with the given timeout.
func NewHTTPVerifier(url string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{url: url, client: &http.Client{Timeout: timeout}}
}

// Verify returns the verified payer and amount. A rejected or malformed
// answer is PAYMENT_UNVERIFIED; an unreachable service is STORE_UNAVAILABLE
// so the client knows to retry.
func (v *HTTPVerifier) Verify(ctx context.Context, p Proof) (*Verification, error) {
	body, err := json.Marshal(verifyRequest{Signature: p.Signature, Wallet: p.Wallet})
	if err != nil {
		return nil, fmt.Errorf("marshal verify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		logrus.Warnf("payment verifier unreachable: %v", err)
		return nil, apperr.Unavailable("payment verifier", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, apperr.Unavailable("read verifier response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, apperr.Unavailable("payment verifier", fmt.Errorf("status %d", resp.StatusCode))
	}

	var out verifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Wrap(apperr.CodePaymentUnverified, "malformed verifier response", err)
	}
	if resp.StatusCode >= 300 || !out.Verified {
		reason := out.Reason
		if reason == "" {
			reason = fmt.Sprintf("verifier status %d", resp.StatusCode)
		}
		return nil, apperr.New(apperr.CodePaymentUnverified, "payment rejected: "+reason)
	}
	if out.Amount == nil || *out.Amount < 0 || math.IsNaN(*out.Amount) || math.IsInf(*out.Amount, 0) {
		return nil, apperr.New(apperr.CodePaymentUnverified, "verifier returned no valid amount")
	}
	if out.Payer == "" {
		return nil, apperr.New(apperr.CodePaymentUnverified, "verifier returned no payer")
	}

	return &Verification{Payer: out.Payer, Amount: *out.Amount}, nil
}
