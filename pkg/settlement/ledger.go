// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Batch is one cycle's payout as a single ledger transaction.
// Recipients and Amounts are parallel; amounts are ledger units.
type Batch struct {
	CycleID    int64    `json:"cycle_id" yaml:"cycleId"`
	Recipients []string `json:"recipients" yaml:"recipients"`
	Amounts    []int64  `json:"amounts" yaml:"amounts"`
}

// Validate rejects batches the ledger could not apply atomically.
func (b Batch) Validate() error {
	if b.CycleID <= 0 {
		return fmt.Errorf("cycle id must be positive, got %d", b.CycleID)
	}
	if len(b.Recipients) == 0 {
		return fmt.Errorf("batch has no recipients")
	}
	if len(b.Recipients) != len(b.Amounts) {
		return fmt.Errorf("batch has %d recipients but %d amounts", len(b.Recipients), len(b.Amounts))
	}
	seen := make(map[string]struct{}, len(b.Recipients))
	for i, r := range b.Recipients {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("recipient %d is empty", i)
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("recipient %s appears twice", r)
		}
		seen[r] = struct{}{}
		if b.Amounts[i] <= 0 {
			return fmt.Errorf("amount for %s must be positive, got %d", r, b.Amounts[i])
		}
	}
	return nil
}

// IdempotencyKey identifies the cycle to the ledger across retries and replays.
func (b Batch) IdempotencyKey() string {
	return fmt.Sprintf("payout-cycle-%d", b.CycleID)
}

// Receipt is the ledger's acknowledgement of a batch.
type Receipt struct {
	TxRef string
}

// Ledger submits a batch as one external transaction.
type Ledger interface {
	Submit(ctx context.Context, b Batch) (*Receipt, error)
}

// LedgerError is a failure reported by the ledger. Permanent failures are
// not retried.
type LedgerError struct {
	Status    int
	Reason    string
	Permanent bool
}

func (e *LedgerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ledger returned %d: %s", e.Status, e.Reason)
	}
	return "ledger: " + e.Reason
}

// ledgerResponse is the wire reply of the ledger gateway.
type ledgerResponse struct {
	Status string `json:"status"`
	TxRef  string `json:"tx_ref"`
	Reason string `json:"reason"`
}

// HTTPLedger talks to a ledger gateway over JSON/HTTP.
type HTTPLedger struct {
	url    string
	client *http.Client
}

// NewHTTPLedger creates a ledger client posting batches to url.
func NewHTTPLedger(url string, timeout time.Duration) *HTTPLedger {
	return &HTTPLedger{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Submit posts the batch with its idempotency key. A "reverted" reply or a
// 4xx status is permanent; 5xx and transport errors may be retried.
func (l *HTTPLedger) Submit(ctx context.Context, b Batch) (*Receipt, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", b.IdempotencyKey())

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read ledger response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, &LedgerError{
			Status:    resp.StatusCode,
			Reason:    strings.TrimSpace(string(raw)),
			Permanent: !retryableStatus(resp.StatusCode),
		}
	}

	var out ledgerResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &LedgerError{Reason: fmt.Sprintf("malformed response: %v", err), Permanent: true}
	}
	switch out.Status {
	case "confirmed":
		if out.TxRef == "" {
			return nil, &LedgerError{Reason: "confirmed without tx_ref", Permanent: true}
		}
		return &Receipt{TxRef: out.TxRef}, nil
	case "reverted":
		return nil, &LedgerError{Reason: "transaction reverted: " + out.Reason, Permanent: true}
	default:
		return nil, &LedgerError{Reason: fmt.Sprintf("unknown status %q", out.Status), Permanent: true}
	}
}

// retryableStatus reports whether a failed submission may succeed if resent
// with the same idempotency key.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
