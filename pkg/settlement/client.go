// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/audit"
	"github.com/AccelByte/extend-payplay-rewards/pkg/broadcast"
	"github.com/AccelByte/extend-payplay-rewards/pkg/common"
	"github.com/AccelByte/extend-payplay-rewards/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
)

// EventPayoutSettled and EventPayoutFailed are the broadcast event types.
const (
	EventPayoutSettled = "payout.settled"
	EventPayoutFailed  = "payout.failed"
)

// AttemptRecorder appends settlement attempts to the audit journal.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a *audit.Attempt) error
}

// Publisher fans out settlement notices.
type Publisher interface {
	Publish(ev broadcast.Event) int
}

// Config is the settlement policy.
type Config struct {
	// Timeout bounds each ledger call.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first call. Zero
	// disables retrying.
	MaxRetries uint64
	// RetryInterval is the initial backoff between retries.
	RetryInterval time.Duration
	// ExplorerURL is joined with the tx reference to form the audit link.
	ExplorerURL string
}

// Result is the outcome of settling one cycle.
type Result struct {
	CycleID    int64     `json:"cycleId"`
	Status     string    `json:"status"`
	TxRef      string    `json:"txRef,omitempty"`
	AuditLink  string    `json:"auditLink,omitempty"`
	Recipients int       `json:"recipients"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Client submits batches to the ledger under the configured policy, journals
// every attempt and broadcasts the outcome.
type Client struct {
	ledger  Ledger
	journal AttemptRecorder
	events  Publisher
	cfg     Config
	now     func() time.Time
}

// NewClient creates a settlement client. events may be nil.
func NewClient(ledger Ledger, journal AttemptRecorder, events Publisher, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Client{
		ledger:  ledger,
		journal: journal,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
	}
}

// AuditLink derives the public link of a transaction.
func (c *Client) AuditLink(txRef string) string {
	if c.cfg.ExplorerURL == "" || txRef == "" {
		return ""
	}
	return strings.TrimRight(c.cfg.ExplorerURL, "/") + "/" + txRef
}

// Settle submits b as one ledger transaction. source tags the journal
// attempt (scheduled cycle or replay). The returned Result is always
// non-nil; on failure err is SETTLEMENT_FAILED.
func (c *Client) Settle(ctx context.Context, b Batch, source string) (*Result, error) {
	scope := common.StartScope(ctx, "settlement.settle")
	defer scope.Finish()
	scope.Tag("cycleID", b.CycleID)
	scope.Tag("settlement.recipients", len(b.Recipients))

	res := &Result{CycleID: b.CycleID, Recipients: len(b.Recipients)}

	if err := b.Validate(); err != nil {
		return c.fail(scope, res, source, apperr.Wrap(apperr.CodeSettlementFailed, "invalid batch", err))
	}

	var receipt *Receipt
	op := func() error {
		res.Attempts++
		callCtx, cancel := context.WithTimeout(scope.Ctx, c.cfg.Timeout)
		defer cancel()

		r, err := c.ledger.Submit(callCtx, b)
		if err != nil {
			var le *LedgerError
			if errors.As(err, &le) && le.Permanent {
				return backoff.Permanent(err)
			}
			scope.Log.Warnf("ledger attempt %d for cycle %d failed: %v", res.Attempts, b.CycleID, err)
			return err
		}
		receipt = r
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.cfg.MaxRetries), scope.Ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return c.fail(scope, res, source, apperr.Wrap(apperr.CodeSettlementFailed,
			fmt.Sprintf("settle cycle %d", b.CycleID), err))
	}

	res.Status = audit.StatusSettled
	res.TxRef = receipt.TxRef
	res.AuditLink = c.AuditLink(receipt.TxRef)
	res.At = c.now()

	c.record(scope, res, source)
	metrics.Settlements.WithLabelValues(audit.StatusSettled).Inc()
	c.publish(EventPayoutSettled, res)

	scope.Log.Infof("cycle %d settled in %d attempt(s): tx %s", b.CycleID, res.Attempts, res.TxRef)
	return res, nil
}

func (c *Client) fail(scope *common.Scope, res *Result, source string, err error) (*Result, error) {
	scope.TraceError(err)
	res.Status = audit.StatusFailed
	res.Error = err.Error()
	res.At = c.now()

	c.record(scope, res, source)
	metrics.Settlements.WithLabelValues(audit.StatusFailed).Inc()
	c.publish(EventPayoutFailed, res)

	scope.Log.Errorf("settlement of cycle %d failed after %d attempt(s): %v", res.CycleID, res.Attempts, err)
	return res, err
}

func (c *Client) record(scope *common.Scope, res *Result, source string) {
	if c.journal == nil {
		return
	}
	err := c.journal.RecordAttempt(scope.Ctx, &audit.Attempt{
		CycleID:     res.CycleID,
		AttemptedAt: res.At,
		Source:      source,
		Status:      res.Status,
		TxRef:       res.TxRef,
		AuditLink:   res.AuditLink,
		Error:       res.Error,
	})
	if err != nil {
		scope.Log.Errorf("failed to journal settlement attempt for cycle %d: %v", res.CycleID, err)
	}
}

func (c *Client) publish(kind string, res *Result) {
	if c.events == nil {
		return
	}
	c.events.Publish(broadcast.Event{Type: kind, Data: *res})
}
