// Package audit is the append-only payout journal. Every computed
// allocation lands here before the ledger sees it, and every settlement
// attempt is appended after.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/apperr"
	"github.com/AccelByte/extend-payplay-rewards/pkg/audit/migrations"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// EntryKind distinguishes player awards from the treasury cut.
type EntryKind string

const (
	KindPlayer   EntryKind = "player"
	KindTreasury EntryKind = "treasury"
)

// Attempt statuses.
const (
	StatusSettled = "settled"
	StatusFailed  = "failed"
)

// Attempt sources.
const (
	SourceScheduled = "cycle"
	SourceReplay    = "replay"
)

// Entry is one journal line of a cycle.
type Entry struct {
	Kind        EntryKind `json:"kind" yaml:"kind"`
	Recipient   string    `json:"recipient" yaml:"recipient"`
	DailyTotal  int64     `json:"dailyTotal" yaml:"dailyTotal"`
	DailyHigh   int64     `json:"dailyHigh" yaml:"dailyHigh"`
	VolumeShare float64   `json:"volumeShare" yaml:"volumeShare"`
	PeakShare   float64   `json:"peakShare" yaml:"peakShare"`
	Reward      float64   `json:"reward" yaml:"reward"`
	Units       int64     `json:"units" yaml:"units"`
}

// Cycle is the header of one computed payout cycle.
type Cycle struct {
	ID           int64     `json:"id"`
	CycleAt      time.Time `json:"cycleAt"`
	WindowStart  time.Time `json:"windowStart"`
	Pool         float64   `json:"pool"`
	VolumePool   float64   `json:"volumePool"`
	PeakPool     float64   `json:"peakPool"`
	Treasury     float64   `json:"treasury"`
	UnitDecimals int       `json:"unitDecimals"`
	Entries      []Entry   `json:"entries,omitempty"`
}

// Attempt is one settlement submission of a cycle.
type Attempt struct {
	CycleID     int64     `json:"cycleId"`
	AttemptedAt time.Time `json:"attemptedAt"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	TxRef       string    `json:"txRef,omitempty"`
	AuditLink   string    `json:"auditLink,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Journal persists payout cycles in SQLite.
type Journal struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Open opens (creating if needed) the journal database at path and applies
// the embedded migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit db path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run audit migrations: %w", err)
	}

	logrus.Infof("audit journal opened at %s", path)
	return &Journal{db: db}, nil
}

// Close closes the database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Name identifies the journal in health reports.
func (j *Journal) Name() string { return "audit" }

// Check pings the database.
func (j *Journal) Check(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return apperr.Unavailable("audit ping", err)
	}
	return nil
}

// RecordCycle appends a cycle header with all its entries in one transaction
// and returns the assigned cycle id.
func (j *Journal) RecordCycle(ctx context.Context, c *Cycle) (int64, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Unavailable("begin audit transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO payout_cycles (cycle_at, window_start, pool, volume_pool, peak_pool, treasury, unit_decimals)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		toMillis(c.CycleAt), toMillis(c.WindowStart), c.Pool, c.VolumePool, c.PeakPool, c.Treasury, c.UnitDecimals,
	)
	if err != nil {
		return 0, apperr.Unavailable("insert payout cycle", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Unavailable("read payout cycle id", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO payout_entries (cycle_id, seq, kind, recipient, daily_total, daily_high, volume_share, peak_share, reward, units)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, apperr.Unavailable("prepare payout entry", err)
	}
	defer stmt.Close()

	for i, e := range c.Entries {
		if _, err := stmt.ExecContext(ctx,
			id, i+1, string(e.Kind), e.Recipient, e.DailyTotal, e.DailyHigh,
			e.VolumeShare, e.PeakShare, e.Reward, e.Units,
		); err != nil {
			return 0, apperr.Unavailable("insert payout entry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Unavailable("commit payout cycle", err)
	}
	c.ID = id
	return id, nil
}

// RecordAttempt appends a settlement attempt for an existing cycle.
func (j *Journal) RecordAttempt(ctx context.Context, a *Attempt) error {
	if a.Status != StatusSettled && a.Status != StatusFailed {
		return apperr.Invalid("unknown settlement status %q", a.Status)
	}
	attemptedAt := a.AttemptedAt
	if attemptedAt.IsZero() {
		attemptedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO settlement_attempts (cycle_id, attempted_at, source, status, tx_ref, audit_link, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.CycleID, toMillis(attemptedAt), a.Source, a.Status, a.TxRef, a.AuditLink, a.Error,
	)
	if err != nil {
		return apperr.Unavailable("insert settlement attempt", err)
	}
	return nil
}

// Cycle returns a cycle with its entries in journal order.
func (j *Journal) Cycle(ctx context.Context, id int64) (*Cycle, error) {
	var (
		c                 Cycle
		cycleAt, windowAt int64
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT id, cycle_at, window_start, pool, volume_pool, peak_pool, treasury, unit_decimals
		 FROM payout_cycles WHERE id = ?`, id,
	).Scan(&c.ID, &cycleAt, &windowAt, &c.Pool, &c.VolumePool, &c.PeakPool, &c.Treasury, &c.UnitDecimals)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Invalid("payout cycle %d not found", id)
	}
	if err != nil {
		return nil, apperr.Unavailable("read payout cycle", err)
	}
	c.CycleAt = fromMillis(cycleAt)
	c.WindowStart = fromMillis(windowAt)

	c.Entries, err = j.entries(ctx, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// LatestCycle returns the most recently journaled cycle, or nil when the
// journal is empty.
func (j *Journal) LatestCycle(ctx context.Context) (*Cycle, error) {
	var id int64
	err := j.db.QueryRowContext(ctx, `SELECT id FROM payout_cycles ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unavailable("read latest payout cycle", err)
	}
	return j.Cycle(ctx, id)
}

func (j *Journal) entries(ctx context.Context, cycleID int64) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind, recipient, daily_total, daily_high, volume_share, peak_share, reward, units
		 FROM payout_entries WHERE cycle_id = ? ORDER BY seq`, cycleID)
	if err != nil {
		return nil, apperr.Unavailable("read payout entries", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&kind, &e.Recipient, &e.DailyTotal, &e.DailyHigh,
			&e.VolumeShare, &e.PeakShare, &e.Reward, &e.Units); err != nil {
			return nil, apperr.Unavailable("scan payout entry", err)
		}
		e.Kind = EntryKind(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("read payout entries", err)
	}
	return out, nil
}

// Attempts returns the settlement attempts of a cycle, oldest first.
func (j *Journal) Attempts(ctx context.Context, cycleID int64) ([]Attempt, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT cycle_id, attempted_at, source, status, tx_ref, audit_link, error
		 FROM settlement_attempts WHERE cycle_id = ? ORDER BY id`, cycleID)
	if err != nil {
		return nil, apperr.Unavailable("read settlement attempts", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a  Attempt
			at int64
		)
		if err := rows.Scan(&a.CycleID, &at, &a.Source, &a.Status, &a.TxRef, &a.AuditLink, &a.Error); err != nil {
			return nil, apperr.Unavailable("scan settlement attempt", err)
		}
		a.AttemptedAt = fromMillis(at)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("read settlement attempts", err)
	}
	return out, nil
}

// UnsettledCycles returns the ids of cycles that owe players something and
// have no successful settlement attempt, oldest first.
func (j *Journal) UnsettledCycles(ctx context.Context) ([]int64, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT c.id FROM payout_cycles c
		 WHERE EXISTS (
		     SELECT 1 FROM payout_entries e
		     WHERE e.cycle_id = c.id AND e.kind = 'player' AND e.units > 0
		 )
		 AND NOT EXISTS (
		     SELECT 1 FROM settlement_attempts a
		     WHERE a.cycle_id = c.id AND a.status = 'settled'
		 )
		 ORDER BY c.id`)
	if err != nil {
		return nil, apperr.Unavailable("read unsettled cycles", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Unavailable("scan unsettled cycle", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("read unsettled cycles", err)
	}
	return ids, nil
}
