// Package replay implements the payout replay command: it lists journaled
// cycles that never settled, exports them as YAML manifests and re-submits
// a manifest to the ledger.
package replay

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/audit"
	"github.com/AccelByte/extend-payplay-rewards/pkg/settlement"
)

// Command names.
const (
	CmdList   = "list"
	CmdExport = "export"
	CmdSubmit = "submit"
)

// Config holds replay command configuration.
type Config struct {
	Command       string
	DBPath        string
	CycleID       int64
	ManifestPath  string
	OutPath       string
	LedgerURL     string
	LedgerTimeout time.Duration
	ExplorerURL   string
	MaxRetries    uint64
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses the sub-command and its flags into a Config. Defaults
// come from the service's environment variables.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	if len(args) == 0 {
		return Config{}, fmt.Errorf("usage: replay <%s|%s|%s> [flags]", CmdList, CmdExport, CmdSubmit)
	}
	cfg := Config{Command: args[0]}
	switch cfg.Command {
	case CmdList, CmdExport, CmdSubmit:
	default:
		return Config{}, fmt.Errorf("unknown command %q", cfg.Command)
	}

	timeout := 30 * time.Second
	if v, ok := lookup("LEDGER_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LEDGER_TIMEOUT %q: %w", v, err)
		}
		timeout = d
	}

	fs.StringVar(&cfg.DBPath, "db", envOrDefault(lookup, "AUDIT_DB_PATH", "data/payouts.db"), "payout audit journal path")
	fs.Int64Var(&cfg.CycleID, "cycle", 0, "cycle id (export)")
	fs.StringVar(&cfg.ManifestPath, "f", "", "manifest file (submit)")
	fs.StringVar(&cfg.OutPath, "o", "", "write the manifest to this file instead of stdout (export)")
	fs.StringVar(&cfg.LedgerURL, "ledger", envOrDefault(lookup, "LEDGER_URL", ""), "ledger gateway URL (submit)")
	fs.DurationVar(&cfg.LedgerTimeout, "timeout", timeout, "per-call ledger timeout (submit)")
	fs.StringVar(&cfg.ExplorerURL, "explorer", envOrDefault(lookup, "LEDGER_EXPLORER_URL", ""), "explorer base URL for audit links")
	fs.Uint64Var(&cfg.MaxRetries, "retries", 0, "retries after the first ledger call (submit)")
	if err := fs.Parse(args[1:]); err != nil {
		return Config{}, err
	}

	switch cfg.Command {
	case CmdExport:
		if cfg.CycleID <= 0 {
			return Config{}, errors.New("export requires -cycle")
		}
	case CmdSubmit:
		if cfg.ManifestPath == "" {
			return Config{}, errors.New("submit requires -f")
		}
		if cfg.LedgerURL == "" {
			return Config{}, errors.New("submit requires -ledger or LEDGER_URL")
		}
	}
	return cfg, nil
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

// Run executes the replay command against the audit journal.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	journal, err := audit.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	switch cfg.Command {
	case CmdList:
		return list(ctx, journal, out)
	case CmdExport:
		return export(ctx, journal, cfg, out)
	case CmdSubmit:
		ledger := settlement.NewHTTPLedger(cfg.LedgerURL, cfg.LedgerTimeout)
		client := settlement.NewClient(ledger, journal, nil, settlement.Config{
			Timeout:     cfg.LedgerTimeout,
			MaxRetries:  cfg.MaxRetries,
			ExplorerURL: cfg.ExplorerURL,
		})
		return submit(ctx, journal, client, cfg, out)
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}

func list(ctx context.Context, journal *audit.Journal, out io.Writer) error {
	ids, err := journal.UnsettledCycles(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "all cycles settled")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tAT\tPOOL\tRECIPIENTS\tATTEMPTS\tLAST ERROR")
	for _, id := range ids {
		c, err := journal.Cycle(ctx, id)
		if err != nil {
			return err
		}
		attempts, err := journal.Attempts(ctx, id)
		if err != nil {
			return err
		}
		lastErr := "-"
		if n := len(attempts); n > 0 && attempts[n-1].Error != "" {
			lastErr = attempts[n-1].Error
		}
		b := settlement.BatchFromEntries(c.ID, c.Entries)
		fmt.Fprintf(tw, "%d\t%s\t%v\t%d\t%d\t%s\n",
			c.ID, c.CycleAt.Format(time.RFC3339), c.Pool, len(b.Recipients), len(attempts), lastErr)
	}
	return tw.Flush()
}

func export(ctx context.Context, journal *audit.Journal, cfg Config, out io.Writer) error {
	c, err := journal.Cycle(ctx, cfg.CycleID)
	if err != nil {
		return err
	}
	m := settlement.ManifestFromCycle(c)

	if cfg.OutPath == "" {
		return settlement.WriteManifest(out, m)
	}
	f, err := os.Create(cfg.OutPath)
	if err != nil {
		return fmt.Errorf("create manifest file: %w", err)
	}
	if err := settlement.WriteManifest(f, m); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close manifest file: %w", err)
	}
	fmt.Fprintf(out, "wrote cycle %d manifest to %s\n", c.ID, cfg.OutPath)
	return nil
}

// settler is the part of the settlement client submit needs.
type settler interface {
	Settle(ctx context.Context, b settlement.Batch, source string) (*settlement.Result, error)
}

func submit(ctx context.Context, journal *audit.Journal, client settler, cfg Config, out io.Writer) error {
	f, err := os.Open(cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	m, err := settlement.ReadManifest(f)
	f.Close()
	if err != nil {
		return err
	}

	c, err := journal.Cycle(ctx, m.CycleID)
	if err != nil {
		return err
	}
	want := settlement.BatchFromEntries(c.ID, c.Entries)
	if !slices.Equal(want.Recipients, m.Batch.Recipients) || !slices.Equal(want.Amounts, m.Batch.Amounts) {
		return fmt.Errorf("manifest batch differs from journaled cycle %d", c.ID)
	}

	attempts, err := journal.Attempts(ctx, c.ID)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		if a.Status == audit.StatusSettled {
			return fmt.Errorf("cycle %d already settled in tx %s", c.ID, a.TxRef)
		}
	}

	res, err := client.Settle(ctx, m.Batch, audit.SourceReplay)
	if err != nil {
		fmt.Fprintf(out, "cycle %d: %s after %d attempt(s): %s\n", c.ID, res.Status, res.Attempts, res.Error)
		return err
	}
	fmt.Fprintf(out, "cycle %d: settled tx %s %s\n", c.ID, res.TxRef, res.AuditLink)
	return nil
}
