package settlement

import (
	"fmt"
	"io"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/pkg/audit"
	"gopkg.in/yaml.v3"
)

const manifestVersion = 1

// Manifest is the operator-editable replay document of one journaled cycle.
type Manifest struct {
	Version        int           `yaml:"version"`
	CycleID        int64         `yaml:"cycleId"`
	CycleAt        time.Time     `yaml:"cycleAt"`
	UnitDecimals   int           `yaml:"unitDecimals"`
	IdempotencyKey string        `yaml:"idempotencyKey"`
	Batch          Batch         `yaml:"batch"`
	Entries        []audit.Entry `yaml:"entries,omitempty"`
}

// BatchFromEntries builds the ledger batch of a cycle from its journal
// entries. Only player entries worth at least one unit are paid.
func BatchFromEntries(cycleID int64, entries []audit.Entry) Batch {
	b := Batch{CycleID: cycleID}
	for _, e := range entries {
		if e.Kind != audit.KindPlayer || e.Units <= 0 {
			continue
		}
		b.Recipients = append(b.Recipients, e.Recipient)
		b.Amounts = append(b.Amounts, e.Units)
	}
	return b
}

// ManifestFromCycle builds a replay manifest from a journaled cycle.
func ManifestFromCycle(c *audit.Cycle) *Manifest {
	b := BatchFromEntries(c.ID, c.Entries)
	return &Manifest{
		Version:        manifestVersion,
		CycleID:        c.ID,
		CycleAt:        c.CycleAt,
		UnitDecimals:   c.UnitDecimals,
		IdempotencyKey: b.IdempotencyKey(),
		Batch:          b,
		Entries:        c.Entries,
	}
}

// WriteManifest encodes m as YAML.
func WriteManifest(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return enc.Close()
}

// ReadManifest decodes and validates a manifest. The batch must belong to
// the manifest's cycle so a replay reuses the original idempotency key.
func ReadManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	if m.Batch.CycleID != m.CycleID {
		return nil, fmt.Errorf("batch cycle %d does not match manifest cycle %d", m.Batch.CycleID, m.CycleID)
	}
	if m.IdempotencyKey != m.Batch.IdempotencyKey() {
		return nil, fmt.Errorf("idempotency key %q does not match cycle %d", m.IdempotencyKey, m.CycleID)
	}
	if err := m.Batch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}
	return &m, nil
}
