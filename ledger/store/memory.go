// Package store provides Archive implementations.
package store

import (
	"context"
	"sync"

	"github.com/cellarworks/lineage-engine/ledger"
)

// =============================================================================
// MEMORY ARCHIVE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records []*ledger.Record
}

func NewMemory() *Memory {
	return &Memory{}
}

// Append adds a single record. Append-only.
func (m *Memory) Append(_ context.Context, rec *ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// AppendBatch adds multiple records. The in-memory slice append is
// all-or-nothing by construction.
func (m *Memory) AppendBatch(_ context.Context, recs []*ledger.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recs...)
	return nil
}

// LoadAll returns the archived records in insertion order.
func (m *Memory) LoadAll(_ context.Context) ([]*ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ledger.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
