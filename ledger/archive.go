/*
archive.go - Append-only persistence for loaded ledgers

PURPOSE:
  An Archive keeps a loaded transaction ledger around between analysis
  runs so the expensive export/download step does not have to be
  repeated. It is the source of truth for re-runs: analysis from an
  archive must yield the same graph as analysis from the original file.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Corrections arrive as reversal
     records in the source system and are excluded at graph-build time,
     never rewritten here.
  2. ORDER-PRESERVING: LoadAll returns records in insertion order so a
     re-run sees the same ledger sequence as the original load.

IMPLEMENTATIONS:
  - store/sqlite: production archive backed by SQLite
  - ledger/store: in-memory archive for tests
*/
package ledger

import "context"

// Archive persists loaded Records. Append-only.
type Archive interface {
	// Append persists a single record.
	Append(ctx context.Context, rec *Record) error

	// AppendBatch persists records atomically: all or none.
	AppendBatch(ctx context.Context, recs []*Record) error

	// LoadAll returns every archived record in insertion order.
	LoadAll(ctx context.Context) ([]*Record, error)

	// Count returns the number of archived records.
	Count(ctx context.Context) (int, error)
}
