/*
findings.go - Data-integrity findings

PURPOSE:
  The graph builder and query engine never raise on data-quality
  problems. A dirty ledger is the normal case for offline analysis, so
  cycles, orphans, and conservation mismatches are collected as Finding
  values and surfaced in the report/export instead of aborting the run.

SEE ALSO:
  - graph.go: Produces conservation and orphan findings at build time
  - query.go: Produces cycle and negative-volume findings at query time
*/
package lineage

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cellarworks/lineage-engine/ledger"
)

type FindingKind string

const (
	// FindingCycle: ancestry traversal revisited a batch already on the
	// current path. A batch cannot be its own ancestor in well-formed
	// data; this indicates malformed source data or a product bug.
	FindingCycle FindingKind = "cycle"

	// FindingOrphan: a batch identity is referenced by a lineage edge
	// but participates in no transaction record.
	FindingOrphan FindingKind = "orphan"

	// FindingConservation: volume leaving the source does not equal
	// volume arriving at the destination plus the loss/gain amount,
	// beyond the rounding tolerance.
	FindingConservation FindingKind = "conservation-mismatch"

	// FindingNegativeVolume: the computed on-hand volume for a batch is
	// negative. Preserved raw as a data-quality signal; display-level
	// clamping happens in the report package.
	FindingNegativeVolume FindingKind = "negative-on-hand"
)

// Finding is one data-integrity observation. Collected, never thrown.
type Finding struct {
	Kind    FindingKind
	Batch   ledger.BatchIdentity
	Related []ledger.BatchIdentity // cycle path, in traversal order
	Ref     string                 // operation reference, when record-scoped
	Amount  decimal.Decimal        // mismatch delta or negative volume
	Detail  string
}

func (f Finding) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", f.Kind)
	if f.Batch != "" {
		fmt.Fprintf(&b, " batch=%s", f.Batch)
	}
	if len(f.Related) > 0 {
		parts := make([]string, len(f.Related))
		for i, id := range f.Related {
			parts[i] = id.String()
		}
		fmt.Fprintf(&b, " path=%s", strings.Join(parts, " -> "))
	}
	if f.Ref != "" {
		fmt.Fprintf(&b, " ref=%s", f.Ref)
	}
	if !f.Amount.IsZero() {
		fmt.Fprintf(&b, " amount=%s", f.Amount.StringFixed(2))
	}
	if f.Detail != "" {
		fmt.Fprintf(&b, " %s", f.Detail)
	}
	return b.String()
}
