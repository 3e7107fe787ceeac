/*
Package report renders lineage query results for humans and exports.

PURPOSE:
  The output contract of the lineage core: human-readable multi-section
  text reports, flat CSV tables for BI consumers, and a complete JSON
  export for archival/debugging.

THE DETAILED EXPORT IS CANONICAL:
  The detailed lineage CSV preserves the pre/post batch-identity pair
  for both ends of every transaction. Exports that only show the
  post-state silently hide identity changes - every other export here
  is a lossy projection of the detailed one.

KEY OUTPUTS (report.go):
  BatchReport:   multi-section text report for one batch
  SummaryReport: run-level statistics + findings section

SEE ALSO:
  - export.go: CSV and JSON exports
*/
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cellarworks/lineage-engine/ledger"
	"github.com/cellarworks/lineage-engine/lineage"
)

const rule = "================================================================================"
const thinRule = "--------------------------------------------------------------------------------"

// BatchFilter selects which batches an export includes.
type BatchFilter string

const (
	FilterAll     BatchFilter = ""
	FilterOnHand  BatchFilter = "on-hand"
	FilterShipped BatchFilter = "shipped"
)

func (f BatchFilter) keep(lin lineage.BatchLineage) bool {
	switch f {
	case FilterOnHand:
		return lin.IsOnHand
	case FilterShipped:
		return lin.HasLeftInventory
	default:
		return true
	}
}

// Formatter renders query results from one engine.
type Formatter struct {
	engine *lineage.Engine
}

func New(engine *lineage.Engine) *Formatter {
	return &Formatter{engine: engine}
}

// =============================================================================
// BATCH REPORT - Human-readable multi-section text
// =============================================================================

// BatchReport renders the lineage of one batch. An unknown batch gets
// a one-line notice, not an error.
func (f *Formatter) BatchReport(id ledger.BatchIdentity) string {
	lin := f.engine.BatchLineage(id)
	if !lin.Found {
		return fmt.Sprintf("Batch %q not found in transactions\n", id)
	}

	var b strings.Builder
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "LINEAGE REPORT FOR: %s\n", id)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Status: %s\n", status(lin))
	// Display volume is clamped; the raw value is shown alongside when
	// it disagrees so negative balances stay visible.
	fmt.Fprintf(&b, "Current Volume: %s gallons\n", lin.DisplayVolume().StringFixed(2))
	if lin.OnHandVolume.IsNegative() {
		fmt.Fprintf(&b, "Computed Volume (raw): %s gallons  ** data-quality signal **\n",
			lin.OnHandVolume.StringFixed(2))
	}
	b.WriteString("\n")

	if len(lin.Contributing) > 0 {
		fmt.Fprintf(&b, "CONTRIBUTING BATCHES (%d):\n", len(lin.Contributing))
		b.WriteString(thinRule + "\n")
		for _, contrib := range sortedContribs(lin.Contributing) {
			fmt.Fprintf(&b, "  %-30s : %10s gallons\n", contrib.batch, contrib.volume.StringFixed(2))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No contributing batches (this may be an original intake)\n\n")
	}

	writeRecordSection(&b, "INCOMING TRANSACTIONS", lin.Incoming)
	writeRecordSection(&b, "OUTGOING TRANSACTIONS", lin.Outgoing)

	if _, findings := f.engine.AllContributingBatches(id); len(findings) > 0 {
		fmt.Fprintf(&b, "FINDINGS (%d):\n", len(findings))
		b.WriteString(thinRule + "\n")
		for _, fi := range findings {
			fmt.Fprintf(&b, "  %s\n", fi)
		}
		b.WriteString("\n")
	}

	b.WriteString(rule + "\n")
	return b.String()
}

func writeRecordSection(b *strings.Builder, title string, recs []*ledger.Record) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(recs))
	b.WriteString(thinRule + "\n")
	for _, r := range recs {
		fmt.Fprintf(b, "  %-16s %-12s %-12s %-20s -> %-20s %8s gal\n",
			r.DateString(), r.Ref(), r.OpTypeRaw,
			r.Src.Effective(), r.Dest.Effective(),
			r.MovedVolume().StringFixed(2))
	}
	b.WriteString("\n")
}

func status(lin lineage.BatchLineage) string {
	switch {
	case lin.IsOnHand:
		return "ON-HAND"
	case lin.HasLeftInventory:
		return "SHIPPED"
	default:
		return "UNKNOWN"
	}
}

type contribution struct {
	batch  ledger.BatchIdentity
	volume decimal.Decimal
}

// sortedContribs orders a contributing map by batch identity for
// reproducible report output.
func sortedContribs(m map[ledger.BatchIdentity]decimal.Decimal) []contribution {
	out := make([]contribution, 0, len(m))
	for batch, volume := range m {
		out = append(out, contribution{batch: batch, volume: volume})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].batch < out[j].batch })
	return out
}

// =============================================================================
// SUMMARY REPORT
// =============================================================================

// SummaryReport renders run-level statistics and the findings section.
func (f *Formatter) SummaryReport() string {
	s := f.engine.Summarize()
	findings := f.engine.Findings()

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("BATCH LINEAGE ANALYSIS SUMMARY\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Total transactions analyzed : %d\n", s.TotalRecords)
	fmt.Fprintf(&b, "Reversed records excluded   : %d\n", s.ReversedExcluded)
	fmt.Fprintf(&b, "Audit-only records          : %d\n", s.AuditOnlyRecords)
	fmt.Fprintf(&b, "Unique batches tracked      : %d\n", s.TotalBatches)
	fmt.Fprintf(&b, "On-hand batches             : %d\n", s.OnHandBatches)
	fmt.Fprintf(&b, "Shipped batches             : %d\n", s.ShippedBatches)
	fmt.Fprintf(&b, "Batches with ancestors      : %d\n", s.BatchesWithAncestors)
	fmt.Fprintf(&b, "Batches with descendants    : %d\n", s.BatchesWithDescendants)
	fmt.Fprintf(&b, "Max ancestors for any batch : %d\n", s.MaxAncestors)
	fmt.Fprintf(&b, "Average ancestors per batch : %.2f\n", s.AvgAncestors)
	b.WriteString("\n")

	losses := f.engine.AnalyzeLosses()
	if len(losses) > 0 {
		fmt.Fprintf(&b, "LOSSES BY REASON (%d):\n", len(losses))
		b.WriteString(thinRule + "\n")
		reasons := make([]string, 0, len(losses))
		for reason := range losses {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(&b, "  %-30s : %10s gallons\n", reason, losses[reason].StringFixed(2))
		}
		b.WriteString("\n")
	}

	if len(findings) > 0 {
		fmt.Fprintf(&b, "DATA-INTEGRITY FINDINGS (%d):\n", len(findings))
		b.WriteString(thinRule + "\n")
		for _, fi := range findings {
			fmt.Fprintf(&b, "  %s\n", fi)
		}
		b.WriteString("\n")
	}

	b.WriteString(rule + "\n")
	return b.String()
}
