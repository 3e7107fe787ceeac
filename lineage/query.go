/*
query.go - Traversal operations over the immutable lineage graph

PURPOSE:
  The Engine answers the questions the graph exists for: what is on
  hand, what contributed to a batch (transitively), what a batch fed
  into, and where the volume went. Every operation is a pure read -
  the graph is never mutated after Build, so concurrent queries need
  no locking.

KEY OPERATIONS:
  BatchLineage:           direct parents/children + on-hand computation
  AllContributingBatches: transitive ancestor set with cycle detection
  AllDescendantBatches:   transitive descendant set
  FullLineageTree:        recursive ancestor expansion, memoized
  AllOnHandBatches:       deterministic on-hand listing
  AnalyzeLosses:          loss totals grouped by reason

CYCLE POLICY:
  Traversal keeps both a visited set (termination) and an on-path set.
  Revisiting an on-path node is a genuine lineage cycle and becomes a
  Finding; revisiting a merely-visited node is legitimate re-use of a
  shared ancestor (blends converge). Findings are collected, never
  thrown, so one bad transaction does not block the rest.

SEE ALSO:
  - graph.go: Build and the underlying structure
  - report package: rendering of query results
*/
package lineage

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cellarworks/lineage-engine/ledger"
)

// UnknownLossReason is the bucket for records carrying a loss with a
// blank reason field.
const UnknownLossReason = "Unknown"

// =============================================================================
// BATCH LINEAGE - Derived view for one batch identity
// =============================================================================

// BatchLineage is the computed lineage view for one batch. It owns no
// state of its own: it is derived from the graph on demand and must be
// recomputed if the graph is rebuilt.
type BatchLineage struct {
	Batch ledger.BatchIdentity

	// Found is false when the identity never appears in the graph.
	// A missing batch is a normal query outcome, not an error.
	Found bool

	// OnHandVolume is the raw computed balance:
	// sum(inflow) - sum(outflow) - sum(attributed losses).
	// May be negative; negative values are a data-quality signal and
	// are preserved here. Clamping is a presentation concern.
	OnHandVolume decimal.Decimal

	// ReportedVolume is the volume stated by an On-Hand snapshot
	// record, when the ledger contained one. Nil otherwise.
	ReportedVolume *decimal.Decimal

	IsOnHand         bool
	HasLeftInventory bool

	// Contributing maps each direct ancestor to the cumulative volume
	// it contributed across all paths.
	Contributing map[ledger.BatchIdentity]decimal.Decimal

	// Incoming are records where this batch is the destination, in
	// ledger order. Outgoing are records where it is the source.
	Incoming []*ledger.Record
	Outgoing []*ledger.Record

	Parents  []ledger.BatchIdentity
	Children []ledger.BatchIdentity
}

// CurrentVolume prefers the reported on-hand snapshot over the
// computed balance; the computed value remains available raw.
func (l BatchLineage) CurrentVolume() decimal.Decimal {
	if l.ReportedVolume != nil {
		return *l.ReportedVolume
	}
	return l.OnHandVolume
}

// DisplayVolume clamps negatives to zero. Explicitly a presentation
// step: diagnostics must use OnHandVolume.
func (l BatchLineage) DisplayVolume() decimal.Decimal {
	if v := l.CurrentVolume(); v.IsPositive() {
		return v
	}
	return decimal.Zero
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs pure queries over a built graph.
type Engine struct {
	g *Graph
}

func NewEngine(g *Graph) *Engine { return &Engine{g: g} }

// Graph exposes the underlying graph (read-only by convention).
func (e *Engine) Graph() *Graph { return e.g }

// BatchLineage returns the lineage view for one identity. An identity
// absent from the graph yields a zero view with Found=false.
func (e *Engine) BatchLineage(id ledger.BatchIdentity) BatchLineage {
	h, ok := e.g.index[id]
	if !ok {
		return BatchLineage{Batch: id}
	}
	n := e.g.nodes[h]

	raw := n.inflow.Sub(n.outflow).Sub(n.loss)

	contributing := make(map[ledger.BatchIdentity]decimal.Decimal, len(n.contrib))
	parents := make([]ledger.BatchIdentity, 0, len(n.parents))
	for _, ph := range n.parents {
		pid := e.g.nodes[ph].id
		parents = append(parents, pid)
		contributing[pid] = n.contrib[ph]
	}
	children := make([]ledger.BatchIdentity, 0, len(n.children))
	for _, ch := range n.children {
		children = append(children, e.g.nodes[ch].id)
	}
	sortIdentities(parents)
	sortIdentities(children)

	return BatchLineage{
		Batch:            id,
		Found:            true,
		OnHandVolume:     raw,
		ReportedVolume:   n.snapshot,
		IsOnHand:         n.onHandFlag || raw.IsPositive(),
		HasLeftInventory: n.hasLeft,
		Contributing:     contributing,
		Incoming:         n.incoming,
		Outgoing:         n.outgoing,
		Parents:          parents,
		Children:         children,
	}
}

// =============================================================================
// TRANSITIVE TRAVERSALS
// =============================================================================

// AllContributingBatches returns every transitive ancestor of id, plus
// any cycle findings encountered on the way. The result excludes id
// itself and is sorted for reproducibility.
func (e *Engine) AllContributingBatches(id ledger.BatchIdentity) ([]ledger.BatchIdentity, []Finding) {
	h, ok := e.g.index[id]
	if !ok {
		return nil, nil
	}
	t := traversal{g: e.g, visited: map[int]bool{}, onPath: map[int]bool{}}
	t.walk(h, func(n *node) []int { return n.parents })

	out := make([]ledger.BatchIdentity, 0, len(t.visited))
	for vh := range t.visited {
		if vh != h {
			out = append(out, e.g.nodes[vh].id)
		}
	}
	sortIdentities(out)
	return out, t.findings
}

// AllDescendantBatches returns every transitive descendant of id.
func (e *Engine) AllDescendantBatches(id ledger.BatchIdentity) ([]ledger.BatchIdentity, []Finding) {
	h, ok := e.g.index[id]
	if !ok {
		return nil, nil
	}
	t := traversal{g: e.g, visited: map[int]bool{}, onPath: map[int]bool{}}
	t.walk(h, func(n *node) []int { return n.children })

	out := make([]ledger.BatchIdentity, 0, len(t.visited))
	for vh := range t.visited {
		if vh != h {
			out = append(out, e.g.nodes[vh].id)
		}
	}
	sortIdentities(out)
	return out, t.findings
}

// traversal is a DFS that distinguishes "already seen anywhere"
// (termination, shared ancestors are normal) from "already on the
// current path" (a genuine cycle, reported as a finding).
type traversal struct {
	g        *Graph
	visited  map[int]bool
	onPath   map[int]bool
	path     []int
	findings []Finding
}

func (t *traversal) walk(h int, next func(*node) []int) {
	t.visited[h] = true
	t.onPath[h] = true
	t.path = append(t.path, h)

	for _, nh := range next(t.g.nodes[h]) {
		if t.onPath[nh] {
			t.findings = append(t.findings, Finding{
				Kind:    FindingCycle,
				Batch:   t.g.nodes[nh].id,
				Related: t.cyclePath(nh),
				Detail:  "batch is its own ancestor",
			})
			continue
		}
		if t.visited[nh] {
			continue
		}
		t.walk(nh, next)
	}

	t.onPath[h] = false
	t.path = t.path[:len(t.path)-1]
}

// cyclePath returns the identities from the first occurrence of h on
// the current path through to the top, closing the loop.
func (t *traversal) cyclePath(h int) []ledger.BatchIdentity {
	start := 0
	for i, ph := range t.path {
		if ph == h {
			start = i
			break
		}
	}
	out := make([]ledger.BatchIdentity, 0, len(t.path)-start+1)
	for _, ph := range t.path[start:] {
		out = append(out, t.g.nodes[ph].id)
	}
	out = append(out, t.g.nodes[h].id)
	return out
}

// =============================================================================
// FULL LINEAGE TREE - Memoized recursive expansion
// =============================================================================

// TreeNode is one node of the recursive ancestor expansion.
type TreeNode struct {
	Batch            ledger.BatchIdentity `json:"batch"`
	CurrentVolume    decimal.Decimal      `json:"current_volume"`
	IsOnHand         bool                 `json:"is_on_hand"`
	HasLeftInventory bool                 `json:"has_left_inventory"`
	CycleDetected    bool                 `json:"cycle_detected,omitempty"`
	NotFound         bool                 `json:"not_found,omitempty"`
	Contributors     []Contribution       `json:"contributors,omitempty"`
}

// Contribution pairs a contributor subtree with the volume it fed into
// the parent node. The subtree is shared between occurrences (memoized),
// the volume is edge-specific.
type Contribution struct {
	Volume decimal.Decimal `json:"gallons_contributed"`
	Node   *TreeNode       `json:"node"`
}

// FullLineageTree expands the ancestors of id into a nested structure
// to unlimited depth. Sub-results are memoized per call so a shared
// ancestor in a deep blend hierarchy is expanded once, and a node
// revisited while still on the current path is emitted as a cycle
// marker rather than recursed into.
func (e *Engine) FullLineageTree(id ledger.BatchIdentity) *TreeNode {
	h, ok := e.g.index[id]
	if !ok {
		return &TreeNode{Batch: id, NotFound: true}
	}
	tb := &treeBuilder{e: e, memo: map[int]*TreeNode{}, onPath: map[int]bool{}}
	return tb.expand(h)
}

type treeBuilder struct {
	e      *Engine
	memo   map[int]*TreeNode
	onPath map[int]bool
}

func (tb *treeBuilder) expand(h int) *TreeNode {
	if cached, ok := tb.memo[h]; ok {
		return cached
	}
	if tb.onPath[h] {
		// Cycle markers are deliberately not memoized: the same batch
		// reached off-path must still expand normally.
		return &TreeNode{Batch: tb.e.g.nodes[h].id, CycleDetected: true}
	}

	n := tb.e.g.nodes[h]
	lin := tb.e.BatchLineage(n.id)
	tn := &TreeNode{
		Batch:            n.id,
		CurrentVolume:    lin.CurrentVolume(),
		IsOnHand:         lin.IsOnHand,
		HasLeftInventory: lin.HasLeftInventory,
	}

	tb.onPath[h] = true
	// Parent handles sorted by identity for deterministic output.
	parents := append([]int(nil), n.parents...)
	sort.Slice(parents, func(i, j int) bool {
		return tb.e.g.nodes[parents[i]].id < tb.e.g.nodes[parents[j]].id
	})
	for _, ph := range parents {
		tn.Contributors = append(tn.Contributors, Contribution{
			Volume: n.contrib[ph],
			Node:   tb.expand(ph),
		})
	}
	tb.onPath[h] = false

	tb.memo[h] = tn
	return tn
}

// =============================================================================
// INVENTORY LISTINGS
// =============================================================================

// AllOnHandBatches returns every batch whose lineage reports it on
// hand, sorted by identity for reproducible output.
func (e *Engine) AllOnHandBatches() []ledger.BatchIdentity {
	var out []ledger.BatchIdentity
	for _, n := range e.g.nodes {
		if e.BatchLineage(n.id).IsOnHand {
			out = append(out, n.id)
		}
	}
	sortIdentities(out)
	return out
}

// AllShippedBatches returns batches that have left inventory and are
// no longer on hand.
func (e *Engine) AllShippedBatches() []ledger.BatchIdentity {
	var out []ledger.BatchIdentity
	for _, n := range e.g.nodes {
		lin := e.BatchLineage(n.id)
		if lin.HasLeftInventory && !lin.IsOnHand {
			out = append(out, n.id)
		}
	}
	sortIdentities(out)
	return out
}

// =============================================================================
// LOSS ANALYSIS
// =============================================================================

// AnalyzeLosses sums loss/gain magnitudes across all non-reversed
// records grouped by reason. Blank reasons land in the Unknown bucket.
// Amounts accumulate as positive decimals regardless of the sign
// convention of the source record.
func (e *Engine) AnalyzeLosses() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, rec := range e.g.records {
		if rec.LossGainAmount.IsZero() {
			continue
		}
		reason := strings.TrimSpace(rec.LossGainReason)
		if reason == "" {
			reason = UnknownLossReason
		}
		out[reason] = out[reason].Add(rec.LossGainAmount.Abs())
	}
	return out
}

// =============================================================================
// FINDINGS & SUMMARY
// =============================================================================

// Findings returns the complete set of data-integrity findings:
// build-time findings plus cycles discovered by a full forward sweep
// and negative computed on-hand volumes.
func (e *Engine) Findings() []Finding {
	findings := e.g.BuildFindings()

	// One sweep over forward edges finds every cycle without repeating
	// per-batch traversals.
	t := traversal{g: e.g, visited: map[int]bool{}, onPath: map[int]bool{}}
	for h := range e.g.nodes {
		if !t.visited[h] {
			t.walk(h, func(n *node) []int { return n.children })
		}
	}
	findings = append(findings, t.findings...)

	for _, n := range e.g.nodes {
		lin := e.BatchLineage(n.id)
		if lin.OnHandVolume.IsNegative() {
			findings = append(findings, Finding{
				Kind:   FindingNegativeVolume,
				Batch:  n.id,
				Amount: lin.OnHandVolume,
				Detail: "computed on-hand volume is negative",
			})
		}
	}
	return findings
}

// Summary holds run-level statistics for reports and the JSON export.
type Summary struct {
	TotalRecords           int     `json:"total_records"`
	ReversedExcluded       int     `json:"reversed_excluded"`
	AuditOnlyRecords       int     `json:"audit_only_records"`
	TotalBatches           int     `json:"total_batches"`
	OnHandBatches          int     `json:"on_hand_batches"`
	ShippedBatches         int     `json:"shipped_batches"`
	BatchesWithAncestors   int     `json:"batches_with_ancestors"`
	BatchesWithDescendants int     `json:"batches_with_descendants"`
	MaxAncestors           int     `json:"max_ancestors"`
	AvgAncestors           float64 `json:"avg_ancestors"`
	Findings               int     `json:"findings"`
}

// Summarize computes run-level statistics over the whole graph.
func (e *Engine) Summarize() Summary {
	s := Summary{
		TotalRecords:     len(e.g.records),
		ReversedExcluded: e.g.reversedCount,
		AuditOnlyRecords: len(e.g.auditOnly),
		TotalBatches:     len(e.g.nodes),
		OnHandBatches:    len(e.AllOnHandBatches()),
		ShippedBatches:   len(e.AllShippedBatches()),
		Findings:         len(e.Findings()),
	}
	totalAncestors := 0
	for _, n := range e.g.nodes {
		if len(n.parents) > 0 {
			s.BatchesWithAncestors++
		}
		if len(n.children) > 0 {
			s.BatchesWithDescendants++
		}
		ancestors, _ := e.AllContributingBatches(n.id)
		totalAncestors += len(ancestors)
		if len(ancestors) > s.MaxAncestors {
			s.MaxAncestors = len(ancestors)
		}
	}
	if len(e.g.nodes) > 0 {
		s.AvgAncestors = float64(totalAncestors) / float64(len(e.g.nodes))
	}
	return s
}

func sortIdentities(ids []ledger.BatchIdentity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
