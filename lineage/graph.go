/*
Package lineage builds and queries the batch provenance graph.

PURPOSE:
  Reconstructs a directed, time-ordered graph of wine-batch identity
  transformations (splits, blends, transfers, relabels) from a flat
  transaction ledger, then answers ancestry/descendancy/composition
  queries over it: current on-hand inventory, full recursive lineage
  trees, loss/gain attribution.

KEY CONCEPTS IN THIS FILE (graph.go):
  - Graph: arena of interned batch nodes with explicit parent/child
    adjacency lists (not nested maps - cycle detection and ordering
    guarantees need to be testable)
  - Build: single pass over non-reversed records producing edges,
    per-node record lists, and flow accumulators
  - Evolution edges: identity continuity when a batch's pre-state name
    differs from its post-state name within one operation

BUILD RULES:
  1. Reversed records are excluded from everything (voided entries).
  2. Effective identity prefers the post-state over the pre-state.
  3. A placeholder ("--"/empty) never produces a node or edge; records
     with placeholders on both ends are kept for audit only.
  4. A same-batch in-place operation counts in volume rollups but never
     forms an ancestry edge (it is not a cycle).
  5. When pre != post on either side, an evolution edge pre -> post
     carries the pre-identity's volume forward under the new name.

CONCURRENCY:
  Build is single-threaded. The finished Graph is immutable; concurrent
  queries are safe because nothing mutates it after Build returns.

SEE ALSO:
  - query.go: Engine with the traversal operations
  - findings.go: Data-integrity findings collected during build
*/
package lineage

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cellarworks/lineage-engine/ledger"
)

// ConservationTolerance absorbs the source system's rounding at two
// decimal places when checking per-record volume conservation.
var ConservationTolerance = decimal.NewFromFloat(0.01)

// =============================================================================
// GRAPH - Interned nodes + explicit adjacency lists
// =============================================================================

type node struct {
	id       ledger.BatchIdentity
	parents  []int
	children []int
	contrib  map[int]decimal.Decimal // parent handle -> cumulative volume contributed

	incoming []*ledger.Record // records where this batch is the destination
	outgoing []*ledger.Record // records where this batch is the source

	inflow  decimal.Decimal // volume arriving under this identity
	outflow decimal.Decimal // volume leaving under this identity
	loss    decimal.Decimal // losses attributed to this identity

	snapshot   *decimal.Decimal // reported current volume from an On-Hand record
	onHandFlag bool             // marked on-hand by an On-Hand record
	hasLeft    bool             // effective source of a dispatch-class record
}

// Graph is the process-scoped provenance structure, built once per
// analysis run and treated as read-only afterwards.
type Graph struct {
	nodes []*node
	index map[ledger.BatchIdentity]int

	records       []*ledger.Record // non-reversed records, input order
	auditOnly     []*ledger.Record // placeholder on both ends; no graph effect
	reversedCount int

	findings []Finding
}

// Batches returns every batch identity in the graph, sorted.
func (g *Graph) Batches() []ledger.BatchIdentity {
	out := make([]ledger.BatchIdentity, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.id
	}
	sortIdentities(out)
	return out
}

// Contains reports whether the identity ever appears in the graph.
func (g *Graph) Contains(id ledger.BatchIdentity) bool {
	_, ok := g.index[id]
	return ok
}

// Records returns the non-reversed records the graph was built from.
func (g *Graph) Records() []*ledger.Record { return g.records }

// AuditRecords returns records excluded from traversal because both
// ends were placeholders, kept for audit.
func (g *Graph) AuditRecords() []*ledger.Record { return g.auditOnly }

// ReversedCount returns how many reversed records were excluded.
func (g *Graph) ReversedCount() int { return g.reversedCount }

// BuildFindings returns findings collected during graph construction
// (conservation mismatches, orphans). Query-time findings come from
// the Engine.
func (g *Graph) BuildFindings() []Finding {
	out := make([]Finding, len(g.findings))
	copy(out, g.findings)
	return out
}

// =============================================================================
// BUILD
// =============================================================================

type builder struct {
	g   *Graph
	log zerolog.Logger
}

// Build constructs the lineage graph from a record sequence. The input
// order is preserved in per-node record lists; adjacency is
// order-independent (compared as sets by the idempotence property).
func Build(records []*ledger.Record, log zerolog.Logger) *Graph {
	b := &builder{
		g:   &Graph{index: make(map[ledger.BatchIdentity]int)},
		log: log,
	}

	for _, rec := range records {
		if rec.Reversed {
			b.g.reversedCount++
			continue
		}
		b.g.records = append(b.g.records, rec)
		b.add(rec)
	}

	b.detectOrphans()

	log.Info().
		Int("records", len(b.g.records)).
		Int("reversed_excluded", b.g.reversedCount).
		Int("batches", len(b.g.nodes)).
		Int("build_findings", len(b.g.findings)).
		Msg("lineage graph built")
	return b.g
}

// intern returns the node handle for an identity, creating it on first
// sight. Placeholders must be filtered by the caller.
func (b *builder) intern(id ledger.BatchIdentity) int {
	if h, ok := b.g.index[id]; ok {
		return h
	}
	h := len(b.g.nodes)
	b.g.nodes = append(b.g.nodes, &node{
		id:      id,
		contrib: make(map[int]decimal.Decimal),
	})
	b.g.index[id] = h
	return h
}

func (b *builder) add(rec *ledger.Record) {
	srcEff := rec.Src.Effective()
	destEff := rec.Dest.Effective()

	if srcEff.IsPlaceholder() && destEff.IsPlaceholder() {
		b.g.auditOnly = append(b.g.auditOnly, rec)
		return
	}

	// Identity continuity: the pre-identity's volume carries forward
	// under the post name before the operation's own movement applies.
	if rec.Src.IdentityChanged() {
		b.addEvolution(rec.Src.BatchPre, rec.Src.BatchPost, rec.Src.VolPre, rec)
	}
	if rec.Dest.IdentityChanged() {
		b.addEvolution(rec.Dest.BatchPre, rec.Dest.BatchPost, rec.Dest.VolPre, rec)
	}

	switch {
	case rec.OpType == ledger.OpOnHand:
		b.addSnapshot(rec, destEff, srcEff)
	case rec.SelfReferential():
		b.addInPlace(rec, srcEff)
	case rec.OpType.IsMovement():
		b.addMovement(rec, srcEff, destEff)
	default:
		// Adjustment-class records (including unknown op types) target
		// one batch; sign matters because drains reduce inventory.
		b.addAdjustment(rec, srcEff, destEff)
	}
}

// addEvolution links pre -> post when a batch was renamed or
// reclassified mid-operation. carried is the volume the pre-identity
// held going in; it continues under the post name.
func (b *builder) addEvolution(pre, post ledger.BatchIdentity, carried decimal.Decimal, rec *ledger.Record) {
	if pre.IsPlaceholder() || post.IsPlaceholder() || pre == post {
		return
	}
	ph, ch := b.intern(pre), b.intern(post)
	b.link(ph, ch, carried.Abs())
	b.g.nodes[ph].outflow = b.g.nodes[ph].outflow.Add(carried.Abs())
	b.g.nodes[ch].inflow = b.g.nodes[ch].inflow.Add(carried.Abs())
	appendRecord(&b.g.nodes[ph].outgoing, rec)
}

func (b *builder) addSnapshot(rec *ledger.Record, destEff, srcEff ledger.BatchIdentity) {
	target, vol := destEff, rec.Dest.VolPost
	if target.IsPlaceholder() {
		target, vol = srcEff, rec.Src.VolPost
	}
	if target.IsPlaceholder() {
		return
	}
	h := b.intern(target)
	v := vol
	b.g.nodes[h].snapshot = &v
	b.g.nodes[h].onHandFlag = true
	appendRecord(&b.g.nodes[h].incoming, rec)
}

// addInPlace handles a same-batch operation (additive mixed into the
// same vessel, in-tank treatment). No ancestry edge: this is not a
// cycle, merely the batch transformed in place.
func (b *builder) addInPlace(rec *ledger.Record, id ledger.BatchIdentity) {
	h := b.intern(id)
	n := b.g.nodes[h]
	appendRecord(&n.incoming, rec)
	n.inflow = n.inflow.Add(rec.SignedChange())
	n.loss = n.loss.Add(rec.LossGainAmount.Abs())
}

func (b *builder) addMovement(rec *ledger.Record, srcEff, destEff ledger.BatchIdentity) {
	moved := rec.MovedVolume()

	sh, dh := -1, -1
	if !srcEff.IsPlaceholder() {
		sh = b.intern(srcEff)
	}
	if !destEff.IsPlaceholder() {
		dh = b.intern(destEff)
	}

	if dh >= 0 {
		appendRecord(&b.g.nodes[dh].incoming, rec)
		b.g.nodes[dh].inflow = b.g.nodes[dh].inflow.Add(moved)
		if sh >= 0 {
			b.link(sh, dh, moved)
		}
	}
	if sh >= 0 {
		n := b.g.nodes[sh]
		appendRecord(&n.outgoing, rec)
		n.outflow = n.outflow.Add(moved)
		if rec.OpType == ledger.OpDispatch {
			n.hasLeft = true
		}
	}

	b.attributeLoss(rec, srcEff, destEff)
	b.checkConservation(rec)
}

func (b *builder) addAdjustment(rec *ledger.Record, srcEff, destEff ledger.BatchIdentity) {
	target := destEff
	if target.IsPlaceholder() {
		target = srcEff
	}
	if target.IsPlaceholder() {
		return
	}
	h := b.intern(target)
	n := b.g.nodes[h]
	appendRecord(&n.incoming, rec)
	n.inflow = n.inflow.Add(rec.SignedChange())
	n.loss = n.loss.Add(rec.LossGainAmount.Abs())
}

// link adds (or reinforces) the ancestry edge parent -> child. Edges
// are deduplicated; contributed volume accumulates across records.
func (b *builder) link(parent, child int, volume decimal.Decimal) {
	if parent == child {
		return
	}
	p, c := b.g.nodes[parent], b.g.nodes[child]
	if _, seen := c.contrib[parent]; !seen {
		c.parents = append(c.parents, parent)
		p.children = append(p.children, child)
		c.contrib[parent] = decimal.Zero
	}
	c.contrib[parent] = c.contrib[parent].Add(volume)
}

// attributeLoss charges the loss/gain amount to the losing side: the
// effective source when there is one, otherwise the destination.
func (b *builder) attributeLoss(rec *ledger.Record, srcEff, destEff ledger.BatchIdentity) {
	if rec.LossGainAmount.IsZero() {
		return
	}
	target := srcEff
	if target.IsPlaceholder() {
		target = destEff
	}
	if target.IsPlaceholder() {
		return
	}
	h := b.intern(target)
	b.g.nodes[h].loss = b.g.nodes[h].loss.Add(rec.LossGainAmount.Abs())
}

// checkConservation verifies volume leaving the source equals volume
// arriving at the destination plus the loss/gain, within tolerance.
// Only meaningful when the export recorded both side changes.
func (b *builder) checkConservation(rec *ledger.Record) {
	if rec.Src.VolChange.IsZero() || rec.Dest.VolChange.IsZero() {
		return
	}
	delta := rec.Src.VolChange.Abs().
		Sub(rec.Dest.VolChange.Abs().Add(rec.LossGainAmount.Abs())).
		Abs()
	if delta.GreaterThan(ConservationTolerance) {
		b.g.findings = append(b.g.findings, Finding{
			Kind:   FindingConservation,
			Batch:  rec.Dest.Effective(),
			Ref:    rec.Ref(),
			Amount: delta,
			Detail: "source volume does not match destination volume plus loss/gain",
		})
		b.log.Warn().Str("ref", rec.Ref()).Str("delta", delta.StringFixed(2)).
			Msg("volume conservation mismatch")
	}
}

// detectOrphans flags identities that ended up with adjacency but no
// participating records. With well-formed input every edge endpoint
// carries at least one record; an orphan indicates malformed data.
func (b *builder) detectOrphans() {
	for _, n := range b.g.nodes {
		if len(n.incoming) == 0 && len(n.outgoing) == 0 &&
			(len(n.parents) > 0 || len(n.children) > 0) {
			b.g.findings = append(b.g.findings, Finding{
				Kind:   FindingOrphan,
				Batch:  n.id,
				Detail: "batch referenced by lineage edges but appears in no transaction",
			})
		}
	}
}

// appendRecord appends rec to list unless it is already the most
// recent entry. Records are processed one at a time, so a duplicate
// insertion within one record is always adjacent.
func appendRecord(list *[]*ledger.Record, rec *ledger.Record) {
	if n := len(*list); n > 0 && (*list)[n-1] == rec {
		return
	}
	*list = append(*list, rec)
}
