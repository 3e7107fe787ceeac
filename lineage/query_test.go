package lineage_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/lineage-engine/ledger"
	"github.com/cellarworks/lineage-engine/lineage"
)

// =============================================================================
// ON-HAND COMPUTATION
// =============================================================================

func TestBatchLineage_MissingBatch(t *testing.T) {
	e := build(intake("A", 100))

	lin := e.BatchLineage("NEVER-SEEN")
	assert.False(t, lin.Found)
	assert.True(t, lin.OnHandVolume.IsZero())
	assert.Empty(t, lin.Parents)
	assert.Empty(t, lin.Incoming)
}

func TestBatchLineage_SplitWithRename(t *testing.T) {
	// GIVEN: X receives 1000 gal, then a transfer renames X to Y while
	// sending 400 gal to a new batch Z.
	r := &ledger.Record{OpType: ledger.OpTransfer}
	r.Src.BatchPre = "X"
	r.Src.BatchPost = "Y"
	r.Src.VolPre = dec(1000)
	r.Src.VolPost = dec(600)
	r.Src.VolChange = dec(-400)
	r.Dest.BatchPre = ledger.Placeholder
	r.Dest.BatchPost = "Z"
	r.Dest.VolChange = dec(400)

	e := build(intake("X", 1000), r)

	// THEN the three identities partition the volume: nothing remains
	// under the old name, the renamed remainder holds 600, the split 400.
	assert.True(t, e.BatchLineage("X").OnHandVolume.IsZero())
	assert.True(t, e.BatchLineage("Y").OnHandVolume.Equal(dec(600)))
	assert.True(t, e.BatchLineage("Z").OnHandVolume.Equal(dec(400)))

	// AND Z's ancestry reaches back through Y to X.
	ancestors, findings := e.AllContributingBatches("Z")
	assert.Equal(t, []ledger.BatchIdentity{"X", "Y"}, ancestors)
	assert.Empty(t, findings)
}

func TestBatchLineage_NegativeVolumePreservedRaw(t *testing.T) {
	// More leaves than ever arrived: the raw balance goes negative and
	// must stay visible for diagnostics.
	e := build(
		intake("A", 100),
		dispatch("A", 150),
	)

	lin := e.BatchLineage("A")
	assert.True(t, lin.OnHandVolume.Equal(dec(-50)))
	assert.True(t, lin.DisplayVolume().IsZero())
	assert.False(t, lin.IsOnHand)
}

// =============================================================================
// TRANSITIVE TRAVERSALS
// =============================================================================

func TestAllContributingBatches_Chain(t *testing.T) {
	e := build(
		intake("A", 1000),
		movement(ledger.OpTransfer, "A", "B", 600),
		movement(ledger.OpTransfer, "B", "C", 300),
	)

	ancestors, findings := e.AllContributingBatches("C")
	assert.Equal(t, []ledger.BatchIdentity{"A", "B"}, ancestors)
	assert.Empty(t, findings)

	descendants, findings := e.AllDescendantBatches("A")
	assert.Equal(t, []ledger.BatchIdentity{"B", "C"}, descendants)
	assert.Empty(t, findings)
}

func TestAllContributingBatches_SharedAncestorIsNotACycle(t *testing.T) {
	// Diamond: A feeds B and C, both blend into D. Reaching A twice via
	// different paths is legitimate convergence, not a cycle.
	e := build(
		intake("A", 1000),
		movement(ledger.OpSplit, "A", "B", 500),
		movement(ledger.OpSplit, "A", "C", 500),
		movement(ledger.OpBlend, "B", "D", 500),
		movement(ledger.OpBlend, "C", "D", 500),
	)

	ancestors, findings := e.AllContributingBatches("D")
	assert.Equal(t, []ledger.BatchIdentity{"A", "B", "C"}, ancestors)
	assert.Empty(t, findings)
}

func TestAllContributingBatches_CycleTerminatesWithFinding(t *testing.T) {
	// A -> B -> C -> A: malformed data must not hang the traversal.
	e := build(
		movement(ledger.OpTransfer, "A", "B", 100),
		movement(ledger.OpTransfer, "B", "C", 100),
		movement(ledger.OpTransfer, "C", "A", 100),
	)

	ancestors, findings := e.AllContributingBatches("A")
	assert.Equal(t, []ledger.BatchIdentity{"B", "C"}, ancestors)

	require.Len(t, findings, 1)
	assert.Equal(t, lineage.FindingCycle, findings[0].Kind)
	assert.Equal(t, ledger.BatchIdentity("A"), findings[0].Batch)
	assert.NotEmpty(t, findings[0].Related)
}

func TestAllContributingBatches_UnknownBatch(t *testing.T) {
	e := build(intake("A", 100))
	ancestors, findings := e.AllContributingBatches("MISSING")
	assert.Nil(t, ancestors)
	assert.Nil(t, findings)
}

// =============================================================================
// FULL LINEAGE TREE
// =============================================================================

func TestFullLineageTree_SharedAncestorMemoized(t *testing.T) {
	// Diamond again: D's two contributor subtrees both reach A, and the
	// expansion of A must be the same node, not two copies.
	e := build(
		intake("A", 1000),
		movement(ledger.OpSplit, "A", "B", 500),
		movement(ledger.OpSplit, "A", "C", 500),
		movement(ledger.OpBlend, "B", "D", 500),
		movement(ledger.OpBlend, "C", "D", 500),
	)

	tree := e.FullLineageTree("D")
	require.Len(t, tree.Contributors, 2)

	// Contributors sorted by identity: B then C.
	b, c := tree.Contributors[0], tree.Contributors[1]
	assert.Equal(t, ledger.BatchIdentity("B"), b.Node.Batch)
	assert.Equal(t, ledger.BatchIdentity("C"), c.Node.Batch)
	assert.True(t, b.Volume.Equal(dec(500)))

	require.Len(t, b.Node.Contributors, 1)
	require.Len(t, c.Node.Contributors, 1)
	assert.Same(t, b.Node.Contributors[0].Node, c.Node.Contributors[0].Node)
	assert.Equal(t, ledger.BatchIdentity("A"), b.Node.Contributors[0].Node.Batch)
}

func TestFullLineageTree_CycleMarker(t *testing.T) {
	e := build(
		movement(ledger.OpTransfer, "A", "B", 100),
		movement(ledger.OpTransfer, "B", "A", 100),
	)

	tree := e.FullLineageTree("A")
	require.Len(t, tree.Contributors, 1)
	bNode := tree.Contributors[0].Node
	assert.Equal(t, ledger.BatchIdentity("B"), bNode.Batch)

	require.Len(t, bNode.Contributors, 1)
	marker := bNode.Contributors[0].Node
	assert.Equal(t, ledger.BatchIdentity("A"), marker.Batch)
	assert.True(t, marker.CycleDetected)
	assert.Empty(t, marker.Contributors, "cycle markers are leaves")
}

func TestFullLineageTree_MissingBatch(t *testing.T) {
	e := build(intake("A", 100))
	tree := e.FullLineageTree("MISSING")
	assert.True(t, tree.NotFound)
	assert.Empty(t, tree.Contributors)
}

// =============================================================================
// INVENTORY LISTINGS
// =============================================================================

func TestAllOnHandBatches_SortedAndFiltered(t *testing.T) {
	e := build(
		intake("ZINF-02", 100),
		intake("CAB-01", 100),
		movement(ledger.OpTransfer, "CAB-01", "CAB-03", 100),
		dispatch("ZINF-02", 100),
	)

	// CAB-01 emptied into CAB-03, ZINF-02 shipped out.
	assert.Equal(t, []ledger.BatchIdentity{"CAB-03"}, e.AllOnHandBatches())
	assert.Equal(t, []ledger.BatchIdentity{"ZINF-02"}, e.AllShippedBatches())
}

// =============================================================================
// LOSS ANALYSIS
// =============================================================================

func TestAnalyzeLosses_GroupedWithUnknownBucket(t *testing.T) {
	r1 := movement(ledger.OpTransfer, "A", "B", 100)
	r1.LossGainAmount = dec(5.5)
	r1.LossGainReason = "Evaporation"

	r2 := movement(ledger.OpTransfer, "B", "C", 50)
	r2.LossGainAmount = dec(-3) // gains count by magnitude
	r2.LossGainReason = "Evaporation"

	r3 := movement(ledger.OpTransfer, "C", "D", 20)
	r3.LossGainAmount = dec(2)
	r3.LossGainReason = "  " // blank reason

	rev := movement(ledger.OpTransfer, "D", "E", 10)
	rev.LossGainAmount = dec(99)
	rev.LossGainReason = "Evaporation"
	rev.Reversed = true

	e := build(intake("A", 200), r1, r2, r3, rev)

	losses := e.AnalyzeLosses()
	require.Len(t, losses, 2)
	assert.True(t, losses["Evaporation"].Equal(dec(8.5)))
	assert.True(t, losses[lineage.UnknownLossReason].Equal(dec(2)))
}

// =============================================================================
// FINDINGS & SUMMARY
// =============================================================================

func TestFindings_NegativeVolumeReported(t *testing.T) {
	e := build(intake("A", 100), dispatch("A", 150))

	findings := e.Findings()
	require.Len(t, findings, 1)
	assert.Equal(t, lineage.FindingNegativeVolume, findings[0].Kind)
	assert.Equal(t, ledger.BatchIdentity("A"), findings[0].Batch)
	assert.True(t, findings[0].Amount.Equal(dec(-50)))
}

func TestFindings_CycleFoundBySweep(t *testing.T) {
	e := build(
		movement(ledger.OpTransfer, "A", "B", 100),
		movement(ledger.OpTransfer, "B", "A", 100),
	)

	var cycles int
	for _, f := range e.Findings() {
		if f.Kind == lineage.FindingCycle {
			cycles++
		}
	}
	assert.Greater(t, cycles, 0)
}

func TestSummarize(t *testing.T) {
	rev := movement(ledger.OpTransfer, "A", "B", 10)
	rev.Reversed = true

	e := build(
		intake("A", 1000),
		movement(ledger.OpTransfer, "A", "B", 400),
		dispatch("B", 400),
		rev,
	)

	s := e.Summarize()
	assert.Equal(t, 3, s.TotalRecords)
	assert.Equal(t, 1, s.ReversedExcluded)
	assert.Equal(t, 2, s.TotalBatches)
	assert.Equal(t, 1, s.OnHandBatches)  // A keeps 600
	assert.Equal(t, 1, s.ShippedBatches) // B fully dispatched
	assert.Equal(t, 1, s.BatchesWithAncestors)
	assert.Equal(t, 1, s.BatchesWithDescendants)
	assert.Equal(t, 1, s.MaxAncestors)
}

func TestConcurrentQueries(t *testing.T) {
	// The graph is immutable after Build; parallel readers must not
	// interfere. Run with -race to make this meaningful.
	e := build(
		intake("A", 1000),
		movement(ledger.OpTransfer, "A", "B", 400),
		movement(ledger.OpBlend, "B", "C", 200),
	)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				_ = e.BatchLineage("C")
				_, _ = e.AllContributingBatches("C")
				_ = e.FullLineageTree("C")
				_ = e.AnalyzeLosses()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	lin := e.BatchLineage("C")
	assert.True(t, lin.OnHandVolume.Equal(decimal.NewFromInt(200)))
}
