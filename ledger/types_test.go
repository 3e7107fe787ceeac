package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/cellarworks/lineage-engine/ledger"
)

// =============================================================================
// EFFECTIVE IDENTITY - The one pre/post resolution rule
// =============================================================================

func TestEffectiveIdentity(t *testing.T) {
	tests := []struct {
		name string
		pre  ledger.BatchIdentity
		post ledger.BatchIdentity
		want ledger.BatchIdentity
	}{
		{"post preferred when both set", "24CAB001", "24CAB002", "24CAB002"},
		{"pre used when post is placeholder", "24CAB001", "--", "24CAB001"},
		{"pre used when post is empty", "24CAB001", "", "24CAB001"},
		{"pre used when post is whitespace", "24CAB001", "   ", "24CAB001"},
		{"empty when both placeholders", "--", "--", ""},
		{"empty when both empty", "", "", ""},
		{"post survives placeholder pre", "--", "24CAB002", "24CAB002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.EffectiveIdentity(tt.pre, tt.post))
		})
	}
}

func TestBatchIdentity_IsPlaceholder(t *testing.T) {
	assert.True(t, ledger.BatchIdentity("").IsPlaceholder())
	assert.True(t, ledger.BatchIdentity("--").IsPlaceholder())
	assert.True(t, ledger.BatchIdentity("  --  ").IsPlaceholder())
	assert.False(t, ledger.BatchIdentity("24CAB001").IsPlaceholder())

	// Identity comparison is verbatim: case differences are distinct
	// batches, and the engine never normalizes them.
	assert.False(t, ledger.BatchIdentity("24cab001") == ledger.BatchIdentity("24CAB001"))
}

// =============================================================================
// OPERATION TYPE NORMALIZATION
// =============================================================================

func TestParseOpType(t *testing.T) {
	tests := []struct {
		raw  string
		want ledger.OpType
	}{
		{"Transfer", ledger.OpTransfer},
		{"transfer", ledger.OpTransfer},
		{"Blend", ledger.OpBlend},
		{"Split", ledger.OpSplit},
		{"Receipt", ledger.OpIntake},
		{"Intake", ledger.OpIntake},
		{"Shipment", ledger.OpDispatch},
		{"Dispatch", ledger.OpDispatch},
		{"Bottling", ledger.OpDispatch},
		{"Relabel", ledger.OpRelabel},
		{"Measurement", ledger.OpAdjustment},
		{"Treatment", ledger.OpAdjustment},
		{"Analysis", ledger.OpAdjustment},
		{"Adjustment", ledger.OpAdjustment},
		{"On-Hand", ledger.OpOnHand},
		{"  On-Hand  ", ledger.OpOnHand},
		{"Quantum Flux", ledger.OpUnknown},
		{"", ledger.OpUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ledger.ParseOpType(tt.raw), "raw=%q", tt.raw)
	}
}

// =============================================================================
// RECORD HELPERS
// =============================================================================

func TestRecord_MovedVolume_PrefersDestChange(t *testing.T) {
	r := &ledger.Record{}
	r.Src.VolChange = decimal.NewFromInt(-500)
	r.Dest.VolChange = decimal.NewFromInt(480)
	assert.True(t, r.MovedVolume().Equal(decimal.NewFromInt(480)))

	// Falls back to the source-side change when destination is zero.
	r.Dest.VolChange = decimal.Zero
	assert.True(t, r.MovedVolume().Equal(decimal.NewFromInt(500)))
}

func TestRecord_SelfReferential(t *testing.T) {
	r := &ledger.Record{}
	r.Src.BatchPre = "24CAB001"
	r.Src.BatchPost = "24CAB001"
	r.Dest.BatchPre = "24CAB001"
	r.Dest.BatchPost = "24CAB001"
	assert.True(t, r.SelfReferential())

	r.Dest.BatchPost = "24CAB002"
	assert.False(t, r.SelfReferential())

	// Placeholders on both ends are not self-referential.
	empty := &ledger.Record{}
	assert.False(t, empty.SelfReferential())
}

func TestSideState_IdentityChanged(t *testing.T) {
	s := ledger.SideState{BatchPre: "A", BatchPost: "B"}
	assert.True(t, s.IdentityChanged())

	s = ledger.SideState{BatchPre: "A", BatchPost: "A"}
	assert.False(t, s.IdentityChanged())

	// A placeholder on either side means nothing was renamed.
	s = ledger.SideState{BatchPre: "A", BatchPost: "--"}
	assert.False(t, s.IdentityChanged())
	s = ledger.SideState{BatchPre: "", BatchPost: "B"}
	assert.False(t, s.IdentityChanged())
}
