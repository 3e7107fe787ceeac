/*
Package ledger provides the transaction record model and loaders.

PURPOSE:
  This package contains the typed representation of one winery ledger
  line (an operation moving or transforming volume between a source and
  destination vessel/batch) and the permissive CSV/JSON loaders that
  turn external transaction exports into Record values.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: One immutable ledger entry with pre/post state on both ends
  - BatchIdentity: Opaque string key naming a state of wine in a vessel
  - OpType: Normalized operation classification (transfer, blend, ...)
  - EffectiveIdentity: The single rule for resolving pre/post identity

DESIGN PRINCIPLES:
  1. Immutability: Records are created at load time and never mutated
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Fidelity: Pre/post identity fields are preserved separately -
     collapsing them silently hides mid-operation identity changes
  4. Tolerance: Sparse exports are normal; missing numerics become zero

SEE ALSO:
  - loader.go: CSV/JSON parsing into Records
  - lineage package: graph construction and queries over Records
*/
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder is the sentinel the source system emits for "no batch" or
// "no vessel". It must never become a graph node.
const Placeholder = "--"

// =============================================================================
// BATCH IDENTITY - Opaque string key, compared verbatim
// =============================================================================

// BatchIdentity names a state of wine in a vessel at a point in the
// ledger. Two identities are the same batch only if their string
// representations are identical; the engine never normalizes case or
// formatting (source-system convention).
type BatchIdentity string

// IsPlaceholder reports whether the identity means "no batch".
func (b BatchIdentity) IsPlaceholder() bool {
	s := strings.TrimSpace(string(b))
	return s == "" || s == Placeholder
}

func (b BatchIdentity) String() string { return string(b) }

// EffectiveIdentity resolves the identity a batch is known by around a
// transaction: the post-state when present and non-placeholder,
// otherwise the pre-state. Applied uniformly to both ends of every
// record at graph-build time so the rule lives in exactly one place.
func EffectiveIdentity(pre, post BatchIdentity) BatchIdentity {
	if !post.IsPlaceholder() {
		return post
	}
	if !pre.IsPlaceholder() {
		return pre
	}
	return ""
}

// =============================================================================
// OPERATION TYPE - Normalized from free-form source strings
// =============================================================================

type OpType string

const (
	OpTransfer   OpType = "transfer"
	OpBlend      OpType = "blend"
	OpSplit      OpType = "split"
	OpAdjustment OpType = "adjustment"
	OpIntake     OpType = "intake"
	OpDispatch   OpType = "dispatch"
	OpRelabel    OpType = "relabel"
	OpOnHand     OpType = "on-hand"
	OpUnknown    OpType = "unknown"
)

// opTypeAliases maps the operation names seen in Vintrace exports onto
// the normalized classification. Measurement/treatment/analysis rows
// change batch properties without moving volume between vessels, so
// they are folded into the adjustment class.
var opTypeAliases = map[string]OpType{
	"transfer":    OpTransfer,
	"blend":       OpBlend,
	"split":       OpSplit,
	"adjustment":  OpAdjustment,
	"measurement": OpAdjustment,
	"treatment":   OpAdjustment,
	"analysis":    OpAdjustment,
	"addition":    OpAdjustment,
	"intake":      OpIntake,
	"receipt":     OpIntake,
	"dispatch":    OpDispatch,
	"shipment":    OpDispatch,
	"bottling":    OpDispatch,
	"relabel":     OpRelabel,
	"rename":      OpRelabel,
	"on-hand":     OpOnHand,
	"onhand":      OpOnHand,
}

// ParseOpType normalizes a source operation string. Unrecognized values
// map to OpUnknown; the raw string is kept on the Record for export.
func ParseOpType(raw string) OpType {
	if t, ok := opTypeAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return OpUnknown
}

// IsMovement reports whether the operation moves volume between two
// batch identities (and therefore produces a lineage edge).
func (t OpType) IsMovement() bool {
	switch t {
	case OpTransfer, OpBlend, OpSplit, OpIntake, OpDispatch, OpRelabel:
		return true
	default:
		return false
	}
}

// =============================================================================
// BATCH SIDE STATE - Pre/post snapshot of one end of a record
// =============================================================================

// SideState captures one end (source or destination) of a transaction:
// the vessel, the batch identity before and after the operation, the
// tax state before and after, and the volumes involved. Pre and post
// identity MAY differ; that difference is load-bearing for lineage.
type SideState struct {
	Vessel       string
	BatchPre     BatchIdentity
	BatchPost    BatchIdentity
	TaxStatePre  string
	TaxStatePost string
	VolPre       decimal.Decimal
	VolPost      decimal.Decimal
	VolChange    decimal.Decimal
}

// Effective returns the identity this side is known by after applying
// the pre/post resolution rule.
func (s SideState) Effective() BatchIdentity {
	return EffectiveIdentity(s.BatchPre, s.BatchPost)
}

// IdentityChanged reports whether the batch was renamed/reclassified
// mid-operation on this side. A placeholder on either field is not a
// change (there was no batch to rename).
func (s SideState) IdentityChanged() bool {
	return !s.BatchPre.IsPlaceholder() && !s.BatchPost.IsPlaceholder() &&
		s.BatchPre != s.BatchPost
}

// =============================================================================
// RECORD - One immutable ledger entry
// =============================================================================

// Record is a single transaction/operation from the ledger export.
// Created once at load time, never mutated afterward.
type Record struct {
	OpDate       time.Time
	OpDateRaw    string // original string, kept when parsing fails
	DateUnparsed bool

	TxID      string
	OpID      string
	WorkOrder string
	OpType    OpType
	OpTypeRaw string
	Reversed  bool
	Operator  string
	Winery    string

	Src  SideState
	Dest SideState

	LossGainAmount decimal.Decimal
	LossGainReason string
	Net            decimal.Decimal
}

// MovedVolume returns the magnitude of volume that changed hands in
// this record: the destination-side change when the export recorded
// one, otherwise the source-side change. The NET column is unreliable
// in source exports (frequently zero) and is never used here.
func (r *Record) MovedVolume() decimal.Decimal {
	if !r.Dest.VolChange.IsZero() {
		return r.Dest.VolChange.Abs()
	}
	return r.Src.VolChange.Abs()
}

// SignedChange returns the signed inventory delta for the batch this
// record targets: destination change when present, otherwise the
// source change. Used for adjustment-class records where sign matters
// (a drain reduces on-hand volume).
func (r *Record) SignedChange() decimal.Decimal {
	if !r.Dest.VolChange.IsZero() {
		return r.Dest.VolChange
	}
	return r.Src.VolChange
}

// SelfReferential reports whether the record's effective source and
// destination are the same batch (an in-place operation such as an
// additive mixed into the same vessel). Such records still count in
// volume rollups but never form an ancestry edge.
func (r *Record) SelfReferential() bool {
	src, dest := r.Src.Effective(), r.Dest.Effective()
	return !src.IsPlaceholder() && src == dest
}

// Ref returns the best available human reference for the record.
func (r *Record) Ref() string {
	if r.OpID != "" {
		return r.OpID
	}
	return r.TxID
}

// DateString renders the operation date for reports and exports,
// falling back to the raw string for unparsed dates.
func (r *Record) DateString() string {
	if r.DateUnparsed || r.OpDate.IsZero() {
		return r.OpDateRaw
	}
	return r.OpDate.Format("2006-01-02 15:04")
}
