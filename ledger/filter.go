package ledger

import (
	"path"
	"time"
)

// Filter narrows a loaded ledger before graph construction. Zero-value
// fields are ignored. Filtering happens on raw records so the graph
// only ever sees the window under analysis.
type Filter struct {
	// BatchGlob matches any of the four batch-identity fields using
	// path.Match syntax (e.g. "24BLEND*").
	BatchGlob string

	// Since/Until bound the operation date, inclusive. Records whose
	// date could not be parsed always pass the date bounds: dropping
	// them silently would hide data-quality problems from the report.
	Since time.Time
	Until time.Time
}

// IsZero reports whether the filter would pass everything.
func (f Filter) IsZero() bool {
	return f.BatchGlob == "" && f.Since.IsZero() && f.Until.IsZero()
}

// Apply returns the records that pass the filter, preserving order.
func (f Filter) Apply(records []*Record) []*Record {
	if f.IsZero() {
		return records
	}
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f Filter) matches(r *Record) bool {
	if !r.DateUnparsed && !r.OpDate.IsZero() {
		if !f.Since.IsZero() && r.OpDate.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && r.OpDate.After(f.Until) {
			return false
		}
	}
	if f.BatchGlob == "" {
		return true
	}
	for _, id := range []BatchIdentity{r.Src.BatchPre, r.Src.BatchPost, r.Dest.BatchPre, r.Dest.BatchPost} {
		if id.IsPlaceholder() {
			continue
		}
		// path.Match only errors on a malformed pattern; a bad pattern
		// matches nothing rather than failing the run.
		if ok, err := path.Match(f.BatchGlob, id.String()); err == nil && ok {
			return true
		}
	}
	return false
}
