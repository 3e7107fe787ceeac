/*
export.go - Flat CSV and full JSON exports

PURPOSE:
  Tabular projections of the lineage graph for BI consumers and the
  complete JSON export for archival/debugging.

EXPORTS:
  WriteLineageCSV:         one row per (destination, contributor) pair
  WriteDetailedCSV:        one row per contributing transaction with
                           explicit pre/post identity columns - the
                           canonical, information-preserving export
  WriteAncestrySummaryCSV: one row per batch with joined ancestor and
                           descendant lists
  WriteJSON:               graph + every BatchLineage + findings +
                           summary, stamped with a run id

SEE ALSO:
  - report.go: Text rendering
*/
package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cellarworks/lineage-engine/ledger"
	"github.com/cellarworks/lineage-engine/lineage"
)

// =============================================================================
// SIMPLE LINEAGE CSV - One row per (destination, contributor) pair
// =============================================================================

var lineageHeader = []string{
	"Destination_Batch", "Source_Batch", "Gallons_Contributed",
	"Destination_Current_Volume", "Destination_Is_On_Hand", "Destination_Has_Left",
}

// WriteLineageCSV writes the simple lineage projection. Batches with
// no contributors still get a row (they are origin batches) so the
// export covers the whole graph.
func (f *Formatter) WriteLineageCSV(w io.Writer, filter BatchFilter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(lineageHeader); err != nil {
		return err
	}
	for _, id := range f.engine.Graph().Batches() {
		lin := f.engine.BatchLineage(id)
		if !filter.keep(lin) {
			continue
		}
		base := []string{
			id.String(), "", "0",
			lin.DisplayVolume().StringFixed(2),
			boolString(lin.IsOnHand), boolString(lin.HasLeftInventory),
		}
		if len(lin.Contributing) == 0 {
			if err := cw.Write(base); err != nil {
				return err
			}
			continue
		}
		for _, c := range sortedContribs(lin.Contributing) {
			row := append([]string(nil), base...)
			row[1] = c.batch.String()
			row[2] = c.volume.StringFixed(2)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// DETAILED LINEAGE CSV - Canonical, identity-change preserving
// =============================================================================

var detailedHeader = []string{
	"Destination_Batch",
	"Op_Date", "Tx_Id", "Op_Id", "Op_Type", "Work_Order",
	"Src_Vessel", "Src_Batch_Pre", "Src_Batch_Post", "Src_Batch_Changed",
	"Src_Vol_Pre", "Src_Vol_Post", "Src_Vol_Change",
	"Src_Tax_State_Pre", "Src_Tax_State_Post",
	"Dest_Vessel", "Dest_Batch_Pre", "Dest_Batch_Post", "Dest_Batch_Changed",
	"Dest_Vol_Pre", "Dest_Vol_Post", "Dest_Vol_Change",
	"Dest_Tax_State_Pre", "Dest_Tax_State_Post",
	"Net_Volume", "Loss_Gain_Amount_Gal", "Loss_Gain_Reason",
	"Destination_Current_Volume", "Destination_Is_On_Hand", "Destination_Has_Left",
}

// WriteDetailedCSV writes one row per contributing transaction with
// the full pre/post identity pair on both ends. This is the canonical
// export: it is the only one from which identity changes can be
// recovered.
func (f *Formatter) WriteDetailedCSV(w io.Writer, filter BatchFilter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(detailedHeader); err != nil {
		return err
	}
	for _, id := range f.engine.Graph().Batches() {
		lin := f.engine.BatchLineage(id)
		if !filter.keep(lin) {
			continue
		}
		for _, r := range lin.Incoming {
			row := []string{
				id.String(),
				r.DateString(), r.TxID, r.OpID, r.OpTypeRaw, r.WorkOrder,
				r.Src.Vessel, r.Src.BatchPre.String(), r.Src.BatchPost.String(),
				yesNo(r.Src.IdentityChanged()),
				r.Src.VolPre.StringFixed(2), r.Src.VolPost.StringFixed(2), r.Src.VolChange.StringFixed(2),
				r.Src.TaxStatePre, r.Src.TaxStatePost,
				r.Dest.Vessel, r.Dest.BatchPre.String(), r.Dest.BatchPost.String(),
				yesNo(r.Dest.IdentityChanged()),
				r.Dest.VolPre.StringFixed(2), r.Dest.VolPost.StringFixed(2), r.Dest.VolChange.StringFixed(2),
				r.Dest.TaxStatePre, r.Dest.TaxStatePost,
				r.MovedVolume().StringFixed(2), r.LossGainAmount.StringFixed(2), r.LossGainReason,
				lin.DisplayVolume().StringFixed(2),
				boolString(lin.IsOnHand), boolString(lin.HasLeftInventory),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// ANCESTRY SUMMARY CSV
// =============================================================================

var ancestryHeader = []string{
	"Batch", "Ancestor_Batches", "Ancestor_Count",
	"Descendant_Batches", "Descendant_Count", "Transaction_Count",
}

// WriteAncestrySummaryCSV writes one row per batch with its full
// transitive ancestor and descendant lists.
func (f *Formatter) WriteAncestrySummaryCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ancestryHeader); err != nil {
		return err
	}
	for _, id := range f.engine.Graph().Batches() {
		ancestors, _ := f.engine.AllContributingBatches(id)
		descendants, _ := f.engine.AllDescendantBatches(id)
		lin := f.engine.BatchLineage(id)
		row := []string{
			id.String(),
			joinIdentities(ancestors), itoa(len(ancestors)),
			joinIdentities(descendants), itoa(len(descendants)),
			itoa(len(lin.Incoming) + len(lin.Outgoing)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// FULL JSON EXPORT
// =============================================================================

type jsonExport struct {
	Metadata jsonMetadata         `json:"metadata"`
	Summary  lineage.Summary      `json:"summary"`
	Batches  map[string]jsonBatch `json:"batches"`
	Findings []jsonFinding        `json:"findings"`
	Losses   map[string]string    `json:"losses_by_reason"`
}

type jsonMetadata struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

type jsonBatch struct {
	CurrentVolume       string            `json:"current_volume"`
	ComputedVolume      string            `json:"computed_volume_raw"`
	ReportedVolume      *string           `json:"reported_volume,omitempty"`
	IsOnHand            bool              `json:"is_on_hand"`
	HasLeftInventory    bool              `json:"has_left_inventory"`
	Parents             []string          `json:"parents"`
	Children            []string          `json:"children"`
	ContributingBatches map[string]string `json:"contributing_batches"`
	IncomingCount       int               `json:"incoming_transaction_count"`
	OutgoingCount       int               `json:"outgoing_transaction_count"`
}

type jsonFinding struct {
	Kind   string   `json:"kind"`
	Batch  string   `json:"batch,omitempty"`
	Path   []string `json:"path,omitempty"`
	Ref    string   `json:"ref,omitempty"`
	Amount string   `json:"amount,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

// WriteJSON writes the complete export: every batch's computed
// lineage, all findings, loss totals, and run metadata.
func (f *Formatter) WriteJSON(w io.Writer) error {
	export := jsonExport{
		Metadata: jsonMetadata{
			RunID:       uuid.NewString(),
			GeneratedAt: time.Now().UTC(),
		},
		Summary: f.engine.Summarize(),
		Batches: make(map[string]jsonBatch),
		Losses:  make(map[string]string),
	}

	for _, id := range f.engine.Graph().Batches() {
		lin := f.engine.BatchLineage(id)
		jb := jsonBatch{
			CurrentVolume:       lin.CurrentVolume().StringFixed(2),
			ComputedVolume:      lin.OnHandVolume.StringFixed(2),
			IsOnHand:            lin.IsOnHand,
			HasLeftInventory:    lin.HasLeftInventory,
			Parents:             identityStrings(lin.Parents),
			Children:            identityStrings(lin.Children),
			ContributingBatches: make(map[string]string, len(lin.Contributing)),
			IncomingCount:       len(lin.Incoming),
			OutgoingCount:       len(lin.Outgoing),
		}
		if lin.ReportedVolume != nil {
			s := lin.ReportedVolume.StringFixed(2)
			jb.ReportedVolume = &s
		}
		for batch, vol := range lin.Contributing {
			jb.ContributingBatches[batch.String()] = vol.StringFixed(2)
		}
		export.Batches[id.String()] = jb
	}

	for _, fi := range f.engine.Findings() {
		jf := jsonFinding{
			Kind:   string(fi.Kind),
			Batch:  fi.Batch.String(),
			Path:   identityStrings(fi.Related),
			Ref:    fi.Ref,
			Detail: fi.Detail,
		}
		if !fi.Amount.IsZero() {
			jf.Amount = fi.Amount.StringFixed(2)
		}
		export.Findings = append(export.Findings, jf)
	}

	for reason, total := range f.engine.AnalyzeLosses() {
		export.Losses[reason] = total.StringFixed(2)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(export)
}

// =============================================================================
// HELPERS
// =============================================================================

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func joinIdentities(ids []ledger.BatchIdentity) string {
	return strings.Join(identityStrings(ids), ", ")
}

func identityStrings(ids []ledger.BatchIdentity) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
