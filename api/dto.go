package api

import (
	"github.com/cellarworks/lineage-engine/ledger"
	"github.com/cellarworks/lineage-engine/lineage"
)

// =============================================================================
// RESPONSE DTOs - JSON shapes for the query API
// =============================================================================

type batchSummaryDTO struct {
	Batch            string `json:"batch"`
	CurrentVolume    string `json:"current_volume"`
	IsOnHand         bool   `json:"is_on_hand"`
	HasLeftInventory bool   `json:"has_left_inventory"`
	ContributorCount int    `json:"contributor_count"`
}

type batchLineageDTO struct {
	Batch               string            `json:"batch"`
	CurrentVolume       string            `json:"current_volume"`
	ComputedVolumeRaw   string            `json:"computed_volume_raw"`
	ReportedVolume      *string           `json:"reported_volume,omitempty"`
	IsOnHand            bool              `json:"is_on_hand"`
	HasLeftInventory    bool              `json:"has_left_inventory"`
	Parents             []string          `json:"parents"`
	Children            []string          `json:"children"`
	ContributingBatches map[string]string `json:"contributing_batches"`
	Incoming            []recordDTO       `json:"incoming_transactions"`
	Outgoing            []recordDTO       `json:"outgoing_transactions"`
}

type recordDTO struct {
	OpDate         string `json:"op_date"`
	Ref            string `json:"ref"`
	OpType         string `json:"op_type"`
	SrcVessel      string `json:"src_vessel,omitempty"`
	SrcBatchPre    string `json:"src_batch_pre,omitempty"`
	SrcBatchPost   string `json:"src_batch_post,omitempty"`
	DestVessel     string `json:"dest_vessel,omitempty"`
	DestBatchPre   string `json:"dest_batch_pre,omitempty"`
	DestBatchPost  string `json:"dest_batch_post,omitempty"`
	MovedVolume    string `json:"moved_volume"`
	LossGainAmount string `json:"loss_gain_amount,omitempty"`
	LossGainReason string `json:"loss_gain_reason,omitempty"`
}

type traversalDTO struct {
	Batch    string       `json:"batch"`
	Batches  []string     `json:"batches"`
	Count    int          `json:"count"`
	Findings []findingDTO `json:"findings,omitempty"`
}

type findingDTO struct {
	Kind   string   `json:"kind"`
	Batch  string   `json:"batch,omitempty"`
	Path   []string `json:"path,omitempty"`
	Ref    string   `json:"ref,omitempty"`
	Amount string   `json:"amount,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

type errorDTO struct {
	Error string `json:"error"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toBatchLineageDTO(lin lineage.BatchLineage) batchLineageDTO {
	dto := batchLineageDTO{
		Batch:               lin.Batch.String(),
		CurrentVolume:       lin.CurrentVolume().StringFixed(2),
		ComputedVolumeRaw:   lin.OnHandVolume.StringFixed(2),
		IsOnHand:            lin.IsOnHand,
		HasLeftInventory:    lin.HasLeftInventory,
		Parents:             identityStrings(lin.Parents),
		Children:            identityStrings(lin.Children),
		ContributingBatches: make(map[string]string, len(lin.Contributing)),
		Incoming:            toRecordDTOs(lin.Incoming),
		Outgoing:            toRecordDTOs(lin.Outgoing),
	}
	if lin.ReportedVolume != nil {
		s := lin.ReportedVolume.StringFixed(2)
		dto.ReportedVolume = &s
	}
	for batch, vol := range lin.Contributing {
		dto.ContributingBatches[batch.String()] = vol.StringFixed(2)
	}
	return dto
}

func toRecordDTOs(recs []*ledger.Record) []recordDTO {
	out := make([]recordDTO, 0, len(recs))
	for _, r := range recs {
		dto := recordDTO{
			OpDate:         r.DateString(),
			Ref:            r.Ref(),
			OpType:         r.OpTypeRaw,
			SrcVessel:      r.Src.Vessel,
			SrcBatchPre:    r.Src.BatchPre.String(),
			SrcBatchPost:   r.Src.BatchPost.String(),
			DestVessel:     r.Dest.Vessel,
			DestBatchPre:   r.Dest.BatchPre.String(),
			DestBatchPost:  r.Dest.BatchPost.String(),
			MovedVolume:    r.MovedVolume().StringFixed(2),
			LossGainReason: r.LossGainReason,
		}
		if !r.LossGainAmount.IsZero() {
			dto.LossGainAmount = r.LossGainAmount.StringFixed(2)
		}
		out = append(out, dto)
	}
	return out
}

func toFindingDTOs(findings []lineage.Finding) []findingDTO {
	out := make([]findingDTO, 0, len(findings))
	for _, f := range findings {
		dto := findingDTO{
			Kind:   string(f.Kind),
			Batch:  f.Batch.String(),
			Path:   identityStrings(f.Related),
			Ref:    f.Ref,
			Detail: f.Detail,
		}
		if !f.Amount.IsZero() {
			dto.Amount = f.Amount.StringFixed(2)
		}
		out = append(out, dto)
	}
	return out
}

func identityStrings(ids []ledger.BatchIdentity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
