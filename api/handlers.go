/*
handlers.go - HTTP handlers for the lineage query API

PURPOSE:
  Thin translation layer between HTTP and the lineage Engine. Handlers
  decode the batch identity from the URL, run the pure query, and
  encode the result. No business logic lives here.

ERROR SEMANTICS:
  A batch absent from the graph is a normal query outcome in the
  engine; over HTTP it maps to 404 so BI clients can distinguish
  "unknown batch" from "known batch with empty lineage".

SEE ALSO:
  - server.go: Route wiring
  - dto.go: Response shapes
*/
package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cellarworks/lineage-engine/ledger"
	"github.com/cellarworks/lineage-engine/lineage"
	"github.com/cellarworks/lineage-engine/report"
)

// Handler serves lineage queries over HTTP.
type Handler struct {
	engine    *lineage.Engine
	formatter *report.Formatter
	log       zerolog.Logger
}

func NewHandler(engine *lineage.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine:    engine,
		formatter: report.New(engine),
		log:       log,
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Summarize())
}

// ListBatches returns all batches, optionally filtered by
// ?status=on-hand or ?status=shipped.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	var ids []ledger.BatchIdentity
	switch r.URL.Query().Get("status") {
	case "on-hand":
		ids = h.engine.AllOnHandBatches()
	case "shipped":
		ids = h.engine.AllShippedBatches()
	default:
		ids = h.engine.Graph().Batches()
	}

	out := make([]batchSummaryDTO, 0, len(ids))
	for _, id := range ids {
		lin := h.engine.BatchLineage(id)
		out = append(out, batchSummaryDTO{
			Batch:            id.String(),
			CurrentVolume:    lin.DisplayVolume().StringFixed(2),
			IsOnHand:         lin.IsOnHand,
			HasLeftInventory: lin.HasLeftInventory,
			ContributorCount: len(lin.Contributing),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) GetBatchLineage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchParam(w, r)
	if !ok {
		return
	}
	lin := h.engine.BatchLineage(id)
	if !lin.Found {
		respondError(w, http.StatusNotFound, "batch not found in transactions")
		return
	}
	respondJSON(w, http.StatusOK, toBatchLineageDTO(lin))
}

func (h *Handler) GetContributors(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchParam(w, r)
	if !ok {
		return
	}
	if !h.engine.Graph().Contains(id) {
		respondError(w, http.StatusNotFound, "batch not found in transactions")
		return
	}
	batches, findings := h.engine.AllContributingBatches(id)
	respondJSON(w, http.StatusOK, traversalDTO{
		Batch:    id.String(),
		Batches:  identityStrings(batches),
		Count:    len(batches),
		Findings: toFindingDTOs(findings),
	})
}

func (h *Handler) GetDescendants(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchParam(w, r)
	if !ok {
		return
	}
	if !h.engine.Graph().Contains(id) {
		respondError(w, http.StatusNotFound, "batch not found in transactions")
		return
	}
	batches, findings := h.engine.AllDescendantBatches(id)
	respondJSON(w, http.StatusOK, traversalDTO{
		Batch:    id.String(),
		Batches:  identityStrings(batches),
		Count:    len(batches),
		Findings: toFindingDTOs(findings),
	})
}

func (h *Handler) GetLineageTree(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchParam(w, r)
	if !ok {
		return
	}
	tree := h.engine.FullLineageTree(id)
	if tree.NotFound {
		respondError(w, http.StatusNotFound, "batch not found in transactions")
		return
	}
	respondJSON(w, http.StatusOK, tree)
}

// GetBatchReport serves the plain-text report for one batch.
func (h *Handler) GetBatchReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.batchParam(w, r)
	if !ok {
		return
	}
	if !h.engine.Graph().Contains(id) {
		respondError(w, http.StatusNotFound, "batch not found in transactions")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.formatter.BatchReport(id)))
}

func (h *Handler) GetLosses(w http.ResponseWriter, r *http.Request) {
	losses := h.engine.AnalyzeLosses()
	out := make(map[string]string, len(losses))
	for reason, total := range losses {
		out[reason] = total.StringFixed(2)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) GetFindings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toFindingDTOs(h.engine.Findings()))
}

// =============================================================================
// HELPERS
// =============================================================================

// batchParam extracts and unescapes the batch identity from the URL.
// Batch names can contain characters that URL-encode (spaces, slashes
// from vessel-qualified names), so the raw param is unescaped first.
func (h *Handler) batchParam(w http.ResponseWriter, r *http.Request) (ledger.BatchIdentity, bool) {
	raw := chi.URLParam(r, "batch")
	name, err := url.PathUnescape(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid batch name")
		return "", false
	}
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing batch name")
		return "", false
	}
	return ledger.BatchIdentity(name), true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing recoverable remains.
		return
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorDTO{Error: msg})
}
