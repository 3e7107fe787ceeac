/*
loader.go - Permissive CSV/JSON ledger loaders

PURPOSE:
  Parses the external transaction export (the Vintrace transaction
  search download, or the JSON dump produced by the REST fetchers) into
  an ordered slice of Records.

TOLERANCE CONTRACT:
  Source exports are dirty. The loader only fails the whole load when
  the file is unreadable or the header matches nothing we expect.
  Everything else degrades gracefully:
  - blank/non-numeric volume and loss fields become zero
  - unparsable dates keep the raw string and set DateUnparsed
  - fully blank rows are skipped
  - a single malformed row is logged and skipped, the load continues

DATE FORMATS:
  Accepts M/D/YYYY, M/D/YYYY H:MM, and ISO YYYY-MM-DD with optional
  time. Anything else is kept verbatim as OpDateRaw.

SEE ALSO:
  - types.go: Record model
  - filter.go: Pre-build batch/date filtering
*/
package ledger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LOAD STATS - What the loader had to tolerate
// =============================================================================

// LoadStats summarizes a load for logging and the report findings
// section. Row-level problems accumulate here instead of failing.
type LoadStats struct {
	Rows             int // data rows seen (excluding header)
	Loaded           int
	SkippedBlank     int
	SkippedMalformed int
	UnparsedDates    int
	CoercedNumbers   int
}

// dateFormats are tried in order; first match wins.
var dateFormats = []string{
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// =============================================================================
// FILE ENTRY POINTS
// =============================================================================

// LoadFile loads a transaction export, dispatching on extension.
// Fatal conditions (missing file, bad header, unknown extension) abort
// with a descriptive error; everything else is coerced per row.
func LoadFile(path string, log zerolog.Logger) ([]*Record, LoadStats, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path, log)
	case ".json":
		return LoadJSON(path, log)
	default:
		return nil, LoadStats{}, &LoadError{Path: path, Err: ErrUnsupportedFormat}
	}
}

// LoadCSV loads a CSV transaction export.
func LoadCSV(path string, log zerolog.Logger) ([]*Record, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, &LoadError{Path: path, Err: fmt.Errorf("%w: %v", ErrLedgerNotFound, err)}
	}
	defer f.Close()

	records, stats, err := ParseCSV(f, log)
	if err != nil {
		return nil, stats, &LoadError{Path: path, Err: err}
	}
	log.Info().Int("rows", stats.Rows).Int("loaded", stats.Loaded).
		Int("skipped", stats.SkippedBlank+stats.SkippedMalformed).
		Str("path", path).Msg("ledger loaded")
	return records, stats, nil
}

// LoadJSON loads a JSON transaction export: an array of flat objects
// keyed by the same column names as the CSV export.
func LoadJSON(path string, log zerolog.Logger) ([]*Record, LoadStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, LoadStats{}, &LoadError{Path: path, Err: fmt.Errorf("%w: %v", ErrLedgerNotFound, err)}
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, LoadStats{}, &LoadError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnrecognizedHeader, err)}
	}

	var stats LoadStats
	records := make([]*Record, 0, len(rows))
	for i, row := range rows {
		stats.Rows++
		fields := make(map[string]string, len(row))
		for k, v := range row {
			fields[normalizeKey(k)] = stringify(v)
		}
		rec, blank := recordFromFields(fields, &stats)
		if blank {
			stats.SkippedBlank++
			continue
		}
		if rec == nil {
			stats.SkippedMalformed++
			log.Warn().Int("row", i+1).Msg("skipping malformed ledger row")
			continue
		}
		records = append(records, rec)
		stats.Loaded++
	}
	if stats.Loaded == 0 {
		return nil, stats, &LoadError{Path: path, Err: ErrEmptyLedger}
	}
	log.Info().Int("rows", stats.Rows).Int("loaded", stats.Loaded).
		Str("path", path).Msg("ledger loaded")
	return records, stats, nil
}

// =============================================================================
// CSV PARSING
// =============================================================================

// ParseCSV parses a CSV stream. Split from LoadCSV so tests can feed
// strings without touching the filesystem.
func ParseCSV(r io.Reader, log zerolog.Logger) ([]*Record, LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged rows handled per-row, not fatally

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrUnrecognizedHeader, err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, stats, err
	}

	var records []*Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Rows++
			stats.SkippedMalformed++
			log.Warn().Err(err).Int("row", stats.Rows).Msg("skipping malformed ledger row")
			continue
		}
		stats.Rows++

		fields := make(map[string]string, len(index))
		for key, col := range index {
			if col < len(row) {
				fields[key] = row[col]
			}
		}
		rec, blank := recordFromFields(fields, &stats)
		if blank {
			stats.SkippedBlank++
			continue
		}
		if rec == nil {
			stats.SkippedMalformed++
			log.Warn().Int("row", stats.Rows).Msg("skipping malformed ledger row")
			continue
		}
		records = append(records, rec)
		stats.Loaded++
	}
	return records, stats, nil
}

// headerIndex maps normalized column names to positions. The header is
// recognizable when it carries an operation column and at least one
// batch-identity column; anything less is a fatal structural failure.
func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[normalizeKey(col)] = i
	}

	var missing []string
	if _, ok := index["op type"]; !ok {
		missing = append(missing, "Op Type")
	}
	hasBatch := false
	for _, key := range []string{"src batch pre", "src batch post", "dest batch pre", "dest batch post"} {
		if _, ok := index[key]; ok {
			hasBatch = true
			break
		}
	}
	if !hasBatch {
		missing = append(missing, "Src/Dest Batch Pre/Post")
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing}
	}
	return index, nil
}

// =============================================================================
// ROW -> RECORD
// =============================================================================

// recordFromFields builds one Record from normalized field values.
// Returns blank=true for fully empty rows. Returns a nil record only
// when the row is malformed beyond coercion (currently: nothing short
// of an empty map qualifies; numeric and date problems are coerced).
func recordFromFields(fields map[string]string, stats *LoadStats) (rec *Record, blank bool) {
	allBlank := true
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			allBlank = false
			break
		}
	}
	if allBlank {
		return nil, true
	}

	get := func(key string) string { return strings.TrimSpace(fields[key]) }
	dec := func(key string) decimal.Decimal {
		raw := get(key)
		if raw == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			stats.CoercedNumbers++
			return decimal.Zero
		}
		return d
	}

	r := &Record{
		TxID:      get("tx id"),
		OpID:      get("op id"),
		WorkOrder: get("work order"),
		OpTypeRaw: get("op type"),
		OpType:    ParseOpType(get("op type")),
		Reversed:  parseBool(get("reversed")),
		Operator:  get("operator"),
		Winery:    get("winery"),

		Src: SideState{
			Vessel:       get("src vessel"),
			BatchPre:     BatchIdentity(get("src batch pre")),
			BatchPost:    BatchIdentity(get("src batch post")),
			TaxStatePre:  get("src pre tax state"),
			TaxStatePost: get("src post tax state"),
			VolPre:       dec("src vol pre"),
			VolPost:      dec("src vol post"),
			VolChange:    dec("src vol change"),
		},
		Dest: SideState{
			Vessel:       get("dest vessel"),
			BatchPre:     BatchIdentity(get("dest batch pre")),
			BatchPost:    BatchIdentity(get("dest batch post")),
			TaxStatePre:  get("dest pre tax state"),
			TaxStatePost: get("dest post tax state"),
			VolPre:       dec("dest vol pre"),
			VolPost:      dec("dest vol post"),
			VolChange:    dec("dest vol change"),
		},

		LossGainAmount: dec("loss/gain amount (gal)"),
		LossGainReason: get("loss/gain reason"),
		Net:            dec("net"),
	}

	r.OpDateRaw = get("op date")
	if r.OpDateRaw != "" {
		if t, ok := parseDate(r.OpDateRaw); ok {
			r.OpDate = t
		} else {
			r.DateUnparsed = true
			stats.UnparsedDates++
		}
	}
	return r, false
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1":
		return true
	default:
		return false
	}
}

// normalizeKey lower-cases and collapses whitespace so CSV and JSON
// exports with cosmetic header differences land on the same fields.
func normalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return decimal.NewFromFloat(x).String()
	case json.Number:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
