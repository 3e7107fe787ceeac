package ledger_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/lineage-engine/ledger"
)

const csvHeader = "Op Date,Tx Id,Op Id,Op Type,Reversed," +
	"Src Vessel,Src Batch Pre,Src Batch Post,Src Vol Pre,Src Vol Post,Src Vol Change," +
	"Dest Vessel,Dest Batch Pre,Dest Batch Post,Dest Vol Pre,Dest Vol Post,Dest Vol Change," +
	"Loss/Gain Amount (gal),Loss/Gain Reason,NET,Winery"

func parse(t *testing.T, rows ...string) ([]*ledger.Record, ledger.LoadStats) {
	t.Helper()
	csv := csvHeader + "\n" + strings.Join(rows, "\n") + "\n"
	records, stats, err := ledger.ParseCSV(strings.NewReader(csv), zerolog.Nop())
	require.NoError(t, err)
	return records, stats
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestParseCSV_FullRow(t *testing.T) {
	records, stats := parse(t,
		`3/15/2024 14:30,TX-1,OP-1,Transfer,false,TK-01,24CAB001,24CAB001,1000,600,-400,TK-02,--,24CAB002,0,400,400,0,,0,Main`)

	require.Len(t, records, 1)
	assert.Equal(t, 1, stats.Loaded)

	r := records[0]
	assert.Equal(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC), r.OpDate)
	assert.False(t, r.DateUnparsed)
	assert.Equal(t, "TX-1", r.TxID)
	assert.Equal(t, "OP-1", r.OpID)
	assert.Equal(t, ledger.OpTransfer, r.OpType)
	assert.False(t, r.Reversed)
	assert.Equal(t, "TK-01", r.Src.Vessel)
	assert.Equal(t, ledger.BatchIdentity("24CAB001"), r.Src.BatchPre)
	assert.Equal(t, ledger.BatchIdentity("24CAB002"), r.Dest.BatchPost)
	assert.True(t, r.Src.VolChange.Equal(decimal.NewFromInt(-400)))
	assert.True(t, r.Dest.VolChange.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, "Main", r.Winery)
}

// =============================================================================
// TOLERANCE - Sparse and dirty exports must not fail the load
// =============================================================================

func TestParseCSV_BlankVolumesBecomeZero(t *testing.T) {
	records, stats := parse(t,
		`3/15/2024,TX-1,OP-1,Transfer,false,TK-01,A,A,,,,TK-02,--,B,,,not-a-number,,,,`)

	require.Len(t, records, 1)
	r := records[0]
	assert.True(t, r.Src.VolPre.IsZero())
	assert.True(t, r.Src.VolChange.IsZero())
	assert.True(t, r.Dest.VolChange.IsZero(), "non-numeric coerces to zero")
	assert.True(t, r.LossGainAmount.IsZero())
	assert.Equal(t, 1, stats.CoercedNumbers)
}

func TestParseCSV_DateFormats(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"3/15/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"3/15/2024 9:05", time.Date(2024, 3, 15, 9, 5, 0, 0, time.UTC)},
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-03-15 14:30:55", time.Date(2024, 3, 15, 14, 30, 55, 0, time.UTC)},
		{"2024-03-15T14:30:55", time.Date(2024, 3, 15, 14, 30, 55, 0, time.UTC)},
	}
	for _, tt := range tests {
		records, _ := parse(t, tt.raw+`,TX,OP,Transfer,false,V,A,A,0,0,0,V2,--,B,0,0,10,0,,0,`)
		require.Len(t, records, 1, "raw=%q", tt.raw)
		assert.False(t, records[0].DateUnparsed)
		assert.Equal(t, tt.want, records[0].OpDate, "raw=%q", tt.raw)
	}
}

func TestParseCSV_UnparsableDateKeepsRawString(t *testing.T) {
	records, stats := parse(t,
		`Sometime in March,TX,OP,Transfer,false,V,A,A,0,0,0,V2,--,B,0,0,10,0,,0,`)

	require.Len(t, records, 1)
	assert.True(t, records[0].DateUnparsed)
	assert.Equal(t, "Sometime in March", records[0].OpDateRaw)
	assert.Equal(t, 1, stats.UnparsedDates)
	// The row is still loaded: a bad date never drops a record.
	assert.Equal(t, 1, stats.Loaded)
}

func TestParseCSV_BlankRowsSkipped(t *testing.T) {
	records, stats := parse(t,
		`3/15/2024,TX,OP,Transfer,false,V,A,A,0,0,0,V2,--,B,0,0,10,0,,0,`,
		`,,,,,,,,,,,,,,,,,,,,`,
		`3/16/2024,TX2,OP2,Transfer,false,V,B,B,0,0,0,V3,--,C,0,0,5,0,,0,`)

	assert.Len(t, records, 2)
	assert.Equal(t, 1, stats.SkippedBlank)
	assert.Equal(t, 2, stats.Loaded)
}

func TestParseCSV_ReversedFlagVariants(t *testing.T) {
	for _, raw := range []string{"true", "True", "TRUE", "yes", "1"} {
		records, _ := parse(t,
			`3/15/2024,TX,OP,Transfer,`+raw+`,V,A,A,0,0,0,V2,--,B,0,0,10,0,,0,`)
		require.Len(t, records, 1)
		assert.True(t, records[0].Reversed, "raw=%q", raw)
	}
	for _, raw := range []string{"", "false", "no", "0"} {
		records, _ := parse(t,
			`3/15/2024,TX,OP,Transfer,`+raw+`,V,A,A,0,0,0,V2,--,B,0,0,10,0,,0,`)
		require.Len(t, records, 1)
		assert.False(t, records[0].Reversed, "raw=%q", raw)
	}
}

// =============================================================================
// FATAL CONDITIONS
// =============================================================================

func TestParseCSV_UnrecognizedHeaderFails(t *testing.T) {
	_, _, err := ledger.ParseCSV(strings.NewReader("Foo,Bar,Baz\n1,2,3\n"), zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUnrecognizedHeader)

	var headerErr *ledger.HeaderError
	assert.ErrorAs(t, err, &headerErr)
	assert.NotEmpty(t, headerErr.Missing)
}

func TestLoadFile_MissingFileFails(t *testing.T) {
	_, _, err := ledger.LoadFile("/does/not/exist.csv", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrLedgerNotFound)
	assert.True(t, ledger.IsFatalLoad(err))
}

func TestLoadFile_UnsupportedExtensionFails(t *testing.T) {
	_, _, err := ledger.LoadFile("ledger.xlsx", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUnsupportedFormat)
}

// =============================================================================
// JSON LOADING
// =============================================================================

func TestLoadJSON_FlatObjects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	payload := `[
		{"Op Date": "3/15/2024", "Op Id": "OP-1", "Op Type": "Transfer",
		 "Reversed": false,
		 "Src Batch Pre": "A", "Src Batch Post": "A", "Src Vol Change": -400,
		 "Dest Batch Pre": "--", "Dest Batch Post": "B", "Dest Vol Change": 400,
		 "Loss/Gain Amount (gal)": 0}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	records, stats, err := ledger.LoadJSON(path, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, stats.Loaded)

	r := records[0]
	assert.Equal(t, ledger.OpTransfer, r.OpType)
	assert.Equal(t, ledger.BatchIdentity("B"), r.Dest.BatchPost)
	assert.True(t, r.Dest.VolChange.Equal(decimal.NewFromInt(400)))
	assert.False(t, r.Reversed)
}

// =============================================================================
// FILTERING
// =============================================================================

func TestFilter_BatchGlob(t *testing.T) {
	records, _ := parse(t,
		`3/15/2024,TX1,OP1,Transfer,false,V,24CAB001,24CAB001,0,0,0,V2,--,24CAB002,0,0,10,0,,0,`,
		`3/16/2024,TX2,OP2,Transfer,false,V,24CHAR01,24CHAR01,0,0,0,V2,--,24CHAR02,0,0,10,0,,0,`)

	f := ledger.Filter{BatchGlob: "24CAB*"}
	got := f.Apply(records)
	require.Len(t, got, 1)
	assert.Equal(t, "OP1", got[0].OpID)
}

func TestFilter_DateRange(t *testing.T) {
	records, _ := parse(t,
		`3/15/2024,TX1,OP1,Transfer,false,V,A,A,0,0,0,V2,--,B,0,0,10,0,,0,`,
		`4/15/2024,TX2,OP2,Transfer,false,V,B,B,0,0,0,V2,--,C,0,0,10,0,,0,`,
		`5/15/2024,TX3,OP3,Transfer,false,V,C,C,0,0,0,V2,--,D,0,0,10,0,,0,`)

	f := ledger.Filter{
		Since: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
	}
	got := f.Apply(records)
	require.Len(t, got, 1)
	assert.Equal(t, "OP2", got[0].OpID)
}

func TestFilter_UnparsedDatesPassDateBounds(t *testing.T) {
	// Records whose date failed to parse are kept: silently dropping
	// them would hide data-quality problems from the analysis.
	records, _ := parse(t,
		`garbage-date,TX1,OP1,Transfer,false,V,A,A,0,0,0,V2,--,B,0,0,10,0,,0,`)

	f := ledger.Filter{Since: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.Len(t, f.Apply(records), 1)
}

func TestFilter_ZeroFilterPassesEverything(t *testing.T) {
	records, _ := parse(t,
		`3/15/2024,TX1,OP1,Transfer,false,V,A,A,0,0,0,V2,--,B,0,0,10,0,,0,`)
	assert.True(t, ledger.Filter{}.IsZero())
	assert.Len(t, ledger.Filter{}.Apply(records), 1)
}
