/*
main.go - Batch lineage analysis CLI

PURPOSE:
  One-shot analysis runs: load a transaction ledger, build the
  provenance graph, run queries, write a report or export.

FLAGS:
  -ledger     Path to the transaction export (.csv or .json)
  -from-db    Load the ledger from a SQLite archive instead of a file
  -archive    Persist the loaded ledger into a SQLite archive
  -batch      Glob filter on batch identities, applied before building
  -since      Keep records on/after this date (YYYY-MM-DD)
  -until      Keep records on/before this date (YYYY-MM-DD)
  -mode       report | csv | csv-detailed | csv-summary | json
  -target     Batch identity for report mode (omit for run summary)
  -status     Export filter: on-hand | shipped (csv modes)
  -out        Output path (default: stdout)
  -log-level  trace|debug|info|warn|error
  -log-format console | json

EXIT CODES:
  0  analysis completed (row-level skips and findings do not fail)
  1  fatal load or write failure

EXAMPLES:
  # Full-run summary report
  ./lineage -ledger transactions.csv

  # Lineage report for one batch
  ./lineage -ledger transactions.csv -mode report -target 24BLEND001-FINAL

  # Detailed Power BI export of on-hand batches
  ./lineage -ledger transactions.csv -mode csv-detailed -status on-hand -out lineage.csv

  # Archive a load, then re-run later without the file
  ./lineage -ledger transactions.csv -archive ledger.db
  ./lineage -from-db ledger.db -mode json -out complete_lineage.json

SEE ALSO:
  - cmd/server/main.go: Long-running query API over the same engine
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/cellarworks/lineage-engine/ledger"
	"github.com/cellarworks/lineage-engine/lineage"
	"github.com/cellarworks/lineage-engine/logging"
	"github.com/cellarworks/lineage-engine/report"
	"github.com/cellarworks/lineage-engine/store/sqlite"
)

func main() {
	ledgerPath := flag.String("ledger", "", "path to transaction export (.csv or .json)")
	fromDB := flag.String("from-db", "", "load ledger from SQLite archive")
	archivePath := flag.String("archive", "", "persist loaded ledger into SQLite archive")
	batchGlob := flag.String("batch", "", "glob filter on batch identities")
	since := flag.String("since", "", "keep records on/after this date (YYYY-MM-DD)")
	until := flag.String("until", "", "keep records on/before this date (YYYY-MM-DD)")
	mode := flag.String("mode", "report", "output mode: report | csv | csv-detailed | csv-summary | json")
	target := flag.String("target", "", "batch identity for report mode")
	status := flag.String("status", "", "export filter: on-hand | shipped")
	outPath := flag.String("out", "", "output path (default stdout)")
	logLevel := flag.String("log-level", "info", "log level")
	logFormat := flag.String("log-format", "console", "log format: console | json")
	flag.Parse()

	// A local .env may set LINEAGE_* defaults; absence is fine.
	_ = godotenv.Load()

	log := logging.New(logging.Options{
		Service: "lineage-cli",
		Level:   logging.ParseLevel(*logLevel),
		Format:  *logFormat,
	})

	if *ledgerPath == "" && *fromDB == "" {
		log.Error().Msg("one of -ledger or -from-db is required")
		os.Exit(1)
	}

	ctx := context.Background()

	// Load.
	var records []*ledger.Record
	var err error
	switch {
	case *fromDB != "":
		records, err = loadFromArchive(ctx, *fromDB)
	default:
		records, _, err = ledger.LoadFile(*ledgerPath, log)
	}
	if err != nil {
		log.Error().Err(err).Msg("ledger load failed")
		os.Exit(1)
	}

	// Optionally archive the raw load before filtering.
	if *archivePath != "" {
		if err := archiveRecords(ctx, *archivePath, records); err != nil {
			log.Error().Err(err).Str("path", *archivePath).Msg("archiving ledger failed")
			os.Exit(1)
		}
		log.Info().Int("records", len(records)).Str("path", *archivePath).Msg("ledger archived")
	}

	// Filter.
	filter, err := buildFilter(*batchGlob, *since, *until)
	if err != nil {
		log.Error().Err(err).Msg("invalid filter")
		os.Exit(1)
	}
	if !filter.IsZero() {
		before := len(records)
		records = filter.Apply(records)
		log.Info().Int("before", before).Int("after", len(records)).Msg("filter applied")
	}

	// Build + query.
	graph := lineage.Build(records, log)
	engine := lineage.NewEngine(graph)
	formatter := report.New(engine)

	out, closeOut, err := openOutput(*outPath)
	if err != nil {
		log.Error().Err(err).Str("path", *outPath).Msg("opening output failed")
		os.Exit(1)
	}
	defer closeOut()

	exportFilter := report.BatchFilter(*status)
	switch *mode {
	case "report":
		if *target != "" {
			_, err = io.WriteString(out, formatter.BatchReport(ledger.BatchIdentity(*target)))
		} else {
			_, err = io.WriteString(out, formatter.SummaryReport())
		}
	case "csv":
		err = formatter.WriteLineageCSV(out, exportFilter)
	case "csv-detailed":
		err = formatter.WriteDetailedCSV(out, exportFilter)
	case "csv-summary":
		err = formatter.WriteAncestrySummaryCSV(out)
	case "json":
		err = formatter.WriteJSON(out)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Error().Err(err).Msg("writing output failed")
		os.Exit(1)
	}
}

func loadFromArchive(ctx context.Context, path string) ([]*ledger.Record, error) {
	archive, err := sqlite.New(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	return archive.LoadAll(ctx)
}

func archiveRecords(ctx context.Context, path string, records []*ledger.Record) error {
	archive, err := sqlite.New(path)
	if err != nil {
		return err
	}
	defer archive.Close()
	return archive.AppendBatch(ctx, records)
}

func buildFilter(glob, since, until string) (ledger.Filter, error) {
	f := ledger.Filter{BatchGlob: glob}
	if since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return f, fmt.Errorf("parsing -since: %w", err)
		}
		f.Since = t
	}
	if until != "" {
		t, err := time.Parse("2006-01-02", until)
		if err != nil {
			return f, fmt.Errorf("parsing -until: %w", err)
		}
		f.Until = t
	}
	return f, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
