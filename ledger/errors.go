/*
errors.go - Centralized error types for the ledger loaders

PURPOSE:
  All loader error types in one place for consistency and
  discoverability. Callers distinguish fatal load failures (abort the
  run, non-zero exit) from row-level problems (coerced and logged,
  load continues) with errors.Is.

ERROR CATEGORIES:
  1. Fatal load errors - unreadable file, unrecognized header/structure
  2. Row-level problems - never surfaced as errors; the loader coerces
     to safe defaults and counts them in LoadStats

SEE ALSO:
  - loader.go: Produces these errors
  - lineage package: data-quality issues there are Findings, not errors
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrLedgerNotFound is returned when the export file cannot be opened.
	ErrLedgerNotFound = errors.New("ledger file not found")

	// ErrUnrecognizedHeader is returned when the export header contains
	// none of the expected transaction columns.
	ErrUnrecognizedHeader = errors.New("unrecognized ledger header")

	// ErrUnsupportedFormat is returned for file extensions the loader
	// does not understand.
	ErrUnsupportedFormat = errors.New("unsupported ledger format")

	// ErrEmptyLedger is returned when the file parses but holds no rows.
	ErrEmptyLedger = errors.New("ledger contains no records")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LoadError wraps a fatal load failure with the path that caused it.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading ledger %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// HeaderError reports which expected columns were missing when the
// header check failed.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("ledger header missing required columns: %v", e.Missing)
}

func (e *HeaderError) Unwrap() error { return ErrUnrecognizedHeader }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatalLoad reports whether the error should abort the run (exit
// non-zero) rather than being a per-row skip.
func IsFatalLoad(err error) bool {
	return errors.Is(err, ErrLedgerNotFound) ||
		errors.Is(err, ErrUnrecognizedHeader) ||
		errors.Is(err, ErrUnsupportedFormat)
}
