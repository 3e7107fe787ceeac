/*
Package sqlite provides a SQLite-backed implementation of the ledger
Archive interface.

PURPOSE:
  Persists loaded transaction ledgers so analysis can be re-run without
  re-downloading the source export. The same append-only contract as
  the in-memory archive applies; in production the identical patterns
  would work on PostgreSQL with minor dialect changes.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Reversals arrive as records from the source system and are
    excluded at graph-build time, never rewritten here

KEY TABLE:
  transactions: one row per ledger record, rowid preserves insertion
  order so LoadAll reproduces the original ledger sequence.

WAL MODE:
  SQLite is opened with WAL for better concurrency and crash recovery.

USAGE:
  archive, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer archive.Close()
  err = archive.AppendBatch(ctx, records)

SEE ALSO:
  - ledger/archive.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/cellarworks/lineage-engine/ledger"
)

// Archive implements ledger.Archive using SQLite.
type Archive struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite archive at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	schema := `
	-- Transactions (append-only ledger archive)
	CREATE TABLE IF NOT EXISTS transactions (
		op_date TEXT,
		date_unparsed INTEGER NOT NULL DEFAULT 0,
		tx_id TEXT,
		op_id TEXT,
		work_order TEXT,
		op_type TEXT,
		reversed INTEGER NOT NULL DEFAULT 0,
		operator TEXT,
		winery TEXT,

		src_vessel TEXT,
		src_batch_pre TEXT,
		src_batch_post TEXT,
		src_tax_state_pre TEXT,
		src_tax_state_post TEXT,
		src_vol_pre TEXT NOT NULL DEFAULT '0',
		src_vol_post TEXT NOT NULL DEFAULT '0',
		src_vol_change TEXT NOT NULL DEFAULT '0',

		dest_vessel TEXT,
		dest_batch_pre TEXT,
		dest_batch_post TEXT,
		dest_tax_state_pre TEXT,
		dest_tax_state_post TEXT,
		dest_vol_pre TEXT NOT NULL DEFAULT '0',
		dest_vol_post TEXT NOT NULL DEFAULT '0',
		dest_vol_change TEXT NOT NULL DEFAULT '0',

		loss_gain_amount TEXT NOT NULL DEFAULT '0',
		loss_gain_reason TEXT,
		net TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_op_id
		ON transactions(op_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_src_batch
		ON transactions(src_batch_pre, src_batch_post);
	CREATE INDEX IF NOT EXISTS idx_transactions_dest_batch
		ON transactions(dest_batch_pre, dest_batch_post);
	`
	_, err := a.db.Exec(schema)
	return err
}

const insertSQL = `
	INSERT INTO transactions (
		op_date, date_unparsed, tx_id, op_id, work_order, op_type,
		reversed, operator, winery,
		src_vessel, src_batch_pre, src_batch_post,
		src_tax_state_pre, src_tax_state_post,
		src_vol_pre, src_vol_post, src_vol_change,
		dest_vessel, dest_batch_pre, dest_batch_post,
		dest_tax_state_pre, dest_tax_state_post,
		dest_vol_pre, dest_vol_post, dest_vol_change,
		loss_gain_amount, loss_gain_reason, net
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// Append persists a single record.
func (a *Archive) Append(ctx context.Context, rec *ledger.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, insertSQL, args(rec)...)
	return err
}

// AppendBatch persists records atomically: all or none.
func (a *Archive) AppendBatch(ctx context.Context, recs []*ledger.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, args(rec)...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadAll returns every archived record in insertion order.
func (a *Archive) LoadAll(ctx context.Context) ([]*ledger.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.QueryContext(ctx, `
		SELECT op_date, date_unparsed, tx_id, op_id, work_order, op_type,
			reversed, operator, winery,
			src_vessel, src_batch_pre, src_batch_post,
			src_tax_state_pre, src_tax_state_post,
			src_vol_pre, src_vol_post, src_vol_change,
			dest_vessel, dest_batch_pre, dest_batch_post,
			dest_tax_state_pre, dest_tax_state_post,
			dest_vol_pre, dest_vol_post, dest_vol_change,
			loss_gain_amount, loss_gain_reason, net
		FROM transactions ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ledger.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of archived records.
func (a *Archive) Count(ctx context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// =============================================================================
// ROW MAPPING
// =============================================================================

func args(r *ledger.Record) []any {
	opDate := r.OpDateRaw
	if !r.DateUnparsed && !r.OpDate.IsZero() {
		opDate = r.OpDate.Format(time.RFC3339)
	}
	return []any{
		opDate, boolInt(r.DateUnparsed), r.TxID, r.OpID, r.WorkOrder, r.OpTypeRaw,
		boolInt(r.Reversed), r.Operator, r.Winery,
		r.Src.Vessel, string(r.Src.BatchPre), string(r.Src.BatchPost),
		r.Src.TaxStatePre, r.Src.TaxStatePost,
		r.Src.VolPre.String(), r.Src.VolPost.String(), r.Src.VolChange.String(),
		r.Dest.Vessel, string(r.Dest.BatchPre), string(r.Dest.BatchPost),
		r.Dest.TaxStatePre, r.Dest.TaxStatePost,
		r.Dest.VolPre.String(), r.Dest.VolPost.String(), r.Dest.VolChange.String(),
		r.LossGainAmount.String(), r.LossGainReason, r.Net.String(),
	}
}

func scan(rows *sql.Rows) (*ledger.Record, error) {
	var (
		rec                                    ledger.Record
		opDate                                 string
		dateUnparsed                           int
		reversed                               int
		opTypeRaw                              string
		srcPre, srcPost, destPre, destPost     string
		srcVolPre, srcVolPost, srcVolChange    string
		destVolPre, destVolPost, destVolChange string
		lossAmount, net                        string
	)
	err := rows.Scan(
		&opDate, &dateUnparsed, &rec.TxID, &rec.OpID, &rec.WorkOrder, &opTypeRaw,
		&reversed, &rec.Operator, &rec.Winery,
		&rec.Src.Vessel, &srcPre, &srcPost,
		&rec.Src.TaxStatePre, &rec.Src.TaxStatePost,
		&srcVolPre, &srcVolPost, &srcVolChange,
		&rec.Dest.Vessel, &destPre, &destPost,
		&rec.Dest.TaxStatePre, &rec.Dest.TaxStatePost,
		&destVolPre, &destVolPost, &destVolChange,
		&lossAmount, &rec.LossGainReason, &net,
	)
	if err != nil {
		return nil, err
	}

	rec.OpTypeRaw = opTypeRaw
	rec.OpType = ledger.ParseOpType(opTypeRaw)
	rec.Reversed = reversed != 0
	rec.DateUnparsed = dateUnparsed != 0
	if rec.DateUnparsed {
		rec.OpDateRaw = opDate
	} else if opDate != "" {
		t, err := time.Parse(time.RFC3339, opDate)
		if err != nil {
			rec.OpDateRaw = opDate
			rec.DateUnparsed = true
		} else {
			rec.OpDate = t
			rec.OpDateRaw = opDate
		}
	}

	rec.Src.BatchPre = ledger.BatchIdentity(srcPre)
	rec.Src.BatchPost = ledger.BatchIdentity(srcPost)
	rec.Dest.BatchPre = ledger.BatchIdentity(destPre)
	rec.Dest.BatchPost = ledger.BatchIdentity(destPost)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.Src.VolPre, srcVolPre}, {&rec.Src.VolPost, srcVolPost}, {&rec.Src.VolChange, srcVolChange},
		{&rec.Dest.VolPre, destVolPre}, {&rec.Dest.VolPost, destVolPost}, {&rec.Dest.VolChange, destVolChange},
		{&rec.LossGainAmount, lossAmount}, {&rec.Net, net},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			d = decimal.Zero
		}
		*f.dst = d
	}
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
