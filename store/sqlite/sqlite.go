/*
Package sqlite provides the SQLite-backed ledger.TxStore.

PURPOSE:
  Persists headers, lines, the three posting mirrors (nominal, cash book,
  VAT), matching rows and reference data. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  headers:           One row per ledger transaction, any module
  lines:             Analysis lines with nullable posting back-references
  nominal_entries:   Signed general-ledger postings, loose ids
  cash_book_entries: Cash book mirror, at most one per header
  vat_entries:       VAT return mirror with snapshotted rates
  matches:           Settlement allocations between header pairs

AMOUNTS:
  Decimals are stored as TEXT and parsed with shopspring/decimal. Floats
  never touch monetary values.

UNIQUENESS:
  idx_nominal_source enforces one posting per (module, header, line,
  field), the invariant the posting engine's edit reconciliation relies
  on.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and a crashed writer cannot corrupt
  committed transactions.

CONCURRENCY:
  WithTx serializes writers with a mutex. Database-level locking handles
  the rest.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/purchase-ledger/ledger"
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store against either a bare connection or a
// transaction.
type queries struct {
	db dbtx
}

// Store is the connection-bound store; WithTx hands callbacks a
// transaction-bound one.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection: SQLite serializes writers anyway, and a pooled
	// ":memory:" database would otherwise be one database per connection
	db.SetMaxOpenConns(1)
	s := &Store{queries: queries{db: db}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS headers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module TEXT NOT NULL,
		type TEXT NOT NULL,
		supplier_id INTEGER NOT NULL,
		cash_book_id INTEGER NOT NULL DEFAULT 0,
		ref TEXT NOT NULL,
		date TEXT NOT NULL,
		due_date TEXT,
		period TEXT NOT NULL,
		status TEXT NOT NULL,
		goods TEXT NOT NULL,
		vat TEXT NOT NULL,
		total TEXT NOT NULL,
		paid TEXT NOT NULL,
		due TEXT NOT NULL,
		created TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_headers_module_supplier
		ON headers(module, supplier_id);
	CREATE INDEX IF NOT EXISTS idx_headers_period
		ON headers(period);

	CREATE TABLE IF NOT EXISTS lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		header_id INTEGER NOT NULL,
		line_no INTEGER NOT NULL,
		description TEXT NOT NULL,
		goods TEXT NOT NULL,
		vat TEXT NOT NULL,
		nominal_id INTEGER NOT NULL DEFAULT 0,
		vat_code_id INTEGER NOT NULL DEFAULT 0,
		goods_entry_id INTEGER,
		vat_entry_id INTEGER,
		total_entry_id INTEGER,
		vat_tran_id INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_lines_header
		ON lines(header_id);

	-- Loose ids: header and line are not foreign keys. The table is
	-- shared across modules and outlives any one of them.
	CREATE TABLE IF NOT EXISTS nominal_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module TEXT NOT NULL,
		header INTEGER NOT NULL,
		line INTEGER NOT NULL,
		nominal_id INTEGER NOT NULL,
		value TEXT NOT NULL,
		ref TEXT NOT NULL,
		period TEXT NOT NULL,
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		field TEXT NOT NULL,
		created TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_nominal_source
		ON nominal_entries(module, header, line, field);
	CREATE INDEX IF NOT EXISTS idx_nominal_account
		ON nominal_entries(nominal_id, period);

	CREATE TABLE IF NOT EXISTS cash_book_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module TEXT NOT NULL,
		header INTEGER NOT NULL,
		line INTEGER NOT NULL,
		cash_book_id INTEGER NOT NULL,
		value TEXT NOT NULL,
		ref TEXT NOT NULL,
		period TEXT NOT NULL,
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		field TEXT NOT NULL,
		created TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_cash_book_source
		ON cash_book_entries(module, header);

	CREATE TABLE IF NOT EXISTS vat_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module TEXT NOT NULL,
		header INTEGER NOT NULL,
		line INTEGER NOT NULL,
		ref TEXT NOT NULL,
		period TEXT NOT NULL,
		date TEXT NOT NULL,
		field TEXT NOT NULL,
		tran_type TEXT NOT NULL,
		vat_type TEXT NOT NULL,
		vat_code_id INTEGER NOT NULL,
		vat_rate TEXT NOT NULL,
		goods TEXT NOT NULL,
		vat TEXT NOT NULL,
		created TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_vat_source
		ON vat_entries(module, header, line);

	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		module TEXT NOT NULL,
		matched_by INTEGER NOT NULL,
		matched_to INTEGER NOT NULL,
		value TEXT NOT NULL,
		period TEXT NOT NULL,
		created TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_matches_by ON matches(matched_by);
	CREATE INDEX IF NOT EXISTS idx_matches_to ON matches(matched_to);

	CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS nominals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS vat_codes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		rate TEXT NOT NULL,
		registered INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS cash_books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		nominal_id INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// HEADERS
// =============================================================================

const headerCols = `id, module, type, supplier_id, cash_book_id, ref, date,
	due_date, period, status, goods, vat, total, paid, due, created`

func (q *queries) CreateHeader(ctx context.Context, h *ledger.Header) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO headers (module, type, supplier_id, cash_book_id, ref,
			date, due_date, period, status, goods, vat, total, paid, due, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.Module, string(h.Type), h.SupplierID, h.CashBookID, h.Ref,
		encodeTime(h.Date), encodeTimePtr(h.DueDate), string(h.Period), string(h.Status),
		h.Goods.String(), h.Vat.String(), h.Total.String(),
		h.Paid.String(), h.Due.String(), encodeTime(h.Created))
	if err != nil {
		return fmt.Errorf("failed to insert header: %w", err)
	}
	h.ID, err = res.LastInsertId()
	return err
}

func (q *queries) UpdateHeader(ctx context.Context, h *ledger.Header) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE headers SET supplier_id = ?, cash_book_id = ?, ref = ?,
			date = ?, due_date = ?, period = ?, status = ?,
			goods = ?, vat = ?, total = ?, paid = ?, due = ?
		WHERE id = ?`,
		h.SupplierID, h.CashBookID, h.Ref,
		encodeTime(h.Date), encodeTimePtr(h.DueDate), string(h.Period), string(h.Status),
		h.Goods.String(), h.Vat.String(), h.Total.String(),
		h.Paid.String(), h.Due.String(), h.ID)
	if err != nil {
		return fmt.Errorf("failed to update header: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrHeaderNotFound
	}
	return nil
}

func (q *queries) UpdateHeaders(ctx context.Context, hs []*ledger.Header) error {
	for _, h := range hs {
		if err := q.UpdateHeader(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) GetHeader(ctx context.Context, id int64) (*ledger.Header, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+headerCols+` FROM headers WHERE id = ?`, id)
	h, err := scanHeader(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrHeaderNotFound
	}
	return h, err
}

func (q *queries) ListHeaders(ctx context.Context, f ledger.HeaderFilter) ([]*ledger.Header, error) {
	query := `SELECT ` + headerCols + ` FROM headers WHERE 1=1`
	var args []any
	if f.Module != "" {
		query += ` AND module = ?`
		args = append(args, f.Module)
	}
	if f.SupplierID != 0 {
		query += ` AND supplier_id = ?`
		args = append(args, f.SupplierID)
	}
	if f.Period != "" {
		query += ` AND period = ?`
		args = append(args, string(f.Period))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Outstanding {
		query += ` AND CAST(due AS REAL) != 0`
	}
	if f.Settled {
		query += ` AND CAST(due AS REAL) = 0`
	}
	query += ` ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Header
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHeader(row scanner) (*ledger.Header, error) {
	var h ledger.Header
	var typ, period, status string
	var date, created string
	var dueDate sql.NullString
	var goods, vat, total, paid, due string
	if err := row.Scan(&h.ID, &h.Module, &typ, &h.SupplierID, &h.CashBookID,
		&h.Ref, &date, &dueDate, &period, &status,
		&goods, &vat, &total, &paid, &due, &created); err != nil {
		return nil, err
	}
	h.Type = ledger.TransactionType(typ)
	h.Period = ledger.Period(period)
	h.Status = ledger.Status(status)

	var err error
	if h.Date, err = decodeTime(date); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		t, err := decodeTime(dueDate.String)
		if err != nil {
			return nil, err
		}
		h.DueDate = &t
	}
	if h.Created, err = decodeTime(created); err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		dst *decimal.Decimal
		src string
	}{{&h.Goods, goods}, {&h.Vat, vat}, {&h.Total, total}, {&h.Paid, paid}, {&h.Due, due}} {
		if *pair.dst, err = decodeDecimal(pair.src); err != nil {
			return nil, err
		}
	}
	return &h, nil
}

// =============================================================================
// LINES
// =============================================================================

const lineCols = `id, header_id, line_no, description, goods, vat,
	nominal_id, vat_code_id, goods_entry_id, vat_entry_id, total_entry_id, vat_tran_id`

func (q *queries) CreateLines(ctx context.Context, ls []*ledger.Line) error {
	for _, l := range ls {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO lines (header_id, line_no, description, goods, vat,
				nominal_id, vat_code_id, goods_entry_id, vat_entry_id,
				total_entry_id, vat_tran_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.HeaderID, l.LineNo, l.Description, l.Goods.String(), l.Vat.String(),
			l.NominalID, l.VatCodeID, nullInt64(l.GoodsEntryID), nullInt64(l.VatEntryID),
			nullInt64(l.TotalEntryID), nullInt64(l.VatTranID))
		if err != nil {
			return fmt.Errorf("failed to insert line: %w", err)
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) UpdateLines(ctx context.Context, ls []*ledger.Line) error {
	for _, l := range ls {
		_, err := q.db.ExecContext(ctx, `
			UPDATE lines SET line_no = ?, description = ?, goods = ?, vat = ?,
				nominal_id = ?, vat_code_id = ?, goods_entry_id = ?,
				vat_entry_id = ?, total_entry_id = ?, vat_tran_id = ?
			WHERE id = ?`,
			l.LineNo, l.Description, l.Goods.String(), l.Vat.String(),
			l.NominalID, l.VatCodeID, nullInt64(l.GoodsEntryID), nullInt64(l.VatEntryID),
			nullInt64(l.TotalEntryID), nullInt64(l.VatTranID), l.ID)
		if err != nil {
			return fmt.Errorf("failed to update line: %w", err)
		}
	}
	return nil
}

func (q *queries) DeleteLines(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM lines WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	return err
}

func (q *queries) LinesForHeader(ctx context.Context, headerID int64) ([]*ledger.Line, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+lineCols+` FROM lines WHERE header_id = ? ORDER BY line_no`, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Line
	for rows.Next() {
		var l ledger.Line
		var goods, vat string
		var ge, ve, te, vt sql.NullInt64
		if err := rows.Scan(&l.ID, &l.HeaderID, &l.LineNo, &l.Description,
			&goods, &vat, &l.NominalID, &l.VatCodeID, &ge, &ve, &te, &vt); err != nil {
			return nil, err
		}
		if l.Goods, err = decodeDecimal(goods); err != nil {
			return nil, err
		}
		if l.Vat, err = decodeDecimal(vat); err != nil {
			return nil, err
		}
		l.GoodsEntryID, l.VatEntryID, l.TotalEntryID, l.VatTranID =
			int64Ptr(ge), int64Ptr(ve), int64Ptr(te), int64Ptr(vt)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// =============================================================================
// NOMINAL POSTINGS
// =============================================================================

func (q *queries) CreateNominalEntries(ctx context.Context, es []*ledger.NominalEntry) error {
	for _, e := range es {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO nominal_entries (module, header, line, nominal_id,
				value, ref, period, date, type, field, created)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Module, e.Header, e.Line, e.NominalID, e.Value.String(),
			e.Ref, string(e.Period), encodeTime(e.Date), string(e.Type),
			string(e.Field), encodeTime(e.Created))
		if err != nil {
			return fmt.Errorf("failed to insert nominal entry: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) UpdateNominalEntries(ctx context.Context, es []*ledger.NominalEntry) error {
	for _, e := range es {
		_, err := q.db.ExecContext(ctx, `
			UPDATE nominal_entries SET nominal_id = ?, value = ?, ref = ?,
				period = ?, date = ?
			WHERE id = ?`,
			e.NominalID, e.Value.String(), e.Ref, string(e.Period),
			encodeTime(e.Date), e.ID)
		if err != nil {
			return fmt.Errorf("failed to update nominal entry: %w", err)
		}
	}
	return nil
}

func (q *queries) DeleteNominalEntries(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM nominal_entries WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	return err
}

func (q *queries) NominalEntriesForHeader(ctx context.Context, module string, headerID int64) ([]*ledger.NominalEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, module, header, line, nominal_id, value, ref, period,
			date, type, field, created
		FROM nominal_entries WHERE module = ? AND header = ? ORDER BY id`,
		module, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.NominalEntry
	for rows.Next() {
		var e ledger.NominalEntry
		var value, period, date, typ, field, created string
		if err := rows.Scan(&e.ID, &e.Module, &e.Header, &e.Line, &e.NominalID,
			&value, &e.Ref, &period, &date, &typ, &field, &created); err != nil {
			return nil, err
		}
		if e.Value, err = decodeDecimal(value); err != nil {
			return nil, err
		}
		if e.Date, err = decodeTime(date); err != nil {
			return nil, err
		}
		if e.Created, err = decodeTime(created); err != nil {
			return nil, err
		}
		e.Period = ledger.Period(period)
		e.Type = ledger.TransactionType(typ)
		e.Field = ledger.Field(field)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// =============================================================================
// CASH BOOK
// =============================================================================

func (q *queries) CreateCashBookEntry(ctx context.Context, e *ledger.CashBookEntry) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO cash_book_entries (module, header, line, cash_book_id,
			value, ref, period, date, type, field, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Module, e.Header, e.Line, e.CashBookID, e.Value.String(),
		e.Ref, string(e.Period), encodeTime(e.Date), string(e.Type),
		string(e.Field), encodeTime(e.Created))
	if err != nil {
		return fmt.Errorf("failed to insert cash book entry: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (q *queries) UpdateCashBookEntry(ctx context.Context, e *ledger.CashBookEntry) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE cash_book_entries SET cash_book_id = ?, value = ?, ref = ?,
			period = ?, date = ?
		WHERE id = ?`,
		e.CashBookID, e.Value.String(), e.Ref, string(e.Period),
		encodeTime(e.Date), e.ID)
	return err
}

func (q *queries) DeleteCashBookEntry(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM cash_book_entries WHERE id = ?`, id)
	return err
}

func (q *queries) CashBookEntryForHeader(ctx context.Context, module string, headerID int64) (*ledger.CashBookEntry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, module, header, line, cash_book_id, value, ref, period,
			date, type, field, created
		FROM cash_book_entries WHERE module = ? AND header = ?`,
		module, headerID)
	e, err := scanCashBookEntry(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	return e, err
}

func (q *queries) CashBookEntries(ctx context.Context, cashBookID int64) ([]*ledger.CashBookEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, module, header, line, cash_book_id, value, ref, period,
			date, type, field, created
		FROM cash_book_entries WHERE cash_book_id = ? ORDER BY id`, cashBookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.CashBookEntry
	for rows.Next() {
		e, err := scanCashBookEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanCashBookEntry(row scanner) (*ledger.CashBookEntry, error) {
	var e ledger.CashBookEntry
	var value, period, date, typ, field, created string
	if err := row.Scan(&e.ID, &e.Module, &e.Header, &e.Line, &e.CashBookID,
		&value, &e.Ref, &period, &date, &typ, &field, &created); err != nil {
		return nil, err
	}
	var err error
	if e.Value, err = decodeDecimal(value); err != nil {
		return nil, err
	}
	if e.Date, err = decodeTime(date); err != nil {
		return nil, err
	}
	if e.Created, err = decodeTime(created); err != nil {
		return nil, err
	}
	e.Period = ledger.Period(period)
	e.Type = ledger.TransactionType(typ)
	e.Field = ledger.Field(field)
	return &e, nil
}

// =============================================================================
// VAT
// =============================================================================

func (q *queries) CreateVatEntries(ctx context.Context, es []*ledger.VatEntry) error {
	for _, e := range es {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO vat_entries (module, header, line, ref, period, date,
				field, tran_type, vat_type, vat_code_id, vat_rate, goods, vat, created)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Module, e.Header, e.Line, e.Ref, string(e.Period), encodeTime(e.Date),
			string(e.Field), string(e.TranType), string(e.VatType), e.VatCodeID,
			e.VatRate.String(), e.Goods.String(), e.Vat.String(), encodeTime(e.Created))
		if err != nil {
			return fmt.Errorf("failed to insert vat entry: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) UpdateVatEntries(ctx context.Context, es []*ledger.VatEntry) error {
	for _, e := range es {
		_, err := q.db.ExecContext(ctx, `
			UPDATE vat_entries SET ref = ?, period = ?, date = ?,
				vat_code_id = ?, vat_rate = ?, goods = ?, vat = ?
			WHERE id = ?`,
			e.Ref, string(e.Period), encodeTime(e.Date),
			e.VatCodeID, e.VatRate.String(), e.Goods.String(), e.Vat.String(), e.ID)
		if err != nil {
			return fmt.Errorf("failed to update vat entry: %w", err)
		}
	}
	return nil
}

func (q *queries) DeleteVatEntries(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM vat_entries WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	return err
}

func (q *queries) VatEntriesForHeader(ctx context.Context, module string, headerID int64) ([]*ledger.VatEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, module, header, line, ref, period, date, field, tran_type,
			vat_type, vat_code_id, vat_rate, goods, vat, created
		FROM vat_entries WHERE module = ? AND header = ? ORDER BY id`,
		module, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.VatEntry
	for rows.Next() {
		var e ledger.VatEntry
		var period, date, field, tranType, vatType, rate, goods, vat, created string
		if err := rows.Scan(&e.ID, &e.Module, &e.Header, &e.Line, &e.Ref,
			&period, &date, &field, &tranType, &vatType, &e.VatCodeID,
			&rate, &goods, &vat, &created); err != nil {
			return nil, err
		}
		if e.VatRate, err = decodeDecimal(rate); err != nil {
			return nil, err
		}
		if e.Goods, err = decodeDecimal(goods); err != nil {
			return nil, err
		}
		if e.Vat, err = decodeDecimal(vat); err != nil {
			return nil, err
		}
		if e.Date, err = decodeTime(date); err != nil {
			return nil, err
		}
		if e.Created, err = decodeTime(created); err != nil {
			return nil, err
		}
		e.Period = ledger.Period(period)
		e.Field = ledger.Field(field)
		e.TranType = ledger.TransactionType(tranType)
		e.VatType = ledger.VatType(vatType)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// =============================================================================
// MATCHING
// =============================================================================

func (q *queries) CreateMatches(ctx context.Context, ms []*ledger.Matching) error {
	for _, m := range ms {
		res, err := q.db.ExecContext(ctx, `
			INSERT INTO matches (module, matched_by, matched_to, value, period, created)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.Module, m.MatchedBy, m.MatchedTo, m.Value.String(),
			string(m.Period), encodeTime(m.Created))
		if err != nil {
			return fmt.Errorf("failed to insert match: %w", err)
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) UpdateMatches(ctx context.Context, ms []*ledger.Matching) error {
	for _, m := range ms {
		_, err := q.db.ExecContext(ctx,
			`UPDATE matches SET value = ?, period = ? WHERE id = ?`,
			m.Value.String(), string(m.Period), m.ID)
		if err != nil {
			return fmt.Errorf("failed to update match: %w", err)
		}
	}
	return nil
}

func (q *queries) DeleteMatches(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM matches WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	return err
}

func (q *queries) MatchesForHeader(ctx context.Context, headerID int64) ([]*ledger.Matching, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, module, matched_by, matched_to, value, period, created
		FROM matches WHERE matched_by = ? OR matched_to = ? ORDER BY id`,
		headerID, headerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Matching
	for rows.Next() {
		var m ledger.Matching
		var value, period, created string
		if err := rows.Scan(&m.ID, &m.Module, &m.MatchedBy, &m.MatchedTo,
			&value, &period, &created); err != nil {
			return nil, err
		}
		if m.Value, err = decodeDecimal(value); err != nil {
			return nil, err
		}
		if m.Created, err = decodeTime(created); err != nil {
			return nil, err
		}
		m.Period = ledger.Period(period)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (q *queries) CreateSupplier(ctx context.Context, s *ledger.Supplier) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO suppliers (code, name) VALUES (?, ?)`, s.Code, s.Name)
	if err != nil {
		return fmt.Errorf("failed to insert supplier: %w", err)
	}
	s.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetSupplier(ctx context.Context, id int64) (*ledger.Supplier, error) {
	var s ledger.Supplier
	err := q.db.QueryRowContext(ctx,
		`SELECT id, code, name FROM suppliers WHERE id = ?`, id).
		Scan(&s.ID, &s.Code, &s.Name)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *queries) ListSuppliers(ctx context.Context) ([]*ledger.Supplier, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, code, name FROM suppliers ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Supplier
	for rows.Next() {
		var s ledger.Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (q *queries) CreateNominal(ctx context.Context, n *ledger.Nominal) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO nominals (name) VALUES (?)`, n.Name)
	if err != nil {
		return fmt.Errorf("failed to insert nominal: %w", err)
	}
	n.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetNominal(ctx context.Context, id int64) (*ledger.Nominal, error) {
	var n ledger.Nominal
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name FROM nominals WHERE id = ?`, id).Scan(&n.ID, &n.Name)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (q *queries) NominalByName(ctx context.Context, name string) (*ledger.Nominal, error) {
	var n ledger.Nominal
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name FROM nominals WHERE name = ?`, name).Scan(&n.ID, &n.Name)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (q *queries) ListNominals(ctx context.Context) ([]*ledger.Nominal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name FROM nominals ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Nominal
	for rows.Next() {
		var n ledger.Nominal
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (q *queries) CreateVatCode(ctx context.Context, v *ledger.VatCode) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO vat_codes (code, name, rate, registered) VALUES (?, ?, ?, ?)`,
		v.Code, v.Name, v.Rate.String(), v.Registered)
	if err != nil {
		return fmt.Errorf("failed to insert vat code: %w", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetVatCode(ctx context.Context, id int64) (*ledger.VatCode, error) {
	var v ledger.VatCode
	var rate string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, code, name, rate, registered FROM vat_codes WHERE id = ?`, id).
		Scan(&v.ID, &v.Code, &v.Name, &rate, &v.Registered)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if v.Rate, err = decodeDecimal(rate); err != nil {
		return nil, err
	}
	return &v, nil
}

func (q *queries) ListVatCodes(ctx context.Context) ([]*ledger.VatCode, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, code, name, rate, registered FROM vat_codes ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.VatCode
	for rows.Next() {
		var v ledger.VatCode
		var rate string
		if err := rows.Scan(&v.ID, &v.Code, &v.Name, &rate, &v.Registered); err != nil {
			return nil, err
		}
		if v.Rate, err = decodeDecimal(rate); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (q *queries) CreateCashBook(ctx context.Context, cb *ledger.CashBook) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO cash_books (name, nominal_id) VALUES (?, ?)`,
		cb.Name, cb.NominalID)
	if err != nil {
		return fmt.Errorf("failed to insert cash book: %w", err)
	}
	cb.ID, err = res.LastInsertId()
	return err
}

func (q *queries) GetCashBook(ctx context.Context, id int64) (*ledger.CashBook, error) {
	var cb ledger.CashBook
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, nominal_id FROM cash_books WHERE id = ?`, id).
		Scan(&cb.ID, &cb.Name, &cb.NominalID)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

func (q *queries) ListCashBooks(ctx context.Context) ([]*ledger.CashBook, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, nominal_id FROM cash_books ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.CashBook
	for rows.Next() {
		var cb ledger.CashBook
		if err := rows.Scan(&cb.ID, &cb.Name, &cb.NominalID); err != nil {
			return nil, err
		}
		out = append(out, &cb)
	}
	return out, rows.Err()
}

// Compile-time checks.
var (
	_ ledger.Store   = (*queries)(nil)
	_ ledger.TxStore = (*Store)(nil)
)
