/*
store.go - Persistence interface for headers, lines, postings and matches

PURPOSE:
  Defines the interface between the engine and the relational store. The
  engine specifies WHAT must be written; implementations decide how it is
  durably committed. Bulk operations are the default execution shape so a
  header with many lines costs a bounded number of round-trips.

ATOMICITY CONTRACT:
  Every create/edit/void is one unit of work. The engine wraps all its
  writes in WithTx; partial application (postings written but matching
  rejected) is a correctness bug, never a degraded mode. Implementations
  must roll back everything when the callback errors.

ID ASSIGNMENT:
  Create* methods assign ids on the passed objects before returning, the
  same way database autoincrement behaves. The posting engine relies on
  this to link lines back to their postings in the same transaction.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - ledger/store: in-memory store for tests and dev

SEE ALSO:
  - engine.go: the only caller of the write methods
  - store/sqlite/sqlite.go: concrete implementation
*/
package ledger

import "context"

// =============================================================================
// STORE - data operations
// =============================================================================

// HeaderFilter narrows enquiry reads. Zero values mean "any".
type HeaderFilter struct {
	Module     string
	SupplierID int64
	Period     Period
	Status     Status
	// Outstanding selects headers with nonzero due when true; Settled
	// selects fully paid headers. Together with neither set these give
	// the enquiry groups: all, awaiting payment, paid.
	Outstanding bool
	Settled     bool
}

type Store interface {
	// Headers. Headers are never deleted.
	CreateHeader(ctx context.Context, h *Header) error
	UpdateHeader(ctx context.Context, h *Header) error
	UpdateHeaders(ctx context.Context, hs []*Header) error
	GetHeader(ctx context.Context, id int64) (*Header, error)
	ListHeaders(ctx context.Context, f HeaderFilter) ([]*Header, error)

	// Lines, batch-managed whenever their header is saved.
	CreateLines(ctx context.Context, ls []*Line) error
	UpdateLines(ctx context.Context, ls []*Line) error
	DeleteLines(ctx context.Context, ids []int64) error
	LinesForHeader(ctx context.Context, headerID int64) ([]*Line, error)

	// Nominal postings.
	CreateNominalEntries(ctx context.Context, es []*NominalEntry) error
	UpdateNominalEntries(ctx context.Context, es []*NominalEntry) error
	DeleteNominalEntries(ctx context.Context, ids []int64) error
	NominalEntriesForHeader(ctx context.Context, module string, headerID int64) ([]*NominalEntry, error)

	// Cash-book mirror. At most one entry per header.
	CreateCashBookEntry(ctx context.Context, e *CashBookEntry) error
	UpdateCashBookEntry(ctx context.Context, e *CashBookEntry) error
	DeleteCashBookEntry(ctx context.Context, id int64) error
	CashBookEntryForHeader(ctx context.Context, module string, headerID int64) (*CashBookEntry, error)
	CashBookEntries(ctx context.Context, cashBookID int64) ([]*CashBookEntry, error)

	// VAT mirror.
	CreateVatEntries(ctx context.Context, es []*VatEntry) error
	UpdateVatEntries(ctx context.Context, es []*VatEntry) error
	DeleteVatEntries(ctx context.Context, ids []int64) error
	VatEntriesForHeader(ctx context.Context, module string, headerID int64) ([]*VatEntry, error)

	// Matching rows, both directions.
	CreateMatches(ctx context.Context, ms []*Matching) error
	UpdateMatches(ctx context.Context, ms []*Matching) error
	DeleteMatches(ctx context.Context, ids []int64) error
	MatchesForHeader(ctx context.Context, headerID int64) ([]*Matching, error)

	// Reference data.
	CreateSupplier(ctx context.Context, s *Supplier) error
	GetSupplier(ctx context.Context, id int64) (*Supplier, error)
	ListSuppliers(ctx context.Context) ([]*Supplier, error)
	CreateNominal(ctx context.Context, n *Nominal) error
	GetNominal(ctx context.Context, id int64) (*Nominal, error)
	NominalByName(ctx context.Context, name string) (*Nominal, error)
	ListNominals(ctx context.Context) ([]*Nominal, error)
	CreateVatCode(ctx context.Context, v *VatCode) error
	GetVatCode(ctx context.Context, id int64) (*VatCode, error)
	ListVatCodes(ctx context.Context) ([]*VatCode, error)
	CreateCashBook(ctx context.Context, cb *CashBook) error
	GetCashBook(ctx context.Context, id int64) (*CashBook, error)
	ListCashBooks(ctx context.Context) ([]*CashBook, error)
}

// TxStore wraps Store with transaction support. The engine requires it:
// every lifecycle operation runs inside exactly one WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. fn receives a Store bound
	// to that transaction; an error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// SYSTEM ACCOUNT RESOLUTION
// =============================================================================

// SystemAccounts names the nominal accounts the posting engines resolve.
// Names, not ids: the chart of accounts is configuration and may be
// rebuilt; resolution happens per posting run.
type SystemAccounts struct {
	VatControl string // e.g. "Vat Control"
	Suspense   string // e.g. "System Suspense Account"
}

// ResolveNominal finds a nominal by name, falling back to the suspense
// account when the name is missing. The fallback is a deliberate
// never-fail guarantee: posting cannot be blocked by missing chart-of-
// accounts setup. Only a store failure (including a missing suspense
// account, which is seeded with the system) surfaces as an error.
func ResolveNominal(ctx context.Context, s Store, name, suspense string) (*Nominal, error) {
	n, err := s.NominalByName(ctx, name)
	if err == nil {
		return n, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	return s.NominalByName(ctx, suspense)
}
