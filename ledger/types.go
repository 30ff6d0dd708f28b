/*
Package ledger provides the core posting and matching engine for
double-entry transaction modules.

PURPOSE:
  This package contains module-agnostic types and algorithms for recording
  ledger transactions. Whether the module is the purchase ledger or the
  sales ledger, the same engine derives nominal postings, keeps the
  cash-book and VAT mirrors in sync, and maintains the matching
  relationship between headers.

KEY CONCEPTS IN THIS FILE (types.go):
  - TransactionType / TypeSpec: a transaction code and its sign conventions
  - ModuleSpec: a ledger module (e.g. "PL") and its full type table
  - Header / Line: one transaction and its analysis rows
  - NominalEntry / CashBookEntry / VatEntry: derived ledger postings
  - Matching: a settlement allocation between two headers

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, no floats in business values
  2. Explicit sign tables: every type declares its sign and every module
     its ledger role; the posting factor is derived, never ad hoc
  3. Loose posting references: NominalEntry.Header/Line are plain ids,
     not ownership edges, so one posting table serves many modules
  4. Headers are never deleted, only voided

SIGN CONVENTIONS:
  Amounts arrive in the user's frame (an invoice for 120 and a payment of
  120 are both entered as 120). Storage normalizes by the type's Sign:
  credit-sign types are stored negated. Nominal postings then apply the
  module's role factor, so a purchase (debit-role) invoice posts +100
  goods while the mirror sales (credit-role) invoice posts -100.

SEE ALSO:
  - posting.go: nominal posting derivation and edit partitioning
  - matching.go: the matching engine and its invariant
  - engine.go: the create/edit/void lifecycle controller
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSACTION TYPES AND MODULES
// =============================================================================

// TransactionType is a module-specific transaction code, e.g. "pi" for a
// purchase invoice. Domain packages define their own constants.
type TransactionType string

// TypeSpec declares the behaviour of one transaction type. The whole table
// is validated when the module is registered so a missing or inconsistent
// entry fails at startup, not mid-posting.
type TypeSpec struct {
	Code TransactionType
	Name string

	// Sign is +1 for types shown positive on the account (invoices,
	// refunds) and -1 for types stored negated (credit notes, payments).
	Sign int

	// Payment marks types that post a cash-book entry (payments/refunds,
	// but not their brought-forward variants).
	Payment bool

	// BroughtForward types carry balances only: no nominal or VAT postings.
	BroughtForward bool

	// RequiresLines marks types entered with analysis lines. Payment types
	// post a single synthetic line instead.
	RequiresLines bool
}

// ModuleRole decides the nominal posting factor for a whole ledger.
type ModuleRole string

const (
	RoleDebit  ModuleRole = "debit"  // e.g. purchase ledger
	RoleCredit ModuleRole = "credit" // e.g. sales ledger
)

// VatType classifies a module's VAT entries for return aggregation.
type VatType string

const (
	VatInput  VatType = "i"
	VatOutput VatType = "o"
)

// ModuleSpec is one ledger module: its code, role and full type table.
type ModuleSpec struct {
	Code        string // e.g. "PL"
	Name        string
	Role        ModuleRole
	ControlName string // nominal account name for the control account
	VatType     VatType
	Types       map[TransactionType]TypeSpec
}

// Validate checks the type table exhaustively. Called by RegisterModule;
// domain packages register from init so a bad table panics at startup.
func (m ModuleSpec) Validate() error {
	if m.Code == "" {
		return fmt.Errorf("module must have a code")
	}
	if m.Role != RoleDebit && m.Role != RoleCredit {
		return fmt.Errorf("module %s: role must be debit or credit", m.Code)
	}
	if m.ControlName == "" {
		return fmt.Errorf("module %s: control account name required", m.Code)
	}
	if len(m.Types) == 0 {
		return fmt.Errorf("module %s: type table is empty", m.Code)
	}
	for code, spec := range m.Types {
		if spec.Code != code {
			return fmt.Errorf("module %s: type %q registered under key %q", m.Code, spec.Code, code)
		}
		if spec.Sign != 1 && spec.Sign != -1 {
			return fmt.Errorf("module %s: type %q: sign must be +1 or -1", m.Code, code)
		}
		if spec.Payment && spec.RequiresLines {
			return fmt.Errorf("module %s: type %q: payment types post a synthetic line, not analysis lines", m.Code, code)
		}
	}
	return nil
}

// RoleFactor is +1 for a debit-role ledger and -1 for a credit-role ledger.
// Combined with input normalization this is the nominal transaction factor:
// posting value = RoleFactor * stored value.
func (m ModuleSpec) RoleFactor() decimal.Decimal {
	if m.Role == RoleCredit {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Spec returns the TypeSpec for a code; ok is false for unknown codes.
func (m ModuleSpec) Spec(t TransactionType) (TypeSpec, bool) {
	s, ok := m.Types[t]
	return s, ok
}

// Normalize converts a user-frame value to the stored frame for a type.
func (m ModuleSpec) Normalize(t TransactionType, v decimal.Decimal) decimal.Decimal {
	if spec, ok := m.Types[t]; ok && spec.Sign < 0 {
		return v.Neg()
	}
	return v
}

// UIValue converts a stored-frame value back to the user's frame.
// Normalize and UIValue are involutions of each other.
func (m ModuleSpec) UIValue(t TransactionType, v decimal.Decimal) decimal.Decimal {
	return m.Normalize(t, v)
}

var modules = map[string]ModuleSpec{}

// RegisterModule validates and registers a module. Panics on an invalid
// table; registration happens at init so misconfiguration cannot reach
// a running system.
func RegisterModule(m ModuleSpec) {
	if err := m.Validate(); err != nil {
		panic(err)
	}
	modules[m.Code] = m
}

// Module returns a registered module spec.
func Module(code string) (ModuleSpec, bool) {
	m, ok := modules[code]
	return m, ok
}

// =============================================================================
// HEADER - one transaction
// =============================================================================

type Status string

const (
	StatusCleared Status = "c"
	StatusVoid    Status = "v"
)

// Header is one transaction on a ledger module. All decimal fields are in
// the stored frame (see package comment). Due == Total - Paid always.
type Header struct {
	ID         int64
	Module     string
	Type       TransactionType
	SupplierID int64
	CashBookID int64 // nonzero only for payment types
	Ref        string
	Date       time.Time
	DueDate    *time.Time
	Period     Period
	Status     Status
	Goods      decimal.Decimal
	Vat        decimal.Decimal
	Total      decimal.Decimal
	Paid       decimal.Decimal
	Due        decimal.Decimal
	Created    time.Time
}

func (h *Header) IsVoid() bool { return h.Status == StatusVoid }

// =============================================================================
// LINE - one analysis row of a header
// =============================================================================

// Line is one analysis row. Goods/Vat are stored-frame. The four nullable
// back-references point at the postings derived from this line; they are
// nil exactly when the corresponding posting does not exist (a posting is
// deleted, not zeroed, when its value goes to zero).
type Line struct {
	ID          int64
	HeaderID    int64
	LineNo      int // 1-based, contiguous, order-significant
	Description string
	Goods       decimal.Decimal
	Vat         decimal.Decimal
	NominalID   int64 // zero for brought-forward lines
	VatCodeID   int64 // zero when no VAT analysis

	GoodsEntryID *int64
	VatEntryID   *int64
	TotalEntryID *int64
	VatTranID    *int64
}

// IsZero reports a line with neither goods nor vat; such lines are invalid.
func (l *Line) IsZero() bool { return l.Goods.IsZero() && l.Vat.IsZero() }

// =============================================================================
// POSTINGS
// =============================================================================

// Field distinguishes the postings derived from one line.
type Field string

const (
	FieldGoods Field = "g"
	FieldVat   Field = "v"
	FieldTotal Field = "t"
)

// NominalEntry is one signed general-ledger posting. Header and Line are
// plain ids, not foreign keys: the posting table is shared across modules
// and must survive independently of any header table. Uniqueness is on
// (module, header, line, field). For synthetic payment postings Line is
// 1 (bank side) or 2 (control side).
type NominalEntry struct {
	ID        int64
	Module    string
	Header    int64
	Line      int64
	NominalID int64
	Value     decimal.Decimal
	Ref       string
	Period    Period
	Date      time.Time
	Type      TransactionType
	Field     Field
	Created   time.Time
}

// CashBookEntry mirrors a payment-sourced header into a named cash book.
// At most one exists per header, with Line fixed at 1, and it exists iff
// the header total is nonzero.
type CashBookEntry struct {
	ID         int64
	Module     string
	Header     int64
	Line       int64
	CashBookID int64
	Value      decimal.Decimal
	Ref        string
	Period     Period
	Date       time.Time
	Type       TransactionType
	Field      Field
	Created    time.Time
}

// VatEntry mirrors one line that carries a VAT code. The rate is
// snapshotted at posting time so later rate changes do not rewrite
// historical returns. Grouped downstream by (module, header, vat code).
type VatEntry struct {
	ID        int64
	Module    string
	Header    int64
	Line      int64
	Ref       string
	Period    Period
	Date      time.Time
	Field     Field
	TranType  TransactionType
	VatType   VatType
	VatCodeID int64
	VatRate   decimal.Decimal
	Goods     decimal.Decimal
	Vat       decimal.Decimal
	Created   time.Time
}

// =============================================================================
// MATCHING - settlement allocation between two headers
// =============================================================================

// Matching is a directed edge between two headers of the same module.
// MatchedBy is the header that was being created or edited when the match
// was made; MatchedTo is the header matched against. Value is the amount
// deducted from the matched_to header's due (and added to its paid) when
// the row was created. MatchedBy/MatchedTo never change after creation;
// only Value may be edited.
type Matching struct {
	ID        int64
	Module    string
	MatchedBy int64
	MatchedTo int64
	Value     decimal.Decimal
	Period    Period
	Created   time.Time
}

// Role identifies which side of a matching row a header occupies.
// The relationship is symmetric in meaning but asymmetric in storage;
// every piece of code that reads a row through a header's eyes must
// resolve the role first rather than sign-flip ad hoc.
type Role int

const (
	RoleNone Role = iota
	RoleMatchedBy
	RoleMatchedTo
)

// RoleOf resolves the side a header occupies in a matching row.
func RoleOf(headerID int64, m *Matching) Role {
	switch headerID {
	case m.MatchedBy:
		return RoleMatchedBy
	case m.MatchedTo:
		return RoleMatchedTo
	}
	return RoleNone
}

// SubjectValue expresses a row's value in the given header's frame: the
// amount the row contributes to that header's due. In the subject frame a
// row reduces the *other* header's due by the same amount.
func SubjectValue(headerID int64, m *Matching) decimal.Decimal {
	if RoleOf(headerID, m) == RoleMatchedTo {
		return m.Value.Neg()
	}
	return m.Value
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Nominal is a general-ledger account.
type Nominal struct {
	ID   int64
	Name string
}

// VatCode is a VAT rate definition; Rate is a percentage.
type VatCode struct {
	ID         int64
	Code       string
	Name       string
	Rate       decimal.Decimal
	Registered bool
}

// CashBook names a bank account and links it to its nominal.
type CashBook struct {
	ID        int64
	Name      string
	NominalID int64
}

// Supplier is the account the purchase ledger trades with. The sales
// ledger reuses the same shape for customers.
type Supplier struct {
	ID   int64
	Code string
	Name string
}
