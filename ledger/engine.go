/*
engine.go - Transaction lifecycle orchestration

PURPOSE:
  The Engine is the single entry point for mutating a ledger module:
  Create, Edit and Void. It validates everything up front, normalizes
  user-frame amounts into the stored frame, and drives the posting,
  cash-book, VAT and matching engines inside one store transaction, so
  a transaction and its derived records can never half-exist.

SEQUENCING:
  Create: validate header and lines, validate matching, insert header,
  insert lines, derive postings (nominal, cash book, VAT), apply the
  match plan. Edit mirrors Create but diffs lines against the stored set
  and reconciles derived records in place. Void unwinds matching on both
  sides, deletes every derived record, and flips status. Observers fire
  only after the transaction commits.

FRAMES:
  All amounts on TransactionInput are in the user's frame: positive
  numbers mean what the user thinks they mean for that type. Everything
  past validation is stored-frame. Match values are subject-frame (see
  matching.go).
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUT
// =============================================================================

// LineInput is one analysis line in the user's frame. LineID zero means
// a new line; on edit, stored lines not referenced by any input are
// deleted.
type LineInput struct {
	LineID      int64
	Description string
	Goods       decimal.Decimal
	Vat         decimal.Decimal
	NominalID   int64
	VatCodeID   int64
}

// TransactionInput carries everything needed to create or edit one
// transaction. Total is user-frame and must equal the line totals for
// line-bearing types.
type TransactionInput struct {
	Type       TransactionType
	SupplierID int64
	CashBookID int64
	Ref        string
	Date       time.Time
	DueDate    *time.Time
	Period     Period
	Total      decimal.Decimal
	Lines      []LineInput
	Matches    []MatchInput
}

// Transaction is a header with everything hanging off it, as returned
// by Get.
type Transaction struct {
	Header  *Header
	Lines   []*Line
	Matches []*Matching
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Module   ModuleSpec
	Store    TxStore
	Accounts SystemAccounts

	posting   PostingEngine
	cashbook  CashBookEngine
	vat       VatEngine
	matcher   MatchingEngine
	observers []Observer
}

func NewEngine(m ModuleSpec, s TxStore, accounts SystemAccounts) *Engine {
	return &Engine{
		Module:   m,
		Store:    s,
		Accounts: accounts,
		posting:  PostingEngine{Module: m},
		cashbook: CashBookEngine{Module: m},
		vat:      VatEngine{Module: m},
		matcher:  MatchingEngine{Module: m},
	}
}

// Observe registers an observer. Not safe to call concurrently with
// lifecycle operations; register everything at startup.
func (e *Engine) Observe(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *Engine) notify(ctx context.Context, action Action, h *Header) {
	ev := Event{Action: action, Module: e.Module.Code, Header: h}
	for _, o := range e.observers {
		o.Notify(ctx, ev)
	}
}

// =============================================================================
// CREATE
// =============================================================================

func (e *Engine) Create(ctx context.Context, in TransactionInput) (*Header, error) {
	spec, ok := e.Module.Spec(in.Type)
	if !ok {
		verrs := NewValidationErrors()
		verrs.AddField("type", fmt.Sprintf(
			"Select a valid choice. %s is not one of the available choices.", in.Type))
		return nil, verrs
	}
	if err := e.validateInput(ctx, e.Store, spec, &in); err != nil {
		return nil, err
	}

	h := e.buildHeader(spec, &in)
	lines := e.buildLines(spec, &in)

	err := e.Store.WithTx(ctx, func(s Store) error {
		plan, err := e.matcher.Validate(ctx, s, h, nil, in.Matches)
		if err != nil {
			return err
		}
		if err := s.CreateHeader(ctx, h); err != nil {
			return err
		}
		for i, l := range lines {
			l.HeaderID = h.ID
			l.LineNo = i + 1
		}
		if len(lines) > 0 {
			if err := s.CreateLines(ctx, lines); err != nil {
				return err
			}
		}
		if !spec.BroughtForward {
			acct, err := e.resolveAccounts(ctx, s, spec, in.CashBookID)
			if err != nil {
				return err
			}
			if spec.Payment {
				if err := e.posting.CreatePayment(ctx, s, h, acct); err != nil {
					return err
				}
				if err := e.cashbook.Create(ctx, s, h); err != nil {
					return err
				}
			} else {
				if err := e.posting.CreateForLines(ctx, s, h, lines, acct); err != nil {
					return err
				}
				if err := e.vat.Create(ctx, s, h, lines); err != nil {
					return err
				}
			}
		}
		return e.matcher.Apply(ctx, s, h, plan)
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, ActionCreated, h)
	return h, nil
}

// =============================================================================
// EDIT
// =============================================================================

// Edit replaces an existing transaction's header fields, lines and
// matches with the submitted set. The type is fixed at creation; void
// transactions cannot be edited.
func (e *Engine) Edit(ctx context.Context, headerID int64, in TransactionInput) (*Header, error) {
	var edited *Header
	err := e.Store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHeader(ctx, headerID)
		if err != nil {
			return err
		}
		if h.IsVoid() {
			return ErrVoid
		}
		if in.Type != h.Type {
			return ErrTypeChange
		}
		spec, _ := e.Module.Spec(h.Type)
		if err := e.validateInput(ctx, s, spec, &in); err != nil {
			return err
		}

		stored, err := s.LinesForHeader(ctx, h.ID)
		if err != nil {
			return err
		}
		newLines, changedLines, deletedLines, verrs := e.diffLines(h, stored, in.Lines)
		if err := verrs.ErrOrNil(); err != nil {
			return err
		}

		e.applyHeader(h, &in)

		existingMatches, err := s.MatchesForHeader(ctx, h.ID)
		if err != nil {
			return err
		}
		plan, err := e.matcher.Validate(ctx, s, h, existingMatches, in.Matches)
		if err != nil {
			return err
		}

		if err := s.UpdateHeader(ctx, h); err != nil {
			return err
		}
		if len(newLines) > 0 {
			if err := s.CreateLines(ctx, newLines); err != nil {
				return err
			}
		}

		switch {
		case spec.BroughtForward:
			// no derived records to reconcile
			if len(changedLines) > 0 {
				if err := s.UpdateLines(ctx, changedLines); err != nil {
					return err
				}
			}
		case spec.Payment:
			entries, err := s.NominalEntriesForHeader(ctx, e.Module.Code, h.ID)
			if err != nil {
				return err
			}
			acct, err := e.resolveAccounts(ctx, s, spec, in.CashBookID)
			if err != nil {
				return err
			}
			if err := e.posting.EditPayment(ctx, s, h, entries, acct); err != nil {
				return err
			}
			cb, err := s.CashBookEntryForHeader(ctx, e.Module.Code, h.ID)
			if err != nil && !IsNotFound(err) {
				return err
			}
			if err := e.cashbook.Edit(ctx, s, h, cb); err != nil {
				return err
			}
		default:
			entries, err := s.NominalEntriesForHeader(ctx, e.Module.Code, h.ID)
			if err != nil {
				return err
			}
			acct, err := e.resolveAccounts(ctx, s, spec, in.CashBookID)
			if err != nil {
				return err
			}
			if err := e.posting.EditForLines(ctx, s, h, entries, newLines, changedLines, deletedLines, acct); err != nil {
				return err
			}
			vatEntries, err := s.VatEntriesForHeader(ctx, e.Module.Code, h.ID)
			if err != nil {
				return err
			}
			if err := e.vat.Edit(ctx, s, h, vatEntries, newLines, changedLines, deletedLines); err != nil {
				return err
			}
		}

		if len(deletedLines) > 0 {
			ids := make([]int64, len(deletedLines))
			for i, l := range deletedLines {
				ids[i] = l.ID
			}
			if err := s.DeleteLines(ctx, ids); err != nil {
				return err
			}
		}
		if err := e.matcher.Apply(ctx, s, h, plan); err != nil {
			return err
		}
		edited = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, ActionEdited, edited)
	return edited, nil
}

// =============================================================================
// VOID
// =============================================================================

// Void marks a transaction void: every matching row it appears in is
// unwound on both sides, every derived posting is deleted, and the
// header keeps its amounts with due reset to total. Voiding fails when
// unwinding would leave a zero-value counterparty with a nonzero due,
// or push any counterparty's due outside zero..total.
func (e *Engine) Void(ctx context.Context, headerID int64) (*Header, error) {
	var voided *Header
	err := e.Store.WithTx(ctx, func(s Store) error {
		h, err := s.GetHeader(ctx, headerID)
		if err != nil {
			return err
		}
		if h.IsVoid() {
			return ErrVoid
		}

		matches, err := s.MatchesForHeader(ctx, h.ID)
		if err != nil {
			return err
		}
		others := map[int64]*Header{}
		var matchIDs []int64
		for _, row := range matches {
			matchIDs = append(matchIDs, row.ID)
			otherID := row.MatchedTo
			if RoleOf(h.ID, row) == RoleMatchedTo {
				otherID = row.MatchedBy
			}
			other, ok := others[otherID]
			if !ok {
				other, err = s.GetHeader(ctx, otherID)
				if err != nil {
					return err
				}
				others[otherID] = other
			}
			// removing the row from the other side's perspective
			w := SubjectValue(other.ID, row)
			other.Due = other.Due.Sub(w)
			other.Paid = other.Total.Sub(other.Due)
		}
		for _, other := range others {
			if other.Total.IsZero() {
				if !other.Due.IsZero() {
					return ErrVoidUnbalancesMatching
				}
			} else if !dueWithinTotal(other.Due, other.Total) {
				return ErrVoidUnbalancesMatching
			}
		}

		if len(matchIDs) > 0 {
			if err := s.DeleteMatches(ctx, matchIDs); err != nil {
				return err
			}
		}
		updated := make([]*Header, 0, len(others))
		for _, other := range others {
			updated = append(updated, other)
		}
		if len(updated) > 0 {
			if err := s.UpdateHeaders(ctx, updated); err != nil {
				return err
			}
		}

		if err := e.deleteDerived(ctx, s, h); err != nil {
			return err
		}

		h.Status = StatusVoid
		h.Paid = decimal.Zero
		h.Due = h.Total
		if err := s.UpdateHeader(ctx, h); err != nil {
			return err
		}
		voided = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, ActionVoided, voided)
	return voided, nil
}

// deleteDerived removes every record posted from a header and clears
// the back-references its lines hold.
func (e *Engine) deleteDerived(ctx context.Context, s Store, h *Header) error {
	entries, err := s.NominalEntriesForHeader(ctx, e.Module.Code, h.ID)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		ids := make([]int64, len(entries))
		for i, en := range entries {
			ids[i] = en.ID
		}
		if err := s.DeleteNominalEntries(ctx, ids); err != nil {
			return err
		}
	}

	cb, err := s.CashBookEntryForHeader(ctx, e.Module.Code, h.ID)
	if err != nil && !IsNotFound(err) {
		return err
	}
	if cb != nil {
		if err := s.DeleteCashBookEntry(ctx, cb.ID); err != nil {
			return err
		}
	}

	vatEntries, err := s.VatEntriesForHeader(ctx, e.Module.Code, h.ID)
	if err != nil {
		return err
	}
	if len(vatEntries) > 0 {
		ids := make([]int64, len(vatEntries))
		for i, ve := range vatEntries {
			ids[i] = ve.ID
		}
		if err := s.DeleteVatEntries(ctx, ids); err != nil {
			return err
		}
	}

	lines, err := s.LinesForHeader(ctx, h.ID)
	if err != nil {
		return err
	}
	var relink []*Line
	for _, l := range lines {
		if l.GoodsEntryID == nil && l.VatEntryID == nil && l.TotalEntryID == nil && l.VatTranID == nil {
			continue
		}
		l.GoodsEntryID, l.VatEntryID, l.TotalEntryID, l.VatTranID = nil, nil, nil, nil
		relink = append(relink, l)
	}
	if len(relink) > 0 {
		return s.UpdateLines(ctx, relink)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns a transaction with its lines and matching rows.
func (e *Engine) Get(ctx context.Context, headerID int64) (*Transaction, error) {
	h, err := e.Store.GetHeader(ctx, headerID)
	if err != nil {
		return nil, err
	}
	lines, err := e.Store.LinesForHeader(ctx, headerID)
	if err != nil {
		return nil, err
	}
	matches, err := e.Store.MatchesForHeader(ctx, headerID)
	if err != nil {
		return nil, err
	}
	return &Transaction{Header: h, Lines: lines, Matches: matches}, nil
}

// List returns headers for this module matching the filter.
func (e *Engine) List(ctx context.Context, f HeaderFilter) ([]*Header, error) {
	f.Module = e.Module.Code
	return e.Store.ListHeaders(ctx, f)
}

// MatchCandidates returns the cleared, outstanding headers on an
// account that a new or edited transaction could match against.
// excludeID drops the transaction being edited from its own candidates.
func (e *Engine) MatchCandidates(ctx context.Context, supplierID, excludeID int64) ([]*Header, error) {
	hs, err := e.Store.ListHeaders(ctx, HeaderFilter{
		Module:      e.Module.Code,
		SupplierID:  supplierID,
		Status:      StatusCleared,
		Outstanding: true,
	})
	if err != nil {
		return nil, err
	}
	out := hs[:0]
	for _, h := range hs {
		if h.ID != excludeID {
			out = append(out, h)
		}
	}
	return out, nil
}

// =============================================================================
// VALIDATION AND NORMALIZATION
// =============================================================================

const invalidChoice = "Select a valid choice. That choice is not one of the available choices."

// validateInput runs the header and line checks, including that every
// referenced supplier, nominal and vat code exists. Amounts are
// user-frame here.
func (e *Engine) validateInput(ctx context.Context, s Store, spec TypeSpec, in *TransactionInput) error {
	verrs := NewValidationErrors()

	if in.Ref == "" {
		verrs.AddField("ref", "This field is required.")
	}
	if !in.Period.Valid() {
		verrs.AddField("period", "Enter a valid period in the format YYYYMM.")
	}
	if in.Date.IsZero() {
		verrs.AddField("date", "This field is required.")
	}
	if in.SupplierID == 0 {
		verrs.AddField("supplier", "This field is required.")
	} else if _, err := s.GetSupplier(ctx, in.SupplierID); err != nil {
		if !IsNotFound(err) {
			return err
		}
		verrs.AddField("supplier", invalidChoice)
	}
	if spec.Payment && in.CashBookID == 0 {
		verrs.AddField("cash_book", "This field is required.")
	}

	if !spec.RequiresLines {
		if len(in.Lines) > 0 {
			verrs.AddNonField("This transaction type does not take analysis lines.")
		}
		return verrs.ErrOrNil()
	}

	if len(in.Lines) == 0 {
		verrs.AddNonField("A transaction must contain at least one line.")
	}
	lineTotal := decimal.Zero
	for i, l := range in.Lines {
		if l.Goods.IsZero() && l.Vat.IsZero() {
			verrs.AddLine(i, "Goods and Vat cannot both be zero.")
		}
		if spec.BroughtForward {
			if l.NominalID != 0 || l.VatCodeID != 0 {
				verrs.AddLine(i, "Brought forward lines cannot carry nominal or VAT analysis.")
			}
		} else if l.NominalID == 0 {
			verrs.AddLine(i, "This field is required.")
		} else if _, err := s.GetNominal(ctx, l.NominalID); err != nil {
			if !IsNotFound(err) {
				return err
			}
			verrs.AddLine(i, invalidChoice)
		}
		if !spec.BroughtForward && l.VatCodeID != 0 {
			if _, err := s.GetVatCode(ctx, l.VatCodeID); err != nil {
				if !IsNotFound(err) {
					return err
				}
				verrs.AddLine(i, invalidChoice)
			}
		}
		lineTotal = lineTotal.Add(l.Goods).Add(l.Vat)
	}
	if len(in.Lines) > 0 && !lineTotal.Equal(in.Total) {
		verrs.AddNonField("The total of the lines does not equal the total you entered.")
	}
	return verrs.ErrOrNil()
}

// buildHeader constructs a stored-frame header from validated input.
// Due starts at total; matching validation rewrites it before insert.
func (e *Engine) buildHeader(spec TypeSpec, in *TransactionInput) *Header {
	h := &Header{
		Module:     e.Module.Code,
		Type:       in.Type,
		SupplierID: in.SupplierID,
		Ref:        in.Ref,
		Date:       in.Date,
		DueDate:    in.DueDate,
		Period:     in.Period,
		Status:     StatusCleared,
		Created:    time.Now().UTC(),
	}
	e.applyHeader(h, in)
	return h
}

// applyHeader writes the mutable input fields onto a header,
// normalizing amounts into the stored frame. Goods and vat are the line
// sums for line-bearing types and zero for payments.
func (e *Engine) applyHeader(h *Header, in *TransactionInput) {
	h.SupplierID = in.SupplierID
	h.CashBookID = in.CashBookID
	h.Ref = in.Ref
	h.Date = in.Date
	h.DueDate = in.DueDate
	h.Period = in.Period

	goods, vat := decimal.Zero, decimal.Zero
	for _, l := range in.Lines {
		goods = goods.Add(l.Goods)
		vat = vat.Add(l.Vat)
	}
	h.Goods = e.Module.Normalize(h.Type, goods)
	h.Vat = e.Module.Normalize(h.Type, vat)
	h.Total = e.Module.Normalize(h.Type, in.Total)
	h.Paid = decimal.Zero
	h.Due = h.Total
}

// buildLines constructs stored-frame lines. Numbering happens after the
// header insert, once ids exist.
func (e *Engine) buildLines(spec TypeSpec, in *TransactionInput) []*Line {
	if !spec.RequiresLines {
		return nil
	}
	lines := make([]*Line, 0, len(in.Lines))
	for _, li := range in.Lines {
		lines = append(lines, &Line{
			Description: li.Description,
			Goods:       e.Module.Normalize(in.Type, li.Goods),
			Vat:         e.Module.Normalize(in.Type, li.Vat),
			NominalID:   li.NominalID,
			VatCodeID:   li.VatCodeID,
		})
	}
	return lines
}

// diffLines partitions the submitted lines against the stored set:
// inputs without a LineID are new, inputs with one overwrite that line,
// stored lines nobody referenced are deleted. Surviving lines are
// renumbered in submission order.
func (e *Engine) diffLines(h *Header, stored []*Line, inputs []LineInput) (
	newLines, changedLines, deletedLines []*Line, verrs *ValidationErrors) {

	verrs = NewValidationErrors()
	byID := map[int64]*Line{}
	for _, l := range stored {
		byID[l.ID] = l
	}
	seen := map[int64]bool{}
	lineNo := 0

	for i, li := range inputs {
		lineNo++
		if li.LineID == 0 {
			newLines = append(newLines, &Line{
				HeaderID:    h.ID,
				LineNo:      lineNo,
				Description: li.Description,
				Goods:       e.Module.Normalize(h.Type, li.Goods),
				Vat:         e.Module.Normalize(h.Type, li.Vat),
				NominalID:   li.NominalID,
				VatCodeID:   li.VatCodeID,
			})
			continue
		}
		l, ok := byID[li.LineID]
		if !ok {
			verrs.AddLine(i, "Could not find the line you are editing.")
			continue
		}
		seen[li.LineID] = true
		l.LineNo = lineNo
		l.Description = li.Description
		l.Goods = e.Module.Normalize(h.Type, li.Goods)
		l.Vat = e.Module.Normalize(h.Type, li.Vat)
		l.NominalID = li.NominalID
		l.VatCodeID = li.VatCodeID
		changedLines = append(changedLines, l)
	}
	for _, l := range stored {
		if !seen[l.ID] {
			deletedLines = append(deletedLines, l)
		}
	}
	return newLines, changedLines, deletedLines, verrs
}

// resolveAccounts looks up the nominal accounts a posting run needs.
// Control and VAT control resolve by name with the suspense fallback;
// the bank account comes from the selected cash book.
func (e *Engine) resolveAccounts(ctx context.Context, s Store, spec TypeSpec, cashBookID int64) (postingAccounts, error) {
	var acct postingAccounts
	control, err := ResolveNominal(ctx, s, e.Module.ControlName, e.Accounts.Suspense)
	if err != nil {
		return acct, err
	}
	acct.ControlNominalID = control.ID
	vatControl, err := ResolveNominal(ctx, s, e.Accounts.VatControl, e.Accounts.Suspense)
	if err != nil {
		return acct, err
	}
	acct.VatNominalID = vatControl.ID
	if spec.Payment {
		cb, err := s.GetCashBook(ctx, cashBookID)
		if err != nil {
			return acct, err
		}
		acct.BankNominalID = cb.NominalID
	}
	return acct, nil
}
