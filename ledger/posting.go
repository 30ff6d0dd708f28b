/*
posting.go - Ledger line derivation and the nominal posting engine

PURPOSE:
  Turns transaction lines into signed nominal-ledger postings and keeps
  them consistent across edits.

DERIVATION (one line -> 0..3 postings):
  goods != 0          -> {line nominal,   factor * goods,         field g}
  vat != 0            -> {vat nominal,    factor * vat,           field v}
  goods + vat != 0    -> {control nominal, -factor * (goods+vat), field t}

  The three postings for one line sum to zero, so the header-level
  sum-to-zero invariant holds by linear combination.

PAYMENTS:
  Payment types have no analysis lines; they post a synthetic pair
  instead: line 1 against the cash book's bank nominal for the header
  total and line 2 against the control nominal for its negation.

EDITS:
  Existing postings are partitioned into three disjoint sets: postings of
  deleted lines (always deleted), postings of changed lines (overwritten
  in place so anything holding the posting id keeps pointing at a live
  row; deleted instead when the recomputed value is zero), and postings
  for brand-new lines (created). Deleting zero-value postings keeps
  "posting exists" equivalent to "nonzero value", which downstream
  VAT/enquiry aggregation relies on.
*/
package ledger

import "context"

// PostingEngine derives and maintains nominal postings for one module.
type PostingEngine struct {
	Module ModuleSpec
}

// postingAccounts carries the resolved nominal ids for one posting run.
type postingAccounts struct {
	VatNominalID     int64
	ControlNominalID int64
	BankNominalID    int64 // payment types only
}

// =============================================================================
// DERIVATION
// =============================================================================

// DeriveLine emits the 0..3 postings for one line. Always zero-sum.
func (p *PostingEngine) DeriveLine(h *Header, l *Line, acct postingAccounts) []*NominalEntry {
	factor := p.Module.RoleFactor()
	var entries []*NominalEntry
	if !l.Goods.IsZero() {
		entries = append(entries, &NominalEntry{
			Module:    p.Module.Code,
			Header:    h.ID,
			Line:      l.ID,
			NominalID: l.NominalID,
			Value:     factor.Mul(l.Goods),
			Ref:       h.Ref,
			Period:    h.Period,
			Date:      h.Date,
			Type:      h.Type,
			Field:     FieldGoods,
		})
	}
	if !l.Vat.IsZero() {
		entries = append(entries, &NominalEntry{
			Module:    p.Module.Code,
			Header:    h.ID,
			Line:      l.ID,
			NominalID: acct.VatNominalID,
			Value:     factor.Mul(l.Vat),
			Ref:       h.Ref,
			Period:    h.Period,
			Date:      h.Date,
			Type:      h.Type,
			Field:     FieldVat,
		})
	}
	if total := l.Goods.Add(l.Vat); !total.IsZero() {
		entries = append(entries, &NominalEntry{
			Module:    p.Module.Code,
			Header:    h.ID,
			Line:      l.ID,
			NominalID: acct.ControlNominalID,
			Value:     factor.Mul(total).Neg(),
			Ref:       h.Ref,
			Period:    h.Period,
			Date:      h.Date,
			Type:      h.Type,
			Field:     FieldTotal,
		})
	}
	return entries
}

// =============================================================================
// CREATE
// =============================================================================

// CreateForLines bulk-inserts postings for every line and links each line
// back to its postings by field. Lines whose fields are all zero get nil
// everywhere.
func (p *PostingEngine) CreateForLines(ctx context.Context, s Store, h *Header, lines []*Line, acct postingAccounts) error {
	var entries []*NominalEntry
	for _, l := range lines {
		entries = append(entries, p.DeriveLine(h, l, acct)...)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.CreateNominalEntries(ctx, entries); err != nil {
		return err
	}
	byLine := map[int64]map[Field]*NominalEntry{}
	for _, e := range entries {
		if byLine[e.Line] == nil {
			byLine[e.Line] = map[Field]*NominalEntry{}
		}
		byLine[e.Line][e.Field] = e
	}
	for _, l := range lines {
		linkLinePostings(l, byLine[l.ID])
	}
	return s.UpdateLines(ctx, lines)
}

// CreatePayment posts the synthetic bank/control pair for a payment-type
// header. No postings when the total is zero.
func (p *PostingEngine) CreatePayment(ctx context.Context, s Store, h *Header, acct postingAccounts) error {
	if h.Total.IsZero() {
		return nil
	}
	factor := p.Module.RoleFactor()
	value := factor.Mul(h.Total)
	entries := []*NominalEntry{
		{
			Module: p.Module.Code, Header: h.ID, Line: 1,
			NominalID: acct.BankNominalID, Value: value,
			Ref: h.Ref, Period: h.Period, Date: h.Date, Type: h.Type, Field: FieldTotal,
		},
		{
			Module: p.Module.Code, Header: h.ID, Line: 2,
			NominalID: acct.ControlNominalID, Value: value.Neg(),
			Ref: h.Ref, Period: h.Period, Date: h.Date, Type: h.Type, Field: FieldTotal,
		},
	}
	return s.CreateNominalEntries(ctx, entries)
}

// =============================================================================
// EDIT
// =============================================================================

// EditForLines applies the three-set partition: deleted lines lose their
// postings, changed lines have theirs recomputed in place (or deleted at
// zero, or created where a field has become nonzero), new lines go
// through CreateForLines.
func (p *PostingEngine) EditForLines(ctx context.Context, s Store, h *Header,
	existing []*NominalEntry, newLines, changedLines, deletedLines []*Line, acct postingAccounts) error {

	byLine := map[int64]map[Field]*NominalEntry{}
	for _, e := range existing {
		if byLine[e.Line] == nil {
			byLine[e.Line] = map[Field]*NominalEntry{}
		}
		byLine[e.Line][e.Field] = e
	}

	var toUpdate []*NominalEntry
	var toCreate []*NominalEntry
	var toDelete []int64

	for _, l := range changedLines {
		have := byLine[l.ID]
		for _, d := range p.DeriveLine(h, l, acct) {
			if e, ok := have[d.Field]; ok {
				e.NominalID = d.NominalID
				e.Value = d.Value
				e.Ref = h.Ref
				e.Period = h.Period
				e.Date = h.Date
				e.Type = h.Type
				toUpdate = append(toUpdate, e)
				delete(have, d.Field)
			} else {
				// field went from zero to nonzero
				toCreate = append(toCreate, d)
			}
		}
		// whatever derivation no longer emits has recomputed to zero
		for field, e := range have {
			toDelete = append(toDelete, e.ID)
			setLinePosting(l, field, nil)
		}
	}

	for _, l := range deletedLines {
		for _, e := range byLine[l.ID] {
			toDelete = append(toDelete, e.ID)
		}
	}

	if len(toCreate) > 0 {
		if err := s.CreateNominalEntries(ctx, toCreate); err != nil {
			return err
		}
		created := map[int64]map[Field]*NominalEntry{}
		for _, e := range toCreate {
			if created[e.Line] == nil {
				created[e.Line] = map[Field]*NominalEntry{}
			}
			created[e.Line][e.Field] = e
		}
		for _, l := range changedLines {
			for field, e := range created[l.ID] {
				id := e.ID
				setLinePosting(l, field, &id)
			}
		}
	}
	if len(toUpdate) > 0 {
		if err := s.UpdateNominalEntries(ctx, toUpdate); err != nil {
			return err
		}
	}
	if len(toDelete) > 0 {
		if err := s.DeleteNominalEntries(ctx, toDelete); err != nil {
			return err
		}
	}
	if len(changedLines) > 0 {
		if err := s.UpdateLines(ctx, changedLines); err != nil {
			return err
		}
	}
	return p.CreateForLines(ctx, s, h, newLines, acct)
}

// EditPayment reconciles the synthetic pair against the new total:
// update in place while nonzero, delete at zero, create when absent.
func (p *PostingEngine) EditPayment(ctx context.Context, s Store, h *Header, existing []*NominalEntry, acct postingAccounts) error {
	switch {
	case len(existing) > 0 && !h.Total.IsZero():
		factor := p.Module.RoleFactor()
		for _, e := range existing {
			switch e.Line {
			case 1:
				e.NominalID = acct.BankNominalID
				e.Value = factor.Mul(h.Total)
			case 2:
				e.NominalID = acct.ControlNominalID
				e.Value = factor.Mul(h.Total).Neg()
			}
			e.Ref = h.Ref
			e.Period = h.Period
			e.Date = h.Date
			e.Type = h.Type
		}
		return s.UpdateNominalEntries(ctx, existing)
	case len(existing) > 0 && h.Total.IsZero():
		ids := make([]int64, 0, len(existing))
		for _, e := range existing {
			ids = append(ids, e.ID)
		}
		return s.DeleteNominalEntries(ctx, ids)
	case len(existing) == 0 && !h.Total.IsZero():
		return p.CreatePayment(ctx, s, h, acct)
	}
	return nil
}

// =============================================================================
// BACK-REFERENCES
// =============================================================================

func linkLinePostings(l *Line, entries map[Field]*NominalEntry) {
	for _, field := range []Field{FieldGoods, FieldVat, FieldTotal} {
		if e, ok := entries[field]; ok {
			id := e.ID
			setLinePosting(l, field, &id)
		} else {
			setLinePosting(l, field, nil)
		}
	}
}

func setLinePosting(l *Line, field Field, id *int64) {
	switch field {
	case FieldGoods:
		l.GoodsEntryID = id
	case FieldVat:
		l.VatEntryID = id
	case FieldTotal:
		l.TotalEntryID = id
	}
}
