package ledger

import "context"

// =============================================================================
// CASH-BOOK POSTING ENGINE
// =============================================================================
// A payment-sourced header gets exactly one cash-book entry, line 1, with
// value equal to the header total. The entry exists iff the total is
// nonzero; its lifecycle is independent of, and parallel to, nominal
// posting. Brought-forward payments carry balances only and never reach
// this engine.

type CashBookEngine struct {
	Module ModuleSpec
}

func (c *CashBookEngine) entry(h *Header) *CashBookEntry {
	return &CashBookEntry{
		Module:     c.Module.Code,
		Header:     h.ID,
		Line:       1,
		CashBookID: h.CashBookID,
		Value:      h.Total,
		Ref:        h.Ref,
		Period:     h.Period,
		Date:       h.Date,
		Type:       h.Type,
		Field:      FieldTotal,
	}
}

// Create posts the entry for a new payment header; nothing at zero total.
func (c *CashBookEngine) Create(ctx context.Context, s Store, h *Header) error {
	if h.Total.IsZero() {
		return nil
	}
	return s.CreateCashBookEntry(ctx, c.entry(h))
}

// Edit reconciles the entry against the new total: update in place while
// nonzero, delete at zero, create when absent.
func (c *CashBookEngine) Edit(ctx context.Context, s Store, h *Header, existing *CashBookEntry) error {
	switch {
	case existing != nil && !h.Total.IsZero():
		existing.CashBookID = h.CashBookID
		existing.Value = h.Total
		existing.Ref = h.Ref
		existing.Period = h.Period
		existing.Date = h.Date
		existing.Type = h.Type
		return s.UpdateCashBookEntry(ctx, existing)
	case existing != nil && h.Total.IsZero():
		return s.DeleteCashBookEntry(ctx, existing.ID)
	case existing == nil && !h.Total.IsZero():
		return s.CreateCashBookEntry(ctx, c.entry(h))
	}
	return nil
}
