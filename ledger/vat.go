package ledger

import "context"

// =============================================================================
// VAT POSTING MIRROR
// =============================================================================
// One VatEntry per line that carries a VAT code, keyed by line rather
// than by field. The rate is snapshotted from the code at posting time so
// later rate changes cannot rewrite historical VAT returns. Edits follow
// the same three-set partition as nominal posting: a line that loses its
// VAT code loses its entry, a line that gains one gains an entry.

type VatEngine struct {
	Module ModuleSpec
}

func (v *VatEngine) entryForLine(ctx context.Context, s Store, h *Header, l *Line) (*VatEntry, error) {
	code, err := s.GetVatCode(ctx, l.VatCodeID)
	if err != nil {
		return nil, err
	}
	return &VatEntry{
		Module:    v.Module.Code,
		Header:    h.ID,
		Line:      l.ID,
		Ref:       h.Ref,
		Period:    h.Period,
		Date:      h.Date,
		Field:     FieldVat,
		TranType:  h.Type,
		VatType:   v.Module.VatType,
		VatCodeID: code.ID,
		VatRate:   code.Rate,
		Goods:     l.Goods,
		Vat:       l.Vat,
	}, nil
}

// Create posts one entry per line with a VAT code and links the lines
// back to their entries.
func (v *VatEngine) Create(ctx context.Context, s Store, h *Header, lines []*Line) error {
	var entries []*VatEntry
	var withVat []*Line
	for _, l := range lines {
		if l.VatCodeID == 0 {
			continue
		}
		e, err := v.entryForLine(ctx, s, h, l)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		withVat = append(withVat, l)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.CreateVatEntries(ctx, entries); err != nil {
		return err
	}
	for i, l := range withVat {
		id := entries[i].ID
		l.VatTranID = &id
	}
	return s.UpdateLines(ctx, withVat)
}

// Edit applies the three-set partition keyed by line.
func (v *VatEngine) Edit(ctx context.Context, s Store, h *Header,
	existing []*VatEntry, newLines, changedLines, deletedLines []*Line) error {

	byLine := map[int64]*VatEntry{}
	for _, e := range existing {
		byLine[e.Line] = e
	}

	var toUpdate []*VatEntry
	var toDelete []int64
	var relink []*Line

	for _, l := range changedLines {
		e, ok := byLine[l.ID]
		switch {
		case ok && l.VatCodeID != 0:
			code, err := s.GetVatCode(ctx, l.VatCodeID)
			if err != nil {
				return err
			}
			e.Ref = h.Ref
			e.Period = h.Period
			e.Date = h.Date
			e.TranType = h.Type
			e.VatCodeID = code.ID
			e.VatRate = code.Rate
			e.Goods = l.Goods
			e.Vat = l.Vat
			toUpdate = append(toUpdate, e)
		case ok && l.VatCodeID == 0:
			toDelete = append(toDelete, e.ID)
			l.VatTranID = nil
			relink = append(relink, l)
		case !ok && l.VatCodeID != 0:
			created, err := v.entryForLine(ctx, s, h, l)
			if err != nil {
				return err
			}
			if err := s.CreateVatEntries(ctx, []*VatEntry{created}); err != nil {
				return err
			}
			id := created.ID
			l.VatTranID = &id
			relink = append(relink, l)
		}
	}

	for _, l := range deletedLines {
		if e, ok := byLine[l.ID]; ok {
			toDelete = append(toDelete, e.ID)
		}
	}

	if len(toUpdate) > 0 {
		if err := s.UpdateVatEntries(ctx, toUpdate); err != nil {
			return err
		}
	}
	if len(toDelete) > 0 {
		if err := s.DeleteVatEntries(ctx, toDelete); err != nil {
			return err
		}
	}
	if len(relink) > 0 {
		if err := s.UpdateLines(ctx, relink); err != nil {
			return err
		}
	}
	return v.Create(ctx, s, h, newLines)
}
