/*
report.go - Account enquiry aggregates

PURPOSE:
  Read-side summaries over headers: per-account balances aged by how
  long the debt has been outstanding. Purchase ledger users know this as
  the aged creditors report; the sales ledger gets aged debtors from the
  same code.

AGING:
  A header falls into a bucket by its due date (falling back to the
  transaction date): not yet due is current, then whole months overdue.
  Everything three or more months overdue lands in the final bucket.
  Void transactions never appear.
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AgedBalance is one account's outstanding debt, bucketed by age.
type AgedBalance struct {
	SupplierID int64
	Current    decimal.Decimal
	OneMonth   decimal.Decimal
	TwoMonths  decimal.Decimal
	Older      decimal.Decimal
	Total      decimal.Decimal
}

// AgedBalances sums outstanding due per account for a module, aged as of
// the given date. Accounts with nothing outstanding are omitted.
func AgedBalances(ctx context.Context, s Store, module string, asOf time.Time) ([]*AgedBalance, error) {
	hs, err := s.ListHeaders(ctx, HeaderFilter{
		Module:      module,
		Status:      StatusCleared,
		Outstanding: true,
	})
	if err != nil {
		return nil, err
	}

	byAccount := map[int64]*AgedBalance{}
	for _, h := range hs {
		b, ok := byAccount[h.SupplierID]
		if !ok {
			b = &AgedBalance{
				SupplierID: h.SupplierID,
				Current:    decimal.Zero,
				OneMonth:   decimal.Zero,
				TwoMonths:  decimal.Zero,
				Older:      decimal.Zero,
				Total:      decimal.Zero,
			}
			byAccount[h.SupplierID] = b
		}
		due := h.Date
		if h.DueDate != nil {
			due = *h.DueDate
		}
		switch age := monthsOverdue(due, asOf); {
		case age <= 0:
			b.Current = b.Current.Add(h.Due)
		case age == 1:
			b.OneMonth = b.OneMonth.Add(h.Due)
		case age == 2:
			b.TwoMonths = b.TwoMonths.Add(h.Due)
		default:
			b.Older = b.Older.Add(h.Due)
		}
		b.Total = b.Total.Add(h.Due)
	}

	out := make([]*AgedBalance, 0, len(byAccount))
	for _, b := range byAccount {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SupplierID < out[j].SupplierID })
	return out, nil
}

// monthsOverdue counts whole months between the due date and asOf.
// Zero or negative means not yet a month overdue.
func monthsOverdue(due, asOf time.Time) int {
	if !asOf.After(due) {
		return 0
	}
	months := (asOf.Year()-due.Year())*12 + int(asOf.Month()) - int(due.Month())
	if asOf.Day() < due.Day() {
		months--
	}
	return months
}
