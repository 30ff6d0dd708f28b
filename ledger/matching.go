/*
matching.go - The matching engine

PURPOSE:
  Validates and applies changes to the set of Matching rows tying one
  header (the subject of a create/edit) to others, and recomputes due and
  paid on both sides so they always reconcile.

FRAMES:
  A matching row stores its value in the matched_by header's frame: the
  amount deducted from the matched_to header's due when the row was made.
  A header may sit on either side of a pre-existing row, so all engine
  arithmetic happens in the SUBJECT's frame via RoleOf/SubjectValue: the
  subject-frame value w contributes +w to the subject's due and -w to the
  other header's due. New rows are always stored with the subject as
  matched_by, so their stored value equals w; a row where the subject is
  matched_to stores -w.

THE INVARIANT:
  For any header H:  H.due == H.total + sum of H's subject-frame match
  values, and H.paid == H.total - H.due. Every row's value must lie
  between zero and the other header's current due (excluding whatever
  this row already allocates), sign-consistent with that due. Rows in
  one submission that point at the same counterparty draw on the same
  headroom, so their combined value is bounded too.

MESSAGES:
  Row and aggregate errors quote amounts in the frame the values were
  entered in, which is the counterparty's user frame.

AGGREGATE RULES:
  total == 0: at least one match row, and the match values must sum to
              exactly zero (a pure settlement transaction).
  total != 0: the resulting due must stay between zero and total; a
              header can never be over-matched.

APPLICATION:
  Removal of a row is a delta of minus its old value. Rows edited to zero
  are deleted, never kept as zero rows. matched_by/matched_to never
  change after creation; only value does.
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// MatchInput is one requested allocation, in the subject's frame. For an
// edit, the full desired set is submitted: existing rows not referenced
// are deleted. MatchID zero means a new row against HeaderID.
type MatchInput struct {
	MatchID  int64
	HeaderID int64
	Value    decimal.Decimal
}

// MatchPlan is a validated, not-yet-applied set of matching changes.
type MatchPlan struct {
	Creates []*Matching
	Updates []*Matching
	Deletes []int64
	Others  []*Header // counterparties with recomputed due/paid
}

type MatchingEngine struct {
	Module ModuleSpec
}

// matchChange pairs one row-level delta with its counterparty.
type matchChange struct {
	other *Header
	wOld  decimal.Decimal
	wNew  decimal.Decimal
}

// Validate checks a proposed set of match operations for the subject
// header and returns the plan to apply. The subject's Due/Paid are set on
// success. All checks run before any write; a ValidationErrors result
// means nothing may be applied.
func (m *MatchingEngine) Validate(ctx context.Context, s Store, subject *Header,
	existing []*Matching, inputs []MatchInput) (*MatchPlan, error) {

	verrs := NewValidationErrors()
	plan := &MatchPlan{}

	existingByID := map[int64]*Matching{}
	for _, row := range existing {
		existingByID[row.ID] = row
	}

	others := map[int64]*Header{}
	loadOther := func(id int64) (*Header, error) {
		if h, ok := others[id]; ok {
			return h, nil
		}
		h, err := s.GetHeader(ctx, id)
		if err != nil {
			return nil, err
		}
		others[id] = h
		return h, nil
	}

	var changes []matchChange
	seen := map[int64]bool{}
	totalMatching := decimal.Zero
	surviving := 0

	// headroom already granted to earlier rows of this submission,
	// keyed by counterparty
	consumed := map[int64]decimal.Decimal{}

	// sign of the frame the values were entered in; zero until the
	// first counterparty is seen, reset to the subject frame when the
	// counterparty types disagree
	entrySign := 0
	noteEntryFrame := func(h *Header) {
		spec, ok := m.Module.Spec(h.Type)
		if !ok {
			return
		}
		if entrySign == 0 {
			entrySign = spec.Sign
		} else if entrySign != spec.Sign {
			entrySign = 1
		}
	}
	entryFrame := func(v decimal.Decimal) decimal.Decimal {
		if entrySign == -1 {
			return v.Neg()
		}
		return v
	}

	for i, in := range inputs {
		var row *Matching
		var other *Header
		var wOld decimal.Decimal

		if in.MatchID != 0 {
			var ok bool
			row, ok = existingByID[in.MatchID]
			if !ok || RoleOf(subject.ID, row) == RoleNone {
				verrs.AddMatch(i, "Could not find the match you are editing.")
				continue
			}
			if seen[in.MatchID] {
				verrs.AddMatch(i, "Cannot submit the same match more than once.")
				continue
			}
			seen[in.MatchID] = true
			otherID := row.MatchedTo
			if RoleOf(subject.ID, row) == RoleMatchedTo {
				otherID = row.MatchedBy
			}
			var err error
			other, err = loadOther(otherID)
			if err != nil {
				return nil, err
			}
			wOld = SubjectValue(subject.ID, row)
		} else {
			if in.HeaderID == subject.ID {
				verrs.AddMatch(i, "Cannot match a transaction to itself.")
				continue
			}
			var err error
			other, err = loadOther(in.HeaderID)
			if IsNotFound(err) {
				verrs.AddMatch(i, "Could not find the transaction you are matching to.")
				continue
			}
			if err != nil {
				return nil, err
			}
			if other.IsVoid() {
				verrs.AddMatch(i, "Cannot match to a void transaction.")
				continue
			}
			if other.Module != subject.Module || other.SupplierID != subject.SupplierID {
				verrs.AddMatch(i, "Cannot match to a transaction on another account.")
				continue
			}
			if in.Value.IsZero() {
				// nothing requested; no row is created
				continue
			}
		}

		noteEntryFrame(other)

		wNew := in.Value
		if !wNew.Equal(wOld) {
			available := other.Due.Sub(consumed[other.ID]).Add(wOld)
			if !withinAllocation(wNew, available) {
				verrs.AddMatch(i, fmt.Sprintf("Value must be between 0 and %s",
					m.Module.UIValue(other.Type, available).String()))
				continue
			}
		}
		consumed[other.ID] = consumed[other.ID].Add(wNew.Sub(wOld))

		totalMatching = totalMatching.Add(wNew)
		if !wNew.IsZero() {
			surviving++
		}
		changes = append(changes, matchChange{other: other, wOld: wOld, wNew: wNew})

		switch {
		case row == nil:
			plan.Creates = append(plan.Creates, &Matching{
				Module:    m.Module.Code,
				MatchedBy: subject.ID,
				MatchedTo: other.ID,
				Value:     wNew,
				Period:    subject.Period,
			})
		case wNew.IsZero():
			plan.Deletes = append(plan.Deletes, row.ID)
		case !wNew.Equal(wOld):
			if RoleOf(subject.ID, row) == RoleMatchedTo {
				row.Value = wNew.Neg()
			} else {
				row.Value = wNew
			}
			plan.Updates = append(plan.Updates, row)
		}
	}

	// rows omitted from the submission are removals: delta is -old value
	for _, row := range existing {
		if seen[row.ID] {
			continue
		}
		otherID := row.MatchedTo
		if RoleOf(subject.ID, row) == RoleMatchedTo {
			otherID = row.MatchedBy
		}
		other, err := loadOther(otherID)
		if err != nil {
			return nil, err
		}
		changes = append(changes, matchChange{other: other, wOld: SubjectValue(subject.ID, row)})
		plan.Deletes = append(plan.Deletes, row.ID)
	}

	if subject.Total.IsZero() {
		if surviving == 0 {
			// a zero-value header that matches nothing is pointless
			verrs.AddNonField("You are trying to enter a zero value transaction without matching to anything.")
		} else if !totalMatching.IsZero() {
			verrs.AddNonField(fmt.Sprintf(
				"You are trying to match a total value of %s. "+
					"Because you are entering a zero value transaction the total amount to match must be zero also.",
				entryFrame(totalMatching).String()))
		}
	} else {
		due := subject.Total.Add(totalMatching)
		if !dueWithinTotal(due, subject.Total) {
			verrs.AddNonField(fmt.Sprintf(
				"Please ensure the total of the transactions you are matching is between 0 and %s",
				entryFrame(subject.Total.Neg()).String()))
		}
	}

	if err := verrs.ErrOrNil(); err != nil {
		return nil, err
	}

	subject.Due = subject.Total.Add(totalMatching)
	subject.Paid = subject.Total.Sub(subject.Due)

	seenOther := map[int64]bool{}
	for _, ch := range changes {
		delta := ch.wNew.Sub(ch.wOld)
		if delta.IsZero() {
			continue
		}
		ch.other.Due = ch.other.Due.Sub(delta)
		ch.other.Paid = ch.other.Total.Sub(ch.other.Due)
		if !seenOther[ch.other.ID] {
			seenOther[ch.other.ID] = true
			plan.Others = append(plan.Others, ch.other)
		}
	}
	return plan, nil
}

// Apply persists a validated plan. The caller persists the subject header
// itself; new rows pick up the subject's id here because on create the
// plan is built before the header exists.
func (m *MatchingEngine) Apply(ctx context.Context, s Store, subject *Header, plan *MatchPlan) error {
	for _, row := range plan.Creates {
		row.MatchedBy = subject.ID
	}
	if len(plan.Creates) > 0 {
		if err := s.CreateMatches(ctx, plan.Creates); err != nil {
			return err
		}
	}
	if len(plan.Updates) > 0 {
		if err := s.UpdateMatches(ctx, plan.Updates); err != nil {
			return err
		}
	}
	if len(plan.Deletes) > 0 {
		if err := s.DeleteMatches(ctx, plan.Deletes); err != nil {
			return err
		}
	}
	if len(plan.Others) > 0 {
		if err := s.UpdateHeaders(ctx, plan.Others); err != nil {
			return err
		}
	}
	return nil
}

// withinAllocation checks a subject-frame value against the counterparty
// headroom: between zero and the headroom inclusive, matching its sign.
// The wrong sign is always rejected.
func withinAllocation(w, available decimal.Decimal) bool {
	switch {
	case available.IsPositive():
		return !w.IsNegative() && w.LessThanOrEqual(available)
	case available.IsNegative():
		return !w.IsPositive() && w.GreaterThanOrEqual(available)
	default:
		return w.IsZero()
	}
}

// dueWithinTotal checks the resulting due stays between zero and total.
func dueWithinTotal(due, total decimal.Decimal) bool {
	if total.IsPositive() {
		return !due.IsNegative() && due.LessThanOrEqual(total)
	}
	return !due.IsPositive() && due.GreaterThanOrEqual(total)
}
