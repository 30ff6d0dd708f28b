/*
matching_test.go - Matching engine tests

Exercises Validate/Apply directly against the in-memory store with
hand-built headers: allocation headroom, aggregate due rules, the
zero-value settlement rules, guard failures, and edits from both sides
of a stored row.
*/
package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/warp/purchase-ledger/ledger"
	"github.com/warp/purchase-ledger/ledger/store"
	"github.com/warp/purchase-ledger/purchase"
)

// =============================================================================
// ALLOCATION
// =============================================================================

func TestMatchPaymentAcrossInvoices(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoices := make([]*ledger.Header, 24)
	var inputs []ledger.MatchInput
	for i := range invoices {
		invoices[i] = seedMatchHeader(t, s, purchase.TypeInvoice, 1, "100")
		inputs = append(inputs, ledger.MatchInput{HeaderID: invoices[i].ID, Value: dec("100")})
	}
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "2400")

	plan, err := m.Validate(ctx, s, payment, nil, inputs)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(plan.Creates) != 24 || len(plan.Updates) != 0 || len(plan.Deletes) != 0 {
		t.Fatalf("plan: %d creates, %d updates, %d deletes", len(plan.Creates), len(plan.Updates), len(plan.Deletes))
	}
	if !payment.Due.IsZero() || !payment.Paid.Equal(dec("-2400")) {
		t.Errorf("payment after validate: due %s paid %s", payment.Due, payment.Paid)
	}

	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, inv := range invoices {
		got, err := s.GetHeader(ctx, inv.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Due.IsZero() || !got.Paid.Equal(dec("100")) {
			t.Errorf("invoice %d: due %s paid %s, want 0 and 100", inv.ID, got.Due, got.Paid)
		}
	}
	rows, err := s.MatchesForHeader(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 24 {
		t.Fatalf("expected 24 match rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.MatchedBy != payment.ID {
			t.Errorf("new rows must be stored with the subject as matched_by")
		}
		if !row.Value.Equal(dec("100")) {
			t.Errorf("row value = %s, want 100", row.Value)
		}
	}
}

func TestMatchRowOverAllocation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "100")
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "150")

	_, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("150")},
	})
	assertMatchError(t, err, 0, "Value must be between 0 and 100")

	// the wrong sign is rejected with the same headroom message
	_, err = m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("-50")},
	})
	assertMatchError(t, err, 0, "Value must be between 0 and 100")
}

func TestMatchAggregateOverTotal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "120")
	pay1 := seedMatchHeader(t, s, purchase.TypePayment, 1, "100")
	pay2 := seedMatchHeader(t, s, purchase.TypePayment, 1, "100")

	// each allocation is within its counterparty's headroom but together
	// they push the invoice past fully paid; the bound reads in the
	// frame the values were entered in, here the payments' frame
	_, err := m.Validate(ctx, s, invoice, nil, []ledger.MatchInput{
		{HeaderID: pay1.ID, Value: dec("-100")},
		{HeaderID: pay2.ID, Value: dec("-100")},
	})
	assertNonFieldError(t, err,
		"Please ensure the total of the transactions you are matching is between 0 and 120")
}

func TestRowsAgainstSameHeaderShareHeadroom(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "100")
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "200")

	// two rows of 100 against one invoice with due 100: each is within
	// the invoice's due on its own, together they over-allocate it
	_, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("100")},
		{HeaderID: invoice.ID, Value: dec("100")},
	})
	assertMatchError(t, err, 1, "Value must be between 0 and 0")

	got, err := s.GetHeader(ctx, invoice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Due.Equal(dec("100")) {
		t.Errorf("invoice due after rejected validate = %s, want 100", got.Due)
	}

	// a split that stays within the shared headroom is fine
	plan, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("60")},
		{HeaderID: invoice.ID, Value: dec("40")},
	})
	if err != nil {
		t.Fatalf("validate split: %v", err)
	}
	if len(plan.Creates) != 2 {
		t.Fatalf("expected 2 creates, got %d", len(plan.Creates))
	}
	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err = s.GetHeader(ctx, invoice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Due.IsZero() || !got.Paid.Equal(dec("100")) {
		t.Errorf("invoice after split: due %s paid %s, want 0 and 100", got.Due, got.Paid)
	}
	if !payment.Due.Equal(dec("-100")) {
		t.Errorf("payment due after split = %s, want -100", payment.Due)
	}
}

// =============================================================================
// ZERO-VALUE TRANSACTIONS
// =============================================================================

func TestZeroValueMustMatchSomething(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "0")
	_, err := m.Validate(ctx, s, payment, nil, nil)
	assertNonFieldError(t, err,
		"You are trying to enter a zero value transaction without matching to anything.")
}

func TestZeroValueMustBalance(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "100")
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "0")

	_, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("100")},
	})
	assertNonFieldError(t, err,
		"You are trying to match a total value of 100. "+
			"Because you are entering a zero value transaction the total amount to match must be zero also.")
}

func TestZeroValueSettlement(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "100")
	credit := seedMatchHeader(t, s, purchase.TypeCredit, 1, "100")
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "0")

	plan, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("100")},
		{HeaderID: credit.ID, Value: dec("-100")},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, id := range []int64{invoice.ID, credit.ID} {
		got, err := s.GetHeader(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Due.IsZero() {
			t.Errorf("header %d: due %s after settlement, want 0", id, got.Due)
		}
	}
	if !payment.Due.IsZero() {
		t.Errorf("settlement subject: due %s, want 0", payment.Due)
	}
}

// =============================================================================
// GUARDS
// =============================================================================

func TestMatchGuards(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	other := seedMatchHeader(t, s, purchase.TypeInvoice, 2, "120")
	void := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "120")
	void.Status = ledger.StatusVoid
	if err := s.UpdateHeader(ctx, void); err != nil {
		t.Fatal(err)
	}
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "120")

	cases := []struct {
		name  string
		input ledger.MatchInput
		want  string
	}{
		{"self", ledger.MatchInput{HeaderID: payment.ID, Value: dec("120")},
			"Cannot match a transaction to itself."},
		{"void", ledger.MatchInput{HeaderID: void.ID, Value: dec("120")},
			"Cannot match to a void transaction."},
		{"other account", ledger.MatchInput{HeaderID: other.ID, Value: dec("120")},
			"Cannot match to a transaction on another account."},
		{"missing header", ledger.MatchInput{HeaderID: 9999, Value: dec("120")},
			"Could not find the transaction you are matching to."},
		{"unknown match id", ledger.MatchInput{MatchID: 9999, Value: dec("120")},
			"Could not find the match you are editing."},
	}
	for _, c := range cases {
		_, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{c.input})
		assertMatchError(t, err, 0, c.want)
	}
}

// =============================================================================
// EDITS
// =============================================================================

func TestEditMatchValue(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "120")
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "120")

	plan, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("70")},
	})
	if err != nil {
		t.Fatalf("first validate: %v", err)
	}
	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := s.UpdateHeader(ctx, payment); err != nil {
		t.Fatal(err)
	}

	// raise the allocation to the full amount; the headroom calculation
	// must exclude what this row already allocates
	rows, err := s.MatchesForHeader(ctx, payment.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d (%v)", len(rows), err)
	}
	payment, err = s.GetHeader(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	plan, err = m.Validate(ctx, s, payment, rows, []ledger.MatchInput{
		{MatchID: rows[0].ID, Value: dec("120")},
	})
	if err != nil {
		t.Fatalf("edit validate: %v", err)
	}
	if len(plan.Updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(plan.Updates))
	}
	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatalf("edit apply: %v", err)
	}

	inv, err := s.GetHeader(ctx, invoice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !inv.Due.IsZero() || !payment.Due.IsZero() {
		t.Errorf("after edit: invoice due %s, payment due %s, want 0 and 0", inv.Due, payment.Due)
	}
}

func TestEditMatchFromMatchedToSide(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "120")
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "120")

	plan, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("70")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateHeader(ctx, payment); err != nil {
		t.Fatal(err)
	}

	// now edit from the invoice side, where the row reads negated
	invoice, err = s.GetHeader(ctx, invoice.ID)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := s.MatchesForHeader(ctx, invoice.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d (%v)", len(rows), err)
	}
	if got := ledger.SubjectValue(invoice.ID, rows[0]); !got.Equal(dec("-70")) {
		t.Fatalf("subject value from matched_to side = %s, want -70", got)
	}

	plan, err = m.Validate(ctx, s, invoice, rows, []ledger.MatchInput{
		{MatchID: rows[0].ID, Value: dec("-120")},
	})
	if err != nil {
		t.Fatalf("validate from matched_to side: %v", err)
	}
	if err := m.Apply(ctx, s, invoice, plan); err != nil {
		t.Fatal(err)
	}

	// the stored row keeps the matched_by frame
	rows, err = s.MatchesForHeader(ctx, invoice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !rows[0].Value.Equal(dec("120")) {
		t.Errorf("stored row value = %s, want 120", rows[0].Value)
	}
	pay, err := s.GetHeader(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !invoice.Due.IsZero() || !pay.Due.IsZero() {
		t.Errorf("after edit: invoice due %s, payment due %s, want 0 and 0", invoice.Due, pay.Due)
	}
}

func TestRepeatedMatchReferenceRejected(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "120")
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "120")

	plan, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("70")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateHeader(ctx, payment); err != nil {
		t.Fatal(err)
	}

	// the same stored row submitted twice would apply its delta twice
	payment, err = s.GetHeader(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := s.MatchesForHeader(ctx, payment.ID)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d (%v)", len(rows), err)
	}
	_, err = m.Validate(ctx, s, payment, rows, []ledger.MatchInput{
		{MatchID: rows[0].ID, Value: dec("30")},
		{MatchID: rows[0].ID, Value: dec("40")},
	})
	assertMatchError(t, err, 1, "Cannot submit the same match more than once.")
}

func TestOmittedMatchRowsAreRemoved(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := ledger.MatchingEngine{Module: purchase.Spec}

	invoice := seedMatchHeader(t, s, purchase.TypeInvoice, 1, "120")
	payment := seedMatchHeader(t, s, purchase.TypePayment, 1, "120")

	plan, err := m.Validate(ctx, s, payment, nil, []ledger.MatchInput{
		{HeaderID: invoice.ID, Value: dec("120")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateHeader(ctx, payment); err != nil {
		t.Fatal(err)
	}

	// resubmit with no matches: the row goes and both sides reopen
	payment, err = s.GetHeader(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := s.MatchesForHeader(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	plan, err = m.Validate(ctx, s, payment, rows, nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(plan.Deletes) != 1 {
		t.Fatalf("expected 1 delete, got %d", len(plan.Deletes))
	}
	if err := m.Apply(ctx, s, payment, plan); err != nil {
		t.Fatal(err)
	}

	inv, err := s.GetHeader(ctx, invoice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !inv.Due.Equal(dec("120")) || !payment.Due.Equal(dec("-120")) {
		t.Errorf("after removal: invoice due %s, payment due %s", inv.Due, payment.Due)
	}
	rows, err = s.MatchesForHeader(ctx, payment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows after removal, got %d", len(rows))
	}
}

// =============================================================================
// TEST HELPERS
// =============================================================================

var matchSeq int

// seedMatchHeader inserts a cleared, unmatched header directly. The total
// is given in the user's frame and stored normalized.
func seedMatchHeader(t *testing.T, s ledger.Store, typ ledger.TransactionType, supplierID int64, total string) *ledger.Header {
	t.Helper()
	matchSeq++
	stored := purchase.Spec.Normalize(typ, dec(total))
	h := &ledger.Header{
		Module:     purchase.ModuleCode,
		Type:       typ,
		SupplierID: supplierID,
		Ref:        fmt.Sprintf("M-%d", matchSeq),
		Date:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Period:     "202608",
		Status:     ledger.StatusCleared,
		Goods:      stored,
		Vat:        dec("0"),
		Total:      stored,
		Paid:       dec("0"),
		Due:        stored,
		Created:    time.Now().UTC(),
	}
	if err := s.CreateHeader(context.Background(), h); err != nil {
		t.Fatalf("seed header: %v", err)
	}
	return h
}

func assertMatchError(t *testing.T, err error, row int, want string) {
	t.Helper()
	var verrs *ledger.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	msgs := verrs.Matches[row]
	if len(msgs) == 0 || msgs[0] != want {
		t.Errorf("match row %d: got %q, want %q", row, msgs, want)
	}
}

func assertNonFieldError(t *testing.T, err error, want string) {
	t.Helper()
	var verrs *ledger.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if len(verrs.NonField) == 0 || verrs.NonField[0] != want {
		t.Errorf("non-field errors: got %q, want %q", verrs.NonField, want)
	}
}
