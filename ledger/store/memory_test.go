package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/purchase-ledger/ledger"
	"github.com/warp/purchase-ledger/ledger/store"
)

func TestWithTxCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		return tx.CreateHeader(ctx, memHeader("A"))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	hs, err := s.ListHeaders(ctx, ledger.HeaderFilter{Module: "PL"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != 1 {
		t.Fatalf("expected 1 header after commit, got %d", len(hs))
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.CreateHeader(ctx, memHeader("A")); err != nil {
			return err
		}
		if err := tx.CreateLines(ctx, []*ledger.Line{{HeaderID: 1, LineNo: 1, Goods: decimal.NewFromInt(10)}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error back, got %v", err)
	}

	hs, err := s.ListHeaders(ctx, ledger.HeaderFilter{Module: "PL"})
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != 0 {
		t.Errorf("headers must roll back, found %d", len(hs))
	}
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	h := memHeader("A")
	if err := s.CreateHeader(ctx, h); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Ref = "mutated"
	got.Due = decimal.NewFromInt(999)

	again, err := s.GetHeader(ctx, h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Ref != "A" {
		t.Errorf("stored header mutated through a read copy: ref %q", again.Ref)
	}
	if !again.Due.Equal(decimal.NewFromInt(120)) {
		t.Errorf("stored header mutated through a read copy: due %s", again.Due)
	}
}

func TestHeaderFilter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	paid := memHeader("PAID")
	paid.Due = decimal.Zero
	open := memHeader("OPEN")
	other := memHeader("OTHER")
	other.SupplierID = 2
	void := memHeader("VOID")
	void.Status = ledger.StatusVoid
	for _, h := range []*ledger.Header{paid, open, other, void} {
		if err := s.CreateHeader(ctx, h); err != nil {
			t.Fatal(err)
		}
	}

	hs, err := s.ListHeaders(ctx, ledger.HeaderFilter{Module: "PL", SupplierID: 1, Outstanding: true, Status: ledger.StatusCleared})
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != 1 || hs[0].Ref != "OPEN" {
		t.Errorf("filter: got %d headers", len(hs))
	}

	// the paid enquiry group: cleared with nothing left due
	hs, err = s.ListHeaders(ctx, ledger.HeaderFilter{Module: "PL", Settled: true, Status: ledger.StatusCleared})
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != 1 || hs[0].Ref != "PAID" {
		t.Errorf("settled filter: got %d headers", len(hs))
	}
}

func TestNotFoundErrors(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	if _, err := s.GetHeader(ctx, 42); !ledger.IsNotFound(err) {
		t.Errorf("GetHeader: want not-found, got %v", err)
	}
	if _, err := s.GetSupplier(ctx, 42); !ledger.IsNotFound(err) {
		t.Errorf("GetSupplier: want not-found, got %v", err)
	}
	if _, err := s.GetCashBook(ctx, 42); !ledger.IsNotFound(err) {
		t.Errorf("GetCashBook: want not-found, got %v", err)
	}
	if _, err := s.CashBookEntryForHeader(ctx, "PL", 42); !ledger.IsNotFound(err) {
		t.Errorf("CashBookEntryForHeader: want not-found, got %v", err)
	}
	if _, err := s.NominalByName(ctx, "nope"); !ledger.IsNotFound(err) {
		t.Errorf("NominalByName: want not-found, got %v", err)
	}
}

func memHeader(ref string) *ledger.Header {
	total := decimal.NewFromInt(120)
	return &ledger.Header{
		Module:     "PL",
		Type:       "pi",
		SupplierID: 1,
		Ref:        ref,
		Date:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Period:     "202608",
		Status:     ledger.StatusCleared,
		Total:      total,
		Due:        total,
		Created:    time.Now().UTC(),
	}
}
