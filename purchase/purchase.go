// Package purchase defines the purchase ledger: the module spec, its
// transaction types and their signs, wired onto the generic ledger engine.
//
// The purchase ledger sits on the debit side of the nominal ledger. Money
// the business owes suppliers accumulates as positive stored values, so
// invoices and refunds carry sign +1 and credit notes and payments carry
// sign -1. Brought forward types mirror the ordinary ones but never post
// to the nominal, cash book or VAT ledgers; they exist to carry opening
// balances in from a previous system.
package purchase

import (
	"github.com/warp/purchase-ledger/ledger"
)

// Transaction types for the purchase ledger.
const (
	TypeInvoice   ledger.TransactionType = "pi"
	TypeCredit    ledger.TransactionType = "pc"
	TypePayment   ledger.TransactionType = "pp"
	TypeRefund    ledger.TransactionType = "pr"
	TypeBFInvoice ledger.TransactionType = "pbi"
	TypeBFCredit  ledger.TransactionType = "pbc"
	TypeBFPayment ledger.TransactionType = "pbp"
	TypeBFRefund  ledger.TransactionType = "pbr"
)

// ModuleCode identifies purchase ledger records across the shared
// nominal, cash book, VAT and matching tables.
const ModuleCode = "PL"

// Spec is the full purchase ledger module definition.
var Spec = ledger.ModuleSpec{
	Code:        ModuleCode,
	Name:        "Purchase Ledger",
	Role:        ledger.RoleDebit,
	ControlName: "Purchase Ledger Control",
	VatType:     ledger.VatInput,
	Types: map[ledger.TransactionType]ledger.TypeSpec{
		TypeInvoice: {Code: TypeInvoice, Name: "Invoice", Sign: 1, RequiresLines: true},
		TypeCredit:  {Code: TypeCredit, Name: "Credit Note", Sign: -1, RequiresLines: true},
		TypePayment: {Code: TypePayment, Name: "Payment", Sign: -1, Payment: true},
		TypeRefund:  {Code: TypeRefund, Name: "Refund", Sign: 1, Payment: true},
		TypeBFInvoice: {Code: TypeBFInvoice, Name: "Brought Forward Invoice",
			Sign: 1, RequiresLines: true, BroughtForward: true},
		TypeBFCredit: {Code: TypeBFCredit, Name: "Brought Forward Credit Note",
			Sign: -1, RequiresLines: true, BroughtForward: true},
		TypeBFPayment: {Code: TypeBFPayment, Name: "Brought Forward Payment",
			Sign: -1, BroughtForward: true},
		TypeBFRefund: {Code: TypeBFRefund, Name: "Brought Forward Refund",
			Sign: 1, BroughtForward: true},
	},
}

func init() {
	ledger.RegisterModule(Spec)
}

// NewEngine returns a lifecycle engine bound to the purchase ledger.
func NewEngine(s ledger.TxStore, accounts ledger.SystemAccounts) *ledger.Engine {
	return ledger.NewEngine(Spec, s, accounts)
}
