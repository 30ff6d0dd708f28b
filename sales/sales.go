// Package sales defines the sales ledger, the credit-side mirror of the
// purchase ledger. Money customers owe the business accumulates as
// positive stored values on the customer account, while its nominal
// postings run through the credit-role factor so an invoice credits the
// income nominals and debits the control. Supplier fields on shared
// ledger types hold the customer for this module.
package sales

import (
	"github.com/warp/purchase-ledger/ledger"
)

// Transaction types for the sales ledger.
const (
	TypeInvoice   ledger.TransactionType = "si"
	TypeCredit    ledger.TransactionType = "sc"
	TypeReceipt   ledger.TransactionType = "sp"
	TypeRefund    ledger.TransactionType = "sr"
	TypeBFInvoice ledger.TransactionType = "sbi"
	TypeBFCredit  ledger.TransactionType = "sbc"
	TypeBFReceipt ledger.TransactionType = "sbp"
	TypeBFRefund  ledger.TransactionType = "sbr"
)

const ModuleCode = "SL"

var Spec = ledger.ModuleSpec{
	Code:        ModuleCode,
	Name:        "Sales Ledger",
	Role:        ledger.RoleCredit,
	ControlName: "Sales Ledger Control",
	VatType:     ledger.VatOutput,
	Types: map[ledger.TransactionType]ledger.TypeSpec{
		TypeInvoice: {Code: TypeInvoice, Name: "Invoice", Sign: 1, RequiresLines: true},
		TypeCredit:  {Code: TypeCredit, Name: "Credit Note", Sign: -1, RequiresLines: true},
		TypeReceipt: {Code: TypeReceipt, Name: "Receipt", Sign: -1, Payment: true},
		TypeRefund:  {Code: TypeRefund, Name: "Refund", Sign: 1, Payment: true},
		TypeBFInvoice: {Code: TypeBFInvoice, Name: "Brought Forward Invoice",
			Sign: 1, RequiresLines: true, BroughtForward: true},
		TypeBFCredit: {Code: TypeBFCredit, Name: "Brought Forward Credit Note",
			Sign: -1, RequiresLines: true, BroughtForward: true},
		TypeBFReceipt: {Code: TypeBFReceipt, Name: "Brought Forward Receipt",
			Sign: -1, BroughtForward: true},
		TypeBFRefund: {Code: TypeBFRefund, Name: "Brought Forward Refund",
			Sign: 1, BroughtForward: true},
	},
}

func init() {
	ledger.RegisterModule(Spec)
}

// NewEngine returns a lifecycle engine bound to the sales ledger.
func NewEngine(s ledger.TxStore, accounts ledger.SystemAccounts) *ledger.Engine {
	return ledger.NewEngine(Spec, s, accounts)
}
