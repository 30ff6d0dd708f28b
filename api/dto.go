/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

FRAMES:
  Every amount crossing the API is in the user's frame: an invoice for
  120 and a credit note for 120 both arrive and leave as "120". The
  conversion to and from the stored frame happens here, against the
  transaction's type. Match values are entered in the counterparty's
  user frame and converted to the subject frame the matching engine
  expects.

AMOUNTS:
  Amounts travel as JSON strings ("120.00"), never floats, and are
  parsed with shopspring/decimal.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/engine.go: TransactionInput, the validated form of these
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/purchase-ledger/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// TransactionRequest is the request body for creating or editing a
// transaction. Type is fixed after creation; sending a different one on
// edit is rejected.
type TransactionRequest struct {
	Type       string         `json:"type"`
	SupplierID int64          `json:"supplier_id"`
	CashBookID int64          `json:"cash_book_id,omitempty"`
	Ref        string         `json:"ref"`
	Date       string         `json:"date"`
	DueDate    *string        `json:"due_date,omitempty"`
	Period     string         `json:"period"`
	Total      string         `json:"total"`
	Lines      []LineRequest  `json:"lines,omitempty"`
	Matches    []MatchRequest `json:"matches,omitempty"`
}

// LineRequest is one analysis line. A zero line_id means a new line.
type LineRequest struct {
	LineID      int64  `json:"line_id,omitempty"`
	Description string `json:"description"`
	Goods       string `json:"goods"`
	Vat         string `json:"vat"`
	NominalID   int64  `json:"nominal_id,omitempty"`
	VatCodeID   int64  `json:"vat_code_id,omitempty"`
}

// MatchRequest allocates value against another transaction on the same
// account. header_id names the counterparty and is required on every
// row; value is in the counterparty's user frame.
type MatchRequest struct {
	MatchID  int64  `json:"match_id,omitempty"`
	HeaderID int64  `json:"header_id"`
	Value    string `json:"value"`
}

type CreateSupplierRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type CreateNominalRequest struct {
	Name string `json:"name"`
}

type CreateVatCodeRequest struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Rate       string `json:"rate"`
	Registered bool   `json:"registered"`
}

type CreateCashBookRequest struct {
	Name      string `json:"name"`
	NominalID int64  `json:"nominal_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// TransactionDTO is a header in API responses, amounts in user frame.
type TransactionDTO struct {
	ID         int64   `json:"id"`
	Module     string  `json:"module"`
	Type       string  `json:"type"`
	TypeName   string  `json:"type_name"`
	SupplierID int64   `json:"supplier_id"`
	CashBookID int64   `json:"cash_book_id,omitempty"`
	Ref        string  `json:"ref"`
	Date       string  `json:"date"`
	DueDate    *string `json:"due_date,omitempty"`
	Period     string  `json:"period"`
	Status     string  `json:"status"`
	Goods      string  `json:"goods"`
	Vat        string  `json:"vat"`
	Total      string  `json:"total"`
	Paid       string  `json:"paid"`
	Due        string  `json:"due"`
	Created    string  `json:"created,omitempty"`
}

type LineDTO struct {
	ID          int64  `json:"id"`
	LineNo      int    `json:"line_no"`
	Description string `json:"description"`
	Goods       string `json:"goods"`
	Vat         string `json:"vat"`
	NominalID   int64  `json:"nominal_id,omitempty"`
	VatCodeID   int64  `json:"vat_code_id,omitempty"`
}

// MatchDTO reports one matching row from the requested header's side.
type MatchDTO struct {
	ID       int64  `json:"id"`
	HeaderID int64  `json:"header_id"`
	Value    string `json:"value"`
}

// TransactionDetailDTO is the full view of one transaction.
type TransactionDetailDTO struct {
	TransactionDTO
	Lines   []LineDTO  `json:"lines"`
	Matches []MatchDTO `json:"matches"`
}

type SupplierDTO struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type NominalDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type VatCodeDTO struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Rate       string `json:"rate"`
	Registered bool   `json:"registered"`
}

type CashBookDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	NominalID int64  `json:"nominal_id"`
}

// CashBookEntryDTO is one row of a cash book enquiry. Value keeps the
// stored sign: money out of the bank is negative.
type CashBookEntryDTO struct {
	ID       int64  `json:"id"`
	Module   string `json:"module"`
	HeaderID int64  `json:"header_id"`
	Type     string `json:"type"`
	Ref      string `json:"ref"`
	Date     string `json:"date"`
	Period   string `json:"period"`
	Value    string `json:"value"`
}

type AgedBalanceDTO struct {
	SupplierID int64  `json:"supplier_id"`
	Current    string `json:"current"`
	OneMonth   string `json:"one_month"`
	TwoMonths  string `json:"two_months"`
	Older      string `json:"older"`
	Total      string `json:"total"`
}

// ErrorResponse carries an error to the client. Validation failures
// populate the structured maps; everything else uses Error alone.
type ErrorResponse struct {
	Error    string              `json:"error"`
	Fields   map[string][]string `json:"fields,omitempty"`
	Lines    map[int][]string    `json:"lines,omitempty"`
	Matches  map[int][]string    `json:"matches,omitempty"`
	NonField []string            `json:"non_field,omitempty"`
}

// =============================================================================
// CONVERSION
// =============================================================================

// toInput converts a request into the engine's input form. Line and
// total amounts stay user-frame (the engine normalizes them); match
// values convert from the counterparty's user frame into the subject
// frame using the counterparty's type.
func toInput(ctx context.Context, s ledger.Store, m ledger.ModuleSpec, req *TransactionRequest) (ledger.TransactionInput, error) {
	verrs := ledger.NewValidationErrors()
	in := ledger.TransactionInput{
		Type:       ledger.TransactionType(req.Type),
		SupplierID: req.SupplierID,
		CashBookID: req.CashBookID,
		Ref:        req.Ref,
		Period:     ledger.Period(req.Period),
	}

	var err error
	if req.Date != "" {
		if in.Date, err = time.Parse(dateLayout, req.Date); err != nil {
			verrs.AddField("date", "Enter a valid date.")
		}
	}
	if req.DueDate != nil {
		t, err := time.Parse(dateLayout, *req.DueDate)
		if err != nil {
			verrs.AddField("due_date", "Enter a valid date.")
		} else {
			in.DueDate = &t
		}
	}
	if in.Total, err = parseAmount(req.Total); err != nil {
		verrs.AddField("total", "Enter a number.")
	}

	for i, lr := range req.Lines {
		li := ledger.LineInput{
			LineID:      lr.LineID,
			Description: lr.Description,
			NominalID:   lr.NominalID,
			VatCodeID:   lr.VatCodeID,
		}
		if li.Goods, err = parseAmount(lr.Goods); err != nil {
			verrs.AddLine(i, "Enter a number.")
		}
		if li.Vat, err = parseAmount(lr.Vat); err != nil {
			verrs.AddLine(i, "Enter a number.")
		}
		in.Lines = append(in.Lines, li)
	}

	for i, mr := range req.Matches {
		value, err := parseAmount(mr.Value)
		if err != nil {
			verrs.AddMatch(i, "Enter a number.")
			continue
		}
		other, err := s.GetHeader(ctx, mr.HeaderID)
		if ledger.IsNotFound(err) {
			verrs.AddMatch(i, "Could not find the transaction you are matching to.")
			continue
		}
		if err != nil {
			return in, err
		}
		in.Matches = append(in.Matches, ledger.MatchInput{
			MatchID:  mr.MatchID,
			HeaderID: mr.HeaderID,
			Value:    m.Normalize(other.Type, value),
		})
	}
	return in, verrs.ErrOrNil()
}

// parseAmount parses a decimal string; empty means zero.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func toTransactionDTO(m ledger.ModuleSpec, h *ledger.Header) TransactionDTO {
	spec, _ := m.Spec(h.Type)
	dto := TransactionDTO{
		ID:         h.ID,
		Module:     h.Module,
		Type:       string(h.Type),
		TypeName:   spec.Name,
		SupplierID: h.SupplierID,
		CashBookID: h.CashBookID,
		Ref:        h.Ref,
		Date:       h.Date.Format(dateLayout),
		Period:     string(h.Period),
		Status:     string(h.Status),
		Goods:      m.UIValue(h.Type, h.Goods).String(),
		Vat:        m.UIValue(h.Type, h.Vat).String(),
		Total:      m.UIValue(h.Type, h.Total).String(),
		Paid:       m.UIValue(h.Type, h.Paid).String(),
		Due:        m.UIValue(h.Type, h.Due).String(),
		Created:    h.Created.Format(time.RFC3339),
	}
	if h.DueDate != nil {
		d := h.DueDate.Format(dateLayout)
		dto.DueDate = &d
	}
	return dto
}

func toLineDTO(m ledger.ModuleSpec, h *ledger.Header, l *ledger.Line) LineDTO {
	return LineDTO{
		ID:          l.ID,
		LineNo:      l.LineNo,
		Description: l.Description,
		Goods:       m.UIValue(h.Type, l.Goods).String(),
		Vat:         m.UIValue(h.Type, l.Vat).String(),
		NominalID:   l.NominalID,
		VatCodeID:   l.VatCodeID,
	}
}

// toMatchDTO expresses a matching row from the subject header's side,
// with the value converted into the counterparty's user frame (the
// inverse of the request conversion).
func toMatchDTO(ctx context.Context, s ledger.Store, m ledger.ModuleSpec, subject *ledger.Header, row *ledger.Matching) (MatchDTO, error) {
	otherID := row.MatchedTo
	if ledger.RoleOf(subject.ID, row) == ledger.RoleMatchedTo {
		otherID = row.MatchedBy
	}
	other, err := s.GetHeader(ctx, otherID)
	if err != nil {
		return MatchDTO{}, fmt.Errorf("match %d counterparty: %w", row.ID, err)
	}
	w := ledger.SubjectValue(subject.ID, row)
	return MatchDTO{
		ID:       row.ID,
		HeaderID: otherID,
		Value:    m.UIValue(other.Type, w).String(),
	}, nil
}
