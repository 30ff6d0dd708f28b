/*
handlers.go - HTTP API handlers for the ledger

PURPOSE:
  Exposes the ledger engines via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the lifecycle engines.

ENDPOINTS (per module, mounted at /api/purchases and /api/sales):
    GET    /                 List transactions (supplier_id, period,
                             status, outstanding, settled filters)
    POST   /                 Create transaction
    GET    /{id}             Get transaction with lines and matches
    PUT    /{id}             Edit transaction
    POST   /{id}/void        Void transaction
    GET    /candidates       Outstanding transactions to match against
    GET    /aged             Aged balances per account

  Reference data:
    GET/POST /api/suppliers
    GET/POST /api/nominals
    GET/POST /api/vat-codes
    GET/POST /api/cash-books
    GET      /api/cash-books/{id}/entries   Cash book enquiry

ERROR HANDLING:
  - 400: Validation errors, with field/line/match detail
  - 404: Unknown transaction or reference row
  - 409: State conflicts (void, type change, unbalanced void)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/purchase-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   ledger.TxStore
	Engines []*ledger.Engine
}

// NewHandler creates a handler over a store and the module engines to
// expose.
func NewHandler(store ledger.TxStore, engines ...*ledger.Engine) *Handler {
	return &Handler{Store: store, Engines: engines}
}

// moduleHandler binds the per-module endpoints to one engine.
type moduleHandler struct {
	h      *Handler
	engine *ledger.Engine
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

func (mh *moduleHandler) list(w http.ResponseWriter, r *http.Request) {
	f := ledger.HeaderFilter{
		SupplierID:  queryInt64(r, "supplier_id"),
		Period:      ledger.Period(r.URL.Query().Get("period")),
		Status:      ledger.Status(r.URL.Query().Get("status")),
		Outstanding: r.URL.Query().Get("outstanding") == "true",
		Settled:     r.URL.Query().Get("settled") == "true",
	}
	hs, err := mh.engine.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(hs))
	for _, h := range hs {
		dtos = append(dtos, toTransactionDTO(mh.engine.Module, h))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (mh *moduleHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := mh.engine.Get(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dto, err := mh.toDetail(r, tx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (mh *moduleHandler) create(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	in, err := toInput(r.Context(), mh.h.Store, mh.engine.Module, &req)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h, err := mh.engine.Create(r.Context(), in)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(mh.engine.Module, h))
}

func (mh *moduleHandler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	in, err := toInput(r.Context(), mh.h.Store, mh.engine.Module, &req)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h, err := mh.engine.Edit(r.Context(), id, in)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(mh.engine.Module, h))
}

func (mh *moduleHandler) void(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h, err := mh.engine.Void(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(mh.engine.Module, h))
}

func (mh *moduleHandler) candidates(w http.ResponseWriter, r *http.Request) {
	supplierID := queryInt64(r, "supplier_id")
	if supplierID == 0 {
		writeError(w, http.StatusBadRequest, "supplier_id is required", nil)
		return
	}
	hs, err := mh.engine.MatchCandidates(r.Context(), supplierID, queryInt64(r, "exclude"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list candidates", err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(hs))
	for _, h := range hs {
		dtos = append(dtos, toTransactionDTO(mh.engine.Module, h))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (mh *moduleHandler) aged(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date", err)
			return
		}
		asOf = t
	}
	balances, err := ledger.AgedBalances(r.Context(), mh.h.Store, mh.engine.Module.Code, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to age balances", err)
		return
	}
	dtos := make([]AgedBalanceDTO, 0, len(balances))
	for _, b := range balances {
		dtos = append(dtos, AgedBalanceDTO{
			SupplierID: b.SupplierID,
			Current:    b.Current.String(),
			OneMonth:   b.OneMonth.String(),
			TwoMonths:  b.TwoMonths.String(),
			Older:      b.Older.String(),
			Total:      b.Total.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (mh *moduleHandler) toDetail(r *http.Request, tx *ledger.Transaction) (*TransactionDetailDTO, error) {
	dto := &TransactionDetailDTO{
		TransactionDTO: toTransactionDTO(mh.engine.Module, tx.Header),
		Lines:          make([]LineDTO, 0, len(tx.Lines)),
		Matches:        make([]MatchDTO, 0, len(tx.Matches)),
	}
	for _, l := range tx.Lines {
		dto.Lines = append(dto.Lines, toLineDTO(mh.engine.Module, tx.Header, l))
	}
	for _, row := range tx.Matches {
		md, err := toMatchDTO(r.Context(), mh.h.Store, mh.engine.Module, tx.Header, row)
		if err != nil {
			return nil, err
		}
		dto.Matches = append(dto.Matches, md)
	}
	return dto, nil
}

// =============================================================================
// REFERENCE DATA ENDPOINTS
// =============================================================================

func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.Store.ListSuppliers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list suppliers", err)
		return
	}
	dtos := make([]SupplierDTO, 0, len(suppliers))
	for _, s := range suppliers {
		dtos = append(dtos, SupplierDTO{ID: s.ID, Code: s.Code, Name: s.Name})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Code == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "code and name are required", nil)
		return
	}
	s := &ledger.Supplier{Code: req.Code, Name: req.Name}
	if err := h.Store.CreateSupplier(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create supplier", err)
		return
	}
	writeJSON(w, http.StatusCreated, SupplierDTO{ID: s.ID, Code: s.Code, Name: s.Name})
}

func (h *Handler) ListNominals(w http.ResponseWriter, r *http.Request) {
	nominals, err := h.Store.ListNominals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list nominals", err)
		return
	}
	dtos := make([]NominalDTO, 0, len(nominals))
	for _, n := range nominals {
		dtos = append(dtos, NominalDTO{ID: n.ID, Name: n.Name})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateNominal(w http.ResponseWriter, r *http.Request) {
	var req CreateNominalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	n := &ledger.Nominal{Name: req.Name}
	if err := h.Store.CreateNominal(r.Context(), n); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create nominal", err)
		return
	}
	writeJSON(w, http.StatusCreated, NominalDTO{ID: n.ID, Name: n.Name})
}

func (h *Handler) ListVatCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.Store.ListVatCodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list vat codes", err)
		return
	}
	dtos := make([]VatCodeDTO, 0, len(codes))
	for _, v := range codes {
		dtos = append(dtos, VatCodeDTO{
			ID: v.ID, Code: v.Code, Name: v.Name,
			Rate: v.Rate.String(), Registered: v.Registered,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateVatCode(w http.ResponseWriter, r *http.Request) {
	var req CreateVatCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rate", err)
		return
	}
	v := &ledger.VatCode{Code: req.Code, Name: req.Name, Rate: rate, Registered: req.Registered}
	if err := h.Store.CreateVatCode(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create vat code", err)
		return
	}
	writeJSON(w, http.StatusCreated, VatCodeDTO{
		ID: v.ID, Code: v.Code, Name: v.Name,
		Rate: v.Rate.String(), Registered: v.Registered,
	})
}

func (h *Handler) ListCashBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.Store.ListCashBooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list cash books", err)
		return
	}
	dtos := make([]CashBookDTO, 0, len(books))
	for _, cb := range books {
		dtos = append(dtos, CashBookDTO{ID: cb.ID, Name: cb.Name, NominalID: cb.NominalID})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCashBook(w http.ResponseWriter, r *http.Request) {
	var req CreateCashBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" || req.NominalID == 0 {
		writeError(w, http.StatusBadRequest, "name and nominal_id are required", nil)
		return
	}
	cb := &ledger.CashBook{Name: req.Name, NominalID: req.NominalID}
	if err := h.Store.CreateCashBook(r.Context(), cb); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create cash book", err)
		return
	}
	writeJSON(w, http.StatusCreated, CashBookDTO{ID: cb.ID, Name: cb.Name, NominalID: cb.NominalID})
}

// CashBookEntries is the cash book enquiry: every entry posted into one
// cash book, any module.
func (h *Handler) CashBookEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := h.Store.GetCashBook(r.Context(), id); err != nil {
		writeLedgerError(w, err)
		return
	}
	entries, err := h.Store.CashBookEntries(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list entries", err)
		return
	}
	dtos := make([]CashBookEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, CashBookEntryDTO{
			ID:       e.ID,
			Module:   e.Module,
			HeaderID: e.Header,
			Type:     string(e.Type),
			Ref:      e.Ref,
			Date:     e.Date.Format(dateLayout),
			Period:   string(e.Period),
			Value:    e.Value.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id", err)
		return 0, false
	}
	return id, true
}

func queryInt64(r *http.Request, key string) int64 {
	n, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Error = message + ": " + err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps ledger errors onto HTTP statuses. Validation
// failures keep their per-field structure.
func writeLedgerError(w http.ResponseWriter, err error) {
	var verrs *ledger.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:    "validation failed",
			Fields:   verrs.Header,
			Lines:    verrs.Lines,
			Matches:  verrs.Matches,
			NonField: verrs.NonField,
		})
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", nil)
	case ledger.IsStateError(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
