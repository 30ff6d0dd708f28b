// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/purchase-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu  sync.RWMutex
	seq int64

	headers         map[int64]*ledger.Header
	lines           map[int64]*ledger.Line
	nominalEntries  map[int64]*ledger.NominalEntry
	cashBookEntries map[int64]*ledger.CashBookEntry
	vatEntries      map[int64]*ledger.VatEntry
	matches         map[int64]*ledger.Matching
	suppliers       map[int64]*ledger.Supplier
	nominals        map[int64]*ledger.Nominal
	vatCodes        map[int64]*ledger.VatCode
	cashBooks       map[int64]*ledger.CashBook
}

func NewMemory() *Memory {
	return &Memory{
		headers:         make(map[int64]*ledger.Header),
		lines:           make(map[int64]*ledger.Line),
		nominalEntries:  make(map[int64]*ledger.NominalEntry),
		cashBookEntries: make(map[int64]*ledger.CashBookEntry),
		vatEntries:      make(map[int64]*ledger.VatEntry),
		matches:         make(map[int64]*ledger.Matching),
		suppliers:       make(map[int64]*ledger.Supplier),
		nominals:        make(map[int64]*ledger.Nominal),
		vatCodes:        make(map[int64]*ledger.VatCode),
		cashBooks:       make(map[int64]*ledger.CashBook),
	}
}

func (m *Memory) next() int64 {
	m.seq++
	return m.seq
}

// Rows go in and come out as copies so callers can mutate freely and
// nothing leaks into the store outside an explicit Create/Update.

func copyHeader(h *ledger.Header) *ledger.Header    { c := *h; return &c }
func copyLine(l *ledger.Line) *ledger.Line          { c := *l; return &c }
func copyNominal(e *ledger.NominalEntry) *ledger.NominalEntry {
	c := *e
	return &c
}
func copyCashBookEntry(e *ledger.CashBookEntry) *ledger.CashBookEntry {
	c := *e
	return &c
}
func copyVatEntry(e *ledger.VatEntry) *ledger.VatEntry { c := *e; return &c }
func copyMatch(mt *ledger.Matching) *ledger.Matching   { c := *mt; return &c }

// ===== HEADERS =====

func (m *Memory) CreateHeader(_ context.Context, h *ledger.Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = m.next()
	m.headers[h.ID] = copyHeader(h)
	return nil
}

func (m *Memory) UpdateHeader(_ context.Context, h *ledger.Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.headers[h.ID]; !ok {
		return ledger.ErrHeaderNotFound
	}
	m.headers[h.ID] = copyHeader(h)
	return nil
}

func (m *Memory) UpdateHeaders(ctx context.Context, hs []*ledger.Header) error {
	for _, h := range hs {
		if err := m.UpdateHeader(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) GetHeader(_ context.Context, id int64) (*ledger.Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.headers[id]
	if !ok {
		return nil, ledger.ErrHeaderNotFound
	}
	return copyHeader(h), nil
}

func (m *Memory) ListHeaders(_ context.Context, f ledger.HeaderFilter) ([]*ledger.Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.Header
	for _, h := range m.headers {
		if f.Module != "" && h.Module != f.Module {
			continue
		}
		if f.SupplierID != 0 && h.SupplierID != f.SupplierID {
			continue
		}
		if f.Period != "" && h.Period != f.Period {
			continue
		}
		if f.Status != "" && h.Status != f.Status {
			continue
		}
		if f.Outstanding && h.Due.IsZero() {
			continue
		}
		if f.Settled && !h.Due.IsZero() {
			continue
		}
		out = append(out, copyHeader(h))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== LINES =====

func (m *Memory) CreateLines(_ context.Context, ls []*ledger.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range ls {
		l.ID = m.next()
		m.lines[l.ID] = copyLine(l)
	}
	return nil
}

func (m *Memory) UpdateLines(_ context.Context, ls []*ledger.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range ls {
		if _, ok := m.lines[l.ID]; !ok {
			return ledger.ErrNotFound
		}
		m.lines[l.ID] = copyLine(l)
	}
	return nil
}

func (m *Memory) DeleteLines(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.lines, id)
	}
	return nil
}

func (m *Memory) LinesForHeader(_ context.Context, headerID int64) ([]*ledger.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.Line
	for _, l := range m.lines {
		if l.HeaderID == headerID {
			out = append(out, copyLine(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineNo < out[j].LineNo })
	return out, nil
}

// ===== NOMINAL POSTINGS =====

func (m *Memory) CreateNominalEntries(_ context.Context, es []*ledger.NominalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		e.ID = m.next()
		m.nominalEntries[e.ID] = copyNominal(e)
	}
	return nil
}

func (m *Memory) UpdateNominalEntries(_ context.Context, es []*ledger.NominalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		if _, ok := m.nominalEntries[e.ID]; !ok {
			return ledger.ErrNotFound
		}
		m.nominalEntries[e.ID] = copyNominal(e)
	}
	return nil
}

func (m *Memory) DeleteNominalEntries(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.nominalEntries, id)
	}
	return nil
}

func (m *Memory) NominalEntriesForHeader(_ context.Context, module string, headerID int64) ([]*ledger.NominalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.NominalEntry
	for _, e := range m.nominalEntries {
		if e.Module == module && e.Header == headerID {
			out = append(out, copyNominal(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== CASH BOOK =====

func (m *Memory) CreateCashBookEntry(_ context.Context, e *ledger.CashBookEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.next()
	m.cashBookEntries[e.ID] = copyCashBookEntry(e)
	return nil
}

func (m *Memory) UpdateCashBookEntry(_ context.Context, e *ledger.CashBookEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cashBookEntries[e.ID]; !ok {
		return ledger.ErrNotFound
	}
	m.cashBookEntries[e.ID] = copyCashBookEntry(e)
	return nil
}

func (m *Memory) DeleteCashBookEntry(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cashBookEntries, id)
	return nil
}

func (m *Memory) CashBookEntryForHeader(_ context.Context, module string, headerID int64) (*ledger.CashBookEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.cashBookEntries {
		if e.Module == module && e.Header == headerID {
			return copyCashBookEntry(e), nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *Memory) CashBookEntries(_ context.Context, cashBookID int64) ([]*ledger.CashBookEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.CashBookEntry
	for _, e := range m.cashBookEntries {
		if e.CashBookID == cashBookID {
			out = append(out, copyCashBookEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== VAT =====

func (m *Memory) CreateVatEntries(_ context.Context, es []*ledger.VatEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		e.ID = m.next()
		m.vatEntries[e.ID] = copyVatEntry(e)
	}
	return nil
}

func (m *Memory) UpdateVatEntries(_ context.Context, es []*ledger.VatEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		if _, ok := m.vatEntries[e.ID]; !ok {
			return ledger.ErrNotFound
		}
		m.vatEntries[e.ID] = copyVatEntry(e)
	}
	return nil
}

func (m *Memory) DeleteVatEntries(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.vatEntries, id)
	}
	return nil
}

func (m *Memory) VatEntriesForHeader(_ context.Context, module string, headerID int64) ([]*ledger.VatEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.VatEntry
	for _, e := range m.vatEntries {
		if e.Module == module && e.Header == headerID {
			out = append(out, copyVatEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== MATCHING =====

func (m *Memory) CreateMatches(_ context.Context, ms []*ledger.Matching) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mt := range ms {
		mt.ID = m.next()
		m.matches[mt.ID] = copyMatch(mt)
	}
	return nil
}

func (m *Memory) UpdateMatches(_ context.Context, ms []*ledger.Matching) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mt := range ms {
		if _, ok := m.matches[mt.ID]; !ok {
			return ledger.ErrNotFound
		}
		m.matches[mt.ID] = copyMatch(mt)
	}
	return nil
}

func (m *Memory) DeleteMatches(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.matches, id)
	}
	return nil
}

func (m *Memory) MatchesForHeader(_ context.Context, headerID int64) ([]*ledger.Matching, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.Matching
	for _, mt := range m.matches {
		if mt.MatchedBy == headerID || mt.MatchedTo == headerID {
			out = append(out, copyMatch(mt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== REFERENCE DATA =====

func (m *Memory) CreateSupplier(_ context.Context, s *ledger.Supplier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.next()
	c := *s
	m.suppliers[s.ID] = &c
	return nil
}

func (m *Memory) GetSupplier(_ context.Context, id int64) (*ledger.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.suppliers[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *Memory) ListSuppliers(_ context.Context) ([]*ledger.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.Supplier
	for _, s := range m.suppliers {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateNominal(_ context.Context, n *ledger.Nominal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = m.next()
	c := *n
	m.nominals[n.ID] = &c
	return nil
}

func (m *Memory) GetNominal(_ context.Context, id int64) (*ledger.Nominal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nominals[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	c := *n
	return &c, nil
}

func (m *Memory) NominalByName(_ context.Context, name string) (*ledger.Nominal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.nominals {
		if n.Name == name {
			c := *n
			return &c, nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (m *Memory) ListNominals(_ context.Context) ([]*ledger.Nominal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.Nominal
	for _, n := range m.nominals {
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateVatCode(_ context.Context, v *ledger.VatCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = m.next()
	c := *v
	m.vatCodes[v.ID] = &c
	return nil
}

func (m *Memory) GetVatCode(_ context.Context, id int64) (*ledger.VatCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vatCodes[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	c := *v
	return &c, nil
}

func (m *Memory) ListVatCodes(_ context.Context) ([]*ledger.VatCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.VatCode
	for _, v := range m.vatCodes {
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateCashBook(_ context.Context, cb *ledger.CashBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb.ID = m.next()
	c := *cb
	m.cashBooks[cb.ID] = &c
	return nil
}

func (m *Memory) GetCashBook(_ context.Context, id int64) (*ledger.CashBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cb, ok := m.cashBooks[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	c := *cb
	return &c, nil
}

func (m *Memory) ListCashBooks(_ context.Context) ([]*ledger.CashBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.CashBook
	for _, cb := range m.cashBooks {
		c := *cb
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot
// and rollback on error. Transactions are serialized.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snap := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	seq             int64
	headers         map[int64]*ledger.Header
	lines           map[int64]*ledger.Line
	nominalEntries  map[int64]*ledger.NominalEntry
	cashBookEntries map[int64]*ledger.CashBookEntry
	vatEntries      map[int64]*ledger.VatEntry
	matches         map[int64]*ledger.Matching
}

// Reference data is not snapshotted. The engine never mutates it inside
// a transaction.
func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	s := memorySnapshot{
		seq:             tm.seq,
		headers:         make(map[int64]*ledger.Header, len(tm.headers)),
		lines:           make(map[int64]*ledger.Line, len(tm.lines)),
		nominalEntries:  make(map[int64]*ledger.NominalEntry, len(tm.nominalEntries)),
		cashBookEntries: make(map[int64]*ledger.CashBookEntry, len(tm.cashBookEntries)),
		vatEntries:      make(map[int64]*ledger.VatEntry, len(tm.vatEntries)),
		matches:         make(map[int64]*ledger.Matching, len(tm.matches)),
	}
	for id, h := range tm.headers {
		s.headers[id] = copyHeader(h)
	}
	for id, l := range tm.lines {
		s.lines[id] = copyLine(l)
	}
	for id, e := range tm.nominalEntries {
		s.nominalEntries[id] = copyNominal(e)
	}
	for id, e := range tm.cashBookEntries {
		s.cashBookEntries[id] = copyCashBookEntry(e)
	}
	for id, e := range tm.vatEntries {
		s.vatEntries[id] = copyVatEntry(e)
	}
	for id, mt := range tm.matches {
		s.matches[id] = copyMatch(mt)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.seq = s.seq
	tm.headers = s.headers
	tm.lines = s.lines
	tm.nominalEntries = s.nominalEntries
	tm.cashBookEntries = s.cashBookEntries
	tm.vatEntries = s.vatEntries
	tm.matches = s.matches
}

// Compile-time checks.
var (
	_ ledger.Store   = (*Memory)(nil)
	_ ledger.TxStore = (*TxMemory)(nil)
)
