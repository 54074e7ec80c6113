// Package memory реализует транзакционное хранилище в памяти.
// Используется в тестах и при STORE_DRIVER=memory для локальной разработки.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
)

type state struct {
	requests         map[uuid.UUID]*entity.Request
	referenceCodes   map[string]uuid.UUID
	quotes           map[uuid.UUID]*entity.Quote
	payments         map[uuid.UUID]*entity.Payment
	paymentByRequest map[uuid.UUID]uuid.UUID
	technicians      map[uuid.UUID]*entity.Technician
	technicianByUser map[uuid.UUID]uuid.UUID
	technicianSeq    int
	rounds           map[uuid.UUID][]*entity.DispatchRound
	audit            []*entity.AuditEntry
}

func newState() *state {
	return &state{
		requests:         make(map[uuid.UUID]*entity.Request),
		referenceCodes:   make(map[string]uuid.UUID),
		quotes:           make(map[uuid.UUID]*entity.Quote),
		payments:         make(map[uuid.UUID]*entity.Payment),
		paymentByRequest: make(map[uuid.UUID]uuid.UUID),
		technicians:      make(map[uuid.UUID]*entity.Technician),
		technicianByUser: make(map[uuid.UUID]uuid.UUID),
		rounds:           make(map[uuid.UUID][]*entity.DispatchRound),
	}
}

// clone копирует индексы. Значения не изменяются на месте, поэтому указатели можно разделять.
func (s *state) clone() *state {
	cp := &state{
		requests:         copyMap(s.requests),
		referenceCodes:   copyMap(s.referenceCodes),
		quotes:           copyMap(s.quotes),
		payments:         copyMap(s.payments),
		paymentByRequest: copyMap(s.paymentByRequest),
		technicians:      copyMap(s.technicians),
		technicianByUser: copyMap(s.technicianByUser),
		technicianSeq:    s.technicianSeq,
		rounds:           make(map[uuid.UUID][]*entity.DispatchRound, len(s.rounds)),
		audit:            append([]*entity.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.rounds {
		cp.rounds[k] = append([]*entity.DispatchRound(nil), v...)
	}
	return cp
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store — хранилище в памяти. Транзакции выполняются по одной: копия состояния,
// изменения в копии, подмена при успехе.
type Store struct {
	mu sync.RWMutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(view{store: s, tx: draft}); err != nil {
		return err
	}
	s.st = draft
	return nil
}

func (s *Store) Requests() repository.RequestRepository       { return requestRepo{view{store: s}} }
func (s *Store) Quotes() repository.QuoteRepository           { return quoteRepo{view{store: s}} }
func (s *Store) Payments() repository.PaymentRepository       { return paymentRepo{view{store: s}} }
func (s *Store) Technicians() repository.TechnicianRepository { return technicianRepo{view{store: s}} }
func (s *Store) Dispatch() repository.DispatchRepository      { return dispatchRepo{view{store: s}} }
func (s *Store) Audit() repository.AuditRepository            { return auditRepo{view{store: s}} }

// view — доступ к состоянию: внутри транзакции к черновику, вне её к текущему состоянию под мьютексом.
type view struct {
	store *Store
	tx    *state
}

func (v view) Requests() repository.RequestRepository       { return requestRepo{v} }
func (v view) Quotes() repository.QuoteRepository           { return quoteRepo{v} }
func (v view) Payments() repository.PaymentRepository       { return paymentRepo{v} }
func (v view) Technicians() repository.TechnicianRepository { return technicianRepo{v} }
func (v view) Dispatch() repository.DispatchRepository      { return dispatchRepo{v} }
func (v view) Audit() repository.AuditRepository            { return auditRepo{v} }

func (v view) read(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.st)
}

func (v view) write(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

var (
	_ repository.Store        = (*Store)(nil)
	_ repository.Repositories = view{}
)
