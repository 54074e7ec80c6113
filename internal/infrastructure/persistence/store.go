// Package persistence реализует хранилище маркетплейса поверх PostgreSQL.
package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/repository/common"
)

// Store выполняет запросы через пул соединений, а WithinTx — в одной транзакции.
type Store struct {
	db *sqlx.DB
	repositories
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, repositories: repositories{q: db}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	return common.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(repositories{q: tx})
	})
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type repositories struct {
	q sqlx.ExtContext
}

func (r repositories) Requests() repository.RequestRepository       { return requestRepository{q: r.q} }
func (r repositories) Quotes() repository.QuoteRepository           { return quoteRepository{q: r.q} }
func (r repositories) Payments() repository.PaymentRepository       { return paymentRepository{q: r.q} }
func (r repositories) Technicians() repository.TechnicianRepository { return technicianRepository{q: r.q} }
func (r repositories) Dispatch() repository.DispatchRepository      { return dispatchRepository{q: r.q} }
func (r repositories) Audit() repository.AuditRepository            { return auditRepository{q: r.q} }

// execOne выполняет запрос, который должен затронуть ровно одну строку.
func execOne(ctx context.Context, q sqlx.ExtContext, query string, arg interface{}) error {
	res, err := sqlx.NamedExecContext(ctx, q, query, arg)
	if err != nil {
		return mapWriteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	if common.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", repository.ErrAlreadyExists, err)
	}
	return err
}
