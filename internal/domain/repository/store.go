package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error
	Update(ctx context.Context, req *entity.Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Request, error)
	// FindForUpdate блокирует строку до конца транзакции.
	FindForUpdate(ctx context.Context, id uuid.UUID) (*entity.Request, error)
	FindByClientID(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*entity.Request, int, error)
	FindByTechnicianID(ctx context.Context, technicianID uuid.UUID, statuses []valueobject.RequestStatus) ([]*entity.Request, error)
	// FindStale возвращает заявки в статусе status, не менявшиеся с updatedBefore, начиная с самых старых.
	FindStale(ctx context.Context, status valueobject.RequestStatus, updatedBefore time.Time, limit int) ([]*entity.Request, error)
	// AssignTechnician атомарно назначает мастера, только если заявка всё ещё в DISPATCHING без мастера.
	// Возвращает false, если условие не выполнено.
	AssignTechnician(ctx context.Context, id, technicianID uuid.UUID, acceptedAt, estimatedArrival time.Time) (bool, error)
}

type QuoteRepository interface {
	Create(ctx context.Context, quote *entity.Quote) error
	Update(ctx context.Context, quote *entity.Quote) error
	FindByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Quote, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
	FindByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Payment, error)
	// ClaimOperation закрепляет операцию процессора за вызывающим, только если платёж в статусе status
	// и другая операция не выполняется. Возвращает false, если условие не выполнено.
	ClaimOperation(ctx context.Context, id uuid.UUID, status valueobject.PaymentStatus, op string, at time.Time) (bool, error)
}

// SpecializationMatch задаёт отбор мастеров по специализации относительно категории заявки.
type SpecializationMatch int

const (
	AnySpecialization SpecializationMatch = iota
	WithSpecialization
	WithoutSpecialization
)

type TechnicianFilter struct {
	OnlyEligible bool
	Exclude      []uuid.UUID
	Category     valueobject.Category
	Match        SpecializationMatch
	Limit        int
}

type TechnicianRepository interface {
	Create(ctx context.Context, tech *entity.Technician) error
	Update(ctx context.Context, tech *entity.Technician) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Technician, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Technician, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Technician, error)
	// ListEligible возвращает мастеров по фильтру, упорядоченных по рейтингу и числу выполненных работ.
	ListEligible(ctx context.Context, filter TechnicianFilter) ([]*entity.Technician, error)
	NextCode(ctx context.Context) (string, error)
}

type DispatchRepository interface {
	CreateRound(ctx context.Context, round *entity.DispatchRound) error
	UpdateRound(ctx context.Context, round *entity.DispatchRound) error
	LatestRound(ctx context.Context, requestID uuid.UUID) (*entity.DispatchRound, error)
	ListRounds(ctx context.Context, requestID uuid.UUID) ([]*entity.DispatchRound, error)
	HasOffer(ctx context.Context, requestID, technicianID uuid.UUID) (bool, error)
	// PendingForTechnician возвращает заявки в DISPATCHING, предложенные мастеру, в порядке предложения.
	PendingForTechnician(ctx context.Context, technicianID uuid.UUID, limit int) ([]*entity.Request, error)
	// ExpiredRounds возвращает открытые последние раунды заявок в DISPATCHING, у которых истекло окно.
	ExpiredRounds(ctx context.Context, now time.Time, limit int) ([]*entity.DispatchRound, error)
}

type AuditFilter struct {
	EntityType *entity.AuditEntityType
	EntityID   *uuid.UUID
	Limit      int
	Offset     int
}

type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*entity.AuditEntry, int, error)
}

type Repositories interface {
	Requests() RequestRepository
	Quotes() QuoteRepository
	Payments() PaymentRepository
	Technicians() TechnicianRepository
	Dispatch() DispatchRepository
	Audit() AuditRepository
}

// Store — транзакционное хранилище. Изменения внутри fn фиксируются целиком или не фиксируются вовсе.
type Store interface {
	Repositories
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
}
