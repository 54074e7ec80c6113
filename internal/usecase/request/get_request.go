package request

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/common"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Viewer описывает, кто запрашивает заявку.
type Viewer struct {
	UserID       uuid.UUID
	TechnicianID *uuid.UUID
	Staff        bool
}

type GetRequestOutput struct {
	Request *entity.Request
	Quote   *entity.Quote
}

type GetRequestUseCase struct {
	repos repository.Repositories
}

func NewGetRequestUseCase(repos repository.Repositories) *GetRequestUseCase {
	return &GetRequestUseCase{repos: repos}
}

// Execute возвращает заявку клиенту, назначенному мастеру или сотруднику.
// Остальным заявка не видна.
func (uc *GetRequestUseCase) Execute(ctx context.Context, viewer Viewer, requestID uuid.UUID) (*GetRequestOutput, error) {
	req, err := uc.repos.Requests().FindByID(ctx, requestID)
	if err != nil {
		return nil, common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
	}
	if !canView(viewer, req) {
		return nil, apperror.ErrRequestNotFound
	}
	out := &GetRequestOutput{Request: req}
	quote, err := uc.repos.Quotes().FindByRequestID(ctx, requestID)
	switch {
	case err == nil:
		out.Quote = quote
	case !common.IsNotFound(err):
		return nil, common.StoreError(err, nil, "не удалось получить смету")
	}
	return out, nil
}

func canView(viewer Viewer, req *entity.Request) bool {
	if viewer.Staff || req.IsOwnedBy(viewer.UserID) {
		return true
	}
	if viewer.TechnicianID == nil {
		return false
	}
	if req.IsAssignedTo(*viewer.TechnicianID) {
		return true
	}
	released := req.ReleasedTechnicianID
	return released != nil && *released == *viewer.TechnicianID
}

type ListClientRequestsOutput struct {
	Requests []*entity.Request
	Total    int
	Limit    int
	Offset   int
}

type ListClientRequestsUseCase struct {
	repos repository.Repositories
}

func NewListClientRequestsUseCase(repos repository.Repositories) *ListClientRequestsUseCase {
	return &ListClientRequestsUseCase{repos: repos}
}

func (uc *ListClientRequestsUseCase) Execute(ctx context.Context, clientID uuid.UUID, limit, offset int) (*ListClientRequestsOutput, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := uc.repos.Requests().FindByClientID(ctx, clientID, limit, offset)
	if err != nil {
		return nil, common.StoreError(err, nil, "не удалось получить заявки")
	}
	return &ListClientRequestsOutput{Requests: items, Total: total, Limit: limit, Offset: offset}, nil
}

// activeJobStatuses — статусы, в которых заявка закреплена за мастером.
var activeJobStatuses = []valueobject.RequestStatus{
	valueobject.RequestStatusAccepted,
	valueobject.RequestStatusEnRoute,
	valueobject.RequestStatusInProgress,
	valueobject.RequestStatusQuoteRevision,
	valueobject.RequestStatusCompleted,
}

type ListTechnicianJobsUseCase struct {
	repos repository.Repositories
}

func NewListTechnicianJobsUseCase(repos repository.Repositories) *ListTechnicianJobsUseCase {
	return &ListTechnicianJobsUseCase{repos: repos}
}

// Execute возвращает текущие заказы мастера. includeClosed добавляет оплаченные заявки.
func (uc *ListTechnicianJobsUseCase) Execute(ctx context.Context, technicianID uuid.UUID, includeClosed bool) ([]*entity.Request, error) {
	statuses := activeJobStatuses
	if includeClosed {
		statuses = append(append([]valueobject.RequestStatus(nil), activeJobStatuses...), valueobject.RequestStatusPaid)
	}
	jobs, err := uc.repos.Requests().FindByTechnicianID(ctx, technicianID, statuses)
	if err != nil {
		return nil, common.StoreError(err, nil, "не удалось получить заказы мастера")
	}
	return jobs, nil
}
