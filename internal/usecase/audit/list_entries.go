package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type ListEntriesInput struct {
	EntityType string
	EntityID   *uuid.UUID
	Limit      int
	Offset     int
}

type ListEntriesOutput struct {
	Entries []*entity.AuditEntry
	Total   int
	Limit   int
	Offset  int
}

// ListEntriesUseCase — постраничное чтение журнала аудита.
type ListEntriesUseCase struct {
	auditRepo repository.AuditRepository
}

func NewListEntriesUseCase(auditRepo repository.AuditRepository) *ListEntriesUseCase {
	return &ListEntriesUseCase{auditRepo: auditRepo}
}

func (uc *ListEntriesUseCase) Execute(ctx context.Context, input ListEntriesInput) (*ListEntriesOutput, error) {
	filter := repository.AuditFilter{
		EntityID: input.EntityID,
		Limit:    input.Limit,
		Offset:   input.Offset,
	}
	if input.EntityType != "" {
		t := entity.AuditEntityType(input.EntityType)
		switch t {
		case entity.AuditEntityRequest, entity.AuditEntityQuote, entity.AuditEntityPayment, entity.AuditEntityTechnician:
		default:
			return nil, apperror.Validation("entity_type", "неизвестный тип сущности")
		}
		filter.EntityType = &t
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	entries, total, err := uc.auditRepo.List(ctx, filter)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось прочитать журнал аудита")
	}
	return &ListEntriesOutput{Entries: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
