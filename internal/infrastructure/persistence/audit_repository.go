package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/models"
)

type auditRepository struct {
	q sqlx.ExtContext
}

func (r auditRepository) Append(ctx context.Context, e *entity.AuditEntry) error {
	row := models.AuditEntry{
		ID:         e.ID,
		Action:     string(e.Action),
		EntityType: string(e.EntityType),
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		OldValue:   models.JSON(e.OldValue),
		NewValue:   models.JSON(e.NewValue),
		CreatedAt:  e.CreatedAt,
	}
	query := `
		INSERT INTO audit_log (id, action, entity_type, entity_id, actor_id, old_value, new_value, created_at)
		VALUES (:id, :action, :entity_type, :entity_id, :actor_id, :old_value, :new_value, :created_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, row); err != nil {
		return mapWriteError(fmt.Errorf("audit repository: append: %w", err))
	}
	return nil
}

// List возвращает записи от новых к старым.
func (r auditRepository) List(ctx context.Context, filter repository.AuditFilter) ([]*entity.AuditEntry, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.EntityType != nil {
		args = append(args, string(*filter.EntityType))
		conds = append(conds, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		conds = append(conds, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, "SELECT COUNT(*) FROM audit_log"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("audit repository: count: %w", err)
	}

	query := "SELECT * FROM audit_log" + where + " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	var rows []models.AuditEntry
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("audit repository: list: %w", err)
	}
	out := make([]*entity.AuditEntry, 0, len(rows))
	for i := range rows {
		out = append(out, auditFromRow(&rows[i]))
	}
	return out, total, nil
}
