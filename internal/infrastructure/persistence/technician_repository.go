package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/models"
	"github.com/ignatzorin/prontocasa-backend/internal/repository/common"
)

type technicianRepository struct {
	q sqlx.ExtContext
}

func (r technicianRepository) Create(ctx context.Context, tech *entity.Technician) error {
	row, err := toTechnicianRow(tech)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO technicians (
			id, user_id, code, display_name, specializations, rating, completed_jobs, hourly_rate,
			latitude, longitude, availability_schedule, is_available_now, is_accepting_jobs,
			is_verified, is_active, verified_at, verified_by, created_at, updated_at
		) VALUES (
			:id, :user_id, :code, :display_name, :specializations, :rating, :completed_jobs, :hourly_rate,
			:latitude, :longitude, :availability_schedule, :is_available_now, :is_accepting_jobs,
			:is_verified, :is_active, :verified_at, :verified_by, :created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, row); err != nil {
		return mapWriteError(fmt.Errorf("technician repository: create: %w", err))
	}
	return nil
}

func (r technicianRepository) Update(ctx context.Context, tech *entity.Technician) error {
	row, err := toTechnicianRow(tech)
	if err != nil {
		return err
	}
	query := `
		UPDATE technicians SET
			display_name = :display_name,
			specializations = :specializations,
			rating = :rating,
			completed_jobs = :completed_jobs,
			hourly_rate = :hourly_rate,
			latitude = :latitude,
			longitude = :longitude,
			availability_schedule = :availability_schedule,
			is_available_now = :is_available_now,
			is_accepting_jobs = :is_accepting_jobs,
			is_verified = :is_verified,
			is_active = :is_active,
			verified_at = :verified_at,
			verified_by = :verified_by,
			updated_at = :updated_at
		WHERE id = :id
	`
	return execOne(ctx, r.q, query, row)
}

func (r technicianRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Technician, error) {
	row, err := common.GetByID[models.Technician](ctx, r.q, "technicians", id, repository.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return technicianFromRow(row)
}

func (r technicianRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.Technician, error) {
	row, err := common.GetByField[models.Technician](ctx, r.q, "technicians", "user_id", userID, repository.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return technicianFromRow(row)
}

func (r technicianRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Technician, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Technician
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT * FROM technicians WHERE id = ANY($1::uuid[])`, pq.Array(uuidStrings(ids))); err != nil {
		return nil, fmt.Errorf("technician repository: find by ids: %w", err)
	}
	return techniciansFromRows(rows)
}

// ListEligible возвращает мастеров в порядке ранжирования: рейтинг, число работ, код.
func (r technicianRepository) ListEligible(ctx context.Context, filter repository.TechnicianFilter) ([]*entity.Technician, error) {
	query := `SELECT * FROM technicians WHERE NOT (id = ANY($1::uuid[]))`
	args := []interface{}{pq.Array(uuidStrings(filter.Exclude))}
	if filter.OnlyEligible {
		query += ` AND is_active AND is_verified AND is_available_now AND is_accepting_jobs`
	}
	if filter.Match != repository.AnySpecialization {
		args = append(args, string(filter.Category))
		hasSpecialization := fmt.Sprintf(
			`EXISTS (SELECT 1 FROM unnest(specializations) s WHERE lower(trim(s)) = lower($%d))`, len(args))
		if filter.Match == repository.WithSpecialization {
			query += ` AND ` + hasSpecialization
		} else {
			query += ` AND NOT ` + hasSpecialization
		}
	}
	query += ` ORDER BY rating DESC, completed_jobs DESC, code`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var rows []models.Technician
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("technician repository: list eligible: %w", err)
	}
	return techniciansFromRows(rows)
}

func (r technicianRepository) NextCode(ctx context.Context) (string, error) {
	var seq int64
	if err := sqlx.GetContext(ctx, r.q, &seq, `SELECT nextval('technician_code_seq')`); err != nil {
		return "", fmt.Errorf("technician repository: next code: %w", err)
	}
	return fmt.Sprintf("TECH-%06d", seq), nil
}

func techniciansFromRows(rows []models.Technician) ([]*entity.Technician, error) {
	out := make([]*entity.Technician, 0, len(rows))
	for i := range rows {
		t, err := technicianFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
