package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/models"
	"github.com/ignatzorin/prontocasa-backend/internal/repository/common"
)

type requestRepository struct {
	q sqlx.ExtContext
}

func (r requestRepository) Create(ctx context.Context, req *entity.Request) error {
	row, err := toRequestRow(req)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO requests (
			id, reference_code, client_id, technician_id, released_technician_id, status, category,
			title, description, guided_answers, media_urls, latitude, longitude, address, address_details,
			severity, ai_confidence, diagnosis, is_urgent, preferred_time, estimated_arrival,
			completion_photos, signature_path, signature_checksum, complaint_deadline, has_complaint,
			complaint_notes, cancellation_reason, created_at, updated_at, accepted_at, started_at,
			completed_at, cancelled_at
		) VALUES (
			:id, :reference_code, :client_id, :technician_id, :released_technician_id, :status, :category,
			:title, :description, :guided_answers, :media_urls, :latitude, :longitude, :address, :address_details,
			:severity, :ai_confidence, :diagnosis, :is_urgent, :preferred_time, :estimated_arrival,
			:completion_photos, :signature_path, :signature_checksum, :complaint_deadline, :has_complaint,
			:complaint_notes, :cancellation_reason, :created_at, :updated_at, :accepted_at, :started_at,
			:completed_at, :cancelled_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, row); err != nil {
		return mapWriteError(fmt.Errorf("request repository: create: %w", err))
	}
	return nil
}

func (r requestRepository) Update(ctx context.Context, req *entity.Request) error {
	row, err := toRequestRow(req)
	if err != nil {
		return err
	}
	query := `
		UPDATE requests SET
			technician_id = :technician_id,
			released_technician_id = :released_technician_id,
			status = :status,
			severity = :severity,
			ai_confidence = :ai_confidence,
			diagnosis = :diagnosis,
			is_urgent = :is_urgent,
			estimated_arrival = :estimated_arrival,
			completion_photos = :completion_photos,
			signature_path = :signature_path,
			signature_checksum = :signature_checksum,
			complaint_deadline = :complaint_deadline,
			has_complaint = :has_complaint,
			complaint_notes = :complaint_notes,
			cancellation_reason = :cancellation_reason,
			updated_at = :updated_at,
			accepted_at = :accepted_at,
			started_at = :started_at,
			completed_at = :completed_at,
			cancelled_at = :cancelled_at
		WHERE id = :id
	`
	return execOne(ctx, r.q, query, row)
}

func (r requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Request, error) {
	row, err := common.GetByID[models.Request](ctx, r.q, "requests", id, repository.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return requestFromRow(row)
}

func (r requestRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*entity.Request, error) {
	var row models.Request
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT * FROM requests WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("request repository: find for update: %w", err)
	}
	return requestFromRow(&row)
}

func (r requestRepository) FindByClientID(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*entity.Request, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM requests WHERE client_id = $1`, clientID); err != nil {
		return nil, 0, fmt.Errorf("request repository: count by client: %w", err)
	}
	var rows []models.Request
	query := `
		SELECT * FROM requests
		WHERE client_id = $1
		ORDER BY created_at DESC, reference_code
		LIMIT $2 OFFSET $3
	`
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, clientID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("request repository: list by client: %w", err)
	}
	out, err := requestsFromRows(rows)
	return out, total, err
}

func (r requestRepository) FindByTechnicianID(ctx context.Context, technicianID uuid.UUID, statuses []valueobject.RequestStatus) ([]*entity.Request, error) {
	query := `SELECT * FROM requests WHERE technician_id = $1`
	args := []interface{}{technicianID}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY created_at DESC, reference_code`

	var rows []models.Request
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("request repository: list by technician: %w", err)
	}
	return requestsFromRows(rows)
}

func (r requestRepository) FindStale(ctx context.Context, status valueobject.RequestStatus, updatedBefore time.Time, limit int) ([]*entity.Request, error) {
	query := `
		SELECT * FROM requests
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at, reference_code
		LIMIT $3
	`
	var rows []models.Request
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, string(status), updatedBefore, limit); err != nil {
		return nil, fmt.Errorf("request repository: list stale: %w", err)
	}
	return requestsFromRows(rows)
}

// AssignTechnician назначает мастера одним условным UPDATE.
// Возвращает false, если заявка уже не в DISPATCHING или мастер уже назначен.
func (r requestRepository) AssignTechnician(ctx context.Context, id, technicianID uuid.UUID, acceptedAt, estimatedArrival time.Time) (bool, error) {
	query := `
		UPDATE requests
		SET technician_id = $2, status = $3, accepted_at = $4, estimated_arrival = $5, updated_at = $4
		WHERE id = $1 AND status = $6 AND technician_id IS NULL
	`
	res, err := r.q.ExecContext(ctx, query,
		id,
		technicianID,
		string(valueobject.RequestStatusAccepted),
		acceptedAt,
		estimatedArrival,
		string(valueobject.RequestStatusDispatching),
	)
	if err != nil {
		return false, fmt.Errorf("request repository: assign technician: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func requestsFromRows(rows []models.Request) ([]*entity.Request, error) {
	out := make([]*entity.Request, 0, len(rows))
	for i := range rows {
		req, err := requestFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
