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

const offerBatchSize = 50

type dispatchRepository struct {
	q sqlx.ExtContext
}

func (r dispatchRepository) CreateRound(ctx context.Context, round *entity.DispatchRound) error {
	query := `
		INSERT INTO dispatch_rounds (id, request_id, number, level, started_at, expires_at, closed_at, outcome, delivered, failed)
		VALUES (:id, :request_id, :number, :level, :started_at, :expires_at, :closed_at, :outcome, :delivered, :failed)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, toRoundRow(round)); err != nil {
		return mapWriteError(fmt.Errorf("dispatch repository: create round: %w", err))
	}

	inserter := common.NewBatchInserter(r.q,
		`INSERT INTO dispatch_offers (round_id, request_id, technician_id, position)`, 4, offerBatchSize)
	for _, o := range round.Offers {
		if err := inserter.Add(ctx, round.ID, round.RequestID, o.TechnicianID, o.Position); err != nil {
			return fmt.Errorf("dispatch repository: add offer: %w", err)
		}
	}
	if err := inserter.Flush(ctx); err != nil {
		return fmt.Errorf("dispatch repository: insert offers: %w", err)
	}
	return nil
}

// UpdateRound обновляет итог и счётчики раунда. Состав предложений не меняется.
func (r dispatchRepository) UpdateRound(ctx context.Context, round *entity.DispatchRound) error {
	query := `
		UPDATE dispatch_rounds SET
			expires_at = :expires_at,
			closed_at = :closed_at,
			outcome = :outcome,
			delivered = :delivered,
			failed = :failed
		WHERE id = :id
	`
	return execOne(ctx, r.q, query, toRoundRow(round))
}

func (r dispatchRepository) LatestRound(ctx context.Context, requestID uuid.UUID) (*entity.DispatchRound, error) {
	var row models.DispatchRound
	query := `SELECT * FROM dispatch_rounds WHERE request_id = $1 ORDER BY number DESC LIMIT 1`
	if err := sqlx.GetContext(ctx, r.q, &row, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("dispatch repository: latest round: %w", err)
	}
	rounds, err := r.withOffers(ctx, []models.DispatchRound{row})
	if err != nil {
		return nil, err
	}
	return rounds[0], nil
}

func (r dispatchRepository) ListRounds(ctx context.Context, requestID uuid.UUID) ([]*entity.DispatchRound, error) {
	var rows []models.DispatchRound
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT * FROM dispatch_rounds WHERE request_id = $1 ORDER BY number`, requestID); err != nil {
		return nil, fmt.Errorf("dispatch repository: list rounds: %w", err)
	}
	return r.withOffers(ctx, rows)
}

func (r dispatchRepository) HasOffer(ctx context.Context, requestID, technicianID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM dispatch_offers WHERE request_id = $1 AND technician_id = $2)`
	if err := sqlx.GetContext(ctx, r.q, &exists, query, requestID, technicianID); err != nil {
		return false, fmt.Errorf("dispatch repository: has offer: %w", err)
	}
	return exists, nil
}

// PendingForTechnician возвращает заявки, предложенные мастеру и ещё не принятые, в порядке первого предложения.
func (r dispatchRepository) PendingForTechnician(ctx context.Context, technicianID uuid.UUID, limit int) ([]*entity.Request, error) {
	query := `
		SELECT req.* FROM requests req
		JOIN (
			SELECT o.request_id, MIN(dr.started_at) AS offered_at
			FROM dispatch_offers o
			JOIN dispatch_rounds dr ON dr.id = o.round_id
			WHERE o.technician_id = $1
			GROUP BY o.request_id
		) offered ON offered.request_id = req.id
		WHERE req.status = $2 AND req.technician_id IS NULL
		ORDER BY offered.offered_at, req.reference_code
	`
	args := []interface{}{technicianID, string(valueobject.RequestStatusDispatching)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	var rows []models.Request
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("dispatch repository: pending for technician: %w", err)
	}
	return requestsFromRows(rows)
}

// ExpiredRounds возвращает последние открытые раунды заявок в DISPATCHING, у которых истекло окно.
func (r dispatchRepository) ExpiredRounds(ctx context.Context, now time.Time, limit int) ([]*entity.DispatchRound, error) {
	query := `
		SELECT * FROM (
			SELECT DISTINCT ON (dr.request_id) dr.*
			FROM dispatch_rounds dr
			JOIN requests req ON req.id = dr.request_id
			WHERE req.status = $1
			ORDER BY dr.request_id, dr.number DESC
		) latest
		WHERE latest.outcome = $2 AND latest.expires_at <= $3
		ORDER BY latest.expires_at
	`
	args := []interface{}{string(valueobject.RequestStatusDispatching), string(entity.RoundOutcomeOpen), now}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	var rows []models.DispatchRound
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("dispatch repository: expired rounds: %w", err)
	}
	return r.withOffers(ctx, rows)
}

func (r dispatchRepository) withOffers(ctx context.Context, rows []models.DispatchRound) ([]*entity.DispatchRound, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var offers []models.DispatchOffer
	query := `
		SELECT round_id, request_id, technician_id, position
		FROM dispatch_offers
		WHERE round_id = ANY($1::uuid[])
		ORDER BY position
	`
	if err := sqlx.SelectContext(ctx, r.q, &offers, query, pq.Array(uuidStrings(ids))); err != nil {
		return nil, fmt.Errorf("dispatch repository: load offers: %w", err)
	}
	byRound := make(map[uuid.UUID][]models.DispatchOffer, len(rows))
	for _, o := range offers {
		byRound[o.RoundID] = append(byRound[o.RoundID], o)
	}
	out := make([]*entity.DispatchRound, 0, len(rows))
	for i := range rows {
		out = append(out, roundFromRow(&rows[i], byRound[rows[i].ID]))
	}
	return out, nil
}
