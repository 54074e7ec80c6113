package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/models"
	"github.com/ignatzorin/prontocasa-backend/internal/repository/common"
)

type quoteRepository struct {
	q sqlx.ExtContext
}

func (r quoteRepository) Create(ctx context.Context, quote *entity.Quote) error {
	row, err := toQuoteRow(quote)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO quotes (
			id, request_id, initial_min_price, initial_max_price, min_price, max_price, final_price,
			labor_cost, materials_cost, estimate_notes, revision_count, last_revision_reason,
			revision_evidence, requires_phone_confirmation, phone_confirmation_completed,
			confirmation_operator_id, phone_confirmed_at, client_approved, client_approved_at,
			client_rejected, rejection_reason, penalty_applied, penalty_amount, created_at, updated_at
		) VALUES (
			:id, :request_id, :initial_min_price, :initial_max_price, :min_price, :max_price, :final_price,
			:labor_cost, :materials_cost, :estimate_notes, :revision_count, :last_revision_reason,
			:revision_evidence, :requires_phone_confirmation, :phone_confirmation_completed,
			:confirmation_operator_id, :phone_confirmed_at, :client_approved, :client_approved_at,
			:client_rejected, :rejection_reason, :penalty_applied, :penalty_amount, :created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, row); err != nil {
		return mapWriteError(fmt.Errorf("quote repository: create: %w", err))
	}
	return nil
}

// Update не трогает начальный диапазон: он неизменен после создания.
func (r quoteRepository) Update(ctx context.Context, quote *entity.Quote) error {
	row, err := toQuoteRow(quote)
	if err != nil {
		return err
	}
	query := `
		UPDATE quotes SET
			min_price = :min_price,
			max_price = :max_price,
			final_price = :final_price,
			labor_cost = :labor_cost,
			materials_cost = :materials_cost,
			estimate_notes = :estimate_notes,
			revision_count = :revision_count,
			last_revision_reason = :last_revision_reason,
			revision_evidence = :revision_evidence,
			requires_phone_confirmation = :requires_phone_confirmation,
			phone_confirmation_completed = :phone_confirmation_completed,
			confirmation_operator_id = :confirmation_operator_id,
			phone_confirmed_at = :phone_confirmed_at,
			client_approved = :client_approved,
			client_approved_at = :client_approved_at,
			client_rejected = :client_rejected,
			rejection_reason = :rejection_reason,
			penalty_applied = :penalty_applied,
			penalty_amount = :penalty_amount,
			updated_at = :updated_at
		WHERE id = :id
	`
	return execOne(ctx, r.q, query, row)
}

func (r quoteRepository) FindByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Quote, error) {
	row, err := common.GetByField[models.Quote](ctx, r.q, "quotes", "request_id", requestID, repository.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return quoteFromRow(row)
}

type paymentRepository struct {
	q sqlx.ExtContext
}

func (r paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			id, request_id, client_id, technician_id, amount, platform_fee, technician_payout, status,
			method, hold_ref, transfer_ref, refund_ref, penalty_amount, penalty_to_platform,
			penalty_to_technician, refunded_amount, failure_reason, invoice_number, created_at,
			updated_at, held_at, captured_at, transferred_at, refunded_at, failed_at
		) VALUES (
			:id, :request_id, :client_id, :technician_id, :amount, :platform_fee, :technician_payout, :status,
			:method, :hold_ref, :transfer_ref, :refund_ref, :penalty_amount, :penalty_to_platform,
			:penalty_to_technician, :refunded_amount, :failure_reason, :invoice_number, :created_at,
			:updated_at, :held_at, :captured_at, :transferred_at, :refunded_at, :failed_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, toPaymentRow(payment)); err != nil {
		return mapWriteError(fmt.Errorf("payment repository: create: %w", err))
	}
	return nil
}

func (r paymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments SET
			technician_id = :technician_id,
			status = :status,
			hold_ref = :hold_ref,
			transfer_ref = :transfer_ref,
			refund_ref = :refund_ref,
			penalty_amount = :penalty_amount,
			penalty_to_platform = :penalty_to_platform,
			penalty_to_technician = :penalty_to_technician,
			refunded_amount = :refunded_amount,
			failure_reason = :failure_reason,
			invoice_number = :invoice_number,
			pending_operation = :pending_operation,
			operation_started_at = :operation_started_at,
			updated_at = :updated_at,
			held_at = :held_at,
			captured_at = :captured_at,
			transferred_at = :transferred_at,
			refunded_at = :refunded_at,
			failed_at = :failed_at
		WHERE id = :id
	`
	return execOne(ctx, r.q, query, toPaymentRow(payment))
}

func (r paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	row, err := common.GetByID[models.Payment](ctx, r.q, "payments", id, repository.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return paymentFromRow(row), nil
}

func (r paymentRepository) FindByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Payment, error) {
	row, err := common.GetByField[models.Payment](ctx, r.q, "payments", "request_id", requestID, repository.ErrNotFound)
	if err != nil {
		return nil, err
	}
	return paymentFromRow(row), nil
}

// ClaimOperation закрепляет операцию процессора одним условным UPDATE.
func (r paymentRepository) ClaimOperation(ctx context.Context, id uuid.UUID, status valueobject.PaymentStatus, op string, at time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET pending_operation = $3, operation_started_at = $4, updated_at = $4
		WHERE id = $1 AND status = $2 AND pending_operation IS NULL
	`
	res, err := r.q.ExecContext(ctx, query, id, string(status), op, at)
	if err != nil {
		return false, fmt.Errorf("payment repository: claim operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
