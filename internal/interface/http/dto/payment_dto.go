package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
)

type CreatePaymentRequest struct {
	Method string `json:"method"`
}

type PaymentResponse struct {
	ID                  uuid.UUID  `json:"id"`
	RequestID           uuid.UUID  `json:"request_id"`
	ClientID            uuid.UUID  `json:"client_id"`
	TechnicianID        *uuid.UUID `json:"technician_id"`
	Amount              int64      `json:"amount_cents"`
	PlatformFee         int64      `json:"platform_fee_cents"`
	TechnicianPayout    int64      `json:"technician_payout_cents"`
	Status              string     `json:"status"`
	Method              string     `json:"method"`
	PenaltyAmount       int64      `json:"penalty_amount_cents"`
	PenaltyToPlatform   int64      `json:"penalty_to_platform_cents"`
	PenaltyToTechnician int64      `json:"penalty_to_technician_cents"`
	RefundedAmount      int64      `json:"refunded_amount_cents"`
	FailureReason       *string    `json:"failure_reason"`
	InvoiceNumber       *string    `json:"invoice_number"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	HeldAt              *time.Time `json:"held_at"`
	CapturedAt          *time.Time `json:"captured_at"`
	TransferredAt       *time.Time `json:"transferred_at"`
	RefundedAt          *time.Time `json:"refunded_at"`
}

func ToPaymentResponse(p *entity.Payment) *PaymentResponse {
	if p == nil {
		return nil
	}
	return &PaymentResponse{
		ID:                  p.ID,
		RequestID:           p.RequestID,
		ClientID:            p.ClientID,
		TechnicianID:        p.TechnicianID,
		Amount:              int64(p.Amount),
		PlatformFee:         int64(p.PlatformFee),
		TechnicianPayout:    int64(p.TechnicianPayout),
		Status:              string(p.Status),
		Method:              string(p.Method),
		PenaltyAmount:       int64(p.PenaltyAmount),
		PenaltyToPlatform:   int64(p.PenaltyToPlatform),
		PenaltyToTechnician: int64(p.PenaltyToTechnician),
		RefundedAmount:      int64(p.RefundedAmount),
		FailureReason:       p.FailureReason,
		InvoiceNumber:       p.InvoiceNumber,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		HeldAt:              p.HeldAt,
		CapturedAt:          p.CapturedAt,
		TransferredAt:       p.TransferredAt,
		RefundedAt:          p.RefundedAt,
	}
}
