package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Payment — строка таблицы payments. Суммы хранятся в центах.
type Payment struct {
	ID                  uuid.UUID  `db:"id"`
	RequestID           uuid.UUID  `db:"request_id"`
	ClientID            uuid.UUID  `db:"client_id"`
	TechnicianID        *uuid.UUID `db:"technician_id"`
	Amount              int64      `db:"amount"`
	PlatformFee         int64      `db:"platform_fee"`
	TechnicianPayout    int64      `db:"technician_payout"`
	Status              string     `db:"status"`
	Method              string     `db:"method"`
	HoldRef             *string    `db:"hold_ref"`
	TransferRef         *string    `db:"transfer_ref"`
	RefundRef           *string    `db:"refund_ref"`
	PenaltyAmount       int64      `db:"penalty_amount"`
	PenaltyToPlatform   int64      `db:"penalty_to_platform"`
	PenaltyToTechnician int64      `db:"penalty_to_technician"`
	RefundedAmount      int64      `db:"refunded_amount"`
	FailureReason       *string    `db:"failure_reason"`
	InvoiceNumber       *string    `db:"invoice_number"`
	PendingOperation    *string    `db:"pending_operation"`
	OperationStartedAt  *time.Time `db:"operation_started_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
	HeldAt              *time.Time `db:"held_at"`
	CapturedAt          *time.Time `db:"captured_at"`
	TransferredAt       *time.Time `db:"transferred_at"`
	RefundedAt          *time.Time `db:"refunded_at"`
	FailedAt            *time.Time `db:"failed_at"`
}

// Technician — строка таблицы technicians.
type Technician struct {
	ID                   uuid.UUID      `db:"id"`
	UserID               uuid.UUID      `db:"user_id"`
	Code                 string         `db:"code"`
	DisplayName          string         `db:"display_name"`
	Specializations      pq.StringArray `db:"specializations"`
	Rating               float64        `db:"rating"`
	CompletedJobs        int            `db:"completed_jobs"`
	HourlyRate           int64          `db:"hourly_rate"`
	Latitude             *float64       `db:"latitude"`
	Longitude            *float64       `db:"longitude"`
	AvailabilitySchedule JSON           `db:"availability_schedule"`
	IsAvailableNow       bool           `db:"is_available_now"`
	IsAcceptingJobs      bool           `db:"is_accepting_jobs"`
	IsVerified           bool           `db:"is_verified"`
	IsActive             bool           `db:"is_active"`
	VerifiedAt           *time.Time     `db:"verified_at"`
	VerifiedBy           *uuid.UUID     `db:"verified_by"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}
