package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Request — строка таблицы requests.
type Request struct {
	ID                   uuid.UUID      `db:"id"`
	ReferenceCode        string         `db:"reference_code"`
	ClientID             uuid.UUID      `db:"client_id"`
	TechnicianID         *uuid.UUID     `db:"technician_id"`
	ReleasedTechnicianID *uuid.UUID     `db:"released_technician_id"`
	Status               string         `db:"status"`
	Category             string         `db:"category"`
	Title                string         `db:"title"`
	Description          string         `db:"description"`
	GuidedAnswers        JSON           `db:"guided_answers"`
	MediaURLs            pq.StringArray `db:"media_urls"`
	Latitude             float64        `db:"latitude"`
	Longitude            float64        `db:"longitude"`
	Address              string         `db:"address"`
	AddressDetails       *string        `db:"address_details"`
	Severity             *string        `db:"severity"`
	AIConfidence         *int           `db:"ai_confidence"`
	Diagnosis            JSON           `db:"diagnosis"`
	IsUrgent             bool           `db:"is_urgent"`
	PreferredTime        *time.Time     `db:"preferred_time"`
	EstimatedArrival     *time.Time     `db:"estimated_arrival"`
	CompletionPhotos     pq.StringArray `db:"completion_photos"`
	SignaturePath        *string        `db:"signature_path"`
	SignatureChecksum    *string        `db:"signature_checksum"`
	ComplaintDeadline    *time.Time     `db:"complaint_deadline"`
	HasComplaint         bool           `db:"has_complaint"`
	ComplaintNotes       *string        `db:"complaint_notes"`
	CancellationReason   *string        `db:"cancellation_reason"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
	AcceptedAt           *time.Time     `db:"accepted_at"`
	StartedAt            *time.Time     `db:"started_at"`
	CompletedAt          *time.Time     `db:"completed_at"`
	CancelledAt          *time.Time     `db:"cancelled_at"`
}

// Quote — строка таблицы quotes.
type Quote struct {
	ID                         uuid.UUID  `db:"id"`
	RequestID                  uuid.UUID  `db:"request_id"`
	InitialMinPrice            int64      `db:"initial_min_price"`
	InitialMaxPrice            int64      `db:"initial_max_price"`
	MinPrice                   int64      `db:"min_price"`
	MaxPrice                   int64      `db:"max_price"`
	FinalPrice                 *int64     `db:"final_price"`
	LaborCost                  *int64     `db:"labor_cost"`
	MaterialsCost              *int64     `db:"materials_cost"`
	EstimateNotes              *string    `db:"estimate_notes"`
	RevisionCount              int        `db:"revision_count"`
	LastRevisionReason         *string    `db:"last_revision_reason"`
	RevisionEvidence           JSON       `db:"revision_evidence"`
	RequiresPhoneConfirmation  bool       `db:"requires_phone_confirmation"`
	PhoneConfirmationCompleted bool       `db:"phone_confirmation_completed"`
	ConfirmationOperatorID     *uuid.UUID `db:"confirmation_operator_id"`
	PhoneConfirmedAt           *time.Time `db:"phone_confirmed_at"`
	ClientApproved             bool       `db:"client_approved"`
	ClientApprovedAt           *time.Time `db:"client_approved_at"`
	ClientRejected             bool       `db:"client_rejected"`
	RejectionReason            *string    `db:"rejection_reason"`
	PenaltyApplied             bool       `db:"penalty_applied"`
	PenaltyAmount              *int64     `db:"penalty_amount"`
	CreatedAt                  time.Time  `db:"created_at"`
	UpdatedAt                  time.Time  `db:"updated_at"`
}
