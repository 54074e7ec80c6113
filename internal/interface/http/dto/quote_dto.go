package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
)

type ReviseQuoteRequest struct {
	MinPrice      int64             `json:"min_price_cents" binding:"required,gt=0"`
	MaxPrice      int64             `json:"max_price_cents" binding:"required,gt=0"`
	FinalPrice    *int64            `json:"final_price_cents"`
	LaborCost     *int64            `json:"labor_cost_cents"`
	MaterialsCost *int64            `json:"materials_cost_cents"`
	Reason        string            `json:"reason" binding:"required"`
	Evidence      []entity.Evidence `json:"evidence"`
}

type QuoteDecisionRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Reason  string `json:"reason"`
}

type QuoteResponse struct {
	ID                         uuid.UUID         `json:"id"`
	RequestID                  uuid.UUID         `json:"request_id"`
	InitialMin                 int64             `json:"initial_min_cents"`
	InitialMax                 int64             `json:"initial_max_cents"`
	CurrentMin                 int64             `json:"current_min_cents"`
	CurrentMax                 int64             `json:"current_max_cents"`
	FinalPrice                 *int64            `json:"final_price_cents"`
	LaborCost                  *int64            `json:"labor_cost_cents"`
	MaterialsCost              *int64            `json:"materials_cost_cents"`
	PayableAmount              int64             `json:"payable_amount_cents"`
	RevisionCount              int               `json:"revision_count"`
	LastRevisionReason         *string           `json:"last_revision_reason"`
	RevisionEvidence           []entity.Evidence `json:"revision_evidence"`
	RequiresPhoneConfirmation  bool              `json:"requires_phone_confirmation"`
	PhoneConfirmationCompleted bool              `json:"phone_confirmation_completed"`
	PhoneConfirmedAt           *time.Time        `json:"phone_confirmed_at"`
	ClientApproved             bool              `json:"client_approved"`
	ClientApprovedAt           *time.Time        `json:"client_approved_at"`
	ClientRejected             bool              `json:"client_rejected"`
	RejectionReason            *string           `json:"rejection_reason"`
	PenaltyApplied             bool              `json:"penalty_applied"`
	PenaltyAmount              *int64            `json:"penalty_amount_cents"`
	UpdatedAt                  time.Time         `json:"updated_at"`
}

type QuoteDecisionResponse struct {
	Quote   *QuoteResponse   `json:"quote"`
	Request *RequestResponse `json:"request,omitempty"`
	Cancel  *CancelResponse  `json:"cancellation,omitempty"`
}

func ToQuoteResponse(q *entity.Quote) *QuoteResponse {
	if q == nil {
		return nil
	}
	evidence := q.RevisionEvidence
	if evidence == nil {
		evidence = []entity.Evidence{}
	}
	return &QuoteResponse{
		ID:                         q.ID,
		RequestID:                  q.RequestID,
		InitialMin:                 int64(q.Initial.Min),
		InitialMax:                 int64(q.Initial.Max),
		CurrentMin:                 int64(q.Current.Min),
		CurrentMax:                 int64(q.Current.Max),
		FinalPrice:                 centsPtr(q.FinalPrice),
		LaborCost:                  centsPtr(q.LaborCost),
		MaterialsCost:              centsPtr(q.MaterialsCost),
		PayableAmount:              int64(q.PayableAmount()),
		RevisionCount:              q.RevisionCount,
		LastRevisionReason:         q.LastRevisionReason,
		RevisionEvidence:           evidence,
		RequiresPhoneConfirmation:  q.RequiresPhoneConfirmation,
		PhoneConfirmationCompleted: q.PhoneConfirmationCompleted,
		PhoneConfirmedAt:           q.PhoneConfirmedAt,
		ClientApproved:             q.ClientApproved,
		ClientApprovedAt:           q.ClientApprovedAt,
		ClientRejected:             q.ClientRejected,
		RejectionReason:            q.RejectionReason,
		PenaltyApplied:             q.PenaltyApplied,
		PenaltyAmount:              centsPtr(q.PenaltyAmount),
		UpdatedAt:                  q.UpdatedAt,
	}
}

// ToCents переводит необязательную сумму из запроса.
func ToCents(v *int64) *valueobject.Cents {
	if v == nil {
		return nil
	}
	c := valueobject.Cents(*v)
	return &c
}

func centsPtr(c *valueobject.Cents) *int64 {
	if c == nil {
		return nil
	}
	v := int64(*c)
	return &v
}
