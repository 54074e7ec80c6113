package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

// Change описывает одно изменение состояния для журнала.
type Change struct {
	Action     entity.AuditAction
	EntityType entity.AuditEntityType
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Old        any
	New        any
}

// Record пишет запись журнала. Вызывается внутри той же транзакции, что и само изменение.
func Record(ctx context.Context, tx repository.Repositories, c Change, at time.Time) error {
	oldValue, err := marshalSnapshot(c.Old)
	if err != nil {
		return err
	}
	newValue, err := marshalSnapshot(c.New)
	if err != nil {
		return err
	}

	entry := &entity.AuditEntry{
		ID:         uuid.New(),
		Action:     c.Action,
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		ActorID:    c.ActorID,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  at,
	}
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось записать журнал аудита")
	}
	return nil
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal snapshot: %w", err)
	}
	return b, nil
}

// Actor возвращает указатель на id инициатора. uuid.Nil означает систему.
func Actor(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// RequestState — снимок заявки для журнала.
type RequestState struct {
	Status       string     `json:"status"`
	TechnicianID *uuid.UUID `json:"technician_id,omitempty"`
}

func RequestSnapshot(r *entity.Request) RequestState {
	return RequestState{Status: string(r.Status), TechnicianID: r.TechnicianID}
}

// QuoteState — снимок сметы для журнала.
type QuoteState struct {
	MinPrice                  int64  `json:"min_price"`
	MaxPrice                  int64  `json:"max_price"`
	FinalPrice                *int64 `json:"final_price,omitempty"`
	RevisionCount             int    `json:"revision_count"`
	RequiresPhoneConfirmation bool   `json:"requires_phone_confirmation"`
	PhoneConfirmed            bool   `json:"phone_confirmation_completed"`
	ClientApproved            bool   `json:"client_approved"`
	ClientRejected            bool   `json:"client_rejected"`
	PenaltyAmount             *int64 `json:"penalty_amount,omitempty"`
}

func QuoteSnapshot(q *entity.Quote) QuoteState {
	s := QuoteState{
		MinPrice:                  int64(q.Current.Min),
		MaxPrice:                  int64(q.Current.Max),
		RevisionCount:             q.RevisionCount,
		RequiresPhoneConfirmation: q.RequiresPhoneConfirmation,
		PhoneConfirmed:            q.PhoneConfirmationCompleted,
		ClientApproved:            q.ClientApproved,
		ClientRejected:            q.ClientRejected,
	}
	if q.FinalPrice != nil {
		v := int64(*q.FinalPrice)
		s.FinalPrice = &v
	}
	if q.PenaltyAmount != nil {
		v := int64(*q.PenaltyAmount)
		s.PenaltyAmount = &v
	}
	return s
}

// PaymentState — снимок платежа для журнала.
type PaymentState struct {
	Status              string `json:"status"`
	Amount              int64  `json:"amount"`
	PlatformFee         int64  `json:"platform_fee"`
	TechnicianPayout    int64  `json:"technician_payout"`
	PenaltyAmount       int64  `json:"penalty_amount,omitempty"`
	PenaltyToPlatform   int64  `json:"penalty_to_platform,omitempty"`
	PenaltyToTechnician int64  `json:"penalty_to_technician,omitempty"`
	RefundedAmount      int64  `json:"refunded_amount,omitempty"`
	Reference           string `json:"reference,omitempty"`
}

func PaymentSnapshot(p *entity.Payment) PaymentState {
	s := PaymentState{
		Status:              string(p.Status),
		Amount:              int64(p.Amount),
		PlatformFee:         int64(p.PlatformFee),
		TechnicianPayout:    int64(p.TechnicianPayout),
		PenaltyAmount:       int64(p.PenaltyAmount),
		PenaltyToPlatform:   int64(p.PenaltyToPlatform),
		PenaltyToTechnician: int64(p.PenaltyToTechnician),
		RefundedAmount:      int64(p.RefundedAmount),
	}
	switch {
	case p.RefundRef != nil:
		s.Reference = *p.RefundRef
	case p.TransferRef != nil:
		s.Reference = *p.TransferRef
	case p.HoldRef != nil:
		s.Reference = *p.HoldRef
	}
	return s
}

// TechnicianState — снимок профиля мастера для журнала.
type TechnicianState struct {
	IsVerified      bool                  `json:"is_verified"`
	IsActive        bool                  `json:"is_active"`
	IsAvailableNow  bool                  `json:"is_available_now"`
	IsAcceptingJobs bool                  `json:"is_accepting_jobs"`
	Location        *valueobject.GeoPoint `json:"location,omitempty"`
	Specializations []string              `json:"specializations,omitempty"`
}

func TechnicianSnapshot(t *entity.Technician) TechnicianState {
	return TechnicianState{
		IsVerified:      t.IsVerified,
		IsActive:        t.IsActive,
		IsAvailableNow:  t.IsAvailableNow,
		IsAcceptingJobs: t.IsAcceptingJobs,
		Location:        t.Location,
		Specializations: t.Specializations,
	}
}
