package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

type Payment struct {
	ID                  uuid.UUID
	RequestID           uuid.UUID
	ClientID            uuid.UUID
	TechnicianID        *uuid.UUID
	Amount              valueobject.Cents
	PlatformFee         valueobject.Cents
	TechnicianPayout    valueobject.Cents
	Status              valueobject.PaymentStatus
	Method              valueobject.PaymentMethod
	HoldRef             *string
	TransferRef         *string
	RefundRef           *string
	PenaltyAmount       valueobject.Cents
	PenaltyToPlatform   valueobject.Cents
	PenaltyToTechnician valueobject.Cents
	RefundedAmount      valueobject.Cents
	FailureReason       *string
	InvoiceNumber       *string
	// PendingOperation — операция процессора, закреплённая за одним вызовом до её завершения.
	PendingOperation   *string
	OperationStartedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	HeldAt              *time.Time
	CapturedAt          *time.Time
	TransferredAt       *time.Time
	RefundedAt          *time.Time
	FailedAt            *time.Time
}

// NewPayment рассчитывает комиссию платформы и выплату мастеру.
func NewPayment(requestID, clientID uuid.UUID, technicianID *uuid.UUID, amount valueobject.Cents, feeBP valueobject.BasisPoints, method valueobject.PaymentMethod, now time.Time) (*Payment, error) {
	if amount <= 0 {
		return nil, apperror.Validation("amount", "сумма платежа должна быть положительной")
	}
	fee := amount.Share(feeBP)
	return &Payment{
		ID:               uuid.New(),
		RequestID:        requestID,
		ClientID:         clientID,
		TechnicianID:     technicianID,
		Amount:           amount,
		PlatformFee:      fee,
		TechnicianPayout: amount - fee,
		Status:           valueobject.PaymentStatusPending,
		Method:           method,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// step проверяет переход. already == true означает, что переход уже применён.
func (p *Payment) step(to valueobject.PaymentStatus, now time.Time) (already bool, err error) {
	if p.Status == to {
		return true, nil
	}
	if !p.Status.CanTransitionTo(to) {
		return false, apperror.InvalidTransition("payment", string(p.Status), string(to))
	}
	p.Status = to
	p.UpdatedAt = now
	return false, nil
}

// HoldOperation отмечает операцию процессора, выполняемую по платежу.
func (p *Payment) HoldOperation(op string, now time.Time) {
	p.PendingOperation = &op
	p.OperationStartedAt = &now
}

func (p *Payment) clearOperation() {
	p.PendingOperation = nil
	p.OperationStartedAt = nil
}

func (p *Payment) SetHoldRef(ref string, now time.Time) {
	p.HoldRef = &ref
	p.UpdatedAt = now
}

func (p *Payment) MarkHeld(now time.Time) (bool, error) {
	if p.HoldRef == nil {
		return false, apperror.InvalidTransition("payment", string(p.Status), string(valueobject.PaymentStatusHeld)).
			WithDetails(map[string]any{"reason": "funds hold not requested"})
	}
	already, err := p.step(valueobject.PaymentStatusHeld, now)
	if err != nil || already {
		return false, err
	}
	p.HeldAt = &now
	return true, nil
}

func (p *Payment) MarkCaptured(now time.Time) (bool, error) {
	already, err := p.step(valueobject.PaymentStatusCaptured, now)
	if err != nil || already {
		return false, err
	}
	p.CapturedAt = &now
	p.clearOperation()
	return true, nil
}

// MarkTransferred фиксирует выплату мастеру и выставляет номер счёта.
func (p *Payment) MarkTransferred(ref string, now time.Time) (bool, error) {
	already, err := p.step(valueobject.PaymentStatusTransferred, now)
	if err != nil || already {
		return false, err
	}
	invoice := InvoiceNumber(p.ID, now)
	p.TransferRef = &ref
	p.TransferredAt = &now
	p.InvoiceNumber = &invoice
	p.clearOperation()
	return true, nil
}

func (p *Payment) MarkRefunded(ref string, now time.Time) (bool, error) {
	already, err := p.step(valueobject.PaymentStatusRefunded, now)
	if err != nil || already {
		return false, err
	}
	p.RefundRef = &ref
	p.RefundedAmount = p.Amount
	p.RefundedAt = &now
	p.clearOperation()
	return true, nil
}

type PenaltySplit struct {
	Total        valueobject.Cents
	ToPlatform   valueobject.Cents
	ToTechnician valueobject.Cents
	Refund       valueobject.Cents
}

// ComputePenalty делит штраф так, чтобы части в сумме давали ровно штраф.
func ComputePenalty(amount valueobject.Cents, penaltyBP, platformBP valueobject.BasisPoints) PenaltySplit {
	total := amount.Share(penaltyBP)
	toPlatform := amount.Share(platformBP)
	if toPlatform > total {
		toPlatform = total
	}
	return PenaltySplit{
		Total:        total,
		ToPlatform:   toPlatform,
		ToTechnician: total - toPlatform,
		Refund:       amount - total,
	}
}

func (p *Payment) ApplyPenaltyRefund(split PenaltySplit, ref string, now time.Time) (bool, error) {
	already, err := p.step(valueobject.PaymentStatusPartialRefund, now)
	if err != nil || already {
		return false, err
	}
	p.PenaltyAmount = split.Total
	p.PenaltyToPlatform = split.ToPlatform
	p.PenaltyToTechnician = split.ToTechnician
	p.RefundedAmount = split.Refund
	p.RefundRef = &ref
	p.RefundedAt = &now
	p.clearOperation()
	return true, nil
}

func (p *Payment) MarkFailed(reason string, now time.Time) (bool, error) {
	already, err := p.step(valueobject.PaymentStatusFailed, now)
	if err != nil || already {
		return false, err
	}
	p.FailureReason = &reason
	p.FailedAt = &now
	p.clearOperation()
	return true, nil
}

// CheckSplit проверяет, что комиссия и выплата в сумме дают сумму платежа.
func (p *Payment) CheckSplit() error {
	if p.PlatformFee+p.TechnicianPayout != p.Amount {
		return apperror.New(apperror.ErrCodeInternal, "комиссия и выплата не сходятся с суммой платежа")
	}
	return nil
}

// InvoiceNumber строит номер счёта: INV-YYYYMMDD-<первые 8 символов id>.
func InvoiceNumber(paymentID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("INV-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(paymentID.String()[:8]))
}
