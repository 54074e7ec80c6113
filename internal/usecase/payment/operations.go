package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/common"
)

type CreateInput struct {
	ClientID  uuid.UUID
	RequestID uuid.UUID
	Method    string
}

// Create создаёт платёж по одобренной смете и запрашивает удержание средств.
// Повторный вызов возвращает уже созданный платёж.
func (e *Escrow) Create(ctx context.Context, input CreateInput) (*entity.Payment, error) {
	method, err := valueobject.NewPaymentMethod(input.Method)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var (
		p       *entity.Payment
		created bool
	)
	err = e.store.WithinTx(ctx, func(tx repository.Repositories) error {
		req, err := tx.Requests().FindForUpdate(ctx, input.RequestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		if !req.IsOwnedBy(input.ClientID) {
			return apperror.Forbidden("оплатить заявку может только её клиент")
		}

		existing, err := tx.Payments().FindByRequestID(ctx, req.ID)
		switch {
		case err == nil:
			if existing.Status == valueobject.PaymentStatusFailed {
				return apperror.Conflict("платёж по заявке завершился ошибкой, обратитесь в поддержку").
					WithDetails(map[string]any{"payment_id": existing.ID.String()})
			}
			p = existing
			return nil
		case !common.IsNotFound(err):
			return common.StoreError(err, nil, "не удалось получить платёж")
		}

		if req.Status.IsTerminal() {
			return apperror.InvalidTransition("request", string(req.Status), "payment")
		}
		quote, err := tx.Quotes().FindByRequestID(ctx, req.ID)
		if err != nil {
			return common.StoreError(err, apperror.ErrQuoteNotFound, "не удалось получить смету")
		}
		if !quote.ClientApproved {
			return apperror.InvalidTransition("payment", "none", string(valueobject.PaymentStatusPending)).
				WithDetails(map[string]any{"reason": "quote not approved"})
		}

		p, err = entity.NewPayment(req.ID, req.ClientID, req.TechnicianID, quote.PayableAmount(), e.rules.PlatformFee, method, now)
		if err != nil {
			return err
		}
		if err := tx.Payments().Create(ctx, p); err != nil {
			return common.StoreError(err, nil, "не удалось создать платёж")
		}
		created = true
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditPaymentInitiated,
			EntityType: entity.AuditEntityPayment,
			EntityID:   p.ID,
			ActorID:    audit.Actor(input.ClientID),
			New:        audit.PaymentSnapshot(p),
		}, now)
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return p, nil
	}

	ref, err := e.callProcessor(ctx, "hold", p.ID, func() (string, error) {
		return e.processor.Hold(ctx, p.ID, p.Amount)
	})
	if err != nil {
		return nil, e.fail(ctx, p.ID, "hold", err)
	}

	p, err = e.transition(ctx, p.ID, nil, entity.AuditPaymentHoldRequested,
		func(p *entity.Payment, now time.Time) (bool, error) {
			if p.HoldRef != nil {
				return false, nil
			}
			p.SetHoldRef(ref, now)
			return true, nil
		}, nil)
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(paymentFields(p)).Info("payment: запрошено удержание средств")
	return p, nil
}

// Confirm подтверждает удержание средств. actorID == uuid.Nil означает вызов от процессора.
func (e *Escrow) Confirm(ctx context.Context, actorID, paymentID uuid.UUID) (*entity.Payment, error) {
	return e.transition(ctx, paymentID, audit.Actor(actorID), entity.AuditPaymentHeld,
		func(p *entity.Payment, now time.Time) (bool, error) {
			if actorID != uuid.Nil && p.ClientID != actorID {
				return false, apperror.Forbidden("подтвердить платёж может только клиент")
			}
			return p.MarkHeld(now)
		}, nil)
}

// Get возвращает платёж участнику заявки или сотруднику.
func (e *Escrow) Get(ctx context.Context, actorID, paymentID uuid.UUID, staff bool) (*entity.Payment, error) {
	p, err := e.store.Payments().FindByID(ctx, paymentID)
	if err != nil {
		return nil, common.StoreError(err, apperror.ErrPaymentNotFound, "не удалось получить платёж")
	}
	if !staff && p.ClientID != actorID {
		return nil, apperror.ErrPaymentNotFound
	}
	return p, nil
}

// FindByRequest возвращает платёж заявки или nil, если платёж ещё не создан.
func (e *Escrow) FindByRequest(ctx context.Context, requestID uuid.UUID) (*entity.Payment, error) {
	p, err := e.store.Payments().FindByRequestID(ctx, requestID)
	if common.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, common.StoreError(err, nil, "не удалось получить платёж")
	}
	return p, nil
}

// Finalizer выполняется в транзакции, фиксирующей выплату мастеру.
type Finalizer func(tx repository.Repositories, p *entity.Payment, now time.Time) error

// Release списывает удержанные средства и выплачивает мастеру.
// finalize выполняется в той же транзакции, что и переход в TRANSFERRED.
// Каждая операция процессора закрепляется за одним вызовом: параллельный вызов получает Conflict.
func (e *Escrow) Release(ctx context.Context, requestID, actorID, technicianID uuid.UUID, finalize Finalizer) (*entity.Payment, error) {
	p, err := e.store.Payments().FindByRequestID(ctx, requestID)
	if common.IsNotFound(err) {
		return nil, apperror.InvalidTransition("payment", "missing", string(valueobject.PaymentStatusCaptured)).
			WithDetails(map[string]any{"reason": "payment was never created"})
	}
	if err != nil {
		return nil, common.StoreError(err, nil, "не удалось получить платёж")
	}
	actor := audit.Actor(actorID)

	for {
		var op string
		switch p.Status {
		case valueobject.PaymentStatusHeld:
			op = opCapture
		case valueobject.PaymentStatusCaptured:
			op = opTransfer
		case valueobject.PaymentStatusTransferred:
			return p, nil
		default:
			return nil, apperror.InvalidTransition("payment", string(p.Status), string(valueobject.PaymentStatusCaptured))
		}
		claimed, current, err := e.claim(ctx, p, op)
		if err != nil {
			return nil, err
		}
		if claimed {
			break
		}
		p = current
	}

	ref, err := holdRef(p)
	if err != nil {
		return nil, e.fail(ctx, p.ID, *p.PendingOperation, err)
	}

	if p.Status == valueobject.PaymentStatusHeld {
		if _, err := e.callProcessor(ctx, opCapture, p.ID, func() (string, error) {
			return e.processor.Capture(ctx, ref)
		}); err != nil {
			return nil, e.fail(ctx, p.ID, opCapture, err)
		}
		// Выплату выполняет тот же вызов, операция остаётся закреплённой.
		p, err = e.transition(ctx, p.ID, actor, entity.AuditPaymentCaptured,
			func(p *entity.Payment, now time.Time) (bool, error) {
				changed, err := p.MarkCaptured(now)
				if changed {
					p.HoldOperation(opTransfer, now)
				}
				return changed, err
			}, nil)
		if err != nil {
			return nil, err
		}
		logger.Log.WithFields(paymentFields(p)).Info("payment: средства списаны")
	}

	payout := p.TechnicianPayout
	transferRef, err := e.callProcessor(ctx, opTransfer, p.ID, func() (string, error) {
		return e.processor.Transfer(ctx, ref, payout)
	})
	if err != nil {
		return nil, e.fail(ctx, p.ID, opTransfer, err)
	}
	p, err = e.transition(ctx, p.ID, actor, entity.AuditPaymentTransferred,
		func(p *entity.Payment, now time.Time) (bool, error) {
			if technicianID != uuid.Nil {
				tid := technicianID
				p.TechnicianID = &tid
			}
			return p.MarkTransferred(transferRef, now)
		}, finalize)
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(paymentFields(p)).WithField("invoice", *p.InvoiceNumber).Info("payment: выплата мастеру проведена")
	return p, nil
}

// SettleCancellation возвращает деньги клиенту при отмене заявки.
// engaged == true означает, что мастер уже взял заказ: удерживается штраф, остальное возвращается.
// Если платежа нет, возвращает nil.
func (e *Escrow) SettleCancellation(ctx context.Context, requestID, actorID uuid.UUID, engaged bool) (*entity.Payment, error) {
	p, err := e.store.Payments().FindByRequestID(ctx, requestID)
	if common.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, common.StoreError(err, nil, "не удалось получить платёж")
	}

	for {
		switch p.Status {
		case valueobject.PaymentStatusRefunded, valueobject.PaymentStatusPartialRefund:
			return p, nil
		case valueobject.PaymentStatusTransferred, valueobject.PaymentStatusFailed:
			logger.Log.WithFields(paymentFields(p)).Warn("payment: отмена заявки при завершённом платеже, требуется разбор оператором")
			return p, nil
		}
		claimed, current, err := e.claim(ctx, p, opRefund)
		if err != nil {
			return nil, err
		}
		if claimed {
			break
		}
		p = current
	}

	split := entity.ComputePenalty(p.Amount, e.rules.CancellationPenalty, e.rules.PenaltyToPlatform)
	refundAmount := p.Amount
	if engaged {
		refundAmount = split.Refund
	}

	refundRef := ""
	if ref, err := holdRef(p); err == nil {
		refundRef, err = e.callProcessor(ctx, opRefund, p.ID, func() (string, error) {
			return e.processor.Refund(ctx, ref, refundAmount)
		})
		if err != nil {
			return nil, e.fail(ctx, p.ID, opRefund, err)
		}
	}

	action := entity.AuditPaymentRefunded
	if engaged {
		action = entity.AuditPaymentPartialRefund
	}
	p, err = e.transition(ctx, p.ID, audit.Actor(actorID), action,
		func(p *entity.Payment, now time.Time) (bool, error) {
			if engaged {
				return p.ApplyPenaltyRefund(split, refundRef, now)
			}
			return p.MarkRefunded(refundRef, now)
		}, nil)
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(paymentFields(p)).Info("payment: средства возвращены клиенту")
	return p, nil
}
