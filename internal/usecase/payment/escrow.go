package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/common"
)

// Escrow управляет жизненным циклом платежа: удержание, списание, выплата, возврат.
// Вызовы платёжного процессора выполняются вне транзакций хранилища.
type Escrow struct {
	store     repository.Store
	processor repository.EscrowProcessor
	rules     config.Marketplace
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewEscrow(store repository.Store, processor repository.EscrowProcessor, rules config.Marketplace) *Escrow {
	return &Escrow{
		store:     store,
		processor: processor,
		rules:     rules,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// callProcessor повторяет вызов процессора ограниченное число раз.
func (e *Escrow) callProcessor(ctx context.Context, op string, paymentID uuid.UUID, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= e.rules.ProcessorMaxAttempts; attempt++ {
		ref, err := fn()
		if err == nil {
			return ref, nil
		}
		lastErr = err
		logger.Log.WithFields(logrus.Fields{
			"payment_id": paymentID,
			"op":         op,
			"attempt":    attempt,
		}).WithError(err).Warn("payment: ошибка платёжного процессора")
		if attempt < e.rules.ProcessorMaxAttempts {
			if err := e.sleep(ctx, e.rules.ProcessorRetryDelay*time.Duration(attempt)); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

const (
	opCapture  = "capture"
	opTransfer = "transfer"
	opRefund   = "refund"
)

// claim закрепляет операцию процессора за вызывающим. Если закрепить не удалось, возвращает
// текущее состояние платежа или Conflict, пока операцию выполняет другой вызов.
func (e *Escrow) claim(ctx context.Context, p *entity.Payment, op string) (bool, *entity.Payment, error) {
	now := time.Now().UTC()
	ok, err := e.store.Payments().ClaimOperation(ctx, p.ID, p.Status, op, now)
	if err != nil {
		return false, nil, common.StoreError(err, apperror.ErrPaymentNotFound, "не удалось заблокировать платёж")
	}
	if ok {
		p.HoldOperation(op, now)
		return true, p, nil
	}
	current, err := e.store.Payments().FindByID(ctx, p.ID)
	if err != nil {
		return false, nil, common.StoreError(err, apperror.ErrPaymentNotFound, "не удалось получить платёж")
	}
	if current.PendingOperation != nil {
		return false, nil, apperror.Conflict("по платежу уже выполняется операция").WithDetails(map[string]any{
			"payment_id":     current.ID.String(),
			"operation":      *current.PendingOperation,
			"payment_status": string(current.Status),
		})
	}
	return false, current, nil
}

// fail переводит платёж в FAILED и возвращает ExternalFailure для вызывающего.
// Отметка пишется и после отмены ctx, чтобы не оставить операцию закреплённой.
func (e *Escrow) fail(ctx context.Context, paymentID uuid.UUID, op string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	var current *entity.Payment
	txErr := e.store.WithinTx(ctx, func(tx repository.Repositories) error {
		p, err := tx.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		before := audit.PaymentSnapshot(p)
		changed, err := p.MarkFailed(op+": "+cause.Error(), now)
		if err != nil || !changed {
			current = p
			return err
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}
		current = p
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditPaymentFailed,
			EntityType: entity.AuditEntityPayment,
			EntityID:   p.ID,
			Old:        before,
			New:        audit.PaymentSnapshot(p),
		}, now)
	})
	if txErr != nil {
		logger.Log.WithError(txErr).WithField("payment_id", paymentID).Error("payment: не удалось отметить платёж как FAILED")
	}
	details := map[string]any{"payment_id": paymentID.String(), "operation": op}
	if current != nil {
		details["payment_status"] = string(current.Status)
	}
	return apperror.External(cause, "escrow_processor").WithDetails(details)
}

// transition загружает платёж, применяет переход и пишет аудит в одной транзакции.
// Если переход уже применён, ничего не пишется. extra выполняется в той же транзакции.
func (e *Escrow) transition(
	ctx context.Context,
	paymentID uuid.UUID,
	actorID *uuid.UUID,
	action entity.AuditAction,
	apply func(p *entity.Payment, now time.Time) (bool, error),
	extra func(tx repository.Repositories, p *entity.Payment, now time.Time) error,
) (*entity.Payment, error) {
	now := time.Now().UTC()
	var result *entity.Payment
	err := e.store.WithinTx(ctx, func(tx repository.Repositories) error {
		p, err := tx.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return common.StoreError(err, apperror.ErrPaymentNotFound, "не удалось получить платёж")
		}
		before := audit.PaymentSnapshot(p)
		changed, err := apply(p, now)
		if err != nil {
			return err
		}
		result = p
		if changed {
			if err := p.CheckSplit(); err != nil {
				return err
			}
			if err := tx.Payments().Update(ctx, p); err != nil {
				return common.StoreError(err, nil, "не удалось обновить платёж")
			}
			if err := audit.Record(ctx, tx, audit.Change{
				Action:     action,
				EntityType: entity.AuditEntityPayment,
				EntityID:   p.ID,
				ActorID:    actorID,
				Old:        before,
				New:        audit.PaymentSnapshot(p),
			}, now); err != nil {
				return err
			}
		}
		if extra != nil {
			return extra(tx, p, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

var errNoHold = errors.New("funds hold was never placed")

func holdRef(p *entity.Payment) (string, error) {
	if p.HoldRef == nil || *p.HoldRef == "" {
		return "", errNoHold
	}
	return *p.HoldRef, nil
}

func paymentFields(p *entity.Payment) logrus.Fields {
	return logrus.Fields{
		"payment_id": p.ID,
		"request_id": p.RequestID,
		"status":     p.Status,
		"amount":     p.Amount.String(),
	}
}
