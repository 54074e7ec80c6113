package request

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/common"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/payment"
)

// SignatureStore сохраняет изображение подписи клиента и возвращает путь и контрольную сумму.
type SignatureStore interface {
	Save(ctx context.Context, requestID uuid.UUID, encoded string) (path, checksum string, err error)
}

// PaymentReleaser выплачивает мастеру удержанные средства.
type PaymentReleaser interface {
	Release(ctx context.Context, requestID, actorID, technicianID uuid.UUID, finalize payment.Finalizer) (*entity.Payment, error)
}

type SignOffInput struct {
	ClientID  uuid.UUID
	RequestID uuid.UUID
	Signature string
}

type SignOffOutput struct {
	Request *entity.Request
	Payment *entity.Payment
}

type SignOffUseCase struct {
	store      repository.Store
	signatures SignatureStore
	escrow     PaymentReleaser
}

func NewSignOffUseCase(store repository.Store, signatures SignatureStore, escrow PaymentReleaser) *SignOffUseCase {
	return &SignOffUseCase{store: store, signatures: signatures, escrow: escrow}
}

// Execute принимает подпись клиента, списывает средства и переводит заявку в PAID.
// Заявка становится PAID в той же транзакции, что и выплата мастеру.
func (uc *SignOffUseCase) Execute(ctx context.Context, input SignOffInput) (*SignOffOutput, error) {
	if input.Signature == "" {
		return nil, apperror.Validation("signature", "подпись обязательна")
	}
	req, err := uc.store.Requests().FindByID(ctx, input.RequestID)
	if err != nil {
		return nil, common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
	}
	if err := req.CheckSignable(input.ClientID); err != nil {
		return nil, err
	}
	technicianID := *req.TechnicianID

	path, checksum, err := uc.signatures.Save(ctx, req.ID, input.Signature)
	if err != nil {
		if apperror.IsValidation(err) {
			return nil, err
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сохранить подпись")
	}

	var signed *entity.Request
	finalize := func(tx repository.Repositories, p *entity.Payment, now time.Time) error {
		r, err := tx.Requests().FindForUpdate(ctx, input.RequestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		before := audit.RequestSnapshot(r)
		if err := r.Sign(input.ClientID, path, checksum, now); err != nil {
			return err
		}
		if err := tx.Requests().Update(ctx, r); err != nil {
			return common.StoreError(err, nil, "не удалось обновить заявку")
		}
		if tech, err := tx.Technicians().FindByID(ctx, technicianID); err == nil {
			tech.CompletedJobs++
			tech.UpdatedAt = now
			if err := tx.Technicians().Update(ctx, tech); err != nil {
				return common.StoreError(err, nil, "не удалось обновить профиль мастера")
			}
		} else if !common.IsNotFound(err) {
			return common.StoreError(err, nil, "не удалось получить профиль мастера")
		}
		signed = r
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditRequestSigned,
			EntityType: entity.AuditEntityRequest,
			EntityID:   r.ID,
			ActorID:    audit.Actor(input.ClientID),
			Old:        before,
			New:        audit.RequestSnapshot(r),
		}, now)
	}

	p, err := uc.escrow.Release(ctx, req.ID, input.ClientID, technicianID, finalize)
	if err != nil {
		return nil, err
	}
	if signed == nil {
		if signed, err = uc.store.Requests().FindByID(ctx, req.ID); err != nil {
			return nil, common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"payment_id": p.ID,
		"checksum":   checksum,
	}).Info("request: акт подписан, заявка оплачена")
	return &SignOffOutput{Request: signed, Payment: p}, nil
}
