package quote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/common"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/request"
)

// Canceller отменяет заявку при отказе клиента от сметы.
type Canceller interface {
	Execute(ctx context.Context, input request.CancelInput) (*request.CancelOutput, error)
}

type ReviseInput struct {
	TechnicianID  uuid.UUID
	UserID        uuid.UUID
	RequestID     uuid.UUID
	MinPrice      valueobject.Cents
	MaxPrice      valueobject.Cents
	FinalPrice    *valueobject.Cents
	LaborCost     *valueobject.Cents
	MaterialsCost *valueobject.Cents
	Reason        string
	Evidence      []entity.Evidence
}

type ReviseOutput struct {
	Quote   *entity.Quote
	Request *entity.Request
}

type DecisionInput struct {
	ClientID  uuid.UUID
	RequestID uuid.UUID
	Approve   bool
	Reason    string
}

type DecisionOutput struct {
	Quote   *entity.Quote
	Request *entity.Request
	Cancel  *request.CancelOutput
}

// UseCases объединяет сценарии согласования сметы.
type UseCases struct {
	store     repository.Store
	canceller Canceller
	limits    entity.RevisionLimits
}

func NewUseCases(store repository.Store, canceller Canceller, rules config.Marketplace) *UseCases {
	return &UseCases{
		store:     store,
		canceller: canceller,
		limits: entity.RevisionLimits{
			MinReasonLength: rules.MinRevisionReason,
			MaxReasonLength: rules.MaxRevisionReason,
			MaxEvidence:     rules.MaxRevisionEvidence,
			Threshold:       rules.RevisionThreshold,
		},
	}
}

// Revise применяет пересмотр сметы мастером и переводит заявку в QUOTE_REVISION.
// Повторный пересмотр в QUOTE_REVISION статус не меняет.
func (uc *UseCases) Revise(ctx context.Context, input ReviseInput) (*ReviseOutput, error) {
	rv := entity.Revision{
		MinPrice:      input.MinPrice,
		MaxPrice:      input.MaxPrice,
		FinalPrice:    input.FinalPrice,
		LaborCost:     input.LaborCost,
		MaterialsCost: input.MaterialsCost,
		Reason:        input.Reason,
		Evidence:      input.Evidence,
	}
	if err := rv.Validate(uc.limits); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := &ReviseOutput{}
	err := uc.store.WithinTx(ctx, func(tx repository.Repositories) error {
		req, err := tx.Requests().FindForUpdate(ctx, input.RequestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		if !req.IsAssignedTo(input.TechnicianID) {
			return apperror.Forbidden("пересмотреть смету может только назначенный мастер")
		}
		if req.Status != valueobject.RequestStatusInProgress && req.Status != valueobject.RequestStatusQuoteRevision {
			return apperror.InvalidTransition("request", string(req.Status), string(valueobject.RequestStatusQuoteRevision))
		}
		if err := ensureNoActivePayment(ctx, tx, req.ID); err != nil {
			return err
		}

		q, err := tx.Quotes().FindByRequestID(ctx, req.ID)
		if err != nil {
			return common.StoreError(err, apperror.ErrQuoteNotFound, "не удалось получить смету")
		}
		quoteBefore := audit.QuoteSnapshot(q)
		if err := q.Revise(rv, uc.limits, now); err != nil {
			return err
		}
		if err := tx.Quotes().Update(ctx, q); err != nil {
			return common.StoreError(err, nil, "не удалось обновить смету")
		}
		if err := audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditQuoteRevised,
			EntityType: entity.AuditEntityQuote,
			EntityID:   q.ID,
			ActorID:    audit.Actor(input.UserID),
			Old:        quoteBefore,
			New:        audit.QuoteSnapshot(q),
		}, now); err != nil {
			return err
		}

		if req.Status == valueobject.RequestStatusInProgress {
			reqBefore := audit.RequestSnapshot(req)
			if err := req.EnterQuoteRevision(input.TechnicianID, now); err != nil {
				return err
			}
			if err := tx.Requests().Update(ctx, req); err != nil {
				return common.StoreError(err, nil, "не удалось обновить заявку")
			}
			if err := audit.Record(ctx, tx, audit.Change{
				Action:     entity.AuditQuoteRevised,
				EntityType: entity.AuditEntityRequest,
				EntityID:   req.ID,
				ActorID:    audit.Actor(input.UserID),
				Old:        reqBefore,
				New:        audit.RequestSnapshot(req),
			}, now); err != nil {
				return err
			}
		}
		out.Quote, out.Request = q, req
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"request_id":     input.RequestID,
		"revision":       out.Quote.RevisionCount,
		"phone_required": out.Quote.RequiresPhoneConfirmation,
	}
	if bp, ok := out.Quote.RevisionBasisPoints(); ok {
		fields["revision_bp"] = int64(bp)
	}
	logger.Log.WithFields(fields).Info("quote: смета пересмотрена")
	return out, nil
}

// ensureNoActivePayment запрещает пересмотр, если сумма уже зафиксирована в платеже.
func ensureNoActivePayment(ctx context.Context, tx repository.Repositories, requestID uuid.UUID) error {
	p, err := tx.Payments().FindByRequestID(ctx, requestID)
	if common.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return common.StoreError(err, nil, "не удалось получить платёж")
	}
	if p.Status == valueobject.PaymentStatusFailed {
		return nil
	}
	return apperror.Conflict("по смете уже создан платёж").
		WithDetails(map[string]any{"payment_id": p.ID.String(), "payment_status": string(p.Status)})
}

// ConfirmPhone отмечает, что оператор подтвердил крупный пересмотр по телефону.
func (uc *UseCases) ConfirmPhone(ctx context.Context, operatorID, requestID uuid.UUID) (*entity.Quote, error) {
	now := time.Now().UTC()
	var q *entity.Quote
	err := uc.store.WithinTx(ctx, func(tx repository.Repositories) error {
		var err error
		q, err = tx.Quotes().FindByRequestID(ctx, requestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrQuoteNotFound, "не удалось получить смету")
		}
		before := audit.QuoteSnapshot(q)
		changed, err := q.ConfirmPhone(operatorID, now)
		if err != nil || !changed {
			return err
		}
		if err := tx.Quotes().Update(ctx, q); err != nil {
			return common.StoreError(err, nil, "не удалось обновить смету")
		}
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditQuotePhoneConfirmed,
			EntityType: entity.AuditEntityQuote,
			EntityID:   q.ID,
			ActorID:    audit.Actor(operatorID),
			Old:        before,
			New:        audit.QuoteSnapshot(q),
		}, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(logrus.Fields{
		"request_id":  requestID,
		"operator_id": operatorID,
	}).Info("quote: пересмотр подтверждён по телефону")
	return q, nil
}

// approvableStatuses — статусы заявки, в которых клиент может одобрить смету.
var approvableStatuses = map[valueobject.RequestStatus]bool{
	valueobject.RequestStatusAnalyzed:      true,
	valueobject.RequestStatusDispatching:   true,
	valueobject.RequestStatusAccepted:      true,
	valueobject.RequestStatusEnRoute:       true,
	valueobject.RequestStatusInProgress:    true,
	valueobject.RequestStatusQuoteRevision: true,
}

// Decide фиксирует решение клиента по смете. Отказ отменяет заявку со всеми штрафами.
func (uc *UseCases) Decide(ctx context.Context, input DecisionInput) (*DecisionOutput, error) {
	if !input.Approve {
		reason := input.Reason
		if reason == "" {
			return nil, apperror.Validation("reason", "укажите причину отказа")
		}
		res, err := uc.canceller.Execute(ctx, request.CancelInput{
			ClientID:             input.ClientID,
			RequestID:            input.RequestID,
			QuoteRejectionReason: &reason,
		})
		if err != nil {
			return nil, err
		}
		return &DecisionOutput{Quote: res.Quote, Request: res.Request, Cancel: res}, nil
	}

	now := time.Now().UTC()
	out := &DecisionOutput{}
	err := uc.store.WithinTx(ctx, func(tx repository.Repositories) error {
		req, err := tx.Requests().FindForUpdate(ctx, input.RequestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		if !req.IsOwnedBy(input.ClientID) {
			return apperror.Forbidden("решение по смете принимает только клиент заявки")
		}
		if !approvableStatuses[req.Status] {
			return apperror.InvalidTransition("request", string(req.Status), "quote_approved")
		}
		q, err := tx.Quotes().FindByRequestID(ctx, req.ID)
		if err != nil {
			return common.StoreError(err, apperror.ErrQuoteNotFound, "не удалось получить смету")
		}
		out.Quote, out.Request = q, req

		before := audit.QuoteSnapshot(q)
		changed, err := q.Approve(now)
		if err != nil {
			if errors.Is(err, apperror.ErrPhoneConfirmationPending) {
				return apperror.ErrPhoneConfirmationPending.WithDetails(map[string]any{
					"request_status": string(req.Status),
					"revision_count": q.RevisionCount,
				})
			}
			return err
		}
		if changed {
			if err := tx.Quotes().Update(ctx, q); err != nil {
				return common.StoreError(err, nil, "не удалось обновить смету")
			}
			if err := audit.Record(ctx, tx, audit.Change{
				Action:     entity.AuditQuoteApproved,
				EntityType: entity.AuditEntityQuote,
				EntityID:   q.ID,
				ActorID:    audit.Actor(input.ClientID),
				Old:        before,
				New:        audit.QuoteSnapshot(q),
			}, now); err != nil {
				return err
			}
		}

		if req.Status != valueobject.RequestStatusQuoteRevision {
			return nil
		}
		reqBefore := audit.RequestSnapshot(req)
		if err := req.ResumeAfterRevision(input.ClientID, now); err != nil {
			return err
		}
		if err := tx.Requests().Update(ctx, req); err != nil {
			return common.StoreError(err, nil, "не удалось обновить заявку")
		}
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditQuoteApproved,
			EntityType: entity.AuditEntityRequest,
			EntityID:   req.ID,
			ActorID:    audit.Actor(input.ClientID),
			Old:        reqBefore,
			New:        audit.RequestSnapshot(req),
		}, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(logrus.Fields{
		"request_id": input.RequestID,
		"status":     out.Request.Status,
	}).Info("quote: смета одобрена клиентом")
	return out, nil
}

// Get возвращает смету клиенту, назначенному мастеру или сотруднику.
func (uc *UseCases) Get(ctx context.Context, viewer request.Viewer, requestID uuid.UUID) (*entity.Quote, error) {
	out, err := request.NewGetRequestUseCase(uc.store).Execute(ctx, viewer, requestID)
	if err != nil {
		return nil, err
	}
	if out.Quote == nil {
		return nil, apperror.ErrQuoteNotFound
	}
	return out.Quote, nil
}
