package request

import (
	"context"
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

// PaymentSettler возвращает клиенту средства по отменённой заявке.
type PaymentSettler interface {
	SettleCancellation(ctx context.Context, requestID, actorID uuid.UUID, engaged bool) (*entity.Payment, error)
}

type CancelInput struct {
	ClientID  uuid.UUID
	RequestID uuid.UUID
	Reason    string
	// QuoteRejectionReason задаётся, когда отмена вызвана отказом от сметы.
	QuoteRejectionReason *string
}

type CancelOutput struct {
	Request *entity.Request
	Quote   *entity.Quote
	Payment *entity.Payment
	// Penalty заполняется, если мастер уже был задействован.
	Penalty *entity.PenaltySplit
	// SettlementError заполняется, если возврат средств не удался. Заявка при этом уже отменена.
	SettlementError error
}

type CancelRequestUseCase struct {
	store  repository.Store
	escrow PaymentSettler
	rules  config.Marketplace
}

func NewCancelRequestUseCase(store repository.Store, escrow PaymentSettler, rules config.Marketplace) *CancelRequestUseCase {
	return &CancelRequestUseCase{store: store, escrow: escrow, rules: rules}
}

func (uc *CancelRequestUseCase) Execute(ctx context.Context, input CancelInput) (*CancelOutput, error) {
	if input.QuoteRejectionReason != nil && *input.QuoteRejectionReason == "" {
		return nil, apperror.Validation("reason", "укажите причину отказа")
	}
	now := time.Now().UTC()
	out := &CancelOutput{}
	var engaged bool

	err := uc.store.WithinTx(ctx, func(tx repository.Repositories) error {
		req, err := tx.Requests().FindForUpdate(ctx, input.RequestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		before := audit.RequestSnapshot(req)
		reason := input.Reason
		if reason == "" && input.QuoteRejectionReason != nil {
			reason = *input.QuoteRejectionReason
		}
		engaged, err = req.Cancel(input.ClientID, reason, now)
		if err != nil {
			return err
		}
		if err := req.CheckInvariants(); err != nil {
			return err
		}
		if err := tx.Requests().Update(ctx, req); err != nil {
			return common.StoreError(err, nil, "не удалось обновить заявку")
		}
		if err := audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditRequestCancelled,
			EntityType: entity.AuditEntityRequest,
			EntityID:   req.ID,
			ActorID:    audit.Actor(input.ClientID),
			Old:        before,
			New:        audit.RequestSnapshot(req),
		}, now); err != nil {
			return err
		}
		out.Request = req

		if err := uc.settleQuote(ctx, tx, input, engaged, out, now); err != nil {
			return err
		}

		round, err := tx.Dispatch().LatestRound(ctx, req.ID)
		switch {
		case err == nil && round.IsOpen():
			round.Close(entity.RoundOutcomeCancelled, now)
			if err := tx.Dispatch().UpdateRound(ctx, round); err != nil {
				return common.StoreError(err, nil, "не удалось закрыть раунд рассылки")
			}
		case err != nil && !common.IsNotFound(err):
			return common.StoreError(err, nil, "не удалось получить раунд рассылки")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p, err := uc.escrow.SettleCancellation(ctx, input.RequestID, input.ClientID, engaged)
	if err != nil {
		logger.Log.WithError(err).WithField("request_id", input.RequestID).Error("request: не удалось вернуть средства по отменённой заявке")
		out.SettlementError = err
	}
	out.Payment = p

	logger.Log.WithFields(logrus.Fields{
		"request_id": input.RequestID,
		"engaged":    engaged,
	}).Info("request: заявка отменена")
	return out, nil
}

// settleQuote фиксирует отказ от сметы и штраф за отмену после выезда мастера.
func (uc *CancelRequestUseCase) settleQuote(ctx context.Context, tx repository.Repositories, input CancelInput, engaged bool, out *CancelOutput, now time.Time) error {
	quote, err := tx.Quotes().FindByRequestID(ctx, input.RequestID)
	if common.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return common.StoreError(err, nil, "не удалось получить смету")
	}
	out.Quote = quote

	if input.QuoteRejectionReason != nil {
		before := audit.QuoteSnapshot(quote)
		if err := quote.Reject(*input.QuoteRejectionReason, now); err != nil {
			return err
		}
		if err := tx.Quotes().Update(ctx, quote); err != nil {
			return common.StoreError(err, nil, "не удалось обновить смету")
		}
		if err := audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditQuoteRejected,
			EntityType: entity.AuditEntityQuote,
			EntityID:   quote.ID,
			ActorID:    audit.Actor(input.ClientID),
			Old:        before,
			New:        audit.QuoteSnapshot(quote),
		}, now); err != nil {
			return err
		}
	}

	if !engaged {
		return nil
	}
	base := quote.PayableAmount()
	if p, err := tx.Payments().FindByRequestID(ctx, input.RequestID); err == nil {
		base = p.Amount
	} else if !common.IsNotFound(err) {
		return common.StoreError(err, nil, "не удалось получить платёж")
	}
	split := entity.ComputePenalty(base, uc.rules.CancellationPenalty, uc.rules.PenaltyToPlatform)
	out.Penalty = &split

	before := audit.QuoteSnapshot(quote)
	quote.ApplyPenalty(split.Total, now)
	if err := tx.Quotes().Update(ctx, quote); err != nil {
		return common.StoreError(err, nil, "не удалось обновить смету")
	}
	return audit.Record(ctx, tx, audit.Change{
		Action:     entity.AuditQuotePenaltyApplied,
		EntityType: entity.AuditEntityQuote,
		EntityID:   quote.ID,
		ActorID:    audit.Actor(input.ClientID),
		Old:        before,
		New:        audit.QuoteSnapshot(quote),
	}, now)
}
