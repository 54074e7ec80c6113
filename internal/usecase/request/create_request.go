package request

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
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/refcode"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/common"
)

// DispatchStarter открывает первый раунд рассылки для проанализированной заявки.
type DispatchStarter interface {
	Start(ctx context.Context, requestID uuid.UUID) (*entity.DispatchRound, error)
}

type CreateRequestInput struct {
	ClientID       uuid.UUID
	Category       string
	Title          string
	Description    string
	GuidedAnswers  entity.GuidedAnswers
	MediaURLs      []string
	Latitude       float64
	Longitude      float64
	Address        string
	AddressDetails *string
	IsUrgent       bool
	PreferredTime  *time.Time
}

type CreateRequestOutput struct {
	Request *entity.Request
	Quote   *entity.Quote
	Round   *entity.DispatchRound
	// AnalysisError заполняется, если оценщик недоступен. Заявка остаётся в PENDING.
	AnalysisError error
}

type CreateRequestUseCase struct {
	store      repository.Store
	analyzer   *Analyzer
	dispatcher DispatchStarter
	rules      config.Marketplace
}

func NewCreateRequestUseCase(store repository.Store, analyzer *Analyzer, dispatcher DispatchStarter, rules config.Marketplace) *CreateRequestUseCase {
	return &CreateRequestUseCase{store: store, analyzer: analyzer, dispatcher: dispatcher, rules: rules}
}

func (uc *CreateRequestUseCase) Execute(ctx context.Context, input CreateRequestInput) (*CreateRequestOutput, error) {
	now := time.Now().UTC()
	params := entity.NewRequestParams{
		ClientID:       input.ClientID,
		Category:       input.Category,
		Title:          input.Title,
		Description:    input.Description,
		GuidedAnswers:  input.GuidedAnswers,
		MediaURLs:      input.MediaURLs,
		Latitude:       input.Latitude,
		Longitude:      input.Longitude,
		Address:        input.Address,
		AddressDetails: input.AddressDetails,
		IsUrgent:       input.IsUrgent,
		PreferredTime:  input.PreferredTime,
	}

	var req *entity.Request
	for attempt := 0; attempt < uc.rules.ReferenceCodeMaxAttempts; attempt++ {
		code, err := refcode.NewRequestCode(now)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сгенерировать код заявки")
		}
		params.ReferenceCode = code
		candidate, err := entity.NewRequest(params, now)
		if err != nil {
			return nil, err
		}

		err = uc.store.WithinTx(ctx, func(tx repository.Repositories) error {
			if err := tx.Requests().Create(ctx, candidate); err != nil {
				return err
			}
			return audit.Record(ctx, tx, audit.Change{
				Action:     entity.AuditRequestCreated,
				EntityType: entity.AuditEntityRequest,
				EntityID:   candidate.ID,
				ActorID:    audit.Actor(input.ClientID),
				New:        audit.RequestSnapshot(candidate),
			}, now)
		})
		if errors.Is(err, repository.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, common.StoreError(err, nil, "не удалось создать заявку")
		}
		req = candidate
		break
	}
	if req == nil {
		return nil, apperror.Conflict("не удалось подобрать уникальный код заявки")
	}

	out := &CreateRequestOutput{Request: req}
	analyzed, quote, err := uc.analyzer.Analyze(ctx, req.ID)
	if err != nil {
		if !apperror.IsExternal(err) {
			return nil, err
		}
		out.AnalysisError = err
		return out, nil
	}
	out.Request, out.Quote = analyzed, quote

	if uc.rules.AutoDispatch && uc.dispatcher != nil {
		round, err := uc.dispatcher.Start(ctx, req.ID)
		if err != nil {
			logger.Log.WithError(err).WithField("request_id", req.ID).Error("request: не удалось запустить рассылку")
			return out, nil
		}
		out.Round = round
		if refreshed, err := uc.store.Requests().FindByID(ctx, req.ID); err == nil {
			out.Request = refreshed
		}
	}
	return out, nil
}

// Analyzer вызывает оценщика вне транзакции и применяет результат вместе с созданием сметы.
type Analyzer struct {
	store     repository.Store
	estimator repository.Estimator
}

func NewAnalyzer(store repository.Store, estimator repository.Estimator) *Analyzer {
	return &Analyzer{store: store, estimator: estimator}
}

func (a *Analyzer) Analyze(ctx context.Context, requestID uuid.UUID) (*entity.Request, *entity.Quote, error) {
	req, err := a.store.Requests().FindByID(ctx, requestID)
	if err != nil {
		return nil, nil, common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
	}
	if !req.Status.CanTransitionTo(valueobject.RequestStatusAnalyzed) {
		return nil, nil, apperror.InvalidTransition("request", string(req.Status), string(valueobject.RequestStatusAnalyzed))
	}

	assessment, err := a.estimator.Estimate(ctx, repository.EstimateInput{
		Category:      req.Category,
		Description:   req.Description,
		GuidedAnswers: req.GuidedAnswers,
		MediaURLs:     req.MediaURLs,
	})
	if err != nil {
		logger.Log.WithError(err).WithField("request_id", req.ID).Warn("request: оценщик недоступен")
		return nil, nil, apperror.External(err, "estimator")
	}
	if err := assessment.Validate(); err != nil {
		return nil, nil, apperror.External(err, "estimator")
	}

	now := time.Now().UTC()
	var quote *entity.Quote
	err = a.store.WithinTx(ctx, func(tx repository.Repositories) error {
		var err error
		req, err = tx.Requests().FindForUpdate(ctx, requestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		before := audit.RequestSnapshot(req)
		if err := req.ApplyAssessment(*assessment, now); err != nil {
			return err
		}
		quote, err = entity.NewQuote(req.ID, assessment.PriceRange, now)
		if err != nil {
			return err
		}
		if err := tx.Requests().Update(ctx, req); err != nil {
			return common.StoreError(err, nil, "не удалось обновить заявку")
		}
		if err := tx.Quotes().Create(ctx, quote); err != nil {
			return common.StoreError(err, nil, "не удалось создать смету")
		}
		if err := audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditRequestAnalyzed,
			EntityType: entity.AuditEntityRequest,
			EntityID:   req.ID,
			Old:        before,
			New:        audit.RequestSnapshot(req),
		}, now); err != nil {
			return err
		}
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditQuoteCreated,
			EntityType: entity.AuditEntityQuote,
			EntityID:   quote.ID,
			New:        audit.QuoteSnapshot(quote),
		}, now)
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"severity":   assessment.Severity,
		"confidence": assessment.Confidence,
	}).Info("request: заявка проанализирована")
	return req, quote, nil
}
