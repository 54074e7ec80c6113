package request

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/common"
)

// transitionRequest загружает заявку под блокировкой, применяет переход и пишет аудит одной транзакцией.
func transitionRequest(
	ctx context.Context,
	store repository.Store,
	requestID uuid.UUID,
	actorID uuid.UUID,
	action entity.AuditAction,
	apply func(req *entity.Request, now time.Time) error,
) (*entity.Request, error) {
	now := time.Now().UTC()
	var req *entity.Request
	err := store.WithinTx(ctx, func(tx repository.Repositories) error {
		var err error
		req, err = tx.Requests().FindForUpdate(ctx, requestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		before := audit.RequestSnapshot(req)
		if err := apply(req, now); err != nil {
			return err
		}
		if err := req.CheckInvariants(); err != nil {
			return err
		}
		if err := tx.Requests().Update(ctx, req); err != nil {
			return common.StoreError(err, nil, "не удалось обновить заявку")
		}
		return audit.Record(ctx, tx, audit.Change{
			Action:     action,
			EntityType: entity.AuditEntityRequest,
			EntityID:   req.ID,
			ActorID:    audit.Actor(actorID),
			Old:        before,
			New:        audit.RequestSnapshot(req),
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// TechnicianActionInput — действие назначенного мастера над заявкой.
type TechnicianActionInput struct {
	RequestID    uuid.UUID
	TechnicianID uuid.UUID
	UserID       uuid.UUID
}

type MarkEnRouteUseCase struct {
	store repository.Store
}

func NewMarkEnRouteUseCase(store repository.Store) *MarkEnRouteUseCase {
	return &MarkEnRouteUseCase{store: store}
}

func (uc *MarkEnRouteUseCase) Execute(ctx context.Context, input TechnicianActionInput) (*entity.Request, error) {
	return transitionRequest(ctx, uc.store, input.RequestID, input.UserID, entity.AuditRequestEnRoute,
		func(req *entity.Request, now time.Time) error {
			return req.DepartEnRoute(input.TechnicianID, now)
		})
}

type StartWorkUseCase struct {
	store repository.Store
}

func NewStartWorkUseCase(store repository.Store) *StartWorkUseCase {
	return &StartWorkUseCase{store: store}
}

func (uc *StartWorkUseCase) Execute(ctx context.Context, input TechnicianActionInput) (*entity.Request, error) {
	return transitionRequest(ctx, uc.store, input.RequestID, input.UserID, entity.AuditRequestStarted,
		func(req *entity.Request, now time.Time) error {
			return req.StartWork(input.TechnicianID, now)
		})
}

type CompleteWorkInput struct {
	TechnicianActionInput
	Photos []string
}

type CompleteWorkUseCase struct {
	store repository.Store
	rules config.Marketplace
}

func NewCompleteWorkUseCase(store repository.Store, rules config.Marketplace) *CompleteWorkUseCase {
	return &CompleteWorkUseCase{store: store, rules: rules}
}

func (uc *CompleteWorkUseCase) Execute(ctx context.Context, input CompleteWorkInput) (*entity.Request, error) {
	for _, p := range input.Photos {
		if p == "" {
			return nil, apperror.Validation("photos", "пустая ссылка на фото")
		}
	}
	return transitionRequest(ctx, uc.store, input.RequestID, input.UserID, entity.AuditRequestCompleted,
		func(req *entity.Request, now time.Time) error {
			return req.Complete(input.TechnicianID, input.Photos, uc.rules.MaxCompletionPhotos, uc.rules.ComplaintWindow, now)
		})
}

type FileComplaintInput struct {
	RequestID uuid.UUID
	ClientID  uuid.UUID
	Notes     string
}

type FileComplaintUseCase struct {
	store repository.Store
}

func NewFileComplaintUseCase(store repository.Store) *FileComplaintUseCase {
	return &FileComplaintUseCase{store: store}
}

func (uc *FileComplaintUseCase) Execute(ctx context.Context, input FileComplaintInput) (*entity.Request, error) {
	return transitionRequest(ctx, uc.store, input.RequestID, input.ClientID, entity.AuditRequestDisputed,
		func(req *entity.Request, now time.Time) error {
			return req.FileComplaint(input.ClientID, input.Notes, now)
		})
}

// ReanalyzeUseCase повторяет оценку заявки, оставшейся в PENDING из-за сбоя оценщика.
type ReanalyzeUseCase struct {
	analyzer   *Analyzer
	dispatcher DispatchStarter
	rules      config.Marketplace
}

func NewReanalyzeUseCase(analyzer *Analyzer, dispatcher DispatchStarter, rules config.Marketplace) *ReanalyzeUseCase {
	return &ReanalyzeUseCase{analyzer: analyzer, dispatcher: dispatcher, rules: rules}
}

func (uc *ReanalyzeUseCase) Execute(ctx context.Context, requestID uuid.UUID) (*entity.Request, error) {
	req, _, err := uc.analyzer.Analyze(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if uc.rules.AutoDispatch && uc.dispatcher != nil {
		if _, err := uc.dispatcher.Start(ctx, requestID); err != nil {
			return req, err
		}
	}
	return req, nil
}
