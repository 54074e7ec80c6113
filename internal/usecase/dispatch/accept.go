package dispatch

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
)

type AcceptInput struct {
	TechnicianID uuid.UUID
	RequestID    uuid.UUID
	ETAMinutes   int
}

// Accept принимает заявку мастером. Из нескольких одновременных откликов выигрывает ровно один,
// остальные получают ErrRequestNoLongerAvailable.
func (d *Dispatcher) Accept(ctx context.Context, input AcceptInput) (*entity.Request, error) {
	if err := entity.ValidateETA(input.ETAMinutes); err != nil {
		return nil, err
	}

	tech, err := d.store.Technicians().FindByID(ctx, input.TechnicianID)
	if err != nil {
		return nil, common.StoreError(err, apperror.ErrTechnicianNotFound, "не удалось получить профиль мастера")
	}
	if !tech.IsActive || !tech.IsVerified {
		return nil, apperror.Forbidden("мастер не активен или не верифицирован")
	}
	offered, err := d.store.Dispatch().HasOffer(ctx, input.RequestID, tech.ID)
	if err != nil {
		return nil, common.StoreError(err, nil, "не удалось проверить предложение")
	}
	if !offered {
		if _, err := d.store.Requests().FindByID(ctx, input.RequestID); err != nil {
			return nil, common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		return nil, apperror.Forbidden("заявка не предлагалась этому мастеру")
	}

	now := time.Now().UTC()
	arrival := now.Add(time.Duration(input.ETAMinutes) * time.Minute)
	var accepted *entity.Request

	err = d.store.WithinTx(ctx, func(tx repository.Repositories) error {
		ok, err := tx.Requests().AssignTechnician(ctx, input.RequestID, tech.ID, now, arrival)
		if err != nil {
			return common.StoreError(err, nil, "не удалось назначить мастера")
		}
		if !ok {
			current, err := tx.Requests().FindByID(ctx, input.RequestID)
			if err != nil {
				return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
			}
			return apperror.ErrRequestNoLongerAvailable.WithDetails(map[string]any{
				"current_status": string(current.Status),
			})
		}

		accepted, err = tx.Requests().FindByID(ctx, input.RequestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		if latest, err := tx.Dispatch().LatestRound(ctx, input.RequestID); err == nil {
			latest.Close(entity.RoundOutcomeAccepted, now)
			if err := tx.Dispatch().UpdateRound(ctx, latest); err != nil {
				return common.StoreError(err, nil, "не удалось закрыть раунд рассылки")
			}
		} else if !common.IsNotFound(err) {
			return common.StoreError(err, nil, "не удалось получить раунд рассылки")
		}

		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditRequestAccepted,
			EntityType: entity.AuditEntityRequest,
			EntityID:   accepted.ID,
			ActorID:    audit.Actor(tech.UserID),
			Old:        audit.RequestState{Status: "dispatching"},
			New:        audit.RequestSnapshot(accepted),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"request_id":    accepted.ID,
		"technician_id": tech.ID,
		"eta_minutes":   input.ETAMinutes,
	}).Info("dispatch: заявка принята мастером")
	return accepted, nil
}

// Pending возвращает заявки, предложенные мастеру и ещё никем не принятые.
func (d *Dispatcher) Pending(ctx context.Context, technicianID uuid.UUID, limit int) ([]*entity.Request, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := d.store.Dispatch().PendingForTechnician(ctx, technicianID, limit)
	if err != nil {
		return nil, common.StoreError(err, nil, "не удалось получить список предложений")
	}
	return list, nil
}

// Rounds возвращает историю раундов рассылки по заявке.
func (d *Dispatcher) Rounds(ctx context.Context, requestID uuid.UUID) ([]*entity.DispatchRound, error) {
	rounds, err := d.store.Dispatch().ListRounds(ctx, requestID)
	if err != nil {
		return nil, common.StoreError(err, nil, "не удалось получить раунды рассылки")
	}
	return rounds, nil
}
