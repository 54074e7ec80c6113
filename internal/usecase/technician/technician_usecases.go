package technician

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/valueobject"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/common"
)

type OnboardInput struct {
	UserID          uuid.UUID
	DisplayName     string
	Specializations []string
	HourlyRate      valueobject.Cents
	Latitude        *float64
	Longitude       *float64
}

var errNotOwner = apperror.Forbidden("изменять профиль может только его владелец")

type UseCases struct {
	store repository.Store
}

func NewUseCases(store repository.Store) *UseCases {
	return &UseCases{store: store}
}

// Onboard создаёт профиль мастера. Новый мастер не получает заявок до верификации.
func (uc *UseCases) Onboard(ctx context.Context, input OnboardInput) (*entity.Technician, error) {
	if (input.Latitude == nil) != (input.Longitude == nil) {
		return nil, apperror.Validation("location", "укажите обе координаты")
	}
	now := time.Now().UTC()
	var tech *entity.Technician
	err := uc.store.WithinTx(ctx, func(tx repository.Repositories) error {
		if _, err := tx.Technicians().FindByUserID(ctx, input.UserID); err == nil {
			return apperror.Conflict("профиль мастера уже существует")
		} else if !common.IsNotFound(err) {
			return common.StoreError(err, nil, "не удалось проверить профиль мастера")
		}
		code, err := tx.Technicians().NextCode(ctx)
		if err != nil {
			return common.StoreError(err, nil, "не удалось выдать код мастера")
		}
		tech, err = entity.NewTechnician(input.UserID, code, input.DisplayName, input.Specializations, input.HourlyRate, now)
		if err != nil {
			return err
		}
		if input.Latitude != nil {
			if err := tech.UpdateLocation(*input.Latitude, *input.Longitude, now); err != nil {
				return err
			}
		}
		if err := tx.Technicians().Create(ctx, tech); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return apperror.Conflict("профиль мастера уже существует")
			}
			return common.StoreError(err, nil, "не удалось создать профиль мастера")
		}
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditTechnicianOnboarded,
			EntityType: entity.AuditEntityTechnician,
			EntityID:   tech.ID,
			ActorID:    audit.Actor(input.UserID),
			New:        audit.TechnicianSnapshot(tech),
		}, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(logrus.Fields{
		"technician_id": tech.ID,
		"code":          tech.Code,
	}).Info("technician: профиль создан")
	return tech, nil
}

// update применяет изменение профиля мастера и пишет аудит, если профиль изменился.
func (uc *UseCases) update(
	ctx context.Context,
	technicianID, actorID uuid.UUID,
	action entity.AuditAction,
	apply func(t *entity.Technician, now time.Time) (bool, error),
) (*entity.Technician, error) {
	now := time.Now().UTC()
	var tech *entity.Technician
	err := uc.store.WithinTx(ctx, func(tx repository.Repositories) error {
		var err error
		tech, err = tx.Technicians().FindByID(ctx, technicianID)
		if err != nil {
			return common.StoreError(err, apperror.ErrTechnicianNotFound, "не удалось получить профиль мастера")
		}
		before := audit.TechnicianSnapshot(tech)
		changed, err := apply(tech, now)
		if err != nil || !changed {
			return err
		}
		if err := tx.Technicians().Update(ctx, tech); err != nil {
			return common.StoreError(err, nil, "не удалось обновить профиль мастера")
		}
		return audit.Record(ctx, tx, audit.Change{
			Action:     action,
			EntityType: entity.AuditEntityTechnician,
			EntityID:   tech.ID,
			ActorID:    audit.Actor(actorID),
			Old:        before,
			New:        audit.TechnicianSnapshot(tech),
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return tech, nil
}

// Verify отмечает мастера проверенным. Повторный вызов ничего не меняет.
func (uc *UseCases) Verify(ctx context.Context, adminID, technicianID uuid.UUID) (*entity.Technician, error) {
	tech, err := uc.update(ctx, technicianID, adminID, entity.AuditTechnicianVerified,
		func(t *entity.Technician, now time.Time) (bool, error) {
			return t.Verify(adminID, now), nil
		})
	if err != nil {
		return nil, err
	}
	logger.Log.WithFields(logrus.Fields{
		"technician_id": tech.ID,
		"admin_id":      adminID,
	}).Info("technician: мастер верифицирован")
	return tech, nil
}

func (uc *UseCases) UpdateAvailability(ctx context.Context, technicianID, userID uuid.UUID, u entity.AvailabilityUpdate) (*entity.Technician, error) {
	for day, slots := range u.Schedule {
		if day == "" || len(slots) == 0 {
			return nil, apperror.Validation("availability_schedule", "пустой день или интервал в расписании")
		}
	}
	return uc.update(ctx, technicianID, userID, entity.AuditTechnicianAvailable,
		func(t *entity.Technician, now time.Time) (bool, error) {
			if t.UserID != userID {
				return false, errNotOwner
			}
			t.UpdateAvailability(u, now)
			return true, nil
		})
}

func (uc *UseCases) UpdateLocation(ctx context.Context, technicianID, userID uuid.UUID, lat, lng float64) (*entity.Technician, error) {
	return uc.update(ctx, technicianID, userID, entity.AuditTechnicianLocation,
		func(t *entity.Technician, now time.Time) (bool, error) {
			if t.UserID != userID {
				return false, errNotOwner
			}
			if err := t.UpdateLocation(lat, lng, now); err != nil {
				return false, err
			}
			return true, nil
		})
}

func (uc *UseCases) GetByID(ctx context.Context, technicianID uuid.UUID) (*entity.Technician, error) {
	tech, err := uc.store.Technicians().FindByID(ctx, technicianID)
	if err != nil {
		return nil, common.StoreError(err, apperror.ErrTechnicianNotFound, "не удалось получить профиль мастера")
	}
	return tech, nil
}

func (uc *UseCases) GetByUser(ctx context.Context, userID uuid.UUID) (*entity.Technician, error) {
	tech, err := uc.store.Technicians().FindByUserID(ctx, userID)
	if err != nil {
		return nil, common.StoreError(err, apperror.ErrTechnicianNotFound, "не удалось получить профиль мастера")
	}
	return tech, nil
}
