package dispatch

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

// Dispatcher ведёт раунды рассылки предложений мастерам и принимает отклики.
type Dispatcher struct {
	store    repository.Store
	notifier repository.Notifier
	matcher  *Matcher
	policy   EscalationPolicy
	rules    config.Marketplace
}

func NewDispatcher(store repository.Store, notifier repository.Notifier, rules config.Marketplace) *Dispatcher {
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		matcher:  NewMatcher(rules.TechniciansPerRound),
		policy:   DefaultEscalation{MaxRounds: rules.MaxDispatchRounds},
		rules:    rules,
	}
}

// WithEscalationPolicy заменяет политику эскалации.
func (d *Dispatcher) WithEscalationPolicy(p EscalationPolicy) *Dispatcher {
	d.policy = p
	return d
}

// Start переводит заявку из ANALYZED в DISPATCHING и открывает первый раунд.
func (d *Dispatcher) Start(ctx context.Context, requestID uuid.UUID) (*entity.DispatchRound, error) {
	var (
		req      *entity.Request
		round    *entity.DispatchRound
		selected []*entity.Technician
	)
	now := time.Now().UTC()

	err := d.store.WithinTx(ctx, func(tx repository.Repositories) error {
		var err error
		req, err = tx.Requests().FindForUpdate(ctx, requestID)
		if err != nil {
			return common.StoreError(err, apperror.ErrRequestNotFound, "не удалось получить заявку")
		}
		before := audit.RequestSnapshot(req)
		if err := req.StartDispatch(now); err != nil {
			return err
		}

		selected, err = d.selectCandidates(ctx, tx, req, nil)
		if err != nil {
			return err
		}
		round = entity.NewDispatchRound(req.ID, 1, 0, technicianIDs(selected), d.rules.DispatchWindow, now)

		if err := tx.Requests().Update(ctx, req); err != nil {
			return common.StoreError(err, nil, "не удалось обновить заявку")
		}
		if err := tx.Dispatch().CreateRound(ctx, round); err != nil {
			return common.StoreError(err, nil, "не удалось сохранить раунд рассылки")
		}
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditRequestDispatched,
			EntityType: entity.AuditEntityRequest,
			EntityID:   req.ID,
			Old:        before,
			New:        roundSnapshot(round),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	d.notifyRound(ctx, req, round, selected)
	return round, nil
}

// selectCandidates берёт до K лучших мастеров нужной специализации и добирает
// остальных, только если профильных не хватило.
func (d *Dispatcher) selectCandidates(ctx context.Context, tx repository.Repositories, req *entity.Request, exclude []uuid.UUID) ([]*entity.Technician, error) {
	list := func(match repository.SpecializationMatch, limit int) ([]*entity.Technician, error) {
		techs, err := tx.Technicians().ListEligible(ctx, repository.TechnicianFilter{
			OnlyEligible: true,
			Exclude:      exclude,
			Category:     req.Category,
			Match:        match,
			Limit:        limit,
		})
		if err != nil {
			return nil, common.StoreError(err, nil, "не удалось получить список мастеров")
		}
		return techs, nil
	}

	k := d.matcher.PerRound()
	pool, err := list(repository.WithSpecialization, k)
	if err != nil {
		return nil, err
	}
	if len(pool) < k {
		others, err := list(repository.WithoutSpecialization, k-len(pool))
		if err != nil {
			return nil, err
		}
		pool = append(pool, others...)
	}
	return d.matcher.Select(pool, req.Category), nil
}

// notifyRound рассылает предложения после фиксации транзакции.
// Если не доставлено ни одного уведомления, раунд истекает сразу и попадает под эскалацию.
func (d *Dispatcher) notifyRound(ctx context.Context, req *entity.Request, round *entity.DispatchRound, selected []*entity.Technician) {
	log := logger.Log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"round":      round.Number,
		"level":      round.Level,
	})
	if len(selected) == 0 {
		log.Warn("dispatch: нет подходящих мастеров, раунд будет эскалирован")
		return
	}

	delivered, failed := 0, 0
	for _, tech := range selected {
		notifyCtx, cancel := context.WithTimeout(ctx, d.rules.NotifyTimeout)
		err := d.notifier.NotifyTechnician(notifyCtx, tech, req, round.Level)
		cancel()
		if err != nil {
			failed++
			log.WithError(err).WithField("technician_id", tech.ID).Warn("dispatch: не удалось уведомить мастера")
			continue
		}
		delivered++
	}

	err := d.store.WithinTx(ctx, func(tx repository.Repositories) error {
		latest, err := tx.Dispatch().LatestRound(ctx, req.ID)
		if err != nil {
			return err
		}
		if latest.ID != round.ID || !latest.IsOpen() {
			return nil
		}
		latest.Delivered = delivered
		latest.Failed = failed
		if delivered == 0 {
			latest.ExpiresAt = time.Now().UTC()
		}
		return tx.Dispatch().UpdateRound(ctx, latest)
	})
	if err != nil {
		log.WithError(err).Error("dispatch: не удалось сохранить итоги рассылки")
		return
	}
	log.WithFields(logrus.Fields{"delivered": delivered, "failed": failed}).Info("dispatch: раунд разослан")
}

func technicianIDs(list []*entity.Technician) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(list))
	for _, t := range list {
		ids = append(ids, t.ID)
	}
	return ids
}

type roundState struct {
	Number        int         `json:"round"`
	Level         int         `json:"level"`
	TechnicianIDs []uuid.UUID `json:"technician_ids"`
	Outcome       string      `json:"outcome"`
}

func roundSnapshot(r *entity.DispatchRound) roundState {
	ids := make([]uuid.UUID, 0, len(r.Offers))
	for _, o := range r.Offers {
		ids = append(ids, o.TechnicianID)
	}
	return roundState{Number: r.Number, Level: r.Level, TechnicianIDs: ids, Outcome: string(r.Outcome)}
}
