package dispatch

import (
	"context"
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

const sweepBatchSize = 100

// EscalationStep — решение политики по истёкшему раунду.
type EscalationStep struct {
	Stop    bool
	Exclude []uuid.UUID
	Level   int
	// Widen разрешает повторную рассылку всем допустимым мастерам, если новых кандидатов нет.
	Widen bool
}

// EscalationPolicy решает, что делать с раундом, на который никто не откликнулся.
type EscalationPolicy interface {
	Next(latest *entity.DispatchRound, history []*entity.DispatchRound) EscalationStep
}

// DefaultEscalation исключает уже оповещённых мастеров, а когда новых нет,
// повторяет рассылку всем с повышенной срочностью. После MaxRounds рассылка прекращается.
type DefaultEscalation struct {
	MaxRounds int
}

func (p DefaultEscalation) Next(latest *entity.DispatchRound, history []*entity.DispatchRound) EscalationStep {
	if latest.Number >= p.MaxRounds {
		return EscalationStep{Stop: true}
	}
	seen := make(map[uuid.UUID]struct{})
	var exclude []uuid.UUID
	for _, r := range history {
		for _, o := range r.Offers {
			if _, ok := seen[o.TechnicianID]; ok {
				continue
			}
			seen[o.TechnicianID] = struct{}{}
			exclude = append(exclude, o.TechnicianID)
		}
	}
	return EscalationStep{Exclude: exclude, Level: latest.Level, Widen: true}
}

// Sweep обрабатывает раунды, окно которых истекло без отклика, и при включённой автоматической
// рассылке запускает её для заявок, застрявших в ANALYZED. Возвращает число обработанных заявок.
func (d *Dispatcher) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := d.store.Dispatch().ExpiredRounds(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, common.StoreError(err, nil, "не удалось получить истёкшие раунды")
	}
	handled := 0
	for _, round := range expired {
		if err := ctx.Err(); err != nil {
			return handled, err
		}
		if err := d.escalate(ctx, round.RequestID, round.ID, now); err != nil {
			logger.Log.WithError(err).WithField("request_id", round.RequestID).Error("dispatch: эскалация не удалась")
			continue
		}
		handled++
	}

	started, err := d.resumeAnalyzed(ctx, now)
	return handled + started, err
}

// resumeAnalyzed повторяет запуск рассылки для заявок, у которых первый Start не удался.
// Свежие заявки пропускаются: их рассылку ещё запускает создание или повторный анализ.
func (d *Dispatcher) resumeAnalyzed(ctx context.Context, now time.Time) (int, error) {
	if !d.rules.AutoDispatch {
		return 0, nil
	}
	stale, err := d.store.Requests().FindStale(ctx, valueobject.RequestStatusAnalyzed, now.Add(-d.rules.DispatchSweepInterval), sweepBatchSize)
	if err != nil {
		return 0, common.StoreError(err, nil, "не удалось получить заявки без рассылки")
	}
	started := 0
	for _, req := range stale {
		if err := ctx.Err(); err != nil {
			return started, err
		}
		if _, err := d.Start(ctx, req.ID); err != nil {
			if apperror.IsInvalidTransition(err) {
				continue
			}
			logger.Log.WithError(err).WithField("request_id", req.ID).Error("dispatch: повторный запуск рассылки не удался")
			continue
		}
		started++
	}
	return started, nil
}

func (d *Dispatcher) escalate(ctx context.Context, requestID, roundID uuid.UUID, now time.Time) error {
	var (
		req      *entity.Request
		next     *entity.DispatchRound
		selected []*entity.Technician
	)

	err := d.store.WithinTx(ctx, func(tx repository.Repositories) error {
		var err error
		req, err = tx.Requests().FindForUpdate(ctx, requestID)
		if err != nil {
			return common.StoreError(err, nil, "не удалось получить заявку")
		}
		if req.Status != valueobject.RequestStatusDispatching {
			return nil
		}
		latest, err := tx.Dispatch().LatestRound(ctx, requestID)
		if err != nil {
			return common.StoreError(err, nil, "не удалось получить раунд рассылки")
		}
		if latest.ID != roundID || !latest.IsExpired(now) {
			return nil
		}
		history, err := tx.Dispatch().ListRounds(ctx, requestID)
		if err != nil {
			return common.StoreError(err, nil, "не удалось получить раунды рассылки")
		}

		step := d.policy.Next(latest, history)
		if step.Stop {
			latest.Close(entity.RoundOutcomeExhausted, now)
			if err := tx.Dispatch().UpdateRound(ctx, latest); err != nil {
				return common.StoreError(err, nil, "не удалось закрыть раунд рассылки")
			}
			logger.Log.WithFields(logrus.Fields{
				"request_id": req.ID,
				"reference":  req.ReferenceCode,
				"rounds":     latest.Number,
			}).Warn("dispatch: мастера не откликнулись, требуется вмешательство оператора")
			return audit.Record(ctx, tx, audit.Change{
				Action:     entity.AuditDispatchExhausted,
				EntityType: entity.AuditEntityRequest,
				EntityID:   req.ID,
				Old:        roundSnapshot(latest),
			}, now)
		}

		level := step.Level
		selected, err = d.selectCandidates(ctx, tx, req, step.Exclude)
		if err != nil {
			return err
		}
		if len(selected) == 0 && step.Widen {
			level++
			selected, err = d.selectCandidates(ctx, tx, req, nil)
			if err != nil {
				return err
			}
		}

		latest.Close(entity.RoundOutcomeEscalated, now)
		if err := tx.Dispatch().UpdateRound(ctx, latest); err != nil {
			return common.StoreError(err, nil, "не удалось закрыть раунд рассылки")
		}
		next = entity.NewDispatchRound(req.ID, latest.Number+1, level, technicianIDs(selected), d.rules.DispatchWindow, now)
		if err := tx.Dispatch().CreateRound(ctx, next); err != nil {
			return common.StoreError(err, nil, "не удалось сохранить раунд рассылки")
		}
		return audit.Record(ctx, tx, audit.Change{
			Action:     entity.AuditRequestRedispatched,
			EntityType: entity.AuditEntityRequest,
			EntityID:   req.ID,
			Old:        roundSnapshot(latest),
			New:        roundSnapshot(next),
		}, now)
	})
	if err != nil {
		return err
	}
	if next != nil {
		d.notifyRound(ctx, req, next, selected)
	}
	return nil
}

// Run периодически запускает Sweep до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = d.rules.DispatchSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.Sweep(ctx, time.Now().UTC())
			if err != nil {
				logger.Log.WithError(err).Error("dispatch: ошибка обхода раундов")
				continue
			}
			if n > 0 {
				logger.Log.WithField("requests", n).Info("dispatch: заявки обработаны")
			}
		}
	}
}
