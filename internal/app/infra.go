package app

import (
	"context"
	"fmt"

	"github.com/ignatzorin/prontocasa-backend/internal/ai"
	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/db"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	aiAdapter "github.com/ignatzorin/prontocasa-backend/internal/infrastructure/ai"
	"github.com/ignatzorin/prontocasa-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/prontocasa-backend/internal/infrastructure/payments"
	"github.com/ignatzorin/prontocasa-backend/internal/infrastructure/persistence"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
)

// StoreHandle — открытое хранилище. Pinger и Close заполнены только для PostgreSQL.
type StoreHandle struct {
	Store  repository.Store
	Pinger interface {
		Ping(ctx context.Context) error
	}
	Close func() error
}

// OpenStore открывает хранилище согласно STORE_DRIVER. При migrate=true применяет миграции.
func OpenStore(ctx context.Context, cfg *config.Config, migrate bool) (*StoreHandle, error) {
	if cfg.StoreDriver == "memory" {
		logger.Log.Warn("app: используется хранилище в памяти, данные не сохраняются между запусками")
		return &StoreHandle{Store: memory.NewStore(), Close: func() error { return nil }}, nil
	}

	conn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPool())
	if err != nil {
		return nil, err
	}
	if migrate {
		applied, err := db.RunMigrations(ctx, conn, cfg.MigrationsPath)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("app: ошибка миграций: %w", err)
		}
		if len(applied) > 0 {
			logger.Log.WithField("migrations", applied).Info("app: миграции применены")
		}
	}
	store := persistence.NewStore(conn)
	return &StoreHandle{Store: store, Pinger: store, Close: conn.Close}, nil
}

// NewEstimator возвращает оценщик на модели, если задан AI_BASE_URL, иначе эвристику.
func NewEstimator(cfg *config.Config) repository.Estimator {
	if cfg.AIBaseURL == "" {
		logger.Log.Info("app: AI_BASE_URL не задан, оценка заявок по эвристике")
		return aiAdapter.NewEstimatorAdapter(nil, true)
	}
	return aiAdapter.NewEstimatorAdapter(ai.NewClient(cfg.AIBaseURL, cfg.AIModel, cfg.AIAPIKey), true)
}

// NewProcessor создаёт платёжный шлюз Mercado Pago.
func NewProcessor(cfg *config.Config) (repository.EscrowProcessor, error) {
	gateway, err := payments.NewMercadoPagoGateway(cfg.MercadoPagoToken, cfg.PaymentMock)
	if err != nil {
		return nil, err
	}
	return gateway, nil
}
