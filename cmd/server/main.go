package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignatzorin/prontocasa-backend/internal/app"
	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/goroutine"
	httpRouter "github.com/ignatzorin/prontocasa-backend/internal/http/router"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/handler"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
	"github.com/ignatzorin/prontocasa-backend/internal/service"
	"github.com/ignatzorin/prontocasa-backend/internal/storage"
	"github.com/ignatzorin/prontocasa-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if cfg.Env == "development" {
		logger.SetTextFormatter()
	}

	handle, err := app.OpenStore(ctx, cfg, true)
	if err != nil {
		logger.Log.WithError(err).Fatal("main: ошибка подключения к хранилищу")
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Log.WithError(err).Warn("main: ошибка закрытия хранилища")
		}
	}()

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	signatures, err := storage.NewSignatureStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		logger.Log.WithError(err).Fatal("main: не удалось подготовить хранилище подписей")
	}

	processor, err := app.NewProcessor(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("main: не удалось создать платёжный шлюз")
	}

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	goroutine.SafeGo("ws-hub", hub.Run)

	services := app.NewServices(app.Deps{
		Store:      handle.Store,
		Estimator:  app.NewEstimator(cfg),
		Notifier:   ws.NewNotifier(hub),
		Processor:  processor,
		Signatures: signatures,
	}, cfg.Marketplace)

	// Эскалация просроченных раундов рассылки.
	goroutine.SafeGoWithContext(ctx, "dispatch-sweeper", func(ctx context.Context) {
		services.Dispatcher.Run(ctx, cfg.Marketplace.DispatchSweepInterval)
	})

	var pinger handler.Pinger
	if handle.Pinger != nil {
		pinger = handle.Pinger
	}

	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Health:     handler.NewHealthHandler(pinger, cfg.StoreDriver),
		WS:         handler.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		Request:    handler.NewRequestHandler(services.Requests, services.Dispatcher),
		Quote:      handler.NewQuoteHandler(services.Quotes),
		Payment:    handler.NewPaymentHandler(services.Escrow),
		Technician: handler.NewTechnicianHandler(services.Technicians, services.Dispatcher, services.Jobs),
		Audit:      handler.NewAuditHandler(services.Audit),
	}, tokenManager, services.Technicians)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo("http-shutdown", func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.WithError(err).Fatal("main: сервер завершился с ошибкой")
	}
	logger.Log.Info("main: сервер остановлен")
}
