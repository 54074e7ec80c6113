// Command opsctl — служебные операции маркетплейса: миграции, подтверждения оператора,
// ручной запуск эскалации рассылки и просмотр журнала изменений.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/prontocasa-backend/internal/app"
	"github.com/ignatzorin/prontocasa-backend/internal/config"
	"github.com/ignatzorin/prontocasa-backend/internal/domain/entity"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
)

var (
	cfg      *config.Config
	logLevel string
	rootCmd  = &cobra.Command{
		Use:               "opsctl",
		Short:             "Служебные операции ProntoCasa",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "уровень логирования (по умолчанию LOG_LEVEL)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(confirmPhoneCmd())
	rootCmd.AddCommand(reanalyzeCmd())
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(verifyTechnicianCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(purgeSignaturesCmd())
	rootCmd.AddCommand(tokenCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger.Init(level)
	logger.SetTextFormatter()
	return nil
}

// openServices собирает сценарии без веб-сокетов. Предложения мастерам остаются
// доступны через список ожидающих заявок.
func openServices(ctx context.Context) (*app.Services, func(), error) {
	handle, err := app.OpenStore(ctx, cfg, false)
	if err != nil {
		return nil, nil, fmt.Errorf("не удалось открыть хранилище: %w", err)
	}
	closeStore := func() {
		if err := handle.Close(); err != nil {
			logger.Log.WithError(err).Warn("opsctl: ошибка закрытия хранилища")
		}
	}

	processor, err := app.NewProcessor(cfg)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("не удалось создать платёжный шлюз: %w", err)
	}

	services := app.NewServices(app.Deps{
		Store:     handle.Store,
		Estimator: app.NewEstimator(cfg),
		Notifier:  logNotifier{},
		Processor: processor,
	}, cfg.Marketplace)
	return services, closeStore, nil
}

type logNotifier struct{}

func (logNotifier) NotifyTechnician(_ context.Context, tech *entity.Technician, req *entity.Request, level int) error {
	logger.Log.WithField("technician_id", tech.ID).
		WithField("request_id", req.ID).
		WithField("level", level).
		Info("opsctl: заявка предложена мастеру")
	return nil
}
