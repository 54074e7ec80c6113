package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ignatzorin/prontocasa-backend/internal/service"
	"github.com/ignatzorin/prontocasa-backend/internal/storage"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Эскалировать просроченные раунды рассылки",
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, closeStore, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := services.Dispatcher.Sweep(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("обработано заявок: %d\n", n)
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var (
		entityType string
		entityID   string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Показать журнал изменений",
		RunE: func(cmd *cobra.Command, _ []string) error {
			input := audit.ListEntriesInput{EntityType: entityType, Limit: limit}
			if entityID != "" {
				id, err := uuid.Parse(entityID)
				if err != nil {
					return fmt.Errorf("некорректный entity-id: %w", err)
				}
				input.EntityID = &id
			}

			services, closeStore, err := openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			out, err := services.Audit.Execute(cmd.Context(), input)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ВРЕМЯ\tДЕЙСТВИЕ\tСУЩНОСТЬ\tID\tАВТОР")
			for _, e := range out.Entries {
				actor := "система"
				if e.ActorID != nil {
					actor = e.ActorID.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.Action, e.EntityType, e.EntityID, actor)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("показано %d из %d\n", len(out.Entries), out.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&entityType, "entity-type", "", "request, quote, payment или technician")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "ID сущности")
	cmd.Flags().IntVar(&limit, "limit", 50, "число записей")
	return cmd
}

func purgeSignaturesCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge-signatures",
		Short: "Удалить файлы подписей старше срока хранения",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				olderThan = cfg.MediaRetention
			}
			store, err := storage.NewSignatureStorage(cfg.MediaStoragePath, cfg.MaxUploadSizeMB)
			if err != nil {
				return err
			}
			n, err := store.Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("удалено файлов: %d\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "возраст файлов (по умолчанию MEDIA_RETENTION_DAYS)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Выпустить access токен для служебного доступа",
		RunE: func(_ *cobra.Command, _ []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("некорректный ID пользователя: %w", err)
			}
			tokens := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
			token, expiresAt, err := tokens.Issue(userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "действителен до %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "ID пользователя")
	cmd.Flags().StringVar(&role, "role", service.RoleOperator, "роль: client, technician, operator, admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "срок действия (по умолчанию ACCESS_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
