package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/prontocasa-backend/internal/db"
)

func migrateCmd() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции PostgreSQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.StoreDriver != "postgres" {
				return fmt.Errorf("миграции нужны только для STORE_DRIVER=postgres")
			}
			ctx := cmd.Context()
			conn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPool())
			if err != nil {
				return err
			}
			defer conn.Close()

			if status {
				list, err := db.MigrationStatus(ctx, conn, cfg.MigrationsPath)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "МИГРАЦИЯ\tПРИМЕНЕНА")
				for _, m := range list {
					applied := "нет"
					if m.AppliedAt != nil {
						applied = m.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%s\t%s\n", m.Name, applied)
				}
				return w.Flush()
			}

			applied, err := db.RunMigrations(ctx, conn, cfg.MigrationsPath)
			if err != nil {
				return err
			}
			fmt.Printf("применено миграций: %d\n", len(applied))
			for _, name := range applied {
				fmt.Println("  " + name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "показать состояние миграций без применения")
	return cmd
}
