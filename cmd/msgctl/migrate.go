package main

import (
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"callback-service/internal/domain"
	"callback-service/internal/infra"
	"callback-service/internal/repository"
	"callback-service/internal/usecase"
	"callback-service/migrations"
)

// openDB は環境変数DATABASE_URLのデータベースに接続する。
func openDB() (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// migrationFS はMIGRATIONS_DIRが設定されていればそのディレクトリ、無ければ埋め込みファイルを返す。
func migrationFS() fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func newMigrationService() (*usecase.MigrationService, error) {
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	return usecase.NewMigrationService(repository.NewMigrationRepository(db), db, migrationFS()), nil
}

// migrateCmd はマイグレーション管理コマンド。
func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Manage database migrations for the callback service",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long:  "Apply all pending migrations to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrationService, err := newMigrationService()
			if err != nil {
				return err
			}

			appliedCount, err := migrationService.ApplyMigrations(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			if appliedCount == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", appliedCount)
			}
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  "Show the status of all migrations (applied/pending)",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrationService, err := newMigrationService()
			if err != nil {
				return err
			}

			migrations, err := migrationService.GetMigrationStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			// テーブル形式で出力
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			fmt.Fprintln(w, "-------\t----\t------\t----------")

			for _, migration := range migrations {
				appliedAt := "-"
				if migration.AppliedAt != nil {
					appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
				}

				status := "pending"
				if migration.Status == domain.MigrationStatusApplied {
					status = "applied"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", migration.Version, migration.Name, status, appliedAt)
			}

			if err := w.Flush(); err != nil {
				return fmt.Errorf("failed to flush output: %w", err)
			}
			return nil
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

// noncesCmd は受信済みnonceの管理コマンド。
func noncesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nonces",
		Short: "Manage recorded nonces used for replay detection",
	}

	var olderThan time.Duration
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete nonces recorded before the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			db, err := openDB()
			if err != nil {
				return err
			}

			n, err := repository.NewNonceRepository(db).DeleteBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("failed to purge nonces: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d nonce(s).\n", n)
			return nil
		},
	}
	purgeCmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Retention window")

	cmd.AddCommand(purgeCmd)
	return cmd
}
