package usecase

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"callback-service/internal/domain"

	"gorm.io/gorm"
)

const createSchemaMigrationsSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(14) NOT NULL PRIMARY KEY,
    applied_at DATETIME NOT NULL
)`

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	IsMigrationApplied(ctx context.Context, version string) (bool, error)
}

// MigrationService はマイグレーション実行のビジネスロジックを提供する。
type MigrationService struct {
	repo       MigrationRepository
	db         *gorm.DB
	migrations fs.FS
}

// NewMigrationService は新しいMigrationServiceを生成する。
// migrationsは直下に{version}_{name}.sqlを持つファイルシステム。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, migrations fs.FS) *MigrationService {
	return &MigrationService{
		repo:       repo,
		db:         db,
		migrations: migrations,
	}
}

// scanMigrationFiles はマイグレーションFSから.sqlファイルをスキャンする。
func (s *MigrationService) scanMigrationFiles() ([]*domain.Migration, error) {
	entries, err := fs.ReadDir(s.migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []*domain.Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, &domain.Migration{
			Version: version,
			Name:    name,
			Path:    path.Clean(entry.Name()),
			Status:  domain.MigrationStatusPending,
		})
	}

	// バージョン順にソート
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{name}.sql (例: 001_create_callback_messages.sql)
func parseMigrationFileName(filename string) (version, name string, err error) {
	parts := strings.SplitN(strings.TrimSuffix(filename, ".sql"), "_", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}
	return parts[0], parts[1], nil
}

// splitStatements はSQLファイルを文単位に分割する。
// MySQLドライバは既定で複数文の一括実行を許可しないため、1文ずつ実行する。
func splitStatements(sql string) []string {
	var stmts []string
	for _, stmt := range strings.Split(sql, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func (s *MigrationService) ensureSchemaTable(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec(createSchemaMigrationsSQL).Error; err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

// ApplyMigrations は未適用マイグレーションを番号順に実行する。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	if err := s.ensureSchemaTable(ctx); err != nil {
		return 0, err
	}

	allMigrations, err := s.scanMigrationFiles()
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan migration files",
			"operation", "apply_migrations",
			"error", err,
		)
		return 0, err
	}

	// 未適用マイグレーションをフィルタリング
	var pendingMigrations []*domain.Migration
	for _, migration := range allMigrations {
		applied, err := s.repo.IsMigrationApplied(ctx, migration.Version)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check migration status",
				"operation", "apply_migrations",
				"version", migration.Version,
				"error", err,
			)
			return 0, fmt.Errorf("failed to check migration status: %w", err)
		}
		if !applied {
			pendingMigrations = append(pendingMigrations, migration)
		}
	}

	appliedCount := 0
	for _, migration := range pendingMigrations {
		if err := s.applyMigration(ctx, migration); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", migration.Version,
				"error", err,
			)
			return appliedCount, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, migration.Version, err)
		}
		slog.InfoContext(ctx, "migration applied",
			"operation", "apply_migrations",
			"version", migration.Version,
			"name", migration.Name,
		)
		appliedCount++
	}

	return appliedCount, nil
}

// applyMigration は単一のマイグレーションをトランザクション内で実行し、履歴を記録する。
func (s *MigrationService) applyMigration(ctx context.Context, migration *domain.Migration) error {
	sqlBytes, err := fs.ReadFile(s.migrations, migration.Path)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range splitStatements(string(sqlBytes)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
		}

		// 同じtxで履歴を記録する
		record := struct {
			Version   string    `gorm:"column:version;primaryKey"`
			AppliedAt time.Time `gorm:"column:applied_at"`
		}{
			Version:   migration.Version,
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Table("schema_migrations").Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

// GetMigrationStatus は現在のマイグレーション状況を取得する。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	if err := s.ensureSchemaTable(ctx); err != nil {
		return nil, err
	}

	allMigrations, err := s.scanMigrationFiles()
	if err != nil {
		return nil, err
	}

	appliedMigrations, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch applied migrations",
			"operation", "get_migration_status",
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch applied migrations: %w", err)
	}

	appliedMap := make(map[string]*domain.Migration, len(appliedMigrations))
	for _, migration := range appliedMigrations {
		appliedMap[migration.Version] = migration
	}

	for _, migration := range allMigrations {
		if applied, exists := appliedMap[migration.Version]; exists {
			migration.Status = domain.MigrationStatusApplied
			migration.AppliedAt = applied.AppliedAt
		}
	}

	return allMigrations, nil
}
