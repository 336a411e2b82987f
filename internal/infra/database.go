// Package infra は外部サービスとの接続を提供する。
package infra

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"callback-service/config"
)

const sqlitePrefix = "sqlite://"

// dialector はDSNからgormのダイアレクタを選択する。
// "sqlite://" または "file:" で始まるDSNはSQLite、それ以外はMySQLとして扱う。
func dialector(dsn string) (gorm.Dialector, bool) {
	switch {
	case strings.HasPrefix(dsn, sqlitePrefix):
		return sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix)), true
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn), true
	default:
		return mysql.Open(dsn), false
	}
}

// NewDB はgormによるデータベース接続を初期化する。
// OTEL_ENABLED=true の場合はクエリのスパンを記録する。
func NewDB(dsn string, cfg *config.Config) (*gorm.DB, error) {
	d, isSQLite := dialector(dsn)
	db, err := gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if cfg.OtelEnabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("registering tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	if isSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
