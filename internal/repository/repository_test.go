package repository

import (
	"io/fs"
	"strings"
	"testing"

	"callback-service/migrations"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成し、埋め込みマイグレーションを適用する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// :memory: は接続ごとに別DBになるため1接続に固定する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	for _, name := range files {
		b, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		for _, stmt := range strings.Split(string(b), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if err := db.Exec(stmt).Error; err != nil {
				t.Fatalf("failed to apply %s: %v", name, err)
			}
		}
	}

	if err := db.Exec(`CREATE TABLE schema_migrations (version VARCHAR(14) NOT NULL PRIMARY KEY, applied_at DATETIME NOT NULL)`).Error; err != nil {
		t.Fatalf("failed to create schema_migrations: %v", err)
	}

	return db
}
