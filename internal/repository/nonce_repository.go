package repository

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CallbackNonceModel はcallback_noncesテーブルのモデル。
type CallbackNonceModel struct {
	Nonce     string    `gorm:"type:varchar(64);primaryKey"`
	Timestamp string    `gorm:"column:msg_timestamp;type:varchar(20);primaryKey"`
	SeenAt    time.Time `gorm:"not null;index:idx_callback_nonces_seen_at"`
}

// TableName はテーブル名を返す。
func (CallbackNonceModel) TableName() string {
	return "callback_nonces"
}

// NonceRepository は受信済みnonceを記録するリポジトリ。
type NonceRepository struct {
	db *gorm.DB
}

// NewNonceRepository は新しいNonceRepositoryを生成する。
func NewNonceRepository(db *gorm.DB) *NonceRepository {
	return &NonceRepository{db: db}
}

// MarkSeen はnonceとtimestampの組を記録する。
// 初めての組であればtrue、既に記録済みであればfalseを返す。
func (r *NonceRepository) MarkSeen(ctx context.Context, nonce, timestamp string) (bool, error) {
	model := &CallbackNonceModel{
		Nonce:     nonce,
		Timestamp: timestamp,
		SeenAt:    time.Now().UTC(),
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to mark nonce as seen",
			"operation", "mark_seen",
			"nonce", nonce,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Forget はnonceとtimestampの組の記録を削除する。
func (r *NonceRepository) Forget(ctx context.Context, nonce, timestamp string) error {
	result := r.db.WithContext(ctx).
		Where("nonce = ? AND msg_timestamp = ?", nonce, timestamp).
		Delete(&CallbackNonceModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to forget nonce",
			"operation", "forget",
			"nonce", nonce,
			"error", result.Error,
		)
		return result.Error
	}
	return nil
}

// DeleteBefore はcutoffより前に記録したnonceを削除し、削除件数を返す。
func (r *NonceRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("seen_at < ?", cutoff.UTC()).
		Delete(&CallbackNonceModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to delete nonces",
			"operation", "delete_before",
			"cutoff", cutoff,
			"error", result.Error,
		)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
