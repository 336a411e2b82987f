// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"callback-service/internal/domain"
)

// CallbackMessageModel はgorm用のモデル定義。
type CallbackMessageModel struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	ReceiveID  string    `gorm:"type:varchar(64);not null;index:idx_callback_messages_receive_id"`
	MsgType    string    `gorm:"type:varchar(32);not null"`
	Event      string    `gorm:"type:varchar(64);not null"`
	MsgID      string    `gorm:"column:msg_id;type:varchar(64);not null"`
	AgentID    string    `gorm:"column:agent_id;type:varchar(32);not null"`
	FromUser   string    `gorm:"type:varchar(128);not null"`
	ToUser     string    `gorm:"type:varchar(128);not null"`
	CreateTime int64     `gorm:"not null"`
	Nonce      string    `gorm:"type:varchar(64);not null"`
	Timestamp  string    `gorm:"column:msg_timestamp;type:varchar(20);not null"`
	Payload    []byte    `gorm:"type:blob;not null"`
	Status     string    `gorm:"type:varchar(16);not null"`
	ReceivedAt time.Time `gorm:"not null;index:idx_callback_messages_receive_id"`
}

// TableName はテーブル名を返す。
func (CallbackMessageModel) TableName() string {
	return "callback_messages"
}

// BeforeCreate はレコード作成前にUUIDと受信日時を設定する。
func (m *CallbackMessageModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now().UTC()
	}
	return nil
}

func (m *CallbackMessageModel) toDomain() *domain.CallbackMessage {
	return &domain.CallbackMessage{
		ID:         m.ID,
		ReceiveID:  m.ReceiveID,
		MsgType:    m.MsgType,
		Event:      m.Event,
		MsgID:      m.MsgID,
		AgentID:    m.AgentID,
		FromUser:   m.FromUser,
		ToUser:     m.ToUser,
		CreateTime: m.CreateTime,
		Nonce:      m.Nonce,
		Timestamp:  m.Timestamp,
		Payload:    m.Payload,
		Status:     domain.MessageStatus(m.Status),
		ReceivedAt: m.ReceivedAt,
	}
}

// MessageRepository は受信メッセージのデータアクセスを提供する。
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository は新しいMessageRepositoryを生成する。
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create は受信メッセージを保存する。
func (r *MessageRepository) Create(ctx context.Context, msg *domain.CallbackMessage) error {
	model := &CallbackMessageModel{
		ID:         msg.ID,
		ReceiveID:  msg.ReceiveID,
		MsgType:    msg.MsgType,
		Event:      msg.Event,
		MsgID:      msg.MsgID,
		AgentID:    msg.AgentID,
		FromUser:   msg.FromUser,
		ToUser:     msg.ToUser,
		CreateTime: msg.CreateTime,
		Nonce:      msg.Nonce,
		Timestamp:  msg.Timestamp,
		Payload:    msg.Payload,
		Status:     string(msg.Status),
		ReceivedAt: msg.ReceivedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create callback message",
			"operation", "create",
			"receive_id", msg.ReceiveID,
			"msg_type", msg.MsgType,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	msg.ID = model.ID
	msg.ReceivedAt = model.ReceivedAt
	return nil
}

// FindByID は指定されたIDの受信メッセージを取得する。存在しない場合はnilを返す。
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*domain.CallbackMessage, error) {
	var model CallbackMessageModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find callback message",
			"operation", "find_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindRecent は指定された受信側の直近のメッセージを新しい順に取得する。
func (r *MessageRepository) FindRecent(ctx context.Context, receiveID string, limit int) ([]*domain.CallbackMessage, error) {
	var models []CallbackMessageModel
	err := r.db.WithContext(ctx).
		Where("receive_id = ?", receiveID).
		Order("received_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find recent callback messages",
			"operation", "find_recent",
			"receive_id", receiveID,
			"error", err,
		)
		return nil, err
	}

	msgs := make([]*domain.CallbackMessage, len(models))
	for i := range models {
		msgs[i] = models[i].toDomain()
	}
	return msgs, nil
}
