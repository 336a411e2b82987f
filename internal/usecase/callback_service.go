// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"callback-service/internal/domain"
	"callback-service/internal/envelope"
	"callback-service/internal/msgcrypt"
)

// MessageRepository は受信メッセージのデータアクセスのインターフェース。
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.CallbackMessage) error
	FindByID(ctx context.Context, id string) (*domain.CallbackMessage, error)
	FindRecent(ctx context.Context, receiveID string, limit int) ([]*domain.CallbackMessage, error)
}

// NonceRepository は受信済みnonceを記録するインターフェース。
type NonceRepository interface {
	// MarkSeen は初回であればtrueを返す。既に記録済みの場合はfalse。
	MarkSeen(ctx context.Context, nonce, timestamp string) (bool, error)
	// Forget は記録済みの組を取り消し、同じ組での再送を受理できるようにする。
	Forget(ctx context.Context, nonce, timestamp string) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReplyMode は受信メッセージに対する被動応答の方式を表す。
type ReplyMode string

const (
	// ReplyModeNone は応答ボディを返さない。
	ReplyModeNone ReplyMode = "none"
	// ReplyModeEcho はテキストメッセージの内容を暗号化して送り返す。
	ReplyModeEcho ReplyMode = "echo"
)

// ParseReplyMode は設定値を応答方式に変換する。空文字列はReplyModeNoneとして扱う。
func ParseReplyMode(s string) (ReplyMode, error) {
	switch ReplyMode(s) {
	case "", ReplyModeNone:
		return ReplyModeNone, nil
	case ReplyModeEcho:
		return ReplyModeEcho, nil
	default:
		return "", fmt.Errorf("unknown reply mode %q", s)
	}
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CallbackOptions はCallbackServiceの動作設定。
type CallbackOptions struct {
	TimestampTolerance time.Duration // 0の場合は検査しない
	ReplyMode          ReplyMode
}

// ReceiveResult はメッセージ受信の結果。
type ReceiveResult struct {
	Message *domain.CallbackMessage
	Reply   string // 暗号化済み応答エンベロープ。応答しない場合は空
}

// CallbackService はコールバック受信に関するビジネスロジックを提供する。
// プロトコル層は状態を持たないため、nonceの再利用検知とtimestampの鮮度判定はここで行う。
type CallbackService struct {
	crypt    *msgcrypt.MsgCrypt
	messages MessageRepository
	nonces   NonceRepository
	opts     CallbackOptions
	now      func() time.Time
}

// NewCallbackService は新しいCallbackServiceを生成する。
func NewCallbackService(crypt *msgcrypt.MsgCrypt, messages MessageRepository, nonces NonceRepository, opts CallbackOptions) *CallbackService {
	if opts.ReplyMode == "" {
		opts.ReplyMode = ReplyModeNone
	}
	return &CallbackService{
		crypt:    crypt,
		messages: messages,
		nonces:   nonces,
		opts:     opts,
		now:      time.Now,
	}
}

// Format は受信・応答に使うエンベロープのフォーマットを返す。
func (s *CallbackService) Format() string {
	return s.crypt.Codec().Format()
}

// VerifyURL はURL検証リクエストを処理し、返却すべき平文を返す。
func (s *CallbackService) VerifyURL(ctx context.Context, q domain.CallbackQuery, echoStr string) (string, error) {
	if err := s.checkTimestamp(q.Timestamp); err != nil {
		return "", err
	}
	return s.crypt.VerifyURL(q.MsgSignature, q.Timestamp, q.Nonce, echoStr)
}

// Receive は受信データを検証・復号し、記録したうえで必要に応じて暗号化応答を生成する。
func (s *CallbackService) Receive(ctx context.Context, q domain.CallbackQuery, body string) (*ReceiveResult, error) {
	if err := s.checkTimestamp(q.Timestamp); err != nil {
		return nil, err
	}

	_, payload, err := s.crypt.DecryptMsgRaw(q.MsgSignature, q.Timestamp, q.Nonce, body)
	if err != nil {
		return nil, err
	}

	msg, err := s.toCallbackMessage(q, payload)
	if err != nil {
		return nil, err
	}

	reply, err := s.buildReply(payload)
	if err != nil {
		return nil, fmt.Errorf("building reply: %w", err)
	}
	if reply != "" {
		msg.Status = domain.MessageStatusReplied
	}

	// 署名検証に通ったリクエストのみ記録する
	fresh, err := s.nonces.MarkSeen(ctx, q.Nonce, q.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("recording nonce: %w", err)
	}
	if !fresh {
		return nil, domain.ErrNonceReplayed
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		// 保存に失敗した場合はプラットフォームの再送を受理できるよう記録を取り消す
		if ferr := s.nonces.Forget(ctx, q.Nonce, q.Timestamp); ferr != nil {
			slog.ErrorContext(ctx, "failed to forget nonce",
				"operation", "forget_nonce",
				"nonce", q.Nonce,
				"error", ferr,
			)
		}
		return nil, fmt.Errorf("saving message: %w", err)
	}

	return &ReceiveResult{Message: msg, Reply: reply}, nil
}

// GetMessage は受信メッセージを取得する。
func (s *CallbackService) GetMessage(ctx context.Context, id string) (*domain.CallbackMessage, error) {
	msg, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding message: %w", err)
	}
	if msg == nil {
		return nil, domain.ErrMessageNotFound
	}
	return msg, nil
}

// ListMessages は直近の受信メッセージを新しい順に取得する。
func (s *CallbackService) ListMessages(ctx context.Context, limit int) ([]*domain.CallbackMessage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	msgs, err := s.messages.FindRecent(ctx, s.crypt.ReceiveID(), limit)
	if err != nil {
		return nil, fmt.Errorf("finding messages: %w", err)
	}
	return msgs, nil
}

// PurgeNonces はolderThanより前に記録したnonceを削除する。
func (s *CallbackService) PurgeNonces(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.nonces.DeleteBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purging nonces: %w", err)
	}
	return n, nil
}

// RunNoncePurger はctxが終了するまでinterval毎にretentionより古いnonceを削除する。
func (s *CallbackService) RunNoncePurger(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeNonces(ctx, retention)
			if err != nil {
				slog.ErrorContext(ctx, "failed to purge nonces",
					"operation", "purge_nonces",
					"error", err,
				)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "nonces purged",
					"operation", "purge_nonces",
					"deleted", n,
				)
			}
		}
	}
}

// checkTimestamp はtimestampが許容範囲内か検査する。10^12以上の値はミリ秒とみなす。
func (s *CallbackService) checkTimestamp(ts string) error {
	if s.opts.TimestampTolerance <= 0 {
		return nil
	}
	v, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domain.ErrInvalidTimestamp
	}
	var at time.Time
	if v >= 1e12 {
		at = time.UnixMilli(v)
	} else {
		at = time.Unix(v, 0)
	}
	diff := s.now().Sub(at)
	if diff < 0 {
		diff = -diff
	}
	if diff > s.opts.TimestampTolerance {
		return domain.ErrTimestampExpired
	}
	return nil
}

func (s *CallbackService) toCallbackMessage(q domain.CallbackQuery, payload envelope.Message) (*domain.CallbackMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	createTime, _ := strconv.ParseInt(payload.Lookup("CreateTime"), 10, 64)

	return &domain.CallbackMessage{
		ReceiveID:  s.crypt.ReceiveID(),
		MsgType:    payload.Lookup("MsgType"),
		Event:      payload.Lookup("Event"),
		MsgID:      payload.Lookup("MsgId"),
		AgentID:    payload.Lookup("AgentID"),
		FromUser:   payload.Lookup("FromUserName"),
		ToUser:     payload.Lookup("ToUserName"),
		CreateTime: createTime,
		Nonce:      q.Nonce,
		Timestamp:  q.Timestamp,
		Payload:    raw,
		Status:     domain.MessageStatusAccepted,
	}, nil
}

// buildReply は応答方式に従って暗号化済みの応答を生成する。応答しない場合は空文字列。
func (s *CallbackService) buildReply(payload envelope.Message) (string, error) {
	if s.opts.ReplyMode != ReplyModeEcho || payload.Lookup("MsgType") != "text" {
		return "", nil
	}

	now := s.now()
	text, err := envelope.TextReply{
		ToUser:     payload.Lookup("FromUserName"),
		FromUser:   payload.Lookup("ToUserName"),
		CreateTime: now.Unix(),
		Content:    payload.Lookup("Content"),
	}.Render(s.Format())
	if err != nil {
		return "", err
	}
	return s.crypt.EncryptReply(text, msgcrypt.WithTimestamp(strconv.FormatInt(now.Unix(), 10)))
}
