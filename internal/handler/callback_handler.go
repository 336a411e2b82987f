// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"callback-service/internal/domain"
	"callback-service/internal/envelope"
	"callback-service/internal/middleware"
	"callback-service/internal/usecase"
	"callback-service/pkg/httputil"
)

// DefaultMaxBodyBytes は受信ボディの上限サイズ。
const DefaultMaxBodyBytes = 1 << 20

// CallbackHandler はコールバック受信のHTTPハンドラを提供する。
type CallbackHandler struct {
	service      *usecase.CallbackService
	receiveID    string
	maxBodyBytes int64
}

// NewCallbackHandler は新しいCallbackHandlerを生成する。
func NewCallbackHandler(service *usecase.CallbackService, receiveID string) *CallbackHandler {
	return &CallbackHandler{
		service:      service,
		receiveID:    receiveID,
		maxBodyBytes: DefaultMaxBodyBytes,
	}
}

// MessageResponse は受信メッセージのレスポンス形式。
type MessageResponse struct {
	ID         string          `json:"id"`
	MsgType    string          `json:"msg_type"`
	Event      string          `json:"event,omitempty"`
	MsgID      string          `json:"msg_id,omitempty"`
	AgentID    string          `json:"agent_id,omitempty"`
	FromUser   string          `json:"from_user"`
	ToUser     string          `json:"to_user"`
	CreateTime int64           `json:"create_time"`
	Status     string          `json:"status"`
	ReceivedAt string          `json:"received_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// MessageListResponse は受信メッセージ一覧のレスポンス形式。
type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func toMessageResponse(m *domain.CallbackMessage, withPayload bool) MessageResponse {
	resp := MessageResponse{
		ID:         m.ID,
		MsgType:    m.MsgType,
		Event:      m.Event,
		MsgID:      m.MsgID,
		AgentID:    m.AgentID,
		FromUser:   m.FromUser,
		ToUser:     m.ToUser,
		CreateTime: m.CreateTime,
		Status:     string(m.Status),
		ReceivedAt: m.ReceivedAt.UTC().Format(time.RFC3339),
	}
	if withPayload && json.Valid(m.Payload) {
		resp.Payload = m.Payload
	}
	return resp
}

// callbackQuery はクエリパラメータから署名検証に必要な値を取り出す。
func callbackQuery(r *http.Request) (domain.CallbackQuery, bool) {
	v := r.URL.Query()
	q := domain.CallbackQuery{
		MsgSignature: v.Get("msg_signature"),
		Timestamp:    v.Get("timestamp"),
		Nonce:        v.Get("nonce"),
	}
	return q, q.MsgSignature != "" && q.Timestamp != "" && q.Nonce != ""
}

// VerifyURL はコールバックURLの検証リクエストに応答し、echostrの平文を返す。
func (h *CallbackHandler) VerifyURL(w http.ResponseWriter, r *http.Request) {
	q, ok := callbackQuery(r)
	echoStr := r.URL.Query().Get("echostr")
	if !ok || echoStr == "" {
		httputil.Error(w, http.StatusBadRequest, "MISSING_PARAMETER", "msg_signature, timestamp, nonce and echostr are required")
		return
	}
	// URLエンコードされずに届いた '+' はクエリ解析で空白になる
	echoStr = strings.ReplaceAll(echoStr, " ", "+")

	plaintext, err := h.service.VerifyURL(r.Context(), q, echoStr)
	if err != nil {
		h.writeError(w, r, "VERIFY_URL", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "VERIFY_URL", h.receiveID, "", "SUCCESS")
	httputil.Text(w, http.StatusOK, plaintext)
}

// Receive は暗号化されたコールバックメッセージを受信する。
// 被動応答がある場合は暗号化済みエンベロープを本文として返す。
func (h *CallbackHandler) Receive(w http.ResponseWriter, r *http.Request) {
	q, ok := callbackQuery(r)
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "MISSING_PARAMETER", "msg_signature, timestamp and nonce are required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large")
			return
		}
		httputil.Error(w, http.StatusBadRequest, "INVALID_BODY", "failed to read request body")
		return
	}

	result, err := h.service.Receive(r.Context(), q, string(body))
	if err != nil {
		h.writeError(w, r, "RECEIVE", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "RECEIVE", h.receiveID, result.Message.MsgType, "SUCCESS")
	if result.Reply == "" {
		httputil.Text(w, http.StatusOK, "")
		return
	}
	contentType := "application/xml; charset=utf-8"
	if h.service.Format() == envelope.FormatJSON {
		contentType = "application/json"
	}
	httputil.Raw(w, http.StatusOK, contentType, result.Reply)
}

// GetMessage は受信メッセージを取得する。
func (h *CallbackHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := h.service.GetMessage(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			httputil.Error(w, http.StatusNotFound, "MESSAGE_NOT_FOUND", "message not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get message", "id", id, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, toMessageResponse(msg, true))
}

// ListMessages は直近の受信メッセージ一覧を取得する。
func (h *CallbackHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := h.service.ListMessages(r.Context(), limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list messages", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := MessageListResponse{
		Messages: make([]MessageResponse, len(msgs)),
	}
	for i, m := range msgs {
		response.Messages[i] = toMessageResponse(m, false)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// writeError はエラーをHTTPステータスに対応付けて返す。
// CryptoErrorのDataはログにのみ出力し、レスポンスには含めない。
func (h *CallbackHandler) writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code := classifyError(err)
	middleware.WriteAuditLog(r.Context(), operation, h.receiveID, "", "FAILED")

	var ce *domain.CryptoError
	if errors.As(err, &ce) {
		slog.WarnContext(r.Context(), "callback rejected",
			"operation", operation,
			"errcode", int(ce.Code),
			"data", ce.Data,
			"error", err,
		)
		httputil.CodedError(w, status, code, ce.CodeText, int(ce.Code))
		return
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "callback failed", "operation", operation, "error", err)
		httputil.Error(w, status, code, "internal server error")
		return
	}
	slog.WarnContext(r.Context(), "callback rejected", "operation", operation, "error", err)
	httputil.Error(w, status, code, err.Error())
}

// classifyError はエラーに対応するHTTPステータスとエラーコード文字列を返す。
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNonceReplayed):
		return http.StatusConflict, "NONCE_REPLAYED"
	case errors.Is(err, domain.ErrTimestampExpired):
		return http.StatusConflict, "TIMESTAMP_EXPIRED"
	case errors.Is(err, domain.ErrInvalidTimestamp):
		return http.StatusBadRequest, "INVALID_TIMESTAMP"
	}

	code, ok := domain.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
	switch code {
	case domain.CodeValidateSignatureError:
		return http.StatusForbidden, "INVALID_SIGNATURE"
	case domain.CodeValidateCorpidError:
		return http.StatusForbidden, "RECEIVE_ID_MISMATCH"
	case domain.CodeParseXMLError, domain.CodeParseJSONError,
		domain.CodeDecodeBase64Error, domain.CodeIllegalBuffer, domain.CodeDecryptAESError:
		return http.StatusBadRequest, "INVALID_MESSAGE"
	default:
		return http.StatusInternalServerError, "CRYPTO_ERROR"
	}
}
