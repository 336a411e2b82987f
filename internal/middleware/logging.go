// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation string `json:"operation"`
	ReceiveID string `json:"receive_id"`
	MsgType   string `json:"msg_type,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// WriteAuditLog は監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation string, receiveID string, msgType string, result string) {
	slog.InfoContext(ctx, "callback operation completed",
		"operation", operation,
		"receive_id", receiveID,
		"msg_type", msgType,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}

// RequestLogger はリクエストごとのアクセスログをslogで出力する。
// クエリ文字列には署名やechostrが含まれるためパスのみ記録する。
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
