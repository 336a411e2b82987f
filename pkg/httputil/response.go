// Package httputil はHTTPレスポンス生成のユーティリティを提供する。
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse はエラーレスポンスの形式。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	ErrCode int    `json:"errcode,omitempty"` // プロトコルのエラーコード
}

// JSON はJSONレスポンスを返す。
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// ヘッダーは既に送信済みのため、エラーログのみ出力
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// Error はエラーレスポンスを返す。
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// CodedError はプロトコルのエラーコード付きのエラーレスポンスを返す。
func CodedError(w http.ResponseWriter, status int, code string, message string, errCode int) {
	JSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
		ErrCode: errCode,
	})
}

// Raw はcontentTypeを指定して本文をそのまま返す。
func Raw(w http.ResponseWriter, status int, contentType string, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Text はプレーンテキストのレスポンスを返す。
func Text(w http.ResponseWriter, status int, body string) {
	Raw(w, status, "text/plain; charset=utf-8", body)
}
