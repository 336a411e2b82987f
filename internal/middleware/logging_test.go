package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRequestLogger(t *testing.T) {
	buf := captureLogs(t)

	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("forbidden"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/callback?msg_signature=secret&echostr=abc", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if strings.Contains(buf.String(), "secret") {
		t.Error("query string must not be logged")
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log output: %v", err)
	}
	if entry["path"] != "/v1/callback" {
		t.Errorf("unexpected path: %v", entry["path"])
	}
	if entry["status"] != float64(http.StatusForbidden) {
		t.Errorf("unexpected status: %v", entry["status"])
	}
	if entry["bytes"] != float64(len("forbidden")) {
		t.Errorf("unexpected bytes: %v", entry["bytes"])
	}
}

func TestWriteAuditLog(t *testing.T) {
	buf := captureLogs(t)

	WriteAuditLog(context.Background(), "RECEIVE", "wx5823bf96d3bd56c7", "text", "SUCCESS")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log output: %v", err)
	}
	if entry["operation"] != "RECEIVE" || entry["receive_id"] != "wx5823bf96d3bd56c7" || entry["result"] != "SUCCESS" {
		t.Errorf("unexpected audit log: %v", entry)
	}
}
