package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testToken          = "QDG6eK"
	testEncodingAESKey = "jWmYm7qr5nMoAUwZRjGtBxmz3KA1tkAj3ykkR6q2B2C"
	testReceiveID      = "wx5823bf96d3bd56c7"
)

// run はmsgctlをargsで実行し、標準出力を返す。
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func cryptArgs(args ...string) []string {
	return append([]string{"--token", testToken, "--aes-key", testEncodingAESKey, "--receive-id", testReceiveID}, args...)
}

func TestSign(t *testing.T) {
	out, err := run(t, "", cryptArgs("sign", "--timestamp", "1409659813", "--nonce", "1372623149", "hello")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "aacc52908e11b1e5e4f5a3be8e298b4586ec7e46" {
		t.Errorf("unexpected signature: %s", out)
	}
}

func TestEncryptThenDecrypt(t *testing.T) {
	message := "<xml><Content><![CDATA[hello]]></Content></xml>"
	out, err := run(t, message, cryptArgs("encrypt", "--timestamp", "1409659813", "--nonce", "1372623149")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	envelope := strings.TrimSpace(out)

	sigStart := strings.Index(envelope, "<MsgSignature><![CDATA[") + len("<MsgSignature><![CDATA[")
	signature := envelope[sigStart : sigStart+40]

	out, err = run(t, envelope, cryptArgs("decrypt", "--signature", signature, "--timestamp", "1409659813", "--nonce", "1372623149")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != message {
		t.Errorf("want %s, got %s", message, out)
	}

	out, err = run(t, envelope, cryptArgs("--output", "json", "decrypt", "--signature", signature, "--timestamp", "1409659813", "--nonce", "1372623149")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"Content": "hello"`) {
		t.Errorf("unexpected json output: %s", out)
	}
}

func TestDecrypt_BadSignature(t *testing.T) {
	body := "<xml><Encrypt><![CDATA[AAAA]]></Encrypt></xml>"
	_, err := run(t, body, cryptArgs("decrypt", "--signature", "bad", "--timestamp", "1", "--nonce", "2")...)
	if err == nil || !strings.Contains(err.Error(), "-40001") {
		t.Errorf("want signature error, got %v", err)
	}
}

func TestCryptCommands_RequireKey(t *testing.T) {
	t.Setenv("CALLBACK_TOKEN", "")
	t.Setenv("CALLBACK_ENCODING_AES_KEY", "")

	if _, err := run(t, "", "sign", "--timestamp", "1", "--nonce", "2", "x"); err == nil {
		t.Error("want error without token and key")
	}
}

func TestMigrateAndPurge(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "callback.db"))
	t.Setenv("MIGRATIONS_DIR", "")

	out, err := run(t, "", "migrate", "up")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Applied 2 migration(s)") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = run(t, "", "migrate", "status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "create_callback_nonces") || strings.Contains(out, "pending") {
		t.Errorf("unexpected status output: %s", out)
	}

	out, err = run(t, "", "nonces", "purge", "--older-than", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Purged 0 nonce(s).") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestMessagesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.URL.Query().Get("limit") != "5" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"INVALID_LIMIT","message":"bad limit"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"m1","msg_type":"event","event":"subscribe","from_user":"user","status":"accepted","received_at":"2024-01-01T00:00:00Z"}]}`))
	}))
	defer srv.Close()

	out, err := run(t, "", "--api-url", srv.URL, "messages", "list", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "m1") || !strings.Contains(out, "event/subscribe") {
		t.Errorf("unexpected output: %s", out)
	}

	_, err = run(t, "", "--api-url", srv.URL, "messages", "list")
	if err == nil || !strings.Contains(err.Error(), "bad limit") {
		t.Errorf("want API error, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "msgctl version "+version+"\n" {
		t.Errorf("unexpected output: %s", out)
	}
}
