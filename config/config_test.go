package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "CALLBACK_FORMAT", "CALLBACK_TIMESTAMP_TOLERANCE", "CALLBACK_REPLY_MODE", "OTEL_ENABLED", "OTEL_SAMPLING_RATE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.CallbackFormat != "xml" {
		t.Errorf("expected format xml, got %s", cfg.CallbackFormat)
	}
	if cfg.CallbackTimestampTolerance != 5*time.Minute {
		t.Errorf("expected tolerance 5m, got %s", cfg.CallbackTimestampTolerance)
	}
	if cfg.CallbackReplyMode != "none" {
		t.Errorf("expected reply mode none, got %s", cfg.CallbackReplyMode)
	}
	if cfg.OtelEnabled {
		t.Error("expected otel disabled by default")
	}
	if cfg.OtelSamplingRate != 1.0 {
		t.Errorf("expected sampling rate 1.0, got %f", cfg.OtelSamplingRate)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("CALLBACK_TOKEN", "QDG6eK")
	t.Setenv("CALLBACK_RECEIVE_ID", "wx5823bf96d3bd56c7")
	t.Setenv("CALLBACK_FORMAT", "json")
	t.Setenv("CALLBACK_TIMESTAMP_TOLERANCE", "0")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")

	cfg := Load()
	if cfg.CallbackToken != "QDG6eK" || cfg.CallbackReceiveID != "wx5823bf96d3bd56c7" {
		t.Errorf("unexpected callback settings: %+v", cfg)
	}
	if cfg.CallbackFormat != "json" {
		t.Errorf("expected format json, got %s", cfg.CallbackFormat)
	}
	if cfg.CallbackTimestampTolerance != 0 {
		t.Errorf("expected tolerance disabled, got %s", cfg.CallbackTimestampTolerance)
	}
	if !cfg.OtelEnabled || cfg.OtelSamplingRate != 0.25 {
		t.Errorf("unexpected otel settings: %+v", cfg)
	}
}
