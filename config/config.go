// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	KMSKeyName         string
	GoogleCloudProject string
	LogLevel           string
	MigrationsDir      string

	// コールバック受信設定。Token・EncodingAESKeyは "kms:" 接頭辞でKMS暗号文を指定できる。
	CallbackToken              string
	CallbackEncodingAESKey     string
	CallbackReceiveID          string
	CallbackFormat             string
	CallbackTimestampTolerance time.Duration
	CallbackReplyMode          string
	CallbackNonceRetention     time.Duration

	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		MigrationsDir:      os.Getenv("MIGRATIONS_DIR"),

		CallbackToken:              os.Getenv("CALLBACK_TOKEN"),
		CallbackEncodingAESKey:     os.Getenv("CALLBACK_ENCODING_AES_KEY"),
		CallbackReceiveID:          os.Getenv("CALLBACK_RECEIVE_ID"),
		CallbackFormat:             getEnv("CALLBACK_FORMAT", "xml"),
		CallbackTimestampTolerance: getEnvDuration("CALLBACK_TIMESTAMP_TOLERANCE", 5*time.Minute),
		CallbackReplyMode:          getEnv("CALLBACK_REPLY_MODE", "none"),
		CallbackNonceRetention:     getEnvDuration("CALLBACK_NONCE_RETENTION", 24*time.Hour),

		OtelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "callback-service"),
		OtelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return v
}

// getEnvDuration は "5m" のようなDuration表記を読み込む。"0" で無効化できる。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return v
}
