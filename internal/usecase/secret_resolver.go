package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SecretPrefix はCloud KMSで暗号化された設定値を示す接頭辞。
const SecretPrefix = "kms:"

// KMSClient は暗号化/復号のインターフェース。
type KMSClient interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// ErrKMSNotConfigured は暗号化された設定値があるのにKMSクライアントが無い場合のエラー。
var ErrKMSNotConfigured = errors.New("kms client is not configured")

// SecretResolver はtokenやEncodingAESKeyなどの設定値を平文に解決する。
// "kms:" で始まる値はBase64のKMS暗号文として復号し、それ以外はそのまま返す。
type SecretResolver struct {
	kmsClient KMSClient
}

// NewSecretResolver は新しいSecretResolverを生成する。kmsClientはnilでもよい。
func NewSecretResolver(kmsClient KMSClient) *SecretResolver {
	return &SecretResolver{kmsClient: kmsClient}
}

// Resolve は設定値を平文に解決する。
func (r *SecretResolver) Resolve(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, SecretPrefix) {
		return value, nil
	}
	if r.kmsClient == nil {
		return "", ErrKMSNotConfigured
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SecretPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding secret: %w", err)
	}
	plaintext, err := r.kmsClient.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypting secret: %w", err)
	}
	return string(plaintext), nil
}

// Seal は平文をKMSで暗号化し、Resolveで解決できる形式の文字列を返す。
func (r *SecretResolver) Seal(ctx context.Context, plaintext string) (string, error) {
	if r.kmsClient == nil {
		return "", ErrKMSNotConfigured
	}
	ciphertext, err := r.kmsClient.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("encrypting secret: %w", err)
	}
	return SecretPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}
