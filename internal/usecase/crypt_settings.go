package usecase

import (
	"context"
	"fmt"

	"callback-service/internal/msgcrypt"
)

// CryptSettings はMsgCryptの構築に必要な設定値。
// TokenとEncodingAESKeyは "kms:" 接頭辞付きのKMS暗号文でもよい。
type CryptSettings struct {
	Token          string
	EncodingAESKey string
	ReceiveID      string
	Format         string
}

// OpenMsgCrypt は設定値の秘密情報を解決してMsgCryptを生成する。
func OpenMsgCrypt(ctx context.Context, resolver *SecretResolver, s CryptSettings) (*msgcrypt.MsgCrypt, error) {
	token, err := resolver.Resolve(ctx, s.Token)
	if err != nil {
		return nil, fmt.Errorf("resolving token: %w", err)
	}
	key, err := resolver.Resolve(ctx, s.EncodingAESKey)
	if err != nil {
		return nil, fmt.Errorf("resolving encoding aes key: %w", err)
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	codec, err := msgcrypt.CodecFor(s.Format)
	if err != nil {
		return nil, err
	}
	return msgcrypt.New(token, key, s.ReceiveID, msgcrypt.WithCodec(codec))
}
