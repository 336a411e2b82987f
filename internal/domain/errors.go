package domain

import (
	"errors"
	"fmt"
)

// Code はコールバック暗号プロトコルのエラーコードを表す。
// 値はプラットフォームが定義する固定値であり、変更してはならない。
type Code int

const (
	CodeOK                     Code = 0
	CodeValidateSignatureError Code = -40001
	CodeParseXMLError          Code = -40002
	CodeParseJSONError         Code = -40003
	CodeComputeSignatureError  Code = -40004
	CodeIllegalAesKey          Code = -40005
	CodeValidateCorpidError    Code = -40006
	CodeEncryptAESError        Code = -40007
	CodeDecryptAESError        Code = -40008
	CodeIllegalBuffer          Code = -40009
	CodeEncodeBase64Error      Code = -40010
	CodeDecodeBase64Error      Code = -40011
	CodeGenReturnXMLError      Code = -40012
	CodeGenReturnJSONError     Code = -40013
)

var codeMessages = map[Code]string{
	CodeValidateSignatureError: "signature validation failed",
	CodeParseXMLError:          "xml parse failed",
	CodeParseJSONError:         "json parse failed",
	CodeComputeSignatureError:  "sha signature computation failed",
	CodeIllegalAesKey:          "illegal EncodingAESKey",
	CodeValidateCorpidError:    "receive id validation failed",
	CodeEncryptAESError:        "aes encryption failed",
	CodeDecryptAESError:        "aes decryption failed",
	CodeIllegalBuffer:          "illegal buffer after decryption",
	CodeEncodeBase64Error:      "base64 encode failed",
	CodeDecodeBase64Error:      "base64 decode failed",
	CodeGenReturnXMLError:      "xml generation failed",
	CodeGenReturnJSONError:     "json generation failed",
}

// Message はコードに対応する説明文を返す。未定義のコードは空文字列。
func (c Code) Message() string {
	return codeMessages[c]
}

// Valid はコードが定義済みの失敗種別かどうかを返す。
func (c Code) Valid() bool {
	_, ok := codeMessages[c]
	return ok
}

func (c Code) String() string {
	if msg := c.Message(); msg != "" {
		return fmt.Sprintf("%d (%s)", int(c), msg)
	}
	return fmt.Sprintf("%d", int(c))
}

// CryptoError はプロトコル処理の失敗を表す構造化エラー。
// Data はデバッグ用の付帯情報であり、外部へのレスポンスには含めない。
type CryptoError struct {
	Code     Code   `json:"code"`
	CodeText string `json:"codeText"`
	Data     any    `json:"data,omitempty"`
}

// NewCryptoError はコードと付帯情報からCryptoErrorを生成する。
func NewCryptoError(code Code, data any) *CryptoError {
	return &CryptoError{
		Code:     code,
		CodeText: code.Message(),
		Data:     data,
	}
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("callback crypto error %d: %s", int(e.Code), e.CodeText)
}

// Is はコードが一致する場合にtrueを返す。errors.Isでの判定に使用する。
func (e *CryptoError) Is(target error) bool {
	var t *CryptoError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// CodeOf はerrがCryptoErrorであればそのコードを返す。
func CodeOf(err error) (Code, bool) {
	var ce *CryptoError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return CodeOK, false
}

// errors.Is で比較するための各コードの番兵エラー。
var (
	ErrValidateSignature = NewCryptoError(CodeValidateSignatureError, nil)
	ErrParseXML          = NewCryptoError(CodeParseXMLError, nil)
	ErrParseJSON         = NewCryptoError(CodeParseJSONError, nil)
	ErrComputeSignature  = NewCryptoError(CodeComputeSignatureError, nil)
	ErrIllegalAesKey     = NewCryptoError(CodeIllegalAesKey, nil)
	ErrValidateCorpid    = NewCryptoError(CodeValidateCorpidError, nil)
	ErrEncryptAES        = NewCryptoError(CodeEncryptAESError, nil)
	ErrDecryptAES        = NewCryptoError(CodeDecryptAESError, nil)
	ErrIllegalBuffer     = NewCryptoError(CodeIllegalBuffer, nil)
	ErrEncodeBase64      = NewCryptoError(CodeEncodeBase64Error, nil)
	ErrDecodeBase64      = NewCryptoError(CodeDecodeBase64Error, nil)
	ErrGenReturnXML      = NewCryptoError(CodeGenReturnXMLError, nil)
	ErrGenReturnJSON     = NewCryptoError(CodeGenReturnJSONError, nil)
)

var (
	// ErrNonceReplayed は同一のnonce・timestampが既に受信済みの場合のエラー。
	ErrNonceReplayed = errors.New("nonce already used")

	// ErrTimestampExpired はtimestampが許容範囲外の場合のエラー。
	ErrTimestampExpired = errors.New("timestamp out of tolerance")

	// ErrInvalidTimestamp はtimestampが数値として解釈できない場合のエラー。
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrMessageNotFound は指定された受信メッセージが存在しない場合のエラー。
	ErrMessageNotFound = errors.New("message not found")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
