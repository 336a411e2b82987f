// Package msgcrypt はコールバックメッセージの署名検証・復号・暗号化を行うプロトコル層。
//
// MsgCryptは構築後に不変であり、複数のゴルーチンから同時に呼び出してよい。
// nonceの再利用検知やtimestampの鮮度判定は行わない（呼び出し側の責務）。
package msgcrypt

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"time"

	"callback-service/internal/domain"
	"callback-service/internal/envelope"
	"callback-service/internal/wxcrypto"
)

// Primitives はAES暗号化・復号と署名計算を提供する外部協調者のインターフェース。
type Primitives interface {
	Encrypt(key []byte, plaintext, receiveID string) (string, error)
	Decrypt(key []byte, ciphertext string) (domain.Frame, error)
	Signature(token, timestamp, nonce, message string) (string, error)
}

// Codec はエンベロープの解析・生成を行うインターフェース。
type Codec interface {
	Format() string
	Extract(text string) (envelope.Message, error)
	ExtractEncrypt(text string) (string, error)
	ParseEnvelope(text string) (envelope.Envelope, error)
	Generate(env envelope.Envelope) (string, error)
}

// MsgCrypt はtoken・receiveID・AES鍵を保持し、コールバックの各操作を提供する。
type MsgCrypt struct {
	token      string
	receiveID  string
	aesKey     []byte
	primitives Primitives
	codec      Codec
	now        func() time.Time
	nonce      func() (string, error)
}

// Option はMsgCryptの設定を変更する。
type Option func(*MsgCrypt)

// WithPrimitives は暗号プリミティブの実装を差し替える。
func WithPrimitives(p Primitives) Option {
	return func(m *MsgCrypt) {
		m.primitives = p
	}
}

// WithCodec はエンベロープのフォーマットを差し替える。既定はXML。
func WithCodec(c Codec) Option {
	return func(m *MsgCrypt) {
		m.codec = c
	}
}

// WithClock はEncryptReplyでtimestampを省略した場合の時刻源を差し替える。
func WithClock(now func() time.Time) Option {
	return func(m *MsgCrypt) {
		m.now = now
	}
}

// WithNonceSource はEncryptReplyでnonceを省略した場合の生成元を差し替える。
func WithNonceSource(f func() (string, error)) Option {
	return func(m *MsgCrypt) {
		m.nonce = f
	}
}

// New は新しいMsgCryptを生成する。
// encodingAESKeyが43文字でない、または32バイトにデコードできない場合はIllegalAesKeyを返す。
func New(token, encodingAESKey, receiveID string, opts ...Option) (*MsgCrypt, error) {
	key, err := wxcrypto.DecodeAESKey(encodingAESKey)
	if err != nil {
		return nil, err
	}

	m := &MsgCrypt{
		token:      token,
		receiveID:  receiveID,
		aesKey:     key,
		primitives: wxcrypto.New(),
		codec:      envelope.XMLCodec{},
		now:        time.Now,
		nonce:      RandomNonce,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ReceiveID は受信側識別子（corpid / suiteid）を返す。
func (m *MsgCrypt) ReceiveID() string {
	return m.receiveID
}

// Codec は使用中のエンベロープコーデックを返す。
func (m *MsgCrypt) Codec() Codec {
	return m.codec
}

// VerifyURL はURL検証リクエストの署名を検証し、echostrを復号した平文を返す。
// 呼び出し側は戻り値を加工せずにそのままレスポンスボディとして返すこと。
func (m *MsgCrypt) VerifyURL(msgSignature, timestamp, nonce, echoStr string) (string, error) {
	if _, err := m.VerifySignature(msgSignature, timestamp, nonce, echoStr); err != nil {
		return "", err
	}
	msg, err := m.decrypt(echoStr)
	if err != nil {
		return "", err
	}
	return string(msg), nil
}

// DecryptMsg は受信データの署名を検証して復号し、業務メッセージを構造化して返す。
func (m *MsgCrypt) DecryptMsg(msgSignature, timestamp, nonce, postData string) (envelope.Message, error) {
	_, msg, err := m.DecryptMsgRaw(msgSignature, timestamp, nonce, postData)
	return msg, err
}

// DecryptMsgRaw はDecryptMsgと同じ処理を行い、復号直後の平文も併せて返す。
func (m *MsgCrypt) DecryptMsgRaw(msgSignature, timestamp, nonce, postData string) (string, envelope.Message, error) {
	encrypt, err := m.codec.ExtractEncrypt(postData)
	if err != nil {
		return "", nil, err
	}
	if _, err := m.VerifySignature(msgSignature, timestamp, nonce, encrypt); err != nil {
		return "", nil, err
	}
	plain, err := m.decrypt(encrypt)
	if err != nil {
		return "", nil, err
	}
	msg, err := m.codec.Extract(string(plain))
	if err != nil {
		return "", nil, err
	}
	return string(plain), msg, nil
}

// EncryptMsg は応答メッセージを暗号化し、署名付きエンベロープを返す。
// timestampとnonceはそのまま使用する。
func (m *MsgCrypt) EncryptMsg(replyMsg, timestamp, nonce string) (string, error) {
	encrypt, err := m.primitives.Encrypt(m.aesKey, replyMsg, m.receiveID)
	if err != nil {
		return "", asCryptoError(err, domain.CodeEncryptAESError)
	}
	signature, err := m.GenerateSignature(timestamp, nonce, encrypt)
	if err != nil {
		return "", err
	}
	return m.codec.Generate(envelope.Envelope{
		Encrypt:      encrypt,
		MsgSignature: signature,
		TimeStamp:    timestamp,
		Nonce:        nonce,
	})
}

// VerifySignature は署名を再計算して比較する。一致すれば計算した署名を返す。
// 不一致の場合はData "dev_msg_signature" を持つValidateSignatureErrorを返す。
func (m *MsgCrypt) VerifySignature(msgSignature, timestamp, nonce, message string) (string, error) {
	dev, err := m.GenerateSignature(timestamp, nonce, message)
	if err != nil {
		return "", err
	}
	if dev != msgSignature {
		return "", domain.NewCryptoError(domain.CodeValidateSignatureError, "dev_msg_signature")
	}
	return dev, nil
}

// GenerateSignature は署名を計算する。協調者の失敗はComputeSignatureErrorに変換する。
func (m *MsgCrypt) GenerateSignature(timestamp, nonce, message string) (string, error) {
	sig, err := m.primitives.Signature(m.token, timestamp, nonce, message)
	if err != nil {
		return "", domain.NewCryptoError(domain.CodeComputeSignatureError, nil)
	}
	return sig, nil
}

func (m *MsgCrypt) decrypt(ciphertext string) ([]byte, error) {
	frame, err := m.primitives.Decrypt(m.aesKey, ciphertext)
	if err != nil {
		return nil, asCryptoError(err, domain.CodeDecryptAESError)
	}
	if frame.ReceiveID != m.receiveID {
		return nil, domain.NewCryptoError(domain.CodeValidateCorpidError, nil)
	}
	return frame.Message, nil
}

// asCryptoError は分類済みのエラーはそのまま返し、それ以外はfallbackのコードに置き換える。
// 協調者固有のエラー型は境界の外へ出さない。
func asCryptoError(err error, fallback domain.Code) error {
	var ce *domain.CryptoError
	if errors.As(err, &ce) && ce.Code.Valid() {
		return domain.NewCryptoError(ce.Code, ce.Data)
	}
	return domain.NewCryptoError(fallback, nil)
}

// RandomNonce は10桁程度の数字からなるnonceを生成する。
func RandomNonce() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000000))
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// MillisTimestamp はUNIXエポックからのミリ秒を文字列で返す。
func MillisTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
