// Package wxcrypto はコールバック暗号方式のプリミティブ
// （AES-256-CBC + PKCS#7、平文フレーム、SHA-1署名）を実装する。
package wxcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
	"sort"
	"strings"

	"callback-service/internal/domain"
)

const (
	// KeySize はAES-256の鍵長。
	KeySize = 32
	// padBlockSize はPKCS#7パディングのブロック長。プラットフォーム仕様により32バイト。
	padBlockSize = 32
)

// Primitives は暗号プリミティブの実装。
type Primitives struct {
	random io.Reader
}

// Option はPrimitivesの設定を変更する。
type Option func(*Primitives)

// WithRandom はフレーム乱数部の生成元を差し替える。
func WithRandom(r io.Reader) Option {
	return func(p *Primitives) {
		p.random = r
	}
}

// New は新しいPrimitivesを生成する。
func New(opts ...Option) *Primitives {
	p := &Primitives{random: rand.Reader}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DecodeAESKey は43文字のEncodingAESKeyを32バイトのAES鍵にデコードする。
func DecodeAESKey(encodingAESKey string) ([]byte, error) {
	if len(encodingAESKey) != 43 {
		return nil, domain.NewCryptoError(domain.CodeIllegalAesKey, nil)
	}
	key, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil || len(key) != KeySize {
		return nil, domain.NewCryptoError(domain.CodeIllegalAesKey, nil)
	}
	return key, nil
}

// Encrypt は平文をフレーム化してAES-256-CBCで暗号化し、Base64で返す。
// IVは鍵の先頭16バイトを使用する。
func (p *Primitives) Encrypt(key []byte, plaintext, receiveID string) (string, error) {
	if len(key) != KeySize {
		return "", domain.NewCryptoError(domain.CodeEncryptAESError, "key size")
	}
	if uint64(len(plaintext)) > math.MaxUint32 {
		return "", domain.NewCryptoError(domain.CodeEncryptAESError, "message too long")
	}

	var frame domain.Frame
	if _, err := io.ReadFull(p.random, frame.Random[:]); err != nil {
		return "", domain.NewCryptoError(domain.CodeEncryptAESError, "random")
	}
	frame.Message = []byte(plaintext)
	frame.ReceiveID = receiveID

	padded := pkcs7Pad(MarshalFrame(frame), padBlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", domain.NewCryptoError(domain.CodeEncryptAESError, nil)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, key[:aes.BlockSize]).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt はBase64の暗号文を復号し、フレームを解析して返す。
// receiveIDの照合は呼び出し側の責務。
func (p *Primitives) Decrypt(key []byte, ciphertext string) (domain.Frame, error) {
	if len(key) != KeySize {
		return domain.Frame{}, domain.NewCryptoError(domain.CodeDecryptAESError, "key size")
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return domain.Frame{}, domain.NewCryptoError(domain.CodeDecodeBase64Error, nil)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return domain.Frame{}, domain.NewCryptoError(domain.CodeDecryptAESError, "ciphertext size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return domain.Frame{}, domain.NewCryptoError(domain.CodeDecryptAESError, nil)
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, key[:aes.BlockSize]).CryptBlocks(plain, raw)

	unpadded, err := pkcs7Unpad(plain, padBlockSize)
	if err != nil {
		return domain.Frame{}, err
	}
	return UnmarshalFrame(unpadded)
}

// Signature はtoken・timestamp・nonce・messageを辞書順に並べて連結し、SHA-1の16進表現を返す。
// messageはダイジェストではなく原文のまま連結する。
func (p *Primitives) Signature(token, timestamp, nonce, message string) (string, error) {
	parts := []string{token, timestamp, nonce, message}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:]), nil
}

// MarshalFrame はフレームをバイト列に変換する。
func MarshalFrame(f domain.Frame) []byte {
	buf := make([]byte, 0, domain.FrameRandomSize+domain.FrameLengthSize+len(f.Message)+len(f.ReceiveID))
	buf = append(buf, f.Random[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Message)))
	buf = append(buf, f.Message...)
	buf = append(buf, f.ReceiveID...)
	return buf
}

// UnmarshalFrame はバイト列をフレームとして解析する。形が不正な場合はIllegalBuffer。
func UnmarshalFrame(b []byte) (domain.Frame, error) {
	const header = domain.FrameRandomSize + domain.FrameLengthSize
	if len(b) < header {
		return domain.Frame{}, domain.NewCryptoError(domain.CodeIllegalBuffer, "short frame")
	}
	msgLen := uint64(binary.BigEndian.Uint32(b[domain.FrameRandomSize:header]))
	if msgLen > uint64(len(b)-header) {
		return domain.Frame{}, domain.NewCryptoError(domain.CodeIllegalBuffer, "message length")
	}

	var f domain.Frame
	copy(f.Random[:], b[:domain.FrameRandomSize])
	end := header + int(msgLen)
	f.Message = bytes.Clone(b[header:end])
	f.ReceiveID = string(b[end:])
	return f, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, domain.NewCryptoError(domain.CodeIllegalBuffer, "empty")
	}
	n := int(b[len(b)-1])
	if n < 1 || n > blockSize || n > len(b) {
		return nil, domain.NewCryptoError(domain.CodeIllegalBuffer, "padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, domain.NewCryptoError(domain.CodeIllegalBuffer, "padding")
		}
	}
	return b[:len(b)-n], nil
}
