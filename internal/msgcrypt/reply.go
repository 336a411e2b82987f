package msgcrypt

import "callback-service/internal/domain"

type replyOptions struct {
	timestamp string
	nonce     string
}

// ReplyOption はEncryptReplyの任意パラメータを指定する。
type ReplyOption func(*replyOptions)

// WithTimestamp は応答に使うtimestampを指定する。
func WithTimestamp(ts string) ReplyOption {
	return func(o *replyOptions) {
		o.timestamp = ts
	}
}

// WithNonce は応答に使うnonceを指定する。
func WithNonce(nonce string) ReplyOption {
	return func(o *replyOptions) {
		o.nonce = nonce
	}
}

// EncryptReply はtimestamp・nonceを省略可能にしたEncryptMsg。
// 省略時はtimestampに現在時刻（ミリ秒）、nonceに乱数の数字列を用いる。
func (m *MsgCrypt) EncryptReply(replyMsg string, opts ...ReplyOption) (string, error) {
	var o replyOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.timestamp == "" {
		o.timestamp = MillisTimestamp(m.now())
	}
	if o.nonce == "" {
		n, err := m.nonce()
		if err != nil {
			return "", domain.NewCryptoError(domain.CodeEncryptAESError, "nonce")
		}
		o.nonce = n
	}
	return m.EncryptMsg(replyMsg, o.timestamp, o.nonce)
}
