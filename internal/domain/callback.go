// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// MessageStatus は受信メッセージの処理結果を表す。
type MessageStatus string

const (
	// MessageStatusAccepted は復号・検証に成功したメッセージを表す。
	MessageStatusAccepted MessageStatus = "accepted"
	// MessageStatusReplied は暗号化した被動応答を返したメッセージを表す。
	MessageStatusReplied MessageStatus = "replied"
)

// CallbackMessage は受信したコールバックメッセージを表す。
type CallbackMessage struct {
	ID         string
	ReceiveID  string
	MsgType    string
	Event      string
	MsgID      string
	AgentID    string
	FromUser   string
	ToUser     string
	CreateTime int64
	Nonce      string
	Timestamp  string
	Payload    []byte // 復号済み業務メッセージ（JSON）
	Status     MessageStatus
	ReceivedAt time.Time
}

// CallbackQuery はコールバックリクエストのクエリパラメータを表す。
type CallbackQuery struct {
	MsgSignature string
	Timestamp    string
	Nonce        string
}

// SeenNonce はリプレイ検知のために記録したnonceを表す。
type SeenNonce struct {
	Nonce     string
	Timestamp string
	SeenAt    time.Time
}
