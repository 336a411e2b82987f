// Package envelope はコールバックの送受信エンベロープ（XML/JSON）と
// 業務メッセージの構造化表現との相互変換を提供する。
package envelope

import "strings"

// フォーマット名。
const (
	FormatXML  = "xml"
	FormatJSON = "json"
)

// Envelope は暗号文・署名・タイムスタンプ・nonceを運ぶワイヤ表現。
type Envelope struct {
	Encrypt      string
	MsgSignature string
	TimeStamp    string
	Nonce        string
}

// Message はルート要素直下のフィールドを表す。
// 値は文字列、入れ子のMessage、または同名要素が繰り返された場合の[]anyのいずれか。
type Message map[string]any

// String はkeyの値を文字列として返す。繰り返し要素の場合は先頭の値を返す。
func (m Message) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Child はkeyの値を入れ子のMessageとして返す。存在しない場合はnil。
func (m Message) Child(key string) Message {
	switch v := m[key].(type) {
	case Message:
		return v
	case []any:
		if len(v) > 0 {
			if c, ok := v[0].(Message); ok {
				return c
			}
		}
	}
	return nil
}

// Lookup は大文字小文字を区別せずにkeyの文字列値を探す。
// XMLは "MsgType"、JSONは "msgtype" のように表記が異なるため、両方に対応する。
func (m Message) Lookup(key string) string {
	if s := m.String(key); s != "" {
		return s
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return m.String(k)
		}
	}
	return ""
}

func (m Message) add(key string, value any) {
	existing, ok := m[key]
	if !ok {
		m[key] = value
		return
	}
	if list, ok := existing.([]any); ok {
		m[key] = append(list, value)
		return
	}
	m[key] = []any{existing, value}
}
