package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"callback-service/internal/domain"
)

// JSONCodec はJSON形式のエンベロープを扱う。
type JSONCodec struct{}

type jsonEnvelope struct {
	Encrypt      string      `json:"encrypt"`
	MsgSignature string      `json:"msgsignature"`
	TimeStamp    json.Number `json:"timestamp"`
	Nonce        string      `json:"nonce"`
}

// Format はフォーマット名を返す。
func (JSONCodec) Format() string { return FormatJSON }

// Extract はJSONオブジェクトを解析してフィールドを返す。数値は文字列として保持する。
func (JSONCodec) Extract(text string) (Message, error) {
	obj, err := decodeObject(text)
	if err != nil {
		return nil, err
	}
	return objectToMessage(obj), nil
}

// ExtractEncrypt は受信データからencryptフィールドを取り出す。
func (c JSONCodec) ExtractEncrypt(text string) (string, error) {
	m, err := c.Extract(text)
	if err != nil {
		return "", err
	}
	enc := m.Lookup("encrypt")
	if enc == "" {
		return "", domain.NewCryptoError(domain.CodeParseJSONError, "encrypt")
	}
	return enc, nil
}

// ParseEnvelope は応答エンベロープを解析する。4フィールドすべてが必須。
func (c JSONCodec) ParseEnvelope(text string) (Envelope, error) {
	m, err := c.Extract(text)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		Encrypt:      m.Lookup("encrypt"),
		MsgSignature: m.Lookup("msgsignature"),
		TimeStamp:    m.Lookup("timestamp"),
		Nonce:        m.Lookup("nonce"),
	}
	for name, v := range map[string]string{
		"encrypt":      env.Encrypt,
		"msgsignature": env.MsgSignature,
		"timestamp":    env.TimeStamp,
		"nonce":        env.Nonce,
	} {
		if v == "" {
			return Envelope{}, domain.NewCryptoError(domain.CodeParseJSONError, name)
		}
	}
	return env, nil
}

// Generate はエンベロープをJSONに変換する。timestampは数値として出力する。
func (JSONCodec) Generate(env Envelope) (string, error) {
	if env.Encrypt == "" || env.MsgSignature == "" {
		return "", domain.NewCryptoError(domain.CodeGenReturnJSONError, "empty field")
	}
	out, err := json.Marshal(jsonEnvelope{
		Encrypt:      env.Encrypt,
		MsgSignature: env.MsgSignature,
		TimeStamp:    json.Number(env.TimeStamp),
		Nonce:        env.Nonce,
	})
	if err != nil {
		return "", domain.NewCryptoError(domain.CodeGenReturnJSONError, nil)
	}
	return string(out), nil
}

func decodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, domain.NewCryptoError(domain.CodeParseJSONError, nil)
	}
	if dec.More() {
		return nil, domain.NewCryptoError(domain.CodeParseJSONError, nil)
	}
	return obj, nil
}

func objectToMessage(obj map[string]any) Message {
	m := make(Message, len(obj))
	for k, v := range obj {
		m[k] = normalizeJSON(v)
	}
	return m
}

func normalizeJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return objectToMessage(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeJSON(e)
		}
		return out
	case json.Number:
		return t.String()
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
