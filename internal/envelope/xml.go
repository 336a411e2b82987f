package envelope

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/beevik/etree"

	"callback-service/internal/domain"
)

const cdataTerminator = "]]>"

// XMLCodec はXML形式のエンベロープを扱う。
type XMLCodec struct{}

// Format はフォーマット名を返す。
func (XMLCodec) Format() string { return FormatXML }

// Extract はXML文字列を解析し、ルート要素直下のフィールドを返す。
// 整形式でない場合はParseXMLErrorを返す。
func (XMLCodec) Extract(text string) (Message, error) {
	root, err := parseRoot(text)
	if err != nil {
		return nil, err
	}
	return elementToMessage(root), nil
}

// ExtractEncrypt は受信データからEncryptフィールドを取り出す。
func (c XMLCodec) ExtractEncrypt(text string) (string, error) {
	root, err := parseRoot(text)
	if err != nil {
		return "", err
	}
	el := root.SelectElement("Encrypt")
	if el == nil {
		return "", domain.NewCryptoError(domain.CodeParseXMLError, "Encrypt")
	}
	return strings.TrimSpace(el.Text()), nil
}

// ParseEnvelope は応答エンベロープを解析する。4フィールドすべてが必須。
func (XMLCodec) ParseEnvelope(text string) (Envelope, error) {
	root, err := parseRoot(text)
	if err != nil {
		return Envelope{}, err
	}

	var env Envelope
	fields := []struct {
		tag string
		dst *string
	}{
		{"Encrypt", &env.Encrypt},
		{"MsgSignature", &env.MsgSignature},
		{"TimeStamp", &env.TimeStamp},
		{"Nonce", &env.Nonce},
	}
	for _, f := range fields {
		el := root.SelectElement(f.tag)
		if el == nil {
			return Envelope{}, domain.NewCryptoError(domain.CodeParseXMLError, f.tag)
		}
		*f.dst = strings.TrimSpace(el.Text())
	}
	return env, nil
}

// Generate はエンベロープを固定形式のXMLに変換する。
// Encrypt・MsgSignature・NonceはCDATAで、TimeStampはテキストノードで出力する。
func (XMLCodec) Generate(env Envelope) (string, error) {
	if env.Encrypt == "" || env.MsgSignature == "" {
		return "", domain.NewCryptoError(domain.CodeGenReturnXMLError, "empty field")
	}
	for _, v := range []string{env.Encrypt, env.MsgSignature, env.Nonce} {
		if strings.Contains(v, cdataTerminator) {
			return "", domain.NewCryptoError(domain.CodeGenReturnXMLError, "cdata terminator in field")
		}
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("xml")
	root.CreateElement("Encrypt").CreateCData(env.Encrypt)
	root.CreateElement("MsgSignature").CreateCData(env.MsgSignature)
	root.CreateElement("TimeStamp").SetText(env.TimeStamp)
	root.CreateElement("Nonce").CreateCData(env.Nonce)

	out, err := doc.WriteToString()
	if err != nil {
		return "", domain.NewCryptoError(domain.CodeGenReturnXMLError, nil)
	}
	return out, nil
}

// parseRoot は整形式チェックの後にetreeで解析し、ルート要素を返す。
func parseRoot(text string) (*etree.Element, error) {
	if err := validate(text); err != nil {
		return nil, domain.NewCryptoError(domain.CodeParseXMLError, nil)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, domain.NewCryptoError(domain.CodeParseXMLError, nil)
	}
	root := doc.Root()
	if root == nil {
		return nil, domain.NewCryptoError(domain.CodeParseXMLError, nil)
	}
	return root, nil
}

// validate は開始・終了タグの対応と単一ルートを検査する。
// etreeはRawTokenで読むためタグの対応を検証しない。
func validate(text string) error {
	dec := xml.NewDecoder(strings.NewReader(text))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return errors.New("character data outside root element")
			}
		}
	}
	if roots != 1 || depth != 0 {
		return errors.New("document must have exactly one root element")
	}
	return nil
}

func elementToMessage(el *etree.Element) Message {
	m := Message{}
	for _, child := range el.ChildElements() {
		var v any
		if len(child.ChildElements()) == 0 {
			v = strings.TrimSpace(child.Text())
		} else {
			v = elementToMessage(child)
		}
		m.add(child.Tag, v)
	}
	return m
}
