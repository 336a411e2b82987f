package envelope

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"callback-service/internal/domain"
)

// TextReply はテキスト形式の被動応答メッセージ（暗号化前）を表す。
type TextReply struct {
	ToUser     string
	FromUser   string
	CreateTime int64
	Content    string
}

// Render はformatに応じて応答メッセージを文字列化する。
func (r TextReply) Render(format string) (string, error) {
	if format == FormatJSON {
		return r.JSON()
	}
	return r.XML()
}

// XML は応答メッセージをXMLで出力する。
func (r TextReply) XML() (string, error) {
	for _, v := range []string{r.ToUser, r.FromUser, r.Content} {
		if strings.Contains(v, cdataTerminator) {
			return "", domain.NewCryptoError(domain.CodeGenReturnXMLError, "cdata terminator in field")
		}
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("xml")
	root.CreateElement("ToUserName").CreateCData(r.ToUser)
	root.CreateElement("FromUserName").CreateCData(r.FromUser)
	root.CreateElement("CreateTime").SetText(strconv.FormatInt(r.CreateTime, 10))
	root.CreateElement("MsgType").CreateCData("text")
	root.CreateElement("Content").CreateCData(r.Content)

	out, err := doc.WriteToString()
	if err != nil {
		return "", domain.NewCryptoError(domain.CodeGenReturnXMLError, nil)
	}
	return out, nil
}

// JSON は応答メッセージをJSONで出力する。
func (r TextReply) JSON() (string, error) {
	out, err := json.Marshal(struct {
		ToUser     string `json:"tousername"`
		FromUser   string `json:"fromusername"`
		CreateTime int64  `json:"createtime"`
		MsgType    string `json:"msgtype"`
		Content    string `json:"content"`
	}{r.ToUser, r.FromUser, r.CreateTime, "text", r.Content})
	if err != nil {
		return "", domain.NewCryptoError(domain.CodeGenReturnJSONError, nil)
	}
	return string(out), nil
}
