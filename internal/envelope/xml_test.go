package envelope

import (
	"errors"
	"testing"

	"callback-service/internal/domain"
)

func TestXMLCodec_Extract(t *testing.T) {
	text := `<xml>
		<ToUserName><![CDATA[wx5823bf96d3bd56c7]]></ToUserName>
		<FromUserName><![CDATA[mycreate]]></FromUserName>
		<CreateTime>1409659813</CreateTime>
		<MsgType><![CDATA[text]]></MsgType>
		<Content><![CDATA[hello]]></Content>
		<MsgId>4561255354251345929</MsgId>
		<AgentID>218</AgentID>
	</xml>`

	msg, err := XMLCodec{}.Extract(text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"ToUserName", "wx5823bf96d3bd56c7"},
		{"FromUserName", "mycreate"},
		{"CreateTime", "1409659813"},
		{"MsgType", "text"},
		{"Content", "hello"},
	}
	for _, tt := range tests {
		if got := msg.String(tt.key); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.key, tt.want, got)
		}
	}
	if got := msg.Lookup("agentid"); got != "218" {
		t.Errorf("expected case-insensitive lookup 218, got %q", got)
	}
}

func TestXMLCodec_Extract_NestedAndRepeated(t *testing.T) {
	text := `<xml><Event>batch</Event><Item><Id>1</Id></Item><Item><Id>2</Id></Item><Ext><Key>v</Key></Ext></xml>`

	msg, err := XMLCodec{}.Extract(text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	items, ok := msg["Item"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 repeated items, got %#v", msg["Item"])
	}
	if got := items[1].(Message).String("Id"); got != "2" {
		t.Errorf("expected second item Id 2, got %q", got)
	}
	if got := msg.Child("Ext").String("Key"); got != "v" {
		t.Errorf("expected nested Key v, got %q", got)
	}
	if got := msg.Child("Item").String("Id"); got != "1" {
		t.Errorf("expected first item Id 1, got %q", got)
	}
}

func TestXMLCodec_Extract_Malformed(t *testing.T) {
	cases := []string{
		"<xml><Encrypt>abc</xml>",
		"<xml><Encrypt>abc</Encrypt>",
		"<a></a><b></b>",
		"plain text",
		"",
		"<xml><a></b></xml>",
	}
	for _, text := range cases {
		if _, err := (XMLCodec{}).Extract(text); !errors.Is(err, domain.ErrParseXML) {
			t.Errorf("input %q: expected ErrParseXML, got %v", text, err)
		}
	}
}

func TestXMLCodec_ExtractEncrypt(t *testing.T) {
	enc, err := XMLCodec{}.ExtractEncrypt(`<xml><ToUserName><![CDATA[corp]]></ToUserName><Encrypt><![CDATA[abc+/=]]></Encrypt></xml>`)
	if err != nil {
		t.Fatalf("ExtractEncrypt failed: %v", err)
	}
	if enc != "abc+/=" {
		t.Errorf("expected abc+/=, got %q", enc)
	}

	_, err = XMLCodec{}.ExtractEncrypt(`<xml><ToUserName>corp</ToUserName></xml>`)
	if !errors.Is(err, domain.ErrParseXML) {
		t.Errorf("expected ErrParseXML, got %v", err)
	}
}

func TestXMLCodec_GenerateAndParseEnvelope(t *testing.T) {
	env := Envelope{
		Encrypt:      "c2VjcmV0",
		MsgSignature: "477715d11cdb4164915debcba66cb864d751f3e6",
		TimeStamp:    "1409659813",
		Nonce:        "1372623149",
	}

	out, err := XMLCodec{}.Generate(env)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	want := "<xml><Encrypt><![CDATA[c2VjcmV0]]></Encrypt>" +
		"<MsgSignature><![CDATA[477715d11cdb4164915debcba66cb864d751f3e6]]></MsgSignature>" +
		"<TimeStamp>1409659813</TimeStamp>" +
		"<Nonce><![CDATA[1372623149]]></Nonce></xml>"
	if out != want {
		t.Errorf("unexpected envelope:\nwant %s\ngot  %s", want, out)
	}

	parsed, err := XMLCodec{}.ParseEnvelope(out)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if parsed != env {
		t.Errorf("expected %+v, got %+v", env, parsed)
	}
}

func TestXMLCodec_ParseEnvelope_MissingField(t *testing.T) {
	_, err := XMLCodec{}.ParseEnvelope(`<xml><Encrypt>a</Encrypt><MsgSignature>b</MsgSignature><TimeStamp>1</TimeStamp></xml>`)
	if !errors.Is(err, domain.ErrParseXML) {
		t.Fatalf("expected ErrParseXML, got %v", err)
	}

	var ce *domain.CryptoError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CryptoError, got %T", err)
	}
	if ce.Data != "Nonce" {
		t.Errorf("expected missing field Nonce, got %q", ce.Data)
	}
}

func TestXMLCodec_Generate_Rejects(t *testing.T) {
	_, err := XMLCodec{}.Generate(Envelope{Encrypt: "a", MsgSignature: "b", TimeStamp: "1", Nonce: "x]]>y"})
	if !errors.Is(err, domain.ErrGenReturnXML) {
		t.Errorf("expected ErrGenReturnXML for CDATA terminator, got %v", err)
	}

	_, err = XMLCodec{}.Generate(Envelope{TimeStamp: "1", Nonce: "n"})
	if !errors.Is(err, domain.ErrGenReturnXML) {
		t.Errorf("expected ErrGenReturnXML for empty fields, got %v", err)
	}
}

func TestTextReply(t *testing.T) {
	reply := TextReply{ToUser: "user", FromUser: "corp", CreateTime: 1409659813, Content: "hi"}

	out, err := reply.Render(FormatXML)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	msg, err := XMLCodec{}.Extract(out)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if msg.String("ToUserName") != "user" || msg.String("MsgType") != "text" || msg.String("Content") != "hi" {
		t.Errorf("unexpected XML reply: %v", msg)
	}

	out, err = reply.Render(FormatJSON)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	msg, err = JSONCodec{}.Extract(out)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := msg.String("createtime"); got != "1409659813" {
		t.Errorf("expected createtime 1409659813, got %q", got)
	}
	if got := msg.Lookup("FromUserName"); got != "corp" {
		t.Errorf("expected fromusername corp, got %q", got)
	}
}
