package msgcrypt

import (
	"fmt"
	"strings"

	"callback-service/internal/envelope"
)

// CodecFor はフォーマット名（"xml" / "json"）に対応するCodecを返す。
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "", envelope.FormatXML:
		return envelope.XMLCodec{}, nil
	case envelope.FormatJSON:
		return envelope.JSONCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown envelope format %q", format)
	}
}
