package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCode_Values(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeOK, 0},
		{CodeValidateSignatureError, -40001},
		{CodeParseXMLError, -40002},
		{CodeParseJSONError, -40003},
		{CodeComputeSignatureError, -40004},
		{CodeIllegalAesKey, -40005},
		{CodeValidateCorpidError, -40006},
		{CodeEncryptAESError, -40007},
		{CodeDecryptAESError, -40008},
		{CodeIllegalBuffer, -40009},
		{CodeEncodeBase64Error, -40010},
		{CodeDecodeBase64Error, -40011},
		{CodeGenReturnXMLError, -40012},
		{CodeGenReturnJSONError, -40013},
	}
	for _, tt := range tests {
		if int(tt.code) != tt.want {
			t.Errorf("want %d, got %d", tt.want, int(tt.code))
		}
		if tt.code != CodeOK && !tt.code.Valid() {
			t.Errorf("code %d should be valid", tt.want)
		}
	}
	if CodeOK.Valid() {
		t.Error("CodeOK is not a failure kind")
	}
}

func TestCryptoError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewCryptoError(CodeDecryptAESError, "cipher"))

	if !errors.Is(err, ErrDecryptAES) {
		t.Error("want errors.Is to match by code")
	}
	if errors.Is(err, ErrIllegalBuffer) {
		t.Error("different code must not match")
	}

	code, ok := CodeOf(err)
	if !ok || code != CodeDecryptAESError {
		t.Errorf("want %d, got %d (%v)", CodeDecryptAESError, code, ok)
	}
	if _, ok := CodeOf(errors.New("plain")); ok {
		t.Error("plain errors have no code")
	}
}

func TestCryptoError_Error(t *testing.T) {
	err := NewCryptoError(CodeValidateSignatureError, "dev_msg_signature")

	if got, want := err.Error(), "callback crypto error -40001: signature validation failed"; got != want {
		t.Errorf("want %q, got %q", want, got)
	}
	if err.CodeText != "signature validation failed" {
		t.Errorf("unexpected code text %q", err.CodeText)
	}
	if Code(-1).String() != "-1" {
		t.Errorf("unexpected string for unknown code: %s", Code(-1).String())
	}
}
