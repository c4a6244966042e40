package validator

import (
	"errors"
	"testing"
)

type sample struct {
	ServerID string `json:"server_id" validate:"required"`
	Nonce    int64  `json:"nonce" validate:"min=1"`
}

func TestTranslateErrorUsesJSONNames(t *testing.T) {
	err := ValidateStruct(sample{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	got := TranslateError(err)
	if got["server_id"] != "required" || got["nonce"] != "min" {
		t.Fatalf("unexpected translation: %v", got)
	}
}

func TestTranslateErrorNonValidation(t *testing.T) {
	got := TranslateError(errors.New("boom"))
	if got["_"] != "boom" {
		t.Fatalf("unexpected translation: %v", got)
	}
	if len(TranslateError(nil)) != 0 {
		t.Fatalf("nil error should translate to empty map")
	}
}
