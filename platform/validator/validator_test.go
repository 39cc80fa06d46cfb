package validator

import "testing"

type noteInput struct {
	Body string `validate:"required,notblank,max=4000"`
}

func TestNotBlankRejectsWhitespace(t *testing.T) {
	v := New()
	if err := v.Struct(noteInput{Body: "   "}); err == nil {
		t.Fatal("expected whitespace-only body to fail validation")
	}
	if err := v.Struct(noteInput{Body: "called back, left voicemail"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
