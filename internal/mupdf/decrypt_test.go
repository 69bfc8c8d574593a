package mupdf

import (
	"errors"
	"testing"

	"github.com/local/pdf2img/internal/document"
)

func TestIsPasswordError(t *testing.T) {
	tests := map[string]bool{
		"pdfcpu: please provide the correct password": true,
		"pdfcpu: authentication error":                true,
		"xref table corrupt":                          false,
	}
	for msg, want := range tests {
		if got := isPasswordError(errors.New(msg)); got != want {
			t.Errorf("isPasswordError(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestDecryptGarbageIsMalformed(t *testing.T) {
	_, err := decrypt([]byte("not a pdf at all"), "secret")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, document.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}
