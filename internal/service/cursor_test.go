package service_test

import (
	"errors"
	"testing"

	"github.com/roomcast/internal/apperr"
	"github.com/roomcast/internal/service"
)

func TestCursorRoundTrip(t *testing.T) {
	orig := service.Cursor{Seq: 42}
	got, err := service.DecodeCursor(orig.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if got.Seq != orig.Seq {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, orig)
	}
}

func TestDecodeCursorEmptyIsZero(t *testing.T) {
	got, err := service.DecodeCursor("")
	if err != nil {
		t.Fatalf("DecodeCursor(\"\"): %v", err)
	}
	if got.Seq != 0 {
		t.Fatalf("expected zero cursor, got %+v", got)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	negative := service.Cursor{Seq: -7}.Encode()
	for _, token := range []string{"not base64 ***", "aGVsbG8", negative} {
		if _, err := service.DecodeCursor(token); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("token %q: expected validation error, got %v", token, err)
		}
	}
}
