package relayerr

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	cause := errors.New("disk full")
	err := New(CodeStoreError, cause)

	if !errors.Is(err, New(CodeStoreError, nil)) {
		t.Fatalf("expected errors.Is to match on code regardless of cause")
	}
	if errors.Is(err, New(CodeStackError, nil)) {
		t.Fatalf("expected errors.Is not to match a different code")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the original cause")
	}
}

func TestWriteHTTPUsesRegisteredStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHTTP(w, New(CodeStoreError, errors.New("boom")))

	meta, ok := Meta(CodeStoreError)
	if !ok {
		t.Fatalf("expected CodeStoreError to be registered")
	}
	if w.Code != meta.HTTPStatus {
		t.Fatalf("expected status %d, got %d", meta.HTTPStatus, w.Code)
	}
}

func TestNewEnvelopeFallsBackForUnknownErrors(t *testing.T) {
	env := NewEnvelope(errors.New("some unrelated failure"))
	if env.Code != CodeStoreError {
		t.Fatalf("expected unknown errors to fall back to CodeStoreError, got %s", env.Code)
	}
}
