package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewDefaultsMessage(t *testing.T) {
	e := New(CodeNotFound, "")
	if e.Message() != "resource not found" {
		t.Fatalf("expected default message, got %q", e.Message())
	}
	if e.Error() != "[NOT_FOUND] resource not found" {
		t.Fatalf("unexpected Error(): %q", e.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("disk full")
	e := Wrap(CodeInternal, cause, "storage failure")

	if !stdErrors.Is(e, cause) {
		t.Fatalf("expected errors.Is to find the cause")
	}
	if e.Error() != "[INTERNAL_ERROR] storage failure: disk full" {
		t.Fatalf("unexpected Error(): %q", e.Error())
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeBadRequest, "title missing")
	b := New(CodeBadRequest, "something else")
	c := New(CodeNotFound, "")

	if !stdErrors.Is(a, b) {
		t.Fatalf("same code should match")
	}
	if stdErrors.Is(a, c) {
		t.Fatalf("different codes should not match")
	}

	wrapped := fmt.Errorf("handler: %w", a)
	if !stdErrors.Is(wrapped, New(CodeBadRequest, "")) {
		t.Fatalf("expected match through fmt.Errorf wrapping")
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"coded", New(CodeNotFound, ""), CodeNotFound},
		{"wrapped coded", fmt.Errorf("x: %w", New(CodeBadRequest, "")), CodeBadRequest},
		{"plain", stdErrors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Fatalf("CodeOf = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	if HTTPStatus(CodeBadRequest) != http.StatusBadRequest {
		t.Fatalf("BAD_REQUEST should map to 400")
	}
	if HTTPStatus(CodeNotFound) != http.StatusNotFound {
		t.Fatalf("NOT_FOUND should map to 404")
	}
	if HTTPStatus(Code("WHATEVER")) != http.StatusInternalServerError {
		t.Fatalf("unknown code should map to 500")
	}
}
