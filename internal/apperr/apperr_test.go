package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound("lead not found").WithOp("leads.Get"))
	if !Is(err, KindNotFound) {
		t.Fatalf("kind = %v", GetKind(err))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors have unknown kind")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Validation("x"), http.StatusBadRequest},
		{Forbidden("x"), http.StatusForbidden},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Internal("op", errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("%v: status %d, want %d", tt.err.Kind, got, tt.want)
		}
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.5:6379: connection refused")
	err := Internal("leads.Create", cause)
	if got := PublicMessage(err); got != "internal error" {
		t.Fatalf("public message leaked: %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause must stay reachable")
	}
	if got := PublicMessage(Validation("name is required")); got != "name is required" {
		t.Fatalf("validation message = %q", got)
	}
	if err.Code() != "internal" {
		t.Fatalf("code = %q", err.Code())
	}
}
