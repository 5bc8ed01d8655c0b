package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindAccountDisabled, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindInvalidTransition, http.StatusBadRequest},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("saving: %w", Wrap(KindNotFound, cause, "task not found"))

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is to match ErrNotFound")
	}
	if errors.Is(err, ErrForbidden) {
		t.Error("matched the wrong kind")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(Validation("title is required")); got != "title is required" {
		t.Errorf("got %q", got)
	}
	if got := PublicMessage(Internal(errors.New("pq: connection refused"), "load task")); got != "internal server error" {
		t.Errorf("internal detail leaked: %q", got)
	}
	if got := PublicMessage(errors.New("boom")); got != "internal server error" {
		t.Errorf("plain error leaked: %q", got)
	}
	if got := PublicMessage(&Error{Kind: KindForbidden}); got != "forbidden" {
		t.Errorf("got %q", got)
	}
}
