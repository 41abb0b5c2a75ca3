package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructorsCarryCodeAndStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFound("booking"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad dates", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("bad json"), CodeInvalidInput, http.StatusBadRequest},
		{"conflict", Conflict("dates taken"), CodeConflict, http.StatusConflict},
		{"forbidden", Forbidden("not yours"), CodeForbidden, http.StatusForbidden},
		{"invalid transition", InvalidTransition("already accepted"), CodeInvalidTransition, http.StatusConflict},
		{"busy", Busy("try again"), CodeBusy, http.StatusServiceUnavailable},
		{"internal", Internal("boom", errors.New("cause")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, tc.err.HTTPStatus)
			}
		})
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("database down", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestAsAppErrorWrapsUnknownErrors(t *testing.T) {
	plain := errors.New("something broke")
	appErr := AsAppError(plain)

	if appErr.Code != CodeInternal {
		t.Errorf("expected internal code, got %s", appErr.Code)
	}
	if !errors.Is(appErr, plain) {
		t.Error("original error should be preserved as the cause")
	}
}

func TestAsAppErrorFindsWrappedAppError(t *testing.T) {
	inner := Conflict("dates taken")
	wrapped := fmt.Errorf("request failed: %w", inner)

	appErr := AsAppError(wrapped)
	if appErr.Code != CodeConflict {
		t.Errorf("expected conflict code, got %s", appErr.Code)
	}
}

func TestHasCode(t *testing.T) {
	err := Busy("vehicle locked")

	if !HasCode(err, CodeBusy) {
		t.Error("expected HasCode to match")
	}
	if HasCode(err, CodeConflict) {
		t.Error("expected HasCode to reject other codes")
	}
	if HasCode(errors.New("plain"), CodeBusy) {
		t.Error("plain errors have no code")
	}
}

func TestNotFoundWithIDDetails(t *testing.T) {
	err := NotFoundWithID("vehicle", "abc123")

	if err.Details["id"] != "abc123" {
		t.Errorf("expected id detail, got %v", err.Details)
	}
	if err.Details["resource"] != "vehicle" {
		t.Errorf("expected resource detail, got %v", err.Details)
	}
}
