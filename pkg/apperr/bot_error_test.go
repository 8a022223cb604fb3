package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestExternalErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ExternalError("whatsapp", cause)

	if !errors.Is(err, cause) {
		t.Error("expected ExternalError to unwrap to its cause")
	}
	if err.Status != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", err.Status)
	}
	if err.Details["service"] != "whatsapp" {
		t.Errorf("expected service detail, got %v", err.Details)
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("book: %w", Timeout("calendar.create"))

	if !HasCode(err, CodeTimeout) {
		t.Error("expected wrapped timeout to be detected")
	}
	if HasCode(err, CodeExternalError) {
		t.Error("did not expect external error code")
	}
	if AsAppError(err).Status != http.StatusGatewayTimeout {
		t.Errorf("unexpected status %d", AsAppError(err).Status)
	}
}

func TestAsAppErrorFallsBackToInternal(t *testing.T) {
	appErr := AsAppError(errors.New("plain"))
	if appErr.Code != CodeInternalError {
		t.Errorf("expected internal code, got %s", appErr.Code)
	}
	if appErr.Status != http.StatusInternalServerError {
		t.Error("expected 500 for non-app errors")
	}
}
