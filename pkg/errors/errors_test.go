package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		sentinel   error
		statusCode int
		code       string
	}{
		{"not found", NotFound("item"), ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"not found with id", NotFoundID("order", "abc"), ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"bad request", BadRequest("nope"), ErrBadRequest, http.StatusBadRequest, "BAD_REQUEST"},
		{"conflict", Conflict("stale version"), ErrConflict, http.StatusConflict, "CONFLICT"},
		{"state", State("order is cancelled"), ErrState, http.StatusUnprocessableEntity, "INVALID_STATE"},
		{"internal", Internal("boom"), ErrInternal, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"validation", Validation(map[string]string{"qty": "positive"}), ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", tt.err.StatusCode, tt.statusCode)
			}
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if !Is(tt.err, tt.sentinel) {
				t.Errorf("Is(err, sentinel) = false, want true")
			}
		})
	}
}

func TestIs_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("posting receipts: %w", Conflict("item changed concurrently"))

	if !Is(err, ErrConflict) {
		t.Error("wrapped conflict not detected")
	}
	if Is(err, ErrNotFound) {
		t.Error("wrapped conflict misdetected as not found")
	}
}

func TestAs_ExtractsAppError(t *testing.T) {
	err := fmt.Errorf("outer: %w", State("cannot receive"))

	var appErr *AppError
	if !As(err, &appErr) {
		t.Fatal("As() failed to extract AppError")
	}
	if appErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, want 422", appErr.StatusCode)
	}
}

func TestNotFoundID_CarriesIdentifier(t *testing.T) {
	err := NotFoundID("item", "abc-123")

	if err.Details["id"] != "abc-123" {
		t.Errorf("Details[id] = %q, want abc-123", err.Details["id"])
	}
	if err.Error() != "item abc-123 not found: resource not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestValidation_Details(t *testing.T) {
	err := Validation(map[string]string{"quantity_delta": "zero-delta movements are not recorded"})

	if err.Details["quantity_delta"] == "" {
		t.Error("details were dropped")
	}
}
