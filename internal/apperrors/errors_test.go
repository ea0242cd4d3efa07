package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfWrapped(t *testing.T) {
	base := New(NotFound, "scenario not available")
	wrapped := fmt.Errorf("load scenario: %w", base)

	if got := CodeOf(wrapped); got != NotFound {
		t.Fatalf("Expected %v, got %v", NotFound, got)
	}
	if !errors.Is(wrapped, &Error{Code: NotFound}) {
		t.Fatal("Expected errors.Is to match by code")
	}
	if errors.Is(wrapped, &Error{Code: Validation}) {
		t.Fatal("Expected errors.Is not to match a different code")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != Internal {
		t.Fatalf("Expected internal, got %v", got)
	}
	if IsCode(nil, Internal) {
		t.Fatal("Expected nil error to match no code")
	}
}

func TestInvalidCarriesFields(t *testing.T) {
	fields := []string{"genre", "coreKeywords"}
	err := Invalid("scenario failed validation", fields)
	fields[0] = "mutated"

	got := FieldsOf(fmt.Errorf("publish: %w", err))
	if len(got) != 2 || got[0] != "genre" {
		t.Fatalf("Expected copied fields, got %v", got)
	}
	if err.Error() != "scenario failed validation [genre, coreKeywords]" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := Wrap(Provider, "generate narrative", cause)
	if !errors.Is(err, cause) {
		t.Fatal("Expected cause in chain")
	}
	if err.Error() != "generate narrative: quota exceeded" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
