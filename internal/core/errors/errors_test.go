package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeEntryNotFound, "symbol not found")
		if err.Error() != "[ENTRY_NOT_FOUND] symbol not found" {
			t.Errorf("expected [ENTRY_NOT_FOUND] symbol not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("no such file")
		err := Wrap(original, CodeSourceUnavailable, "read module")
		expected := "[SOURCE_UNAVAILABLE] read module: no such file"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to the original")
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeNameCollision, "rename collides")
		if !IsCode(err, CodeNameCollision) {
			t.Error("expected IsCode to return true for CodeNameCollision")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeThroughFmtWrap", func(t *testing.T) {
		err := fmt.Errorf("run failed: %w", New(CodeUnresolvedReference, "missing"))
		if !IsCode(err, CodeUnresolvedReference) {
			t.Error("expected IsCode to see through fmt wrapping")
		}
		if CodeOf(err) != CodeUnresolvedReference {
			t.Errorf("expected CodeOf to return UNRESOLVED_REFERENCE, got %q", CodeOf(err))
		}
	})

	t.Run("ContextIsSorted", func(t *testing.T) {
		err := Newf(CodeUnresolvedReference, "name %q is not bound", "helper").
			WithContext(CtxSymbol, "helper").
			WithContext(CtxModule, "pkg.util")
		expected := `[UNRESOLVED_REFERENCE] name "helper" is not bound (module=pkg.util symbol=helper)`
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("AddContextPlainError", func(t *testing.T) {
		err := AddContext(errors.New("boom"), CtxOperation, "render")
		if !IsCode(err, CodeInternal) {
			t.Error("expected plain errors to become internal domain errors")
		}
	})

	t.Run("CodeOfPlainError", func(t *testing.T) {
		if CodeOf(errors.New("plain")) != "" {
			t.Error("expected empty code for non-domain errors")
		}
	})
}
