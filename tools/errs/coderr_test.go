package errs

import (
	"errors"
	"testing"
)

func TestCodeErrorIsMatchesByCode(t *testing.T) {
	err := ErrNotFound.WithDetail("conversation abc").Wrap()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrapped not-found should match ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Errorf("not-found must not match ErrForbidden")
	}
}

func TestWithDetailDoesNotMutateShared(t *testing.T) {
	_ = ErrInvalidArgument.WithDetail("text too long")
	if ErrInvalidArgument.Detail != "" {
		t.Fatalf("shared error mutated: %q", ErrInvalidArgument.Detail)
	}
}

func TestCode(t *testing.T) {
	if got := Code(ErrForbidden.WrapMsg("caller not participant", "caller", "u1")); got != CodeForbidden {
		t.Errorf("Code = %d, want %d", got, CodeForbidden)
	}
	if got := Code(errors.New("plain")); got != CodeInternal {
		t.Errorf("Code(plain) = %d, want %d", got, CodeInternal)
	}
	if got := Code(nil); got != 0 {
		t.Errorf("Code(nil) = %d, want 0", got)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil) != nil {
		t.Errorf("Wrap(nil) should be nil")
	}
	if WrapMsg(nil, "anything") != nil {
		t.Errorf("WrapMsg(nil) should be nil")
	}
}
