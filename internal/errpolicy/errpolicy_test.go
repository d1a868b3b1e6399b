package errpolicy

import (
	"errors"
	"fmt"
	"testing"
)

func TestFatalExitsNonZero(t *testing.T) {
	orig := exitFunc
	defer func() { exitFunc = orig }()
	exitCode := -1
	exitFunc = func(code int) { exitCode = code }

	Fatal("TestComponent", "model unavailable", errors.New("no such file"))

	if exitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", exitCode)
	}
}

func TestRecoverableAndWarnDoNotExit(t *testing.T) {
	orig := exitFunc
	defer func() { exitFunc = orig }()
	exitFunc = func(code int) { t.Fatalf("unexpected exit with code %d", code) }

	Recoverable("TestComponent", "metric failed", errors.New("parse error"))
	Recoverable("TestComponent", "metric failed", nil)
	Warn("TestComponent", "unknown auth type", nil)
}

func TestSentinelsWrapCorrectly(t *testing.T) {
	wrapped := fmt.Errorf("invalid node type %q: %w", "router", ErrInvalidArgument)
	if !errors.Is(wrapped, ErrInvalidArgument) {
		t.Fatalf("expected wrapped error to match ErrInvalidArgument")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("did not expect wrapped error to match ErrNotFound")
	}
}
