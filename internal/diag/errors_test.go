package diag

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{ValidationErrorf("bad input"), "ValidationError"},
		{NewModelLoadError("load failed", errors.New("disk full")), "ModelLoadError"},
		{InferenceErrorf("generation failed"), "InferenceError"},
		{NewDeviceMemoryError("oom"), "GPUMemoryError"},
		{NewNotReadyError("not loaded"), "ModelNotReadyError"},
		{errors.New("something else"), "UnexpectedError"},
	}
	for _, c := range cases {
		if got := ErrorKind(c.err); got != c.kind {
			t.Fatalf("ErrorKind(%v) = %q, want %q", c.err, got, c.kind)
		}
	}
}

func TestCategorized(t *testing.T) {
	if !Categorized(ValidationErrorf("x")) {
		t.Fatalf("validation errors are categorized")
	}
	if Categorized(errors.New("x")) {
		t.Fatalf("plain errors are not categorized")
	}
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	err := fmt.Errorf("context: %w", NewDeviceMemoryError("oom"))
	if !IsDeviceMemoryError(err) {
		t.Fatalf("errors.As should see through fmt wrapping")
	}
	if ErrorKind(err) != "GPUMemoryError" {
		t.Fatalf("kind through wrapping: %q", ErrorKind(err))
	}
}

func TestModelLoadErrorUnwrap(t *testing.T) {
	cause := errors.New("checkpoint missing")
	err := NewModelLoadError("model loading failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("cause should be reachable via errors.Is")
	}
	want := "model loading failed: checkpoint missing"
	if err.Error() != want {
		t.Fatalf("message: got %q, want %q", err.Error(), want)
	}
}
