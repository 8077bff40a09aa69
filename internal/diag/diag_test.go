package diag

import (
	"strings"
	"testing"
	"time"

	"scoutd/pkg/types"
)

func TestNewRequestID(t *testing.T) {
	id := NewRequestID()
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("missing prefix: %q", id)
	}
	if len(id) != len("req_")+16 {
		t.Fatalf("unexpected length: %q", id)
	}
	for _, r := range id[len("req_"):] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("non-hex char %q in %q", r, id)
		}
	}
	if NewRequestID() == id {
		t.Fatalf("ids should be unique")
	}
}

func TestSanitizeInput(t *testing.T) {
	if _, err := SanitizeInput("", 100); !IsValidationError(err) {
		t.Fatalf("empty input: got %v", err)
	}
	if _, err := SanitizeInput(strings.Repeat("a", 101), 100); !IsValidationError(err) {
		t.Fatalf("over budget: got %v", err)
	}
	got, err := SanitizeInput("he\x00llo\x00", 100)
	if err != nil {
		t.Fatalf("null strip: %v", err)
	}
	if got != "hello" {
		t.Fatalf("null strip: got %q", got)
	}
	if _, err := SanitizeInput("\x00\x00", 100); !IsValidationError(err) {
		t.Fatalf("all-null input should be rejected, got %v", err)
	}
	if _, err := SanitizeInput("\x00 \x00", 100); !IsValidationError(err) {
		t.Fatalf("whitespace-after-strip should be rejected, got %v", err)
	}
	// zero budget disables the length check
	if _, err := SanitizeInput(strings.Repeat("a", 10000), 0); err != nil {
		t.Fatalf("unbounded: %v", err)
	}
}

func TestSuccessEnvelope(t *testing.T) {
	m := types.GenerationMetrics{TokensGenerated: 5, InputTokens: 3, TotalTokens: 8}
	env := SuccessEnvelope("hi there", m, "req_0123456789abcdef")
	if env.Error != nil {
		t.Fatalf("unexpected error payload")
	}
	if env.Output == nil || env.Output.GeneratedText != "hi there" {
		t.Fatalf("output: %+v", env.Output)
	}
	if env.Output.TokensGenerated != 5 || env.Output.TotalTokens != 8 {
		t.Fatalf("metrics not carried: %+v", env.Output.GenerationMetrics)
	}
	if env.RequestID != "req_0123456789abcdef" {
		t.Fatalf("request id: %q", env.RequestID)
	}
}

func TestErrorEnvelope(t *testing.T) {
	env := ErrorEnvelope(ValidationErrorf("prompt is empty"), "req_x", false)
	if env.Output != nil {
		t.Fatalf("unexpected output payload")
	}
	if env.Error.Type != "ValidationError" {
		t.Fatalf("type: %q", env.Error.Type)
	}
	if env.Error.Message != "prompt is empty" {
		t.Fatalf("message: %q", env.Error.Message)
	}
	if env.Error.Traceback != "" {
		t.Fatalf("categorized error must not carry a traceback")
	}
	if _, err := time.Parse(time.RFC3339, env.Error.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", env.Error.Timestamp, err)
	}
}

func TestErrorEnvelopeTraceback(t *testing.T) {
	env := ErrorEnvelope(ValidationErrorf("boom"), "req_x", true)
	if env.Error.Traceback == "" {
		t.Fatalf("expected a traceback when requested")
	}
	if !strings.Contains(env.Error.Traceback, "goroutine") {
		t.Fatalf("traceback should be a stack dump, got %q", env.Error.Traceback[:40])
	}
}
