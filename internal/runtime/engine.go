// Package runtime wraps the external tensor-inference library behind a
// small engine interface. The real llama.cpp binding is only compiled
// under the 'llama' build tag; default builds get a stub that fails with
// an unavailability error, keeping CI builds CGO-free.
package runtime

import (
	"context"
	"errors"
)

// Params carries the fully resolved generation parameters for one call.
type Params struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	DoSample          bool
	Seed              int
}

// Tokenized is the outcome of bounding a prompt to a token budget.
type Tokenized struct {
	// Prompt text after truncation, fed verbatim to Generate.
	Text string
	// Token count of Text.
	Tokens int
	// Whether the original text exceeded the budget and was cut.
	Truncated bool
}

// Result summarizes one generation call. Text contains only the newly
// generated span, never the prompt.
type Result struct {
	Text            string
	GeneratedTokens int
	FinishReason    string
}

// Engine is a loaded model plus tokenizer. Implementations are safe for
// observation from other goroutines but Generate is called one request
// at a time per process.
type Engine interface {
	// Tokenize counts the tokens of text and truncates it to maxTokens.
	Tokenize(text string, maxTokens int) (Tokenized, error)
	// Generate produces up to p.MaxNewTokens new tokens for prompt,
	// invoking onToken for each. Blocks until done or failed.
	Generate(ctx context.Context, prompt string, p Params, onToken func(token string) error) (Result, error)
	// ReleaseMemory drops cached device memory; best effort.
	ReleaseMemory()
	// Close frees the model.
	Close() error
}

// Factory loads an Engine. The gate calls it at most once per process.
type Factory interface {
	Load(ctx context.Context) (Engine, error)
}

// Available reports whether this binary was compiled with the real
// inference runtime.
func Available() bool { return llamaBuilt }

// UnavailableError signals that the inference runtime is not present in
// this build or on this host.
type UnavailableError struct{ msg string }

func (e *UnavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an UnavailableError.
func ErrUnavailable(msg string) error { return &UnavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing runtime.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
