//go:build !llama

package runtime

// This file provides a no-CGO stub for the llama runtime. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real engine lives in engine_llama.go (tagged 'llama').

import (
	"context"

	"github.com/rs/zerolog"

	"scoutd/internal/config"
)

var llamaBuilt = false

type stubFactory struct{}

// NewFactory returns a factory that refuses to load without the 'llama'
// build tag. No mocked inference in production binaries.
func NewFactory(cfg config.Config, log zerolog.Logger) Factory {
	return &stubFactory{}
}

func (f *stubFactory) Load(ctx context.Context) (Engine, error) {
	return nil, ErrUnavailable("llama support not built (missing 'llama' build tag)")
}
