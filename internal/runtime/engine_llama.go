//go:build llama

package runtime

// cgo link directives for the in-process llama adapter: rpath of $ORIGIN
// so the loader finds libllama.so next to the built binary, and a link
// path into ./bin for the build itself.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"

	"scoutd/internal/config"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

type llamaFactory struct {
	cfg config.Config
	log zerolog.Logger
}

// NewFactory returns the llama.cpp-backed engine factory.
func NewFactory(cfg config.Config, log zerolog.Logger) Factory {
	return &llamaFactory{cfg: cfg, log: log}
}

func (f *llamaFactory) Load(ctx context.Context) (Engine, error) {
	path, err := ResolveModelPath(ctx, f.cfg.Model, f.log)
	if err != nil {
		return nil, err
	}
	opts := []llama.ModelOption{
		llama.SetContext(f.cfg.Generation.MaxTotalTokens),
	}
	m, err := llama.New(path, opts...)
	if err != nil {
		return nil, err
	}
	return &llamaEngine{
		model:   m,
		threads: f.cfg.Model.ContextThreads,
	}, nil
}

type llamaEngine struct {
	model   *llama.LLama
	threads int
}

func (e *llamaEngine) Tokenize(text string, maxTokens int) (Tokenized, error) {
	if e.model == nil {
		return Tokenized{}, errors.New("llama model not initialized")
	}
	count, _, err := e.model.TokenizeString(text)
	if err != nil {
		return Tokenized{}, err
	}
	n := int(count)
	if maxTokens <= 0 || n <= maxTokens {
		return Tokenized{Text: text, Tokens: n}, nil
	}
	// Truncate proportionally by characters, then recount once. The
	// binding exposes no detokenizer, so an exact token-boundary cut is
	// not available; the proportional cut stays within the budget after
	// one correction pass in practice.
	cut := len(text) * maxTokens / n
	truncated := text[:cut]
	count, _, err = e.model.TokenizeString(truncated)
	if err != nil {
		return Tokenized{}, err
	}
	return Tokenized{Text: truncated, Tokens: int(count), Truncated: true}, nil
}

func (e *llamaEngine) Generate(ctx context.Context, prompt string, p Params, onToken func(string) error) (Result, error) {
	if e.model == nil {
		return Result{}, errors.New("llama model not initialized")
	}
	generated := 0
	var b strings.Builder
	e.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		generated++
		b.WriteString(tok)
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return false
			}
		}
		return true
	})
	po := e.predictOptions(p)
	text, err := e.model.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	if text == "" {
		text = b.String()
	}
	return Result{Text: text, GeneratedTokens: generated, FinishReason: "stop"}, nil
}

func (e *llamaEngine) predictOptions(p Params) []llama.PredictOption {
	temperature := p.Temperature
	topP := p.TopP
	topK := p.TopK
	if !p.DoSample {
		// Greedy decoding: collapse the sampling distribution.
		temperature = 0
		topP = 1
		topK = 1
	}
	po := []llama.PredictOption{
		llama.SetTokens(maxi(1, p.MaxNewTokens)),
		llama.SetThreads(maxi(1, e.threads)),
		llama.SetTemperature(float32(temperature)),
		llama.SetTopP(float32(topP)),
		llama.SetTopK(topK),
		llama.SetPenalty(float32(p.RepetitionPenalty)),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(p.Seed))
	}
	return po
}

func (e *llamaEngine) ReleaseMemory() {
	// llama.cpp owns its KV cache for the lifetime of the context;
	// nothing to drop between requests beyond what Predict resets.
}

func (e *llamaEngine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}
