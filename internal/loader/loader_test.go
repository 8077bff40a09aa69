package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"scoutd/internal/config"
	"scoutd/internal/diag"
	"scoutd/internal/runtime"
)

type fakeEngine struct {
	genErr   error
	genCalls atomic.Int32
	released atomic.Int32
}

func (e *fakeEngine) Tokenize(text string, maxTokens int) (runtime.Tokenized, error) {
	return runtime.Tokenized{Text: text, Tokens: 1}, nil
}

func (e *fakeEngine) Generate(ctx context.Context, prompt string, p runtime.Params, onToken func(string) error) (runtime.Result, error) {
	e.genCalls.Add(1)
	if e.genErr != nil {
		return runtime.Result{}, e.genErr
	}
	return runtime.Result{Text: "ok", GeneratedTokens: 1, FinishReason: "length"}, nil
}

func (e *fakeEngine) ReleaseMemory() { e.released.Add(1) }
func (e *fakeEngine) Close() error   { return nil }

type fakeFactory struct {
	engine   runtime.Engine
	errs     []error // consumed per call; nil entries succeed
	loads    atomic.Int32
	loadTime time.Duration
}

func (f *fakeFactory) Load(ctx context.Context) (runtime.Engine, error) {
	n := int(f.loads.Add(1))
	if f.loadTime > 0 {
		time.Sleep(f.loadTime)
	}
	if n-1 < len(f.errs) && f.errs[n-1] != nil {
		return nil, f.errs[n-1]
	}
	return f.engine, nil
}

func newGate(f runtime.Factory) *Gate {
	return New(config.Default(), f, zerolog.Nop())
}

func TestEnsureLoadedLoadsOnce(t *testing.T) {
	f := &fakeFactory{engine: &fakeEngine{}, loadTime: 20 * time.Millisecond}
	g := newGate(f)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.EnsureLoaded(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := f.loads.Load(); got != 1 {
		t.Fatalf("factory invoked %d times, want 1", got)
	}
	if !g.IsLoaded() {
		t.Fatalf("gate should report loaded")
	}
	if dur, ok := g.LoadDuration(); !ok || dur <= 0 {
		t.Fatalf("load duration: %v ok=%v", dur, ok)
	}
}

func TestEnsureLoadedRetriesAfterFailure(t *testing.T) {
	f := &fakeFactory{
		engine: &fakeEngine{},
		errs:   []error{errors.New("checkpoint fetch failed")},
	}
	g := newGate(f)

	err := g.EnsureLoaded(context.Background())
	if !diag.IsModelLoadError(err) {
		t.Fatalf("first attempt: got %v", err)
	}
	if g.IsLoaded() {
		t.Fatalf("failed load must leave the gate not loaded")
	}
	if _, ok := g.LoadDuration(); ok {
		t.Fatalf("no duration before a successful load")
	}

	if err := g.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if !g.IsLoaded() {
		t.Fatalf("gate should be loaded after retry")
	}
	if got := f.loads.Load(); got != 2 {
		t.Fatalf("factory invoked %d times, want 2", got)
	}
}

func TestHandleBeforeLoad(t *testing.T) {
	g := newGate(&fakeFactory{engine: &fakeEngine{}})
	if _, err := g.Handle(); !diag.IsNotReadyError(err) {
		t.Fatalf("expected not-ready error, got %v", err)
	}
}

func TestHandleAfterLoad(t *testing.T) {
	e := &fakeEngine{}
	g := newGate(&fakeFactory{engine: e})
	if err := g.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	engine, err := g.Handle()
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if engine != runtime.Engine(e) {
		t.Fatalf("handle returned a different engine")
	}
}

func TestWarmup(t *testing.T) {
	e := &fakeEngine{}
	g := newGate(&fakeFactory{engine: e})

	if g.Warmup(context.Background(), "hello") {
		t.Fatalf("warmup before load should report false")
	}

	if err := g.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !g.Warmup(context.Background(), "hello") {
		t.Fatalf("warmup after load should succeed")
	}
	if e.genCalls.Load() != 1 {
		t.Fatalf("warmup should generate once, got %d", e.genCalls.Load())
	}
	if e.released.Load() != 1 {
		t.Fatalf("warmup should release cached memory")
	}
}

func TestWarmupSwallowsFailure(t *testing.T) {
	e := &fakeEngine{genErr: errors.New("cuda error")}
	g := newGate(&fakeFactory{engine: e})
	if err := g.EnsureLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if g.Warmup(context.Background(), "hello") {
		t.Fatalf("failed warmup should report false")
	}
	if g.IsLoaded() != true {
		t.Fatalf("warmup failure must not unload the model")
	}
}
