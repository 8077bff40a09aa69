// Package loader owns the process-wide model handle. The expensive
// checkpoint load happens at most once per process; concurrent first
// callers collapse onto a single load and everyone else observes state
// without blocking.
package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"scoutd/internal/config"
	"scoutd/internal/diag"
	"scoutd/internal/runtime"
)

var (
	modelLoadedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scoutd",
		Subsystem: "model",
		Name:      "loaded",
		Help:      "1 when the model is resident, 0 otherwise",
	})

	modelLoadSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scoutd",
		Subsystem: "model",
		Name:      "load_seconds",
		Help:      "Wall time of the successful model load",
	})
)

func init() {
	prometheus.MustRegister(modelLoadedGauge, modelLoadSeconds)
}

// load states, stored in an atomic so observers never contend on the
// load lock.
const (
	stateNotLoaded int32 = iota
	stateLoading
	stateLoaded
)

// Gate guards the single model load. The mutex is held only for the
// duration of a load attempt; steady-state inference never touches it.
type Gate struct {
	cfg     config.Config
	factory runtime.Factory
	log     zerolog.Logger

	state    atomic.Int32
	durNanos atomic.Int64

	mu     sync.Mutex
	engine runtime.Engine
}

// New constructs a gate. The factory is invoked at most once for the
// gate's lifetime unless the load fails, which leaves it retriable.
func New(cfg config.Config, factory runtime.Factory, log zerolog.Logger) *Gate {
	return &Gate{cfg: cfg, factory: factory, log: log}
}

// EnsureLoaded loads the model if it is not resident yet. Safe under
// concurrent callers: the first one loads, the rest block on the lock
// and find the post-lock re-check satisfied. On failure the gate returns
// to not-loaded so a later request can retry.
func (g *Gate) EnsureLoaded(ctx context.Context) error {
	if g.state.Load() == stateLoaded {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Load() == stateLoaded {
		g.log.Debug().Msg("model already loaded (post-lock check)")
		return nil
	}

	g.state.Store(stateLoading)
	g.log.Info().Str("model_id", g.cfg.Model.ModelID).Msg("starting model load")
	start := time.Now()

	engine, err := g.factory.Load(ctx)
	if err != nil {
		g.state.Store(stateNotLoaded)
		g.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("model load failed")
		return diag.NewModelLoadError("model loading failed", err)
	}

	dur := time.Since(start)
	g.engine = engine
	g.durNanos.Store(int64(dur))
	g.state.Store(stateLoaded)
	modelLoadedGauge.Set(1)
	modelLoadSeconds.Set(dur.Seconds())
	g.log.Info().Dur("load_time", dur).Msg("model loaded successfully")
	return nil
}

// Handle returns the loaded engine, or a not-ready error before the
// load has completed.
func (g *Gate) Handle() (runtime.Engine, error) {
	// The engine pointer is written before the state flips to loaded,
	// so observing stateLoaded makes the read safe without the lock.
	if g.state.Load() != stateLoaded {
		return nil, diag.NewNotReadyError("model not loaded")
	}
	return g.engine, nil
}

// IsLoaded is a non-blocking observer for the probe surface.
func (g *Gate) IsLoaded() bool {
	return g.state.Load() == stateLoaded
}

// LoadDuration reports how long the successful load took. The boolean is
// false until a load has completed.
func (g *Gate) LoadDuration() (time.Duration, bool) {
	n := g.durNanos.Load()
	if n == 0 {
		return 0, false
	}
	return time.Duration(n), true
}

// Warmup runs a short best-effort generation to force any lazy runtime
// initialization after a successful load. Failures are logged and
// swallowed; warmup never escalates.
func (g *Gate) Warmup(ctx context.Context, prompt string) bool {
	engine, err := g.Handle()
	if err != nil {
		g.log.Warn().Msg("cannot warm up: model not loaded")
		return false
	}
	start := time.Now()
	_, err = engine.Generate(ctx, prompt, runtime.Params{
		MaxNewTokens: 10,
		Temperature:  0.7,
		TopP:         g.cfg.Generation.TopP,
		TopK:         g.cfg.Generation.TopK,
		DoSample:     true,
	}, nil)
	if err != nil {
		g.log.Warn().Err(err).Msg("warmup failed")
		return false
	}
	engine.ReleaseMemory()
	g.log.Info().Dur("warmup_time", time.Since(start)).Msg("model warmup completed")
	return true
}
