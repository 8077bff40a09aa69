// Package healthapi serves the container liveness/readiness probes. It
// runs on its own goroutine, fully independent of the worker loop, and
// consults only the gate's non-blocking observers so probes answer even
// while a generation call is in flight.
package healthapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"scoutd/internal/config"
	"scoutd/internal/gpu"
	"scoutd/pkg/types"
)

const (
	serviceName    = "scoutd"
	serviceVersion = "1.0.0"
)

// lowFreeMemoryGB is the threshold below which the health payload carries
// a low-memory warning.
const lowFreeMemoryGB = 1.0

// Observer is the read-only view of the model gate the probe surface
// needs. It must never block on the gate's load lock.
type Observer interface {
	IsLoaded() bool
	LoadDuration() (time.Duration, bool)
}

type Server struct {
	cfg  config.Config
	gate Observer
	log  zerolog.Logger
}

func New(cfg config.Config, gate Observer, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, gate: gate, log: log}
}

// Router builds the probe mux.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	if s.cfg.Server.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Server.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet},
		}))
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/liveness", s.handleLiveness)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/metrics/prometheus", promhttp.Handler().ServeHTTP)
	return r
}

// Serve runs the probe server until ctx is canceled, then drains.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: s.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ServiceInfo{
		Service: serviceName,
		Version: serviceVersion,
		Status:  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.gate.IsLoaded() {
		writeJSON(w, http.StatusServiceUnavailable, types.HealthResponse{
			Status:      "initializing",
			ModelLoaded: false,
			Message:     "Model is still loading",
		})
		return
	}

	resp := types.HealthResponse{
		Status:      "healthy",
		ModelLoaded: true,
		ModelReady:  true,
	}
	if dur, ok := s.gate.LoadDuration(); ok {
		secs := round2(dur.Seconds())
		resp.ModelLoadTimeSeconds = &secs
	}
	snap := gpu.Snapshot(r.Context())
	if snap.Available {
		resp.GPU = &types.GPUHealth{
			Device:            snap.Device,
			MemoryAllocatedGB: round2(snap.AllocatedGB),
			MemoryFreeGB:      round2(snap.FreeGB),
			MemoryTotalGB:     round2(snap.TotalGB),
		}
		if snap.FreeGB < lowFreeMemoryGB {
			s.log.Warn().Float64("free_gb", snap.FreeGB).Msg("GPU memory critically low")
			resp.Warnings = append(resp.Warnings, "GPU memory critically low")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.gate.IsLoaded() {
		writeJSON(w, http.StatusOK, types.ReadyResponse{
			Ready:   true,
			Message: "Service is ready to accept requests",
		})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, types.ReadyResponse{
		Ready:   false,
		Message: "Service is not ready, model still loading",
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.LivenessResponse{
		Alive:   true,
		Message: "Service is alive",
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := types.MetricsResponse{
		ModelLoaded: s.gate.IsLoaded(),
	}
	if dur, ok := s.gate.LoadDuration(); ok {
		secs := round2(dur.Seconds())
		resp.ModelLoadTimeSeconds = &secs
	}
	snap := gpu.Snapshot(r.Context())
	if snap.Available {
		alloc, free, total := round2(snap.AllocatedGB), round2(snap.FreeGB), round2(snap.TotalGB)
		util := round2(snap.UtilizationPercent())
		resp.GPUMemoryAllocatedGB = &alloc
		resp.GPUMemoryFreeGB = &free
		resp.GPUMemoryTotalGB = &total
		resp.GPUMemoryUtilizationPercent = &util
	}
	if pct, ok := gpu.HostMemoryUsedPercent(); ok {
		pct = round2(pct)
		resp.HostMemoryUsedPercent = &pct
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
