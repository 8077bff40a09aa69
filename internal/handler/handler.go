// Package handler turns one platform event into a validated, bounded
// generation call and a response envelope. The pipeline is stateless and
// one-shot: no request state survives past a single call, and nothing
// propagates to the worker loop uncaught.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"scoutd/internal/config"
	"scoutd/internal/diag"
	"scoutd/internal/loader"
	"scoutd/internal/runtime"
	"scoutd/pkg/types"
)

var validate = validator.New()

// Handler is the worker-loop entry point. One instance serves the whole
// process; each call is independent.
type Handler struct {
	cfg  config.Config
	gate *loader.Gate
	log  zerolog.Logger
}

func New(cfg config.Config, gate *loader.Gate, log zerolog.Logger) *Handler {
	return &Handler{cfg: cfg, gate: gate, log: log}
}

// Handle processes a single job event and always returns an envelope;
// a bad request can never crash the process.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (env types.Envelope) {
	requestID := diag.NewRequestID()
	start := time.Now()
	log := h.log.With().Str("request_id", requestID).Logger()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panic: %v", r)
			log.Error().Interface("panic", r).Msg("unexpected panic in handler")
			sentry.CaptureException(err)
			requestsTotal.WithLabelValues("UnexpectedError").Inc()
			env = diag.ErrorEnvelope(err, requestID, true)
		}
	}()

	log.Info().Msg("handler invoked")
	if h.cfg.Log.LogRequests {
		log.Debug().RawJSON("event", compactOrRaw(event)).Msg("request payload")
	}

	text, metrics, err := h.process(ctx, event, log)
	if err != nil {
		kind := diag.ErrorKind(err)
		requestsTotal.WithLabelValues(kind).Inc()
		switch {
		case diag.IsValidationError(err):
			log.Warn().Err(err).Msg("validation error")
		case diag.Categorized(err):
			log.Error().Err(err).Str("kind", kind).Msg("request failed")
		default:
			log.Error().Err(err).Msg("unexpected error")
			sentry.CaptureException(err)
			return diag.ErrorEnvelope(err, requestID, true)
		}
		return diag.ErrorEnvelope(err, requestID, false)
	}

	metrics.RequestTimeMs = time.Since(start).Milliseconds()
	if h.cfg.Log.LogMetrics {
		diag.LogMetrics(log, metrics, requestID)
	}
	requestsTotal.WithLabelValues("success").Inc()
	log.Info().Dur("elapsed", time.Since(start)).Msg("request completed successfully")
	return diag.SuccessEnvelope(text, metrics, requestID)
}

// process runs the pipeline proper: extract, validate, merge, ensure the
// model, generate.
func (h *Handler) process(ctx context.Context, event json.RawMessage, log zerolog.Logger) (string, types.GenerationMetrics, error) {
	var m types.GenerationMetrics

	req, err := h.parseEvent(event)
	if err != nil {
		return "", m, err
	}

	params, err := h.mergeDefaults(req)
	if err != nil {
		return "", m, err
	}

	// Just-in-time load for a cold pipeline. Not the steady-state path,
	// but a request must never fail just because autoload was off.
	if err := h.gate.EnsureLoaded(ctx); err != nil {
		return "", m, diag.WrapInferenceError("model unavailable", err)
	}
	engine, err := h.gate.Handle()
	if err != nil {
		return "", m, err
	}

	text, m, err := h.generate(ctx, engine, params, log)
	// Drop cached device memory after every request, success or failure,
	// to bound peak usage across sequential jobs.
	engine.ReleaseMemory()
	return text, m, err
}

// parseEvent extracts and validates the request payload from the event.
func (h *Handler) parseEvent(event json.RawMessage) (types.GenerationRequest, error) {
	var req types.GenerationRequest

	var ev types.Event
	if err := json.Unmarshal(event, &ev); err != nil {
		return req, diag.ValidationErrorf("malformed event: %v", err)
	}
	if len(ev.Input) == 0 || bytes.Equal(ev.Input, []byte("null")) {
		return req, diag.ValidationErrorf("missing 'input' field in request")
	}

	dec := json.NewDecoder(bytes.NewReader(ev.Input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, diag.ValidationErrorf("input validation failed: %v", err)
	}
	if err := validate.Struct(req); err != nil {
		return req, diag.ValidationErrorf("input validation failed: %v", err)
	}

	maxChars := h.cfg.Generation.MaxInputTokens * h.cfg.Generation.CharsPerTokenEstimate
	prompt, err := diag.SanitizeInput(strings.TrimSpace(req.Prompt), maxChars)
	if err != nil {
		return req, err
	}
	req.Prompt = prompt
	return req, nil
}

// mergeDefaults resolves optional request fields against the configured
// defaults, then re-validates the merged set. A default combined with a
// partial override can still be jointly inconsistent.
func (h *Handler) mergeDefaults(req types.GenerationRequest) (types.GenerationParams, error) {
	d := h.cfg.Generation
	p := types.GenerationParams{
		Prompt:            req.Prompt,
		MaxNewTokens:      d.MaxNewTokens,
		Temperature:       d.Temperature,
		TopP:              d.TopP,
		TopK:              d.TopK,
		RepetitionPenalty: d.RepetitionPenalty,
		DoSample:          true,
	}
	if req.MaxNewTokens != nil {
		p.MaxNewTokens = *req.MaxNewTokens
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		p.TopP = *req.TopP
	}
	if req.TopK != nil {
		p.TopK = *req.TopK
	}
	if req.RepetitionPenalty != nil {
		p.RepetitionPenalty = *req.RepetitionPenalty
	}
	if req.DoSample != nil {
		p.DoSample = *req.DoSample
	}
	return p, validateParams(p)
}

// validateParams enforces the per-field bounds on a fully merged set.
func validateParams(p types.GenerationParams) error {
	if p.Temperature <= 0.0 || p.Temperature > 2.0 {
		return diag.ValidationErrorf("temperature must be greater than 0.0 and at most 2.0, got %g", p.Temperature)
	}
	if p.TopP < 0.0 || p.TopP > 1.0 {
		return diag.ValidationErrorf("top_p must be between 0.0 and 1.0, got %g", p.TopP)
	}
	if p.TopK < 0 {
		return diag.ValidationErrorf("top_k must be non-negative, got %d", p.TopK)
	}
	if p.MaxNewTokens <= 0 || p.MaxNewTokens > 8192 {
		return diag.ValidationErrorf("max_new_tokens must be between 1 and 8192, got %d", p.MaxNewTokens)
	}
	if p.RepetitionPenalty < 1.0 || p.RepetitionPenalty > 2.0 {
		return diag.ValidationErrorf("repetition_penalty must be between 1.0 and 2.0, got %g", p.RepetitionPenalty)
	}
	return nil
}

// generate runs the timed tokenize/generate/decode sequence against the
// delegate engine and assembles the metrics record.
func (h *Handler) generate(ctx context.Context, engine runtime.Engine, p types.GenerationParams, log zerolog.Logger) (string, types.GenerationMetrics, error) {
	var m types.GenerationMetrics
	gen := h.cfg.Generation
	start := time.Now()

	tokStart := time.Now()
	tok, err := engine.Tokenize(p.Prompt, gen.MaxInputTokens)
	if err != nil {
		return "", m, h.classifyEngineError(engine, err)
	}
	tokTime := time.Since(tokStart)
	tokenizationSeconds.Observe(tokTime.Seconds())
	if tok.Truncated {
		log.Warn().Int("input_tokens", tok.Tokens).Msg("prompt truncated to input token ceiling")
	}
	log.Info().Int("input_tokens", tok.Tokens).Msg("input tokenized")

	// Hard pre-flight: never start a generation that cannot fit.
	if tok.Tokens+p.MaxNewTokens > gen.MaxTotalTokens {
		return "", m, diag.InferenceErrorf("total tokens (%d + %d) exceeds limit of %d",
			tok.Tokens, p.MaxNewTokens, gen.MaxTotalTokens)
	}

	genStart := time.Now()
	res, err := engine.Generate(ctx, tok.Text, runtime.Params{
		MaxNewTokens:      p.MaxNewTokens,
		Temperature:       p.Temperature,
		TopP:              p.TopP,
		TopK:              p.TopK,
		RepetitionPenalty: p.RepetitionPenalty,
		DoSample:          p.DoSample,
	}, nil)
	genTime := time.Since(genStart)
	if err != nil {
		return "", m, h.classifyEngineError(engine, err)
	}
	generationSeconds.Observe(genTime.Seconds())

	if timeout := gen.InferenceTimeout; timeout > 0 && genTime > timeout {
		// The timeout is advisory; generation runs to completion.
		log.Warn().Dur("generation_time", genTime).Dur("timeout", timeout).
			Msg("generation exceeded configured inference timeout")
	}

	decStart := time.Now()
	text := strings.TrimLeft(res.Text, " ")
	decTime := time.Since(decStart)

	m.TokensGenerated = res.GeneratedTokens
	m.InputTokens = tok.Tokens
	m.TotalTokens = tok.Tokens + res.GeneratedTokens
	m.GenerationTimeMs = genTime.Milliseconds()
	m.TotalTimeMs = time.Since(start).Milliseconds()
	m.TokenizationTimeMs = tokTime.Milliseconds()
	m.DecodingTimeMs = decTime.Milliseconds()
	if secs := genTime.Seconds(); secs > 0 {
		m.TokensPerSecond = round2(float64(res.GeneratedTokens) / secs)
	}
	tokensGeneratedTotal.Add(float64(res.GeneratedTokens))

	log.Info().
		Int("tokens_generated", res.GeneratedTokens).
		Float64("tokens_per_second", m.TokensPerSecond).
		Dur("generation_time", genTime).
		Msg("generation complete")
	return text, m, nil
}

// classifyEngineError maps a delegate failure onto the error taxonomy
// and releases cached device memory before reporting.
func (h *Handler) classifyEngineError(engine runtime.Engine, err error) error {
	engine.ReleaseMemory()
	if isDeviceOOM(err) {
		return diag.NewDeviceMemoryError("GPU out of memory. Try reducing max_new_tokens or input length.")
	}
	return diag.WrapInferenceError("text generation failed", err)
}

func isDeviceOOM(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "out of memory") ||
		strings.Contains(s, "oom") ||
		strings.Contains(s, "cuda error")
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func compactOrRaw(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return json.RawMessage(`"<invalid json>"`)
	}
	return buf.Bytes()
}
