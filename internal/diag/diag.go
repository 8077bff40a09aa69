// Package diag provides the request-scoped plumbing shared by the
// inference pipeline and the probe surface: request ids, input
// sanitization, response envelope construction, and metrics logging.
package diag

import (
	"encoding/hex"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"scoutd/pkg/types"
)

// NewRequestID returns a unique id of the form req_<16 hex chars>.
func NewRequestID() string {
	u := uuid.New()
	return "req_" + hex.EncodeToString(u[:])[:16]
}

// SanitizeInput trims nothing but rejects empty text, enforces the
// character budget, and strips embedded null bytes. Text that becomes
// empty (or whitespace-only) after stripping is rejected too.
func SanitizeInput(text string, maxLength int) (string, error) {
	if len(text) == 0 {
		return "", ValidationErrorf("input text cannot be empty")
	}
	if maxLength > 0 && len(text) > maxLength {
		return "", ValidationErrorf("input text exceeds maximum length of %d characters", maxLength)
	}
	text = strings.ReplaceAll(text, "\x00", "")
	if len(text) == 0 || strings.TrimSpace(text) == "" {
		return "", ValidationErrorf("input text cannot be empty after sanitization")
	}
	return text, nil
}

// SuccessEnvelope builds the success response for one completed request.
func SuccessEnvelope(generatedText string, metrics types.GenerationMetrics, requestID string) types.Envelope {
	return types.Envelope{
		Output: &types.Output{
			GeneratedText:     generatedText,
			GenerationMetrics: metrics,
		},
		RequestID: requestID,
	}
}

// ErrorEnvelope builds the error response for err. A traceback is
// attached only when requested, which callers reserve for uncategorized
// errors so expected failure modes never leak internals.
func ErrorEnvelope(err error, requestID string, includeTraceback bool) types.Envelope {
	info := &types.ErrorInfo{
		Type:      ErrorKind(err),
		Message:   err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if includeTraceback {
		info.Traceback = string(debug.Stack())
	}
	return types.Envelope{
		Error:     info,
		RequestID: requestID,
	}
}

// LogMetrics emits the per-request performance record through the
// structured logger.
func LogMetrics(log zerolog.Logger, m types.GenerationMetrics, requestID string) {
	log.Info().
		Str("request_id", requestID).
		Int("tokens_generated", m.TokensGenerated).
		Int("input_tokens", m.InputTokens).
		Int("total_tokens", m.TotalTokens).
		Int64("generation_time_ms", m.GenerationTimeMs).
		Int64("tokenization_time_ms", m.TokenizationTimeMs).
		Int64("decoding_time_ms", m.DecodingTimeMs).
		Int64("request_time_ms", m.RequestTimeMs).
		Float64("tokens_per_second", m.TokensPerSecond).
		Msg("performance metrics")
}
