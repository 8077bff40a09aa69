package types

// GenerationMetrics is the per-request performance record attached to
// every successful generation.
type GenerationMetrics struct {
	// Number of newly generated tokens.
	TokensGenerated int `json:"tokens_generated"`
	// Number of prompt tokens after truncation.
	InputTokens int `json:"input_tokens"`
	// InputTokens + TokensGenerated.
	TotalTokens int `json:"total_tokens"`
	// Wall time of the generation call.
	GenerationTimeMs int64 `json:"generation_time_ms"`
	// Wall time of tokenize + generate + decode.
	TotalTimeMs int64 `json:"total_time_ms"`
	// Wall time of prompt tokenization.
	TokenizationTimeMs int64 `json:"tokenization_time_ms"`
	// Wall time of decoding the generated span.
	DecodingTimeMs int64 `json:"decoding_time_ms"`
	// TokensGenerated / generation seconds; zero when generation time is zero.
	TokensPerSecond float64 `json:"tokens_per_second"`
	// Wall time of the whole handler call, entry to envelope.
	RequestTimeMs int64 `json:"request_time_ms"`
}

// Output is the success payload of an envelope.
type Output struct {
	GeneratedText string `json:"generated_text"`
	GenerationMetrics
}

// ErrorInfo is the error payload of an envelope.
type ErrorInfo struct {
	// Error kind, e.g. ValidationError, InferenceError.
	Type string `json:"type"`
	// Human-readable message.
	Message string `json:"message"`
	// RFC 3339 UTC timestamp of envelope construction.
	Timestamp string `json:"timestamp"`
	// Stack trace; only present for uncategorized errors.
	Traceback string `json:"traceback,omitempty"`
}

// Envelope is the tagged success/error response returned to the platform
// for every job. Exactly one of Output and Error is set; RequestID is
// always set once a request id has been generated.
type Envelope struct {
	Output    *Output    `json:"output,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}
