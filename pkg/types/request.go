package types

import "encoding/json"

// Event is the raw payload delivered by the job-queue platform for one job.
// Everything the worker needs lives under the "input" key.
type Event struct {
	Input json.RawMessage `json:"input"`
}

// GenerationRequest is the validated shape of an inference request.
// Optional fields are pointers so that "absent" and "zero" stay distinct;
// absent fields are filled from the configured defaults before generation.
type GenerationRequest struct {
	// Input text prompt to generate a completion for.
	Prompt string `json:"prompt" validate:"required"`
	// Maximum number of new tokens to generate.
	MaxNewTokens *int `json:"max_new_tokens,omitempty" validate:"omitempty,gte=1,lte=8192"`
	// Sampling temperature, (0.0, 2.0].
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gt=0,lte=2"`
	// Nucleus sampling probability, [0.0, 1.0].
	TopP *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	// Top-k sampling cutoff, non-negative.
	TopK *int `json:"top_k,omitempty" validate:"omitempty,gte=0"`
	// Repetition penalty factor, [1.0, 2.0].
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty" validate:"omitempty,gte=1,lte=2"`
	// Whether to sample; defaults to true when omitted.
	DoSample *bool `json:"do_sample,omitempty"`
}

// GenerationParams is a GenerationRequest with every optional slot
// resolved against the process defaults. Fully populated before the
// delegate generation call is invoked, and re-validated after the merge.
type GenerationParams struct {
	Prompt            string
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	DoSample          bool
}
