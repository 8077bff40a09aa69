package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ModelConfig identifies the checkpoint and how it is loaded.
type ModelConfig struct {
	ModelID            string `json:"model_id" yaml:"model_id" toml:"model_id"`
	HFToken            string `json:"hf_token" yaml:"hf_token" toml:"hf_token"`
	DeviceMap          string `json:"device_map" yaml:"device_map" toml:"device_map"`
	Dtype              string `json:"dtype" yaml:"dtype" toml:"dtype"`
	LoadIn8Bit         bool   `json:"load_in_8bit" yaml:"load_in_8bit" toml:"load_in_8bit"`
	LoadIn4Bit         bool   `json:"load_in_4bit" yaml:"load_in_4bit" toml:"load_in_4bit"`
	UseFlashAttention  bool   `json:"use_flash_attention" yaml:"use_flash_attention" toml:"use_flash_attention"`
	CacheDir           string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	TrustRemoteCode    bool   `json:"trust_remote_code" yaml:"trust_remote_code" toml:"trust_remote_code"`
	ContextThreads     int    `json:"context_threads" yaml:"context_threads" toml:"context_threads"`
}

// GenerationConfig holds the process-wide sampling defaults and the hard
// token ceilings every request is checked against.
type GenerationConfig struct {
	MaxNewTokens      int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`
	Temperature       float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP              float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK              int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	RepetitionPenalty float64 `json:"repetition_penalty" yaml:"repetition_penalty" toml:"repetition_penalty"`

	MaxInputTokens int `json:"max_input_tokens" yaml:"max_input_tokens" toml:"max_input_tokens"`
	MaxTotalTokens int `json:"max_total_tokens" yaml:"max_total_tokens" toml:"max_total_tokens"`

	// Rough character-to-token ratio used for the pre-tokenization
	// character budget check. Varies by tokenizer and language.
	CharsPerTokenEstimate int `json:"chars_per_token_estimate" yaml:"chars_per_token_estimate" toml:"chars_per_token_estimate"`

	// Advisory only; generation is not preempted when it overruns.
	InferenceTimeout time.Duration `json:"-" yaml:"-" toml:"-"`
}

// ServerConfig configures the health/readiness probe server.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host" toml:"host"`
	Port         int    `json:"port" yaml:"port" toml:"port"`
	ModelWarmup  bool   `json:"model_warmup" yaml:"model_warmup" toml:"model_warmup"`
	WarmupPrompt string `json:"warmup_prompt" yaml:"warmup_prompt" toml:"warmup_prompt"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level       string `json:"level" yaml:"level" toml:"level"`
	Format      string `json:"format" yaml:"format" toml:"format"` // json or text
	LogMetrics  bool   `json:"log_metrics" yaml:"log_metrics" toml:"log_metrics"`
	LogRequests bool   `json:"log_requests" yaml:"log_requests" toml:"log_requests"`
}

// PlatformConfig identifies this worker to the job-queue platform.
type PlatformConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key" toml:"api_key"`
	EndpointID string        `json:"endpoint_id" yaml:"endpoint_id" toml:"endpoint_id"`
	PodID      string        `json:"pod_id" yaml:"pod_id" toml:"pod_id"`
	WorkerID   string        `json:"worker_id" yaml:"worker_id" toml:"worker_id"`
	BaseURL    string        `json:"base_url" yaml:"base_url" toml:"base_url"`
	PollWait   time.Duration `json:"-" yaml:"-" toml:"-"`
}

// Config is the immutable process configuration, resolved once at startup
// and threaded explicitly into every component constructor.
type Config struct {
	Model      ModelConfig      `json:"model" yaml:"model" toml:"model"`
	Generation GenerationConfig `json:"generation" yaml:"generation" toml:"generation"`
	Server     ServerConfig     `json:"server" yaml:"server" toml:"server"`
	Log        LogConfig        `json:"log" yaml:"log" toml:"log"`
	Platform   PlatformConfig   `json:"platform" yaml:"platform" toml:"platform"`

	Autoload  bool   `json:"autoload" yaml:"autoload" toml:"autoload"`
	SentryDSN string `json:"sentry_dsn" yaml:"sentry_dsn" toml:"sentry_dsn"`
}

// Default returns the built-in defaults, before file or environment
// overrides are applied.
func Default() Config {
	return Config{
		Model: ModelConfig{
			ModelID:           "meta-llama/Llama-4-Scout-17B-16E-Instruct",
			DeviceMap:         "auto",
			Dtype:             "bfloat16",
			UseFlashAttention: true,
			CacheDir:          defaultCacheDir(),
		},
		Generation: GenerationConfig{
			MaxNewTokens:          512,
			Temperature:           0.7,
			TopP:                  0.9,
			TopK:                  50,
			RepetitionPenalty:     1.1,
			MaxInputTokens:        4096,
			MaxTotalTokens:        8192,
			CharsPerTokenEstimate: 4,
			InferenceTimeout:      120 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ModelWarmup:  true,
			WarmupPrompt: "Hello, how are you?",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			LogMetrics:  true,
			LogRequests: true,
		},
		Platform: PlatformConfig{
			BaseURL:  "https://api.runpod.ai/v2",
			PollWait: 2 * time.Second,
		},
		Autoload: true,
	}
}

func defaultCacheDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.cache/huggingface"
	}
	return "/root/.cache/huggingface"
}

// FromEnv resolves the configuration from the process environment on top
// of the built-in defaults.
func FromEnv() Config {
	return applyEnv(Default())
}

// applyEnv overlays recognized environment variables onto base.
func applyEnv(c Config) Config {
	envStr(&c.Model.ModelID, "MODEL_ID")
	envStr(&c.Model.HFToken, "HF_TOKEN")
	envStr(&c.Model.DeviceMap, "DEVICE_MAP")
	envStr(&c.Model.Dtype, "TORCH_DTYPE")
	envBool(&c.Model.LoadIn8Bit, "LOAD_IN_8BIT")
	envBool(&c.Model.LoadIn4Bit, "LOAD_IN_4BIT")
	envBool(&c.Model.UseFlashAttention, "ENABLE_FLASH_ATTENTION")
	envStr(&c.Model.CacheDir, "HF_HOME")
	envBool(&c.Model.TrustRemoteCode, "TRUST_REMOTE_CODE")
	envInt(&c.Model.ContextThreads, "MODEL_THREADS")

	envInt(&c.Generation.MaxNewTokens, "DEFAULT_MAX_NEW_TOKENS")
	envFloat(&c.Generation.Temperature, "DEFAULT_TEMPERATURE")
	envFloat(&c.Generation.TopP, "DEFAULT_TOP_P")
	envInt(&c.Generation.TopK, "DEFAULT_TOP_K")
	envFloat(&c.Generation.RepetitionPenalty, "DEFAULT_REPETITION_PENALTY")
	envInt(&c.Generation.MaxInputTokens, "MAX_INPUT_TOKENS")
	envInt(&c.Generation.MaxTotalTokens, "MAX_TOTAL_TOKENS")
	envSeconds(&c.Generation.InferenceTimeout, "INFERENCE_TIMEOUT")

	envStr(&c.Server.Host, "HEALTH_CHECK_HOST")
	envInt(&c.Server.Port, "HEALTH_CHECK_PORT")
	envBool(&c.Server.ModelWarmup, "MODEL_WARMUP")

	envStr(&c.Log.Level, "LOG_LEVEL")
	envStr(&c.Log.Format, "LOG_FORMAT")
	envBool(&c.Log.LogMetrics, "LOG_METRICS")
	envBool(&c.Log.LogRequests, "LOG_REQUESTS")

	envStr(&c.Platform.APIKey, "RUNPOD_AI_API_KEY")
	envStr(&c.Platform.EndpointID, "RUNPOD_ENDPOINT_ID")
	envStr(&c.Platform.PodID, "RUNPOD_POD_ID")
	envStr(&c.Platform.WorkerID, "RUNPOD_WORKER_ID")
	envStr(&c.Platform.BaseURL, "RUNPOD_API_BASE_URL")

	envBool(&c.Autoload, "AUTOLOAD_MODEL")
	envStr(&c.SentryDSN, "SENTRY_DSN")
	return c
}

func envStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envSeconds(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = time.Duration(n) * time.Second
		}
	}
}

// Validate checks the resolved configuration and returns every problem
// found, not just the first; the orchestrator fails fast on a non-empty
// result before accepting any traffic.
func (c Config) Validate() []error {
	var errs []error
	if c.Model.HFToken == "" {
		errs = append(errs, fmt.Errorf("HF_TOKEN environment variable is required for model access"))
	}
	if c.Model.LoadIn8Bit && c.Model.LoadIn4Bit {
		errs = append(errs, fmt.Errorf("cannot use both 8-bit and 4-bit quantization simultaneously"))
	}
	if c.Generation.Temperature < 0.0 || c.Generation.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("temperature must be between 0.0 and 2.0, got %g", c.Generation.Temperature))
	}
	if c.Generation.TopP < 0.0 || c.Generation.TopP > 1.0 {
		errs = append(errs, fmt.Errorf("top_p must be between 0.0 and 1.0, got %g", c.Generation.TopP))
	}
	if c.Generation.TopK < 0 {
		errs = append(errs, fmt.Errorf("top_k must be non-negative, got %d", c.Generation.TopK))
	}
	if c.Generation.MaxNewTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_new_tokens must be positive, got %d", c.Generation.MaxNewTokens))
	}
	if c.Generation.MaxInputTokens <= 0 || c.Generation.MaxTotalTokens <= 0 {
		errs = append(errs, fmt.Errorf("token ceilings must be positive, got input=%d total=%d",
			c.Generation.MaxInputTokens, c.Generation.MaxTotalTokens))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("health server port out of range: %d", c.Server.Port))
	}
	return errs
}

// Summary returns a loggable view of the configuration without secrets.
func (c Config) Summary() map[string]any {
	return map[string]any{
		"model_id":            c.Model.ModelID,
		"device_map":          c.Model.DeviceMap,
		"dtype":               c.Model.Dtype,
		"use_flash_attention": c.Model.UseFlashAttention,
		"load_in_8bit":        c.Model.LoadIn8Bit,
		"load_in_4bit":        c.Model.LoadIn4Bit,
		"max_new_tokens":      c.Generation.MaxNewTokens,
		"temperature":         c.Generation.Temperature,
		"max_input_tokens":    c.Generation.MaxInputTokens,
		"max_total_tokens":    c.Generation.MaxTotalTokens,
		"log_level":           c.Log.Level,
		"hf_token_configured": c.Model.HFToken != "",
		"endpoint_id":         c.Platform.EndpointID,
		"autoload":            c.Autoload,
	}
}
