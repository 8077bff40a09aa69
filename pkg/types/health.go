package types

// GPUHealth is the device-memory block embedded in health payloads.
type GPUHealth struct {
	Device            string  `json:"device"`
	MemoryAllocatedGB float64 `json:"memory_allocated_gb"`
	MemoryFreeGB      float64 `json:"memory_free_gb"`
	MemoryTotalGB     float64 `json:"memory_total_gb"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status               string     `json:"status"`
	ModelLoaded          bool       `json:"model_loaded"`
	ModelReady           bool       `json:"model_ready,omitempty"`
	ModelLoadTimeSeconds *float64   `json:"model_load_time_seconds,omitempty"`
	GPU                  *GPUHealth `json:"gpu,omitempty"`
	Warnings             []string   `json:"warnings,omitempty"`
	Message              string     `json:"message,omitempty"`
	Error                string     `json:"error,omitempty"`
}

// ReadyResponse is returned by GET /ready.
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// LivenessResponse is returned by GET /liveness.
type LivenessResponse struct {
	Alive   bool   `json:"alive"`
	Message string `json:"message"`
}

// MetricsResponse is the JSON body of GET /metrics. Prometheus exposition
// lives under /metrics/prometheus; this endpoint mirrors the fields the
// platform's monitors scrape directly.
type MetricsResponse struct {
	ModelLoaded                 bool     `json:"model_loaded"`
	ModelLoadTimeSeconds        *float64 `json:"model_load_time_seconds,omitempty"`
	GPUMemoryAllocatedGB        *float64 `json:"gpu_memory_allocated_gb,omitempty"`
	GPUMemoryFreeGB             *float64 `json:"gpu_memory_free_gb,omitempty"`
	GPUMemoryTotalGB            *float64 `json:"gpu_memory_total_gb,omitempty"`
	GPUMemoryUtilizationPercent *float64 `json:"gpu_memory_utilization_percent,omitempty"`
	HostMemoryUsedPercent       *float64 `json:"host_memory_used_percent,omitempty"`
	Error                       string   `json:"error,omitempty"`
}

// ServiceInfo is returned by GET /.
type ServiceInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}
