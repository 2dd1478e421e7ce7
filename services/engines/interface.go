package engines

import (
	"context"
	"time"
)

// Capability describes what kind of work an engine can service.
type Capability string

const (
	// CapabilityGeneration marks a text-generation engine
	CapabilityGeneration Capability = "generation"

	// CapabilityExtractionFree marks a free, lower-accuracy text-extraction engine
	CapabilityExtractionFree Capability = "extraction-free"

	// CapabilityExtractionPremium marks a metered, higher-accuracy text-extraction engine
	CapabilityExtractionPremium Capability = "extraction-premium"
)

// NominalGenerationConfidence is reported by generation engines, which have no
// measured confidence of their own.
const NominalGenerationConfidence = 90.0

// Descriptor holds the static metadata for one configured engine.
// Built once at startup from available credentials; immutable afterwards.
type Descriptor struct {
	// ID is the stable identity of the engine (e.g., "openai", "cloud-vision")
	ID string `json:"id"`

	// Priority orders engines within a capability; lower is tried first
	Priority int `json:"priority"`

	// Capability tags the kind of work this engine services
	Capability Capability `json:"capability"`

	// CostWeight is the cost per normalized unit of work (token or page).
	// Zero marks a free-tier engine.
	CostWeight float64 `json:"cost_weight"`
}

// Invoker is the uniform call contract every engine adapter implements.
// One implementation per backend, selected at construction time.
type Invoker interface {
	// Descriptor returns the engine's static metadata
	Descriptor() Descriptor

	// Invoke runs one attempt against the backend and returns the normalized
	// raw result. Backend-specific request/response shapes never leak past
	// the adapter.
	Invoke(ctx context.Context, inv Invocation) (*RawResult, error)
}

// Invocation is the normalized per-attempt request handed to an adapter.
// Generation attempts populate Prompt/MaxOutputTokens/Temperature;
// extraction attempts populate Payload/Language.
type Invocation struct {
	// Prompt is the generation input text
	Prompt string

	// MaxOutputTokens caps the response size
	MaxOutputTokens int

	// Temperature is passed through verbatim (0..1)
	Temperature float64

	// Payload is the opaque image or page bitmap to extract text from
	Payload []byte

	// Language is a locale hint, passed through
	Language string
}

// RawResult is what an adapter returns on success: text plus the backend's
// confidence on the shared 0-100 scale.
type RawResult struct {
	Text       string
	Confidence float64
}

// Result is the normalized outcome of a successful router call.
type Result struct {
	// Text is the generated or extracted text
	Text string `json:"text"`

	// EngineUsed is the id of the engine that produced the result
	EngineUsed string `json:"engine_used"`

	// Confidence on a 0-100 scale. Generation engines report a fixed
	// nominal value; extraction engines report a measured one.
	Confidence float64 `json:"confidence"`

	// LatencySeconds is the wall-clock duration of the successful attempt
	LatencySeconds float64 `json:"latency_seconds"`

	// EstimatedCost is an approximate monetary cost for billing collaborators
	EstimatedCost float64 `json:"estimated_cost"`

	// FreeTier is true when no metered cost was incurred
	FreeTier bool `json:"free_tier"`
}

// EngineError represents a failed attempt against one engine.
type EngineError struct {
	// Engine that produced the error
	Engine string

	// Code is a short machine-readable error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the upstream HTTP status, when applicable
	StatusCode int

	// Retryable indicates a transient condition
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewEngineError creates a new engine error
func NewEngineError(engine, code, message string, statusCode int, retryable bool, cause error) *EngineError {
	return &EngineError{
		Engine:     engine,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether an error is a retryable engine error
func IsRetryable(err error) bool {
	if engErr, ok := err.(*EngineError); ok {
		return engErr.Retryable
	}
	return false
}

// AdapterConfig holds common configuration shared by HTTP engine adapters.
type AdapterConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL of the backend API
	BaseURL string

	// Timeout for a single attempt
	Timeout time.Duration

	// Headers adds extra HTTP headers
	Headers map[string]string

	// Priority of the engine within its capability
	Priority int

	// CostWeight is the cost per normalized unit of work
	CostWeight float64
}
