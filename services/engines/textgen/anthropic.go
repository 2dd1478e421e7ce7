package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paperdesk/paperdesk/services/engines"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicAdapter implements the Invoker contract for the Anthropic
// messages API.
type AnthropicAdapter struct {
	desc       engines.Descriptor
	config     engines.AdapterConfig
	model      string
	httpClient *http.Client
}

// NewAnthropicAdapter creates an Anthropic generation adapter
func NewAnthropicAdapter(id, model string, config engines.AdapterConfig) *AnthropicAdapter {
	if config.BaseURL == "" {
		config.BaseURL = anthropicDefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &AnthropicAdapter{
		desc: engines.Descriptor{
			ID:         id,
			Priority:   config.Priority,
			Capability: engines.CapabilityGeneration,
			CostWeight: config.CostWeight,
		},
		config: config,
		model:  model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Descriptor returns the engine's static metadata
func (a *AnthropicAdapter) Descriptor() engines.Descriptor {
	return a.desc
}

// Invoke performs one messages-API attempt
func (a *AnthropicAdapter) Invoke(ctx context.Context, inv engines.Invocation) (*engines.RawResult, error) {
	maxTokens := inv.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	msgReq := anthropicMessageRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: inv.Prompt},
		},
	}
	if inv.Temperature > 0 {
		msgReq.Temperature = &inv.Temperature
	}

	reqBody, err := json.Marshal(msgReq)
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/messages", strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "READ_ERROR", "failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var msgResp anthropicMessageResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	var text strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, engines.NewEngineError(a.desc.ID, "EMPTY_RESPONSE", "response contained no text content", httpResp.StatusCode, false, nil)
	}

	return &engines.RawResult{
		Text:       text.String(),
		Confidence: engines.NominalGenerationConfidence,
	}, nil
}

// handleErrorResponse maps an Anthropic error body to an EngineError
func (a *AnthropicAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return engines.NewEngineError(a.desc.ID, "UNKNOWN_ERROR", string(body), statusCode, false, err)
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	return engines.NewEngineError(
		a.desc.ID,
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		errors.New(errResp.Error.Message),
	)
}

// Anthropic wire types

type anthropicMessageRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessageResponse struct {
	ID      string                  `json:"id"`
	Model   string                  `json:"model"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicErrorResponse struct {
	Error anthropicError `json:"error"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
