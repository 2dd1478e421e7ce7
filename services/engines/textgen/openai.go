// Package textgen provides generation engine adapters. Each adapter
// normalizes one backend's native request/response shape into the uniform
// Invoker contract; the backends themselves stay external.
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

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter implements the Invoker contract for an OpenAI-compatible
// chat-completions backend.
type OpenAIAdapter struct {
	desc       engines.Descriptor
	config     engines.AdapterConfig
	model      string
	httpClient *http.Client
}

// NewOpenAIAdapter creates an OpenAI generation adapter
func NewOpenAIAdapter(id, model string, config engines.AdapterConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = openAIDefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OpenAIAdapter{
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
func (a *OpenAIAdapter) Descriptor() engines.Descriptor {
	return a.desc
}

// Invoke performs one chat-completion attempt
func (a *OpenAIAdapter) Invoke(ctx context.Context, inv engines.Invocation) (*engines.RawResult, error) {
	reqBody, err := json.Marshal(a.buildRequest(inv))
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
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

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, engines.NewEngineError(a.desc.ID, "EMPTY_RESPONSE", "response contained no choices", httpResp.StatusCode, false, nil)
	}

	return &engines.RawResult{
		Text:       chatResp.Choices[0].Message.Content,
		Confidence: engines.NominalGenerationConfidence,
	}, nil
}

// buildRequest converts the normalized invocation to the OpenAI wire format
func (a *OpenAIAdapter) buildRequest(inv engines.Invocation) *openAIChatRequest {
	req := &openAIChatRequest{
		Model: a.model,
		Messages: []openAIMessage{
			{Role: "user", Content: inv.Prompt},
		},
	}
	if inv.MaxOutputTokens > 0 {
		req.MaxTokens = &inv.MaxOutputTokens
	}
	if inv.Temperature > 0 {
		req.Temperature = &inv.Temperature
	}
	return req
}

// handleErrorResponse maps an OpenAI error body to an EngineError
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp openAIErrorResponse
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

// OpenAI wire types

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIErrorResponse struct {
	Error openAIError `json:"error"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
