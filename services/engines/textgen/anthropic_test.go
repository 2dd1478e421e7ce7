package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnthropicAdapter(t *testing.T) {
	adapter := NewAnthropicAdapter("anthropic", "claude-3-5-haiku-latest", engines.AdapterConfig{
		APIKey:   "test-key",
		Priority: 2,
	})

	desc := adapter.Descriptor()
	assert.Equal(t, "anthropic", desc.ID)
	assert.Equal(t, 2, desc.Priority)
	assert.Equal(t, engines.CapabilityGeneration, desc.Capability)
	assert.Equal(t, anthropicDefaultBaseURL, adapter.config.BaseURL)
}

func TestAnthropicAdapter_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
		// Zero MaxOutputTokens falls back to a sane default
		assert.Equal(t, 1024, req.MaxTokens)

		resp := anthropicMessageResponse{
			ID:    "msg_test",
			Model: req.Model,
			Content: []anthropicContentBlock{
				{Type: "text", Text: "First part. "},
				{Type: "tool_use", Text: "ignored"},
				{Type: "text", Text: "Second part."},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("anthropic", "claude-3-5-haiku-latest", engines.AdapterConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	raw, err := adapter.Invoke(context.Background(), engines.Invocation{Prompt: "Hello"})
	require.NoError(t, err)

	// Text blocks concatenate in order; non-text blocks are skipped
	assert.Equal(t, "First part. Second part.", raw.Text)
	assert.Equal(t, engines.NominalGenerationConfidence, raw.Confidence)
}

func TestAnthropicAdapter_Invoke_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(anthropicErrorResponse{
			Error: anthropicError{Type: "overloaded_error", Message: "Overloaded"},
		})
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("anthropic", "claude-3-5-haiku-latest", engines.AdapterConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	_, err := adapter.Invoke(context.Background(), engines.Invocation{Prompt: "Hello"})
	require.Error(t, err)

	var engErr *engines.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "overloaded_error", engErr.Code)
	assert.True(t, engErr.Retryable)
}

func TestAnthropicAdapter_Invoke_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(anthropicMessageResponse{ID: "msg_test"})
	}))
	defer server.Close()

	adapter := NewAnthropicAdapter("anthropic", "claude-3-5-haiku-latest", engines.AdapterConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	_, err := adapter.Invoke(context.Background(), engines.Invocation{Prompt: "Hello"})
	require.Error(t, err)

	var engErr *engines.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "EMPTY_RESPONSE", engErr.Code)
}
