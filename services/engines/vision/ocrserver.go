// Package vision provides extraction engine adapters: a free local OCR
// sidecar and a metered cloud vision backend.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/paperdesk/paperdesk/services/engines"
)

// OCRServerAdapter implements the Invoker contract for a self-hosted OCR
// sidecar (free tier). The sidecar accepts a raw image body and returns
// text with a measured confidence.
type OCRServerAdapter struct {
	desc       engines.Descriptor
	config     engines.AdapterConfig
	httpClient *http.Client
}

// NewOCRServerAdapter creates a free OCR adapter
func NewOCRServerAdapter(id string, config engines.AdapterConfig) *OCRServerAdapter {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &OCRServerAdapter{
		desc: engines.Descriptor{
			ID:         id,
			Priority:   config.Priority,
			Capability: engines.CapabilityExtractionFree,
			CostWeight: 0,
		},
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Descriptor returns the engine's static metadata
func (a *OCRServerAdapter) Descriptor() engines.Descriptor {
	return a.desc
}

// Invoke performs one OCR attempt against the sidecar
func (a *OCRServerAdapter) Invoke(ctx context.Context, inv engines.Invocation) (*engines.RawResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/ocr", bytes.NewReader(inv.Payload))
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/octet-stream")
	if inv.Language != "" {
		httpReq.Header.Set("X-OCR-Language", inv.Language)
	}
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
		retryable := httpResp.StatusCode >= 500
		return nil, engines.NewEngineError(a.desc.ID, "OCR_ERROR", string(respBody), httpResp.StatusCode, retryable, errors.New("ocr server returned non-200"))
	}

	var ocrResp ocrServerResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	return &engines.RawResult{
		Text:       ocrResp.Text,
		Confidence: ocrResp.Confidence,
	}, nil
}

// ocrServerResponse is the sidecar's wire format. Confidence is already on
// the 0-100 scale.
type ocrServerResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}
