package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paperdesk/paperdesk/services/engines"
)

// CloudVisionAdapter implements the Invoker contract for a metered cloud
// document-text-detection API (premium tier).
type CloudVisionAdapter struct {
	desc       engines.Descriptor
	config     engines.AdapterConfig
	httpClient *http.Client
}

// NewCloudVisionAdapter creates a premium vision adapter
func NewCloudVisionAdapter(id string, config engines.AdapterConfig) *CloudVisionAdapter {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &CloudVisionAdapter{
		desc: engines.Descriptor{
			ID:         id,
			Priority:   config.Priority,
			Capability: engines.CapabilityExtractionPremium,
			CostWeight: config.CostWeight,
		},
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Descriptor returns the engine's static metadata
func (a *CloudVisionAdapter) Descriptor() engines.Descriptor {
	return a.desc
}

// Invoke performs one document-text-detection attempt
func (a *CloudVisionAdapter) Invoke(ctx context.Context, inv engines.Invocation) (*engines.RawResult, error) {
	annotateReq := visionAnnotateRequest{
		Image: visionImage{
			Content: base64.StdEncoding.EncodeToString(inv.Payload),
		},
		Features: []visionFeature{
			{Type: "DOCUMENT_TEXT_DETECTION"},
		},
	}
	if inv.Language != "" {
		annotateReq.ImageContext = &visionImageContext{LanguageHints: []string{inv.Language}}
	}

	reqBody, err := json.Marshal(visionBatchRequest{Requests: []visionAnnotateRequest{annotateReq}})
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/images:annotate?key="+a.config.APIKey, strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
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
		retryable := httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests
		return nil, engines.NewEngineError(a.desc.ID, "VISION_ERROR", string(respBody), httpResp.StatusCode, retryable, errors.New("vision API returned non-200"))
	}

	var batchResp visionBatchResponse
	if err := json.Unmarshal(respBody, &batchResp); err != nil {
		return nil, engines.NewEngineError(a.desc.ID, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	if len(batchResp.Responses) == 0 {
		return nil, engines.NewEngineError(a.desc.ID, "EMPTY_RESPONSE", "response contained no annotations", httpResp.StatusCode, false, nil)
	}

	annotation := batchResp.Responses[0]
	if annotation.Error != nil {
		return nil, engines.NewEngineError(a.desc.ID, "ANNOTATION_ERROR", annotation.Error.Message, httpResp.StatusCode, false, errors.New(annotation.Error.Message))
	}

	return &engines.RawResult{
		Text:       annotation.FullTextAnnotation.Text,
		Confidence: annotation.confidence(),
	}, nil
}

// Vision wire types

type visionBatchRequest struct {
	Requests []visionAnnotateRequest `json:"requests"`
}

type visionAnnotateRequest struct {
	Image        visionImage         `json:"image"`
	Features     []visionFeature     `json:"features"`
	ImageContext *visionImageContext `json:"imageContext,omitempty"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionImageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type visionBatchResponse struct {
	Responses []visionAnnotateResponse `json:"responses"`
}

type visionAnnotateResponse struct {
	FullTextAnnotation visionFullText `json:"fullTextAnnotation"`
	Error              *visionError   `json:"error,omitempty"`
}

type visionFullText struct {
	Text  string           `json:"text"`
	Pages []visionTextPage `json:"pages,omitempty"`
}

type visionTextPage struct {
	Confidence float64 `json:"confidence"`
}

type visionError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// confidence converts the API's 0-1 page confidence to the shared 0-100
// scale, averaging when multiple pages are annotated. A response without
// page confidences maps to 95, matching the backend's documented accuracy.
func (r visionAnnotateResponse) confidence() float64 {
	pages := r.FullTextAnnotation.Pages
	if len(pages) == 0 {
		return 95
	}
	var sum float64
	for _, p := range pages {
		sum += p.Confidence
	}
	return sum / float64(len(pages)) * 100
}
