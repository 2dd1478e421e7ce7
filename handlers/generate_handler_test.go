package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paperdesk/paperdesk/services"
	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/paperdesk/paperdesk/services/generation"
	"github.com/paperdesk/paperdesk/services/usagestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubGenerationService returns a fixed result or error and captures the
// request it received.
type stubGenerationService struct {
	result  *engines.Result
	err     error
	descs   []engines.Descriptor
	lastReq generation.Request
}

func (s *stubGenerationService) Generate(ctx context.Context, req generation.Request) (*engines.Result, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubGenerationService) Engines() []engines.Descriptor { return s.descs }

// memoryArchiver collects attempt records in memory
type memoryArchiver struct {
	records []usagestore.AttemptRecord
	err     error
}

func (m *memoryArchiver) RecordAttempt(ctx context.Context, rec usagestore.AttemptRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestGenerateHandler_HandleGenerate(t *testing.T) {
	t.Run("returns the routed result", func(t *testing.T) {
		svc := &stubGenerationService{
			result: &engines.Result{
				Text:           "generated text",
				EngineUsed:     "openai",
				Confidence:     90,
				LatencySeconds: 0.4,
				EstimatedCost:  0.0003,
			},
		}
		archive := &memoryArchiver{}
		h := NewGenerateHandler(svc, archive, zap.NewNop())

		rec := postJSON(t, h.HandleGenerate, "/api/v1/generate", GenerateRequest{
			Prompt:          "write a summary",
			MaxOutputTokens: 200,
			PreferredEngine: "openai",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "write a summary", svc.lastReq.Prompt)
		assert.Equal(t, 200, svc.lastReq.MaxOutputTokens)
		assert.Equal(t, "openai", svc.lastReq.PreferredEngine)

		var resp struct {
			Data engines.Result `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "generated text", resp.Data.Text)
		assert.Equal(t, "openai", resp.Data.EngineUsed)

		require.Len(t, archive.records, 1)
		assert.True(t, archive.records[0].Success)
		assert.Equal(t, "openai", archive.records[0].EngineID)
		assert.Equal(t, "generation", archive.records[0].Capability)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		h := NewGenerateHandler(&stubGenerationService{}, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		h.HandleGenerate(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects missing prompt", func(t *testing.T) {
		svc := &stubGenerationService{}
		h := NewGenerateHandler(svc, nil, zap.NewNop())

		rec := postJSON(t, h.HandleGenerate, "/api/v1/generate", GenerateRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.lastReq.Prompt)
	})

	t.Run("maps exhaustion to 503 with attempts", func(t *testing.T) {
		svc := &stubGenerationService{
			err: services.NewAllEnginesFailed([]services.Attempt{
				{EngineID: "openai", Reason: "rate limited"},
				{EngineID: "anthropic", Reason: "timeout"},
			}),
		}
		archive := &memoryArchiver{}
		h := NewGenerateHandler(svc, archive, zap.NewNop())

		rec := postJSON(t, h.HandleGenerate, "/api/v1/generate", GenerateRequest{Prompt: "hello"})

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp struct {
			Details struct {
				Attempts []services.Attempt `json:"attempts"`
			} `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Details.Attempts, 2)
		assert.Equal(t, "openai", resp.Details.Attempts[0].EngineID)

		// One archive record per failed attempt
		require.Len(t, archive.records, 2)
		assert.False(t, archive.records[0].Success)
		assert.Equal(t, "rate limited", archive.records[0].ErrorMessage)
	})

	t.Run("maps no engines to 503", func(t *testing.T) {
		svc := &stubGenerationService{err: services.ErrNoEnginesConfigured}
		h := NewGenerateHandler(svc, nil, zap.NewNop())

		rec := postJSON(t, h.HandleGenerate, "/api/v1/generate", GenerateRequest{Prompt: "hello"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("archive failures do not affect the response", func(t *testing.T) {
		svc := &stubGenerationService{result: &engines.Result{Text: "ok", EngineUsed: "openai"}}
		archive := &memoryArchiver{err: assert.AnError}
		h := NewGenerateHandler(svc, archive, zap.NewNop())

		rec := postJSON(t, h.HandleGenerate, "/api/v1/generate", GenerateRequest{Prompt: "hello"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGenerateHandler_HandleListEngines(t *testing.T) {
	svc := &stubGenerationService{
		descs: []engines.Descriptor{
			{ID: "openai", Priority: 1, Capability: engines.CapabilityGeneration, CostWeight: 0.000001},
			{ID: "anthropic", Priority: 2, Capability: engines.CapabilityGeneration, CostWeight: 0.000001},
		},
	}
	h := NewGenerateHandler(svc, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/engines", nil)
	rec := httptest.NewRecorder()
	h.HandleListEngines(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Engines []struct {
				ID       string `json:"id"`
				Priority int    `json:"priority"`
			} `json:"engines"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Engines, 2)
	assert.Equal(t, "openai", resp.Data.Engines[0].ID)
}
