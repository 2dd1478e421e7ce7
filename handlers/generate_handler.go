package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/paperdesk/paperdesk/middleware"
	"github.com/paperdesk/paperdesk/services"
	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/paperdesk/paperdesk/services/generation"
	"github.com/paperdesk/paperdesk/services/usagestore"
	"github.com/paperdesk/paperdesk/utils"
	"go.uber.org/zap"
)

// GenerationService routes a generation request across configured engines
type GenerationService interface {
	Generate(ctx context.Context, req generation.Request) (*engines.Result, error)
	Engines() []engines.Descriptor
}

// AttemptArchiver persists attempt records for offline analysis. Archiving
// never affects the request outcome.
type AttemptArchiver interface {
	RecordAttempt(ctx context.Context, rec usagestore.AttemptRecord) error
}

// GenerateRequest is the request body for text generation
type GenerateRequest struct {
	Prompt          string  `json:"prompt" validate:"required,min=1,max=32000"`
	MaxOutputTokens int     `json:"max_output_tokens" validate:"omitempty,min=1,max=8192"`
	Temperature     float64 `json:"temperature" validate:"omitempty,min=0,max=2"`
	PreferredEngine string  `json:"preferred_engine" validate:"omitempty,max=64"`
}

// GenerateHandler handles text generation requests
type GenerateHandler struct {
	service GenerationService
	archive AttemptArchiver
	logger  *zap.Logger
}

// NewGenerateHandler creates a new generation handler
func NewGenerateHandler(service GenerationService, archive AttemptArchiver, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		service: service,
		archive: archive,
		logger:  logger,
	}
}

// HandleGenerate processes POST /api/v1/generate
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode generate request", zap.Error(err))
		if werr := utils.WriteBadRequest(w, "Invalid JSON in request body", nil); werr != nil {
			h.logger.Error("failed to write error response", zap.Error(werr))
		}
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	requestID := middleware.GetRequestIDFromContext(r.Context())

	result, err := h.service.Generate(r.Context(), generation.Request{
		Prompt:          req.Prompt,
		MaxOutputTokens: req.MaxOutputTokens,
		Temperature:     req.Temperature,
		PreferredEngine: req.PreferredEngine,
	})
	if err != nil {
		h.archiveFailure(r.Context(), requestID, string(engines.CapabilityGeneration), err)
		HandleServiceError(w, err, h.logger)
		return
	}

	h.archiveSuccess(r.Context(), requestID, string(engines.CapabilityGeneration), result, false)

	if werr := utils.WriteOK(w, result); werr != nil {
		h.logger.Error("failed to write generate response", zap.Error(werr))
	}
}

// HandleListEngines processes GET /api/v1/engines
func (h *GenerateHandler) HandleListEngines(w http.ResponseWriter, r *http.Request) {
	descriptors := h.service.Engines()

	type engineInfo struct {
		ID         string  `json:"id"`
		Priority   int     `json:"priority"`
		Capability string  `json:"capability"`
		CostWeight float64 `json:"cost_weight"`
	}

	info := make([]engineInfo, 0, len(descriptors))
	for _, d := range descriptors {
		info = append(info, engineInfo{
			ID:         d.ID,
			Priority:   d.Priority,
			Capability: string(d.Capability),
			CostWeight: d.CostWeight,
		})
	}

	if werr := utils.WriteOK(w, map[string]interface{}{"engines": info}); werr != nil {
		h.logger.Error("failed to write engines response", zap.Error(werr))
	}
}

func (h *GenerateHandler) archiveSuccess(ctx context.Context, requestID, capability string, result *engines.Result, metered bool) {
	if h.archive == nil {
		return
	}

	rec := usagestore.AttemptRecord{
		RequestID:     requestID,
		EngineID:      result.EngineUsed,
		Capability:    capability,
		Success:       true,
		LatencyMs:     int64(result.LatencySeconds * 1000),
		EstimatedCost: result.EstimatedCost,
		Metered:       metered,
	}
	if err := h.archive.RecordAttempt(ctx, rec); err != nil {
		h.logger.Warn("failed to archive attempt record", zap.Error(err))
	}
}

func (h *GenerateHandler) archiveFailure(ctx context.Context, requestID, capability string, err error) {
	if h.archive == nil {
		return
	}

	archiveAttempts(ctx, h.archive, h.logger, requestID, capability, err)
}

// archiveAttempts writes one archive record per failed engine attempt carried
// by an exhaustion error. Non-exhaustion errors produce no attempt records.
func archiveAttempts(ctx context.Context, archive AttemptArchiver, logger *zap.Logger, requestID, capability string, err error) {
	for _, attempt := range services.ExhaustedAttempts(err) {
		rec := usagestore.AttemptRecord{
			RequestID:    requestID,
			EngineID:     attempt.EngineID,
			Capability:   capability,
			Success:      false,
			ErrorMessage: attempt.Reason,
		}
		if aerr := archive.RecordAttempt(ctx, rec); aerr != nil {
			logger.Warn("failed to archive attempt record", zap.Error(aerr))
		}
	}
}
