package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/paperdesk/paperdesk/middleware"
	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/paperdesk/paperdesk/services/extraction"
	"github.com/paperdesk/paperdesk/services/usagestore"
	"github.com/paperdesk/paperdesk/utils"
	"go.uber.org/zap"
)

// ExtractionService routes extraction requests through the free and premium
// engines
type ExtractionService interface {
	Extract(ctx context.Context, req extraction.Request) (*engines.Result, error)
	ExtractDocument(ctx context.Context, pages [][]byte, language string, forcePremium, allowEscalation bool) (*extraction.DocumentResult, error)
}

// ExtractRequest is the request body for text extraction. Either Image (a
// single page) or Pages (a multi-page document) must be present.
type ExtractRequest struct {
	Image           string   `json:"image" validate:"omitempty,base64"`
	Pages           []string `json:"pages" validate:"omitempty,min=1,max=50,dive,base64"`
	Language        string   `json:"language" validate:"omitempty,len=3"`
	ForcePremium    bool     `json:"force_premium"`
	AllowEscalation *bool    `json:"allow_escalation"`
}

// ExtractHandler handles text extraction requests
type ExtractHandler struct {
	service ExtractionService
	archive AttemptArchiver
	logger  *zap.Logger
}

// NewExtractHandler creates a new extraction handler
func NewExtractHandler(service ExtractionService, archive AttemptArchiver, logger *zap.Logger) *ExtractHandler {
	return &ExtractHandler{
		service: service,
		archive: archive,
		logger:  logger,
	}
}

// HandleExtract processes POST /api/v1/extract
func (h *ExtractHandler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode extract request", zap.Error(err))
		if werr := utils.WriteBadRequest(w, "Invalid JSON in request body", nil); werr != nil {
			h.logger.Error("failed to write error response", zap.Error(werr))
		}
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if req.Image == "" && len(req.Pages) == 0 {
		if werr := utils.WriteBadRequest(w, "Either image or pages must be provided", nil); werr != nil {
			h.logger.Error("failed to write error response", zap.Error(werr))
		}
		return
	}

	// Escalation is opt-out
	allowEscalation := true
	if req.AllowEscalation != nil {
		allowEscalation = *req.AllowEscalation
	}

	requestID := middleware.GetRequestIDFromContext(r.Context())

	if len(req.Pages) > 0 {
		h.handleDocument(w, r, req, requestID, allowEscalation)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		if werr := utils.WriteBadRequest(w, "Invalid base64 image data", nil); werr != nil {
			h.logger.Error("failed to write error response", zap.Error(werr))
		}
		return
	}

	result, err := h.service.Extract(r.Context(), extraction.Request{
		Payload:         payload,
		Language:        req.Language,
		ForcePremium:    req.ForcePremium,
		AllowEscalation: allowEscalation,
	})
	if err != nil {
		if h.archive != nil {
			archiveAttempts(r.Context(), h.archive, h.logger, requestID, "extraction", err)
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	h.archiveResult(r.Context(), requestID, result)

	if werr := utils.WriteOK(w, result); werr != nil {
		h.logger.Error("failed to write extract response", zap.Error(werr))
	}
}

func (h *ExtractHandler) handleDocument(w http.ResponseWriter, r *http.Request, req ExtractRequest, requestID string, allowEscalation bool) {
	pages := make([][]byte, 0, len(req.Pages))
	for i, encoded := range req.Pages {
		payload, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			if werr := utils.WriteBadRequest(w, "Invalid base64 page data", map[string]interface{}{"page": i}); werr != nil {
				h.logger.Error("failed to write error response", zap.Error(werr))
			}
			return
		}
		pages = append(pages, payload)
	}

	doc, err := h.service.ExtractDocument(r.Context(), pages, req.Language, req.ForcePremium, allowEscalation)
	if err != nil {
		if h.archive != nil {
			archiveAttempts(r.Context(), h.archive, h.logger, requestID, "extraction", err)
		}
		HandleServiceError(w, err, h.logger)
		return
	}

	for i := range doc.Pages {
		h.archiveResult(r.Context(), requestID, &doc.Pages[i])
	}

	if werr := utils.WriteOK(w, doc); werr != nil {
		h.logger.Error("failed to write extract response", zap.Error(werr))
	}
}

func (h *ExtractHandler) archiveResult(ctx context.Context, requestID string, result *engines.Result) {
	if h.archive == nil {
		return
	}

	rec := usagestore.AttemptRecord{
		RequestID:     requestID,
		EngineID:      result.EngineUsed,
		Capability:    "extraction",
		Success:       true,
		LatencyMs:     int64(result.LatencySeconds * 1000),
		EstimatedCost: result.EstimatedCost,
		Metered:       !result.FreeTier,
	}
	if err := h.archive.RecordAttempt(ctx, rec); err != nil {
		h.logger.Warn("failed to archive attempt record", zap.Error(err))
	}
}
