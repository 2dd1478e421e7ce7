package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paperdesk/paperdesk/middleware"
	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/paperdesk/paperdesk/services/usage"
	"github.com/paperdesk/paperdesk/utils"
	"go.uber.org/zap"
)

// UsageHandler exposes the in-process usage ledger
type UsageHandler struct {
	ledger     *usage.Ledger
	registry   *engines.Registry
	adminScope string
	logger     *zap.Logger
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(ledger *usage.Ledger, registry *engines.Registry, adminScope string, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		ledger:     ledger,
		registry:   registry,
		adminScope: adminScope,
		logger:     logger,
	}
}

// EngineUsage is one engine's live usage view
type EngineUsage struct {
	EngineID          string  `json:"engine_id"`
	Capability        string  `json:"capability"`
	Priority          int     `json:"priority"`
	CostWeight        float64 `json:"cost_weight"`
	Calls             int64   `json:"calls"`
	Failures          int64   `json:"failures"`
	SuccessRate       float64 `json:"success_rate"`
	AvgLatencySeconds float64 `json:"avg_latency_seconds"`
	MeteredThisPeriod int64   `json:"metered_this_period"`
	LastError         string  `json:"last_error,omitempty"`
}

// HandleGetUsage processes GET /api/v1/usage. Every registered engine
// appears in the response, including ones never called.
func (h *UsageHandler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	stats := h.ledger.SnapshotAll()

	descriptors := h.registry.Descriptors()
	report := make([]EngineUsage, 0, len(descriptors))
	for _, d := range descriptors {
		entry := EngineUsage{
			EngineID:   d.ID,
			Capability: string(d.Capability),
			Priority:   d.Priority,
			CostWeight: d.CostWeight,
		}
		if s, ok := stats[d.ID]; ok {
			entry.Calls = s.Calls
			entry.Failures = s.Failures
			entry.SuccessRate = s.SuccessRate()
			entry.AvgLatencySeconds = s.AvgLatencySeconds()
			entry.MeteredThisPeriod = s.MeteredThisPeriod
			entry.LastError = s.LastError
		}
		report = append(report, entry)
	}

	if werr := utils.WriteOK(w, map[string]interface{}{
		"engines":      report,
		"generated_at": time.Now().UTC(),
	}); werr != nil {
		h.logger.Error("failed to write usage response", zap.Error(werr))
	}
}

// HandleResetPeriod processes POST /api/v1/usage/{engineID}/reset. It zeroes
// the engine's metered-this-period counter at a billing boundary; lifetime
// call and failure counters are untouched.
func (h *UsageHandler) HandleResetPeriod(w http.ResponseWriter, r *http.Request) {
	if h.adminScope != "" {
		claims := middleware.GetClaimsFromContext(r.Context())
		if claims == nil || !claims.HasScope(h.adminScope) {
			if werr := utils.WriteUnauthorized(w, "Admin scope required"); werr != nil {
				h.logger.Error("failed to write error response", zap.Error(werr))
			}
			return
		}
	}

	engineID := chi.URLParam(r, "engineID")
	if engineID == "" {
		if werr := utils.WriteBadRequest(w, "Engine ID is required", nil); werr != nil {
			h.logger.Error("failed to write error response", zap.Error(werr))
		}
		return
	}

	if _, err := h.registry.Get(engineID); err != nil {
		if werr := utils.WriteNotFound(w, "Unknown engine: "+engineID); werr != nil {
			h.logger.Error("failed to write error response", zap.Error(werr))
		}
		return
	}

	h.ledger.ResetPeriod(engineID)
	h.logger.Info("reset metered period for engine", zap.String("engine_id", engineID))

	if werr := utils.WriteOK(w, map[string]interface{}{"engine_id": engineID, "reset": true}); werr != nil {
		h.logger.Error("failed to write reset response", zap.Error(werr))
	}
}
