// Package generation routes text-generation requests across the configured
// engines, falling back in priority order until one succeeds.
package generation

import (
	"context"
	"time"

	"github.com/paperdesk/paperdesk/services"
	"github.com/paperdesk/paperdesk/services/costing"
	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/paperdesk/paperdesk/services/usage"
	"go.uber.org/zap"
)

// Request is a normalized generation request.
type Request struct {
	// Prompt is the input text
	Prompt string

	// MaxOutputTokens caps the response size
	MaxOutputTokens int

	// Temperature is the creativity control in [0,1], passed through verbatim
	Temperature float64

	// PreferredEngine optionally moves a known engine to the front of the
	// try-order. Unknown ids are ignored.
	PreferredEngine string
}

// Router attempts generation engines strictly in sequence. Engines are never
// tried in parallel: concurrent attempts would incur cost on more than one
// paid backend for a single logical request.
type Router struct {
	registry  *engines.Registry
	ledger    *usage.Ledger
	estimator *costing.Estimator
	logger    *zap.Logger
}

// NewRouter creates a generation router
func NewRouter(registry *engines.Registry, ledger *usage.Ledger, estimator *costing.Estimator, logger *zap.Logger) *Router {
	return &Router{
		registry:  registry,
		ledger:    ledger,
		estimator: estimator,
		logger:    logger,
	}
}

// Generate tries each generation engine in order and returns the first
// successful result. Every attempt, failed or not, is recorded in the usage
// ledger; no engine is retried within one call.
func (r *Router) Generate(ctx context.Context, req Request) (*engines.Result, error) {
	if req.Prompt == "" {
		return nil, services.ErrEmptyPrompt
	}

	order := r.tryOrder(req.PreferredEngine)
	if len(order) == 0 {
		return nil, services.ErrNoEnginesConfigured
	}

	inv := engines.Invocation{
		Prompt:          req.Prompt,
		MaxOutputTokens: req.MaxOutputTokens,
		Temperature:     req.Temperature,
	}

	var attempts []services.Attempt
	for _, engine := range order {
		desc := engine.Descriptor()

		start := time.Now()
		raw, err := engine.Invoke(ctx, inv)
		if err != nil {
			r.ledger.RecordError(desc.ID, err)
			attempts = append(attempts, services.Attempt{EngineID: desc.ID, Reason: err.Error()})
			r.logger.Warn("generation engine failed, trying next",
				zap.String("engine", desc.ID),
				zap.Error(err))
			continue
		}

		latency := time.Since(start)
		r.ledger.Record(desc.ID, true, latency, false)

		cost := r.estimator.Estimate(desc,
			costing.EstimateTokens(req.Prompt),
			costing.EstimateTokens(raw.Text))

		result := &engines.Result{
			Text:           raw.Text,
			EngineUsed:     desc.ID,
			Confidence:     raw.Confidence,
			LatencySeconds: latency.Seconds(),
			EstimatedCost:  cost,
			FreeTier:       desc.CostWeight == 0,
		}

		r.logger.Info("generation succeeded",
			zap.String("engine", desc.ID),
			zap.Int("attempts", len(attempts)+1),
			zap.Float64("latency_seconds", result.LatencySeconds),
			zap.Float64("estimated_cost", cost))

		return result, nil
	}

	r.logger.Error("all generation engines failed",
		zap.Int("attempted", len(attempts)))

	return nil, services.NewAllEnginesFailed(attempts)
}

// tryOrder builds the ordered candidate list: all generation engines sorted
// by priority, with the preferred engine moved to the front when it matches
// a known id. The relative order of the rest is preserved.
func (r *Router) tryOrder(preferred string) []engines.Invoker {
	order := r.registry.ByCapability(engines.CapabilityGeneration)
	if preferred == "" {
		return order
	}

	for i, engine := range order {
		if engine.Descriptor().ID == preferred {
			reordered := make([]engines.Invoker, 0, len(order))
			reordered = append(reordered, engine)
			reordered = append(reordered, order[:i]...)
			reordered = append(reordered, order[i+1:]...)
			return reordered
		}
	}

	return order
}

// Engines returns the descriptors of the configured generation engines in
// try-order, for the status surface.
func (r *Router) Engines() []engines.Descriptor {
	order := r.registry.ByCapability(engines.CapabilityGeneration)
	descs := make([]engines.Descriptor, 0, len(order))
	for _, engine := range order {
		descs = append(descs, engine.Descriptor())
	}
	return descs
}
