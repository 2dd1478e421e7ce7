// Package extraction routes document text extraction between a free,
// lower-accuracy engine and a metered, higher-accuracy one, escalating on
// low confidence and accounting the premium engine's monthly free allowance.
package extraction

import (
	"context"
	"time"

	"github.com/paperdesk/paperdesk/services"
	"github.com/paperdesk/paperdesk/services/costing"
	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/paperdesk/paperdesk/services/usage"
	"go.uber.org/zap"
)

// DefaultQualityThreshold is the confidence (0-100) below which a free
// extraction result triggers escalation.
const DefaultQualityThreshold = 85.0

// Config tunes the extraction router.
type Config struct {
	// QualityThreshold is the escalation cutoff on the 0-100 confidence
	// scale, shared across all free engines
	QualityThreshold float64

	// FreeAllowance is the number of premium operations permitted per
	// accounting period before cost is incurred
	FreeAllowance int64
}

// DefaultConfig returns the default extraction configuration
func DefaultConfig() Config {
	return Config{
		QualityThreshold: DefaultQualityThreshold,
		FreeAllowance:    1000,
	}
}

// Request is a normalized single-page extraction request.
type Request struct {
	// Payload is the opaque image or page bitmap
	Payload []byte

	// Language is a locale hint, passed through to the engine
	Language string

	// ForcePremium skips the free engine entirely
	ForcePremium bool

	// AllowEscalation permits moving to the premium engine on failure or
	// low confidence. When false, the free result is returned best-effort.
	AllowEscalation bool
}

// Router implements the free-first extraction state machine. Each call is
// synchronous; a page is attempted against at most one free and one premium
// engine, in that order.
type Router struct {
	registry  *engines.Registry
	ledger    *usage.Ledger
	estimator *costing.Estimator
	logger    *zap.Logger
	config    Config
}

// NewRouter creates an extraction router
func NewRouter(registry *engines.Registry, ledger *usage.Ledger, estimator *costing.Estimator, config Config, logger *zap.Logger) *Router {
	if config.QualityThreshold == 0 {
		config.QualityThreshold = DefaultQualityThreshold
	}
	return &Router{
		registry:  registry,
		ledger:    ledger,
		estimator: estimator,
		logger:    logger,
		config:    config,
	}
}

// Extract runs one page through the extraction state machine and returns
// either a Result or a typed error. A low-confidence result with no
// escalation path is returned as a degraded success, distinguishable only
// by its Confidence field.
func (r *Router) Extract(ctx context.Context, req Request) (*engines.Result, error) {
	if len(req.Payload) == 0 {
		return nil, services.ErrEmptyPayload
	}

	free := r.registry.First(engines.CapabilityExtractionFree)
	premium := r.registry.First(engines.CapabilityExtractionPremium)

	if req.ForcePremium || free == nil {
		return r.tryPremium(ctx, req, premium, nil, nil)
	}

	return r.tryFree(ctx, req, free, premium)
}

// tryFree attempts the free engine, escalating or degrading per the request.
func (r *Router) tryFree(ctx context.Context, req Request, free, premium engines.Invoker) (*engines.Result, error) {
	desc := free.Descriptor()

	start := time.Now()
	raw, err := free.Invoke(ctx, engines.Invocation{Payload: req.Payload, Language: req.Language})
	if err != nil {
		r.ledger.RecordError(desc.ID, err)
		attempts := []services.Attempt{{EngineID: desc.ID, Reason: err.Error()}}

		if req.AllowEscalation && premium != nil {
			r.logger.Warn("free extraction failed, escalating",
				zap.String("engine", desc.ID),
				zap.Error(err))
			return r.tryPremium(ctx, req, premium, nil, attempts)
		}

		return nil, services.NewExtractionFailed(attempts)
	}

	latency := time.Since(start)
	r.ledger.Record(desc.ID, true, latency, false)

	result := &engines.Result{
		Text:           raw.Text,
		EngineUsed:     desc.ID,
		Confidence:     raw.Confidence,
		LatencySeconds: latency.Seconds(),
		EstimatedCost:  0,
		FreeTier:       true,
	}

	if raw.Confidence >= r.config.QualityThreshold {
		r.logger.Info("free extraction succeeded",
			zap.String("engine", desc.ID),
			zap.Float64("confidence", raw.Confidence))
		return result, nil
	}

	if !req.AllowEscalation || premium == nil {
		// Best effort: low confidence but no escalation path
		r.logger.Info("returning degraded extraction result",
			zap.String("engine", desc.ID),
			zap.Float64("confidence", raw.Confidence),
			zap.Float64("threshold", r.config.QualityThreshold))
		return result, nil
	}

	r.logger.Info("confidence below threshold, escalating",
		zap.String("engine", desc.ID),
		zap.Float64("confidence", raw.Confidence),
		zap.Float64("threshold", r.config.QualityThreshold))

	return r.tryPremium(ctx, req, premium, result, nil)
}

// tryPremium attempts the premium engine. freeResult, when non-nil, is the
// already-obtained low-confidence free result to fall back to if the premium
// attempt fails or no premium engine exists.
func (r *Router) tryPremium(ctx context.Context, req Request, premium engines.Invoker, freeResult *engines.Result, prior []services.Attempt) (*engines.Result, error) {
	if premium == nil {
		if freeResult != nil {
			return freeResult, nil
		}
		return nil, services.ErrNoEnginesConfigured
	}

	desc := premium.Descriptor()

	// Quota check happens before the attempt so the cost reflects the state
	// of the allowance at call time.
	cost := 0.0
	metered := r.ledger.MeteredThisPeriod(desc.ID)
	if metered >= r.config.FreeAllowance {
		cost = r.estimator.Estimate(desc, costing.PageUnits, 0)
	}

	start := time.Now()
	raw, err := premium.Invoke(ctx, engines.Invocation{Payload: req.Payload, Language: req.Language})
	if err != nil {
		r.ledger.RecordError(desc.ID, err)

		if freeResult != nil {
			// Degraded success beats failing the whole call
			r.logger.Warn("premium extraction failed, returning degraded free result",
				zap.String("engine", desc.ID),
				zap.Error(err))
			return freeResult, nil
		}

		attempts := append(prior, services.Attempt{EngineID: desc.ID, Reason: err.Error()})
		return nil, services.NewExtractionFailed(attempts)
	}

	latency := time.Since(start)
	r.ledger.Record(desc.ID, true, latency, true)

	r.logger.Info("premium extraction succeeded",
		zap.String("engine", desc.ID),
		zap.Float64("confidence", raw.Confidence),
		zap.Int64("metered_this_period", metered+1),
		zap.Float64("estimated_cost", cost))

	return &engines.Result{
		Text:           raw.Text,
		EngineUsed:     desc.ID,
		Confidence:     raw.Confidence,
		LatencySeconds: latency.Seconds(),
		EstimatedCost:  cost,
		FreeTier:       cost == 0,
	}, nil
}

// DocumentResult aggregates per-page extraction results.
type DocumentResult struct {
	// Text is the concatenated per-page text, in page order
	Text string `json:"text"`

	// Confidence is the arithmetic mean of per-page confidences
	Confidence float64 `json:"confidence"`

	// Pages holds the individual page results
	Pages []engines.Result `json:"pages"`

	// EstimatedCost sums the per-page costs
	EstimatedCost float64 `json:"estimated_cost"`
}

// ExtractDocument runs each page independently through the single-page state
// machine and aggregates the results. A single failing page fails the
// document.
func (r *Router) ExtractDocument(ctx context.Context, pages [][]byte, language string, forcePremium, allowEscalation bool) (*DocumentResult, error) {
	if len(pages) == 0 {
		return nil, services.ErrEmptyPayload
	}

	doc := &DocumentResult{
		Pages: make([]engines.Result, 0, len(pages)),
	}

	var confidenceSum float64
	for i, payload := range pages {
		result, err := r.Extract(ctx, Request{
			Payload:         payload,
			Language:        language,
			ForcePremium:    forcePremium,
			AllowEscalation: allowEscalation,
		})
		if err != nil {
			r.logger.Error("document extraction failed",
				zap.Int("page", i+1),
				zap.Int("pages", len(pages)),
				zap.Error(err))
			return nil, err
		}

		if i > 0 {
			doc.Text += "\n"
		}
		doc.Text += result.Text
		doc.Pages = append(doc.Pages, *result)
		doc.EstimatedCost += result.EstimatedCost
		confidenceSum += result.Confidence
	}

	doc.Confidence = confidenceSum / float64(len(pages))
	return doc, nil
}

// QualityThreshold returns the configured escalation cutoff
func (r *Router) QualityThreshold() float64 {
	return r.config.QualityThreshold
}
