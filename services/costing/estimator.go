// Package costing converts request/response sizes into approximate monetary
// cost. Estimates annotate results for billing collaborators; the generation
// router never uses them to pick an engine.
package costing

import "github.com/paperdesk/paperdesk/services/engines"

// PageUnits is the fixed unit weight of one extracted page
const PageUnits = 1

// Estimator computes approximate costs from per-engine cost weights.
type Estimator struct{}

// NewEstimator creates a cost estimator
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns (inputUnits + outputUnits) * CostWeight. Never fails;
// a zero cost weight (free tier) always yields 0.
func (e *Estimator) Estimate(desc engines.Descriptor, inputUnits, outputUnits int) float64 {
	if desc.CostWeight == 0 {
		return 0
	}
	return float64(inputUnits+outputUnits) * desc.CostWeight
}

// EstimateTokens approximates the token count of a text (4 chars per token
// average).
func EstimateTokens(text string) int {
	return len(text) / 4
}
