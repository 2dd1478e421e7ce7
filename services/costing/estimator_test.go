package costing

import (
	"testing"

	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/stretchr/testify/assert"
)

func TestEstimator_Estimate(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		name        string
		desc        engines.Descriptor
		inputUnits  int
		outputUnits int
		expected    float64
	}{
		{
			name:        "paid engine charges input plus output",
			desc:        engines.Descriptor{ID: "openai", CostWeight: 0.000001},
			inputUnits:  1000,
			outputUnits: 500,
			expected:    0.0015,
		},
		{
			name:        "free engine always costs zero",
			desc:        engines.Descriptor{ID: "ocr-server", CostWeight: 0},
			inputUnits:  1000,
			outputUnits: 1000,
			expected:    0,
		},
		{
			name:        "per page cost",
			desc:        engines.Descriptor{ID: "cloud-vision", CostWeight: 0.0015},
			inputUnits:  PageUnits,
			outputUnits: 0,
			expected:    0.0015,
		},
		{
			name:     "zero units cost zero",
			desc:     engines.Descriptor{ID: "openai", CostWeight: 0.000001},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Estimate(tt.desc, tt.inputUnits, tt.outputUnits)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("four"))
	assert.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
}
