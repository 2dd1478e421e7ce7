package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/paperdesk/paperdesk/services"
	"github.com/paperdesk/paperdesk/services/costing"
	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/paperdesk/paperdesk/services/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedEngine fails or succeeds per configuration and records how often it
// was invoked.
type scriptedEngine struct {
	desc    engines.Descriptor
	text    string
	err     error
	invoked int
}

func (s *scriptedEngine) Descriptor() engines.Descriptor { return s.desc }

func (s *scriptedEngine) Invoke(ctx context.Context, inv engines.Invocation) (*engines.RawResult, error) {
	s.invoked++
	if s.err != nil {
		return nil, s.err
	}
	return &engines.RawResult{Text: s.text, Confidence: engines.NominalGenerationConfidence}, nil
}

func newTestRouter(t *testing.T, invokers ...engines.Invoker) (*Router, *usage.Ledger) {
	t.Helper()
	registry := engines.NewRegistry()
	for _, inv := range invokers {
		require.NoError(t, registry.Register(inv))
	}
	ledger := usage.NewLedger()
	return NewRouter(registry, ledger, costing.NewEstimator(), zap.NewNop()), ledger
}

func TestRouter_Generate_FirstEngineSucceeds(t *testing.T) {
	primary := &scriptedEngine{
		desc: engines.Descriptor{ID: "openai", Priority: 1, Capability: engines.CapabilityGeneration, CostWeight: 0.000001},
		text: "generated text",
	}
	secondary := &scriptedEngine{
		desc: engines.Descriptor{ID: "anthropic", Priority: 2, Capability: engines.CapabilityGeneration, CostWeight: 0.000001},
		text: "never used",
	}
	router, ledger := newTestRouter(t, primary, secondary)

	result, err := router.Generate(context.Background(), Request{Prompt: "write a grant summary"})
	require.NoError(t, err)

	assert.Equal(t, "generated text", result.Text)
	assert.Equal(t, "openai", result.EngineUsed)
	assert.Equal(t, engines.NominalGenerationConfidence, result.Confidence)
	assert.False(t, result.FreeTier)
	assert.Greater(t, result.EstimatedCost, 0.0)

	// Lower-priority engine never attempted
	assert.Zero(t, secondary.invoked)
	_, attempted := ledger.Snapshot("anthropic")
	assert.False(t, attempted)

	stats, ok := ledger.Snapshot("openai")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Calls)
	assert.Zero(t, stats.Failures)
}

func TestRouter_Generate_FallsBackInPriorityOrder(t *testing.T) {
	first := &scriptedEngine{
		desc: engines.Descriptor{ID: "openai", Priority: 1, Capability: engines.CapabilityGeneration},
		err:  errors.New("rate limited"),
	}
	second := &scriptedEngine{
		desc: engines.Descriptor{ID: "anthropic", Priority: 2, Capability: engines.CapabilityGeneration},
		err:  errors.New("timeout"),
	}
	third := &scriptedEngine{
		desc: engines.Descriptor{ID: "local-llm", Priority: 3, Capability: engines.CapabilityGeneration},
		text: "fallback text",
	}
	router, ledger := newTestRouter(t, first, second, third)

	result, err := router.Generate(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "fallback text", result.Text)
	assert.Equal(t, "local-llm", result.EngineUsed)
	assert.True(t, result.FreeTier)
	assert.Zero(t, result.EstimatedCost)

	// Both failures landed in the ledger before the success
	for _, id := range []string{"openai", "anthropic"} {
		stats, ok := ledger.Snapshot(id)
		require.True(t, ok, id)
		assert.Equal(t, int64(1), stats.Failures, id)
	}
	assert.Equal(t, 1, first.invoked)
	assert.Equal(t, 1, second.invoked)
	assert.Equal(t, 1, third.invoked)
}

func TestRouter_Generate_AllEnginesFail(t *testing.T) {
	first := &scriptedEngine{
		desc: engines.Descriptor{ID: "openai", Priority: 1, Capability: engines.CapabilityGeneration},
		err:  errors.New("rate limited"),
	}
	second := &scriptedEngine{
		desc: engines.Descriptor{ID: "anthropic", Priority: 2, Capability: engines.CapabilityGeneration},
		err:  errors.New("timeout"),
	}
	router, _ := newTestRouter(t, first, second)

	_, err := router.Generate(context.Background(), Request{Prompt: "hello"})
	require.Error(t, err)
	assert.True(t, services.IsAllEnginesFailed(err))

	// Attempts preserve try-order and per-engine reasons
	attempts := services.ExhaustedAttempts(err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "openai", attempts[0].EngineID)
	assert.Contains(t, attempts[0].Reason, "rate limited")
	assert.Equal(t, "anthropic", attempts[1].EngineID)
	assert.Contains(t, attempts[1].Reason, "timeout")
}

func TestRouter_Generate_NoEnginesConfigured(t *testing.T) {
	router, ledger := newTestRouter(t)

	_, err := router.Generate(context.Background(), Request{Prompt: "hello"})
	require.Error(t, err)
	assert.True(t, services.IsNoEnginesConfigured(err))

	// Nothing was attempted, nothing was recorded
	assert.Zero(t, ledger.Len())
}

func TestRouter_Generate_EmptyPrompt(t *testing.T) {
	engine := &scriptedEngine{
		desc: engines.Descriptor{ID: "openai", Priority: 1, Capability: engines.CapabilityGeneration},
		text: "unused",
	}
	router, _ := newTestRouter(t, engine)

	_, err := router.Generate(context.Background(), Request{Prompt: ""})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
	assert.Zero(t, engine.invoked)
}

func TestRouter_Generate_PreferredEngine(t *testing.T) {
	first := &scriptedEngine{
		desc: engines.Descriptor{ID: "openai", Priority: 1, Capability: engines.CapabilityGeneration},
		text: "from openai",
	}
	second := &scriptedEngine{
		desc: engines.Descriptor{ID: "anthropic", Priority: 2, Capability: engines.CapabilityGeneration},
		text: "from anthropic",
	}

	t.Run("preferred engine tried first", func(t *testing.T) {
		router, _ := newTestRouter(t, first, second)

		result, err := router.Generate(context.Background(), Request{Prompt: "hello", PreferredEngine: "anthropic"})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", result.EngineUsed)
	})

	t.Run("falls back to priority order after preferred fails", func(t *testing.T) {
		failing := &scriptedEngine{
			desc: engines.Descriptor{ID: "anthropic", Priority: 2, Capability: engines.CapabilityGeneration},
			err:  errors.New("down"),
		}
		ok := &scriptedEngine{
			desc: engines.Descriptor{ID: "openai", Priority: 1, Capability: engines.CapabilityGeneration},
			text: "from openai",
		}
		router, _ := newTestRouter(t, failing, ok)

		result, err := router.Generate(context.Background(), Request{Prompt: "hello", PreferredEngine: "anthropic"})
		require.NoError(t, err)
		assert.Equal(t, "openai", result.EngineUsed)
		assert.Equal(t, 1, failing.invoked)
	})

	t.Run("unknown preferred id is ignored", func(t *testing.T) {
		router, _ := newTestRouter(t, first, second)

		result, err := router.Generate(context.Background(), Request{Prompt: "hello", PreferredEngine: "nonexistent"})
		require.NoError(t, err)
		assert.Equal(t, "openai", result.EngineUsed)
	})
}

func TestRouter_Engines(t *testing.T) {
	first := &scriptedEngine{
		desc: engines.Descriptor{ID: "openai", Priority: 1, Capability: engines.CapabilityGeneration},
	}
	second := &scriptedEngine{
		desc: engines.Descriptor{ID: "anthropic", Priority: 2, Capability: engines.CapabilityGeneration},
	}
	other := &scriptedEngine{
		desc: engines.Descriptor{ID: "ocr-server", Priority: 1, Capability: engines.CapabilityExtractionFree},
	}
	router, _ := newTestRouter(t, second, first, other)

	descs := router.Engines()
	require.Len(t, descs, 2)
	assert.Equal(t, "openai", descs[0].ID)
	assert.Equal(t, "anthropic", descs[1].ID)
}
