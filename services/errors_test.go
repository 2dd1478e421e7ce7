package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError(t *testing.T) {
	t.Run("error message includes type", func(t *testing.T) {
		err := NewDomainError(ErrorTypeValidation, "bad field", nil)
		assert.Equal(t, "validation: bad field", err.Error())
	})

	t.Run("error message includes cause", func(t *testing.T) {
		cause := errors.New("underlying")
		err := NewDomainError(ErrorTypeInternal, "wrapped", cause)
		assert.Contains(t, err.Error(), "underlying")
		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("Is matches on type", func(t *testing.T) {
		err := NewDomainError(ErrorTypeValidation, "specific message", nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NotErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("WithDetail accumulates details", func(t *testing.T) {
		err := NewDomainError(ErrorTypeValidation, "bad", nil).
			WithDetail("field", "prompt").
			WithDetail("max", 32000)
		assert.Equal(t, "prompt", err.Details["field"])
		assert.Equal(t, 32000, err.Details["max"])
	})
}

func TestExhaustedError(t *testing.T) {
	attempts := []Attempt{
		{EngineID: "openai", Reason: "rate limited"},
		{EngineID: "anthropic", Reason: "timeout"},
	}

	t.Run("generation message lists attempts in order", func(t *testing.T) {
		err := NewAllEnginesFailed(attempts)
		assert.Equal(t, "all engines failed: openai: rate limited; anthropic: timeout", err.Error())
	})

	t.Run("extraction message lists attempts in order", func(t *testing.T) {
		err := NewExtractionFailed(attempts)
		assert.Equal(t, "extraction failed: openai: rate limited; anthropic: timeout", err.Error())
	})

	t.Run("kinds are distinguishable", func(t *testing.T) {
		gen := NewAllEnginesFailed(attempts)
		ext := NewExtractionFailed(attempts)

		assert.True(t, IsAllEnginesFailed(gen))
		assert.False(t, IsExtractionFailed(gen))
		assert.True(t, IsExtractionFailed(ext))
		assert.False(t, IsAllEnginesFailed(ext))
		assert.True(t, IsExhausted(gen))
		assert.True(t, IsExhausted(ext))
	})

	t.Run("survives wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("request failed: %w", NewAllEnginesFailed(attempts))
		assert.True(t, IsAllEnginesFailed(wrapped))
		require.Len(t, ExhaustedAttempts(wrapped), 2)
	})
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"no engines configured", ErrNoEnginesConfigured, IsNoEnginesConfigured, true},
		{"empty prompt is validation", ErrEmptyPrompt, IsValidationError, true},
		{"empty payload is validation", ErrEmptyPayload, IsValidationError, true},
		{"unauthorized", ErrUnauthorized, IsUnauthorizedError, true},
		{"plain error is not validation", errors.New("boom"), IsValidationError, false},
		{"plain error is not exhaustion", errors.New("boom"), IsExhausted, false},
		{"nil attempts list is allowed", NewAllEnginesFailed(nil), IsExhausted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeValidation, GetErrorType(ErrEmptyPrompt))
	assert.Equal(t, ErrorTypeConfiguration, GetErrorType(ErrNoEnginesConfigured))
	assert.Equal(t, ErrorTypeExhausted, GetErrorType(NewAllEnginesFailed(nil)))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("boom")))
}

func TestExhaustedAttempts(t *testing.T) {
	assert.Nil(t, ExhaustedAttempts(errors.New("boom")))
	assert.Nil(t, ExhaustedAttempts(nil))

	attempts := ExhaustedAttempts(NewExtractionFailed([]Attempt{{EngineID: "ocr-server", Reason: "down"}}))
	require.Len(t, attempts, 1)
	assert.Equal(t, "ocr-server", attempts[0].EngineID)
}

func TestWrappers(t *testing.T) {
	cause := errors.New("connection refused")

	internal := WrapInternal("ledger flush failed", cause)
	assert.Equal(t, ErrorTypeInternal, GetErrorType(internal))
	assert.ErrorIs(t, internal, cause)

	external := WrapExternal("upstream rejected request", cause)
	assert.Equal(t, ErrorTypeExternal, GetErrorType(external))
}
