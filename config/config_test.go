package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "LOG_LEVEL", "SERVER_HOST", "SERVER_PORT",
		"DATABASE_URL", "AUTH_SIGNING_KEY", "AUTH_ISSUER",
		"OPENAI_API_KEY", "OPENAI_PRIORITY", "ANTHROPIC_API_KEY",
		"OCR_BASE_URL", "VISION_API_KEY", "VISION_FREE_ALLOWANCE",
		"EXTRACTION_QUALITY_THRESHOLD",
	} {
		t.Setenv(key, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "paperdesk", cfg.Auth.Issuer)
	assert.Equal(t, 85.0, cfg.Extraction.QualityThreshold)
	assert.Equal(t, int64(1000), cfg.Extraction.FreeAllowance)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	// No credentials means no engines enabled
	assert.False(t, cfg.Engines.OpenAI.Enabled())
	assert.False(t, cfg.Engines.Anthropic.Enabled())
	assert.False(t, cfg.Engines.OCRServer.Enabled())
	assert.False(t, cfg.Engines.Vision.Enabled())
}

func TestNew_EngineConfiguration(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_PRIORITY", "3")
	t.Setenv("OCR_BASE_URL", "http://ocr:9292")
	t.Setenv("VISION_API_KEY", "vision-key")
	t.Setenv("VISION_FREE_ALLOWANCE", "500")
	t.Setenv("EXTRACTION_QUALITY_THRESHOLD", "70")

	cfg, err := New()
	require.NoError(t, err)

	assert.True(t, cfg.Engines.OpenAI.Enabled())
	assert.Equal(t, 3, cfg.Engines.OpenAI.Priority)
	assert.True(t, cfg.Engines.OCRServer.Enabled())
	assert.Equal(t, "http://ocr:9292", cfg.Engines.OCRServer.BaseURL)
	assert.True(t, cfg.Engines.Vision.Enabled())
	assert.Equal(t, int64(500), cfg.Extraction.FreeAllowance)
	assert.Equal(t, 70.0, cfg.Extraction.QualityThreshold)
}

func TestNew_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("VISION_FREE_ALLOWANCE", "many")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(1000), cfg.Extraction.FreeAllowance)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment: "development",
			Server:      ServerConfig{Port: 8080},
			Extraction:  ExtractionConfig{QualityThreshold: 85, FreeAllowance: 1000},
		}
	}

	t.Run("valid development config", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("rejects invalid port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())

		cfg.Server.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects out-of-range threshold", func(t *testing.T) {
		cfg := base()
		cfg.Extraction.QualityThreshold = 101
		assert.Error(t, cfg.Validate())

		cfg.Extraction.QualityThreshold = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative allowance", func(t *testing.T) {
		cfg := base()
		cfg.Extraction.FreeAllowance = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("production requires signing key and a generation engine", func(t *testing.T) {
		cfg := base()
		cfg.Environment = "production"
		assert.Error(t, cfg.Validate())

		cfg.Auth.SigningKey = "secret"
		assert.Error(t, cfg.Validate())

		cfg.Engines.OpenAI.APIKey = "sk-test"
		assert.NoError(t, cfg.Validate())
	})
}

func TestDatabaseConfig_Retention(t *testing.T) {
	cfg := DatabaseConfig{RetentionDays: 30}
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
}
