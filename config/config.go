package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Engines     EnginesConfig
	Extraction  ExtractionConfig
	LogLevel    string
	Environment string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the optional usage-archive database configuration.
// The archive is disabled when URL is empty.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RetentionDays   int
	CleanupInterval time.Duration
}

// AuthConfig holds bearer-token authentication configuration
type AuthConfig struct {
	// SigningKey is the HMAC secret for API tokens. Auth is disabled when
	// empty (development only).
	SigningKey string
	Issuer     string
}

// EnginesConfig holds per-engine configuration. An engine is enabled when
// its credentials (or base URL, for the local OCR sidecar) are present.
type EnginesConfig struct {
	OpenAI    GenerationEngineConfig
	Anthropic GenerationEngineConfig
	OCRServer OCRServerConfig
	Vision    VisionConfig
}

// GenerationEngineConfig configures one cloud text-generation engine
type GenerationEngineConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Priority     int
	CostPerToken float64
	Timeout      time.Duration
}

// Enabled reports whether the engine has credentials
func (c GenerationEngineConfig) Enabled() bool {
	return c.APIKey != ""
}

// OCRServerConfig configures the free OCR sidecar
type OCRServerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Enabled reports whether the sidecar is reachable by configuration
func (c OCRServerConfig) Enabled() bool {
	return c.BaseURL != ""
}

// VisionConfig configures the metered cloud vision engine
type VisionConfig struct {
	APIKey      string
	BaseURL     string
	CostPerPage float64
	Timeout     time.Duration
}

// Enabled reports whether the engine has credentials
func (c VisionConfig) Enabled() bool {
	return c.APIKey != ""
}

// ExtractionConfig holds the extraction routing tunables
type ExtractionConfig struct {
	// QualityThreshold is the escalation cutoff on the 0-100 scale
	QualityThreshold float64

	// FreeAllowance is the number of premium vision operations permitted
	// per accounting period before cost accrues
	FreeAllowance int64
}

// New creates a Config by loading environment variables
func New() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			RetentionDays:   getEnvAsInt("USAGE_RETENTION_DAYS", 90),
			CleanupInterval: getEnvAsDuration("USAGE_CLEANUP_INTERVAL", 24*time.Hour),
		},
		Auth: AuthConfig{
			SigningKey: getEnv("AUTH_SIGNING_KEY", ""),
			Issuer:     getEnv("AUTH_ISSUER", "paperdesk"),
		},
		Engines: EnginesConfig{
			OpenAI: GenerationEngineConfig{
				APIKey:       getEnv("OPENAI_API_KEY", ""),
				BaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				Priority:     getEnvAsInt("OPENAI_PRIORITY", 1),
				CostPerToken: getEnvAsFloat("OPENAI_COST_PER_TOKEN", 0.0000006),
				Timeout:      getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			},
			Anthropic: GenerationEngineConfig{
				APIKey:       getEnv("ANTHROPIC_API_KEY", ""),
				BaseURL:      getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				Model:        getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
				Priority:     getEnvAsInt("ANTHROPIC_PRIORITY", 2),
				CostPerToken: getEnvAsFloat("ANTHROPIC_COST_PER_TOKEN", 0.000001),
				Timeout:      getEnvAsDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
			},
			OCRServer: OCRServerConfig{
				BaseURL: getEnv("OCR_BASE_URL", ""),
				Timeout: getEnvAsDuration("OCR_TIMEOUT", 30*time.Second),
			},
			Vision: VisionConfig{
				APIKey:      getEnv("VISION_API_KEY", ""),
				BaseURL:     getEnv("VISION_BASE_URL", "https://vision.googleapis.com"),
				CostPerPage: getEnvAsFloat("VISION_COST_PER_PAGE", 0.0015),
				Timeout:     getEnvAsDuration("VISION_TIMEOUT", 60*time.Second),
			},
		},
		Extraction: ExtractionConfig{
			QualityThreshold: getEnvAsFloat("EXTRACTION_QUALITY_THRESHOLD", 85),
			FreeAllowance:    int64(getEnvAsInt("VISION_FREE_ALLOWANCE", 1000)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Extraction.QualityThreshold < 0 || c.Extraction.QualityThreshold > 100 {
		return fmt.Errorf("extraction quality threshold must be in [0,100], got %v", c.Extraction.QualityThreshold)
	}
	if c.Extraction.FreeAllowance < 0 {
		return fmt.Errorf("vision free allowance cannot be negative")
	}

	if c.IsProduction() {
		if c.Auth.SigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
		}
		if !c.Engines.OpenAI.Enabled() && !c.Engines.Anthropic.Enabled() {
			return fmt.Errorf("at least one generation engine must be configured in production")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Retention returns the archive retention window as a duration
func (c *DatabaseConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
