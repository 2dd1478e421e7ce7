package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paperdesk/paperdesk/auth"
	"github.com/paperdesk/paperdesk/config"
	"github.com/paperdesk/paperdesk/middleware"
	"github.com/paperdesk/paperdesk/services/costing"
	"github.com/paperdesk/paperdesk/services/engines"
	"github.com/paperdesk/paperdesk/services/engines/textgen"
	"github.com/paperdesk/paperdesk/services/engines/vision"
	"github.com/paperdesk/paperdesk/services/extraction"
	"github.com/paperdesk/paperdesk/services/generation"
	"github.com/paperdesk/paperdesk/services/usage"
	"github.com/paperdesk/paperdesk/services/usagestore"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *sql.DB
	Logger *zap.Logger

	// Core services
	EngineRegistry   *engines.Registry
	Ledger           *usage.Ledger
	Estimator        *costing.Estimator
	GenerationRouter *generation.Router
	ExtractionRouter *extraction.Router

	// Optional usage archive (nil when DATABASE_URL is not set)
	UsageArchive *usagestore.Store

	// Auth
	AuthMiddleware *middleware.AuthMiddleware

	cancelWorkers context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initEngines(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize engines: %w", err)
	}

	deps.initRouters(cfg)

	if err := deps.initUsageArchive(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize usage archive: %w", err)
	}

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initEngines registers every configured engine adapter
func (d *Dependencies) initEngines(cfg *config.Config) error {
	registry := engines.NewRegistry()

	if cfg.Engines.OpenAI.Enabled() {
		adapter := textgen.NewOpenAIAdapter("openai", cfg.Engines.OpenAI.Model, engines.AdapterConfig{
			APIKey:     cfg.Engines.OpenAI.APIKey,
			BaseURL:    cfg.Engines.OpenAI.BaseURL,
			Timeout:    cfg.Engines.OpenAI.Timeout,
			Priority:   cfg.Engines.OpenAI.Priority,
			CostWeight: cfg.Engines.OpenAI.CostPerToken,
		})
		if err := registry.Register(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered OpenAI generation engine",
			zap.String("model", cfg.Engines.OpenAI.Model),
			zap.Int("priority", cfg.Engines.OpenAI.Priority))
	}

	if cfg.Engines.Anthropic.Enabled() {
		adapter := textgen.NewAnthropicAdapter("anthropic", cfg.Engines.Anthropic.Model, engines.AdapterConfig{
			APIKey:     cfg.Engines.Anthropic.APIKey,
			BaseURL:    cfg.Engines.Anthropic.BaseURL,
			Timeout:    cfg.Engines.Anthropic.Timeout,
			Priority:   cfg.Engines.Anthropic.Priority,
			CostWeight: cfg.Engines.Anthropic.CostPerToken,
		})
		if err := registry.Register(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered Anthropic generation engine",
			zap.String("model", cfg.Engines.Anthropic.Model),
			zap.Int("priority", cfg.Engines.Anthropic.Priority))
	}

	if cfg.Engines.OCRServer.Enabled() {
		adapter := vision.NewOCRServerAdapter("ocr-server", engines.AdapterConfig{
			BaseURL: cfg.Engines.OCRServer.BaseURL,
			Timeout: cfg.Engines.OCRServer.Timeout,
		})
		if err := registry.Register(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered OCR server extraction engine",
			zap.String("base_url", cfg.Engines.OCRServer.BaseURL))
	}

	if cfg.Engines.Vision.Enabled() {
		adapter := vision.NewCloudVisionAdapter("cloud-vision", engines.AdapterConfig{
			APIKey:     cfg.Engines.Vision.APIKey,
			BaseURL:    cfg.Engines.Vision.BaseURL,
			Timeout:    cfg.Engines.Vision.Timeout,
			CostWeight: cfg.Engines.Vision.CostPerPage,
		})
		if err := registry.Register(adapter); err != nil {
			return err
		}
		d.Logger.Info("registered cloud vision extraction engine")
	}

	if registry.Count() == 0 {
		d.Logger.Warn("no engines configured")
	}

	d.EngineRegistry = registry
	return nil
}

// initRouters builds the ledger, estimator and both routers
func (d *Dependencies) initRouters(cfg *config.Config) {
	d.Ledger = usage.NewLedger()
	d.Estimator = costing.NewEstimator()

	d.GenerationRouter = generation.NewRouter(d.EngineRegistry, d.Ledger, d.Estimator, d.Logger)
	d.ExtractionRouter = extraction.NewRouter(d.EngineRegistry, d.Ledger, d.Estimator, extraction.Config{
		QualityThreshold: cfg.Extraction.QualityThreshold,
		FreeAllowance:    cfg.Extraction.FreeAllowance,
	}, d.Logger)
}

// initUsageArchive opens the optional PostgreSQL archive and starts its
// cleanup worker
func (d *Dependencies) initUsageArchive(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.URL == "" {
		d.Logger.Info("usage archive disabled, no database configured")
		return nil
	}

	db, err := usagestore.Open(ctx, cfg.Database.URL, usagestore.ConnectionOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}

	store := usagestore.NewStore(db, d.Logger)
	if err := store.InitSchema(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	d.cancelWorkers = cancel
	go store.StartCleanupWorker(workerCtx, cfg.Database.CleanupInterval, cfg.Database.Retention())

	d.DB = db
	d.UsageArchive = store
	d.Logger.Info("usage archive initialized")
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.SigningKey == "" {
		d.Logger.Warn("auth signing key not configured, protected routes will reject all requests")
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}

	validator := auth.NewValidator(cfg.Auth.SigningKey, cfg.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("token validator initialized", zap.String("issuer", cfg.Auth.Issuer))
}

// rejectAllValidator rejects all tokens (used when no signing key is set)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*auth.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.cancelWorkers != nil {
		d.cancelWorkers()
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
