package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sonopix/config"
	"sonopix/features"
	"sonopix/logging"
	"sonopix/observability"
	"sonopix/pkg/crypto"
	"sonopix/pkg/pipeline"
	"sonopix/pkg/repository"
	"sonopix/pkg/repository/postgres"
	"sonopix/services/api"
	"sonopix/services/jobs"
)

var (
	// Command-line flags
	configFile = flag.String("config", "", "Path to configuration file")
	version    = flag.Bool("version", false, "Print version information")
)

const (
	ServiceName = "sonopix-server"

	limiterCleanupInterval = 5 * time.Minute
)

func main() {
	flag.Parse()

	// Initialize logger
	logger := logging.GetLogger()

	// Print version and exit if requested
	if *version {
		fmt.Printf("%s version %s (built %s)\n", ServiceName, features.BuildVersion, features.BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		logger.Error("Failed to configure logging: %v", err)
		os.Exit(1)
	}

	// Print build and feature flag information
	logger.PrintBuildInfo(observability.ServiceName(cfg), features.BuildVersion)

	// Log configuration (with sensitive data masked)
	logConfiguration(cfg.MaskSensitive(), logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.Init(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}

	store, err := openJobStore(cfg, logger)
	if err != nil {
		repo.Close()
		return err
	}

	engine, err := pipeline.New(crypto.NewDefaultProvider(), pipeline.OptionsFromConfig(cfg, logger))
	if err != nil {
		store.Close()
		repo.Close()
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	manager := jobs.NewManager(jobs.Config{
		Store:         store,
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		Logger:        logger,
	})

	server, err := api.NewServer(api.Options{
		Config: cfg,
		Engine: engine,
		Jobs:   manager,
		Repo:   repo,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	server.PrintStartupInfo()
	go server.CleanupLimiters(ctx, limiterCleanupInterval)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Startup("Starting %s version %s", ServiceName, features.BuildVersion)
		logger.Startup("Environment: %s", cfg.Service.Environment)
		logger.Startup("API server listening on %s (TLS: %v)", httpServer.Addr, cfg.Server.TLS.Enabled)

		var err error
		if cfg.Server.TLS.Enabled {
			err = httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Startup("Shutting down %s gracefully...", ServiceName)
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulStop)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("jobs: %w", err))
	}
	if err := store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("job store: %w", err))
	}
	if err := repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("repository: %w", err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown incomplete: %w", errors.Join(errs...))
	}
	logger.Startup("%s stopped", ServiceName)
	return nil
}

// openRepository connects the audit log, or returns a no-op repository when
// no database is configured
func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*repository.Repository, error) {
	dbURL := cfg.GetDatabaseURL()
	if dbURL == "" {
		logger.Startup("Audit log disabled (no database configured)")
		return repository.NewNoOpRepository(), nil
	}

	logger.Startup("Connecting to database: %s", cfg.MaskSensitive().GetDatabaseURL())
	repo, err := postgres.NewRepository(ctx, dbURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Startup("Database connection successful")
	return repo, nil
}

// openJobStore picks the job state backend. A Redis store that cannot be
// reached falls back to memory so a single instance still serves jobs.
func openJobStore(cfg *config.Config, logger *logging.Logger) (jobs.Store, error) {
	if cfg.Jobs.Store != "redis" {
		logger.Startup("Using in-memory job store (ttl: %v)", cfg.Jobs.TTL)
		return jobs.NewMemoryStore(cfg.Jobs.TTL), nil
	}

	logger.Startup("Initializing Redis job store at %s", cfg.Jobs.Redis.Address)
	store, err := jobs.NewRedisStore(jobs.RedisStoreConfig{
		Addr:     cfg.Jobs.Redis.Address,
		Password: cfg.Jobs.Redis.Password,
		DB:       cfg.Jobs.Redis.DB,
		Prefix:   cfg.Jobs.Redis.Prefix,
		TTL:      cfg.Jobs.TTL,
	})
	if err != nil {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("failed to initialize Redis job store: %w", err)
		}
		logger.Warn("Failed to initialize Redis job store: %v", err)
		logger.Warn("Falling back to in-memory job store")
		return jobs.NewMemoryStore(cfg.Jobs.TTL), nil
	}
	logger.Startup("Redis job store initialized successfully")
	return store, nil
}

// logConfiguration logs the configuration with sensitive data masked
func logConfiguration(cfg *config.Config, logger *logging.Logger) {
	logger.Startup("Configuration loaded successfully")
	logger.Info("Service: %s v%s (%s)", cfg.Service.Name, cfg.Service.Version, cfg.Service.Environment)
	logger.Info("Server: %s:%d (timeouts: read=%v write=%v idle=%v)",
		cfg.Server.Host, cfg.Server.Port,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)
	logger.Info("Pipeline: format=%s strict_decode=%v", cfg.Pipeline.Format, cfg.Pipeline.StrictDecode)
	logger.Info("Jobs: store=%s max_concurrent=%d ttl=%v", cfg.Jobs.Store, cfg.Jobs.MaxConcurrent, cfg.Jobs.TTL)
	if cfg.Jobs.Store == "redis" {
		logger.Info("Redis: %s (DB: %d)", cfg.Jobs.Redis.Address, cfg.Jobs.Redis.DB)
	}
	if cfg.Database.Driver != "" {
		logger.Info("Database: %s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	}
	logger.Info("Logging mode: %s", logging.LoggingMode())

	if cfg.IsDevelopment() {
		logger.Info("Running in DEVELOPMENT mode")
	} else if cfg.IsProduction() {
		logger.Info("Running in PRODUCTION mode")
		logger.Info("  - TLS: %v", cfg.Server.TLS.Enabled)
		logger.Info("  - Rate limiting: %v", cfg.Security.RateLimiting.Enabled)
		logger.Info("  - Metrics: %v", cfg.Observability.Metrics.Enabled)
		logger.Info("  - Tracing: %v", cfg.Observability.Tracing.Enabled)
	}
}
