package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/internal/telemetry"
	"github.com/octopus-bim/octopus/pkg/api"
	"github.com/octopus-bim/octopus/pkg/api/handlers"
	"github.com/octopus-bim/octopus/pkg/auth"
	"github.com/octopus-bim/octopus/pkg/bim"
	"github.com/octopus-bim/octopus/pkg/config"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/oauth"
	"github.com/octopus-bim/octopus/pkg/processing"
	"github.com/octopus-bim/octopus/pkg/queue"
	"github.com/octopus-bim/octopus/pkg/registry"
	"github.com/octopus-bim/octopus/pkg/storage"
	"github.com/octopus-bim/octopus/pkg/storage/disk"
	"github.com/octopus-bim/octopus/pkg/storage/s3"
	"github.com/octopus-bim/octopus/pkg/store"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Octopus server",
	Long: `Start the Octopus server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/octopus/config.yaml.

Examples:
  # Start with default config
  octopus start

  # Start with custom config file
  octopus start --config /etc/octopus/config.yaml

  # Start with environment variable overrides
  OCTOPUS_LOGGING_LEVEL=DEBUG octopus start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	fmt.Println("Octopus - Self-hostable BIM backend")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	// Persistence
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() { _ = st.Close() }()
	logger.Info("Store initialized", "provider", cfg.Database.Type)

	// Byte storage
	provider, err := newStorageProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage provider: %w", err)
	}
	logger.Info("Storage provider initialized", "provider", provider.ProviderID())

	// Auth
	signingKey := cfg.Auth.SigningKey
	if signingKey == "" {
		// Only reachable in development mode; oidc validation requires a key.
		signingKey, err = auth.GenerateClientSecret()
		if err != nil {
			return fmt.Errorf("failed to generate ephemeral signing key: %w", err)
		}
		logger.Warn("No signing key configured; using an ephemeral key. Tokens will not survive restarts.")
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey:     signingKey,
		Issuer:         cfg.OAuth.Issuer,
		AccessTokenTTL: cfg.OAuth.AccessTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	authz := auth.NewAuthorizer(st)

	// Services
	var defaultQuota *int64
	if cfg.Quota.WorkspaceBytes > 0 {
		q := cfg.Quota.WorkspaceBytes
		defaultQuota = &q
	}
	registrySvc := registry.NewService(st, provider, registry.Config{
		ReserveTTL:        cfg.Uploads.ReserveTTL,
		SweepInterval:     cfg.Uploads.SweepInterval,
		DefaultQuotaBytes: defaultQuota,
	})
	bimSvc := bim.NewService(st, registrySvc)
	oauthSvc := oauth.NewService(st, tokens, authz, oauth.Config{CodeTTL: cfg.OAuth.CodeTTL})

	// Processing pipeline
	bus := processing.NewBus()
	jobQueue := queue.NewMemoryQueue(cfg.Processing.QueueSize)
	defer jobQueue.Close()

	converter := &processing.ExecConverter{
		Command: cfg.Processing.ConverterCommand,
		Args:    cfg.Processing.ConverterArgs,
	}
	handlerRegistry := processing.Registry{
		models.JobTypeConvertWexBim:     processing.NewConvertWexBimHandler(st, provider, converter, bus),
		models.JobTypeExtractProperties: processing.NewExtractPropertiesHandler(st, provider, bus),
	}
	pool := processing.NewPool(st, jobQueue, handlerRegistry, bus, processing.PoolConfig{
		Workers:     cfg.Processing.Workers,
		MaxAttempts: cfg.Processing.MaxAttempts,
		BackoffBase: cfg.Processing.BackoffBase,
		BackoffMax:  cfg.Processing.BackoffMax,
	})
	dispatcher := queue.NewDispatcher(st, jobQueue, queue.DispatcherConfig{
		PollInterval: cfg.Processing.PollInterval,
	})

	// Jobs stranded inflight by a previous crash go back to pending.
	if err := dispatcher.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover stranded jobs: %w", err)
	}

	go pool.Run(ctx)
	go dispatcher.Run(ctx)
	go registrySvc.RunSweeper(ctx)
	logger.Info("Processing pipeline started",
		"workers", cfg.Processing.Workers,
		"queue_size", cfg.Processing.QueueSize,
		"converter", cfg.Processing.ConverterCommand)

	// HTTP server
	router := api.NewRouter(api.RouterDeps{
		Store:    st,
		Authz:    authz,
		Tokens:   tokens,
		Registry: registrySvc,
		BIM:      bimSvc,
		OAuth:    oauthSvc,
		Bus:      bus,
		AuthMode: cfg.Auth.Mode,
		DevPrincipal: &auth.Principal{
			Subject:     cfg.Auth.DevelopmentSubject,
			Email:       cfg.Auth.DevelopmentEmail,
			DisplayName: cfg.Auth.DevelopmentDisplayName,
		},
		RequestTimeout: cfg.API.RequestTimeout,
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		ReadinessChecks: map[string]handlers.ReadinessCheck{
			"database": func(r *http.Request) error {
				return st.Ping(r.Context())
			},
		},
	})
	server := api.NewServer(api.ServerConfig{
		Host:            cfg.API.Host,
		Port:            cfg.API.Port,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, router)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// newStorageProvider creates the configured byte storage backend.
func newStorageProvider(ctx context.Context, cfg *config.Config) (storage.Provider, error) {
	switch cfg.Storage.Provider {
	case "disk":
		return disk.New(cfg.Storage.Disk)
	case "s3":
		return s3.NewFromConfig(ctx, cfg.Storage.S3)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Storage.Provider)
	}
}
