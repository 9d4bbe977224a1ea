package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gdrive-mcp/internal/google"
	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/logging"
	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
	"github.com/teemow/gdrive-mcp/internal/resources"
	"github.com/teemow/gdrive-mcp/internal/server"
	"github.com/teemow/gdrive-mcp/internal/tools/drive_tools"
	"github.com/teemow/gdrive-mcp/internal/tools/sheets_tools"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server to expose Google Drive and Sheets to AI assistants.

Supports two modes:
  - stdio with --auth-mode=local (default): uses the credential file written
    by "gdrive-mcp auth" and refreshes it in the background
  - streamable-http with --auth-mode=remote-jwt: every request must carry a
    bearer token from --issuer, which is exchanged for Google credentials at
    --upstream-issuer

Every setting can also come from the environment, for example MCP_AUTH_ISSUER
or AUTH_MODE. Flags that are set explicitly take precedence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.applyFlags(cmd); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	addServeFlags(cmd)
	return cmd
}

// newLogger writes text to stderr for stdio so stdout stays reserved for
// JSON-RPC, and JSON to stdout for the HTTP transport
func newLogger(cfg Config, stdout, stderr io.Writer) *slog.Logger {
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Transport == transportStdio {
		return slog.New(slog.NewTextHandler(stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(stdout, opts))
}

func runServe(cfg Config) error {
	logger := newLogger(cfg, os.Stdout, os.Stderr)
	slog.SetDefault(logger)

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	metrics := provider.Metrics()
	auditLogger := instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)

	mcpSrv := mcpserver.NewMCPServer("gdrive-mcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	)

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithAuditLogger(auditLogger),
	}

	switch cfg.AuthMode {
	case authModeLocal:
		return runLocal(shutdownCtx, cfg, mcpSrv, logger, metrics, opts)
	default:
		return runRemote(shutdownCtx, cfg, mcpSrv, logger, provider, opts)
	}
}

// runLocal serves stdio with the credential file of the local user
func runLocal(ctx context.Context, cfg Config, mcpSrv *mcpserver.MCPServer, logger *slog.Logger, metrics *instrumentation.Metrics, opts []server.Option) error {
	store, err := google.NewCredentialStore(cfg.CredsDir)
	if err != nil {
		return err
	}
	if !store.Exists() {
		return fmt.Errorf("no credentials found at %s: run 'gdrive-mcp auth' first", store.Path())
	}

	var clientID string
	conf, err := google.LoadClientConfig(store.Dir(), google.DefaultOAuthScopes...)
	if err != nil {
		logger.Warn("OAuth keyfile unavailable, background refresh is disabled", logging.Err(err))
	} else {
		clientID = conf.ClientID
		refresher := google.NewRefresher(store, conf,
			google.WithRefreshInterval(cfg.RefreshInterval),
			google.WithRefreshLogger(logging.NewSlogAdapter(logger)),
			google.WithRefreshMetrics(metrics),
		)
		go refresher.Run(ctx)
	}

	authenticator := google.NewLocalAuthenticator(store, clientID, logger)
	go func() {
		if err := authenticator.Watch(ctx); err != nil {
			logger.Warn("Credential file watcher stopped", logging.Err(err))
		}
	}()

	opts = append(opts, server.WithAuthenticator(authenticator))
	serverContext, err := server.NewServerContext(ctx, google.NewLocalSource(store), opts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()

	if err := registerAllTools(mcpSrv, serverContext, cfg.ReadOnly); err != nil {
		return err
	}

	logger.Info("Starting gdrive-mcp MCP server", "transport", cfg.Transport, "creds_dir", store.Dir())
	return runStdioServer(ctx, mcpSrv)
}

// runRemote serves streamable HTTP behind the bearer token gate
func runRemote(ctx context.Context, cfg Config, mcpSrv *mcpserver.MCPServer, logger *slog.Logger, provider *instrumentation.Provider, opts []server.Option) error {
	stack, err := oauth.NewStack(cfg.authConfig(logger, provider.Metrics()))
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Warn("Error closing authentication stack", logging.Err(err))
		}
	}()
	go stack.Run(ctx)

	credentials := google.NewExchangeSource(stack.Exchanger, stack.Config.Audience)
	serverContext, err := server.NewServerContext(ctx, credentials, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()

	if err := registerAllTools(mcpSrv, serverContext, cfg.ReadOnly); err != nil {
		return err
	}

	if cfg.MetricsEnabled && provider.PrometheusHandler() != nil {
		metricsServer, err := startMetricsServer(cfg.MetricsAddr, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdown); err != nil {
				logger.Warn("Error shutting down metrics server", logging.Err(err))
			}
		}()
	}

	health := server.NewHealthChecker(serverContext)
	health.AddCheck("issuer", stack.Ready)

	httpServer, err := server.NewOAuthHTTPServer(mcpSrv, server.HTTPServerConfig{
		Addr:    cfg.HTTPAddr,
		Stack:   stack,
		Health:  health,
		Metrics: provider.Metrics(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	health.SetReady(true)
	logger.Info("Starting gdrive-mcp MCP server",
		"transport", cfg.Transport,
		"addr", cfg.HTTPAddr,
		"mcp_path", stack.Config.MCPPath,
		logging.Issuer(cfg.Issuer))

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
		health.SetReady(false)
		shutdown, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdown); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", logging.Err(err))
		}
	}()
	return metricsServer, nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Drive",
			register: func() error {
				return drive_tools.RegisterDriveTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name: "Sheets",
			register: func() error {
				return sheets_tools.RegisterSheetsTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name: "Drive Resources",
			register: func() error {
				return resources.RegisterDriveResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}
