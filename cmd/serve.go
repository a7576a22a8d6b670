package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/instrumentation"
	"github.com/teemow/mcp-caldav/internal/logging"
	"github.com/teemow/mcp-caldav/internal/resources"
	"github.com/teemow/mcp-caldav/internal/server"
	"github.com/teemow/mcp-caldav/internal/tools/calendar_tools"
)

const (
	serverName      = "mcp-caldav"
	connectTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
	startupTimeout  = 5 * time.Second
)

// serveOptions holds the resolved settings of the serve command
type serveOptions struct {
	transport      string
	httpAddr       string
	envFile        string
	caldav         CalDAVConfig
	readOnly       bool
	debug          bool
	logFormat      string
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server exposing CalDAV calendar tools.

The CalDAV connection is configured with flags or the environment variables
CALDAV_URL, CALDAV_USERNAME and CALDAV_PASSWORD (or CALDAV_TOKEN). Variables
can also be loaded from a .env file. Flags take precedence over the
environment.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - sse: Server-Sent Events over HTTP
  - streamable-http: Streamable HTTP transport`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return runServe(opts)
		},
	}

	opts.addFlags(cmd)

	return cmd
}

// addFlags binds the serve flags to o
func (o *serveOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.transport, "transport", server.TransportStdio, "Transport type: stdio, sse or streamable-http")
	f.StringVar(&o.httpAddr, "http-addr", ":8000", "HTTP server address (for sse and streamable-http transports)")
	f.StringVar(&o.envFile, "env-file", "", "Load environment variables from this file (default: .env if present)")
	f.StringVar(&o.caldav.URL, "caldav-url", "", "CalDAV server URL. Can also use CALDAV_URL env var.")
	f.StringVar(&o.caldav.Username, "caldav-username", "", "CalDAV username. Can also use CALDAV_USERNAME env var.")
	f.StringVar(&o.caldav.Password, "caldav-password", "", "CalDAV password or app password. Can also use CALDAV_PASSWORD env var.")
	f.StringVar(&o.caldav.Token, "caldav-token", "", "Bearer token used instead of username and password. Can also use CALDAV_TOKEN env var.")
	f.StringVar(&o.caldav.Timezone, "timezone", "", "IANA timezone for times without offset (default: local). Can also use CALDAV_TIMEZONE env var.")
	f.DurationVar(&o.caldav.Timeout, "caldav-timeout", calendar.DefaultTimeout, "Timeout of a single CalDAV request. Can also use CALDAV_TIMEOUT env var.")
	f.BoolVar(&o.readOnly, "read-only", false, "Disable the tools that create, update or delete events. Can also use CALDAV_READ_ONLY env var.")
	f.BoolVar(&o.debug, "debug", false, "Enable debug logging. Can also use MCP_VERBOSE env var.")
	f.StringVar(&o.logFormat, "log-format", logging.FormatText, "Log format: text or json. Can also use LOG_FORMAT env var.")
	f.BoolVar(&o.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (HTTP transports only). Can also use METRICS_ENABLED env var.")
	f.StringVar(&o.metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")
}

// resolve loads the env file and fills every setting whose flag was not
// given from the environment.
func (o *serveOptions) resolve(cmd *cobra.Command) error {
	if err := loadEnvFile(o.envFile); err != nil {
		return err
	}

	stringSetting(cmd, "caldav-url", &o.caldav.URL, envCalDAVURL)
	stringSetting(cmd, "caldav-username", &o.caldav.Username, envCalDAVUsername, envYandexUsername)
	stringSetting(cmd, "caldav-password", &o.caldav.Password, envCalDAVPassword, envYandexPassword)
	stringSetting(cmd, "caldav-token", &o.caldav.Token, envCalDAVToken)
	stringSetting(cmd, "timezone", &o.caldav.Timezone, envCalDAVTimezone)
	stringSetting(cmd, "log-format", &o.logFormat, envLogFormat)
	stringSetting(cmd, "metrics-addr", &o.metricsAddr, envMetricsAddr)

	if err := durationSetting(cmd, "caldav-timeout", &o.caldav.Timeout, envCalDAVTimeout); err != nil {
		return err
	}
	for _, s := range []struct {
		flag  string
		value *bool
		env   string
	}{
		{"read-only", &o.readOnly, envReadOnly},
		{"debug", &o.debug, envVerbose},
		{"metrics-enabled", &o.metricsEnabled, envMetricsEnabled},
	} {
		if err := boolSetting(cmd, s.flag, s.value, s.env); err != nil {
			return err
		}
	}

	switch o.transport {
	case server.TransportStdio, server.TransportSSE, server.TransportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s, %s)",
			o.transport, server.TransportStdio, server.TransportSSE, server.TransportStreamableHTTP)
	}
	if o.logFormat != logging.FormatText && o.logFormat != logging.FormatJSON {
		return fmt.Errorf("unsupported log format: %s (supported: %s, %s)", o.logFormat, logging.FormatText, logging.FormatJSON)
	}
	return nil
}

func runServe(opts *serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the MCP stream in stdio mode, so logs always go to stderr
	logger := logging.NewLogger(os.Stderr, opts.debug, opts.logFormat)
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	serverContext, err := newServerContext(shutdownCtx, opts, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("Error during server context shutdown", logging.Err(err))
		}
	}()

	// Set metrics and audit logger on server context for tool instrumentation
	if provider.Enabled() {
		serverContext.SetMetrics(metrics)
		serverContext.SetAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging))
	}

	if opts.transport != server.TransportStdio && opts.metricsEnabled &&
		provider.Enabled() && instrConfig.MetricsExporter == instrumentation.ExporterPrometheus {
		metricsServer, err := startMetricsServer(opts.metricsAddr, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("Error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	mcpSrv := mcpserver.NewMCPServer(serverName, version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithHooks(server.SessionHooks(serverContext)),
		mcpserver.WithRecovery(),
	)

	if err := calendar_tools.RegisterCalendarTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register CalDAV tools: %w", err)
	}
	resources.RegisterCalDAVResources(mcpSrv, serverContext)

	if opts.readOnly {
		logger.Info("Starting server in READ-ONLY mode (create, update and delete tools are disabled)")
	}

	switch opts.transport {
	case server.TransportStdio:
		return runStdioServer(mcpSrv)
	default:
		return runHTTPServer(shutdownCtx, mcpSrv, serverContext, opts, logger)
	}
}

// newServerContext builds the CalDAV client when the connection settings
// are complete. Otherwise the server still starts and every tool call
// reports the missing variables.
func newServerContext(ctx context.Context, opts *serveOptions, logger *slog.Logger, metrics *instrumentation.Metrics) (*server.ServerContext, error) {
	serverOpts := server.Options{
		ReadOnly: opts.readOnly,
		Logger:   logger,
	}

	if missing := opts.caldav.Missing(); len(missing) > 0 {
		logger.Warn("CalDAV client not configured", "missing", missing)
		serverOpts.MissingConfig = missing
		return server.NewServerContext(ctx, serverOpts), nil
	}

	clientConfig, err := opts.caldav.ClientConfig(logger, metrics)
	if err != nil {
		return nil, err
	}
	client, err := calendar.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}
	logger.Debug("CalDAV client configured", "caldav", opts.caldav)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		// Tools retry the connection on their next call
		logger.Warn("Initial CalDAV connection failed", logging.Err(err))
	}

	serverOpts.Client = client
	return server.NewServerContext(ctx, serverOpts), nil
}

func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("Metrics server started", "addr", metricsServer.Addr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(startupTimeout):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, opts *serveOptions, logger *slog.Logger) error {
	httpServer, err := server.NewHTTPServer(mcpSrv, opts.transport, sc)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	ready := make(chan struct{})
	go func() {
		defer close(serverDone)
		if err := httpServer.StartWithReadySignal(opts.httpAddr, ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ready:
		logger.Info("MCP server listening",
			"transport", opts.transport,
			"addr", httpServer.Addr(),
			"health", "/healthz, /readyz, /healthz/detailed")
	case err := <-serverDone:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
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
