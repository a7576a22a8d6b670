package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/instrumentation"
)

// ErrNotConfigured is returned by CalendarClient when the CalDAV connection
// settings are incomplete.
var ErrNotConfigured = errors.New("CalDAV client not configured")

// NotConfiguredError lists the configuration variables that are missing.
// It matches ErrNotConfigured with errors.Is.
type NotConfiguredError struct {
	Missing []string
}

func (e *NotConfiguredError) Error() string {
	if len(e.Missing) == 0 {
		return ErrNotConfigured.Error()
	}
	return fmt.Sprintf("%s. Missing variables: %s", ErrNotConfigured, strings.Join(e.Missing, ", "))
}

func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// Options configures a ServerContext
type Options struct {
	// Client is nil when the CalDAV settings are incomplete
	Client *calendar.Client
	// MissingConfig names the variables that prevented Client from being built
	MissingConfig []string
	// ReadOnly disables the tools that modify calendars
	ReadOnly bool
	Logger   *slog.Logger
}

// ServerContext holds the shared state of the MCP server
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	client   *calendar.Client
	missing  []string
	readOnly bool
	logger   *slog.Logger

	mu          sync.RWMutex
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	shutdown    bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, opts Options) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		client:   opts.Client,
		missing:  opts.MissingConfig,
		readOnly: opts.ReadOnly,
		logger:   logger,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Logger returns the server logger
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// CalendarClient returns the CalDAV client, or a *NotConfiguredError when
// the server was started without complete connection settings.
func (sc *ServerContext) CalendarClient() (*calendar.Client, error) {
	if sc.client == nil {
		return nil, &NotConfiguredError{Missing: sc.missing}
	}
	return sc.client, nil
}

// Configured reports whether a CalDAV client is available
func (sc *ServerContext) Configured() bool {
	return sc.client != nil
}

// ReadOnly reports whether calendar modifications are disabled
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// Username returns the CalDAV username, or "" when unconfigured
func (sc *ServerContext) Username() string {
	if sc.client == nil {
		return ""
	}
	return sc.client.Username()
}

// ServerHost returns the CalDAV server host, or "" when unconfigured
func (sc *ServerContext) ServerHost() string {
	if sc.client == nil {
		return ""
	}
	return sc.client.Host()
}

// Metrics returns the metrics recorder, which may be nil
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetMetrics sets the metrics recorder
func (sc *ServerContext) SetMetrics(metrics *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = metrics
}

// AuditLogger returns the audit logger, which may be nil
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// SetAuditLogger sets the audit logger
func (sc *ServerContext) SetAuditLogger(auditLogger *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
