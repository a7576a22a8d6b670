package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mcp-caldav/internal/instrumentation"
)

// Transport names accepted by NewHTTPServer and the serve command.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

const (
	sseEndpoint     = "/sse"
	messageEndpoint = "/message"
	mcpEndpoint     = "/mcp"
)

// HTTPServer serves an MCP server over SSE or streamable HTTP together
// with the health endpoints.
type HTTPServer struct {
	mcpServer *server.MCPServer
	transport string
	health    *HealthChecker
	sc        *ServerContext
	// sessions is only set for the streamable HTTP transport
	sessions *SessionIDManager

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewHTTPServer creates an HTTP server for the given transport
func NewHTTPServer(mcpServer *server.MCPServer, transport string, sc *ServerContext) (*HTTPServer, error) {
	switch transport {
	case TransportSSE, TransportStreamableHTTP:
	default:
		return nil, fmt.Errorf("unsupported HTTP transport: %s (supported: %s, %s)", transport, TransportSSE, TransportStreamableHTTP)
	}

	s := &HTTPServer{
		mcpServer: mcpServer,
		transport: transport,
		health:    NewHealthChecker(sc),
		sc:        sc,
	}
	if transport == TransportStreamableHTTP {
		var logger *slog.Logger
		if sc != nil {
			logger = sc.Logger()
		}
		s.sessions = NewSessionIDManager(logger)
	}
	return s, nil
}

// Health returns the health checker backing /healthz and /readyz
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Handler builds the HTTP handler with the MCP and health endpoints
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.RegisterHealthEndpoints(mux)

	switch s.transport {
	case TransportSSE:
		sseServer := server.NewSSEServer(s.mcpServer,
			server.WithSSEEndpoint(sseEndpoint),
			server.WithMessageEndpoint(messageEndpoint),
		)
		mux.Handle(sseEndpoint, sseServer)
		mux.Handle(messageEndpoint, sseServer)

	case TransportStreamableHTTP:
		mux.Handle(mcpEndpoint, server.NewStreamableHTTPServer(s.mcpServer,
			server.WithEndpointPath(mcpEndpoint),
			server.WithSessionIdManager(s.sessions),
		))
	}

	return s.instrumentationMiddleware(mux)
}

// Start binds addr and serves until Shutdown is called
func (s *HTTPServer) Start(addr string) error {
	return s.StartWithReadySignal(addr, nil)
}

// StartWithReadySignal is like Start but closes ready once the listener is bound.
func (s *HTTPServer) StartWithReadySignal(addr string, ready chan<- struct{}) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// SSE streams are long-lived, so there is no write timeout.
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = listener
	s.mu.Unlock()

	slog.Info("starting MCP HTTP server", "transport", s.transport, "addr", listener.Addr().String())
	if ready != nil {
		close(ready)
	}
	return srv.Serve(listener)
}

// Sessions returns the streamable HTTP session manager, or nil for SSE
func (s *HTTPServer) Sessions() *SessionIDManager {
	return s.sessions
}

// Shutdown marks the server as not ready and drains open connections
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.sessions != nil {
		s.sessions.Stop()
	}

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr returns the bound address, or "" before Start
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// instrumentationMiddleware records request counts and durations per path
func (s *HTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var metrics *instrumentation.Metrics
		if s.sc != nil {
			metrics = s.sc.Metrics()
		}
		if metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// responseWriter captures the status code written by a handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the wrapper
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// SessionHooks returns MCP server hooks that keep the active_sessions gauge
// in sync with connected clients.
func SessionHooks(sc *ServerContext) *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, _ server.ClientSession) {
		if metrics := sc.Metrics(); metrics != nil {
			metrics.IncrementActiveSessions(ctx)
		}
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, _ server.ClientSession) {
		if metrics := sc.Metrics(); metrics != nil {
			metrics.DecrementActiveSessions(ctx)
		}
	})
	return hooks
}
