package server

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	sessionIDPrefix = "mcp-session-"

	// DefaultSessionTimeout is the idle time after which a streamable HTTP
	// session is forgotten
	DefaultSessionTimeout = 24 * time.Hour

	sessionCleanupInterval = 10 * time.Minute
)

// sessionInfo tracks session metadata for cleanup
type sessionInfo struct {
	created    time.Time
	lastAccess time.Time
}

// SessionIDManager issues and validates the Mcp-Session-Id values of the
// streamable HTTP transport. Sessions idle for longer than the timeout are
// reported as terminated so that the client initializes a new one.
type SessionIDManager struct {
	mu             sync.Mutex
	sessions       map[string]*sessionInfo
	sessionTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	stopOnce      sync.Once
}

// NewSessionIDManager creates a session ID manager with the default timeout
func NewSessionIDManager(logger *slog.Logger) *SessionIDManager {
	return NewSessionIDManagerWithTimeout(DefaultSessionTimeout, logger)
}

// NewSessionIDManagerWithTimeout creates a session ID manager and starts the
// cleanup goroutine. Call Stop to release it.
func NewSessionIDManagerWithTimeout(timeout time.Duration, logger *slog.Logger) *SessionIDManager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &SessionIDManager{
		sessions:       make(map[string]*sessionInfo),
		sessionTimeout: timeout,
		logger:         logger,
		now:            time.Now,
		cleanupTicker:  time.NewTicker(sessionCleanupInterval),
		cleanupDone:    make(chan struct{}),
	}

	go m.cleanupExpiredSessions()

	return m
}

// Generate creates and registers a new session ID
func (m *SessionIDManager) Generate() string {
	sessionID := sessionIDPrefix + uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sessions[sessionID] = &sessionInfo{created: now, lastAccess: now}
	return sessionID
}

// Validate reports unknown and expired sessions as terminated. A malformed
// ID is an error.
func (m *SessionIDManager) Validate(sessionID string) (isTerminated bool, err error) {
	if err := validateSessionID(sessionID); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.sessions[sessionID]
	if !ok {
		return true, nil
	}
	now := m.now()
	if m.expired(info, now) {
		delete(m.sessions, sessionID)
		return true, nil
	}
	info.lastAccess = now
	return false, nil
}

// Terminate removes a session when the client ends it
func (m *SessionIDManager) Terminate(sessionID string) (isNotAllowed bool, err error) {
	if err := validateSessionID(sessionID); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return false, nil
}

// ActiveSessions returns the number of sessions that have not expired
func (m *SessionIDManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count := 0
	for _, info := range m.sessions {
		if !m.expired(info, now) {
			count++
		}
	}
	return count
}

func (m *SessionIDManager) expired(info *sessionInfo, now time.Time) bool {
	return m.sessionTimeout > 0 && now.Sub(info.lastAccess) > m.sessionTimeout
}

func validateSessionID(sessionID string) error {
	raw, ok := strings.CutPrefix(sessionID, sessionIDPrefix)
	if !ok {
		return fmt.Errorf("invalid session id: %s", sessionID)
	}
	if _, err := uuid.Parse(raw); err != nil {
		return fmt.Errorf("invalid session id: %s", sessionID)
	}
	return nil
}

// removeExpired deletes expired sessions and returns how many were removed
func (m *SessionIDManager) removeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expiredCount := 0
	for sessionID, info := range m.sessions {
		if m.expired(info, now) {
			delete(m.sessions, sessionID)
			expiredCount++
		}
	}
	return expiredCount
}

// cleanupExpiredSessions periodically removes expired sessions
func (m *SessionIDManager) cleanupExpiredSessions() {
	for {
		select {
		case <-m.cleanupTicker.C:
			if expiredCount := m.removeExpired(); expiredCount > 0 {
				m.logger.Info("Cleaned up expired sessions", "count", expiredCount)
			}
		case <-m.cleanupDone:
			return
		}
	}
}

// Stop stops the session cleanup goroutine
func (m *SessionIDManager) Stop() {
	m.stopOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.cleanupDone)
	})
}
