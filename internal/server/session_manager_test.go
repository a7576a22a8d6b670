package server

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSessionManager(t *testing.T, timeout time.Duration) (*SessionIDManager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewSessionIDManagerWithTimeout(timeout, nil)
	m.now = clock.Now
	t.Cleanup(m.Stop)
	return m, clock
}

func TestSessionIDManager_GenerateAndValidate(t *testing.T) {
	m, _ := newTestSessionManager(t, time.Hour)

	first := m.Generate()
	second := m.Generate()
	assert.True(t, strings.HasPrefix(first, "mcp-session-"))
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, m.ActiveSessions())

	terminated, err := m.Validate(first)
	require.NoError(t, err)
	assert.False(t, terminated)
}

func TestSessionIDManager_InvalidIDs(t *testing.T) {
	m, _ := newTestSessionManager(t, time.Hour)

	for _, id := range []string{"", "abc", "mcp-session-not-a-uuid"} {
		_, err := m.Validate(id)
		assert.Error(t, err, id)

		_, err = m.Terminate(id)
		assert.Error(t, err, id)
	}
}

func TestSessionIDManager_UnknownIsTerminated(t *testing.T) {
	m, _ := newTestSessionManager(t, time.Hour)

	terminated, err := m.Validate("mcp-session-6f1c2b9e-3d4a-4c5b-9e8f-0a1b2c3d4e5f")
	require.NoError(t, err)
	assert.True(t, terminated)
}

func TestSessionIDManager_Terminate(t *testing.T) {
	m, _ := newTestSessionManager(t, time.Hour)
	id := m.Generate()

	notAllowed, err := m.Terminate(id)
	require.NoError(t, err)
	assert.False(t, notAllowed)

	terminated, err := m.Validate(id)
	require.NoError(t, err)
	assert.True(t, terminated)
	assert.Equal(t, 0, m.ActiveSessions())
}

func TestSessionIDManager_Expiry(t *testing.T) {
	m, clock := newTestSessionManager(t, time.Hour)
	active := m.Generate()
	idle := m.Generate()

	clock.Advance(45 * time.Minute)
	terminated, err := m.Validate(active)
	require.NoError(t, err)
	assert.False(t, terminated)

	// active was touched 30 minutes ago, idle 75 minutes ago
	clock.Advance(30 * time.Minute)
	assert.Equal(t, 1, m.ActiveSessions())
	assert.Equal(t, 1, m.removeExpired())

	terminated, err = m.Validate(idle)
	require.NoError(t, err)
	assert.True(t, terminated)

	terminated, err = m.Validate(active)
	require.NoError(t, err)
	assert.False(t, terminated)
}

func TestSessionIDManager_StopTwice(t *testing.T) {
	m := NewSessionIDManager(nil)
	m.Stop()
	m.Stop()
}
