package resources

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/server"
)

// calendarsBackend serves a fixed calendar list and no events
type calendarsBackend struct {
	calendars []caldav.Calendar
	err       error
}

func (b *calendarsBackend) FindCurrentUserPrincipal(ctx context.Context) (string, error) {
	return "/principals/jane/", nil
}

func (b *calendarsBackend) FindCalendarHomeSet(ctx context.Context, principal string) (string, error) {
	return "/calendars/jane/", nil
}

func (b *calendarsBackend) FindCalendars(ctx context.Context, homeSet string) ([]caldav.Calendar, error) {
	return b.calendars, b.err
}

func (b *calendarsBackend) QueryCalendar(ctx context.Context, cal string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error) {
	return nil, nil
}

func (b *calendarsBackend) PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error) {
	return nil, errors.New("not supported")
}

func (b *calendarsBackend) RemoveAll(ctx context.Context, name string) error {
	return errors.New("not supported")
}

func newServerContext(t *testing.T, backend calendar.Backend) *server.ServerContext {
	t.Helper()
	client := calendar.NewClientWithBackend(calendar.Config{
		URL:      "https://caldav.example.com/dav/",
		Username: "jane@example.com",
		Location: time.UTC,
	}, backend)

	sc := server.NewServerContext(context.Background(), server.Options{Client: client, ReadOnly: true})
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func readRequest(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func decodeContents(t *testing.T, contents []mcp.ResourceContents) map[string]interface{} {
	t.Helper()
	require.Len(t, contents, 1)
	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", text.MIMEType)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestRegisterCalDAVResources(t *testing.T) {
	sc := server.NewServerContext(context.Background(), server.Options{})
	t.Cleanup(func() { _ = sc.Shutdown() })

	s := mcpserver.NewMCPServer("test", "1.0.0", mcpserver.WithResourceCapabilities(false, false))
	RegisterCalDAVResources(s, sc)

	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), AccountURI)
	assert.Contains(t, string(data), CalendarsURI)
}

func TestHandleAccount(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		sc := newServerContext(t, &calendarsBackend{})

		contents, err := HandleAccount(context.Background(), readRequest(AccountURI), sc)
		require.NoError(t, err)

		out := decodeContents(t, contents)
		assert.Equal(t, true, out["configured"])
		assert.Equal(t, "caldav.example.com", out["server"])
		assert.Equal(t, "UTC", out["timezone"])
		assert.Equal(t, true, out["read_only"])
		assert.NotContains(t, out["user"], "jane")
		assert.Contains(t, out["user"], "user:")
	})

	t.Run("not configured", func(t *testing.T) {
		sc := server.NewServerContext(context.Background(), server.Options{MissingConfig: []string{"CALDAV_URL"}})
		t.Cleanup(func() { _ = sc.Shutdown() })

		contents, err := HandleAccount(context.Background(), readRequest(AccountURI), sc)
		require.NoError(t, err)

		out := decodeContents(t, contents)
		assert.Equal(t, false, out["configured"])
		assert.Equal(t, []interface{}{"CALDAV_URL"}, out["missing_config"])
		assert.Nil(t, out["server"])
	})
}

func TestHandleCalendars(t *testing.T) {
	t.Run("lists calendars", func(t *testing.T) {
		sc := newServerContext(t, &calendarsBackend{calendars: []caldav.Calendar{
			{Path: "/calendars/jane/personal/", Name: "Personal"},
			{Path: "/calendars/jane/work/", Name: "Work"},
		}})

		contents, err := HandleCalendars(context.Background(), readRequest(CalendarsURI), sc)
		require.NoError(t, err)

		out := decodeContents(t, contents)
		assert.Equal(t, float64(2), out["count"])
		calendars, ok := out["calendars"].([]interface{})
		require.True(t, ok)
		require.Len(t, calendars, 2)
		assert.Equal(t, "Personal", calendars[0].(map[string]interface{})["name"])
	})

	t.Run("backend error", func(t *testing.T) {
		sc := newServerContext(t, &calendarsBackend{err: errors.New("503 Service Unavailable")})

		_, err := HandleCalendars(context.Background(), readRequest(CalendarsURI), sc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list calendars")
	})

	t.Run("not configured", func(t *testing.T) {
		sc := server.NewServerContext(context.Background(), server.Options{MissingConfig: []string{"CALDAV_URL"}})
		t.Cleanup(func() { _ = sc.Shutdown() })

		_, err := HandleCalendars(context.Background(), readRequest(CalendarsURI), sc)
		require.ErrorIs(t, err, server.ErrNotConfigured)
	})
}
