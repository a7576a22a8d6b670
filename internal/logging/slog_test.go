package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		attr  slog.Attr
		key   string
		value string
	}{
		{name: "operation", attr: Operation("create"), key: KeyOperation, value: "create"},
		{name: "tool", attr: Tool("caldav_create_event"), key: KeyTool, value: "caldav_create_event"},
		{name: "calendar", attr: Calendar("Work"), key: KeyCalendar, value: "Work"},
		{name: "event uid", attr: EventUID("event-123"), key: KeyEventUID, value: "event-123"},
		{name: "server", attr: Server("caldav.example.com"), key: KeyServer, value: "caldav.example.com"},
		{name: "status", attr: Status(StatusSuccess), key: KeyStatus, value: "success"},
		{name: "error", attr: Err(errors.New("boom")), key: KeyError, value: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.value, tt.attr.Value.String())
		})
	}
}

func TestErr_Nil(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("done", Err(nil))

	assert.NotContains(t, buf.String(), KeyError)
}

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithServer(WithTool(WithOperation(logger, "list"), "caldav_get_events"), "caldav.example.com").Info("listed")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "list", record[KeyOperation])
	assert.Equal(t, "caldav_get_events", record[KeyTool])
	assert.Equal(t, "caldav.example.com", record[KeyServer])
}

func TestAnonymizeUser(t *testing.T) {
	assert.Empty(t, AnonymizeUser(""))

	hash := AnonymizeUser("jane@example.com")
	assert.Len(t, hash, 21)
	assert.True(t, strings.HasPrefix(hash, "user:"))
	assert.Equal(t, hash, AnonymizeUser("jane@example.com"))
	assert.NotEqual(t, hash, AnonymizeUser("john@example.com"))

	attr := UserHash("jane@example.com")
	assert.Equal(t, KeyUserHash, attr.Key)
	assert.Equal(t, hash, attr.Value.String())
}

func TestSanitizeSecret(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeSecret(""))
	assert.Equal(t, "[secret:6 chars]", SanitizeSecret("hunter"))
	assert.NotContains(t, SanitizeSecret("app-password-123"), "app")
}

func TestNewLogger(t *testing.T) {
	t.Run("text info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, false, FormatText)
		logger.Debug("hidden")
		logger.Info("shown", "calendar", "Work")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=shown")
		assert.Contains(t, buf.String(), "calendar=Work")
	})

	t.Run("json debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, true, FormatJSON)
		logger.Debug("visible")

		var record map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "visible", record["msg"])
		assert.Equal(t, "DEBUG", record["level"])
	})
}
