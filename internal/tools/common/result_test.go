package common

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONResult(t *testing.T) {
	result, err := JSONResult(map[string]interface{}{"success": true, "uid": "event-1"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "{\n  \"success\": true,\n  \"uid\": \"event-1\"\n}", ResultText(result))

	_, err = JSONResult(make(chan int))
	assert.Error(t, err)
}

func TestErrorResult(t *testing.T) {
	result := ErrorResult(errors.New("Event with UID abc not found"))
	assert.True(t, result.IsError)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(ResultText(result)), &body))
	assert.Equal(t, map[string]string{"error": "Event with UID abc not found"}, body)
}

func TestResultText(t *testing.T) {
	assert.Empty(t, ResultText(nil))
	assert.Empty(t, ResultText(&mcp.CallToolResult{}))
	assert.Equal(t, "hello", ResultText(mcp.NewToolResultText("hello")))
}
