package common

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// JSONResult renders v as indented JSON text
func JSONResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ErrorResult renders err as a tool error whose text is {"error": "<message>"}
func ErrorResult(err error) *mcp.CallToolResult {
	return ErrorMessage(err.Error())
}

// ErrorMessage is ErrorResult for a plain message
func ErrorMessage(msg string) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(map[string]string{"error": msg}, "", "  ")
	return mcp.NewToolResultError(string(data))
}

// ResultText returns the text of the first text content of result
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		if text, ok := content.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
