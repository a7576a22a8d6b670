package calendar_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/logging"
	"github.com/teemow/mcp-caldav/internal/server"
	"github.com/teemow/mcp-caldav/internal/tools/common"
)

// toolHandler handles a call once the CalDAV client is available.
// A returned error is reported to the caller as a tool error.
type toolHandler func(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error)

// RegisterCalendarTools registers all CalDAV tools with the MCP server.
// The tools that modify calendars are left out in read-only mode.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	tools := Tools(sc)
	s.AddTools(tools...)

	sc.Logger().Info("Registered CalDAV tools",
		"count", len(tools),
		"read_only", sc.ReadOnly(),
		"configured", sc.Configured())
	return nil
}

// Tools returns the CalDAV tools available for sc
func Tools(sc *server.ServerContext) []mcpserver.ServerTool {
	var tools []mcpserver.ServerTool
	tools = append(tools, calendarListTools(sc)...)
	tools = append(tools, eventReadTools(sc)...)
	tools = append(tools, agendaTools(sc)...)
	if !sc.ReadOnly() {
		tools = append(tools, eventWriteTools(sc)...)
	}
	return tools
}

// newServerTool binds a handler to a tool definition. The handler runs
// inside the instrumented wrapper and only once the CalDAV client is
// configured.
func newServerTool(sc *server.ServerContext, tool mcp.Tool, operation string, handler toolHandler) mcpserver.ServerTool {
	wrapped := common.InstrumentedToolHandler(tool.Name, operation, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			client, err := sc.CalendarClient()
			if err != nil {
				return common.ErrorResult(err), nil
			}

			result, err := handler(ctx, request.GetArguments(), client)
			if err != nil {
				sc.Logger().Debug("Tool call failed", logging.Tool(tool.Name), logging.Err(err))
				return common.ErrorResult(err), nil
			}
			return result, nil
		})

	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: mcpserver.ToolHandlerFunc(wrapped),
	}
}

func withCalendarIndex() mcp.ToolOption {
	return mcp.WithNumber("calendar_index",
		mcp.Description("Index of the calendar as returned by caldav_list_calendars (default: 0)"),
		mcp.DefaultNumber(0),
		mcp.Min(0),
	)
}

// timeArg parses an optional ISO 8601 argument in the client's location.
// isDate reports whether the value carried no time of day.
func timeArg(args map[string]interface{}, key string, loc *time.Location) (t time.Time, isDate bool, err error) {
	value, err := common.GetOptionalString(args, key)
	if err != nil || value == nil || strings.TrimSpace(*value) == "" {
		return time.Time{}, false, err
	}
	t, isDate, err = calendar.ParseDateTime(*value, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s: %w", key, err)
	}
	return t, isDate, nil
}

func optionalTimeArg(args map[string]interface{}, key string, loc *time.Location) (*time.Time, error) {
	t, _, err := timeArg(args, key, loc)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// rangeArgs reads start_date and end_date. A date-only end_date covers
// the whole day.
func rangeArgs(args map[string]interface{}, loc *time.Location) (start, end time.Time, err error) {
	start, _, err = timeArg(args, "start_date", loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, endIsDate, err := timeArg(args, "end_date", loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if endIsDate {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}
