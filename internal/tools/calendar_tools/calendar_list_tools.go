package calendar_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/instrumentation"
	"github.com/teemow/mcp-caldav/internal/server"
	"github.com/teemow/mcp-caldav/internal/tools/common"
)

func calendarListTools(sc *server.ServerContext) []mcpserver.ServerTool {
	listCalendarsTool := mcp.NewTool("caldav_list_calendars",
		mcp.WithDescription("List all available calendars with their index, uid, name and URL"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	return []mcpserver.ServerTool{
		newServerTool(sc, listCalendarsTool, instrumentation.OperationListCalendars, handleListCalendars),
	}
}

func handleListCalendars(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	return common.JSONResult(calendars)
}
