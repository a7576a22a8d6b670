package calendar_tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/instrumentation"
	"github.com/teemow/mcp-caldav/internal/server"
	"github.com/teemow/mcp-caldav/internal/tools/common"
)

var errSearchRangeRequired = errors.New("caldav_search_events requires both start_date and end_date arguments")

// agendaTools returns the tools that read events in a time range
func agendaTools(sc *server.ServerContext) []mcpserver.ServerTool {
	getEventsTool := mcp.NewTool("caldav_get_events",
		mcp.WithDescription("Get events from a calendar for a specified period"),
		mcp.WithReadOnlyHintAnnotation(true),
		withCalendarIndex(),
		mcp.WithString("start_date",
			mcp.Description("Start date in ISO format (e.g., '2025-01-20T00:00:00'). Defaults to today 00:00"),
		),
		mcp.WithString("end_date",
			mcp.Description("End date in ISO format (e.g., '2025-01-27T23:59:59'). Defaults to 7 days from start_date"),
		),
		mcp.WithBoolean("include_all_day",
			mcp.Description("Include all-day events (default: true)"),
			mcp.DefaultBool(true),
		),
	)

	todayEventsTool := mcp.NewTool("caldav_get_today_events",
		mcp.WithDescription("Get all events for today"),
		mcp.WithReadOnlyHintAnnotation(true),
		withCalendarIndex(),
	)

	weekEventsTool := mcp.NewTool("caldav_get_week_events",
		mcp.WithDescription("Get all events for the week"),
		mcp.WithReadOnlyHintAnnotation(true),
		withCalendarIndex(),
		mcp.WithBoolean("start_from_today",
			mcp.Description("Start from today (true) or from Monday of the current week (false)"),
			mcp.DefaultBool(true),
		),
	)

	searchEventsTool := mcp.NewTool("caldav_search_events",
		mcp.WithDescription("Search events by text in title, description, location or attendees"),
		mcp.WithReadOnlyHintAnnotation(true),
		withCalendarIndex(),
		mcp.WithString("query",
			mcp.Description("Case-insensitive text to search for. An empty query returns all events in the period"),
		),
		mcp.WithArray("search_fields",
			mcp.Description("Fields to search in. If not provided, searches in all fields"),
			mcp.Items(map[string]any{
				"type": "string",
				"enum": calendar.DefaultSearchFields,
			}),
		),
		mcp.WithString("start_date",
			mcp.Required(),
			mcp.Description("Start date for the search period in ISO format"),
		),
		mcp.WithString("end_date",
			mcp.Required(),
			mcp.Description("End date for the search period in ISO format"),
		),
	)

	return []mcpserver.ServerTool{
		newServerTool(sc, getEventsTool, instrumentation.OperationList, handleGetEvents),
		newServerTool(sc, todayEventsTool, instrumentation.OperationList, handleGetTodayEvents),
		newServerTool(sc, weekEventsTool, instrumentation.OperationList, handleGetWeekEvents),
		newServerTool(sc, searchEventsTool, instrumentation.OperationSearch, handleSearchEvents),
	}
}

func handleGetEvents(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	index, err := common.GetInt(args, "calendar_index", 0)
	if err != nil {
		return nil, err
	}
	start, end, err := rangeArgs(args, client.Location())
	if err != nil {
		return nil, err
	}
	includeAllDay, err := common.GetBool(args, "include_all_day", true)
	if err != nil {
		return nil, err
	}

	events, err := client.GetEvents(ctx, calendar.EventsQuery{
		CalendarIndex: index,
		Start:         start,
		End:           end,
		ExcludeAllDay: !includeAllDay,
	})
	if err != nil {
		return nil, err
	}
	return common.JSONResult(events)
}

func handleGetTodayEvents(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	index, err := common.GetInt(args, "calendar_index", 0)
	if err != nil {
		return nil, err
	}

	events, err := client.GetTodayEvents(ctx, index)
	if err != nil {
		return nil, err
	}
	return common.JSONResult(events)
}

func handleGetWeekEvents(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	index, err := common.GetInt(args, "calendar_index", 0)
	if err != nil {
		return nil, err
	}
	startFromToday, err := common.GetBool(args, "start_from_today", true)
	if err != nil {
		return nil, err
	}

	events, err := client.GetWeekEvents(ctx, index, startFromToday)
	if err != nil {
		return nil, err
	}
	return common.JSONResult(events)
}

func handleSearchEvents(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	index, err := common.GetInt(args, "calendar_index", 0)
	if err != nil {
		return nil, err
	}
	if common.GetString(args, "start_date") == "" || common.GetString(args, "end_date") == "" {
		return nil, errSearchRangeRequired
	}
	start, end, err := rangeArgs(args, client.Location())
	if err != nil {
		return nil, err
	}
	fields, err := common.GetStringSlice(args, "search_fields")
	if err != nil {
		return nil, err
	}

	events, err := client.SearchEvents(ctx, calendar.SearchQuery{
		CalendarIndex: index,
		Query:         common.GetString(args, "query"),
		Fields:        fields,
		Start:         start,
		End:           end,
	})
	if err != nil {
		return nil, err
	}
	return common.JSONResult(events)
}
