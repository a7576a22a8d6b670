package calendar_tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/instrumentation"
	"github.com/teemow/mcp-caldav/internal/server"
	"github.com/teemow/mcp-caldav/internal/tools/batch"
	"github.com/teemow/mcp-caldav/internal/tools/common"
)

func eventReadTools(sc *server.ServerContext) []mcpserver.ServerTool {
	getEventTool := mcp.NewTool("caldav_get_event_by_uid",
		mcp.WithDescription("Get a specific event by its UID"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("uid",
			mcp.Required(),
			mcp.Description("Event UID"),
		),
		withCalendarIndex(),
	)

	return []mcpserver.ServerTool{
		newServerTool(sc, getEventTool, instrumentation.OperationGet, handleGetEventByUID),
	}
}

// eventWriteTools returns the tools that modify calendars
func eventWriteTools(sc *server.ServerContext) []mcpserver.ServerTool {
	createEventTool := mcp.NewTool("caldav_create_event",
		mcp.WithDescription("Create a new event in the calendar (supports reminders, attendees, categories, priority and recurrence)"),
		mcp.WithDestructiveHintAnnotation(false),
		withCalendarIndex(),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("start_time",
			mcp.Description("Start time in ISO format (e.g., '2025-01-20T14:00:00'). If not provided, defaults to tomorrow at 14:00"),
		),
		mcp.WithString("end_time",
			mcp.Description("End time in ISO format (e.g., '2025-01-20T15:00:00'). If not provided, uses duration_hours from start_time"),
		),
		mcp.WithNumber("duration_hours",
			mcp.Description("Duration in hours, used if end_time is not provided (default: 1.0)"),
			mcp.DefaultNumber(1.0),
		),
		mcp.WithBoolean("all_day",
			mcp.Description("Create an all-day event. Implied when start_time is a plain date"),
		),
		mcp.WithArray("reminders",
			mcp.Description("List of reminders, each with minutes_before, action ('DISPLAY', 'EMAIL' or 'AUDIO'), optional description and optional email_to"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"minutes_before": map[string]any{"type": "integer"},
					"action": map[string]any{
						"type": "string",
						"enum": []string{calendar.ActionDisplay, calendar.ActionEmail, calendar.ActionAudio},
					},
					"description": map[string]any{"type": "string"},
					"email_to":    map[string]any{"type": "string"},
				},
				"required": []string{"minutes_before", "action"},
			}),
		),
		mcp.WithArray("attendees",
			mcp.Description("List of attendee email addresses (strings) or objects with 'email', optional 'name' and 'status' (ACCEPTED/DECLINED/TENTATIVE/NEEDS-ACTION)"),
			mcp.Items(map[string]any{
				"oneOf": []any{
					map[string]any{"type": "string"},
					map[string]any{
						"type": "object",
						"properties": map[string]any{
							"email": map[string]any{"type": "string"},
							"name":  map[string]any{"type": "string"},
							"status": map[string]any{
								"type": "string",
								"enum": []string{calendar.StatusAccepted, calendar.StatusDeclined, calendar.StatusTentative, calendar.StatusNeedsAction},
							},
						},
						"required": []string{"email"},
					},
				},
			}),
		),
		mcp.WithArray("categories",
			mcp.Description("List of category/tag strings"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("priority",
			mcp.Description("Priority 0-9 (0 = undefined, 1 = highest, 9 = lowest)"),
			mcp.Min(0),
			mcp.Max(9),
		),
		mcp.WithObject("recurrence",
			mcp.Description("Recurrence rule for repeating events"),
			mcp.Properties(map[string]any{
				"frequency": map[string]any{
					"type":        "string",
					"enum":        []string{"DAILY", "WEEKLY", "MONTHLY", "YEARLY"},
					"description": "How often the event repeats",
				},
				"interval":   map[string]any{"type": "integer", "description": "Interval between occurrences (default: 1)"},
				"count":      map[string]any{"type": "integer", "description": "Number of occurrences"},
				"until":      map[string]any{"type": "string", "description": "End date in ISO format"},
				"byday":      map[string]any{"type": "string", "description": "Days of week (e.g., 'MO,WE,FR')"},
				"bymonthday": map[string]any{"type": "integer", "description": "Day of month (1-31)"},
				"bymonth":    map[string]any{"type": "integer", "description": "Month (1-12)"},
			}),
		),
	)

	updateEventTool := mcp.NewTool("caldav_update_event",
		mcp.WithDescription("Update an existing event. Only the given fields change; an empty string clears description, location or recurrence_rule"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("event_uid",
			mcp.Required(),
			mcp.Description("UID of the event to update"),
		),
		mcp.WithString("calendar_uid",
			mcp.Description("Calendar uid or name (default: first calendar)"),
		),
		mcp.WithString("title",
			mcp.Description("New event title"),
		),
		mcp.WithString("start",
			mcp.Description("New start time in ISO format"),
		),
		mcp.WithString("end",
			mcp.Description("New end time in ISO format"),
		),
		mcp.WithString("description",
			mcp.Description("New description (empty string clears it)"),
		),
		mcp.WithString("location",
			mcp.Description("New location (empty string clears it)"),
		),
		mcp.WithString("recurrence_rule",
			mcp.Description("New RRULE (e.g., 'FREQ=WEEKLY;BYDAY=MO'); empty string removes the recurrence"),
		),
		mcp.WithArray("categories",
			mcp.Description("Replacement list of categories (empty list clears them)"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("priority",
			mcp.Description("New priority 0-9"),
			mcp.Min(0),
			mcp.Max(9),
		),
	)

	deleteEventTool := mcp.NewTool("caldav_delete_event",
		mcp.WithDescription("Delete one or more events by UID"),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithAny("uid",
			mcp.Required(),
			mcp.Description("Event UID to delete, or an array of UIDs"),
		),
		withCalendarIndex(),
	)

	return []mcpserver.ServerTool{
		newServerTool(sc, createEventTool, instrumentation.OperationCreate, handleCreateEvent),
		newServerTool(sc, updateEventTool, instrumentation.OperationUpdate, handleUpdateEvent),
		newServerTool(sc, deleteEventTool, instrumentation.OperationDelete, handleDeleteEvent),
	}
}

func handleGetEventByUID(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	uid, err := common.RequireString(args, "uid")
	if err != nil {
		return nil, err
	}
	index, err := common.GetInt(args, "calendar_index", 0)
	if err != nil {
		return nil, err
	}

	event, err := client.GetEventByUID(ctx, uid, index)
	if err != nil {
		return nil, err
	}
	return common.JSONResult(event)
}

func handleCreateEvent(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	in, err := parseEventInput(args, client)
	if err != nil {
		return nil, err
	}

	created, err := client.CreateEvent(ctx, in)
	if err != nil {
		return nil, err
	}
	return common.JSONResult(created)
}

func handleUpdateEvent(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	upd, err := parseEventUpdate(args, client)
	if err != nil {
		return nil, err
	}

	event, err := client.UpdateEvent(ctx, upd)
	if err != nil {
		return nil, err
	}
	return common.JSONResult(event)
}

// handleDeleteEvent deletes a single UID directly and reports a list of
// UIDs as a batch summary. The call fails only when every deletion failed.
func handleDeleteEvent(ctx context.Context, args map[string]interface{}, client *calendar.Client) (*mcp.CallToolResult, error) {
	index, err := common.GetInt(args, "calendar_index", 0)
	if err != nil {
		return nil, err
	}

	_, isList := args["uid"].([]interface{})
	uids, err := batch.ParseStringOrArray(args["uid"], "uid")
	if err != nil {
		return nil, err
	}

	if !isList {
		deleted, err := client.DeleteEvent(ctx, uids[0], index)
		if err != nil {
			return nil, err
		}
		return common.JSONResult(deleted)
	}

	summary := batch.Process(ctx, uids, func(ctx context.Context, uid string) (string, error) {
		deleted, err := client.DeleteEvent(ctx, uid, index)
		if err != nil {
			return "", err
		}
		return deleted.Message, nil
	})

	result, err := common.JSONResult(summary)
	if err != nil {
		return nil, err
	}
	result.IsError = summary.AllFailed()
	return result, nil
}

func parseEventInput(args map[string]interface{}, client *calendar.Client) (calendar.EventInput, error) {
	var (
		in  calendar.EventInput
		err error
	)

	if in.Title, err = common.RequireString(args, "title"); err != nil {
		return in, err
	}
	if in.CalendarIndex, err = common.GetInt(args, "calendar_index", 0); err != nil {
		return in, err
	}
	in.Description = common.GetString(args, "description")
	in.Location = common.GetString(args, "location")

	start, startIsDate, err := timeArg(args, "start_time", client.Location())
	if err != nil {
		return in, err
	}
	end, _, err := timeArg(args, "end_time", client.Location())
	if err != nil {
		return in, err
	}
	in.Start, in.End = start, end

	if in.AllDay, err = common.GetBool(args, "all_day", startIsDate); err != nil {
		return in, err
	}
	if in.DurationHours, err = common.GetFloat(args, "duration_hours", 0); err != nil {
		return in, err
	}
	if in.Reminders, err = parseReminders(args); err != nil {
		return in, err
	}
	if in.Attendees, err = parseAttendees(args); err != nil {
		return in, err
	}
	if in.Categories, err = common.GetStringSlice(args, "categories"); err != nil {
		return in, err
	}
	if in.Priority, err = common.GetOptionalInt(args, "priority"); err != nil {
		return in, err
	}
	if in.Recurrence, err = parseRecurrence(args, client); err != nil {
		return in, err
	}
	return in, nil
}

func parseReminders(args map[string]interface{}) ([]calendar.Reminder, error) {
	items, err := common.GetObjectSlice(args, "reminders")
	if err != nil || items == nil {
		return nil, err
	}

	reminders := make([]calendar.Reminder, 0, len(items))
	for i, item := range items {
		minutes, err := common.GetInt(item, "minutes_before", 15)
		if err != nil {
			return nil, fmt.Errorf("reminders[%d]: %w", i, err)
		}
		reminders = append(reminders, calendar.Reminder{
			MinutesBefore: minutes,
			Action:        strings.ToUpper(common.GetString(item, "action")),
			Description:   common.GetString(item, "description"),
			EmailTo:       common.GetString(item, "email_to"),
		})
	}
	return reminders, nil
}

// parseAttendees accepts bare email strings and {email, name, status} objects
func parseAttendees(args map[string]interface{}) ([]calendar.Attendee, error) {
	if !common.Has(args, "attendees") {
		return nil, nil
	}
	items, ok := args["attendees"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("attendees must be an array")
	}

	attendees := make([]calendar.Attendee, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			attendees = append(attendees, calendar.Attendee{Email: v})
		case map[string]interface{}:
			attendees = append(attendees, calendar.Attendee{
				Email:  common.GetString(v, "email"),
				Name:   common.GetString(v, "name"),
				Status: strings.ToUpper(common.GetString(v, "status")),
			})
		default:
			return nil, fmt.Errorf("attendees[%d] must be an email string or an object", i)
		}
	}
	return attendees, nil
}

func parseRecurrence(args map[string]interface{}, client *calendar.Client) (*calendar.Recurrence, error) {
	obj, err := common.GetObject(args, "recurrence")
	if err != nil || obj == nil {
		return nil, err
	}

	r := calendar.Recurrence{
		Frequency: common.GetString(obj, "frequency"),
		ByDay:     common.GetString(obj, "byday"),
	}
	if r.Interval, err = common.GetInt(obj, "interval", 0); err != nil {
		return nil, fmt.Errorf("recurrence: %w", err)
	}
	if r.Count, err = common.GetInt(obj, "count", 0); err != nil {
		return nil, fmt.Errorf("recurrence: %w", err)
	}
	if r.ByMonthDay, err = common.GetInt(obj, "bymonthday", 0); err != nil {
		return nil, fmt.Errorf("recurrence: %w", err)
	}
	if r.ByMonth, err = common.GetInt(obj, "bymonth", 0); err != nil {
		return nil, fmt.Errorf("recurrence: %w", err)
	}
	if r.Until, r.UntilDate, err = timeArg(obj, "until", client.Location()); err != nil {
		return nil, fmt.Errorf("recurrence: %w", err)
	}
	return &r, nil
}

func parseEventUpdate(args map[string]interface{}, client *calendar.Client) (calendar.EventUpdate, error) {
	var (
		upd calendar.EventUpdate
		err error
	)

	if upd.UID, err = common.RequireString(args, "event_uid"); err != nil {
		return upd, err
	}
	upd.CalendarUID = common.GetString(args, "calendar_uid")

	if upd.Title, err = common.GetOptionalString(args, "title"); err != nil {
		return upd, err
	}
	if upd.Description, err = common.GetOptionalString(args, "description"); err != nil {
		return upd, err
	}
	if upd.Location, err = common.GetOptionalString(args, "location"); err != nil {
		return upd, err
	}
	if upd.RecurrenceRule, err = common.GetOptionalString(args, "recurrence_rule"); err != nil {
		return upd, err
	}
	if upd.Priority, err = common.GetOptionalInt(args, "priority"); err != nil {
		return upd, err
	}

	if upd.Start, err = optionalTimeArg(args, "start", client.Location()); err != nil {
		return upd, err
	}
	if upd.End, err = optionalTimeArg(args, "end", client.Location()); err != nil {
		return upd, err
	}

	if common.Has(args, "categories") {
		categories, err := common.GetStringSlice(args, "categories")
		if err != nil {
			return upd, err
		}
		if categories == nil {
			categories = []string{}
		}
		upd.Categories = &categories
	}
	return upd, nil
}
