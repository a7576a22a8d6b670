package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/teemow/mcp-caldav/internal/instrumentation"
	"github.com/teemow/mcp-caldav/internal/logging"
)

const (
	defaultDurationHours = 1.0
	defaultRangeDays     = 7
	defaultStartHour     = 14
)

// fullEventRequest asks the server for complete calendar data
var fullEventRequest = caldav.CalendarCompRequest{
	Name:     ical.CompCalendar,
	AllProps: true,
	AllComps: true,
}

// CreateEvent creates a new event in the calendar at in.CalendarIndex.
// A zero Start defaults to tomorrow at 14:00 and a zero End to
// Start plus DurationHours.
func (c *Client) CreateEvent(ctx context.Context, in EventInput) (*CreatedEvent, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalidInput("title is required")
	}

	now := c.now().In(c.loc)
	if in.Start.IsZero() {
		tomorrow := startOfDay(now).AddDate(0, 0, 1)
		in.Start = tomorrow.Add(defaultStartHour * time.Hour)
	}
	if in.AllDay {
		in.Start = startOfDay(in.Start.In(c.loc))
		if !in.End.IsZero() {
			in.End = startOfDay(in.End.In(c.loc))
		}
	}
	if in.End.IsZero() {
		if in.AllDay {
			in.End = in.Start.AddDate(0, 0, 1)
		} else {
			hours := in.DurationHours
			if hours == 0 {
				hours = defaultDurationHours
			}
			if hours < 0 {
				return nil, invalidInput("duration_hours must be positive, got %g", hours)
			}
			in.End = in.Start.Add(time.Duration(hours * float64(time.Hour)))
		}
	}
	if in.UID == "" {
		in.UID = uuid.NewString()
	}

	cal, err := c.calendarByIndex(ctx, in.CalendarIndex)
	if err != nil {
		return nil, err
	}

	data, err := BuildCalendar(in, now)
	if err != nil {
		return nil, err
	}

	backend, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	objPath := objectPath(cal.path, in.UID)
	err = c.instrument(ctx, instrumentation.OperationCreate, func(ctx context.Context) error {
		_, err := backend.PutCalendarObject(ctx, objPath, data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event in calendar %q: %w", cal.Name, err)
	}

	c.logger.Info("Created event", logging.EventUID(in.UID), logging.Calendar(cal.Name), "path", objPath)

	return &CreatedEvent{
		Success:   true,
		UID:       in.UID,
		Title:     in.Title,
		StartTime: FormatTime(in.Start, in.AllDay),
		EndTime:   FormatTime(in.End, in.AllDay),
		Calendar:  cal.Name,
	}, nil
}

// GetEvents returns the events overlapping the query range, sorted by start.
// A zero Start defaults to today at midnight and a zero End to Start plus
// seven days.
func (c *Client) GetEvents(ctx context.Context, q EventsQuery) ([]Event, error) {
	if q.Start.IsZero() {
		q.Start = startOfDay(c.now().In(c.loc))
	}
	if q.End.IsZero() {
		q.End = q.Start.AddDate(0, 0, defaultRangeDays)
	}
	if !q.End.After(q.Start) {
		return nil, invalidInput("end date %s must be after start date %s",
			FormatTime(q.End, false), FormatTime(q.Start, false))
	}

	cal, err := c.calendarByIndex(ctx, q.CalendarIndex)
	if err != nil {
		return nil, err
	}

	events, err := c.queryRange(ctx, cal, q.Start, q.End)
	if err != nil {
		return nil, err
	}

	if q.ExcludeAllDay {
		filtered := events[:0]
		for _, e := range events {
			if !e.AllDay {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	return events, nil
}

// GetTodayEvents returns the events of the current day
func (c *Client) GetTodayEvents(ctx context.Context, calendarIndex int) ([]Event, error) {
	start := startOfDay(c.now().In(c.loc))
	return c.GetEvents(ctx, EventsQuery{
		CalendarIndex: calendarIndex,
		Start:         start,
		End:           start.AddDate(0, 0, 1),
	})
}

// GetWeekEvents returns seven days of events starting today, or starting on
// Monday of the current week when startFromToday is false.
func (c *Client) GetWeekEvents(ctx context.Context, calendarIndex int, startFromToday bool) ([]Event, error) {
	start := startOfDay(c.now().In(c.loc))
	if !startFromToday {
		daysSinceMonday := (int(start.Weekday()) + 6) % 7
		start = start.AddDate(0, 0, -daysSinceMonday)
	}
	return c.GetEvents(ctx, EventsQuery{
		CalendarIndex: calendarIndex,
		Start:         start,
		End:           start.AddDate(0, 0, defaultRangeDays),
	})
}

// GetEventByUID returns the event with the given UID
func (c *Client) GetEventByUID(ctx context.Context, uid string, calendarIndex int) (*Event, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, invalidInput("uid is required")
	}

	cal, err := c.calendarByIndex(ctx, calendarIndex)
	if err != nil {
		return nil, err
	}

	_, comp, err := c.findObject(ctx, cal, uid)
	if err != nil {
		return nil, err
	}

	event, err := ParseEvent(comp, c.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event %s: %w", uid, err)
	}
	event.Calendar = cal.Name
	return &event, nil
}

// DeleteEvent removes the calendar object holding the event with the given UID
func (c *Client) DeleteEvent(ctx context.Context, uid string, calendarIndex int) (*DeletionResult, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, invalidInput("uid is required")
	}

	cal, err := c.calendarByIndex(ctx, calendarIndex)
	if err != nil {
		return nil, err
	}

	obj, _, err := c.findObject(ctx, cal, uid)
	if err != nil {
		return nil, err
	}

	backend, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	err = c.instrument(ctx, instrumentation.OperationDelete, func(ctx context.Context) error {
		return backend.RemoveAll(ctx, obj.Path)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete event %s: %w", uid, err)
	}

	c.logger.Info("Deleted event", logging.EventUID(uid), logging.Calendar(cal.Name), "path", obj.Path)

	return &DeletionResult{
		Success: true,
		UID:     uid,
		Message: "Event deleted successfully",
	}, nil
}

// SearchEvents returns the events in the query range whose fields contain
// the query text, ignoring case. An empty query matches every event.
func (c *Client) SearchEvents(ctx context.Context, q SearchQuery) ([]Event, error) {
	if q.Start.IsZero() || q.End.IsZero() {
		return nil, invalidInput("start_date and end_date are required")
	}

	requested := q.Fields
	if len(requested) == 0 {
		requested = DefaultSearchFields
	}
	fields := make([]string, 0, len(requested))
	for _, f := range requested {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case FieldTitle, FieldDescription, FieldLocation, FieldAttendees:
			fields = append(fields, f)
		default:
			return nil, invalidInput("unknown search field %q (supported: %s)", f, strings.Join(DefaultSearchFields, ", "))
		}
	}

	events, err := c.GetEvents(ctx, EventsQuery{
		CalendarIndex: q.CalendarIndex,
		Start:         q.Start,
		End:           q.End,
	})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(q.Query))
	if needle == "" {
		return events, nil
	}

	matches := []Event{}
	for _, e := range events {
		if eventMatches(e, needle, fields) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

func eventMatches(e Event, needle string, fields []string) bool {
	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), needle)
	}
	for _, f := range fields {
		switch f {
		case FieldTitle:
			if contains(e.Title) {
				return true
			}
		case FieldDescription:
			if contains(e.Description) {
				return true
			}
		case FieldLocation:
			if contains(e.Location) {
				return true
			}
		case FieldAttendees:
			for _, a := range e.Attendees {
				if contains(a.Email) || contains(a.Name) {
					return true
				}
			}
		}
	}
	return false
}

// UpdateEvent applies a partial update to an existing event and writes it
// back to its original location. An update without fields returns the
// current event unchanged.
func (c *Client) UpdateEvent(ctx context.Context, upd EventUpdate) (*Event, error) {
	if strings.TrimSpace(upd.UID) == "" {
		return nil, invalidInput("event_uid is required")
	}

	cal, err := c.calendarByUID(ctx, upd.CalendarUID)
	if err != nil {
		return nil, err
	}

	obj, comp, err := c.findObject(ctx, cal, upd.UID)
	if err != nil {
		return nil, err
	}

	changed, err := ApplyUpdate(comp, upd, c.loc, c.now())
	if err != nil {
		return nil, err
	}

	event, err := ParseEvent(comp, c.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event %s: %w", upd.UID, err)
	}
	event.Calendar = cal.Name

	if !changed {
		return &event, nil
	}

	if !event.endTime.After(event.startTime) {
		return nil, invalidInput("end time %s must be after start time %s", event.End, event.Start)
	}

	backend, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	err = c.instrument(ctx, instrumentation.OperationUpdate, func(ctx context.Context) error {
		_, err := backend.PutCalendarObject(ctx, obj.Path, obj.Data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update event %s: %w", upd.UID, err)
	}

	c.logger.Info("Updated event", logging.EventUID(upd.UID), logging.Calendar(cal.Name), "sequence", event.Sequence)
	return &event, nil
}

// queryRange fetches and parses the events of cal overlapping [start, end)
func (c *Client) queryRange(ctx context.Context, cal Calendar, start, end time.Time) ([]Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: fullEventRequest,
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start.UTC(),
				End:   end.UTC(),
			}},
		},
	}

	objects, err := c.query(ctx, instrumentation.OperationList, cal, query)
	if err != nil {
		return nil, err
	}

	events := []Event{}
	for _, obj := range objects {
		comp := findEvent(obj.Data)
		if comp == nil {
			continue
		}
		event, err := ParseEvent(comp, c.loc)
		if err != nil {
			c.logger.Debug("Skipping unparsable event", "path", obj.Path, logging.Err(err))
			continue
		}
		// Servers that ignore time-range filters return everything.
		if event.RecurrenceRule == "" && (!event.endTime.After(start) || !event.startTime.Before(end)) {
			continue
		}
		event.Calendar = cal.Name
		event.path = obj.Path
		events = append(events, event)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].startTime.Before(events[j].startTime)
	})
	return events, nil
}

// findObject locates the calendar object holding the event with the given
// UID. It asks the server for a UID match first and falls back to scanning
// all events of the calendar.
func (c *Client) findObject(ctx context.Context, cal Calendar, uid string) (*caldav.CalendarObject, *ical.Component, error) {
	byUID := &caldav.CalendarQuery{
		CompRequest: fullEventRequest,
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name: ical.CompEvent,
				Props: []caldav.PropFilter{{
					Name:      ical.PropUID,
					TextMatch: &caldav.TextMatch{Text: uid},
				}},
			}},
		},
	}

	objects, err := c.query(ctx, instrumentation.OperationGet, cal, byUID)
	if err != nil {
		c.logger.Debug("UID query failed, scanning calendar", logging.EventUID(uid), logging.Err(err))
	}
	if obj, comp := matchUID(objects, uid); obj != nil {
		return obj, comp, nil
	}

	all := &caldav.CalendarQuery{
		CompRequest: fullEventRequest,
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent}},
		},
	}
	objects, err = c.query(ctx, instrumentation.OperationSearch, cal, all)
	if err != nil {
		return nil, nil, err
	}
	if obj, comp := matchUID(objects, uid); obj != nil {
		return obj, comp, nil
	}
	return nil, nil, &EventNotFoundError{UID: uid}
}

// matchUID returns the first object whose event carries exactly uid
func matchUID(objects []caldav.CalendarObject, uid string) (*caldav.CalendarObject, *ical.Component) {
	for i := range objects {
		comp := findEvent(objects[i].Data)
		if comp == nil {
			continue
		}
		if textValue(comp.Props, ical.PropUID) == uid {
			return &objects[i], comp
		}
	}
	return nil, nil
}

func (c *Client) query(ctx context.Context, operation string, cal Calendar, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error) {
	backend, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	var objects []caldav.CalendarObject
	err = c.instrument(ctx, operation, func(ctx context.Context) error {
		var err error
		objects, err = backend.QueryCalendar(ctx, cal.path, query)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar %q: %w", cal.Name, err)
	}
	return objects, nil
}
