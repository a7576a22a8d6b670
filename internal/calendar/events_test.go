package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory CalDAV server
type fakeBackend struct {
	mu        sync.Mutex
	calendars []caldav.Calendar
	objects   map[string]*ical.Calendar

	// uidFilterUnsupported makes UID prop-filter queries return nothing
	uidFilterUnsupported bool
	principalErr         error
	putErr               error

	puts    []string
	removed []string
	queries int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calendars: []caldav.Calendar{
			{Path: "/calendars/jane/personal/", Name: "Personal", Description: "Private events"},
			{Path: "/calendars/jane/work/", Name: "Work"},
		},
		objects: make(map[string]*ical.Calendar),
	}
}

func (f *fakeBackend) FindCurrentUserPrincipal(ctx context.Context) (string, error) {
	if f.principalErr != nil {
		return "", f.principalErr
	}
	return "/principals/jane/", nil
}

func (f *fakeBackend) FindCalendarHomeSet(ctx context.Context, principal string) (string, error) {
	return "/calendars/jane/", nil
}

func (f *fakeBackend) FindCalendars(ctx context.Context, homeSet string) ([]caldav.Calendar, error) {
	return f.calendars, nil
}

func (f *fakeBackend) QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	var uidFilter string
	for _, comp := range query.CompFilter.Comps {
		for _, prop := range comp.Props {
			if prop.Name == ical.PropUID && prop.TextMatch != nil {
				uidFilter = prop.TextMatch.Text
			}
		}
	}
	if uidFilter != "" && f.uidFilterUnsupported {
		return nil, nil
	}

	paths := make([]string, 0, len(f.objects))
	for p := range f.objects {
		if strings.HasPrefix(p, calendar) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var result []caldav.CalendarObject
	for _, p := range paths {
		data, err := roundTrip(f.objects[p])
		if err != nil {
			return nil, err
		}
		if uidFilter != "" {
			event := findEvent(data)
			if event == nil || !strings.Contains(textValue(event.Props, ical.PropUID), uidFilter) {
				continue
			}
		}
		result = append(result, caldav.CalendarObject{Path: p, Data: data})
	}
	return result, nil
}

func (f *fakeBackend) PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := roundTrip(cal)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = data
	f.puts = append(f.puts, path)
	return &caldav.CalendarObject{Path: path, Data: data}, nil
}

func (f *fakeBackend) RemoveAll(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[name]; !ok {
		return fmt.Errorf("404 Not Found: %s", name)
	}
	delete(f.objects, name)
	f.removed = append(f.removed, name)
	return nil
}

// roundTrip encodes and decodes cal the way a server would store it
func roundTrip(cal *ical.Calendar) (*ical.Calendar, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return ical.NewDecoder(&buf).Decode()
}

// seed stores a simple timed event
func (f *fakeBackend) seed(t *testing.T, calendarPath, uid, title string, start, end time.Time, mutate ...func(*ical.Component)) {
	t.Helper()
	event := ical.NewComponent(ical.CompEvent)
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetText(ical.PropSummary, title)
	event.Props.SetDateTime(ical.PropDateTimeStamp, start.UTC())
	setDateTimeProp(event.Props, ical.PropDateTimeStart, start, false)
	setDateTimeProp(event.Props, ical.PropDateTimeEnd, end, false)
	for _, m := range mutate {
		m(event)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//test//EN")
	cal.Children = append(cal.Children, event)

	data, err := roundTrip(cal)
	require.NoError(t, err)
	f.objects[calendarPath+uid+".ics"] = data
}

var testNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC) // Wednesday

func newTestClient(backend Backend) *Client {
	c := NewClientWithBackend(Config{
		URL:      "https://caldav.example.com/dav/",
		Username: "jane",
		Location: time.UTC,
	}, backend)
	c.now = func() time.Time { return testNow }
	return c
}

func TestClient_ListCalendars(t *testing.T) {
	client := newTestClient(newFakeBackend())

	calendars, err := client.ListCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, calendars, 2)

	assert.Equal(t, 0, calendars[0].Index)
	assert.Equal(t, "personal", calendars[0].UID)
	assert.Equal(t, "Personal", calendars[0].Name)
	assert.Equal(t, "https://caldav.example.com/calendars/jane/personal/", calendars[0].URL)
	assert.Equal(t, "Private events", calendars[0].Description)
	assert.Equal(t, 1, calendars[1].Index)
	assert.Equal(t, "work", calendars[1].UID)
	assert.True(t, client.Connected())
}

func TestClient_ConnectFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.principalErr = errors.New("401 Unauthorized")
	client := newTestClient(backend)

	_, err := client.ListCalendars(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 Unauthorized")
	assert.False(t, client.Connected())
}

func TestClient_NewClient(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	client, err := NewClient(Config{URL: "https://caldav.yandex.ru/"})
	require.NoError(t, err)
	assert.True(t, client.IsYandex())
	assert.False(t, client.Connected())
	assert.Equal(t, time.Local, client.Location())

	client, err = NewClient(Config{URL: "https://Nextcloud.Example.com:8443/remote.php/dav/", Username: "jane"})
	require.NoError(t, err)
	assert.False(t, client.IsYandex())
	assert.Equal(t, "nextcloud.example.com", client.Host())
	assert.Equal(t, "jane", client.Username())
}

func TestClient_IsYandex(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{url: "https://caldav.yandex.ru/", expected: true},
		{url: "https://yandex.ru/calendar/", expected: true},
		{url: "https://CalDAV.Yandex.com:443/", expected: true},
		{url: "https://notyandex.ru/", expected: false},
		{url: "https://myyandex.com/", expected: false},
		{url: "https://yandex.ru.example.com/", expected: false},
		{url: "https://example.com/", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			client, err := NewClient(Config{URL: tt.url})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, client.IsYandex())
		})
	}
}

func TestClient_CreateEvent_Defaults(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(backend)

	created, err := client.CreateEvent(context.Background(), EventInput{Title: "Dentist"})
	require.NoError(t, err)

	assert.True(t, created.Success)
	assert.NotEmpty(t, created.UID)
	assert.Equal(t, "Dentist", created.Title)
	assert.Equal(t, "2025-01-16T14:00:00Z", created.StartTime)
	assert.Equal(t, "2025-01-16T15:00:00Z", created.EndTime)
	assert.Equal(t, "Personal", created.Calendar)

	require.Len(t, backend.puts, 1)
	assert.Equal(t, "/calendars/jane/personal/"+created.UID+".ics", backend.puts[0])
}

func TestClient_CreateEvent_Duration(t *testing.T) {
	client := newTestClient(newFakeBackend())

	created, err := client.CreateEvent(context.Background(), EventInput{
		CalendarIndex: 1,
		Title:         "Workshop",
		Start:         time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC),
		DurationHours: 2.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-20T11:30:00Z", created.EndTime)
	assert.Equal(t, "Work", created.Calendar)
}

func TestClient_CreateEvent_UnknownCalendar(t *testing.T) {
	client := newTestClient(newFakeBackend())

	_, err := client.CreateEvent(context.Background(), EventInput{CalendarIndex: 5, Title: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCalendarNotFound)
	assert.Contains(t, err.Error(), "Calendar index 5 not found. Available calendars: 2")
}

func TestClient_CreateEvent_PutFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.putErr = errors.New("507 Insufficient Storage")
	client := newTestClient(backend)

	_, err := client.CreateEvent(context.Background(), EventInput{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "507 Insufficient Storage")
}

func TestClient_CreateAndGetEvent(t *testing.T) {
	client := newTestClient(newFakeBackend())
	ctx := context.Background()
	priority := 3

	created, err := client.CreateEvent(ctx, EventInput{
		UID:         "team-sync",
		Title:       "Team sync",
		Description: "Weekly; all hands",
		Location:    "Berlin, HQ",
		Start:       time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 1, 20, 9, 30, 0, 0, time.UTC),
		Categories:  []string{"Work", "Meetings"},
		Priority:    &priority,
		Recurrence:  &Recurrence{Frequency: "WEEKLY", ByDay: "MO"},
		Attendees: []Attendee{
			{Email: "bob@example.com", Name: "Bob", Status: StatusAccepted},
			{Email: "alice@example.com"},
		},
		Reminders: []Reminder{
			{MinutesBefore: 10},
			{MinutesBefore: 60, Action: ActionEmail, EmailTo: "jane@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "team-sync", created.UID)

	event, err := client.GetEventByUID(ctx, "team-sync", 0)
	require.NoError(t, err)

	assert.Equal(t, "Team sync", event.Title)
	assert.Equal(t, "Weekly; all hands", event.Description)
	assert.Equal(t, "Berlin, HQ", event.Location)
	assert.Equal(t, "2025-01-20T09:00:00Z", event.Start)
	assert.Equal(t, "2025-01-20T09:30:00Z", event.End)
	assert.Equal(t, []string{"Work", "Meetings"}, event.Categories)
	require.NotNil(t, event.Priority)
	assert.Equal(t, 3, *event.Priority)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", event.RecurrenceRule)
	assert.Equal(t, 0, event.Sequence)
	assert.Equal(t, "CONFIRMED", event.Status)
	assert.Equal(t, "Personal", event.Calendar)

	require.Len(t, event.Attendees, 2)
	assert.Equal(t, Attendee{Email: "bob@example.com", Name: "Bob", Status: StatusAccepted}, event.Attendees[0])
	assert.Equal(t, StatusNeedsAction, event.Attendees[1].Status)

	require.Len(t, event.Alarms, 2)
	assert.Equal(t, Reminder{MinutesBefore: 10, Action: ActionDisplay, Description: "Team sync"}, event.Alarms[0])
	assert.Equal(t, 60, event.Alarms[1].MinutesBefore)
	assert.Equal(t, ActionEmail, event.Alarms[1].Action)
	assert.Equal(t, "jane@example.com", event.Alarms[1].EmailTo)
}

func TestClient_GetEvents(t *testing.T) {
	backend := newFakeBackend()
	personal := "/calendars/jane/personal/"
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	backend.seed(t, personal, "late", "Dinner", day.Add(19*time.Hour), day.Add(21*time.Hour))
	backend.seed(t, personal, "early", "Breakfast", day.Add(8*time.Hour), day.Add(9*time.Hour))
	backend.seed(t, personal, "next-month", "Trip", day.AddDate(0, 1, 0), day.AddDate(0, 1, 1))
	backend.seed(t, personal, "holiday", "Holiday", day, day, func(c *ical.Component) {
		setDateTimeProp(c.Props, ical.PropDateTimeStart, day.AddDate(0, 0, 2), true)
		setDateTimeProp(c.Props, ical.PropDateTimeEnd, day.AddDate(0, 0, 3), true)
	})
	backend.seed(t, personal, "broken", "Broken", day, day, func(c *ical.Component) {
		c.Props.Get(ical.PropDateTimeStart).Value = "not-a-date"
	})
	client := newTestClient(backend)

	events, err := client.GetEvents(context.Background(), EventsQuery{})
	require.NoError(t, err)

	var uids []string
	for _, e := range events {
		uids = append(uids, e.UID)
	}
	assert.Equal(t, []string{"early", "late", "holiday"}, uids)
	assert.True(t, events[2].AllDay)
	assert.Equal(t, "2025-01-17", events[2].Start)

	events, err = client.GetEvents(context.Background(), EventsQuery{ExcludeAllDay: true})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	_, err = client.GetEvents(context.Background(), EventsQuery{Start: day, End: day.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClient_GetTodayAndWeekEvents(t *testing.T) {
	backend := newFakeBackend()
	work := "/calendars/jane/work/"
	monday := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)

	backend.seed(t, work, "monday", "Planning", monday, monday.Add(time.Hour))
	backend.seed(t, work, "today", "Review", testNow, testNow.Add(time.Hour))
	backend.seed(t, work, "tuesday-next", "Retro", monday.AddDate(0, 0, 8), monday.AddDate(0, 0, 8).Add(time.Hour))
	client := newTestClient(backend)
	ctx := context.Background()

	today, err := client.GetTodayEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "today", today[0].UID)

	fromToday, err := client.GetWeekEvents(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, fromToday, 2)
	assert.Equal(t, "today", fromToday[0].UID)
	assert.Equal(t, "tuesday-next", fromToday[1].UID)

	fromMonday, err := client.GetWeekEvents(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, fromMonday, 2)
	assert.Equal(t, "monday", fromMonday[0].UID)
	assert.Equal(t, "today", fromMonday[1].UID)
}

func TestClient_GetEventByUID_NotFound(t *testing.T) {
	client := newTestClient(newFakeBackend())

	_, err := client.GetEventByUID(context.Background(), "missing", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.Equal(t, "Event with UID missing not found", err.Error())
}

func TestClient_GetEventByUID_ExactMatch(t *testing.T) {
	backend := newFakeBackend()
	personal := "/calendars/jane/personal/"
	backend.seed(t, personal, "abc-123", "Long", testNow, testNow.Add(time.Hour))
	client := newTestClient(backend)

	_, err := client.GetEventByUID(context.Background(), "abc", 0)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestClient_GetEventByUID_FallbackScan(t *testing.T) {
	backend := newFakeBackend()
	backend.uidFilterUnsupported = true
	backend.seed(t, "/calendars/jane/personal/", "evt-1", "Lunch", testNow, testNow.Add(time.Hour))
	client := newTestClient(backend)

	event, err := client.GetEventByUID(context.Background(), "evt-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "Lunch", event.Title)
	assert.Equal(t, 2, backend.queries)
}

func TestClient_DeleteEvent(t *testing.T) {
	backend := newFakeBackend()
	backend.seed(t, "/calendars/jane/personal/", "evt-1", "Lunch", testNow, testNow.Add(time.Hour))
	client := newTestClient(backend)
	ctx := context.Background()

	result, err := client.DeleteEvent(ctx, "evt-1", 0)
	require.NoError(t, err)
	assert.Equal(t, &DeletionResult{Success: true, UID: "evt-1", Message: "Event deleted successfully"}, result)
	assert.Equal(t, []string{"/calendars/jane/personal/evt-1.ics"}, backend.removed)

	_, err = client.DeleteEvent(ctx, "evt-1", 0)
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = client.DeleteEvent(ctx, "", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClient_SearchEvents(t *testing.T) {
	backend := newFakeBackend()
	personal := "/calendars/jane/personal/"
	backend.seed(t, personal, "standup", "Daily Standup", testNow, testNow.Add(15*time.Minute), func(c *ical.Component) {
		c.Props.SetText(ical.PropLocation, "Zoom")
	})
	backend.seed(t, personal, "lunch", "Lunch", testNow.Add(2*time.Hour), testNow.Add(3*time.Hour), func(c *ical.Component) {
		c.Props.SetText(ical.PropDescription, "Talk about the standup format")
		prop, _ := attendeeProp(Attendee{Email: "carol@example.com", Name: "Carol"})
		c.Props.Add(prop)
	})
	client := newTestClient(backend)
	ctx := context.Background()
	start, end := testNow.Add(-time.Hour), testNow.Add(24*time.Hour)

	tests := []struct {
		name     string
		query    string
		fields   []string
		expected []string
	}{
		{name: "all fields case insensitive", query: "STANDUP", expected: []string{"standup", "lunch"}},
		{name: "title only", query: "standup", fields: []string{"title"}, expected: []string{"standup"}},
		{name: "location", query: "zoom", fields: []string{"location"}, expected: []string{"standup"}},
		{name: "attendees", query: "carol", fields: []string{"attendees"}, expected: []string{"lunch"}},
		{name: "empty query returns everything", query: "", expected: []string{"standup", "lunch"}},
		{name: "no match", query: "dentist", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := client.SearchEvents(ctx, SearchQuery{Query: tt.query, Fields: tt.fields, Start: start, End: end})
			require.NoError(t, err)
			var uids []string
			for _, e := range events {
				uids = append(uids, e.UID)
			}
			assert.Equal(t, tt.expected, uids)
		})
	}

	_, err := client.SearchEvents(ctx, SearchQuery{Query: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = client.SearchEvents(ctx, SearchQuery{Query: "x", Fields: []string{"organizer"}, Start: start, End: end})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestClient_UpdateEvent(t *testing.T) {
	str := func(s string) *string { return &s }

	newBackend := func() *fakeBackend {
		backend := newFakeBackend()
		backend.seed(t, "/calendars/jane/work/", "evt-1", "Sync", testNow, testNow.Add(time.Hour), func(c *ical.Component) {
			c.Props.SetText(ical.PropDescription, "Old notes")
			c.Props.SetText(ical.PropLocation, "Room 1")
		})
		return backend
	}

	t.Run("title by calendar uid", func(t *testing.T) {
		backend := newBackend()
		client := newTestClient(backend)

		event, err := client.UpdateEvent(context.Background(), EventUpdate{UID: "evt-1", CalendarUID: "work", Title: str("Weekly sync")})
		require.NoError(t, err)
		assert.Equal(t, "Weekly sync", event.Title)
		assert.Equal(t, "Old notes", event.Description)
		assert.Equal(t, 1, event.Sequence)
		assert.Equal(t, "Work", event.Calendar)
		assert.Equal(t, []string{"/calendars/jane/work/evt-1.ics"}, backend.puts)
	})

	t.Run("calendar by display name", func(t *testing.T) {
		client := newTestClient(newBackend())

		event, err := client.UpdateEvent(context.Background(), EventUpdate{UID: "evt-1", CalendarUID: "WORK", Location: str("")})
		require.NoError(t, err)
		assert.Empty(t, event.Location)
	})

	t.Run("no fields does not write", func(t *testing.T) {
		backend := newBackend()
		client := newTestClient(backend)

		event, err := client.UpdateEvent(context.Background(), EventUpdate{UID: "evt-1", CalendarUID: "work"})
		require.NoError(t, err)
		assert.Equal(t, "Sync", event.Title)
		assert.Equal(t, 0, event.Sequence)
		assert.Empty(t, backend.puts)
	})

	t.Run("end before start", func(t *testing.T) {
		backend := newBackend()
		client := newTestClient(backend)
		end := testNow.Add(-time.Hour)

		_, err := client.UpdateEvent(context.Background(), EventUpdate{UID: "evt-1", CalendarUID: "work", End: &end})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Empty(t, backend.puts)
	})

	t.Run("default calendar does not hold event", func(t *testing.T) {
		client := newTestClient(newBackend())

		_, err := client.UpdateEvent(context.Background(), EventUpdate{UID: "evt-1", Title: str("x")})
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("unknown calendar", func(t *testing.T) {
		client := newTestClient(newBackend())

		_, err := client.UpdateEvent(context.Background(), EventUpdate{UID: "evt-1", CalendarUID: "nope", Title: str("x")})
		assert.ErrorIs(t, err, ErrCalendarNotFound)
	})

	t.Run("sequence increments twice", func(t *testing.T) {
		client := newTestClient(newBackend())
		ctx := context.Background()

		_, err := client.UpdateEvent(ctx, EventUpdate{UID: "evt-1", CalendarUID: "work", Title: str("One")})
		require.NoError(t, err)
		event, err := client.UpdateEvent(ctx, EventUpdate{UID: "evt-1", CalendarUID: "work", Title: str("Two")})
		require.NoError(t, err)
		assert.Equal(t, 2, event.Sequence)
	})
}
