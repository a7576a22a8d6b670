package calendar

import (
	"time"
)

// Participation status values accepted for attendees
const (
	StatusAccepted    = "ACCEPTED"
	StatusDeclined    = "DECLINED"
	StatusTentative   = "TENTATIVE"
	StatusNeedsAction = "NEEDS-ACTION"
)

// Alarm actions supported for reminders
const (
	ActionDisplay = "DISPLAY"
	ActionEmail   = "EMAIL"
	ActionAudio   = "AUDIO"
)

// Search fields understood by SearchEvents
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldLocation    = "location"
	FieldAttendees   = "attendees"
)

// DefaultSearchFields is used when a search does not name any fields
var DefaultSearchFields = []string{FieldTitle, FieldDescription, FieldLocation, FieldAttendees}

// Calendar represents a calendar collection discovered on the server
type Calendar struct {
	Index       int    `json:"index"`
	UID         string `json:"uid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`

	path string
}

// Attendee represents an ATTENDEE of an event
type Attendee struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

// Reminder describes a VALARM attached to an event
type Reminder struct {
	MinutesBefore int    `json:"minutes_before"`
	Action        string `json:"action"`
	Description   string `json:"description,omitempty"`
	EmailTo       string `json:"email_to,omitempty"`
}

// Recurrence is the structured form of an RRULE
type Recurrence struct {
	Frequency  string
	Interval   int
	Count      int
	Until      time.Time
	UntilDate  bool
	ByDay      string
	ByMonthDay int
	ByMonth    int
}

// IsZero reports whether no recurrence was requested
func (r Recurrence) IsZero() bool {
	return r.Frequency == "" && r.Interval == 0 && r.Count == 0 && r.Until.IsZero() &&
		r.ByDay == "" && r.ByMonthDay == 0 && r.ByMonth == 0
}

// Event is the flat record produced from a VEVENT
type Event struct {
	UID            string     `json:"uid"`
	Title          string     `json:"title"`
	Start          string     `json:"start"`
	End            string     `json:"end"`
	AllDay         bool       `json:"all_day"`
	Description    string     `json:"description"`
	Location       string     `json:"location"`
	Categories     []string   `json:"categories"`
	Priority       *int       `json:"priority"`
	RecurrenceRule string     `json:"recurrence_rule"`
	Attendees      []Attendee `json:"attendees"`
	Alarms         []Reminder `json:"alarms"`
	Sequence       int        `json:"sequence"`
	Status         string     `json:"status,omitempty"`
	Calendar       string     `json:"calendar,omitempty"`

	startTime time.Time
	endTime   time.Time
	path      string
}

// StartTime returns the parsed start of the event
func (e Event) StartTime() time.Time {
	return e.startTime
}

// EndTime returns the parsed end of the event
func (e Event) EndTime() time.Time {
	return e.endTime
}

// EventInput represents the input for creating a calendar event
type EventInput struct {
	CalendarIndex int
	UID           string
	Title         string
	Description   string
	Location      string
	Start         time.Time
	End           time.Time
	// DurationHours is used when End is zero (default: 1.0)
	DurationHours float64
	AllDay        bool
	Reminders     []Reminder
	Attendees     []Attendee
	Categories    []string
	// Priority is 0-9; nil leaves PRIORITY unset
	Priority   *int
	Recurrence *Recurrence
}

// CreatedEvent is returned after a successful create
type CreatedEvent struct {
	Success   bool   `json:"success"`
	UID       string `json:"uid"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Calendar  string `json:"calendar"`
}

// EventUpdate is a partial update of an existing event.
// Nil fields are left unchanged; an empty string clears
// description, location and recurrence rule.
type EventUpdate struct {
	UID            string
	CalendarUID    string
	Title          *string
	Start          *time.Time
	End            *time.Time
	Description    *string
	Location       *string
	RecurrenceRule *string
	Categories     *[]string
	Priority       *int
}

// IsEmpty reports whether the update carries no field changes
func (u EventUpdate) IsEmpty() bool {
	return u.Title == nil && u.Start == nil && u.End == nil && u.Description == nil &&
		u.Location == nil && u.RecurrenceRule == nil && u.Categories == nil && u.Priority == nil
}

// EventsQuery selects events in a time range
type EventsQuery struct {
	CalendarIndex int
	Start         time.Time
	End           time.Time
	// ExcludeAllDay drops all-day events from the result
	ExcludeAllDay bool
}

// SearchQuery selects events in a time range matching a text query
type SearchQuery struct {
	CalendarIndex int
	Query         string
	Fields        []string
	Start         time.Time
	End           time.Time
}

// DeletionResult is returned after a successful delete
type DeletionResult struct {
	Success bool   `json:"success"`
	UID     string `json:"uid"`
	Message string `json:"message"`
}
