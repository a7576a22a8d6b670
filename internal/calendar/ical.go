package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// ProductID identifies this server in generated VCALENDAR objects
const ProductID = "-//mcp-caldav//Go//EN"

const (
	defaultReminderMinutes = 15
	maxPriority            = 9
	propRSVP               = "RSVP"
	mailtoPrefix           = "mailto:"
)

var validFrequencies = map[string]bool{
	"DAILY":   true,
	"WEEKLY":  true,
	"MONTHLY": true,
	"YEARLY":  true,
}

var validStatuses = map[string]bool{
	StatusAccepted:    true,
	StatusDeclined:    true,
	StatusTentative:   true,
	StatusNeedsAction: true,
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	",", `\,`,
	";", `\;`,
)

var textUnescaper = strings.NewReplacer(
	`\\`, `\`,
	`\n`, "\n",
	`\N`, "\n",
	`\,`, ",",
	`\;`, ";",
)

// EscapeText escapes a TEXT value per RFC 5545 section 3.3.11
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// UnescapeText reverses EscapeText
func UnescapeText(s string) string {
	return textUnescaper.Replace(s)
}

// FormatRRule renders a recurrence as an RRULE value (without the "RRULE:" name).
// An empty recurrence yields "".
func FormatRRule(r Recurrence) (string, error) {
	if r.IsZero() {
		return "", nil
	}

	freq := strings.ToUpper(strings.TrimSpace(r.Frequency))
	if freq == "" {
		freq = "DAILY"
	}
	if !validFrequencies[freq] {
		return "", invalidInput("invalid frequency: %s", r.Frequency)
	}

	parts := []string{"FREQ=" + freq}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if !r.Until.IsZero() {
		if r.UntilDate {
			parts = append(parts, "UNTIL="+r.Until.Format(icalDateLayout))
		} else {
			parts = append(parts, "UNTIL="+r.Until.UTC().Format(icalUTCLayout))
		}
	}
	if byDay := strings.ToUpper(strings.ReplaceAll(r.ByDay, " ", "")); byDay != "" {
		parts = append(parts, "BYDAY="+byDay)
	}
	if r.ByMonthDay != 0 {
		parts = append(parts, "BYMONTHDAY="+strconv.Itoa(r.ByMonthDay))
	}
	if r.ByMonth != 0 {
		parts = append(parts, "BYMONTH="+strconv.Itoa(r.ByMonth))
	}

	rule := strings.Join(parts, ";")
	if err := validateRRule(rule); err != nil {
		return "", err
	}
	return rule, nil
}

// NormalizeRRule upper-cases a caller supplied rule, strips an optional
// "RRULE:" prefix and validates it.
func NormalizeRRule(rule string) (string, error) {
	rule = strings.TrimSpace(rule)
	if len(rule) >= 6 && strings.EqualFold(rule[:6], "RRULE:") {
		rule = rule[6:]
	}
	rule = strings.ToUpper(rule)
	if err := validateRRule(rule); err != nil {
		return "", err
	}
	return rule, nil
}

func validateRRule(rule string) error {
	if _, err := rrule.StrToROption(rule); err != nil {
		return invalidInput("invalid recurrence rule %q: %v", rule, err)
	}
	return nil
}

// categoriesProp builds a CATEGORIES property, nil when nothing remains
// after trimming
func categoriesProp(categories []string) *ical.Prop {
	list := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			list = append(list, c)
		}
	}
	if len(list) == 0 {
		return nil
	}
	prop := ical.NewProp(ical.PropCategories)
	prop.SetTextList(list)
	return prop
}

// parseCategories collects categories from all CATEGORIES properties
func parseCategories(props ical.Props) []string {
	categories := []string{}
	for _, prop := range props.Values(ical.PropCategories) {
		list, err := prop.TextList()
		if err != nil {
			list = []string{UnescapeText(prop.Value)}
		}
		for _, c := range list {
			if c = strings.TrimSpace(c); c != "" {
				categories = append(categories, c)
			}
		}
	}
	return categories
}

// attendeeProp builds an ATTENDEE property. ok is false for entries without
// a usable email address.
func attendeeProp(a Attendee) (*ical.Prop, bool) {
	email := strings.TrimSpace(a.Email)
	if !strings.Contains(email, "@") {
		return nil, false
	}

	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = email
	}

	prop := ical.NewProp(ical.PropAttendee)
	prop.Params.Set(propRSVP, "TRUE")
	prop.Params.Set(ical.ParamCommonName, name)
	if status := strings.ToUpper(strings.TrimSpace(a.Status)); validStatuses[status] {
		prop.Params.Set(ical.ParamParticipationStatus, status)
	}
	prop.Value = mailtoPrefix + email
	return prop, true
}

// parseAttendees reads all ATTENDEE properties of a component
func parseAttendees(props ical.Props) []Attendee {
	attendees := []Attendee{}
	for _, prop := range props.Values(ical.PropAttendee) {
		email := strings.TrimSpace(prop.Value)
		if len(email) >= len(mailtoPrefix) && strings.EqualFold(email[:len(mailtoPrefix)], mailtoPrefix) {
			email = email[len(mailtoPrefix):]
		}
		if email == "" {
			continue
		}
		status := strings.ToUpper(prop.Params.Get(ical.ParamParticipationStatus))
		if status == "" {
			status = StatusNeedsAction
		}
		attendees = append(attendees, Attendee{
			Email:  email,
			Name:   prop.Params.Get(ical.ParamCommonName),
			Status: status,
		})
	}
	return attendees
}

// alarmComponent builds a VALARM for a reminder of the event titled title
func alarmComponent(r Reminder, title string) (*ical.Component, error) {
	action := strings.ToUpper(strings.TrimSpace(r.Action))
	if action == "" {
		action = ActionDisplay
	}
	if action != ActionDisplay && action != ActionEmail && action != ActionAudio {
		return nil, invalidInput("invalid reminder action: %s (supported: DISPLAY, EMAIL, AUDIO)", r.Action)
	}
	if r.MinutesBefore < 0 {
		return nil, invalidInput("reminder minutes_before must not be negative, got %d", r.MinutesBefore)
	}

	description := r.Description
	if description == "" {
		description = title
	}

	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, action)

	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-PT%dM", r.MinutesBefore)
	alarm.Props.Set(trigger)

	if action == ActionEmail {
		alarm.Props.SetText(ical.PropSummary, title)
	}
	alarm.Props.SetText(ical.PropDescription, description)
	if action == ActionEmail && strings.Contains(r.EmailTo, "@") {
		attendee := ical.NewProp(ical.PropAttendee)
		attendee.Value = mailtoPrefix + strings.TrimSpace(r.EmailTo)
		alarm.Props.Add(attendee)
	}

	return alarm, nil
}

// parseAlarms reads the VALARM children of an event
func parseAlarms(comp *ical.Component) []Reminder {
	reminders := []Reminder{}
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		r := Reminder{
			Action:      strings.ToUpper(textValue(child.Props, ical.PropAction)),
			Description: textValue(child.Props, ical.PropDescription),
		}
		if trigger := child.Props.Get(ical.PropTrigger); trigger != nil {
			r.MinutesBefore = triggerMinutes(trigger)
		}
		if attendee := child.Props.Get(ical.PropAttendee); attendee != nil {
			r.EmailTo = strings.TrimPrefix(attendee.Value, mailtoPrefix)
		}
		reminders = append(reminders, r)
	}
	return reminders
}

// triggerMinutes converts a relative TRIGGER into minutes before the event.
// Absolute or positive triggers yield 0.
func triggerMinutes(prop *ical.Prop) int {
	if d, err := prop.Duration(); err == nil {
		if d > 0 {
			return 0
		}
		return int(-d / time.Minute)
	}
	var n int
	if _, err := fmt.Sscanf(strings.ToUpper(strings.TrimSpace(prop.Value)), "-PT%dM", &n); err != nil {
		return 0
	}
	return n
}

// textValue returns the unescaped text of a single valued property, or ""
// when absent. Unescaped commas are kept as part of the value.
func textValue(props ical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	return UnescapeText(prop.Value)
}

func intValue(props ical.Props, name string) (int, bool) {
	prop := props.Get(name)
	if prop == nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(prop.Value))
	if err != nil {
		return 0, false
	}
	return v, true
}

func setText(props ical.Props, name, value string) {
	if value == "" {
		props.Del(name)
		return
	}
	props.SetText(name, value)
}

func setInt(props ical.Props, name string, value int) {
	prop := ical.NewProp(name)
	prop.Value = strconv.Itoa(value)
	props.Set(prop)
}

func validatePriority(p int) error {
	if p < 0 || p > maxPriority {
		return invalidInput("priority must be between 0 and 9, got %d", p)
	}
	return nil
}

// BuildCalendar renders a VCALENDAR holding one VEVENT for in.
// in.UID, in.Start and in.End must already be resolved.
func BuildCalendar(in EventInput, now time.Time) (*ical.Calendar, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalidInput("title is required")
	}
	if in.UID == "" {
		return nil, invalidInput("uid is required")
	}
	if !in.End.After(in.Start) {
		return nil, invalidInput("end time %s must be after start time %s",
			FormatTime(in.End, in.AllDay), FormatTime(in.Start, in.AllDay))
	}

	event := ical.NewComponent(ical.CompEvent)
	event.Props.SetText(ical.PropUID, in.UID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	setDateTimeProp(event.Props, ical.PropDateTimeStart, in.Start, in.AllDay)
	setDateTimeProp(event.Props, ical.PropDateTimeEnd, in.End, in.AllDay)
	event.Props.SetText(ical.PropSummary, in.Title)
	setText(event.Props, ical.PropDescription, in.Description)
	setText(event.Props, ical.PropLocation, in.Location)
	event.Props.SetText(ical.PropStatus, "CONFIRMED")
	setInt(event.Props, ical.PropSequence, 0)

	if in.Priority != nil {
		if err := validatePriority(*in.Priority); err != nil {
			return nil, err
		}
		setInt(event.Props, ical.PropPriority, *in.Priority)
	}

	if prop := categoriesProp(in.Categories); prop != nil {
		event.Props.Set(prop)
	}

	if in.Recurrence != nil {
		rule, err := FormatRRule(*in.Recurrence)
		if err != nil {
			return nil, err
		}
		if rule != "" {
			prop := ical.NewProp(ical.PropRecurrenceRule)
			prop.Value = rule
			event.Props.Set(prop)
		}
	}

	for _, a := range in.Attendees {
		if prop, ok := attendeeProp(a); ok {
			event.Props.Add(prop)
		}
	}

	for _, r := range in.Reminders {
		alarm, err := alarmComponent(r, in.Title)
		if err != nil {
			return nil, err
		}
		event.Children = append(event.Children, alarm)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Children = append(cal.Children, event)
	return cal, nil
}

// findEvent returns the master VEVENT of a calendar object, falling back to
// the first VEVENT when every instance is an override.
func findEvent(cal *ical.Calendar) *ical.Component {
	if cal == nil {
		return nil
	}
	var first *ical.Component
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if child.Props.Get(ical.PropRecurrenceID) == nil {
			return child
		}
		if first == nil {
			first = child
		}
	}
	return first
}

// ParseEvent converts a VEVENT into an Event record.
// Floating and date values are interpreted in loc.
func ParseEvent(comp *ical.Component, loc *time.Location) (Event, error) {
	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return Event{}, fmt.Errorf("event %q has no DTSTART", textValue(comp.Props, ical.PropUID))
	}
	start, allDay, err := readDateTimeProp(startProp, loc)
	if err != nil {
		return Event{}, err
	}

	var end time.Time
	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		var endIsDate bool
		end, endIsDate, err = readDateTimeProp(endProp, loc)
		if err != nil {
			return Event{}, err
		}
		if endIsDate && !allDay {
			end = end.Add(24*time.Hour - time.Second)
		}
	} else if durProp := comp.Props.Get(ical.PropDuration); durProp != nil {
		d, err := durProp.Duration()
		if err != nil {
			return Event{}, fmt.Errorf("failed to parse DURATION: %w", err)
		}
		end = start.Add(d)
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	} else {
		end = start.Add(time.Hour)
	}

	event := Event{
		UID:         textValue(comp.Props, ical.PropUID),
		Title:       textValue(comp.Props, ical.PropSummary),
		Start:       FormatTime(start, allDay),
		End:         FormatTime(end, allDay),
		AllDay:      allDay,
		Description: textValue(comp.Props, ical.PropDescription),
		Location:    textValue(comp.Props, ical.PropLocation),
		Categories:  parseCategories(comp.Props),
		Attendees:   parseAttendees(comp.Props),
		Alarms:      parseAlarms(comp),
		Status:      textValue(comp.Props, ical.PropStatus),
		startTime:   start,
		endTime:     end,
	}
	if rule := comp.Props.Get(ical.PropRecurrenceRule); rule != nil {
		event.RecurrenceRule = rule.Value
	}
	if p, ok := intValue(comp.Props, ical.PropPriority); ok {
		event.Priority = &p
	}
	if seq, ok := intValue(comp.Props, ical.PropSequence); ok {
		event.Sequence = seq
	}
	return event, nil
}

// ApplyUpdate merges upd into the VEVENT comp. It reports whether anything
// changed; on change SEQUENCE is incremented and DTSTAMP set to now.
func ApplyUpdate(comp *ical.Component, upd EventUpdate, loc *time.Location, now time.Time) (bool, error) {
	if upd.IsEmpty() {
		return false, nil
	}

	if upd.Title != nil {
		if strings.TrimSpace(*upd.Title) == "" {
			return false, invalidInput("title cannot be empty")
		}
		comp.Props.SetText(ical.PropSummary, *upd.Title)
	}

	if upd.Start != nil || upd.End != nil {
		allDay := false
		if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
			if _, isDate, err := readDateTimeProp(prop, loc); err == nil {
				allDay = isDate
			}
		}
		if upd.Start != nil {
			setDateTimeProp(comp.Props, ical.PropDateTimeStart, *upd.Start, allDay)
		}
		if upd.End != nil {
			comp.Props.Del(ical.PropDuration)
			setDateTimeProp(comp.Props, ical.PropDateTimeEnd, *upd.End, allDay)
		}
	}

	if upd.Description != nil {
		setText(comp.Props, ical.PropDescription, *upd.Description)
	}
	if upd.Location != nil {
		setText(comp.Props, ical.PropLocation, *upd.Location)
	}

	if upd.RecurrenceRule != nil {
		if strings.TrimSpace(*upd.RecurrenceRule) == "" {
			comp.Props.Del(ical.PropRecurrenceRule)
		} else {
			rule, err := NormalizeRRule(*upd.RecurrenceRule)
			if err != nil {
				return false, err
			}
			prop := ical.NewProp(ical.PropRecurrenceRule)
			prop.Value = rule
			comp.Props.Set(prop)
		}
	}

	if upd.Categories != nil {
		comp.Props.Del(ical.PropCategories)
		if prop := categoriesProp(*upd.Categories); prop != nil {
			comp.Props.Set(prop)
		}
	}

	if upd.Priority != nil {
		if err := validatePriority(*upd.Priority); err != nil {
			return false, err
		}
		setInt(comp.Props, ical.PropPriority, *upd.Priority)
	}

	seq, _ := intValue(comp.Props, ical.PropSequence)
	setInt(comp.Props, ical.PropSequence, seq+1)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())

	return true, nil
}
