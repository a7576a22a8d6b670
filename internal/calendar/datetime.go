package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const (
	icalDateLayout = "20060102"
	icalUTCLayout  = "20060102T150405Z"

	// DateLayout is the output format for all-day values
	DateLayout = "2006-01-02"
)

// timed layouts accepted by ParseDateTime, offset aware ones first
var dateTimeLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
}

// ParseDateTime parses an ISO 8601 date or datetime.
// Values without an offset are interpreted in loc. The second return value
// reports whether the input was a plain date.
func ParseDateTime(value string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, invalidInput("empty datetime")
	}
	if loc == nil {
		loc = time.Local
	}

	for _, l := range dateTimeLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, value)
		} else {
			t, err = time.ParseInLocation(l.layout, value, loc)
		}
		if err == nil {
			return t, false, nil
		}
	}

	if t, err := time.ParseInLocation(DateLayout, value, loc); err == nil {
		return t, true, nil
	}

	return time.Time{}, false, invalidInput("invalid datetime %q: expected ISO 8601 format (e.g. 2025-01-20T14:00:00)", value)
}

// FormatTime renders a time for event records
func FormatTime(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(DateLayout)
	}
	return t.Format(time.RFC3339)
}

// startOfDay returns midnight of the day containing t in t's location
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// setDateTimeProp stores t on props, as a DATE value for all-day events and
// as a UTC DATE-TIME otherwise.
func setDateTimeProp(props ical.Props, name string, t time.Time, allDay bool) {
	if !allDay {
		props.SetDateTime(name, t.UTC())
		return
	}
	prop := ical.NewProp(name)
	prop.SetDate(t)
	props.Set(prop)
}

// readDateTimeProp parses a DTSTART/DTEND style property.
// Floating values are interpreted in loc; unknown TZIDs fall back to loc.
func readDateTimeProp(prop *ical.Prop, loc *time.Location) (time.Time, bool, error) {
	if loc == nil {
		loc = time.Local
	}

	p := ical.NewProp(prop.Name)
	p.Value = strings.TrimSpace(prop.Value)
	for k, v := range prop.Params {
		p.Params[k] = v
	}

	allDay := strings.EqualFold(p.Params.Get(ical.ParamValue), string(ical.ValueDate)) || len(p.Value) == len(icalDateLayout)
	if allDay {
		p.SetValueType(ical.ValueDate)
	}
	if tzid := p.Params.Get(ical.ParamTimezoneID); tzid != "" {
		if _, err := time.LoadLocation(tzid); err != nil {
			p.Params.Del(ical.ParamTimezoneID)
		}
	}

	t, err := p.DateTime(loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse %s %q: %w", prop.Name, prop.Value, err)
	}
	return t, allDay, nil
}
