package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when the client has no CalDAV backend
	ErrNotConnected = errors.New("not connected to CalDAV server")

	// ErrCalendarNotFound is returned when a calendar index or uid does not resolve
	ErrCalendarNotFound = errors.New("calendar not found")

	// ErrEventNotFound is returned when no event carries the requested UID
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidInput marks validation failures of caller supplied values
	ErrInvalidInput = errors.New("invalid input")
)

// EventNotFoundError reports a UID lookup that matched nothing.
// It matches ErrEventNotFound with errors.Is.
type EventNotFoundError struct {
	UID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("Event with UID %s not found", e.UID)
}

// Is implements errors.Is matching against ErrEventNotFound
func (e *EventNotFoundError) Is(target error) bool {
	return target == ErrEventNotFound
}

// InputError reports an invalid caller supplied value.
// It matches ErrInvalidInput with errors.Is.
type InputError struct {
	msg string
}

func (e *InputError) Error() string {
	return e.msg
}

// Is implements errors.Is matching against ErrInvalidInput
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidInput(format string, args ...any) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

func calendarNotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrCalendarNotFound)
}
