// Package calendar provides a client for calendars served over CalDAV (RFC 4791).
//
// This package offers functionality for discovering calendars and for creating,
// reading, updating, searching, and deleting events. Events are exchanged as
// iCalendar (RFC 5545) objects and exposed as flat Event records with
// recurrence rules, attendees, reminders, categories, and priority.
//
// The client connects lazily on first use with HTTP basic auth or a bearer
// token and works with any compliant server (Nextcloud, Radicale, Baikal,
// Yandex Calendar, iCloud, Fastmail).
//
// Example usage:
//
//	client, err := calendar.NewClient(calendar.Config{
//	    URL:      "https://caldav.example.com/",
//	    Username: "jane",
//	    Password: "app-password",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// List today's events of the first calendar
//	events, err := client.GetTodayEvents(ctx, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
package calendar
