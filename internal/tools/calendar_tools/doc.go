// Package calendar_tools provides the MCP tools for CalDAV calendars.
//
// All tools carry the caldav_ prefix and return JSON text. Failures are
// reported as tool errors whose text is {"error": "<message>"}.
//
// Read tools:
//   - caldav_list_calendars
//   - caldav_get_events, caldav_get_today_events, caldav_get_week_events
//   - caldav_get_event_by_uid
//   - caldav_search_events
//
// Write tools, registered unless the server runs read-only:
//   - caldav_create_event
//   - caldav_update_event
//   - caldav_delete_event (accepts one UID or a list)
package calendar_tools
