package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mcp-caldav/internal/logging"
	"github.com/teemow/mcp-caldav/internal/server"
)

// Resource URIs
const (
	AccountURI   = "caldav://account"
	CalendarsURI = "caldav://calendars"
)

const mimeJSON = "application/json"

// RegisterCalDAVResources registers the account and calendar list resources
func RegisterCalDAVResources(s *mcpserver.MCPServer, sc *server.ServerContext) {
	accountResource := mcp.NewResource(
		AccountURI,
		"CalDAV Account",
		mcp.WithResourceDescription("Connection status of the configured CalDAV account"),
		mcp.WithMIMEType(mimeJSON),
	)
	s.AddResource(accountResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return HandleAccount(ctx, request, sc)
	})

	calendarsResource := mcp.NewResource(
		CalendarsURI,
		"CalDAV Calendars",
		mcp.WithResourceDescription("Calendars of the CalDAV account with the index used by the calendar tools"),
		mcp.WithMIMEType(mimeJSON),
	)
	s.AddResource(calendarsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return HandleCalendars(ctx, request, sc)
	})
}

// accountInfo is the content of the account resource.
// The username is anonymized like in the logs.
type accountInfo struct {
	Configured    bool     `json:"configured"`
	MissingConfig []string `json:"missing_config,omitempty"`
	Server        string   `json:"server,omitempty"`
	User          string   `json:"user,omitempty"`
	Timezone      string   `json:"timezone,omitempty"`
	Connected     bool     `json:"connected"`
	ReadOnly      bool     `json:"read_only"`
	Yandex        bool     `json:"yandex,omitempty"`
}

// HandleAccount returns the account resource
func HandleAccount(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	info := accountInfo{ReadOnly: sc.ReadOnly()}

	client, err := sc.CalendarClient()
	if err != nil {
		var notConfigured *server.NotConfiguredError
		if errors.As(err, &notConfigured) {
			info.MissingConfig = notConfigured.Missing
		}
	} else {
		info.Configured = true
		info.Server = client.Host()
		info.User = logging.AnonymizeUser(client.Username())
		info.Timezone = client.Location().String()
		info.Connected = client.Connected()
		info.Yandex = client.IsYandex()
	}

	return jsonContents(request.Params.URI, info)
}

// HandleCalendars returns the calendar list resource
func HandleCalendars(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	client, err := sc.CalendarClient()
	if err != nil {
		return nil, err
	}

	calendars, err := client.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	return jsonContents(request.Params.URI, map[string]interface{}{
		"count":     len(calendars),
		"calendars": calendars,
	})
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource %s: %w", uri, err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: mimeJSON,
			Text:     string(jsonData),
		},
	}, nil
}
