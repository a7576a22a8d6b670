package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"golang.org/x/oauth2"

	"github.com/teemow/mcp-caldav/internal/instrumentation"
	"github.com/teemow/mcp-caldav/internal/logging"
)

const (
	// DefaultUserAgent is sent with every CalDAV request unless overridden
	DefaultUserAgent = "mcp-caldav"

	// DefaultTimeout bounds a single CalDAV HTTP request
	DefaultTimeout = 30 * time.Second
)

// Backend is the subset of the CalDAV protocol used by Client.
// *caldav.Client satisfies it.
type Backend interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
	RemoveAll(ctx context.Context, name string) error
}

// Config holds the connection settings of a CalDAV account
type Config struct {
	URL      string
	Username string
	Password string
	// BearerToken replaces basic auth when set
	BearerToken string
	UserAgent   string
	Timeout     time.Duration
	// Location is used for floating times and naive inputs (default: time.Local)
	Location *time.Location
	Logger   logging.Logger
	Metrics  *instrumentation.Metrics
}

// Client is a CalDAV calendar client.
// The connection is established lazily on first use and reused afterwards.
type Client struct {
	cfg    Config
	loc    *time.Location
	logger logging.Logger
	now    func() time.Time

	dial func() (Backend, error)

	mu      sync.Mutex
	backend Backend
}

// basicAuthTransport adds credentials and the user agent to each request
type basicAuthTransport struct {
	username  string
	password  string
	userAgent string
	base      http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.username != "" || t.password != "" {
		req.SetBasicAuth(t.username, t.password)
	}
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// NewClient creates a Client for the server described by cfg.
// No network request is made until the first operation.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("CalDAV URL is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid CalDAV URL %q: %w", cfg.URL, err)
	}

	c := newClient(cfg)
	c.dial = func() (Backend, error) {
		backend, err := caldav.NewClient(c.httpClient(), c.cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
		}
		return backend, nil
	}
	return c, nil
}

// NewClientWithBackend creates a Client on top of an existing backend
func NewClientWithBackend(cfg Config, backend Backend) *Client {
	c := newClient(cfg)
	c.dial = func() (Backend, error) {
		return backend, nil
	}
	return c
}

func newClient(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Client{
		cfg:    cfg,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Client) httpClient() *http.Client {
	var transport http.RoundTripper = &basicAuthTransport{
		username:  c.cfg.Username,
		password:  c.cfg.Password,
		userAgent: c.cfg.UserAgent,
		base:      http.DefaultTransport,
	}
	if c.cfg.BearerToken != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.cfg.BearerToken}),
			Base: &basicAuthTransport{
				userAgent: c.cfg.UserAgent,
				base:      http.DefaultTransport,
			},
		}
	}
	return &http.Client{Transport: transport, Timeout: c.cfg.Timeout}
}

// Location returns the time zone used for floating times
func (c *Client) Location() *time.Location {
	return c.loc
}

// URL returns the configured server URL
func (c *Client) URL() string {
	return c.cfg.URL
}

// Username returns the configured CalDAV username
func (c *Client) Username() string {
	return c.cfg.Username
}

// Host returns the host name of the CalDAV server
func (c *Client) Host() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

var yandexDomains = []string{"yandex.ru", "yandex.com"}

// IsYandex reports whether the server is Yandex Calendar, which rate limits
// write operations aggressively.
func (c *Client) IsYandex() bool {
	host := c.Host()
	for _, domain := range yandexDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Connect establishes the connection and verifies the credentials by
// resolving the current user principal.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connect(ctx)
	return err
}

// Connected reports whether a connection has been established
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend != nil
}

func (c *Client) connect(ctx context.Context) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		return c.backend, nil
	}
	if c.dial == nil {
		return nil, ErrNotConnected
	}

	backend, err := c.dial()
	if err != nil {
		return nil, err
	}

	err = c.instrument(ctx, instrumentation.OperationConnect, func(ctx context.Context) error {
		_, err := backend.FindCurrentUserPrincipal(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CalDAV server %s: %w", c.cfg.URL, err)
	}

	if c.IsYandex() {
		c.logger.Warn("Yandex Calendar detected: write operations are rate limited (about 60 seconds per MB since 2021)",
			logging.Server(c.cfg.URL))
	}
	c.logger.Info("Connected to CalDAV server", logging.Server(c.cfg.URL), logging.UserHash(c.cfg.Username))

	c.backend = backend
	return backend, nil
}

// instrument runs fn inside a CalDAV span and records its outcome
func (c *Client) instrument(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartCalDAVSpan(ctx, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordCalDAVOperation(ctx, operation, status, time.Since(start))
	}
	return err
}

// ListCalendars returns all calendars of the current user in server order
func (c *Client) ListCalendars(ctx context.Context) ([]Calendar, error) {
	backend, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	var found []caldav.Calendar
	err = c.instrument(ctx, instrumentation.OperationListCalendars, func(ctx context.Context) error {
		principal, err := backend.FindCurrentUserPrincipal(ctx)
		if err != nil {
			return fmt.Errorf("failed to find current user principal: %w", err)
		}
		homeSet, err := backend.FindCalendarHomeSet(ctx, principal)
		if err != nil {
			return fmt.Errorf("failed to find calendar home set: %w", err)
		}
		found, err = backend.FindCalendars(ctx, homeSet)
		if err != nil {
			return fmt.Errorf("failed to list calendars: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	calendars := make([]Calendar, 0, len(found))
	for i, cal := range found {
		calendars = append(calendars, Calendar{
			Index:       i,
			UID:         calendarUID(cal.Path),
			Name:        cal.Name,
			URL:         c.resolveURL(cal.Path),
			Description: cal.Description,
			path:        cal.Path,
		})
	}
	return calendars, nil
}

// calendarByIndex resolves a calendar by its position in ListCalendars
func (c *Client) calendarByIndex(ctx context.Context, index int) (Calendar, error) {
	calendars, err := c.ListCalendars(ctx)
	if err != nil {
		return Calendar{}, err
	}
	if len(calendars) == 0 {
		return Calendar{}, calendarNotFound("no calendars found")
	}
	if index < 0 || index >= len(calendars) {
		return Calendar{}, calendarNotFound("Calendar index %d not found. Available calendars: %d", index, len(calendars))
	}
	return calendars[index], nil
}

// calendarByUID resolves a calendar by the last segment of its path or by
// its display name. An empty uid selects the first calendar.
func (c *Client) calendarByUID(ctx context.Context, uid string) (Calendar, error) {
	if uid == "" {
		return c.calendarByIndex(ctx, 0)
	}
	calendars, err := c.ListCalendars(ctx)
	if err != nil {
		return Calendar{}, err
	}
	for _, cal := range calendars {
		if cal.UID == uid || cal.path == uid || cal.URL == uid {
			return cal, nil
		}
	}
	for _, cal := range calendars {
		if strings.EqualFold(cal.Name, uid) {
			return cal, nil
		}
	}
	return Calendar{}, calendarNotFound("calendar %q not found", uid)
}

func (c *Client) resolveURL(p string) string {
	base, err := url.Parse(c.cfg.URL)
	if err != nil {
		return p
	}
	ref, err := url.Parse(p)
	if err != nil {
		return p
	}
	return base.ResolveReference(ref).String()
}

// calendarUID derives a stable identifier from a collection path
func calendarUID(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// objectPath returns the path of a new calendar object inside a collection
func objectPath(collection, uid string) string {
	if !strings.HasSuffix(collection, "/") {
		collection += "/"
	}
	return collection + url.PathEscape(uid) + ".ics"
}
