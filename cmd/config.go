package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/mcp-caldav/internal/calendar"
	"github.com/teemow/mcp-caldav/internal/instrumentation"
	"github.com/teemow/mcp-caldav/internal/logging"
)

// Environment variables read by the serve command
const (
	envCalDAVURL      = "CALDAV_URL"
	envCalDAVUsername = "CALDAV_USERNAME"
	envCalDAVPassword = "CALDAV_PASSWORD"
	envCalDAVToken    = "CALDAV_TOKEN"
	envCalDAVTimezone = "CALDAV_TIMEZONE"
	envCalDAVTimeout  = "CALDAV_TIMEOUT"
	envYandexUsername = "YANDEX_USERNAME"
	envYandexPassword = "YANDEX_PASSWORD"
	envReadOnly       = "CALDAV_READ_ONLY"
	envVerbose        = "MCP_VERBOSE"
	envLogFormat      = "LOG_FORMAT"
	envMetricsEnabled = "METRICS_ENABLED"
	envMetricsAddr    = "METRICS_ADDR"
	defaultEnvFile    = ".env"
)

// CalDAVConfig holds the CalDAV connection settings
type CalDAVConfig struct {
	URL      string
	Username string
	Password string
	// Token selects bearer token auth instead of username and password
	Token    string
	Timezone string
	Timeout  time.Duration
}

// Missing returns the names of the environment variables that still need a
// value before a client can be created.
func (c CalDAVConfig) Missing() []string {
	var missing []string
	if c.URL == "" {
		missing = append(missing, envCalDAVURL)
	}
	if c.Token != "" {
		return missing
	}
	if c.Username == "" {
		missing = append(missing, envCalDAVUsername)
	}
	if c.Password == "" {
		missing = append(missing, envCalDAVPassword)
	}
	return missing
}

// ClientConfig converts the settings into a calendar client configuration
func (c CalDAVConfig) ClientConfig(logger *slog.Logger, metrics *instrumentation.Metrics) (calendar.Config, error) {
	loc := time.Local
	if c.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(c.Timezone)
		if err != nil {
			return calendar.Config{}, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}

	return calendar.Config{
		URL:         c.URL,
		Username:    c.Username,
		Password:    c.Password,
		BearerToken: c.Token,
		Timeout:     c.Timeout,
		Location:    loc,
		Logger:      logging.NewSlogAdapter(logger),
		Metrics:     metrics,
	}, nil
}

// LogValue keeps credentials out of logs
func (c CalDAVConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", c.URL),
		slog.String("user", logging.AnonymizeUser(c.Username)),
		slog.String("password", logging.SanitizeSecret(c.Password)),
		slog.String("token", logging.SanitizeSecret(c.Token)),
		slog.String("timezone", c.Timezone),
	)
}

// loadEnvFile loads variables from a dotenv file without overriding the
// environment. A missing default file is not an error.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// firstEnv returns the first non-empty value of the given variables
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// stringSetting fills value from the environment unless the flag was set
// explicitly. Flags take precedence over the environment.
func stringSetting(cmd *cobra.Command, flag string, value *string, keys ...string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := firstEnv(keys...); v != "" {
		*value = v
	}
}

func boolSetting(cmd *cobra.Command, flag string, value *bool, key string) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := firstEnv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", v, key, err)
	}
	*value = b
	return nil
}

func durationSetting(cmd *cobra.Command, flag string, value *time.Duration, key string) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v := firstEnv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", v, key, err)
	}
	*value = d
	return nil
}
