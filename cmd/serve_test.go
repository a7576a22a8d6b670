package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearCalDAVEnv makes the test independent of the developer's environment
func clearCalDAVEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envCalDAVURL, envCalDAVUsername, envCalDAVPassword, envCalDAVToken,
		envCalDAVTimezone, envCalDAVTimeout, envYandexUsername, envYandexPassword,
		envReadOnly, envVerbose, envLogFormat, envMetricsEnabled, envMetricsAddr,
	} {
		t.Setenv(key, "")
	}
	// Keep the default .env lookup away from the package directory
	t.Chdir(t.TempDir())
}

func newTestServeCmd(t *testing.T, args ...string) (*cobra.Command, *serveOptions) {
	t.Helper()
	opts := &serveOptions{}
	cmd := &cobra.Command{Use: "serve"}
	opts.addFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, opts
}

func TestCalDAVConfig_Missing(t *testing.T) {
	tests := []struct {
		name     string
		config   CalDAVConfig
		expected []string
	}{
		{
			name:     "empty",
			config:   CalDAVConfig{},
			expected: []string{envCalDAVURL, envCalDAVUsername, envCalDAVPassword},
		},
		{
			name:     "basic auth complete",
			config:   CalDAVConfig{URL: "https://dav.example.com", Username: "jane", Password: "secret"},
			expected: nil,
		},
		{
			name:     "password missing",
			config:   CalDAVConfig{URL: "https://dav.example.com", Username: "jane"},
			expected: []string{envCalDAVPassword},
		},
		{
			name:     "token replaces credentials",
			config:   CalDAVConfig{URL: "https://dav.example.com", Token: "abc"},
			expected: nil,
		},
		{
			name:     "token without url",
			config:   CalDAVConfig{Token: "abc"},
			expected: []string{envCalDAVURL},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.Missing())
		})
	}
}

func TestCalDAVConfig_ClientConfig(t *testing.T) {
	t.Run("timezone is loaded", func(t *testing.T) {
		cfg := CalDAVConfig{URL: "https://dav.example.com", Username: "jane", Password: "secret", Timezone: "UTC", Timeout: 5 * time.Second}

		clientConfig, err := cfg.ClientConfig(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "UTC", clientConfig.Location.String())
		assert.Equal(t, 5*time.Second, clientConfig.Timeout)
		assert.Equal(t, "jane", clientConfig.Username)
		assert.NotNil(t, clientConfig.Logger)
	})

	t.Run("local time by default", func(t *testing.T) {
		clientConfig, err := CalDAVConfig{URL: "https://dav.example.com", Token: "abc"}.ClientConfig(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, time.Local, clientConfig.Location)
		assert.Equal(t, "abc", clientConfig.BearerToken)
	})

	t.Run("invalid timezone", func(t *testing.T) {
		_, err := CalDAVConfig{Timezone: "Mars/Olympus_Mons"}.ClientConfig(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timezone")
	})
}

func TestCalDAVConfig_LogValue(t *testing.T) {
	cfg := CalDAVConfig{URL: "https://dav.example.com", Username: "jane@example.com", Password: "hunter2hunter2", Token: "tok-123456789"}

	out := cfg.LogValue().String()
	assert.Contains(t, out, "https://dav.example.com")
	assert.NotContains(t, out, "jane@example.com")
	assert.NotContains(t, out, "hunter2hunter2")
	assert.NotContains(t, out, "tok-123456789")
}

func TestLoadEnvFile(t *testing.T) {
	clearCalDAVEnv(t)

	t.Run("missing default file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(""))
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load env file")
	})

	t.Run("variables are loaded without overriding", func(t *testing.T) {
		const loaded = "MCP_CALDAV_TEST_LOADED"
		const kept = "MCP_CALDAV_TEST_KEPT"
		t.Cleanup(func() { _ = os.Unsetenv(loaded) })
		t.Setenv(kept, "from-env")

		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte(loaded+"=from-file\n"+kept+"=from-file\n"), 0600))

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "from-file", os.Getenv(loaded))
		assert.Equal(t, "from-env", os.Getenv(kept))
	})
}

func TestServeOptions_Resolve(t *testing.T) {
	t.Run("environment fills unset flags", func(t *testing.T) {
		clearCalDAVEnv(t)
		t.Setenv(envCalDAVURL, "https://dav.example.com")
		t.Setenv(envCalDAVUsername, "jane")
		t.Setenv(envCalDAVPassword, "secret")
		t.Setenv(envCalDAVTimeout, "10s")
		t.Setenv(envReadOnly, "true")

		cmd, opts := newTestServeCmd(t)
		require.NoError(t, opts.resolve(cmd))

		assert.Equal(t, "https://dav.example.com", opts.caldav.URL)
		assert.Equal(t, "jane", opts.caldav.Username)
		assert.Equal(t, "secret", opts.caldav.Password)
		assert.Equal(t, 10*time.Second, opts.caldav.Timeout)
		assert.True(t, opts.readOnly)
		assert.Equal(t, "stdio", opts.transport)
	})

	t.Run("flags take precedence", func(t *testing.T) {
		clearCalDAVEnv(t)
		t.Setenv(envCalDAVURL, "https://env.example.com")
		t.Setenv(envReadOnly, "true")

		cmd, opts := newTestServeCmd(t, "--caldav-url=https://flag.example.com", "--read-only=false")
		require.NoError(t, opts.resolve(cmd))

		assert.Equal(t, "https://flag.example.com", opts.caldav.URL)
		assert.False(t, opts.readOnly)
	})

	t.Run("yandex variables as fallback", func(t *testing.T) {
		clearCalDAVEnv(t)
		t.Setenv(envYandexUsername, "ivan@yandex.ru")
		t.Setenv(envYandexPassword, "app-password")

		cmd, opts := newTestServeCmd(t)
		require.NoError(t, opts.resolve(cmd))

		assert.Equal(t, "ivan@yandex.ru", opts.caldav.Username)
		assert.Equal(t, "app-password", opts.caldav.Password)
	})

	t.Run("env file", func(t *testing.T) {
		clearCalDAVEnv(t)
		// Variables set by godotenv are not restored by t.Setenv
		t.Cleanup(func() { _ = os.Unsetenv("MCP_CALDAV_UNUSED") })
		path := filepath.Join(t.TempDir(), "caldav.env")
		require.NoError(t, os.WriteFile(path, []byte("MCP_CALDAV_UNUSED=1\n"), 0600))

		cmd, opts := newTestServeCmd(t, "--env-file="+path)
		assert.NoError(t, opts.resolve(cmd))
	})

	t.Run("invalid values", func(t *testing.T) {
		tests := []struct {
			name string
			env  map[string]string
			args []string
			want string
		}{
			{name: "bool", env: map[string]string{envReadOnly: "maybe"}, want: envReadOnly},
			{name: "duration", env: map[string]string{envCalDAVTimeout: "soon"}, want: envCalDAVTimeout},
			{name: "transport", args: []string{"--transport=websocket"}, want: "unsupported transport type"},
			{name: "log format", env: map[string]string{envLogFormat: "xml"}, want: "unsupported log format"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				clearCalDAVEnv(t)
				for k, v := range tt.env {
					t.Setenv(k, v)
				}

				cmd, opts := newTestServeCmd(t, tt.args...)
				err := opts.resolve(cmd)
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.want)
			})
		}
	})
}

func TestGenerateToolsMarkdown(t *testing.T) {
	out := filepath.Join(t.TempDir(), "tools.md")
	require.NoError(t, runGenerateDocs(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	markdown := string(data)

	assert.Contains(t, markdown, "## CalDAV Tools")
	for _, name := range []string{
		"caldav_list_calendars",
		"caldav_create_event",
		"caldav_update_event",
		"caldav_get_events",
		"caldav_get_today_events",
		"caldav_get_week_events",
		"caldav_get_event_by_uid",
		"caldav_delete_event",
		"caldav_search_events",
	} {
		assert.Contains(t, markdown, "### "+name)
	}
	assert.Contains(t, markdown, "`title` (string, required)")
}

func TestGetCategoryFromToolName(t *testing.T) {
	assert.Equal(t, "CalDAV Tools", getCategoryFromToolName("caldav_get_events"))
	assert.Equal(t, "Other", getCategoryFromToolName("webdav_sync"))
	assert.Equal(t, "Other", getCategoryFromToolName("standalone"))
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(buf.String(), "mcp-caldav version "+version))
}
