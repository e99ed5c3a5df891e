package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "floodwatch.yaml")
	content := `
log_level: debug
remote:
  base_url: "http://example.test:8000/"
  location_id: " loc_2 "
refresh:
  interval: 5s
  stale_policy: LAST_COMPLETED
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://example.test:8000", cfg.Remote.BaseURL)
	assert.Equal(t, "loc_2", cfg.Remote.LocationID)
	assert.Equal(t, 40, cfg.Remote.HistoryLimit)
	assert.Equal(t, 5*time.Second, cfg.Refresh.Interval)
	assert.Equal(t, StalePolicyLastCompleted, cfg.Refresh.StalePolicy)
	assert.Equal(t, "—", cfg.Display.Placeholder)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "floodwatch.json")
	content := `{"remote":{"base_url":"https://api.example.test","location_id":"loc_9"},"api":{"enabled":false}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test", cfg.Remote.BaseURL)
	assert.Equal(t, "loc_9", cfg.Remote.LocationID)
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Refresh.Interval)
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("bad scheme", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Remote.BaseURL = "ftp://example.test"
		assert.Error(t, Validate(cfg))
	})

	t.Run("unknown stale policy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Refresh.StalePolicy = "first_wins"
		assert.Error(t, Validate(cfg))
	})

	t.Run("relay without brokers", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Relay.Enabled = true
		assert.Error(t, Validate(cfg))
	})

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Validate(DefaultConfig()))
	})
}

func TestValidateBaseURL(t *testing.T) {
	got, err := ValidateBaseURL("  http://127.0.0.1:8000/// ")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000", got)

	_, err = ValidateBaseURL("")
	assert.Error(t, err)

	_, err = ValidateBaseURL("http://")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FLOODWATCH_BASE_URL":         "http://override.test/",
		"FLOODWATCH_LOCATION_ID":      "loc_3",
		"FLOODWATCH_REFRESH_INTERVAL": "10s",
	}
	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg, func(k string) string { return env[k] }))
	assert.Equal(t, "http://override.test", cfg.Remote.BaseURL)
	assert.Equal(t, "loc_3", cfg.Remote.LocationID)
	assert.Equal(t, 10*time.Second, cfg.Refresh.Interval)

	env["FLOODWATCH_REFRESH_INTERVAL"] = "soon"
	assert.Error(t, ApplyEnv(DefaultConfig(), func(k string) string { return env[k] }))
}

func TestManagerMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Remote.BaseURL, m.Get().Remote.BaseURL)

	next := *m.Get()
	next.Remote.LocationID = "loc_2"
	require.NoError(t, m.Update(&next))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "loc_2", reloaded.Remote.LocationID)
}

func TestManagerUpdateRejectsInvalid(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	next := *m.Get()
	next.Remote.BaseURL = "not a url"
	require.Error(t, m.Update(&next))
	assert.Equal(t, DefaultConfig().Remote.BaseURL, m.Get().Remote.BaseURL)
}

func TestManagerNeedsReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floodwatch.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	needs, err := m.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)

	require.NoError(t, os.WriteFile(path, []byte("remote:\n  location_id: loc_8\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	needs, err = m.NeedsReload()
	require.NoError(t, err)
	assert.True(t, needs)

	cfg, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, "loc_8", cfg.Remote.LocationID)
	assert.Equal(t, "loc_8", m.Get().Remote.LocationID)
}

func touchFuture(t *testing.T, path string, ahead time.Duration) {
	t.Helper()
	ts := time.Now().Add(ahead)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestManagerOverlayRunsOnReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floodwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  location_id: loc_1\n"), 0o644))
	m, err := NewManager(path)
	require.NoError(t, err)

	env := map[string]string{"FLOODWATCH_BASE_URL": "http://env.test"}
	require.NoError(t, m.SetOverlay(func(c *Config) error { return ApplyEnv(c, func(k string) string { return env[k] }) }))
	first := m.Get()
	assert.Equal(t, "http://env.test", first.Remote.BaseURL)

	require.NoError(t, os.WriteFile(path, []byte("remote:\n  location_id: loc_2\n"), 0o644))
	touchFuture(t, path, time.Minute)
	cfg, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, "loc_2", cfg.Remote.LocationID)
	assert.Equal(t, "http://env.test", cfg.Remote.BaseURL)
	assert.Equal(t, "loc_1", first.Remote.LocationID)
}

func TestManagerRejectedOverlayKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floodwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  location_id: loc_1\n"), 0o644))
	m, err := NewManager(path)
	require.NoError(t, err)

	reject := false
	require.NoError(t, m.SetOverlay(func(*Config) error {
		if reject {
			return errors.New("bad override")
		}
		return nil
	}))

	reject = true
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  location_id: loc_2\n"), 0o644))
	touchFuture(t, path, time.Minute)
	_, err = m.Reload()
	require.ErrorContains(t, err, "bad override")
	assert.Equal(t, "loc_1", m.Get().Remote.LocationID)

	needs, err := m.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestManagerWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floodwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  location_id: loc_1\n"), 0o644))
	m, err := NewManager(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan *Config, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Watch(ctx, 10*time.Millisecond, func(c *Config) { reloaded <- c }, nil)
	}()

	require.NoError(t, os.WriteFile(path, []byte("remote:\n  location_id: loc_5\n"), 0o644))
	touchFuture(t, path, time.Minute)

	select {
	case c := <-reloaded:
		assert.Equal(t, "loc_5", c.Remote.LocationID)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not reload")
	}
	assert.Equal(t, "loc_5", m.Get().Remote.LocationID)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "", ResolvePath(""))
	assert.Equal(t, "/etc/floodwatch.yaml", ResolvePath("/etc/floodwatch.yaml"))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "floodwatch.yaml"), ResolvePath("floodwatch.yaml"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "fw.yaml"), ResolvePath("~/fw.yaml"))
}
