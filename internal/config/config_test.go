package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotas/tabtimer/internal/types"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.EmptyTabs.CleanupInterval)
	assert.Equal(t, time.Hour, cfg.EmptyTabs.CheckInterval)
	assert.False(t, cfg.AutoClose.Enabled)
	assert.Equal(t, time.Hour, cfg.AutoClose.InactivityThreshold)
	assert.Equal(t, 60*time.Second, cfg.Notifications.WarningWindow)
	assert.Equal(t, filepath.Join(cfg.StateDir, "tabtimer.db"), cfg.DBPath)
	assert.Equal(t, 5, cfg.DailyLimits()[types.CategoryTimerWarning])
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 20202
state_dir: /tmp/tabtimer-state
auto_close:
  enabled: true
  inactivity_threshold: 90m
empty_tabs:
  cleanup_interval: 12h
notifications:
  daily_limits:
    timer_warnings: 9
`), 0o644))
	t.Setenv("TABTIMER_AUTO_CLOSE_SWEEP_INTERVAL", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 20202, cfg.Port)
	assert.True(t, cfg.AutoClose.Enabled)
	assert.Equal(t, 90*time.Minute, cfg.AutoClose.InactivityThreshold)
	assert.Equal(t, time.Minute, cfg.AutoClose.SweepInterval)
	assert.Equal(t, 12*time.Hour, cfg.EmptyTabSettings().CleanupInterval)
	assert.True(t, cfg.EmptyTabSettings().Enabled, "unset keys keep their defaults")
	assert.Equal(t, "/tmp/tabtimer-state/tabtimer.db", cfg.DBPath)
	assert.Equal(t, 9, cfg.DailyLimits()[types.CategoryTimerWarning])
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("empty_tabs:\n  check_interval: 0s\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "empty_tabs.check_interval")
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false), "existing file is kept")
	require.NoError(t, WriteDefault(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	want := Default()
	assert.Equal(t, want.EmptyTabs, cfg.EmptyTabs)
	assert.Equal(t, want.AutoClose, cfg.AutoClose)
	assert.Equal(t, want.Notifications.WarningWindow, cfg.Notifications.WarningWindow)
}

func TestLiveFeatures(t *testing.T) {
	cfg := Default()
	live := NewLive(cfg)
	assert.False(t, live.AutoCloseEnabled())

	cfg.AutoClose.Enabled = true
	cfg.AutoClose.InactivityThreshold = 15 * time.Minute
	live.Set(cfg)
	assert.True(t, live.AutoCloseEnabled())
	assert.Equal(t, 15*time.Minute, live.InactivityThreshold())
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auto_close:\n  enabled: false\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	live := NewLive(cfg)

	reloaded := make(chan Config, 4)
	w, err := NewWatcher(path, live, func(c Config) { reloaded <- c })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("auto_close:\n  enabled: true\n"), 0o644))

	select {
	case c := <-reloaded:
		assert.True(t, c.AutoClose.Enabled)
		assert.True(t, live.AutoCloseEnabled())
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
