// Package config loads tabtimer's YAML configuration.
//
// Values come from, in increasing priority: built-in defaults, the config
// file and TABTIMER_* environment variables (nested keys use underscores,
// e.g. TABTIMER_AUTO_CLOSE_ENABLED).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lotas/tabtimer/internal/types"
)

const DefaultPort = 19191

// Config is the top-level configuration.
type Config struct {
	Port          int                 `mapstructure:"port" yaml:"port"`
	StateDir      string              `mapstructure:"state_dir" yaml:"state_dir"`
	LogLevel      string              `mapstructure:"log_level" yaml:"log_level"`
	DBPath        string              `mapstructure:"db_path" yaml:"db_path"`
	EmptyTabs     EmptyTabsConfig     `mapstructure:"empty_tabs" yaml:"empty_tabs"`
	AutoClose     AutoCloseConfig     `mapstructure:"auto_close" yaml:"auto_close"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
}

// EmptyTabsConfig seeds the empty-tab cleanup settings. Values saved from
// the popup take precedence once they exist in the database.
type EmptyTabsConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	CheckInterval   time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
}

// AutoCloseConfig gates the inactivity sweep.
type AutoCloseConfig struct {
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled"`
	InactivityThreshold time.Duration `mapstructure:"inactivity_threshold" yaml:"inactivity_threshold"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// NotificationsConfig configures the notification gate and timer warnings.
type NotificationsConfig struct {
	Enabled           bool           `mapstructure:"enabled" yaml:"enabled"`
	LastMinuteWarning bool           `mapstructure:"last_minute_warning" yaml:"last_minute_warning"`
	WarningWindow     time.Duration  `mapstructure:"warning_window" yaml:"warning_window"`
	CheckInterval     time.Duration  `mapstructure:"check_interval" yaml:"check_interval"`
	MinInterval       time.Duration  `mapstructure:"min_interval" yaml:"min_interval"`
	DailyLimits       map[string]int `mapstructure:"daily_limits" yaml:"daily_limits"`
}

// DefaultPath returns ~/.config/tabtimer/config.yaml (or the platform
// equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "tabtimer", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	state := filepath.Join(home, ".local", "share", "tabtimer")
	empty := types.DefaultEmptyTabSettings()
	return Config{
		Port:     DefaultPort,
		StateDir: state,
		LogLevel: "info",
		DBPath:   filepath.Join(state, "tabtimer.db"),
		EmptyTabs: EmptyTabsConfig{
			Enabled:         empty.Enabled,
			CleanupInterval: empty.CleanupInterval,
			CheckInterval:   empty.CheckInterval,
		},
		AutoClose: AutoCloseConfig{
			Enabled:             false,
			InactivityThreshold: 60 * time.Minute,
			SweepInterval:       5 * time.Minute,
		},
		Notifications: NotificationsConfig{
			Enabled:           true,
			LastMinuteWarning: true,
			WarningWindow:     60 * time.Second,
			CheckInterval:     5 * time.Second,
			MinInterval:       60 * time.Second,
			DailyLimits: map[string]int{
				string(types.CategoryTimerWarning): 5,
				string(types.CategoryPerformance):  2,
				string(types.CategoryGeneral):      3,
			},
		},
	}
}

// Load reads the configuration at path. An empty path means DefaultPath; a
// missing file is not an error.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TABTIMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", cfg.Port)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("db_path", "")
	v.SetDefault("empty_tabs.enabled", cfg.EmptyTabs.Enabled)
	v.SetDefault("empty_tabs.cleanup_interval", cfg.EmptyTabs.CleanupInterval)
	v.SetDefault("empty_tabs.check_interval", cfg.EmptyTabs.CheckInterval)
	v.SetDefault("auto_close.enabled", cfg.AutoClose.Enabled)
	v.SetDefault("auto_close.inactivity_threshold", cfg.AutoClose.InactivityThreshold)
	v.SetDefault("auto_close.sweep_interval", cfg.AutoClose.SweepInterval)
	v.SetDefault("notifications.enabled", cfg.Notifications.Enabled)
	v.SetDefault("notifications.last_minute_warning", cfg.Notifications.LastMinuteWarning)
	v.SetDefault("notifications.warning_window", cfg.Notifications.WarningWindow)
	v.SetDefault("notifications.check_interval", cfg.Notifications.CheckInterval)
	v.SetDefault("notifications.min_interval", cfg.Notifications.MinInterval)
	v.SetDefault("notifications.daily_limits", cfg.Notifications.DailyLimits)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if out.DBPath == "" {
		out.DBPath = filepath.Join(out.StateDir, "tabtimer.db")
	}
	if err := out.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// Validate rejects values the router cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"empty_tabs.cleanup_interval", c.EmptyTabs.CleanupInterval},
		{"empty_tabs.check_interval", c.EmptyTabs.CheckInterval},
		{"auto_close.inactivity_threshold", c.AutoClose.InactivityThreshold},
		{"auto_close.sweep_interval", c.AutoClose.SweepInterval},
		{"notifications.warning_window", c.Notifications.WarningWindow},
		{"notifications.check_interval", c.Notifications.CheckInterval},
		{"notifications.min_interval", c.Notifications.MinInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.d)
		}
	}
	return nil
}

// EmptyTabSettings converts the empty_tabs section.
func (c Config) EmptyTabSettings() types.EmptyTabSettings {
	return types.EmptyTabSettings{
		Enabled:         c.EmptyTabs.Enabled,
		CleanupInterval: c.EmptyTabs.CleanupInterval,
		CheckInterval:   c.EmptyTabs.CheckInterval,
	}
}

// DailyLimits converts the notification caps to gate categories.
func (c Config) DailyLimits() map[types.NotificationCategory]int {
	out := make(map[types.NotificationCategory]int, len(c.Notifications.DailyLimits))
	for k, n := range c.Notifications.DailyLimits {
		out[types.NotificationCategory(k)] = n
	}
	return out
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
