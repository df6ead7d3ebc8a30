// Package config holds process-level configuration for gamehoard.
// Environment variables are the source of truth for feature flags and
// override anything persisted in the settings table. An optional
// config.yaml in the data directory supplies the same values for
// installations that prefer a file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration, resolved once at startup.
type Config struct {
	// DataDir is where the database and logs live. Resolved by DataDir()
	// when empty.
	DataDir string `envconfig:"GAMEHOARD_DATA_DIR" yaml:"data_dir"`

	// DatabasePath overrides the default <data-dir>/gamehoard.db location.
	DatabasePath string `envconfig:"DATABASE_PATH" yaml:"database_path"`

	// Port for the embedded HTTP surface. Binding this port also enforces
	// the single-instance rule.
	Port int `envconfig:"PORT" yaml:"port"`

	// Debug enables categorized file logging.
	Debug bool `envconfig:"DEBUG" yaml:"debug"`

	// LogLevel filters file logging when Debug is on.
	LogLevel string `envconfig:"LOG_LEVEL" yaml:"log_level"`

	// UseSteamClient prefers the PICS worker session over HTTP fallbacks
	// for update tracking.
	UseSteamClient bool `envconfig:"USE_STEAM_CLIENT" yaml:"use_steam_client"`

	// EnableAuth toggles the static-token middleware on the HTTP surface.
	EnableAuth bool `envconfig:"ENABLE_AUTH" yaml:"enable_auth"`

	// SecretKey overrides the persisted cookie-signing secret.
	SecretKey string `envconfig:"SECRET_KEY" yaml:"secret_key"`

	// SessionExpiryDays controls session cookie lifetime.
	SessionExpiryDays int `envconfig:"SESSION_EXPIRY_DAYS" yaml:"session_expiry_days"`

	// SteamHelperPath points at the external Steam protocol helper binary
	// used by the PICS worker session.
	SteamHelperPath string `envconfig:"STEAM_HELPER_PATH" yaml:"steam_helper_path"`
}

// Load resolves configuration: yaml file first (if present), then
// environment variables on top. Env always wins.
func Load() (*Config, error) {
	var cfg Config

	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}

	// File layer is optional.
	path := filepath.Join(dataDir, "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "gamehoard.db")
	}
	if cfg.Port == 0 {
		cfg.Port = 8750
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.SessionExpiryDays == 0 {
		cfg.SessionExpiryDays = 30
	}
	return &cfg, nil
}

// DataDir picks the data directory: explicit env override first, then a
// platform per-user directory when running as an installed executable,
// falling back to the working directory for source checkouts.
func DataDir() (string, error) {
	if dir := os.Getenv("GAMEHOARD_DATA_DIR"); dir != "" {
		return dir, nil
	}

	if runningFromSource() {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		return wd, nil
	}

	return userDataDir()
}

// userDataDir returns the platform-specific per-user directory.
func userDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "gamehoard"), nil
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, "Library", "Application Support", "gamehoard"), nil
		}
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "gamehoard"), nil
		}
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, ".local", "share", "gamehoard"), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".gamehoard"), nil
}

// runningFromSource reports whether the binary sits inside a source
// checkout (go.mod next to the executable's working directory).
func runningFromSource() bool {
	wd, err := os.Getwd()
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(wd, "go.mod"))
	return err == nil
}
