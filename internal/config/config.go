package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.stctlrc, $XDG_CONFIG_HOME/stctl/config.toml, ~/.config/stctl/config.toml
func Load() (*Config, error) {
	cfg := &Config{}

	// Try loading from file
	path := findConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	// Apply defaults, then environment variable overrides
	cfg.ApplyDefaults()
	loadDotEnv()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, sterrors.ErrConfigNotFound)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyDefaults()
	loadDotEnv()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, _ = fmt.Fprintln(f, "# stctl configuration")
	_, _ = fmt.Fprintln(f, "")

	encoder := toml.NewEncoder(f)
	encoder.Indent = "  "
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultPath returns the path used when no config file exists yet.
func DefaultPath() string {
	if p := findConfigFile(); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stctlrc"
	}
	return filepath.Join(home, ".stctlrc")
}

// ResolveAlias maps a configured alias to a device name or id.
// Unknown names are returned unchanged.
func (c *Config) ResolveAlias(name string) string {
	for alias, target := range c.Devices.Aliases {
		if strings.EqualFold(alias, name) {
			return target
		}
	}
	return name
}

// MergeStatic adds addrs to entries. An entry with the same id or IP is
// updated in place; names already set by the user are kept.
func MergeStatic(entries []DeviceEntry, addrs []core.DeviceAddress) []DeviceEntry {
	for _, a := range addrs {
		found := false
		for i := range entries {
			e := &entries[i]
			if (a.ID != "" && e.ID == a.ID) || e.IP == a.IP {
				e.ID = a.ID
				e.IP = a.IP
				if e.Name == "" {
					e.Name = a.Name
				}
				found = true
				break
			}
		}
		if !found {
			entries = append(entries, DeviceEntry{ID: a.ID, Name: a.Name, IP: a.IP, Port: a.Port})
		}
	}
	return entries
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".stctlrc"),
	}

	// XDG_CONFIG_HOME or default
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "stctl", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// loadDotEnv loads .env from the working directory. Existing variables win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Devices
	if v := os.Getenv("STCTL_DEVICE"); v != "" {
		cfg.Devices.Default = v
	}
	if v := os.Getenv("STCTL_DEVICES"); v != "" {
		for _, ip := range strings.Split(v, ",") {
			ip = strings.TrimSpace(ip)
			if ip == "" {
				continue
			}
			cfg.Devices.Static = append(cfg.Devices.Static, DeviceEntry{IP: ip})
		}
	}

	// Discovery
	if v := os.Getenv("STCTL_DISCOVERY_MDNS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Discovery.MDNS = b
		}
	}
	envInt("STCTL_DISCOVERY_TIMEOUT", &cfg.Discovery.Timeout)

	// Client
	envInt("STCTL_CLIENT_TIMEOUT", &cfg.Client.Timeout)

	// Push
	if v := os.Getenv("STCTL_PUSH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Push.Enabled = &b
		}
	}
	envInt("STCTL_PUSH_INTERVAL", &cfg.Push.Interval)
	envInt("STCTL_PUSH_MAX_ATTEMPTS", &cfg.Push.MaxAttempts)

	// Server
	if v := os.Getenv("STCTL_SERVER_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}

	// TUI
	if v := os.Getenv("STCTL_TUI_THEME"); v != "" {
		cfg.TUI.Theme = v
	}
	envInt("STCTL_TUI_REFRESH_INTERVAL", &cfg.TUI.RefreshInterval)

	// Log
	if v := os.Getenv("STCTL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STCTL_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("STCTL_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
