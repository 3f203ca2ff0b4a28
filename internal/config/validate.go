package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Devices.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("devices: %w", err))
	}
	if err := c.Discovery.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("discovery: %w", err))
	}
	if err := c.Client.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("client: %w", err))
	}
	if err := c.Push.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("push: %w", err))
	}
	if err := c.Settle.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("settle: %w", err))
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.TUI.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tui: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks DevicesConfig for errors.
func (c *DevicesConfig) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, d := range c.Static {
		if d.IP == "" {
			errs = append(errs, fmt.Errorf("static[%d]: ip is required", i))
			continue
		}
		if _, err := netip.ParseAddr(d.IP); err != nil {
			errs = append(errs, fmt.Errorf("static[%d]: invalid ip %q", i, d.IP))
		}
		if d.Port < 0 || d.Port > 65535 {
			errs = append(errs, fmt.Errorf("static[%d]: invalid port %d", i, d.Port))
		}
		if d.ID != "" {
			if seen[d.ID] {
				errs = append(errs, fmt.Errorf("static[%d]: duplicate id %s", i, d.ID))
			}
			seen[d.ID] = true
		}
	}
	return errors.Join(errs...)
}

// Validate checks DiscoveryConfig for errors.
func (c *DiscoveryConfig) Validate() error {
	if c.Timeout < 0 {
		return errors.New("timeout must be non-negative")
	}
	if c.ScanTimeout < 0 {
		return errors.New("scan_timeout must be non-negative")
	}
	if c.ScanBatch < 0 {
		return errors.New("scan_batch must be non-negative")
	}
	for _, s := range c.Subnets {
		if _, err := netip.ParsePrefix(s); err != nil {
			return fmt.Errorf("invalid subnet %q: %w", s, err)
		}
	}
	return nil
}

// Validate checks ClientConfig for errors.
func (c *ClientConfig) Validate() error {
	if c.Timeout < 0 {
		return errors.New("timeout must be non-negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Validate checks PushConfig for errors.
func (c *PushConfig) Validate() error {
	if c.Interval < 0 || c.MaxInterval < 0 {
		return errors.New("intervals must be non-negative")
	}
	if c.MaxAttempts < 0 {
		return errors.New("max_attempts must be non-negative")
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return errors.New("multiplier must be at least 1")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Validate checks SettleConfig for errors.
func (c *SettleConfig) Validate() error {
	if c.Volume < 0 || c.Playback < 0 || c.Track < 0 {
		return errors.New("delays must be non-negative")
	}
	return nil
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	if c.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	return nil
}

// Validate checks TUIConfig for errors.
func (c *TUIConfig) Validate() error {
	switch c.Theme {
	case "", "auto", "dark", "light":
		// valid
	default:
		return fmt.Errorf("invalid theme: %s (must be auto, dark, or light)", c.Theme)
	}
	if c.RefreshInterval < 0 {
		return errors.New("refresh_interval must be non-negative")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	switch c.Format {
	case "", "console", "json":
		// valid
	default:
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.Format)
	}
	return nil
}
