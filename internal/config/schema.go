package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Devices   DevicesConfig   `toml:"devices"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Client    ClientConfig    `toml:"client"`
	Push      PushConfig      `toml:"push"`
	Settle    SettleConfig    `toml:"settle"`
	Server    ServerConfig    `toml:"server"`
	TUI       TUIConfig       `toml:"tui"`
	Log       LogConfig       `toml:"log"`
}

// DeviceEntry is a statically configured speaker.
type DeviceEntry struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
	IP   string `toml:"ip"`
	Port int    `toml:"port"`
}

// DevicesConfig holds static devices and name aliases.
type DevicesConfig struct {
	Default string            `toml:"default"`
	Static  []DeviceEntry     `toml:"static"`
	Aliases map[string]string `toml:"aliases"`
}

// DiscoveryConfig holds discovery settings.
type DiscoveryConfig struct {
	MDNS    bool     `toml:"mdns"`
	Timeout int      `toml:"timeout"`
	Subnets []string `toml:"subnets"`
	// ScanTimeout is the per-host probe timeout in milliseconds.
	ScanTimeout int `toml:"scan_timeout"`
	ScanBatch   int `toml:"scan_batch"`
}

// ClientConfig holds protocol client settings.
type ClientConfig struct {
	// Timeout is the request timeout in milliseconds.
	Timeout int `toml:"timeout"`
	Port    int `toml:"port"`
}

// PushConfig holds push channel settings. Durations are milliseconds.
type PushConfig struct {
	Enabled     *bool   `toml:"enabled"`
	Port        int     `toml:"port"`
	Interval    int     `toml:"interval"`
	MaxAttempts int     `toml:"max_attempts"`
	Multiplier  float64 `toml:"multiplier"`
	MaxInterval int     `toml:"max_interval"`
}

// IsEnabled returns true unless push was explicitly disabled.
func (c PushConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SettleConfig holds post-command refresh delays in milliseconds.
type SettleConfig struct {
	Volume   int `toml:"volume"`
	Playback int `toml:"playback"`
	Track    int `toml:"track"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// TUIConfig holds terminal UI settings.
type TUIConfig struct {
	Theme           string `toml:"theme"`
	RefreshInterval int    `toml:"refresh_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// RequestTimeout returns the client timeout as a duration.
func (c ClientConfig) RequestTimeout() time.Duration { return ms(c.Timeout) }

// ReconnectInterval returns the base reconnect delay.
func (c PushConfig) ReconnectInterval() time.Duration { return ms(c.Interval) }

// ReconnectCap returns the maximum reconnect delay.
func (c PushConfig) ReconnectCap() time.Duration { return ms(c.MaxInterval) }

// DiscoveryTimeout returns the mDNS browse window.
func (c DiscoveryConfig) DiscoveryTimeout() time.Duration { return time.Duration(c.Timeout) * time.Second }

// ProbeTimeout returns the per-host scan timeout.
func (c DiscoveryConfig) ProbeTimeout() time.Duration { return ms(c.ScanTimeout) }

// VolumeDelay returns the settle delay after volume and mute commands.
func (c SettleConfig) VolumeDelay() time.Duration { return ms(c.Volume) }

// PlaybackDelay returns the settle delay after play, pause and key commands.
func (c SettleConfig) PlaybackDelay() time.Duration { return ms(c.Playback) }

// TrackDelay returns the settle delay after skip, power, preset and source commands.
func (c SettleConfig) TrackDelay() time.Duration { return ms(c.Track) }
