package config

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			MDNS:        true,
			Timeout:     5,
			ScanTimeout: 1000,
			ScanBatch:   20,
		},
		Client: ClientConfig{
			Timeout: 5000,
			Port:    8090,
		},
		Push: PushConfig{
			Port:        8080,
			Interval:    3000,
			MaxAttempts: 10,
			Multiplier:  1,
			MaxInterval: 30000,
		},
		Settle: SettleConfig{
			Volume:   200,
			Playback: 300,
			Track:    500,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8765",
		},
		TUI: TUIConfig{
			Theme:           "auto",
			RefreshInterval: 5000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Discovery
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = d.Discovery.Timeout
	}
	if c.Discovery.ScanTimeout == 0 {
		c.Discovery.ScanTimeout = d.Discovery.ScanTimeout
	}
	if c.Discovery.ScanBatch == 0 {
		c.Discovery.ScanBatch = d.Discovery.ScanBatch
	}

	// Client
	if c.Client.Timeout == 0 {
		c.Client.Timeout = d.Client.Timeout
	}
	if c.Client.Port == 0 {
		c.Client.Port = d.Client.Port
	}

	// Push
	if c.Push.Port == 0 {
		c.Push.Port = d.Push.Port
	}
	if c.Push.Interval == 0 {
		c.Push.Interval = d.Push.Interval
	}
	if c.Push.MaxAttempts == 0 {
		c.Push.MaxAttempts = d.Push.MaxAttempts
	}
	if c.Push.Multiplier == 0 {
		c.Push.Multiplier = d.Push.Multiplier
	}
	if c.Push.MaxInterval == 0 {
		c.Push.MaxInterval = d.Push.MaxInterval
	}

	// Settle
	if c.Settle.Volume == 0 {
		c.Settle.Volume = d.Settle.Volume
	}
	if c.Settle.Playback == 0 {
		c.Settle.Playback = d.Settle.Playback
	}
	if c.Settle.Track == 0 {
		c.Settle.Track = d.Settle.Track
	}

	// Server
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}

	// TUI
	if c.TUI.Theme == "" {
		c.TUI.Theme = d.TUI.Theme
	}
	if c.TUI.RefreshInterval == 0 {
		c.TUI.RefreshInterval = d.TUI.RefreshInterval
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}
