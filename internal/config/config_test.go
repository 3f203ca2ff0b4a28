package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Settle: SettleConfig{Volume: 50}}
	cfg.ApplyDefaults()

	if cfg.Settle.Volume != 50 {
		t.Errorf("Settle.Volume = %d, want 50", cfg.Settle.Volume)
	}
	if cfg.Settle.Track != 500 {
		t.Errorf("Settle.Track = %d, want 500", cfg.Settle.Track)
	}
	if cfg.Client.RequestTimeout() != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", cfg.Client.RequestTimeout())
	}
	if cfg.Push.MaxAttempts != 10 {
		t.Errorf("Push.MaxAttempts = %d, want 10", cfg.Push.MaxAttempts)
	}
	if !cfg.Push.IsEnabled() {
		t.Error("push should be enabled by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad ip", func(c *Config) { c.Devices.Static = []DeviceEntry{{IP: "kitchen"}} }, "invalid ip"},
		{"missing ip", func(c *Config) { c.Devices.Static = []DeviceEntry{{Name: "x"}} }, "ip is required"},
		{"duplicate id", func(c *Config) {
			c.Devices.Static = []DeviceEntry{{ID: "A", IP: "10.0.0.1"}, {ID: "A", IP: "10.0.0.2"}}
		}, "duplicate id"},
		{"bad subnet", func(c *Config) { c.Discovery.Subnets = []string{"10.0.0.0"} }, "invalid subnet"},
		{"multiplier", func(c *Config) { c.Push.Multiplier = 0.5 }, "multiplier"},
		{"negative settle", func(c *Config) { c.Settle.Playback = -1 }, "non-negative"},
		{"listen", func(c *Config) { c.Server.Listen = "8765" }, "listen"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "invalid log level"},
		{"theme", func(c *Config) { c.TUI.Theme = "neon" }, "invalid theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[devices]
default = "kitchen"

[[devices.static]]
id = "AABBCC"
name = "Kitchen"
ip = "192.168.1.20"

[devices.aliases]
k = "Kitchen"

[push]
enabled = false
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STCTL_LOG_LEVEL", "debug")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if len(cfg.Devices.Static) != 1 || cfg.Devices.Static[0].IP != "192.168.1.20" {
		t.Errorf("Devices.Static = %+v", cfg.Devices.Static)
	}
	if cfg.Push.IsEnabled() {
		t.Error("push should be disabled")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if got := cfg.ResolveAlias("K"); got != "Kitchen" {
		t.Errorf("ResolveAlias(K) = %q, want Kitchen", got)
	}
	if got := cfg.ResolveAlias("office"); got != "office" {
		t.Errorf("ResolveAlias(office) = %q, want office", got)
	}
}

func TestLoadFromMissing(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, sterrors.ErrConfigNotFound) {
		t.Errorf("LoadFrom() error = %v, want ErrConfigNotFound", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.Devices.Default = "Office"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if got.Devices.Default != "Office" {
		t.Errorf("Devices.Default = %q, want Office", got.Devices.Default)
	}
}

func TestMergeStatic(t *testing.T) {
	entries := []DeviceEntry{
		{Name: "Den", IP: "10.0.0.2"},
		{ID: "AA", Name: "Kitchen", IP: "10.0.0.1"},
	}
	addrs := []core.DeviceAddress{
		{ID: "BB", Name: "SoundTouch 10", IP: "10.0.0.2"},
		{ID: "AA", Name: "Kitchen", IP: "10.0.0.9"},
		{ID: "CC", Name: "Office", IP: "10.0.0.3"},
	}

	got := MergeStatic(entries, addrs)
	want := []DeviceEntry{
		{ID: "BB", Name: "Den", IP: "10.0.0.2"},
		{ID: "AA", Name: "Kitchen", IP: "10.0.0.9"},
		{ID: "CC", Name: "Office", IP: "10.0.0.3"},
	}
	if len(got) != len(want) {
		t.Fatalf("MergeStatic() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
