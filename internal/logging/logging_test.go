package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tessro/stctl/internal/config"
)

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("New() with bad level should fail")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stctl.log")
	log, err := New(config.LogConfig{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %q, want hello entry", data)
	}
}

func TestQuietRaisesLevel(t *testing.T) {
	log := Quiet(config.LogConfig{})
	if log.Core().Enabled(-1) {
		t.Error("Quiet logger should not log debug")
	}
	if log.Core().Enabled(0) {
		t.Error("Quiet logger should not log info")
	}
}
