package browser

import (
	"runtime"
	"strings"
	"testing"
)

func TestCommandSupported(t *testing.T) {
	switch runtime.GOOS {
	case "darwin", "linux", "windows":
	default:
		t.Skipf("Unsupported platform: %s", runtime.GOOS)
	}

	cmd, err := command(runtime.GOOS, "http://10.0.0.5:8090/art.jpg")
	if err != nil {
		t.Fatalf("command() error = %v", err)
	}
	if got := strings.Join(cmd.Args, " "); !strings.Contains(got, "http://10.0.0.5:8090/art.jpg") {
		t.Errorf("command args = %q, want the URL", got)
	}
}

func TestCommandUnsupported(t *testing.T) {
	if _, err := command("plan9", "http://example.com"); err == nil {
		t.Error("command(plan9) should fail")
	}
}

func TestOpenRejectsNonWebURLs(t *testing.T) {
	for _, target := range []string{"", "file:///etc/passwd", "javascript:alert(1)", "http://"} {
		if err := Open(target); err == nil {
			t.Errorf("Open(%q) error = nil, want error", target)
		}
	}
}
