package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/soundtouch"
)

// Set via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

type buildInfo struct {
	Version     string `json:"version" yaml:"version"`
	Commit      string `json:"commit" yaml:"commit"`
	BuildDate   string `json:"build_date" yaml:"build_date"`
	GoVersion   string `json:"go_version" yaml:"go_version"`
	Platform    string `json:"platform" yaml:"platform"`
	ControlPort int    `json:"control_port" yaml:"control_port"`
	PushPort    int    `json:"push_port" yaml:"push_port"`
	MDNSService string `json:"mdns_service" yaml:"mdns_service"`
}

// currentBuild reports the ldflags values, filling unset ones from the
// module build info embedded by `go install`.
func currentBuild(bi *debug.BuildInfo, ok bool) buildInfo {
	info := buildInfo{
		Version:     Version,
		Commit:      Commit,
		BuildDate:   BuildDate,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		ControlPort: core.DefaultPort,
		PushPort:    soundtouch.DefaultPushPort,
		MDNSService: soundtouch.ServiceType,
	}
	if !ok || bi == nil {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

func writeVersion(w io.Writer, info buildInfo, verbose bool) {
	fmt.Fprintf(w, "stctl %s\n", info.Version)
	if !verbose {
		return
	}
	fmt.Fprintf(w, "  commit:     %s\n", info.Commit)
	fmt.Fprintf(w, "  built:      %s\n", info.BuildDate)
	fmt.Fprintf(w, "  go version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "  platform:   %s\n", info.Platform)
	fmt.Fprintf(w, "  devices:    control :%d, updates :%d, mdns %s\n",
		info.ControlPort, info.PushPort, info.MDNSService)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and device protocol information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentBuild(debug.ReadBuildInfo())
		if ok, err := printStructured(info); ok {
			return err
		}
		writeVersion(os.Stdout, info, Verbose())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
