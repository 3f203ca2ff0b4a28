package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tessro/stctl/internal/browser"
	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/session"
)

var (
	statusAll bool
	artOpen   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what each speaker is playing",
	Long: `Shows now playing, volume and zone for the target speaker, or every
speaker with --all (the default when no speaker is selected).`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "show every speaker")
	artCmd.Flags().BoolVarP(&artOpen, "open", "o", false, "open the artwork in a browser")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(artCmd)
}

var artCmd = &cobra.Command{
	Use:   "art",
	Short: "Show the cover art URL for what is playing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
			snap, _ := sess.Snapshot(id)
			np := snap.NowPlaying
			if np == nil || np.ArtURL == "" {
				return fmt.Errorf("no artwork for what %s is playing", id)
			}
			if ok, err := printStructured(map[string]string{"device": id, "url": np.ArtURL, "status": np.ArtStatus}); ok {
				return err
			}
			fmt.Println(np.ArtURL)
			if artOpen {
				return browser.Open(np.ArtURL)
			}
			return nil
		})
	},
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sess := openSession(ctx, false)
	defer sess.Close()

	var target string
	if !statusAll && (deviceFlag != "" || cfg.Devices.Default != "") {
		id, err := targetDevice(ctx, sess)
		if err != nil {
			return err
		}
		target = id
	}

	statuses := collectStatus(sess)
	if target != "" {
		for _, s := range statuses {
			if s.Device.ID == target {
				statuses = []deviceStatus{s}
				break
			}
		}
	}

	if ok, err := printStructured(statuses); ok {
		return err
	}
	if len(statuses) == 0 {
		fmt.Println("No speakers found")
		return nil
	}

	for i, s := range statuses {
		if i > 0 {
			fmt.Println()
		}
		printDeviceStatus(s)
	}
	return nil
}

func printDeviceStatus(s deviceStatus) {
	snap := s.Snapshot
	np := snap.NowPlaying

	fmt.Printf("[%s]\n", strings.ToUpper(s.Device.Name))

	switch {
	case snap.Stale() && np == nil:
		fmt.Printf("  ⚠ %s\n", snap.LastError)
		return
	case np.IsStandby():
		fmt.Println("  ⏻ Standby")
	default:
		icon := "▶"
		if !np.IsPlaying() {
			icon = "⏸"
		}
		fmt.Printf("  %s %s\n", icon, np.Title())
		if np.Artist != "" || np.Album != "" {
			fmt.Printf("    %s\n", strings.Trim(np.Artist+" — "+np.Album, " —"))
		}
		source := np.Source
		if np.StationName != "" && np.StationName != np.Title() {
			source += " · " + np.StationName
		}
		fmt.Printf("    %s\n", source)
	}

	if v := snap.Volume; v != nil {
		label := fmt.Sprintf("%d%%", v.Actual)
		if v.Muted {
			label = "muted"
		}
		fmt.Printf("    🔊 %s %s\n", FormatLevel(v.Actual, 20), label)
	}

	if z := s.Zone; z != nil {
		fmt.Printf("    🔗 %s\n", zoneSummary(s.Device.ID, z))
	}

	if snap.Stale() {
		fmt.Printf("    ⚠ %s\n", snap.LastError)
	}
	if !snap.UpdatedAt.IsZero() {
		fmt.Printf("    updated %s\n", humanize.Time(snap.UpdatedAt))
	}
}

func zoneSummary(id string, z *core.ZoneView) string {
	names := make([]string, 0, len(z.Members))
	for _, m := range z.Members {
		if m.ID != id {
			names = append(names, m.Name)
		}
	}
	role := "Zone member"
	if z.IsMaster {
		role = "Zone master"
	}
	summary := fmt.Sprintf("%s, %d speakers", role, z.MemberCount)
	if len(names) > 0 {
		summary += ": with " + strings.Join(names, ", ")
	}
	return summary
}
