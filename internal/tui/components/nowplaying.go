package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/tui/styles"
)

// NowPlaying displays what the selected speaker is playing and its zone.
type NowPlaying struct{}

// NewNowPlaying creates a new NowPlaying component
func NewNowPlaying() *NowPlaying {
	return &NowPlaying{}
}

// Render renders the now playing panel. view may be nil when the device is
// not in a zone.
func (n *NowPlaying) Render(row *DeviceRow, view *core.ZoneView, width, height int, focused bool) string {
	title := styles.PanelTitle("Now Playing", focused)

	var content string
	switch {
	case row == nil:
		content = styles.Muted.Render("No speaker selected")
	default:
		content = n.renderDevice(row, view, width-4)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (n *NowPlaying) renderDevice(row *DeviceRow, view *core.ZoneView, width int) string {
	snap := row.Snapshot
	np := snap.NowPlaying

	lines := []string{styles.Subtitle.Render(row.Device.String())}

	if np.IsStandby() {
		lines = append(lines, "", styles.StatusIcon(false, true)+" "+styles.Muted.Render("Standby"))
	} else {
		icon := styles.StatusIcon(np.IsPlaying(), false)
		lines = append(lines, "",
			icon+" "+styles.Title.Width(width-4).Render(np.Title()))
		if np.Artist != "" {
			lines = append(lines, "  "+styles.Subtitle.Render(np.Artist))
		}
		if np.Album != "" {
			lines = append(lines, "  "+styles.Dim.Render(np.Album))
		}
		lines = append(lines, "  "+styles.Dim.Render(sourceLabel(np)))
	}

	if snap.Volume != nil {
		barWidth := width - 12
		if barWidth < 10 {
			barWidth = 10
		}
		label := fmt.Sprintf("%3d%%", snap.Volume.Actual)
		if snap.Volume.Muted {
			label = "mute"
		}
		lines = append(lines, "", "🔊 "+styles.ProgressBar(float64(snap.Volume.Actual), barWidth)+" "+label)
	}

	if view != nil {
		lines = append(lines, "", renderZone(row.Device.ID, view))
	}

	status := ""
	if !snap.UpdatedAt.IsZero() {
		status = "updated " + humanize.Time(snap.UpdatedAt)
	}
	if snap.Refreshing {
		status = "refreshing…"
	}
	if snap.Stale() {
		lines = append(lines, "", styles.Failure.Render("! "+snap.LastError))
	}
	if status != "" {
		lines = append(lines, styles.Dim.Render(status))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderZone(id string, view *core.ZoneView) string {
	role := "member"
	if view.IsMaster {
		role = "master"
	}

	names := make([]string, 0, len(view.Members))
	for _, m := range view.Members {
		if m.ID == id {
			continue
		}
		names = append(names, m.Name)
	}

	header := fmt.Sprintf("Zone · %s · %d speakers", role, view.MemberCount)
	if !view.IsMaster && view.Master != nil {
		header += " · master " + view.Master.Name
	}
	return styles.Highlight.Render(header) + "\n" + styles.Muted.Render("  with "+strings.Join(names, ", "))
}

func sourceLabel(np *core.NowPlaying) string {
	if np.StationName != "" && np.StationName != np.Title() {
		return np.Source + " · " + np.StationName
	}
	return np.Source
}
