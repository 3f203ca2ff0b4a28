package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/tui/styles"
)

// DeviceRow pairs a registered device with its last-known snapshot.
type DeviceRow struct {
	Device   core.DeviceAddress
	Snapshot core.Snapshot
}

// Devices displays registered speakers
type Devices struct {
	selected int
}

// NewDevices creates a new Devices component
func NewDevices() *Devices {
	return &Devices{selected: 0}
}

// SelectNext selects the next device, stopping at the last of n.
func (d *Devices) SelectNext(n int) {
	if d.selected < n-1 {
		d.selected++
	}
}

// SelectPrev selects the previous device
func (d *Devices) SelectPrev() {
	if d.selected > 0 {
		d.selected--
	}
}

// Selected returns the selected index, clamped to n rows. It is -1 when
// there are no rows.
func (d *Devices) Selected(n int) int {
	if n == 0 {
		return -1
	}
	if d.selected >= n {
		d.selected = n - 1
	}
	return d.selected
}

// Render renders the devices panel
func (d *Devices) Render(rows []DeviceRow, width, height int, focused bool, defaultDevice string) string {
	title := styles.PanelTitle(fmt.Sprintf("Speakers (%d)", len(rows)), focused)

	var content string
	if len(rows) == 0 {
		content = styles.Muted.Render("No speakers registered.\nPress a to add one by address.")
	} else {
		content = d.renderRows(rows, height-4, focused, defaultDevice)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (d *Devices) renderRows(rows []DeviceRow, maxLines int, focused bool, defaultDevice string) string {
	selected := d.Selected(len(rows))
	lines := make([]string, 0, len(rows))

	for i, row := range rows {
		if len(lines) >= maxLines {
			break
		}
		snap := row.Snapshot
		np := snap.NowPlaying

		selector := "  "
		if i == selected {
			selector = "▸ "
		}

		zone := snap.Zone
		zoneIcon := styles.ZoneIcon(zone.Active() && zone.MasterID == row.Device.ID, zone.Active() && zone.Contains(row.Device.ID))

		name := row.Device.Name
		if name == "" {
			name = row.Device.IP
		}
		if i == selected && focused {
			name = styles.Highlight.Render(name)
		}

		star := ""
		if defaultDevice != "" && (defaultDevice == row.Device.ID || defaultDevice == row.Device.Name) {
			star = styles.Paused.Render(" ★")
		}

		volume := ""
		if snap.Volume != nil {
			volume = styles.Dim.Render(fmt.Sprintf(" %d%%", snap.Volume.Actual))
			if snap.Volume.Muted {
				volume = styles.Dim.Render(" muted")
			}
		}

		stale := ""
		if snap.Stale() {
			stale = styles.Failure.Render(" !")
		}

		lines = append(lines, fmt.Sprintf("%s%s %s %s%s%s%s",
			selector, styles.StatusIcon(np.IsPlaying(), np.IsStandby()), zoneIcon, name, star, volume, stale))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
