package wizard

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// MemberOptions builds the zone member choices for masterID. Devices already
// in the master's zone start selected.
func MemberOptions(masterID string, choices []Choice) []huh.Option[string] {
	var current map[string]bool
	for _, c := range choices {
		if c.Device.ID == masterID && c.Snapshot.Zone.Active() {
			current = make(map[string]bool)
			for _, m := range c.Snapshot.Zone.Members {
				current[m.DeviceID] = true
			}
		}
	}

	options := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		if c.Device.ID == masterID {
			continue
		}
		label := c.Label()
		if np := c.Snapshot.NowPlaying; np.IsPlaying() {
			label += " - " + np.Title()
		}
		options = append(options, huh.NewOption(label, c.Device.ID).Selected(current[c.Device.ID]))
	}
	return options
}

// RunMemberPicker shows a multi-select of every device except the master.
func RunMemberPicker(masterID string, choices []Choice) ([]string, error) {
	options := MemberOptions(masterID, choices)
	if len(options) == 0 {
		return nil, nil
	}

	var selected []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select zone members").
				Description("These speakers will play in sync with the master").
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("selection cancelled: %w", err)
	}
	return selected, nil
}
