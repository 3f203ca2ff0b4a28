package wizard

import (
	"os"

	"golang.org/x/term"
)

// Interactive provides interactive fallback functionality.
type Interactive struct {
	enabled bool
	choices []Choice
}

// NewInteractive creates a new interactive handler.
func NewInteractive() *Interactive {
	return &Interactive{
		enabled: true,
	}
}

// SetEnabled enables or disables interactive mode.
func (i *Interactive) SetEnabled(enabled bool) {
	i.enabled = enabled
}

// SetChoices sets the devices offered by the pickers.
func (i *Interactive) SetChoices(choices []Choice) {
	i.choices = choices
}

// IsTerminal returns true if stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// CanInteract returns true if interactive mode is available.
func (i *Interactive) CanInteract() bool {
	return i.enabled && IsTerminal()
}

// PromptDevice launches the device picker if interactive mode is available.
// Returns the selected device id, or "" if cancelled or not interactive.
func (i *Interactive) PromptDevice() (string, error) {
	if !i.CanInteract() || len(i.choices) == 0 {
		return "", nil
	}
	d, err := RunDevicePicker(i.choices)
	if err != nil || d == nil {
		return "", err
	}
	return d.ID, nil
}

// PromptMembers asks which devices should join masterID's zone.
// Returns nil if not interactive.
func (i *Interactive) PromptMembers(masterID string) ([]string, error) {
	if !i.CanInteract() {
		return nil, nil
	}
	return RunMemberPicker(masterID, i.choices)
}

// PickDevice chooses a target without prompting: the only registered
// device, or the only one playing. It returns "" when the choice is ambiguous.
func PickDevice(choices []Choice) string {
	if len(choices) == 1 {
		return choices[0].Device.ID
	}
	var playing string
	count := 0
	for _, c := range choices {
		if c.Snapshot.NowPlaying.IsPlaying() {
			playing = c.Device.ID
			count++
		}
	}
	if count == 1 {
		return playing
	}
	return ""
}
