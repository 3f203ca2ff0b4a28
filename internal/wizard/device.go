package wizard

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/tui/styles"
)

// Choice is a registered device offered to the user.
type Choice struct {
	Device   core.DeviceAddress
	Snapshot core.Snapshot
}

// Label returns the display name, falling back to the address.
func (c Choice) Label() string {
	if c.Device.Name != "" {
		return c.Device.Name
	}
	return c.Device.IP
}

// DeviceModel is the bubbletea model for the device picker.
type DeviceModel struct {
	choices  []Choice
	cursor   int
	selected *core.DeviceAddress
	width    int
	height   int
}

var (
	pickerItem     = lipgloss.NewStyle().PaddingLeft(2)
	pickerSelected = lipgloss.NewStyle().PaddingLeft(2).Background(lipgloss.Color("237"))
)

// NewDeviceModel creates a new device picker model.
func NewDeviceModel(choices []Choice) DeviceModel {
	return DeviceModel{
		choices: choices,
		width:   80,
		height:  20,
	}
}

// Init initializes the model.
func (m DeviceModel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m DeviceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit

		case "enter", " ":
			if len(m.choices) > 0 && m.cursor < len(m.choices) {
				d := m.choices[m.cursor].Device
				m.selected = &d
				return m, tea.Quit
			}

		case "up", "k", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j", "ctrl+n":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}

		case "home", "g":
			m.cursor = 0

		case "end", "G":
			m.cursor = max(0, len(m.choices)-1)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// View renders the model.
func (m DeviceModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Highlight.Render("🔊 Select Speaker"))
	b.WriteString("\n\n")

	if len(m.choices) == 0 {
		b.WriteString(styles.Muted.Render("No speakers found"))
		b.WriteString("\n\n")
		b.WriteString(styles.Dim.Render("Make sure your speakers are powered on and on this network, or add one with 'stctl devices add <ip>'."))
	} else {
		for i, c := range m.choices {
			var line strings.Builder

			if c.Snapshot.NowPlaying.IsPlaying() {
				line.WriteString(styles.Playing.Render("● "))
			} else {
				line.WriteString(styles.Muted.Render("○ "))
			}

			line.WriteString(c.Label())

			info := c.Device.IP
			if c.Device.Type != "" {
				info = c.Device.Type + ", " + info
			}
			line.WriteString(" " + styles.Dim.Render("("+info+")"))

			if np := c.Snapshot.NowPlaying; !np.IsStandby() {
				line.WriteString(styles.Dim.Render(" - " + np.Title()))
			}

			if i == m.cursor {
				b.WriteString(pickerSelected.Render("▸ " + line.String()))
			} else {
				b.WriteString(pickerItem.Render("  " + line.String()))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(styles.Dim.Render("↑/↓ navigate • enter select • esc quit"))
	b.WriteString("\n")
	b.WriteString(styles.Dim.Render("● playing  ○ idle"))

	return b.String()
}

// Selected returns the selected device, or nil if none.
func (m DeviceModel) Selected() *core.DeviceAddress {
	return m.selected
}

// RunDevicePicker runs the device picker and returns the selected device.
func RunDevicePicker(choices []Choice) (*core.DeviceAddress, error) {
	model := NewDeviceModel(choices)
	p := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}
	return finalModel.(DeviceModel).Selected(), nil
}
