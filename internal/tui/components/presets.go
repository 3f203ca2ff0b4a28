package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/tui/styles"
)

// Presets lists the six preset slots of the selected speaker.
type Presets struct {
	selected int
}

// NewPresets creates a new Presets component
func NewPresets() *Presets {
	return &Presets{}
}

// SelectNext moves the cursor down
func (p *Presets) SelectNext() {
	if p.selected < core.MaxPresetSlot-1 {
		p.selected++
	}
}

// SelectPrev moves the cursor up
func (p *Presets) SelectPrev() {
	if p.selected > 0 {
		p.selected--
	}
}

// Slot returns the selected slot number.
func (p *Presets) Slot() int {
	return p.selected + 1
}

// Render renders the presets panel
func (p *Presets) Render(presets []core.Preset, playing *core.NowPlaying, width, height int, focused bool) string {
	title := styles.PanelTitle("Presets", focused)

	bySlot := make(map[int]core.Preset, len(presets))
	for _, pr := range presets {
		bySlot[pr.Slot] = pr
	}

	lines := make([]string, 0, core.MaxPresetSlot)
	for slot := core.MinPresetSlot; slot <= core.MaxPresetSlot; slot++ {
		if len(lines) >= height-4 {
			break
		}
		num := fmt.Sprintf("%d.", slot)
		selector := "  "
		if focused && slot == p.Slot() {
			selector = "▸ "
		}

		pr, ok := bySlot[slot]
		if !ok {
			lines = append(lines, selector+styles.Dim.Render(num+" empty"))
			continue
		}

		name := truncate(pr.Content.Name, width-12)
		line := fmt.Sprintf("%s%s %s %s", selector, styles.Dim.Render(num), name, styles.Dim.Render(pr.Content.Source))
		if isCurrent(pr, playing) {
			line = styles.Playing.Render(fmt.Sprintf("%s%s ▶ %s", selector, num, name))
		}
		lines = append(lines, line)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", lipgloss.JoinVertical(lipgloss.Left, lines...)))
}

func isCurrent(pr core.Preset, np *core.NowPlaying) bool {
	if np == nil || np.Content == nil || pr.Content.Location == "" {
		return false
	}
	return np.Content.Source == pr.Content.Source && np.Content.Location == pr.Content.Location
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
