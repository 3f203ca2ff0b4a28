package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/stctl/internal/tail"
	"github.com/tessro/stctl/internal/tui/styles"
)

// MaxActivity is the number of events the activity panel keeps.
const MaxActivity = 50

// Activity displays recent device events, newest first.
type Activity struct {
	offset    int
	formatter *tail.Formatter
}

// NewActivity creates a new Activity component
func NewActivity() *Activity {
	return &Activity{formatter: tail.NewFormatter(tail.WithEmoji(true))}
}

// ScrollDown scrolls the feed down
func (a *Activity) ScrollDown() {
	a.offset++
}

// ScrollUp scrolls the feed up
func (a *Activity) ScrollUp() {
	if a.offset > 0 {
		a.offset--
	}
}

// Render renders the activity panel
func (a *Activity) Render(events []tail.Event, width, height int, focused bool) string {
	title := styles.PanelTitle("Activity", focused)

	var content string
	if len(events) == 0 {
		content = styles.Muted.Render("Waiting for changes…")
	} else {
		content = a.renderEvents(events, width-4, height-4)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (a *Activity) renderEvents(events []tail.Event, width, maxLines int) string {
	if a.offset >= len(events) {
		a.offset = len(events) - 1
	}

	lines := make([]string, 0, maxLines)
	for _, e := range events[a.offset:] {
		if len(lines) >= maxLines {
			break
		}
		ago := formatTimeAgo(e.Timestamp)
		text := truncate(a.formatter.Format(e), width-len(ago)-1)

		padding := width - lipgloss.Width(text) - len(ago)
		if padding < 1 {
			padding = 1
		}
		lines = append(lines, text+lipgloss.NewStyle().Width(padding).Render("")+styles.Dim.Render(ago))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	if d < time.Minute {
		return "now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return t.Format("Jan 2")
}
