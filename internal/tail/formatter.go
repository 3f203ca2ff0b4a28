package tail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tessro/stctl/internal/core"
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithTemplate sets a custom format template.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if tmpl != "" {
			t, err := template.New("format").Parse(tmpl)
			if err == nil {
				f.template = t
			}
		}
	}
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		showEmoji:     true,
		showTimestamp: false,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format formats an event as a string.
func (f *Formatter) Format(e Event) string {
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

// formatLine formats an event as a simple line.
func (f *Formatter) formatLine(e Event) string {
	var parts []string

	// Timestamp
	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}

	// Emoji
	if f.showEmoji {
		parts = append(parts, eventEmoji(e.Type))
	}

	// Event description
	parts = append(parts, f.eventDescription(e))

	return strings.Join(parts, " ")
}

// formatTemplate formats an event using a custom template.
func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:      eventTypeName(e.Type),
		Emoji:     eventEmoji(e.Type),
		Timestamp: e.Timestamp,
		Time:      e.Timestamp.Format("15:04:05"),
		Device:    deviceName(e.Device),
		DeviceID:  e.Device.ID,
	}

	if e.Current != nil && e.Current.NowPlaying != nil {
		np := e.Current.NowPlaying
		data.Title = np.Title()
		data.Artist = np.Artist
		data.Album = np.Album
		data.Source = np.Source
	}

	if e.Current != nil && e.Current.Volume != nil {
		data.Volume = e.Current.Volume.Actual
		data.Muted = e.Current.Volume.Muted
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

type templateData struct {
	Type      string
	Emoji     string
	Timestamp time.Time
	Time      string
	Device    string
	DeviceID  string
	Title     string
	Artist    string
	Album     string
	Source    string
	Volume    int
	Muted     bool
}

func deviceName(d core.DeviceAddress) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// eventDescription returns a human-readable description of the event.
func (f *Formatter) eventDescription(e Event) string {
	return deviceName(e.Device) + ": " + describe(e)
}

func describe(e Event) string {
	var np *core.NowPlaying
	var vol *core.Volume
	if e.Current != nil {
		np, vol = e.Current.NowPlaying, e.Current.Volume
	}

	switch e.Type {
	case EventTrackChange:
		switch {
		case np == nil:
			return "Track changed"
		case np.Artist != "":
			return fmt.Sprintf("Now playing: %s - %s", np.Artist, np.Title())
		default:
			return fmt.Sprintf("Now playing: %s", np.Title())
		}

	case EventPause:
		return "Paused"

	case EventResume:
		return "Resumed"

	case EventStandby:
		return "Standby"

	case EventSourceChange:
		if np != nil {
			return fmt.Sprintf("Source: %s", np.Source)
		}
		return "Source changed"

	case EventVolumeChange:
		if vol != nil {
			return fmt.Sprintf("Volume: %d%%", vol.Actual)
		}
		return "Volume changed"

	case EventMuteChange:
		if vol != nil && vol.Muted {
			return "Muted"
		}
		return "Unmuted"

	case EventZoneChange:
		if e.Current != nil && e.Current.Zone.Active() {
			z := e.Current.Zone
			if z.MasterID == e.Device.ID {
				return fmt.Sprintf("Leading zone of %d", len(z.Members))
			}
			return fmt.Sprintf("Joined zone led by %s", z.MasterID)
		}
		return "Left zone"

	case EventDeviceAdded:
		return fmt.Sprintf("Added (%s)", e.Device.IP)

	case EventDeviceRemoved:
		return "Removed"

	case EventUnreachable:
		if e.Current != nil {
			return fmt.Sprintf("Unreachable: %s", e.Current.LastError)
		}
		return "Unreachable"

	case EventRecovered:
		return "Reachable again"

	default:
		return "Unknown event"
	}
}

// eventEmoji returns an emoji for the event type.
func eventEmoji(t EventType) string {
	switch t {
	case EventTrackChange:
		return "🎵"
	case EventPause:
		return "⏸️"
	case EventResume:
		return "▶️"
	case EventStandby:
		return "💤"
	case EventSourceChange:
		return "🔀"
	case EventVolumeChange:
		return "🔊"
	case EventMuteChange:
		return "🔇"
	case EventZoneChange:
		return "🔗"
	case EventDeviceAdded:
		return "➕"
	case EventDeviceRemoved:
		return "➖"
	case EventUnreachable:
		return "⚠️"
	case EventRecovered:
		return "✅"
	default:
		return "❓"
	}
}

// eventTypeName returns the name of the event type.
func eventTypeName(t EventType) string {
	switch t {
	case EventTrackChange:
		return "track_change"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventStandby:
		return "standby"
	case EventSourceChange:
		return "source_change"
	case EventVolumeChange:
		return "volume_change"
	case EventMuteChange:
		return "mute_change"
	case EventZoneChange:
		return "zone_change"
	case EventDeviceAdded:
		return "device_added"
	case EventDeviceRemoved:
		return "device_removed"
	case EventUnreachable:
		return "unreachable"
	case EventRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// String returns the event type name.
func (t EventType) String() string {
	return eventTypeName(t)
}
