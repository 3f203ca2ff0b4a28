package core

import "time"

// PlayStatus is the device-reported playback state.
type PlayStatus string

const (
	PlayStatusPlaying   PlayStatus = "PLAY_STATE"
	PlayStatusPaused    PlayStatus = "PAUSE_STATE"
	PlayStatusStopped   PlayStatus = "STOP_STATE"
	PlayStatusBuffering PlayStatus = "BUFFERING_STATE"
	PlayStatusInvalid   PlayStatus = "INVALID_PLAY_STATUS"
)

// SourceStandby is the now-playing source of an idle device.
const SourceStandby = "STANDBY"

// ContentItem references playable content on a device.
type ContentItem struct {
	Source       string `json:"source" yaml:"source"`
	Location     string `json:"location,omitempty" yaml:"location,omitempty"`
	Account      string `json:"account,omitempty" yaml:"account,omitempty"`
	IsPresetable bool   `json:"is_presetable" yaml:"is_presetable"`
	Name         string `json:"name" yaml:"name"`
}

// NowPlaying is what a device is currently playing.
type NowPlaying struct {
	DeviceID        string       `json:"device_id" yaml:"device_id"`
	Source          string       `json:"source" yaml:"source"`
	Content         *ContentItem `json:"content,omitempty" yaml:"content,omitempty"`
	Track           string       `json:"track,omitempty" yaml:"track,omitempty"`
	Artist          string       `json:"artist,omitempty" yaml:"artist,omitempty"`
	Album           string       `json:"album,omitempty" yaml:"album,omitempty"`
	StationName     string       `json:"station_name,omitempty" yaml:"station_name,omitempty"`
	StationLocation string       `json:"station_location,omitempty" yaml:"station_location,omitempty"`
	Description     string       `json:"description,omitempty" yaml:"description,omitempty"`
	ArtURL          string       `json:"art_url,omitempty" yaml:"art_url,omitempty"`
	ArtStatus       string       `json:"art_status,omitempty" yaml:"art_status,omitempty"`
	PlayStatus      PlayStatus   `json:"play_status" yaml:"play_status"`
	ShuffleSetting  string       `json:"shuffle,omitempty" yaml:"shuffle,omitempty"`
	RepeatSetting   string       `json:"repeat,omitempty" yaml:"repeat,omitempty"`
}

// IsStandby returns true if the device is idle.
func (n *NowPlaying) IsStandby() bool {
	return n == nil || n.Source == SourceStandby
}

// IsPlaying returns true if audio is playing or buffering.
func (n *NowPlaying) IsPlaying() bool {
	if n == nil {
		return false
	}
	return n.PlayStatus == PlayStatusPlaying || n.PlayStatus == PlayStatusBuffering
}

// Title returns the best available display title.
func (n *NowPlaying) Title() string {
	switch {
	case n == nil:
		return ""
	case n.Track != "":
		return n.Track
	case n.StationName != "":
		return n.StationName
	case n.Content != nil && n.Content.Name != "":
		return n.Content.Name
	default:
		return n.Source
	}
}

// Preset is one of the six preset slots.
type Preset struct {
	Slot      int         `json:"slot" yaml:"slot"`
	Content   ContentItem `json:"content" yaml:"content"`
	CreatedAt time.Time   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// MinPresetSlot and MaxPresetSlot bound preset slot numbers.
const (
	MinPresetSlot = 1
	MaxPresetSlot = 6
)

// ValidPresetSlot reports whether slot is a selectable preset.
func ValidPresetSlot(slot int) bool {
	return slot >= MinPresetSlot && slot <= MaxPresetSlot
}
