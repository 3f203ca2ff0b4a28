package core

import (
	"slices"
	"time"
)

// Volume is a device's volume state. Levels are 0-100.
type Volume struct {
	Target int  `json:"target" yaml:"target"`
	Actual int  `json:"actual" yaml:"actual"`
	Muted  bool `json:"muted" yaml:"muted"`
}

// ValidVolume reports whether level is inside the device range.
func ValidVolume(level int) bool {
	return level >= 0 && level <= 100
}

// ZoneMember is one speaker in a zone.
type ZoneMember struct {
	IP       string `json:"ip" yaml:"ip"`
	DeviceID string `json:"device_id" yaml:"device_id"`
}

// Zone is a master-led multi-room group.
type Zone struct {
	MasterID string       `json:"master_id" yaml:"master_id"`
	Members  []ZoneMember `json:"members" yaml:"members"`
}

// Active returns true if the zone groups more than one speaker.
func (z *Zone) Active() bool {
	return z != nil && z.MasterID != "" && len(z.Members) > 1
}

// Contains reports whether id is a member of the zone.
func (z *Zone) Contains(id string) bool {
	if z == nil {
		return false
	}
	return slices.ContainsFunc(z.Members, func(m ZoneMember) bool { return m.DeviceID == id })
}

// Snapshot is the last-known composite state of one device.
type Snapshot struct {
	NowPlaying *NowPlaying `json:"now_playing" yaml:"now_playing"`
	Volume     *Volume     `json:"volume" yaml:"volume"`
	Zone       *Zone       `json:"zone" yaml:"zone"`
	Presets    []Preset    `json:"presets" yaml:"presets"`
	Refreshing bool        `json:"refreshing" yaml:"refreshing"`
	LastError  string      `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a copy whose slices do not alias s.
// Facet pointers are shared; facets are replaced, never mutated.
func (s Snapshot) Clone() Snapshot {
	s.Presets = slices.Clone(s.Presets)
	return s
}

// Stale returns true if the last refresh reported an error.
func (s Snapshot) Stale() bool {
	return s.LastError != ""
}

// ZoneView is the zone membership of a device resolved against known devices.
// Members lists the non-master speakers.
type ZoneView struct {
	Master      *DeviceAddress  `json:"master,omitempty" yaml:"master,omitempty"`
	Members     []DeviceAddress `json:"members" yaml:"members"`
	IsMaster    bool            `json:"is_master" yaml:"is_master"`
	IsSlave     bool            `json:"is_slave" yaml:"is_slave"`
	MemberCount int             `json:"member_count" yaml:"member_count"`
}
