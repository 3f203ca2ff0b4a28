package core

import "testing"

func TestZoneActive(t *testing.T) {
	tests := []struct {
		name string
		zone *Zone
		want bool
	}{
		{name: "nil", zone: nil, want: false},
		{name: "no master", zone: &Zone{Members: []ZoneMember{{DeviceID: "AA"}, {DeviceID: "BB"}}}, want: false},
		{name: "master only", zone: &Zone{MasterID: "AA", Members: []ZoneMember{{DeviceID: "AA"}}}, want: false},
		{name: "two members", zone: &Zone{MasterID: "AA", Members: []ZoneMember{{DeviceID: "AA"}, {DeviceID: "BB"}}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.zone.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPresetKey(t *testing.T) {
	for slot := MinPresetSlot; slot <= MaxPresetSlot; slot++ {
		k := PresetKey(slot)
		if !ValidKey(k) {
			t.Errorf("PresetKey(%d) = %q, not a valid key", slot, k)
		}
	}
	if ValidPresetSlot(0) || ValidPresetSlot(7) {
		t.Error("slots 0 and 7 must be invalid")
	}
}

func TestNowPlayingTitle(t *testing.T) {
	np := &NowPlaying{Source: "INTERNET_RADIO", StationName: "KEXP"}
	if got := np.Title(); got != "KEXP" {
		t.Errorf("Title() = %q, want %q", got, "KEXP")
	}

	np.Track = "Song"
	if got := np.Title(); got != "Song" {
		t.Errorf("Title() = %q, want %q", got, "Song")
	}

	var idle *NowPlaying
	if !idle.IsStandby() {
		t.Error("nil NowPlaying should be standby")
	}
	if idle.IsPlaying() {
		t.Error("nil NowPlaying should not be playing")
	}
}

func TestSnapshotCloneDoesNotAlias(t *testing.T) {
	s := Snapshot{Presets: []Preset{{Slot: 1}}}
	c := s.Clone()
	c.Presets[0].Slot = 2
	if s.Presets[0].Slot != 1 {
		t.Error("Clone() presets alias the original")
	}
}

func TestDeviceAddressHostPort(t *testing.T) {
	a := DeviceAddress{IP: "192.168.1.10"}
	if got := a.HostPort(); got != "192.168.1.10:8090" {
		t.Errorf("HostPort() = %q, want %q", got, "192.168.1.10:8090")
	}
}
