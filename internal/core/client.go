package core

import (
	"context"
	"strconv"
)

// Key is a remote-control key constant accepted by /key.
type Key string

const (
	KeyPlay           Key = "PLAY"
	KeyPause          Key = "PAUSE"
	KeyStop           Key = "STOP"
	KeyPrevTrack      Key = "PREV_TRACK"
	KeyNextTrack      Key = "NEXT_TRACK"
	KeyThumbsUp       Key = "THUMBS_UP"
	KeyThumbsDown     Key = "THUMBS_DOWN"
	KeyBookmark       Key = "BOOKMARK"
	KeyPower          Key = "POWER"
	KeyMute           Key = "MUTE"
	KeyVolumeUp       Key = "VOLUME_UP"
	KeyVolumeDown     Key = "VOLUME_DOWN"
	KeyAuxInput       Key = "AUX_INPUT"
	KeyShuffleOff     Key = "SHUFFLE_OFF"
	KeyShuffleOn      Key = "SHUFFLE_ON"
	KeyRepeatOff      Key = "REPEAT_OFF"
	KeyRepeatOne      Key = "REPEAT_ONE"
	KeyRepeatAll      Key = "REPEAT_ALL"
	KeyPlayPause      Key = "PLAY_PAUSE"
	KeyAddFavorite    Key = "ADD_FAVORITE"
	KeyRemoveFavorite Key = "REMOVE_FAVORITE"
)

// PresetKey returns the key that selects preset slot. The caller validates slot.
func PresetKey(slot int) Key {
	return Key("PRESET_" + strconv.Itoa(slot))
}

var knownKeys = map[Key]bool{
	KeyPlay: true, KeyPause: true, KeyStop: true, KeyPrevTrack: true, KeyNextTrack: true,
	KeyThumbsUp: true, KeyThumbsDown: true, KeyBookmark: true, KeyPower: true, KeyMute: true,
	KeyVolumeUp: true, KeyVolumeDown: true, KeyAuxInput: true, KeyShuffleOff: true,
	KeyShuffleOn: true, KeyRepeatOff: true, KeyRepeatOne: true, KeyRepeatAll: true,
	KeyPlayPause: true, KeyAddFavorite: true, KeyRemoveFavorite: true,
	"PRESET_1": true, "PRESET_2": true, "PRESET_3": true,
	"PRESET_4": true, "PRESET_5": true, "PRESET_6": true,
}

// ValidKey reports whether k is a key the device understands.
func ValidKey(k Key) bool {
	return knownKeys[k]
}

// KeyState is the press phase sent with a key.
type KeyState string

const (
	KeyPress   KeyState = "press"
	KeyRelease KeyState = "release"
)

// DeviceClient defines the per-device protocol operations the engine depends on.
type DeviceClient interface {
	// State queries
	NowPlaying(ctx context.Context) (*NowPlaying, error)
	Volume(ctx context.Context) (*Volume, error)
	Zone(ctx context.Context) (*Zone, error)
	Presets(ctx context.Context) ([]Preset, error)

	// Controls
	SetVolume(ctx context.Context, level int) error
	SetMute(ctx context.Context, mute bool) error
	SetBass(ctx context.Context, level int) error
	PressKey(ctx context.Context, key Key) error
	SelectPreset(ctx context.Context, slot int) error
	SelectSource(ctx context.Context, source, account string) error

	// Zone topology
	SetZone(ctx context.Context, masterID, senderIP string, members []ZoneMember) error
	AddZoneMember(ctx context.Context, masterID string, member ZoneMember) error
	RemoveZoneMember(ctx context.Context, masterID string, member ZoneMember) error
}

// PushChannel is a per-device real-time change notification connection.
type PushChannel interface {
	Connect()
	Close()
	Subscribe(category UpdateCategory, handler UpdateHandler) (unsubscribe func())
}
