package state

import (
	"context"
	"fmt"
	"time"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

// Delays are the settle times between a command and its follow-up refresh.
type Delays struct {
	// Volume applies to volume, mute and bass changes.
	Volume time.Duration
	// Playback applies to play, pause and raw keys.
	Playback time.Duration
	// Track applies to track skips, power, presets and source changes.
	Track time.Duration
}

// DefaultDelays returns the stock settle delays.
func DefaultDelays() Delays {
	return Delays{
		Volume:   200 * time.Millisecond,
		Playback: 300 * time.Millisecond,
		Track:    500 * time.Millisecond,
	}
}

// Controls issues single-device commands and schedules a refresh once the
// device has had time to settle. No refresh is scheduled if the command fails.
type Controls struct {
	store     *Store
	refresher *Refresher
	delays    Delays
}

// NewControls creates controls over store.
func NewControls(store *Store, refresher *Refresher, delays Delays) *Controls {
	return &Controls{store: store, refresher: refresher, delays: delays}
}

func (c *Controls) client(id string) (core.DeviceClient, error) {
	client, ok := c.store.Client(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, sterrors.ErrDeviceNotRegistered)
	}
	return client, nil
}

func (c *Controls) run(id string, delay time.Duration, fn func(core.DeviceClient) error) error {
	client, err := c.client(id)
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return err
	}
	c.refresher.After(id, delay)
	return nil
}

// SetVolume sets the volume of one device.
func (c *Controls) SetVolume(ctx context.Context, id string, level int) error {
	if !core.ValidVolume(level) {
		return fmt.Errorf("%w: %d", sterrors.ErrInvalidVolume, level)
	}
	return c.run(id, c.delays.Volume, func(dc core.DeviceClient) error {
		return dc.SetVolume(ctx, level)
	})
}

// AdjustVolume changes the volume by delta from the last known level,
// clamped to the device range.
func (c *Controls) AdjustVolume(ctx context.Context, id string, delta int) (int, error) {
	snap, ok := c.store.Snapshot(id)
	if !ok {
		return 0, fmt.Errorf("%s: %w", id, sterrors.ErrDeviceNotRegistered)
	}
	if snap.Volume == nil {
		key := core.KeyVolumeUp
		if delta < 0 {
			key = core.KeyVolumeDown
		}
		return 0, c.run(id, c.delays.Volume, func(dc core.DeviceClient) error {
			return dc.PressKey(ctx, key)
		})
	}
	level := max(0, min(100, snap.Volume.Actual+delta))
	return level, c.SetVolume(ctx, id, level)
}

// SetMute sets the mute state.
func (c *Controls) SetMute(ctx context.Context, id string, mute bool) error {
	return c.run(id, c.delays.Volume, func(dc core.DeviceClient) error {
		return dc.SetMute(ctx, mute)
	})
}

// ToggleMute flips the last known mute state, or presses MUTE when unknown.
func (c *Controls) ToggleMute(ctx context.Context, id string) error {
	snap, ok := c.store.Snapshot(id)
	if ok && snap.Volume != nil {
		return c.SetMute(ctx, id, !snap.Volume.Muted)
	}
	return c.run(id, c.delays.Volume, func(dc core.DeviceClient) error {
		return dc.PressKey(ctx, core.KeyMute)
	})
}

// SetBass sets the bass level.
func (c *Controls) SetBass(ctx context.Context, id string, level int) error {
	return c.run(id, c.delays.Volume, func(dc core.DeviceClient) error {
		return dc.SetBass(ctx, level)
	})
}

func (c *Controls) press(ctx context.Context, id string, key core.Key, delay time.Duration) error {
	return c.run(id, delay, func(dc core.DeviceClient) error {
		return dc.PressKey(ctx, key)
	})
}

func (c *Controls) Play(ctx context.Context, id string) error {
	return c.press(ctx, id, core.KeyPlay, c.delays.Playback)
}

func (c *Controls) Pause(ctx context.Context, id string) error {
	return c.press(ctx, id, core.KeyPause, c.delays.Playback)
}

func (c *Controls) PlayPause(ctx context.Context, id string) error {
	return c.press(ctx, id, core.KeyPlayPause, c.delays.Playback)
}

func (c *Controls) Stop(ctx context.Context, id string) error {
	return c.press(ctx, id, core.KeyStop, c.delays.Playback)
}

func (c *Controls) Next(ctx context.Context, id string) error {
	return c.press(ctx, id, core.KeyNextTrack, c.delays.Track)
}

func (c *Controls) Prev(ctx context.Context, id string) error {
	return c.press(ctx, id, core.KeyPrevTrack, c.delays.Track)
}

func (c *Controls) Power(ctx context.Context, id string) error {
	return c.press(ctx, id, core.KeyPower, c.delays.Track)
}

// SendKey presses an arbitrary key.
func (c *Controls) SendKey(ctx context.Context, id string, key core.Key) error {
	if !core.ValidKey(key) {
		return fmt.Errorf("%w: %s", sterrors.ErrInvalidKey, key)
	}
	return c.press(ctx, id, key, c.delays.Playback)
}

// SelectPreset plays preset slot 1-6.
func (c *Controls) SelectPreset(ctx context.Context, id string, slot int) error {
	if !core.ValidPresetSlot(slot) {
		return fmt.Errorf("%w: %d", sterrors.ErrInvalidPreset, slot)
	}
	return c.run(id, c.delays.Track, func(dc core.DeviceClient) error {
		return dc.SelectPreset(ctx, slot)
	})
}

// SelectSource switches input source.
func (c *Controls) SelectSource(ctx context.Context, id, source, account string) error {
	return c.run(id, c.delays.Track, func(dc core.DeviceClient) error {
		return dc.SelectSource(ctx, source, account)
	})
}
