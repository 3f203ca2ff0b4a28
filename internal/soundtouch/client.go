// Package soundtouch speaks the Bose SoundTouch local protocol: the HTTP/XML
// control API on port 8090 and the WebSocket update channel on port 8080.
package soundtouch

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

// KeySender is the sender attribute attached to key presses.
const KeySender = "Gabbo"

const (
	// keyReleaseDelay separates the press and release of a key.
	keyReleaseDelay = 100 * time.Millisecond
	// keyReleaseTimeout bounds a release sent after the caller's context ended.
	keyReleaseTimeout = time.Second
)

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client talks to a single SoundTouch device.
type Client struct {
	addr core.DeviceAddress
	http *transport
	log  *zap.Logger

	// releaseDelay is shortened in tests.
	releaseDelay time.Duration
}

var _ core.DeviceClient = (*Client)(nil)

// NewClient creates a client for the device at addr.
func NewClient(addr core.DeviceAddress, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		addr:         addr,
		http:         newTransport(addr.HostPort(), opts.Timeout),
		log:          log.With(zap.String("device", addr.IP)),
		releaseDelay: keyReleaseDelay,
	}
}

// Address returns the device address the client was created with.
func (c *Client) Address() core.DeviceAddress {
	return c.addr
}

// ==================== Device Info ====================

// Info retrieves the device self-description.
func (c *Client) Info(ctx context.Context) (*core.DeviceInfo, error) {
	var x infoXML
	if err := c.http.getXML(ctx, "/info", &x); err != nil {
		return nil, err
	}
	return x.toCore(), nil
}

// Name returns the device name.
func (c *Client) Name(ctx context.Context) (string, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

// SetName renames the device.
func (c *Client) SetName(ctx context.Context, name string) error {
	type nameXML struct {
		XMLName xml.Name `xml:"name"`
		Value   string   `xml:",chardata"`
	}
	return c.http.post(ctx, "/name", nameXML{Value: name})
}

// Capabilities lists the device capabilities.
func (c *Client) Capabilities(ctx context.Context) ([]core.Capability, error) {
	var x capabilitiesXML
	if err := c.http.getXML(ctx, "/capabilities", &x); err != nil {
		return nil, err
	}
	caps := make([]core.Capability, 0, len(x.Capabilities))
	for _, cp := range x.Capabilities {
		caps = append(caps, core.Capability{Name: cp.Name, URL: cp.URL, Info: cp.Info})
	}
	return caps, nil
}

// ==================== Volume ====================

// Volume retrieves the current volume state.
func (c *Client) Volume(ctx context.Context) (*core.Volume, error) {
	var x volumeXML
	if err := c.http.getXML(ctx, "/volume", &x); err != nil {
		return nil, err
	}
	return x.toCore(), nil
}

// SetVolume sets the volume level (0-100). Out of range levels are rejected.
func (c *Client) SetVolume(ctx context.Context, level int) error {
	if !core.ValidVolume(level) {
		return fmt.Errorf("%w: %d", sterrors.ErrInvalidVolume, level)
	}
	type setVolumeXML struct {
		XMLName xml.Name `xml:"volume"`
		Level   int      `xml:",chardata"`
	}
	return c.http.post(ctx, "/volume", setVolumeXML{Level: level})
}

// SetMute sets the mute state.
func (c *Client) SetMute(ctx context.Context, mute bool) error {
	type muteXML struct {
		XMLName xml.Name `xml:"volume"`
		Muted   bool     `xml:"muteenabled"`
	}
	return c.http.post(ctx, "/volume", muteXML{Muted: mute})
}

// ==================== Bass ====================

// BassCapabilities retrieves the supported bass range.
func (c *Client) BassCapabilities(ctx context.Context) (*core.BassCapabilities, error) {
	var x bassCapabilitiesXML
	if err := c.http.getXML(ctx, "/bassCapabilities", &x); err != nil {
		return nil, err
	}
	return &core.BassCapabilities{
		Available: strings.TrimSpace(x.Available) == "true",
		Min:       atoi(x.Min),
		Max:       atoi(x.Max),
		Default:   atoi(x.Default),
	}, nil
}

// Bass retrieves the current bass setting.
func (c *Client) Bass(ctx context.Context) (*core.Bass, error) {
	var x bassXML
	if err := c.http.getXML(ctx, "/bass", &x); err != nil {
		return nil, err
	}
	return &core.Bass{Target: atoi(x.Target), Actual: atoi(x.Actual)}, nil
}

// SetBass sets the bass level.
func (c *Client) SetBass(ctx context.Context, level int) error {
	type setBassXML struct {
		XMLName xml.Name `xml:"bass"`
		Level   int      `xml:",chardata"`
	}
	return c.http.post(ctx, "/bass", setBassXML{Level: level})
}

// ==================== Now Playing ====================

// NowPlaying retrieves what the device is playing.
func (c *Client) NowPlaying(ctx context.Context) (*core.NowPlaying, error) {
	var x nowPlayingXML
	if err := c.http.getXML(ctx, "/nowPlaying", &x); err != nil {
		return nil, err
	}
	return x.toCore(), nil
}

// Presets retrieves the preset slots.
func (c *Client) Presets(ctx context.Context) ([]core.Preset, error) {
	var x presetsXML
	if err := c.http.getXML(ctx, "/presets", &x); err != nil {
		return nil, err
	}
	return x.toCore(), nil
}

// ==================== Sources ====================

// Sources lists the device's input sources.
func (c *Client) Sources(ctx context.Context) ([]core.Source, error) {
	var x sourcesXML
	if err := c.http.getXML(ctx, "/sources", &x); err != nil {
		return nil, err
	}
	sources := make([]core.Source, 0, len(x.Items))
	for _, s := range x.Items {
		sources = append(sources, core.Source{
			Source:  s.Source,
			Account: s.Account,
			Status:  s.Status,
			Name:    strings.TrimSpace(s.Name),
		})
	}
	return sources, nil
}

// SelectSource switches to source, optionally for a specific account.
func (c *Client) SelectSource(ctx context.Context, source, account string) error {
	return c.SelectContent(ctx, core.ContentItem{Source: source, Account: account})
}

// SelectContent starts playing a content item.
func (c *Client) SelectContent(ctx context.Context, item core.ContentItem) error {
	return c.http.post(ctx, "/select", contentItemFromCore(item))
}

// ==================== Key Press ====================

// SendKey sends a single key event.
func (c *Client) SendKey(ctx context.Context, key core.Key, state core.KeyState) error {
	return c.http.post(ctx, "/key", keyXML{State: string(state), Sender: KeySender, Value: string(key)})
}

// PressKey sends press then release. It succeeds once the press succeeds;
// a failed release is logged and ignored.
func (c *Client) PressKey(ctx context.Context, key core.Key) error {
	if !core.ValidKey(key) {
		return fmt.Errorf("%w: %s", sterrors.ErrInvalidKey, key)
	}
	if err := c.SendKey(ctx, key, core.KeyPress); err != nil {
		return err
	}

	// The device has acted once the press lands. A caller deadline during
	// the pause only cuts the pause short; the release still goes out.
	releaseCtx := ctx
	select {
	case <-time.After(c.releaseDelay):
	case <-ctx.Done():
		var cancel context.CancelFunc
		releaseCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), keyReleaseTimeout)
		defer cancel()
	}

	if err := c.SendKey(releaseCtx, key, core.KeyRelease); err != nil {
		c.log.Warn("key release failed", zap.String("key", string(key)), zap.Error(err))
	}
	return nil
}

func (c *Client) Play(ctx context.Context) error       { return c.PressKey(ctx, core.KeyPlay) }
func (c *Client) Pause(ctx context.Context) error      { return c.PressKey(ctx, core.KeyPause) }
func (c *Client) PlayPause(ctx context.Context) error  { return c.PressKey(ctx, core.KeyPlayPause) }
func (c *Client) Stop(ctx context.Context) error       { return c.PressKey(ctx, core.KeyStop) }
func (c *Client) NextTrack(ctx context.Context) error  { return c.PressKey(ctx, core.KeyNextTrack) }
func (c *Client) PrevTrack(ctx context.Context) error  { return c.PressKey(ctx, core.KeyPrevTrack) }
func (c *Client) Power(ctx context.Context) error      { return c.PressKey(ctx, core.KeyPower) }
func (c *Client) Mute(ctx context.Context) error       { return c.PressKey(ctx, core.KeyMute) }
func (c *Client) VolumeUp(ctx context.Context) error   { return c.PressKey(ctx, core.KeyVolumeUp) }
func (c *Client) VolumeDown(ctx context.Context) error { return c.PressKey(ctx, core.KeyVolumeDown) }

// SelectPreset plays preset slot 1-6.
func (c *Client) SelectPreset(ctx context.Context, slot int) error {
	if !core.ValidPresetSlot(slot) {
		return fmt.Errorf("%w: %d", sterrors.ErrInvalidPreset, slot)
	}
	return c.PressKey(ctx, core.PresetKey(slot))
}
