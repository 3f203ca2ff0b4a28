// Package coretest provides in-memory implementations of the core device
// interfaces for tests.
package coretest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tessro/stctl/internal/core"
)

// Call records one method invocation on a Client.
type Call struct {
	Method string
	Args   []any
}

// Client is a scriptable core.DeviceClient. State reads return the
// configured values; SetVolume and SetMute update them.
type Client struct {
	mu sync.Mutex

	NowPlayingValue *core.NowPlaying
	VolumeValue     *core.Volume
	ZoneValue       *core.Zone
	PresetsValue    []core.Preset

	// Delay is applied to every call.
	Delay time.Duration
	// Hook, when set, is consulted after Fail errors; a non-nil result is
	// returned from the call.
	Hook func(method string, args []any) error

	errs  map[string]error
	calls []Call
}

var _ core.DeviceClient = (*Client)(nil)

// NewClient returns a client reporting an idle device at volume 20.
func NewClient() *Client {
	return &Client{
		NowPlayingValue: &core.NowPlaying{Source: core.SourceStandby, PlayStatus: core.PlayStatusStopped},
		VolumeValue:     &core.Volume{Target: 20, Actual: 20},
		errs:            make(map[string]error),
	}
}

// Fail makes method return err until cleared with a nil err.
func (c *Client) Fail(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, method)
		return
	}
	c.errs[method] = err
}

// SetZoneValue replaces the zone returned by Zone.
func (c *Client) SetZoneValue(z *core.Zone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ZoneValue = z
}

// Calls returns every recorded call.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// CallsTo returns the recorded calls of one method.
func (c *Client) CallsTo(method string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// Reset clears recorded calls.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

func (c *Client) record(ctx context.Context, method string, args ...any) error {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Method: method, Args: args})
	err := c.errs[method]
	delay := c.Delay
	hook := c.Hook
	c.mu.Unlock()

	if err == nil && hook != nil {
		err = hook(method, args)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *Client) NowPlaying(ctx context.Context) (*core.NowPlaying, error) {
	if err := c.record(ctx, "NowPlaying"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.NowPlayingValue, nil
}

func (c *Client) Volume(ctx context.Context) (*core.Volume, error) {
	if err := c.record(ctx, "Volume"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.VolumeValue == nil {
		return nil, nil
	}
	v := *c.VolumeValue
	return &v, nil
}

func (c *Client) Zone(ctx context.Context) (*core.Zone, error) {
	if err := c.record(ctx, "Zone"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ZoneValue, nil
}

func (c *Client) Presets(ctx context.Context) ([]core.Preset, error) {
	if err := c.record(ctx, "Presets"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.PresetsValue), nil
}

func (c *Client) SetVolume(ctx context.Context, level int) error {
	if err := c.record(ctx, "SetVolume", level); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.VolumeValue == nil {
		c.VolumeValue = &core.Volume{}
	}
	c.VolumeValue.Target, c.VolumeValue.Actual = level, level
	return nil
}

func (c *Client) SetMute(ctx context.Context, mute bool) error {
	if err := c.record(ctx, "SetMute", mute); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.VolumeValue == nil {
		c.VolumeValue = &core.Volume{}
	}
	c.VolumeValue.Muted = mute
	return nil
}

func (c *Client) SetBass(ctx context.Context, level int) error {
	return c.record(ctx, "SetBass", level)
}

func (c *Client) PressKey(ctx context.Context, key core.Key) error {
	return c.record(ctx, "PressKey", key)
}

func (c *Client) SelectPreset(ctx context.Context, slot int) error {
	return c.record(ctx, "SelectPreset", slot)
}

func (c *Client) SelectSource(ctx context.Context, source, account string) error {
	return c.record(ctx, "SelectSource", source, account)
}

func (c *Client) SetZone(ctx context.Context, masterID, senderIP string, members []core.ZoneMember) error {
	return c.record(ctx, "SetZone", masterID, senderIP, slices.Clone(members))
}

func (c *Client) AddZoneMember(ctx context.Context, masterID string, member core.ZoneMember) error {
	return c.record(ctx, "AddZoneMember", masterID, member)
}

func (c *Client) RemoveZoneMember(ctx context.Context, masterID string, member core.ZoneMember) error {
	return c.record(ctx, "RemoveZoneMember", masterID, member)
}

// Channel is an in-memory core.PushChannel. Emit delivers events synchronously.
type Channel struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]sub
	connects int
	closed   bool
}

type sub struct {
	category core.UpdateCategory
	handler  core.UpdateHandler
}

var _ core.PushChannel = (*Channel)(nil)

// NewChannel returns an unconnected channel.
func NewChannel() *Channel {
	return &Channel{handlers: make(map[int]sub)}
}

func (c *Channel) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.connects++
	}
}

func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.handlers = make(map[int]sub)
}

func (c *Channel) Subscribe(category core.UpdateCategory, handler core.UpdateHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = sub{category: category, handler: handler}
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Emit delivers ev to matching handlers.
func (c *Channel) Emit(ev core.UpdateEvent) {
	c.mu.Lock()
	var targets []core.UpdateHandler
	for _, s := range c.handlers {
		if s.category == ev.Category || s.category == core.UpdateAll {
			targets = append(targets, s.handler)
		}
	}
	c.mu.Unlock()
	for _, h := range targets {
		h(ev)
	}
}

// Connects returns how many times Connect was called before Close.
func (c *Channel) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscribers returns the number of registered handlers.
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// Fleet hands out one Client and Channel per device id, for use as store factories.
type Fleet struct {
	mu       sync.Mutex
	clients  map[string]*Client
	channels map[string]*Channel
}

// NewFleet returns an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{clients: make(map[string]*Client), channels: make(map[string]*Channel)}
}

// Client returns the client for id, creating it on first use.
func (f *Fleet) Client(id string) *Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[id]
	if !ok {
		c = NewClient()
		f.clients[id] = c
	}
	return c
}

// Channel returns the channel for id, creating it on first use.
func (f *Fleet) Channel(id string) *Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.channels[id]
	if !ok {
		c = NewChannel()
		f.channels[id] = c
	}
	return c
}

// NewClientFor is a client factory keyed by device id.
func (f *Fleet) NewClientFor(addr core.DeviceAddress) core.DeviceClient {
	return f.Client(addr.ID)
}

// NewChannelFor is a channel factory keyed by device id.
func (f *Fleet) NewChannelFor(addr core.DeviceAddress) core.PushChannel {
	return f.Channel(addr.ID)
}
