package tail

import (
	"context"
	"sync"
	"time"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/state"
)

// EventType represents the type of device event.
type EventType int

const (
	EventTrackChange EventType = iota
	EventPause
	EventResume
	EventStandby
	EventSourceChange
	EventVolumeChange
	EventMuteChange
	EventZoneChange
	EventDeviceAdded
	EventDeviceRemoved
	EventUnreachable
	EventRecovered
)

// Event represents a device state change.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Device    core.DeviceAddress
	Previous  *core.Snapshot
	Current   *core.Snapshot
}

// Poller refreshes every device. *session.Session implements it.
type Poller interface {
	RefreshAll(ctx context.Context) *sterrors.PartialResult[[]string]
}

// Watcher turns store changes into events. Push updates and settle
// refreshes drive it; an optional poll interval covers devices without push.
type Watcher struct {
	store    *state.Store
	poller   Poller
	interval time.Duration
	events   chan Event
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	prev   map[string]core.Snapshot
	closed bool
}

// NewWatcher creates a watcher. A nil poller or zero interval disables polling.
func NewWatcher(store *state.Store, poller Poller, interval time.Duration) *Watcher {
	return &Watcher{
		store:    store,
		poller:   poller,
		interval: interval,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		prev:     make(map[string]core.Snapshot),
	}
}

// Events returns the channel of device events. It is closed when Start returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start watches until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, d := range w.store.Devices() {
		if snap, ok := w.store.Snapshot(d.ID); ok {
			w.mu.Lock()
			w.prev[d.ID] = snap
			w.mu.Unlock()
		}
	}

	unlisten := w.store.Listen(w.handle)
	defer func() {
		unlisten()
		w.mu.Lock()
		w.closed = true
		close(w.events)
		w.mu.Unlock()
	}()

	var tick <-chan time.Time
	if w.poller != nil && w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-tick:
			w.poller.RefreshAll(ctx)
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) handle(c state.Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	now := time.Now()
	var events []Event
	switch c.Kind {
	case state.ChangeRegistered:
		w.prev[c.Device.ID] = c.Snapshot
		events = append(events, Event{Type: EventDeviceAdded, Timestamp: now, Device: c.Device})
	case state.ChangeForgotten:
		delete(w.prev, c.Device.ID)
		events = append(events, Event{Type: EventDeviceRemoved, Timestamp: now, Device: c.Device})
	default:
		prev, ok := w.prev[c.Device.ID]
		curr := c.Snapshot
		if ok {
			events = diffSnapshots(c.Device, &prev, &curr, now)
		} else {
			events = diffSnapshots(c.Device, nil, &curr, now)
		}
		w.prev[c.Device.ID] = curr
	}

	for _, e := range events {
		select {
		case w.events <- e:
		default:
			// Drop event if channel is full
		}
	}
}

// diffSnapshots compares two snapshots of one device and returns detected
// events. Facets that were not fetched yet are not reported as changes.
func diffSnapshots(dev core.DeviceAddress, prev, curr *core.Snapshot, now time.Time) []Event {
	if curr == nil || curr.Refreshing {
		return nil
	}
	event := func(t EventType) Event {
		return Event{Type: t, Timestamp: now, Device: dev, Previous: prev, Current: curr}
	}

	// First sighting
	if prev == nil {
		if curr.NowPlaying != nil && !curr.NowPlaying.IsStandby() {
			return []Event{event(EventTrackChange)}
		}
		return nil
	}

	var events []Event

	if prev.Stale() != curr.Stale() {
		if curr.Stale() {
			events = append(events, event(EventUnreachable))
		} else {
			events = append(events, event(EventRecovered))
		}
	}

	if p, c := prev.NowPlaying, curr.NowPlaying; p != nil && c != nil {
		switch {
		case !p.IsStandby() && c.IsStandby():
			events = append(events, event(EventStandby))
		case p.Source != c.Source:
			events = append(events, event(EventSourceChange))
		}
		if !c.IsStandby() && trackChanged(p, c) {
			events = append(events, event(EventTrackChange))
		}
		if p.IsPlaying() && !c.IsPlaying() && !c.IsStandby() {
			events = append(events, event(EventPause))
		} else if !p.IsPlaying() && c.IsPlaying() {
			events = append(events, event(EventResume))
		}
	} else if p == nil && c != nil && !c.IsStandby() {
		events = append(events, event(EventTrackChange))
	}

	if p, c := prev.Volume, curr.Volume; p != nil && c != nil {
		if p.Actual != c.Actual {
			events = append(events, event(EventVolumeChange))
		}
		if p.Muted != c.Muted {
			events = append(events, event(EventMuteChange))
		}
	}

	if zoneChanged(prev.Zone, curr.Zone) {
		events = append(events, event(EventZoneChange))
	}

	return events
}

// trackChanged returns true if the playing item changed.
func trackChanged(prev, curr *core.NowPlaying) bool {
	return prev.Track != curr.Track ||
		prev.Artist != curr.Artist ||
		prev.StationName != curr.StationName ||
		contentLocation(prev) != contentLocation(curr)
}

func contentLocation(n *core.NowPlaying) string {
	if n.Content == nil {
		return ""
	}
	return n.Content.Location
}

// zoneChanged returns true if the master or member set changed.
func zoneChanged(prev, curr *core.Zone) bool {
	if !prev.Active() && !curr.Active() {
		return false
	}
	if prev.Active() != curr.Active() || prev.MasterID != curr.MasterID || len(prev.Members) != len(curr.Members) {
		return true
	}
	for _, m := range curr.Members {
		if !prev.Contains(m.DeviceID) {
			return true
		}
	}
	return false
}
