// Package state holds the last-known state of every registered device and
// keeps it fresh.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

// ClientFactory creates the protocol client for a newly registered device.
type ClientFactory func(addr core.DeviceAddress) core.DeviceClient

// ChannelFactory creates the push channel for a newly registered device.
type ChannelFactory func(addr core.DeviceAddress) core.PushChannel

// ChangeKind describes what happened to a device.
type ChangeKind int

const (
	ChangeRegistered ChangeKind = iota
	ChangeUpdated
	ChangeForgotten
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeRegistered:
		return "registered"
	case ChangeUpdated:
		return "updated"
	case ChangeForgotten:
		return "forgotten"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after the store changes.
type Change struct {
	Kind     ChangeKind
	Device   core.DeviceAddress
	Snapshot core.Snapshot
}

// Listener receives store changes. It runs on the writer's goroutine.
type Listener func(Change)

type entry struct {
	addr    core.DeviceAddress
	snap    core.Snapshot
	client  core.DeviceClient
	channel core.PushChannel
	hash    uint64
}

// Store owns device addresses, snapshots and per-device handles.
// Only Apply writes snapshot data; only Register and Forget create and
// destroy handles.
type Store struct {
	newClient  ClientFactory
	newChannel ChannelFactory
	log        *zap.Logger
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	listenMu     sync.RWMutex
	nextListener int
	listeners    map[int]Listener
}

// NewStore creates an empty store. newChannel may be nil to disable push.
func NewStore(newClient ClientFactory, newChannel ChannelFactory, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		newClient:  newClient,
		newChannel: newChannel,
		log:        log.With(zap.String("component", "store")),
		now:        time.Now,
		entries:    make(map[string]*entry),
		listeners:  make(map[int]Listener),
	}
}

// Register adds a device. It returns false if the id is already known,
// in which case nothing changes.
func (s *Store) Register(addr core.DeviceAddress) bool {
	if addr.ID == "" {
		return false
	}

	s.mu.Lock()
	if _, ok := s.entries[addr.ID]; ok {
		s.mu.Unlock()
		return false
	}
	e := &entry{addr: addr}
	if s.newClient != nil {
		e.client = s.newClient(addr)
	}
	if s.newChannel != nil {
		e.channel = s.newChannel(addr)
	}
	e.hash = hashSnapshot(e.snap)
	s.entries[addr.ID] = e
	s.order = append(s.order, addr.ID)
	snap := e.snap
	s.mu.Unlock()

	s.log.Debug("registered", zap.String("id", addr.ID), zap.String("ip", addr.IP))
	s.notify(Change{Kind: ChangeRegistered, Device: addr, Snapshot: snap})
	return true
}

// Forget removes a device, closing its push channel. Unknown ids are ignored.
func (s *Store) Forget(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if e.channel != nil {
		e.channel.Close()
	}
	s.log.Debug("forgotten", zap.String("id", id))
	s.notify(Change{Kind: ChangeForgotten, Device: e.addr})
	return true
}

// Apply merges patch into the device snapshot. Listeners are notified only
// when the snapshot content changed.
func (s *Store) Apply(id string, patch Patch) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("apply %s: %w", id, sterrors.ErrDeviceNotRegistered)
	}
	patch.apply(&e.snap)
	if patch.hasData() {
		e.snap.UpdatedAt = s.now()
	}
	h := hashSnapshot(e.snap)
	changed := h != e.hash
	e.hash = h
	snap := e.snap.Clone()
	addr := e.addr
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeUpdated, Device: addr, Snapshot: snap})
	}
	return nil
}

// Snapshot returns a copy of the device snapshot.
func (s *Store) Snapshot(id string) (core.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return core.Snapshot{}, false
	}
	return e.snap.Clone(), true
}

// Device returns the registered address for id.
func (s *Store) Device(id string) (core.DeviceAddress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return core.DeviceAddress{}, false
	}
	return e.addr, true
}

// Devices returns every registered address in registration order.
func (s *Store) Devices() []core.DeviceAddress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.DeviceAddress, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].addr)
	}
	return out
}

// IDs returns every registered id in registration order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Client returns the protocol client for id.
func (s *Store) Client(id string) (core.DeviceClient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || e.client == nil {
		return nil, false
	}
	return e.client, true
}

// Channel returns the push channel for id, if push is enabled.
func (s *Store) Channel(id string) (core.PushChannel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || e.channel == nil {
		return nil, false
	}
	return e.channel, true
}

// Listen registers fn for change notifications and returns a func that removes it.
func (s *Store) Listen(fn Listener) func() {
	s.listenMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenMu.Unlock()

	return func() {
		s.listenMu.Lock()
		delete(s.listeners, id)
		s.listenMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.listenMu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// hashSnapshot fingerprints the content of a snapshot, ignoring UpdatedAt.
func hashSnapshot(snap core.Snapshot) uint64 {
	snap.UpdatedAt = time.Time{}
	h, err := hashstructure.Hash(snap, hashstructure.FormatV2, nil)
	if err != nil {
		return 0
	}
	return h
}
