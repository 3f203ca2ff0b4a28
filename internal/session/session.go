// Package session wires the state store, refresher, controls, zone
// coordinator, push channels and discovery into one handle for front ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/soundtouch"
	"github.com/tessro/stctl/internal/state"
	"github.com/tessro/stctl/internal/zone"
)

// Options configures a Session.
type Options struct {
	// NewClient creates protocol clients. Required.
	NewClient state.ClientFactory
	// NewChannel creates push channels. Nil disables push.
	NewChannel state.ChannelFactory
	// Discovery is used by Discover and Resolve. Optional.
	Discovery *soundtouch.Discovery
	// Subnets are scanned by Discover in addition to mDNS.
	Subnets []netip.Prefix
	// MDNS enables the mDNS browse in Discover.
	MDNS    bool
	Delays  state.Delays
	Aliases map[string]string
	Logger  *zap.Logger
}

// Session is the coordinator-facing API over every registered device.
type Session struct {
	store     *state.Store
	refresher *state.Refresher
	controls  *state.Controls
	zones     *zone.Coordinator
	discovery *soundtouch.Discovery
	opts      Options
	log       *zap.Logger

	mu     sync.Mutex
	unsubs map[string]func()
	closed bool
}

// New creates a session with no devices.
func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Delays == (state.Delays{}) {
		opts.Delays = state.DefaultDelays()
	}
	store := state.NewStore(opts.NewClient, opts.NewChannel, log)
	refresher := state.NewRefresher(store, log)
	return &Session{
		store:     store,
		refresher: refresher,
		controls:  state.NewControls(store, refresher, opts.Delays),
		zones:     zone.NewCoordinator(store, refresher, log),
		discovery: opts.Discovery,
		opts:      opts,
		log:       log,
		unsubs:    make(map[string]func()),
	}
}

// Store returns the underlying state store.
func (s *Session) Store() *state.Store { return s.store }

// Controls returns the settle-delayed device commands.
func (s *Session) Controls() *state.Controls { return s.controls }

// Zones returns the zone coordinator.
func (s *Session) Zones() *zone.Coordinator { return s.zones }

// Refresher returns the refresh coordinator.
func (s *Session) Refresher() *state.Refresher { return s.refresher }

// RegisterDevice adds addr, subscribes to its push updates, connects its
// push channel and runs the initial refresh. Registering a known id
// returns its current snapshot without side effects.
func (s *Session) RegisterDevice(ctx context.Context, addr core.DeviceAddress) (*sterrors.PartialResult[core.Snapshot], error) {
	if addr.ID == "" {
		return nil, fmt.Errorf("register %s: device id is required", addr.IP)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("session closed")
	}
	if !s.store.Register(addr) {
		s.mu.Unlock()
		snap, _ := s.store.Snapshot(addr.ID)
		return &sterrors.PartialResult[core.Snapshot]{Data: snap}, nil
	}
	if ch, ok := s.store.Channel(addr.ID); ok && ch != nil {
		id := addr.ID
		s.unsubs[id] = ch.Subscribe(core.UpdateAll, func(ev core.UpdateEvent) {
			s.log.Debug("push update", zap.String("id", id), zap.String("category", string(ev.Category)))
			s.refresher.After(id, 0)
		})
		ch.Connect()
	}
	s.mu.Unlock()

	if s.discovery != nil {
		s.discovery.Add(addr)
	}
	s.log.Info("device registered", zap.String("id", addr.ID), zap.String("name", addr.Name), zap.String("ip", addr.IP))
	return s.refresher.Refresh(ctx, addr.ID), nil
}

// ForgetDevice unregisters id and closes its push channel.
func (s *Session) ForgetDevice(id string) bool {
	s.mu.Lock()
	if unsub, ok := s.unsubs[id]; ok {
		unsub()
		delete(s.unsubs, id)
	}
	s.mu.Unlock()
	return s.store.Forget(id)
}

// Refresh refreshes one device now.
func (s *Session) Refresh(ctx context.Context, id string) *sterrors.PartialResult[core.Snapshot] {
	return s.refresher.Refresh(ctx, id)
}

// RefreshAll refreshes every registered device in parallel.
func (s *Session) RefreshAll(ctx context.Context) *sterrors.PartialResult[[]string] {
	return s.refresher.RefreshAll(ctx, s.store.IDs())
}

// Snapshot returns the last known state of id.
func (s *Session) Snapshot(id string) (core.Snapshot, bool) {
	return s.store.Snapshot(id)
}

// Devices returns registered devices in registration order.
func (s *Session) Devices() []core.DeviceAddress {
	return s.store.Devices()
}

// Resolve maps an identifier to a registered device id. It accepts an id,
// a case-insensitive name, an IP or a configured alias.
func (s *Session) Resolve(identifier string) (string, error) {
	if target, ok := s.opts.Aliases[strings.ToLower(identifier)]; ok {
		identifier = target
	}
	devices := s.store.Devices()
	for _, d := range devices {
		if d.ID == identifier || d.IP == identifier {
			return d.ID, nil
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, identifier) {
			return d.ID, nil
		}
	}
	if s.discovery != nil {
		if addr, ok := s.discovery.GetDevice(identifier); ok {
			if _, registered := s.store.Device(addr.ID); registered {
				return addr.ID, nil
			}
		}
	}
	return "", fmt.Errorf("%q: %w", identifier, sterrors.ErrDeviceNotFound)
}

// Discover finds devices via mDNS and configured subnets and registers
// each one. Data lists every device found, new or not.
func (s *Session) Discover(ctx context.Context) *sterrors.PartialResult[[]core.DeviceAddress] {
	result := &sterrors.PartialResult[[]core.DeviceAddress]{}
	if s.discovery == nil {
		result.AddError(errors.New("discovery not configured"))
		return result
	}

	seen := make(map[string]bool)
	add := func(found []core.DeviceAddress) {
		for _, addr := range found {
			if seen[addr.ID] {
				continue
			}
			seen[addr.ID] = true
			result.Data = append(result.Data, addr)
		}
	}

	if s.opts.MDNS {
		found, err := s.discovery.Browse(ctx)
		if err != nil {
			s.log.Warn("mdns browse failed", zap.Error(err))
			result.AddError(err)
		}
		add(found)
	}
	for _, prefix := range s.opts.Subnets {
		found, err := s.discovery.ScanPrefix(ctx, prefix)
		if err != nil {
			result.AddError(err)
			continue
		}
		add(found)
	}

	for _, addr := range result.Data {
		res, err := s.RegisterDevice(ctx, addr)
		if err != nil {
			result.AddError(err)
			continue
		}
		result.Merge(res.Errors)
	}
	return result
}

// AddStatic registers devices by address. Entries without an id are
// probed for one first.
func (s *Session) AddStatic(ctx context.Context, addrs []core.DeviceAddress) *sterrors.PartialResult[[]core.DeviceAddress] {
	result := &sterrors.PartialResult[[]core.DeviceAddress]{}
	for _, addr := range addrs {
		if addr.ID == "" {
			if s.discovery == nil {
				result.AddError(fmt.Errorf("%s: device id is required", addr.IP))
				continue
			}
			probed, err := s.discovery.Probe(ctx, addr.IP)
			if err != nil {
				result.AddError(sterrors.ForDevice(addr.IP, "probe", err))
				continue
			}
			if addr.Name != "" {
				probed.Name = addr.Name
			}
			if addr.Port != 0 {
				probed.Port = addr.Port
			}
			addr = probed
		}
		res, err := s.RegisterDevice(ctx, addr)
		if err != nil {
			result.AddError(err)
			continue
		}
		result.Merge(res.Errors)
		result.Data = append(result.Data, addr)
	}
	return result
}

// Wait blocks until every settle-delayed refresh has run.
func (s *Session) Wait() {
	s.refresher.Wait()
}

// Close cancels pending refreshes and closes every push channel.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.refresher.Stop()
	for _, id := range s.store.IDs() {
		s.ForgetDevice(id)
	}
}
