// Package zone runs multi-room topology changes and group volume across
// independent devices.
package zone

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/state"
)

// Result carries the ids refreshed after an operation and any per-device
// failures that did not abort it.
type Result = sterrors.PartialResult[[]string]

// Coordinator executes zone operations against registered devices.
// Each operation makes its authoritative call first; a failure there is
// returned as the error. Follow-up refreshes are best-effort and collected
// in the Result.
type Coordinator struct {
	store     *state.Store
	refresher *state.Refresher
	log       *zap.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(store *state.Store, refresher *state.Refresher, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		refresher: refresher,
		log:       log.With(zap.String("component", "zone")),
	}
}

func (c *Coordinator) device(id string) (core.DeviceAddress, core.DeviceClient, error) {
	addr, ok := c.store.Device(id)
	if !ok {
		return core.DeviceAddress{}, nil, fmt.Errorf("%s: %w", id, sterrors.ErrDeviceNotRegistered)
	}
	client, ok := c.store.Client(id)
	if !ok {
		return core.DeviceAddress{}, nil, fmt.Errorf("%s: %w", id, sterrors.ErrDeviceNotRegistered)
	}
	return addr, client, nil
}

func member(addr core.DeviceAddress) core.ZoneMember {
	return core.ZoneMember{IP: addr.IP, DeviceID: addr.ID}
}

// refresh refreshes ids in parallel and returns them with any failures.
func (c *Coordinator) refresh(ctx context.Context, ids []string) *Result {
	return c.refresher.RefreshAll(ctx, ids)
}

// Create makes masterID the master of a zone containing memberIDs.
// The master and duplicates in memberIDs are ignored.
func (c *Coordinator) Create(ctx context.Context, masterID string, memberIDs []string) (*Result, error) {
	master, client, err := c.device(masterID)
	if err != nil {
		return nil, err
	}

	members := []core.ZoneMember{member(master)}
	ids := []string{masterID}
	for _, id := range memberIDs {
		if slices.Contains(ids, id) {
			continue
		}
		addr, ok := c.store.Device(id)
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, sterrors.ErrDeviceNotRegistered)
		}
		members = append(members, member(addr))
		ids = append(ids, id)
	}

	if err := client.SetZone(ctx, masterID, master.IP, members); err != nil {
		return nil, fmt.Errorf("create zone on %s: %w: %w", masterID, sterrors.ErrMasterUnreachable, err)
	}
	c.log.Info("zone created", zap.String("master", masterID), zap.Strings("members", ids[1:]))

	return c.refresh(ctx, ids), nil
}

// AddMember adds memberID to the zone led by masterID.
func (c *Coordinator) AddMember(ctx context.Context, masterID, memberID string) (*Result, error) {
	_, client, err := c.device(masterID)
	if err != nil {
		return nil, err
	}
	addr, ok := c.store.Device(memberID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", memberID, sterrors.ErrDeviceNotRegistered)
	}

	if err := client.AddZoneMember(ctx, masterID, member(addr)); err != nil {
		return nil, fmt.Errorf("add %s to zone %s: %w", memberID, masterID, err)
	}
	return c.refresh(ctx, []string{masterID, memberID}), nil
}

// RemoveMember removes memberID from the zone led by masterID.
func (c *Coordinator) RemoveMember(ctx context.Context, masterID, memberID string) (*Result, error) {
	_, client, err := c.device(masterID)
	if err != nil {
		return nil, err
	}
	addr, ok := c.store.Device(memberID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", memberID, sterrors.ErrDeviceNotRegistered)
	}

	if err := client.RemoveZoneMember(ctx, masterID, member(addr)); err != nil {
		return nil, fmt.Errorf("remove %s from zone %s: %w", memberID, masterID, err)
	}
	return c.refresh(ctx, []string{masterID, memberID}), nil
}

// Dissolve removes every non-master member of the master's last known zone,
// one at a time in listed order. A failed removal is recorded and the loop
// continues. The loop is not cancelled by ctx. Every known device is
// refreshed afterwards.
func (c *Coordinator) Dissolve(ctx context.Context, masterID string) (*Result, error) {
	_, client, err := c.device(masterID)
	if err != nil {
		return nil, err
	}
	snap, _ := c.store.Snapshot(masterID)
	if snap.Zone == nil {
		return &Result{}, nil
	}

	result := &Result{}
	loopCtx := context.WithoutCancel(ctx)
	for _, m := range snap.Zone.Members {
		if m.DeviceID == masterID {
			continue
		}
		if err := client.RemoveZoneMember(loopCtx, masterID, m); err != nil {
			c.log.Warn("remove zone member failed", zap.String("master", masterID), zap.String("member", m.DeviceID), zap.Error(err))
			result.AddError(sterrors.ForDevice(m.DeviceID, "remove from zone", err))
		}
	}

	refreshed := c.refresh(ctx, c.store.IDs())
	result.Data = refreshed.Data
	result.Merge(refreshed.Errors)
	return result, nil
}

// PlayEverywhere creates a zone led by masterID containing every other
// registered device.
func (c *Coordinator) PlayEverywhere(ctx context.Context, masterID string) (*Result, error) {
	if _, _, err := c.device(masterID); err != nil {
		return nil, err
	}
	var others []string
	for _, id := range c.store.IDs() {
		if id != masterID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return nil, sterrors.ErrNoOtherDevices
	}
	return c.Create(ctx, masterID, others)
}

// SetVolume sets the volume of deviceID, or of every member of its zone.
// Outside a zone a device failure is returned as the error. Inside a zone
// member failures are collected and the other members still change.
func (c *Coordinator) SetVolume(ctx context.Context, deviceID string, level int) (*Result, error) {
	if !core.ValidVolume(level) {
		return nil, fmt.Errorf("%w: %d", sterrors.ErrInvalidVolume, level)
	}
	_, client, err := c.device(deviceID)
	if err != nil {
		return nil, err
	}

	snap, _ := c.store.Snapshot(deviceID)
	if !snap.Zone.Active() {
		if err := client.SetVolume(ctx, level); err != nil {
			return nil, err
		}
		return c.refresh(ctx, []string{deviceID}), nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result = &Result{}
		ids    []string
	)
	for _, m := range snap.Zone.Members {
		mc, ok := c.store.Client(m.DeviceID)
		if !ok {
			continue
		}
		ids = append(ids, m.DeviceID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mc.SetVolume(ctx, level); err != nil {
				c.log.Warn("zone volume failed", zap.String("device", m.DeviceID), zap.Error(err))
				mu.Lock()
				result.AddError(sterrors.ForDevice(m.DeviceID, "set volume", err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	refreshed := c.refresh(ctx, ids)
	result.Data = refreshed.Data
	result.Merge(refreshed.Errors)
	return result, nil
}
