package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/core/coretest"
	sterrors "github.com/tessro/stctl/internal/errors"
)

func newTestStore(t *testing.T) (*Store, *coretest.Fleet) {
	t.Helper()
	fleet := coretest.NewFleet()
	return NewStore(fleet.NewClientFor, fleet.NewChannelFor, nil), fleet
}

func addr(id string) core.DeviceAddress {
	return core.DeviceAddress{ID: id, Name: id, IP: "10.0.0." + id}
}

func TestRegisterIdempotent(t *testing.T) {
	store, _ := newTestStore(t)

	if !store.Register(addr("1")) {
		t.Fatal("first Register() = false, want true")
	}
	if store.Register(core.DeviceAddress{ID: "1", IP: "10.9.9.9"}) {
		t.Error("second Register() = true, want false")
	}
	got, _ := store.Device("1")
	if got.IP != "10.0.0.1" {
		t.Errorf("Device(1).IP = %q, registration must not change", got.IP)
	}
	if store.Register(core.DeviceAddress{IP: "10.0.0.9"}) {
		t.Error("Register() without id should be rejected")
	}

	snap, ok := store.Snapshot("1")
	if !ok || snap.NowPlaying != nil || snap.Volume != nil || snap.Refreshing {
		t.Errorf("initial snapshot = %+v", snap)
	}
}

func TestDevicesOrder(t *testing.T) {
	store, _ := newTestStore(t)
	for _, id := range []string{"3", "1", "2"} {
		store.Register(addr(id))
	}
	store.Forget("1")

	var ids []string
	for _, d := range store.Devices() {
		ids = append(ids, d.ID)
	}
	if len(ids) != 2 || ids[0] != "3" || ids[1] != "2" {
		t.Errorf("Devices() = %v, want [3 2]", ids)
	}
}

func TestForgetClosesChannel(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))

	if !store.Forget("1") {
		t.Fatal("Forget() = false")
	}
	if !fleet.Channel("1").Closed() {
		t.Error("push channel not closed")
	}
	if _, ok := store.Snapshot("1"); ok {
		t.Error("snapshot still present")
	}
	if _, ok := store.Client("1"); ok {
		t.Error("client still present")
	}
	if store.Forget("1") {
		t.Error("second Forget() = true")
	}
}

func TestApplyMergesFacets(t *testing.T) {
	store, _ := newTestStore(t)
	store.Register(addr("1"))

	vol := &core.Volume{Target: 30, Actual: 30}
	if err := store.Apply("1", Patch{Volume: Value(vol)}); err != nil {
		t.Fatal(err)
	}
	np := &core.NowPlaying{Source: "AUX"}
	if err := store.Apply("1", Patch{NowPlaying: Value(np)}); err != nil {
		t.Fatal(err)
	}

	snap, _ := store.Snapshot("1")
	if snap.Volume == nil || snap.Volume.Actual != 30 {
		t.Errorf("Volume = %+v, want kept", snap.Volume)
	}
	if snap.NowPlaying == nil || snap.NowPlaying.Source != "AUX" {
		t.Errorf("NowPlaying = %+v", snap.NowPlaying)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	// A set nil zone replaces a stale one.
	store.Apply("1", Patch{Zone: Value(&core.Zone{MasterID: "1"})})
	store.Apply("1", Patch{Zone: Value[*core.Zone](nil)})
	snap, _ = store.Snapshot("1")
	if snap.Zone != nil {
		t.Errorf("Zone = %+v, want nil", snap.Zone)
	}
}

func TestApplyUnknown(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Apply("nope", Patch{Refreshing: Value(true)})
	if !errors.Is(err, sterrors.ErrDeviceNotRegistered) {
		t.Errorf("Apply() error = %v, want ErrDeviceNotRegistered", err)
	}
}

func TestListenOnlyOnChange(t *testing.T) {
	store, _ := newTestStore(t)

	var mu sync.Mutex
	var changes []Change
	unlisten := store.Listen(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	store.Register(addr("1"))
	store.Apply("1", Patch{Volume: Value(&core.Volume{Actual: 10})})
	store.Apply("1", Patch{Volume: Value(&core.Volume{Actual: 10})})
	store.Apply("1", Patch{Volume: Value(&core.Volume{Actual: 11})})
	unlisten()
	store.Apply("1", Patch{Volume: Value(&core.Volume{Actual: 12})})

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 3 {
		t.Fatalf("changes = %d, want 3 (register + 2 distinct applies)", len(changes))
	}
	if changes[0].Kind != ChangeRegistered || changes[2].Snapshot.Volume.Actual != 11 {
		t.Errorf("changes = %+v", changes)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	store, _ := newTestStore(t)
	store.Register(addr("1"))
	store.Apply("1", Patch{Presets: Value([]core.Preset{{Slot: 1}})})

	snap, _ := store.Snapshot("1")
	snap.Presets[0].Slot = 9

	again, _ := store.Snapshot("1")
	if again.Presets[0].Slot != 1 {
		t.Error("mutating a snapshot copy changed the store")
	}
}

func TestRefreshAllFacets(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	c := fleet.Client("1")
	c.ZoneValue = &core.Zone{MasterID: "1", Members: []core.ZoneMember{{DeviceID: "1"}, {DeviceID: "2"}}}
	c.PresetsValue = []core.Preset{{Slot: 1, Content: core.ContentItem{Name: "Jazz"}}}
	store.Apply("1", Patch{LastError: Value("old failure")})

	r := NewRefresher(store, nil)
	res := r.Refresh(context.Background(), "1")
	if res.HasErrors() {
		t.Fatalf("Refresh() errors = %v", res.Errors)
	}
	snap := res.Data
	if snap.Refreshing {
		t.Error("Refreshing still set")
	}
	if snap.LastError != "" {
		t.Errorf("LastError = %q, want cleared", snap.LastError)
	}
	if !snap.Zone.Active() || len(snap.Presets) != 1 || snap.Volume.Actual != 20 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRefreshPartialFailure(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	c := fleet.Client("1")

	r := NewRefresher(store, nil)
	r.Refresh(context.Background(), "1")

	c.VolumeValue = &core.Volume{Actual: 55}
	c.Fail("NowPlaying", sterrors.ErrTimeout)
	c.Fail("Zone", errors.New("zone exploded"))

	res := r.Refresh(context.Background(), "1")
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %d, want 2", len(res.Errors))
	}
	if !errors.Is(res.Err(), sterrors.ErrTimeout) {
		t.Errorf("errors = %v, want ErrTimeout among them", res.Errors)
	}

	snap := res.Data
	if snap.Volume.Actual != 55 {
		t.Errorf("Volume = %d, want 55 (successful facet applied)", snap.Volume.Actual)
	}
	if snap.NowPlaying == nil || snap.NowPlaying.Source != core.SourceStandby {
		t.Errorf("NowPlaying = %+v, want previous value kept", snap.NowPlaying)
	}
	if snap.LastError != "zone exploded" {
		t.Errorf("LastError = %q, want last failure", snap.LastError)
	}
	if snap.Refreshing {
		t.Error("Refreshing still set")
	}
}

func TestRefreshUnknownDevice(t *testing.T) {
	store, _ := newTestStore(t)
	var changes int
	store.Listen(func(Change) { changes++ })

	res := NewRefresher(store, nil).Refresh(context.Background(), "ghost")
	if !errors.Is(res.Err(), sterrors.ErrDeviceNotRegistered) {
		t.Errorf("Refresh() errors = %v, want ErrDeviceNotRegistered", res.Errors)
	}
	if changes != 0 {
		t.Errorf("store changed %d times, want 0", changes)
	}
}

func TestRefreshMarksRefreshing(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	fleet.Client("1").Delay = 50 * time.Millisecond

	r := NewRefresher(store, nil)
	done := make(chan struct{})
	go func() {
		r.Refresh(context.Background(), "1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	snap, _ := store.Snapshot("1")
	if !snap.Refreshing {
		t.Error("Refreshing = false during fetch")
	}
	<-done
	snap, _ = store.Snapshot("1")
	if snap.Refreshing {
		t.Error("Refreshing = true after fetch")
	}
}

func TestRefreshAll(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	store.Register(addr("2"))
	fleet.Client("2").Fail("Presets", sterrors.ErrUnreachable)

	res := NewRefresher(store, nil).RefreshAll(context.Background(), []string{"1", "2", "3"})
	if len(res.Data) != 3 {
		t.Errorf("Data = %v", res.Data)
	}
	if len(res.Errors) != 2 {
		t.Errorf("errors = %v, want presets failure and unknown device", res.Errors)
	}
}

func TestAfterAndWait(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	r := NewRefresher(store, nil)

	r.After("1", 10*time.Millisecond)
	if r.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", r.Pending())
	}
	r.Wait()

	if n := len(fleet.Client("1").CallsTo("Volume")); n != 1 {
		t.Errorf("Volume fetches = %d, want 1", n)
	}
}

func TestStopCancelsPending(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	r := NewRefresher(store, nil)

	r.After("1", time.Hour)
	r.Stop()
	r.Wait()
	r.After("1", time.Millisecond)
	r.Wait()

	if n := len(fleet.Client("1").Calls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestStopSkipsFiredRefresh(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	r := NewRefresher(store, nil)

	r.After("1", time.Millisecond)

	// Let the timer fire while Stop would hold the lock.
	r.mu.Lock()
	time.Sleep(20 * time.Millisecond)
	r.stopLocked()
	r.mu.Unlock()
	r.cancel()
	r.Wait()

	if n := len(fleet.Client("1").Calls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
	if snap, _ := store.Snapshot("1"); snap.LastError != "" {
		t.Errorf("LastError = %q, want empty", snap.LastError)
	}
}

func TestWaitCoversRefreshScheduledDuringWait(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	r := NewRefresher(store, nil)

	r.After("1", 50*time.Millisecond)
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	r.After("1", 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return")
	}
	if n := len(fleet.Client("1").CallsTo("Volume")); n != 2 {
		t.Errorf("Volume fetches = %d, want 2", n)
	}
}

func TestControlsScheduleRefresh(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	c := fleet.Client("1")
	r := NewRefresher(store, nil)
	controls := NewControls(store, r, Delays{Volume: time.Millisecond, Playback: time.Millisecond, Track: time.Millisecond})
	ctx := context.Background()

	if err := controls.SetVolume(ctx, "1", 42); err != nil {
		t.Fatal(err)
	}
	r.Wait()
	snap, _ := store.Snapshot("1")
	if snap.Volume == nil || snap.Volume.Actual != 42 {
		t.Errorf("Volume after settle = %+v, want 42", snap.Volume)
	}

	if err := controls.Next(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	calls := c.CallsTo("PressKey")
	if len(calls) != 1 || calls[0].Args[0] != core.KeyNextTrack {
		t.Errorf("PressKey calls = %+v", calls)
	}
	r.Wait()
}

func TestControlsFailureSkipsRefresh(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	c := fleet.Client("1")
	c.Fail("PressKey", sterrors.ErrUnreachable)
	r := NewRefresher(store, nil)
	controls := NewControls(store, r, DefaultDelays())

	err := controls.Play(context.Background(), "1")
	if !errors.Is(err, sterrors.ErrUnreachable) {
		t.Errorf("Play() error = %v, want ErrUnreachable", err)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
}

func TestControlsValidation(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	controls := NewControls(store, NewRefresher(store, nil), DefaultDelays())
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"preset", controls.SelectPreset(ctx, "1", 9), sterrors.ErrInvalidPreset},
		{"volume", controls.SetVolume(ctx, "1", 150), sterrors.ErrInvalidVolume},
		{"key", controls.SendKey(ctx, "1", "WHATEVER"), sterrors.ErrInvalidKey},
		{"unknown device", controls.Play(ctx, "9"), sterrors.ErrDeviceNotRegistered},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, tt.err, tt.want)
		}
	}
	if n := len(fleet.Client("1").Calls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestToggleMute(t *testing.T) {
	store, fleet := newTestStore(t)
	store.Register(addr("1"))
	r := NewRefresher(store, nil)
	controls := NewControls(store, r, Delays{})
	ctx := context.Background()

	// Unknown volume falls back to the MUTE key.
	if err := controls.ToggleMute(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	r.Wait()
	if n := len(fleet.Client("1").CallsTo("PressKey")); n != 1 {
		t.Errorf("PressKey calls = %d, want 1", n)
	}

	store.Apply("1", Patch{Volume: Value(&core.Volume{Muted: false})})
	if err := controls.ToggleMute(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	r.Wait()
	calls := fleet.Client("1").CallsTo("SetMute")
	if len(calls) != 1 || calls[0].Args[0] != true {
		t.Errorf("SetMute calls = %+v, want [true]", calls)
	}
}
