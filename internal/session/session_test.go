package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/core/coretest"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/state"
)

func newTestSession(t *testing.T, push bool) (*Session, *coretest.Fleet) {
	t.Helper()
	fleet := coretest.NewFleet()
	opts := Options{
		NewClient: fleet.NewClientFor,
		Aliases:   map[string]string{"den": "BB"},
	}
	if push {
		opts.NewChannel = fleet.NewChannelFor
	}
	s := New(opts)
	t.Cleanup(s.Close)
	return s, fleet
}

func addr(id, name string) core.DeviceAddress {
	return core.DeviceAddress{ID: id, Name: name, IP: "10.0.0." + id}
}

func TestRegisterDevice(t *testing.T) {
	s, fleet := newTestSession(t, true)
	fleet.Client("AA").VolumeValue = &core.Volume{Actual: 42}

	res, err := s.RegisterDevice(context.Background(), addr("AA", "Kitchen"))
	if err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}
	if res.Data.Volume == nil || res.Data.Volume.Actual != 42 {
		t.Errorf("initial snapshot volume = %+v, want 42", res.Data.Volume)
	}

	ch := fleet.Channel("AA")
	if ch.Connects() != 1 {
		t.Errorf("Connects() = %d, want 1", ch.Connects())
	}
	if ch.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", ch.Subscribers())
	}

	// Second registration is a no-op and keeps the existing state.
	if err := s.Store().Apply("AA", state.Patch{LastError: state.Value("timeout")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	fleet.Client("AA").Reset()
	if _, err := s.RegisterDevice(context.Background(), addr("AA", "Kitchen")); err != nil {
		t.Fatalf("RegisterDevice() again error = %v", err)
	}
	if snap, _ := s.Snapshot("AA"); snap.LastError != "timeout" {
		t.Errorf("LastError after re-register = %q, want %q", snap.LastError, "timeout")
	}
	if n := len(fleet.Client("AA").Calls()); n != 0 {
		t.Errorf("re-register made %d calls, want 0", n)
	}
	if ch.Connects() != 1 {
		t.Errorf("Connects() after re-register = %d, want 1", ch.Connects())
	}
}

func TestRegisterRequiresID(t *testing.T) {
	s, _ := newTestSession(t, false)
	if _, err := s.RegisterDevice(context.Background(), core.DeviceAddress{IP: "10.0.0.1"}); err == nil {
		t.Error("RegisterDevice() without id should fail")
	}
}

func TestPushEventTriggersRefresh(t *testing.T) {
	s, fleet := newTestSession(t, true)
	ctx := context.Background()
	if _, err := s.RegisterDevice(ctx, addr("AA", "Kitchen")); err != nil {
		t.Fatal(err)
	}

	fleet.Client("AA").VolumeValue = &core.Volume{Actual: 77}
	fleet.Channel("AA").Emit(core.UpdateEvent{DeviceID: "AA", Category: core.UpdateVolume})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.Wait()
		if snap, _ := s.Snapshot("AA"); snap.Volume != nil && snap.Volume.Actual == 77 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("push event did not refresh the device")
}

func TestPushDisabled(t *testing.T) {
	s, fleet := newTestSession(t, false)
	if _, err := s.RegisterDevice(context.Background(), addr("AA", "Kitchen")); err != nil {
		t.Fatal(err)
	}
	if fleet.Channel("AA").Connects() != 0 {
		t.Error("channel connected with push disabled")
	}
}

func TestForgetDevice(t *testing.T) {
	s, fleet := newTestSession(t, true)
	if _, err := s.RegisterDevice(context.Background(), addr("AA", "Kitchen")); err != nil {
		t.Fatal(err)
	}

	if !s.ForgetDevice("AA") {
		t.Fatal("ForgetDevice() = false, want true")
	}
	if !fleet.Channel("AA").Closed() {
		t.Error("channel not closed")
	}
	if _, ok := s.Snapshot("AA"); ok {
		t.Error("snapshot still present")
	}
	if s.ForgetDevice("AA") {
		t.Error("second ForgetDevice() = true, want false")
	}
}

func TestResolve(t *testing.T) {
	s, _ := newTestSession(t, false)
	ctx := context.Background()
	s.RegisterDevice(ctx, addr("AA", "Kitchen"))
	s.RegisterDevice(ctx, addr("BB", "Den Speaker"))

	tests := []struct {
		in   string
		want string
	}{
		{"AA", "AA"},
		{"kitchen", "AA"},
		{"10.0.0.BB", "BB"},
		{"DEN", "BB"},
		{"den speaker", "BB"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := s.Resolve(tt.in)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if _, err := s.Resolve("garage"); !errors.Is(err, sterrors.ErrDeviceNotFound) {
		t.Errorf("Resolve(garage) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestCloseForgetsEverything(t *testing.T) {
	s, fleet := newTestSession(t, true)
	ctx := context.Background()
	s.RegisterDevice(ctx, addr("AA", "Kitchen"))
	s.RegisterDevice(ctx, addr("BB", "Den"))

	s.Close()
	if len(s.Devices()) != 0 {
		t.Errorf("Devices() = %v after Close, want none", s.Devices())
	}
	for _, id := range []string{"AA", "BB"} {
		if !fleet.Channel(id).Closed() {
			t.Errorf("channel %s not closed", id)
		}
	}
	if _, err := s.RegisterDevice(ctx, addr("CC", "Office")); err == nil {
		t.Error("RegisterDevice() after Close should fail")
	}
}

func TestZoneOperationsThroughSession(t *testing.T) {
	s, fleet := newTestSession(t, false)
	ctx := context.Background()
	s.RegisterDevice(ctx, addr("AA", "Kitchen"))
	s.RegisterDevice(ctx, addr("BB", "Den"))

	if _, err := s.Zones().PlayEverywhere(ctx, "AA"); err != nil {
		t.Fatalf("PlayEverywhere() error = %v", err)
	}
	if n := len(fleet.Client("AA").CallsTo("SetZone")); n != 1 {
		t.Errorf("SetZone calls = %d, want 1", n)
	}
}
