package zone

import (
	"context"
	"errors"
	"testing"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/core/coretest"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/state"
)

func setup(t *testing.T, ids ...string) (*Coordinator, *state.Store, *coretest.Fleet) {
	t.Helper()
	fleet := coretest.NewFleet()
	store := state.NewStore(fleet.NewClientFor, fleet.NewChannelFor, nil)
	for _, id := range ids {
		store.Register(addr(id))
	}
	refresher := state.NewRefresher(store, nil)
	t.Cleanup(refresher.Stop)
	return NewCoordinator(store, refresher, nil), store, fleet
}

func addr(id string) core.DeviceAddress {
	return core.DeviceAddress{ID: id, Name: "Speaker " + id, IP: "10.0.0." + id}
}

func zoneOf(master string, ids ...string) *core.Zone {
	z := &core.Zone{MasterID: master}
	for _, id := range append([]string{master}, ids...) {
		z.Members = append(z.Members, core.ZoneMember{IP: "10.0.0." + id, DeviceID: id})
	}
	return z
}

func failAll(c *coretest.Client, err error) {
	for _, m := range []string{"NowPlaying", "Volume", "Zone", "Presets"} {
		c.Fail(m, err)
	}
}

func TestCreateWithUnreachableMember(t *testing.T) {
	zc, store, fleet := setup(t, "AA", "BB", "CC")
	ctx := context.Background()

	fleet.Client("AA").VolumeValue = &core.Volume{Actual: 31}
	fleet.Client("CC").VolumeValue = &core.Volume{Actual: 17}
	failAll(fleet.Client("BB"), sterrors.ErrUnreachable)

	res, err := zc.Create(ctx, "AA", []string{"BB", "CC"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	calls := fleet.Client("AA").CallsTo("SetZone")
	if len(calls) != 1 {
		t.Fatalf("SetZone calls = %d, want 1", len(calls))
	}
	members := calls[0].Args[2].([]core.ZoneMember)
	want := []string{"AA", "BB", "CC"}
	if len(members) != len(want) {
		t.Fatalf("members = %v, want %v", members, want)
	}
	for i, id := range want {
		if members[i].DeviceID != id || members[i].IP != "10.0.0."+id {
			t.Errorf("members[%d] = %+v, want %s", i, members[i], id)
		}
	}
	if got := calls[0].Args[1]; got != "10.0.0.AA" {
		t.Errorf("sender ip = %v, want 10.0.0.AA", got)
	}

	if !errors.Is(res.Err(), sterrors.ErrUnreachable) {
		t.Errorf("result errors = %v, want BB unreachable", res.Errors)
	}
	for _, e := range res.Errors {
		var devErr *sterrors.DeviceError
		if !errors.As(e, &devErr) || devErr.DeviceID != "BB" {
			t.Errorf("error %v not attributed to BB", e)
		}
	}

	if snap, _ := store.Snapshot("AA"); snap.Volume == nil || snap.Volume.Actual != 31 {
		t.Errorf("AA volume = %+v, want 31", snap.Volume)
	}
	if snap, _ := store.Snapshot("CC"); snap.Volume == nil || snap.Volume.Actual != 17 {
		t.Errorf("CC volume = %+v, want 17", snap.Volume)
	}
	if snap, _ := store.Snapshot("BB"); !snap.Stale() {
		t.Error("BB snapshot should carry LastError")
	}
}

func TestCreateDedupesMembers(t *testing.T) {
	zc, _, fleet := setup(t, "AA", "BB")

	res, err := zc.Create(context.Background(), "AA", []string{"BB", "AA", "BB"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	members := fleet.Client("AA").CallsTo("SetZone")[0].Args[2].([]core.ZoneMember)
	if len(members) != 2 {
		t.Errorf("members = %v, want AA and BB once each", members)
	}
	if len(res.Data) != 2 {
		t.Errorf("refreshed = %v, want [AA BB]", res.Data)
	}
}

func TestCreateMasterFailure(t *testing.T) {
	zc, _, fleet := setup(t, "AA", "BB")
	fleet.Client("AA").Fail("SetZone", sterrors.ErrTimeout)

	res, err := zc.Create(context.Background(), "AA", []string{"BB"})
	if !errors.Is(err, sterrors.ErrMasterUnreachable) || !errors.Is(err, sterrors.ErrTimeout) {
		t.Errorf("Create() error = %v, want ErrMasterUnreachable wrapping ErrTimeout", err)
	}
	if res != nil {
		t.Errorf("Create() result = %+v, want nil", res)
	}
	if n := len(fleet.Client("BB").CallsTo("Volume")); n != 0 {
		t.Errorf("BB refreshed %d times after failed create, want 0", n)
	}
}

func TestUnregisteredDevicesRejected(t *testing.T) {
	zc, _, fleet := setup(t, "AA")
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"create master", func() error { _, err := zc.Create(ctx, "ZZ", []string{"AA"}); return err }},
		{"create member", func() error { _, err := zc.Create(ctx, "AA", []string{"ZZ"}); return err }},
		{"add", func() error { _, err := zc.AddMember(ctx, "AA", "ZZ"); return err }},
		{"remove", func() error { _, err := zc.RemoveMember(ctx, "AA", "ZZ"); return err }},
		{"dissolve", func() error { _, err := zc.Dissolve(ctx, "ZZ"); return err }},
		{"volume", func() error { _, err := zc.SetVolume(ctx, "ZZ", 10); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, sterrors.ErrDeviceNotRegistered) {
				t.Errorf("error = %v, want ErrDeviceNotRegistered", err)
			}
		})
	}
	if n := len(fleet.Client("AA").Calls()); n != 0 {
		t.Errorf("AA received %d calls, want 0", n)
	}
}

func TestAddAndRemoveMember(t *testing.T) {
	zc, _, fleet := setup(t, "AA", "BB", "CC")
	ctx := context.Background()

	if _, err := zc.AddMember(ctx, "AA", "BB"); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	add := fleet.Client("AA").CallsTo("AddZoneMember")
	if len(add) != 1 || add[0].Args[1].(core.ZoneMember).DeviceID != "BB" {
		t.Errorf("AddZoneMember calls = %+v", add)
	}

	fleet.Client("AA").Fail("RemoveZoneMember", sterrors.ErrTimeout)
	if _, err := zc.RemoveMember(ctx, "AA", "BB"); !errors.Is(err, sterrors.ErrTimeout) {
		t.Errorf("RemoveMember() error = %v, want ErrTimeout", err)
	}
	if n := len(fleet.Client("CC").CallsTo("Volume")); n != 0 {
		t.Errorf("CC refreshed %d times, want 0", n)
	}
}

func TestDissolveBestEffort(t *testing.T) {
	zc, _, fleet := setup(t, "AA", "BB", "CC", "DD")
	ctx := context.Background()
	master := fleet.Client("AA")
	master.SetZoneValue(zoneOf("AA", "BB", "CC", "DD"))
	zc.refresher.Refresh(ctx, "AA")
	master.Reset()

	// Second of three removals fails.
	master.Hook = func(method string, args []any) error {
		if method == "RemoveZoneMember" && args[1].(core.ZoneMember).DeviceID == "CC" {
			return sterrors.ErrUnreachable
		}
		return nil
	}

	res, err := zc.Dissolve(ctx, "AA")
	if err != nil {
		t.Fatalf("Dissolve() error = %v", err)
	}

	removed := master.CallsTo("RemoveZoneMember")
	if len(removed) != 3 {
		t.Fatalf("RemoveZoneMember calls = %d, want 3", len(removed))
	}
	for i, id := range []string{"BB", "CC", "DD"} {
		if got := removed[i].Args[1].(core.ZoneMember).DeviceID; got != id {
			t.Errorf("removal %d = %s, want %s", i, got, id)
		}
	}

	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", res.Errors)
	}
	var devErr *sterrors.DeviceError
	if !errors.As(res.Errors[0], &devErr) || devErr.DeviceID != "CC" {
		t.Errorf("error = %v, want CC attributed", res.Errors[0])
	}

	if len(res.Data) != 4 {
		t.Errorf("refreshed = %v, want all four devices", res.Data)
	}
	for _, id := range []string{"BB", "CC", "DD"} {
		if n := len(fleet.Client(id).CallsTo("Zone")); n == 0 {
			t.Errorf("%s not refreshed after dissolve", id)
		}
	}
}

func TestDissolveIgnoresCancellation(t *testing.T) {
	zc, _, fleet := setup(t, "AA", "BB", "CC")
	master := fleet.Client("AA")
	master.SetZoneValue(zoneOf("AA", "BB", "CC"))
	zc.refresher.Refresh(context.Background(), "AA")
	master.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	master.Hook = func(method string, args []any) error {
		if method == "RemoveZoneMember" {
			cancel()
		}
		return nil
	}

	if _, err := zc.Dissolve(ctx, "AA"); err != nil {
		t.Fatalf("Dissolve() error = %v", err)
	}
	if n := len(master.CallsTo("RemoveZoneMember")); n != 2 {
		t.Errorf("RemoveZoneMember calls = %d, want 2", n)
	}
}

func TestDissolveWithoutZone(t *testing.T) {
	zc, _, fleet := setup(t, "AA", "BB")

	res, err := zc.Dissolve(context.Background(), "AA")
	if err != nil || res.HasErrors() {
		t.Fatalf("Dissolve() = %v, %v", res, err)
	}
	if n := len(fleet.Client("AA").Calls()); n != 0 {
		t.Errorf("AA received %d calls, want 0", n)
	}
}

func TestPlayEverywhere(t *testing.T) {
	zc, _, fleet := setup(t, "AA", "BB", "CC")

	if _, err := zc.PlayEverywhere(context.Background(), "BB"); err != nil {
		t.Fatalf("PlayEverywhere() error = %v", err)
	}
	members := fleet.Client("BB").CallsTo("SetZone")[0].Args[2].([]core.ZoneMember)
	var ids []string
	for _, m := range members {
		ids = append(ids, m.DeviceID)
	}
	if len(ids) != 3 || ids[0] != "BB" {
		t.Errorf("members = %v, want BB first then AA and CC", ids)
	}
}

func TestPlayEverywhereAlone(t *testing.T) {
	zc, _, fleet := setup(t, "AA")

	_, err := zc.PlayEverywhere(context.Background(), "AA")
	if !errors.Is(err, sterrors.ErrNoOtherDevices) {
		t.Errorf("PlayEverywhere() error = %v, want ErrNoOtherDevices", err)
	}
	if n := len(fleet.Client("AA").Calls()); n != 0 {
		t.Errorf("AA received %d calls, want 0", n)
	}
}

func TestSetVolumeWithoutZone(t *testing.T) {
	zc, _, fleet := setup(t, "Z1", "Z2")

	res, err := zc.SetVolume(context.Background(), "Z1", 40)
	if err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if n := len(fleet.Client("Z1").CallsTo("SetVolume")); n != 1 {
		t.Errorf("Z1 SetVolume calls = %d, want 1", n)
	}
	if len(res.Data) != 1 || res.Data[0] != "Z1" {
		t.Errorf("refreshed = %v, want [Z1]", res.Data)
	}
	if n := len(fleet.Client("Z2").Calls()); n != 0 {
		t.Errorf("Z2 received %d calls, want 0", n)
	}
}

func TestSetVolumeAcrossZone(t *testing.T) {
	zc, store, fleet := setup(t, "AA", "BB", "CC")
	ctx := context.Background()

	fleet.Client("AA").SetZoneValue(zoneOf("AA", "BB", "CC", "GHOST"))
	zc.refresher.Refresh(ctx, "AA")
	fleet.Client("BB").Fail("SetVolume", sterrors.ErrTimeout)

	res, err := zc.SetVolume(ctx, "AA", 25)
	if err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], sterrors.ErrTimeout) {
		t.Errorf("errors = %v, want one ErrTimeout", res.Errors)
	}
	for _, id := range []string{"AA", "CC"} {
		snap, _ := store.Snapshot(id)
		if snap.Volume == nil || snap.Volume.Actual != 25 {
			t.Errorf("%s volume = %+v, want 25", id, snap.Volume)
		}
	}
	if len(res.Data) != 3 {
		t.Errorf("refreshed = %v, want registered members only", res.Data)
	}
}

func TestSetVolumeInvalid(t *testing.T) {
	zc, _, fleet := setup(t, "AA")
	if _, err := zc.SetVolume(context.Background(), "AA", 101); !errors.Is(err, sterrors.ErrInvalidVolume) {
		t.Errorf("SetVolume(101) error = %v, want ErrInvalidVolume", err)
	}
	if n := len(fleet.Client("AA").Calls()); n != 0 {
		t.Errorf("AA received %d calls, want 0", n)
	}
}

func TestView(t *testing.T) {
	zc, _, fleet := setup(t, "AA", "BB", "CC")
	ctx := context.Background()

	if v := zc.View("AA"); v != nil {
		t.Errorf("View() = %+v before any zone, want nil", v)
	}

	z := zoneOf("AA", "BB", "GHOST")
	for _, id := range []string{"AA", "BB", "CC"} {
		fleet.Client(id).SetZoneValue(z)
		zc.refresher.Refresh(ctx, id)
	}

	master := zc.View("AA")
	if master == nil || !master.IsMaster || master.IsSlave {
		t.Fatalf("View(AA) = %+v, want master", master)
	}
	if master.Master == nil || master.Master.ID != "AA" {
		t.Errorf("Master = %+v, want AA", master.Master)
	}
	if len(master.Members) != 1 || master.Members[0].ID != "BB" {
		t.Errorf("Members = %+v, want only BB", master.Members)
	}
	if master.MemberCount != 3 {
		t.Errorf("MemberCount = %d, want 3", master.MemberCount)
	}

	if v := zc.View("BB"); v == nil || !v.IsSlave || v.IsMaster {
		t.Errorf("View(BB) = %+v, want slave", v)
	}
	if v := zc.View("CC"); v == nil || v.IsSlave || v.IsMaster {
		t.Errorf("View(CC) = %+v, want neither master nor slave", v)
	}
}

func TestMasterOnlyZoneIsNoZone(t *testing.T) {
	zc, store, fleet := setup(t, "AA", "BB")
	ctx := context.Background()

	fleet.Client("AA").SetZoneValue(zoneOf("AA"))
	zc.refresher.Refresh(ctx, "AA")
	if snap, _ := store.Snapshot("AA"); snap.Zone == nil {
		t.Fatal("stored zone = nil, want the master-only zone")
	}

	if v := zc.View("AA"); v != nil {
		t.Errorf("View() = %+v, want nil for a master-only zone", v)
	}

	fleet.Client("AA").Reset()
	res, err := zc.SetVolume(ctx, "AA", 30)
	if err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if n := len(fleet.Client("AA").CallsTo("SetVolume")); n != 1 {
		t.Errorf("AA SetVolume calls = %d, want 1", n)
	}
	if len(res.Data) != 1 || res.Data[0] != "AA" {
		t.Errorf("refreshed = %v, want [AA]", res.Data)
	}
	if n := len(fleet.Client("BB").CallsTo("SetVolume")); n != 0 {
		t.Errorf("BB SetVolume calls = %d, want 0", n)
	}
}
