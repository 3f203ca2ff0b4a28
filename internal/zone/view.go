package zone

import "github.com/tessro/stctl/internal/core"

// View resolves the zone of id against registered devices. It returns nil
// when the device is not in a zone of two or more speakers. Members that
// are not registered are omitted; MemberCount still counts them.
func (c *Coordinator) View(id string) *core.ZoneView {
	snap, ok := c.store.Snapshot(id)
	if !ok || !snap.Zone.Active() {
		return nil
	}
	z := snap.Zone

	view := &core.ZoneView{
		Members:     make([]core.DeviceAddress, 0, len(z.Members)),
		IsMaster:    id == z.MasterID,
		IsSlave:     id != z.MasterID && z.Contains(id),
		MemberCount: len(z.Members),
	}
	if master, ok := c.store.Device(z.MasterID); ok {
		view.Master = &master
	}
	for _, m := range z.Members {
		if m.DeviceID == z.MasterID {
			continue
		}
		if addr, ok := c.store.Device(m.DeviceID); ok {
			view.Members = append(view.Members, addr)
		}
	}
	return view
}
