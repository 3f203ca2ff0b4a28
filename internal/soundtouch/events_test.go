package soundtouch

import (
	"testing"

	"github.com/tessro/stctl/internal/core"
)

func TestEventBusDispatch(t *testing.T) {
	bus := NewEventBus()

	var volume, all int
	unsubVolume := bus.Subscribe(core.UpdateVolume, func(core.UpdateEvent) { volume++ })
	bus.Subscribe(core.UpdateAll, func(core.UpdateEvent) { all++ })

	bus.Publish(core.UpdateEvent{Category: core.UpdateVolume})
	bus.Publish(core.UpdateEvent{Category: core.UpdateZone})

	if volume != 1 {
		t.Errorf("volume handler calls = %d, want 1", volume)
	}
	if all != 2 {
		t.Errorf("wildcard handler calls = %d, want 2", all)
	}

	unsubVolume()
	unsubVolume()
	bus.Publish(core.UpdateEvent{Category: core.UpdateVolume})
	if volume != 1 {
		t.Errorf("volume handler called after unsubscribe")
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1", bus.Len())
	}

	bus.Clear()
	bus.Publish(core.UpdateEvent{Category: core.UpdateVolume})
	if all != 3 {
		t.Errorf("wildcard handler calls = %d, want 3", all)
	}
}

func TestEventBusSubscribeDuringPublish(t *testing.T) {
	bus := NewEventBus()
	bus.Subscribe(core.UpdateAll, func(core.UpdateEvent) {
		bus.Subscribe(core.UpdateVolume, func(core.UpdateEvent) {})
	})

	// Must not deadlock.
	bus.Publish(core.UpdateEvent{Category: core.UpdateInfo})
	if bus.Len() != 2 {
		t.Errorf("Len() = %d, want 2", bus.Len())
	}
}
