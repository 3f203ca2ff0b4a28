package wizard

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tessro/stctl/internal/core"
)

func choice(id string, playing bool) Choice {
	c := Choice{Device: core.DeviceAddress{ID: id, Name: "Speaker " + id, IP: "10.0.0.1"}}
	if playing {
		c.Snapshot.NowPlaying = &core.NowPlaying{Source: "AUX", PlayStatus: core.PlayStatusPlaying}
	}
	return c
}

func TestPickDevice(t *testing.T) {
	tests := []struct {
		name    string
		choices []Choice
		want    string
	}{
		{name: "none", choices: nil, want: ""},
		{name: "single idle", choices: []Choice{choice("AA", false)}, want: "AA"},
		{name: "one playing", choices: []Choice{choice("AA", false), choice("BB", true)}, want: "BB"},
		{name: "two playing", choices: []Choice{choice("AA", true), choice("BB", true)}, want: ""},
		{name: "all idle", choices: []Choice{choice("AA", false), choice("BB", false)}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PickDevice(tt.choices); got != tt.want {
				t.Errorf("PickDevice() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeviceModelSelect(t *testing.T) {
	m := NewDeviceModel([]Choice{choice("AA", false), choice("BB", false)})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should quit the picker")
	}
	sel := next.(DeviceModel).Selected()
	if sel == nil || sel.ID != "BB" {
		t.Errorf("Selected() = %v, want BB", sel)
	}
}

func TestDeviceModelCursorBounds(t *testing.T) {
	m := NewDeviceModel([]Choice{choice("AA", false)})
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyUp})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	if c := next.(DeviceModel).cursor; c != 0 {
		t.Errorf("cursor = %d, want 0", c)
	}
}

func TestMemberOptionsExcludeMaster(t *testing.T) {
	master := choice("AA", true)
	master.Snapshot.Zone = &core.Zone{MasterID: "AA", Members: []core.ZoneMember{{DeviceID: "AA"}, {DeviceID: "CC"}}}
	opts := MemberOptions("AA", []Choice{master, choice("BB", false), choice("CC", false)})

	if len(opts) != 2 {
		t.Fatalf("options = %d, want 2", len(opts))
	}
	if opts[0].Value != "BB" || opts[1].Value != "CC" {
		t.Errorf("option values = %q, %q, want BB, CC", opts[0].Value, opts[1].Value)
	}
}
