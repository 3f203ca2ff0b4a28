package state

import "github.com/tessro/stctl/internal/core"

// Field is an optional patch value. Set distinguishes "absent" from a zero
// value, so a fetched nil zone can replace a stale one.
type Field[T any] struct {
	Value T
	Set   bool
}

// Value returns a set Field holding v.
func Value[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Patch carries the facets to replace in a snapshot. Unset fields are left alone.
type Patch struct {
	NowPlaying Field[*core.NowPlaying]
	Volume     Field[*core.Volume]
	Zone       Field[*core.Zone]
	Presets    Field[[]core.Preset]
	Refreshing Field[bool]
	LastError  Field[string]
}

// hasData reports whether the patch replaces any fetched facet.
func (p Patch) hasData() bool {
	return p.NowPlaying.Set || p.Volume.Set || p.Zone.Set || p.Presets.Set
}

// apply merges p into s. Facets are replaced wholesale.
func (p Patch) apply(s *core.Snapshot) {
	if p.NowPlaying.Set {
		s.NowPlaying = p.NowPlaying.Value
	}
	if p.Volume.Set {
		s.Volume = p.Volume.Value
	}
	if p.Zone.Set {
		s.Zone = p.Zone.Value
	}
	if p.Presets.Set {
		s.Presets = append([]core.Preset(nil), p.Presets.Value...)
	}
	if p.Refreshing.Set {
		s.Refreshing = p.Refreshing.Value
	}
	if p.LastError.Set {
		s.LastError = p.LastError.Value
	}
}
