package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
)

// Refresher re-fetches device state into the store.
type Refresher struct {
	store *Store
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	idle    *sync.Cond
	pending map[*time.Timer]struct{}
	// active counts scheduled refreshes that have not finished.
	active  int
	stopped bool
}

// NewRefresher creates a refresher writing to store.
func NewRefresher(store *Store, log *zap.Logger) *Refresher {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		store:   store,
		log:     log.With(zap.String("component", "refresh")),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[*time.Timer]struct{}),
	}
	r.idle = sync.NewCond(&r.mu)
	return r
}

// Refresh fetches now-playing, volume, zone and presets concurrently and
// applies whichever succeeded. Failures are reported in the result, never
// as a Go error. Overlapping refreshes of one device are allowed; the last
// to complete wins.
func (r *Refresher) Refresh(ctx context.Context, id string) *sterrors.PartialResult[core.Snapshot] {
	result := &sterrors.PartialResult[core.Snapshot]{}

	client, ok := r.store.Client(id)
	if !ok {
		result.AddError(sterrors.ForDevice(id, "refresh", sterrors.ErrDeviceNotRegistered))
		return result
	}
	if err := r.store.Apply(id, Patch{Refreshing: Value(true)}); err != nil {
		result.AddError(sterrors.ForDevice(id, "refresh", err))
		return result
	}

	var (
		wg         sync.WaitGroup
		nowPlaying *core.NowPlaying
		volume     *core.Volume
		zone       *core.Zone
		presets    []core.Preset
		errs       [4]error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		nowPlaying, errs[0] = client.NowPlaying(ctx)
	}()
	go func() {
		defer wg.Done()
		volume, errs[1] = client.Volume(ctx)
	}()
	go func() {
		defer wg.Done()
		zone, errs[2] = client.Zone(ctx)
	}()
	go func() {
		defer wg.Done()
		presets, errs[3] = client.Presets(ctx)
	}()
	wg.Wait()

	patch := Patch{Refreshing: Value(false), LastError: Value("")}
	if errs[0] == nil {
		patch.NowPlaying = Value(nowPlaying)
	}
	if errs[1] == nil {
		patch.Volume = Value(volume)
	}
	if errs[2] == nil {
		patch.Zone = Value(zone)
	}
	if errs[3] == nil {
		patch.Presets = Value(presets)
	}

	facets := [4]string{"nowPlaying", "volume", "zone", "presets"}
	for i, err := range errs {
		if err == nil {
			continue
		}
		patch.LastError = Value(err.Error())
		result.AddError(sterrors.ForDevice(id, facets[i], err))
	}
	if result.HasErrors() {
		r.log.Debug("refresh incomplete", zap.String("id", id), zap.Int("failures", len(result.Errors)))
	}

	if err := r.store.Apply(id, patch); err != nil {
		// Forgotten while fetching.
		result.AddError(sterrors.ForDevice(id, "refresh", err))
		return result
	}
	result.Data, _ = r.store.Snapshot(id)
	return result
}

// RefreshAll refreshes ids in parallel. Data lists the ids refreshed.
func (r *Refresher) RefreshAll(ctx context.Context, ids []string) *sterrors.PartialResult[[]string] {
	result := &sterrors.PartialResult[[]string]{Data: make([]string, 0, len(ids))}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.Refresh(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			result.Merge(res.Errors)
		}()
	}
	wg.Wait()

	result.Data = append(result.Data, ids...)
	return result
}

// After schedules a refresh of id once delay has passed.
func (r *Refresher) After(id string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	r.active++
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.pending, t)
		stopped := r.stopped
		r.mu.Unlock()
		defer r.done()

		if stopped {
			return
		}
		res := r.Refresh(r.ctx, id)
		if res.HasErrors() {
			r.log.Debug("settle refresh failed", zap.String("id", id), zap.Error(res.Err()))
		}
	})
	r.pending[t] = struct{}{}
}

func (r *Refresher) done() {
	r.mu.Lock()
	r.active--
	r.idle.Broadcast()
	r.mu.Unlock()
}

// Pending returns the number of scheduled refreshes that have not started.
func (r *Refresher) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Wait blocks until no scheduled refresh is pending or running. Refreshes
// scheduled while Wait blocks are waited for too.
func (r *Refresher) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.active > 0 {
		r.idle.Wait()
	}
}

// Stop cancels pending refreshes and aborts in-flight scheduled ones.
// A timer that already fired but has not started its refresh skips it.
func (r *Refresher) Stop() {
	r.mu.Lock()
	r.stopLocked()
	r.mu.Unlock()
	r.cancel()
}

func (r *Refresher) stopLocked() {
	r.stopped = true
	for t := range r.pending {
		if t.Stop() {
			r.active--
		}
		delete(r.pending, t)
	}
	r.idle.Broadcast()
}
