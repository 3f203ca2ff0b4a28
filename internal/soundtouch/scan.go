package soundtouch

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/stctl/internal/core"
)

// Probe asks ip for /info and returns its address if it is a SoundTouch device.
func (d *Discovery) Probe(ctx context.Context, ip string) (core.DeviceAddress, error) {
	addr := core.DeviceAddress{IP: ip, Port: d.opts.Port}
	client := NewClient(addr, Options{Timeout: d.opts.ProbeTimeout, Logger: d.log})

	info, err := client.Info(ctx)
	if err != nil {
		return core.DeviceAddress{}, err
	}
	if info.DeviceID == "" {
		return core.DeviceAddress{}, fmt.Errorf("%s: no device id in /info", ip)
	}
	addr.ID = info.DeviceID
	addr.Name = info.Name
	addr.Type = info.Type
	d.Add(addr)
	return addr, nil
}

// ScanIPs probes each address concurrently. Hosts that fail are skipped.
func (d *Discovery) ScanIPs(ctx context.Context, ips []string) []core.DeviceAddress {
	return d.scan(ctx, ips, len(ips))
}

// ScanRange probes host numbers first..last within the /24 containing base,
// at most Batch at a time.
func (d *Discovery) ScanRange(ctx context.Context, base netip.Addr, first, last int) ([]core.DeviceAddress, error) {
	if !base.Is4() {
		return nil, fmt.Errorf("scan range: %s is not an IPv4 address", base)
	}
	if first < 1 || last > 254 || first > last {
		return nil, fmt.Errorf("scan range: invalid host range %d-%d", first, last)
	}

	octets := base.As4()
	ips := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		octets[3] = byte(i)
		ips = append(ips, netip.AddrFrom4(octets).String())
	}
	return d.scan(ctx, ips, d.opts.Batch), nil
}

// ScanPrefix probes every host address of an IPv4 prefix.
func (d *Discovery) ScanPrefix(ctx context.Context, prefix netip.Prefix) ([]core.DeviceAddress, error) {
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() || prefix.Bits() < 16 {
		return nil, fmt.Errorf("scan: prefix %s must be IPv4 and /16 or smaller", prefix)
	}

	var ips []string
	for a := prefix.Addr().Next(); prefix.Contains(a); a = a.Next() {
		if !prefix.Contains(a.Next()) {
			break // broadcast
		}
		ips = append(ips, a.String())
	}
	return d.scan(ctx, ips, d.opts.Batch), nil
}

func (d *Discovery) scan(ctx context.Context, ips []string, limit int) []core.DeviceAddress {
	var (
		mu    sync.Mutex
		found = make([]core.DeviceAddress, 0)
	)

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, ip := range ips {
		g.Go(func() error {
			addr, err := d.Probe(ctx, ip)
			if err != nil {
				d.log.Debug("probe failed", zap.String("ip", ip), zap.Error(err))
				return nil
			}
			mu.Lock()
			found = append(found, addr)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.log.Debug("scan complete", zap.Int("probed", len(ips)), zap.Int("found", len(found)))
	return found
}
