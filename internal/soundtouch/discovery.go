package soundtouch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/core"
)

const (
	// ServiceType is the mDNS service advertised by SoundTouch devices.
	ServiceType = "_soundtouch._tcp"

	defaultBrowseTimeout = 5 * time.Second
	defaultTTL           = 5 * time.Minute
)

// DiscoveryOptions configures a Discovery.
type DiscoveryOptions struct {
	// Timeout bounds an mDNS browse.
	Timeout time.Duration
	// ProbeTimeout bounds each /info request during a scan.
	ProbeTimeout time.Duration
	// Batch is the number of concurrent probes during a range scan.
	Batch int
	// Port is the control port probed during scans.
	Port   int
	Logger *zap.Logger
}

type cachedDevice struct {
	addr     core.DeviceAddress
	lastSeen time.Time
}

// Discovery finds SoundTouch devices via mDNS and IP probes, and caches
// what it finds.
type Discovery struct {
	opts DiscoveryOptions
	log  *zap.Logger
	ttl  time.Duration

	mu      sync.RWMutex
	devices map[string]*cachedDevice // keyed by device id
	aliases map[string]string        // alias -> id, name or IP
}

// NewDiscovery creates a new Discovery instance.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultBrowseTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 20
	}
	if opts.Port == 0 {
		opts.Port = core.DefaultPort
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Discovery{
		opts:    opts,
		log:     log.With(zap.String("component", "discovery")),
		ttl:     defaultTTL,
		devices: make(map[string]*cachedDevice),
		aliases: make(map[string]string),
	}
}

// SetAlias maps an alias name to a device id, name or IP.
func (d *Discovery) SetAlias(alias, target string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aliases[strings.ToLower(alias)] = target
}

// Add records addr in the cache.
func (d *Discovery) Add(addr core.DeviceAddress) {
	if addr.ID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[addr.ID] = &cachedDevice{addr: addr, lastSeen: time.Now()}
}

// Browse performs an mDNS browse and returns the devices that answered.
func (d *Discovery) Browse(ctx context.Context) ([]core.DeviceAddress, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("init resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", ServiceType, err)
	}

	var found []core.DeviceAddress
	seen := make(map[string]bool)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return found, nil
			}
			addr, ok := entryToAddress(entry)
			if !ok || seen[addr.ID] {
				continue
			}
			seen[addr.ID] = true
			d.log.Debug("found device", zap.String("id", addr.ID), zap.String("ip", addr.IP))
			d.Add(addr)
			found = append(found, addr)
		case <-ctx.Done():
			return found, nil
		}
	}
}

// entryToAddress converts an mDNS answer. The TXT MAC record is the device id.
func entryToAddress(entry *zeroconf.ServiceEntry) (core.DeviceAddress, bool) {
	if entry == nil {
		return core.DeviceAddress{}, false
	}
	var ip string
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0].String()
	default:
		return core.DeviceAddress{}, false
	}

	txt := parseTXT(entry.Text)
	addr := core.DeviceAddress{
		ID:    txt["MAC"],
		Name:  entry.Instance,
		IP:    ip,
		Port:  entry.Port,
		Type:  "SoundTouch",
		Model: txt["MODEL"],
	}
	if addr.ID == "" {
		addr.ID = entry.Instance
	}
	if addr.Model != "" {
		addr.Type = addr.Model
	}
	if addr.Port == 0 {
		addr.Port = core.DefaultPort
	}
	return addr, true
}

func parseTXT(records []string) map[string]string {
	txt := make(map[string]string, len(records))
	for _, r := range records {
		k, v, ok := strings.Cut(r, "=")
		if !ok {
			continue
		}
		txt[strings.ToUpper(k)] = v
	}
	return txt
}

// GetDevice returns a cached device by id, name, IP or alias.
func (d *Discovery) GetDevice(identifier string) (core.DeviceAddress, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Check aliases first
	if target, ok := d.aliases[strings.ToLower(identifier)]; ok {
		identifier = target
	}

	if dev, ok := d.devices[identifier]; ok && time.Since(dev.lastSeen) < d.ttl {
		return dev.addr, true
	}

	for _, dev := range d.devices {
		if time.Since(dev.lastSeen) >= d.ttl {
			continue
		}
		if strings.EqualFold(dev.addr.Name, identifier) || dev.addr.IP == identifier {
			return dev.addr, true
		}
	}

	return core.DeviceAddress{}, false
}

// CachedDevices returns all cached devices that haven't expired, by name.
func (d *Discovery) CachedDevices() []core.DeviceAddress {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var devices []core.DeviceAddress
	now := time.Now()
	for _, dev := range d.devices {
		if now.Sub(dev.lastSeen) < d.ttl {
			devices = append(devices, dev.addr)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}
