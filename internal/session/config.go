package session

import (
	"net/netip"

	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/config"
	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/soundtouch"
	"github.com/tessro/stctl/internal/state"
)

// FromConfig builds a session talking to real devices.
func FromConfig(cfg *config.Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}

	opts := Options{
		NewClient: func(addr core.DeviceAddress) core.DeviceClient {
			return soundtouch.NewClient(addr, soundtouch.Options{
				Timeout: cfg.Client.RequestTimeout(),
				Logger:  log,
			})
		},
		Discovery: soundtouch.NewDiscovery(soundtouch.DiscoveryOptions{
			Timeout:      cfg.Discovery.DiscoveryTimeout(),
			ProbeTimeout: cfg.Discovery.ProbeTimeout(),
			Batch:        cfg.Discovery.ScanBatch,
			Port:         cfg.Client.Port,
			Logger:       log,
		}),
		MDNS: cfg.Discovery.MDNS,
		Delays: state.Delays{
			Volume:   cfg.Settle.VolumeDelay(),
			Playback: cfg.Settle.PlaybackDelay(),
			Track:    cfg.Settle.TrackDelay(),
		},
		Aliases: cfg.Devices.Aliases,
		Logger:  log,
	}
	for _, s := range cfg.Discovery.Subnets {
		if prefix, err := netip.ParsePrefix(s); err == nil {
			opts.Subnets = append(opts.Subnets, prefix)
		}
	}
	for alias, target := range cfg.Devices.Aliases {
		opts.Discovery.SetAlias(alias, target)
	}

	if cfg.Push.IsEnabled() {
		opts.NewChannel = func(addr core.DeviceAddress) core.PushChannel {
			ch := soundtouch.NewPushChannel(addr.IP, soundtouch.PushOptions{
				Port:        cfg.Push.Port,
				Interval:    cfg.Push.ReconnectInterval(),
				Multiplier:  cfg.Push.Multiplier,
				MaxInterval: cfg.Push.ReconnectCap(),
				MaxAttempts: cfg.Push.MaxAttempts,
				Logger:      log,
			})
			ch.OnError(func(err error) {
				log.Debug("push channel error", zap.String("id", addr.ID), zap.Error(err))
			})
			return ch
		}
	}

	return New(opts)
}

// StaticDevices converts configured static entries to addresses.
func StaticDevices(cfg *config.Config) []core.DeviceAddress {
	addrs := make([]core.DeviceAddress, 0, len(cfg.Devices.Static))
	for _, d := range cfg.Devices.Static {
		addrs = append(addrs, core.DeviceAddress{ID: d.ID, Name: d.Name, IP: d.IP, Port: d.Port})
	}
	return addrs
}
