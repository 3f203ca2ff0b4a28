package cli

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tessro/stctl/internal/config"
	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/session"
	"github.com/tessro/stctl/internal/soundtouch"
)

var (
	discoverSubnets []string
	discoverIPs     []string
	discoverSave    bool
	addNoSave       bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find speakers on the network",
	Long: `Find SoundTouch speakers with mDNS and, when configured, by scanning subnets.

Examples:
  stctl discover
  stctl discover --subnet 192.168.1.0/24
  stctl discover --ip 192.168.1.20 --ip 192.168.1.21 --save`,
	RunE: runDiscover,
}

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"ls"},
	Short:   "List known speakers",
	Long:    `List configured and discovered speakers with their current state.`,
	RunE:    runDevices,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <ip>...",
	Short: "Add speakers by IP address",
	Long:  `Probe each address and save the speakers it finds to the config file.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDevicesAdd,
}

var devicesForgetCmd = &cobra.Command{
	Use:   "forget <device>",
	Short: "Remove a speaker from the config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesForget,
}

var devicesInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show hardware and capability details",
	RunE:  runDevicesInfo,
}

var devicesRenameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Rename a speaker",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesRename,
}

func init() {
	discoverCmd.Flags().StringSliceVar(&discoverSubnets, "subnet", nil, "scan a subnet (CIDR), in addition to mDNS")
	discoverCmd.Flags().StringSliceVar(&discoverIPs, "ip", nil, "probe a specific address")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", false, "save found speakers to the config file")
	devicesAddCmd.Flags().BoolVar(&addNoSave, "no-save", false, "probe only, do not update the config file")

	devicesCmd.AddCommand(devicesAddCmd)
	devicesCmd.AddCommand(devicesForgetCmd)
	devicesCmd.AddCommand(devicesInfoCmd)
	devicesCmd.AddCommand(devicesRenameCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(devicesCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	for _, s := range discoverSubnets {
		if _, err := netip.ParsePrefix(s); err != nil {
			return fmt.Errorf("invalid subnet %q: %w", s, err)
		}
	}
	cfg.Discovery.Subnets = append(cfg.Discovery.Subnets, discoverSubnets...)

	sess := newSession(false)
	defer sess.Close()

	found := sess.Discover(ctx)
	if len(discoverIPs) > 0 {
		addrs := make([]core.DeviceAddress, 0, len(discoverIPs))
		for _, ip := range discoverIPs {
			addrs = append(addrs, core.DeviceAddress{IP: ip})
		}
		probed := sess.AddStatic(ctx, addrs)
		found.Data = append(found.Data, probed.Data...)
		found.Merge(probed.Errors)
	}
	if Verbose() {
		warnPartial(found.Errors)
	}

	if discoverSave && len(found.Data) > 0 {
		if err := saveStatic(found.Data); err != nil {
			return err
		}
	}

	if ok, err := printStructured(found.Data); ok {
		return err
	}
	if len(found.Data) == 0 {
		fmt.Println("No speakers found")
		return nil
	}
	t := NewTable("NAME", "ID", "IP", "TYPE")
	for _, d := range found.Data {
		t.Row(d.Name, d.ID, d.IP, d.Type)
	}
	t.Flush()
	return nil
}

// deviceStatus is the structured form of one speaker's state.
type deviceStatus struct {
	Device   core.DeviceAddress `json:"device" yaml:"device"`
	Snapshot core.Snapshot      `json:"state" yaml:"state"`
	Zone     *core.ZoneView     `json:"zone,omitempty" yaml:"zone,omitempty"`
}

func collectStatus(sess *session.Session) []deviceStatus {
	devices := sess.Devices()
	out := make([]deviceStatus, 0, len(devices))
	for _, d := range devices {
		snap, _ := sess.Snapshot(d.ID)
		out = append(out, deviceStatus{Device: d, Snapshot: snap, Zone: sess.Zones().View(d.ID)})
	}
	return out
}

func runDevices(cmd *cobra.Command, args []string) error {
	sess := openSession(cmd.Context(), false)
	defer sess.Close()

	statuses := collectStatus(sess)
	if ok, err := printStructured(statuses); ok {
		return err
	}
	if len(statuses) == 0 {
		fmt.Println("No speakers found")
		return nil
	}

	t := NewTable("", "NAME", "IP", "PLAYING", "VOLUME", "ZONE", "UPDATED")
	for _, s := range statuses {
		np := s.Snapshot.NowPlaying
		name := s.Device.Name
		if isDefault(s.Device) {
			name += " ★"
		}
		playing := "standby"
		if !np.IsStandby() {
			playing = TruncateString(np.Title(), 30)
		}
		t.Row(StatusIcon(np.IsPlaying()), name, s.Device.IP, playing,
			volumeLabel(s.Snapshot.Volume), zoneLabel(s.Zone), updatedLabel(s.Snapshot))
	}
	t.Flush()
	return nil
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	addrs := make([]core.DeviceAddress, 0, len(args))
	for _, ip := range args {
		if _, err := netip.ParseAddr(ip); err != nil {
			return fmt.Errorf("invalid address %q", ip)
		}
		addrs = append(addrs, core.DeviceAddress{IP: ip})
	}

	sess := newSession(false)
	defer sess.Close()

	res := sess.AddStatic(cmd.Context(), addrs)
	warnPartial(res.Errors)
	if len(res.Data) == 0 {
		return fmt.Errorf("no speakers added")
	}

	if !addNoSave {
		if err := saveStatic(res.Data); err != nil {
			return err
		}
	}

	if ok, err := printStructured(res.Data); ok {
		return err
	}
	for _, d := range res.Data {
		fmt.Printf("✓ Added %s [%s]\n", d, d.ID)
	}
	return nil
}

func runDevicesForget(cmd *cobra.Command, args []string) error {
	target := cfg.ResolveAlias(args[0])
	path := configPath()

	fileCfg, err := config.LoadFrom(path)
	if err != nil {
		return err
	}

	kept := fileCfg.Devices.Static[:0]
	removed := 0
	for _, d := range fileCfg.Devices.Static {
		if d.ID == target || d.IP == target || strings.EqualFold(d.Name, target) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	if removed == 0 {
		return fmt.Errorf("%q is not a configured speaker", args[0])
	}
	fileCfg.Devices.Static = kept
	if err := config.Save(fileCfg, path); err != nil {
		return err
	}
	return printStatus("forgotten", fmt.Sprintf("Forgot %s", args[0]), map[string]any{"device": args[0]})
}

// detailClient is the part of the protocol client beyond core.DeviceClient.
type detailClient interface {
	Info(ctx context.Context) (*core.DeviceInfo, error)
	Capabilities(ctx context.Context) ([]core.Capability, error)
	Sources(ctx context.Context) ([]core.Source, error)
	Bass(ctx context.Context) (*core.Bass, error)
	BassCapabilities(ctx context.Context) (*core.BassCapabilities, error)
	SetName(ctx context.Context, name string) error
}

var _ detailClient = (*soundtouch.Client)(nil)

func detailFor(sess *session.Session, id string) (detailClient, error) {
	c, ok := sess.Store().Client(id)
	if !ok {
		return nil, fmt.Errorf("%s: not registered", id)
	}
	dc, ok := c.(detailClient)
	if !ok {
		return nil, fmt.Errorf("%s: device details unavailable", id)
	}
	return dc, nil
}

type deviceInfoOutput struct {
	Info         *core.DeviceInfo       `json:"info" yaml:"info"`
	Capabilities []core.Capability      `json:"capabilities" yaml:"capabilities"`
	Bass         *core.BassCapabilities `json:"bass,omitempty" yaml:"bass,omitempty"`
}

func runDevicesInfo(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		dc, err := detailFor(sess, id)
		if err != nil {
			return err
		}
		info, err := dc.Info(ctx)
		if err != nil {
			return err
		}
		out := deviceInfoOutput{Info: info}
		if out.Capabilities, err = dc.Capabilities(ctx); err != nil {
			log.Debug("capabilities unavailable")
		}
		if bass, err := dc.BassCapabilities(ctx); err == nil && bass.Available {
			out.Bass = bass
		}

		if ok, err := printStructured(out); ok {
			return err
		}
		fmt.Printf("%s (%s)\n", info.Name, info.Type)
		fmt.Printf("  ID:      %s\n", info.DeviceID)
		fmt.Printf("  IP:      %s\n", info.PrimaryIP())
		for _, c := range info.Components {
			if c.SoftwareVersion != "" {
				fmt.Printf("  %s: %s\n", c.Category, c.SoftwareVersion)
			}
		}
		if out.Bass != nil {
			fmt.Printf("  Bass:    %d to %d (default %d)\n", out.Bass.Min, out.Bass.Max, out.Bass.Default)
		}
		if len(out.Capabilities) > 0 {
			names := make([]string, 0, len(out.Capabilities))
			for _, c := range out.Capabilities {
				names = append(names, c.Name)
			}
			fmt.Printf("  Capabilities: %s\n", strings.Join(names, ", "))
		}
		return nil
	})
}

func runDevicesRename(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		dc, err := detailFor(sess, id)
		if err != nil {
			return err
		}
		if err := dc.SetName(ctx, args[0]); err != nil {
			return err
		}
		return printStatus("renamed", fmt.Sprintf("✓ Renamed to %s", args[0]), map[string]any{"device": id, "name": args[0]})
	})
}

// saveStatic merges addrs into the config file's static speakers.
func saveStatic(addrs []core.DeviceAddress) error {
	path := configPath()
	fileCfg, err := config.LoadFrom(path)
	if err != nil {
		fileCfg = config.Default()
	}
	fileCfg.Devices.Static = config.MergeStatic(fileCfg.Devices.Static, addrs)
	return config.Save(fileCfg, path)
}

func isDefault(d core.DeviceAddress) bool {
	def := cfg.ResolveAlias(cfg.Devices.Default)
	return def != "" && (def == d.ID || def == d.IP || strings.EqualFold(def, d.Name))
}

func volumeLabel(v *core.Volume) string {
	switch {
	case v == nil:
		return "-"
	case v.Muted:
		return "muted"
	default:
		return fmt.Sprintf("%d%%", v.Actual)
	}
}

func zoneLabel(z *core.ZoneView) string {
	switch {
	case z == nil:
		return "-"
	case z.IsMaster:
		return fmt.Sprintf("master (%d)", z.MemberCount)
	case z.Master != nil:
		return "with " + z.Master.Name
	default:
		return "member"
	}
}

func updatedLabel(s core.Snapshot) string {
	if s.Stale() {
		return "unreachable"
	}
	if s.UpdatedAt.IsZero() {
		return "-"
	}
	return humanize.Time(s.UpdatedAt)
}
