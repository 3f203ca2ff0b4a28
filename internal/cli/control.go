package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/session"
)

// playbackCommand builds a command that presses one key-like control.
func playbackCommand(use, short, status, line string, fn func(ctx context.Context, sess *session.Session, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
				if err := fn(ctx, sess, id); err != nil {
					return err
				}
				sess.Wait()
				return printNowPlaying(sess, id, status, line)
			})
		},
	}
}

var (
	playCmd = playbackCommand("play", "Resume playback", "playing", "▶ Playing",
		func(ctx context.Context, sess *session.Session, id string) error { return sess.Controls().Play(ctx, id) })
	pauseCmd = playbackCommand("pause", "Pause playback", "paused", "⏸ Paused",
		func(ctx context.Context, sess *session.Session, id string) error { return sess.Controls().Pause(ctx, id) })
	toggleCmd = playbackCommand("toggle", "Toggle play/pause", "toggled", "⏯ Toggled",
		func(ctx context.Context, sess *session.Session, id string) error { return sess.Controls().PlayPause(ctx, id) })
	stopCmd = playbackCommand("stop", "Stop playback", "stopped", "⏹ Stopped",
		func(ctx context.Context, sess *session.Session, id string) error { return sess.Controls().Stop(ctx, id) })
	nextCmd = playbackCommand("next", "Skip to next track", "skipped", "⏭ Next",
		func(ctx context.Context, sess *session.Session, id string) error { return sess.Controls().Next(ctx, id) })
	prevCmd = playbackCommand("prev", "Go to previous track", "skipped", "⏮ Previous",
		func(ctx context.Context, sess *session.Session, id string) error { return sess.Controls().Prev(ctx, id) })
	powerCmd = playbackCommand("power", "Toggle standby", "power", "⏻ Power toggled",
		func(ctx context.Context, sess *session.Session, id string) error { return sess.Controls().Power(ctx, id) })
)

var (
	volumeUp   bool
	volumeDown bool
	volumeStep int
	volumeZone bool
)

var volumeCmd = &cobra.Command{
	Use:   "volume [level]",
	Short: "Show, set or adjust volume",
	Long: `Show the volume, set it (0-100) or adjust it up/down.

Examples:
  stctl volume            # Show volume
  stctl volume 30         # Set volume to 30
  stctl volume --up       # Increase volume by 5
  stctl volume 25 --zone  # Set every speaker in the zone to 25`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVolume,
}

var muteCmd = &cobra.Command{
	Use:       "mute [on|off]",
	Short:     "Mute, unmute or toggle mute",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runMute,
}

var presetCmd = &cobra.Command{
	Use:   "preset [1-6]",
	Short: "Play a preset, or list presets",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPreset,
}

var keyCmd = &cobra.Command{
	Use:   "key <KEY>",
	Short: "Press a remote control key",
	Long: `Press a key on the speaker's virtual remote.

Keys include PLAY, PAUSE, PLAY_PAUSE, STOP, NEXT_TRACK, PREV_TRACK, POWER, MUTE,
VOLUME_UP, VOLUME_DOWN, THUMBS_UP, THUMBS_DOWN, BOOKMARK, SHUFFLE_ON, SHUFFLE_OFF,
REPEAT_ONE, REPEAT_ALL, REPEAT_OFF, AUX_INPUT and PRESET_1 to PRESET_6.`,
	Args: cobra.ExactArgs(1),
	RunE: runKey,
}

var sourceCmd = &cobra.Command{
	Use:   "source [SOURCE] [account]",
	Short: "Select an input source, or list sources",
	Args:  cobra.MaximumNArgs(2),
	RunE:  runSource,
}

var bassCmd = &cobra.Command{
	Use:   "bass [level]",
	Short: "Show or set bass",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBass,
}

func init() {
	volumeCmd.Flags().BoolVar(&volumeUp, "up", false, "increase volume")
	volumeCmd.Flags().BoolVar(&volumeDown, "down", false, "decrease volume")
	volumeCmd.Flags().IntVar(&volumeStep, "step", 5, "amount for --up/--down")
	volumeCmd.Flags().BoolVarP(&volumeZone, "zone", "z", false, "apply to every speaker in the zone")
	volumeCmd.MarkFlagsMutuallyExclusive("up", "down")

	for _, c := range []*cobra.Command{
		playCmd, pauseCmd, toggleCmd, stopCmd, nextCmd, prevCmd, powerCmd,
		volumeCmd, muteCmd, presetCmd, keyCmd, sourceCmd, bassCmd,
	} {
		rootCmd.AddCommand(c)
	}
}

func printNowPlaying(sess *session.Session, id, status, line string) error {
	snap, _ := sess.Snapshot(id)
	np := snap.NowPlaying
	if ok, err := printStructured(map[string]any{"status": status, "device": id, "now_playing": np}); ok {
		return err
	}
	if np != nil && !np.IsStandby() && np.Title() != "" {
		line += ": " + np.Title()
		if np.Artist != "" {
			line += " — " + np.Artist
		}
	}
	fmt.Println(line)
	return nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		controls := sess.Controls()

		switch {
		case len(args) == 1:
			level, err := strconv.Atoi(args[0])
			if err != nil || !core.ValidVolume(level) {
				return fmt.Errorf("%w: %s", sterrors.ErrInvalidVolume, args[0])
			}
			if volumeZone {
				res, err := sess.Zones().SetVolume(ctx, id, level)
				if err != nil {
					return err
				}
				warnPartial(res.Errors)
				return printStatus("set", fmt.Sprintf("🔊 Zone volume: %d%% (%d speakers)", level, len(res.Data)),
					map[string]any{"volume": level, "devices": res.Data})
			}
			if err := controls.SetVolume(ctx, id, level); err != nil {
				return err
			}
		case volumeUp || volumeDown:
			delta := volumeStep
			if volumeDown {
				delta = -delta
			}
			if _, err := controls.AdjustVolume(ctx, id, delta); err != nil {
				return err
			}
		}

		sess.Wait()
		snap, _ := sess.Snapshot(id)
		if ok, err := printStructured(map[string]any{"device": id, "volume": snap.Volume}); ok {
			return err
		}
		fmt.Printf("🔊 Volume: %s\n", volumeLabel(snap.Volume))
		return nil
	})
}

func runMute(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		controls := sess.Controls()
		var err error
		switch {
		case len(args) == 0:
			err = controls.ToggleMute(ctx, id)
		case strings.EqualFold(args[0], "on"):
			err = controls.SetMute(ctx, id, true)
		case strings.EqualFold(args[0], "off"):
			err = controls.SetMute(ctx, id, false)
		default:
			return fmt.Errorf("mute takes on or off, got %q", args[0])
		}
		if err != nil {
			return err
		}

		sess.Wait()
		snap, _ := sess.Snapshot(id)
		muted := snap.Volume != nil && snap.Volume.Muted
		line := "🔊 Unmuted"
		if muted {
			line = "🔇 Muted"
		}
		return printStatus("ok", line, map[string]any{"device": id, "muted": muted})
	})
}

func runPreset(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		if len(args) == 0 {
			snap, _ := sess.Snapshot(id)
			if ok, err := printStructured(snap.Presets); ok {
				return err
			}
			if len(snap.Presets) == 0 {
				fmt.Println("No presets stored")
				return nil
			}
			t := NewTable("#", "NAME", "SOURCE")
			for _, p := range snap.Presets {
				t.Row(strconv.Itoa(p.Slot), p.Content.Name, p.Content.Source)
			}
			t.Flush()
			return nil
		}

		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s", sterrors.ErrInvalidPreset, args[0])
		}
		if err := sess.Controls().SelectPreset(ctx, id, slot); err != nil {
			return err
		}
		sess.Wait()
		return printNowPlaying(sess, id, "playing", fmt.Sprintf("▶ Preset %d", slot))
	})
}

func runKey(cmd *cobra.Command, args []string) error {
	key := core.Key(strings.ToUpper(args[0]))
	if !core.ValidKey(key) {
		return fmt.Errorf("%w: %s", sterrors.ErrInvalidKey, args[0])
	}
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		if err := sess.Controls().SendKey(ctx, id, key); err != nil {
			return err
		}
		sess.Wait()
		return printStatus("pressed", fmt.Sprintf("✓ Pressed %s", key), map[string]any{"device": id, "key": key})
	})
}

func runSource(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		if len(args) == 0 {
			dc, err := detailFor(sess, id)
			if err != nil {
				return err
			}
			sources, err := dc.Sources(ctx)
			if err != nil {
				return err
			}
			if ok, err := printStructured(sources); ok {
				return err
			}
			t := NewTable("", "SOURCE", "ACCOUNT", "NAME")
			for _, s := range sources {
				t.Row(StatusIcon(s.IsReady()), s.Source, s.Account, s.Name)
			}
			t.Flush()
			return nil
		}

		source := strings.ToUpper(args[0])
		account := ""
		if len(args) == 2 {
			account = args[1]
		}
		if err := sess.Controls().SelectSource(ctx, id, source, account); err != nil {
			return err
		}
		sess.Wait()
		return printNowPlaying(sess, id, "selected", "✓ Source "+source)
	})
}

func runBass(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		dc, err := detailFor(sess, id)
		if err != nil {
			return err
		}
		caps, err := dc.BassCapabilities(ctx)
		if err != nil {
			return err
		}
		if !caps.Available {
			return fmt.Errorf("%s does not support bass adjustment", id)
		}

		if len(args) == 1 {
			level, err := strconv.Atoi(args[0])
			if err != nil || level < caps.Min || level > caps.Max {
				return fmt.Errorf("bass must be between %d and %d", caps.Min, caps.Max)
			}
			if err := sess.Controls().SetBass(ctx, id, level); err != nil {
				return err
			}
		}

		bass, err := dc.Bass(ctx)
		if err != nil {
			return err
		}
		if ok, err := printStructured(map[string]any{"device": id, "bass": bass, "range": caps}); ok {
			return err
		}
		fmt.Printf("Bass: %d (range %d to %d)\n", bass.Actual, caps.Min, caps.Max)
		return nil
	})
}
