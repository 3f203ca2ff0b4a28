package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/tail"
)

var (
	watchNoEmoji   bool
	watchTimestamp bool
	watchFormat    string
	watchInterval  time.Duration
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"tail"},
	Short:   "Follow speaker changes in real-time",
	Long: `Watch every known speaker and print state changes as they happen.

Events tracked:
  - Track and source changes
  - Pause/Resume and standby
  - Volume and mute changes
  - Zone membership changes
  - Speakers becoming unreachable or recovering

Use --device to follow a single speaker.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoEmoji, "no-emoji", false, "disable emoji output")
	watchCmd.Flags().BoolVarP(&watchTimestamp, "timestamp", "t", false, "show timestamps")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", "", "custom format template")
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 30*time.Second, "fallback poll interval (0 to rely on push only)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sess := openSession(ctx, true)
	defer sess.Close()

	var only string
	if deviceFlag != "" {
		id, err := sess.Resolve(deviceFlag)
		if err != nil {
			return err
		}
		only = id
	}

	formatter := tail.NewFormatter(
		tail.WithEmoji(!watchNoEmoji),
		tail.WithTimestamp(watchTimestamp),
		tail.WithTemplate(watchFormat),
	)

	showInitialState(sess.Devices(), sess.Snapshot, only, formatter)

	watcher := tail.NewWatcher(sess.Store(), sess, watchInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- watcher.Start(ctx)
	}()

	for {
		select {
		case event, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if only != "" && event.Device.ID != only {
				continue
			}
			if printed, err := printStructured(recordFor(event)); printed {
				if err != nil {
					return err
				}
				continue
			}
			fmt.Println(formatter.Format(event))

		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// eventRecord is the structured form of a watch event.
type eventRecord struct {
	Type      string             `json:"type" yaml:"type"`
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"`
	Device    core.DeviceAddress `json:"device" yaml:"device"`
	State     *core.Snapshot     `json:"state,omitempty" yaml:"state,omitempty"`
}

func recordFor(e tail.Event) eventRecord {
	return eventRecord{Type: e.Type.String(), Timestamp: e.Timestamp, Device: e.Device, State: e.Current}
}

// showInitialState prints what each watched speaker is playing right now.
func showInitialState(devices []core.DeviceAddress, snapshot func(string) (core.Snapshot, bool), only string, formatter *tail.Formatter) {
	if GetOutputMode() != OutputNormal {
		return
	}
	for _, d := range devices {
		if only != "" && d.ID != only {
			continue
		}
		snap, ok := snapshot(d.ID)
		if !ok || !snap.NowPlaying.IsPlaying() {
			continue
		}
		fmt.Println(formatter.Format(tail.Event{
			Type:      tail.EventTrackChange,
			Timestamp: snap.UpdatedAt,
			Device:    d,
			Current:   &snap,
		}))
	}
}
