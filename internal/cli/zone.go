package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessro/stctl/internal/core"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/session"
	"github.com/tessro/stctl/internal/wizard"
	"github.com/tessro/stctl/internal/zone"
)

var zoneCmd = &cobra.Command{
	Use:     "zone",
	Aliases: []string{"group"},
	Short:   "Show and manage multi-room zones",
	Long: `Group speakers so they play the same audio.

The target speaker (--device or the default) is the zone master.

Examples:
  stctl zone                          # Show the target's zone
  stctl zone create Den Bedroom -d Kitchen
  stctl zone add Office
  stctl zone remove Den
  stctl zone dissolve
  stctl zone everywhere               # Group every known speaker`,
	Args: cobra.NoArgs,
	RunE: runZoneShow,
}

var zoneCreateCmd = &cobra.Command{
	Use:   "create [member...]",
	Short: "Create a zone led by the target speaker",
	Long:  `Create a zone led by the target speaker. Without arguments a picker offers the other speakers.`,
	RunE:  runZoneCreate,
}

var zoneAddCmd = &cobra.Command{
	Use:   "add <member>",
	Short: "Add a speaker to the target's zone",
	Args:  cobra.ExactArgs(1),
	RunE:  runZoneAdd,
}

var zoneRemoveCmd = &cobra.Command{
	Use:     "remove <member>",
	Aliases: []string{"rm"},
	Short:   "Remove a speaker from the target's zone",
	Args:    cobra.ExactArgs(1),
	RunE:    runZoneRemove,
}

var zoneDissolveCmd = &cobra.Command{
	Use:   "dissolve",
	Short: "Ungroup every speaker in the target's zone",
	Args:  cobra.NoArgs,
	RunE:  runZoneDissolve,
}

var zoneEverywhereCmd = &cobra.Command{
	Use:   "everywhere",
	Short: "Play the target speaker on every known speaker",
	Args:  cobra.NoArgs,
	RunE:  runZoneEverywhere,
}

func init() {
	zoneCmd.AddCommand(zoneCreateCmd)
	zoneCmd.AddCommand(zoneAddCmd)
	zoneCmd.AddCommand(zoneRemoveCmd)
	zoneCmd.AddCommand(zoneDissolveCmd)
	zoneCmd.AddCommand(zoneEverywhereCmd)
	rootCmd.AddCommand(zoneCmd)
}

func runZoneShow(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		view := sess.Zones().View(id)
		if ok, err := printStructured(map[string]any{"device": id, "zone": view}); ok {
			return err
		}
		if view == nil {
			fmt.Println("Not in a zone")
			return nil
		}
		fmt.Println(formatZone(view))
		return nil
	})
}

func formatZone(view *core.ZoneView) string {
	var b strings.Builder
	if view.Master != nil {
		fmt.Fprintf(&b, "◆ %s (master)\n", view.Master.Name)
	}
	for _, m := range view.Members {
		fmt.Fprintf(&b, "◇ %s\n", m.Name)
	}
	fmt.Fprintf(&b, "%d speakers", view.MemberCount)
	return b.String()
}

// resolveAll maps identifiers to registered ids.
func resolveAll(sess *session.Session, identifiers []string) ([]string, error) {
	ids := make([]string, 0, len(identifiers))
	for _, ident := range identifiers {
		id, err := sess.Resolve(ident)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// reportZone prints the outcome of a zone operation and its partial failures.
func reportZone(sess *session.Session, masterID, status, line string, res *zone.Result) error {
	view := sess.Zones().View(masterID)
	var errs []string
	for _, err := range res.Errors {
		errs = append(errs, err.Error())
	}
	if ok, err := printStructured(map[string]any{
		"status":    status,
		"master":    masterID,
		"refreshed": res.Data,
		"zone":      view,
		"errors":    errs,
	}); ok {
		return err
	}

	fmt.Println(line)
	if view != nil {
		fmt.Println(formatZone(view))
	}
	warnPartial(res.Errors)
	return nil
}

func runZoneCreate(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, masterID string) error {
		var members []string
		if len(args) > 0 {
			var err error
			if members, err = resolveAll(sess, args); err != nil {
				return err
			}
		} else {
			interactive := wizard.NewInteractive()
			interactive.SetEnabled(!jsonOut && !yamlOut)
			interactive.SetChoices(choicesFor(sess))
			var err error
			if members, err = interactive.PromptMembers(masterID); err != nil {
				return err
			}
		}
		if len(members) == 0 {
			return sterrors.WithSuggestion(
				fmt.Errorf("%w to group", sterrors.ErrNoOtherDevices),
				"Name the speakers to add: stctl zone create <member>...")
		}

		res, err := sess.Zones().Create(ctx, masterID, members)
		if err != nil {
			return err
		}
		return reportZone(sess, masterID, "created", fmt.Sprintf("✓ Zone created with %d speakers", len(res.Data)), res)
	})
}

func runZoneAdd(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, masterID string) error {
		memberID, err := sess.Resolve(args[0])
		if err != nil {
			return err
		}
		res, err := sess.Zones().AddMember(ctx, masterID, memberID)
		if err != nil {
			return err
		}
		return reportZone(sess, masterID, "added", "✓ Added "+args[0], res)
	})
}

func runZoneRemove(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, masterID string) error {
		memberID, err := sess.Resolve(args[0])
		if err != nil {
			return err
		}
		res, err := sess.Zones().RemoveMember(ctx, masterID, memberID)
		if err != nil {
			return err
		}
		return reportZone(sess, masterID, "removed", "✓ Removed "+args[0], res)
	})
}

func runZoneDissolve(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, id string) error {
		masterID := id
		if view := sess.Zones().View(id); view != nil && view.Master != nil {
			masterID = view.Master.ID
		}
		res, err := sess.Zones().Dissolve(ctx, masterID)
		if err != nil {
			return err
		}
		return reportZone(sess, masterID, "dissolved", "✓ Zone dissolved", res)
	})
}

func runZoneEverywhere(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(ctx context.Context, sess *session.Session, masterID string) error {
		res, err := sess.Zones().PlayEverywhere(ctx, masterID)
		if err != nil {
			return err
		}
		return reportZone(sess, masterID, "grouped", fmt.Sprintf("✓ Playing everywhere (%d speakers)", len(sess.Devices())), res)
	})
}
