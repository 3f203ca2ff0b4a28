package cli

import (
	"github.com/spf13/cobra"

	"github.com/tessro/stctl/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:     "ui",
	Aliases: []string{"tui"},
	Short:   "Open the interactive dashboard",
	Long: `Open a full-screen dashboard with now playing, presets, speakers and live activity.

Press ? inside the dashboard for key bindings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sess := openSession(ctx, true)
		defer sess.Close()

		return tui.Run(ctx, tui.NewApp(sess, cfg, configPath(), log))
	},
}

func init() {
	rootCmd.AddCommand(uiCmd)
}
