package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/logging"
	"github.com/tessro/stctl/internal/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	Long: `Keep every known speaker in sync and expose it over HTTP.

State changes are streamed to WebSocket clients on /ws.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr := serveListen
	if addr == "" {
		addr = cfg.Server.Listen
	}

	// A server should report requests even without --verbose.
	if !verbose && cfg.Log.File == "" {
		l, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		log = l
	}

	sess := openSession(ctx, true)
	defer sess.Close()

	log.Info("serving speakers", zap.Int("devices", len(sess.Devices())))
	fmt.Printf("Serving %d speakers on http://%s\n", len(sess.Devices()), addr)
	return server.New(sess, log).Run(ctx, addr)
}
