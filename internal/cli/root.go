package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/config"
	sterrors "github.com/tessro/stctl/internal/errors"
	"github.com/tessro/stctl/internal/logging"
	"github.com/tessro/stctl/internal/session"
	"github.com/tessro/stctl/internal/tui/styles"
	"github.com/tessro/stctl/internal/wizard"
)

var (
	cfgFile    string
	jsonOut    bool
	yamlOut    bool
	verbose    bool
	deviceFlag string

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stctl",
	Short: "Control Bose SoundTouch speakers from the command line",
	Long: `stctl discovers SoundTouch speakers on your network, keeps their state in sync,
and groups them into multi-room zones.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.stctlrc)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&yamlOut, "yaml", false, "output as YAML")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&deviceFlag, "device", "d", "", "target speaker (name, id, IP or alias)")
	rootCmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

func initConfig() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := cfg.Log
	if verbose {
		logCfg.Level = "debug"
	}
	if verbose || logCfg.File != "" {
		log, err = logging.New(logCfg)
		if err != nil {
			return err
		}
	} else {
		log = logging.Quiet(logCfg)
	}
	return nil
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, sterrors.Format(err))
		stop()
		os.Exit(1)
	}
}

// Config returns the loaded configuration.
func Config() *config.Config {
	return cfg
}

// JSONOutput returns true if JSON output is requested.
func JSONOutput() bool {
	return jsonOut
}

// YAMLOutput returns true if YAML output is requested.
func YAMLOutput() bool {
	return yamlOut
}

// Verbose returns true if verbose output is requested.
func Verbose() bool {
	return verbose
}

// configPath returns the file config commands read and write.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// newSession builds a session with nothing registered.
func newSession(push bool) *session.Session {
	c := *cfg
	if !push {
		disabled := false
		c.Push.Enabled = &disabled
	}
	return session.FromConfig(&c, log)
}

// openSession builds a session and registers the configured static
// speakers. When none are configured it runs discovery. Push channels are
// only opened for long-running commands.
func openSession(ctx context.Context, push bool) *session.Session {
	sess := newSession(push)

	if static := session.StaticDevices(cfg); len(static) > 0 {
		res := sess.AddStatic(ctx, static)
		for _, err := range res.Errors {
			log.Warn("static device unavailable", zap.Error(err))
		}
	}
	if len(sess.Devices()) == 0 {
		res := sess.Discover(ctx)
		for _, err := range res.Errors {
			log.Debug("discovery", zap.Error(err))
		}
	}
	return sess
}

// targetDevice resolves the speaker a command acts on: --device, then the
// configured default, then the only sensible choice, then a picker.
func targetDevice(ctx context.Context, sess *session.Session) (string, error) {
	identifier := deviceFlag
	if identifier == "" {
		identifier = cfg.Devices.Default
	}

	if identifier != "" {
		id, err := sess.Resolve(identifier)
		if err == nil {
			return id, nil
		}
		// Not registered yet: it may only be reachable through discovery.
		sess.Discover(ctx)
		return sess.Resolve(identifier)
	}

	choices := choicesFor(sess)
	if id := wizard.PickDevice(choices); id != "" {
		return id, nil
	}

	interactive := wizard.NewInteractive()
	interactive.SetEnabled(!jsonOut && !yamlOut)
	interactive.SetChoices(choices)
	if interactive.CanInteract() {
		styles.SetTheme(cfg.TUI.Theme)
	}
	id, err := interactive.PromptDevice()
	if err != nil {
		return "", err
	}
	if id == "" {
		if len(choices) == 0 {
			return "", sterrors.ErrDeviceNotFound
		}
		return "", sterrors.WithSuggestion(
			fmt.Errorf("%d speakers found: %w", len(choices), sterrors.ErrDeviceNotFound),
			"Pick one with --device, or set a default with 'stctl config set-device'")
	}
	return id, nil
}

func choicesFor(sess *session.Session) []wizard.Choice {
	devices := sess.Devices()
	choices := make([]wizard.Choice, 0, len(devices))
	for _, d := range devices {
		snap, _ := sess.Snapshot(d.ID)
		choices = append(choices, wizard.Choice{Device: d, Snapshot: snap})
	}
	return choices
}

// withDevice opens a session, resolves the target speaker and runs fn.
func withDevice(cmd *cobra.Command, fn func(ctx context.Context, sess *session.Session, id string) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess := openSession(ctx, false)
	defer sess.Close()

	id, err := targetDevice(ctx, sess)
	if err != nil {
		return err
	}
	return fn(ctx, sess, id)
}
