package cli

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tessro/stctl/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for viewing and editing stctl configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration values, including defaults and environment overrides.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long:  `Open the configuration file in your default editor.`,
	RunE:  runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long:  `Create a new configuration file with default values.`,
	RunE:  runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Supported keys:
  devices.default          Default speaker name, id, IP or alias
  discovery.mdns           Browse for speakers with mDNS (true/false)
  discovery.timeout        mDNS browse window in seconds
  client.timeout           Request timeout in milliseconds
  push.enabled             Subscribe to device push updates (true/false)
  push.interval            Reconnect delay in milliseconds
  push.max_attempts        Reconnect attempts before giving up
  push.multiplier          Reconnect backoff multiplier
  settle.volume            Refresh delay after volume changes (ms)
  settle.playback          Refresh delay after playback keys (ms)
  settle.track             Refresh delay after track changes (ms)
  server.listen            HTTP API listen address
  tui.theme                auto, dark or light
  tui.refresh_interval     Fallback poll interval in milliseconds
  log.level                debug, info, warn or error
  log.file                 Log file path
  log.format               console or json

Examples:
  stctl config set devices.default Kitchen
  stctl config set push.enabled false`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configSetDeviceCmd = &cobra.Command{
	Use:   "set-device",
	Short: "Interactively select default speaker",
	Long:  `Shows a picker to select the speaker commands use when --device is not given.`,
	RunE:  runConfigSetDevice,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetDeviceCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if ok, err := printStructured(cfg); ok {
		return err
	}

	encoder := toml.NewEncoder(os.Stdout)
	encoder.Indent = "  "
	return encoder.Encode(cfg)
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path := configPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found at %s. Run 'stctl config init' first", path)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"nano", "vim", "vi", "notepad"} {
			if _, err := exec.LookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set EDITOR environment variable")
	}

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	return editorCmd.Run()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return err
	}

	if ok, err := printStructured(map[string]string{"status": "created", "path": path}); ok {
		return err
	}
	fmt.Printf("Created config file: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'stctl discover --save' to find your speakers")
	fmt.Println("  2. Run 'stctl config set-device' to pick a default")
	return nil
}

// configKeyType returns the TOML type a settable key holds.
func configKeyType(key string) (string, bool) {
	switch key {
	case "devices.default", "server.listen", "tui.theme", "log.level", "log.file", "log.format":
		return "string", true
	case "discovery.mdns", "push.enabled":
		return "bool", true
	case "discovery.timeout", "client.timeout", "push.interval", "push.max_attempts", "push.max_interval",
		"settle.volume", "settle.playback", "settle.track", "tui.refresh_interval":
		return "int", true
	case "push.multiplier":
		return "float", true
	}
	return "", false
}

func typedConfigValue(key, value string) (any, error) {
	kind, ok := configKeyType(key)
	if !ok {
		return nil, fmt.Errorf("unknown config key %q. Run 'stctl config set --help' for the list", key)
	}
	switch kind {
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("value must be true or false for %s", key)
		}
		return b, nil
	case "int":
		i, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("value must be an integer for %s", key)
		}
		return int64(i), nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("value must be a number for %s", key)
		}
		return f, nil
	}
	return value, nil
}

// setConfigValue rewrites the file at path with key set to value. The raw
// TOML is edited so unrelated keys the user wrote are kept as-is. The result
// must still validate.
func setConfigValue(path, key, value string) error {
	typed, err := typedConfigValue(key, value)
	if err != nil {
		return err
	}

	raw := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config: %w", err)
	}

	section, field, _ := strings.Cut(key, ".")
	sectionMap, ok := raw[section].(map[string]any)
	if !ok {
		sectionMap = make(map[string]any)
		raw[section] = sectionMap
	}
	sectionMap[field] = typed

	var buf bytes.Buffer
	_, _ = fmt.Fprintln(&buf, "# stctl configuration")
	_, _ = fmt.Fprintln(&buf, "")
	encoder := toml.NewEncoder(&buf)
	encoder.Indent = "  "
	if err := encoder.Encode(raw); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	check := &config.Config{}
	if _, err := toml.Decode(buf.String(), check); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	check.ApplyDefaults()
	if err := check.Validate(); err != nil {
		return err
	}

	return os.WriteFile(path, buf.Bytes(), 0644)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if err := setConfigValue(configPath(), key, value); err != nil {
		return err
	}
	return printStatus("updated", fmt.Sprintf("Set %s = %s", key, value),
		map[string]any{"key": key, "value": value})
}

func runConfigSetDevice(cmd *cobra.Command, args []string) error {
	sess := openSession(cmd.Context(), false)
	defer sess.Close()

	choices := choicesFor(sess)
	if len(choices) == 0 {
		return fmt.Errorf("no speakers found. Run 'stctl discover' or add one with 'stctl devices add <ip>'")
	}

	var options []huh.Option[string]
	for _, c := range choices {
		options = append(options, huh.NewOption(c.Label(), c.Device.Name))
	}

	selected := cfg.Devices.Default
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select default speaker").
				Description("Commands use this speaker when --device is not given").
				Options(options...).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("selection cancelled: %w", err)
	}

	return runConfigSet(cmd, []string{"devices.default", selected})
}
