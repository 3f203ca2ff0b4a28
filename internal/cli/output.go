package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	sterrors "github.com/tessro/stctl/internal/errors"
)

// OutputMode represents the output format.
type OutputMode int

const (
	OutputNormal OutputMode = iota
	OutputJSON
	OutputYAML
)

// GetOutputMode returns the current output mode.
func GetOutputMode() OutputMode {
	switch {
	case JSONOutput():
		return OutputJSON
	case YAMLOutput():
		return OutputYAML
	default:
		return OutputNormal
	}
}

// printStructured writes v as JSON or YAML when one was requested. It
// reports false in normal mode so the caller prints its own text.
func printStructured(v any) (bool, error) {
	return writeStructured(os.Stdout, GetOutputMode(), v)
}

func writeStructured(w io.Writer, mode OutputMode, v any) (bool, error) {
	switch mode {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

// printStatus prints a one-line confirmation, or {"status": status, ...} in
// structured modes.
func printStatus(status, line string, fields map[string]any) error {
	data := map[string]any{"status": status}
	for k, v := range fields {
		data[k] = v
	}
	if ok, err := printStructured(data); ok {
		return err
	}
	fmt.Println(line)
	return nil
}

// warnPartial reports collected per-device failures on stderr.
func warnPartial(errs []error) {
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		if Verbose() {
			if s := sterrors.GetSuggestion(err); s != "" {
				fmt.Fprintf(os.Stderr, "  %s\n", s)
			}
		}
	}
}

// Table provides a simple table formatter.
type Table struct {
	w       *tabwriter.Writer
	headers []string
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	return NewTableWriter(os.Stdout, headers...)
}

// NewTableWriter creates a table writing to a specific writer.
func NewTableWriter(out io.Writer, headers ...string) *Table {
	t := &Table{
		w:       tabwriter.NewWriter(out, 0, 0, 2, ' ', 0),
		headers: headers,
	}
	if len(headers) > 0 {
		_, _ = t.w.Write([]byte(strings.Join(headers, "\t") + "\n"))
	}
	return t
}

// Row adds a row to the table.
func (t *Table) Row(values ...string) {
	_, _ = t.w.Write([]byte(strings.Join(values, "\t") + "\n"))
}

// Flush writes the table output.
func (t *Table) Flush() {
	_ = t.w.Flush()
}

// StatusIcon returns an icon for the given boolean status.
func StatusIcon(active bool) string {
	if active {
		return "●"
	}
	return "○"
}

// TruncateString truncates a string to maxLen, adding "..." if truncated.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// FormatLevel renders a 0-100 level as a bar.
func FormatLevel(level, width int) string {
	filled := level * width / 100
	filled = max(0, min(width, filled))
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}
