package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"modsplit/internal/core/app"

	"github.com/spf13/pflag"
)

const versionString = "1.0.0"

// Exit codes.
const (
	exitOK                = 0
	exitError             = 1
	exitNotApplicable     = 2
	exitDestinationExists = 3
)

type cliOptions struct {
	configPath   string
	root         string
	envFiles     []string
	dryRun       bool
	verbose      bool
	version      bool
	recover      bool
	history      bool
	historyLimit int
	metricsFile  string
	args         []string
}

func parseOptions(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	fs := pflag.NewFlagSet("modsplit", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default: <root>/modsplit.toml when present)")
	fs.StringVarP(&opts.root, "root", "r", "", "Workspace root (default: detected from the working directory)")
	fs.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Env files loaded before MODSPLIT_* overrides")
	fs.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Print the planned edits without writing anything")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	fs.BoolVar(&opts.recover, "recover", false, "Roll back commits interrupted by a crash and exit")
	fs.BoolVar(&opts.history, "history", false, "List recent journaled commits and exit")
	fs.IntVar(&opts.historyLimit, "history-limit", 20, "Maximum entries printed by --history")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write a Prometheus textfile snapshot here after the run")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: modsplit [flags] <file> <offset|line:col>")
		fmt.Fprintln(stderr, "\nMove the body of an inline Rust module into its own file.")
		fmt.Fprintln(stderr, "\nExample: modsplit src/lib.rs 12:5")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	opts.args = fs.Args()

	if opts.recover && opts.history {
		return cliOptions{}, fmt.Errorf("--recover and --history are mutually exclusive")
	}
	if opts.version || opts.recover || opts.history {
		return opts, nil
	}
	if len(opts.args) != 2 {
		fs.Usage()
		return cliOptions{}, fmt.Errorf("expected <file> and <offset|line:col>, got %d arguments", len(opts.args))
	}
	return opts, nil
}

// parseCursor accepts a byte offset ("120") or a 1-based position ("12:5").
func parseCursor(raw string) (app.Cursor, error) {
	raw = strings.TrimSpace(raw)
	if line, col, ok := strings.Cut(raw, ":"); ok {
		l, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || l < 1 {
			return app.Cursor{}, fmt.Errorf("invalid line in cursor %q", raw)
		}
		c, err := strconv.Atoi(strings.TrimSpace(col))
		if err != nil || c < 1 {
			return app.Cursor{}, fmt.Errorf("invalid column in cursor %q", raw)
		}
		return app.Cursor{Line: l, Column: c}, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return app.Cursor{}, fmt.Errorf("cursor must be a byte offset or line:col, got %q", raw)
	}
	return app.Cursor{Offset: offset}, nil
}
