package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	coreapp "modsplit/internal/core/app"
	"modsplit/internal/core/config"
	"modsplit/internal/core/errors"
	"modsplit/internal/shared/observability"
)

func Run(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		return exitError
	}

	if opts.version {
		fmt.Fprintf(stdout, "modsplit v%s\n", versionString)
		return exitOK
	}

	configureLogging(stderr, opts.verbose)

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return exitError
	}

	if err := config.LoadDotEnv(resolveEach(cwd, opts.envFiles)...); err != nil {
		slog.Error("failed to load env file", "error", err)
		return exitError
	}

	cfg, cfgPath, err := loadConfig(opts, cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		return exitError
	}
	if opts.root != "" {
		cfg.Paths.ProjectRoot = config.ResolveRelative(cwd, opts.root)
	}

	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return exitError
	}
	if opts.metricsFile != "" {
		paths.MetricsFile = config.ResolveRelative(cwd, opts.metricsFile)
	}
	slog.Debug("config loaded", "path", cfgPath, "root", paths.ProjectRoot, "journal", paths.JournalPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingOptions{
		Enabled:      cfg.Observability.EnableTracing,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		ServiceName:  cfg.Observability.ServiceName,
		Insecure:     cfg.Observability.Insecure,
	})
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		return exitError
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	exportOpts := observability.ExportOptions{
		TextFile:       paths.MetricsFile,
		PushgatewayURL: cfg.Observability.PushgatewayURL,
		Job:            cfg.Observability.ServiceName,
	}
	if exportOpts.Enabled() {
		defer func() {
			exportCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := observability.ExportMetrics(exportCtx, exportOpts); err != nil {
				slog.Warn("failed to export metrics", "error", err)
			}
		}()
	}

	application, err := coreapp.NewWithDependencies(cfg, paths, coreapp.Dependencies{DryRun: opts.dryRun})
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return exitError
	}
	defer func() {
		if err := application.Close(); err != nil {
			slog.Warn("failed to close journal", "error", err)
		}
	}()

	out := newRenderer(stdout)
	switch {
	case opts.recover:
		return runRecover(ctx, application, out)
	case opts.history:
		return runHistory(ctx, application, out, opts.historyLimit)
	default:
		return runExtract(ctx, application, out, opts, cwd)
	}
}

func runExtract(ctx context.Context, application *coreapp.App, out *renderer, opts cliOptions, cwd string) int {
	cursor, err := parseCursor(opts.args[1])
	if err != nil {
		slog.Error("invalid cursor", "error", err)
		return exitError
	}

	res, err := application.ExtractModuleToFile(ctx, coreapp.ExtractRequest{
		File:   resolveFileArg(cwd, application.Paths.ProjectRoot, opts.args[0]),
		Cursor: cursor,
		DryRun: opts.dryRun,
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeDestinationExists) && res.EditSet != nil {
			out.Failure(fmt.Sprintf("destination already exists: %s", res.EditSet.Create.Path.Resolve()))
			return exitDestinationExists
		}
		slog.Error("extract module failed", "error", err, "code", errors.CodeOf(err))
		return exitError
	}
	if !res.Applicable {
		out.NotApplicable(res.File, cursor)
		return exitNotApplicable
	}

	out.EditSet(*res.EditSet, res.Applied)
	return exitOK
}

func runRecover(ctx context.Context, application *coreapp.App, out *renderer) int {
	report, err := application.Recover(ctx)
	if err != nil {
		slog.Error("recovery failed", "error", err)
		return exitError
	}
	out.Recovered(report)
	if len(report.Conflicts) > 0 {
		return exitError
	}
	return exitOK
}

func runHistory(ctx context.Context, application *coreapp.App, out *renderer, limit int) int {
	entries, err := application.History(ctx, limit)
	if err != nil {
		slog.Error("failed to read history", "error", err)
		return exitError
	}
	out.History(entries)
	return exitOK
}

// loadConfig reads --config when given, else modsplit.toml at the workspace
// root when present, else defaults.
func loadConfig(opts cliOptions, cwd string) (*config.Config, string, error) {
	if strings.TrimSpace(opts.configPath) != "" {
		path := config.ResolveRelative(cwd, opts.configPath)
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	base := cwd
	if opts.root != "" {
		base = config.ResolveRelative(cwd, opts.root)
	} else if detected, err := config.DetectProjectRoot([]string{cwd}); err == nil {
		base = detected
	}
	path := filepath.Join(base, config.DefaultFile)
	cfg, err := config.LoadOrDefault(path)
	return cfg, path, err
}

// resolveFileArg makes a relative <file> relative to the shell's directory
// when that directory is inside the workspace. From outside, the argument is
// taken as workspace-relative.
func resolveFileArg(cwd, root, file string) string {
	if filepath.IsAbs(file) || strings.TrimSpace(file) == "" {
		return file
	}
	rel, err := filepath.Rel(root, cwd)
	if err != nil || !filepath.IsLocal(rel) {
		return file
	}
	return filepath.Join(cwd, file)
}

func configureLogging(output io.Writer, verbose bool) {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

func resolveEach(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, config.ResolveRelative(base, p))
	}
	return out
}
