package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		existing = append(existing, p)
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: MODSPLIT_[SECTION]_[KEY] (e.g., MODSPLIT_FORMAT_INDENT_WIDTH).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "MODSPLIT_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "MODSPLIT_PATHS_STATE_DIR")

	// Crate
	setEnvList(&cfg.Crate.Roots, "MODSPLIT_CRATE_ROOTS")
	setEnvString(&cfg.Crate.DirectoryRootFile, "MODSPLIT_CRATE_DIRECTORY_ROOT_FILE")
	setEnvString(&cfg.Crate.SourceExtension, "MODSPLIT_CRATE_SOURCE_EXTENSION")

	// Format
	setEnvInt(&cfg.Format.IndentWidth, "MODSPLIT_FORMAT_INDENT_WIDTH")

	// Exclude
	setEnvList(&cfg.Exclude.Dirs, "MODSPLIT_EXCLUDE_DIRS")
	setEnvList(&cfg.Exclude.Files, "MODSPLIT_EXCLUDE_FILES")

	// Journal
	setEnvBoolPtr(&cfg.Journal.Enabled, "MODSPLIT_JOURNAL_ENABLED")
	setEnvString(&cfg.Journal.Path, "MODSPLIT_JOURNAL_PATH")
	setEnvDuration(&cfg.Journal.BusyTimeout, "MODSPLIT_JOURNAL_BUSY_TIMEOUT")

	// Cache
	setEnvInt(&cfg.Cache.Files, "MODSPLIT_CACHE_FILES")

	// Observability
	setEnvBool(&cfg.Observability.EnableTracing, "MODSPLIT_OBSERVABILITY_ENABLE_TRACING")
	setEnvString(&cfg.Observability.OTLPEndpoint, "MODSPLIT_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvString(&cfg.Observability.ServiceName, "MODSPLIT_OBSERVABILITY_SERVICE_NAME")
	setEnvBool(&cfg.Observability.Insecure, "MODSPLIT_OBSERVABILITY_INSECURE")
	setEnvString(&cfg.Observability.MetricsFile, "MODSPLIT_OBSERVABILITY_METRICS_FILE")
	setEnvString(&cfg.Observability.PushgatewayURL, "MODSPLIT_OBSERVABILITY_PUSHGATEWAY_URL")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

// setEnvList splits a comma separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*target = out
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		} else {
			slog.Warn("ignoring invalid env override", "key", key, "value", val, "error", err)
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		} else {
			slog.Warn("ignoring invalid env override", "key", key, "value", val, "error", err)
		}
	}
}

// setEnvBoolPtr treats an unset pointer as true, matching IsEnabled.
func setEnvBoolPtr(target **bool, key string) {
	if _, ok := os.LookupEnv(key); !ok {
		return
	}
	b := true
	if *target != nil {
		b = **target
	}
	setEnvBool(&b, key)
	*target = &b
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		} else {
			slog.Warn("ignoring invalid env override", "key", key, "value", val, "error", err)
		}
	}
}
