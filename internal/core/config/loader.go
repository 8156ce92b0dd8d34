package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"modsplit/internal/shared/util"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	return finalize(&cfg)
}

// LoadOrDefault loads path, falling back to defaults when path is empty or
// the file does not exist. Env overrides are applied either way.
func LoadOrDefault(path string) (*Config, error) {
	var cfg *Config
	if strings.TrimSpace(path) != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}
	if cfg == nil {
		cfg = Default()
	}

	ApplyEnvOverrides(cfg)
	return finalize(cfg)
}

func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func finalize(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	normalize(cfg)

	if err := validateVersion(cfg); err != nil {
		return nil, err
	}
	if err := validateCrate(cfg); err != nil {
		return nil, err
	}
	if err := validateFormat(cfg); err != nil {
		return nil, err
	}
	if err := validateExclude(cfg); err != nil {
		return nil, err
	}
	if err := validateJournal(cfg); err != nil {
		return nil, err
	}
	if err := validateCache(cfg); err != nil {
		return nil, err
	}
	if err := validateObservability(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = ".modsplit"
	}

	if strings.TrimSpace(cfg.Crate.DirectoryRootFile) == "" {
		cfg.Crate.DirectoryRootFile = "mod.rs"
	}
	if strings.TrimSpace(cfg.Crate.SourceExtension) == "" {
		cfg.Crate.SourceExtension = ".rs"
	}

	if cfg.Format.IndentWidth == 0 {
		cfg.Format.IndentWidth = 4
	}

	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{"target", ".git"}
	}

	if strings.TrimSpace(cfg.Journal.Path) == "" {
		cfg.Journal.Path = "journal.db"
	}
	if cfg.Journal.BusyTimeout <= 0 {
		cfg.Journal.BusyTimeout = 5 * time.Second
	}

	if cfg.Cache.Files == 0 {
		cfg.Cache.Files = 512
	}

	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "modsplit"
	}
	if strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
}

func normalize(cfg *Config) {
	cfg.Paths.ProjectRoot = strings.TrimSpace(cfg.Paths.ProjectRoot)
	cfg.Paths.StateDir = strings.TrimSpace(cfg.Paths.StateDir)

	cfg.Crate.DirectoryRootFile = strings.TrimSpace(cfg.Crate.DirectoryRootFile)
	ext := strings.TrimSpace(cfg.Crate.SourceExtension)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	cfg.Crate.SourceExtension = ext
	cfg.Crate.Roots = normalizeList(cfg.Crate.Roots, util.NormalizePatternPath)

	cfg.Exclude.Dirs = normalizeList(cfg.Exclude.Dirs, nil)
	cfg.Exclude.Files = normalizeList(cfg.Exclude.Files, nil)

	cfg.Journal.Path = strings.TrimSpace(cfg.Journal.Path)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
	cfg.Observability.ServiceName = strings.TrimSpace(cfg.Observability.ServiceName)
	cfg.Observability.MetricsFile = strings.TrimSpace(cfg.Observability.MetricsFile)
	cfg.Observability.PushgatewayURL = strings.TrimSpace(cfg.Observability.PushgatewayURL)
}

func normalizeList(values []string, fn func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fn != nil {
			v = fn(v)
		}
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
