package config

import (
	"fmt"
	"net/url"
	"strings"

	"modsplit/internal/shared/util"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateCrate(cfg *Config) error {
	if util.ContainsPathSeparator(cfg.Crate.DirectoryRootFile) {
		return fmt.Errorf("crate.directory_root_file must be a file name, got %q", cfg.Crate.DirectoryRootFile)
	}
	if cfg.Crate.SourceExtension == "." || strings.ContainsAny(cfg.Crate.SourceExtension, `/\ `) {
		return fmt.Errorf("crate.source_extension %q is not a valid extension", cfg.Crate.SourceExtension)
	}
	if !strings.HasSuffix(cfg.Crate.DirectoryRootFile, cfg.Crate.SourceExtension) {
		return fmt.Errorf("crate.directory_root_file %q must use source_extension %q", cfg.Crate.DirectoryRootFile, cfg.Crate.SourceExtension)
	}
	for i, root := range cfg.Crate.Roots {
		if util.EscapesRoot(root) {
			return fmt.Errorf("crate.roots[%d] %q must be relative to the project root", i, root)
		}
	}
	return nil
}

func validateFormat(cfg *Config) error {
	if cfg.Format.IndentWidth < 1 || cfg.Format.IndentWidth > 16 {
		return fmt.Errorf("format.indent_width must be between 1 and 16, got %d", cfg.Format.IndentWidth)
	}
	return nil
}

func validateExclude(cfg *Config) error {
	for i, p := range cfg.Exclude.Dirs {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("exclude.dirs[%d] %q: %w", i, p, err)
		}
	}
	for i, p := range cfg.Exclude.Files {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("exclude.files[%d] %q: %w", i, p, err)
		}
	}
	return nil
}

func validateJournal(cfg *Config) error {
	if !cfg.Journal.IsEnabled() {
		return nil
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path must not be empty")
	}
	return nil
}

func validateCache(cfg *Config) error {
	if cfg.Cache.Files < 0 {
		return fmt.Errorf("cache.files must be >= 0, got %d", cfg.Cache.Files)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if raw := cfg.Observability.PushgatewayURL; raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("observability.pushgateway_url must be an http(s) URL, got %q", raw)
		}
	}
	if !cfg.Observability.EnableTracing {
		return nil
	}
	if cfg.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("observability.otlp_endpoint must be set when tracing is enabled")
	}
	return nil
}
