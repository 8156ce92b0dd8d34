package config

import (
	"time"
)

// DefaultFile is looked up in the project root when no --config is given.
const DefaultFile = "modsplit.toml"

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Crate         Crate         `toml:"crate"`
	Format        Format        `toml:"format"`
	Exclude       Exclude       `toml:"exclude"`
	Journal       Journal       `toml:"journal"`
	Cache         Cache         `toml:"cache"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
}

type Crate struct {
	// Roots are crate root files in addition to those declared by Cargo.toml.
	Roots             []string `toml:"roots"`
	DirectoryRootFile string   `toml:"directory_root_file"`
	SourceExtension   string   `toml:"source_extension"`
}

type Format struct {
	IndentWidth int `toml:"indent_width"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Journal struct {
	Enabled     *bool         `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

// IsEnabled reports whether commits are journaled. Defaults to true.
func (j Journal) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

type Cache struct {
	Files int `toml:"files"`
}

type Observability struct {
	EnableTracing bool   `toml:"enable_tracing"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	ServiceName   string `toml:"service_name"`
	Insecure      bool   `toml:"insecure"`
	// MetricsFile receives a Prometheus text snapshot after each run, for the
	// node_exporter textfile collector. Relative to the project root.
	MetricsFile    string `toml:"metrics_file"`
	PushgatewayURL string `toml:"pushgateway_url"`
}
