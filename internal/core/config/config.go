package config

import "time"

// DefaultFile is looked up in the working directory when no --config flag
// is given.
const DefaultFile = "pybundle.toml"

type Config struct {
	Version       int           `toml:"version"`
	Project       Project       `toml:"project"`
	Origin        Origin        `toml:"origin"`
	Resolve       Resolve       `toml:"resolve"`
	Bundle        Bundle        `toml:"bundle"`
	History       History       `toml:"history"`
	Watch         Watch         `toml:"watch"`
	Observability Observability `toml:"observability"`
}

type Project struct {
	Root        string   `toml:"root"`
	SearchPaths []string `toml:"search_paths"`
	// ExcludeDirs are directory globs whose modules are never local
	// (virtualenvs, caches).
	ExcludeDirs []string `toml:"exclude_dirs"`
}

// Origin forces module names, matched as globs, to a classification.
type Origin struct {
	ThirdParty []string `toml:"third_party"`
	Local      []string `toml:"local"`
}

type Resolve struct {
	Strict   *bool    `toml:"strict"`
	Builtins []string `toml:"builtins"`
}

type Bundle struct {
	Output         string `toml:"output"`
	Header         *bool  `toml:"header"`
	SourceComments bool   `toml:"source_comments"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Watch struct {
	Debounce             time.Duration `toml:"debounce"`
	MaxRebuildsPerSecond float64       `toml:"max_rebuilds_per_second"`
	ExcludeFiles         []string      `toml:"exclude_files"`
}

type Observability struct {
	MetricsFile   string `toml:"metrics_file"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing"`
}

// StrictEnabled reports whether unresolved names fail the run.
func (c *Config) StrictEnabled() bool {
	return c.Resolve.Strict == nil || *c.Resolve.Strict
}

func (c *Config) HeaderEnabled() bool {
	return c.Bundle.Header == nil || *c.Bundle.Header
}
