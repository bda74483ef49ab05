package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Validate checks a decoded config. Defaults must already be applied.
func Validate(cfg *Config) error {
	if err := validateVersion(cfg); err != nil {
		return err
	}
	if err := validateOrigin(cfg); err != nil {
		return err
	}
	if err := validateResolve(cfg); err != nil {
		return err
	}
	if err := validateBundle(cfg); err != nil {
		return err
	}
	if err := validateWatch(cfg); err != nil {
		return err
	}
	return validateObservability(cfg)
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateOrigin(cfg *Config) error {
	if err := validateGlobs("origin.third_party", cfg.Origin.ThirdParty, '.'); err != nil {
		return err
	}
	if err := validateGlobs("origin.local", cfg.Origin.Local, '.'); err != nil {
		return err
	}
	return validateGlobs("project.exclude_dirs", cfg.Project.ExcludeDirs)
}

func validateGlobs(field string, patterns []string, separators ...rune) error {
	for i, pattern := range patterns {
		if _, err := glob.Compile(pattern, separators...); err != nil {
			return fmt.Errorf("%s[%d]: invalid pattern %q: %w", field, i, pattern, err)
		}
	}
	return nil
}

func validateResolve(cfg *Config) error {
	for i, name := range cfg.Resolve.Builtins {
		if !isIdentifier(name) {
			return fmt.Errorf("resolve.builtins[%d]: %q is not a Python identifier", i, name)
		}
	}
	return nil
}

func validateBundle(cfg *Config) error {
	if cfg.Bundle.Output == "" {
		return fmt.Errorf("bundle.output must not be empty")
	}
	if cfg.Bundle.Output != "-" && !strings.HasSuffix(cfg.Bundle.Output, ".py") {
		return fmt.Errorf("bundle.output must be a .py file or -, got %q", cfg.Bundle.Output)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Watch.MaxRebuildsPerSecond < 0 {
		return fmt.Errorf("watch.max_rebuilds_per_second must not be negative")
	}
	return validateGlobs("watch.exclude_files", cfg.Watch.ExcludeFiles)
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.EnableTracing && cfg.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("observability.otlp_endpoint is required when tracing is enabled")
	}
	return nil
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
