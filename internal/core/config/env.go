package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: PYBUNDLE_[SECTION]_[KEY] (e.g., PYBUNDLE_RESOLVE_STRICT).
// List values are comma separated.
func ApplyEnvOverrides(cfg *Config) {
	// Project
	setEnvString(&cfg.Project.Root, "PYBUNDLE_PROJECT_ROOT")
	setEnvList(&cfg.Project.SearchPaths, "PYBUNDLE_PROJECT_SEARCH_PATHS")

	// Origin
	setEnvList(&cfg.Origin.ThirdParty, "PYBUNDLE_ORIGIN_THIRD_PARTY")
	setEnvList(&cfg.Origin.Local, "PYBUNDLE_ORIGIN_LOCAL")

	// Resolve
	setEnvBoolPtr(&cfg.Resolve.Strict, "PYBUNDLE_RESOLVE_STRICT")
	setEnvList(&cfg.Resolve.Builtins, "PYBUNDLE_RESOLVE_BUILTINS")

	// Bundle
	setEnvString(&cfg.Bundle.Output, "PYBUNDLE_BUNDLE_OUTPUT")
	setEnvBool(&cfg.Bundle.SourceComments, "PYBUNDLE_BUNDLE_SOURCE_COMMENTS")

	// History
	setEnvBool(&cfg.History.Enabled, "PYBUNDLE_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "PYBUNDLE_HISTORY_PATH")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "PYBUNDLE_WATCH_DEBOUNCE")
	setEnvFloat64(&cfg.Watch.MaxRebuildsPerSecond, "PYBUNDLE_WATCH_MAX_REBUILDS_PER_SECOND")

	// Observability
	setEnvString(&cfg.Observability.MetricsFile, "PYBUNDLE_OBSERVABILITY_METRICS_FILE")
	setEnvString(&cfg.Observability.OTLPEndpoint, "PYBUNDLE_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "PYBUNDLE_OBSERVABILITY_ENABLE_TRACING")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = trimAll(strings.Split(val, ","))
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
