package app

import (
	"context"
	"log/slog"
	"os"

	"pybundle/internal/core/config"
	"pybundle/internal/core/errors"
	"pybundle/internal/core/ports"
	"pybundle/internal/core/watcher"
	"pybundle/internal/shared/observability"
	"pybundle/internal/shared/util"
)

// RunFunc receives the outcome of every run in watch mode.
type RunFunc func(ports.BundleResult, error)

// Watch bundles once, then again whenever a source file in the directory
// of a loaded module changes, until ctx is done. Failed runs are reported
// to onRun and watching goes on, except for a malformed request, which is
// returned. When configPath names an existing file, edits to it replace
// the config used by later runs; watch timing keeps its startup values.
func (a *App) Watch(ctx context.Context, req ports.BundleRequest, configPath string, onRun RunFunc) error {
	if onRun == nil {
		onRun = func(ports.BundleResult, error) {}
	}
	if _, err := ParseTarget(req.Target); err != nil {
		return err
	}

	cfg := a.Config()
	limiter := util.NewLimiter(cfg.Watch.MaxRebuildsPerSecond, 1)

	var w *watcher.Watcher
	rebuild := func(changed []string) {
		if !a.relevant(changed) {
			return
		}
		if !limiter.Allow(1) {
			observability.WatcherThrottledTotal.Inc()
			if err := limiter.Wait(ctx, 1); err != nil {
				return
			}
		}
		slog.Info("sources changed; rebundling", "files", changed)
		result, err := a.Bundle(ctx, req)
		onRun(result, err)
		if err := w.Sync(a.moduleDirs()); err != nil {
			slog.Warn("failed to update watched directories", "error", err)
		}
	}

	w, err := watcher.NewWatcher(cfg.Watch.Debounce, cfg.Project.ExcludeDirs, cfg.Watch.ExcludeFiles, rebuild)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "create watcher")
	}
	defer w.Close()

	result, err := a.Bundle(ctx, req)
	onRun(result, err)
	if errors.IsCode(err, errors.CodeValidationError) {
		return err
	}

	if err := w.Watch(a.moduleDirs()); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "start watcher")
	}
	slog.Info("watching for changes", "dirs", w.Watched())

	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			cw := config.NewWatcher(configPath, func(next *config.Config) {
				a.SetConfig(next)
				rebuild([]string{configPath})
			})
			if err := cw.Start(ctx); err != nil {
				slog.Warn("config hot reload disabled", "path", configPath, "error", err)
			} else {
				defer cw.Stop()
			}
		}
	}

	<-ctx.Done()
	return nil
}

// relevant drops events caused by writing the bundle itself, which may
// live next to the sources it was built from.
func (a *App) relevant(changed []string) bool {
	a.lastMu.Lock()
	output := a.lastOutput
	a.lastMu.Unlock()
	if output == "" || output == "-" {
		return len(changed) > 0
	}
	out := canonical(output)
	for _, path := range changed {
		if canonical(path) != out {
			return true
		}
	}
	return false
}
