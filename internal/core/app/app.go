package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"pybundle/internal/core/config"
	"pybundle/internal/core/errors"
	"pybundle/internal/core/ports"
	"pybundle/internal/data/history"
	"pybundle/internal/engine/bundler"
	"pybundle/internal/engine/parser"
	"pybundle/internal/engine/resolver"
	"pybundle/internal/shared/observability"
	"pybundle/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Option func(*App)

// WithHistory records runs in store instead of the configured history
// database. The caller keeps ownership of store.
func WithHistory(store ports.HistoryStore) Option {
	return func(a *App) {
		a.history = store
		a.ownsHistory = false
	}
}

func WithSource(source resolver.SourceProvider) Option {
	return func(a *App) { a.source = source }
}

// WithWorkingDir anchors relative targets and output paths at dir.
func WithWorkingDir(dir string) Option {
	return func(a *App) { a.cwd = dir }
}

// WithStdout receives the bundle when the output path is "-".
func WithStdout(w io.Writer) Option {
	return func(a *App) { a.stdout = w }
}

// WithOverrides adjusts every config the app runs with, including ones
// reloaded in watch mode. Command-line flags use it.
func WithOverrides(fn func(*config.Config)) Option {
	return func(a *App) { a.overrides = fn }
}

// App runs bundling requests. Each run gets its own loader cache, so runs
// never share parsed modules; runs are serialized.
type App struct {
	cfg   *config.Config
	cfgMu sync.RWMutex

	parser      *parser.Parser
	source      resolver.SourceProvider
	stdout      io.Writer
	cwd         string
	history     ports.HistoryStore
	ownsHistory bool
	overrides   func(*config.Config)

	runMu sync.Mutex

	// Files of the modules loaded by the last run and its output path,
	// consulted by watch mode.
	lastMu      sync.Mutex
	lastModules []string
	lastOutput  string
}

var _ ports.BundleService = (*App)(nil)

func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	a := &App{
		cfg:         cfg,
		parser:      parser.NewParser(nil),
		source:      resolver.OSSource{},
		stdout:      os.Stdout,
		ownsHistory: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.overrides != nil {
		a.overrides(a.cfg)
	}
	if a.cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		a.cwd = cwd
	}
	return a, nil
}

func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// SetConfig swaps the configuration used by later runs, after applying
// the app's overrides.
func (a *App) SetConfig(cfg *config.Config) {
	if a.overrides != nil {
		a.overrides(cfg)
	}
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	a.cfg = cfg
}

// Close releases the parser and, when the app opened it, the history
// database.
func (a *App) Close() error {
	a.parser.Close()
	if a.history == nil || !a.ownsHistory {
		return nil
	}
	err := a.history.Close()
	a.history = nil
	return err
}

// Bundle runs one bundling request. Failed runs write nothing but are
// still recorded in history and metrics.
func (a *App) Bundle(ctx context.Context, req ports.BundleRequest) (ports.BundleResult, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	ctx, span := observability.Tracer.Start(ctx, "app.Bundle", trace.WithAttributes(
		attribute.String("target", req.Target),
		attribute.Bool("dry_run", req.DryRun),
	))
	defer span.End()

	cfg := a.Config()
	started := time.Now()
	result, paths, err := a.run(ctx, cfg, req)
	a.record(cfg, paths, &result, err, time.Since(started))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(
		attribute.Int("bundle.definitions", len(result.Unit.Definitions)),
		attribute.Int("bundle.imports", len(result.Unit.Imports)),
	)
	return result, nil
}

func (a *App) run(ctx context.Context, cfg *config.Config, req ports.BundleRequest) (ports.BundleResult, config.ResolvedPaths, error) {
	result := ports.BundleResult{Target: req.Target}

	target, err := ParseTarget(req.Target)
	if err != nil {
		return result, config.ResolvedPaths{}, err
	}
	entryFile := ""
	if target.IsFile() {
		entryFile = config.ResolveRelative(a.cwd, target.Path)
	}

	paths, err := config.ResolvePaths(cfg, a.cwd, entryFile)
	if err != nil {
		return result, paths, errors.Wrap(err, errors.CodeValidationError, "resolve project paths")
	}
	if req.Output != "" {
		paths.OutputPath = req.Output
		if paths.OutputPath != "-" {
			paths.OutputPath = config.ResolveRelative(a.cwd, req.Output)
		}
	}
	result.OutputPath = paths.OutputPath
	a.setLastOutput(paths.OutputPath)

	finder := resolver.NewPythonResolver(paths.ProjectRoot, paths.SearchRoots, a.source)
	entry, err := a.entryRef(finder, target, entryFile)
	if err != nil {
		return result, paths, err
	}
	classifier, err := resolver.NewClassifier(finder, resolver.ClassifierOptions{
		ThirdParty:  cfg.Origin.ThirdParty,
		Local:       cfg.Origin.Local,
		ExcludeDirs: cfg.Project.ExcludeDirs,
	})
	if err != nil {
		return result, paths, errors.Wrap(err, errors.CodeValidationError, "compile origin overrides")
	}

	loader := resolver.NewModuleLoader(a.source, a.parser)
	defer loader.Close()
	res := resolver.NewResolver(loader, finder, classifier, resolver.Options{
		Strict:   cfg.StrictEnabled(),
		Builtins: cfg.Resolve.Builtins,
	})

	closure, err := res.Resolve(ctx, entry, target.Symbol)
	loaded := loader.Paths()
	a.setLastModules(append(loaded, entry.Path))
	result.Modules = len(loaded)
	if err != nil {
		return result, paths, err
	}
	if err := checkOutputPath(paths.OutputPath, loaded); err != nil {
		return result, paths, err
	}

	unit, err := bundler.Bundle(ctx, closure)
	if err != nil {
		return result, paths, err
	}
	for _, warning := range unit.Warnings {
		slog.Warn(warning, "target", target.Raw)
	}
	for _, ref := range unit.Unresolved {
		slog.Warn("unresolved name left as is", "name", ref.Name, "module", ref.Module, "line", ref.Location.Line)
	}

	text := unit.Render(bundler.RenderOptions{
		Target:         target.Raw,
		Header:         cfg.HeaderEnabled(),
		SourceComments: cfg.Bundle.SourceComments,
		ProjectRoot:    paths.ProjectRoot,
	})
	result.Unit = unit
	result.Output = text
	result.Digest = util.Digest(text)
	result.Unresolved = len(unit.Unresolved)
	result.Warnings = unit.Warnings

	if err := a.write(paths.OutputPath, text, req.DryRun); err != nil {
		return result, paths, err
	}
	slog.Info("bundle complete",
		"target", target.Raw,
		"output", paths.OutputPath,
		"definitions", len(unit.Definitions),
		"imports", len(unit.Imports),
		"modules", result.Modules,
	)
	return result, paths, nil
}

// entryRef locates the entry module: a file path as given, or a dotted
// module name looked up in the search roots.
func (a *App) entryRef(finder *resolver.PythonResolver, target Target, entryFile string) (parser.ModuleRef, error) {
	if entryFile != "" {
		if !a.source.IsFile(entryFile) {
			de := errors.Newf(errors.CodeSourceUnavailable, "entry file %s does not exist", target.Path)
			return parser.ModuleRef{}, de.WithContext(errors.CtxPath, entryFile)
		}
		return finder.RefForFile(entryFile), nil
	}
	ref, ok := finder.Find(target.Path)
	if !ok || ref.Namespace {
		de := errors.Newf(errors.CodeSourceUnavailable, "module %s not found in the search roots", target.Path)
		return parser.ModuleRef{}, de.WithContext(errors.CtxModule, target.Path)
	}
	return ref, nil
}

func checkOutputPath(output string, modules []string) error {
	if output == "-" {
		return nil
	}
	out := canonical(output)
	for _, path := range modules {
		if canonical(path) == out {
			de := errors.Newf(errors.CodeValidationError, "output %s would overwrite a bundled module", output)
			return de.WithContext(errors.CtxPath, path)
		}
	}
	return nil
}

func (a *App) write(path string, text []byte, dryRun bool) error {
	if path == "-" {
		if _, err := a.stdout.Write(text); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "write bundle to stdout")
		}
		return nil
	}
	if dryRun {
		slog.Debug("dry run; bundle not written", "output", path)
		return nil
	}
	if err := util.WriteFileAtomic(path, text, 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeInternal, "write bundle"), errors.CtxPath, path)
	}
	return nil
}

func (a *App) record(cfg *config.Config, paths config.ResolvedPaths, result *ports.BundleResult, runErr error, duration time.Duration) {
	status := history.StatusOK
	if runErr != nil {
		status = history.StatusFailed
		slog.Debug("bundle failed", "target", result.Target, "error", runErr)
	}
	observability.BundleRunsTotal.WithLabelValues(status).Inc()

	if store := a.historyStore(cfg, paths); store != nil {
		run := history.Run{
			Target:      result.Target,
			ProjectRoot: paths.ProjectRoot,
			Status:      status,
			Modules:     result.Modules,
			Duration:    duration,
			OutputPath:  result.OutputPath,
			Digest:      result.Digest,
		}
		if u := result.Unit; u != nil {
			run.Definitions = len(u.Definitions)
			run.Imports = len(u.Imports)
			run.Renames = len(u.Renames)
			run.Advisories = len(u.Advisories)
		}
		if runErr != nil {
			run.ErrorCode = string(errors.CodeOf(runErr))
			run.Error = runErr.Error()
		}
		saved, err := store.SaveRun(run)
		if err != nil {
			slog.Warn("failed to record run history", "error", err)
		} else {
			result.RunID = saved.ID
		}
	}

	if path := cfg.Observability.MetricsFile; path != "" {
		if err := observability.WriteMetricsFile(config.ResolveRelative(a.cwd, path)); err != nil {
			slog.Warn("failed to write metrics file", "error", err)
		}
	}
}

// historyStore opens the configured history database on first use. A
// database that cannot be opened disables history for the app.
func (a *App) historyStore(cfg *config.Config, paths config.ResolvedPaths) ports.HistoryStore {
	if a.history != nil || !a.ownsHistory || !cfg.History.Enabled || paths.HistoryPath == "" {
		return a.history
	}
	store, err := history.Open(paths.HistoryPath)
	if err != nil {
		if history.IsCorruptError(err) {
			slog.Warn("run history database is corrupt; move it aside to start a new one", "path", paths.HistoryPath)
		}
		slog.Warn("run history disabled", "path", paths.HistoryPath, "error", err)
		a.ownsHistory = false
		return nil
	}
	slog.Debug("recording run history", "path", store.Path())
	a.history = store
	return store
}

func (a *App) setLastModules(paths []string) {
	a.lastMu.Lock()
	defer a.lastMu.Unlock()
	a.lastModules = paths
}

func (a *App) setLastOutput(path string) {
	a.lastMu.Lock()
	defer a.lastMu.Unlock()
	a.lastOutput = path
}

// moduleDirs returns the directories of the modules the last run loaded.
func (a *App) moduleDirs() []string {
	a.lastMu.Lock()
	defer a.lastMu.Unlock()
	seen := make(map[string]bool, len(a.lastModules))
	dirs := make([]string, 0, len(a.lastModules))
	for _, path := range a.lastModules {
		if path == "" {
			continue
		}
		dir := filepath.Dir(path)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
