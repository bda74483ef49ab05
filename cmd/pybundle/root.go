package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"pybundle/internal/core/config"
	"pybundle/internal/shared/observability"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// globals holds the persistent flags and what initialize derives from
// them. Each root command gets its own, so tests can run commands side by
// side.
type globals struct {
	configPath string
	logLevel   string
	verbose    bool

	cfg *config.Config
	// cfgFile is the file cfg was read from, "" when defaults apply.
	cfgFile  string
	shutdown func(context.Context) error
}

func newRootCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pybundle",
		Short: "Bundle a Python entry point into one self-contained file",
		Long: `pybundle follows every local definition an entry function or class needs,
across modules, and writes them into a single file in an order that loads
top to bottom. Standard library and third-party imports are kept as import
statements; colliding names are renamed.`,
		PersistentPreRunE: g.initialize,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (env: PYBUNDLE_CONFIG, default ./"+config.DefaultFile+")")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging with timestamps")

	cmd.AddCommand(newBundleCmd(g))
	cmd.AddCommand(newHistoryCmd(g))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// execute runs the command line and flushes tracing afterwards, whatever
// the outcome.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	g := &globals{}
	cmd := newRootCmd(g)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if g.shutdown != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := g.shutdown(flushCtx); serr != nil {
			slog.Warn("failed to flush traces", "error", serr)
		}
	}
	return err
}

func (g *globals) initialize(cmd *cobra.Command, _ []string) error {
	if err := setupLogging(cmd.ErrOrStderr(), g.logLevel, g.verbose); err != nil {
		return err
	}
	slog.Debug("pybundle started", "version", versionString())

	if err := g.loadConfig(); err != nil {
		return err
	}

	obs := g.cfg.Observability
	if obs.EnableTracing {
		shutdown, err := observability.SetupTracing(cmd.Context(), obs.OTLPEndpoint)
		if err != nil {
			return err
		}
		g.shutdown = shutdown
		slog.Debug("tracing enabled", "endpoint", obs.OTLPEndpoint)
	}
	return nil
}

// setupLogging routes slog through a charmbracelet logger on w.
func setupLogging(w io.Writer, level string, verbose bool) error {
	lvl := log.InfoLevel
	if level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", level, err)
		}
		lvl = parsed
	}
	if verbose {
		lvl = log.DebugLevel
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: verbose,
	})
	slog.SetDefault(slog.New(logger))
	return nil
}

// loadConfig reads --config, then $PYBUNDLE_CONFIG, then ./pybundle.toml.
// Only the last may be missing.
func (g *globals) loadConfig() error {
	path := g.configPath
	explicit := path != ""
	if !explicit {
		if env := os.Getenv("PYBUNDLE_CONFIG"); env != "" {
			path, explicit = env, true
		} else {
			path = config.DefaultFile
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if explicit {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	config.ApplyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config %s after environment overrides: %w", path, err)
	}

	g.cfg = cfg
	if _, err := os.Stat(path); err == nil {
		g.cfgFile = path
		slog.Debug("config loaded", "path", path)
	} else {
		slog.Debug("no config file; using defaults")
	}
	return nil
}
