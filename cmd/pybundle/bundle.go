package main

import (
	"fmt"
	"log/slog"

	"pybundle/internal/core/app"
	"pybundle/internal/core/config"
	"pybundle/internal/core/ports"
	"pybundle/internal/ui/report"

	"github.com/spf13/cobra"
)

type bundleOptions struct {
	output         string
	watch          bool
	dryRun         bool
	noHeader       bool
	sourceComments bool
	strict         bool
	root           string
	searchPaths    []string
	builtins       []string
}

func newBundleCmd(g *globals) *cobra.Command {
	opts := &bundleOptions{}
	cmd := &cobra.Command{
		Use:   "bundle <path-or-module>:<symbol>",
		Short: "Bundle an entry function or class and everything it needs",
		Long: `Bundle resolves every local definition reachable from the entry symbol and
writes them, in load order, to a single Python file.

The target is a source file or a dotted module name followed by the symbol:

  pybundle bundle mypkg/main.py:main
  pybundle bundle mypkg.main:main -o -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundle(cmd, g, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", `output file, "-" for stdout (default from config: bundler_output.py)`)
	f.BoolVarP(&opts.watch, "watch", "w", false, "rebundle whenever a bundled module changes")
	f.BoolVar(&opts.dryRun, "dry-run", false, "resolve and render without writing the output file")
	f.BoolVar(&opts.noHeader, "no-header", false, "omit the '# Bundled from' header")
	f.BoolVar(&opts.sourceComments, "source-comments", false, "precede each definition with its source location")
	f.BoolVar(&opts.strict, "strict", true, "fail on names that cannot be resolved statically")
	f.StringVar(&opts.root, "root", "", "project root (default: detected from the entry file)")
	f.StringSliceVar(&opts.searchPaths, "search-path", nil, "extra import search path, relative to the project root (repeatable)")
	f.StringSliceVar(&opts.builtins, "builtin", nil, "extra name to treat as always available (repeatable)")
	return cmd
}

func runBundle(cmd *cobra.Command, g *globals, opts *bundleOptions, target string) error {
	flags := cmd.Flags()
	overrides := func(cfg *config.Config) {
		if opts.root != "" {
			cfg.Project.Root = opts.root
		}
		cfg.Project.SearchPaths = append(cfg.Project.SearchPaths, opts.searchPaths...)
		cfg.Resolve.Builtins = append(cfg.Resolve.Builtins, opts.builtins...)
		if flags.Changed("strict") {
			strict := opts.strict
			cfg.Resolve.Strict = &strict
		}
		if opts.noHeader {
			header := false
			cfg.Bundle.Header = &header
		}
		if opts.sourceComments {
			cfg.Bundle.SourceComments = true
		}
	}

	a, err := app.New(g.cfg, app.WithStdout(cmd.OutOrStdout()), app.WithOverrides(overrides))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("failed to close run history", "error", err)
		}
	}()

	req := ports.BundleRequest{Target: target, Output: opts.output, DryRun: opts.dryRun}
	stderr := cmd.ErrOrStderr()

	if opts.watch {
		return a.Watch(cmd.Context(), req, g.cfgFile, func(result ports.BundleResult, err error) {
			if err != nil {
				slog.Error("bundle failed", "target", target, "error", err)
				return
			}
			fmt.Fprint(stderr, report.RenderSummary(result, opts.dryRun))
		})
	}

	result, err := a.Bundle(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprint(stderr, report.RenderSummary(result, opts.dryRun))
	return nil
}
