package main

import (
	"fmt"
	"os"

	"pybundle/internal/core/config"
	"pybundle/internal/core/errors"
	"pybundle/internal/data/history"
	"pybundle/internal/ui/report"

	"github.com/spf13/cobra"
)

type historyOptions struct {
	target string
	limit  int
	format string
}

func newHistoryCmd(g *globals) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded bundling runs",
		Long: `History lists past runs, newest first, from the run history database.
Runs are recorded when [history] enabled = true in the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.target, "target", "", "only runs of this target")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "maximum number of runs, 0 for all")
	cmd.Flags().StringVar(&opts.format, "format", "table", "output format: table, tsv, json")
	return cmd
}

func runHistory(cmd *cobra.Command, g *globals, opts *historyOptions) error {
	switch opts.format {
	case "table", "tsv", "json":
	default:
		return fmt.Errorf("unknown --format %q (want table, tsv or json)", opts.format)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	paths, err := config.ResolvePaths(g.cfg, cwd, "")
	if err != nil {
		return err
	}
	if _, err := os.Stat(paths.HistoryPath); err != nil {
		hint := "no runs recorded yet"
		if !g.cfg.History.Enabled {
			hint = "set [history] enabled = true to record runs"
		}
		return errors.Newf(errors.CodeNotFound, "no run history at %s; %s", paths.HistoryPath, hint)
	}

	store, err := history.Open(paths.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(opts.target, opts.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch opts.format {
	case "tsv":
		data, err := report.RenderHistoryTSV(runs)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "json":
		data, err := report.RenderHistoryJSON(runs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	default:
		_, err = fmt.Fprint(out, report.RenderHistoryTable(runs))
		return err
	}
}
