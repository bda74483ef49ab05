package ports

import (
	"context"

	"pybundle/internal/data/history"
	"pybundle/internal/engine/bundler"
)

// HistoryStore abstracts run persistence for the history command and for
// recording runs.
type HistoryStore interface {
	SaveRun(run history.Run) (history.Run, error)
	ListRuns(target string, limit int) ([]history.Run, error)
	Close() error
}

// BundleRequest names the entry point of one bundling run.
type BundleRequest struct {
	// Target is "<file-or-module>:<symbol>".
	Target string
	// Output overrides the configured output path; "-" writes to stdout.
	Output string
	// DryRun renders without writing the output file.
	DryRun bool
}

// BundleResult summarizes a completed run.
type BundleResult struct {
	RunID      string
	Target     string
	OutputPath string
	Output     []byte
	Digest     string
	Modules    int
	Unit       *bundler.Unit
	Unresolved int
	Warnings   []string
}

// BundleService is the driving port used by the CLI and the watcher.
type BundleService interface {
	Bundle(ctx context.Context, req BundleRequest) (BundleResult, error)
}
