package history

import "time"

const SchemaVersion = 1

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is one bundling run as recorded in the history database.
type Run struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Target      string        `json:"target"`
	ProjectRoot string        `json:"project_root"`
	Status      string        `json:"status"`
	ErrorCode   string        `json:"error_code,omitempty"`
	Error       string        `json:"error,omitempty"`
	Modules     int           `json:"modules"`
	Definitions int           `json:"definitions"`
	Imports     int           `json:"imports"`
	Renames     int           `json:"renames"`
	Advisories  int           `json:"advisories"`
	Duration    time.Duration `json:"duration"`
	OutputPath  string        `json:"output_path,omitempty"`
	// Digest is the sha256 of the rendered bundle; equal digests mean
	// byte-identical output.
	Digest string `json:"digest,omitempty"`
}
