package app

import (
	"strings"

	"pybundle/internal/core/errors"
)

// Target is a parsed "<file-or-module>:<symbol>" entry string.
type Target struct {
	Raw    string
	Path   string
	Symbol string
}

// ParseTarget splits raw on its last colon, so Windows drive letters stay
// in the path.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return Target{}, errors.Newf(errors.CodeValidationError, "target %q must be <path>:<symbol>", raw)
	}
	path := strings.TrimSpace(raw[:idx])
	symbol := strings.TrimSpace(raw[idx+1:])
	if path == "" || symbol == "" {
		return Target{}, errors.Newf(errors.CodeValidationError, "target %q must name both a path and a symbol", raw)
	}
	return Target{Raw: raw, Path: path, Symbol: symbol}, nil
}

// IsFile reports whether the target names a source file rather than a
// dotted module.
func (t Target) IsFile() bool {
	return strings.HasSuffix(t.Path, ".py") || strings.ContainsAny(t.Path, `/\`)
}
