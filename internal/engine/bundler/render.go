package bundler

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RenderOptions controls the comments around the bundled code. The output
// carries no timestamps so two runs over the same sources are identical.
type RenderOptions struct {
	// Target is named in the header, e.g. "mypkg/main.py:main".
	Target         string
	Header         bool
	SourceComments bool
	// ProjectRoot makes source comment paths relative.
	ProjectRoot string
}

// Render writes the preamble followed by every definition, two blank lines
// apart.
func (u *Unit) Render(opts RenderOptions) []byte {
	var b strings.Builder
	if opts.Header && opts.Target != "" {
		fmt.Fprintf(&b, "# Bundled from %s\n", opts.Target)
	}
	for _, line := range u.Imports {
		b.WriteString(line.Statement)
		b.WriteByte('\n')
	}

	for i, d := range u.Definitions {
		if i > 0 || b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if opts.SourceComments {
			fmt.Fprintf(&b, "# --- source: %s:%d (%s) ---\n",
				relPath(opts.ProjectRoot, d.Entry.Module.Ref.Path), d.Entry.Def.Location.Line, d.Name())
		}
		b.WriteString(strings.TrimRight(d.Text, " \t\r\n"))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func relPath(root, path string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}
