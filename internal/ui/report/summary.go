package report

import (
	"fmt"
	"strings"

	"pybundle/internal/core/ports"
)

// RenderSummary describes a completed run for the terminal: where the
// bundle went, what it holds, and anything that changed on the way.
func RenderSummary(result ports.BundleResult, dryRun bool) string {
	var b strings.Builder

	dest := result.OutputPath
	switch {
	case dest == "-":
		dest = "stdout"
	case dryRun:
		dest += " (dry run, not written)"
	}
	fmt.Fprintf(&b, "%s %s %s %s\n",
		StyleSuccess.Render("✔"),
		StyleTitle.Render("bundled"),
		result.Target,
		StyleDim.Render("→ "+dest),
	)

	u := result.Unit
	if u == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "  %s\n", StyleDim.Render(fmt.Sprintf("%s · %s · %s",
		plural(len(u.Definitions), "definition"),
		plural(len(u.Imports), "import"),
		plural(result.Modules, "module"),
	)))

	for _, r := range u.Renames {
		fmt.Fprintf(&b, "  %s %s → %s %s\n", StyleWarning.Render("renamed"), r.From, r.To, StyleDim.Render("("+r.Module+")"))
	}
	for _, adv := range u.Advisories {
		fmt.Fprintf(&b, "  %s %s\n", StyleWarning.Render("cycle"), strings.Join(adv.Members, " ↔ "))
	}
	for _, ref := range u.Unresolved {
		fmt.Fprintf(&b, "  %s %s %s\n", StyleError.Render("unresolved"), ref.Name,
			StyleDim.Render(fmt.Sprintf("(%s:%d)", ref.Module, ref.Location.Line)))
	}
	for _, w := range u.Warnings {
		fmt.Fprintf(&b, "  %s %s\n", StyleWarning.Render("warning"), w)
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
