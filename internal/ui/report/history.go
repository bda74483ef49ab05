package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pybundle/internal/data/history"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderHistoryTable lists runs, newest first, as a bordered table.
func RenderHistoryTable(runs []history.Run) string {
	if len(runs) == 0 {
		return StyleDim.Render("no recorded runs") + "\n"
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorBlue)
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorDimGray)).
		Headers("WHEN", "TARGET", "STATUS", "DEFS", "IMPORTS", "RENAMES", "TIME", "DIGEST").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(runs) {
				return StatusStyle(runs[row].Status)
			}
			return lipgloss.NewStyle()
		})

	for _, run := range runs {
		status := run.Status
		if run.ErrorCode != "" {
			status += " (" + run.ErrorCode + ")"
		}
		tbl.Row(
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Target,
			status,
			fmt.Sprintf("%d", run.Definitions),
			fmt.Sprintf("%d", run.Imports),
			fmt.Sprintf("%d", run.Renames),
			run.Duration.Round(time.Millisecond).String(),
			shortDigest(run.Digest),
		)
	}
	return tbl.String() + "\n"
}

func RenderHistoryTSV(runs []history.Run) ([]byte, error) {
	var buf strings.Builder

	buf.WriteString("Timestamp\tID\tTarget\tStatus\tErrorCode\tModules\tDefinitions\tImports\tRenames\tAdvisories\tDurationMS\tOutput\tDigest\n")
	for _, run := range runs {
		buf.WriteString(fmt.Sprintf(
			"%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			run.Timestamp.UTC().Format(time.RFC3339),
			run.ID,
			run.Target,
			run.Status,
			run.ErrorCode,
			run.Modules,
			run.Definitions,
			run.Imports,
			run.Renames,
			run.Advisories,
			run.Duration.Milliseconds(),
			run.OutputPath,
			run.Digest,
		))
	}

	return []byte(buf.String()), nil
}

func RenderHistoryJSON(runs []history.Run) ([]byte, error) {
	if runs == nil {
		runs = []history.Run{}
	}
	return json.MarshalIndent(runs, "", "  ")
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
