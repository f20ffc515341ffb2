package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/tngbot/internal/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B500")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right).Foreground(lipgloss.Color("#8BE9FD"))
	okStyle     = cellStyle.Foreground(lipgloss.Color("#50FA7B"))
	failStyle   = cellStyle.Foreground(lipgloss.Color("#FF5555"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
)

// column is one column of a summary table.
type column struct {
	title string
	width int
	right bool
}

// renderTable lays out rows under cols. The last column is styled by
// status.
func renderTable(cols []column, rows [][]string, status func(row int) lipgloss.Style) string {
	var b strings.Builder

	header := make([]string, len(cols))
	total := 0
	for i, c := range cols {
		header[i] = headerStyle.Width(c.width).Render(c.title)
		total += c.width
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header...))
	b.WriteByte('\n')
	b.WriteString(borderStyle.Render(strings.Repeat("─", total)))

	for r, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			st := cellStyle
			if c.right {
				st = numberStyle
			}
			if i == len(cols)-1 && status != nil {
				st = status(r)
			}
			cells[i] = st.Width(c.width).Render(row[i])
		}
		b.WriteByte('\n')
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return b.String()
}

func renderBuildSummary(results []pipeline.Result) string {
	cols := []column{
		{title: "CHARACTER", width: 14},
		{title: "SERIES", width: 8},
		{title: "LINES", width: 9, right: true},
		{title: "STATES", width: 10, right: true},
		{title: "TIME", width: 10, right: true},
		{title: "RESULT", width: 40},
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		status := "saved"
		if r.Err != nil {
			status = r.Err.Error()
		}
		rows[i] = []string{
			r.Character,
			r.Series,
			strconv.Itoa(r.Lines),
			strconv.Itoa(r.States),
			r.Duration.Round(time.Millisecond).String(),
			status,
		}
	}
	return renderTable(cols, rows, func(row int) lipgloss.Style {
		if results[row].Err != nil {
			return failStyle
		}
		return okStyle
	})
}

func renderFetchSummary(rows []fetchRow) string {
	cols := []column{
		{title: "SERIES", width: 8},
		{title: "LISTED", width: 9, right: true},
		{title: "DOWNLOADED", width: 12, right: true},
		{title: "FAILED", width: 9, right: true},
		{title: "RESULT", width: 40},
	}
	cells := make([][]string, len(rows))
	for i, r := range rows {
		status := "downloaded"
		switch {
		case r.err != nil:
			status = r.err.Error()
		case r.cached:
			status = "cached"
		case r.Failed > 0:
			status = "incomplete, run again"
		}
		cells[i] = []string{
			r.Series,
			strconv.Itoa(r.Listed),
			strconv.Itoa(r.Downloaded),
			strconv.Itoa(r.Failed),
			status,
		}
	}
	return renderTable(cols, cells, func(row int) lipgloss.Style {
		if rows[row].err != nil || rows[row].Failed > 0 {
			return failStyle
		}
		return okStyle
	})
}
