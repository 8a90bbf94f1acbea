// Package table renders the bordered tables used by the dashboard.
package table

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/grovetools/tracker/tui/theme"
)

// SelectableTable renders headers and rows with a marker left of the
// selected row. A negative selectedIndex marks nothing.
func SelectableTable(headers []string, rows [][]string, selectedIndex int) string {
	t := theme.DefaultTheme

	styledHeaders := make([]string, len(headers))
	for i, h := range headers {
		styledHeaders[i] = t.TableHeader.Render(h)
	}

	tbl := ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(t.Colors.Border)).
		Headers(styledHeaders...)

	// Headers are styled separately; StyleFunc rows index data rows only.
	tbl = tbl.StyleFunc(func(row, col int) lipgloss.Style {
		style := t.TableRow.Padding(0, 1)
		if t.UseAlternatingRows && row%2 == 1 {
			style = style.Background(t.Colors.VerySubtleBackground)
		}
		return style
	})
	for _, r := range rows {
		tbl = tbl.Row(r...)
	}

	// Line 0 is the top border, then the header and its separator.
	selectedLine := -1
	if selectedIndex >= 0 && selectedIndex < len(rows) {
		selectedLine = selectedIndex + 1
		if len(headers) > 0 {
			selectedLine += 2
		}
	}

	lines := strings.Split(tbl.String(), "\n")
	arrow := t.Highlight.Render("▶")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i == selectedLine {
			b.WriteString(arrow + " ")
		} else {
			b.WriteString("  ")
		}
		b.WriteString(line)
	}
	return b.String()
}

// StatusTable renders label/value pairs without a border.
func StatusTable(items [][]string) string {
	tbl := ltable.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().PaddingRight(1)
		})
	for _, item := range items {
		if len(item) >= 2 {
			tbl = tbl.Row(theme.DefaultTheme.Muted.Render(item[0]+":"), item[1])
		}
	}
	return tbl.String()
}
