package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/myooken/p2pShareDisplay/internal/logging"
	"github.com/myooken/p2pShareDisplay/internal/utils"
)

// LogTable renders the diagnostic log panel. A zero width lets the table
// size itself.
func LogTable(entries []logging.Entry, width int) string {
	if len(entries) == 0 {
		return MutedStyle.Render("No log entries")
	}

	msgWidth := 60
	if width > 30 {
		msgWidth = width - 24
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		msg := e.Message
		if e.Attrs != "" {
			msg += " " + e.Attrs
		}
		rows = append(rows, []string{
			e.Time.Format("15:04:05"),
			e.Level.String(),
			utils.TruncateString(msg, msgWidth),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Time", "Level", "Message").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
	if width > 0 {
		tbl = tbl.Width(width)
	}
	return tbl.Render()
}
