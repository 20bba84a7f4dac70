package ui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/flatpak-sync/internal/flatpak"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a Bubbles table with default styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{
			Title: c.Title,
			Width: c.Width,
		}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Nothing is focused, so the selected row must look like any other.
	s.Selected = lipgloss.NewStyle()

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table string.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}

	return NewTable(columns, tableRows).View()
}

// RenderPackageTable lists packages with their scope and whether they are
// selected for syncing.
func RenderPackageTable(pkgs []flatpak.Package) string {
	if len(pkgs) == 0 {
		return "No applications installed"
	}

	nameWidth := len("APPLICATION")
	for _, p := range pkgs {
		if w := lipgloss.Width(p.Name); w > nameWidth {
			nameWidth = w
		}
	}

	rows := make([][]string, len(pkgs))
	for i, p := range pkgs {
		sync := "yes"
		if !p.ShouldSync {
			sync = "excluded"
		}
		rows[i] = []string{p.Name, p.Scope.String(), sync}
	}

	return RenderSimpleTable([]TableColumn{
		{Title: "APPLICATION", Width: nameWidth + 2},
		{Title: "SCOPE", Width: 8},
		{Title: "SYNC", Width: 10},
	}, rows)
}
