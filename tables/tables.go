// Package tables renders the rounded console tables printed by runs, reports
// and the CLI. Headers and footers keep the casing they were given.
package tables

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Column describes one rendered column
type Column struct {
	Title string
	Align text.Align
}

// Left is a left-aligned column
func Left(title string) Column {
	return Column{Title: title, Align: text.AlignLeft}
}

// Right is a right-aligned column
func Right(title string) Column {
	return Column{Title: title, Align: text.AlignRight}
}

// NewWriter returns a rounded table writer with the header set from columns
func NewWriter(columns ...Column) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.Style().Format.Footer = text.FormatDefault

	if len(columns) == 0 {
		return tw
	}
	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.Title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: c.Align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)
	return tw
}

// Render draws rows of strings under columns. Short rows are padded and
// extra cells are dropped.
func Render(columns []Column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := NewWriter(columns...)
	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
