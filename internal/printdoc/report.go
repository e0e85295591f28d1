package printdoc

import (
	"strings"

	"github.com/odyssey-erp/posdesk/internal/report"
)

// Table is the input of a report print: the rows currently displayed and the
// columns displaying them.
type Table struct {
	Title   string
	Range   string
	Columns report.Columns
	Rows    []report.Row
	Totals  report.Totals
	Empty   string
	Layout  Layout
}

type reportView struct {
	page
	Range   string
	Headers []cell
	Rows    [][]cell
	Totals  []cell
	ColSpan int
	Empty   string
}

// BuildReport renders a report table. An empty table renders a single
// "no data" row.
func (b *Builder) BuildReport(store Store, t Table) (Document, error) {
	layout := t.Layout
	if layout == "" {
		layout = A4
	}
	empty := t.Empty
	if empty == "" {
		empty = "No data for selected filters"
	}
	view := reportView{
		page:    b.page(t.Title, layout, store),
		Range:   t.Range,
		Headers: make([]cell, len(t.Columns)),
		Rows:    make([][]cell, 0, len(t.Rows)),
		ColSpan: len(t.Columns),
		Empty:   empty,
	}
	if view.ColSpan == 0 {
		view.ColSpan = 1
	}
	for i, col := range t.Columns {
		view.Headers[i] = cell{Text: col.Label, Class: string(col.Alignment())}
	}
	for _, row := range t.Rows {
		cells := make([]cell, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = cell{Text: b.formatter.Print(col, row), Class: string(col.Alignment())}
		}
		view.Rows = append(view.Rows, cells)
	}
	if len(t.Totals) > 0 {
		view.Totals = b.totalsRow(t.Columns, t.Totals)
	}
	html, err := b.render("report", view)
	if err != nil {
		return Document{}, err
	}
	return Document{Kind: KindReport, Layout: layout, Title: t.Title, HTML: html}, nil
}

func (b *Builder) totalsRow(cols report.Columns, totals report.Totals) []cell {
	cells := make([]cell, len(cols))
	labelled := false
	for i, col := range cols {
		cells[i] = cell{Class: string(col.Alignment())}
		if v, ok := totals[col.Key]; ok {
			cells[i].Text = b.money(v)
			continue
		}
		if !labelled {
			cells[i].Text = "Total"
			labelled = true
		}
	}
	return cells
}

// RangeLabel renders a from/to pair for print headers.
func RangeLabel(from, to string) string {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	switch {
	case from == "" && to == "":
		return ""
	case from == to || to == "":
		return from
	case from == "":
		return "Up to " + to
	default:
		return from + " to " + to
	}
}
