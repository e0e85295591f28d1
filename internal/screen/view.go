package screen

import (
	"github.com/odyssey-erp/posdesk/internal/report"
)

// View is the table view of one page of a report.
type View struct {
	Report      string            `json:"report"`
	Title       string            `json:"title"`
	Columns     report.Columns    `json:"columns"`
	Rows        [][]string        `json:"rows"`
	Totals      map[string]string `json:"totals,omitempty"`
	TotalsScope string            `json:"totalsScope,omitempty"`
	Pagination  report.Pagination `json:"pagination"`
	Empty       bool              `json:"empty"`
	Message     string            `json:"message,omitempty"`
	Filter      report.Filter     `json:"filter"`
	From        string            `json:"from"`
	To          string            `json:"to"`
}

// View formats the requested page of res. Cell text comes from the same
// formatter as export and print.
func (s *Screen) View(res *Result) *View {
	def := res.Definition
	rows := res.Rows
	var pagination report.Pagination
	switch {
	case res.Unsupported:
		rows, pagination = nil, report.NewPagination(1, res.Filter.Size, 0)
	case res.ServerPaged:
		pagination = report.NewPagination(res.Filter.Page, res.Filter.Size, res.Total)
	default:
		rows, pagination = report.Paginate(rows, res.Filter.Page, res.Filter.Size)
	}

	v := &View{
		Report:      def.Name,
		Title:       def.Title,
		Columns:     def.Columns,
		Rows:        make([][]string, 0, len(rows)),
		TotalsScope: res.TotalsScope,
		Pagination:  pagination,
		Filter:      res.Filter,
	}
	v.From, v.To = s.Range(res)
	for _, row := range rows {
		v.Rows = append(v.Rows, s.formatter.DisplayRow(def.Columns, row))
	}
	if len(res.Rows) == 0 {
		v.Empty = true
		v.Message = def.Empty
	}
	if len(def.Totals) > 0 {
		v.Totals = make(map[string]string, len(def.Totals))
		for _, key := range def.Totals {
			v.Totals[key] = s.formatter.Money.Format(res.Totals[key])
		}
	}
	return v
}
