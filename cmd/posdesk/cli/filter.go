package cli

import (
	"net/url"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/posdesk/internal/report"
)

// filterFlags mirrors the query parameters the report screens accept.
type filterFlags struct {
	from, to, date, groupBy, query, sortBy, dir string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.from, "from", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&f.to, "to", "", "end date (YYYY-MM-DD)")
	fs.StringVar(&f.date, "date", "", "business date for day reports (YYYY-MM-DD)")
	fs.StringVar(&f.groupBy, "group-by", "", "grouping key")
	fs.StringVar(&f.query, "q", "", "search text")
	fs.StringVar(&f.sortBy, "sort", "", "sort column key")
	fs.StringVar(&f.dir, "dir", "", "sort direction (asc|desc)")
}

func (f *filterFlags) filter() report.Filter {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("from", f.from)
	set("to", f.to)
	set("date", f.date)
	set("groupBy", f.groupBy)
	set("q", f.query)
	set("sortBy", f.sortBy)
	set("dir", f.dir)
	return report.FilterFromQuery(q)
}
