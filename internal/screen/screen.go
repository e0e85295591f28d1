// Package screen drives the report screens: it turns a filter into a fetch,
// reconciles the response onto the report's columns and produces the rows
// and totals shared by the table view, the export and the print.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/posdesk/internal/apiclient"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/report"
	"github.com/odyssey-erp/posdesk/internal/report/catalog"
)

// Totals scopes.
const (
	// TotalsServer means the backend computed the totals over the whole result.
	TotalsServer = "server"
	// TotalsAll means the client summed every row it holds.
	TotalsAll = "all"
	// TotalsPage means the client summed one server page only.
	TotalsPage = "page"
)

// Fetcher reads list responses.
type Fetcher interface {
	GetPage(ctx context.Context, path string, params any) (apiclient.Page, error)
}

// Result is a fetched, adapted, searched and sorted data set.
type Result struct {
	Definition  catalog.Definition
	Filter      report.Filter
	Rows        []report.Row
	Totals      report.Totals
	TotalsScope string
	// ServerPaged is true when the backend paginated; Total is its total count.
	ServerPaged bool
	Total       int
	// Raw holds the object body of day reports.
	Raw map[string]any
	// Unsupported is set when the backend lacks the report endpoint.
	Unsupported bool
}

// Screen loads report data.
type Screen struct {
	api       Fetcher
	formatter report.Formatter
	logger    *slog.Logger
	now       func() time.Time
	group     singleflight.Group
}

// New constructs a Screen.
func New(api Fetcher, formatter report.Formatter, logger *slog.Logger) *Screen {
	if logger == nil {
		logger = slog.Default()
	}
	return &Screen{api: api, formatter: formatter, logger: logger, now: time.Now}
}

// Formatter returns the formatter every sink must share.
func (s *Screen) Formatter() report.Formatter {
	return s.formatter
}

// Prepare normalizes and validates f for def. It never touches the network.
func Prepare(def catalog.Definition, f report.Filter) (report.Filter, error) {
	f = f.Normalized()
	if err := f.Validate(); err != nil {
		return f, err
	}
	if !def.AllowsGroupBy(f.GroupBy) {
		return f, &report.ValidationError{Fields: []report.FieldError{{
			Field:   "groupBy",
			Message: fmt.Sprintf("must be one of: %v", def.GroupBy),
		}}}
	}
	return f, nil
}

// Fetch returns the full data set for f. Identical concurrent fetches share
// one backend call.
func (s *Screen) Fetch(ctx context.Context, def catalog.Definition, f report.Filter) (*Result, error) {
	f, err := Prepare(def, f)
	if err != nil {
		return nil, err
	}
	page, err := s.page(ctx, def, f)
	unsupported := err != nil && apiclient.IsUnsupported(err)
	if err != nil && !unsupported {
		return nil, err
	}
	if unsupported {
		// A report the backend does not offer shows as an empty result.
		s.logger.Debug("report endpoint unsupported", slog.String("report", def.Name), slog.Any("error", err))
		page = apiclient.Page{}
	}

	res := &Result{Definition: def, Filter: f, ServerPaged: page.Paged, Unsupported: unsupported}
	adapter := def.Adapter()
	switch {
	case len(page.Content) > 0:
		res.Rows = adapter.AdaptAll(page.Content)
	case def.DayReport && page.Object != nil:
		res.Raw = page.Object
		res.Rows = dayRows(page.Object, s.formatter.Location)
	default:
		res.Rows = []report.Row{}
	}

	res.Rows = report.Search(res.Rows, def.Columns, s.formatter, f.Query)
	if col, ok := def.SortColumn(f.SortBy); ok {
		report.SortRows(res.Rows, col, f.Dir, s.formatter.Location)
	}

	res.Total = len(res.Rows)
	if page.Paged && f.Query == "" {
		res.Total = int(page.TotalElements)
	}

	if server, ok := report.TotalsFrom(page.Totals, def.Totals, adapter); ok && f.Query == "" {
		res.Totals, res.TotalsScope = server, TotalsServer
	} else {
		res.Totals, res.TotalsScope = report.Sum(res.Rows, def.Totals), TotalsAll
		if page.Paged {
			res.TotalsScope = TotalsPage
		}
	}
	return res, nil
}

func (s *Screen) page(ctx context.Context, def catalog.Definition, f report.Filter) (apiclient.Page, error) {
	key := def.Name + "?" + f.Key()
	ch := s.group.DoChan(key, func() (any, error) {
		return s.api.GetPage(ctx, def.Endpoint, f.Params())
	})
	select {
	case <-ctx.Done():
		return apiclient.Page{}, fmt.Errorf("%w: %w", apiclient.ErrCanceled, ctx.Err())
	case r := <-ch:
		if r.Err == nil {
			return r.Val.(apiclient.Page), nil
		}
		// The shared call ran on another caller's context. Retry on ours
		// when only theirs was cancelled.
		if r.Shared && apiclient.IsCanceled(r.Err) && ctx.Err() == nil {
			return s.api.GetPage(ctx, def.Endpoint, f.Params())
		}
		if !apiclient.IsCanceled(r.Err) && !apiclient.IsUnsupported(r.Err) {
			s.logger.Error("report fetch failed", slog.String("report", def.Name), slog.Any("error", r.Err))
		}
		return apiclient.Page{}, r.Err
	}
}

// Load fetches f and renders the requested page for the table view.
func (s *Screen) Load(ctx context.Context, def catalog.Definition, f report.Filter) (*View, error) {
	res, err := s.Fetch(ctx, def, f)
	if err != nil {
		return nil, err
	}
	return s.View(res), nil
}

// Table converts a result into the print input.
func (s *Screen) Table(res *Result, layout printdoc.Layout) printdoc.Table {
	from, to := res.Filter.Range(s.now(), s.formatter.Location)
	return printdoc.Table{
		Title:   res.Definition.Title,
		Range:   printdoc.RangeLabel(from, to),
		Columns: res.Definition.Columns,
		Rows:    res.Rows,
		Totals:  res.Totals,
		Empty:   res.Definition.Empty,
		Layout:  layout,
	}
}

// Range returns the from/to pair used for file names.
func (s *Screen) Range(res *Result) (string, string) {
	return res.Filter.Range(s.now(), s.formatter.Location)
}

func dayRows(raw map[string]any, loc *time.Location) []report.Row {
	p := printdoc.NormalizeDayPayload(printdoc.Store{}, raw, loc)
	rows := make([]report.Row, 0, len(p.Pay))
	for _, l := range p.Pay {
		row := report.Row{"label": l.Label, "amount": l.Amount}
		if l.Count > 0 {
			row["count"] = strconv.Itoa(l.Count)
		}
		rows = append(rows, row)
	}
	return rows
}

// IsCanceled reports whether err means the load was abandoned rather than failed.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrSuperseded) || apiclient.IsCanceled(err)
}
