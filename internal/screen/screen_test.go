package screen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/posdesk/internal/apiclient"
	"github.com/odyssey-erp/posdesk/internal/format"
	"github.com/odyssey-erp/posdesk/internal/report"
	"github.com/odyssey-erp/posdesk/internal/report/catalog"
)

type fetchFunc func(ctx context.Context, path string, params map[string]any) (apiclient.Page, error)

type fakeFetcher struct {
	calls atomic.Int32
	fn    fetchFunc
}

func (f *fakeFetcher) GetPage(ctx context.Context, path string, params any) (apiclient.Page, error) {
	f.calls.Add(1)
	p, _ := params.(map[string]any)
	return f.fn(ctx, path, p)
}

func newScreen(t *testing.T, fn fetchFunc) (*Screen, *fakeFetcher) {
	t.Helper()
	fetcher := &fakeFetcher{fn: fn}
	s := New(fetcher, report.NewFormatter(format.DefaultMoney(), time.UTC), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	return s, fetcher
}

func definition(t *testing.T, name string) catalog.Definition {
	t.Helper()
	c, err := catalog.Load()
	require.NoError(t, err)
	def, err := c.Get(name)
	require.NoError(t, err)
	return def
}

func vatRows() []map[string]any {
	return []map[string]any{
		{"invoiceDate": "2024-01-02", "invoiceNumber": "INV-2", "customerName": "Beta", "taxableAmount": 200.0, "vatAmount": 10.0, "grandTotal": 210.0},
		{"invoiceDate": "2024-01-01", "invoiceNumber": "INV-1", "customerName": "Alpha", "taxableAmount": 1000.0, "vatAmount": 50.0, "grandTotal": 1050.0},
		{"invoiceDate": "2024-01-03", "invoiceNumber": "INV-3", "customerName": "Gamma", "taxableAmount": 100.0, "vatAmount": 5.0, "grandTotal": 105.0},
	}
}

func TestLoadAdaptsSortsAndPaginates(t *testing.T) {
	var sent map[string]any
	s, _ := newScreen(t, func(_ context.Context, path string, params map[string]any) (apiclient.Page, error) {
		assert.Equal(t, "/reports/vat", path)
		sent = params
		return apiclient.Page{Content: vatRows()}, nil
	})
	f := report.Filter{From: "2024-01-01", To: "2024-01-31", GroupBy: "INVOICE", Page: 1, Size: 2}
	v, err := s.Load(context.Background(), definition(t, "vat"), f)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", sent["from"])
	assert.Equal(t, 0, sent["page"])

	require.Len(t, v.Rows, 2)
	assert.Equal(t, []string{"2024-01-01", "INV-1", "Alpha", "-", "AED 1,000.00", "AED 50.00", "AED 1,050.00"}, v.Rows[0])
	assert.Equal(t, "INV-2", v.Rows[1][1])
	assert.Equal(t, report.Pagination{Page: 1, PerPage: 2, Total: 3, TotalPages: 2}, v.Pagination)
	assert.Equal(t, TotalsAll, v.TotalsScope)
	assert.Equal(t, "AED 1,300.00", v.Totals["taxable"])
	assert.Equal(t, "AED 65.00", v.Totals["vat"])
	assert.Equal(t, "AED 1,365.00", v.Totals["total"])
	assert.False(t, v.Empty)
	assert.Equal(t, "2024-01-01", v.From)
	assert.Equal(t, "2024-01-31", v.To)
}

func TestLoadSortDescending(t *testing.T) {
	s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{Content: vatRows()}, nil
	})
	v, err := s.Load(context.Background(), definition(t, "vat"), report.Filter{SortBy: "total", Dir: "DESC"})
	require.NoError(t, err)
	require.Len(t, v.Rows, 3)
	assert.Equal(t, "INV-1", v.Rows[0][1])
	assert.Equal(t, "INV-3", v.Rows[2][1])
}

func TestLoadServerTotalsWinUnlessSearchNarrows(t *testing.T) {
	s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{
			Content:       vatRows(),
			Paged:         true,
			TotalElements: 40,
			Totals:        map[string]any{"taxableAmount": json.Number("9000"), "vat": "450", "total": 9450.0},
		}, nil
	})
	def := definition(t, "vat")

	v, err := s.Load(context.Background(), def, report.Filter{Size: 20})
	require.NoError(t, err)
	assert.Equal(t, TotalsServer, v.TotalsScope)
	assert.Equal(t, "AED 9,000.00", v.Totals["taxable"])
	assert.Equal(t, "AED 9,450.00", v.Totals["total"])
	assert.Equal(t, 40, v.Pagination.Total)
	assert.Equal(t, 2, v.Pagination.TotalPages)
	assert.Len(t, v.Rows, 3)

	v, err = s.Load(context.Background(), def, report.Filter{Size: 20, Query: "beta"})
	require.NoError(t, err)
	assert.Equal(t, TotalsPage, v.TotalsScope)
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "AED 210.00", v.Totals["total"])
}

func TestLoadEmpty(t *testing.T) {
	s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{}, nil
	})
	v, err := s.Load(context.Background(), definition(t, "vat"), report.DefaultFilter())
	require.NoError(t, err)
	assert.True(t, v.Empty)
	assert.Equal(t, catalog.EmptyMessage, v.Message)
	assert.Empty(t, v.Rows)
	assert.Equal(t, map[string]string{"taxable": "AED 0.00", "vat": "AED 0.00", "total": "AED 0.00"}, v.Totals)
}

func TestLoadUnsupportedEndpointIsEmpty(t *testing.T) {
	for _, status := range []int{404, 405, 501} {
		s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
			return apiclient.Page{}, &apiclient.Error{Method: "GET", URL: "http://backend/api/reports/vat", Status: status}
		})
		v, err := s.Load(context.Background(), definition(t, "vat"), report.Filter{Page: 5, Size: 20})
		require.NoError(t, err, status)
		assert.True(t, v.Empty)
		assert.Equal(t, "No data for selected filters", v.Message)
		assert.Empty(t, v.Rows)
		assert.Equal(t, 1, v.Pagination.Page)
		assert.Equal(t, "AED 0.00", v.Totals["total"])
	}

	s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{}, &apiclient.Error{Method: "GET", Status: 500, Body: "boom"}
	})
	_, err := s.Load(context.Background(), definition(t, "vat"), report.Filter{})
	require.Error(t, err)
}

func TestLoadRejectsInvalidFilterBeforeFetching(t *testing.T) {
	s, fetcher := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{}, nil
	})
	def := definition(t, "vat")

	_, err := s.Load(context.Background(), def, report.Filter{From: "2024-02-01", To: "2024-01-01"})
	require.ErrorIs(t, err, report.ErrInvalidFilter)

	_, err = s.Load(context.Background(), def, report.Filter{GroupBy: "WEEK"})
	var verr *report.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "groupBy", verr.Fields[0].Field)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestFetchDayReportRowsFromObject(t *testing.T) {
	s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{Object: map[string]any{
			"reportNo": "Z-7",
			"payments": []any{
				map[string]any{"method": "Cash", "count": 3, "amount": 120.5},
				map[string]any{"method": "Card", "count": 1, "amount": 80},
			},
		}}, nil
	})
	res, err := s.Fetch(context.Background(), definition(t, "day-report"), report.Filter{Extra: map[string]string{"date": "2024-06-01"}})
	require.NoError(t, err)
	require.NotNil(t, res.Raw)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Card", res.Rows[0]["label"])
	assert.Equal(t, "AED 200.50", s.Formatter().Money.Format(res.Totals["amount"]))

	table := s.Table(res, "")
	assert.Equal(t, "2024-06-01", table.Range)
}

func TestSessionLatestLoadWins(t *testing.T) {
	firstStarted := make(chan struct{})
	s, _ := newScreen(t, func(ctx context.Context, _ string, params map[string]any) (apiclient.Page, error) {
		if params["from"] == "2024-01-01" {
			close(firstStarted)
			<-ctx.Done()
			return apiclient.Page{}, apiclient.ErrCanceled
		}
		return apiclient.Page{Content: vatRows()[:1]}, nil
	})
	sessions := NewSessions(s, 0)
	session := sessions.Get("till-1", "vat")
	def := definition(t, "vat")

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = session.Load(context.Background(), def, report.Filter{From: "2024-01-01"})
	}()
	<-firstStarted

	v, err := session.Load(context.Background(), def, report.Filter{From: "2024-02-01"})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", v.Filter.From)
	require.Len(t, v.Rows, 1)

	wg.Wait()
	assert.ErrorIs(t, firstErr, ErrSuperseded)
	assert.True(t, IsCanceled(firstErr))
}

func TestRunDropsStaleResult(t *testing.T) {
	var l Latest
	release := make(chan struct{})
	started := make(chan struct{})
	var stale error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, stale = Run(&l, context.Background(), func(context.Context) (string, error) {
			close(started)
			<-release
			return "old", nil
		})
	}()
	<-started

	got, err := Run(&l, context.Background(), func(context.Context) (string, error) {
		return "new", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	close(release)
	<-done
	assert.ErrorIs(t, stale, ErrSuperseded)
}

func TestRunPropagatesCallerCancellation(t *testing.T) {
	var l Latest
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(&l, ctx, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrSuperseded))
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	start := time.Now()
	require.NoError(t, d.Wait(context.Background(), "a"))
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	start = time.Now()
	require.NoError(t, d.Wait(context.Background(), "ab"))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, d.Wait(context.Background(), "ab"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Wait(ctx, "abc"), context.Canceled)
}

func TestSessionsPrune(t *testing.T) {
	s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{}, nil
	})
	sessions := NewSessions(s, 0)
	a := sessions.Get("till-1", "vat")
	assert.Same(t, a, sessions.Get("till-1", "vat"))
	sessions.Get("till-2", "vat")
	assert.Equal(t, 2, sessions.Len())

	assert.Equal(t, 0, sessions.Prune(time.Hour))
	assert.Equal(t, 2, sessions.Prune(-time.Second))
	assert.Equal(t, 0, sessions.Len())
}
