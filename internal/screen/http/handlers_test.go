package screenhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/posdesk/internal/apiclient"
	"github.com/odyssey-erp/posdesk/internal/download"
	"github.com/odyssey-erp/posdesk/internal/format"
	"github.com/odyssey-erp/posdesk/internal/platform/httpx"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/printdoc/fiscalqr"
	"github.com/odyssey-erp/posdesk/internal/report"
	"github.com/odyssey-erp/posdesk/internal/report/catalog"
	"github.com/odyssey-erp/posdesk/internal/screen"
	"github.com/odyssey-erp/posdesk/internal/spool"
	"github.com/odyssey-erp/posdesk/internal/storeprofile"
)

type stubFrame struct{}

func (stubFrame) Load(context.Context, string) (<-chan struct{}, error) {
	ch := make(chan struct{})
	close(ch)
	return ch, nil
}

func (stubFrame) Print(context.Context) ([]byte, error) { return []byte("%PDF-1.4"), nil }

func (stubFrame) Close() error { return nil }

type stubSurface struct{}

func (stubSurface) Open(context.Context, printdoc.Document) (spool.Frame, error) {
	return stubFrame{}, nil
}

type stubReceipts struct {
	lines []spool.ReceiptLine
	err   error
}

func (s *stubReceipts) PrintLines(lines []spool.ReceiptLine) error {
	if s.err != nil {
		return s.err
	}
	s.lines = lines
	return nil
}

type exportCounter struct {
	formats []string
}

func (c *exportCounter) ObserveExport(format string) { c.formats = append(c.formats, format) }

type backend struct {
	hits   atomic.Int32
	routes map[string]http.HandlerFunc
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.hits.Add(1)
	if h, ok := b.routes[r.URL.Path]; ok {
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func jsonHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

type fixture struct {
	router   http.Handler
	backend  *backend
	receipts *stubReceipts
	exports  *exportCounter
}

func newFixture(t *testing.T, routes map[string]http.HandlerFunc) *fixture {
	t.Helper()
	if _, ok := routes["/api/company"]; !ok {
		routes["/api/company"] = jsonHandler(map[string]any{"companyName": "ACME Trading", "vatNumber": "100000000000003"})
	}
	be := &backend{routes: routes}
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := apiclient.New(apiclient.Config{Origin: srv.URL}, logger)
	require.NoError(t, err)
	cat, err := catalog.Load()
	require.NoError(t, err)
	formatter := report.NewFormatter(format.DefaultMoney(), time.UTC)
	builder, err := printdoc.NewBuilder(formatter)
	require.NoError(t, err)
	sc := screen.New(client, formatter, logger)
	driver := spool.NewDriver(stubSurface{}, spool.DirSpooler{Dir: t.TempDir()}, spool.Options{LoadFallback: 10 * time.Millisecond}, logger)
	t.Cleanup(func() { _ = driver.Shutdown(context.Background()) })

	f := &fixture{backend: be, receipts: &stubReceipts{}, exports: &exportCounter{}}
	h := NewHandler(Deps{
		Logger:    logger,
		Catalog:   cat,
		Screen:    sc,
		Sessions:  screen.NewSessions(sc, 0),
		Builder:   builder,
		Store:     storeprofile.NewService(client, nil, time.Minute, logger),
		Invoices:  client,
		Printer:   driver,
		Receipts:  f.receipts,
		Downloads: download.NewService(client, logger),
		Metrics:   f.exports,
	})
	h.WithNow(func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) })
	r := chi.NewRouter()
	h.MountRoutes(r)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestEmptyVATReportAcrossSinks(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	f := newFixture(t, map[string]http.HandlerFunc{
		"/api/reports/vat": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seen = append(seen, r.URL.RawQuery)
			mu.Unlock()
			jsonHandler(map[string]any{"content": []any{}, "totalPages": 0, "totalElements": 0})(w, r)
		},
	})
	const query = "?from=2024-01-01&to=2024-01-31&groupBy=INVOICE"

	rr := f.do(t, http.MethodGet, "/reports/vat"+query)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view screen.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.True(t, view.Empty)
	assert.Equal(t, "No data for selected filters", view.Message)
	assert.Equal(t, map[string]string{"taxable": "AED 0.00", "vat": "AED 0.00", "total": "AED 0.00"}, view.Totals)
	mu.Lock()
	require.NotEmpty(t, seen)
	assert.Contains(t, seen[0], "groupBy=INVOICE")
	assert.NotContains(t, seen[0], "q=")
	mu.Unlock()

	rr = f.do(t, http.MethodGet, "/reports/vat/export.xlsx"+query)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "VATReport_2024-01-01_2024-01-31_INVOICE.xlsx")
	book, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	rows, err := book.GetRows(book.GetSheetList()[0])
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Date", "Invoice No", "Party", "TRN", "Taxable", "VAT", "Total"}, rows[0])
	assert.Equal(t, []string{"xlsx"}, f.exports.formats)

	rr = f.do(t, http.MethodGet, "/reports/vat/print"+query)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	html := rr.Body.String()
	assert.True(t, strings.HasPrefix(strings.TrimSpace(html), "<!DOCTYPE html>"))
	assert.Equal(t, 1, strings.Count(html, "No data for selected filters"))
	assert.Equal(t, 3, strings.Count(html, "AED 0.00"))
	assert.Contains(t, html, "ACME Trading")
}

func TestMoneyStringDisplaysConsistently(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/api/reports/sales-summary": jsonHandler([]any{
			map[string]any{"invoiceDate": "2024-01-05", "invoiceNumber": "INV-9", "customerName": "Walk-in", "amount": "1,234.50"},
		}),
	})
	const query = "?from=2024-01-01&to=2024-01-31"

	rr := f.do(t, http.MethodGet, "/reports/sales-summary"+query)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view screen.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "AED 1,234.50", view.Rows[0][6])
	assert.Equal(t, "AED 1,234.50", view.Totals["total"])

	rr = f.do(t, http.MethodGet, "/reports/sales-summary/export.xlsx"+query)
	require.Equal(t, http.StatusOK, rr.Code)
	book, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	rows, err := book.GetRows(book.GetSheetList()[0])
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2024-01-05", "INV-9", "Walk-in", "", "", "", "AED 1,234.50"}, rows[1])
	assert.Equal(t, []string{"2024-01-05", "INV-9", "Walk-in", "-", "-", "-", "AED 1,234.50"}, view.Rows[0])

	rr = f.do(t, http.MethodGet, "/reports/sales-summary/export.csv"+query)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "AED 1,234.50")

	rr = f.do(t, http.MethodGet, "/reports/sales-summary/print"+query)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "AED 1,234.50")
}

func TestReportPDFFallsBackToHTML(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/api/reports/x": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2024-06-01", r.URL.Query().Get("date"))
			jsonHandler(map[string]any{
				"reportNo": "X-3",
				"sales":    map[string]any{"count": 4, "gross": 420, "vat": 20, "total": 420},
				"payments": []any{map[string]any{"method": "Cash", "amount": 420}},
			})(w, r)
		},
	})

	rr := f.do(t, http.MethodGet, "/reports/x-report/pdf?date=2024-06-01")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, `attachment; filename=XReport-2024-06-01.html`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, download.ContentTypeHTML, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "X-3")
}

func TestReportPDFPassesThroughBackendPDF(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/api/reports/vat/pdf": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.7"))
		},
	})
	rr := f.do(t, http.MethodGet, "/reports/vat/pdf?from=2024-01-01&to=2024-01-31")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename=VATReport-2024-01-01_2024-01-31.pdf`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", rr.Body.String())
}

func TestInvalidFilterNeverReachesBackend(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{})
	rr := f.do(t, http.MethodGet, "/reports/vat?from=01/02/2024&dir=sideways")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Contains(t, problem.Errors, "from")
	assert.Contains(t, problem.Errors, "dir")
	assert.Equal(t, int32(0), f.backend.hits.Load())
}

func TestUnknownReport(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{})
	rr := f.do(t, http.MethodGet, "/reports/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBackendFailureIsBadGateway(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/api/reports/vat": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "db down", http.StatusInternalServerError)
		},
	})
	rr := f.do(t, http.MethodGet, "/reports/vat")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestListReports(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{})
	rr := f.do(t, http.MethodGet, "/reports")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []reportSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 12)
	assert.Equal(t, "sales-summary", list[0].Name)
}

func invoiceRoutes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"/api/invoices/42": jsonHandler(map[string]any{
			"id":            42,
			"invoiceNumber": "INV-42",
			"invoiceDate":   "2024-06-01T10:15:00Z",
			"customer":      map[string]any{"name": "Beta LLC"},
			"items": []any{
				map[string]any{"name": "Coffee", "qty": 2, "price": "1.50"},
			},
			"vat":   "0.15",
			"total": "3.15",
		}),
	}
}

func TestInvoiceQR(t *testing.T) {
	f := newFixture(t, invoiceRoutes())
	rr := f.do(t, http.MethodGet, "/invoices/42/qr?size=128")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	fields, err := fiscalqr.Decode(rr.Header().Get("X-Fiscal-Payload"))
	require.NoError(t, err)
	assert.Equal(t, "ACME Trading", fields.SellerName)
	assert.Equal(t, "100000000000003", fields.TRN)
	assert.Equal(t, "2024-06-01T10:15:00Z", fields.Timestamp)
	assert.Equal(t, "3.15", fields.Total)
	assert.Equal(t, "0.15", fields.VAT)

	rr = f.do(t, http.MethodGet, "/invoices/42/qr?size=9")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvoicePrintPreview(t *testing.T) {
	f := newFixture(t, invoiceRoutes())
	rr := f.do(t, http.MethodGet, "/invoices/42/print")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "INV-42")
	assert.Contains(t, rr.Body.String(), "data:image/png;base64,")

	rr = f.do(t, http.MethodGet, "/invoices/42/print?layout=80mm")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "80mm")

	rr = f.do(t, http.MethodGet, "/invoices/42/print?layout=letter")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvoicePrintStartsJob(t *testing.T) {
	f := newFixture(t, invoiceRoutes())
	rr := f.do(t, http.MethodPost, "/invoices/42/print")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var resp submitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
}

func TestReceiptGoesToThermalPrinter(t *testing.T) {
	f := newFixture(t, invoiceRoutes())
	rr := f.do(t, http.MethodPost, "/invoices/42/receipt")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.NotEmpty(t, f.receipts.lines)
	assert.Equal(t, "ACME Trading", f.receipts.lines[0].Text)
	var qr string
	for _, l := range f.receipts.lines {
		if l.QR != "" {
			qr = l.QR
		}
	}
	fields, err := fiscalqr.Decode(qr)
	require.NoError(t, err)
	assert.Equal(t, "3.15", fields.Total)

	f.receipts.err = spool.ErrPrinterBusy
	rr = f.do(t, http.MethodPost, "/invoices/42/receipt")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestMissingInvoice(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{})
	rr := f.do(t, http.MethodGet, "/invoices/7/print")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInvalidPrintFilterNeverReachesBackend(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{})
	rr := f.do(t, http.MethodGet, "/reports/vat/print?to=2024-01-01&from=2024-02-01")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, int32(0), f.backend.hits.Load())

	rr = f.do(t, http.MethodGet, "/reports/vat/print?layout=letter")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnsupportedReportShowsEmptyView(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/api/reports/vat": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"No static resource reports/vat."}`))
		},
	})

	rr := f.do(t, http.MethodGet, "/reports/vat?from=2024-01-01&to=2024-01-31&page=3")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view screen.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.True(t, view.Empty)
	assert.Equal(t, "No data for selected filters", view.Message)
	assert.Empty(t, view.Rows)
	assert.Equal(t, map[string]string{"taxable": "AED 0.00", "vat": "AED 0.00", "total": "AED 0.00"}, view.Totals)
	assert.Equal(t, 1, view.Pagination.Page)
	assert.Equal(t, 0, view.Pagination.Total)

	rr = f.do(t, http.MethodGet, "/reports/vat/print?from=2024-01-01&to=2024-01-31")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "No data for selected filters")
}

func TestPageBeyondLastIsEmpty(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/api/reports/vat": jsonHandler([]any{
			map[string]any{"invoiceDate": "2024-01-05", "invoiceNumber": "INV-1", "total": 10},
		}),
	})

	rr := f.do(t, http.MethodGet, "/reports/vat?page=4")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view screen.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Empty(t, view.Rows)
	assert.Equal(t, 1, view.Pagination.Total)

	hits := f.backend.hits.Load()
	rr = f.do(t, http.MethodGet, "/reports/vat?page=4611686018427387904")
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Contains(t, problem.Errors, "page")
	assert.Equal(t, hits, f.backend.hits.Load())
}

func TestBackendErrorsHideUpstreamDetail(t *testing.T) {
	f := newFixture(t, map[string]http.HandlerFunc{
		"/api/reports/vat": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "pq: relation vat_view does not exist", http.StatusInternalServerError)
		},
	})

	for _, target := range []string{"/reports/vat", "/invoices/7/print"} {
		rr := f.do(t, http.MethodGet, target)
		require.GreaterOrEqual(t, rr.Code, 400, target)
		var problem httpx.ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		assert.NotContains(t, problem.Detail, "http://", target)
		assert.NotContains(t, problem.Detail, "vat_view", target)
	}
}
