package download

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/posdesk/internal/apiclient"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

type fallbackCounter struct{ n int }

func (f *fallbackCounter) ObservePDFFallback() { f.n++ }

func newClient(t *testing.T, h http.HandlerFunc) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := apiclient.New(apiclient.Config{Origin: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func xReportFallback(context.Context) (printdoc.Document, error) {
	return printdoc.Document{Kind: printdoc.KindXReport, HTML: "<!DOCTYPE html><html><body>X Report</body></html>"}, nil
}

func TestDownloadFallsBackToHTMLOn404(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/reports/x/pdf", r.URL.Path)
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("date"))
		http.NotFound(w, r)
	})
	counter := &fallbackCounter{}
	svc := NewService(client, slog.New(slog.NewTextHandler(io.Discard, nil))).WithObserver(counter)
	dir := t.TempDir()

	res, err := svc.Download(context.Background(), Saver{Dir: dir}, Request{
		Type:     "XReport",
		Ref:      "2024-06-01",
		Path:     "/reports/x/pdf",
		Params:   map[string]any{"date": "2024-06-01"},
		Fallback: xReportFallback,
	})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.True(t, apiclient.IsUnsupported(res.Cause))
	assert.Equal(t, "XReport-2024-06-01.html", res.Name)
	assert.Equal(t, filepath.Join(dir, "XReport-2024-06-01.html"), res.Path)
	assert.Equal(t, 1, counter.n)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "X Report")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadSavesPDF(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	})
	svc := NewService(client, nil)
	dir := t.TempDir()

	res, err := svc.Download(context.Background(), Saver{Dir: dir}, Request{
		Type: "Invoice", Ref: "42", Path: "/invoices/42/pdf",
		Fallback: func(context.Context) (printdoc.Document, error) {
			t.Fatal("fallback must not run")
			return printdoc.Document{}, nil
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, "Invoice-42.pdf", res.Name)
	assert.Equal(t, ContentTypePDF, res.ContentType)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestFetchFallsBackOnServerError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	res, err := NewService(client, nil).Fetch(context.Background(), Request{
		Type: "XReport", Ref: "2024-06-01", Path: "/reports/x/pdf", Fallback: xReportFallback,
	})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, 500, apiclient.StatusCode(res.Cause))
}

func TestFetchRejectsNonPDFBody(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Login required</body></html>"))
	})
	res, err := NewService(client, nil).Fetch(context.Background(), Request{
		Type: "XReport", Ref: "2024-06-01", Path: "/reports/x/pdf", Fallback: xReportFallback,
	})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, "XReport-2024-06-01.html", res.Name)
	assert.ErrorContains(t, res.Cause, "not a pdf")
	assert.Contains(t, string(res.Data), "X Report")
}

func TestFetchAcceptsPDFSignatureWithoutContentType(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("%PDF-1.4\n"))
	})
	res, err := NewService(client, nil).Fetch(context.Background(), Request{
		Type: "XReport", Ref: "2024-06-01", Path: "/reports/x/pdf", Fallback: xReportFallback,
	})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, ContentTypePDF, res.ContentType)
}

func TestFetchCancelledDoesNotFallBack(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewService(client, nil).Fetch(ctx, Request{Type: "XReport", Path: "/reports/x/pdf", Fallback: xReportFallback})
	require.Error(t, err)
	assert.True(t, apiclient.IsCanceled(err))
}

func TestFetchWithoutFallbackReturnsError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := NewService(client, nil).Fetch(context.Background(), Request{Type: "Invoice", Path: "/invoices/1/pdf"})
	assert.ErrorContains(t, err, "no html fallback")
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "XReport-2024-06-01.pdf", Filename("XReport", "2024-06-01", "pdf"))
	assert.Equal(t, "Invoice-INV_7.html", Filename("Invoice", "INV/7", ".html"))
	assert.Equal(t, "ZReport.html", Filename("ZReport", "", "html"))
}
