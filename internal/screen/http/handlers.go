package screenhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/posdesk/internal/apiclient"
	"github.com/odyssey-erp/posdesk/internal/download"
	"github.com/odyssey-erp/posdesk/internal/export"
	"github.com/odyssey-erp/posdesk/internal/platform/httpx"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/printdoc/fiscalqr"
	"github.com/odyssey-erp/posdesk/internal/report"
	"github.com/odyssey-erp/posdesk/internal/report/catalog"
	"github.com/odyssey-erp/posdesk/internal/screen"
	"github.com/odyssey-erp/posdesk/internal/spool"
	"github.com/odyssey-erp/posdesk/internal/storeprofile"
	"github.com/odyssey-erp/posdesk/jobs"
)

// TerminalHeader identifies the POS terminal issuing the request. Requests
// from the same terminal for the same report supersede each other.
const TerminalHeader = "X-Terminal-ID"

const defaultQRSize = 256

// StoreProfiles returns the store identity.
type StoreProfiles interface {
	Get(ctx context.Context) (storeprofile.Profile, error)
}

// Printer starts print jobs and looks them up.
type Printer interface {
	Print(ctx context.Context, doc printdoc.Document) (*spool.Job, error)
	Job(id string) (*spool.Job, bool)
}

// PrintQueue defers prints to the worker.
type PrintQueue interface {
	EnqueuePrint(ctx context.Context, payload jobs.PrintPayload) (*asynq.TaskInfo, error)
}

// ReceiptPrinter writes raw lines to a thermal printer.
type ReceiptPrinter interface {
	PrintLines(lines []spool.ReceiptLine) error
}

// ExportObserver counts exports.
type ExportObserver interface {
	ObserveExport(format string)
}

// Deps groups the handler dependencies. Queue, Receipts and Metrics are optional.
type Deps struct {
	Logger    *slog.Logger
	Catalog   *catalog.Catalog
	Screen    *screen.Screen
	Sessions  *screen.Sessions
	Builder   *printdoc.Builder
	Store     StoreProfiles
	Invoices  screen.InvoiceSource
	Printer   Printer
	Queue     PrintQueue
	Receipts  ReceiptPrinter
	Downloads *download.Service
	Metrics   ExportObserver
}

// Handler serves report screens, exports and prints.
type Handler struct {
	Deps
	bufPool sync.Pool
	now     func() time.Time
}

// NewHandler constructs the report HTTP handler.
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{Deps: deps, now: time.Now}
	h.bufPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type reportSummary struct {
	Name     string         `json:"name"`
	Title    string         `json:"title"`
	GroupBy  []string       `json:"groupBy,omitempty"`
	Columns  report.Columns `json:"columns"`
	Totals   []string       `json:"totals,omitempty"`
	Printing bool           `json:"pdf"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	defs := h.Catalog.List()
	out := make([]reportSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, reportSummary{
			Name:     def.Name,
			Title:    def.Title,
			GroupBy:  def.GroupBy,
			Columns:  def.Columns,
			Totals:   def.Totals,
			Printing: def.PDF != "",
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definition(w, r)
	if !ok {
		return
	}
	f := report.FilterFromQuery(r.URL.Query())

	var (
		view *screen.View
		err  error
	)
	terminal := strings.TrimSpace(r.Header.Get(TerminalHeader))
	if terminal != "" && h.Sessions != nil {
		view, err = h.Sessions.Get(terminal, def.Name).Load(r.Context(), def, f)
	} else {
		view, err = h.Screen.Load(r.Context(), def, f)
	}
	if err != nil {
		h.respondError(w, "load report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx")
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv")
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, ext string) {
	def, ok := h.definition(w, r)
	if !ok {
		return
	}
	res, err := h.Screen.Fetch(r.Context(), def, report.FilterFromQuery(r.URL.Query()))
	if err != nil {
		h.respondError(w, "load report", err)
		return
	}

	buf := h.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.bufPool.Put(buf)
	}()

	from, to := h.Screen.Range(res)
	formatter := h.Screen.Formatter()
	contentType := export.ContentTypeXLSX
	if ext == "csv" {
		contentType = export.ContentTypeCSV
		err = export.WriteCSV(buf, formatter, def.Columns, res.Rows, export.CSVOptions{
			Title: def.Title,
			Range: printdoc.RangeLabel(from, to),
		})
	} else {
		err = export.WriteXLSX(buf, def.Title, formatter, def.Columns, res.Rows)
	}
	if err != nil {
		h.respondError(w, "write export", err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.ObserveExport(ext)
	}
	httpx.Attachment(w, export.Filename(def.File, from, to, res.Filter.GroupBy, ext), contentType, buf.Bytes())
}

func (h *Handler) handlePrintPreview(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definition(w, r)
	if !ok {
		return
	}
	doc, _, err := h.reportDocument(r, def)
	if err != nil {
		h.respondError(w, "build report print", err)
		return
	}
	writeHTML(w, doc)
}

func (h *Handler) handlePrint(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definition(w, r)
	if !ok {
		return
	}
	doc, _, err := h.reportDocument(r, def)
	if err != nil {
		h.respondError(w, "build report print", err)
		return
	}
	h.submit(w, r, doc, "report:"+def.Name)
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	def, ok := h.definition(w, r)
	if !ok {
		return
	}
	f, err := screen.Prepare(def, report.FilterFromQuery(r.URL.Query()))
	if err != nil {
		h.respondError(w, "pdf filter", err)
		return
	}
	from, to := f.Range(h.now(), h.Screen.Formatter().Location)
	ref := from
	if to != from {
		ref = from + "_" + to
	}
	res, err := h.Downloads.Fetch(r.Context(), download.Request{
		Type:   def.File,
		Ref:    ref,
		Path:   def.PDF,
		Params: f.Params(),
		Fallback: func(ctx context.Context) (printdoc.Document, error) {
			doc, _, err := h.reportDocument(r.WithContext(ctx), def)
			return doc, err
		},
	})
	if err != nil {
		h.respondError(w, "download report", err)
		return
	}
	httpx.Attachment(w, res.Name, res.ContentType, res.Data)
}

// reportDocument fetches the report and builds its print document.
func (h *Handler) reportDocument(r *http.Request, def catalog.Definition) (printdoc.Document, *screen.Result, error) {
	q := r.URL.Query()
	layout, err := queryLayout(q)
	if err != nil {
		return printdoc.Document{}, nil, err
	}
	f, err := screen.Prepare(def, report.FilterFromQuery(q))
	if err != nil {
		return printdoc.Document{}, nil, err
	}
	store, err := h.store(r.Context())
	if err != nil {
		return printdoc.Document{}, nil, err
	}
	return h.Screen.Document(r.Context(), h.Builder, store, def, f, layout)
}

// queryLayout reads the layout parameter; empty means the document default.
func queryLayout(q url.Values) (printdoc.Layout, error) {
	if strings.TrimSpace(q.Get("layout")) == "" {
		return "", nil
	}
	layout, err := printdoc.ParseLayout(q.Get("layout"))
	if err != nil {
		return "", httpx.FieldErrors{"layout": err.Error()}
	}
	return layout, nil
}

func (h *Handler) handleInvoicePrint(w http.ResponseWriter, r *http.Request) {
	doc, err := h.invoiceDocument(r)
	if err != nil {
		h.respondError(w, "build invoice print", err)
		return
	}
	if r.Method == http.MethodPost {
		h.submit(w, r, doc, "invoice:"+chi.URLParam(r, "id"))
		return
	}
	writeHTML(w, doc)
}

func (h *Handler) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.Downloads.Fetch(r.Context(), download.Request{
		Type: string(printdoc.KindInvoice),
		Ref:  id,
		Path: "/invoices/" + url.PathEscape(id) + "/pdf",
		Fallback: func(ctx context.Context) (printdoc.Document, error) {
			return h.invoiceDocument(r.WithContext(ctx))
		},
	})
	if err != nil {
		h.respondError(w, "download invoice", err)
		return
	}
	httpx.Attachment(w, res.Name, res.ContentType, res.Data)
}

func (h *Handler) invoiceDocument(r *http.Request) (printdoc.Document, error) {
	layout, err := queryLayout(r.URL.Query())
	if err != nil {
		return printdoc.Document{}, err
	}
	raw, store, err := h.invoiceWithStore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return printdoc.Document{}, err
	}
	return screen.InvoiceDocument(h.Builder, store, raw, layout, h.Screen.Formatter().Location)
}

func (h *Handler) handleInvoiceQR(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 64 || n > 1024 {
			h.respondError(w, "qr size", httpx.FieldErrors{"size": "must be a number between 64 and 1024"})
			return
		}
		size = n
	}
	raw, store, err := h.invoiceWithStore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "load invoice", err)
		return
	}
	payload, err := printdoc.FiscalPayload(store, printdoc.NormalizeInvoice(raw, h.Screen.Formatter().Location))
	if err != nil {
		h.respondError(w, "encode fiscal qr", err)
		return
	}
	png, err := fiscalqr.PNG(payload, size)
	if err != nil {
		h.respondError(w, "render fiscal qr", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Fiscal-Payload", payload)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) handleInvoiceReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	layout, err := printdoc.ParseLayout(r.URL.Query().Get("layout"))
	if err != nil || !layout.Thermal() {
		layout = printdoc.Thermal80
	}
	raw, store, err := h.invoiceWithStore(r.Context(), id)
	if err != nil {
		h.respondError(w, "load invoice", err)
		return
	}
	loc := h.Screen.Formatter().Location
	payload := printdoc.NormalizeReceipt(store, raw, loc)
	if len(payload.Items) == 0 {
		h.respondError(w, "build receipt", printdoc.ErrNoItems)
		return
	}

	if h.Receipts != nil {
		qr, err := printdoc.FiscalPayload(store, printdoc.NormalizeInvoice(raw, loc))
		if err != nil {
			h.Logger.Warn("receipt printed without fiscal qr", slog.String("invoice", id), slog.Any("error", err))
			qr = ""
		}
		lines := spool.ReceiptLines(payload, h.Screen.Formatter().Money, layout.Columns(), qr)
		if err := h.Receipts.PrintLines(lines); err != nil {
			h.respondError(w, "print receipt", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, submitResponse{Status: "printed", Device: "escpos"})
		return
	}

	doc, err := h.Builder.BuildReceipt(payload, layout)
	if err != nil {
		h.respondError(w, "build receipt", err)
		return
	}
	h.submit(w, r, doc, "receipt:"+id)
}

func (h *Handler) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.Printer.Job(chi.URLParam(r, "id"))
	if !ok {
		h.respondError(w, "print job", fmt.Errorf("print job: %w", httpx.ErrNotFound))
		return
	}
	httpx.JSON(w, http.StatusOK, submitResponse{JobID: job.ID, Status: job.State().String()})
}

type submitResponse struct {
	JobID  string `json:"jobId,omitempty"`
	TaskID string `json:"taskId,omitempty"`
	Status string `json:"status"`
	Device string `json:"device,omitempty"`
}

// submit hands doc to the queue when configured, otherwise to the driver.
// Either way the caller gets 202 at once.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, doc printdoc.Document, source string) {
	if h.Queue != nil {
		info, err := h.Queue.EnqueuePrint(r.Context(), jobs.PrintPayload{Document: doc, Source: source})
		if err != nil {
			h.respondError(w, "enqueue print", err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, submitResponse{TaskID: info.ID, Status: "queued"})
		return
	}
	job, err := h.Printer.Print(r.Context(), doc)
	if err != nil {
		h.respondError(w, "start print", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: job.State().String()})
}

func (h *Handler) definition(w http.ResponseWriter, r *http.Request) (catalog.Definition, bool) {
	def, err := h.Catalog.Get(chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, "report lookup", err)
		return catalog.Definition{}, false
	}
	return def, true
}

// invoiceWithStore loads the invoice and the store profile concurrently.
func (h *Handler) invoiceWithStore(ctx context.Context, id string) (map[string]any, printdoc.Store, error) {
	var (
		raw   map[string]any
		store printdoc.Store
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		raw, err = screen.LoadInvoice(gctx, h.Invoices, id)
		return err
	})
	g.Go(func() (err error) {
		store, err = h.store(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, printdoc.Store{}, err
	}
	return raw, store, nil
}

func (h *Handler) store(ctx context.Context) (printdoc.Store, error) {
	if h.Store == nil {
		return printdoc.Store{}, nil
	}
	p, err := h.Store.Get(ctx)
	if err != nil {
		return printdoc.Store{}, err
	}
	return p.Store(), nil
}

func writeHTML(w http.ResponseWriter, doc printdoc.Document) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Bytes())
}

// respondError maps pipeline errors onto problem responses.
func (h *Handler) respondError(w http.ResponseWriter, context string, err error) {
	var (
		verr   *report.ValidationError
		expErr *export.Error
	)
	switch {
	case errors.As(err, &verr):
		fields := httpx.FieldErrors{}
		for _, f := range verr.Fields {
			fields[f.Field] = f.Message
		}
		httpx.RespondError(w, fields)
	case errors.As(err, &expErr):
		h.Logger.Error(context, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", expErr.Message)
	case errors.Is(err, catalog.ErrUnknownReport), errors.Is(err, screen.ErrInvoiceNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error()))
	case screen.IsCanceled(err):
		h.Logger.Debug(context+" canceled", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrCanceled)
	case apiclient.IsTimeout(err):
		h.Logger.Warn(context, slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("backend: %w", httpx.ErrTimeout))
	case apiclient.StatusCode(err) == http.StatusNotFound:
		h.Logger.Info(context, slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("backend: %w", httpx.ErrNotFound))
	case apiclient.StatusCode(err) > 0:
		h.Logger.Error(context, slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: backend status %d", httpx.ErrUnavailable, apiclient.StatusCode(err)))
	case errors.Is(err, fiscalqr.ErrValueTooLong), errors.Is(err, printdoc.ErrNoItems):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	case errors.Is(err, spool.ErrPrinterBusy):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error()))
	case errors.Is(err, spool.ErrClosed):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnavailable, err.Error()))
	default:
		var fields httpx.FieldErrors
		if !errors.As(err, &fields) && !errors.Is(err, httpx.ErrNotFound) && !errors.Is(err, httpx.ErrValidation) {
			h.Logger.Error(context, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
