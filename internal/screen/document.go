package screen

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/report"
	"github.com/odyssey-erp/posdesk/internal/report/catalog"
)

// ErrInvoiceNotFound is returned when the backend answers an invoice lookup
// with an empty body.
var ErrInvoiceNotFound = errors.New("screen: invoice not found")

// Document fetches the report and builds its print document from the same
// rows and totals the table shows. An empty layout picks the report's
// default: the 80mm roll for day reports, A4 otherwise.
func (s *Screen) Document(ctx context.Context, b *printdoc.Builder, store printdoc.Store, def catalog.Definition, f report.Filter, layout printdoc.Layout) (printdoc.Document, *Result, error) {
	res, err := s.Fetch(ctx, def, f)
	if err != nil {
		return printdoc.Document{}, nil, err
	}
	if def.DayReport && res.Raw != nil {
		if layout == "" {
			layout = printdoc.Thermal80
		}
		payload := printdoc.NormalizeDayPayload(store, res.Raw, s.formatter.Location)
		doc, err := b.BuildDayReport(payload, printdoc.Kind(def.File), layout)
		return doc, res, err
	}
	if layout == "" {
		layout = printdoc.A4
	}
	doc, err := b.BuildReport(store, s.Table(res, layout))
	return doc, res, err
}

// InvoiceSource reads invoices from the backend.
type InvoiceSource interface {
	GetJSON(ctx context.Context, path string, params any, dest any) error
}

// LoadInvoice reads the raw invoice id.
func LoadInvoice(ctx context.Context, src InvoiceSource, id string) (map[string]any, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &report.ValidationError{Fields: []report.FieldError{{Field: "id", Message: "is required"}}}
	}
	var raw map[string]any
	if err := src.GetJSON(ctx, "/invoices/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrInvoiceNotFound)
	}
	return raw, nil
}

// InvoiceDocument builds a receipt for roll layouts and a tax invoice
// otherwise.
func InvoiceDocument(b *printdoc.Builder, store printdoc.Store, raw map[string]any, layout printdoc.Layout, loc *time.Location) (printdoc.Document, error) {
	if layout.Thermal() {
		return b.BuildReceipt(printdoc.NormalizeReceipt(store, raw, loc), layout)
	}
	return b.BuildInvoice(store, printdoc.NormalizeInvoice(raw, loc))
}
