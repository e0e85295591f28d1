package screen

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/posdesk/internal/apiclient"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
	"github.com/odyssey-erp/posdesk/internal/report"
)

func builder(t *testing.T, s *Screen) *printdoc.Builder {
	t.Helper()
	b, err := printdoc.NewBuilder(s.Formatter())
	require.NoError(t, err)
	return b
}

func TestDocumentUsesTableRows(t *testing.T) {
	s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{Content: vatRows()}, nil
	})
	store := printdoc.Store{Name: "ACME Trading"}
	doc, res, err := s.Document(context.Background(), builder(t, s), store, definition(t, "vat"), report.Filter{From: "2024-01-01", To: "2024-01-31"}, "")
	require.NoError(t, err)

	assert.Equal(t, printdoc.A4, doc.Layout)
	assert.Len(t, res.Rows, 3)
	for _, want := range []string{"INV-1", "AED 1,050.00", "AED 1,365.00", "2024-01-01 to 2024-01-31", "ACME Trading"} {
		assert.Contains(t, doc.HTML, want)
	}
}

func TestDocumentDayReportDefaultsToRoll(t *testing.T) {
	s, _ := newScreen(t, func(context.Context, string, map[string]any) (apiclient.Page, error) {
		return apiclient.Page{Object: map[string]any{
			"zNo":      "Z-12",
			"sales":    map[string]any{"count": 3, "gross": 300, "vat": 15, "total": 315},
			"payments": map[string]any{"Cash": 200, "Card": 115},
		}}, nil
	})
	def := definition(t, "day-report")

	doc, _, err := s.Document(context.Background(), builder(t, s), printdoc.Store{}, def, report.Filter{Extra: map[string]string{"date": "2024-06-01"}}, "")
	require.NoError(t, err)
	assert.Equal(t, printdoc.Thermal80, doc.Layout)
	assert.Equal(t, printdoc.KindDayReport, doc.Kind)
	assert.Contains(t, doc.HTML, "Z-12")

	doc, _, err = s.Document(context.Background(), builder(t, s), printdoc.Store{}, def, report.Filter{}, printdoc.A4)
	require.NoError(t, err)
	assert.Equal(t, printdoc.A4, doc.Layout)
}

type invoiceStub struct {
	raw  map[string]any
	err  error
	path string
}

func (s *invoiceStub) GetJSON(_ context.Context, path string, _ any, dest any) error {
	s.path = path
	if s.err != nil {
		return s.err
	}
	if m, ok := dest.(*map[string]any); ok {
		*m = s.raw
	}
	return nil
}

func TestLoadInvoice(t *testing.T) {
	src := &invoiceStub{raw: map[string]any{"invoiceNo": "INV-7"}}
	raw, err := LoadInvoice(context.Background(), src, "A/7")
	require.NoError(t, err)
	assert.Equal(t, "/invoices/A%2F7", src.path)
	assert.Equal(t, "INV-7", raw["invoiceNo"])

	_, err = LoadInvoice(context.Background(), &invoiceStub{}, "8")
	assert.True(t, errors.Is(err, ErrInvoiceNotFound))

	_, err = LoadInvoice(context.Background(), src, "  ")
	var verr *report.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestInvoiceDocumentPicksBuilderByLayout(t *testing.T) {
	s, _ := newScreen(t, nil)
	raw := map[string]any{
		"invoiceNo": "INV-9",
		"date":      "2024-06-01",
		"items":     []any{map[string]any{"name": "Tea", "qty": 1, "price": 2}},
		"vat":       0.1,
		"total":     2.1,
	}
	store := printdoc.Store{Name: "ACME Trading", TRN: "100000000000003"}

	doc, err := InvoiceDocument(builder(t, s), store, raw, printdoc.Thermal58, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, printdoc.KindReceipt, doc.Kind)

	doc, err = InvoiceDocument(builder(t, s), store, raw, "", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, printdoc.KindInvoice, doc.Kind)
	assert.True(t, strings.Contains(doc.HTML, "INV-9"))
}
