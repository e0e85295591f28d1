package printdoc

import (
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/posdesk/internal/printdoc/fiscalqr"
)

// Party is the buyer block of an invoice.
type Party struct {
	Name    string
	TRN     string
	Address string
	Phone   string
}

// Invoice is the input of an A4 tax invoice.
type Invoice struct {
	ID       string
	Number   string
	Date     time.Time
	DueDate  time.Time
	Customer Party
	Items    []Item
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
	Notes    string
}

type invoiceItem struct {
	No     int
	Code   string
	Name   string
	Qty    string
	Unit   string
	VAT    string
	Amount string
}

type invoiceView struct {
	page
	QR       template.URL
	Customer Party
	Meta     []line
	Items    []invoiceItem
	Totals   []line
	Notes    string
}

// FiscalFields returns the QR fields of an invoice. The timestamp is UTC
// RFC 3339 and amounts carry two decimals.
func FiscalFields(store Store, inv Invoice) fiscalqr.Fields {
	return fiscalqr.Fields{
		SellerName: store.Name,
		TRN:        store.TRN,
		Timestamp:  inv.Date.UTC().Format(time.RFC3339),
		Total:      inv.Total.StringFixed(2),
		VAT:        inv.VAT.StringFixed(2),
	}
}

// FiscalPayload returns the base64 TLV payload of an invoice.
func FiscalPayload(store Store, inv Invoice) (string, error) {
	return fiscalqr.Encode(FiscalFields(store, inv))
}

// BuildInvoice renders an A4 tax invoice with the fiscal QR code inlined as a
// data URL.
func (b *Builder) BuildInvoice(store Store, inv Invoice) (Document, error) {
	payload, err := FiscalPayload(store, inv)
	if err != nil {
		return Document{}, fmt.Errorf("fiscal qr: %w", err)
	}
	qr, err := fiscalqr.PNGDataURL(payload, b.qrSize)
	if err != nil {
		return Document{}, err
	}
	title := "Tax Invoice " + inv.Number
	view := invoiceView{
		page:     b.page(title, A4, store),
		QR:       template.URL(qr),
		Customer: inv.Customer,
		Notes:    inv.Notes,
	}
	view.Meta = nonEmpty([]line{
		{Label: "Invoice No", Text: inv.Number},
		{Label: "Date", Text: b.date(inv.Date)},
		{Label: "Due Date", Text: b.date(inv.DueDate)},
	})
	for i, it := range inv.Items {
		view.Items = append(view.Items, invoiceItem{
			No:     i + 1,
			Code:   it.Code,
			Name:   it.Name,
			Qty:    qty(it.Qty),
			Unit:   b.money(it.Price),
			VAT:    b.money(it.VAT),
			Amount: b.money(it.Amount),
		})
	}
	view.Totals = []line{{Label: "Subtotal", Text: b.money(inv.Subtotal)}}
	if !inv.Discount.IsZero() {
		view.Totals = append(view.Totals, line{Label: "Discount", Text: b.money(inv.Discount.Neg())})
	}
	view.Totals = append(view.Totals,
		line{Label: "VAT", Text: b.money(inv.VAT)},
		line{Label: "Total", Text: b.money(inv.Total), Strong: true},
	)
	html, err := b.render("invoice", view)
	if err != nil {
		return Document{}, err
	}
	return Document{Kind: KindInvoice, Layout: A4, Title: title, HTML: html}, nil
}

// Ref is the identifier used in artifact names: the number when
// known, else the ID.
func (inv Invoice) Ref() string {
	if inv.Number != "" {
		return inv.Number
	}
	if inv.ID != "" {
		return inv.ID
	}
	return strconv.FormatInt(inv.Date.Unix(), 10)
}
