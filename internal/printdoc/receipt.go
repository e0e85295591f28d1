package printdoc

import (
	"errors"
)

// ErrNoItems is returned for receipts without lines.
var ErrNoItems = errors.New("printdoc: receipt has no items")

type receiptItem struct {
	Name   string
	Unit   string
	Qty    string
	Amount string
}

type receiptView struct {
	page
	Heading string
	Meta    []line
	Items   []receiptItem
	Totals  []line
	Pay     []line
	Footer  string
}

// BuildReceipt renders a thermal sale receipt.
func (b *Builder) BuildReceipt(p Payload, layout Layout) (Document, error) {
	if len(p.Items) == 0 {
		return Document{}, ErrNoItems
	}
	if !layout.Thermal() {
		layout = Thermal80
	}
	heading := p.Meta.Title
	if heading == "" {
		heading = "Tax Invoice"
	}
	view := receiptView{
		page:    b.page(heading, layout, p.Store),
		Heading: heading,
		Footer:  p.Meta.Footer,
	}
	view.Meta = nonEmpty([]line{
		{Label: "Invoice", Text: p.Meta.Number},
		{Label: "Date", Text: b.dateTime(p.Meta.Date)},
		{Label: "Cashier", Text: p.Meta.Cashier},
		{Label: "Terminal", Text: p.Meta.Terminal},
		{Label: "Customer", Text: p.Meta.Customer},
	})
	for _, it := range p.Items {
		item := receiptItem{Name: it.Name, Qty: qty(it.Qty), Amount: b.formatter.Money.Number(it.Amount)}
		if !it.Qty.Equal(one) {
			item.Unit = b.formatter.Money.Number(it.Price)
		}
		view.Items = append(view.Items, item)
	}
	view.Totals = []line{{Label: "Subtotal", Text: b.money(p.Sales.Gross)}}
	if !p.Sales.Discount.IsZero() {
		view.Totals = append(view.Totals, line{Label: "Discount", Text: b.money(p.Sales.Discount.Neg())})
	}
	view.Totals = append(view.Totals,
		line{Label: "VAT", Text: b.money(p.Sales.VAT)},
		line{Label: "Total", Text: b.money(p.Sales.Total), Strong: true},
	)
	for _, pay := range p.Pay {
		view.Pay = append(view.Pay, line{Label: pay.Label, Text: b.money(pay.Amount)})
	}
	if !p.Sales.Change.IsZero() {
		view.Pay = append(view.Pay, line{Label: "Change", Text: b.money(p.Sales.Change), Strong: true})
	}
	html, err := b.render("receipt", view)
	if err != nil {
		return Document{}, err
	}
	return Document{Kind: KindReceipt, Layout: layout, Title: heading, HTML: html}, nil
}

func nonEmpty(lines []line) []line {
	out := lines[:0]
	for _, l := range lines {
		if l.Text != "" {
			out = append(out, l)
		}
	}
	return out
}
