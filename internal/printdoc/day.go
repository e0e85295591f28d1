package printdoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type daySection struct {
	Title string
	Lines []line
}

type dayView struct {
	page
	Meta     []line
	Sections []daySection
	Footer   string
}

// BuildDayReport renders a Day/Z or X shift summary. Empty sections are
// skipped; the sales section is always present.
func (b *Builder) BuildDayReport(p Payload, kind Kind, layout Layout) (Document, error) {
	if kind != KindXReport {
		kind = KindDayReport
	}
	if layout == "" {
		layout = Thermal80
	}
	title := p.Meta.Title
	if title == "" {
		title = "Z Report"
		if kind == KindXReport {
			title = "X Report"
		}
	}

	view := dayView{page: b.page(title, layout, p.Store), Footer: p.Meta.Footer}
	view.Meta = nonEmpty([]line{
		{Label: "Report No", Text: p.Meta.Number},
		{Label: "Date", Text: b.date(p.Meta.Date)},
		{Label: "Opened", Text: b.dateTime(p.Meta.From)},
		{Label: "Closed", Text: b.dateTime(p.Meta.To)},
		{Label: "Terminal", Text: p.Meta.Terminal},
		{Label: "Cashier", Text: p.Meta.Cashier},
	})

	view.add("Sales", []line{
		{Label: "Transactions", Text: strconv.Itoa(p.Sales.Count)},
		{Label: "Gross Sales", Text: b.money(p.Sales.Gross)},
		{Label: "Discounts", Text: b.money(p.Sales.Discount)},
		{Label: "Returns", Text: b.money(p.Sales.Returns)},
		{Label: "Net Sales", Text: b.money(p.Sales.Net)},
		{Label: "VAT", Text: b.money(p.Sales.VAT)},
		{Label: "Total", Text: b.money(p.Sales.Total), Strong: true},
	})

	if len(p.Pay) > 0 {
		lines := make([]line, 0, len(p.Pay)+1)
		total := decimal.Zero
		for _, pay := range p.Pay {
			lines = append(lines, line{Label: countLabel(pay), Text: b.money(pay.Amount)})
			total = total.Add(pay.Amount)
		}
		view.add("Payments", append(lines, line{Label: "Total Collected", Text: b.money(total), Strong: true}))
	}

	if len(p.Tax) > 0 {
		lines := make([]line, 0, 2*len(p.Tax))
		for _, tax := range p.Tax {
			label := tax.Label
			if !tax.Rate.IsZero() {
				label = fmt.Sprintf("%s %s%%", label, tax.Rate.String())
			}
			label = strings.TrimSpace(label)
			lines = append(lines,
				line{Label: label + " taxable", Text: b.money(tax.Taxable)},
				line{Label: label + " VAT", Text: b.money(tax.VAT)},
			)
		}
		view.add("VAT Summary", lines)
	}

	if c := p.Cashout; !c.IsZero() {
		lines := []line{
			{Label: "Opening Float", Text: b.money(c.Opening)},
			{Label: "Cash Sales", Text: b.money(c.CashSales)},
			{Label: "Paid In", Text: b.money(c.PaidIn)},
			{Label: "Paid Out", Text: b.money(c.PaidOut)},
			{Label: "Expected Cash", Text: b.money(c.Expected), Strong: true},
		}
		if c.HasCount {
			lines = append(lines,
				line{Label: "Counted Cash", Text: b.money(c.Counted)},
				line{Label: "Variance", Text: b.money(c.Variance()), Strong: true},
			)
		}
		view.add("Cash Drawer", lines)
	}

	for _, g := range p.Groups {
		lines := make([]line, 0, len(g.Lines))
		for _, l := range g.Lines {
			lines = append(lines, line{Label: countLabel(l), Text: b.money(l.Amount)})
		}
		view.add(g.Name, lines)
	}

	html, err := b.render("day", view)
	if err != nil {
		return Document{}, err
	}
	return Document{Kind: kind, Layout: layout, Title: title, HTML: html}, nil
}

func (v *dayView) add(title string, lines []line) {
	if lines = nonEmpty(lines); len(lines) == 0 {
		return
	}
	v.Sections = append(v.Sections, daySection{Title: title, Lines: lines})
}

func countLabel(l Line) string {
	if l.Count > 0 {
		return fmt.Sprintf("%s (%d)", l.Label, l.Count)
	}
	return l.Label
}
