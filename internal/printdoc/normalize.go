package printdoc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/posdesk/internal/format"
	"github.com/odyssey-erp/posdesk/internal/report"
)

// NormalizeDayPayload reconciles a backend Day/Z or X report response into a
// Payload. Field names vary between backend versions; every known variant is
// resolved here so the builder only sees the canonical shape.
func NormalizeDayPayload(store Store, raw map[string]any, loc *time.Location) Payload {
	p := Payload{Store: store}
	p.Meta = Meta{
		Title:    str(raw, "title", "reportTitle"),
		Number:   str(raw, "reportNo", "zNo", "number", "id"),
		Date:     when(raw, loc, "date", "reportDate", "businessDate", "closedAt"),
		From:     when(raw, loc, "openedAt", "from", "shiftStart"),
		To:       when(raw, loc, "closedAt", "to", "shiftEnd"),
		Cashier:  str(raw, "cashier", "cashierName", "user.name", "user"),
		Terminal: str(raw, "terminal", "terminalId", "counter"),
		Footer:   str(raw, "footer"),
	}

	sales := object(raw, "sales", "summary")
	if sales == nil {
		sales = raw
	}
	p.Sales = Sales{
		Count:    integer(sales, "count", "invoiceCount", "transactions"),
		Gross:    amount(sales, "gross", "grossSales", "totalSales"),
		Discount: amount(sales, "discount", "discounts", "discountTotal"),
		Returns:  amount(sales, "returns", "refunds", "returnTotal"),
		Net:      amount(sales, "net", "netSales"),
		VAT:      amount(sales, "vat", "vatAmount", "tax"),
		Total:    amount(sales, "total", "grandTotal", "totalAmount"),
	}
	if p.Sales.Net.IsZero() && !p.Sales.Gross.IsZero() {
		p.Sales.Net = p.Sales.Gross.Sub(p.Sales.Discount).Sub(p.Sales.Returns)
	}

	for _, m := range list(raw, "payments", "pay", "paymentSummary", "tenders") {
		p.Pay = append(p.Pay, Line{
			Label:  str(m, "method", "name", "label", "type"),
			Count:  integer(m, "count", "transactions"),
			Amount: amount(m, "amount", "total", "value"),
		})
	}

	for _, m := range list(raw, "tax", "taxes", "vatSummary") {
		p.Tax = append(p.Tax, TaxLine{
			Label:   str(m, "label", "name", "code"),
			Rate:    amount(m, "rate", "percent"),
			Taxable: amount(m, "taxable", "taxableAmount", "net"),
			VAT:     amount(m, "vat", "vatAmount", "amount"),
		})
	}

	if c := object(raw, "cashout", "cash", "drawer"); c != nil {
		p.Cashout = Cashout{
			Opening:   amount(c, "opening", "openingCash", "float"),
			CashSales: amount(c, "cashSales", "sales"),
			PaidIn:    amount(c, "paidIn", "cashIn"),
			PaidOut:   amount(c, "paidOut", "cashOut", "expenses"),
			Expected:  amount(c, "expected", "expectedCash"),
		}
		if v, ok := pick(c, "counted", "closingCash", "actual"); ok {
			p.Cashout.Counted, p.Cashout.HasCount = format.ParseMoney(v)
		}
		if p.Cashout.Expected.IsZero() {
			p.Cashout.Expected = p.Cashout.Opening.Add(p.Cashout.CashSales).Add(p.Cashout.PaidIn).Sub(p.Cashout.PaidOut)
		}
	}

	for _, g := range list(raw, "groups", "categories", "departments") {
		group := Group{Name: str(g, "name", "label", "title")}
		for _, m := range list(g, "lines", "items", "rows") {
			group.Lines = append(group.Lines, Line{
				Label:  str(m, "label", "name", "category"),
				Count:  integer(m, "count", "qty", "quantity"),
				Amount: amount(m, "amount", "total", "value"),
			})
		}
		p.Groups = append(p.Groups, group)
	}
	return p
}

// NormalizeInvoice reconciles a backend invoice response.
func NormalizeInvoice(raw map[string]any, loc *time.Location) Invoice {
	inv := Invoice{
		ID:      str(raw, "id", "invoiceId"),
		Number:  str(raw, "invoiceNo", "invoiceNumber", "number"),
		Date:    when(raw, loc, "date", "invoiceDate", "createdAt"),
		DueDate: when(raw, loc, "dueDate"),
		Notes:   str(raw, "notes", "remarks", "note"),
	}
	customer := object(raw, "customer", "party")
	if customer == nil {
		customer = map[string]any{}
	}
	inv.Customer = Party{
		Name:    firstString(str(customer, "name", "customerName"), str(raw, "customerName", "partyName")),
		TRN:     firstString(str(customer, "trn", "taxNumber", "vatNumber"), str(raw, "customerTrn")),
		Address: firstString(str(customer, "address", "billingAddress"), str(raw, "customerAddress")),
		Phone:   firstString(str(customer, "phone", "mobile"), str(raw, "customerPhone")),
	}
	inv.Items = items(raw)
	inv.Subtotal = amount(raw, "subtotal", "subTotal", "taxableAmount")
	inv.Discount = amount(raw, "discount", "discountTotal")
	inv.VAT = amount(raw, "vat", "vatAmount", "taxAmount", "tax")
	inv.Total = amount(raw, "total", "grandTotal", "totalAmount", "amount")
	if inv.Subtotal.IsZero() {
		for _, it := range inv.Items {
			inv.Subtotal = inv.Subtotal.Add(it.Amount)
		}
	}
	if inv.Total.IsZero() {
		inv.Total = inv.Subtotal.Sub(inv.Discount).Add(inv.VAT)
	}
	return inv
}

// NormalizeReceipt reconciles a backend sale response into a receipt payload.
func NormalizeReceipt(store Store, raw map[string]any, loc *time.Location) Payload {
	inv := NormalizeInvoice(raw, loc)
	p := Payload{
		Store: store,
		Meta: Meta{
			Title:    str(raw, "title"),
			Number:   inv.Number,
			Date:     inv.Date,
			Cashier:  str(raw, "cashier", "cashierName", "user.name"),
			Terminal: str(raw, "terminal", "terminalId"),
			Customer: inv.Customer.Name,
			Footer:   firstString(str(raw, "footer"), "Thank you for shopping with us"),
		},
		Items: inv.Items,
		Sales: Sales{
			Count:    1,
			Gross:    inv.Subtotal,
			Discount: inv.Discount,
			VAT:      inv.VAT,
			Total:    inv.Total,
			Paid:     amount(raw, "paid", "paidAmount", "tendered"),
			Change:   amount(raw, "change", "changeDue", "balanceReturned"),
		},
	}
	p.Sales.Net = p.Sales.Gross.Sub(p.Sales.Discount)
	for _, m := range list(raw, "payments", "tenders") {
		p.Pay = append(p.Pay, Line{
			Label:  str(m, "method", "name", "type"),
			Amount: amount(m, "amount", "value"),
		})
	}
	if len(p.Pay) == 0 && !p.Sales.Paid.IsZero() {
		p.Pay = []Line{{Label: firstString(str(raw, "paymentMethod", "paymentMode"), "Paid"), Amount: p.Sales.Paid}}
	}
	return p
}

func items(raw map[string]any) []Item {
	var out []Item
	for _, m := range list(raw, "items", "lines", "invoiceItems", "products") {
		it := Item{
			Code:     str(m, "code", "sku", "productCode", "product.code"),
			Name:     str(m, "name", "productName", "description", "product.name"),
			Qty:      amount(m, "qty", "quantity"),
			Price:    amount(m, "price", "unitPrice", "rate"),
			Discount: amount(m, "discount"),
			VAT:      amount(m, "vat", "vatAmount", "taxAmount"),
			Amount:   amount(m, "amount", "total", "lineTotal"),
		}
		if it.Qty.IsZero() {
			it.Qty = one
		}
		if it.Amount.IsZero() {
			it.Amount = it.Price.Mul(it.Qty).Sub(it.Discount)
		}
		out = append(out, it)
	}
	return out
}

func pick(raw map[string]any, keys ...string) (any, bool) {
	if raw == nil || len(keys) == 0 {
		return nil, false
	}
	a := report.Adapter{Aliases: map[string][]string{keys[0]: keys[1:]}}
	return a.Field(raw, keys[0])
}

func str(raw map[string]any, keys ...string) string {
	v, ok := pick(raw, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return str(t, "name", "label", "code", "id")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func amount(raw map[string]any, keys ...string) decimal.Decimal {
	v, ok := pick(raw, keys...)
	if !ok {
		return decimal.Zero
	}
	d, _ := format.ParseMoney(v)
	return d
}

func integer(raw map[string]any, keys ...string) int {
	v, ok := pick(raw, keys...)
	if !ok {
		return 0
	}
	if d, ok := format.ParseMoney(v); ok {
		return int(d.IntPart())
	}
	if n, err := strconv.Atoi(fmt.Sprint(v)); err == nil {
		return n
	}
	return 0
}

func when(raw map[string]any, loc *time.Location, keys ...string) time.Time {
	v, ok := pick(raw, keys...)
	if !ok {
		return time.Time{}
	}
	t, _ := format.ParseDate(v, loc)
	return t
}

func object(raw map[string]any, keys ...string) map[string]any {
	v, ok := pick(raw, keys...)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// list reads an array of objects. A plain object of label to amount is
// accepted too and returned as {label, amount} entries in key order.
func list(raw map[string]any, keys ...string) []map[string]any {
	v, ok := pick(raw, keys...)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return t
	case map[string]any:
		labels := make([]string, 0, len(t))
		for k := range t {
			labels = append(labels, k)
		}
		sort.Strings(labels)
		out := make([]map[string]any, 0, len(t))
		for _, k := range labels {
			if m, ok := t[k].(map[string]any); ok {
				entry := map[string]any{"label": k, "name": k}
				for mk, mv := range m {
					entry[mk] = mv
				}
				out = append(out, entry)
				continue
			}
			out = append(out, map[string]any{"label": k, "name": k, "method": k, "amount": t[k]})
		}
		return out
	default:
		return nil
	}
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
