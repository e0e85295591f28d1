package spool

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mect/go-escpos"

	"github.com/odyssey-erp/posdesk/internal/format"
	"github.com/odyssey-erp/posdesk/internal/printdoc"
)

// ErrPrinterBusy is returned when another job holds the thermal printer.
var ErrPrinterBusy = errors.New("spool: printer is busy")

// Align mirrors the printer alignment without exposing the device package.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// ReceiptLine is one instruction of a raw thermal receipt.
type ReceiptLine struct {
	Text   string
	Align  Align
	Double bool
	QR     string
	Feed   int
}

// ReceiptLines lays a receipt payload out as fixed-width text for a roll
// printer. Amounts use the same money formatter as every other sink.
func ReceiptLines(p printdoc.Payload, money format.Money, width int, qr string) []ReceiptLine {
	if width <= 0 {
		width = printdoc.Thermal80.Columns()
	}
	var lines []ReceiptLine
	add := func(l ReceiptLine) { lines = append(lines, l) }

	if p.Store.Name != "" {
		add(ReceiptLine{Text: p.Store.Name, Align: AlignCenter, Double: true})
	}
	if p.Store.Address != "" {
		add(ReceiptLine{Text: p.Store.Address, Align: AlignCenter})
	}
	if p.Store.TRN != "" {
		add(ReceiptLine{Text: "TRN: " + p.Store.TRN, Align: AlignCenter})
	}
	title := p.Meta.Title
	if title == "" {
		title = "Tax Invoice"
	}
	add(ReceiptLine{Text: title, Align: AlignCenter})
	if p.Meta.Number != "" {
		add(ReceiptLine{Text: columns("Invoice", p.Meta.Number, width)})
	}
	if !p.Meta.Date.IsZero() {
		add(ReceiptLine{Text: columns("Date", p.Meta.Date.Format("2006-01-02 15:04"), width)})
	}
	if p.Meta.Cashier != "" {
		add(ReceiptLine{Text: columns("Cashier", p.Meta.Cashier, width)})
	}
	add(ReceiptLine{Text: strings.Repeat("-", width)})
	for _, it := range p.Items {
		add(ReceiptLine{Text: truncate(it.Name, width)})
		add(ReceiptLine{Text: columns("  "+it.Qty.String()+" x "+money.Number(it.Price), money.Number(it.Amount), width)})
	}
	add(ReceiptLine{Text: strings.Repeat("-", width)})
	add(ReceiptLine{Text: columns("Subtotal", money.Format(p.Sales.Gross), width)})
	if !p.Sales.Discount.IsZero() {
		add(ReceiptLine{Text: columns("Discount", money.Format(p.Sales.Discount.Neg()), width)})
	}
	add(ReceiptLine{Text: columns("VAT", money.Format(p.Sales.VAT), width)})
	add(ReceiptLine{Text: columns("TOTAL", money.Format(p.Sales.Total), width)})
	for _, pay := range p.Pay {
		add(ReceiptLine{Text: columns(pay.Label, money.Format(pay.Amount), width)})
	}
	if !p.Sales.Change.IsZero() {
		add(ReceiptLine{Text: columns("Change", money.Format(p.Sales.Change), width)})
	}
	if qr != "" {
		add(ReceiptLine{QR: qr, Align: AlignCenter})
	}
	if p.Meta.Footer != "" {
		add(ReceiptLine{Text: p.Meta.Footer, Align: AlignCenter})
	}
	add(ReceiptLine{Feed: 3})
	return lines
}

func columns(left, right string, width int) string {
	gap := width - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if gap < 1 {
		left = truncate(left, width-utf8.RuneCountInString(right)-1)
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ESCPOSPrinter writes raw receipts to a USB thermal printer. Only one job may
// use the device at a time.
type ESCPOSPrinter struct {
	mu      sync.Mutex
	printer *escpos.Printer
	qrSize  int
}

// OpenESCPOS opens the printer device at path.
func OpenESCPOS(path string) (*ESCPOSPrinter, error) {
	p, err := escpos.NewUSBPrinterByPath(path)
	if err != nil {
		return nil, fmt.Errorf("spool: open printer %q: %w", path, err)
	}
	p.Init()
	p.Smooth(true)
	return &ESCPOSPrinter{printer: p, qrSize: 6}, nil
}

// PrintLines sends lines to the device and cuts the paper. It fails fast with
// ErrPrinterBusy instead of queueing behind another job.
func (e *ESCPOSPrinter) PrintLines(lines []ReceiptLine) error {
	if !e.mu.TryLock() {
		return ErrPrinterBusy
	}
	defer e.mu.Unlock()

	p := e.printer
	for _, l := range lines {
		switch {
		case l.Feed > 0:
			p.Feed(l.Feed)
		case l.QR != "":
			p.Align(escpos.AlignCenter)
			p.QR(l.QR, e.qrSize)
		default:
			p.Font(escpos.FontA)
			p.Align(deviceAlign(l.Align))
			if l.Double {
				p.Size(2, 2)
			} else {
				p.Size(1, 1)
			}
			p.Underline(false)
			p.PrintLn(l.Text)
		}
	}
	p.Cut()
	return nil
}

func deviceAlign(a Align) escpos.Alignment {
	switch a {
	case AlignCenter:
		return escpos.AlignCenter
	case AlignRight:
		return escpos.AlignRight
	default:
		return escpos.AlignLeft
	}
}
