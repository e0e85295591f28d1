// Package printdoc builds self-contained HTML print documents: thermal
// receipts, A4 tax invoices, report tables and Day/Z summaries.
//
// Builders are pure. The store profile and every formatting dependency are
// passed in, and money and dates go through the same report.Formatter used
// by the on-screen table and the spreadsheet export.
package printdoc

import (
	"fmt"
	"html/template"
	"strings"
)

// Layout selects the page geometry of a document.
type Layout string

const (
	Thermal80 Layout = "thermal80"
	Thermal58 Layout = "thermal58"
	A4        Layout = "a4"
)

// ParseLayout accepts the layout names used by terminals and query strings.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "thermal80", "80mm", "80", "thermal":
		return Thermal80, nil
	case "thermal58", "58mm", "58":
		return Thermal58, nil
	case "a4", "":
		return A4, nil
	default:
		return "", fmt.Errorf("printdoc: unknown layout %q", s)
	}
}

// Thermal reports whether the layout targets a roll printer.
func (l Layout) Thermal() bool {
	return l == Thermal80 || l == Thermal58
}

// Paper returns the paper size in inches. Roll layouts report the A4 height
// as an upper bound; the @page rule trims the sheet to its content.
func (l Layout) Paper() (width, height float64) {
	switch l {
	case Thermal80:
		return 3.15, 11.69
	case Thermal58:
		return 2.28, 11.69
	default:
		return 8.27, 11.69
	}
}

// Columns returns the character width of a roll printer line.
func (l Layout) Columns() int {
	switch l {
	case Thermal58:
		return 32
	case Thermal80:
		return 48
	default:
		return 96
	}
}

const baseCSS = `*{box-sizing:border-box}` +
	`table{width:100%;border-collapse:collapse}` +
	`th,td{padding:2px 4px;vertical-align:top}` +
	`h1{font-size:1.3em;margin:6px 0;text-align:center}` +
	`.left{text-align:left}.right{text-align:right}.center{text-align:center}` +
	`.strong,.store-name{font-weight:bold}.muted{color:#555;font-size:.9em}` +
	`.printed{font-size:.8em;color:#555;margin-top:8px}` +
	`.no-data td{font-style:italic;padding:8px}`

var pageCSS = map[Layout]string{
	Thermal80: `@page{size:80mm auto;margin:2mm}` +
		`body{width:76mm;margin:0;font-family:"Courier New",monospace;font-size:12px}` +
		`hr{border:0;border-top:1px dashed #000}`,
	Thermal58: `@page{size:58mm auto;margin:1mm}` +
		`body{width:56mm;margin:0;font-family:"Courier New",monospace;font-size:10px}` +
		`hr{border:0;border-top:1px dashed #000}`,
	A4: `@page{size:A4;margin:12mm}` +
		`body{margin:0;font-family:Arial,Helvetica,sans-serif;font-size:12px;color:#111}` +
		`table.report th{background:#f0f0f0;border-bottom:1px solid #999}` +
		`table.report td{border-bottom:1px solid #e2e2e2}` +
		`table.report tfoot td{border-top:2px solid #333}` +
		`.qr{width:120px;height:120px}.totals{width:45%;margin-left:auto}`,
}

// CSS returns the stylesheet for the layout.
func (l Layout) CSS() template.CSS {
	css, ok := pageCSS[l]
	if !ok {
		css = pageCSS[A4]
	}
	return template.CSS(baseCSS + css)
}

// Kind names the document type. It doubles as the download file prefix.
type Kind string

const (
	KindReceipt   Kind = "Receipt"
	KindInvoice   Kind = "Invoice"
	KindReport    Kind = "Report"
	KindDayReport Kind = "ZReport"
	KindXReport   Kind = "XReport"
)

// Document is a complete HTML document. It is immutable once built.
type Document struct {
	Kind   Kind   `json:"kind"`
	Layout Layout `json:"layout"`
	Title  string `json:"title"`
	HTML   string `json:"html"`
}

// Bytes returns the document body.
func (d Document) Bytes() []byte {
	return []byte(d.HTML)
}

// Store is the seller block printed on every document.
type Store struct {
	Name    string `json:"name"`
	TRN     string `json:"trn"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// page carries the fields the shared head template reads.
type page struct {
	Title   string
	Layout  Layout
	PageCSS template.CSS
	Store   Store
	Printed string
}

// line is a label/value pair in a summary block.
type line struct {
	Label  string
	Text   string
	Strong bool
}

// cell is a table cell with its alignment class.
type cell struct {
	Text  string
	Class string
}
