package printdoc

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/posdesk/internal/format"
	"github.com/odyssey-erp/posdesk/internal/report"
	"github.com/odyssey-erp/posdesk/web"
)

// Builder renders print documents.
type Builder struct {
	formatter report.Formatter
	templates *template.Template
	now       func() time.Time
	qrSize    int
}

// NewBuilder parses the embedded print templates.
func NewBuilder(formatter report.Formatter) (*Builder, error) {
	tpl, err := template.New("print").ParseFS(web.Templates, "templates/print/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse print templates: %w", err)
	}
	return &Builder{
		formatter: formatter,
		templates: tpl,
		now:       time.Now,
		qrSize:    240,
	}, nil
}

// Formatter returns the formatter shared with the table and export sinks.
func (b *Builder) Formatter() report.Formatter {
	return b.formatter
}

func (b *Builder) page(title string, layout Layout, store Store) page {
	return page{
		Title:   title,
		Layout:  layout,
		PageCSS: layout.CSS(),
		Store:   store,
		Printed: b.now().In(b.location()).Format("2006-01-02 15:04"),
	}
}

func (b *Builder) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := b.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (b *Builder) money(d decimal.Decimal) string {
	return b.formatter.Money.Format(d)
}

func (b *Builder) date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return format.YMD(t, b.location())
}

func (b *Builder) dateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(b.location()).Format("2006-01-02 15:04")
}

func (b *Builder) location() *time.Location {
	if b.formatter.Location == nil {
		return time.Local
	}
	return b.formatter.Location
}

var one = decimal.NewFromInt(1)

func qty(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.String()
	}
	return d.Round(3).String()
}
