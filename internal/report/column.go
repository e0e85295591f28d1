// Package report holds the column and row model shared by every sink: the
// on-screen table, the spreadsheet export and the print builders all format
// cells through the same Formatter so their values never diverge.
package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/posdesk/internal/format"
)

// DisplayEmpty is shown on screen and in print for missing values. Exports
// use an empty string instead.
const DisplayEmpty = "-"

// Align is the horizontal alignment of a column.
type Align string

const (
	AlignLeft   Align = "left"
	AlignRight  Align = "right"
	AlignCenter Align = "center"
)

// Column describes how one column is rendered, exported and printed.
type Column struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
	Align Align  `yaml:"align,omitempty" json:"align,omitempty"`
	Money bool   `yaml:"money,omitempty" json:"money,omitempty"`
	Date  bool   `yaml:"date,omitempty" json:"date,omitempty"`
}

// Alignment returns the effective alignment; money columns default right.
func (c Column) Alignment() Align {
	if c.Align != "" {
		return c.Align
	}
	if c.Money {
		return AlignRight
	}
	return AlignLeft
}

// Columns is an ordered column set.
type Columns []Column

// Labels returns the header labels in order.
func (cs Columns) Labels() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Label
	}
	return out
}

// Find returns the column with key.
func (cs Columns) Find(key string) (Column, bool) {
	for _, c := range cs {
		if strings.EqualFold(c.Key, key) {
			return c, true
		}
	}
	return Column{}, false
}

// MoneyKeys returns the keys of money columns.
func (cs Columns) MoneyKeys() []string {
	var keys []string
	for _, c := range cs {
		if c.Money {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// Row is a canonical report row keyed by column key.
type Row map[string]any

// Formatter renders cell values. The same instance must feed every sink.
type Formatter struct {
	Money    format.Money
	Location *time.Location
}

// NewFormatter builds a formatter for a currency and time zone.
func NewFormatter(money format.Money, loc *time.Location) Formatter {
	if loc == nil {
		loc = time.Local
	}
	return Formatter{Money: money, Location: loc}
}

// Value formats the cell for col. ok is false when the row has no value.
func (f Formatter) Value(col Column, row Row) (string, bool) {
	raw, present := row[col.Key]
	if !present || raw == nil {
		return "", false
	}
	switch {
	case col.Money:
		if s, ok := f.Money.FormatAny(raw); ok {
			return s, true
		}
	case col.Date:
		if s, ok := format.NormalizeDate(raw, f.Location); ok {
			return s, true
		}
	}
	s := stringify(raw)
	if s == "" {
		return "", false
	}
	return s, true
}

// Display formats the cell for the on-screen table and print output.
func (f Formatter) Display(col Column, row Row) string {
	if s, ok := f.Value(col, row); ok {
		return s
	}
	return DisplayEmpty
}

// Export formats the cell for spreadsheet output.
func (f Formatter) Export(col Column, row Row) string {
	s, _ := f.Value(col, row)
	return s
}

// DisplayRow formats every column of row for display.
func (f Formatter) DisplayRow(cols Columns, row Row) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = f.Display(c, row)
	}
	return out
}

// ExportRow formats every column of row for export.
func (f Formatter) ExportRow(cols Columns, row Row) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = f.Export(c, row)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case map[string]any:
		for _, key := range []string{"name", "label", "title", "code", "id"} {
			if inner, ok := t[key]; ok {
				return stringify(inner)
			}
		}
		return ""
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Print formats the cell for print output. It matches Display.
func (f Formatter) Print(col Column, row Row) string {
	return f.Display(col, row)
}
