// Package export writes the visible rows of a report screen to spreadsheet
// files. Cell values come from the same formatter as the on-screen table.
package export

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/posdesk/internal/platform/files"
	"github.com/odyssey-erp/posdesk/internal/report"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)

// Error is an export failure carrying a message fit for the user.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func failed(msg string, err error) *Error {
	return &Error{Message: msg, Err: err}
}

// Field is one label/value cell of an exported record.
type Field struct {
	Label string
	Value string
}

// Record is an ordered label to value mapping for one row.
type Record []Field

// Get returns the value under label.
func (r Record) Get(label string) (string, bool) {
	for _, f := range r {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// Records maps rows through the export formatter. Missing values are empty
// strings.
func Records(f report.Formatter, cols report.Columns, rows []report.Row) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[i] = Field{Label: col.Label, Value: f.Export(col, row)}
		}
		out = append(out, rec)
	}
	return out
}

// Filename returns <ReportName>_<from>_<to>[_<groupBy>].<ext>.
func Filename(reportName, from, to, groupBy, ext string) string {
	parts := []string{strings.ReplaceAll(strings.TrimSpace(reportName), " ", "")}
	for _, p := range []string{from, to, groupBy} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "xlsx"
	}
	return files.SafeName(fmt.Sprintf("%s.%s", strings.Join(parts, "_"), ext))
}
