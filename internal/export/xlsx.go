package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/posdesk/internal/report"
)

const maxSheetName = 31

// WriteXLSX writes a single-sheet workbook with a bold, frozen header row and
// an autofilter. An empty row set yields the header row only.
func WriteXLSX(w io.Writer, sheet string, f report.Formatter, cols report.Columns, rows []report.Row) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failed("Could not build the spreadsheet", fmt.Errorf("panic: %v", r))
		}
	}()
	if len(cols) == 0 {
		return failed("Nothing to export", fmt.Errorf("no columns"))
	}
	sheet = sheetName(sheet)

	book := excelize.NewFile()
	defer func() { _ = book.Close() }()
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		return failed("Could not build the spreadsheet", err)
	}

	headerStyle, err := book.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return failed("Could not build the spreadsheet", err)
	}
	rightStyle, err := book.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Horizontal: "right"}})
	if err != nil {
		return failed("Could not build the spreadsheet", err)
	}

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := book.SetCellStr(sheet, cell, col.Label); err != nil {
			return failed("Could not build the spreadsheet", err)
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = book.SetColWidth(sheet, name, name, columnWidth(col))
	}
	lastCol, _ := excelize.ColumnNumberToName(len(cols))
	if err := book.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return failed("Could not build the spreadsheet", err)
	}

	for r, rec := range Records(f, cols, rows) {
		for c, field := range rec {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := book.SetCellStr(sheet, cell, field.Value); err != nil {
				return failed("Could not build the spreadsheet", err)
			}
		}
	}
	if len(rows) > 0 {
		for i, col := range cols {
			if col.Alignment() != report.AlignRight {
				continue
			}
			name, _ := excelize.ColumnNumberToName(i + 1)
			_ = book.SetCellStyle(sheet, fmt.Sprintf("%s2", name), fmt.Sprintf("%s%d", name, len(rows)+1), rightStyle)
		}
	}

	if err := book.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return failed("Could not build the spreadsheet", err)
	}
	if err := book.AutoFilter(sheet, fmt.Sprintf("A1:%s%d", lastCol, len(rows)+1), nil); err != nil {
		return failed("Could not build the spreadsheet", err)
	}
	if err := book.Write(w); err != nil {
		return failed("Could not save the spreadsheet", err)
	}
	return nil
}

func sheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return ' '
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		s = "Report"
	}
	if r := []rune(s); len(r) > maxSheetName {
		s = string(r[:maxSheetName])
	}
	return s
}

func columnWidth(col report.Column) float64 {
	switch {
	case col.Money:
		return 18
	case col.Date:
		return 12
	}
	w := float64(len(col.Label)) + 4
	if w < 14 {
		w = 14
	}
	return w
}
