package report

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/posdesk/internal/format"
)

// Totals maps a money column key to its sum.
type Totals map[string]decimal.Decimal

// Search keeps the rows whose displayed value in any column contains q,
// case-insensitively. Matching runs on display values so users find what they see.
func Search(rows []Row, cols Columns, f Formatter, q string) []Row {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		for _, col := range cols {
			if v, ok := f.Value(col, row); ok && strings.Contains(strings.ToLower(v), q) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// SortRows orders rows by col in place. Money columns compare numerically,
// date columns chronologically and everything else as case-insensitive text.
// Rows missing the value always sort last.
func SortRows(rows []Row, col Column, dir string, loc *time.Location) {
	desc := strings.EqualFold(dir, DirDesc)
	sort.SliceStable(rows, func(i, j int) bool {
		c, iMissing, jMissing := compare(col, rows[i], rows[j], loc)
		if iMissing || jMissing {
			return !iMissing && jMissing
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(col Column, a, b Row, loc *time.Location) (int, bool, bool) {
	av, bv := a[col.Key], b[col.Key]
	switch {
	case col.Money:
		ad, aok := format.ParseMoney(av)
		bd, bok := format.ParseMoney(bv)
		if !aok || !bok {
			return 0, !aok, !bok
		}
		return ad.Cmp(bd), false, false
	case col.Date:
		at, aok := format.ParseDate(av, loc)
		bt, bok := format.ParseDate(bv, loc)
		if !aok || !bok {
			return 0, !aok, !bok
		}
		return at.Compare(bt), false, false
	default:
		as, bs := stringify(av), stringify(bv)
		if av == nil || as == "" || bv == nil || bs == "" {
			return 0, av == nil || as == "", bv == nil || bs == ""
		}
		return strings.Compare(strings.ToLower(as), strings.ToLower(bs)), false, false
	}
}

// Sum adds the money values of keys across rows. Every key is present in the
// result, zero when no row carries a value.
func Sum(rows []Row, keys []string) Totals {
	totals := make(Totals, len(keys))
	for _, key := range keys {
		totals[key] = decimal.Zero
	}
	for _, row := range rows {
		for _, key := range keys {
			if d, ok := format.ParseMoney(row[key]); ok {
				totals[key] = totals[key].Add(d)
			}
		}
	}
	return totals
}

// TotalsFrom reads server-provided totals for keys through the adapter. ok is
// false when the server sent none of them.
func TotalsFrom(raw map[string]any, keys []string, a Adapter) (Totals, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	totals := make(Totals, len(keys))
	found := false
	for _, key := range keys {
		totals[key] = decimal.Zero
		v, ok := a.Field(raw, key)
		if !ok {
			continue
		}
		if d, ok := format.ParseMoney(v); ok {
			totals[key] = d
			found = true
		}
	}
	return totals, found
}
