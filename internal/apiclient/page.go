package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Page is a list response. Paged is false when the backend returned a bare
// array, in which case paging is left to the caller.
type Page struct {
	Content       []map[string]any
	TotalPages    int
	TotalElements int64
	Totals        map[string]any
	Object        map[string]any
	Paged         bool
}

var contentKeys = []string{"content", "rows", "data", "items"}

// DecodePage accepts `{content,totalPages,totalElements}` envelopes (with
// rows/data/items as alternate list keys and an optional totals object) or a
// raw array. A single object without any list key is kept in Object.
func DecodePage(data []byte) (Page, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Page{}, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	if trimmed[0] == '[' {
		var rows []map[string]any
		if err := decoder.Decode(&rows); err != nil {
			return Page{}, fmt.Errorf("apiclient: decode array: %w", err)
		}
		return Page{Content: rows, TotalPages: 1, TotalElements: int64(len(rows))}, nil
	}

	var envelope map[string]any
	if err := decoder.Decode(&envelope); err != nil {
		return Page{}, fmt.Errorf("apiclient: decode envelope: %w", err)
	}
	page := Page{}
	found := false
	for _, key := range contentKeys {
		list, ok := envelope[key].([]any)
		if !ok {
			continue
		}
		found = true
		page.Content = make([]map[string]any, 0, len(list))
		for _, item := range list {
			if row, ok := item.(map[string]any); ok {
				page.Content = append(page.Content, row)
			}
		}
		break
	}
	if !found {
		page.Object = envelope
		return page, nil
	}
	if totals, ok := envelope["totals"].(map[string]any); ok {
		page.Totals = totals
	}
	totalPages, hasPages := intField(envelope["totalPages"])
	totalElements, hasElements := intField(envelope["totalElements"])
	page.Paged = hasPages || hasElements
	page.TotalPages = int(totalPages)
	page.TotalElements = totalElements
	if !hasElements {
		page.TotalElements = int64(len(page.Content))
	}
	if !hasPages && len(page.Content) > 0 {
		page.TotalPages = 1
	}
	return page, nil
}

func intField(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
