package report

import (
	"strings"
)

// Adapter reconciles the backend's inconsistent field names into canonical
// row keys. It runs once per response so render, export and print only ever
// see canonical keys.
type Adapter struct {
	// Aliases maps a canonical key to candidate source keys, tried in order
	// after the canonical key itself. Dotted paths reach into nested objects.
	Aliases map[string][]string
	// Keys lists canonical keys to resolve even when they have no aliases.
	Keys []string
}

// Adapt builds a canonical row from raw.
func (a Adapter) Adapt(raw map[string]any) Row {
	row := Row{}
	for key, value := range raw {
		row[key] = value
	}
	for _, key := range a.keys() {
		if v, ok := a.lookup(raw, key); ok {
			row[key] = v
		}
	}
	return row
}

// AdaptAll adapts every raw row.
func (a Adapter) AdaptAll(raws []map[string]any) []Row {
	rows := make([]Row, 0, len(raws))
	for _, raw := range raws {
		rows = append(rows, a.Adapt(raw))
	}
	return rows
}

// Field resolves a single canonical key on raw.
func (a Adapter) Field(raw map[string]any, key string) (any, bool) {
	return a.lookup(raw, key)
}

func (a Adapter) keys() []string {
	seen := make(map[string]struct{}, len(a.Keys)+len(a.Aliases))
	var out []string
	for _, k := range a.Keys {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for k := range a.Aliases {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func (a Adapter) lookup(raw map[string]any, key string) (any, bool) {
	candidates := append([]string{key}, a.Aliases[key]...)
	for _, candidate := range candidates {
		if v, ok := path(raw, candidate); ok && present(v) {
			return v, true
		}
	}
	return nil, false
}

func path(raw map[string]any, dotted string) (any, bool) {
	parts := strings.Split(dotted, ".")
	var current any = raw
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}
