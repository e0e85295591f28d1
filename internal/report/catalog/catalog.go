// Package catalog loads the report definitions shared by every report screen.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/posdesk/internal/report"
)

// EmptyMessage is shown when a report has no rows for the active filters.
const EmptyMessage = "No data for selected filters"

// ErrUnknownReport is returned for names missing from the catalog.
var ErrUnknownReport = errors.New("catalog: unknown report")

//go:embed catalog.yaml
var embedded []byte

// Definition describes one report screen.
type Definition struct {
	Name        string              `yaml:"name" json:"name"`
	Title       string              `yaml:"title" json:"title"`
	File        string              `yaml:"file" json:"file"`
	Endpoint    string              `yaml:"endpoint" json:"endpoint"`
	PDF         string              `yaml:"pdf" json:"pdf,omitempty"`
	GroupBy     []string            `yaml:"groupBy" json:"groupBy,omitempty"`
	DefaultSort string              `yaml:"defaultSort" json:"defaultSort,omitempty"`
	DayReport   bool                `yaml:"dayReport" json:"dayReport,omitempty"`
	Empty       string              `yaml:"empty" json:"empty"`
	Columns     report.Columns      `yaml:"columns" json:"columns"`
	Aliases     map[string][]string `yaml:"aliases" json:"-"`
	Totals      []string            `yaml:"totals" json:"totals,omitempty"`
}

// Adapter returns the row adapter for the definition's endpoint.
func (d Definition) Adapter() report.Adapter {
	keys := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		keys = append(keys, c.Key)
	}
	return report.Adapter{Aliases: d.Aliases, Keys: keys}
}

// SortColumn returns the column to sort by, falling back to the default.
func (d Definition) SortColumn(key string) (report.Column, bool) {
	if key != "" {
		if c, ok := d.Columns.Find(key); ok {
			return c, true
		}
	}
	if d.DefaultSort == "" {
		return report.Column{}, false
	}
	return d.Columns.Find(d.DefaultSort)
}

// AllowsGroupBy reports whether g is a valid group-by key. Empty is always valid.
func (d Definition) AllowsGroupBy(g string) bool {
	if g == "" {
		return true
	}
	for _, allowed := range d.GroupBy {
		if strings.EqualFold(allowed, g) {
			return true
		}
	}
	return false
}

// Catalog is an immutable set of report definitions.
type Catalog struct {
	byName map[string]Definition
	order  []string
}

type document struct {
	Reports []Definition `yaml:"reports"`
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// Parse reads a catalog document and checks every definition.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c := &Catalog{byName: make(map[string]Definition, len(doc.Reports))}
	for _, def := range doc.Reports {
		if err := check(def); err != nil {
			return nil, err
		}
		if _, dup := c.byName[def.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate report %q", def.Name)
		}
		if def.Empty == "" {
			def.Empty = EmptyMessage
		}
		if def.File == "" {
			def.File = def.Name
		}
		c.byName[def.Name] = def
		c.order = append(c.order, def.Name)
	}
	return c, nil
}

func check(def Definition) error {
	if def.Name == "" || def.Endpoint == "" {
		return fmt.Errorf("catalog: report %q needs name and endpoint", def.Name)
	}
	if len(def.Columns) == 0 {
		return fmt.Errorf("catalog: report %q has no columns", def.Name)
	}
	seen := map[string]bool{}
	for _, col := range def.Columns {
		if col.Key == "" || col.Label == "" {
			return fmt.Errorf("catalog: report %q has a column without key or label", def.Name)
		}
		if seen[col.Key] {
			return fmt.Errorf("catalog: report %q repeats column %q", def.Name, col.Key)
		}
		seen[col.Key] = true
	}
	for _, key := range def.Totals {
		col, ok := def.Columns.Find(key)
		if !ok || !col.Money {
			return fmt.Errorf("catalog: report %q totals %q is not a money column", def.Name, key)
		}
	}
	if def.DefaultSort != "" && !seen[def.DefaultSort] {
		return fmt.Errorf("catalog: report %q sorts by unknown column %q", def.Name, def.DefaultSort)
	}
	return nil
}

// Get returns the definition for name.
func (c *Catalog) Get(name string) (Definition, error) {
	def, ok := c.byName[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownReport, name)
	}
	return def, nil
}

// List returns definitions in catalog order.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// Names returns the report names sorted alphabetically.
func (c *Catalog) Names() []string {
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	return names
}
