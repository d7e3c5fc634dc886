package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hanpama/viewexec/internal/query"
)

// GlobalTable holds handlers that are not bound to a data table: areas,
// the row counter, math expressions and random sorting.
const GlobalTable = "views"

// BaseInfo is present on tables a view can be based on.
type BaseInfo struct {
	Field    string `yaml:"field"`
	Title    string `yaml:"title,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// JoinInfo joins a table to a left table.
type JoinInfo struct {
	LeftField string `yaml:"left_field"`
	Field     string `yaml:"field"`
	Type      string `yaml:"type,omitempty"`
}

// HandlerInfo selects the plugin serving a field for one handler type.
type HandlerInfo struct {
	Plugin            string         `yaml:"plugin,omitempty"`
	Base              string         `yaml:"base,omitempty"`
	BaseField         string         `yaml:"base_field,omitempty"`
	RelationshipField string         `yaml:"relationship_field,omitempty"`
	Extra             map[string]any `yaml:"extra,omitempty"`
}

// FieldInfo describes one column and the handler types it supports,
// keyed "field", "filter", "sort", "argument", "relationship" or "area".
type FieldInfo struct {
	Title      string                  `yaml:"title,omitempty"`
	RealField  string                  `yaml:"real_field,omitempty"`
	Permission string                  `yaml:"permission,omitempty"`
	Handlers   map[string]*HandlerInfo `yaml:",inline"`
}

// Table is the metadata of one data-source table.
type Table struct {
	Name   string               `yaml:"-"`
	Base   *BaseInfo            `yaml:"base,omitempty"`
	Joins  map[string]JoinInfo  `yaml:"joins,omitempty"`
	Fields map[string]FieldInfo `yaml:"fields"`
}

// Schema is the data-source metadata provider.
type Schema struct {
	tables map[string]*Table
}

// NewSchema indexes tables by name and adds the global table.
func NewSchema(tables ...*Table) *Schema {
	s := &Schema{tables: map[string]*Table{GlobalTable: globalTable()}}
	for _, t := range tables {
		s.tables[t.Name] = t
	}
	return s
}

// LoadSchema reads a YAML document of the form {tables: {name: Table}}.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(data)
}

func ParseSchema(data []byte) (*Schema, error) {
	var doc struct {
		Tables map[string]*Table `yaml:"tables"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	tables := make([]*Table, 0, len(doc.Tables))
	for name, t := range doc.Tables {
		if t == nil {
			return nil, fmt.Errorf("parse schema: table %q is empty", name)
		}
		t.Name = name
		tables = append(tables, t)
	}
	return NewSchema(tables...), nil
}

func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// TableNames lists known tables, sorted.
func (s *Schema) TableNames() []string {
	out := make([]string, 0, len(s.tables))
	for n := range s.tables {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// BaseInfo returns the base field of a base table.
func (s *Schema) BaseInfo(table string) (BaseInfo, bool) {
	t, ok := s.tables[table]
	if !ok || t.Base == nil {
		return BaseInfo{}, false
	}
	return *t.Base, true
}

// JoinFor implements query.JoinResolver.
func (s *Schema) JoinFor(table, left string) (query.Join, bool) {
	t, ok := s.tables[table]
	if !ok {
		return query.Join{}, false
	}
	j, ok := t.Joins[left]
	if !ok {
		return query.Join{}, false
	}
	return query.Join{Table: table, LeftTable: left, LeftField: j.LeftField, Field: j.Field, Type: j.Type}, true
}

func globalTable() *Table {
	return &Table{
		Name: GlobalTable,
		Fields: map[string]FieldInfo{
			"area":       {Title: "Global: Text area", Handlers: map[string]*HandlerInfo{"area": {Plugin: "text"}}},
			"result":     {Title: "Global: Result summary", Handlers: map[string]*HandlerInfo{"area": {Plugin: "result"}}},
			"counter":    {Title: "Global: View result counter", Handlers: map[string]*HandlerInfo{"field": {Plugin: "counter"}}},
			"expression": {Title: "Global: Math expression", Handlers: map[string]*HandlerInfo{"field": {Plugin: "math"}}},
			"random":     {Title: "Global: Random", Handlers: map[string]*HandlerInfo{"sort": {Plugin: "random"}}},
		},
	}
}
