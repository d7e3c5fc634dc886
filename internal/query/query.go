// Package query defines the query-builder capability handlers contribute to
// and a reference implementation that renders SQL for database/sql.
//
// Handlers never own the builder. During a build each handler's Query hook
// adds joins, conditions, sort terms or groupings; the executor then calls
// Build once and Execute once.
package query

import (
	"context"
	"errors"
)

var (
	// ErrUnknownField is returned by Build when a condition, sort or
	// grouping references a table alias that was never added.
	ErrUnknownField = errors.New("unknown field")
	// ErrNoJoin is returned when a table cannot be joined to its left side.
	ErrNoJoin = errors.New("no join path")
	// ErrNotBuilt is returned by Execute before Build succeeded.
	ErrNotBuilt = errors.New("query not built")
)

// Operator combines conditions or condition groups.
type Operator string

const (
	And Operator = "AND"
	Or  Operator = "OR"
)

// ParseOperator returns Or for "or" (any case) and And otherwise.
func ParseOperator(s string) Operator {
	if s == "OR" || s == "or" || s == "Or" {
		return Or
	}
	return And
}

// Join describes how Table is attached to the table aliased LeftTable.
type Join struct {
	Table     string
	LeftTable string
	LeftField string
	Field     string
	// Type is "LEFT" or "INNER". Empty means LEFT.
	Type string
}

// JoinResolver supplies the default join between two tables. It is
// consulted when a handler asks for a table that is not the base table.
type JoinResolver interface {
	JoinFor(table, leftTable string) (Join, bool)
}

// Condition is one comparison. Field is "alias.column".
type Condition struct {
	Field    string
	Operator string
	Value    any
}

// Builder is the capability shared by all handlers of one build.
type Builder interface {
	BaseTable() string
	BaseField() string

	// EnsureTable makes table available through relationship (the base
	// table when empty) and returns its alias.
	EnsureTable(table, relationship string) (string, error)
	// AddRelationship registers join under alias and returns the alias.
	AddRelationship(alias string, join Join) string
	// AddField selects alias.field and returns the result column name.
	// An empty name is derived from table and field.
	AddField(tableAlias, field, name string) string
	// AddAggregate selects fn(tableAlias.field) as name.
	AddAggregate(fn, tableAlias, field, name string) string
	ClearFields()

	SetGroupOperator(op Operator)
	SetWhereGroup(op Operator, group int)
	AddCondition(group int, c Condition)
	AddWhereExpression(group int, snippet string, args ...any)

	// AddOrderBy sorts by tableAlias.field. An empty tableAlias with field
	// "RANDOM" orders randomly.
	AddOrderBy(tableAlias, field, direction string)
	AddGroupBy(field string)
	SetLimitOffset(limit, offset int)
	// SetCountQuery asks Execute to also fill Result.Total.
	SetCountQuery(enabled bool)

	Build() (*Built, error)
	Execute(ctx context.Context, res *Result) error
}

// Built is the finalized, opaque query.
type Built struct {
	SQL       string
	Args      []any
	CountSQL  string
	CountArgs []any
}

// Signature identifies the built query for cache keys.
func (b *Built) Signature() string {
	if b == nil {
		return ""
	}
	return b.SQL + "\x00" + formatArgs(b.Args)
}

// Row is one result record. Index is the position inside the result set;
// backends may fill it with their own key, the executor renumbers it.
type Row struct {
	Index  int
	Values map[string]any
}

// Value returns the named column.
func (r *Row) Value(name string) any {
	if r == nil {
		return nil
	}
	return r.Values[name]
}

// Result is the container Execute fills.
type Result struct {
	Rows  []*Row
	Total int
}

// Renumber makes row indices the contiguous range [0, n).
func (r *Result) Renumber() {
	for i, row := range r.Rows {
		row.Index = i
	}
}
