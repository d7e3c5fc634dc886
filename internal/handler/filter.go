package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/viewexec/internal/options"
	"github.com/hanpama/viewexec/internal/query"
)

// ErrRequiredInput is returned by ValidateExposed when a required exposed
// filter received no value.
var ErrRequiredInput = errors.New("required exposed input missing")

// FilterHandler is the string filter. Numeric, boolean and in_operator
// filters embed it and change how the condition is formed.
type FilterHandler struct {
	Base

	// value is the configured value, replaced by accepted exposed input.
	value any
}

func NewStringFilter() *FilterHandler { return &FilterHandler{} }

func (f *FilterHandler) DefineOptions() options.Schema {
	return f.Base.DefineOptions().Merge(options.Schema{
		"operator": options.Leaf("="),
		"value":    options.Leaf(""),
		"group":    options.Leaf(1),
		"exposed":  options.Leaf(false),
		"expose": options.Nested(options.Schema{
			"identifier": options.Leaf(""),
			"label":      options.Leaf(""),
			"required":   options.Leaf(false),
			"remember":   options.Leaf(false),
		}),
	})
}

func (f *FilterHandler) prepare() {
	f.value, _ = f.opts.Get("value")
}

// Value is the value the condition is built from.
func (f *FilterHandler) Value() any { return f.value }

// Group is the where group the condition goes to.
func (f *FilterHandler) Group() int { return f.opts.Int("group") }

func (f *FilterHandler) IsExposed() bool { return f.opts.Bool("exposed") }

func (f *FilterHandler) Identifier() string {
	if id := f.opts.String("expose", "identifier"); id != "" {
		return id
	}
	return f.id
}

// Remember reports whether accepted input is kept in the session.
func (f *FilterHandler) Remember() bool { return f.opts.Bool("expose", "remember") }

func (f *FilterHandler) ValidateExposed(input map[string]string) error {
	if !f.IsExposed() || !f.opts.Bool("expose", "required") {
		return nil
	}
	if v := strings.TrimSpace(input[f.Identifier()]); v == "" || v == "All" {
		return fmt.Errorf("%w: %s", ErrRequiredInput, f.Identifier())
	}
	return nil
}

// AcceptExposedInput takes the input value. An absent value or "All" means
// the filter is skipped for this build.
func (f *FilterHandler) AcceptExposedInput(input map[string]string) bool {
	if !f.IsExposed() {
		return true
	}
	v, ok := input[f.Identifier()]
	if !ok || v == "" || v == "All" {
		return false
	}
	f.value = v
	return true
}

func (f *FilterHandler) Query(q query.Builder, _ bool) error {
	alias, err := f.EnsureMyTable(q)
	if err != nil {
		return err
	}
	field := alias + "." + f.RealField()
	v := toString(f.value)
	switch op := f.opts.String("operator"); op {
	case "contains":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: "LIKE", Value: "%" + escapeLike(v) + "%"})
	case "starts":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: "LIKE", Value: escapeLike(v) + "%"})
	case "ends":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: "LIKE", Value: "%" + escapeLike(v)})
	case "not":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: "NOT LIKE", Value: "%" + escapeLike(v) + "%"})
	case "empty":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: "IS NULL"})
	case "not empty":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: "IS NOT NULL"})
	case "=", "!=", "<>":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: op, Value: v})
	default:
		return fmt.Errorf("filter %s: unsupported operator %q", f.id, op)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("%", `\%`, "_", `\_`).Replace(s)
}

// NumericFilter compares numbers, including ranges.
//
// For between and not between the value is a map with min and max.
type NumericFilter struct {
	FilterHandler
}

func NewNumericFilter() *NumericFilter { return &NumericFilter{} }

func (f *NumericFilter) Query(q query.Builder, _ bool) error {
	alias, err := f.EnsureMyTable(q)
	if err != nil {
		return err
	}
	field := alias + "." + f.RealField()
	op := f.opts.String("operator")
	switch op {
	case "between", "not between":
		vals := options.Values{}
		if m, ok := f.value.(map[string]any); ok {
			vals = options.Values(m)
		}
		lo, _ := toFloat(vals["min"])
		hi, _ := toFloat(vals["max"])
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: strings.ToUpper(op), Value: []any{lo, hi}})
		return nil
	case "empty":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: "IS NULL"})
		return nil
	case "not empty":
		q.AddCondition(f.Group(), query.Condition{Field: field, Operator: "IS NOT NULL"})
		return nil
	case "=", "!=", "<>", "<", "<=", ">", ">=":
	default:
		return fmt.Errorf("filter %s: unsupported operator %q", f.id, op)
	}
	n, ok := toFloat(f.value)
	if !ok {
		return fmt.Errorf("filter %s: %q is not a number", f.id, toString(f.value))
	}
	q.AddCondition(f.Group(), query.Condition{Field: field, Operator: op, Value: n})
	return nil
}

// BooleanFilter matches a flag column against 1 or 0.
type BooleanFilter struct {
	FilterHandler
}

func NewBooleanFilter() *BooleanFilter { return &BooleanFilter{} }

func (f *BooleanFilter) Query(q query.Builder, _ bool) error {
	alias, err := f.EnsureMyTable(q)
	if err != nil {
		return err
	}
	want := 0
	if options.Truthy(f.value) {
		want = 1
	}
	op := "="
	if f.opts.String("operator") == "!=" {
		op = "<>"
	}
	q.AddCondition(f.Group(), query.Condition{Field: alias + "." + f.RealField(), Operator: op, Value: want})
	return nil
}

// InOperatorFilter matches against a list. A map value selects its keys
// with truthy values.
type InOperatorFilter struct {
	FilterHandler
}

func NewInOperatorFilter() *InOperatorFilter { return &InOperatorFilter{} }

func (f *InOperatorFilter) DefineOptions() options.Schema {
	return f.FilterHandler.DefineOptions().Merge(options.Schema{
		"operator": options.Leaf("in"),
		"value":    options.Leaf([]any{}),
	})
}

// AcceptExposedInput splits comma separated input into the value list.
func (f *InOperatorFilter) AcceptExposedInput(input map[string]string) bool {
	if !f.FilterHandler.AcceptExposedInput(input) {
		return false
	}
	var vals []any
	for _, p := range strings.Split(toString(f.value), ",") {
		if p = strings.TrimSpace(p); p != "" {
			vals = append(vals, p)
		}
	}
	f.value = vals
	return len(vals) > 0
}

func (f *InOperatorFilter) Query(q query.Builder, _ bool) error {
	alias, err := f.EnsureMyTable(q)
	if err != nil {
		return err
	}
	vals := options.Values{"v": f.value}.Strings("v")
	list := make([]any, len(vals))
	for i, v := range vals {
		list[i] = v
	}
	op := "IN"
	if strings.EqualFold(f.opts.String("operator"), "not in") {
		op = "NOT IN"
	}
	q.AddCondition(f.Group(), query.Condition{Field: alias + "." + f.RealField(), Operator: op, Value: list})
	return nil
}
