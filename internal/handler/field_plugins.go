package handler

import (
	"context"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/hanpama/viewexec/internal/options"
	"github.com/hanpama/viewexec/internal/query"
)

// NumericField formats numbers with precision and separators.
type NumericField struct {
	FieldHandler
}

func NewNumericField() *NumericField { return &NumericField{} }

func (f *NumericField) DefineOptions() options.Schema {
	return f.FieldHandler.DefineOptions().Merge(options.Schema{
		"set_precision": options.Leaf(false),
		"precision":     options.Leaf(0),
		"decimal":       options.Leaf("."),
		"separator":     options.Leaf(","),
	})
}

func (f *NumericField) Render(row *query.Row) string {
	raw := f.self.(FieldRenderer).RawValue(row)
	if raw == nil {
		return ""
	}
	n, ok := toFloat(raw)
	if !ok {
		return html.EscapeString(toString(raw))
	}
	return f.format(n)
}

func (f *NumericField) format(n float64) string {
	prec := -1
	if f.opts.Bool("set_precision") {
		prec = f.opts.Int("precision")
	} else if n == math.Trunc(n) {
		prec = 0
	}
	return FormatNumber(n, prec, f.opts.String("decimal"), f.opts.String("separator"))
}

// FormatNumber renders n with prec decimals (-1 for as many as needed),
// grouping thousands with sep.
func FormatNumber(n float64, prec int, decimal, sep string) string {
	s := strconv.FormatFloat(math.Abs(n), 'f', prec, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if n < 0 {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(sep)
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteString(decimal)
		b.WriteString(frac)
	}
	return b.String()
}

// BooleanField renders a flag as a pair of words.
type BooleanField struct {
	FieldHandler
}

func NewBooleanField() *BooleanField { return &BooleanField{} }

var booleanFormats = map[string][2]string{
	"yes-no":     {"Yes", "No"},
	"true-false": {"True", "False"},
	"on-off":     {"On", "Off"},
	"1-0":        {"1", "0"},
}

func (f *BooleanField) DefineOptions() options.Schema {
	return f.FieldHandler.DefineOptions().Merge(options.Schema{
		"type": options.Leaf("yes-no"),
		"not":  options.Leaf(false),
	})
}

func (f *BooleanField) Render(row *query.Row) string {
	v := options.Truthy(f.self.(FieldRenderer).RawValue(row))
	if f.opts.Bool("not") {
		v = !v
	}
	words, ok := booleanFormats[f.opts.String("type")]
	if !ok {
		words = booleanFormats["yes-no"]
	}
	if v {
		return words[0]
	}
	return words[1]
}

// CounterField numbers rows across pages. It adds nothing to the query.
type CounterField struct {
	FieldHandler
}

func NewCounterField() *CounterField { return &CounterField{} }

func (f *CounterField) DefineOptions() options.Schema {
	return f.FieldHandler.DefineOptions().Merge(options.Schema{
		"counter_start": options.Leaf(1),
	})
}

func (f *CounterField) Query(query.Builder, bool) error { return nil }

func (f *CounterField) RawValue(row *query.Row) any {
	start := f.opts.Int("counter_start")
	if f.host == nil {
		return start + row.Index
	}
	p := f.host.PageInfo()
	return start + p.Offset + p.ItemsPerPage*p.CurrentPage + row.Index
}

// MathField evaluates a CEL expression over the raw values of the fields
// before it. Each earlier field is a variable named by its id.
type MathField struct {
	NumericField

	prg cel.Program
	err error
}

func NewMathField() *MathField { return &MathField{} }

func (f *MathField) DefineOptions() options.Schema {
	return f.NumericField.DefineOptions().Merge(options.Schema{
		"expression": options.Leaf(""),
	})
}

func (f *MathField) Query(query.Builder, bool) error {
	f.prg, f.err = f.compile()
	if f.err != nil {
		f.logger().Warn("math field expression rejected", "field", f.id, "error", f.err)
	}
	return nil
}

func (f *MathField) compile() (cel.Program, error) {
	var vars []cel.EnvOption
	if f.host != nil {
		for _, fr := range f.host.Handlers(Field).Fields() {
			if fr.ID() == f.id {
				break
			}
			vars = append(vars, cel.Variable(fr.ID(), cel.DynType))
		}
	}
	env, err := cel.NewEnv(vars...)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(f.opts.String("expression"))
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	return env.Program(ast)
}

func (f *MathField) RawValue(row *query.Row) any {
	if f.prg == nil {
		return nil
	}
	act := map[string]any{}
	for _, fr := range f.host.Handlers(Field).Fields() {
		if fr.ID() == f.id {
			break
		}
		v := fr.RawValue(row)
		if n, ok := toFloat(v); ok {
			v = n
		}
		act[fr.ID()] = v
	}
	out, _, err := f.prg.Eval(act)
	if err != nil {
		f.logger().Debug("math field evaluation failed", "field", f.id, "row", row.Index, "error", err)
		return nil
	}
	return out.Value()
}

// RelatedField selects a local key and renders a value from another table,
// loaded for all rows at once before rendering.
//
// The definition's Extra names lookup_table, lookup_key and lookup_value.
type RelatedField struct {
	FieldHandler

	values map[string]any
}

func NewRelatedField() *RelatedField { return &RelatedField{} }

func (f *RelatedField) PreRender(ctx context.Context, rows []*query.Row) error {
	f.values = map[string]any{}
	if len(rows) == 0 || f.host == nil || f.host.Lookup() == nil {
		return nil
	}
	seen := map[string]bool{}
	var keys []any
	for _, row := range rows {
		k := f.FieldHandler.RawValue(row)
		if k == nil || seen[query.KeyString(k)] {
			continue
		}
		seen[query.KeyString(k)] = true
		keys = append(keys, k)
	}
	table, _ := f.def.Extra["lookup_table"].(string)
	key, _ := f.def.Extra["lookup_key"].(string)
	value, _ := f.def.Extra["lookup_value"].(string)
	vals, err := f.host.Lookup().LookupValues(ctx, table, key, value, keys)
	if err != nil {
		return fmt.Errorf("field %s: %w", f.id, err)
	}
	f.values = vals
	return nil
}

func (f *RelatedField) RawValue(row *query.Row) any {
	return f.values[query.KeyString(f.FieldHandler.RawValue(row))]
}
