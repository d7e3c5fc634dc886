package display

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/query"
)

// Style turns the result rows into output.
type Style interface {
	Type() string
	UsesFields() bool
	// BuildSort reports whether the executor should build sort handlers.
	BuildSort(exec Executor) bool
	// BuildSortPost runs after sorts are built, or in their place.
	BuildSortPost(exec Executor, q query.Builder)
	Query(q query.Builder, useGroupBy bool) error
	PreRender(rows []*query.Row) error
	Render(exec Executor, out *Output) error
}

var stylePlugins = map[string]func(map[string]any) (Style, error){
	"default":    func(map[string]any) (Style, error) { return &DefaultStyle{typ: "default"}, nil },
	"table":      newTableStyle,
	"summary":    func(map[string]any) (Style, error) { return &SummaryStyle{}, nil },
	"serializer": newSerializerStyle,
}

// NewStyle creates the style typ. An empty type selects "default".
func NewStyle(typ string, opts map[string]any) (Style, error) {
	if typ == "" {
		typ = "default"
	}
	f, ok := stylePlugins[typ]
	if !ok {
		return nil, fmt.Errorf("%w: style %q", ErrUnknownPlugin, typ)
	}
	return f(opts)
}

func decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: out})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// DefaultStyle is an unformatted list of field rows.
type DefaultStyle struct{ typ string }

func (s *DefaultStyle) Type() string                          { return s.typ }
func (s *DefaultStyle) UsesFields() bool                      { return true }
func (s *DefaultStyle) BuildSort(Executor) bool               { return true }
func (s *DefaultStyle) BuildSortPost(Executor, query.Builder) {}
func (s *DefaultStyle) Query(query.Builder, bool) error       { return nil }
func (s *DefaultStyle) PreRender([]*query.Row) error          { return nil }

func (s *DefaultStyle) Render(exec Executor, out *Output) error {
	out.Style = s.typ
	out.Rows = renderRows(exec)
	return nil
}

// renderRows renders every field of every row. Excluded fields are
// rendered too, for tokens, but left out of the row.
func renderRows(exec Executor) []Row {
	res := exec.Result()
	if res == nil {
		return nil
	}
	fields := exec.Handlers(handler.Field).Fields()
	rows := make([]Row, 0, len(res.Rows))
	for _, r := range res.Rows {
		row := Row{Index: r.Index}
		for _, f := range fields {
			content := f.AdvancedRender(r)
			if f.Excluded() {
				continue
			}
			row.Fields = append(row.Fields, FieldOutput{ID: f.ID(), Label: f.Label(), Content: content})
		}
		rows = append(rows, row)
	}
	return rows
}

// TableOptions configure the table style.
type TableOptions struct {
	Default  string `mapstructure:"default"`
	Order    string `mapstructure:"order"`
	Override bool   `mapstructure:"override"`
}

// TableStyle renders rows under column headers and supports click sorting
// through the "order" and "sort" request parameters.
type TableStyle struct {
	DefaultStyle
	opts   TableOptions
	active string
	order  string
}

func newTableStyle(opts map[string]any) (Style, error) {
	o := TableOptions{Order: "asc", Override: true}
	if err := decode(opts, &o); err != nil {
		return nil, fmt.Errorf("decode table options: %w", err)
	}
	return &TableStyle{DefaultStyle: DefaultStyle{typ: "table"}, opts: o}, nil
}

func (s *TableStyle) BuildSort(exec Executor) bool {
	order := exec.Param("order")
	fields := exec.Handlers(handler.Field)
	if order == "" {
		if _, ok := fields.Get(s.opts.Default); s.opts.Default == "" || !ok {
			return true
		}
	} else if _, ok := fields.Get(order); !ok {
		return true
	}
	return !s.opts.Override
}

func (s *TableStyle) BuildSortPost(exec Executor, q query.Builder) {
	s.active = exec.Param("order")
	if s.active == "" {
		s.active = s.opts.Default
	}
	h, ok := exec.Handlers(handler.Field).Get(s.active)
	if !ok {
		s.active = ""
		return
	}
	s.order = strings.ToLower(exec.Param("sort"))
	if s.order != "asc" && s.order != "desc" {
		s.order = strings.ToLower(s.opts.Order)
	}
	if cs, ok := h.(handler.ClickSorter); ok {
		cs.ClickSort(q, strings.ToUpper(s.order))
	}
}

func (s *TableStyle) Render(exec Executor, out *Output) error {
	out.Style = s.typ
	for _, f := range exec.Handlers(handler.Field).Fields() {
		if f.Excluded() {
			continue
		}
		col := Column{ID: f.ID(), Label: f.Label()}
		if f.ID() == s.active {
			col.Active = true
			col.Order = s.order
		}
		out.Columns = append(out.Columns, col)
	}
	out.Rows = renderRows(exec)
	return nil
}

// SummaryStyle lists the distinct values of the summarised argument with
// their record counts.
type SummaryStyle struct{}

func (s *SummaryStyle) Type() string                          { return "summary" }
func (s *SummaryStyle) UsesFields() bool                      { return false }
func (s *SummaryStyle) BuildSort(Executor) bool               { return false }
func (s *SummaryStyle) BuildSortPost(Executor, query.Builder) {}
func (s *SummaryStyle) Query(query.Builder, bool) error       { return nil }
func (s *SummaryStyle) PreRender([]*query.Row) error          { return nil }

func (s *SummaryStyle) Render(exec Executor, out *Output) error {
	out.Style = "summary"
	arg := exec.SummaryArgument()
	res := exec.Result()
	if arg == nil || res == nil {
		return nil
	}
	for _, r := range res.Rows {
		value := arg.SummaryArgument(r)
		args := append(append([]string(nil), exec.Args()...), value)
		out.Summary = append(out.Summary, SummaryItem{
			Name:     arg.SummaryName(r),
			Argument: value,
			URL:      exec.GetURL(args, ""),
			Count:    toInt(r.Value("num_records")),
		})
	}
	return nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	case []byte:
		n, _ := strconv.Atoi(string(t))
		return n
	}
	return 0
}

// SerializerOptions configure the serializer style.
type SerializerOptions struct {
	Pretty bool `mapstructure:"pretty"`
	// Raw emits raw column values instead of rendered field output.
	Raw bool `mapstructure:"raw"`
}

// SerializerStyle renders rows as a JSON array of objects keyed by field id.
type SerializerStyle struct {
	DefaultStyle
	opts SerializerOptions
}

func newSerializerStyle(opts map[string]any) (Style, error) {
	var o SerializerOptions
	if err := decode(opts, &o); err != nil {
		return nil, fmt.Errorf("decode serializer options: %w", err)
	}
	return &SerializerStyle{DefaultStyle: DefaultStyle{typ: "serializer"}, opts: o}, nil
}

func (s *SerializerStyle) Render(exec Executor, out *Output) error {
	out.Style = s.typ
	list := &structpb.ListValue{}
	if res := exec.Result(); res != nil {
		fields := exec.Handlers(handler.Field).Fields()
		for _, r := range res.Rows {
			obj := &structpb.Struct{Fields: map[string]*structpb.Value{}}
			for _, f := range fields {
				content := f.AdvancedRender(r)
				if f.Excluded() {
					continue
				}
				v := structpb.NewStringValue(content)
				if s.opts.Raw {
					var err error
					if v, err = structpb.NewValue(jsonValue(f.RawValue(r))); err != nil {
						return fmt.Errorf("serialize field %s: %w", f.ID(), err)
					}
				}
				obj.Fields[f.ID()] = v
			}
			list.Values = append(list.Values, structpb.NewStructValue(obj))
		}
	}
	mo := protojson.MarshalOptions{}
	if s.opts.Pretty {
		mo.Multiline = true
		mo.Indent = "  "
	}
	b, err := mo.Marshal(structpb.NewListValue(list))
	if err != nil {
		return fmt.Errorf("serialize rows: %w", err)
	}
	out.Body = string(b)
	out.ContentType = "application/json"
	return nil
}

// jsonValue narrows scanned column values to what structpb accepts.
func jsonValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case float32:
		return float64(t)
	case nil, string, bool, float64:
		return t
	}
	return fmt.Sprint(v)
}
