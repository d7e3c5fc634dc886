package handler

import (
	"html"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hanpama/viewexec/internal/options"
	"github.com/hanpama/viewexec/internal/query"
)

// Default actions an argument takes when it has no value, and the action
// names validation failures map to.
const (
	ActionIgnore       = "ignore"
	ActionEmpty        = "empty"
	ActionNotFound     = "not found"
	ActionAccessDenied = "access denied"
	ActionSummary      = "summary"
	ActionDefault      = "default"
)

// ArgumentBinder is implemented by argument handlers.
type ArgumentBinder interface {
	Handler
	QueryContributor
	SetArgument(raw string) bool
	Argument() string
	HasDefaultArgument() bool
	DefaultArgument() (string, bool)
	IsDefaultDerived() bool
	SetDefaultDerived(v bool)
	SkipURL() bool
	IsException(raw string) bool
	ExceptionValue() string
	ExceptionTitle() string
	Title() string
	DefaultAction() string
	ValidateFailAction() string
	UsesBreadcrumb() bool
	SummaryQuery(q query.Builder) (string, error)
	SummarySort(q query.Builder, order string, byCount bool)
	SummaryName(row *query.Row) string
	SummaryArgument(row *query.Row) string
}

// ArgumentHandler is the standard positional argument: it binds one value
// (or a "+"/"," separated list when break_phrase is on) to a condition on
// its column.
type ArgumentHandler struct {
	Base

	argument      string
	values        []string
	or            bool
	defaultDerive bool
	summaryAlias  string
}

func NewArgument() *ArgumentHandler { return &ArgumentHandler{} }

func (a *ArgumentHandler) DefineOptions() options.Schema {
	return a.Base.DefineOptions().Merge(options.Schema{
		"default_action": options.Leaf(ActionIgnore),
		"exception": options.Nested(options.Schema{
			"value":        options.Leaf("all"),
			"title_enable": options.Leaf(false),
			"title":        options.Leaf("All"),
		}),
		"title_enable":              options.Leaf(false),
		"title":                     options.Leaf(""),
		"breadcrumb_enable":         options.Leaf(false),
		"breadcrumb":                options.Leaf(""),
		"default_argument_type":     options.Leaf("fixed"),
		"default_argument_options":  options.Nested(options.Schema{"argument": options.Leaf("")}),
		"default_argument_skip_url": options.Leaf(false),
		"summary": options.Nested(options.Schema{
			"sort_order":        options.Leaf("asc"),
			"number_of_records": options.Leaf(false),
			"format":            options.Leaf("summary"),
		}),
		"summary_options": options.Nested(options.Schema{
			"items_per_page": options.Leaf(25),
		}),
		"validate": options.Nested(options.Schema{
			"type": options.Leaf("none"),
			"fail": options.Leaf(ActionNotFound),
		}),
		"break_phrase": options.Leaf(false),
		"not":          options.Leaf(false),
		"case":         options.Leaf("none"),
		"path_case":    options.Leaf("none"),
	})
}

// SetArgument binds raw and reports whether it validates.
func (a *ArgumentHandler) SetArgument(raw string) bool {
	a.argument = raw
	a.values = []string{raw}
	a.or = false
	if a.IsException(raw) {
		return true
	}
	if a.opts.Bool("break_phrase") {
		a.values, a.or = breakPhrase(raw)
	}
	return a.validate()
}

func (a *ArgumentHandler) validate() bool {
	switch a.opts.String("validate", "type") {
	case "numeric":
		for _, v := range a.values {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return false
			}
		}
	}
	for _, v := range a.values {
		if v == "" {
			return false
		}
	}
	return true
}

// breakPhrase splits "1+2+3" into an OR list and "1,2,3" into an AND list.
func breakPhrase(raw string) ([]string, bool) {
	sep, or := ",", false
	if strings.Contains(raw, "+") || strings.Contains(raw, " ") {
		sep, or = "+", true
		raw = strings.ReplaceAll(raw, " ", "+")
	}
	var out []string
	for _, p := range strings.Split(raw, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, or
}

func (a *ArgumentHandler) Argument() string { return a.argument }

// Values are the bound values after phrase breaking.
func (a *ArgumentHandler) Values() []string { return append([]string(nil), a.values...) }

func (a *ArgumentHandler) HasDefaultArgument() bool {
	return a.opts.String("default_action") == ActionDefault
}

func (a *ArgumentHandler) DefaultArgument() (string, bool) {
	switch a.opts.String("default_argument_type") {
	case "fixed":
		v := a.opts.String("default_argument_options", "argument")
		return v, v != ""
	case "raw":
		idx := a.opts.Int("default_argument_options", "index")
		if a.host == nil {
			return "", false
		}
		args := a.host.Args()
		if idx < 0 || idx >= len(args) {
			return "", false
		}
		return args[idx], true
	}
	return "", false
}

func (a *ArgumentHandler) IsDefaultDerived() bool   { return a.defaultDerive }
func (a *ArgumentHandler) SetDefaultDerived(v bool) { a.defaultDerive = v }

func (a *ArgumentHandler) SkipURL() bool {
	return a.defaultDerive && a.opts.Bool("default_argument_skip_url")
}

func (a *ArgumentHandler) ExceptionValue() string { return a.opts.String("exception", "value") }

func (a *ArgumentHandler) IsException(raw string) bool {
	ev := a.ExceptionValue()
	return ev != "" && raw == ev
}

func (a *ArgumentHandler) ExceptionTitle() string {
	if a.opts.Bool("exception", "title_enable") {
		return a.opts.String("exception", "title")
	}
	return a.ExceptionValue()
}

// Title is the bound value, case transformed and escaped.
func (a *ArgumentHandler) Title() string {
	return html.EscapeString(CaseTransform(a.argument, a.opts.String("case")))
}

func (a *ArgumentHandler) DefaultAction() string { return a.opts.String("default_action") }

func (a *ArgumentHandler) ValidateFailAction() string { return a.opts.String("validate", "fail") }

// UsesBreadcrumb is true for the actions that stand for the level above.
func (a *ArgumentHandler) UsesBreadcrumb() bool {
	switch a.DefaultAction() {
	case ActionSummary, ActionDefault:
		return true
	}
	return false
}

func (a *ArgumentHandler) Query(q query.Builder, _ bool) error {
	alias, err := a.EnsureMyTable(q)
	if err != nil {
		return err
	}
	field := alias + "." + a.RealField()
	not := a.opts.Bool("not")
	if len(a.values) > 1 && a.or {
		list := make([]any, len(a.values))
		for i, v := range a.values {
			list[i] = v
		}
		op := "IN"
		if not {
			op = "NOT IN"
		}
		q.AddCondition(0, query.Condition{Field: field, Operator: op, Value: list})
		return nil
	}
	op := "="
	if not {
		op = "<>"
	}
	for _, v := range a.values {
		q.AddCondition(0, query.Condition{Field: field, Operator: op, Value: v})
	}
	return nil
}

// SummaryQuery selects the argument column with a record count, grouped.
func (a *ArgumentHandler) SummaryQuery(q query.Builder) (string, error) {
	alias, err := a.EnsureMyTable(q)
	if err != nil {
		return "", err
	}
	a.summaryAlias = q.AddField(alias, a.RealField(), a.id)
	q.AddAggregate("COUNT", q.BaseTable(), q.BaseField(), "num_records")
	q.AddGroupBy(a.summaryAlias)
	return a.summaryAlias, nil
}

func (a *ArgumentHandler) SummarySort(q query.Builder, order string, byCount bool) {
	if byCount {
		q.AddOrderBy("", "num_records", order)
		return
	}
	q.AddOrderBy("", a.summaryAlias, order)
}

func (a *ArgumentHandler) SummaryName(row *query.Row) string {
	v := toString(row.Value(a.summaryAlias))
	if v == "" {
		return "Uncategorized"
	}
	return html.EscapeString(CaseTransform(v, a.opts.String("case")))
}

func (a *ArgumentHandler) SummaryArgument(row *query.Row) string {
	return CaseTransform(toString(row.Value(a.summaryAlias)), a.opts.String("path_case"))
}

func (a *ArgumentHandler) Destroy() {
	a.Base.Destroy()
	a.argument = ""
	a.values = nil
	a.defaultDerive = false
	a.summaryAlias = ""
}

// CaseTransform applies one of none, upper, lower, ucfirst or ucwords.
func CaseTransform(s, mode string) string {
	switch mode {
	case "upper":
		return cases.Upper(language.Und).String(s)
	case "lower":
		return cases.Lower(language.Und).String(s)
	case "ucwords":
		return cases.Title(language.Und, cases.NoLower).String(s)
	case "ucfirst":
		r, n := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError {
			return s
		}
		return string(unicode.ToUpper(r)) + s[n:]
	}
	return s
}
