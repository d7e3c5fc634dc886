package handler

import (
	"html"
	"strconv"
	"strings"
	"unicode"

	"github.com/hanpama/viewexec/internal/options"
	"github.com/hanpama/viewexec/internal/query"
)

// Render text phases.
const (
	phaseSingle = iota
	phaseEmpty
)

// FieldHandler is the standard field: it selects one column and renders
// it escaped, with optional rewriting and empty handling.
type FieldHandler struct {
	Base

	fieldAlias string
	lastRender string
	original   any
}

func NewField() *FieldHandler { return &FieldHandler{} }

func (f *FieldHandler) DefineOptions() options.Schema {
	return f.Base.DefineOptions().Merge(options.Schema{
		"label":   options.Leaf(""),
		"exclude": options.Leaf(false),
		"alter": options.Nested(options.Schema{
			"alter_text":      options.Leaf(false),
			"text":            options.Leaf(""),
			"trim_whitespace": options.Leaf(false),
			"strip_tags":      options.Leaf(false),
			"preserve_tags":   options.Leaf(""),
			"trim":            options.Leaf(false),
			"max_length":      options.Leaf(0),
			"word_boundary":   options.Leaf(true),
			"ellipsis":        options.Leaf(true),
		}),
		"prefix":           options.Leaf(""),
		"suffix":           options.Leaf(""),
		"empty":            options.Leaf(""),
		"hide_empty":       options.Leaf(false),
		"empty_zero":       options.Leaf(false),
		"hide_alter_empty": options.Leaf(true),
	})
}

func (f *FieldHandler) Label() string {
	if l := f.opts.String("label"); l != "" {
		return l
	}
	return f.def.Title
}

func (f *FieldHandler) Excluded() bool { return f.opts.Bool("exclude") }

// FieldAlias is the result column the field reads.
func (f *FieldHandler) FieldAlias() string { return f.fieldAlias }

// ClickSort orders the query by the field's column.
func (f *FieldHandler) ClickSort(q query.Builder, order string) {
	if f.fieldAlias != "" {
		q.AddOrderBy("", f.fieldAlias, order)
	}
}

func (f *FieldHandler) Query(q query.Builder, useGroupBy bool) error {
	alias, err := f.EnsureMyTable(q)
	if err != nil {
		return err
	}
	gt := f.opts.String("group_type")
	if useGroupBy && gt != "" && gt != "group" {
		f.fieldAlias = q.AddAggregate(gt, alias, f.RealField(), "")
		return nil
	}
	f.fieldAlias = q.AddField(alias, f.RealField(), "")
	if useGroupBy {
		q.AddGroupBy(alias + "." + f.RealField())
	}
	return nil
}

func (f *FieldHandler) RawValue(row *query.Row) any {
	if f.fieldAlias == "" {
		return nil
	}
	return row.Value(f.fieldAlias)
}

func (f *FieldHandler) Render(row *query.Row) string {
	return html.EscapeString(toString(f.self.(FieldRenderer).RawValue(row)))
}

func (f *FieldHandler) LastRender() string { return f.lastRender }

// AdvancedRender renders row, applies rewriting and substitutes the empty
// text when the result counts as empty.
func (f *FieldHandler) AdvancedRender(row *query.Row) string {
	self := f.self.(FieldRenderer)
	value := self.Render(row)
	f.lastRender = value
	f.original = value

	alter := f.opts.Map("alter").Clone()
	f.lastRender = f.renderText(alter, phaseSingle)

	if looseEmpty(f.lastRender) && f.isValueEmpty(f.lastRender, f.opts.Bool("empty_zero"), false) {
		alter := f.opts.Map("alter").Clone()
		alter["alter_text"] = true
		alter["text"] = f.opts.String("empty")
		f.lastRender = f.renderText(alter, phaseEmpty)
	}
	return f.lastRender
}

func (f *FieldHandler) affix(v string) string {
	if v == "" {
		return v
	}
	return html.EscapeString(f.opts.String("prefix")) + v + html.EscapeString(f.opts.String("suffix"))
}

// isValueEmpty classifies a value. With noSkipEmpty false only nil and,
// when emptyZero is set, zero count as empty; otherwise "0" is a value.
func (f *FieldHandler) isValueEmpty(v any, emptyZero, noSkipEmpty bool) bool {
	var empty bool
	if v == nil {
		empty = true
	} else {
		empty = emptyZero || !isZero(v)
	}
	if noSkipEmpty {
		empty = looseEmpty(v) && empty
	}
	return empty
}

func (f *FieldHandler) renderText(alter options.Values, phase int) string {
	value := f.lastRender
	if alter.Bool("alter_text") && alter.String("text") != "" {
		value = replaceTokens(alter.String("text"), f.renderTokens())
	}
	if alter.Bool("trim_whitespace") {
		value = strings.TrimSpace(value)
	}
	emptyZero := f.opts.Bool("empty_zero")
	noRewriteForEmpty := f.opts.Bool("hide_alter_empty") && f.isValueEmpty(f.original, emptyZero, true)

	if ((f.opts.Bool("hide_empty") && looseEmpty(value)) || (phase != phaseEmpty && noRewriteForEmpty)) &&
		f.isValueEmpty(value, emptyZero, false) {
		return ""
	}
	if phase == phaseEmpty && noRewriteForEmpty {
		return value
	}
	if alter.Bool("strip_tags") {
		value = StripTags(value, alter.String("preserve_tags"))
	}
	if alter.Bool("trim") && alter.Int("max_length") > 0 {
		value = TrimText(value, alter.Int("max_length"), alter.Bool("word_boundary"), alter.Bool("ellipsis"))
	}
	return f.affix(value)
}

// renderTokens returns [id] for every field up to and including this one,
// then %N and !N for each argument.
func (f *FieldHandler) renderTokens() map[string]string {
	tokens := map[string]string{}
	if f.host == nil {
		return tokens
	}
	for _, fr := range f.host.Handlers(Field).Fields() {
		tokens["["+fr.ID()+"]"] = fr.LastRender()
		if fr.ID() == f.id {
			break
		}
	}
	for k, v := range argumentTokens(f.host) {
		tokens[k] = v
	}
	return tokens
}

func (f *FieldHandler) Destroy() {
	f.Base.Destroy()
	f.fieldAlias = ""
	f.lastRender = ""
	f.original = nil
}

// argumentTokens builds %N from the title substitutions and !N from the
// raw arguments with markup removed.
func argumentTokens(host Host) map[string]string {
	tokens := map[string]string{}
	subs := host.Substitutions()
	args := host.Args()
	for i := range host.Handlers(Argument).All() {
		n := strconv.Itoa(i + 1)
		tokens["%"+n] = subs["%"+n]
		tokens["!"+n] = ""
		if i < len(args) {
			tokens["!"+n] = StripTags(html.UnescapeString(args[i]), "")
		}
	}
	return tokens
}

// replaceTokens substitutes longer tokens first so "%10" wins over "%1".
func replaceTokens(text string, tokens map[string]string) string {
	if len(tokens) == 0 {
		return text
	}
	keys := make([]string, 0, len(tokens))
	for k := range tokens {
		keys = append(keys, k)
	}
	sortByLengthDesc(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, tokens[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// TrimText shortens value to max runes, optionally at a word boundary and
// with an ellipsis.
func TrimText(value string, max int, wordBoundary, ellipsis bool) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	cut := runes[:max]
	if wordBoundary {
		i := len(cut)
		for i > 0 && !unicode.IsSpace(cut[i-1]) {
			i--
		}
		if i > 0 {
			cut = cut[:i]
		}
	}
	out := strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if ellipsis {
		out += "..."
	}
	return out
}
