package handler

import (
	"html"
	"strconv"
	"strings"

	"github.com/hanpama/viewexec/internal/options"
)

// TextArea renders configured text with argument tokens replaced.
type TextArea struct {
	Base
}

func NewTextArea() *TextArea { return &TextArea{} }

func (a *TextArea) DefineOptions() options.Schema {
	return a.Base.DefineOptions().Merge(options.Schema{
		"label":    options.Leaf(""),
		"content":  options.Leaf(""),
		"empty":    options.Leaf(false),
		"tokenize": options.Leaf(false),
	})
}

func (a *TextArea) Render(empty bool) string {
	if empty && !a.opts.Bool("empty") {
		return ""
	}
	content := a.opts.String("content")
	if a.opts.Bool("tokenize") && a.host != nil {
		content = replaceTokens(content, argumentTokens(a.host))
	}
	return content
}

// ResultArea summarises the pager state, e.g. "Displaying 1 - 10 of 42".
type ResultArea struct {
	Base
}

func NewResultArea() *ResultArea { return &ResultArea{} }

func (a *ResultArea) DefineOptions() options.Schema {
	return a.Base.DefineOptions().Merge(options.Schema{
		"content": options.Leaf("Displaying @start - @end of @total"),
		"empty":   options.Leaf(false),
	})
}

func (a *ResultArea) Render(empty bool) string {
	if (empty && !a.opts.Bool("empty")) || a.host == nil {
		return ""
	}
	p := a.host.PageInfo()
	perPage := p.ItemsPerPage
	if perPage == 0 {
		perPage = p.Count
	}
	start := p.Offset + p.CurrentPage*perPage + 1
	end := start + p.Count - 1
	if p.Count == 0 {
		start, end = 0, 0
	}
	pages := 1
	if perPage > 0 {
		pages = (p.Total + perPage - 1) / perPage
	}
	return strings.NewReplacer(
		"@start", strconv.Itoa(start),
		"@end", strconv.Itoa(end),
		"@total", strconv.Itoa(p.Total),
		"@per_page", strconv.Itoa(perPage),
		"@current_page", strconv.Itoa(p.CurrentPage+1),
		"@current_record_count", strconv.Itoa(p.Count),
		"@page_count", strconv.Itoa(pages),
		"@name", html.EscapeString(a.host.ViewName()),
	).Replace(a.opts.String("content"))
}
