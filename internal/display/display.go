// Package display implements display handlers and the style, pager and
// exposed form plugins they select.
//
// A display handler owns one display's configuration. It materialises the
// display's handlers through the registry, picks sub-plugins and assembles
// the final Output. The running executor is reached through the Executor
// interface.
package display

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hanpama/viewexec/internal/cache"
	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/options"
	"github.com/hanpama/viewexec/internal/query"
	"github.com/hanpama/viewexec/internal/registry"
	"github.com/hanpama/viewexec/internal/viewdef"
)

// ErrUnknownPlugin is returned for display, style, pager or exposed form
// plugins that are not registered.
var ErrUnknownPlugin = errors.New("unknown display plugin")

// Executor is the running view as seen by display plugins.
type Executor interface {
	handler.Host
	Account() handler.Account
	// Param returns a request query parameter.
	Param(name string) string
	Result() *query.Result
	Pager() Pager
	Style() Style
	GetTitle() string
	DomID() string
	GetURL(args []string, path string) string
	SummaryArgument() handler.ArgumentBinder
	ExposedInput() map[string]string
	ExposedOutput() *ExposedOutput
	RememberExposedInput(in map[string]string)
	Attachments(position string) []*Output
	AddAttachment(position string, out *Output)
	NewAttachment() Child
	DisplayHandler(id string) (Display, bool)
	Response() *Response
	Build(ctx context.Context, displayID string) error
	Render(ctx context.Context, displayID string) (*Output, error)
	Failed() bool
	Denied() bool
}

// Child is an executor created to run an attached display.
type Child interface {
	SetExposedInput(in map[string]string)
	SetPagerSelection(sel viewdef.PluginSelection)
	ExecuteDisplay(ctx context.Context, displayID string, args []string) (*Output, error)
	Destroy()
}

// Display is the display handler contract.
type Display interface {
	ID() string
	Plugin() string
	Title() string
	DefineOptions() options.Schema
	Option(name string) (any, bool)
	Options() options.Values
	IsDefaulted(name string) bool
	PluginSelection(name string) viewdef.PluginSelection
	SetPagerSelection(sel viewdef.PluginSelection)
	GetHandlers(k handler.Kind) *handler.List

	UsesExposed() bool
	UseGroupBy() bool
	UsesAttachments() bool
	AcceptAttachments() bool
	IsEnabled() bool
	UsesBreadcrumb() bool
	HasPath() bool
	Path() string
	Access(acct handler.Account) bool

	StylePlugin() (Style, error)
	PagerPlugin() (Pager, error)
	CachePlugin(store *cache.Store) (cache.Strategy, error)
	ExposedFormPlugin() (ExposedForm, error)

	PreExecute(ctx context.Context)
	Query(q query.Builder, useGroupBy bool) error
	Execute(ctx context.Context) (*Output, error)
	Preview(ctx context.Context) (*Output, error)
	Render(ctx context.Context) (*Output, error)
	Validate() []error
	Destroy()

	base() *Base
}

// Attacher is implemented by displays that attach to others.
type Attacher interface {
	AttachTo(ctx context.Context, parentDisplayID string) error
}

// Response is the HTTP shaped wrapper the executor owns.
type Response struct {
	Status int
	Header http.Header
}

func NewResponse() *Response { return &Response{Status: http.StatusOK, Header: http.Header{}} }

type factory func() Display

var displayPlugins = map[string]factory{
	"default":     func() Display { return &DefaultDisplay{} },
	"page":        func() Display { return &PageDisplay{} },
	"block":       func() Display { return &BlockDisplay{} },
	"attachment":  func() Display { return &AttachmentDisplay{} },
	"rest_export": func() Display { return &RestExportDisplay{} },
}

// RegisterDisplay adds a display plugin.
func RegisterDisplay(plugin string, f func() Display) { displayPlugins[plugin] = f }

// New creates the handler for display id of v.
func New(v *viewdef.View, id string, exec Executor, reg *registry.Registry) (Display, error) {
	def, ok := v.Display(id)
	if !ok {
		return nil, fmt.Errorf("%w: display %q", viewdef.ErrNotFound, id)
	}
	f, ok := displayPlugins[def.Plugin]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, def.Plugin)
	}
	d := f()
	b := d.base()
	b.self = d
	b.id = id
	b.plugin = def.Plugin
	b.title = def.Title
	b.view = v
	b.exec = exec
	b.reg = reg
	b.handlers = map[handler.Kind]*handler.List{}
	b.opts = options.Unpack(d.DefineOptions().Defaults(), b.rawOptions(), d.DefineOptions(), true)
	return d, nil
}

// Base implements the behaviour shared by every display plugin.
type Base struct {
	self   Display
	id     string
	plugin string
	title  string
	view   *viewdef.View
	exec   Executor
	reg    *registry.Registry
	opts   options.Values

	handlers map[handler.Kind]*handler.List
	pagerSel *viewdef.PluginSelection
}

func (d *Base) base() *Base { return d }

func (d *Base) ID() string     { return d.id }
func (d *Base) Plugin() string { return d.plugin }
func (d *Base) Title() string  { return d.title }

// DefineOptions lists the options every display understands.
func (d *Base) DefineOptions() options.Schema {
	sel := func(typ string, opts options.Schema) options.Option {
		return options.Nested(options.Schema{"type": options.Leaf(typ), "options": options.Nested(opts)})
	}
	return options.Schema{
		"title":        options.Leaf(""),
		"enabled":      options.Leaf(true),
		"group_by":     options.Leaf(false),
		"link_display": options.Leaf(""),
		"access": options.Nested(options.Schema{
			"type": options.Leaf("none"),
			"perm": options.Leaf(""),
		}),
		"pager":        sel("full", options.Schema{"items_per_page": options.Leaf(10), "offset": options.Leaf(0)}),
		"style":        sel("default", options.Schema{}),
		"cache":        sel("none", options.Schema{}),
		"exposed_form": sel("basic", options.Schema{}),
		"filter_groups": options.Nested(options.Schema{
			"operator": options.Leaf("AND"),
			"groups":   options.Leaf(map[string]any{"1": "AND"}),
		}),
	}
}

// rawOptions collects the configured options, following inheritance from
// the default display option by option.
func (d *Base) rawOptions() map[string]any {
	out := map[string]any{}
	for name := range d.self.DefineOptions() {
		if v, ok := d.view.Option(d.id, name); ok {
			out[name] = v
		}
	}
	return out
}

func (d *Base) Option(name string) (any, bool) { return d.opts.Get(name) }

func (d *Base) Options() options.Values { return d.opts }

func (d *Base) IsDefaulted(name string) bool { return d.view.IsDefaulted(d.id, name) }

// PluginSelection returns the resolved selection of a sub-plugin.
func (d *Base) PluginSelection(name string) viewdef.PluginSelection {
	if name == "pager" && d.pagerSel != nil {
		return *d.pagerSel
	}
	m := d.opts.Map(name)
	return viewdef.PluginSelection{Type: m.String("type"), Options: m.Map("options")}
}

// SetPagerSelection replaces the pager for this display handler only.
func (d *Base) SetPagerSelection(sel viewdef.PluginSelection) { d.pagerSel = &sel }

// GetHandlers materialises the display's handlers of kind k. The list is
// built once per display handler.
func (d *Base) GetHandlers(k handler.Kind) *handler.List {
	if l, ok := d.handlers[k]; ok {
		return l
	}
	l := handler.NewList()
	for _, cfg := range d.view.Items(d.id, k.Plural()) {
		h, def := d.reg.ResolvePlugin(cfg.Table, cfg.Field, k, cfg.Plugin)
		handler.Init(h, d.exec, k, def, cfg)
		l.Add(h)
	}
	d.handlers[k] = l
	return l
}

// UsesExposed reports whether any handler takes exposed input.
func (d *Base) UsesExposed() bool {
	for _, k := range handler.Kinds() {
		for _, h := range d.GetHandlers(k).All() {
			if e, ok := h.(handler.ExposedInputAcceptor); ok && e.IsExposed() {
				return true
			}
		}
	}
	return false
}

func (d *Base) UseGroupBy() bool      { return d.opts.Bool("group_by") }
func (d *Base) UsesAttachments() bool { return false }
func (d *Base) IsEnabled() bool       { return d.opts.Bool("enabled") }
func (d *Base) UsesBreadcrumb() bool  { return false }
func (d *Base) HasPath() bool         { return false }

func (d *Base) AcceptAttachments() bool { return d.self.UsesAttachments() }

// Path is the display's own path, or the linked display's path.
func (d *Base) Path() string {
	if d.self.HasPath() {
		return d.opts.String("path")
	}
	link := d.opts.String("link_display")
	if link == "" || link == d.id || d.exec == nil {
		return ""
	}
	if other, ok := d.exec.DisplayHandler(link); ok && other.HasPath() {
		return other.Path()
	}
	return ""
}

// Access checks the display's access option.
func (d *Base) Access(acct handler.Account) bool {
	switch d.opts.String("access", "type") {
	case "perm":
		perm := d.opts.String("access", "perm")
		return perm == "" || (acct != nil && acct.HasPermission(perm))
	default:
		return true
	}
}

func (d *Base) StylePlugin() (Style, error) {
	sel := d.PluginSelection("style")
	return NewStyle(sel.Type, sel.Options)
}

func (d *Base) PagerPlugin() (Pager, error) {
	sel := d.PluginSelection("pager")
	return NewPager(sel.Type, sel.Options)
}

func (d *Base) CachePlugin(store *cache.Store) (cache.Strategy, error) {
	sel := d.PluginSelection("cache")
	return cache.New(sel.Type, sel.Options, store)
}

func (d *Base) ExposedFormPlugin() (ExposedForm, error) {
	sel := d.PluginSelection("exposed_form")
	return NewExposedForm(sel.Type, sel.Options)
}

func (d *Base) PreExecute(context.Context) {}

func (d *Base) Query(query.Builder, bool) error { return nil }

func (d *Base) Execute(ctx context.Context) (*Output, error) { return d.exec.Render(ctx, "") }

func (d *Base) Preview(ctx context.Context) (*Output, error) { return d.exec.Render(ctx, "") }

// Render assembles areas, the style output, the pager and attachments.
func (d *Base) Render(context.Context) (*Output, error) {
	e := d.exec
	out := &Output{
		View:             e.ViewName(),
		Display:          d.id,
		DomID:            e.DomID(),
		Title:            e.GetTitle(),
		Exposed:          e.ExposedOutput(),
		AttachmentBefore: e.Attachments(AttachBefore),
		AttachmentAfter:  e.Attachments(AttachAfter),
	}
	var rows []*query.Row
	if res := e.Result(); res != nil {
		rows = res.Rows
	}
	empty := len(rows) == 0
	out.Header = renderAreas(e.Handlers(handler.Header), empty)
	out.Footer = renderAreas(e.Handlers(handler.Footer), empty)
	if empty {
		// the empty region only renders when there is nothing else
		out.Empty = renderAreas(e.Handlers(handler.Empty), false)
	}
	if s := e.Style(); s != nil {
		if err := s.Render(e, out); err != nil {
			return nil, err
		}
	}
	if p := e.Pager(); p != nil && p.UsePager() {
		out.Pager = p.Render(e.PageInfo())
	}
	return out, nil
}

func renderAreas(l *handler.List, empty bool) []string {
	var out []string
	for _, h := range l.All() {
		a, ok := h.(handler.AreaRenderer)
		if !ok {
			continue
		}
		if s := a.Render(empty); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports configuration problems of this display.
func (d *Base) Validate() []error {
	var errs []error
	style, err := d.self.StylePlugin()
	if err != nil {
		errs = append(errs, fmt.Errorf("display %s: %w", d.id, err))
	}
	if _, err := d.self.PagerPlugin(); err != nil {
		errs = append(errs, fmt.Errorf("display %s: %w", d.id, err))
	}
	if _, err := d.self.CachePlugin(nil); err != nil {
		errs = append(errs, fmt.Errorf("display %s: %w", d.id, err))
	}
	if _, err := d.self.ExposedFormPlugin(); err != nil {
		errs = append(errs, fmt.Errorf("display %s: %w", d.id, err))
	}
	for _, k := range handler.Kinds() {
		for _, h := range d.GetHandlers(k).All() {
			if h.Broken() {
				errs = append(errs, fmt.Errorf("display %s uses a broken %s handler %q", d.id, k, h.ID()))
			}
		}
	}
	if style != nil && style.UsesFields() {
		visible := 0
		for _, f := range d.GetHandlers(handler.Field).Fields() {
			if !f.Excluded() {
				visible++
			}
		}
		if visible == 0 {
			errs = append(errs, fmt.Errorf("display %s uses fields but there are none defined for it or all are excluded", d.id))
		}
	}
	return errs
}

// Destroy releases the materialised handlers.
func (d *Base) Destroy() {
	for _, l := range d.handlers {
		for _, h := range l.All() {
			h.Destroy()
		}
	}
	d.handlers = map[handler.Kind]*handler.List{}
	d.pagerSel = nil
}
