// Package view runs a view definition: it selects a display, builds the
// query from the display's handlers, executes it and renders the result.
package view

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hanpama/viewexec/internal/cache"
	"github.com/hanpama/viewexec/internal/display"
	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/query"
	"github.com/hanpama/viewexec/internal/registry"
	"github.com/hanpama/viewexec/internal/viewdef"
)

var (
	// ErrNoDisplay is returned when neither the requested display nor the
	// default display has a working handler.
	ErrNoDisplay = errors.New("no usable display")
	// ErrNoBaseTable is returned when the base table has no base info.
	ErrNoBaseTable = errors.New("unknown base table")
)

// Env holds the collaborators executors share.
type Env struct {
	Registry *registry.Registry
	Runner   query.Runner
	Dialect  query.Dialect
	Cache    *cache.Store
	Bus      *eventbus.Bus
	Logger   *slog.Logger
	Stack    *Stack
}

// Crumb is one breadcrumb entry.
type Crumb struct {
	Path  string
	Title string
}

// BuildInfo is what the build phases found out.
type BuildInfo struct {
	// Fail marks a build that cannot produce output.
	Fail bool
	// Abort stops query execution but still renders.
	Abort  bool
	Denied bool
	// Summary is set when an argument switched the display to a summary.
	Summary       bool
	SummaryLevel  string
	Title         string
	Substitutions map[string]string
	Breadcrumb    []Crumb
	Query         *query.Built
}

// Option configures an Executor.
type Option func(*Executor)

// WithAccount sets the account handler and display access is checked for.
func WithAccount(acct handler.Account) Option { return func(e *Executor) { e.account = acct } }

// WithRequest sets the request exposed input and paging come from.
func WithRequest(r Request) Option { return func(e *Executor) { e.request = r } }

type anonymous struct{}

func (anonymous) HasPermission(string) bool { return false }

// Executor runs one view. It is not safe for concurrent use.
type Executor struct {
	env     Env
	view    *viewdef.View
	account handler.Account
	request Request
	runner  *query.Recorder

	displays     map[string]display.Display
	displayOrder []string
	displayErrs  []error

	currentDisplay string
	display        display.Display

	handlers map[handler.Kind]*handler.List
	denied   map[handler.Kind][]string

	query     *query.SQL
	built     bool
	executed  bool
	buildSort bool
	result    *query.Result
	buildInfo BuildInfo
	args      []string

	style        display.Style
	styleName    string
	styleOptions map[string]any
	summaryArg   handler.ArgumentBinder
	pager        display.Pager
	pagerSel     *viewdef.PluginSelection
	cache        cache.Strategy
	exposedForm  display.ExposedForm

	exposedInput  map[string]string
	exposedData   map[string]string
	exposedOutput *display.ExposedOutput

	currentPage  *int
	itemsPerPage *int
	offset       *int

	isAttachment     bool
	livePreview      bool
	preview          bool
	overrideURL      string
	attachmentBefore []*display.Output
	attachmentAfter  []*display.Output
	attachments      []*Executor

	response *display.Response
	domID    string
	output   *display.Output
	captured []string

	buildTime, executeTime, renderTime time.Duration
}

// New returns an executor for v.
func New(v *viewdef.View, env *Env, opts ...Option) *Executor {
	e := &Executor{env: *env, view: v, account: anonymous{}, response: display.NewResponse()}
	if e.env.Logger == nil {
		e.env.Logger = slog.Default()
	}
	if e.env.Stack == nil {
		e.env.Stack = NewStack()
	}
	if e.env.Dialect.Name == "" {
		e.env.Dialect = query.SQLite
	}
	e.runner = query.NewRecorder(e.env.Runner)
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Executor) View() *viewdef.View                     { return e.view }
func (e *Executor) ViewName() string                        { return e.view.Name }
func (e *Executor) BaseTable() string                       { return e.view.BaseTable }
func (e *Executor) DisplayID() string                       { return e.currentDisplay }
func (e *Executor) Display() display.Display                { return e.display }
func (e *Executor) Account() handler.Account                { return e.account }
func (e *Executor) Logger() *slog.Logger                    { return e.env.Logger }
func (e *Executor) Stack() *Stack                           { return e.env.Stack }
func (e *Executor) Result() *query.Result                   { return e.result }
func (e *Executor) BuildInfo() BuildInfo                    { return e.buildInfo }
func (e *Executor) Built() bool                             { return e.built }
func (e *Executor) Executed() bool                          { return e.executed }
func (e *Executor) Failed() bool                            { return e.buildInfo.Fail }
func (e *Executor) Denied() bool                            { return e.buildInfo.Denied }
func (e *Executor) Response() *display.Response             { return e.response }
func (e *Executor) Pager() display.Pager                    { return e.pager }
func (e *Executor) Style() display.Style                    { return e.style }
func (e *Executor) IsAttachment() bool                      { return e.isAttachment }
func (e *Executor) AttachedExecutors() []*Executor          { return e.attachments }
func (e *Executor) Output() *display.Output                 { return e.output }
func (e *Executor) CapturedQueries() []string               { return e.captured }
func (e *Executor) BuildTime() time.Duration                { return e.buildTime }
func (e *Executor) ExecuteTime() time.Duration              { return e.executeTime }
func (e *Executor) RenderTime() time.Duration               { return e.renderTime }
func (e *Executor) SetLivePreview(on bool)                  { e.livePreview = on }
func (e *Executor) SetOverrideURL(u string)                 { e.overrideURL = u }
func (e *Executor) SummaryArgument() handler.ArgumentBinder { return e.summaryArg }

func (e *Executor) ExposedOutput() *display.ExposedOutput { return e.exposedOutput }

// Abort asks the pipeline to stop before the query runs. The view still
// renders.
func (e *Executor) Abort() { e.buildInfo.Abort = true }

// Denied handler ids of kind k, removed by access checks.
func (e *Executor) DeniedHandlers(k handler.Kind) []string {
	return append([]string(nil), e.denied[k]...)
}

// Handlers returns the active handlers of kind k.
func (e *Executor) Handlers(k handler.Kind) *handler.List {
	if l, ok := e.handlers[k]; ok {
		return l
	}
	if e.display != nil {
		return e.display.GetHandlers(k)
	}
	return handler.NewList()
}

func (e *Executor) Args() []string { return append([]string(nil), e.args...) }

// SetArguments replaces the positional arguments.
func (e *Executor) SetArguments(args []string) { e.args = append([]string(nil), args...) }

func (e *Executor) Substitutions() map[string]string { return e.buildInfo.Substitutions }

func (e *Executor) Lookup() query.Lookup {
	return &query.SQLLookup{Runner: e.runner, Dialect: e.env.Dialect}
}

func (e *Executor) PageInfo() handler.PageInfo {
	info := handler.PageInfo{}
	if e.result != nil {
		info.Count = len(e.result.Rows)
	}
	if e.pager != nil {
		info.CurrentPage = e.pager.CurrentPage()
		info.ItemsPerPage = e.pager.ItemsPerPage()
		info.Offset = e.pager.Offset()
		info.Total = e.pager.TotalItems()
	}
	return info
}

// initDisplay creates a handler for every display, default first.
func (e *Executor) initDisplay() {
	if e.displays != nil {
		return
	}
	e.displays = map[string]display.Display{}
	e.displayErrs = nil
	for _, id := range e.view.DisplayIDs() {
		d, err := display.New(e.view, id, e, e.env.Registry)
		if err != nil {
			e.env.Logger.Warn("display has no handler", "view", e.view.Name, "display", id, "error", err)
			e.displayErrs = append(e.displayErrs, err)
			continue
		}
		e.displays[id] = d
		e.displayOrder = append(e.displayOrder, id)
	}
}

// DisplayHandler returns the handler of display id.
func (e *Executor) DisplayHandler(id string) (display.Display, bool) {
	e.initDisplay()
	d, ok := e.displays[id]
	return d, ok
}

// DomID identifies this run's output; it is assigned on first use.
func (e *Executor) DomID() string {
	if e.domID == "" {
		e.domID = uuid.NewString()
	}
	return e.domID
}

// SetDisplay makes id the current display. An empty id keeps the current
// display or selects the default one; an unknown id falls back to the
// default display.
func (e *Executor) SetDisplay(id string) bool {
	e.initDisplay()
	if id == "" {
		id = e.currentDisplay
	}
	if id == "" {
		id = viewdef.DefaultDisplay
	}
	if _, ok := e.view.Display(id); !ok {
		e.env.Logger.Warn("invalid display id, using default", "view", e.view.Name, "display", id)
		id = viewdef.DefaultDisplay
		if _, ok := e.view.Display(id); !ok {
			return false
		}
	}
	e.currentDisplay = id
	d, ok := e.displays[id]
	if !ok {
		e.display = nil
		return false
	}
	e.display = d
	if e.pagerSel != nil {
		d.SetPagerSelection(*e.pagerSel)
	}
	return true
}

// ChooseDisplay returns the first of ids the account may access.
func (e *Executor) ChooseDisplay(ids []string) string {
	e.initDisplay()
	for _, id := range ids {
		if d, ok := e.displays[id]; ok && d.Access(e.account) {
			return id
		}
	}
	return ""
}

// Access reports whether acct may use any of displays, or the current
// display when none are given.
func (e *Executor) Access(displays []string, acct handler.Account) bool {
	e.initDisplay()
	if len(displays) == 0 {
		displays = []string{e.currentDisplay}
	}
	if acct == nil {
		acct = e.account
	}
	for _, id := range displays {
		if d, ok := e.displays[id]; ok && d.Access(acct) {
			return true
		}
	}
	return false
}

// SetCurrentPage overrides the page the pager starts on.
func (e *Executor) SetCurrentPage(page int) {
	e.currentPage = &page
	if e.pager != nil {
		e.pager.SetCurrentPage(page)
	}
}

func (e *Executor) CurrentPage() int {
	if e.pager != nil {
		return e.pager.CurrentPage()
	}
	if e.currentPage != nil {
		return *e.currentPage
	}
	return 0
}

func (e *Executor) SetItemsPerPage(n int) {
	e.itemsPerPage = &n
	if e.pager != nil {
		e.pager.SetItemsPerPage(n)
	}
}

func (e *Executor) ItemsPerPage() int {
	if e.pager != nil {
		return e.pager.ItemsPerPage()
	}
	if e.itemsPerPage != nil {
		return *e.itemsPerPage
	}
	return 0
}

func (e *Executor) SetOffset(n int) {
	e.offset = &n
	if e.pager != nil {
		e.pager.SetOffset(n)
	}
}

func (e *Executor) Offset() int {
	if e.pager != nil {
		return e.pager.Offset()
	}
	if e.offset != nil {
		return *e.offset
	}
	return 0
}

// UsePager reports whether the display pages its results.
func (e *Executor) UsePager() bool {
	if e.pager != nil {
		return e.pager.UsePager()
	}
	return true
}

// SetPagerSelection makes this executor use sel instead of the display's
// configured pager.
func (e *Executor) SetPagerSelection(sel viewdef.PluginSelection) {
	e.pagerSel = &sel
	if e.display != nil {
		e.display.SetPagerSelection(sel)
	}
}

// pageParam reads the first pager's page from a "page" parameter such as
// "2" or "2,0".
func pageParam(raw string) int {
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (e *Executor) initPager() error {
	if e.pager != nil {
		return nil
	}
	p, err := e.display.PagerPlugin()
	if err != nil {
		return err
	}
	if p.UsePager() {
		page := 0
		if e.currentPage != nil {
			page = *e.currentPage
		} else {
			page = pageParam(e.Param("page"))
		}
		p.SetCurrentPage(page)
	}
	if e.itemsPerPage != nil {
		p.SetItemsPerPage(*e.itemsPerPage)
	}
	if e.offset != nil {
		p.SetOffset(*e.offset)
	}
	e.pager = p
	return nil
}

func (e *Executor) cacheStrategy() cache.Strategy {
	if e.livePreview || e.display == nil {
		return cache.None{}
	}
	if e.cache != nil {
		return e.cache
	}
	c, err := e.display.CachePlugin(e.env.Cache)
	if err != nil {
		e.env.Logger.Warn("cache plugin unavailable", "view", e.view.Name, "display", e.currentDisplay, "error", err)
		c = cache.None{}
	}
	e.cache = c
	return c
}

func (e *Executor) cacheKey() cache.Key {
	k := cache.Key{
		View:    e.view.Name,
		Display: e.currentDisplay,
		Options: e.display.PluginSelection("cache").Options,
		Query:   e.buildInfo.Query.Signature(),
		Args:    e.args,
		Exposed: e.exposedData,
	}
	if e.pager != nil {
		k.Page = e.pager.CurrentPage()
	}
	for kind, ids := range e.denied {
		if len(ids) == 0 {
			continue
		}
		if k.Denied == nil {
			k.Denied = map[string][]string{}
		}
		k.Denied[kind.String()] = append([]string(nil), ids...)
	}
	return k
}

// initStyle selects the style plugin once per build.
func (e *Executor) initStyle() error {
	if e.style != nil {
		return nil
	}
	var (
		s   display.Style
		err error
	)
	if e.styleName != "" {
		s, err = display.NewStyle(e.styleName, e.styleOptions)
	} else {
		s, err = e.display.StylePlugin()
	}
	if err != nil {
		return fmt.Errorf("view %s display %s: %w", e.view.Name, e.currentDisplay, err)
	}
	e.style = s
	return nil
}

// Attachments returns the outputs attached at position.
func (e *Executor) Attachments(position string) []*display.Output {
	if position == display.AttachAfter {
		return e.attachmentAfter
	}
	return e.attachmentBefore
}

func (e *Executor) AddAttachment(position string, out *display.Output) {
	if position == display.AttachAfter {
		e.attachmentAfter = append(e.attachmentAfter, out)
		return
	}
	e.attachmentBefore = append(e.attachmentBefore, out)
}

// NewAttachment returns a fresh executor over the same view definition for
// an attached display.
func (e *Executor) NewAttachment() display.Child {
	child := New(e.view, &e.env, WithAccount(e.account), WithRequest(e.request))
	child.isAttachment = true
	child.livePreview = e.livePreview
	e.attachments = append(e.attachments, child)
	return child
}

var (
	_ display.Executor = (*Executor)(nil)
	_ display.Child    = (*Executor)(nil)
)
