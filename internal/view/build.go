package view

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hanpama/viewexec/internal/display"
	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/query"
)

// outcome is what a build phase reports back to Build.
type outcome struct {
	ok     bool
	reason string
}

var proceed = outcome{ok: true}

func stop(reason string) outcome { return outcome{reason: reason} }

// Build prepares the query for displayID, or the current display when
// displayID is empty. Building twice is a no-op until Destroy.
func (e *Executor) Build(ctx context.Context, displayID string) error {
	if e.built {
		return nil
	}
	if e.display == nil || (displayID != "" && displayID != e.currentDisplay) {
		if !e.SetDisplay(displayID) {
			return fmt.Errorf("%w: view %s display %q", ErrNoDisplay, e.view.Name, displayID)
		}
	}
	eventbus.Publish(ctx, e.env.Bus, PreBuild{Executor: e})
	start := time.Now()
	defer func() { e.buildTime = time.Since(start) }()

	if e.buildInfo.Abort {
		e.finishEmpty()
		return nil
	}
	if err := e.initQuery(); err != nil {
		return e.fail(err)
	}
	e.initHandlers()
	e.preQuery()

	if e.display.UsesExposed() {
		if o := e.buildExposedForm(); !o.ok {
			e.env.Logger.Debug("exposed input rejected", "view", e.view.Name, "display", e.currentDisplay, "reason", o.reason)
			e.finishEmpty()
			return nil
		}
	}

	useGroupBy := e.display.UseGroupBy()
	if err := e.buildHandlers(handler.Relationship, useGroupBy); err != nil {
		return e.fail(err)
	}
	if e.handlers[handler.Filter].Len() > 0 {
		groups := e.display.Options().Map("filter_groups")
		e.query.SetGroupOperator(query.ParseOperator(groups.String("operator")))
		for _, id := range sortedKeys(groups.Map("groups")) {
			n, err := strconv.Atoi(id)
			if err != nil {
				continue
			}
			e.query.SetWhereGroup(query.ParseOperator(groups.String("groups", id)), n)
		}
	}
	if err := e.buildHandlers(handler.Filter, useGroupBy); err != nil {
		return e.fail(err)
	}

	e.buildSort = true
	if o := e.buildArguments(); !o.ok {
		e.env.Logger.Debug("argument stopped the build", "view", e.view.Name, "display", e.currentDisplay, "reason", o.reason)
		e.built = true
		if err := e.attachDisplays(ctx); err != nil {
			return err
		}
		return nil
	}

	if err := e.initStyle(); err != nil {
		return e.fail(err)
	}
	if e.style.UsesFields() {
		if err := e.buildHandlers(handler.Field, useGroupBy); err != nil {
			return e.fail(err)
		}
	}
	if e.buildSort {
		if e.style.BuildSort(e) {
			if err := e.buildHandlers(handler.Sort, useGroupBy); err != nil {
				return e.fail(err)
			}
		}
		e.style.BuildSortPost(e, e.query)
	}
	for _, k := range []handler.Kind{handler.Header, handler.Footer, handler.Empty} {
		if err := e.buildHandlers(k, useGroupBy); err != nil {
			return e.fail(err)
		}
	}

	if err := e.display.Query(e.query, useGroupBy); err != nil {
		return e.fail(err)
	}
	if err := e.style.Query(e.query, useGroupBy); err != nil {
		return e.fail(err)
	}
	if e.exposedForm != nil {
		if err := e.exposedForm.Query(e, e.query); err != nil {
			return e.fail(err)
		}
	}
	if err := e.initPager(); err != nil {
		return e.fail(err)
	}
	e.pager.Query(e.query)
	built, err := e.query.Build()
	if err != nil {
		return e.fail(err)
	}
	e.buildInfo.Query = built
	e.built = true

	if err := e.attachDisplays(ctx); err != nil {
		return err
	}
	eventbus.Publish(ctx, e.env.Bus, PostBuild{Executor: e, Duration: time.Since(start)})
	return nil
}

// fail marks the build failed and returns err wrapped with the view.
func (e *Executor) fail(err error) error {
	e.buildInfo.Fail = true
	e.built = true
	e.env.Logger.Error("build failed", "view", e.view.Name, "display", e.currentDisplay, "error", err)
	return fmt.Errorf("build view %s display %s: %w", e.view.Name, e.currentDisplay, err)
}

// finishEmpty ends the build without a query; render still runs.
func (e *Executor) finishEmpty() {
	e.built = true
	e.executed = true
	e.result = &query.Result{}
}

func (e *Executor) initQuery() error {
	if e.query != nil {
		return nil
	}
	schema := e.env.Registry.Schema()
	info, ok := schema.BaseInfo(e.view.BaseTable)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoBaseTable, e.view.BaseTable)
	}
	e.query = query.NewSQL(e.runner, e.env.Dialect, schema, e.view.BaseTable, info.Field)
	return nil
}

// initHandlers takes the display's handlers, dropping those the account
// may not use.
func (e *Executor) initHandlers() {
	if e.handlers != nil {
		return
	}
	e.handlers = map[handler.Kind]*handler.List{}
	e.denied = map[handler.Kind][]string{}
	for _, k := range handler.Kinds() {
		l := handler.NewList()
		for _, h := range e.display.GetHandlers(k).All() {
			if h.Broken() {
				e.env.Logger.Warn("broken handler", "view", e.view.Name, "display", e.currentDisplay, "kind", k.String(), "id", h.ID())
			}
			if !h.Access(e.account) {
				e.env.Logger.Debug("handler access denied", "view", e.view.Name, "kind", k.String(), "id", h.ID())
				e.denied[k] = append(e.denied[k], h.ID())
				continue
			}
			l.Add(h)
		}
		e.handlers[k] = l
	}
}

// preQuery numbers handlers within their kind and runs their PreQuery.
// Relationships come first so later kinds can refer to them.
func (e *Executor) preQuery() {
	for _, k := range handler.Kinds() {
		for pos, h := range e.handlers[k].All() {
			h.SetPosition(pos)
			if !h.Broken() {
				h.PreQuery()
			}
		}
	}
}

func (e *Executor) buildExposedForm() outcome {
	form, err := e.display.ExposedFormPlugin()
	if err != nil {
		e.env.Logger.Warn("exposed form unavailable", "view", e.view.Name, "error", err)
		return stop(err.Error())
	}
	e.exposedForm = form
	data, out, err := form.RenderExposedForm(e)
	e.exposedData = data
	e.exposedOutput = out
	if err != nil {
		return stop(err.Error())
	}
	if e.buildInfo.Abort {
		return stop("aborted")
	}
	return proceed
}

// buildHandlers lets every handler of kind k contribute to the query.
// Handlers that decline the exposed input are skipped.
func (e *Executor) buildHandlers(k handler.Kind, useGroupBy bool) error {
	for _, h := range e.handlers[k].All() {
		if h.Broken() {
			continue
		}
		if a, ok := h.(handler.ExposedInputAcceptor); ok && e.exposedData != nil {
			if !a.AcceptExposedInput(e.exposedData) {
				continue
			}
		}
		h.SetRelationship()
		qc, ok := h.(handler.QueryContributor)
		if !ok {
			continue
		}
		if err := qc.Query(e.query, useGroupBy); err != nil {
			return fmt.Errorf("%s %s: %w", k, h.ID(), err)
		}
	}
	return nil
}

// buildArguments binds positional arguments in order and collects title
// substitutions and breadcrumbs. The first argument without a value
// decides, through its default action, whether the build goes on.
func (e *Executor) buildArguments() outcome {
	args := e.handlers[handler.Argument].All()
	if len(args) == 0 {
		return proceed
	}
	title := e.display.Options().String("title")
	e.buildInfo.Breadcrumb = nil
	subs := map[string]string{}
	crumbArgs := []string{}
	status := proceed

	for pos, h := range args {
		if h.Broken() {
			continue
		}
		arg, ok := h.(handler.ArgumentBinder)
		if !ok {
			continue
		}
		arg.SetRelationship()
		raw, has := "", pos < len(e.args)
		if has {
			raw = e.args[pos]
		}
		if !has && !arg.HasDefaultArgument() {
			status = e.defaultAction(arg, arg.DefaultAction())
			break
		}
		if !has {
			def, ok := arg.DefaultArgument()
			if !ok {
				status = e.defaultAction(arg, arg.ValidateFailAction())
				break
			}
			raw = def
			e.setArg(pos, raw)
			arg.SetDefaultDerived(true)
		}
		if !arg.SetArgument(raw) {
			status = e.defaultAction(arg, arg.ValidateFailAction())
			break
		}
		var argTitle string
		if arg.IsException(raw) {
			argTitle = arg.ExceptionTitle()
		} else {
			argTitle = arg.Title()
			if err := arg.Query(e.query, e.display.UseGroupBy()); err != nil {
				e.env.Logger.Error("argument query", "view", e.view.Name, "id", arg.ID(), "error", err)
				e.buildInfo.Fail = true
				status = stop("argument query failed")
				break
			}
		}
		n := strconv.Itoa(pos + 1)
		subs["%"+n] = argTitle
		subs["!"+n] = handler.StripTags(html.UnescapeString(raw), "")

		if e.display.UsesBreadcrumb() && arg.UsesBreadcrumb() {
			path := e.GetURL(crumbArgs, "")
			if !strings.Contains(path, "%") {
				crumb := title
				if arg.Options().Bool("breadcrumb_enable") {
					crumb = arg.Options().String("breadcrumb")
				}
				e.buildInfo.Breadcrumb = append(e.buildInfo.Breadcrumb, Crumb{Path: path, Title: substitute(crumb, subs)})
			}
		}
		if o := arg.Options(); o.Bool("title_enable") && o.String("title") != "" {
			title = o.String("title")
		}
		crumbArgs = append(crumbArgs, raw)
	}

	if title != "" {
		e.buildInfo.Title = title
	}
	e.buildInfo.Substitutions = subs
	return status
}

func (e *Executor) setArg(pos int, v string) {
	for len(e.args) <= pos {
		e.args = append(e.args, "")
	}
	e.args[pos] = v
}

// defaultAction carries out one of the argument actions.
func (e *Executor) defaultAction(arg handler.ArgumentBinder, action string) outcome {
	e.env.Logger.Debug("argument default action", "view", e.view.Name, "id", arg.ID(), "action", action)
	switch action {
	case handler.ActionIgnore:
		return proceed
	case handler.ActionEmpty:
		e.finishEmpty()
		return stop(action)
	case handler.ActionNotFound:
		e.buildInfo.Fail = true
		e.response.Status = http.StatusNotFound
		return stop(action)
	case handler.ActionAccessDenied:
		e.buildInfo.Denied = true
		e.response.Status = http.StatusForbidden
		return stop(action)
	case handler.ActionSummary:
		opts := arg.Options()
		e.buildInfo.Summary = true
		e.buildInfo.SummaryLevel = arg.ID()
		e.summaryArg = arg
		e.styleName = opts.String("summary", "format")
		e.styleOptions = opts.Map("summary_options")
		e.style = nil
		e.query.ClearFields()
		if _, err := arg.SummaryQuery(e.query); err != nil {
			e.env.Logger.Error("summary query", "view", e.view.Name, "id", arg.ID(), "error", err)
			e.buildInfo.Fail = true
			return stop("summary query failed")
		}
		order := strings.ToUpper(opts.String("summary", "sort_order"))
		arg.SummarySort(e.query, order, opts.Bool("summary", "number_of_records"))
		e.buildSort = false
		return proceed
	}
	e.env.Logger.Warn("unknown argument action", "view", e.view.Name, "id", arg.ID(), "action", action)
	return proceed
}

// attachDisplays lets every attachment display attach to the current one.
func (e *Executor) attachDisplays(ctx context.Context) error {
	if e.isAttachment || e.display == nil || !e.display.AcceptAttachments() {
		return nil
	}
	e.isAttachment = true
	defer func() { e.isAttachment = false }()
	for _, id := range e.displayOrder {
		if id == e.currentDisplay {
			continue
		}
		a, ok := e.displays[id].(display.Attacher)
		if !ok {
			continue
		}
		if err := a.AttachTo(ctx, e.currentDisplay); err != nil {
			return err
		}
	}
	return nil
}

// BuildTitle resolves arguments far enough to know the title.
func (e *Executor) BuildTitle() error {
	if e.display == nil && !e.SetDisplay("") {
		return fmt.Errorf("%w: view %s", ErrNoDisplay, e.view.Name)
	}
	if !e.built {
		if err := e.initQuery(); err != nil {
			return err
		}
	}
	e.initHandlers()
	e.buildArguments()
	return nil
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// substitute replaces substitution tokens, longer tokens first.
func substitute(s string, subs map[string]string) string {
	if len(subs) == 0 || s == "" {
		return s
	}
	keys := make([]string, 0, len(subs))
	for k := range subs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, subs[k])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
