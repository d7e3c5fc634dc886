package view

import (
	"context"
	"fmt"
	"time"

	"github.com/hanpama/viewexec/internal/cache"
	"github.com/hanpama/viewexec/internal/display"
	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/query"
)

// Execute runs the built query, building first if needed. A disabled
// display fails unless this is a live preview.
func (e *Executor) Execute(ctx context.Context, displayID string) error {
	if !e.built {
		if err := e.Build(ctx, displayID); err != nil {
			return err
		}
	}
	if e.executed {
		return nil
	}
	if !e.display.IsEnabled() && !e.livePreview {
		e.buildInfo.Fail = true
		return nil
	}
	eventbus.Publish(ctx, e.env.Bus, PreExecute{Executor: e})
	start := time.Now()

	res := &query.Result{}
	if !e.buildInfo.Fail && !e.buildInfo.Abort && e.buildInfo.Query != nil {
		strat := e.cacheStrategy()
		key := e.cacheKey()
		cached, hit := strat.GetResults(key)
		eventbus.Publish(ctx, e.env.Bus, CacheLookup{Executor: e, Artifact: "results", Hit: hit})
		if hit {
			e.env.Logger.Debug("results cache hit", "view", e.view.Name, "display", e.currentDisplay)
			res = cached
			e.pager.PostExecute(res)
			e.pager.UpdatePageInfo()
		} else {
			if err := e.query.Execute(ctx, res); err != nil {
				return fmt.Errorf("execute view %s display %s: %w", e.view.Name, e.currentDisplay, err)
			}
			e.pager.PostExecute(res)
			e.pager.UpdatePageInfo()
			res.Renumber()
			if err := e.postExecute(ctx, res.Rows); err != nil {
				return err
			}
			if err := strat.SetResults(key, res); err != nil {
				e.env.Logger.Warn("cache results", "view", e.view.Name, "error", err)
			}
		}
	}
	e.result = res
	e.executeTime = time.Since(start)
	eventbus.Publish(ctx, e.env.Bus, PostExecute{Executor: e, Duration: e.executeTime})
	e.executed = true
	return nil
}

func (e *Executor) postExecute(ctx context.Context, rows []*query.Row) error {
	for _, k := range handler.Kinds() {
		for _, h := range e.handlers[k].All() {
			pe, ok := h.(handler.PostExecutor)
			if !ok || h.Broken() {
				continue
			}
			if err := pe.PostExecute(ctx, rows); err != nil {
				return fmt.Errorf("%s %s post execute: %w", k, h.ID(), err)
			}
		}
	}
	return nil
}

// Render executes if needed and assembles the display output. It returns
// nil output when the build failed or access was denied.
func (e *Executor) Render(ctx context.Context, displayID string) (*display.Output, error) {
	if err := e.Execute(ctx, displayID); err != nil {
		return nil, err
	}
	if e.buildInfo.Fail || e.buildInfo.Denied {
		return nil, nil
	}
	start := time.Now()
	if e.livePreview {
		e.runner.Start()
		eventbus.Publish(ctx, e.env.Bus, QueryCaptureStart{Executor: e})
	}
	var rows []*query.Row
	if e.result != nil {
		rows = e.result.Rows
	}
	if e.exposedForm != nil {
		e.exposedForm.PreRender(rows)
	}

	var strat cache.Strategy = cache.None{}
	if e.buildInfo.Query != nil {
		strat = e.cacheStrategy()
	}
	key := cache.Key{}
	if e.buildInfo.Query != nil {
		key = e.cacheKey()
	}
	var out *display.Output
	if cached, ok := strat.GetOutput(key); ok {
		out, _ = cached.(*display.Output)
	}
	eventbus.Publish(ctx, e.env.Bus, CacheLookup{Executor: e, Artifact: "output", Hit: out != nil})
	if out == nil {
		var err error
		if out, err = e.renderOutput(ctx, rows); err != nil {
			return nil, err
		}
		if err := strat.SetOutput(key, out); err != nil {
			e.env.Logger.Warn("cache output", "view", e.view.Name, "error", err)
		}
	}
	e.output = out
	e.renderTime = time.Since(start)

	if e.exposedForm != nil {
		e.exposedForm.PostRender(out)
	}
	eventbus.Publish(ctx, e.env.Bus, PostRender{Executor: e, Output: out, Duration: e.renderTime})
	if e.livePreview {
		e.captured = e.runner.Stop()
		eventbus.Publish(ctx, e.env.Bus, QueryCaptureStop{Executor: e, Queries: e.captured})
	}
	return out, nil
}

// renderOutput runs the pre-render hooks in order and asks the display to
// render.
func (e *Executor) renderOutput(ctx context.Context, rows []*query.Row) (*display.Output, error) {
	if e.pager != nil {
		e.pager.PreRender(rows)
	}
	if err := e.initStyle(); err != nil {
		return nil, err
	}
	kinds := []handler.Kind{handler.Header, handler.Footer, handler.Empty}
	if e.style.UsesFields() {
		if err := e.preRender(ctx, handler.Field, rows); err != nil {
			return nil, err
		}
	}
	if err := e.style.PreRender(rows); err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if err := e.preRender(ctx, k, rows); err != nil {
			return nil, err
		}
	}
	eventbus.Publish(ctx, e.env.Bus, PreRender{Executor: e})
	return e.display.Render(ctx)
}

func (e *Executor) preRender(ctx context.Context, k handler.Kind, rows []*query.Row) error {
	for _, h := range e.handlers[k].All() {
		pr, ok := h.(handler.PreRenderer)
		if !ok || h.Broken() {
			continue
		}
		if err := pr.PreRender(ctx, rows); err != nil {
			return fmt.Errorf("%s %s pre render: %w", k, h.ID(), err)
		}
	}
	return nil
}

// PreExecute makes e the current executor and lets the display set up.
// Every PreExecute must be paired with PostExecute.
func (e *Executor) PreExecute(ctx context.Context, args []string) {
	e.env.Stack.Push(e)
	if len(args) > 0 {
		e.SetArguments(args)
	}
	eventbus.Publish(ctx, e.env.Bus, PreView{Executor: e, DisplayID: e.currentDisplay, Args: e.Args()})
	e.DomID()
	if e.display != nil {
		e.display.PreExecute(ctx)
	}
}

// PostExecute restores the executor that was current before PreExecute.
func (e *Executor) PostExecute() { e.env.Stack.Pop(e) }

// ExecuteDisplay runs displayID through the display's own execute path.
func (e *Executor) ExecuteDisplay(ctx context.Context, displayID string, args []string) (*display.Output, error) {
	if e.display == nil || (displayID != "" && displayID != e.currentDisplay) {
		if !e.SetDisplay(displayID) {
			return nil, fmt.Errorf("%w: view %s display %q", ErrNoDisplay, e.view.Name, displayID)
		}
	}
	e.PreExecute(ctx, args)
	defer e.PostExecute()
	return e.display.Execute(ctx)
}

// Preview renders displayID the way an editor previews it.
func (e *Executor) Preview(ctx context.Context, displayID string, args []string) (*display.Output, error) {
	if e.display == nil || (displayID != "" && displayID != e.currentDisplay) {
		if !e.SetDisplay(displayID) {
			return nil, fmt.Errorf("%w: view %s display %q", ErrNoDisplay, e.view.Name, displayID)
		}
	}
	e.preview = true
	e.PreExecute(ctx, args)
	defer e.PostExecute()
	return e.display.Preview(ctx)
}

// Destroy releases handlers, query and results so the same definition can
// be built again. Arguments and the request stay.
func (e *Executor) Destroy() {
	for _, d := range e.displays {
		d.Destroy()
	}
	e.displays = nil
	e.displayOrder = nil
	e.displayErrs = nil
	e.currentDisplay = ""
	e.display = nil
	e.handlers = nil
	e.denied = nil
	e.query = nil
	e.built, e.executed = false, false
	e.result = nil
	e.buildInfo = BuildInfo{}
	e.style, e.styleName, e.styleOptions = nil, "", nil
	e.summaryArg = nil
	e.pager, e.pagerSel = nil, nil
	e.cache = nil
	e.exposedForm = nil
	e.exposedInput, e.exposedData, e.exposedOutput = nil, nil, nil
	e.currentPage, e.itemsPerPage, e.offset = nil, nil, nil
	e.isAttachment = false
	e.preview = false
	e.attachmentBefore, e.attachmentAfter = nil, nil
	e.output = nil
}
