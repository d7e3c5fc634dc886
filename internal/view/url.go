package view

import (
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/viewdef"
)

// GetPath returns the current display's path.
func (e *Executor) GetPath() string {
	if e.display == nil {
		return ""
	}
	return e.display.Path()
}

// GetURL fills the "%" pieces of path with args. A nil args uses the
// executor's arguments, leaving out computed ones that asked to be skipped.
// An empty path uses the display's path.
func (e *Executor) GetURL(args []string, path string) string {
	if e.overrideURL != "" {
		return e.overrideURL
	}
	if path == "" {
		path = e.GetPath()
	}
	argHandlers := e.Handlers(handler.Argument).All()
	if args == nil {
		for pos, a := range e.args {
			if pos < len(argHandlers) {
				if b, ok := argHandlers[pos].(handler.ArgumentBinder); ok && b.IsDefaultDerived() && b.SkipURL() {
					continue
				}
			}
			args = append(args, a)
		}
	}
	if path == "" || (len(args) == 0 && !strings.Contains(path, "%")) {
		return path
	}
	pieces := strings.Split(path, "/")
	next := 0
	for i, piece := range pieces {
		if piece != "%" {
			continue
		}
		switch {
		case len(args) > 0:
			pieces[i] = args[0]
			args = args[1:]
		case next < len(argHandlers) && exceptionValue(argHandlers[next]) != "":
			pieces[i] = exceptionValue(argHandlers[next])
		default:
			pieces[i] = "*"
		}
		next++
	}
	return strings.Join(append(pieces, args...), "/")
}

func exceptionValue(h handler.Handler) string {
	if b, ok := h.(handler.ArgumentBinder); ok {
		return b.ExceptionValue()
	}
	return ""
}

// GetTitle returns the title an argument set, else the display title,
// with argument substitutions applied.
func (e *Executor) GetTitle() string {
	title := ""
	if e.display != nil {
		title = e.display.Options().String("title")
	}
	if e.buildInfo.Title != "" {
		title = e.buildInfo.Title
	}
	return substitute(title, e.buildInfo.Substitutions)
}

func (e *Executor) SetTitle(title string) { e.buildInfo.Title = title }

// GetBreadcrumb returns the breadcrumb trail arguments produced.
func (e *Executor) GetBreadcrumb() []Crumb {
	return append([]Crumb(nil), e.buildInfo.Breadcrumb...)
}

// RenderField renders one field of one result row.
func (e *Executor) RenderField(fieldID string, row int) string {
	h, ok := e.Handlers(handler.Field).Get(fieldID)
	if !ok || e.result == nil || row < 0 || row >= len(e.result.Rows) {
		return ""
	}
	f, ok := h.(handler.FieldRenderer)
	if !ok {
		return ""
	}
	return f.AdvancedRender(e.result.Rows[row])
}

// Validate checks every display and reports all problems found.
func (e *Executor) Validate() error {
	e.initDisplay()
	var errs *multierror.Error
	for _, err := range e.displayErrs {
		errs = multierror.Append(errs, err)
	}
	for _, id := range e.displayOrder {
		for _, err := range e.displays[id].Validate() {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// AddItem adds a handler config to displayID and returns its id.
func (e *Executor) AddItem(displayID string, k handler.Kind, table, field string, opts map[string]any, id string) string {
	return e.view.AddItem(displayID, k.Plural(), table, field, opts, id)
}

func (e *Executor) Items(displayID string, k handler.Kind) []viewdef.HandlerConfig {
	return e.view.Items(displayID, k.Plural())
}

func (e *Executor) Item(displayID string, k handler.Kind, id string) (viewdef.HandlerConfig, bool) {
	return e.view.Item(displayID, k.Plural(), id)
}

func (e *Executor) SetItem(displayID string, k handler.Kind, id string, item *viewdef.HandlerConfig) {
	e.view.SetItem(displayID, k.Plural(), id, item)
}

func (e *Executor) SetItemOption(displayID string, k handler.Kind, id, option string, value any) {
	e.view.SetItemOption(displayID, k.Plural(), id, option, value)
}

// Save persists the view definition.
func (e *Executor) Save() error { return e.view.Save() }
