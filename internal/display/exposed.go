package display

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/query"
)

// ExposedForm collects and validates user input for exposed handlers.
type ExposedForm interface {
	Type() string
	// RenderExposedForm resolves the exposed data handlers will accept. A
	// non-nil error means the input failed validation.
	RenderExposedForm(exec Executor) (map[string]string, *ExposedOutput, error)
	Query(exec Executor, q query.Builder) error
	PreRender(rows []*query.Row)
	PostRender(out *Output)
}

var exposedPlugins = map[string]func(map[string]any) (ExposedForm, error){
	"basic": newBasicForm,
}

// NewExposedForm creates the exposed form typ. An empty type selects
// "basic".
func NewExposedForm(typ string, opts map[string]any) (ExposedForm, error) {
	if typ == "" {
		typ = "basic"
	}
	f, ok := exposedPlugins[typ]
	if !ok {
		return nil, fmt.Errorf("%w: exposed form %q", ErrUnknownPlugin, typ)
	}
	return f(opts)
}

// BasicOptions configure the basic exposed form.
type BasicOptions struct {
	// ResetButton adds a "reset" input that clears remembered values.
	ResetButton bool `mapstructure:"reset_button"`
}

// BasicForm validates exposed input against each exposed handler and
// remembers it when a handler asks for that.
type BasicForm struct {
	opts BasicOptions
}

func newBasicForm(opts map[string]any) (ExposedForm, error) {
	var o BasicOptions
	if err := decode(opts, &o); err != nil {
		return nil, fmt.Errorf("decode exposed form options: %w", err)
	}
	return &BasicForm{opts: o}, nil
}

func (f *BasicForm) Type() string { return "basic" }

type rememberer interface {
	Remember() bool
}

func (f *BasicForm) RenderExposedForm(exec Executor) (map[string]string, *ExposedOutput, error) {
	input := exec.ExposedInput()
	if f.opts.ResetButton && input["op"] == "reset" {
		input = map[string]string{}
		exec.RememberExposedInput(nil)
	}
	data := map[string]string{}
	out := &ExposedOutput{}
	var errs *multierror.Error
	remember := false
	for _, k := range handler.Kinds() {
		for _, h := range exec.Handlers(k).All() {
			e, ok := h.(handler.ExposedInputAcceptor)
			if !ok || !e.IsExposed() {
				continue
			}
			id := e.Identifier()
			data[id] = input[id]
			out.Widgets = append(out.Widgets, Widget{
				ID:       id,
				Label:    h.Options().String("expose", "label"),
				Value:    input[id],
				Required: h.Options().Bool("expose", "required"),
			})
			if err := e.ValidateExposed(input); err != nil {
				errs = multierror.Append(errs, err)
				out.Errors = append(out.Errors, err.Error())
			}
			if r, ok := h.(rememberer); ok && r.Remember() {
				remember = true
			}
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return data, out, err
	}
	if remember {
		exec.RememberExposedInput(data)
	}
	return data, out, nil
}

func (f *BasicForm) Query(Executor, query.Builder) error { return nil }
func (f *BasicForm) PreRender([]*query.Row)              {}
func (f *BasicForm) PostRender(*Output)                  {}
