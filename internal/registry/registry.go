// Package registry resolves handler configurations to handler instances
// using the data-source schema.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hanpama/viewexec/internal/handler"
)

// ErrUnknownPlugin is returned when no factory is registered for a plugin.
var ErrUnknownPlugin = errors.New("unknown plugin")

// HandlerFactory creates an uninitialised handler.
type HandlerFactory func() handler.Handler

// defaultPlugins is used when the schema does not name a plugin.
var defaultPlugins = map[string]string{
	"field":        "standard",
	"filter":       "string",
	"sort":         "standard",
	"argument":     "standard",
	"relationship": "standard",
	"area":         "text",
}

// Registry is the HandlerRegistry.
type Registry struct {
	schema   *Schema
	handlers map[string]map[string]HandlerFactory
}

// New returns a registry over schema with the built-in handler plugins.
func New(schema *Schema) *Registry {
	if schema == nil {
		schema = NewSchema()
	}
	r := &Registry{schema: schema, handlers: map[string]map[string]HandlerFactory{}}
	for typ, plugins := range builtinHandlers {
		for id, f := range plugins {
			r.RegisterHandler(typ, id, f)
		}
	}
	return r
}

var builtinHandlers = map[string]map[string]HandlerFactory{
	"field": {
		"standard": func() handler.Handler { return handler.NewField() },
		"numeric":  func() handler.Handler { return handler.NewNumericField() },
		"boolean":  func() handler.Handler { return handler.NewBooleanField() },
		"counter":  func() handler.Handler { return handler.NewCounterField() },
		"math":     func() handler.Handler { return handler.NewMathField() },
		"related":  func() handler.Handler { return handler.NewRelatedField() },
	},
	"filter": {
		"string":      func() handler.Handler { return handler.NewStringFilter() },
		"numeric":     func() handler.Handler { return handler.NewNumericFilter() },
		"boolean":     func() handler.Handler { return handler.NewBooleanFilter() },
		"in_operator": func() handler.Handler { return handler.NewInOperatorFilter() },
	},
	"sort": {
		"standard": func() handler.Handler { return handler.NewSort() },
		"random":   func() handler.Handler { return handler.NewRandomSort() },
	},
	"argument": {
		"standard": func() handler.Handler { return handler.NewArgument() },
	},
	"relationship": {
		"standard": func() handler.Handler { return handler.NewRelationship() },
	},
	"area": {
		"text":   func() handler.Handler { return handler.NewTextArea() },
		"result": func() handler.Handler { return handler.NewResultArea() },
	},
}

func (r *Registry) Schema() *Schema { return r.schema }

// RegisterHandler adds or replaces a handler plugin for a registry type.
func (r *Registry) RegisterHandler(typ, plugin string, f HandlerFactory) {
	if r.handlers[typ] == nil {
		r.handlers[typ] = map[string]HandlerFactory{}
	}
	r.handlers[typ][plugin] = f
}

// Plugins lists the registered plugin ids of a type.
func (r *Registry) Plugins(typ string) []string {
	out := make([]string, 0, len(r.handlers[typ]))
	for id := range r.handlers[typ] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Resolve returns a handler for (table, field, kind) and the definition
// it should be initialised with. Anything that cannot be resolved yields a
// broken handler rather than an error.
func (r *Registry) Resolve(table, field string, kind handler.Kind) (handler.Handler, handler.Definition) {
	return r.ResolvePlugin(table, field, kind, "")
}

// ResolvePlugin is Resolve with a plugin override from configuration.
func (r *Registry) ResolvePlugin(table, field string, kind handler.Kind, plugin string) (handler.Handler, handler.Definition) {
	def := handler.Definition{Table: table, Field: field, Plugin: plugin}
	typ := kind.Type()
	t, ok := r.schema.Table(table)
	if !ok {
		return handler.NewBroken(fmt.Sprintf("unknown table %q", table)), def
	}
	fi, ok := t.Fields[field]
	if !ok {
		return handler.NewBroken(fmt.Sprintf("unknown field %s.%s", table, field)), def
	}
	hi := fi.Handlers[typ]
	if hi == nil {
		return handler.NewBroken(fmt.Sprintf("%s.%s has no %s handler", table, field, typ)), def
	}
	def.Title = fi.Title
	def.Permission = fi.Permission
	def.RealField = fi.RealField
	def.Base = hi.Base
	def.BaseField = hi.BaseField
	def.RelationshipField = hi.RelationshipField
	def.Extra = hi.Extra
	if def.Base != "" && def.BaseField == "" {
		if bi, ok := r.schema.BaseInfo(def.Base); ok {
			def.BaseField = bi.Field
		}
	}
	if def.Plugin == "" {
		def.Plugin = hi.Plugin
	}
	if def.Plugin == "" {
		def.Plugin = defaultPlugins[typ]
	}
	f, ok := r.handlers[typ][def.Plugin]
	if !ok {
		return handler.NewBroken(fmt.Sprintf("%v: %s %q", ErrUnknownPlugin, typ, def.Plugin)), def
	}
	return f(), def
}
