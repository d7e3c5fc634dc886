// Package handler implements the configured query and render units of a
// view: fields, filters, sorts, arguments, relationships and areas.
//
// Every handler embeds Base and is initialised through Init. Optional
// behaviour is expressed by capability interfaces the executor checks for
// (QueryContributor, PreRenderer, PostExecutor, FieldRenderer, ...), so one
// handler may take part in several phases.
package handler

import (
	"context"
	"log/slog"

	"github.com/hanpama/viewexec/internal/options"
	"github.com/hanpama/viewexec/internal/query"
	"github.com/hanpama/viewexec/internal/viewdef"
)

// Account is the actor handlers are checked against.
type Account interface {
	HasPermission(perm string) bool
}

// Definition is the schema metadata a handler was resolved from.
type Definition struct {
	Table  string
	Field  string
	Plugin string
	Title  string
	// Permission, when set, is required to use the handler.
	Permission string
	// RealField is the column to query when it differs from Field.
	RealField string

	// Relationship targets.
	Base              string
	BaseField         string
	RelationshipField string

	Extra map[string]any
}

// PageInfo is the pager state visible to handlers.
type PageInfo struct {
	CurrentPage  int
	ItemsPerPage int
	Offset       int
	Total        int
	Count        int
}

// Host is the running executor as seen by its handlers.
type Host interface {
	ViewName() string
	DisplayID() string
	BaseTable() string
	Handlers(k Kind) *List
	Args() []string
	// Substitutions holds the %N title tokens of resolved arguments.
	Substitutions() map[string]string
	PageInfo() PageInfo
	Lookup() query.Lookup
	Logger() *slog.Logger
}

// Handler is the contract shared by every kind.
type Handler interface {
	ID() string
	Kind() Kind
	Definition() Definition
	Options() options.Values
	DefineOptions() options.Schema
	Access(acct Account) bool
	Broken() bool
	Position() int
	SetPosition(pos int)
	PreQuery()
	SetRelationship()
	Destroy()

	base() *Base
}

// QueryContributor handlers add to the shared query builder.
type QueryContributor interface {
	Query(q query.Builder, useGroupBy bool) error
}

// PreRenderer handlers see the whole result set before any row renders.
type PreRenderer interface {
	PreRender(ctx context.Context, rows []*query.Row) error
}

// PostExecutor handlers run after a fresh query execution.
type PostExecutor interface {
	PostExecute(ctx context.Context, rows []*query.Row) error
}

// FieldRenderer is implemented by field handlers.
type FieldRenderer interface {
	Handler
	Label() string
	Excluded() bool
	RawValue(row *query.Row) any
	Render(row *query.Row) string
	AdvancedRender(row *query.Row) string
	LastRender() string
}

// ClickSorter fields can order the query by their own column.
type ClickSorter interface {
	ClickSort(q query.Builder, order string)
}

// ExposedInputAcceptor handlers take user input through the exposed form.
type ExposedInputAcceptor interface {
	Handler
	IsExposed() bool
	Identifier() string
	ValidateExposed(input map[string]string) error
	AcceptExposedInput(input map[string]string) bool
}

// AreaRenderer is implemented by header, footer and empty handlers.
type AreaRenderer interface {
	Handler
	Render(empty bool) string
}

// RelationshipProvider handlers expose the alias other handlers join on.
type RelationshipProvider interface {
	Handler
	Alias() string
}

// Init binds h to host and resolves its options against its schema.
func Init(h Handler, host Host, kind Kind, def Definition, cfg viewdef.HandlerConfig) {
	b := h.base()
	b.self = h
	b.host = host
	b.kind = kind
	b.def = def
	b.id = cfg.ID
	in := make(map[string]any, len(cfg.Options)+3)
	for k, v := range cfg.Options {
		in[k] = v
	}
	in["id"], in["table"], in["field"] = cfg.ID, cfg.Table, cfg.Field
	b.opts = options.Resolve(h.DefineOptions(), in)
	if p, ok := h.(interface{ prepare() }); ok {
		p.prepare()
	}
}

// Base carries the state every handler shares. Plugins embed it.
type Base struct {
	self Handler
	host Host
	kind Kind
	def  Definition
	id   string
	opts options.Values

	position     int
	relationship string
	tableAlias   string
}

func (b *Base) base() *Base { return b }

func (b *Base) ID() string                { return b.id }
func (b *Base) Kind() Kind                { return b.kind }
func (b *Base) Definition() Definition    { return b.def }
func (b *Base) Options() options.Values   { return b.opts }
func (b *Base) Host() Host                { return b.host }
func (b *Base) Position() int             { return b.position }
func (b *Base) SetPosition(pos int)       { b.position = pos }
func (b *Base) Broken() bool              { return false }
func (b *Base) PreQuery()                 {}
func (b *Base) TableAlias() string        { return b.tableAlias }
func (b *Base) RelationshipAlias() string { return b.relationship }

func (b *Base) DefineOptions() options.Schema {
	return options.Schema{
		"id":           options.Leaf(""),
		"table":        options.Leaf(""),
		"field":        options.Leaf(""),
		"relationship": options.Leaf("none"),
		"group_type":   options.Leaf("group"),
		"admin_label":  options.Leaf(""),
	}
}

// Access checks the definition's permission, if any.
func (b *Base) Access(acct Account) bool {
	if b.def.Permission == "" {
		return true
	}
	return acct != nil && acct.HasPermission(b.def.Permission)
}

// RealField is the column the handler queries.
func (b *Base) RealField() string {
	if b.def.RealField != "" {
		return b.def.RealField
	}
	return b.def.Field
}

// AdminLabel names the handler in listings.
func (b *Base) AdminLabel() string {
	if l := b.opts.String("admin_label"); l != "" {
		return l
	}
	if b.def.Title != "" {
		return b.def.Title
	}
	return b.def.Table + "." + b.def.Field
}

// SetRelationship resolves the relationship option to a query alias.
// A missing relationship leaves the handler on the base table.
func (b *Base) SetRelationship() {
	b.relationship = ""
	rel := b.opts.String("relationship")
	if rel == "" || rel == "none" || b.host == nil {
		return
	}
	h, ok := b.host.Handlers(Relationship).Get(rel)
	if !ok {
		return
	}
	if p, ok := h.(RelationshipProvider); ok {
		b.relationship = p.Alias()
	}
}

// EnsureMyTable joins the handler's table into q and remembers its alias.
func (b *Base) EnsureMyTable(q query.Builder) (string, error) {
	if b.tableAlias != "" {
		return b.tableAlias, nil
	}
	alias, err := q.EnsureTable(b.def.Table, b.relationship)
	if err != nil {
		return "", err
	}
	b.tableAlias = alias
	return alias, nil
}

// Destroy drops references to the executor and the query.
func (b *Base) Destroy() {
	b.host = nil
	b.tableAlias = ""
	b.relationship = ""
}

func (b *Base) logger() *slog.Logger {
	if b.host == nil || b.host.Logger() == nil {
		return slog.Default()
	}
	return b.host.Logger()
}
