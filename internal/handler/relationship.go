package handler

import (
	"github.com/hanpama/viewexec/internal/options"
	"github.com/hanpama/viewexec/internal/query"
)

// RelationshipHandler joins the definition's Base table through
// RelationshipField and exposes the join alias to other handlers.
type RelationshipHandler struct {
	Base

	alias string
}

func NewRelationship() *RelationshipHandler { return &RelationshipHandler{} }

func (r *RelationshipHandler) DefineOptions() options.Schema {
	return r.Base.DefineOptions().Merge(options.Schema{
		"label":    options.Leaf(""),
		"required": options.Leaf(false),
	})
}

func (r *RelationshipHandler) Label() string {
	if l := r.opts.String("label"); l != "" {
		return l
	}
	return r.def.Title
}

func (r *RelationshipHandler) Alias() string { return r.alias }

func (r *RelationshipHandler) Query(q query.Builder, _ bool) error {
	left, err := r.EnsureMyTable(q)
	if err != nil {
		return err
	}
	leftField := r.def.RelationshipField
	if leftField == "" {
		leftField = r.RealField()
	}
	typ := "LEFT"
	if r.opts.Bool("required") {
		typ = "INNER"
	}
	r.alias = q.AddRelationship(r.def.Base+"_"+r.id, query.Join{
		Table:     r.def.Base,
		LeftTable: left,
		LeftField: leftField,
		Field:     r.def.BaseField,
		Type:      typ,
	})
	return nil
}

func (r *RelationshipHandler) Destroy() {
	r.Base.Destroy()
	r.alias = ""
}
