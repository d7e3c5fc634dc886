package handler

import (
	"github.com/hanpama/viewexec/internal/options"
	"github.com/hanpama/viewexec/internal/query"
)

// SortHandler orders by its column.
type SortHandler struct {
	Base
}

func NewSort() *SortHandler { return &SortHandler{} }

func (s *SortHandler) DefineOptions() options.Schema {
	return s.Base.DefineOptions().Merge(options.Schema{
		"order":   options.Leaf("ASC"),
		"exposed": options.Leaf(false),
	})
}

func (s *SortHandler) Query(q query.Builder, _ bool) error {
	alias, err := s.EnsureMyTable(q)
	if err != nil {
		return err
	}
	q.AddOrderBy(alias, s.RealField(), s.opts.String("order"))
	return nil
}

// RandomSort orders rows randomly.
type RandomSort struct {
	SortHandler
}

func NewRandomSort() *RandomSort { return &RandomSort{} }

func (s *RandomSort) Query(q query.Builder, _ bool) error {
	q.AddOrderBy("", "RANDOM", "")
	return nil
}
