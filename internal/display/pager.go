package display

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/query"
)

// Pager limits the query to one page and reports the page state.
type Pager interface {
	Type() string
	UsePager() bool
	UseCountQuery() bool
	ItemsPerPage() int
	SetItemsPerPage(n int)
	Offset() int
	SetOffset(n int)
	CurrentPage() int
	SetCurrentPage(page int)
	TotalItems() int
	SetTotalItems(n int)
	Query(q query.Builder)
	// UpdatePageInfo clamps the current page once the total is known.
	UpdatePageInfo()
	PostExecute(res *query.Result)
	PreRender(rows []*query.Row)
	Render(info handler.PageInfo) *PagerOutput
}

// PagerOptions are shared by the built-in pagers.
type PagerOptions struct {
	ItemsPerPage int `mapstructure:"items_per_page"`
	Offset       int `mapstructure:"offset"`
	ID           int `mapstructure:"id"`
	TotalPages   int `mapstructure:"total_pages"`
	Quantity     int `mapstructure:"quantity"`
}

var pagerPlugins = map[string]func(PagerOptions) Pager{
	"none": func(o PagerOptions) Pager { return &NonePager{pagerBase{typ: "none", opts: o}} },
	"some": func(o PagerOptions) Pager { return &SomePager{pagerBase{typ: "some", opts: o}} },
	"full": func(o PagerOptions) Pager { return &FullPager{pagerBase{typ: "full", opts: o}} },
}

// NewPager creates the pager typ. An empty type selects "full".
func NewPager(typ string, opts map[string]any) (Pager, error) {
	if typ == "" {
		typ = "full"
	}
	f, ok := pagerPlugins[typ]
	if !ok {
		return nil, fmt.Errorf("%w: pager %q", ErrUnknownPlugin, typ)
	}
	o := PagerOptions{ItemsPerPage: 10, Quantity: 9}
	if typ == "none" {
		o.ItemsPerPage = 0
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: &o})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(opts); err != nil {
		return nil, fmt.Errorf("decode pager options: %w", err)
	}
	return f(o), nil
}

type pagerBase struct {
	typ     string
	opts    PagerOptions
	current int
	total   int
}

func (p *pagerBase) Type() string                         { return p.typ }
func (p *pagerBase) UsePager() bool                       { return false }
func (p *pagerBase) UseCountQuery() bool                  { return false }
func (p *pagerBase) ItemsPerPage() int                    { return p.opts.ItemsPerPage }
func (p *pagerBase) SetItemsPerPage(n int)                { p.opts.ItemsPerPage = n }
func (p *pagerBase) Offset() int                          { return p.opts.Offset }
func (p *pagerBase) SetOffset(n int)                      { p.opts.Offset = n }
func (p *pagerBase) CurrentPage() int                     { return p.current }
func (p *pagerBase) TotalItems() int                      { return p.total }
func (p *pagerBase) SetTotalItems(n int)                  { p.total = n }
func (p *pagerBase) UpdatePageInfo()                      {}
func (p *pagerBase) PreRender([]*query.Row)               {}
func (p *pagerBase) Render(handler.PageInfo) *PagerOutput { return nil }

func (p *pagerBase) SetCurrentPage(page int) {
	if page < 0 {
		page = 0
	}
	p.current = page
}

func (p *pagerBase) PostExecute(res *query.Result) {
	if res != nil {
		p.total = len(res.Rows)
	}
}

// NonePager returns every row after the offset.
type NonePager struct{ pagerBase }

func (p *NonePager) SetItemsPerPage(int) {}

func (p *NonePager) Query(q query.Builder) { q.SetLimitOffset(0, p.opts.Offset) }

// SomePager returns a fixed number of rows without counting.
type SomePager struct{ pagerBase }

func (p *SomePager) Query(q query.Builder) {
	q.SetLimitOffset(p.opts.ItemsPerPage, p.opts.Offset)
}

// FullPager pages through the result and runs a count query.
type FullPager struct{ pagerBase }

func (p *FullPager) UsePager() bool      { return true }
func (p *FullPager) UseCountQuery() bool { return true }

func (p *FullPager) Query(q query.Builder) {
	limit := p.opts.ItemsPerPage
	offset := p.current*limit + p.opts.Offset
	if p.opts.TotalPages > 0 && p.current >= p.opts.TotalPages {
		offset = (p.opts.TotalPages-1)*limit + p.opts.Offset
	}
	q.SetLimitOffset(limit, offset)
	q.SetCountQuery(true)
}

// PostExecute takes the total from the count query, less the offset.
func (p *FullPager) PostExecute(res *query.Result) {
	if res == nil {
		return
	}
	p.total = res.Total - p.opts.Offset
	if p.total < 0 {
		p.total = 0
	}
}

func (p *FullPager) totalPages() int {
	if p.opts.ItemsPerPage <= 0 {
		return 1
	}
	n := (p.total + p.opts.ItemsPerPage - 1) / p.opts.ItemsPerPage
	if p.opts.TotalPages > 0 && n > p.opts.TotalPages {
		n = p.opts.TotalPages
	}
	return n
}

// UpdatePageInfo moves past-the-end requests to the last page.
func (p *FullPager) UpdatePageInfo() {
	if n := p.totalPages(); n > 0 && p.current >= n {
		p.current = n - 1
	}
}

func (p *FullPager) Render(info handler.PageInfo) *PagerOutput {
	n := p.totalPages()
	return &PagerOutput{
		Type:         p.typ,
		CurrentPage:  p.current,
		ItemsPerPage: p.opts.ItemsPerPage,
		TotalItems:   p.total,
		TotalPages:   n,
		HasPrevious:  p.current > 0,
		HasNext:      p.current+1 < n,
	}
}
