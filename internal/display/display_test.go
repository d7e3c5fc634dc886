package display

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/query"
)

func buildPaged(t *testing.T, p Pager) *query.Built {
	t.Helper()
	q := query.NewSQL(nil, query.SQLite, nil, "node", "nid")
	q.AddField("node", "title", "")
	p.Query(q)
	built, err := q.Build()
	require.NoError(t, err)
	return built
}

func TestNewPagerDefaults(t *testing.T) {
	tests := []struct {
		typ  string
		opts map[string]any
		want int
	}{
		{"", nil, 10},
		{"full", map[string]any{"items_per_page": "5"}, 5},
		{"some", map[string]any{"items_per_page": 3}, 3},
		{"none", nil, 0},
	}
	for _, tt := range tests {
		p, err := NewPager(tt.typ, tt.opts)
		require.NoError(t, err)
		require.Equal(t, tt.want, p.ItemsPerPage(), "pager %q", tt.typ)
	}

	_, err := NewPager("infinite", nil)
	require.ErrorIs(t, err, ErrUnknownPlugin)
}

func TestFullPager(t *testing.T) {
	p, err := NewPager("full", map[string]any{"items_per_page": 5, "offset": 2})
	require.NoError(t, err)
	require.True(t, p.UsePager())
	p.SetCurrentPage(2)

	built := buildPaged(t, p)
	require.Contains(t, built.SQL, "LIMIT 5 OFFSET 12")
	require.NotEmpty(t, built.CountSQL)

	p.PostExecute(&query.Result{Total: 14})
	require.Equal(t, 12, p.TotalItems())
	p.UpdatePageInfo()
	require.Equal(t, 2, p.CurrentPage())

	p.SetCurrentPage(7)
	p.UpdatePageInfo()
	require.Equal(t, 2, p.CurrentPage(), "past-the-end pages clamp to the last")

	want := &PagerOutput{Type: "full", CurrentPage: 2, ItemsPerPage: 5, TotalItems: 12, TotalPages: 3, HasPrevious: true}
	if diff := cmp.Diff(want, p.Render(handler.PageInfo{})); diff != "" {
		t.Fatalf("pager output mismatch (-want +got):\n%s", diff)
	}
}

func TestFullPagerTotalPagesCap(t *testing.T) {
	p, err := NewPager("full", map[string]any{"items_per_page": 2, "total_pages": 2})
	require.NoError(t, err)
	p.SetCurrentPage(5)
	require.Contains(t, buildPaged(t, p).SQL, "LIMIT 2 OFFSET 2")

	p.PostExecute(&query.Result{Total: 10})
	require.Equal(t, 2, p.Render(handler.PageInfo{}).TotalPages)
}

func TestSomeAndNonePagers(t *testing.T) {
	some, err := NewPager("some", map[string]any{"items_per_page": 3, "offset": 1})
	require.NoError(t, err)
	require.False(t, some.UsePager())
	built := buildPaged(t, some)
	require.Contains(t, built.SQL, "LIMIT 3 OFFSET 1")
	require.Empty(t, built.CountSQL)
	some.PostExecute(&query.Result{Rows: []*query.Row{{}, {}}})
	require.Equal(t, 2, some.TotalItems())
	require.Nil(t, some.Render(handler.PageInfo{}))

	none, err := NewPager("none", map[string]any{"offset": 4})
	require.NoError(t, err)
	none.SetItemsPerPage(20)
	require.Zero(t, none.ItemsPerPage())
	require.Contains(t, buildPaged(t, none).SQL, "LIMIT -1 OFFSET 4")
}

func TestNewStyle(t *testing.T) {
	s, err := NewStyle("", nil)
	require.NoError(t, err)
	require.Equal(t, "default", s.Type())
	require.True(t, s.UsesFields())

	s, err = NewStyle("summary", nil)
	require.NoError(t, err)
	require.False(t, s.UsesFields())

	s, err = NewStyle("serializer", map[string]any{"pretty": "true"})
	require.NoError(t, err)
	require.True(t, s.(*SerializerStyle).opts.Pretty)

	s, err = NewStyle("table", map[string]any{"default": "title"})
	require.NoError(t, err)
	ts := s.(*TableStyle)
	require.Equal(t, TableOptions{Default: "title", Order: "asc", Override: true}, ts.opts)

	_, err = NewStyle("grid", nil)
	require.ErrorIs(t, err, ErrUnknownPlugin)
}
