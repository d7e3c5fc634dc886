package viewdef

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const articlesYAML = `
name: articles
base_table: node
displays:
  - id: default
    display_plugin: default
    display_options:
      title: Articles
      pager:
        type: full
        options:
          items_per_page: 4
    handlers:
      fields:
        - id: title
          table: node
          field: title
        - id: status
          table: node
          field: status
          empty_zero: true
      filters:
        - id: status
          table: node
          field: status
          value: published
  - id: page_1
    display_plugin: page
    display_options:
      path: articles
      pager:
        type: some
        options:
          items_per_page: 2
    handlers:
      filters: []
`

func TestParse_DecodesDisplaysAndHandlers(t *testing.T) {
	v, err := Parse([]byte(articlesYAML))
	require.NoError(t, err)
	require.Equal(t, "node", v.BaseTable)
	require.Equal(t, []string{"default", "page_1"}, v.DisplayIDs())

	fields := v.Items("page_1", "fields")
	require.Len(t, fields, 2)
	require.Equal(t, "status", fields[1].ID)
	require.Equal(t, true, fields[1].Options["empty_zero"])

	// page_1 overrides filters with an empty list
	require.Empty(t, v.Items("page_1", "filters"))
	require.Len(t, v.Items("default", "filters"), 1)
}

func TestParse_RejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("name: x\ndisplays: []\n"))
	require.True(t, errors.Is(err, ErrInvalid))

	_, err = Parse([]byte(`
name: x
base_table: node
displays:
  - id: page_1
    display_plugin: page
`))
	require.True(t, errors.Is(err, ErrInvalid), "default display must come first")
}

func TestParse_RejectsDuplicateHandlerIDs(t *testing.T) {
	_, err := Parse([]byte(`
name: x
base_table: node
displays:
  - id: default
    display_plugin: default
    handlers:
      filters:
        - {id: status, table: node, field: status, value: published}
        - {id: status, table: node, field: type, value: page}
`))
	require.True(t, errors.Is(err, ErrInvalid))
	require.ErrorContains(t, err, `display default has duplicate filters handler "status"`)

	// the same id under another kind is fine
	_, err = Parse([]byte(`
name: x
base_table: node
displays:
  - id: default
    display_plugin: default
    handlers:
      fields:
        - {id: status, table: node, field: status}
      filters:
        - {id: status, table: node, field: status, value: published}
`))
	require.NoError(t, err)
}

func TestOptionInheritance(t *testing.T) {
	v, err := Parse([]byte(articlesYAML))
	require.NoError(t, err)

	title, ok := v.Option("page_1", "title")
	require.True(t, ok)
	require.Equal(t, "Articles", title)
	require.True(t, v.IsDefaulted("page_1", "title"))
	require.False(t, v.IsDefaulted("page_1", "pager"))
	require.False(t, v.IsDefaulted("page_1", "filters"))
	require.True(t, v.IsDefaulted("page_1", "fields"))

	sel, err := v.Plugin("page_1", "pager")
	require.NoError(t, err)
	require.Equal(t, "some", sel.Type)
	require.Equal(t, 2, sel.Options["items_per_page"])

	// Setting an inherited option writes to the default display.
	v.SetOption("page_1", "title", "All articles")
	got, _ := v.Option("default", "title")
	require.Equal(t, "All articles", got)

	v.Override("page_1", "title")
	v.SetOption("page_1", "title", "Page")
	got, _ = v.Option("default", "title")
	require.Equal(t, "All articles", got)
	got, _ = v.Option("page_1", "title")
	require.Equal(t, "Page", got)
}

func TestGenerateItemID(t *testing.T) {
	existing := []HandlerConfig{{ID: "title"}, {ID: "title_1"}}
	require.Equal(t, "body", GenerateItemID("body", existing))
	require.Equal(t, "title_2", GenerateItemID("title", existing))
}

func TestAddItem_SetItem(t *testing.T) {
	v, err := Parse([]byte(articlesYAML))
	require.NoError(t, err)

	id := v.AddItem("page_1", "fields", "node", "title", map[string]any{"label": "Again"}, "")
	require.Equal(t, "title_1", id)
	// fields are inherited, so the default display receives the item
	item, ok := v.Item("default", "fields", "title_1")
	require.True(t, ok)
	require.Equal(t, "Again", item.Options["label"])

	v.SetItemOption("default", "fields", "title_1", "exclude", true)
	item, _ = v.Item("default", "fields", "title_1")
	require.Equal(t, true, item.Options["exclude"])

	v.SetItem("default", "fields", "title_1", nil)
	_, ok = v.Item("default", "fields", "title_1")
	require.False(t, ok)

	ids := []string{}
	for _, it := range v.Items("default", "fields") {
		ids = append(ids, it.ID)
	}
	if diff := cmp.Diff([]string{"title", "status"}, ids); diff != "" {
		t.Fatalf("field order mismatch (-want +got):\n%s", diff)
	}
}

func TestNewDisplay(t *testing.T) {
	v, err := Parse([]byte(articlesYAML))
	require.NoError(t, err)
	d, err := v.NewDisplay("block", "Block", "")
	require.NoError(t, err)
	require.Equal(t, "block_1", d.ID)
	_, err = v.NewDisplay("page", "", "page_1")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestFileStore_SaveLoad(t *testing.T) {
	v, err := Parse([]byte(articlesYAML))
	require.NoError(t, err)
	s := NewFileStore(t.TempDir())
	v.Bind(s)
	require.NoError(t, v.Save())

	names, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"articles"}, names)

	loaded, err := s.Load("articles")
	require.NoError(t, err)
	require.Equal(t, v.DisplayIDs(), loaded.DisplayIDs())
	require.Len(t, loaded.Items("default", "fields"), 2)

	_, err = s.Load("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSave_Unbound(t *testing.T) {
	v := &View{Name: "x", BaseTable: "node", Displays: []*Display{{ID: "default", Plugin: "default"}}}
	require.ErrorIs(t, v.Save(), ErrNoStore)
	s := NewMemoryStore()
	v.Bind(s)
	require.NoError(t, v.Save())
	require.Equal(t, 1, s.Saves)
}
