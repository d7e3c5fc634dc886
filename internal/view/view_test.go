package view

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hanpama/viewexec/internal/cache"
	"github.com/hanpama/viewexec/internal/display"
	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/registry"
	"github.com/hanpama/viewexec/internal/viewdef"
)

const schemaYAML = `
tables:
  node:
    base: {field: nid, title: Content}
    fields:
      nid:
        title: ID
        field: {plugin: numeric}
        argument: {}
        sort: {}
      title:
        title: Title
        field: {}
        filter: {}
        sort: {}
      type:
        title: Type
        field: {}
        filter: {}
        argument: {}
      status:
        title: Status
        field: {}
        filter: {}
      secret:
        title: Secret
        real_field: title
        permission: view secrets
        field: {}
      uid:
        title: Author
        relationship: {base: users}
        field: {plugin: related, extra: {lookup_table: users, lookup_key: uid, lookup_value: name}}
  users:
    base: {field: uid}
    joins:
      node: {left_field: uid, field: uid}
    fields:
      name:
        title: Name
        field: {}
`

// countingRunner counts statements sent to the database.
type countingRunner struct {
	db *sql.DB
	n  atomic.Int64
}

func (r *countingRunner) QueryContext(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	r.n.Add(1)
	return r.db.QueryContext(ctx, q, args...)
}

type staticAccount map[string]bool

func (a staticAccount) HasPermission(p string) bool { return a[p] }

type fixture struct {
	env    *Env
	runner *countingRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
CREATE TABLE users (uid INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE node (nid INTEGER PRIMARY KEY, title TEXT, type TEXT, status TEXT, uid INTEGER);
INSERT INTO users VALUES (1, 'alice'), (2, 'bob');
INSERT INTO node VALUES
  (1, 'One', 'article', 'published', 1),
  (2, 'Two', 'page', 'draft', 2),
  (3, 'Three', 'article', 'published', 1),
  (4, 'Four', 'page', 'draft', 2),
  (5, 'Five', 'article', 'published', 1),
  (6, 'Six', 'article', 'draft', 2),
  (7, 'Seven', 'page', 'draft', 1),
  (8, 'Eight', 'article', 'published', 2),
  (9, 'Nine', 'page', 'draft', 1),
  (10, 'Ten', 'article', 'draft', 2);
`)
	require.NoError(t, err)
	schema, err := registry.ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	store, err := cache.NewStore(64)
	require.NoError(t, err)
	r := &countingRunner{db: db}
	return &fixture{
		runner: r,
		env: &Env{
			Registry: registry.New(schema),
			Runner:   r,
			Cache:    store,
			Bus:      eventbus.New(),
			Stack:    NewStack(),
		},
	}
}

func parseView(t *testing.T, doc string) *viewdef.View {
	t.Helper()
	v, err := viewdef.Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func contents(out *display.Output, field string) []string {
	var got []string
	for _, r := range out.Rows {
		for _, f := range r.Fields {
			if f.ID == field {
				got = append(got, f.Content)
			}
		}
	}
	return got
}

const publishedYAML = `
name: published
base_table: node
displays:
  - id: default
    display_plugin: default
    display_options:
      title: Published
      pager: {type: full, options: {items_per_page: 4}}
    handlers:
      fields:
        - {id: title, table: node, field: title}
        - {id: secret, table: node, field: secret}
      filters:
        - {id: status, table: node, field: status, value: published}
      sorts:
        - {id: nid, table: node, field: nid, order: ASC}
      header:
        - {id: result, table: views, field: result}
`

func TestRenderPublishedFirstPage(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, publishedYAML), f.env)

	out, err := e.Render(context.Background(), "default")
	require.NoError(t, err)
	require.NotNil(t, out)

	if diff := cmp.Diff([]string{"One", "Three", "Five", "Eight"}, contents(out, "title")); diff != "" {
		t.Fatalf("titles mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 4, out.Pager.TotalItems)
	require.Equal(t, 1, out.Pager.TotalPages)
	require.Equal(t, []string{"Displaying 1 - 4 of 4"}, out.Header)
	require.Equal(t, "Published", out.Title)
	require.NotEmpty(t, out.DomID)
	require.Equal(t, 200, e.Response().Status)

	for i, row := range e.Result().Rows {
		require.Equal(t, i, row.Index)
	}
}

func TestPagingIndicesAreContiguous(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, publishedYAML), f.env, WithRequest(Request{Query: url.Values{"page": {"1"}}}))
	e.SetItemsPerPage(3)

	require.NoError(t, e.Execute(context.Background(), ""))
	require.Equal(t, 1, e.CurrentPage())
	require.Len(t, e.Result().Rows, 1)
	require.Equal(t, 0, e.Result().Rows[0].Index)
	require.Equal(t, "Eight", e.Result().Rows[0].Value("node_title"))
}

func TestAccessFilteredHandlers(t *testing.T) {
	f := newFixture(t)

	e := New(parseView(t, publishedYAML), f.env)
	out, err := e.Render(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, contents(out, "secret"))
	require.Equal(t, []string{"secret"}, e.DeniedHandlers(handler.Field))
	_, ok := e.Handlers(handler.Field).Get("secret")
	require.False(t, ok)

	e = New(parseView(t, publishedYAML), f.env, WithAccount(staticAccount{"view secrets": true}))
	out, err = e.Render(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"One", "Three", "Five", "Eight"}, contents(out, "secret"))
	require.Empty(t, e.DeniedHandlers(handler.Field))
}

func TestBuildIsIdempotent(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, publishedYAML), f.env)
	ctx := context.Background()

	var builds int
	eventbus.Subscribe(f.env.Bus, func(context.Context, PreBuild) { builds++ })

	require.NoError(t, e.Build(ctx, ""))
	q := e.BuildInfo().Query
	fields := e.Handlers(handler.Field)
	require.NoError(t, e.Build(ctx, ""))

	require.Equal(t, 1, builds)
	require.Same(t, q, e.BuildInfo().Query)
	require.Same(t, fields, e.Handlers(handler.Field))
	require.Zero(t, f.runner.n.Load(), "build does not touch the database")
}

func TestResultsCacheHitSkipsBackend(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, publishedYAML)
	v.SetOption("default", "cache", map[string]any{"type": "time", "options": map[string]any{"results_lifespan": 60}})
	ctx := context.Background()

	first := New(v, f.env)
	require.NoError(t, first.Execute(ctx, ""))
	calls := f.runner.n.Load()
	require.Positive(t, calls)

	var hits []bool
	eventbus.Subscribe(f.env.Bus, func(_ context.Context, ev CacheLookup) {
		if ev.Artifact == "results" {
			hits = append(hits, ev.Hit)
		}
	})
	second := New(v, f.env)
	require.NoError(t, second.Execute(ctx, ""))

	require.Equal(t, calls, f.runner.n.Load(), "cache hit must not query")
	require.Equal(t, []bool{true}, hits)
	if diff := cmp.Diff(first.Result(), second.Result()); diff != "" {
		t.Fatalf("cached result mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 4, second.Pager().TotalItems())
}

func TestOutputCacheHitSkipsRender(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, publishedYAML)
	v.SetOption("default", "cache", map[string]any{"type": "time", "options": map[string]any{"results_lifespan": 60, "output_lifespan": 60}})
	ctx := context.Background()

	var preRenders int
	var hits []bool
	eventbus.Subscribe(f.env.Bus, func(context.Context, PreRender) { preRenders++ })
	eventbus.Subscribe(f.env.Bus, func(_ context.Context, ev CacheLookup) {
		if ev.Artifact == "output" {
			hits = append(hits, ev.Hit)
		}
	})

	first, err := New(v, f.env).Render(ctx, "")
	require.NoError(t, err)
	second, err := New(v, f.env).Render(ctx, "")
	require.NoError(t, err)

	require.Equal(t, 1, preRenders)
	require.Equal(t, []bool{false, true}, hits)
	if diff := cmp.Diff(contents(first, "title"), contents(second, "title")); diff != "" {
		t.Fatalf("cached output mismatch (-want +got):\n%s", diff)
	}
}

func TestOutputCacheKeyedByDeniedHandlers(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, publishedYAML)
	v.SetOption("default", "cache", map[string]any{"type": "time", "options": map[string]any{"results_lifespan": 60, "output_lifespan": 60}})
	ctx := context.Background()

	privileged := New(v, f.env, WithAccount(staticAccount{"view secrets": true}))
	out, err := privileged.Render(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"One", "Three", "Five", "Eight"}, contents(out, "secret"))

	anonymous := New(v, f.env)
	out, err = anonymous.Render(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"secret"}, anonymous.DeniedHandlers(handler.Field))
	require.Empty(t, contents(out, "secret"), "denied field served from output cache")
	require.Equal(t, []string{"One", "Three", "Five", "Eight"}, contents(out, "title"))

	// a second anonymous render shares the anonymous entry
	var hits []bool
	eventbus.Subscribe(f.env.Bus, func(_ context.Context, ev CacheLookup) {
		if ev.Artifact == "output" {
			hits = append(hits, ev.Hit)
		}
	})
	out, err = New(v, f.env).Render(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []bool{true}, hits)
	require.Empty(t, contents(out, "secret"))
}

const argumentYAML = `
name: by_type
base_table: node
displays:
  - id: default
    display_plugin: default
    display_options:
      title: Content
      pager: {type: none}
    handlers:
      fields:
        - {id: title, table: node, field: title}
      arguments:
        - id: type
          table: node
          field: type
          default_action: default
          default_argument_type: fixed
          default_argument_options: {argument: none}
          default_argument_skip_url: true
          title_enable: true
          title: "Type %1"
      sorts:
        - {id: nid, table: node, field: nid}
  - id: page_1
    display_plugin: page
    display_options:
      path: content/%
`

func TestArgumentExplicitBeatsDefault(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, argumentYAML), f.env)

	out, err := e.ExecuteDisplay(context.Background(), "page_1", []string{"page"})
	require.NoError(t, err)
	require.Equal(t, []string{"Two", "Four", "Seven", "Nine"}, contents(out, "title"))

	h, _ := e.Handlers(handler.Argument).Get("type")
	arg := h.(handler.ArgumentBinder)
	require.False(t, arg.IsDefaultDerived())
	require.Equal(t, "page", arg.Argument())
	require.Equal(t, "Type page", e.GetTitle())
	require.Equal(t, "content/page", e.GetURL(nil, ""))
}

func TestArgumentDefaultSkippedInURL(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, argumentYAML), f.env)

	out, err := e.ExecuteDisplay(context.Background(), "page_1", nil)
	require.NoError(t, err)
	require.Empty(t, out.Rows)

	h, _ := e.Handlers(handler.Argument).Get("type")
	arg := h.(handler.ArgumentBinder)
	require.True(t, arg.IsDefaultDerived())
	require.Equal(t, "none", arg.Argument())
	require.Equal(t, []string{"none"}, e.Args())
	require.Equal(t, "content/all", e.GetURL(nil, ""))
	require.Equal(t, "content/none", e.GetURL([]string{"none"}, ""))
}

func TestGetURL(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, argumentYAML), f.env)
	require.True(t, e.SetDisplay("page_1"))

	tests := []struct {
		args []string
		path string
		want string
	}{
		{[]string{"a"}, "x/%/y", "x/a/y"},
		{[]string{"a", "b"}, "x/%", "x/a/b"},
		{[]string{}, "x/%/%", "x/all/*"},
		{[]string{}, "plain", "plain"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, e.GetURL(tt.args, tt.path), "path %s args %v", tt.path, tt.args)
	}
	e.SetOverrideURL("fixed")
	require.Equal(t, "fixed", e.GetURL([]string{"a"}, "x/%"))
}

func TestArgumentValidationFailure(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, argumentYAML)
	v.AddItem("default", "arguments", "node", "nid", map[string]any{"validate": map[string]any{"type": "numeric"}}, "")

	e := New(v, f.env)
	out, err := e.ExecuteDisplay(context.Background(), "page_1", []string{"article", "abc"})
	require.NoError(t, err)
	require.Nil(t, out)
	require.True(t, e.Failed())
	require.Equal(t, 404, e.Response().Status)
}

func TestArgumentAccessDeniedAction(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, argumentYAML)
	v.SetItemOption("default", "arguments", "type", "default_action", handler.ActionAccessDenied)

	e := New(v, f.env)
	out, err := e.ExecuteDisplay(context.Background(), "page_1", nil)
	require.NoError(t, err)
	require.Nil(t, out)
	require.True(t, e.Denied())
	require.Equal(t, 403, e.Response().Status)
}

func TestArgumentEmptyActionRendersEmptyText(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, argumentYAML)
	v.SetItemOption("default", "arguments", "type", "default_action", handler.ActionEmpty)
	v.AddItem("default", "empty", "views", "area", map[string]any{"content": "Nothing here"}, "")

	e := New(v, f.env)
	out, err := e.Render(context.Background(), "default")
	require.NoError(t, err)
	require.Equal(t, []string{"Nothing here"}, out.Empty)
	require.Empty(t, out.Rows)
	require.Zero(t, f.runner.n.Load())
}

func TestArgumentSummary(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, argumentYAML)
	v.SetItemOption("default", "arguments", "type", "default_action", handler.ActionSummary)

	e := New(v, f.env)
	out, err := e.ExecuteDisplay(context.Background(), "page_1", nil)
	require.NoError(t, err)
	require.True(t, e.BuildInfo().Summary)

	want := []display.SummaryItem{
		{Name: "article", Argument: "article", URL: "content/article", Count: 6},
		{Name: "page", Argument: "page", URL: "content/page", Count: 4},
	}
	require.Equal(t, "summary", out.Style)
	if diff := cmp.Diff(want, out.Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestBreadcrumb(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, argumentYAML)
	v.SetItemOption("default", "arguments", "type", "default_action", handler.ActionSummary)
	v.AddItem("default", "arguments", "node", "nid", nil, "")
	v.SetOption("page_1", "path", "content/%/%")

	e := New(v, f.env)
	_, err := e.ExecuteDisplay(context.Background(), "page_1", []string{"article", "5"})
	require.NoError(t, err)

	want := []Crumb{{Path: "content/all/all", Title: "Content"}}
	if diff := cmp.Diff(want, e.GetBreadcrumb()); diff != "" {
		t.Fatalf("breadcrumb mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, map[string]string{"%1": "article", "!1": "article", "%2": "5", "!2": "5"}, e.Substitutions())
}

const attachYAML = `
name: with_attachment
base_table: node
displays:
  - id: default
    display_plugin: default
    display_options:
      pager: {type: full, options: {items_per_page: 3}}
    handlers:
      fields:
        - {id: title, table: node, field: title}
      sorts:
        - {id: nid, table: node, field: nid}
  - id: page_1
    display_plugin: page
    display_options:
      path: list
  - id: attachment_1
    display_plugin: attachment
    display_options:
      displays: {page_1: page_1}
      attachment_position: after
      pager: {type: some, options: {items_per_page: 2, offset: 8}}
`

func TestAttachmentRunsInChildExecutor(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, attachYAML), f.env)

	var during []bool
	var current []*Executor
	eventbus.Subscribe(f.env.Bus, func(_ context.Context, ev PostBuild) {
		if ev.Executor != e {
			during = append(during, ev.Executor.IsAttachment())
			current = append(current, ev.Executor.Stack().Current())
		}
	})

	out, err := e.ExecuteDisplay(context.Background(), "page_1", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"One", "Two", "Three"}, contents(out, "title"))
	require.Empty(t, out.AttachmentBefore)
	require.Len(t, out.AttachmentAfter, 1)
	require.Equal(t, []string{"Nine", "Ten"}, contents(out.AttachmentAfter[0], "title"))

	children := e.AttachedExecutors()
	require.Len(t, children, 1)
	child := children[0]
	require.Equal(t, []bool{true}, during)
	require.Equal(t, []*Executor{child}, current)
	require.False(t, child.IsAttachment())
	require.False(t, e.IsAttachment())
	require.Same(t, e.View(), child.View())
	require.Zero(t, e.Stack().Len())
}

func TestAttachmentNotOnOtherDisplays(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, attachYAML), f.env)
	out, err := e.ExecuteDisplay(context.Background(), "default", nil)
	require.NoError(t, err)
	require.Empty(t, out.AttachmentAfter)
	require.Empty(t, e.AttachedExecutors())
}

const exposedYAML = `
name: search
base_table: node
displays:
  - id: default
    display_plugin: default
    display_options:
      pager: {type: none}
    handlers:
      fields:
        - {id: title, table: node, field: title}
      filters:
        - id: title
          table: node
          field: title
          operator: contains
          exposed: true
          expose: {identifier: q_title, label: Title, remember: true}
      sorts:
        - {id: nid, table: node, field: nid}
`

func TestExposedFilterInput(t *testing.T) {
	f := newFixture(t)
	session := NewMemorySession()
	req := Request{Query: url.Values{"q_title": {"e"}, "page": {"0"}}, Session: session}

	e := New(parseView(t, exposedYAML), f.env, WithRequest(req))
	out, err := e.Render(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"One", "Three", "Five", "Seven", "Eight", "Nine", "Ten"}, contents(out, "title"))
	require.Equal(t, []display.Widget{{ID: "q_title", Label: "Title", Value: "e"}}, out.Exposed.Widgets)

	// the next request without input sees the remembered value
	e = New(parseView(t, exposedYAML), f.env, WithRequest(Request{Session: session}))
	require.True(t, e.SetDisplay("default"))
	require.Equal(t, map[string]string{"q_title": "e"}, e.ExposedInput())

	// no input means the filter is skipped
	e = New(parseView(t, exposedYAML), f.env)
	out, err = e.Render(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, out.Rows, 10)
}

func TestExposedRequiredInputStopsQuery(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, exposedYAML)
	v.SetItemOption("default", "filters", "title", "expose", map[string]any{"identifier": "q_title", "required": true})

	e := New(v, f.env)
	out, err := e.Render(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.True(t, e.Executed())
	require.Empty(t, out.Rows)
	require.Len(t, out.Exposed.Errors, 1)
	require.Zero(t, f.runner.n.Load())
}

func TestPreBuildAbort(t *testing.T) {
	f := newFixture(t)
	eventbus.Subscribe(f.env.Bus, func(_ context.Context, ev PreBuild) { ev.Executor.Abort() })
	e := New(parseView(t, publishedYAML), f.env)
	out, err := e.Render(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out.Rows)
	require.Zero(t, f.runner.n.Load())
}

func TestDestroyAllowsRebuild(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, publishedYAML), f.env)
	ctx := context.Background()

	first, err := e.Render(ctx, "")
	require.NoError(t, err)
	e.Destroy()
	require.False(t, e.Built())
	require.False(t, e.Executed())
	require.Nil(t, e.Result())

	second, err := e.Render(ctx, "")
	require.NoError(t, err)
	require.Equal(t, contents(first, "title"), contents(second, "title"))
}

func TestInvalidDisplayFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	e := New(parseView(t, publishedYAML), f.env)
	require.True(t, e.SetDisplay("missing"))
	require.Equal(t, "default", e.DisplayID())
}

func TestDisabledDisplay(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, publishedYAML)
	v.SetOption("default", "enabled", false)

	e := New(v, f.env)
	out, err := e.Render(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, out)
	require.True(t, e.Failed())

	e = New(v, f.env)
	e.SetLivePreview(true)
	out, err = e.Preview(context.Background(), "default", nil)
	require.NoError(t, err)
	require.Len(t, out.Rows, 4)
}

func TestLivePreviewCapturesRenderQueries(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, publishedYAML)
	v.AddItem("default", "fields", "node", "uid", nil, "author")

	var stops int
	eventbus.Subscribe(f.env.Bus, func(_ context.Context, ev QueryCaptureStop) { stops++ })
	e := New(v, f.env)
	e.SetLivePreview(true)
	out, err := e.Preview(context.Background(), "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "alice", "alice", "bob"}, contents(out, "author"))
	require.Len(t, e.CapturedQueries(), 1)
	require.Contains(t, e.CapturedQueries()[0], `"users"`)
	require.Equal(t, 1, stops)
	require.Equal(t, "alice", e.RenderField("author", 0))
}

func TestTableClickSort(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, publishedYAML)
	v.SetOption("default", "style", map[string]any{"type": "table"})
	req := Request{Query: url.Values{"order": {"title"}, "sort": {"desc"}}}

	e := New(v, f.env, WithRequest(req))
	out, err := e.Render(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"Three", "One", "Five", "Eight"}, contents(out, "title"))
	require.Equal(t, []display.Column{{ID: "title", Label: "Title", Active: true, Order: "desc"}}, out.Columns)
}

func TestRestExportSerializes(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, publishedYAML)
	_, err := v.NewDisplay("rest_export", "API", "rest_1")
	require.NoError(t, err)
	v.SetOption("rest_1", "path", "api/published")
	v.SetOption("rest_1", "style", map[string]any{"type": "serializer"})

	e := New(v, f.env)
	out, err := e.ExecuteDisplay(context.Background(), "rest_1", nil)
	require.NoError(t, err)
	require.Equal(t, "application/json", e.Response().Header.Get("Content-Type"))

	var got []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out.Body), &got))
	want := []map[string]string{{"title": "One"}, {"title": "Three"}, {"title": "Five"}, {"title": "Eight"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, attachYAML)
	v.AddItem("default", "fields", "node", "nope", nil, "")
	v.SetOption("page_1", "path", "")

	err := New(v, f.env).Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, `broken field handler "nope"`)
	require.ErrorContains(t, err, "display page_1 uses a path but the path is undefined")
}

func TestChooseDisplayAndAccess(t *testing.T) {
	f := newFixture(t)
	v := parseView(t, attachYAML)
	v.Override("page_1", "access")
	v.SetOption("page_1", "access", map[string]any{"type": "perm", "perm": "see list"})

	e := New(v, f.env)
	require.Equal(t, "default", e.ChooseDisplay([]string{"page_1", "default"}))
	require.False(t, e.Access([]string{"page_1"}, nil))
	require.True(t, e.Access([]string{"page_1"}, staticAccount{"see list": true}))
}
