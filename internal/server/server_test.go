package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/hanpama/viewexec/internal/access"
	"github.com/hanpama/viewexec/internal/display"
	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/events"
	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/registry"
	"github.com/hanpama/viewexec/internal/view"
	"github.com/hanpama/viewexec/internal/viewdef"
)

const schemaYAML = `
tables:
  node:
    base: {field: nid, title: Content}
    fields:
      nid: {title: ID, field: {plugin: numeric}, argument: {}, sort: {}}
      title: {title: Title, field: {}, filter: {}, sort: {}}
      type: {title: Type, field: {}, filter: {}, argument: {}}
`

const contentYAML = `
name: content
base_table: node
displays:
  - id: default
    display_plugin: default
    display_options:
      pager: {type: none}
    handlers:
      fields:
        - {id: title, table: node, field: title}
      arguments:
        - {id: type, table: node, field: type, default_action: not found}
      sorts:
        - {id: nid, table: node, field: nid}
  - id: page_1
    display_plugin: page
    display_options:
      path: content/%
  - id: rest_1
    display_plugin: rest_export
    display_options:
      path: api/content/%
      style: {type: serializer}
  - id: page_admin
    display_plugin: page
    display_options:
      path: admin/content/%
      access: {type: perm, perm: administer content}
`

func newTestHandler(t *testing.T, opts ...Option) (*Handler, *eventbus.Bus) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
CREATE TABLE node (nid INTEGER PRIMARY KEY, title TEXT, type TEXT);
INSERT INTO node VALUES (1, 'One', 'article'), (2, 'Two', 'page'), (3, 'Three', 'article');
`)
	require.NoError(t, err)

	schema, err := registry.ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	v, err := viewdef.Parse([]byte(contentYAML))
	require.NoError(t, err)

	bus := eventbus.New()
	env := view.Env{Registry: registry.New(schema), Runner: db, Bus: bus}
	h, err := New(env, viewdef.NewMemoryStore(v), opts...)
	require.NoError(t, err)
	return h, bus
}

func get(t *testing.T, h http.Handler, path string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func titles(out display.Output) []string {
	var got []string
	for _, r := range out.Rows {
		for _, f := range r.Fields {
			got = append(got, f.Content)
		}
	}
	return got
}

func TestServePage(t *testing.T) {
	h, bus := newTestHandler(t)
	var finished []events.HTTPFinish
	eventbus.Subscribe(bus, func(_ context.Context, e events.HTTPFinish) { finished = append(finished, e) })

	w := get(t, h, "/content/article", RequestIDHeader, "rid-1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "rid-1", w.Header().Get(RequestIDHeader))

	var out display.Output
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, "content", out.View)
	require.Equal(t, "page_1", out.Display)
	if diff := cmp.Diff([]string{"One", "Three"}, titles(out)); diff != "" {
		t.Fatalf("titles mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, finished, 1)
	require.Equal(t, "content", finished[0].View)
	require.Equal(t, "page_1", finished[0].Display)
	require.Equal(t, http.StatusOK, finished[0].Status)
}

func TestServeRestExport(t *testing.T) {
	h, _ := newTestHandler(t)
	w := get(t, h, "/api/content/page")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got []map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, []map[string]string{{"title": "Two"}}, got)
}

func TestServeStatuses(t *testing.T) {
	h, _ := newTestHandler(t, WithAccount(func(r *http.Request) handler.Account {
		if r.Header.Get("X-User") == "admin" {
			return access.Static{"administer content": true}
		}
		return nil
	}))

	tests := []struct {
		name string
		path string
		hdr  []string
		want int
	}{
		{"no route", "/nothing/here", nil, http.StatusNotFound},
		{"missing argument", "/content", nil, http.StatusNotFound},
		{"denied display", "/admin/content/article", nil, http.StatusForbidden},
		{"granted display", "/admin/content/article", []string{"X-User", "admin"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, h, tt.path, tt.hdr...)
			require.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	req := httptest.NewRequest("POST", "/content/article", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouteSpecificity(t *testing.T) {
	h, _ := newTestHandler(t)
	r, args, ok := h.lookup("/api/content/article/extra")
	require.True(t, ok)
	require.Equal(t, "rest_1", r.display)
	require.Equal(t, []string{"article", "extra"}, args)

	r, args, ok = h.lookup("/content/page")
	require.True(t, ok)
	require.Equal(t, "page_1", r.display)
	require.Equal(t, []string{"page"}, args)
}

func TestSessionCookie(t *testing.T) {
	h, _ := newTestHandler(t)
	w := get(t, h, "/content/article")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, sessionCookie, cookies[0].Name)

	req := httptest.NewRequest("GET", "/content/article", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Empty(t, w.Result().Cookies())
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t, WithCORS("https://example.com"))
	req := httptest.NewRequest("OPTIONS", "/content/article", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
