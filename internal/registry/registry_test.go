package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/viewexec/internal/handler"
	"github.com/hanpama/viewexec/internal/query"
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
      uid:
        title: Author
        permission: access user profiles
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

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	require.Equal(t, []string{"node", "users", GlobalTable}, s.TableNames())

	bi, ok := s.BaseInfo("node")
	require.True(t, ok)
	require.Equal(t, "nid", bi.Field)

	j, ok := s.JoinFor("users", "node")
	require.True(t, ok)
	if diff := cmp.Diff(query.Join{Table: "users", LeftTable: "node", LeftField: "uid", Field: "uid"}, j); diff != "" {
		t.Fatalf("join mismatch (-want +got):\n%s", diff)
	}
	_, ok = s.JoinFor("node", "users")
	require.False(t, ok)
}

func TestResolve(t *testing.T) {
	s, err := ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	r := New(s)

	h, def := r.Resolve("node", "title", handler.Filter)
	require.IsType(t, &handler.FilterHandler{}, h)
	require.Equal(t, "string", def.Plugin)
	require.Equal(t, "Title", def.Title)

	h, _ = r.Resolve("node", "nid", handler.Field)
	require.IsType(t, &handler.NumericField{}, h)

	h, def = r.Resolve("node", "uid", handler.Relationship)
	require.IsType(t, &handler.RelationshipHandler{}, h)
	require.Equal(t, "users", def.Base)
	require.Equal(t, "uid", def.BaseField, "base field falls back to the target base table")
	require.Equal(t, "access user profiles", def.Permission)

	h, _ = r.Resolve(GlobalTable, "result", handler.Footer)
	require.IsType(t, &handler.ResultArea{}, h)

	h, _ = r.ResolvePlugin("node", "title", handler.Filter, "in_operator")
	require.IsType(t, &handler.InOperatorFilter{}, h)
}

func TestResolveBroken(t *testing.T) {
	r := New(NewSchema(&Table{Name: "node", Fields: map[string]FieldInfo{
		"title": {Handlers: map[string]*HandlerInfo{"field": {Plugin: "fancy"}}},
	}}))
	for _, tc := range []struct {
		table, field string
		kind         handler.Kind
	}{
		{"missing", "title", handler.Field},
		{"node", "missing", handler.Field},
		{"node", "title", handler.Sort},
		{"node", "title", handler.Field},
	} {
		h, _ := r.Resolve(tc.table, tc.field, tc.kind)
		require.True(t, h.Broken(), "%s.%s as %s", tc.table, tc.field, tc.kind)
	}

	r.RegisterHandler("field", "fancy", func() handler.Handler { return handler.NewField() })
	h, _ := r.Resolve("node", "title", handler.Field)
	require.False(t, h.Broken())
	require.Contains(t, r.Plugins("field"), "fancy")
}
