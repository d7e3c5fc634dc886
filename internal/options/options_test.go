package options

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func alterSchema() Schema {
	return Schema{
		"label": Leaf(""),
		"alter": Nested(Schema{
			"alter_text": Leaf(false),
			"text":       Leaf(""),
		}),
		"settings": Leaf(map[string]any{"a": 1}),
	}
}

func TestDefaults_Nested(t *testing.T) {
	got := alterSchema().Defaults()
	want := Values{
		"label":    "",
		"alter":    map[string]any{"alter_text": false, "text": ""},
		"settings": map[string]any{"a": 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestUnpack_MergesIntoNestedDefaults(t *testing.T) {
	got := Resolve(alterSchema(), map[string]any{
		"alter":   map[string]any{"text": "[title]"},
		"unknown": "kept",
	})
	require.Equal(t, "[title]", got.String("alter", "text"))
	require.False(t, got.Bool("alter", "alter_text"))
	require.Equal(t, "kept", got.String("unknown"))
}

func TestUnpack_KnownOnly(t *testing.T) {
	got := Unpack(alterSchema().Defaults(), map[string]any{
		"unknown":  "dropped",
		"extra":    map[string]any{"x": 1},
		"settings": map[string]any{"b": 2},
	}, alterSchema(), false)
	_, ok := got.Get("unknown")
	require.False(t, ok)
	_, ok = got.Get("extra")
	require.False(t, ok)
	// a leaf option receiving a map takes it as a whole
	require.Equal(t, map[string]any{"b": 2}, got["settings"])
}

func TestDefaults_AreIndependentCopies(t *testing.T) {
	s := alterSchema()
	a := s.Defaults()
	a.Set("changed", "settings", "a")
	b := s.Defaults()
	require.Equal(t, 1, b.Int("settings", "a"))
}

func TestValues_Accessors(t *testing.T) {
	v := Values{
		"n":     "42",
		"flag":  "0",
		"on":    1,
		"list":  []any{"a", 2},
		"set":   map[string]any{"page_1": true, "block_1": false, "feed": "feed"},
		"float": 3.0,
	}
	require.Equal(t, 42, v.Int("n"))
	require.Equal(t, 3, v.Int("float"))
	require.False(t, v.Bool("flag"))
	require.True(t, v.Bool("on"))
	require.Equal(t, []string{"a", "2"}, v.Strings("list"))
	require.Equal(t, []string{"feed", "page_1"}, v.Strings("set"))
	require.Equal(t, "", v.String("missing", "deep"))

	v.Set("x", "a", "b", "c")
	require.Equal(t, "x", v.String("a", "b", "c"))
}
