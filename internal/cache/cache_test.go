package cache

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/viewexec/internal/query"
)

func TestStoreCopiesAndExpires(t *testing.T) {
	s, err := NewStore(2)
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	in := map[string]any{"a": []any{"x"}}
	require.NoError(t, s.Set("k", in, time.Minute))
	in["a"] = "changed"

	got, ok := s.Get("k")
	require.True(t, ok)
	if diff := cmp.Diff(map[string]any{"a": []any{"x"}}, got); diff != "" {
		t.Fatalf("stored value changed (-want +got):\n%s", diff)
	}
	got.(map[string]any)["a"] = "mutated"
	again, _ := s.Get("k")
	require.Equal(t, []any{"x"}, again.(map[string]any)["a"])

	now = now.Add(2 * time.Minute)
	_, ok = s.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestStoreEvicts(t *testing.T) {
	s, err := NewStore(2)
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(k, k, 0))
	}
	_, ok := s.Get("a")
	require.False(t, ok)
	require.Equal(t, 2, s.Len())
}

func TestKeyString(t *testing.T) {
	a := Key{View: "v", Display: "d", Args: []string{"1"}, Exposed: map[string]string{"x": "1", "y": "2"}}
	b := Key{View: "v", Display: "d", Args: []string{"1"}, Exposed: map[string]string{"y": "2", "x": "1"}}
	require.Equal(t, a.String(), b.String())
	b.Page = 1
	require.NotEqual(t, a.String(), b.String())

	c := a
	c.Denied = map[string][]string{"field": {"secret"}}
	require.NotEqual(t, a.String(), c.String())
}

func TestStrategies(t *testing.T) {
	require.Equal(t, []string{"none", "time"}, Types())
	_, err := New("bogus", nil, nil)
	require.ErrorIs(t, err, ErrUnknownStrategy)

	none, err := New("", nil, nil)
	require.NoError(t, err)
	k := Key{View: "v", Display: "d"}
	require.NoError(t, none.SetResults(k, &query.Result{Total: 1}))
	_, ok := none.GetResults(k)
	require.False(t, ok)

	store, err := NewStore(0)
	require.NoError(t, err)
	st, err := New("time", map[string]any{"results_lifespan": "60", "output_lifespan": 0}, store)
	require.NoError(t, err)
	require.Equal(t, TimeOptions{ResultsLifespan: 60}, st.(*Time).Options())

	res := &query.Result{Rows: []*query.Row{{Index: 0, Values: map[string]any{"t": "x"}}}, Total: 1}
	require.NoError(t, st.SetResults(k, res))
	res.Rows[0].Values["t"] = "y"
	got, ok := st.GetResults(k)
	require.True(t, ok)
	require.Equal(t, "x", got.Rows[0].Value("t"))
	require.Equal(t, 1, got.Total)

	require.NoError(t, st.SetOutput(k, "html"))
	_, ok = st.GetOutput(k)
	require.False(t, ok, "output lifespan 0 disables the output cache")
}
