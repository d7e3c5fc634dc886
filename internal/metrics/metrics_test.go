package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/events"
	"github.com/hanpama/viewexec/internal/view"
	"github.com/hanpama/viewexec/internal/viewdef"
)

func TestCollectorsFollowEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	bus := eventbus.New()
	off := c.Subscribe(bus)
	ctx := context.Background()

	e := view.New(&viewdef.View{Name: "frontpage"}, &view.Env{Bus: bus})
	eventbus.Publish(ctx, bus, view.CacheLookup{Executor: e, Artifact: "results", Hit: false})
	eventbus.Publish(ctx, bus, view.CacheLookup{Executor: e, Artifact: "results", Hit: true})
	eventbus.Publish(ctx, bus, view.CacheLookup{Executor: e, Artifact: "output", Hit: true})
	eventbus.Publish(ctx, bus, view.PostBuild{Executor: e, Duration: time.Millisecond})
	eventbus.Publish(ctx, bus, view.PostExecute{Executor: e, Duration: time.Millisecond})

	require.Equal(t, 1.0, testutil.ToFloat64(c.CacheLookups.WithLabelValues("frontpage", "results", "hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.CacheLookups.WithLabelValues("frontpage", "results", "miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.CacheLookups.WithLabelValues("frontpage", "output", "hit")))
	require.Equal(t, 2, testutil.CollectAndCount(c.PhaseDuration))
	require.Equal(t, 1, testutil.CollectAndCount(c.Rows))

	req := httptest.NewRequest("GET", "/content/x", nil)
	eventbus.Publish(ctx, bus, events.HTTPFinish{Request: req, View: "frontpage", Display: "page_1", Status: 404})
	require.Equal(t, 1.0, testutil.ToFloat64(c.RequestTotal.WithLabelValues("GET", "404")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.BuildFailures.WithLabelValues("frontpage", "page_1", "not_found")))

	off()
	eventbus.Publish(ctx, bus, view.CacheLookup{Executor: e, Artifact: "results", Hit: true})
	require.Equal(t, 1.0, testutil.ToFloat64(c.CacheLookups.WithLabelValues("frontpage", "results", "hit")))
	require.Zero(t, eventbus.Len[view.CacheLookup](bus))
}
