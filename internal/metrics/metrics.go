// Package metrics exports prometheus collectors fed by executor and HTTP
// events.
package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/events"
	"github.com/hanpama/viewexec/internal/view"
)

// Collectors groups the view executor metrics.
type Collectors struct {
	PhaseDuration   *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	Rows            *prometheus.HistogramVec
	BuildFailures   *prometheus.CounterVec
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "viewexec_phase_duration_seconds",
			Help:    "Time spent building, executing and rendering views",
			Buckets: prometheus.DefBuckets,
		}, []string{"view", "display", "phase"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewexec_cache_lookups_total",
			Help: "Results and output cache lookups",
		}, []string{"view", "artifact", "result"}),
		Rows: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "viewexec_result_rows",
			Help:    "Rows returned per execution",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6),
		}, []string{"view", "display"}),
		BuildFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewexec_failed_total",
			Help: "Executions that ended failed or denied",
		}, []string{"view", "display", "reason"}),
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewexec_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "viewexec_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Subscribe feeds c from bus. The returned func detaches every handler.
func (c *Collectors) Subscribe(bus *eventbus.Bus) (unsubscribe func()) {
	offs := []func(){
		eventbus.Subscribe(bus, func(_ context.Context, e view.PostBuild) {
			c.phase(e.Executor, "build", e.Duration.Seconds())
		}),
		eventbus.Subscribe(bus, func(_ context.Context, e view.PostExecute) {
			c.phase(e.Executor, "execute", e.Duration.Seconds())
			n := 0
			if r := e.Executor.Result(); r != nil {
				n = len(r.Rows)
			}
			c.Rows.WithLabelValues(e.Executor.ViewName(), e.Executor.DisplayID()).Observe(float64(n))
		}),
		eventbus.Subscribe(bus, func(_ context.Context, e view.PostRender) {
			c.phase(e.Executor, "render", e.Duration.Seconds())
		}),
		eventbus.Subscribe(bus, func(_ context.Context, e view.CacheLookup) {
			result := "miss"
			if e.Hit {
				result = "hit"
			}
			c.CacheLookups.WithLabelValues(e.Executor.ViewName(), e.Artifact, result).Inc()
		}),
		eventbus.Subscribe(bus, func(_ context.Context, e events.HTTPFinish) {
			c.RequestTotal.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			c.RequestDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
			if e.View == "" {
				return
			}
			switch e.Status {
			case 403:
				c.BuildFailures.WithLabelValues(e.View, e.Display, "denied").Inc()
			case 404:
				c.BuildFailures.WithLabelValues(e.View, e.Display, "not_found").Inc()
			}
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (c *Collectors) phase(e *view.Executor, phase string, seconds float64) {
	c.PhaseDuration.WithLabelValues(e.ViewName(), e.DisplayID(), phase).Observe(seconds)
}
