package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanpama/viewexec/internal/eventbus"
	"github.com/hanpama/viewexec/internal/events"
	"github.com/hanpama/viewexec/internal/reqid"
	"github.com/hanpama/viewexec/internal/view"
)

// Setup configures OpenTelemetry and attaches subscribers to bus.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string, bus *eventbus.Bus) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := NewSubscriber(otel.Tracer("viewexec"))
	sub.Register(bus)

	return tp.Shutdown, nil
}

// Subscriber turns bus events into spans.
type Subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
	// phase spans keyed by executor, one map per phase
	buildSpans   sync.Map
	executeSpans sync.Map
	renderSpans  sync.Map
}

func NewSubscriber(tracer trace.Tracer) *Subscriber { return &Subscriber{tracer: tracer} }

// Register subscribes s on bus.
func (s *Subscriber) Register(bus *eventbus.Bus) {
	eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		if e.View != "" {
			span.SetAttributes(attribute.String("view.name", e.View), attribute.String("view.display", e.Display))
		}
		if e.Status >= 500 {
			span.SetStatus(codes.Error, "")
		}
		span.End()
	})

	eventbus.Subscribe(bus, func(ctx context.Context, e view.PreBuild) {
		s.start(ctx, &s.buildSpans, "view.build", e.Executor)
	})
	eventbus.Subscribe(bus, func(ctx context.Context, e view.PostBuild) {
		s.end(&s.buildSpans, e.Executor, attribute.Bool("view.attachment", e.Executor.IsAttachment()))
	})
	eventbus.Subscribe(bus, func(ctx context.Context, e view.PreExecute) {
		s.start(ctx, &s.executeSpans, "view.execute", e.Executor)
	})
	eventbus.Subscribe(bus, func(ctx context.Context, e view.PostExecute) {
		n := 0
		if r := e.Executor.Result(); r != nil {
			n = len(r.Rows)
		}
		s.end(&s.executeSpans, e.Executor, attribute.Int("view.rows", n))
	})
	eventbus.Subscribe(bus, func(ctx context.Context, e view.CacheLookup) {
		for _, m := range []*sync.Map{&s.executeSpans, &s.renderSpans} {
			if v, ok := m.Load(e.Executor); ok {
				v.(trace.Span).AddEvent("cache.lookup", trace.WithAttributes(
					attribute.String("cache.artifact", e.Artifact),
					attribute.Bool("cache.hit", e.Hit),
				))
			}
		}
	})
	eventbus.Subscribe(bus, func(ctx context.Context, e view.PreRender) {
		s.start(ctx, &s.renderSpans, "view.render", e.Executor)
	})
	eventbus.Subscribe(bus, func(ctx context.Context, e view.PostRender) {
		s.end(&s.renderSpans, e.Executor)
	})
}

// start opens a phase span under the request span when one is running.
func (s *Subscriber) start(ctx context.Context, m *sync.Map, name string, e *view.Executor) {
	parent := ctx
	if rid, ok := reqid.FromContext(ctx); ok {
		if v, ok := s.httpSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	_, span := s.tracer.Start(parent, name)
	span.SetAttributes(
		attribute.String("view.name", e.ViewName()),
		attribute.String("view.display", e.DisplayID()),
	)
	m.Store(e, span)
}

func (s *Subscriber) end(m *sync.Map, e *view.Executor, attrs ...attribute.KeyValue) {
	v, ok := m.LoadAndDelete(e)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	span.End()
}
