package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"sprintboard/api/internal/backlog"
	"sprintboard/api/internal/store"
)

const storeScopeName = "sprintboard/api/store"

// InstrumentedStore wraps backlog.Store with OTel tracing and metrics.
type InstrumentedStore struct {
	inner  backlog.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation. When telemetry is
// disabled, s is returned as-is.
func WrapStore(s backlog.Store) backlog.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s)
}

func newInstrumentedStore(s backlog.Store) *InstrumentedStore {
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("sprintboard.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("sprintboard.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("sprintboard.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	return &InstrumentedStore{
		inner:  s,
		tracer: Tracer(storeScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedStore) GetProject(ctx context.Context, id string) (store.Project, error) {
	attrs := []attribute.KeyValue{attribute.String("sprintboard.project.id", id)}
	ctx, span, t := s.op(ctx, "GetProject", attrs...)
	v, err := s.inner.GetProject(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) GetStory(ctx context.Context, id string) (store.Story, error) {
	attrs := []attribute.KeyValue{attribute.String("sprintboard.story.id", id)}
	ctx, span, t := s.op(ctx, "GetStory", attrs...)
	v, err := s.inner.GetStory(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) FindStories(ctx context.Context, filter store.StoryFilter) (store.StoryPage, error) {
	attrs := []attribute.KeyValue{attribute.String("sprintboard.project.id", filter.ProjectID)}
	ctx, span, t := s.op(ctx, "FindStories", attrs...)
	v, err := s.inner.FindStories(ctx, filter)
	span.SetAttributes(attribute.Int("sprintboard.story.count", v.TotalDocs))
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) CreateStory(ctx context.Context, story store.Story) (store.Story, error) {
	attrs := []attribute.KeyValue{attribute.String("sprintboard.project.id", story.ProjectID)}
	ctx, span, t := s.op(ctx, "CreateStory", attrs...)
	v, err := s.inner.CreateStory(ctx, story)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) UpdateStory(ctx context.Context, id string, patch store.StoryPatch) (store.Story, error) {
	attrs := []attribute.KeyValue{attribute.String("sprintboard.story.id", id)}
	ctx, span, t := s.op(ctx, "UpdateStory", attrs...)
	v, err := s.inner.UpdateStory(ctx, id, patch)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) DeleteStory(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("sprintboard.story.id", id)}
	ctx, span, t := s.op(ctx, "DeleteStory", attrs...)
	err := s.inner.DeleteStory(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) FindSprints(ctx context.Context, filter store.SprintFilter) ([]store.Sprint, error) {
	attrs := []attribute.KeyValue{attribute.String("sprintboard.project.id", filter.ProjectID)}
	ctx, span, t := s.op(ctx, "FindSprints", attrs...)
	v, err := s.inner.FindSprints(ctx, filter)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}
