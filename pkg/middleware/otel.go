package middleware

import (
	"context"

	"github.com/balco-dev/balco/pkg/router"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "balco"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "balco").
	TracerName string

	// TracerProvider supplies the tracer. Default: the global provider.
	TracerProvider trace.TracerProvider

	// Filter determines which events to trace. If nil, all events are traced.
	Filter func(c *router.Context) bool

	// AttributeExtractor adds custom attributes once the event is handled.
	AttributeExtractor func(c *router.Context) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithEventFilter sets a filter function for events.
func WithEventFilter(filter func(c *router.Context) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(c *router.Context) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry creates middleware that traces every event.
//
// Each span is named "balco.<event>" and carries balco.event,
// balco.session_id, balco.room_id, balco.outcome and balco.fanout. The span
// context replaces the event's StdContext so persistence calls are children
// of it. Failed and malformed events set the span status to Error; ignored
// events are not errors.
//
// Configure the provider in main() before starting the server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) router.Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	provider := config.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(config.TracerName)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c *router.Context) error {
			if config.Filter != nil && !config.Filter(c) {
				return next(c)
			}

			event := c.Event()
			if event == "" {
				event = "unknown"
			}
			spanCtx, span := tracer.Start(
				c.StdContext(),
				"balco."+event,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("balco.event", event),
					attribute.String("balco.session_id", c.SessionID()),
				),
			)
			defer span.End()

			parent := c.StdContext()
			c.SetStdContext(spanCtx)
			c.SetValue(spanContextKey{}, spanCtx)
			err := next(c)
			c.SetStdContext(parent)

			span.SetAttributes(
				attribute.String("balco.room_id", c.RoomID()),
				attribute.String("balco.outcome", string(c.Outcome())),
				attribute.Int("balco.fanout", c.Fanout()),
			)
			if config.AttributeExtractor != nil {
				span.SetAttributes(config.AttributeExtractor(c)...)
			}

			switch {
			case err == nil:
				span.SetStatus(codes.Ok, "")
			case c.Outcome() == router.OutcomeIgnored:
				span.SetStatus(codes.Ok, "")
				span.AddEvent("room not found")
			default:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

type spanContextKey struct{}

// SpanFromContext returns the span for the event, or nil outside the
// OpenTelemetry middleware.
func SpanFromContext(c *router.Context) trace.Span {
	if spanCtx, ok := c.Value(spanContextKey{}).(context.Context); ok {
		return trace.SpanFromContext(spanCtx)
	}
	return nil
}

// TraceContext returns a context carrying the event's span for outbound calls.
func TraceContext(c *router.Context) context.Context {
	if spanCtx, ok := c.Value(spanContextKey{}).(context.Context); ok {
		return spanCtx
	}
	return c.StdContext()
}
