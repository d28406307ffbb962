package telemetry

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cobranca-api"

// FiberMiddleware traces every HTTP request as a server span. The span
// context is stored on the request's user context so handlers and
// services can attach child spans to it.
func FiberMiddleware() fiber.Handler {
	tracer := otel.Tracer(tracerName)
	propagator := otel.GetTextMapPropagator()

	return func(c *fiber.Ctx) error {
		ctx := propagator.Extract(c.Context(), propagation.HeaderCarrier(c.GetReqHeaders()))

		ctx, span := tracer.Start(ctx,
			fmt.Sprintf("%s %s", c.Method(), c.Path()),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(requestAttributes(c)...),
		)
		defer span.End()

		c.SetUserContext(ctx)

		// Expose the trace id so operators can correlate a failed
		// charge or webhook with its trace in Grafana.
		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Set("X-Trace-ID", sc.TraceID().String())
		}

		err := c.Next()

		recordResponse(span, c, err)
		return err
	}
}

func requestAttributes(c *fiber.Ctx) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("http.method", c.Method()),
		attribute.String("http.url", c.OriginalURL()),
		attribute.String("http.route", c.Route().Path),
		attribute.String("http.host", c.Hostname()),
		attribute.String("http.user_agent", c.Get("User-Agent")),
		attribute.String("http.client_ip", c.IP()),
	}
}

func recordResponse(span trace.Span, c *fiber.Ctx, err error) {
	status := c.Response().StatusCode()
	span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int("http.response_content_length", len(c.Response().Body())),
	)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status >= 400:
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	default:
		span.SetStatus(codes.Ok, "")
	}
}

// SpanFromContext returns the active span for the current request.
func SpanFromContext(c *fiber.Ctx) trace.Span {
	return trace.SpanFromContext(c.UserContext())
}

// AddSpanEvent records an event on the current request span.
func AddSpanEvent(c *fiber.Ctx, name string, attrs ...attribute.KeyValue) {
	SpanFromContext(c).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttribute sets a string attribute on the current request span.
func SetSpanAttribute(c *fiber.Ctx, key, value string) {
	SpanFromContext(c).SetAttributes(attribute.String(key, value))
}
