package ingress

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// headerSnapshot captures the request shape needed for a span, taken
// before any response is written so it can't observe a mutated or
// reused *http.Request afterward.
type headerSnapshot struct {
	method string
	flavor string
	url    string
}

func snapshotRequestHeaders(r *http.Request) headerSnapshot {
	return headerSnapshot{method: r.Method, flavor: r.Proto, url: r.URL.String()}
}

func startValidationSpan(ctx context.Context, tracer trace.Tracer, snap headerSnapshot) (context.Context, trace.Span) {
	spanCtx, span := tracer.Start(ctx, "ingress.validate")
	span.SetAttributes(
		attribute.String("http.method", snap.method),
		attribute.String("http.flavor", snap.flavor),
		attribute.String("http.url", snap.url),
	)
	return spanCtx, span
}

func endValidationSpan(span trace.Span, msg string) {
	span.SetStatus(codes.Error, msg)
	span.End()
}
