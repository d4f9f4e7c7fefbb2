package tracing

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// WrapHTTPClient returns a copy of client whose requests to the named
// upstream carry W3C trace headers and produce one client span each.
func WrapHTTPClient(client *http.Client, peer string) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	clone := *client
	base := clone.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone.Transport = &transport{
		base:   base,
		peer:   strings.TrimSpace(peer),
		tracer: otel.Tracer("natiweb/http-client"),
	}
	return &clone
}

type transport struct {
	base   http.RoundTripper
	peer   string
	tracer trace.Tracer
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), t.spanName(req), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	// RoundTrippers must not mutate the caller's request.
	out := req.Clone(ctx)
	InjectContext(ctx, propagation.HeaderCarrier(out.Header))

	start := time.Now()
	resp, err := t.base.RoundTrip(out)
	span.SetAttributes(SafeAttributes(
		attribute.String("peer.service", t.peer),
		attribute.String("http.method", req.Method),
		attribute.String("http.url", SafeURL(req.URL)),
		attribute.Int64("http.client_duration_ms", time.Since(start).Milliseconds()),
	)...)
	if err != nil {
		span.RecordError(SafeError(err))
		span.SetStatus(codes.Error, "transport error")
		return resp, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, "upstream error")
	}
	return resp, nil
}

func (t *transport) spanName(req *http.Request) string {
	name := strings.ToUpper(req.Method) + " " + req.URL.Path
	if t.peer == "" {
		return "HTTP " + name
	}
	return t.peer + " " + name
}
