package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a recording tracer provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func TestTracing_SpanNames(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/search?lat=51.5&lng=-0.12", "GET /search"},
		{"/search/stream", "GET /search/stream"},
		{"/score?rating=4&reviews=10", "GET /score"},
		{"/practices/ChIJ123", "GET other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := recordSpans(t)
			handler := Tracing("gpfinder-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			spans := rec.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			if spans[0].Name() != tt.want {
				t.Errorf("span name = %q, want %q", spans[0].Name(), tt.want)
			}
		})
	}
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	recordSpans(t)

	const parentTrace = "4bf92f3577b34da6a3ce929d0e0e4736"
	var traceID, spanID string
	handler := Tracing("gpfinder-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r)
		spanID = GetSpanID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/search?lat=1&lng=1", nil)
	req.Header.Set("traceparent", "00-"+parentTrace+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if traceID != parentTrace {
		t.Errorf("trace ID = %q, want %q", traceID, parentTrace)
	}
	if spanID == "" || spanID == "00f067aa0ba902b7" {
		t.Errorf("expected a new child span ID, got %q", spanID)
	}
}

func TestTracing_SkipsProbes(t *testing.T) {
	rec := recordSpans(t)
	handler := Tracing("gpfinder-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := len(rec.Ended()); n != 0 {
		t.Errorf("expected no spans for probes, got %d", n)
	}
}

func TestTraceIDs_WithoutSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	if id := GetTraceID(req); id != "" {
		t.Errorf("GetTraceID() = %q, want empty", id)
	}
	if id := GetSpanID(req); id != "" {
		t.Errorf("GetSpanID() = %q, want empty", id)
	}
}
