package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingNamesSpanByRoute(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	var logs bytes.Buffer
	r := chi.NewRouter()
	r.Use(Tracing("cdr-insight"))
	r.Use(Logger(zerolog.New(&logs)))
	r.Get("/api/calls/{id}", func(w http.ResponseWriter, r *http.Request) {
		if TraceID(r) == "" {
			t.Error("expected trace id inside handler")
		}
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/calls/7", nil))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "GET /api/calls/{id}" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if !strings.Contains(logs.String(), `"trace_id":"`+spans[0].SpanContext().TraceID().String()+`"`) {
		t.Errorf("expected trace id in request log, got %s", logs.String())
	}
}

func TestTraceIDWithoutSpan(t *testing.T) {
	if id := TraceID(httptest.NewRequest(http.MethodGet, "/", nil)); id != "" {
		t.Errorf("expected empty trace id, got %q", id)
	}
}
