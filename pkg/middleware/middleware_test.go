package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/domcore/pkg/metrics"
)

type recordedSpan struct {
	noop.Span
	name   string
	kind   trace.SpanKind
	attrs  map[attribute.Key]attribute.Value
	status codes.Code
	ended  bool
}

func (s *recordedSpan) SetName(name string) { s.name = name }

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordedSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordedSpan) End(...trace.SpanEndOption) { s.ended = true }

type recordingTracer struct {
	embedded.Tracer
	mu    sync.Mutex
	spans []*recordedSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordedSpan{name: name, kind: cfg.SpanKind(), attrs: make(map[attribute.Key]attribute.Value)}
	s.SetAttributes(cfg.Attributes()...)
	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordingProvider struct {
	embedded.TracerProvider
	tracer *recordingTracer
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

func newRouter(mws ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(mws...)
	r.Get("/managers/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "0" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})
	return r
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestOpenTelemetryNamesSpanByRoute(t *testing.T) {
	tracer := &recordingTracer{}
	var inHandler trace.Span

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(OpenTelemetry(
		WithTracerProvider(&recordingProvider{tracer: tracer}),
		WithAttributeExtractor(func(*http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	))
	r.Get("/managers/{id}", func(w http.ResponseWriter, r *http.Request) {
		inHandler = trace.SpanFromContext(r.Context())
	})

	serve(r, "/managers/7")

	if len(tracer.spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(tracer.spans))
	}
	span := tracer.spans[0]
	if span.name != "GET /managers/{id}" {
		t.Errorf("span name = %q", span.name)
	}
	if span.kind != trace.SpanKindServer {
		t.Errorf("span kind = %v", span.kind)
	}
	if inHandler != trace.Span(span) {
		t.Error("handler context does not carry the request span")
	}
	if !span.ended || span.status != codes.Ok {
		t.Errorf("ended = %v, status = %v", span.ended, span.status)
	}
	checks := map[attribute.Key]string{
		"http.method": "GET",
		"http.target": "/managers/7",
		"http.route":  "/managers/{id}",
		"test.attr":   "ok",
	}
	for k, want := range checks {
		if got := span.attrs[k].AsString(); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if span.attrs["http.status_code"].AsInt64() != 200 {
		t.Errorf("http.status_code = %v", span.attrs["http.status_code"])
	}
	if span.attrs["http.request_id"].AsString() == "" {
		t.Error("missing http.request_id")
	}
}

func TestOpenTelemetryServerErrors(t *testing.T) {
	tracer := &recordingTracer{}
	h := newRouter(OpenTelemetry(
		WithTracerProvider(&recordingProvider{tracer: tracer}),
		WithIncludeRequestID(false),
	))

	if rec := serve(h, "/managers/0"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	span := tracer.spans[0]
	if span.status != codes.Error {
		t.Errorf("status = %v, want Error", span.status)
	}
	if _, ok := span.attrs["http.request_id"]; ok {
		t.Error("request id recorded although disabled")
	}
}

func TestOpenTelemetryFilter(t *testing.T) {
	tracer := &recordingTracer{}
	h := newRouter(OpenTelemetry(
		WithTracerProvider(&recordingProvider{tracer: tracer}),
		WithTracerName("filtered"),
		WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz"
		}),
	))

	serve(h, "/healthz")
	serve(h, "/managers/1")

	if len(tracer.spans) != 1 || tracer.spans[0].name != "GET /managers/{id}" {
		t.Errorf("spans = %+v", tracer.spans)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mtr := metrics.New(metrics.WithRegistry(reg))
	h := newRouter(Metrics(mtr))

	serve(h, "/managers/1")
	serve(h, "/managers/2")
	serve(h, "/managers/0")
	serve(h, "/healthz")

	// Two routes with 200, one with 500.
	n, err := testutil.GatherAndCount(reg, "domcore_http_requests_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("http_requests_total series = %d, want 3", n)
	}
	n, err = testutil.GatherAndCount(reg, "domcore_http_request_duration_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("http_request_duration_seconds series = %d, want 2", n)
	}
}

func TestMetricsNil(t *testing.T) {
	h := newRouter(Metrics(nil))
	if rec := serve(h, "/managers/1"); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRoutePattern(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	if got := RoutePattern(req); got != "/raw/path" {
		t.Errorf("RoutePattern(unrouted) = %q", got)
	}
}
