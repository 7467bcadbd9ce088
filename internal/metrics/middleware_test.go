package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/jobs/{job_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/crawls", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/jobs/abc", nil),
		httptest.NewRequest(http.MethodGet, "/v1/jobs/def", nil),
		httptest.NewRequest(http.MethodPost, "/v1/crawls", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); val != 2 {
		t.Errorf("Expected 2 GET 200 requests, got %f", val)
	}
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "202")); val != 1 {
		t.Errorf("Expected 1 POST 202 request, got %f", val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val != 2 {
		t.Errorf("Expected one latency series per route, got %d", val)
	}
}
