package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newMetricsFixture(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	return m, reg
}

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestHTTPMetricsRecordsRequests(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		status      int
		wantSamples bool
	}{
		{"chat history read", http.MethodGet, "/chat-history/alice", http.StatusOK, true},
		{"media fetch", http.MethodGet, "/media/images/pic.png", http.StatusOK, true},
		{"unknown route", http.MethodGet, "/notfound", http.StatusNotFound, true},
		{"health checks excluded", http.MethodGet, "/health", http.StatusOK, false},
		{"readiness checks excluded", http.MethodGet, "/ready", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reg := newMetricsFixture(t)

			wrapped := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}

			for _, name := range []string{MetricHTTPRequestDuration, MetricHTTPRequestsTotal} {
				mf := gatherFamily(t, reg, name)
				if mf == nil {
					if tt.wantSamples {
						t.Errorf("metric %s not found", name)
					}
					continue
				}
				if got := len(mf.GetMetric()); tt.wantSamples != (got > 0) {
					t.Errorf("metric %s has %d samples, want samples = %v", name, got, tt.wantSamples)
				}
			}
		})
	}
}

func TestHTTPMetricsLabels(t *testing.T) {
	m, reg := newMetricsFixture(t)

	wrapped := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat-history/alice", nil))

	mf := gatherFamily(t, reg, MetricHTTPRequestsTotal)
	if mf == nil {
		t.Fatal("total metric not found")
	}
	if len(mf.GetMetric()) != 1 {
		t.Fatalf("label sets = %d, want 1", len(mf.GetMetric()))
	}

	labels := make(map[string]string)
	for _, label := range mf.GetMetric()[0].GetLabel() {
		labels[label.GetName()] = label.GetValue()
	}

	// Client IDs collapse into the route pattern so cardinality stays bounded.
	want := map[string]string{
		"method": "GET",
		"path":   "/chat-history/{id}",
		"status": "200",
	}
	for name, value := range want {
		if labels[name] != value {
			t.Errorf("label %s = %q, want %q", name, labels[name], value)
		}
	}
}

func TestHTTPMetricsResponseSize(t *testing.T) {
	m, reg := newMetricsFixture(t)

	body := `{"status":"success","data":[]}`
	wrapped := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat-history/alice", nil))

	mf := gatherFamily(t, reg, MetricHTTPResponseSizeBytes)
	if mf == nil {
		t.Fatal("response size metric not found")
	}
	hist := mf.GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", hist.GetSampleCount())
	}
	if hist.GetSampleSum() != float64(len(body)) {
		t.Errorf("sample sum = %f, want %d", hist.GetSampleSum(), len(body))
	}
}

func TestMetricsResponseWriter(t *testing.T) {
	t.Run("accumulates size across writes", func(t *testing.T) {
		mrw := newMetricsResponseWriter(httptest.NewRecorder())
		n1, _ := mrw.Write([]byte("Hello "))
		n2, _ := mrw.Write([]byte("World"))
		if mrw.size != int64(n1+n2) {
			t.Errorf("size = %d, want %d", mrw.size, n1+n2)
		}
	})

	t.Run("keeps the first status code", func(t *testing.T) {
		mrw := newMetricsResponseWriter(httptest.NewRecorder())
		mrw.WriteHeader(http.StatusCreated)
		mrw.WriteHeader(http.StatusInternalServerError)
		if mrw.statusCode != http.StatusCreated {
			t.Errorf("statusCode = %d, want %d", mrw.statusCode, http.StatusCreated)
		}
	})
}

func TestObserveHTTPRequest(t *testing.T) {
	m, reg := newMetricsFixture(t)

	m.ObserveHTTPRequest("GET", "/chat-history/{id}", "200", 0.123, 100, 500)
	m.ObserveHTTPRequest("GET", "/media/{file}", "200", 0.456, 200, 300)
	m.ObserveHTTPRequest("GET", "/chat-history/{id}", "200", 0.789, 150, 600)

	for _, name := range []string{
		MetricHTTPRequestDuration,
		MetricHTTPRequestsTotal,
		MetricHTTPRequestSizeBytes,
		MetricHTTPResponseSizeBytes,
	} {
		if gatherFamily(t, reg, name) == nil {
			t.Errorf("metric %s not found", name)
		}
	}

	mf := gatherFamily(t, reg, MetricHTTPRequestsTotal)
	if got := len(mf.GetMetric()); got != 2 {
		t.Errorf("label sets = %d, want 2 (one per route)", got)
	}
}

func BenchmarkHTTPMetrics(b *testing.B) {
	m := NewMetrics()
	if err := m.Register(prometheus.NewRegistry()); err != nil {
		b.Fatalf("Register() failed: %v", err)
	}

	wrapped := HTTPMetrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/chat-history/alice", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}
}
