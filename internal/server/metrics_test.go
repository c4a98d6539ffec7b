package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Transfers(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) { c.MaxUploadBytes = 8 })
	h := s.Handler()

	do(t, h, http.MethodPost, "/upload", strings.NewReader("12345"), map[string]string{"Content-Type": "image/png"})
	do(t, h, http.MethodPost, "/upload", strings.NewReader("123456789"), map[string]string{"Content-Type": "image/png"})
	do(t, h, http.MethodGet, "/file/file.png", nil, nil)
	do(t, h, http.MethodGet, "/file/missing.png", nil, nil)

	m := s.metrics
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"uploads", testutil.ToFloat64(m.uploads), 1},
		{"upload bytes", testutil.ToFloat64(m.uploadBytes), 5},
		{"upload errors", testutil.ToFloat64(m.uploadErrors), 1},
		{"downloads", testutil.ToFloat64(m.downloads), 1},
		{"download bytes", testutil.ToFloat64(m.downloadBytes), 5},
		{"download errors", testutil.ToFloat64(m.downloadErrors), 1},
		{"201 responses", testutil.ToFloat64(m.requests.WithLabelValues("201")), 1},
		{"413 responses", testutil.ToFloat64(m.requests.WithLabelValues("413")), 1},
		{"404 responses", testutil.ToFloat64(m.requests.WithLabelValues("404")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: Expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestMetrics_Endpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	do(t, h, http.MethodGet, "/", nil, nil)
	rr := do(t, h, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`sfs_requests_total{code="200"} 1`, "sfs_uploads_total 0", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := newTransferMetrics()
	b := newTransferMetrics()
	a.RecordUploadError()

	if testutil.ToFloat64(b.uploadErrors) != 0 {
		t.Error("metrics leaked between servers")
	}
}
