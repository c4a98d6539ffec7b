package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// transferMetrics holds the server's Prometheus collectors. Each Server
// owns its registry so tests can build many servers side by side.
type transferMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec

	uploads      prometheus.Counter
	uploadBytes  prometheus.Counter
	uploadErrors prometheus.Counter

	downloads      prometheus.Counter
	downloadBytes  prometheus.Counter
	downloadErrors prometheus.Counter

	duration *prometheus.HistogramVec
}

func newTransferMetrics() *transferMetrics {
	m := &transferMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfs_requests_total",
			Help: "Total number of HTTP requests by status code.",
		}, []string{"code"}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_uploads_total",
			Help: "Total number of completed uploads.",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_upload_bytes_total",
			Help: "Total bytes stored by completed uploads.",
		}),
		uploadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_upload_errors_total",
			Help: "Total number of rejected or failed uploads.",
		}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_downloads_total",
			Help: "Total number of completed downloads.",
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_download_bytes_total",
			Help: "Total bytes sent by completed downloads.",
		}),
		downloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfs_download_errors_total",
			Help: "Total number of failed downloads.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sfs_transfer_duration_seconds",
			Help:    "Duration of completed transfers.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"direction"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.uploads, m.uploadBytes, m.uploadErrors,
		m.downloads, m.downloadBytes, m.downloadErrors,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest records one finished request.
func (m *transferMetrics) RecordRequest(status int) {
	m.requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordUpload records a successful upload
func (m *transferMetrics) RecordUpload(bytes int64, d time.Duration) {
	m.uploads.Inc()
	m.uploadBytes.Add(float64(bytes))
	m.duration.WithLabelValues("upload").Observe(d.Seconds())
}

func (m *transferMetrics) RecordUploadError() {
	m.uploadErrors.Inc()
}

// RecordDownload records a successful download
func (m *transferMetrics) RecordDownload(bytes int64, d time.Duration) {
	m.downloads.Inc()
	m.downloadBytes.Add(float64(bytes))
	m.duration.WithLabelValues("download").Observe(d.Seconds())
}

func (m *transferMetrics) RecordDownloadError() {
	m.downloadErrors.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *transferMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
