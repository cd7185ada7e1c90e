// Package metrics exposes Prometheus instrumentation for the content store:
// HTTP traffic, byte throughput, eviction and expiry activity, and
// persistence health.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered by the server.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	UploadBytes   prometheus.Counter
	DownloadBytes prometheus.Counter

	EvictedFiles prometheus.Counter
	EvictedBytes prometheus.Counter
	ReapedFiles  prometheus.Counter

	WALAppends       prometheus.Counter
	SnapshotDuration prometheus.Histogram

	Repos     prometheus.GaugeFunc
	UsedBytes prometheus.GaugeFunc
}

// Totals supplies live catalog totals for the gauge collectors.
type Totals interface {
	RepoCount() int
	TotalSizeBytes() uint64
}

// New builds and registers all collectors against a private registry.
func New(totals Totals) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stashfs_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stashfs_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stashfs_upload_bytes_total",
			Help: "Total bytes accepted by file uploads.",
		}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stashfs_download_bytes_total",
			Help: "Total bytes served by file downloads.",
		}),
		EvictedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stashfs_evicted_files_total",
			Help: "Files removed by quota eviction.",
		}),
		EvictedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stashfs_evicted_bytes_total",
			Help: "Bytes reclaimed by quota eviction.",
		}),
		ReapedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stashfs_reaped_files_total",
			Help: "Files removed by TTL expiry.",
		}),
		WALAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stashfs_wal_appends_total",
			Help: "Entries appended to the write-ahead log.",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stashfs_snapshot_duration_seconds",
			Help:    "Time spent writing metadata snapshots.",
			Buckets: prometheus.DefBuckets,
		}),
		Repos: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stashfs_repositories",
			Help: "Number of repositories.",
		}, func() float64 { return float64(totals.RepoCount()) }),
		UsedBytes: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "stashfs_used_bytes",
			Help: "Bytes stored across all repositories.",
		}, func() float64 { return float64(totals.TotalSizeBytes()) }),
	}

	reg.MustRegister(
		m.HTTPRequests, m.HTTPDurations,
		m.UploadBytes, m.DownloadBytes,
		m.EvictedFiles, m.EvictedBytes, m.ReapedFiles,
		m.WALAppends, m.SnapshotDuration,
		m.Repos, m.UsedBytes,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
