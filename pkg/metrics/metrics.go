// Package metrics exposes the scheduler's and endpoint pool's internal
// counters as Prometheus gauges, grounded on sequra-s3-sftp-proxy's
// promauto-based collector registration (one package-level Collector,
// one prometheus.NewRegistry, gauges/counters wired at construction
// rather than scattered promauto.New* globals).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every gauge/counter the engine reports.
type Collector struct {
	Registry *prometheus.Registry

	RequestsInFlight  prometheus.Gauge
	RequestsPreparing prometheus.Gauge
	PrepareQueueLen   prometheus.Gauge
	ActiveUploads     prometheus.Gauge

	UploadsStarted   prometheus.Counter
	UploadsSucceeded prometheus.Counter
	UploadsFailed    prometheus.Counter
	UploadsPaused    prometheus.Counter

	PartsUploaded    prometheus.Counter
	PartsFailed      prometheus.Counter
	BytesTransferred prometheus.Counter

	EndpointErrors prometheus.Counter

	RetryableErrors    prometheus.Counter
	NonRetryableErrors prometheus.Counter
}

// New builds a Collector with its own registry (the teacher's api handlers
// expose /metrics off a dedicated registry rather than the global default,
// which keeps this importable from tests without global-state collisions).
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		Registry: reg,
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "s3transfer", Name: "requests_in_flight", Help: "S3 requests currently on the wire.",
		}),
		RequestsPreparing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "s3transfer", Name: "requests_preparing", Help: "Requests currently reading their body from the input stream.",
		}),
		PrepareQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "s3transfer", Name: "prepare_queue_length", Help: "Prepared requests waiting for a connection.",
		}),
		ActiveUploads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "s3transfer", Name: "active_uploads", Help: "Meta-requests not yet retired.",
		}),
		UploadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "uploads_started_total", Help: "Uploads submitted to the scheduler.",
		}),
		UploadsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "uploads_succeeded_total", Help: "Uploads that reached FinishSuccess.",
		}),
		UploadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "uploads_failed_total", Help: "Uploads that reached FinishFailure or FinishResumeFailed.",
		}),
		UploadsPaused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "uploads_paused_total", Help: "Uploads that reached FinishPaused.",
		}),
		PartsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "parts_uploaded_total", Help: "UPLOAD_PART requests that succeeded.",
		}),
		PartsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "parts_failed_total", Help: "UPLOAD_PART requests that failed.",
		}),
		BytesTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "bytes_transferred_total", Help: "Bytes acknowledged by S3 across all parts.",
		}),
		EndpointErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "endpoint_errors_total", Help: "Errors recorded against pooled endpoints.",
		}),
		RetryableErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "retryable_errors_total", Help: "Dispatch failures IsRetryable classified as worth a caller-driven retry.",
		}),
		NonRetryableErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "s3transfer", Name: "nonretryable_errors_total", Help: "Dispatch failures IsRetryable classified as terminal.",
		}),
	}

	reg.MustRegister(
		c.RequestsInFlight, c.RequestsPreparing, c.PrepareQueueLen, c.ActiveUploads,
		c.UploadsStarted, c.UploadsSucceeded, c.UploadsFailed, c.UploadsPaused,
		c.PartsUploaded, c.PartsFailed, c.BytesTransferred, c.EndpointErrors,
		c.RetryableErrors, c.NonRetryableErrors,
	)
	return c
}

// SchedulerHook adapts scheduler.Client.OnMetric's (event string, n int64)
// callback shape onto this Collector's gauges.
func (c *Collector) SchedulerHook(event string, n int64) {
	switch event {
	case "requests_in_flight":
		c.RequestsInFlight.Set(float64(n))
	case "requests_preparing":
		c.RequestsPreparing.Set(float64(n))
	case "prepare_queue_length":
		c.PrepareQueueLen.Set(float64(n))
	case "active_uploads":
		c.ActiveUploads.Set(float64(n))
	case "part_uploaded":
		c.PartsUploaded.Add(float64(n))
	case "part_failed":
		c.PartsFailed.Add(float64(n))
	case "bytes_transferred":
		c.BytesTransferred.Add(float64(n))
	case "endpoint_error":
		c.EndpointErrors.Add(float64(n))
	case "retryable_error":
		c.RetryableErrors.Add(float64(n))
	case "nonretryable_error":
		c.NonRetryableErrors.Add(float64(n))
	}
}
