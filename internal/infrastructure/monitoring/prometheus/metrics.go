package prometheus

import (
	"strconv"
	"time"
)

// Buckets for stage and request durations, in seconds.
var (
	DefaultStageDurationBuckets = []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 900}
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
)

// AppMetrics holds the ETL's metric vectors.  It satisfies the pipeline's
// metrics port.
type AppMetrics struct {
	Records      GaugeVec
	StageSeconds HistogramVec
	Warnings     CounterVec
	SinkFailures CounterVec
	Runs         CounterVec
	LastRun      GaugeVec

	MessagesProcessed CounterVec

	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HealthCheckStatus   GaugeVec
}

// NewAppMetrics registers every metric on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	return &AppMetrics{
		Records:      collector.RegisterGauge("records", "Records at each pipeline step of the last run", "kind"),
		StageSeconds: collector.RegisterHistogram("stage_duration_seconds", "Pipeline stage duration", DefaultStageDurationBuckets, "stage"),
		Warnings:     collector.RegisterCounter("warnings_total", "Dataset-level warnings raised while scoring", "kind"),
		SinkFailures: collector.RegisterCounter("sink_failures_total", "Optional sink failures", "sink"),
		Runs:         collector.RegisterCounter("runs_total", "Completed pipeline runs", "status"),
		LastRun:      collector.RegisterGauge("last_run_timestamp_seconds", "Unix time of the last run", "status"),

		MessagesProcessed: collector.RegisterCounter("messages_processed_total", "Import requests consumed by the worker", "status"),

		HTTPRequestsTotal:   collector.RegisterCounter("http_requests_total", "Ops server requests", "method", "path", "status_code"),
		HTTPRequestDuration: collector.RegisterHistogram("http_request_duration_seconds", "Ops server request duration", DefaultHTTPDurationBuckets, "method", "path"),
		HealthCheckStatus:   collector.RegisterGauge("health_check_status", "Dependency health (1=up, 0=down)", "component"),
	}
}

// ObserveStage records one stage duration.
func (m *AppMetrics) ObserveStage(stage string, d time.Duration) {
	m.StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// SetRecords sets the record gauge of kind (read, deduped, eligible, upserted...).
func (m *AppMetrics) SetRecords(kind string, n int) {
	m.Records.WithLabelValues(kind).Set(float64(n))
}

// IncWarning counts a dataset-level warning.
func (m *AppMetrics) IncWarning(kind string) {
	m.Warnings.WithLabelValues(kind).Inc()
}

// IncSinkFailure counts a failed optional sink.
func (m *AppMetrics) IncSinkFailure(sink string) {
	m.SinkFailures.WithLabelValues(sink).Inc()
}

// RecordRun counts a finished run.
func (m *AppMetrics) RecordRun(err error, at time.Time) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.Runs.WithLabelValues(status).Inc()
	m.LastRun.WithLabelValues(status).Set(float64(at.Unix()))
}

// RecordMessage counts a consumed import request.
func (m *AppMetrics) RecordMessage(err error) {
	status := "processed"
	if err != nil {
		status = "failed"
	}
	m.MessagesProcessed.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an ops server request.
func (m *AppMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SetHealth records a dependency's health.
func (m *AppMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
