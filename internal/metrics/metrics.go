package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	conversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdf2img",
			Name:      "conversions_total",
			Help:      "Total conversions by output format and result kind (ok or error kind)",
		},
		[]string{"format", "result"},
	)

	conversionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdf2img",
			Name:      "conversion_duration_seconds",
			Help:      "Duration of whole conversions by output format",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"format"},
	)

	pagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdf2img",
			Name:      "pages_processed_total",
			Help:      "Total pages processed by result (success, failed)",
		},
		[]string{"result"},
	)

	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdf2img",
			Name:      "page_stage_duration_seconds",
			Help:      "Per page duration of render, encode and upload",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	uploadedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdf2img",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes written to the object store by output format",
		},
		[]string{"format"},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdf2img",
			Name:      "conversions_inflight",
			Help:      "Conversions currently admitted",
		},
	)

	rejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdf2img",
			Name:      "admission_rejected_total",
			Help:      "Requests rejected because the conversion limit was reached",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(conversions, conversionLatency, pagesProcessed, stageLatency, uploadedBytes, inflight, rejected)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveConversion(format, result string, dur time.Duration) {
	conversions.WithLabelValues(format, result).Inc()
	conversionLatency.WithLabelValues(format).Observe(dur.Seconds())
}

func IncPage(result string) { pagesProcessed.WithLabelValues(result).Inc() }

func ObserveRender(dur time.Duration) { stageLatency.WithLabelValues("render").Observe(dur.Seconds()) }
func ObserveEncode(dur time.Duration) { stageLatency.WithLabelValues("encode").Observe(dur.Seconds()) }
func ObserveUpload(dur time.Duration) { stageLatency.WithLabelValues("upload").Observe(dur.Seconds()) }

func AddUploadedBytes(format string, n int) { uploadedBytes.WithLabelValues(format).Add(float64(n)) }

func Admitted() { inflight.Inc() }
func Released() { inflight.Dec() }
func Rejected() { rejected.Inc() }
