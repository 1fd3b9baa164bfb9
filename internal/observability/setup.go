package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance. A nop until Init swaps in the
	// production logger, so library code can log unconditionally.
	Logger = zap.NewNop()

	// Metrics
	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_verdicts_total",
			Help: "Total number of moderation verdicts by kind",
		},
		[]string{"verdict"},
	)

	messageProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_processing_duration_seconds",
			Help:    "Time spent processing messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	batchFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_flush_duration_seconds",
			Help:    "Time spent flushing batches to the remote backend",
			Buckets: prometheus.DefBuckets,
		},
	)

	quotaRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "remote_quota_remaining",
			Help: "Remote path requests remaining in the current window",
		},
	)
)

func Init(ctx context.Context, addr string) error {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	Logger = logger

	// Register metrics
	prometheus.MustRegister(verdictsTotal)
	prometheus.MustRegister(messageProcessingDuration)
	prometheus.MustRegister(batchFlushDuration)
	prometheus.MustRegister(quotaRemaining)

	// Setup OpenTelemetry (simplified setup)
	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	// Start Prometheus metrics endpoint
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

// RecordVerdict records a single moderation verdict
func RecordVerdict(kind string) {
	verdictsTotal.WithLabelValues(kind).Inc()
}

// SetQuotaRemaining updates the remote quota gauge
func SetQuotaRemaining(remaining int) {
	quotaRemaining.Set(float64(remaining))
}

// StartMessageProcessing returns a function to record message processing duration
func StartMessageProcessing() func(status string) {
	start := prometheus.NewTimer(messageProcessingDuration.WithLabelValues("processing"))
	return func(status string) {
		start.ObserveDuration()
	}
}

// StartBatchFlush returns a function to record batch flush duration
func StartBatchFlush() func() {
	start := prometheus.NewTimer(batchFlushDuration)
	return func() {
		start.ObserveDuration()
	}
}
