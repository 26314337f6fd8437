package assets

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for store operations.
type Observer interface {
	RecordStage(duration time.Duration, sizeBytes int64, err error)
	RecordCommit(duration time.Duration, sizeBytes int64, err error)
	RecordDelete(duration time.Duration, err error)
	RecordCleanupFailure()
}

// PrometheusObserver exports store metrics to Prometheus.
type PrometheusObserver struct {
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec
	committedBytes    prometheus.Counter
	cleanupFailures   prometheus.Counter
}

// NewPrometheusObserver registers stage/commit/delete/cleanup metrics.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "locker_assets"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of asset store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed asset store operations by error code.",
		}, []string{"operation", "code"}),
		committedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_bytes_total",
			Help:      "Cumulative size of committed assets.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_failures_total",
			Help:      "Staged files that could not be removed.",
		}),
	}

	if err := register(reg, &o.operationDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &o.operationErrors); err != nil {
		return nil, err
	}
	if err := register(reg, &o.committedBytes); err != nil {
		return nil, err
	}
	if err := register(reg, &o.cleanupFailures); err != nil {
		return nil, err
	}
	return o, nil
}

// register registers *c, or swaps in the already registered collector of
// the same type.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				*c = existing
				return nil
			}
		}
		return fmt.Errorf("register asset metric: %w", err)
	}
	return nil
}

func (o *PrometheusObserver) RecordStage(duration time.Duration, _ int64, err error) {
	o.record("stage", duration, err)
}

func (o *PrometheusObserver) RecordCommit(duration time.Duration, sizeBytes int64, err error) {
	o.record("commit", duration, err)
	if err == nil && sizeBytes > 0 {
		o.committedBytes.Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) RecordDelete(duration time.Duration, err error) {
	o.record("delete", duration, err)
}

func (o *PrometheusObserver) RecordCleanupFailure() {
	o.cleanupFailures.Inc()
}

func (o *PrometheusObserver) record(op string, duration time.Duration, err error) {
	o.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues(op, errorCode(err)).Inc()
	}
}

func errorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

type nopObserver struct{}

func (nopObserver) RecordStage(time.Duration, int64, error) {}

func (nopObserver) RecordCommit(time.Duration, int64, error) {}

func (nopObserver) RecordDelete(time.Duration, error) {}

func (nopObserver) RecordCleanupFailure() {}
