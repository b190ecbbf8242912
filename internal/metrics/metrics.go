// Package metrics counts and times the operations a DB handle sends to the
// remote store.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "medinventory"
	subsystem = "store"

	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector holds the operation metrics. A nil *Collector records nothing.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates the collector and registers it with reg. Registering twice with
// the same registry reuses the metrics already there.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Operations sent to the remote store by table, operation and outcome",
			},
			[]string{"table", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Round-trip time of operations sent to the remote store",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"table", "operation"},
		),
	}

	var err error
	if c.operations, err = register(reg, c.operations); err != nil {
		return nil, err
	}
	if c.duration, err = register(reg, c.duration); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

// Observe records one operation that started at began.
func (c *Collector) Observe(table, operation string, began time.Time, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.operations.WithLabelValues(table, operation, outcome).Inc()
	c.duration.WithLabelValues(table, operation).Observe(time.Since(began).Seconds())
}

// Count returns the counter for one label combination, for tests and status output.
func (c *Collector) Count(table, operation, outcome string) prometheus.Counter {
	return c.operations.WithLabelValues(table, operation, outcome)
}
