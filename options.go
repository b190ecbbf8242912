package medinventory

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medkit/medinventory/internal/metrics"
	"github.com/medkit/medinventory/pkg/logger"
)

// Option configures a DB handle.
type Option func(db *DB) error

// WithLogger sets the logger failures are reported to.
func WithLogger(l logger.Logger) Option {
	return func(db *DB) error {
		if l == nil {
			return errors.New("medinventory: nil logger")
		}
		db.logger = l
		return nil
	}
}

// WithQueryTimeout bounds every read and mutation. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(db *DB) error {
		if d < 0 {
			return errors.New("medinventory: negative query timeout")
		}
		db.queryTimeout = d
		return nil
	}
}

// WithClock sets the clock expiry partitions compare against.
func WithClock(now func() time.Time) Option {
	return func(db *DB) error {
		if now == nil {
			return errors.New("medinventory: nil clock")
		}
		db.now = now
		return nil
	}
}

// WithParallelPartitions fetches the partitions of one read concurrently.
//
// Every partition is fetched to completion. When some fail, the failure of the
// earliest partition is reported and that partition and every later one are
// left empty, as if they had been fetched in order.
func WithParallelPartitions() Option {
	return func(db *DB) error {
		db.parallel = true
		return nil
	}
}

// WithMetrics registers operation counters and latencies with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(db *DB) error {
		c, err := metrics.New(reg)
		if err != nil {
			return err
		}
		db.metrics = c
		return nil
	}
}
