package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "bookstore_store_operation_duration_seconds",
		Help:    "Duration of book store operations in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"backend", "operation", "outcome"},
)

// observe records the duration of a store operation. Use with defer.
func observe(backend, operation string, start time.Time, err *error) {
	outcome := "ok"
	if err != nil && *err != nil {
		outcome = "error"
	}
	storeOperationDuration.WithLabelValues(backend, operation, outcome).
		Observe(time.Since(start).Seconds())
}
