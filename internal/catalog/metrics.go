package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogBooks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookstore_catalog_books",
			Help: "Number of books seen on the last full catalog load",
		},
	)

	catalogWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookstore_catalog_writes_total",
			Help: "Total number of catalog write attempts by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

func recordWrite(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	catalogWrites.WithLabelValues(operation, outcome).Inc()
}
