package jsonldb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCommit = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexstore_commit_total",
			Help: "Number of commits per collection and result.",
		},
		[]string{
			"collection",
			"result", // ok, error
		},
	)
	metricDelete = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexstore_delete_total",
			Help: "Number of deletes per collection and result.",
		},
		[]string{
			"collection",
			"result", // ok, error
		},
	)
	metricReload = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flexstore_reload_total",
			Help: "Number of full index reloads from disk.",
		},
		[]string{"collection"},
	)
	metricRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flexstore_rows",
			Help: "Number of rows in the in-memory index.",
		},
		[]string{"collection"},
	)
)
