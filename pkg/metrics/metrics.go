// Package metrics provides Prometheus metrics for the Aster service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks sync runs by terminal status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of synchronization runs by status",
		},
		[]string{"status"},
	)

	// SyncRunDuration tracks sync run duration in seconds
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of synchronization runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// BillsExtracted tracks bill rows extracted from portals
	BillsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "bills_extracted_total",
			Help:      "Total number of bill rows extracted from portals",
		},
	)

	// NewBillsTotal tracks bills created by synchronization
	NewBillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "new_bills_total",
			Help:      "Total number of bills created by synchronization",
		},
	)

	// AlertsCreated tracks alerts created by type
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total number of alerts created by type",
		},
		[]string{"type"},
	)

	// AttachmentDownloads tracks attachment downloads by outcome
	AttachmentDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aster",
			Subsystem: "sync",
			Name:      "attachment_downloads_total",
			Help:      "Total number of attachment download attempts by outcome",
		},
		[]string{"outcome"},
	)
)
