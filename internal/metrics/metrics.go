// Package metrics registers the process's prometheus collectors, in the
// style of the teacher's cmd/driver/main.go and internal/driver/backend
// collectors (promauto, grouped by concern, labeled by outcome).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExportsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xprotect_exports_started_total",
		Help: "Number of exports started",
	})

	ExportsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xprotect_exports_finished_total",
			Help: "Number of exports finished, by terminal state",
		},
		[]string{"state"},
	)

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "xprotect_export_duration_seconds",
		Help: "Wall-clock duration of an export job",
		Buckets: []float64{
			1, 5, 15, 30, 60, 120, 300, 600, 1200,
		},
	})

	FramesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xprotect_frames_emitted_total",
			Help: "Frames emitted by the pipeliner, by codec classification",
		},
		[]string{"codec"},
	)

	PipelineDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xprotect_pipeline_inflight_requests",
		Help: "Number of unanswered next requests currently in flight",
	})

	AuthRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xprotect_auth_refresh_total",
			Help: "Token refreshes performed, by token kind",
		},
		[]string{"kind"},
	)

	ConnectionsBroken = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xprotect_connections_broken_total",
		Help: "ImageServer connections that transitioned to the Broken state",
	})

	EncoderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "xprotect_encoder_duration_seconds",
			Help: "Wall-clock duration of the external encoder process",
			Buckets: []float64{
				1, 5, 15, 30, 60, 120, 300, 600,
			},
		},
		[]string{"mode"},
	)

	EncoderExitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xprotect_encoder_exit_errors_total",
		Help: "Encoder process exits with a non-zero status",
	})
)
